package deploy

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Level is the severity of a journal entry.
type Level string

// Journal levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one recorded step message.
type Entry struct {
	Timestamp time.Time `json:"-"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// MarshalJSON renders the timestamp as a wall-clock time.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	return json.Marshal(struct {
		Time string `json:"timestamp"`
		alias
	}{Time: e.Timestamp.Format("15:04:05"), alias: alias(e)})
}

// Journal records the messages of a deployment run and mirrors them to a
// logger. The recorded entries end up in the final result.
type Journal struct {
	mu      sync.Mutex
	logger  *log.Logger
	entries []Entry
	now     func() time.Time
}

// NewJournal returns a journal writing to logger. A nil logger discards
// output but still records entries.
func NewJournal(logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Journal{logger: logger, now: time.Now}
}

// Logger returns the underlying logger.
func (j *Journal) Logger() *log.Logger {
	return j.logger
}

// Info records an informational message.
func (j *Journal) Info(msg string, keyvals ...any) {
	j.record(LevelInfo, msg)
	j.logger.Info(msg, keyvals...)
}

// Success records a completed step.
func (j *Journal) Success(msg string, keyvals ...any) {
	j.record(LevelSuccess, msg)
	j.logger.Info(msg, append(keyvals, "status", "ok")...)
}

// Warning records a non-fatal problem.
func (j *Journal) Warning(msg string, keyvals ...any) {
	j.record(LevelWarning, msg)
	j.logger.Warn(msg, keyvals...)
}

// Error records a failure.
func (j *Journal) Error(msg string, keyvals ...any) {
	j.record(LevelError, msg)
	j.logger.Error(msg, keyvals...)
}

// Debug logs without recording.
func (j *Journal) Debug(msg string, keyvals ...any) {
	j.logger.Debug(msg, keyvals...)
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// Count returns the number of entries at level.
func (j *Journal) Count(level Level) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, e := range j.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (j *Journal) record(level Level, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, Entry{Timestamp: j.now(), Level: level, Message: msg})
}
