package execx

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner records commands and replies with scripted results. It is used
// by backend tests in place of real ssh, rsync and docker invocations.
type FakeRunner struct {
	mu sync.Mutex

	// Calls records every command in order.
	Calls []Command

	// Missing lists executables LookPath must fail for.
	Missing map[string]bool

	// Handler, when set, decides the outcome of each call. A nil Result
	// defaults to a successful empty result.
	Handler func(cmd Command) (*Result, error)
}

// LookPath succeeds unless name is listed in Missing.
func (f *FakeRunner) LookPath(name string) (string, error) {
	if f.Missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

// Run records cmd and returns the handler's outcome.
func (f *FakeRunner) Run(_ context.Context, cmd Command) (*Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	f.mu.Unlock()

	if f.Handler == nil {
		return &Result{}, nil
	}
	res, err := f.Handler(cmd)
	if res == nil {
		res = &Result{}
	}
	return res, err
}

// CommandLines returns every recorded call rendered with String.
func (f *FakeRunner) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		lines[i] = c.String()
	}
	return lines
}

// Count returns how many recorded command lines contain substr.
func (f *FakeRunner) Count(substr string) int {
	n := 0
	for _, l := range f.CommandLines() {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}
