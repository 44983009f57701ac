// Package execx runs external tools (ssh, rsync, git, docker, python3) as
// subprocesses with captured output and an explicit timeout per call.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies when a Command does not set one.
const DefaultTimeout = 5 * time.Minute

// waitDelay bounds how long Run waits for output pipes after the process
// was killed, since grandchildren of a shell may keep them open.
const waitDelay = 2 * time.Second

// Command describes one external process invocation.
type Command struct {
	// Name is the executable to run, resolved through PATH.
	Name string

	// Args are passed to the executable verbatim.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the parent environment.
	// Secrets are passed here so they never appear in the process list.
	Env []string

	// Timeout bounds the run. Zero means DefaultTimeout.
	Timeout time.Duration

	// Op names the operation in timeout and failure messages, e.g.
	// "rsync sale_extra".
	Op string
}

// String renders the command line for logs. Env values are not included.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

func (c Command) op() string {
	if c.Op != "" {
		return c.Op
	}
	return c.Name
}

// Result holds the captured outcome of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK reports whether the process exited with status zero.
func (r *Result) OK() bool {
	return r != nil && r.ExitCode == 0
}

// Output returns trimmed stderr, falling back to stdout, for error messages.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// TimeoutError is returned when a process exceeded its deadline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Runner executes commands. A non-zero exit status is reported through
// Result.ExitCode with a nil error; errors are reserved for processes that
// could not be started or that timed out.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewRunner returns the default process runner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// LookPath resolves name through PATH.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes cmd and waits for it to finish or time out.
func (ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = waitDelay
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		res.ExitCode = -1
		return res, &TimeoutError{Op: cmd.op(), Timeout: timeout}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", cmd.op(), err)
	}

	return res, nil
}

// Available reports whether name resolves through r's PATH lookup.
func Available(r Runner, name string) bool {
	_, err := r.LookPath(name)
	return err == nil
}
