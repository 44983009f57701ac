// Package errors provides sentinel errors, structured error details and
// exit codes for the rkd CLI.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for known conditions.
var (
	// ErrValidation indicates invalid configuration or module content.
	ErrValidation = errors.New("validation error")

	// ErrConnectivity indicates a remote host or repository could not be reached.
	ErrConnectivity = errors.New("connectivity error")

	// ErrPermission indicates insufficient permissions locally or remotely.
	ErrPermission = errors.New("permission denied")

	// ErrNotFound indicates a target, module, or file was not found.
	ErrNotFound = errors.New("not found")

	// ErrDeployment indicates a deployment run finished unsuccessfully.
	ErrDeployment = errors.New("deployment failed")

	// ErrCancelled indicates the user declined a confirmation prompt.
	ErrCancelled = errors.New("cancelled")
)

// DetailError is an error with the context a user needs to fix it. Only
// Type and Message are required.
type DetailError struct {
	Type    string
	Message string

	// Location is the file, optionally with a line, the problem is in.
	Location string

	// Field is the dotted configuration path at fault.
	Field string

	Context map[string]string
	Hint    string

	// Cause is usually one of the sentinels above.
	Cause error
}

// Error renders "<type>: <message>" followed by one indented line per
// location, field, context entry and hint.
func (e *DetailError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Type, e.Message)

	line := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "\n  %s: %s", key, value)
		}
	}
	line("location", e.Location)
	line("field", e.Field)

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line(k, e.Context[k])
	}
	line("hint", e.Hint)
	return b.String()
}

// Unwrap returns the underlying error.
func (e *DetailError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a validation error with details.
func NewValidationError(message, location, field, hint string) error {
	return &DetailError{
		Type:     "validation failed",
		Message:  message,
		Location: location,
		Field:    field,
		Hint:     hint,
		Cause:    ErrValidation,
	}
}

// NewNotFoundError creates a not found error with details.
func NewNotFoundError(message, location, hint string) error {
	return &DetailError{
		Type:     "not found",
		Message:  message,
		Location: location,
		Hint:     hint,
		Cause:    ErrNotFound,
	}
}

// NewDeploymentError creates a deployment failure error. The context usually
// carries the target name and the failing step.
func NewDeploymentError(message string, context map[string]string, hint string) error {
	return &DetailError{
		Type:    "deployment failed",
		Message: message,
		Context: context,
		Hint:    hint,
		Cause:   ErrDeployment,
	}
}

// Wrap wraps an error with a sentinel error type.
func Wrap(sentinel error, message string) error {
	return fmt.Errorf("%s: %w", message, sentinel)
}
