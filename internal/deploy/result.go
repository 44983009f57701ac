// Package deploy runs a deployment of modules to one target: configuration
// and module validation, local backup, transfer through a backend, rollback
// on transfer failure and post-deploy actions.
package deploy

import (
	"fmt"
	"maps"
	"time"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
)

// Detail keys used in results.
const (
	DetailErrors            = "errors"
	DetailLogs              = "logs"
	DetailModulesDeployed   = "modules_deployed"
	DetailModules           = "modules"
	DetailRollback          = "rollback"
	DetailPostDeployWarning = "post_deploy_warning"
	DetailRunID             = "run_id"
	DetailSkipped           = "skipped"
)

// Result is the outcome of one deployment step. A Result is not modified
// after construction; With returns a copy.
type Result struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewResult creates a result stamped with the current time.
func NewResult(success bool, message string, details map[string]any) *Result {
	if details == nil {
		details = map[string]any{}
	}
	return &Result{
		Success:   success,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// Succeeded creates a successful result.
func Succeeded(message string, details map[string]any) *Result {
	return NewResult(true, message, details)
}

// Failed creates a failed result.
func Failed(message string, details map[string]any) *Result {
	return NewResult(false, message, details)
}

// Failedf creates a failed result with a formatted message.
func Failedf(format string, args ...any) *Result {
	return NewResult(false, fmt.Sprintf(format, args...), nil)
}

// With returns a copy of r with one more detail.
func (r *Result) With(key string, value any) *Result {
	cp := *r
	cp.Details = maps.Clone(r.Details)
	if cp.Details == nil {
		cp.Details = map[string]any{}
	}
	cp.Details[key] = value
	return &cp
}

// Detail returns the detail stored under key.
func (r *Result) Detail(key string) (any, bool) {
	v, ok := r.Details[key]
	return v, ok
}

// Errors returns the "errors" detail as strings.
func (r *Result) Errors() []string {
	errs, _ := r.Details[DetailErrors].([]string)
	return errs
}

// String renders the result for terminal output.
func (r *Result) String() string {
	status := "SUCCESS"
	if !r.Success {
		status = "FAILED"
	}
	return status + ": " + r.Message
}

// Err converts a failed result into a deployment error. It returns nil for
// successful results.
func (r *Result) Err(target string) error {
	if r == nil || r.Success {
		return nil
	}
	return oerrors.NewDeploymentError(r.Message, map[string]string{"target": target}, "")
}
