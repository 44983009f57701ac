package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
)

//go:embed schema/deploy.cue
var deploySchemaCUE []byte

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes validation errors match errors.ErrValidation.
func (e *ValidationError) Unwrap() error {
	return oerrors.ErrValidation
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  %s\n", err.Error()))
	}
	return sb.String()
}

// Unwrap makes validation errors match errors.ErrValidation.
func (e ValidationErrors) Unwrap() error {
	return oerrors.ErrValidation
}

// Messages returns one line per error.
func (e ValidationErrors) Messages() []string {
	out := make([]string, len(e))
	for i := range e {
		out[i] = e[i].Error()
	}
	return out
}

// Validator checks raw configuration documents against the embedded CUE
// schema.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()

	compiled := ctx.CompileBytes(deploySchemaCUE)
	if compiled.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", compiled.Err())
	}

	def := compiled.LookupPath(cue.ParsePath("#DeployConfig"))
	if def.Err() != nil {
		return nil, fmt.Errorf("looking up #DeployConfig: %w", def.Err())
	}

	return &Validator{ctx: ctx, schema: def}, nil
}

// ValidateRaw validates a decoded YAML document. Keys with null values are
// treated as absent, except targets, which must always declare a type.
func (v *Validator) ValidateRaw(raw map[string]any) error {
	clean := dropNulls(raw)
	if t, ok := raw["targets"].(map[string]any); ok {
		targets, _ := clean["targets"].(map[string]any)
		if targets == nil {
			targets = map[string]any{}
			clean["targets"] = targets
		}
		for name, body := range t {
			if body == nil {
				targets[name] = map[string]any{}
			}
		}
	}

	doc := v.ctx.Encode(clean)
	if doc.Err() != nil {
		return fmt.Errorf("encoding config: %w", doc.Err())
	}

	err := v.schema.Unify(doc).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs ValidationErrors
	seen := sets.New[string]()
	for _, e := range cueerrors.Errors(err) {
		field := strings.Join(e.Path(), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		key := field + "\x00" + msg
		if seen.Has(key) {
			continue
		}
		seen.Insert(key)
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}
	if len(errs) == 0 {
		errs = append(errs, ValidationError{Message: err.Error()})
	}
	return errs
}

// dropNulls returns a copy of m without null-valued keys, recursively.
func dropNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		switch x := val.(type) {
		case nil:
			continue
		case map[string]any:
			out[k] = dropNulls(x)
		default:
			out[k] = val
		}
	}
	return out
}
