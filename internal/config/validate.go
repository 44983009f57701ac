package config

import (
	"fmt"
	"os"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Validate checks cross-field rules the schema cannot express. All problems
// are collected into one aggregate error.
func (c *DeployConfig) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for _, msg := range c.UnresolvedErrors() {
		errs = append(errs, &ValidationError{Message: msg})
	}

	for _, name := range c.TargetNames() {
		t := c.Targets[name]
		prefix := "targets." + name
		switch t.Type {
		case TypeVPS:
			conn := t.Connection
			if conn.SSHKey != "" && conn.HasPassword() {
				add(prefix+".connection", "ssh_key and password are mutually exclusive")
			}
			switch conn.AuthMethod {
			case "ssh_key":
				if conn.SSHKey == "" {
					add(prefix+".connection.ssh_key", "required when auth_method is ssh_key")
				}
			case "password":
				if conn.SSHKey != "" {
					add(prefix+".connection.ssh_key", "must be empty when auth_method is password")
				}
			}
			if conn.Port < 1 || conn.Port > 65535 {
				add(prefix+".connection.port", "must be between 1 and 65535, got %d", conn.Port)
			}
		case TypeGitPush:
			if t.GitPush.GitURL == "" && t.GitPush.APIToken == "" {
				add(prefix+".git_push", "either git_url or api_token is required")
			}
		default:
			add(prefix+".type", "unsupported target type %q", t.Type)
		}
	}

	return utilerrors.NewAggregate(errs)
}

// ValidateFile loads the configuration at path and returns every schema,
// cross-field and placeholder problem found.
func ValidateFile(path string, opts ...LoaderOption) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := NewLoader(opts...).Parse(data)
	if err != nil {
		if verrs, ok := err.(ValidationErrors); ok {
			return verrs.Messages(), nil
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		var out []string
		if agg, ok := err.(utilerrors.Aggregate); ok {
			for _, e := range agg.Errors() {
				out = append(out, e.Error())
			}
			return out, nil
		}
		return []string{err.Error()}, nil
	}
	return nil, nil
}
