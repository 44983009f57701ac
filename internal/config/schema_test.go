package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validateYAML(t *testing.T, src string) error {
	t.Helper()
	raw := map[string]any{}
	require.NoError(t, yaml.Unmarshal([]byte(src), &raw))
	v, err := NewValidator()
	require.NoError(t, err)
	return v.ValidateRaw(raw)
}

func TestValidatorAcceptsTemplates(t *testing.T) {
	for _, name := range TemplateNames() {
		t.Run(name, func(t *testing.T) {
			data, err := Template(name)
			require.NoError(t, err)
			assert.NoError(t, validateYAML(t, string(data)))
		})
	}
}

func TestValidatorRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		// any of these must appear in the report
		want []string
	}{
		{
			name: "unknown top-level key",
			yaml: "modulez: {}\n",
			want: []string{"modulez"},
		},
		{
			name: "unknown target type",
			yaml: "targets:\n  prod:\n    type: ftp\n",
			want: []string{"targets.prod.type", "ftp"},
		},
		{
			name: "misspelled connection field",
			yaml: "targets:\n  prod:\n    type: vps\n    connection:\n      hots: a\n",
			want: []string{"hots"},
		},
		{
			name: "unknown validation check",
			yaml: "validations:\n  check_json: true\n",
			want: []string{"check_json"},
		},
		{
			name: "port must be an integer",
			yaml: "targets:\n  prod:\n    type: vps\n    connection:\n      port: twenty\n",
			want: []string{"targets.prod.connection.port", "twenty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateYAML(t, tt.yaml)
			require.Error(t, err)

			_, ok := err.(ValidationErrors)
			require.True(t, ok, "expected ValidationErrors, got %T", err)

			report := err.Error()
			found := false
			for _, w := range tt.want {
				found = found || strings.Contains(report, w)
			}
			assert.True(t, found, "report %q mentions none of %v", report, tt.want)
		})
	}
}

func TestValidatorRequiresTargetType(t *testing.T) {
	err := validateYAML(t, "targets:\n  prod:\n    connection: {host: h}\n")
	assert.Error(t, err)
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{{Field: "a.b", Message: "bad"}, {Message: "worse"}}

	assert.Equal(t, []string{"a.b: bad", "worse"}, errs.Messages())
	assert.Contains(t, errs.Error(), "config validation failed")
	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
}
