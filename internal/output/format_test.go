package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in    string
		want  OutputFormat
		valid bool
	}{
		{"", FormatTable, true},
		{"table", FormatTable, true},
		{"YML", FormatYAML, true},
		{"json", FormatJSON, true},
		{"dir", OutputFormat("dir"), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseOutputFormat(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, got.IsValid())
		})
	}
}
