package output

import "strings"

// OutputFormat specifies the output format of listing commands.
type OutputFormat string

const (
	// FormatTable renders a lipgloss table.
	FormatTable OutputFormat = "table"

	// FormatYAML outputs YAML.
	FormatYAML OutputFormat = "yaml"

	// FormatJSON outputs JSON.
	FormatJSON OutputFormat = "json"
)

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatTable, FormatYAML, FormatJSON:
		return true
	default:
		return false
	}
}

// ParseOutputFormat parses a string into an OutputFormat. Unknown values are
// returned as-is so callers can reject them with IsValid.
func ParseOutputFormat(s string) OutputFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable
	case "yaml", "yml":
		return FormatYAML
	case "json":
		return FormatJSON
	default:
		return OutputFormat(s)
	}
}

// ValidFormats returns the accepted format names.
func ValidFormats() []string {
	return []string{"table", "yaml", "json"}
}
