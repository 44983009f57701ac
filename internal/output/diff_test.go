package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffYAML_NoChanges(t *testing.T) {
	doc := []byte("backup:\n  enabled: true\n  keep_last: 3\n")
	reordered := []byte("backup:\n  keep_last: 3\n  enabled: true\n")

	out, err := DiffYAML(doc, reordered, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDiffYAML_ReportsChangedValue(t *testing.T) {
	before := []byte("backup:\n  enabled: true\n  keep_last: 3\n")
	after := []byte("backup:\n  enabled: true\n  keep_last: 5\n")

	out, err := DiffYAML(before, after, false)
	require.NoError(t, err)
	assert.Contains(t, out, "keep_last")
	assert.Contains(t, out, "5")
}

func TestDiffYAML_BothEmpty(t *testing.T) {
	out, err := DiffYAML(nil, nil, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDiffYAML_InvalidInput(t *testing.T) {
	_, err := DiffYAML([]byte("a: b"), []byte("a: [unclosed"), false)
	assert.Error(t, err)
}
