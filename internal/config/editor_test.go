package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editorFixture = `# deployment settings
backup:
  enabled: true # keep snapshots
  keep_last: 3
targets:
  sh:
    type: git-push
    git_push:
      project_id: "12345"
`

func TestDocumentSet(t *testing.T) {
	t.Run("replaces scalar and keeps comments", func(t *testing.T) {
		doc, err := ParseDocument([]byte(editorFixture))
		require.NoError(t, err)

		require.NoError(t, doc.Set("backup.enabled", "false"))
		out, err := doc.Bytes()
		require.NoError(t, err)

		assert.Contains(t, string(out), "# deployment settings")
		assert.Contains(t, string(out), "enabled: false # keep snapshots")
	})

	t.Run("infers integer type for new keys", func(t *testing.T) {
		doc, err := ParseDocument([]byte(editorFixture))
		require.NoError(t, err)

		require.NoError(t, doc.Set("backup.keep_last", "5"))
		out, err := doc.Bytes()
		require.NoError(t, err)

		cfg, err := NewLoader(WithLookup(noEnv)).Parse(out)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Backup.KeepLast)
	})

	t.Run("keeps strings as strings", func(t *testing.T) {
		doc, err := ParseDocument([]byte(editorFixture))
		require.NoError(t, err)

		require.NoError(t, doc.Set("targets.sh.git_push.project_id", "67890"))
		out, err := doc.Bytes()
		require.NoError(t, err)
		assert.Contains(t, string(out), `project_id: "67890"`)
	})

	t.Run("creates intermediate mappings", func(t *testing.T) {
		doc, err := ParseDocument([]byte(editorFixture))
		require.NoError(t, err)

		require.NoError(t, doc.Set("targets.sh.post_deploy.open_browser", "true"))
		v, ok := doc.Get("targets.sh.post_deploy.open_browser")
		assert.True(t, ok)
		assert.Equal(t, "true", v)
	})

	t.Run("refuses to replace a mapping", func(t *testing.T) {
		doc, err := ParseDocument([]byte(editorFixture))
		require.NoError(t, err)

		err = doc.Set("targets.sh", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mapping")
	})

	t.Run("rejects empty path", func(t *testing.T) {
		doc, err := ParseDocument(nil)
		require.NoError(t, err)
		assert.Error(t, doc.Set("", "x"))
	})
}

func TestDocumentSetValue(t *testing.T) {
	data, err := Template("empty")
	require.NoError(t, err)
	doc, err := ParseDocument(data)
	require.NoError(t, err)

	require.NoError(t, doc.SetValue("targets.staging", map[string]any{
		"type": "vps",
		"connection": map[string]any{
			"host": "staging.example.com",
			"user": "odoo",
		},
	}))
	out, err := doc.Bytes()
	require.NoError(t, err)

	assert.False(t, strings.Contains(string(out), "targets: {}"))
	cfg, err := NewLoader(WithLookup(noEnv)).Parse(out)
	require.NoError(t, err)
	staging, ok := cfg.Target("staging")
	require.True(t, ok)
	assert.Equal(t, "staging.example.com", staging.Connection.Host)
}

func TestParseDocumentRejectsSequence(t *testing.T) {
	_, err := ParseDocument([]byte("- a\n- b\n"))
	assert.Error(t, err)
}

func TestDocumentGetMissing(t *testing.T) {
	doc, err := ParseDocument([]byte(editorFixture))
	require.NoError(t, err)

	_, ok := doc.Get("targets.prod.type")
	assert.False(t, ok)
	_, ok = doc.Get("targets.sh")
	assert.False(t, ok, "mappings are not scalars")
}
