package cmdutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketdoo/rkd/internal/deploy"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

type row struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

func TestWriteStructured(t *testing.T) {
	rows := []row{{Name: "sale_extra", Version: "16.0.1.0.0"}, {Name: "bare"}}

	var js bytes.Buffer
	require.NoError(t, WriteStructured(&js, output.FormatJSON, rows))
	assert.JSONEq(t, `[{"name":"sale_extra","version":"16.0.1.0.0"},{"name":"bare"}]`, js.String())

	var ys bytes.Buffer
	require.NoError(t, WriteStructured(&ys, output.FormatYAML, rows))
	assert.Equal(t, "- name: sale_extra\n  version: 16.0.1.0.0\n- name: bare\n", ys.String())

	assert.Error(t, WriteStructured(&bytes.Buffer{}, output.FormatTable, rows))
}

func TestPrintResult(t *testing.T) {
	t.Run("success with post-deploy warning", func(t *testing.T) {
		var buf bytes.Buffer
		r := deploy.Succeeded("Deployment to prod completed", map[string]any{
			deploy.DetailPostDeployWarning: "Failed to restart Odoo service",
		})

		require.NoError(t, PrintResult(&buf, "prod", r))
		assert.Contains(t, buf.String(), "Deployment to prod completed")
		assert.Contains(t, buf.String(), "Failed to restart Odoo service")
	})

	t.Run("failure lists errors and rollback", func(t *testing.T) {
		var buf bytes.Buffer
		r := deploy.Failed("Invalid configuration", map[string]any{
			deploy.DetailErrors: []string{"Missing 'connection.host'"},
		}).With(deploy.DetailRollback, deploy.Succeeded("Rollback completed successfully", nil))

		err := PrintResult(&buf, "prod", r)
		require.Error(t, err)
		assert.Equal(t, oerrors.ExitDeploymentFailed, oerrors.ExitCodeFromError(err))

		var exitErr *oerrors.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.True(t, exitErr.Printed)

		assert.Contains(t, buf.String(), "Invalid configuration")
		assert.Contains(t, buf.String(), "- Missing 'connection.host'")
		assert.Contains(t, buf.String(), "rollback: SUCCESS: Rollback completed successfully")
	})
}
