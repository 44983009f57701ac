package cmdutil

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

func TestTargetFlags_AddTo(t *testing.T) {
	var tf TargetFlags
	cmd := &cobra.Command{Use: "test"}
	tf.AddTo(cmd)

	f := cmd.Flags().Lookup("target")
	require.NotNil(t, f)
	assert.Equal(t, "t", f.Shorthand)
	assert.Equal(t, "", f.DefValue)
}

func TestTargetFlags_Require(t *testing.T) {
	err := (&TargetFlags{Target: "  "}).Require()
	require.Error(t, err)
	assert.Equal(t, oerrors.ExitValidationError, oerrors.ExitCodeFromError(err))

	assert.NoError(t, (&TargetFlags{Target: "prod"}).Require())
}

func TestModuleFlags_Repeatable(t *testing.T) {
	var mf ModuleFlags
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	mf.AddTo(cmd)

	cmd.SetArgs([]string{"-m", "sale_extra", "--module", "stock_extra"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, []string{"sale_extra", "stock_extra"}, mf.Modules)
	assert.Equal(t, "stringArray", cmd.Flags().Lookup("module").Value.Type())
}

func TestConfirmFlags_AddTo(t *testing.T) {
	var cf ConfirmFlags
	cmd := &cobra.Command{Use: "test"}
	cf.AddTo(cmd)

	f := cmd.Flags().Lookup("yes")
	require.NotNil(t, f)
	assert.Equal(t, "y", f.Shorthand)
	assert.Equal(t, "false", f.DefValue)
}

func TestOutputFlags_Parse(t *testing.T) {
	tests := []struct {
		in      string
		want    output.OutputFormat
		wantErr bool
	}{
		{in: "", want: output.FormatTable},
		{in: "table", want: output.FormatTable},
		{in: "YAML", want: output.FormatYAML},
		{in: "yml", want: output.FormatYAML},
		{in: "json", want: output.FormatJSON},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := (&OutputFlags{Format: tt.in}).Parse()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, oerrors.ExitValidationError, oerrors.ExitCodeFromError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
