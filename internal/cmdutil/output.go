package cmdutil

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"github.com/rocketdoo/rkd/internal/deploy"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

// WriteStructured writes v as YAML or JSON. Field names follow the json
// tags in both formats.
func WriteStructured(w io.Writer, format output.OutputFormat, v any) error {
	switch format {
	case output.FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case output.FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("format %q is not a structured format", format)
	}
}

// PrintResult writes the summary of a run and converts a failed result into
// an ExitDeploymentFailed error. Journal entries already went to the log,
// so only the outcome is printed here.
func PrintResult(w io.Writer, target string, r *deploy.Result) error {
	if r.Success {
		fmt.Fprintln(w, output.FormatCheckmark(output.StyleSummary.Render(r.Message)))
		if warning, ok := r.Detail(deploy.DetailPostDeployWarning); ok {
			fmt.Fprintf(w, "  %s %v\n", output.StatusStyle(output.StatusSkipped).Render("warning:"), warning)
		}
		return nil
	}

	fmt.Fprintln(w, output.FormatCross(output.StyleSummary.Render(r.Message)))
	for _, e := range r.Errors() {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	if rb, ok := r.Detail(deploy.DetailRollback); ok {
		if rbr, ok := rb.(*deploy.Result); ok {
			fmt.Fprintf(w, "  rollback: %s\n", rbr)
		}
	}
	return &oerrors.ExitError{Code: oerrors.ExitDeploymentFailed, Err: r.Err(target), Printed: true}
}
