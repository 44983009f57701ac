package deploy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

// withExitCode attaches the exit code matching err's sentinel.
func withExitCode(err error) error {
	var exitErr *oerrors.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return err
	}
	return &oerrors.ExitError{Code: oerrors.ExitCodeFromError(err), Err: err}
}

// writeIssues prints per-module problems sorted by module name.
func writeIssues(c *cobra.Command, issues map[string][]string) {
	w := c.OutOrStdout()
	names := make([]string, 0, len(issues))
	for n := range issues {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", output.StyleNoun.Render(n))
		for _, issue := range issues[n] {
			fmt.Fprintf(w, "    - %s\n", issue)
		}
	}
}
