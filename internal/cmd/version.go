package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/output"
	"github.com/rocketdoo/rkd/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show rkd version information.

Displays:
  - rkd version, commit, and build date
  - external tools used by deploy targets (git, ssh, rsync, sshpass,
    python3, docker) with their detected versions`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runVersion(c, cfg)
		},
	}
}

func runVersion(c *cobra.Command, cfg *cmdtypes.GlobalConfig) error {
	info := version.Get()
	w := c.OutOrStdout()

	fmt.Fprintf(w, "rkd version %s\n", info.Version)
	fmt.Fprintf(w, "  Commit:    %s\n", info.GitCommit)
	fmt.Fprintf(w, "  Built:     %s\n", info.BuildDate)
	fmt.Fprintf(w, "  Go:        %s\n\n", info.GoVersion)

	tbl := output.NewTable("TOOL", "VERSION", "STATUS", "PATH")
	for _, t := range version.DetectTools(c.Context(), cfg.ExecRunner()) {
		status := output.StatusOK
		if !t.OK {
			status = output.StatusFailed
			if !t.Found {
				status = output.StatusSkipped
			}
		}
		label := status
		if t.Message != "" && !t.OK {
			label = status + ": " + t.Message
		}
		tbl.Row(t.Name, t.Version, output.StatusStyle(status).Render(label), t.Path)
	}
	fmt.Fprintln(w, tbl.String())
	return nil
}
