package deploy

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/output"
)

// targetInfo is the structured form of one target row.
type targetInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Enabled     bool   `json:"enabled"`
	Destination string `json:"destination"`
	Description string `json:"description,omitempty"`
}

// NewTargetsCmd creates the deploy targets command.
func NewTargetsCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var out cmdutil.OutputFlags
	c := &cobra.Command{
		Use:   "targets",
		Short: "List configured deployment targets",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			format, err := out.Parse()
			if err != nil {
				return err
			}
			project, err := cmdutil.LoadProject(cfg, true)
			if err != nil {
				return err
			}
			names := project.Config.TargetNames()
			if format != output.FormatTable {
				infos := make([]targetInfo, 0, len(names))
				for _, n := range names {
					t := project.Config.Targets[n]
					infos = append(infos, targetInfo{
						Name:        n,
						Type:        string(t.Type),
						Enabled:     t.IsEnabled(),
						Destination: t.Destination(),
						Description: t.Description,
					})
				}
				return cmdutil.WriteStructured(c.OutOrStdout(), format, infos)
			}
			return writeTargets(c, project.Config, names)
		},
	}
	out.AddTo(c, "table")
	return c
}

// writeTargets renders the named targets as a table.
func writeTargets(c *cobra.Command, dc *config.DeployConfig, names []string) error {
	if len(names) == 0 {
		output.Warn("no deployment targets configured")
		return nil
	}

	tbl := output.NewTable("STATUS", "TARGET", "TYPE", "DESTINATION", "DESCRIPTION")
	for _, n := range names {
		t := dc.Targets[n]
		status := output.StatusStyle(output.StatusOK).Render("✓")
		if !t.IsEnabled() {
			status = output.StatusStyle(output.StatusDisabled).Render("○")
		}
		tbl.Row(status, output.StyleNoun.Render(n), string(t.Type), t.Destination(), t.Description)
	}
	fmt.Fprintln(c.OutOrStdout(), tbl.String())
	return nil
}
