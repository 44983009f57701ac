package deploy

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/output"
)

// maxDepends is the number of dependencies shown per table row.
const maxDepends = 3

type listModulesOptions struct {
	all    bool
	path   string
	output cmdutil.OutputFlags
}

// moduleInfo is the structured form of one listed module.
type moduleInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Installable bool     `json:"installable"`
	Path        string   `json:"path"`
	Depends     []string `json:"depends"`
	Issues      []string `json:"issues,omitempty"`
}

// NewListModulesCmd creates the deploy list-modules command.
func NewListModulesCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &listModulesOptions{}

	c := &cobra.Command{
		Use:     "list-modules",
		Aliases: []string{"ls"},
		Short:   "List detected Odoo modules",
		Long: `Scan the modules base path and list every module found.

Non-installable modules are hidden unless --all is given.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runListModules(c, cfg, opts)
		},
	}

	c.Flags().BoolVarP(&opts.all, "all", "a", false, "Include non-installable modules")
	c.Flags().StringVarP(&opts.path, "path", "p", "", "Modules directory (default: modules.base_path)")
	opts.output.AddTo(c, "table")

	return c
}

func runListModules(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *listModulesOptions) error {
	format, err := opts.output.Parse()
	if err != nil {
		return err
	}

	project, err := cmdutil.LoadProject(cfg, false)
	if err != nil {
		return err
	}
	if opts.path != "" {
		project.Config.Modules.BasePath = opts.path
	}

	scanner := project.Scanner()
	mods, err := scanner.Scan(false)
	if err != nil {
		return withExitCode(err)
	}

	shown := mods
	if !opts.all {
		shown = shown[:0:0]
		for _, m := range mods {
			if m.Installable() {
				shown = append(shown, m)
			}
		}
	}

	w := c.OutOrStdout()
	if format != output.FormatTable {
		infos := make([]moduleInfo, 0, len(shown))
		for _, m := range shown {
			infos = append(infos, moduleInfo{
				Name:        m.Name,
				Version:     m.Version(),
				Installable: m.Installable(),
				Path:        m.RelPath,
				Depends:     m.Depends(),
				Issues:      m.Issues(),
			})
		}
		return cmdutil.WriteStructured(w, format, infos)
	}

	if len(mods) == 0 {
		output.Warn("no modules found", "path", scanner.Root())
		return nil
	}

	tbl := output.NewTable("STATUS", "MODULE", "VERSION", "PATH", "DEPENDS")
	installable := 0
	for _, m := range mods {
		if m.Installable() {
			installable++
		}
	}
	for _, m := range shown {
		tbl.Row(statusCell(m), nameCell(m), m.Version(), m.RelPath, dependsCell(m.Depends()))
	}
	fmt.Fprintln(w, tbl.String())
	fmt.Fprintln(w, output.StyleDim.Render(fmt.Sprintf("Total: %d modules | Installable: %d", len(mods), installable)))

	issues, err := scanner.ValidateAll()
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, output.StatusStyle(output.StatusSkipped).Render("Validation warnings:"))
		writeIssues(c, issues)
	}
	return nil
}

func statusCell(m *module.Module) string {
	if m.Installable() {
		return output.StatusStyle(output.StatusOK).Render("✓")
	}
	return output.StatusStyle(output.StatusDisabled).Render("○")
}

func nameCell(m *module.Module) string {
	name := output.StyleNoun.Render(m.Name)
	if m.HasInvalidName() {
		name += " " + output.StatusStyle(output.StatusSkipped).Render("!")
	}
	return name
}

func dependsCell(deps []string) string {
	if len(deps) == 0 {
		return "-"
	}
	if len(deps) <= maxDepends {
		return strings.Join(deps, ", ")
	}
	return fmt.Sprintf("%s +%d", strings.Join(deps[:maxDepends], ", "), len(deps)-maxDepends)
}
