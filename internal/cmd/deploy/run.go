package deploy

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/deploy"
	"github.com/rocketdoo/rkd/internal/deploy/backends"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/output"
)

type runOptions struct {
	target  cmdutil.TargetFlags
	modules cmdutil.ModuleFlags
	confirm cmdutil.ConfirmFlags
	output  cmdutil.OutputFlags

	dryRun         bool
	skipBackup     bool
	skipValidation bool
}

// NewRunCmd creates the deploy run command.
func NewRunCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &runOptions{}

	c := &cobra.Command{
		Use:   "run",
		Short: "Deploy modules to a target",
		Long: `Deploy installable modules to a configured target.

The run validates the target configuration and the modules, snapshots the
modules locally, checks the target, transfers the modules and runs the
post-deploy actions. A failed transfer is rolled back.

Examples:
  # Deploy every installable module to production
  rkd deploy run --target production

  # Deploy specific modules
  rkd deploy run --target staging --module my_module --module other_module

  # Show what would be deployed
  rkd deploy run --target production --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runDeploy(c, cfg, opts)
		},
	}

	opts.target.AddTo(c)
	opts.modules.AddTo(c)
	opts.confirm.AddTo(c)
	opts.output.AddTo(c, "table")
	c.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate and report what would be deployed without contacting the target")
	c.Flags().BoolVar(&opts.skipBackup, "skip-backup", false, "Skip the local module snapshot")
	c.Flags().BoolVar(&opts.skipValidation, "skip-validation", false, "Skip module validation")

	return c
}

func runDeploy(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *runOptions) error {
	if err := opts.target.Require(); err != nil {
		return err
	}
	format, err := opts.output.Parse()
	if err != nil {
		return err
	}

	project, err := cmdutil.LoadProject(cfg, true)
	if err != nil {
		return err
	}
	target, err := project.Target(opts.target.Target)
	if err != nil {
		return err
	}
	tlog := output.TargetLogger(target.Name)

	if !target.IsEnabled() {
		tlog.Warn("target is disabled")
		if err := cmdutil.Confirm(cfg, opts.confirm.Yes, fmt.Sprintf("Target '%s' is disabled. Deploy anyway?", target.Name)); err != nil {
			return err
		}
	}

	mods, err := project.SelectModules(opts.modules.Modules)
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		output.Warn("no modules found to deploy", "path", project.ModulesRoot())
		return nil
	}

	env := project.NewEnv(cfg, target)
	backend, err := backends.New(env)
	if err != nil {
		return withExitCode(err)
	}
	orch := deploy.NewOrchestrator(backend, env, deploy.Options{
		SkipBackup:     opts.skipBackup,
		SkipValidation: opts.skipValidation,
	})

	if format == output.FormatTable {
		writeModuleList(c, target, mods, opts.dryRun)
	}

	var result *deploy.Result
	if opts.dryRun {
		result = orch.Plan(c.Context(), mods)
	} else {
		if target.RequireConfirmation {
			tlog.Warn("this target requires explicit confirmation")
		}
		question := fmt.Sprintf("Deploy %d module(s) to '%s'?", len(mods), target.Name)
		if err := cmdutil.Confirm(cfg, opts.confirm.Yes, question); err != nil {
			return err
		}
		result = orch.Execute(c.Context(), mods)
	}

	if format != output.FormatTable {
		if err := cmdutil.WriteStructured(c.OutOrStdout(), format, result); err != nil {
			return err
		}
		if err := cmdutil.PrintResult(c.ErrOrStderr(), target.Name, result); err != nil {
			return err
		}
		return nil
	}

	if opts.dryRun && result.Success {
		writePlan(c, result)
	}
	return cmdutil.PrintResult(c.OutOrStdout(), target.Name, result)
}

func writeModuleList(c *cobra.Command, target *config.Target, mods []*module.Module, dryRun bool) {
	w := c.OutOrStdout()
	if dryRun {
		fmt.Fprintln(w, output.StatusStyle(output.StatusSkipped).Render("DRY-RUN: no changes will be made"))
	}
	fmt.Fprintf(w, "Deploying to %s (%s)\n", output.StyleNoun.Render(target.Name), target.Type)
	fmt.Fprintf(w, "Modules to deploy: %d\n", len(mods))
	for _, m := range mods {
		fmt.Fprintf(w, "  • %s %s\n", output.StyleNoun.Render(m.Name), output.StyleDim.Render("v"+m.Version()))
	}
	fmt.Fprintln(w)
}

func writePlan(c *cobra.Command, result *deploy.Result) {
	planned, _ := result.Details[deploy.DetailModules].([]deploy.PlannedModule)
	tbl := output.NewTable("MODULE", "VERSION", "SIZE")
	for _, p := range planned {
		tbl.Row(output.StyleNoun.Render(p.Name), p.Version, output.FormatBytes(p.SizeBytes))
	}
	w := c.OutOrStdout()
	fmt.Fprintln(w, tbl.String())
	if dest, ok := result.Details["destination"]; ok {
		fmt.Fprintf(w, "Destination: %v\n", dest)
	}
	if total, ok := result.Details["total_size_bytes"].(int64); ok {
		fmt.Fprintf(w, "Total size:  %s\n", output.FormatBytes(total))
	}
	if root, ok := result.Details["backup_root"]; ok {
		fmt.Fprintf(w, "Backup root: %v\n", root)
	}
}
