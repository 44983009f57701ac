package deploy

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/deploy"
	"github.com/rocketdoo/rkd/internal/deploy/backends"
	"github.com/rocketdoo/rkd/internal/output"
)

type rollbackOptions struct {
	target  cmdutil.TargetFlags
	confirm cmdutil.ConfirmFlags
}

// NewRollbackCmd creates the deploy rollback command.
func NewRollbackCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &rollbackOptions{}

	c := &cobra.Command{
		Use:   "rollback",
		Short: "Restore the last deployed state of a target",
		Long: `Restore the last deployed state of a target.

VPS targets get the newest local module snapshot copied back into the
addons path. Git targets are cloned fresh from git_url, the newest commit
of the deployment branch is reverted and the revert is pushed, whichever
run created that commit.

Examples:
  rkd deploy rollback --target production`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runRollback(c, cfg, opts)
		},
	}

	opts.target.AddTo(c)
	opts.confirm.AddTo(c)
	return c
}

func runRollback(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *rollbackOptions) error {
	if err := opts.target.Require(); err != nil {
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

	question := fmt.Sprintf("Roll back target '%s' to its last snapshot?", target.Name)
	if err := cmdutil.Confirm(cfg, opts.confirm.Yes, question); err != nil {
		return err
	}

	env := project.NewEnv(cfg, target)
	backend, err := backends.New(env)
	if err != nil {
		return withExitCode(err)
	}
	orch := deploy.NewOrchestrator(backend, env, deploy.Options{})

	output.TargetLogger(target.Name).Info("starting rollback", "run", orch.RunID())
	return cmdutil.PrintResult(c.OutOrStdout(), target.Name, orch.Rollback(c.Context()))
}
