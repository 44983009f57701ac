package deploy

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/deploy"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/output"
	"github.com/rocketdoo/rkd/internal/packager"
)

type validateOptions struct {
	target  cmdutil.TargetFlags
	modules cmdutil.ModuleFlags
	path    string
}

// NewValidateCmd creates the deploy validate command.
func NewValidateCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &validateOptions{}

	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate modules before deploying",
		Long: `Check installable modules for structural problems and run the
configured syntax checks (manifest, Python, XML).

The checks come from the target's validations when --target is given,
otherwise from the global validations.

Examples:
  rkd deploy validate
  rkd deploy validate --target production --module my_module`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runValidate(c, cfg, opts)
		},
	}

	opts.target.AddTo(c)
	opts.modules.AddTo(c)
	c.Flags().StringVarP(&opts.path, "path", "p", "", "Modules directory (default: modules.base_path)")
	return c
}

func runValidate(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *validateOptions) error {
	project, err := cmdutil.LoadProject(cfg, false)
	if err != nil {
		return err
	}
	if opts.path != "" {
		project.Config.Modules.BasePath = opts.path
	}

	var target *config.Target
	if opts.target.Target != "" {
		if target, err = project.Target(opts.target.Target); err != nil {
			return err
		}
	}

	mods, err := project.SelectModules(opts.modules.Modules)
	if err != nil {
		return err
	}
	w := c.OutOrStdout()
	if len(mods) == 0 {
		output.Warn("no modules found to validate", "path", project.ModulesRoot())
		return nil
	}

	validator := &deploy.ModuleValidator{
		Policy:  project.Config.EffectiveValidations(target),
		Runner:  cfg.ExecRunner(),
		Journal: deploy.NewJournal(output.Logger()),
	}

	problems := map[string][]string{}
	warnings := map[string][]string{}
	for _, m := range mods {
		if errs := moduleProblems(c, validator, m); len(errs) > 0 {
			problems[m.Name] = errs
		}
		if issues := m.Issues(); len(issues) > 0 {
			warnings[m.Name] = issues
		}
	}

	if len(warnings) > 0 {
		fmt.Fprintln(w, output.StatusStyle(output.StatusSkipped).Render("Warnings:"))
		writeIssues(c, warnings)
		fmt.Fprintln(w)
	}

	if len(problems) > 0 {
		fmt.Fprintln(w, output.StatusStyle(output.StatusFailed).Render("Errors:"))
		writeIssues(c, problems)
		fmt.Fprintln(w)
		fmt.Fprintln(w, output.FormatCross(fmt.Sprintf("%d of %d module(s) failed validation", len(problems), len(mods))))
		return &oerrors.ExitError{
			Code:    oerrors.ExitValidationError,
			Err:     fmt.Errorf("%d module(s) failed validation", len(problems)),
			Printed: true,
		}
	}

	fmt.Fprintln(w, output.FormatCheckmark(fmt.Sprintf("%d module(s) passed validation", len(mods))))
	return nil
}

// moduleProblems returns structural and policy problems of m without the
// module name prefix.
func moduleProblems(c *cobra.Command, v *deploy.ModuleValidator, m *module.Module) []string {
	errs := packager.ValidateModuleStructure(m)
	for _, e := range v.Validate(c.Context(), []*module.Module{m}) {
		errs = append(errs, strings.TrimPrefix(e, m.Name+": "))
	}
	return errs
}
