package deploy

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/output"
	"github.com/rocketdoo/rkd/internal/packager"
)

type packageOptions struct {
	target   cmdutil.TargetFlags
	modules  cmdutil.ModuleFlags
	output   string
	manifest string
}

// NewPackageCmd creates the deploy package command.
func NewPackageCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &packageOptions{}

	c := &cobra.Command{
		Use:   "package",
		Short: "Build a module archive without deploying",
		Long: `Copy installable modules through the exclude filters into a
gzip-compressed tarball, one top-level directory per module.

Exclude patterns come from the target when --target is given.

Examples:
  rkd deploy package --output dist/modules.tar.gz
  rkd deploy package -m my_module --manifest dist/manifest.json`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runPackage(c, cfg, opts)
		},
	}

	opts.target.AddTo(c)
	opts.modules.AddTo(c)
	c.Flags().StringVarP(&opts.output, "output", "o", "", "Archive path (default: a timestamped file in the temp directory)")
	c.Flags().StringVar(&opts.manifest, "manifest", "", "Also write a JSON deployment manifest to this path")
	return c
}

func runPackage(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *packageOptions) error {
	project, err := cmdutil.LoadProject(cfg, false)
	if err != nil {
		return err
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
	if len(mods) == 0 {
		output.Warn("no modules found to package", "path", project.ModulesRoot())
		return nil
	}

	pkg := packager.New(project.Config.EffectiveExcludes(target),
		packager.WithLogger(output.Logger()),
		packager.WithClock(cfg.Clock()),
	)

	var (
		path string
		size int64
	)
	err = output.RunWithSpinner(c.Context(), func(context.Context) error {
		var err error
		path, size, err = pkg.CreateArchive(mods, opts.output)
		return err
	}, output.WithTitle(fmt.Sprintf("Packaging %d module(s)...", len(mods))))
	if err != nil {
		return withExitCode(err)
	}

	w := c.OutOrStdout()
	fmt.Fprintln(w, output.FormatCheckmark(fmt.Sprintf("Packaged %d module(s) into %s (%s)",
		len(mods), path, output.FormatBytes(size))))

	if opts.manifest != "" {
		if err := pkg.WriteManifest(mods, opts.manifest); err != nil {
			return withExitCode(err)
		}
		fmt.Fprintln(w, output.FormatCheckmark("Manifest written to "+opts.manifest))
	}
	return nil
}
