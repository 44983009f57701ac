// Package cmd provides CLI command implementations.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmd/deploy"
	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/output"
)

// rootFlags holds the raw values of the global flags.
type rootFlags struct {
	project    string
	config     string
	verbose    bool
	timestamps bool
}

// NewRootCmd creates the root command for the rkd CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&cmdtypes.GlobalConfig{})
}

// newRootCmd builds the command tree around cfg. Tests pass a config with
// a fake runner and scripted confirmations.
func newRootCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "rkd",
		Short: "Odoo module deployment CLI",
		Long: `rkd scans Odoo addon modules of a project and deploys them to the
targets described in .rkd/deploy.yaml: VPS hosts over ssh and rsync, or git
repositories watched by a hosting platform.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return initializeGlobals(c, flags, cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.project, "project", "C", "", "Project root directory (env: RKD_PROJECT)")
	rootCmd.PersistentFlags().StringVar(&flags.config, "config", "", "Path to deploy config file (env: RKD_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&flags.timestamps, "timestamps", true, "Show timestamps in log output")

	rootCmd.AddCommand(deploy.NewDeployCmd(cfg))
	rootCmd.AddCommand(NewVersionCmd(cfg))

	return rootCmd
}

// initializeGlobals sets up logging and resolves the project location.
func initializeGlobals(c *cobra.Command, flags *rootFlags, cfg *cmdtypes.GlobalConfig) error {
	logCfg := output.LogConfig{Verbose: flags.verbose}
	if c.Flags().Changed("timestamps") {
		logCfg.Timestamps = output.BoolPtr(flags.timestamps)
	}
	output.SetupLogging(logCfg)

	resolved, err := config.Resolve(config.ResolveOptions{
		ProjectFlag: flags.project,
		ConfigFlag:  flags.config,
	})
	if err != nil {
		return err
	}
	cfg.Resolved = resolved
	cfg.Verbose = flags.verbose

	if flags.verbose {
		config.LogResolvedValues(resolved.Project, resolved.ConfigFile)
	}
	return nil
}
