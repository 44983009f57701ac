// Package deploy provides the `rkd deploy` command group.
package deploy

import (
	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
)

// NewDeployCmd creates the deploy command group.
func NewDeployCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy modules to VPS hosts or git-push targets",
		Long: `Commands for configuring deployment targets and deploying Odoo modules.

Examples:
  # Create .rkd/deploy.yaml
  rkd deploy init

  # List available modules
  rkd deploy list-modules

  # Deploy every installable module to a target
  rkd deploy run --target production

  # Deploy specific modules
  rkd deploy run --target staging --module my_module --module other_module`,
	}

	c.AddCommand(
		NewInitCmd(cfg),
		NewListModulesCmd(cfg),
		NewConfigCmd(cfg),
		NewTargetsCmd(cfg),
		NewRunCmd(cfg),
		NewRollbackCmd(cfg),
		NewValidateCmd(cfg),
		NewPackageCmd(cfg),
		NewKeysCmd(cfg),
		NewSecretsCmd(cfg),
	)

	return c
}
