package deploy

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/config"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
	"github.com/rocketdoo/rkd/internal/secrets"
)

type secretsOptions struct {
	target cmdutil.TargetFlags
	store  string
}

// NewSecretsCmd creates the deploy secrets command group.
func NewSecretsCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "secrets",
		Short: "Manage stored VPS passwords",
		Long: `Store or clear the SSH password of a password-authenticated VPS
target. Passwords go to .rkd/secrets (mode 0600) or to the system keyring,
following the target's connection.password_store unless --store is given.`,
	}
	c.AddCommand(newSecretsSetCmd(cfg), newSecretsClearCmd(cfg))
	return c
}

func newSecretsSetCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &secretsOptions{}
	c := &cobra.Command{
		Use:   "set",
		Short: "Prompt for a password and store it",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			store, target, err := openSecretStore(cfg, opts)
			if err != nil {
				return err
			}
			prompt := cfg.Prompt
			if prompt == nil {
				prompt = secrets.TerminalPrompt
			}
			pw, err := prompt(fmt.Sprintf("SSH password for %s: ", target.Name))
			if err != nil {
				if errors.Is(err, secrets.ErrNoTerminal) {
					return &oerrors.ExitError{Code: oerrors.ExitValidationError, Err: err}
				}
				return err
			}
			if pw == "" {
				return &oerrors.ExitError{Code: oerrors.ExitValidationError, Err: errors.New("empty password")}
			}
			if err := store.Set(target.Name, pw); err != nil {
				return &oerrors.ExitError{Code: oerrors.ExitPermissionDenied, Err: err}
			}
			fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark("Password stored in "+store.Location(target.Name)))
			return nil
		},
	}
	addSecretsFlags(c, opts)
	return c
}

func newSecretsClearCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &secretsOptions{}
	c := &cobra.Command{
		Use:   "clear",
		Short: "Remove a stored password",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			store, target, err := openSecretStore(cfg, opts)
			if err != nil {
				return err
			}
			if err := store.Delete(target.Name); err != nil {
				return &oerrors.ExitError{Code: oerrors.ExitPermissionDenied, Err: err}
			}
			fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark("Password cleared from "+store.Location(target.Name)))
			return nil
		},
	}
	addSecretsFlags(c, opts)
	return c
}

func addSecretsFlags(c *cobra.Command, opts *secretsOptions) {
	opts.target.AddTo(c)
	c.Flags().StringVar(&opts.store, "store", "", "Password store: file or keyring (default: the target's password_store)")
}

func openSecretStore(cfg *cmdtypes.GlobalConfig, opts *secretsOptions) (secrets.Store, *config.Target, error) {
	if err := opts.target.Require(); err != nil {
		return nil, nil, err
	}
	project, err := cmdutil.LoadProject(cfg, true)
	if err != nil {
		return nil, nil, err
	}
	target, err := project.Target(opts.target.Target)
	if err != nil {
		return nil, nil, err
	}

	kind := opts.store
	if kind == "" && target.Connection != nil {
		kind = target.Connection.PasswordStore
	}
	store, err := secrets.New(kind, project.Paths.SecretsDir, project.Paths.Root)
	if err != nil {
		return nil, nil, &oerrors.ExitError{Code: oerrors.ExitValidationError, Err: err}
	}
	return store, target, nil
}
