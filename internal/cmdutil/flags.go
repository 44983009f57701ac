// Package cmdutil provides shared command utilities for deploy subcommands.
// It centralizes flag group management, project loading, confirmation
// prompts and output formatting helpers.
package cmdutil

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

// TargetFlags holds the flag selecting a deployment target
// (run, rollback, secrets, config show).
type TargetFlags struct {
	Target string
}

// AddTo registers the target flag on the given cobra command.
func (f *TargetFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Target, "target", "t", "",
		"Deployment target name from deploy.yaml")
}

// Require returns a validation error when no target was given.
func (f *TargetFlags) Require() error {
	if strings.TrimSpace(f.Target) == "" {
		return &oerrors.ExitError{
			Code: oerrors.ExitValidationError,
			Err:  fmt.Errorf("--target is required (see 'rkd deploy targets')"),
		}
	}
	return nil
}

// ModuleFlags holds the repeatable module filter (run, validate, package).
type ModuleFlags struct {
	Modules []string
}

// AddTo registers the module flag on the given cobra command.
func (f *ModuleFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.Modules, "module", "m", nil,
		"Module to include (can be repeated, default: all installable modules)")
}

// ConfirmFlags holds the flag that skips confirmation prompts.
type ConfirmFlags struct {
	Yes bool
}

// AddTo registers the yes flag on the given cobra command.
func (f *ConfirmFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.Yes, "yes", "y", false,
		"Answer yes to confirmation prompts")
}

// OutputFlags holds the output format flag of listing commands.
type OutputFlags struct {
	Format string
}

// AddTo registers the output flag with the given default.
func (f *OutputFlags) AddTo(cmd *cobra.Command, def string) {
	cmd.Flags().StringVarP(&f.Format, "output", "o", def,
		fmt.Sprintf("Output format (%s)", strings.Join(output.ValidFormats(), ", ")))
}

// Parse validates the flag and returns the format.
func (f *OutputFlags) Parse() (output.OutputFormat, error) {
	format := output.ParseOutputFormat(f.Format)
	if !format.IsValid() {
		return "", &oerrors.ExitError{
			Code: oerrors.ExitValidationError,
			Err: fmt.Errorf("invalid output format %q, use %s",
				f.Format, strings.Join(output.ValidFormats(), ", ")),
		}
	}
	return format, nil
}
