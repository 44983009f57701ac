package deploy

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/cmdutil"
	"github.com/rocketdoo/rkd/internal/config"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

// defaultEditor is used when neither VISUAL nor EDITOR is set.
const defaultEditor = "vi"

// runEditor opens path in the editor command argv. Tests replace it.
var runEditor = func(argv []string, path string) error {
	cmd := exec.Command(argv[0], append(argv[1:], path)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

// NewConfigCmd creates the deploy config command group.
func NewConfigCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Show, edit and validate the deployment configuration",
	}

	c.AddCommand(
		newConfigShowCmd(cfg),
		newConfigSetCmd(cfg),
		newConfigEditCmd(cfg),
		newConfigVetCmd(cfg),
	)
	return c
}

type configShowOptions struct {
	target cmdutil.TargetFlags
	output cmdutil.OutputFlags
}

func newConfigShowCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &configShowOptions{}
	c := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration with defaults applied.

Passwords and API tokens are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runConfigShow(c, cfg, opts)
		},
	}
	opts.target.AddTo(c)
	opts.output.AddTo(c, "yaml")
	return c
}

func runConfigShow(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *configShowOptions) error {
	format, err := opts.output.Parse()
	if err != nil {
		return err
	}
	project, err := cmdutil.LoadProject(cfg, true)
	if err != nil {
		return err
	}

	if opts.target.Target != "" {
		t, err := project.Target(opts.target.Target)
		if err != nil {
			return err
		}
		if format == output.FormatTable {
			return writeTargets(c, project.Config, []string{t.Name})
		}
		return cmdutil.WriteStructured(c.OutOrStdout(), format, t)
	}

	if format == output.FormatTable {
		fmt.Fprintln(c.OutOrStdout(), output.StyleDim.Render("File: ")+project.Paths.ConfigFile)
		return writeTargets(c, project.Config, project.Config.TargetNames())
	}
	return cmdutil.WriteStructured(c.OutOrStdout(), format, project.Config)
}

type configSetOptions struct {
	dryRun bool
}

func newConfigSetCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &configSetOptions{}
	c := &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set one value in deploy.yaml",
		Long: `Set a scalar at a dotted path, keeping comments and key order.

Examples:
  rkd deploy config set targets.production.connection.port 2222
  rkd deploy config set backup.keep_last 5 --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return runConfigSet(c, cfg, opts, args[0], args[1])
		},
	}
	c.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show the change without writing it")
	return c
}

func runConfigSet(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *configSetOptions, path, value string) error {
	file, before, err := readConfigFile(cfg)
	if err != nil {
		return err
	}

	doc, err := config.ParseDocument(before)
	if err != nil {
		return &oerrors.ExitError{Code: oerrors.ExitValidationError, Err: err}
	}
	if err := doc.Set(path, value); err != nil {
		return &oerrors.ExitError{Code: oerrors.ExitValidationError, Err: err}
	}
	after, err := doc.Bytes()
	if err != nil {
		return err
	}

	return applyConfigChange(c, file, before, after, opts.dryRun)
}

func newConfigEditCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit deploy.yaml in $EDITOR",
		Long: `Open a copy of deploy.yaml in $VISUAL or $EDITOR. The edited copy is
validated and the changes are shown before the file is replaced.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runConfigEdit(c, cfg)
		},
	}
}

func runConfigEdit(c *cobra.Command, cfg *cmdtypes.GlobalConfig) error {
	file, before, err := readConfigFile(cfg)
	if err != nil {
		return err
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = defaultEditor
	}
	argv, err := shellquote.Split(editor)
	if err != nil || len(argv) == 0 {
		return fmt.Errorf("cannot parse editor command %q: %v", editor, err)
	}

	tmpDir, err := os.MkdirTemp("", "rkd-edit-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)
	tmp := filepath.Join(tmpDir, config.ConfigFileName)
	if err := os.WriteFile(tmp, before, 0o600); err != nil {
		return err
	}

	output.Debug("opening editor", "command", argv, "file", tmp)
	if err := runEditor(argv, tmp); err != nil {
		return fmt.Errorf("editor %s: %w", argv[0], err)
	}

	after, err := os.ReadFile(tmp)
	if err != nil {
		return err
	}
	if bytes.Equal(before, after) {
		fmt.Fprintln(c.OutOrStdout(), "No changes.")
		return nil
	}
	return applyConfigChange(c, file, before, after, false)
}

func newConfigVetCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "vet",
		Short: "Validate deploy.yaml",
		Long: `Validate deploy.yaml against the configuration schema and the
cross-field rules (authentication, ports, target types). Unresolved ${VAR}
placeholders are reported too.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runConfigVet(c, cfg)
		},
	}
}

func runConfigVet(c *cobra.Command, cfg *cmdtypes.GlobalConfig) error {
	file, _, err := readConfigFile(cfg)
	if err != nil {
		return err
	}

	problems, err := config.ValidateFile(file)
	if err != nil {
		return withExitCode(err)
	}
	if len(problems) > 0 {
		w := c.ErrOrStderr()
		fmt.Fprintln(w, "Error: config validation failed")
		fmt.Fprintf(w, "  File: %s\n\n", file)
		for _, p := range problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
		return &oerrors.ExitError{
			Code:    oerrors.ExitValidationError,
			Err:     fmt.Errorf("%d problem(s) in %s", len(problems), file),
			Printed: true,
		}
	}

	fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark("Config file is valid: "+file))
	return nil
}

// readConfigFile returns the config path and its content; a missing file
// is a not-found error.
func readConfigFile(cfg *cmdtypes.GlobalConfig) (string, []byte, error) {
	paths, err := cfg.Paths()
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(paths.ConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, &oerrors.ExitError{
				Code: oerrors.ExitNotFound,
				Err: oerrors.NewNotFoundError("deployment configuration not found",
					paths.ConfigFile, "run 'rkd deploy init' to create one"),
			}
		}
		return "", nil, err
	}
	return paths.ConfigFile, data, nil
}

// applyConfigChange validates after, prints the YAML diff and writes the
// file unless dryRun is set. An invalid document is never written.
func applyConfigChange(c *cobra.Command, file string, before, after []byte, dryRun bool) error {
	if _, err := config.NewLoader().Parse(after); err != nil {
		return withExitCode(err)
	}

	diff, err := output.DiffYAML(before, after, !output.IsNoColor())
	if err != nil {
		return err
	}
	w := c.OutOrStdout()
	if diff == "" {
		fmt.Fprintln(w, "No changes.")
		return nil
	}
	fmt.Fprintln(w, diff)

	if dryRun {
		fmt.Fprintln(w, output.StyleDim.Render("dry run: "+file+" not modified"))
		return nil
	}
	if err := config.WriteFile(file, after); err != nil {
		return err
	}
	fmt.Fprintln(w, output.FormatCheckmark("Updated "+file))
	return nil
}
