package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/config"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/output"
)

// stateGitignore keeps local state out of version control.
const stateGitignore = `secrets/
deploy_backups/
`

type initOptions struct {
	template    string
	force       bool
	interactive bool
}

// targetAnswers holds the first target collected by the init form.
type targetAnswers struct {
	Name           string
	Type           string
	Host           string
	Port           string
	User           string
	SSHKey         string
	DeploymentType string
	ProjectID      string
	Branch         string
	GitURL         string
}

// NewInitCmd creates the deploy init command.
func NewInitCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &initOptions{}

	c := &cobra.Command{
		Use:   "init",
		Short: "Create the deployment configuration",
		Long: `Create .rkd/deploy.yaml from a template.

Templates:
  empty     no targets
  basic     one docker VPS target
  advanced  a docker VPS staging target and a git-push production target

With --interactive the first target is asked for instead.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runInit(c, cfg, opts)
		},
	}

	c.Flags().StringVar(&opts.template, "template", config.DefaultTemplate,
		fmt.Sprintf("Template to start from (%s)", strings.Join(config.TemplateNames(), ", ")))
	c.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing configuration")
	c.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Ask for the first target")

	return c
}

func runInit(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *initOptions) error {
	paths, err := cfg.Paths()
	if err != nil {
		return err
	}

	if paths.ConfigExists() && !opts.force {
		return &oerrors.ExitError{
			Code: oerrors.ExitGeneralError,
			Err:  fmt.Errorf("configuration already exists at %s (use --force to overwrite)", paths.ConfigFile),
		}
	}

	var data []byte
	if opts.interactive {
		if !output.IsStdinTTY() {
			return &oerrors.ExitError{
				Code: oerrors.ExitValidationError,
				Err:  fmt.Errorf("--interactive needs a terminal; use --template instead"),
			}
		}
		answers, err := askTarget()
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return &oerrors.ExitError{Code: oerrors.ExitCancelled, Err: oerrors.ErrCancelled}
			}
			return err
		}
		base, err := config.Template("empty")
		if err != nil {
			return err
		}
		if data, err = applyAnswers(base, answers); err != nil {
			return err
		}
	} else {
		if data, err = config.Template(opts.template); err != nil {
			return &oerrors.ExitError{Code: oerrors.ExitValidationError, Err: err}
		}
	}

	if err := config.WriteFile(paths.ConfigFile, data); err != nil {
		return err
	}
	ignore := filepath.Join(paths.StateDir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte(stateGitignore), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", ignore, err)
		}
	}

	fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark("Deploy configuration created: "+output.StyleNoun.Render(paths.ConfigFile)))
	return nil
}

// applyAnswers adds the answered target to a configuration document.
func applyAnswers(base []byte, a targetAnswers) ([]byte, error) {
	doc, err := config.ParseDocument(base)
	if err != nil {
		return nil, err
	}

	enabled := true
	t := config.Target{Type: config.TargetType(a.Type), Enabled: &enabled}
	switch t.Type {
	case config.TypeVPS:
		port := 22
		if a.Port != "" {
			if port, err = strconv.Atoi(a.Port); err != nil {
				return nil, fmt.Errorf("invalid port %q", a.Port)
			}
		}
		t.DeploymentType = a.DeploymentType
		t.Connection = &config.Connection{Host: a.Host, Port: port, User: a.User}
		if a.SSHKey != "" {
			t.Connection.AuthMethod = "ssh_key"
			t.Connection.SSHKey = a.SSHKey
		} else {
			t.Connection.AuthMethod = "password"
		}
		t.PostDeploy.RestartService = true
	case config.TypeGitPush:
		t.GitPush = &config.GitPushConfig{ProjectID: a.ProjectID, Branch: a.Branch, GitURL: a.GitURL}
		t.RequireConfirmation = true
	default:
		return nil, fmt.Errorf("unsupported target type %q", a.Type)
	}

	name := strings.ToLower(strings.TrimSpace(a.Name))
	if err := doc.SetValue("targets."+name, t); err != nil {
		return nil, err
	}
	return doc.Bytes()
}

func askTarget() (targetAnswers, error) {
	a := targetAnswers{
		Name:           "production",
		Type:           string(config.TypeVPS),
		Port:           "22",
		User:           "odoo",
		DeploymentType: "docker",
		Branch:         "main",
	}
	required := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Target name").Value(&a.Name).Validate(required("name")),
			huh.NewSelect[string]().Title("Target type").
				Options(
					huh.NewOption("VPS (ssh + rsync)", string(config.TypeVPS)),
					huh.NewOption("Git push (Odoo.sh)", string(config.TypeGitPush)),
				).
				Value(&a.Type),
		),
		huh.NewGroup(
			huh.NewInput().Title("Host").Value(&a.Host).Validate(required("host")),
			huh.NewInput().Title("SSH port").Value(&a.Port),
			huh.NewInput().Title("User").Value(&a.User).Validate(required("user")),
			huh.NewInput().Title("SSH key").Description("Leave empty for password authentication").Value(&a.SSHKey),
			huh.NewSelect[string]().Title("Odoo installation").
				Options(huh.NewOption("Docker", "docker"), huh.NewOption("Native (systemd)", "native")).
				Value(&a.DeploymentType),
		).WithHideFunc(func() bool { return a.Type != string(config.TypeVPS) }),
		huh.NewGroup(
			huh.NewInput().Title("Project ID").Value(&a.ProjectID).Validate(required("project id")),
			huh.NewInput().Title("Branch").Value(&a.Branch).Validate(required("branch")),
			huh.NewInput().Title("Git URL").Value(&a.GitURL).Validate(required("git url")),
		).WithHideFunc(func() bool { return a.Type != string(config.TypeGitPush) }),
	)

	err := form.Run()
	return a, err
}
