package cmdutil

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/deploy"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/output"
	"github.com/rocketdoo/rkd/internal/secrets"
)

// Project is a loaded project: its paths and deploy configuration.
type Project struct {
	Paths  *config.Paths
	Config *config.DeployConfig
}

// LoadProject loads the deploy configuration of the resolved project. With
// required set a missing file is a not-found error; otherwise defaults are
// used.
func LoadProject(cfg *cmdtypes.GlobalConfig, required bool) (*Project, error) {
	paths, err := cfg.Paths()
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}

	loader := config.NewLoader()
	var dc *config.DeployConfig
	if required {
		dc, err = loader.LoadRequired(paths.ConfigFile)
	} else {
		dc, err = loader.Load(paths.ConfigFile)
	}
	if err != nil {
		return nil, &oerrors.ExitError{Code: oerrors.ExitCodeFromError(err), Err: err}
	}

	output.Debug("project loaded",
		"root", paths.Root,
		"config", paths.ConfigFile,
		"loaded", dc.Loaded,
		"targets", len(dc.Targets),
	)
	return &Project{Paths: paths, Config: dc}, nil
}

// ModulesRoot returns the absolute modules base path.
func (p *Project) ModulesRoot() string {
	return p.Paths.Resolve(p.Config.Modules.BasePath)
}

// Scanner returns a module scanner over the modules base path.
func (p *Project) Scanner() *module.Scanner {
	return module.NewScanner(p.ModulesRoot(), p.Config.Modules.ScanExclude,
		module.WithLogger(output.Logger()))
}

// Target returns the named target or a not-found error listing the
// configured ones.
func (p *Project) Target(name string) (*config.Target, error) {
	t, ok := p.Config.Target(name)
	if !ok {
		hint := "run 'rkd deploy targets' to list configured targets"
		if names := p.Config.TargetNames(); len(names) > 0 {
			hint = "available targets: " + strings.Join(names, ", ")
		}
		err := oerrors.NewNotFoundError(fmt.Sprintf("target %q is not configured", name), p.Paths.ConfigFile, hint)
		return nil, &oerrors.ExitError{Code: oerrors.ExitNotFound, Err: err}
	}
	return t, nil
}

// SelectModules returns the installable modules, narrowed to names when
// names is not empty. Names that match no installable module are reported
// together.
func (p *Project) SelectModules(names []string) ([]*module.Module, error) {
	scanner := p.Scanner()
	mods, err := scanner.Installable()
	if err != nil {
		return nil, &oerrors.ExitError{Code: oerrors.ExitCodeFromError(err), Err: err}
	}
	if len(names) == 0 {
		return mods, nil
	}

	wanted := sets.New[string](names...)
	var selected []*module.Module
	for _, m := range mods {
		if wanted.Has(m.Name) {
			selected = append(selected, m)
		}
	}

	if missing := wanted.Difference(sets.New[string](module.Names(selected)...)); missing.Len() > 0 {
		err := oerrors.NewNotFoundError(
			"unknown module(s): "+strings.Join(sets.List(missing), ", "),
			scanner.Root(),
			"run 'rkd deploy list-modules --all' to see available modules",
		)
		return nil, &oerrors.ExitError{Code: oerrors.ExitNotFound, Err: err}
	}
	return selected, nil
}

// NewEnv assembles the backend environment for a run against target.
// Without a configured prompt, passwords are read from the terminal when
// stdin is one; otherwise prompting is disabled.
func (p *Project) NewEnv(cfg *cmdtypes.GlobalConfig, target *config.Target) *deploy.Env {
	prompt := cfg.Prompt
	if prompt == nil && output.IsStdinTTY() {
		prompt = secrets.TerminalPrompt
	}
	return &deploy.Env{
		Paths:   p.Paths,
		Config:  p.Config,
		Target:  target,
		Journal: deploy.NewJournal(output.TargetLogger(target.Name)),
		Runner:  cfg.ExecRunner(),
		Prompt:  prompt,
		Now:     cfg.Clock(),
	}
}
