// Package cmdtypes provides shared types for the cmd package and its sub-packages.
// It is separate from internal/cmd to avoid import cycles between internal/cmd
// and its sub-packages (internal/cmd/deploy).
package cmdtypes

import (
	"time"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/secrets"
)

// GlobalConfig holds CLI-wide configuration resolved during PersistentPreRunE.
// It is populated once at startup and passed explicitly into every sub-command
// constructor.
type GlobalConfig struct {
	// Resolved holds the project root and config file with their sources.
	Resolved *config.ResolvedPaths

	Verbose bool

	// Runner executes external tools. Nil means the real runner.
	Runner execx.Runner

	// Confirm answers yes/no questions. Nil means an interactive prompt,
	// which requires a terminal.
	Confirm func(title string) (bool, error)

	// Prompt reads passwords. Nil means the terminal prompt.
	Prompt secrets.Prompter

	// Now is the clock used for run timestamps. Nil means time.Now.
	Now func() time.Time
}

// Paths returns the resolved project paths, resolving from the environment
// when PersistentPreRunE did not run (sub-commands executed directly).
func (g *GlobalConfig) Paths() (*config.Paths, error) {
	if g.Resolved == nil {
		resolved, err := config.Resolve(config.ResolveOptions{})
		if err != nil {
			return nil, err
		}
		g.Resolved = resolved
	}
	return g.Resolved.Paths, nil
}

// ExecRunner returns the configured runner.
func (g *GlobalConfig) ExecRunner() execx.Runner {
	if g.Runner != nil {
		return g.Runner
	}
	return execx.NewRunner()
}

// Clock returns the configured time source.
func (g *GlobalConfig) Clock() func() time.Time {
	if g.Now != nil {
		return g.Now
	}
	return time.Now
}
