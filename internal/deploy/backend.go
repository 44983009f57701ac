package deploy

import (
	"context"
	"time"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/packager"
	"github.com/rocketdoo/rkd/internal/secrets"
)

// Backend transfers modules to one kind of target.
type Backend interface {
	// Name returns the target name.
	Name() string

	// Kind returns the target type the backend serves.
	Kind() config.TargetType

	// ValidateConfig returns every configuration problem found.
	ValidateConfig(ctx context.Context) []string

	// PreDeployCheck verifies reachability and remote preconditions.
	PreDeployCheck(ctx context.Context) bool

	// DeployModules transfers the modules.
	DeployModules(ctx context.Context, mods []*module.Module) *Result

	// PostDeployActions runs follow-up actions after a transfer.
	PostDeployActions(ctx context.Context) *Result
}

// Rollbacker is implemented by backends that can undo a transfer.
type Rollbacker interface {
	Rollback(ctx context.Context) *Result
}

// Describer is implemented by backends that can describe where modules go
// without contacting the target.
type Describer interface {
	Destination() string
}

// Env carries everything a backend needs from the surrounding run.
type Env struct {
	Paths   *config.Paths
	Config  *config.DeployConfig
	Target  *config.Target
	Journal *Journal
	Runner  execx.Runner

	// Secrets stores prompted passwords. Nil selects the store named by the
	// target connection.
	Secrets secrets.Store

	// Prompt asks for missing passwords. Nil disables prompting.
	Prompt secrets.Prompter

	// Now is the clock used for snapshot names. Nil means time.Now.
	Now func() time.Time
}

// Clock returns the configured time source.
func (e *Env) Clock() func() time.Time {
	if e.Now != nil {
		return e.Now
	}
	return time.Now
}

// Packager returns a packager using the target's exclude patterns.
func (e *Env) Packager() *packager.Packager {
	return packager.New(e.Config.EffectiveExcludes(e.Target),
		packager.WithLogger(e.Journal.Logger()),
		packager.WithClock(e.Clock()),
	)
}

// Backups returns the snapshot store for the target.
func (e *Env) Backups() *BackupStore {
	policy := e.Config.EffectiveBackup(e.Target)
	return NewBackupStore(e.Paths.Resolve(policy.Path), e.Target.Name, policy.Retention(), e.Clock())
}

// SecretStore returns the configured password store.
func (e *Env) SecretStore() (secrets.Store, error) {
	if e.Secrets != nil {
		return e.Secrets, nil
	}
	kind := ""
	if e.Target.Connection != nil {
		kind = e.Target.Connection.PasswordStore
	}
	return secrets.New(kind, e.Paths.SecretsDir, e.Paths.Root)
}

// defaultRollback is used for backends without Rollbacker.
func defaultRollback(j *Journal) *Result {
	j.Warning("Rollback not implemented for this deployer")
	return Succeeded("rollback not implemented for this deployer", nil)
}
