package deploy

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/rocketdoo/rkd/internal/module"
)

// Step names a phase of Execute.
type Step string

// Execute phases in order.
const (
	StepValidateConfig  Step = "validate_config"
	StepValidateModules Step = "validate_modules"
	StepBackup          Step = "create_backup"
	StepPreDeployCheck  Step = "pre_deploy_check"
	StepDeploy          Step = "deploy_modules"
	StepRollback        Step = "rollback"
	StepPostDeploy      Step = "post_deploy_actions"
)

// Options adjust a run.
type Options struct {
	// SkipBackup disables the local snapshot regardless of policy.
	SkipBackup bool

	// SkipValidation disables module checks regardless of policy.
	SkipValidation bool
}

// Orchestrator drives one backend through a deployment.
type Orchestrator struct {
	backend Backend
	env     *Env
	opts    Options
	runID   string

	// step is the phase currently running, for panic reports.
	step Step
}

// NewOrchestrator returns an orchestrator for backend.
func NewOrchestrator(backend Backend, env *Env, opts Options) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		env:     env,
		opts:    opts,
		runID:   uuid.NewString(),
	}
}

// RunID identifies this orchestrator's runs in results and logs.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Journal returns the run journal.
func (o *Orchestrator) Journal() *Journal {
	return o.env.Journal
}

// ValidateModules runs the checks enabled by the target's validation policy.
func (o *Orchestrator) ValidateModules(ctx context.Context, mods []*module.Module) []string {
	if o.opts.SkipValidation {
		o.env.Journal.Warning("Module validation skipped")
		return nil
	}
	v := &ModuleValidator{
		Policy:  o.env.Config.EffectiveValidations(o.env.Target),
		Runner:  o.env.Runner,
		Journal: o.env.Journal,
	}
	return v.Validate(ctx, mods)
}

// CreateBackup snapshots the modules when the backup policy is enabled and
// prunes old snapshots. Pruning problems are warnings.
func (o *Orchestrator) CreateBackup(mods []*module.Module) bool {
	j := o.env.Journal
	policy := o.env.Config.EffectiveBackup(o.env.Target)
	if o.opts.SkipBackup || !policy.IsEnabled() {
		j.Info("Backup disabled, skipping")
		return true
	}

	store := o.env.Backups()
	dir, err := store.Create(mods)
	if err != nil {
		j.Error(fmt.Sprintf("Error creating backup: %v", err))
		return false
	}
	j.Success(fmt.Sprintf("Backup created at: %s", dir))

	removed, err := store.Prune()
	for _, name := range removed {
		j.Info(fmt.Sprintf("Old backup deleted: %s", name))
	}
	if err != nil {
		j.Warning(fmt.Sprintf("Error cleaning up backups: %v", err))
	}
	return true
}

// Execute runs the deployment.
//
// Phase sequence:
//  1. validate_config:  backend.ValidateConfig, any message fails the run
//  2. validate_modules: policy checks over every module
//  3. create_backup:    local snapshot plus retention
//  4. pre_deploy_check: reachability and remote preconditions
//  5. deploy_modules:   transfer; on failure the backend rolls back once
//  6. post_deploy:      follow-up actions, failures only warn
//
// A panic in any phase is recovered into a failed result.
func (o *Orchestrator) Execute(ctx context.Context, mods []*module.Module) (res *Result) {
	j := o.env.Journal
	defer func() {
		if r := recover(); r != nil {
			j.Error(fmt.Sprintf("Unexpected error during %s: %v", o.step, r))
			j.Debug("stack", "trace", string(debug.Stack()))
			res = o.finish(Failed(fmt.Sprintf("Deployment aborted during %s: %v", o.step, r), nil))
		}
	}()

	name := o.backend.Name()
	j.Info(fmt.Sprintf("Starting deployment to: %s", name), "run", o.runID)
	j.Info(fmt.Sprintf("Modules to deploy: %d", len(mods)))

	o.step = StepValidateConfig
	j.Info("Validating configuration...")
	if errs := o.backend.ValidateConfig(ctx); len(errs) > 0 {
		for _, e := range errs {
			j.Error("  " + e)
		}
		return o.finish(Failed("Invalid configuration", map[string]any{DetailErrors: errs}))
	}

	o.step = StepValidateModules
	j.Info("Validating modules...")
	if errs := o.ValidateModules(ctx, mods); len(errs) > 0 {
		for _, e := range errs {
			j.Error("  " + e)
		}
		return o.finish(Failed("Module validation failed", map[string]any{DetailErrors: errs}))
	}

	o.step = StepBackup
	j.Info("Creating backup...")
	if !o.CreateBackup(mods) {
		return o.finish(Failed("Backup failed", nil))
	}

	o.step = StepPreDeployCheck
	j.Info("Checking connectivity...")
	if !o.backend.PreDeployCheck(ctx) {
		return o.finish(Failed("Pre-deploy check failed", nil))
	}

	o.step = StepDeploy
	j.Info("Deploying modules...")
	deployed := o.backend.DeployModules(ctx, mods)
	if !deployed.Success {
		j.Error("Deployment failed, initiating rollback...")
		o.step = StepRollback
		rb := o.rollback(ctx)
		return o.finish(deployed.With(DetailRollback, rb))
	}

	o.step = StepPostDeploy
	j.Info("Executing post-deploy actions...")
	post := o.backend.PostDeployActions(ctx)

	details := map[string]any{
		DetailModulesDeployed: len(mods),
		DetailModules:         module.Names(mods),
	}
	for k, v := range deployed.Details {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}
	if !post.Success {
		j.Warning("Post-deploy failed: " + post.Message)
		details[DetailPostDeployWarning] = post.Message
	}

	j.Success("Deployment completed successfully!")
	return o.finish(Succeeded(fmt.Sprintf("Deployment to %s completed", name), details))
}

// Rollback asks the backend to undo the last transfer.
func (o *Orchestrator) Rollback(ctx context.Context) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			o.env.Journal.Error(fmt.Sprintf("Unexpected error during rollback: %v", r))
			res = Failed(fmt.Sprintf("Rollback aborted: %v", r), nil)
		}
	}()
	return o.rollback(ctx)
}

func (o *Orchestrator) rollback(ctx context.Context) *Result {
	if rb, ok := o.backend.(Rollbacker); ok {
		return rb.Rollback(ctx)
	}
	return defaultRollback(o.env.Journal)
}

func (o *Orchestrator) finish(r *Result) *Result {
	return r.With(DetailLogs, o.env.Journal.Entries()).With(DetailRunID, o.runID)
}
