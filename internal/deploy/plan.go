package deploy

import (
	"context"
	"fmt"

	"github.com/rocketdoo/rkd/internal/module"
)

// PlannedModule describes one module of a dry run.
type PlannedModule struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	SizeBytes int64  `json:"size_bytes"`
}

// Plan validates configuration and modules and reports what Execute would
// transfer. Nothing is copied, snapshotted or contacted.
func (o *Orchestrator) Plan(ctx context.Context, mods []*module.Module) *Result {
	j := o.env.Journal
	name := o.backend.Name()
	j.Info(fmt.Sprintf("Planning deployment to: %s", name))

	if errs := o.backend.ValidateConfig(ctx); len(errs) > 0 {
		return o.finish(Failed("Invalid configuration", map[string]any{DetailErrors: errs}))
	}
	if errs := o.ValidateModules(ctx, mods); len(errs) > 0 {
		return o.finish(Failed("Module validation failed", map[string]any{DetailErrors: errs}))
	}

	pkg := o.env.Packager()
	planned := make([]PlannedModule, 0, len(mods))
	var total int64
	for _, m := range mods {
		size, err := pkg.ModuleSize(m)
		if err != nil {
			return o.finish(Failedf("Sizing %s: %v", m.Name, err))
		}
		total += size
		planned = append(planned, PlannedModule{Name: m.Name, Version: m.Version(), SizeBytes: size})
	}

	details := map[string]any{
		"target":              name,
		"type":                string(o.backend.Kind()),
		DetailModules:         planned,
		"total_size_bytes":    total,
		DetailModulesDeployed: 0,
	}
	if d, ok := o.backend.(Describer); ok {
		details["destination"] = d.Destination()
	}
	policy := o.env.Config.EffectiveBackup(o.env.Target)
	if !o.opts.SkipBackup && policy.IsEnabled() {
		details["backup_root"] = o.env.Paths.Resolve(policy.Path)
	}

	j.Success(fmt.Sprintf("Dry run: %d module(s) would be deployed to %s", len(mods), name))
	return o.finish(Succeeded(fmt.Sprintf("Dry run for %s completed", name), details))
}
