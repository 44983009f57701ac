// Package backends selects the deploy backend for a target type.
package backends

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/deploy"
	"github.com/rocketdoo/rkd/internal/deploy/gitpush"
	"github.com/rocketdoo/rkd/internal/deploy/vps"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
)

// Factory builds a backend from a run environment.
type Factory func(env *deploy.Env) (deploy.Backend, error)

var registry = map[config.TargetType]Factory{
	config.TypeVPS: func(env *deploy.Env) (deploy.Backend, error) {
		return vps.New(env)
	},
	config.TypeGitPush: func(env *deploy.Env) (deploy.Backend, error) {
		return gitpush.New(env)
	},
}

// New returns the backend serving env.Target.
func New(env *deploy.Env) (deploy.Backend, error) {
	if env.Target == nil {
		return nil, fmt.Errorf("no target selected")
	}
	f, ok := registry[env.Target.Type]
	if !ok {
		return nil, oerrors.NewValidationError(
			fmt.Sprintf("unsupported target type %q", env.Target.Type),
			"", "targets."+env.Target.Name+".type",
			"supported types: "+supportedTypes(),
		)
	}
	return f(env)
}

func supportedTypes() string {
	names := make([]string, 0, len(registry))
	for t := range registry {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
