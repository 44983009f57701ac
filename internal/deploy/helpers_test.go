package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/testutil"
)

// fakeBackend scripts each phase and counts calls.
type fakeBackend struct {
	configErrs []string
	preOK      bool
	deploy     *Result
	post       *Result
	rollback   *Result
	panicIn    Step

	deployCalls   int
	postCalls     int
	rollbackCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		preOK:    true,
		deploy:   Succeeded("Modules deployed", map[string]any{"deployed": []string{"sale_extra"}}),
		post:     Succeeded("Post-deploy actions completed", nil),
		rollback: Succeeded("Rolled back", nil),
	}
}

func (f *fakeBackend) Name() string            { return "prod" }
func (f *fakeBackend) Kind() config.TargetType { return config.TypeVPS }

func (f *fakeBackend) ValidateConfig(context.Context) []string {
	if f.panicIn == StepValidateConfig {
		panic("config exploded")
	}
	return f.configErrs
}

func (f *fakeBackend) PreDeployCheck(context.Context) bool { return f.preOK }

func (f *fakeBackend) DeployModules(context.Context, []*module.Module) *Result {
	f.deployCalls++
	if f.panicIn == StepDeploy {
		panic("transfer exploded")
	}
	return f.deploy
}

func (f *fakeBackend) PostDeployActions(context.Context) *Result {
	f.postCalls++
	return f.post
}

func (f *fakeBackend) Rollback(context.Context) *Result {
	f.rollbackCalls++
	return f.rollback
}

func (f *fakeBackend) Destination() string { return "odoo@erp.example.com" }

// noRollbackBackend hides the Rollback method.
type noRollbackBackend struct{ *fakeBackend }

func (noRollbackBackend) Rollback() {}

type testProject struct {
	env    *Env
	addons string
	runner *execx.FakeRunner
	clock  *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestProject(t *testing.T) *testProject {
	t.Helper()
	root := t.TempDir()
	paths, err := config.ProjectPaths(root)
	require.NoError(t, err)

	cfg := (&config.DeployConfig{
		Targets: map[string]*config.Target{
			"prod": {Type: config.TypeVPS, Connection: &config.Connection{Host: "h", User: "u"}},
		},
	}).WithDefaults()
	target, _ := cfg.Target("prod")

	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	runner := &execx.FakeRunner{}

	return &testProject{
		env: &Env{
			Paths:   paths,
			Config:  cfg,
			Target:  target,
			Journal: NewJournal(nil),
			Runner:  runner,
			Now:     clock.now,
		},
		addons: filepath.Join(root, "addons"),
		runner: runner,
		clock:  clock,
	}
}

func (p *testProject) module(t *testing.T, name string, extra map[string]string) *module.Module {
	t.Helper()
	dir := testutil.WriteModule(t, p.addons, name, extra)
	m, err := module.New(dir, p.addons, nil)
	require.NoError(t, err)
	return m
}

func removeFile(path string) error {
	return os.Remove(path)
}
