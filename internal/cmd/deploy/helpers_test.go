package deploy

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/testutil"
)

const fixtureConfig = `modules:
  base_path: addons
targets:
  prod:
    type: vps
    description: Production ERP
    connection:
      host: erp.example.com
      user: odoo
      password: secret
  staging:
    type: vps
    enabled: false
    connection:
      host: staging.example.com
      user: odoo
      password: secret
`

type fixture struct {
	root   string
	cfg    *cmdtypes.GlobalConfig
	runner *execx.FakeRunner
	asked  []string
	answer bool
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// newFixture creates a project with two installable modules, one draft
// module and the fixture configuration. An empty config skips deploy.yaml.
func newFixture(t *testing.T, deployYAML string) *fixture {
	t.Helper()
	root := t.TempDir()
	if deployYAML != "" {
		testutil.WriteFile(t, root, ".rkd/deploy.yaml", deployYAML)
	}
	addons := filepath.Join(root, "addons")
	testutil.WriteModule(t, addons, "sale_extra", nil)
	testutil.WriteModule(t, addons, "stock_extra", nil)
	testutil.WriteModule(t, addons, "draft_module", map[string]string{
		"__manifest__.py": "{'name': 'Draft', 'version': '16.0.0.1.0', 'installable': False}\n",
	})

	resolved, err := config.Resolve(config.ResolveOptions{ProjectFlag: root})
	require.NoError(t, err)

	f := &fixture{root: root, runner: &execx.FakeRunner{}, answer: true}
	f.cfg = &cmdtypes.GlobalConfig{
		Resolved: resolved,
		Runner:   f.runner,
		Confirm: func(title string) (bool, error) {
			f.asked = append(f.asked, title)
			return f.answer, nil
		},
		Prompt: func(string) (string, error) { return "s3cret", nil },
		Now:    func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
	return f
}

// run executes the deploy command group with args.
func (f *fixture) run(args ...string) error {
	f.stdout.Reset()
	f.stderr.Reset()
	cmd := NewDeployCmd(f.cfg)
	cmd.SetArgs(args)
	cmd.SetOut(&f.stdout)
	cmd.SetErr(&f.stderr)
	return cmd.ExecuteContext(context.Background())
}

func (f *fixture) path(rel string) string {
	return filepath.Join(f.root, rel)
}
