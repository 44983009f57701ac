package vps

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/deploy"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/secrets"
	"github.com/rocketdoo/rkd/internal/testutil"
)

type fixture struct {
	env    *deploy.Env
	runner *execx.FakeRunner
	addons string
	key    string
}

func writeKey(t *testing.T, dir string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(dir, "id_deploy")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

// newFixture builds a project with one vps target named "prod". mutate
// adjusts the raw target before defaults are applied.
func newFixture(t *testing.T, mutate func(tg *config.Target, key string)) *fixture {
	t.Helper()
	root := t.TempDir()
	paths, err := config.ProjectPaths(root)
	require.NoError(t, err)
	key := writeKey(t, t.TempDir())

	tg := &config.Target{
		Type: config.TypeVPS,
		Connection: &config.Connection{
			Host:   "erp.example.com",
			User:   "odoo",
			SSHKey: key,
		},
	}
	if mutate != nil {
		mutate(tg, key)
	}
	cfg := (&config.DeployConfig{Targets: map[string]*config.Target{"prod": tg}}).WithDefaults()
	target, ok := cfg.Target("prod")
	require.True(t, ok)

	runner := &execx.FakeRunner{}
	return &fixture{
		env: &deploy.Env{
			Paths:   paths,
			Config:  cfg,
			Target:  target,
			Journal: deploy.NewJournal(nil),
			Runner:  runner,
			Secrets: secrets.NewFileStore(paths.SecretsDir),
			Now:     func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
		},
		runner: runner,
		addons: filepath.Join(root, "addons"),
		key:    key,
	}
}

func (f *fixture) backend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(f.env)
	require.NoError(t, err)
	return b
}

func (f *fixture) modules(t *testing.T, names ...string) []*module.Module {
	t.Helper()
	var mods []*module.Module
	for _, n := range names {
		dir := testutil.WriteModule(t, f.addons, n, map[string]string{"notes.pyc": "x"})
		m, err := module.New(dir, f.addons, nil)
		require.NoError(t, err)
		mods = append(mods, m)
	}
	return mods
}

func messages(j *deploy.Journal, level deploy.Level) []string {
	var out []string
	for _, e := range j.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestNewRejectsKeyAndPassword(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Connection.Password = "hunter2"
	})

	_, err := New(f.env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, oerrors.ErrValidation))
	assert.Contains(t, err.Error(), "both ssh_key and password defined")
	assert.Empty(t, f.runner.Calls, "no command may run before the auth check")
}

func TestAuthMethod(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tg *config.Target, key string)
		want   string
	}{
		{name: "key", want: authSSHKey},
		{name: "password", mutate: func(tg *config.Target, _ string) {
			tg.Connection.SSHKey = ""
			tg.Connection.Password = "pw"
		}, want: authPassword},
		{name: "unset placeholder", mutate: func(tg *config.Target, _ string) {
			tg.Connection.SSHKey = ""
			tg.Connection.PasswordVar = "VPS_PW"
		}, want: authPassword},
		{name: "none", mutate: func(tg *config.Target, _ string) {
			tg.Connection.SSHKey = ""
		}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			assert.Equal(t, tt.want, f.backend(t).AuthMethod())
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(tg *config.Target, key string)
		missing []string
		want    []string
	}{
		{name: "valid docker target"},
		{
			name: "valid native target",
			mutate: func(tg *config.Target, _ string) {
				tg.DeploymentType = config.DeploymentNative
			},
		},
		{
			name: "missing host and user",
			mutate: func(tg *config.Target, _ string) {
				tg.Connection.Host = ""
				tg.Connection.User = ""
			},
			want: []string{"Missing 'connection.host'", "Missing 'connection.user'"},
		},
		{
			name: "bad port",
			mutate: func(tg *config.Target, _ string) {
				tg.Connection.Port = 70000
			},
			want: []string{"Invalid 'connection.port': 70000"},
		},
		{
			name: "no auth",
			mutate: func(tg *config.Target, _ string) {
				tg.Connection.SSHKey = ""
			},
			want: []string{"No authentication method defined"},
		},
		{
			name: "key file missing",
			mutate: func(tg *config.Target, key string) {
				tg.Connection.SSHKey = key + ".gone"
			},
			want: []string{"SSH key not found"},
		},
		{
			name: "password without sshpass",
			mutate: func(tg *config.Target, _ string) {
				tg.Connection.SSHKey = ""
				tg.Connection.Password = "pw"
			},
			missing: []string{"sshpass"},
			want:    []string{"requires 'sshpass'"},
		},
		{
			name:    "rsync missing",
			missing: []string{"rsync"},
			want:    []string{"Required tool 'rsync' not found"},
		},
		{
			name: "unknown mechanism",
			mutate: func(tg *config.Target, _ string) {
				tg.DeploymentType = "podman"
			},
			want: []string{"Invalid deployment_type: podman"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			f.runner.Missing = map[string]bool{}
			for _, m := range tt.missing {
				f.runner.Missing[m] = true
			}

			errs := f.backend(t).ValidateConfig(context.Background())
			if len(tt.want) == 0 {
				assert.Empty(t, errs)
				return
			}
			joined := strings.Join(errs, "\n")
			for _, w := range tt.want {
				assert.Contains(t, joined, w)
			}
		})
	}
}

func TestValidateConfigDefaultsMechanismSettings(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Docker = &config.DockerConfig{ContainerName: "", ComposePath: ""}
	})
	b := f.backend(t)
	assert.Empty(t, b.ValidateConfig(context.Background()))
	assert.Equal(t, "odoo", f.env.Target.Docker.ContainerName)
	assert.Equal(t, "/opt/odoo", f.env.Target.Docker.ComposePath)
	assert.Equal(t, "odoo@erp.example.com:/opt/odoo/addons", b.Destination())

	n := newFixture(t, func(tg *config.Target, _ string) {
		tg.DeploymentType = config.DeploymentNative
		tg.Native = &config.NativeConfig{}
	})
	assert.Empty(t, n.backend(t).ValidateConfig(context.Background()))
	assert.Equal(t, "/opt/odoo/custom_addons", n.env.Target.Native.AddonsPath)
}

func TestPasswordFromStore(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Connection.SSHKey = ""
		tg.Connection.AuthMethod = authPassword
	})
	require.NoError(t, f.env.Secrets.Set("prod", "stored-pw"))

	b := f.backend(t)
	assert.Empty(t, b.ValidateConfig(context.Background()))

	require.True(t, b.PreDeployCheck(context.Background()))
	first := f.runner.Calls[0]
	assert.Equal(t, "sshpass", first.Name)
	assert.Equal(t, []string{"SSHPASS=stored-pw"}, first.Env)
	assert.NotContains(t, first.String(), "stored-pw")
}

func TestPasswordPromptIsPersisted(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Connection.SSHKey = ""
		tg.Connection.PasswordVar = "VPS_PW"
	})
	prompts := 0
	f.env.Prompt = func(string) (string, error) {
		prompts++
		return "typed-pw", nil
	}

	b := f.backend(t)
	assert.Empty(t, b.ValidateConfig(context.Background()))
	assert.Zero(t, prompts, "validation never prompts")
	_, err := f.env.Secrets.Get("prod")
	require.ErrorIs(t, err, secrets.ErrNotStored, "validation never writes the store")

	require.True(t, b.PreDeployCheck(context.Background()))
	require.True(t, b.PreDeployCheck(context.Background()))
	assert.Equal(t, 1, prompts)

	stored, err := f.env.Secrets.Get("prod")
	require.NoError(t, err)
	assert.Equal(t, "typed-pw", stored)

	info, err := os.Stat(filepath.Join(f.env.Paths.SecretsDir, "vps_prod.env"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Contains(t, strings.Join(messages(f.env.Journal, deploy.LevelWarning), "\n"), "VPS_PW not set")
}

func TestPasswordPromptFailureStopsPreDeployCheck(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Connection.SSHKey = ""
		tg.Connection.AuthMethod = authPassword
	})
	f.env.Prompt = func(string) (string, error) { return "", secrets.ErrNoTerminal }

	b := f.backend(t)
	assert.Empty(t, b.ValidateConfig(context.Background()))
	assert.False(t, b.PreDeployCheck(context.Background()))
	assert.Empty(t, f.runner.Calls, "no ssh attempt without a password")
	assert.Contains(t, strings.Join(messages(f.env.Journal, deploy.LevelError), "\n"), "No SSH password available")
}

func TestPasswordWithoutTerminal(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Connection.SSHKey = ""
		tg.Connection.AuthMethod = authPassword
	})

	errs := f.backend(t).ValidateConfig(context.Background())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no password available")
}

func TestPreDeployCheck(t *testing.T) {
	tests := []struct {
		name     string
		handler  func(cmd execx.Command) (*execx.Result, error)
		want     bool
		wantCmd  string
		wantWarn string
	}{
		{
			name: "all good",
			handler: func(cmd execx.Command) (*execx.Result, error) {
				script := cmd.Args[len(cmd.Args)-1]
				switch {
				case strings.HasPrefix(script, "test -d"):
					return &execx.Result{Stdout: "exists\n"}, nil
				case strings.HasPrefix(script, "docker ps"):
					return &execx.Result{Stdout: "odoo\n"}, nil
				}
				return nil, nil
			},
			want: true,
		},
		{
			name: "connection refused",
			handler: func(cmd execx.Command) (*execx.Result, error) {
				return &execx.Result{ExitCode: 255, Stderr: "Connection refused"}, nil
			},
			want: false,
		},
		{
			name: "creates missing path",
			handler: func(cmd execx.Command) (*execx.Result, error) {
				return &execx.Result{Stdout: "odoo\n"}, nil
			},
			want:    true,
			wantCmd: "mkdir -p /opt/odoo/addons || sudo -n mkdir -p /opt/odoo/addons",
		},
		{
			name: "docker missing",
			handler: func(cmd execx.Command) (*execx.Result, error) {
				script := cmd.Args[len(cmd.Args)-1]
				if script == "docker --version" {
					return &execx.Result{ExitCode: 127, Stderr: "docker: command not found"}, nil
				}
				return &execx.Result{Stdout: "exists\n"}, nil
			},
			want: false,
		},
		{
			name: "container missing only warns",
			handler: func(cmd execx.Command) (*execx.Result, error) {
				return &execx.Result{Stdout: "exists\n"}, nil
			},
			want:     true,
			wantWarn: "Container 'odoo' not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.runner.Handler = tt.handler

			assert.Equal(t, tt.want, f.backend(t).PreDeployCheck(context.Background()))
			if tt.wantCmd != "" {
				assert.Equal(t, 1, f.runner.Count(tt.wantCmd))
			}
			if tt.wantWarn != "" {
				assert.Contains(t, messages(f.env.Journal, deploy.LevelWarning), tt.wantWarn)
			}
		})
	}
}

func TestSSHOptions(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Connection.Port = 2222
	})
	b := f.backend(t)
	_, err := b.ssh(context.Background(), "uptime", time.Second)
	require.NoError(t, err)

	call := f.runner.Calls[0]
	assert.Equal(t, "ssh", call.Name)
	assert.Equal(t, []string{
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=15",
		"-p", "2222",
		"-i", f.key,
		"odoo@erp.example.com", "uptime",
	}, call.Args)
	assert.Empty(t, call.Env)
}

func TestDeployModules(t *testing.T) {
	f := newFixture(t, nil)
	mods := f.modules(t, "sale_extra", "stock_extra")

	res := f.backend(t).DeployModules(context.Background(), mods)
	require.True(t, res.Success, res.Message)

	require.Len(t, f.runner.Calls, 2)
	for i, name := range []string{"sale_extra", "stock_extra"} {
		call := f.runner.Calls[i]
		assert.Equal(t, "rsync", call.Name)
		assert.Equal(t, RsyncTimeout, call.Timeout)
		require.Len(t, call.Args, 6)
		assert.Equal(t, []string{"-az", "--delete", "-e"}, call.Args[:3])
		assert.Contains(t, call.Args[3], "ssh -o StrictHostKeyChecking=no")
		assert.Contains(t, call.Args[3], "-i "+f.key)
		assert.True(t, strings.HasSuffix(call.Args[4], "/"+name+"/"))
		assert.Equal(t, "odoo@erp.example.com:/opt/odoo/addons/"+name+"/", call.Args[5])
	}

	mods2, _ := res.Detail(deploy.DetailModules)
	assert.Equal(t, []string{"sale_extra", "stock_extra"}, mods2)
}

func TestDeployModulesNative(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.DeploymentType = config.DeploymentNative
		tg.Native = &config.NativeConfig{OdooPath: "/srv/odoo"}
	})
	mods := f.modules(t, "sale_extra")

	res := f.backend(t).DeployModules(context.Background(), mods)
	require.True(t, res.Success)
	assert.Equal(t, "odoo@erp.example.com:/srv/odoo/custom_addons/sale_extra/", f.runner.Calls[0].Args[5])
}

func TestDeployModulesStagingIsFiltered(t *testing.T) {
	f := newFixture(t, nil)
	mods := f.modules(t, "sale_extra")

	var staged string
	f.runner.Handler = func(cmd execx.Command) (*execx.Result, error) {
		staged = strings.TrimSuffix(cmd.Args[4], "/")
		assert.FileExists(t, filepath.Join(staged, "__manifest__.py"))
		assert.NoFileExists(t, filepath.Join(staged, "notes.pyc"))
		return nil, nil
	}

	require.True(t, f.backend(t).DeployModules(context.Background(), mods).Success)
	assert.NoDirExists(t, filepath.Dir(staged), "staging must be removed")
}

func TestDeployModulesFailure(t *testing.T) {
	tests := []struct {
		name    string
		result  *execx.Result
		err     error
		wantErr string
	}{
		{
			name:    "rsync exit status",
			result:  &execx.Result{ExitCode: 23, Stderr: "some files could not be transferred"},
			wantErr: "rsync failed: some files could not be transferred",
		},
		{
			name:    "timeout",
			err:     &execx.TimeoutError{Op: "rsync stock_extra", Timeout: RsyncTimeout},
			wantErr: "rsync stock_extra timed out after 10m0s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			mods := f.modules(t, "sale_extra", "stock_extra")
			f.runner.Handler = func(cmd execx.Command) (*execx.Result, error) {
				if strings.HasSuffix(cmd.Args[5], "/stock_extra/") {
					return tt.result, tt.err
				}
				return nil, nil
			}

			res := f.backend(t).DeployModules(context.Background(), mods)
			require.False(t, res.Success)
			assert.Equal(t, "Failed to upload module: stock_extra", res.Message)
			assert.Equal(t, []string{tt.wantErr}, res.Errors())
		})
	}
}

func TestPasswordTransfer(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.Connection.SSHKey = ""
		tg.Connection.Password = "s3cret"
	})
	mods := f.modules(t, "sale_extra")

	require.True(t, f.backend(t).DeployModules(context.Background(), mods).Success)
	call := f.runner.Calls[0]
	assert.Equal(t, "sshpass", call.Name)
	assert.Equal(t, []string{"-e", "rsync", "-az", "--delete"}, call.Args[:4])
	assert.Equal(t, []string{"SSHPASS=s3cret"}, call.Env)
	assert.NotContains(t, call.String(), "s3cret")
	assert.NotContains(t, call.Args[5], "-i ")
}

func TestPostDeployActions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tg *config.Target, key string)
		want   []string
	}{
		{
			name: "docker restart and update",
			mutate: func(tg *config.Target, _ string) {
				tg.PostDeploy = config.PostDeployConfig{RestartService: true, UpdateModules: true, Database: "prod_db"}
			},
			want: []string{
				"cd /opt/odoo && docker compose restart odoo",
				"docker exec odoo odoo -c /etc/odoo/odoo.conf -u sale_extra,stock_extra --stop-after-init -d prod_db",
			},
		},
		{
			name: "native update all",
			mutate: func(tg *config.Target, _ string) {
				tg.DeploymentType = config.DeploymentNative
				tg.PostDeploy = config.PostDeployConfig{RestartService: true, UpdateModules: true, UpdateAll: true}
			},
			want: []string{
				"sudo systemctl restart odoo",
				"python3 /opt/odoo/odoo-bin -c /opt/odoo/odoo.conf -u all --stop-after-init",
			},
		},
		{
			name: "custom commands in order",
			mutate: func(tg *config.Target, _ string) {
				tg.PostDeploy = config.PostDeployConfig{CustomCommands: []string{"echo one", "echo two"}}
			},
			want: []string{"echo one", "echo two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			b := f.backend(t)
			require.True(t, b.DeployModules(context.Background(), f.modules(t, "sale_extra", "stock_extra")).Success)
			f.runner.Calls = nil

			res := b.PostDeployActions(context.Background())
			require.True(t, res.Success, res.Message)

			var scripts []string
			for _, c := range f.runner.Calls {
				scripts = append(scripts, c.Args[len(c.Args)-1])
			}
			assert.Equal(t, tt.want, scripts)
		})
	}
}

func TestPostDeployFailures(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.PostDeploy = config.PostDeployConfig{
			UpdateModules:  true,
			CustomCommands: []string{"false", "echo done"},
		}
	})
	f.runner.Handler = func(cmd execx.Command) (*execx.Result, error) {
		script := cmd.Args[len(cmd.Args)-1]
		if script == "false" || strings.HasPrefix(script, "docker exec") {
			return &execx.Result{ExitCode: 1, Stderr: "boom"}, nil
		}
		return nil, nil
	}

	res := f.backend(t).PostDeployActions(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, 1, f.runner.Count("echo done"), "later commands still run")
	warnings := messages(f.env.Journal, deploy.LevelWarning)
	assert.Contains(t, warnings, "Module update had issues")
	assert.Contains(t, warnings, "Command failed")
}

func TestRestartFailure(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.PostDeploy = config.PostDeployConfig{RestartService: true}
	})
	f.runner.Handler = func(execx.Command) (*execx.Result, error) {
		return &execx.Result{ExitCode: 1, Stderr: "no such service"}, nil
	}

	res := f.backend(t).PostDeployActions(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to restart Docker container", res.Message)
}

func TestRollback(t *testing.T) {
	f := newFixture(t, nil)
	mods := f.modules(t, "sale_extra", "stock_extra")
	snap, err := f.env.Backups().Create(mods)
	require.NoError(t, err)

	res := f.backend(t).Rollback(context.Background())
	require.True(t, res.Success, res.Message)

	lines := f.runner.CommandLines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], filepath.Join(snap, "sale_extra")+"/")
	assert.Contains(t, lines[1], filepath.Join(snap, "stock_extra")+"/")
	assert.Contains(t, lines[2], "docker compose restart odoo")
}

func TestRollbackWithoutSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	res := f.backend(t).Rollback(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, "No backups found for this target", res.Message)
	assert.Empty(t, f.runner.Calls)
}

func TestRollbackContinuesPastFailures(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.env.Backups().Create(f.modules(t, "sale_extra", "stock_extra"))
	require.NoError(t, err)
	f.runner.Handler = func(cmd execx.Command) (*execx.Result, error) {
		if cmd.Name == "rsync" && strings.Contains(cmd.Args[4], "sale_extra") {
			return &execx.Result{ExitCode: 12, Stderr: "protocol error"}, nil
		}
		return nil, nil
	}

	res := f.backend(t).Rollback(context.Background())
	assert.False(t, res.Success)
	restored, _ := res.Detail(deploy.DetailModules)
	assert.Equal(t, []string{"stock_extra"}, restored)
	assert.Equal(t, 1, f.runner.Count("restart"))
}

func TestExecuteThroughOrchestrator(t *testing.T) {
	f := newFixture(t, func(tg *config.Target, _ string) {
		tg.PostDeploy = config.PostDeployConfig{RestartService: true}
	})
	mods := f.modules(t, "sale_extra")
	f.runner.Missing = map[string]bool{"python3": true}
	f.runner.Handler = func(cmd execx.Command) (*execx.Result, error) {
		return &execx.Result{Stdout: "exists\nodoo\n"}, nil
	}

	o := deploy.NewOrchestrator(f.backend(t), f.env, deploy.Options{})
	res := o.Execute(context.Background(), mods)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Deployment to prod completed", res.Message)
	assert.Equal(t, 1, f.runner.Count("rsync"))

	snaps, err := f.env.Backups().List()
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}
