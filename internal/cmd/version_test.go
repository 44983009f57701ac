package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketdoo/rkd/internal/cmdtypes"
	"github.com/rocketdoo/rkd/internal/execx"
)

func TestNewVersionCmd(t *testing.T) {
	cmd := NewVersionCmd(&cmdtypes.GlobalConfig{})

	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
}

func TestVersionCmd_Execute(t *testing.T) {
	runner := &execx.FakeRunner{
		Missing: map[string]bool{"sshpass": true},
		Handler: func(c execx.Command) (*execx.Result, error) {
			switch c.Name {
			case "/usr/bin/git":
				return &execx.Result{Stdout: "git version 2.43.0\n"}, nil
			case "/usr/bin/rsync":
				return &execx.Result{Stdout: "rsync  version 2.6.9  protocol version 29\n"}, nil
			case "/usr/bin/ssh":
				return &execx.Result{Stderr: "OpenSSH_9.6p1 Ubuntu-3ubuntu13, OpenSSL 3.0.13\n"}, nil
			}
			return &execx.Result{Stdout: "tool 1.0.0\n"}, nil
		},
	}
	cmd := NewVersionCmd(&cmdtypes.GlobalConfig{Runner: runner})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "rkd version")
	assert.Contains(t, s, "2.43.0")
	assert.Contains(t, s, "9.6.1")
	assert.Contains(t, s, "older than required 3.0.0")
	assert.Contains(t, s, "needed for vps password auth")
	assert.Zero(t, runner.Count("sshpass"))
}

func TestRootCmd_Flags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"project", "config", "verbose", "timestamps"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "C", root.PersistentFlags().Lookup("project").Shorthand)
	assert.Equal(t, "v", root.PersistentFlags().Lookup("verbose").Shorthand)

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["deploy"])
	assert.True(t, names["version"])
}

func TestRootCmd_ResolvesProject(t *testing.T) {
	dir := t.TempDir()
	cfg := &cmdtypes.GlobalConfig{Runner: &execx.FakeRunner{}}
	root := newRootCmd(cfg)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"-C", dir, "--config", "custom.yaml", "version"})

	require.NoError(t, root.Execute())
	require.NotNil(t, cfg.Resolved)
	assert.Equal(t, dir, cfg.Resolved.Paths.Root)
	assert.Equal(t, filepath.Join(dir, "custom.yaml"), cfg.Resolved.Paths.ConfigFile)
}
