package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "addons", cfg.Modules.BasePath)
	require.NotNil(t, cfg.Modules.AutoDetect)
	assert.True(t, *cfg.Modules.AutoDetect)
	assert.True(t, cfg.Backup.IsEnabled())
	assert.Equal(t, 3, cfg.Backup.KeepLast)
	assert.Equal(t, ".rkd/deploy_backups", cfg.Backup.Path)
	assert.Equal(t, DefaultValidations(), cfg.Validations)
	assert.NotNil(t, cfg.Targets)
}

func TestBackupRetention(t *testing.T) {
	tests := []struct {
		keep int
		want int
	}{
		{0, DefaultKeepLast},
		{-2, 1},
		{1, 1},
		{10, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackupConfig{KeepLast: tt.keep}.Retention(), "keep_last=%d", tt.keep)
	}
}

func TestValidationPolicyEnabled(t *testing.T) {
	tests := []struct {
		name   string
		policy ValidationPolicy
		check  string
		want   bool
	}{
		{"nil policy disables", nil, CheckManifest, false},
		{"empty policy disables", ValidationPolicy{}, CheckManifest, false},
		{"absent key defaults to enabled", ValidationPolicy{CheckXMLSyntax: false}, CheckManifest, true},
		{"explicit false", ValidationPolicy{CheckXMLSyntax: false}, CheckXMLSyntax, false},
		{"explicit true", ValidationPolicy{CheckPythonSyntax: true}, CheckPythonSyntax, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Enabled(tt.check))
		})
	}
}

func TestWithDefaultsTargets(t *testing.T) {
	cfg := (&DeployConfig{
		Targets: map[string]*Target{
			"docker": {Type: TypeVPS, Connection: &Connection{Host: "h", User: "u"}},
			"legacy": {Type: "odoo-sh", OdooSH: &GitPushConfig{ProjectID: "7"}},
			"empty":  nil,
		},
	}).WithDefaults()

	d := cfg.Targets["docker"]
	assert.Equal(t, "docker", d.Name)
	assert.Equal(t, DeploymentDocker, d.DeploymentType)
	require.NotNil(t, d.Docker)
	assert.Equal(t, "odoo", d.Docker.ContainerName)
	assert.Equal(t, "odoo", d.Docker.ServiceName)
	assert.Equal(t, "/opt/odoo/addons", d.Docker.HostAddonsPath)
	assert.Equal(t, "docker compose", d.Docker.ComposeCommand)
	assert.Equal(t, "file", d.Connection.PasswordStore)

	l := cfg.Targets["legacy"]
	assert.Equal(t, TypeGitPush, l.Type)
	require.NotNil(t, l.GitPush)
	assert.Equal(t, "7", l.GitPush.ProjectID)
	assert.Nil(t, l.OdooSH)

	assert.NotNil(t, cfg.Targets["empty"])
}

func TestEffectivePolicies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modules.ExcludePatterns = []string{"*.pyc"}

	plain := &Target{Name: "plain"}
	override := &Target{
		Name:            "override",
		Backup:          &BackupConfig{Enabled: boolPtr(false), KeepLast: 9},
		Validations:     ValidationPolicy{CheckXMLSyntax: false},
		ExcludePatterns: []string{"*.log"},
	}

	assert.Equal(t, cfg.Backup, cfg.EffectiveBackup(plain))
	b := cfg.EffectiveBackup(override)
	assert.False(t, b.IsEnabled())
	assert.Equal(t, 9, b.KeepLast)
	assert.Equal(t, cfg.Backup.Path, b.Path)

	assert.Equal(t, cfg.Validations, cfg.EffectiveValidations(plain))
	assert.False(t, cfg.EffectiveValidations(override).Enabled(CheckXMLSyntax))

	assert.Equal(t, []string{"*.pyc"}, cfg.EffectiveExcludes(plain))
	assert.Equal(t, []string{"*.log"}, cfg.EffectiveExcludes(override))
}

func TestTargetDestination(t *testing.T) {
	cfg := (&DeployConfig{Targets: map[string]*Target{
		"vps": {Type: TypeVPS, Connection: &Connection{Host: "erp.example.com", User: "odoo"}},
		"git": {Type: TypeGitPush, GitPush: &GitPushConfig{ProjectID: "acme"}},
	}}).WithDefaults()

	assert.Equal(t, "odoo@erp.example.com", cfg.Targets["vps"].Destination())
	assert.Equal(t, "acme (main)", cfg.Targets["git"].Destination())
	assert.True(t, cfg.Targets["vps"].IsEnabled())
}
