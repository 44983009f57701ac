// Package config loads, validates and edits the deployment configuration
// (.rkd/deploy.yaml) of a project.
package config

import (
	"sort"
	"strings"
)

// TargetType selects the deployment backend of a target.
type TargetType string

const (
	// TypeVPS deploys over SSH and rsync to a host.
	TypeVPS TargetType = "vps"

	// TypeGitPush commits modules to a repository watched by a build platform.
	TypeGitPush TargetType = "git-push"

	// typeOdooSH is the legacy name of TypeGitPush.
	typeOdooSH TargetType = "odoo-sh"
)

// Deployment mechanisms of a VPS target.
const (
	DeploymentDocker = "docker"
	DeploymentNative = "native"
)

// Validation check names.
const (
	CheckManifest     = "check_manifest"
	CheckPythonSyntax = "check_python_syntax"
	CheckXMLSyntax    = "check_xml_syntax"
)

// Defaults applied by WithDefaults.
const (
	DefaultBasePath   = "addons"
	DefaultKeepLast   = 3
	DefaultBackupPath = ".rkd/deploy_backups"
	DefaultSSHPort    = 22
	DefaultBranch     = "main"
	DefaultGitRemote  = "origin"
)

// DeployConfig is the content of .rkd/deploy.yaml.
type DeployConfig struct {
	Modules     ModulesConfig      `mapstructure:"modules" yaml:"modules" json:"modules"`
	Targets     map[string]*Target `mapstructure:"targets" yaml:"targets" json:"targets"`
	Backup      BackupConfig       `mapstructure:"backup" yaml:"backup" json:"backup"`
	Validations ValidationPolicy   `mapstructure:"validations" yaml:"validations" json:"validations"`

	// Path is the file the configuration was loaded from.
	Path string `mapstructure:"-" yaml:"-" json:"-"`

	// Loaded is false when no file existed and defaults were used.
	Loaded bool `mapstructure:"-" yaml:"-" json:"-"`

	// Unresolved maps field paths to ${VAR} placeholders whose variable was
	// not set at load time.
	Unresolved map[string]string `mapstructure:"-" yaml:"-" json:"-"`
}

// ModulesConfig controls module discovery and packaging.
type ModulesConfig struct {
	BasePath        string   `mapstructure:"base_path" yaml:"base_path" json:"base_path"`
	AutoDetect      *bool    `mapstructure:"auto_detect" yaml:"auto_detect,omitempty" json:"auto_detect,omitempty"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns,omitempty" json:"exclude_patterns,omitempty"`
	ScanExclude     []string `mapstructure:"scan_exclude" yaml:"scan_exclude,omitempty" json:"scan_exclude,omitempty"`
}

// BackupConfig is the snapshot policy.
type BackupConfig struct {
	Enabled  *bool  `mapstructure:"enabled" yaml:"enabled,omitempty" json:"enabled,omitempty"`
	KeepLast int    `mapstructure:"keep_last" yaml:"keep_last,omitempty" json:"keep_last,omitempty"`
	Path     string `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
}

// IsEnabled reports whether backups are taken (default true).
func (b BackupConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// Retention returns how many snapshots per target are kept. Values below
// one keep one, so the snapshot just taken is never pruned.
func (b BackupConfig) Retention() int {
	switch {
	case b.KeepLast == 0:
		return DefaultKeepLast
	case b.KeepLast < 1:
		return 1
	default:
		return b.KeepLast
	}
}

// ValidationPolicy names the module checks to run. An empty policy runs no
// checks; a check absent from a non-empty policy runs.
type ValidationPolicy map[string]bool

// Enabled reports whether check runs under this policy.
func (p ValidationPolicy) Enabled(check string) bool {
	if len(p) == 0 {
		return false
	}
	v, ok := p[check]
	return !ok || v
}

// DefaultValidations enables every check.
func DefaultValidations() ValidationPolicy {
	return ValidationPolicy{
		CheckManifest:     true,
		CheckPythonSyntax: true,
		CheckXMLSyntax:    true,
	}
}

// Target is a named deployment destination.
type Target struct {
	Name string `mapstructure:"-" yaml:"-" json:"name"`

	Type        TargetType `mapstructure:"type" yaml:"type" json:"type"`
	Enabled     *bool      `mapstructure:"enabled" yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Description string     `mapstructure:"description" yaml:"description,omitempty" json:"description,omitempty"`

	DeploymentType string         `mapstructure:"deployment_type" yaml:"deployment_type,omitempty" json:"deployment_type,omitempty"`
	Connection     *Connection    `mapstructure:"connection" yaml:"connection,omitempty" json:"connection,omitempty"`
	Docker         *DockerConfig  `mapstructure:"docker" yaml:"docker,omitempty" json:"docker,omitempty"`
	Native         *NativeConfig  `mapstructure:"native" yaml:"native,omitempty" json:"native,omitempty"`
	GitPush        *GitPushConfig `mapstructure:"git_push" yaml:"git_push,omitempty" json:"git_push,omitempty"`
	OdooSH         *GitPushConfig `mapstructure:"odoo_sh" yaml:"odoo_sh,omitempty" json:"-"`

	PostDeploy      PostDeployConfig `mapstructure:"post_deploy" yaml:"post_deploy,omitempty" json:"post_deploy"`
	Backup          *BackupConfig    `mapstructure:"backup" yaml:"backup,omitempty" json:"backup,omitempty"`
	Validations     ValidationPolicy `mapstructure:"validations" yaml:"validations,omitempty" json:"validations,omitempty"`
	ExcludePatterns []string         `mapstructure:"exclude_patterns" yaml:"exclude_patterns,omitempty" json:"exclude_patterns,omitempty"`

	RequireConfirmation bool `mapstructure:"require_confirmation" yaml:"require_confirmation,omitempty" json:"require_confirmation,omitempty"`
	RequireGitTag       bool `mapstructure:"require_git_tag" yaml:"require_git_tag,omitempty" json:"require_git_tag,omitempty"`
}

// Connection holds SSH connection parameters of a VPS target.
type Connection struct {
	Host       string `mapstructure:"host" yaml:"host" json:"host"`
	Port       int    `mapstructure:"port" yaml:"port,omitempty" json:"port,omitempty"`
	User       string `mapstructure:"user" yaml:"user" json:"user"`
	AuthMethod string `mapstructure:"auth_method" yaml:"auth_method,omitempty" json:"auth_method,omitempty"`
	SSHKey     string `mapstructure:"ssh_key" yaml:"ssh_key,omitempty" json:"ssh_key,omitempty"`
	Password   string `mapstructure:"password" yaml:"password,omitempty" json:"-"`

	// PasswordStore selects where prompted passwords are kept: "file"
	// (default) or "keyring".
	PasswordStore string `mapstructure:"password_store" yaml:"password_store,omitempty" json:"password_store,omitempty"`

	// PasswordVar is the variable named by a ${VAR} password placeholder.
	PasswordVar string `mapstructure:"-" yaml:"-" json:"password_var,omitempty"`
}

// HasPassword reports whether a password or password placeholder was
// configured.
func (c *Connection) HasPassword() bool {
	return c != nil && (c.Password != "" || c.PasswordVar != "")
}

// DockerConfig describes a containerized installation.
type DockerConfig struct {
	ContainerName  string `mapstructure:"container_name" yaml:"container_name,omitempty" json:"container_name,omitempty"`
	ServiceName    string `mapstructure:"service_name" yaml:"service_name,omitempty" json:"service_name,omitempty"`
	ComposePath    string `mapstructure:"compose_path" yaml:"compose_path,omitempty" json:"compose_path,omitempty"`
	ComposeCommand string `mapstructure:"compose_command" yaml:"compose_command,omitempty" json:"compose_command,omitempty"`
	AddonsMount    string `mapstructure:"addons_mount" yaml:"addons_mount,omitempty" json:"addons_mount,omitempty"`
	HostAddonsPath string `mapstructure:"host_addons_path" yaml:"host_addons_path,omitempty" json:"host_addons_path,omitempty"`
	ConfigFile     string `mapstructure:"config_file" yaml:"config_file,omitempty" json:"config_file,omitempty"`
}

// NativeConfig describes an installation run as a system service.
type NativeConfig struct {
	OdooPath    string `mapstructure:"odoo_path" yaml:"odoo_path,omitempty" json:"odoo_path,omitempty"`
	AddonsPath  string `mapstructure:"addons_path" yaml:"addons_path,omitempty" json:"addons_path,omitempty"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name,omitempty" json:"service_name,omitempty"`
	PythonEnv   string `mapstructure:"python_env" yaml:"python_env,omitempty" json:"python_env,omitempty"`
	ConfigFile  string `mapstructure:"config_file" yaml:"config_file,omitempty" json:"config_file,omitempty"`
}

// GitPushConfig describes a repository-backed platform target.
type GitPushConfig struct {
	ProjectID   string `mapstructure:"project_id" yaml:"project_id" json:"project_id"`
	Branch      string `mapstructure:"branch" yaml:"branch,omitempty" json:"branch,omitempty"`
	APIToken    string `mapstructure:"api_token" yaml:"api_token,omitempty" json:"-"`
	GitRemote   string `mapstructure:"git_remote" yaml:"git_remote,omitempty" json:"git_remote,omitempty"`
	GitURL      string `mapstructure:"git_url" yaml:"git_url,omitempty" json:"git_url,omitempty"`
	InstanceURL string `mapstructure:"instance_url" yaml:"instance_url,omitempty" json:"instance_url,omitempty"`
}

// PostDeployConfig lists follow-up actions after a transfer.
type PostDeployConfig struct {
	RestartService bool     `mapstructure:"restart_service" yaml:"restart_service,omitempty" json:"restart_service,omitempty"`
	UpdateModules  bool     `mapstructure:"update_modules" yaml:"update_modules,omitempty" json:"update_modules,omitempty"`
	UpdateAll      bool     `mapstructure:"update_all" yaml:"update_all,omitempty" json:"update_all,omitempty"`
	Database       string   `mapstructure:"database" yaml:"database,omitempty" json:"database,omitempty"`
	CustomCommands []string `mapstructure:"custom_commands" yaml:"custom_commands,omitempty" json:"custom_commands,omitempty"`
	WaitForBuild   bool     `mapstructure:"wait_for_build" yaml:"wait_for_build,omitempty" json:"wait_for_build,omitempty"`
	OpenBrowser    bool     `mapstructure:"open_browser" yaml:"open_browser,omitempty" json:"open_browser,omitempty"`
}

// IsEnabled reports whether the target accepts deployments (default true).
func (t *Target) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Destination returns a short human description of where modules go.
func (t *Target) Destination() string {
	switch t.Type {
	case TypeVPS:
		if t.Connection == nil {
			return ""
		}
		return t.Connection.User + "@" + t.Connection.Host
	case TypeGitPush:
		if t.GitPush == nil {
			return ""
		}
		return t.GitPush.ProjectID + " (" + t.GitPush.Branch + ")"
	default:
		return ""
	}
}

// EffectiveBackup returns the target backup policy merged over global.
func (c *DeployConfig) EffectiveBackup(t *Target) BackupConfig {
	b := c.Backup
	if t == nil || t.Backup == nil {
		return b
	}
	if t.Backup.Enabled != nil {
		b.Enabled = t.Backup.Enabled
	}
	if t.Backup.KeepLast != 0 {
		b.KeepLast = t.Backup.KeepLast
	}
	if t.Backup.Path != "" {
		b.Path = t.Backup.Path
	}
	return b
}

// EffectiveValidations returns the target policy when set, else the global
// one.
func (c *DeployConfig) EffectiveValidations(t *Target) ValidationPolicy {
	if t != nil && t.Validations != nil {
		return t.Validations
	}
	return c.Validations
}

// EffectiveExcludes returns target exclude patterns when set, else the
// global module exclude patterns.
func (c *DeployConfig) EffectiveExcludes(t *Target) []string {
	if t != nil && len(t.ExcludePatterns) > 0 {
		return t.ExcludePatterns
	}
	return c.Modules.ExcludePatterns
}

// TargetNames returns target names sorted.
func (c *DeployConfig) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for n := range c.Targets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Target returns the named target.
func (c *DeployConfig) Target(name string) (*Target, bool) {
	t, ok := c.Targets[strings.ToLower(name)]
	if !ok {
		t, ok = c.Targets[name]
	}
	return t, ok
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *DeployConfig {
	return (&DeployConfig{}).WithDefaults()
}

// WithDefaults fills unset fields and normalizes targets in place.
func (c *DeployConfig) WithDefaults() *DeployConfig {
	if c.Modules.BasePath == "" {
		c.Modules.BasePath = DefaultBasePath
	}
	if c.Modules.AutoDetect == nil {
		t := true
		c.Modules.AutoDetect = &t
	}
	if c.Backup.KeepLast == 0 {
		c.Backup.KeepLast = DefaultKeepLast
	}
	if c.Backup.Path == "" {
		c.Backup.Path = DefaultBackupPath
	}
	if c.Validations == nil {
		c.Validations = DefaultValidations()
	}
	if c.Targets == nil {
		c.Targets = map[string]*Target{}
	}
	for name, t := range c.Targets {
		if t == nil {
			t = &Target{}
			c.Targets[name] = t
		}
		t.Name = name
		t.applyDefaults()
	}
	return c
}

func (t *Target) applyDefaults() {
	if t.Type == typeOdooSH {
		t.Type = TypeGitPush
	}
	if t.GitPush == nil && t.OdooSH != nil {
		t.GitPush = t.OdooSH
	}
	t.OdooSH = nil

	switch t.Type {
	case TypeVPS:
		if t.DeploymentType == "" {
			t.DeploymentType = DeploymentDocker
		}
		if t.Connection == nil {
			t.Connection = &Connection{}
		}
		if t.Connection.Port == 0 {
			t.Connection.Port = DefaultSSHPort
		}
		if t.Connection.PasswordStore == "" {
			t.Connection.PasswordStore = "file"
		}
		if t.DeploymentType == DeploymentDocker {
			if t.Docker == nil {
				t.Docker = &DockerConfig{}
			}
			t.Docker.applyDefaults()
		} else {
			if t.Native == nil {
				t.Native = &NativeConfig{}
			}
			t.Native.applyDefaults()
		}
	case TypeGitPush:
		if t.GitPush == nil {
			t.GitPush = &GitPushConfig{}
		}
		if t.GitPush.Branch == "" {
			t.GitPush.Branch = DefaultBranch
		}
		if t.GitPush.GitRemote == "" {
			t.GitPush.GitRemote = DefaultGitRemote
		}
	}
}

func (d *DockerConfig) applyDefaults() {
	if d.ContainerName == "" {
		d.ContainerName = "odoo"
	}
	if d.ServiceName == "" {
		d.ServiceName = d.ContainerName
	}
	if d.ComposePath == "" {
		d.ComposePath = "/opt/odoo"
	}
	if d.ComposeCommand == "" {
		d.ComposeCommand = "docker compose"
	}
	if d.AddonsMount == "" {
		d.AddonsMount = "/mnt/extra-addons"
	}
	if d.HostAddonsPath == "" {
		d.HostAddonsPath = strings.TrimRight(d.ComposePath, "/") + "/addons"
	}
	if d.ConfigFile == "" {
		d.ConfigFile = "/etc/odoo/odoo.conf"
	}
}

func (n *NativeConfig) applyDefaults() {
	if n.OdooPath == "" {
		n.OdooPath = "/opt/odoo"
	}
	if n.AddonsPath == "" {
		n.AddonsPath = strings.TrimRight(n.OdooPath, "/") + "/custom_addons"
	}
	if n.ServiceName == "" {
		n.ServiceName = "odoo"
	}
	if n.PythonEnv == "" {
		n.PythonEnv = "python3"
	}
	if n.ConfigFile == "" {
		n.ConfigFile = strings.TrimRight(n.OdooPath, "/") + "/odoo.conf"
	}
}
