// Package vps deploys modules to a server reachable over SSH. Files travel
// with rsync; remote actions run as one ssh invocation each.
package vps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/deploy"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/secrets"
	"github.com/rocketdoo/rkd/internal/sshkeys"
)

const (
	authSSHKey   = "ssh_key"
	authPassword = "password"
)

// Timeouts for remote operations.
const (
	EchoTimeout  = 30 * time.Second
	SSHTimeout   = 300 * time.Second
	RsyncTimeout = 600 * time.Second
)

// Backend deploys to a VPS target.
type Backend struct {
	env    *deploy.Env
	target *config.Target
	conn   *config.Connection
	log    *deploy.Journal
	runner execx.Runner

	auth     string
	password string
	pwErr    error
	pwDone   bool

	deployed []string
}

// New returns a backend for env.Target. A target configuring both an SSH key
// and a password is rejected before anything is run.
func New(env *deploy.Env) (*Backend, error) {
	t := env.Target
	if t == nil || t.Connection == nil {
		return nil, oerrors.NewValidationError("missing connection settings", "", "connection", "")
	}
	conn := t.Connection
	if conn.SSHKey != "" && conn.HasPassword() {
		return nil, oerrors.NewValidationError(
			"Invalid configuration: both ssh_key and password defined",
			"", "targets."+t.Name+".connection",
			"keep either ssh_key or password",
		)
	}

	b := &Backend{
		env:    env,
		target: t,
		conn:   conn,
		log:    env.Journal,
		runner: env.Runner,
	}
	switch {
	case conn.SSHKey != "":
		b.auth = authSSHKey
	case conn.HasPassword() || conn.AuthMethod == authPassword:
		b.auth = authPassword
	}
	return b, nil
}

// Name returns the target name.
func (b *Backend) Name() string { return b.target.Name }

// Kind returns config.TypeVPS.
func (b *Backend) Kind() config.TargetType { return config.TypeVPS }

// Destination returns user@host:path.
func (b *Backend) Destination() string {
	return b.address() + ":" + b.remoteRoot()
}

// AuthMethod returns "ssh_key", "password" or "" when none is configured.
func (b *Backend) AuthMethod() string { return b.auth }

// ValidateConfig reports every configuration problem of the target.
func (b *Backend) ValidateConfig(_ context.Context) []string {
	var errs []string
	c := b.conn

	if c.Host == "" {
		errs = append(errs, "Missing 'connection.host'")
	}
	if c.User == "" {
		errs = append(errs, "Missing 'connection.user'")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("Invalid 'connection.port': %d", c.Port))
	}

	switch b.auth {
	case authSSHKey:
		if err := sshkeys.Validate(c.SSHKey); err != nil {
			errs = append(errs, err.Error())
		}
	case authPassword:
		if err := b.passwordSource(); err != nil {
			errs = append(errs, "Password authentication selected but no password available: "+err.Error())
		} else if !execx.Available(b.runner, "sshpass") {
			errs = append(errs, "Password authentication requires 'sshpass'. Install it with: sudo apt install sshpass")
		}
	default:
		errs = append(errs, "No authentication method defined (ssh_key or password required)")
	}

	for _, tool := range []string{"ssh", "rsync"} {
		if !execx.Available(b.runner, tool) {
			errs = append(errs, fmt.Sprintf("Required tool '%s' not found in PATH", tool))
		}
	}

	// Docker and native settings are always filled in by the config
	// defaults, so only the mechanism itself can be wrong here.
	if dt := b.target.DeploymentType; dt != config.DeploymentDocker && dt != config.DeploymentNative {
		errs = append(errs, "Invalid deployment_type: "+dt)
	}
	return errs
}

// PreDeployCheck resolves the SSH password when needed, then verifies the
// SSH round trip, the destination directory and, for containers, the docker
// runtime.
func (b *Backend) PreDeployCheck(ctx context.Context) bool {
	if b.auth == authPassword {
		if _, err := b.credentials(); err != nil {
			b.log.Error("No SSH password available", "error", err)
			return false
		}
	}

	b.log.Info("Testing SSH connection...")
	res, err := b.ssh(ctx, "echo 'Connection successful'", EchoTimeout)
	if err != nil {
		b.log.Error("SSH connection failed", "error", err)
		return false
	}
	if !res.OK() {
		b.log.Error("SSH connection failed", "error", res.Output())
		return false
	}
	b.log.Success("SSH connection established")

	dest := shellquote.Join(b.remoteRoot())
	res, err = b.ssh(ctx, "test -d "+dest+" && echo exists", SSHTimeout)
	if err != nil {
		b.log.Error("Checking remote path failed", "error", err)
		return false
	}
	if !strings.Contains(res.Stdout, "exists") {
		b.log.Warning("Remote path does not exist, creating it", "path", b.remoteRoot())
		res, err = b.ssh(ctx, "mkdir -p "+dest+" || sudo -n mkdir -p "+dest, SSHTimeout)
		if err != nil || !res.OK() {
			b.log.Error("Failed to create remote path", "path", b.remoteRoot(), "error", failure(res, err))
			return false
		}
	}

	if b.target.DeploymentType != config.DeploymentDocker {
		return true
	}

	res, err = b.ssh(ctx, "docker --version", SSHTimeout)
	if err != nil || !res.OK() {
		b.log.Error("Docker not found on remote server", "error", failure(res, err))
		return false
	}
	b.log.Success("Docker available")

	name := b.target.Docker.ContainerName
	res, err = b.ssh(ctx, "docker ps -a --filter name="+shellquote.Join(name)+" --format '{{.Names}}'", SSHTimeout)
	if err != nil || !containsLine(res.Stdout, name) {
		b.log.Warning(fmt.Sprintf("Container '%s' not found", name))
	}
	return true
}

// DeployModules stages the modules and mirrors each one to the destination.
func (b *Backend) DeployModules(ctx context.Context, mods []*module.Module) *deploy.Result {
	b.deployed = nil

	b.log.Info(fmt.Sprintf("Preparing %d modules...", len(mods)))
	staging, err := b.env.Packager().PrepareModules(mods)
	if err != nil {
		return deploy.Failedf("Failed to prepare modules: %v", err)
	}
	defer os.RemoveAll(staging)

	root := b.remoteRoot()
	b.log.Info("Transferring modules", "host", b.conn.Host, "path", root)
	for _, m := range mods {
		if err := b.upload(ctx, filepath.Join(staging, m.Name), path.Join(root, m.Name)); err != nil {
			b.log.Error("Upload failed", "module", m.Name, "error", err)
			return deploy.Failedf("Failed to upload module: %s", m.Name).
				With(deploy.DetailErrors, []string{err.Error()})
		}
		b.deployed = append(b.deployed, m.Name)
		b.log.Success("Uploaded " + m.Name)
	}

	b.log.Success("All modules transferred successfully")
	return deploy.Succeeded("Modules deployed successfully", map[string]any{
		deploy.DetailModules: append([]string(nil), b.deployed...),
	})
}

// PostDeployActions restarts the service, updates modules and runs custom
// commands as configured. Custom command failures are logged only.
func (b *Backend) PostDeployActions(ctx context.Context) *deploy.Result {
	pd := b.target.PostDeploy

	if pd.RestartService {
		b.log.Info("Restarting Odoo service...")
		if err := b.restart(ctx); err != nil {
			b.log.Error("Restart failed", "error", err)
			if b.target.DeploymentType == config.DeploymentDocker {
				return deploy.Failed("Failed to restart Docker container", nil)
			}
			return deploy.Failed("Failed to restart Odoo service", nil)
		}
		b.log.Success("Service restarted")
	}

	if pd.UpdateModules {
		b.log.Info("Updating modules in Odoo...")
		res, err := b.ssh(ctx, b.updateCommand(), SSHTimeout)
		if err != nil || !res.OK() {
			b.log.Warning("Module update had issues", "error", failure(res, err))
		} else {
			b.log.Success("Modules updated")
		}
	}

	if n := len(pd.CustomCommands); n > 0 {
		b.log.Info(fmt.Sprintf("Running %d custom commands...", n))
		for _, c := range pd.CustomCommands {
			b.log.Info("Executing: " + c)
			res, err := b.ssh(ctx, c, SSHTimeout)
			if err != nil || !res.OK() {
				b.log.Warning("Command failed", "command", c, "error", failure(res, err))
				continue
			}
			b.log.Success("Command completed", "command", c)
		}
	}

	return deploy.Succeeded("Post-deploy actions completed", nil)
}

// Rollback re-uploads every module of the newest snapshot and restarts the
// service. A module that fails to upload does not stop the others.
func (b *Backend) Rollback(ctx context.Context) *deploy.Result {
	b.log.Warning("Initiating rollback...")

	snap, err := b.env.Backups().Latest()
	if err != nil {
		b.log.Error("No backup available", "error", err)
		return deploy.Failed("No backups found for this target", map[string]any{
			deploy.DetailErrors: []string{err.Error()},
		})
	}
	b.log.Info("Restoring from backup: " + snap.Name)

	entries, err := os.ReadDir(snap.Path)
	if err != nil {
		return deploy.Failedf("Reading backup %s: %v", snap.Name, err)
	}

	var restored, errs []string
	root := b.remoteRoot()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := b.upload(ctx, filepath.Join(snap.Path, e.Name()), path.Join(root, e.Name())); err != nil {
			b.log.Error("Failed to restore module", "module", e.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", e.Name(), err))
			continue
		}
		restored = append(restored, e.Name())
	}

	if err := b.restart(ctx); err != nil {
		b.log.Warning("Restart after rollback failed", "error", err)
	}

	details := map[string]any{"snapshot": snap.Name, deploy.DetailModules: restored}
	if len(errs) > 0 {
		details[deploy.DetailErrors] = errs
		return deploy.Failed("Rollback completed with errors", details)
	}
	b.log.Success("Rollback completed")
	return deploy.Succeeded("Rollback completed successfully", details)
}

func (b *Backend) address() string {
	return b.conn.User + "@" + b.conn.Host
}

// remoteRoot is the host directory module folders are synced into.
func (b *Backend) remoteRoot() string {
	if b.target.DeploymentType == config.DeploymentNative && b.target.Native != nil {
		return b.target.Native.AddonsPath
	}
	if b.target.Docker != nil {
		return b.target.Docker.HostAddonsPath
	}
	return ""
}

// passwordSource checks that a password can be resolved without prompting
// or writing to the secrets store.
func (b *Backend) passwordSource() error {
	store, err := b.env.SecretStore()
	if err != nil {
		return err
	}
	return secrets.Available(b.conn.Password, b.target.Name, store, b.env.Prompt)
}

// credentials returns the SSH password, resolving it once from the config,
// the secrets store or a prompt.
func (b *Backend) credentials() (string, error) {
	if b.pwDone {
		return b.password, b.pwErr
	}
	b.pwDone = true

	if b.conn.PasswordVar != "" && b.conn.Password == "" {
		b.log.Warning(fmt.Sprintf("Environment variable %s not set", b.conn.PasswordVar))
	}
	store, err := b.env.SecretStore()
	if err != nil {
		b.pwErr = err
		return "", err
	}
	pw, saved, err := secrets.Resolve(b.conn.Password, b.target.Name, store, b.env.Prompt)
	if err != nil {
		b.pwErr = err
		return "", err
	}
	if saved {
		b.log.Success("Password stored at " + store.Location(b.target.Name))
	}
	b.password = pw
	return pw, nil
}

func (b *Backend) sshOptions() []string {
	opts := []string{
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=15",
		"-p", strconv.Itoa(b.conn.Port),
	}
	if b.auth == authSSHKey {
		key, err := config.ExpandPath(b.conn.SSHKey)
		if err != nil {
			key = b.conn.SSHKey
		}
		opts = append(opts, "-i", key)
	}
	return opts
}

// command wraps name and args with sshpass when password auth is active.
// The password reaches sshpass through its environment.
func (b *Backend) command(name string, args []string, timeout time.Duration, op string) (execx.Command, error) {
	cmd := execx.Command{Name: name, Args: args, Timeout: timeout, Op: op}
	if b.auth != authPassword {
		return cmd, nil
	}
	pw, err := b.credentials()
	if err != nil {
		return cmd, err
	}
	cmd.Args = append([]string{"-e", name}, args...)
	cmd.Name = "sshpass"
	cmd.Env = []string{"SSHPASS=" + pw}
	return cmd, nil
}

func (b *Backend) ssh(ctx context.Context, script string, timeout time.Duration) (*execx.Result, error) {
	args := append(b.sshOptions(), b.address(), script)
	cmd, err := b.command("ssh", args, timeout, "ssh "+b.conn.Host)
	if err != nil {
		return nil, err
	}
	return b.runner.Run(ctx, cmd)
}

// upload mirrors local into remote, deleting remote files missing locally.
func (b *Backend) upload(ctx context.Context, local, remote string) error {
	args := []string{
		"-az", "--delete",
		"-e", "ssh " + shellquote.Join(b.sshOptions()...),
		strings.TrimRight(local, "/") + "/",
		b.address() + ":" + strings.TrimRight(remote, "/") + "/",
	}
	cmd, err := b.command("rsync", args, RsyncTimeout, "rsync "+path.Base(remote))
	if err != nil {
		return err
	}
	res, err := b.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("rsync failed: %s", res.Output())
	}
	return nil
}

func (b *Backend) restart(ctx context.Context) error {
	var script string
	if b.target.DeploymentType == config.DeploymentDocker {
		d := b.target.Docker
		script = fmt.Sprintf("cd %s && %s restart %s",
			shellquote.Join(d.ComposePath), d.ComposeCommand, shellquote.Join(d.ServiceName))
	} else {
		script = "sudo systemctl restart " + shellquote.Join(b.target.Native.ServiceName)
	}
	res, err := b.ssh(ctx, script, SSHTimeout)
	if err != nil {
		return err
	}
	if !res.OK() {
		return errors.New(res.Output())
	}
	return nil
}

// updateCommand builds the remote module update invocation. It updates the
// modules of the last transfer, or everything when update_all is set or
// nothing was transferred in this run.
func (b *Backend) updateCommand() string {
	pd := b.target.PostDeploy
	mods := "all"
	if !pd.UpdateAll && len(b.deployed) > 0 {
		mods = strings.Join(b.deployed, ",")
	}

	var args []string
	if b.target.DeploymentType == config.DeploymentDocker {
		d := b.target.Docker
		args = []string{"docker", "exec", d.ContainerName, "odoo", "-c", d.ConfigFile}
	} else {
		n := b.target.Native
		args = []string{n.PythonEnv, path.Join(n.OdooPath, "odoo-bin"), "-c", n.ConfigFile}
	}
	args = append(args, "-u", mods, "--stop-after-init")
	if pd.Database != "" {
		args = append(args, "-d", pd.Database)
	}
	return shellquote.Join(args...)
}

func failure(res *execx.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	return res.Output()
}

func containsLine(out, want string) bool {
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) == want {
			return true
		}
	}
	return false
}
