// Package gitpush deploys modules by committing them to the root of a Git
// repository and pushing the branch the hosting platform builds from.
package gitpush

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/rocketdoo/rkd/internal/config"
	"github.com/rocketdoo/rkd/internal/deploy"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/execx"
	"github.com/rocketdoo/rkd/internal/module"
)

// ManagedMarker marks module directories written by rkd. Directories without
// it are never replaced.
const ManagedMarker = ".rkd_managed"

// Timeouts for git operations.
const (
	ReachTimeout = 60 * time.Second
	CloneTimeout = 300 * time.Second
	PushTimeout  = 300 * time.Second
	GitTimeout   = 60 * time.Second
)

// tokenUser is the user name sent with an API token over HTTPS.
const tokenUser = "x-access-token"

// Backend deploys to a git-push target.
type Backend struct {
	env    *deploy.Env
	target *config.Target
	cfg    *config.GitPushConfig
	log    *deploy.Journal
	runner execx.Runner

	ident *Identity

	// attempted and pushed track the transfer of this run so rollback never
	// reverts a commit that is not ours.
	attempted bool
	pushed    bool

	// OpenURL launches a browser. Tests replace it.
	OpenURL func(string) error
}

// New returns a backend for env.Target.
func New(env *deploy.Env) (*Backend, error) {
	t := env.Target
	if t == nil || t.GitPush == nil {
		return nil, oerrors.NewValidationError("missing git_push settings", "", "git_push", "")
	}
	return &Backend{
		env:     env,
		target:  t,
		cfg:     t.GitPush,
		log:     env.Journal,
		runner:  env.Runner,
		OpenURL: browser.OpenURL,
	}, nil
}

// Name returns the target name.
func (b *Backend) Name() string { return b.target.Name }

// Kind returns config.TypeGitPush.
func (b *Backend) Kind() config.TargetType { return config.TypeGitPush }

// Destination returns the remote URL without credentials, or the project
// and branch when no URL is configured.
func (b *Backend) Destination() string {
	if b.cfg.GitURL == "" {
		return b.target.Destination()
	}
	return redact(b.cfg.GitURL) + " (" + b.cfg.Branch + ")"
}

// InstanceURL returns the URL of the instance built from the branch.
func (b *Backend) InstanceURL() string {
	if b.cfg.InstanceURL != "" {
		return b.cfg.InstanceURL
	}
	return fmt.Sprintf("https://%s-%s.odoo.com", b.cfg.ProjectID, b.cfg.Branch)
}

// ValidateConfig reports every configuration problem of the target.
func (b *Backend) ValidateConfig(_ context.Context) []string {
	var errs []string
	if b.cfg.ProjectID == "" {
		errs = append(errs, "Missing 'git_push.project_id'")
	}
	if b.cfg.Branch == "" {
		errs = append(errs, "Missing 'git_push.branch'")
	}
	if b.cfg.GitURL == "" && b.cfg.APIToken == "" {
		errs = append(errs, "Either 'git_url' or 'api_token' must be configured")
	}
	if !execx.Available(b.runner, "git") {
		errs = append(errs, "Git is not installed or not available in PATH")
	}
	return errs
}

// PreDeployCheck verifies the git identity, the tagged release guard and
// access to the remote.
func (b *Backend) PreDeployCheck(ctx context.Context) bool {
	b.log.Info("Checking Git configuration...")
	ident, err := LoadIdentity()
	if err != nil {
		b.log.Error("Reading git configuration failed", "error", err)
		return false
	}
	if ident.Name == "" {
		b.log.Error("Git user.name not configured")
		return false
	}
	if ident.Email == "" {
		b.log.Error("Git user.email not configured")
		return false
	}
	b.ident = ident
	b.log.Success("Git configured", "user", ident.Name)

	if b.target.RequireGitTag {
		tag, err := HeadTag(b.env.Paths.Root)
		if err != nil {
			b.log.Error("Tagged release required", "error", err)
			return false
		}
		b.log.Success("Project HEAD is tagged " + tag)
	}

	if b.cfg.GitURL == "" {
		return true
	}

	b.log.Info("Testing access to " + redact(b.cfg.GitURL) + "...")
	reach, err := os.MkdirTemp("", "rkd_reach_")
	if err != nil {
		b.log.Error("Creating check directory failed", "error", err)
		return false
	}
	defer os.RemoveAll(reach)

	res, err := b.git(ctx, "", ReachTimeout,
		"clone", "--depth", "1", "--branch", b.cfg.Branch, b.remoteURL(), filepath.Join(reach, "repo"))
	switch {
	case err != nil:
		b.log.Error("Repository access failed", "error", err)
		return false
	case res.OK():
		b.log.Success("Repository accessible")
	case strings.Contains(strings.ToLower(res.Stderr), "not found"):
		b.log.Warning(fmt.Sprintf("Branch '%s' doesn't exist yet (will be created)", b.cfg.Branch))
	default:
		b.log.Error("Failed to access repository", "error", res.Output())
		return false
	}
	return true
}

// DeployModules commits the modules to a fresh working copy and pushes it.
// Existing directories without the managed marker are left untouched.
func (b *Backend) DeployModules(ctx context.Context, mods []*module.Module) *deploy.Result {
	b.attempted = true
	b.pushed = false

	work, err := os.MkdirTemp("", "rkd_gitpush_")
	if err != nil {
		return deploy.Failedf("Creating working directory: %v", err)
	}
	defer os.RemoveAll(work)
	repo := filepath.Join(work, "repo")
	b.log.Debug("working copy", "path", repo)

	b.log.Info("Preparing repository...")
	if err := b.prepare(ctx, repo); err != nil {
		b.log.Error("Preparing repository failed", "error", err)
		return deploy.Failed("Failed to prepare repository", map[string]any{
			deploy.DetailErrors: []string{err.Error()},
		})
	}

	b.log.Info(fmt.Sprintf("Copying %d modules to repository...", len(mods)))
	pk := b.env.Packager()
	var copied, skipped []string
	for _, m := range mods {
		dest := filepath.Join(repo, m.Name)
		if _, err := os.Stat(dest); err == nil {
			if _, err := os.Stat(filepath.Join(dest, ManagedMarker)); err != nil {
				b.log.Warning(fmt.Sprintf("Module %s exists but is not managed by rkd, skipping", m.Name))
				skipped = append(skipped, m.Name)
				continue
			}
			if err := os.RemoveAll(dest); err != nil {
				return deploy.Failedf("Removing previous copy of %s: %v", m.Name, err)
			}
		}
		if err := pk.CopyModule(m.Path, dest); err != nil {
			return deploy.Failedf("Failed to copy module %s: %v", m.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dest, ManagedMarker), nil, 0o644); err != nil {
			return deploy.Failedf("Marking module %s: %v", m.Name, err)
		}
		copied = append(copied, m.Name)
		b.log.Success("Copied " + m.Name)
	}

	details := map[string]any{}
	if len(skipped) > 0 {
		details[deploy.DetailSkipped] = skipped
	}
	if len(copied) == 0 {
		b.log.Warning("No changes to deploy")
		return deploy.Succeeded("No changes detected, nothing to deploy", details)
	}

	b.log.Info("Staging changes...")
	if res, err := b.git(ctx, repo, GitTimeout, append([]string{"add", "-A", "--"}, copied...)...); err != nil || !res.OK() {
		return deploy.Failedf("Failed to stage modules: %s", failure(res, err))
	}
	res, err := b.git(ctx, repo, GitTimeout, "diff", "--cached", "--name-only")
	if err != nil || !res.OK() {
		return deploy.Failedf("Failed to inspect staged changes: %s", failure(res, err))
	}
	files := nonEmptyLines(res.Stdout)
	if len(files) == 0 {
		b.log.Warning("No changes to deploy")
		return deploy.Succeeded("No changes detected, nothing to deploy", details)
	}
	b.log.Debug("staged files", "count", len(files))

	b.log.Info("Creating commit...")
	msg := b.commitMessage(copied, len(files))
	if res, err := b.gitAs(ctx, repo, GitTimeout, "commit", "-m", msg); err != nil || !res.OK() {
		return deploy.Failedf("Failed to commit: %s", failure(res, err))
	}
	b.log.Success("Changes committed")

	if b.cfg.GitURL == "" {
		return deploy.Failed("Failed to push: git_url is not configured for this target", details)
	}
	b.log.Info(fmt.Sprintf("Pushing to %s (branch: %s)...", b.cfg.GitRemote, b.cfg.Branch))
	if res, err := b.git(ctx, repo, PushTimeout, "push", b.cfg.GitRemote, b.cfg.Branch); err != nil || !res.OK() {
		return deploy.Failedf("Failed to push: %s", failure(res, err))
	}
	b.pushed = true
	b.log.Success("Pushed " + b.cfg.Branch)

	details[deploy.DetailModules] = copied
	details["branch"] = b.cfg.Branch
	details["files_changed"] = len(files)
	if res, err := b.git(ctx, repo, GitTimeout, "rev-parse", "HEAD"); err == nil && res.OK() {
		details["commit"] = strings.TrimSpace(res.Stdout)
	}
	return deploy.Succeeded(fmt.Sprintf("Modules pushed to %s", b.cfg.Branch), details)
}

// PostDeployActions reports where the build can be followed and optionally
// opens the instance in a browser.
func (b *Backend) PostDeployActions(_ context.Context) *deploy.Result {
	pd := b.target.PostDeploy
	instance := b.InstanceURL()

	if pd.WaitForBuild {
		b.log.Info("Waiting for build...")
		b.log.Warning("Build monitoring not yet implemented")
		b.log.Info(fmt.Sprintf("Check build status at: https://www.odoo.sh/project/%s/builds", b.cfg.ProjectID))
	}
	if pd.OpenBrowser && b.OpenURL != nil {
		b.log.Info("Opening browser: " + instance)
		if err := b.OpenURL(instance); err != nil {
			b.log.Warning("Could not open browser", "error", err)
		}
	}

	b.log.Info("Deployment information", "project", b.cfg.ProjectID, "branch", b.cfg.Branch, "url", instance)
	return deploy.Succeeded("Post-deploy actions completed", map[string]any{"url": instance})
}

// Rollback reverts the newest commit of the branch in a fresh clone and
// pushes the revert. When this run tried a transfer that never reached the
// remote there is nothing to revert.
func (b *Backend) Rollback(ctx context.Context) *deploy.Result {
	// A transfer of this run that failed before the push left the branch
	// head at someone else's commit; reverting it would undo their work.
	if b.attempted && !b.pushed {
		b.log.Info("Nothing was pushed, remote left untouched")
		return deploy.Succeeded("Nothing to roll back: no commit was pushed", nil)
	}
	if b.cfg.GitURL == "" {
		return deploy.Failed("Rollback requires git_url", nil)
	}

	b.log.Warning("Initiating rollback...")
	work, err := os.MkdirTemp("", "rkd_rollback_")
	if err != nil {
		return deploy.Failedf("Creating working directory: %v", err)
	}
	defer os.RemoveAll(work)
	repo := filepath.Join(work, "repo")

	res, err := b.git(ctx, "", CloneTimeout,
		"clone", "--origin", b.cfg.GitRemote, "--branch", b.cfg.Branch, b.remoteURL(), repo)
	if err != nil || !res.OK() {
		return deploy.Failedf("Failed to clone for rollback: %s", failure(res, err))
	}

	b.log.Info("Reverting last commit...")
	if res, err := b.gitAs(ctx, repo, GitTimeout, "revert", "--no-edit", "HEAD"); err != nil || !res.OK() {
		return deploy.Failedf("Failed to revert: %s", failure(res, err))
	}

	b.log.Info("Pushing rollback...")
	if res, err := b.git(ctx, repo, PushTimeout, "push", b.cfg.GitRemote, b.cfg.Branch); err != nil || !res.OK() {
		return deploy.Failedf("Failed to push rollback: %s", failure(res, err))
	}

	b.log.Success("Rollback completed")
	return deploy.Succeeded("Rollback completed successfully", nil)
}

// prepare creates the working copy in dir: a clone of the branch, a clone
// of the default branch with a new branch on top, or an empty repository
// when only an API token is configured.
func (b *Backend) prepare(ctx context.Context, dir string) error {
	if b.cfg.GitURL == "" {
		b.log.Info("Initializing new repository...")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if res, err := b.git(ctx, dir, GitTimeout, "init"); err != nil || !res.OK() {
			return fmt.Errorf("git init: %s", failure(res, err))
		}
		if res, err := b.git(ctx, dir, GitTimeout, "checkout", "-b", b.cfg.Branch); err != nil || !res.OK() {
			return fmt.Errorf("creating branch: %s", failure(res, err))
		}
		return nil
	}

	b.log.Info("Cloning repository from " + redact(b.cfg.GitURL) + "...")
	res, err := b.git(ctx, "", CloneTimeout,
		"clone", "--origin", b.cfg.GitRemote, "--branch", b.cfg.Branch, b.remoteURL(), dir)
	if err != nil {
		return err
	}
	if res.OK() {
		b.log.Success("Repository ready")
		return nil
	}

	b.log.Warning(fmt.Sprintf("Branch '%s' not found, creating new branch...", b.cfg.Branch))
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	res, err = b.git(ctx, "", CloneTimeout, "clone", "--origin", b.cfg.GitRemote, b.remoteURL(), dir)
	if err != nil || !res.OK() {
		return fmt.Errorf("failed to clone repository: %s", failure(res, err))
	}
	res, err = b.git(ctx, dir, GitTimeout, "checkout", "-b", b.cfg.Branch)
	if err != nil || !res.OK() {
		return fmt.Errorf("failed to create branch: %s", failure(res, err))
	}
	b.log.Success("Repository ready")
	return nil
}

func (b *Backend) commitMessage(mods []string, files int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[rkd] Deploy modules: %s\n\n", strings.Join(mods, ", "))
	fmt.Fprintf(&sb, "Deployed at: %s\n", b.env.Clock()().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Modules: %d\n", len(mods))
	fmt.Fprintf(&sb, "Files changed: %d", files)
	if head, err := HeadCommit(b.env.Paths.Root); err == nil {
		fmt.Fprintf(&sb, "\nSource: %s", head)
	}
	return sb.String()
}

// remoteURL returns the git URL with the API token as credentials when the
// URL is HTTPS and a token is configured.
func (b *Backend) remoteURL() string {
	if b.cfg.APIToken == "" {
		return b.cfg.GitURL
	}
	u, err := url.Parse(b.cfg.GitURL)
	if err != nil || u.Scheme != "https" || u.User != nil {
		return b.cfg.GitURL
	}
	u.User = url.UserPassword(tokenUser, b.cfg.APIToken)
	return u.String()
}

func (b *Backend) git(ctx context.Context, dir string, timeout time.Duration, args ...string) (*execx.Result, error) {
	return b.runner.Run(ctx, execx.Command{
		Name:    "git",
		Args:    args,
		Dir:     dir,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: timeout,
		Op:      "git " + args[0],
	})
}

// gitAs runs a commit-creating git command with the checked identity.
func (b *Backend) gitAs(ctx context.Context, dir string, timeout time.Duration, args ...string) (*execx.Result, error) {
	if b.ident == nil {
		ident, err := LoadIdentity()
		if err != nil {
			return nil, err
		}
		b.ident = ident
	}
	env := []string{"GIT_TERMINAL_PROMPT=0"}
	if b.ident.Name != "" && b.ident.Email != "" {
		env = append(env,
			"GIT_AUTHOR_NAME="+b.ident.Name, "GIT_AUTHOR_EMAIL="+b.ident.Email,
			"GIT_COMMITTER_NAME="+b.ident.Name, "GIT_COMMITTER_EMAIL="+b.ident.Email,
		)
	}
	return b.runner.Run(ctx, execx.Command{
		Name: "git", Args: args, Dir: dir, Env: env, Timeout: timeout, Op: "git " + args[0],
	})
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func failure(res *execx.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	if res == nil {
		return "no result"
	}
	return res.Output()
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
