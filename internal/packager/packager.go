// Package packager stages modules for transfer: it copies module trees with
// exclude-pattern filtering, builds tar.gz archives and writes deployment
// manifests.
package packager

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
	"github.com/rocketdoo/rkd/internal/module"
)

// DefaultExcludes are applied when no exclude patterns are configured.
var DefaultExcludes = []string{
	"*.pyc",
	"*.pyo",
	"__pycache__",
	"*.swp",
	"*.swo",
	"*~",
	".git",
	".gitignore",
	".DS_Store",
	"Thumbs.db",
	"*.log",
	"*.tmp",
	"tests",
	"test_*.py",
	"*_test.py",
	".vscode",
	".idea",
	"node_modules",
	".env",
	"*.local",
}

// StagingPrefix prefixes every staging directory name.
const StagingPrefix = "rkd_deploy_"

// Packager copies modules with exclusion filtering.
type Packager struct {
	patterns []pattern
	excludes []string
	logger   *log.Logger
	now      func() time.Time
}

type pattern struct {
	glob    string
	dirOnly bool
}

// Option configures a Packager.
type Option func(*Packager)

// WithLogger sets the logger for progress messages.
func WithLogger(l *log.Logger) Option {
	return func(p *Packager) {
		p.logger = l
	}
}

// WithClock overrides the time source used for manifests and archive names.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) {
		p.now = now
	}
}

// New returns a packager. A nil or empty excludes slice selects
// DefaultExcludes.
func New(excludes []string, opts ...Option) *Packager {
	if len(excludes) == 0 {
		excludes = DefaultExcludes
	}
	p := &Packager{
		excludes: excludes,
		logger:   log.New(io.Discard),
		now:      time.Now,
	}
	for _, e := range excludes {
		p.patterns = append(p.patterns, compilePattern(e))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// compilePattern trims a configured pattern. A trailing "/" restricts the
// pattern to directories.
func compilePattern(raw string) pattern {
	p := pattern{glob: strings.TrimSpace(raw)}
	if strings.HasSuffix(p.glob, "/") {
		p.dirOnly = true
		p.glob = strings.TrimRight(p.glob, "/")
	}
	return p
}

// matches reports whether the slash-separated path rel, relative to the
// module root, matches. Patterns without "/" match the entry name at any
// depth; others are matched against rel, so "**/x/**" catches x anywhere.
func (pat pattern) matches(rel string) bool {
	if !strings.Contains(pat.glob, "/") {
		ok, _ := doublestar.Match(pat.glob, path.Base(rel))
		return ok
	}
	ok, _ := doublestar.Match(pat.glob, rel)
	return ok
}

// ShouldExclude reports whether the entry at rel, a path relative to the
// module root, is filtered out. The manifest and init markers are never
// excluded.
func (p *Packager) ShouldExclude(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if name := path.Base(rel); name == module.ManifestFile || name == module.InitFile {
		return false
	}
	for _, pat := range p.patterns {
		if pat.dirOnly && !isDir {
			continue
		}
		if pat.matches(rel) {
			return true
		}
	}
	return false
}

// CopyModule copies the module tree at src to dst, evaluating exclusions on
// every path component.
func (p *Packager) CopyModule(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return oerrors.Wrap(oerrors.ErrNotFound, fmt.Sprintf("module source %s", src))
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("module source %s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if rel == "." {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if p.ShouldExclude(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, fi.Mode().Perm()|0o700)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return nil
		}
	})
}

// PrepareModules copies every module into a fresh staging directory and
// returns its path. The first failure removes the staging directory and is
// returned.
func (p *Packager) PrepareModules(mods []*module.Module) (string, error) {
	staging, err := os.MkdirTemp("", StagingPrefix)
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}

	for _, m := range mods {
		p.logger.Debug("staging module", "module", m.Name)
		if err := p.CopyModule(m.Path, filepath.Join(staging, m.Name)); err != nil {
			_ = os.RemoveAll(staging)
			return "", fmt.Errorf("staging module %s: %w", m.Name, err)
		}
	}

	p.logger.Debug("modules staged", "count", len(mods), "path", staging)
	return staging, nil
}

// ModuleSize returns the total size of the files that would be staged.
func (p *Packager) ModuleSize(m *module.Module) (int64, error) {
	var total int64
	err := filepath.WalkDir(m.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == m.Path {
			return nil
		}
		rel, err := filepath.Rel(m.Path, path)
		if err != nil {
			return err
		}
		if p.ShouldExclude(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sizing module %s: %w", m.Name, err)
	}
	return total, nil
}

// ValidateModuleStructure returns structural problems of a module.
func ValidateModuleStructure(m *module.Module) []string {
	var issues []string
	if _, err := os.Stat(filepath.Join(m.Path, module.ManifestFile)); err != nil {
		issues = append(issues, "missing "+module.ManifestFile)
	}
	if _, err := os.Stat(filepath.Join(m.Path, module.InitFile)); err != nil {
		issues = append(issues, "missing "+module.InitFile)
	}
	if !m.HasContent() {
		issues = append(issues, "module appears empty")
	}
	return issues
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

// CopyAll copies a directory tree without any filtering.
func CopyAll(src, dst string) error {
	p := &Packager{logger: log.New(io.Discard), now: time.Now}
	return p.CopyModule(src, dst)
}
