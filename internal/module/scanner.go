package module

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	oerrors "github.com/rocketdoo/rkd/internal/errors"
)

// DefaultScanExcludes are applied when a scanner is created without
// explicit exclude patterns.
var DefaultScanExcludes = []string{
	"**/tests/**",
	"**/__pycache__/**",
	"**/.git/**",
	"**/node_modules/**",
}

// Scanner finds modules below a root directory. Results are cached until a
// forced rescan.
type Scanner struct {
	root     string
	excludes []string
	logger   *log.Logger

	modules []*Module
	scanned bool
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithLogger sets the logger used for manifest warnings.
func WithLogger(l *log.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner returns a scanner for root. A nil excludes slice selects
// DefaultScanExcludes; an empty non-nil slice disables exclusion.
func NewScanner(root string, excludes []string, opts ...ScannerOption) *Scanner {
	if excludes == nil {
		excludes = DefaultScanExcludes
	}
	s := &Scanner{root: root, excludes: excludes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the scanned directory.
func (s *Scanner) Root() string {
	return s.root
}

// Scan returns every module below the root sorted by name. The result is
// cached; force discards the cache and walks the tree again.
func (s *Scanner) Scan(force bool) ([]*Module, error) {
	if s.scanned && !force {
		return s.modules, nil
	}

	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("resolving modules path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, oerrors.NewNotFoundError(
			fmt.Sprintf("modules path %s does not exist", root),
			root,
			"Set modules.base_path in .rkd/deploy.yaml or pass --path",
		)
	}

	var found []*Module
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && s.excluded(root, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ManifestFile {
			return nil
		}
		dir := filepath.Dir(path)
		if s.excluded(root, dir) {
			return nil
		}
		m, err := New(dir, root, s.logger)
		if err != nil {
			return err
		}
		found = append(found, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sortModules(found)
	if found == nil {
		found = []*Module{}
	}
	s.modules = found
	s.scanned = true
	return s.modules, nil
}

// excluded matches patterns against path relative to root, so a root that
// itself lives below a "tests" directory is not excluded as a whole.
func (s *Scanner) excluded(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range s.excludes {
		if MatchPath(p, rel) {
			return true
		}
	}
	return false
}

// Installable returns the scanned modules whose manifest allows install.
func (s *Scanner) Installable() ([]*Module, error) {
	mods, err := s.Scan(false)
	if err != nil {
		return nil, err
	}
	out := make([]*Module, 0, len(mods))
	for _, m := range mods {
		if m.Installable() {
			out = append(out, m)
		}
	}
	return out, nil
}

// Get returns the module called name.
func (s *Scanner) Get(name string) (*Module, error) {
	mods, err := s.Scan(false)
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, oerrors.Wrap(oerrors.ErrNotFound, fmt.Sprintf("module %q", name))
}

// ValidateAll returns the issues of every module that has any, keyed by
// module name.
func (s *Scanner) ValidateAll() (map[string][]string, error) {
	mods, err := s.Scan(false)
	if err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, m := range mods {
		if issues := m.Issues(); len(issues) > 0 {
			out[m.Name] = issues
		}
	}
	return out, nil
}
