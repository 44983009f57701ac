// Package module discovers deployable addon modules under a directory tree
// and exposes their manifest metadata.
package module

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	// ManifestFile marks a directory as a module and holds its metadata.
	ManifestFile = "__manifest__.py"

	// InitFile is the package init marker of a module.
	InitFile = "__init__.py"

	// DefaultVersion is reported when the manifest has no version.
	DefaultVersion = "1.0"
)

// RequiredFields lists manifest keys every module is expected to declare.
var RequiredFields = []string{"name", "version", "depends", "data"}

// ContentDirs are the conventional subdirectories of a non-empty module.
var ContentDirs = []string{"models", "views", "security", "controllers", "data", "wizard", "static"}

// Manifest is the parsed manifest mapping.
type Manifest map[string]any

// String returns the string value stored at key.
func (m Manifest) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Strings returns the string items of the list or tuple stored at key.
// Non-string items are skipped.
func (m Manifest) Strings(key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Bool returns the boolean stored at key, or def when absent or not a bool.
func (m Manifest) Bool(key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

// Module describes one deployable unit: a directory holding a manifest.
// The manifest is parsed on first access and cached.
type Module struct {
	// Name is the directory name.
	Name string

	// Path is the absolute directory path.
	Path string

	// RelPath is Path relative to the scan root.
	RelPath string

	logger *log.Logger

	once     sync.Once
	manifest Manifest
	err      error
}

// New returns a descriptor for the module directory at path. root is the
// directory relative paths are computed from.
func New(path, root string, logger *log.Logger) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving module path: %w", err)
	}
	rel := filepath.Base(abs)
	if root != "" {
		if absRoot, err := filepath.Abs(root); err == nil {
			if r, err := filepath.Rel(absRoot, abs); err == nil {
				rel = r
			}
		}
	}
	return &Module{
		Name:    filepath.Base(abs),
		Path:    abs,
		RelPath: rel,
		logger:  logger,
	}, nil
}

// ManifestPath returns the path of the module's manifest file.
func (m *Module) ManifestPath() string {
	return filepath.Join(m.Path, ManifestFile)
}

// HasManifest reports whether the manifest file exists.
func (m *Module) HasManifest() bool {
	info, err := os.Stat(m.ManifestPath())
	return err == nil && !info.IsDir()
}

// Manifest returns the parsed manifest. A missing or unparseable manifest
// yields an empty map; the cause is available from ManifestError.
func (m *Module) Manifest() Manifest {
	m.once.Do(func() {
		m.manifest = Manifest{}
		data, err := os.ReadFile(m.ManifestPath())
		if err != nil {
			m.err = err
			m.warn("could not read manifest", err)
			return
		}
		parsed, err := ParseManifest(data)
		if err != nil {
			m.err = err
			m.warn("could not parse manifest", err)
			return
		}
		m.manifest = parsed
	})
	return m.manifest
}

// ManifestError returns the error of the last manifest load, if any.
func (m *Module) ManifestError() error {
	m.Manifest()
	return m.err
}

func (m *Module) warn(msg string, err error) {
	if m.logger != nil {
		m.logger.Warn(msg, "module", m.Name, "error", err)
	}
}

// Version returns the manifest version or DefaultVersion.
func (m *Module) Version() string {
	if v, ok := m.Manifest().String("version"); ok && v != "" {
		return v
	}
	return DefaultVersion
}

// Title returns the human-readable name declared in the manifest.
func (m *Module) Title() string {
	s, _ := m.Manifest().String("name")
	return s
}

// Depends returns the declared dependencies.
func (m *Module) Depends() []string {
	deps := m.Manifest().Strings("depends")
	if deps == nil {
		return []string{}
	}
	return deps
}

// Installable reports the manifest installable flag (default true).
func (m *Module) Installable() bool {
	return m.Manifest().Bool("installable", true)
}

// HasInvalidName reports whether the module name contains a hyphen, which
// the platform cannot import as a package.
func (m *Module) HasInvalidName() bool {
	return strings.Contains(m.Name, "-")
}

// HasContent reports whether the module has a conventional content
// subdirectory or loose Python sources at its root.
func (m *Module) HasContent() bool {
	for _, d := range ContentDirs {
		if info, err := os.Stat(filepath.Join(m.Path, d)); err == nil && info.IsDir() {
			return true
		}
	}
	entries, err := os.ReadDir(m.Path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".py") && e.Name() != ManifestFile && e.Name() != InitFile {
			return true
		}
	}
	return false
}

// Issues returns the validation problems of this module.
func (m *Module) Issues() []string {
	var issues []string

	if m.HasInvalidName() {
		issues = append(issues, fmt.Sprintf("module name %q contains '-', use '_' instead", m.Name))
	}

	manifest := m.Manifest()
	if len(manifest) == 0 {
		return append(issues, fmt.Sprintf("missing or unreadable %s", ManifestFile))
	}

	var missing []string
	for _, f := range RequiredFields {
		if _, ok := manifest[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		issues = append(issues, "manifest is missing required fields: "+strings.Join(missing, ", "))
	}

	if !m.Installable() {
		issues = append(issues, "module is marked as not installable")
	}

	if !m.HasContent() {
		issues = append(issues, "module appears empty (no models, views, security or Python files)")
	}

	return issues
}

// Names returns the names of mods in order.
func Names(mods []*Module) []string {
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	return names
}

func sortModules(mods []*Module) {
	sort.SliceStable(mods, func(i, j int) bool {
		if mods[i].Name != mods[j].Name {
			return mods[i].Name < mods[j].Name
		}
		return mods[i].RelPath < mods[j].RelPath
	})
}
