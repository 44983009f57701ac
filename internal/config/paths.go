package config

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// Project-relative locations.
const (
	StateDirName   = ".rkd"
	ConfigFileName = "deploy.yaml"
	SecretsDirName = "secrets"
)

// Paths contains the filesystem locations of a project.
type Paths struct {
	// Root is the project root directory.
	Root string

	// StateDir is the project state directory (<root>/.rkd).
	StateDir string

	// ConfigFile is the deploy configuration (<root>/.rkd/deploy.yaml).
	ConfigFile string

	// SecretsDir holds persisted target passwords (<root>/.rkd/secrets).
	SecretsDir string
}

// ProjectPaths returns the paths of the project rooted at root. An empty
// root means the working directory.
func ProjectPaths(root string) (*Paths, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	root, err := ExpandPath(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	state := filepath.Join(abs, StateDirName)
	return &Paths{
		Root:       abs,
		StateDir:   state,
		ConfigFile: filepath.Join(state, ConfigFileName),
		SecretsDir: filepath.Join(state, SecretsDirName),
	}, nil
}

// Resolve returns p joined to the project root unless it is absolute.
func (p *Paths) Resolve(path string) string {
	if path == "" {
		return p.Root
	}
	expanded, err := ExpandPath(path)
	if err == nil {
		path = expanded
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, path)
}

// EnsureStateDir creates the .rkd directory if it doesn't exist.
func (p *Paths) EnsureStateDir() error {
	return os.MkdirAll(p.StateDir, 0o755)
}

// ConfigExists reports whether the project has a deploy configuration.
func (p *Paths) ConfigExists() bool {
	_, err := os.Stat(p.ConfigFile)
	return err == nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	return homedir.Expand(path)
}
