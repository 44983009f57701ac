// Package secrets persists VPS passwords between runs, either in a project
// file readable only by the owner or in the operating system keyring.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// PasswordKey is the variable name used in secrets files.
const PasswordKey = "VPS_PASSWORD"

// Store kinds.
const (
	KindFile    = "file"
	KindKeyring = "keyring"
)

// KeyringService is the keyring service name prefix.
const KeyringService = "rkd"

// ErrNotStored is returned by Get when no password is stored for a target.
var ErrNotStored = errors.New("no stored password")

// Store keeps one password per deployment target.
type Store interface {
	// Get returns the stored password or ErrNotStored.
	Get(target string) (string, error)
	Set(target, password string) error
	Delete(target string) error
	// Location describes where passwords are kept.
	Location(target string) string
}

// New returns the store of the given kind. dir is the secrets directory for
// file stores; project scopes keyring entries.
func New(kind, dir, project string) (Store, error) {
	switch kind {
	case "", KindFile:
		return NewFileStore(dir), nil
	case KindKeyring:
		return NewKeyringStore(project), nil
	default:
		return nil, fmt.Errorf("unknown password store %q (want %s or %s)", kind, KindFile, KindKeyring)
	}
}

// FileStore writes one dotenv file per target with mode 0600.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the secrets file of target.
func (s *FileStore) Path(target string) string {
	return filepath.Join(s.dir, "vps_"+target+".env")
}

// Location implements Store.
func (s *FileStore) Location(target string) string {
	return s.Path(target)
}

// Get implements Store.
func (s *FileStore) Get(target string) (string, error) {
	env, err := godotenv.Read(s.Path(target))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotStored
		}
		return "", fmt.Errorf("reading secrets file: %w", err)
	}
	pw, ok := env[PasswordKey]
	if !ok || pw == "" {
		return "", ErrNotStored
	}
	return pw, nil
}

// Set implements Store. The file is created with mode 0600 and the
// directory with 0700.
func (s *FileStore) Set(target, password string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating secrets directory: %w", err)
	}
	content, err := godotenv.Marshal(map[string]string{PasswordKey: password})
	if err != nil {
		return fmt.Errorf("encoding secrets: %w", err)
	}
	path := s.Path(target)
	if err := os.WriteFile(path, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing secrets file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o600)
}

// Delete implements Store. Deleting a missing entry is not an error.
func (s *FileStore) Delete(target string) error {
	err := os.Remove(s.Path(target))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// KeyringStore keeps passwords in the OS keyring under service
// "rkd:<project>" and the target name as user.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a keyring store scoped to project.
func NewKeyringStore(project string) *KeyringStore {
	service := KeyringService
	if project != "" {
		service += ":" + project
	}
	return &KeyringStore{service: service}
}

// Location implements Store.
func (s *KeyringStore) Location(target string) string {
	return "keyring " + s.service + "/" + target
}

// Get implements Store.
func (s *KeyringStore) Get(target string) (string, error) {
	pw, err := keyring.Get(s.service, target)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotStored
		}
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	return pw, nil
}

// Set implements Store.
func (s *KeyringStore) Set(target, password string) error {
	if err := keyring.Set(s.service, target, password); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *KeyringStore) Delete(target string) error {
	err := keyring.Delete(s.service, target)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring entry: %w", err)
	}
	return nil
}
