// Package sshkeys inspects private keys in an SSH directory.
package sshkeys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"

	"github.com/rocketdoo/rkd/internal/config"
)

// Key describes one private key file.
type Key struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Type        string   `json:"type"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	HasPublic   bool     `json:"has_public"`
	Encrypted   bool     `json:"encrypted"`
	Permissions string   `json:"permissions"`
	Secure      bool     `json:"secure"`
	Hosts       []string `json:"hosts,omitempty"`
}

// DefaultDir returns ~/.ssh.
func DefaultDir() (string, error) {
	return config.ExpandPath("~/.ssh")
}

// List returns the private keys in dir sorted by name. Files that are not
// private keys are ignored. Hosts come from dir/config IdentityFile entries.
func List(dir string) ([]Key, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	hosts := identityHosts(filepath.Join(dir, "config"))

	var keys []Key
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".pub") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		k, ok := inspect(path)
		if !ok {
			continue
		}
		k.Hosts = hosts[path]
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys, nil
}

func inspect(path string) (Key, bool) {
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "PRIVATE KEY") {
		return Key{}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return Key{}, false
	}

	perm := info.Mode().Perm()
	k := Key{
		Name:        filepath.Base(path),
		Path:        path,
		Type:        "unknown",
		Permissions: fmt.Sprintf("%03o", perm),
		Secure:      perm&0o077 == 0,
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		k.Type = signer.PublicKey().Type()
		k.Fingerprint = ssh.FingerprintSHA256(signer.PublicKey())
	case errors.As(err, &missing):
		k.Encrypted = true
		if missing.PublicKey != nil {
			k.Type = missing.PublicKey.Type()
			k.Fingerprint = ssh.FingerprintSHA256(missing.PublicKey)
		}
	}

	if pub, err := os.ReadFile(path + ".pub"); err == nil {
		k.HasPublic = true
		if pk, comment, _, _, err := ssh.ParseAuthorizedKey(pub); err == nil {
			k.Comment = comment
			if k.Fingerprint == "" {
				k.Type = pk.Type()
				k.Fingerprint = ssh.FingerprintSHA256(pk)
			}
		}
	}
	return k, true
}

// Validate checks that path holds a usable private key. Passphrase
// protected keys are accepted; ssh asks for the passphrase itself.
func Validate(path string) error {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("SSH key not found: %s", path)
		}
		return fmt.Errorf("reading SSH key %s: %w", path, err)
	}
	_, err = ssh.ParseRawPrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if err != nil && !errors.As(err, &missing) {
		return fmt.Errorf("SSH key %s is not a valid private key: %w", path, err)
	}
	return nil
}

// identityHosts maps expanded IdentityFile paths to the host patterns that
// use them. A missing or unreadable config yields an empty map.
func identityHosts(path string) map[string][]string {
	out := map[string][]string{}
	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return out
	}
	for _, h := range cfg.Hosts {
		var patterns []string
		for _, p := range h.Patterns {
			if s := p.String(); s != "*" {
				patterns = append(patterns, s)
			}
		}
		for _, n := range h.Nodes {
			kv, ok := n.(*ssh_config.KV)
			if !ok || !strings.EqualFold(kv.Key, "IdentityFile") {
				continue
			}
			file, err := config.ExpandPath(kv.Value)
			if err != nil {
				continue
			}
			out[file] = append(out[file], patterns...)
		}
	}
	return out
}
