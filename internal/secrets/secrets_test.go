package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secrets")
	s := NewFileStore(dir)

	_, err := s.Get("prod")
	assert.ErrorIs(t, err, ErrNotStored)

	require.NoError(t, s.Set("prod", `pa ss"word`))

	info, err := os.Stat(s.Path("prod"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, filepath.Join(dir, "vps_prod.env"), s.Location("prod"))

	pw, err := s.Get("prod")
	require.NoError(t, err)
	assert.Equal(t, `pa ss"word`, pw)

	require.NoError(t, s.Delete("prod"))
	require.NoError(t, s.Delete("prod"))
	_, err = s.Get("prod")
	assert.ErrorIs(t, err, ErrNotStored)
}

func TestFileStoreTightensMode(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, os.WriteFile(s.Path("prod"), []byte("VPS_PASSWORD=old\n"), 0o644))

	require.NoError(t, s.Set("prod", "new"))

	info, err := os.Stat(s.Path("prod"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	s := NewKeyringStore("shop")

	_, err := s.Get("prod")
	assert.ErrorIs(t, err, ErrNotStored)

	require.NoError(t, s.Set("prod", "s3cret"))
	pw, err := s.Get("prod")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, "keyring rkd:shop/prod", s.Location("prod"))

	require.NoError(t, s.Delete("prod"))
	require.NoError(t, s.Delete("prod"))
}

func TestNew(t *testing.T) {
	s, err := New("", t.TempDir(), "p")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New(KindKeyring, "", "p")
	require.NoError(t, err)
	assert.IsType(t, &KeyringStore{}, s)

	_, err = New("vault", "", "p")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	t.Run("configured value wins", func(t *testing.T) {
		pw, saved, err := Resolve("cfg", "prod", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "cfg", pw)
		assert.False(t, saved)
	})

	t.Run("stored value before prompt", func(t *testing.T) {
		s := NewFileStore(t.TempDir())
		require.NoError(t, s.Set("prod", "stored"))
		prompted := false

		pw, _, err := Resolve("", "prod", s, func(string) (string, error) {
			prompted = true
			return "typed", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "stored", pw)
		assert.False(t, prompted)
	})

	t.Run("prompted value is persisted", func(t *testing.T) {
		s := NewFileStore(t.TempDir())

		pw, saved, err := Resolve("", "prod", s, func(p string) (string, error) {
			assert.Contains(t, p, "prod")
			return "typed", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "typed", pw)
		assert.True(t, saved)

		stored, err := s.Get("prod")
		require.NoError(t, err)
		assert.Equal(t, "typed", stored)
	})

	t.Run("no prompt available", func(t *testing.T) {
		_, _, err := Resolve("", "prod", NewFileStore(t.TempDir()), nil)
		assert.ErrorIs(t, err, ErrNoTerminal)
	})

	t.Run("prompt failure", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := Resolve("", "prod", nil, func(string) (string, error) { return "", boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestAvailable(t *testing.T) {
	prompt := func(string) (string, error) {
		t.Fatal("Available must not prompt")
		return "", nil
	}

	stored := NewFileStore(t.TempDir())
	require.NoError(t, stored.Set("prod", "pw"))

	tests := []struct {
		name       string
		configured string
		store      Store
		prompt     Prompter
		wantErr    error
	}{
		{name: "configured", configured: "pw"},
		{name: "stored", store: stored},
		{name: "prompt available", store: NewFileStore(t.TempDir()), prompt: prompt},
		{name: "nothing", store: NewFileStore(t.TempDir()), wantErr: ErrNoTerminal},
		{name: "no store no prompt", wantErr: ErrNoTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Available(tt.configured, "prod", tt.store, tt.prompt)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("store left untouched", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Available("", "prod", NewFileStore(dir), prompt))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
