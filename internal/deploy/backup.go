package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rocketdoo/rkd/internal/module"
	"github.com/rocketdoo/rkd/internal/packager"
)

// SnapshotTimeFormat is the timestamp layout in snapshot directory names.
const SnapshotTimeFormat = "20060102_150405"

var snapshotSuffix = regexp.MustCompile(`^\d{8}_\d{6}(_\d+)?$`)

// BackupStore manages the local snapshots of one target.
type BackupStore struct {
	Root   string
	Target string
	Keep   int
	now    func() time.Time
}

// Snapshot is one backup directory.
type Snapshot struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// NewBackupStore returns the store for target under root keeping keep
// snapshots.
func NewBackupStore(root, target string, keep int, now func() time.Time) *BackupStore {
	if keep < 1 {
		keep = 1
	}
	if now == nil {
		now = time.Now
	}
	return &BackupStore{Root: root, Target: target, Keep: keep, now: now}
}

// Create copies every module into a new snapshot directory named
// {target}_{YYYYMMDD_HHMMSS} and returns its path.
func (s *BackupStore) Create(mods []*module.Module) (string, error) {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return "", fmt.Errorf("creating backup root: %w", err)
	}

	base := s.Target + "_" + s.now().Format(SnapshotTimeFormat)
	dir := filepath.Join(s.Root, base)
	// Two runs within one second get a numeric suffix.
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating snapshot: %w", err)
		}
		dir = filepath.Join(s.Root, fmt.Sprintf("%s_%d", base, i))
	}

	for _, m := range mods {
		if err := packager.CopyAll(m.Path, filepath.Join(dir, m.Name)); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("backing up %s: %w", m.Name, err)
		}
	}
	return dir, nil
}

// List returns the target's snapshots, newest first by modification time.
// Snapshots of other targets are never included, even when one target name
// is a prefix of another.
func (s *BackupStore) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := s.Target + "_"
	var snaps []Snapshot
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		if !snapshotSuffix.MatchString(name[len(prefix):]) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			Name:    name,
			Path:    filepath.Join(s.Root, name),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].ModTime.Equal(snaps[j].ModTime) {
			return snaps[i].Name > snaps[j].Name
		}
		return snaps[i].ModTime.After(snaps[j].ModTime)
	})
	return snaps, nil
}

// Latest returns the newest snapshot.
func (s *BackupStore) Latest() (*Snapshot, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("no backups found for target %s in %s", s.Target, s.Root)
	}
	return &snaps[0], nil
}

// Prune deletes snapshots beyond the retention count and returns the names
// removed. Removal continues past individual failures; the first error is
// returned.
func (s *BackupStore) Prune() ([]string, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(snaps) <= s.Keep {
		return nil, nil
	}

	var removed []string
	var firstErr error
	for _, snap := range snaps[s.Keep:] {
		if err := os.RemoveAll(snap.Path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed = append(removed, snap.Name)
	}
	return removed, firstErr
}
