package storage

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"sync"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
)

const (
	execStateFileName  = "exec_state.bin"
	smStateFileName    = "sm_state.bin"
	versionsDirName    = "versions"
	currentSymlinkName = "current"
)

var _ api.Persister = (*SnapshotStore)(nil)

// SnapshotStore implements api.Persister on the local filesystem. Each save
// writes a fresh versioned directory and atomically swaps a "current"
// symlink onto it, so a crash mid-write never corrupts the previously
// durable pair.
//
// Safe for concurrent use.
type SnapshotStore struct {
	mu           sync.RWMutex
	logger       *slog.Logger
	dir          string
	current      string
	versions     string
	versionNames []string
	keepCount    int
}

// NewSnapshotStore creates or opens a SnapshotStore rooted at dir, keeping
// the keepCount most recent versions (the current one included) once a new
// one lands; older versions are deleted in the background.
func NewSnapshotStore(dir string, keepCount int, log *slog.Logger) (*SnapshotStore, error) {
	versionsPath := filepath.Join(dir, versionsDirName)
	if err := os.MkdirAll(versionsPath, 0755); err != nil {
		return nil, err
	}

	versionNames, err := restoreVersionNames(versionsPath)
	if err != nil {
		return nil, err
	}

	if keepCount < 1 {
		keepCount = 1
	}

	return &SnapshotStore{
		logger:       log,
		dir:          dir,
		current:      filepath.Join(dir, currentSymlinkName),
		versions:     versionsPath,
		versionNames: versionNames,
		keepCount:    keepCount,
	}, nil
}

func restoreVersionNames(versionsPath string) ([]string, error) {
	entries, err := os.ReadDir(versionsPath)
	if err != nil {
		return nil, err
	}

	var versionNames []string
	for _, entry := range entries {
		if entry.IsDir() {
			versionNames = append(versionNames, entry.Name())
		}
	}
	sort.Strings(versionNames)
	return versionNames, nil
}

func (s *SnapshotStore) resolvePaths() (execPath, smPath string, err error) {
	link, err := os.Readlink(s.current)
	if err != nil {
		return "", "", err
	}
	versionDir := filepath.Join(s.dir, link)
	return filepath.Join(versionDir, execStateFileName), filepath.Join(versionDir, smStateFileName), nil
}

// ReadSnapshot implements api.Persister.
func (s *SnapshotStore) ReadSnapshot() (execState, smState []byte, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execPath, smPath, err := s.resolvePaths()
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	execState, err = os.ReadFile(execPath)
	if os.IsNotExist(err) {
		execState, err = nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	smState, err = os.ReadFile(smPath)
	if os.IsNotExist(err) {
		smState, err = nil, nil
	}
	return execState, smState, err
}

// SaveSnapshot implements api.Persister. Writes both blobs into a fresh
// version directory and atomically points "current" at it.
func (s *SnapshotStore) SaveSnapshot(execState, smState []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versionName := strconv.FormatInt(time.Now().UnixNano(), 10)
	newVersionPath := filepath.Join(s.versions, versionName)
	if err := os.MkdirAll(newVersionPath, 0755); err != nil {
		return err
	}

	execPath := filepath.Join(newVersionPath, execStateFileName)
	if err := writeAndSyncFile(execPath, execState, 0644); err != nil {
		return errors.Join(err, os.RemoveAll(newVersionPath))
	}

	smPath := filepath.Join(newVersionPath, smStateFileName)
	if err := writeAndSyncFile(smPath, smState, 0644); err != nil {
		return errors.Join(err, os.RemoveAll(newVersionPath))
	}

	if err := syncDir(newVersionPath); err != nil {
		return errors.Join(err, os.RemoveAll(newVersionPath))
	}

	tmpSymlinkPath := s.current + ".tmp"
	symlinkTarget := filepath.Join(versionsDirName, versionName)

	if err := os.Remove(tmpSymlinkPath); err != nil && !os.IsNotExist(err) {
		return errors.Join(err, os.RemoveAll(newVersionPath))
	}

	if err := os.Symlink(symlinkTarget, tmpSymlinkPath); err != nil {
		return errors.Join(err, os.RemoveAll(newVersionPath))
	}

	if err := syncDir(s.dir); err != nil {
		return errors.Join(err, os.RemoveAll(newVersionPath), os.Remove(tmpSymlinkPath))
	}

	if err := os.Rename(tmpSymlinkPath, s.current); err != nil {
		return errors.Join(err, os.RemoveAll(newVersionPath), os.Remove(tmpSymlinkPath))
	}

	if err := syncDir(s.dir); err != nil {
		s.logger.Warn("failed to sync directory after rename", logger.ErrAttr(err))
	}

	s.versionNames = append(s.versionNames, versionName)
	go s.cleanupVersions()

	return nil
}

// Close is a no-op; SnapshotStore holds no file descriptors between calls.
func (s *SnapshotStore) Close() error { return nil }

func (s *SnapshotStore) cleanupVersions() {
	s.mu.Lock()
	if len(s.versionNames) <= s.keepCount {
		s.mu.Unlock()
		return
	}

	toDelete := s.versionNames[:len(s.versionNames)-s.keepCount]
	s.versionNames = s.versionNames[len(s.versionNames)-s.keepCount:]
	s.mu.Unlock()

	for _, versionName := range toDelete {
		path := filepath.Join(s.versions, versionName)
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to delete outdated snapshot version",
				"version", versionName, logger.ErrAttr(err))
		}
	}
}

func writeAndSyncFile(filename string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func syncDir(dir string) (err error) {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			if err != nil {
				err = errors.Join(err, cerr)
			} else {
				err = cerr
			}
		}
	}()
	return f.Sync()
}
