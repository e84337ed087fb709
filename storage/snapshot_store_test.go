package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshotStore(t *testing.T) {
	dir := t.TempDir()
	_, log := logger.NewTestLogger()
	s, err := NewSnapshotStore(dir, 2, log)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.DirExists(t, filepath.Join(dir, versionsDirName))
}

func TestSnapshotStoreSaveAndRead(t *testing.T) {
	dir := t.TempDir()
	_, log := logger.NewTestLogger()
	s, err := NewSnapshotStore(dir, 2, log)
	require.NoError(t, err)

	execState, smState, err := s.ReadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, execState)
	assert.Nil(t, smState)

	wantExec := []byte("exec-state")
	wantSM := []byte("sm-state")
	require.NoError(t, s.SaveSnapshot(wantExec, wantSM))

	gotExec, gotSM, err := s.ReadSnapshot()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(wantExec, gotExec))
	assert.True(t, bytes.Equal(wantSM, gotSM))
}

func TestSnapshotStoreOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, log := logger.NewTestLogger()
	s, err := NewSnapshotStore(dir, 2, log)
	require.NoError(t, err)

	require.NoError(t, s.SaveSnapshot([]byte("v1-exec"), []byte("v1-sm")))
	require.NoError(t, s.SaveSnapshot([]byte("v2-exec"), []byte("v2-sm")))

	gotExec, gotSM, err := s.ReadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, []byte("v2-exec"), gotExec)
	assert.Equal(t, []byte("v2-sm"), gotSM)
}

func TestSnapshotStoreCleanup(t *testing.T) {
	dir := t.TempDir()
	_, log := logger.NewTestLogger()
	s, err := NewSnapshotStore(dir, 2, log)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveSnapshot([]byte("exec"), []byte("sm")))
	}
	s.cleanupVersions()

	versions, err := os.ReadDir(filepath.Join(dir, versionsDirName))
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}
