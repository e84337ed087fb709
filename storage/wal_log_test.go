package storage

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWALLog(t *testing.T) *WALLog {
	t.Helper()
	dir := t.TempDir()
	_, log := logger.NewTestLogger()
	w, err := NewWALLog(dir, BatchConfig{BatchSize: 4, Timeout: 10 * time.Millisecond}, log)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestNewWALLogCreatesDir(t *testing.T) {
	dir := os.TempDir() + "/rsm_wal_log_test_new"
	os.RemoveAll(dir)
	defer os.RemoveAll(dir)

	_, log := logger.NewTestLogger()
	w, err := NewWALLog(dir, BatchConfig{}, log)
	require.NoError(t, err)
	defer w.Close()

	_, err = os.Stat(dir)
	require.NoError(t, err)
}

func TestWALLogAppendAndReadAll(t *testing.T) {
	w := newTestWALLog(t)

	records := []CommandRecord{
		{Index: 1, SessionID: 10, RequestNo: 1, Timestamp: 100, Payload: []byte("a")},
		{Index: 2, SessionID: 10, RequestNo: 2, Timestamp: 200, Payload: []byte("b"), Result: []byte("ok")},
		{Index: 3, SessionID: 11, RequestNo: 1, Timestamp: 300, Err: "boom"},
	}
	for _, rec := range records {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())

	got, err := w.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, len(records))
	for i, rec := range records {
		assert.Equal(t, rec, got[i])
	}
}

func TestWALLogBatchesAcrossTimeout(t *testing.T) {
	w := newTestWALLog(t)

	// Fewer records than BatchSize: relies on the timer to flush.
	require.NoError(t, w.Append(CommandRecord{Index: 1, SessionID: 1, RequestNo: 1}))
	require.NoError(t, w.Append(CommandRecord{Index: 2, SessionID: 1, RequestNo: 2}))
	require.NoError(t, w.Close())

	got, err := w.ReadAll()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestWALLogReadAllOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, log := logger.NewTestLogger()
	w, err := NewWALLog(dir, BatchConfig{}, log)
	require.NoError(t, err)
	require.NoError(t, os.Remove(w.path))

	got, err := w.ReadAll()
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, w.Close())
}

func TestDecodeRecordDetectsCorruption(t *testing.T) {
	encoded, err := encodeRecord(CommandRecord{Index: 1, SessionID: 1, RequestNo: 1, Payload: []byte("x")})
	require.NoError(t, err)

	// Flip a payload byte without touching the checksum header.
	encoded[entryHeaderSize] ^= 0xFF

	_, err = decodeRecord(bytes.NewReader(encoded))
	require.Error(t, err)
}
