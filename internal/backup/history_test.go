package backup

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-orchestrator/internal/logging"
)

func TestNewFileHistoryStore(t *testing.T) {
	t.Run("creates directory", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "history")

		store, err := NewFileHistoryStore(base, newQuietLogger(t))
		require.NoError(t, err)
		defer store.Close()

		assert.DirExists(t, base)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewFileHistoryStore("", newQuietLogger(t))
		require.Error(t, err)
		assert.True(t, IsErrorType(err, BackupErrorTypeValidation))
	})
}

func TestFileHistoryStore_SaveAndGet(t *testing.T) {
	store, err := NewFileHistoryStore(t.TempDir(), newQuietLogger(t))
	require.NoError(t, err)
	defer store.Close()

	meta := newTestMetadata("backup-20240115-aaaa1111", time.Now().UTC())
	require.NoError(t, store.Save(meta))

	got, err := store.Get(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, got.ID)
	assert.Equal(t, meta.StorageType, got.StorageType)

	// Mutating the returned copy must not affect the cached record
	got.StorageType = "mutated"
	again, err := store.Get(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "postgres", again.StorageType)
}

func TestFileHistoryStore_SaveInvalid(t *testing.T) {
	store, err := NewFileHistoryStore(t.TempDir(), newQuietLogger(t))
	require.NoError(t, err)
	defer store.Close()

	err = store.Save(nil)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, BackupErrorTypeValidation))

	err = store.Save(&BackupMetadata{ID: "no-required-fields"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, BackupErrorTypeValidation))
}

func TestFileHistoryStore_SurvivesReopen(t *testing.T) {
	base := t.TempDir()

	store, err := NewFileHistoryStore(base, newQuietLogger(t))
	require.NoError(t, err)

	meta := newTestMetadata("backup-20240115-bbbb2222", time.Now().UTC())
	require.NoError(t, store.Save(meta))
	require.NoError(t, store.Close())

	reopened, err := NewFileHistoryStore(base, newQuietLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, got.ID)
	assert.Equal(t, 1, reopened.Count())
}

func TestFileHistoryStore_ListNewestFirst(t *testing.T) {
	store, err := NewFileHistoryStore(t.TempDir(), newQuietLogger(t))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(newTestMetadata("backup-a", base)))
	require.NoError(t, store.Save(newTestMetadata("backup-b", base.Add(2*time.Hour))))
	require.NoError(t, store.Save(newTestMetadata("backup-c", base.Add(time.Hour))))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "backup-b", records[0].ID)
	assert.Equal(t, "backup-c", records[1].ID)
	assert.Equal(t, "backup-a", records[2].ID)
}

func TestFileHistoryStore_Delete(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileHistoryStore(base, newQuietLogger(t))
	require.NoError(t, err)
	defer store.Close()

	meta := newTestMetadata("backup-20240115-cccc3333", time.Now().UTC())
	require.NoError(t, store.Save(meta))

	require.NoError(t, store.Delete(meta.ID))
	assert.NoDirExists(t, filepath.Join(base, meta.ID))

	_, err = store.Get(meta.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, BackupErrorTypeNotFound))

	err = store.Delete(meta.ID)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, BackupErrorTypeNotFound))
}

func TestFileHistoryStore_SkipsCorruptRecords(t *testing.T) {
	base := t.TempDir()

	store, err := NewFileHistoryStore(base, newQuietLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Save(newTestMetadata("backup-good", time.Now().UTC())))
	require.NoError(t, store.Close())

	corruptDir := filepath.Join(base, "backup-corrupt")
	require.NoError(t, os.MkdirAll(corruptDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(corruptDir, historyMetadataFile), []byte("{not json"), 0644))

	reopened, err := NewFileHistoryStore(base, newQuietLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Count())
	_, err = reopened.Get("backup-good")
	assert.NoError(t, err)
}

func TestFileHistoryStore_SanitizesRecordDirectory(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileHistoryStore(base, newQuietLogger(t))
	require.NoError(t, err)
	defer store.Close()

	meta := newTestMetadata("weird id/with sep", time.Now().UTC())
	require.NoError(t, store.Save(meta))

	assert.FileExists(t, filepath.Join(base, "weird_id_with_sep", historyMetadataFile))

	// Lookups still use the original identifier
	got, err := store.Get("weird id/with sep")
	require.NoError(t, err)
	assert.Equal(t, meta.ID, got.ID)
}

// Shared test fixtures

func newQuietLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.NewLogger(logging.Config{
		Level:  logging.LogLevelQuiet,
		Output: io.Discard,
	})
	require.NoError(t, err)
	return logger
}

func newTestMetadata(id string, start time.Time) *BackupMetadata {
	return &BackupMetadata{
		ID:          id,
		StorageType: "postgres",
		Kind:        BackupKindFull,
		Status:      JobStatusCompleted,
		StartTime:   start,
		EndTime:     start.Add(time.Minute),
		Compression: CompressionTypeGzip,
		Files:       []string{"/backups/" + id + "/postgres.dump.gz"},
		Checksums:   map[string]string{"postgres.dump.gz": "deadbeef"},
		Size:        1024,
	}
}
