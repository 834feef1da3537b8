package backup

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAuditEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestAuditLogger_DisabledWithoutPath(t *testing.T) {
	audit, err := NewAuditLogger("")
	require.NoError(t, err)

	assert.False(t, audit.Enabled())
	assert.Empty(t, audit.CorrelationID())

	audit.JobFinished(&BackupJob{ID: "backup-1", Status: JobStatusCompleted})
	audit.RestorePerformed("backup-1", RestoreOptions{}, time.Second, nil)
	audit.BackupDeleted("backup-1", "postgres")
	audit.RetentionApplied(2, []string{"backup-1", "backup-2"})
	audit.ConfigUpdated()
	assert.NoError(t, audit.Close())
}

func TestAuditLogger_NilReceiver(t *testing.T) {
	var audit *AuditLogger

	assert.False(t, audit.Enabled())
	assert.Empty(t, audit.CorrelationID())
	audit.BackupDeleted("backup-1", "postgres")
	audit.ConfigUpdated()
	assert.NoError(t, audit.Close())
}

func TestAuditLogger_RecordsOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "backup-audit.log")
	audit, err := NewAuditLogger(path)
	require.NoError(t, err)
	require.True(t, audit.Enabled())
	require.NotEmpty(t, audit.CorrelationID())

	start := time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC)
	audit.JobFinished(&BackupJob{
		ID:          "backup-ok",
		StorageType: "postgres",
		Status:      JobStatusCompleted,
		Metadata: &BackupMetadata{
			ID:             "backup-ok",
			Size:           2048,
			CompressedSize: 512,
			StartTime:      start,
			EndTime:        start.Add(3 * time.Second),
		},
	})
	audit.JobFinished(&BackupJob{
		ID:          "backup-bad",
		StorageType: "mysql",
		Status:      JobStatusFailed,
		Error:       &JobError{Message: "mysqldump exited 2", Code: "EXTERNAL_TOOL"},
	})
	audit.RestorePerformed("backup-ok", RestoreOptions{Database: "restored_db", Overwrite: true}, 2*time.Second, nil)
	audit.RestorePerformed("backup-ok", RestoreOptions{}, time.Second, assert.AnError)
	audit.BackupDeleted("backup-ok", "postgres")
	audit.RetentionApplied(2, []string{"backup-old-1", "backup-old-2"})
	audit.ConfigUpdated()
	require.NoError(t, audit.Close())

	entries := readAuditEntries(t, path)
	require.Len(t, entries, 7)
	for _, entry := range entries {
		assert.Equal(t, audit.CorrelationID(), entry["correlation_id"])
		assert.Equal(t, "backup audit event", entry["msg"])
		assert.NotEmpty(t, entry["time"])
	}

	completed := entries[0]
	assert.Equal(t, "backup", completed["operation"])
	assert.Equal(t, "backup-ok", completed["resource"])
	assert.Equal(t, string(JobStatusCompleted), completed["result"])
	assert.Equal(t, "postgres", completed["storage_type"])
	assert.Equal(t, float64(512), completed["size"], "compressed size wins when present")
	assert.Equal(t, "3s", completed["duration"])

	failed := entries[1]
	assert.Equal(t, "backup", failed["operation"])
	assert.Equal(t, string(JobStatusFailed), failed["result"])
	assert.Equal(t, "mysqldump exited 2", failed["error"])
	assert.Equal(t, "EXTERNAL_TOOL", failed["error_code"])

	restored := entries[2]
	assert.Equal(t, "restore", restored["operation"])
	assert.Equal(t, "backup-ok", restored["resource"])
	assert.Equal(t, "succeeded", restored["result"])
	assert.Equal(t, "restored_db", restored["database"])
	assert.Equal(t, true, restored["overwrite"])

	restoreFailed := entries[3]
	assert.Equal(t, "failed", restoreFailed["result"])
	assert.Contains(t, restoreFailed, "error")

	deleted := entries[4]
	assert.Equal(t, "delete", deleted["operation"])
	assert.Equal(t, "backup-ok", deleted["resource"])
	assert.Equal(t, "postgres", deleted["storage_type"])

	retention := entries[5]
	assert.Equal(t, "retention", retention["operation"])
	assert.Equal(t, float64(2), retention["deleted"])
	assert.Equal(t, "backup-old-1,backup-old-2", retention["deleted_ids"])

	assert.Equal(t, "config", entries[6]["operation"])
	assert.Equal(t, "updated", entries[6]["result"])
}

func TestAuditLogger_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	audit, err := NewAuditLogger(path)
	require.NoError(t, err)

	require.NoError(t, audit.Close())
	assert.NoError(t, audit.Close())
	assert.False(t, audit.Enabled())

	// Recording after close must not reach the closed file.
	audit.BackupDeleted("backup-1", "postgres")
	assert.Empty(t, readAuditEntries(t, path))
}

func TestAuditLogger_AppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	first, err := NewAuditLogger(path)
	require.NoError(t, err)
	first.ConfigUpdated()
	require.NoError(t, first.Close())

	second, err := NewAuditLogger(path)
	require.NoError(t, err)
	second.ConfigUpdated()
	require.NoError(t, second.Close())

	entries := readAuditEntries(t, path)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0]["correlation_id"], entries[1]["correlation_id"],
		"each process run gets its own correlation id")
}
