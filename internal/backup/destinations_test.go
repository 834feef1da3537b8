package backup

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBackupID(t *testing.T) {
	tests := []struct {
		name     string
		backupID string
		expected string
	}{
		{
			name:     "normal backup ID",
			backupID: "backup-20240115-abc123",
			expected: "backup-20240115-abc123",
		},
		{
			name:     "backup ID with spaces",
			backupID: "backup 123",
			expected: "backup_123",
		},
		{
			name:     "backup ID with forward slash",
			backupID: "backup/123",
			expected: "backup_123",
		},
		{
			name:     "backup ID with backslash",
			backupID: "backup\\123",
			expected: "backup_123",
		},
		{
			name:     "backup ID with traversal",
			backupID: "../../etc/passwd",
			expected: "____etc_passwd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeBackupID(tt.backupID))
		})
	}
}

func TestNormalizeObjectPrefix(t *testing.T) {
	assert.Equal(t, "backups/", normalizeObjectPrefix(""))
	assert.Equal(t, "archive/", normalizeObjectPrefix("archive"))
	assert.Equal(t, "archive/", normalizeObjectPrefix("archive/"))
	assert.Equal(t, "a/b/", normalizeObjectPrefix("a/b"))
}

func TestExpandArtifacts_Files(t *testing.T) {
	dir := t.TempDir()

	dump := filepath.Join(dir, "postgres.dump")
	globals := filepath.Join(dir, "postgres-globals.sql")
	require.NoError(t, os.WriteFile(dump, []byte("dump"), 0644))
	require.NoError(t, os.WriteFile(globals, []byte("globals"), 0644))

	objects, err := expandArtifacts([]string{dump, globals})
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, "postgres.dump", objects[0].Name)
	assert.Equal(t, dump, objects[0].LocalPath)
	assert.Equal(t, "postgres-globals.sql", objects[1].Name)
}

func TestExpandArtifacts_DirectoryArtifact(t *testing.T) {
	dir := t.TempDir()

	artifact := filepath.Join(dir, "postgres.dir")
	require.NoError(t, os.MkdirAll(filepath.Join(artifact, "blobs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(artifact, "toc.dat"), []byte("toc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(artifact, "blobs", "3001.dat"), []byte("rows"), 0644))

	objects, err := expandArtifacts([]string{artifact})
	require.NoError(t, err)
	require.Len(t, objects, 2)

	names := []string{objects[0].Name, objects[1].Name}
	sort.Strings(names)
	assert.Equal(t, []string{"postgres.dir/blobs/3001.dat", "postgres.dir/toc.dat"}, names)
}

func TestExpandArtifacts_MissingArtifact(t *testing.T) {
	_, err := expandArtifacts([]string{filepath.Join(t.TempDir(), "missing.dump")})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, BackupErrorTypeStorage))
}

func TestCopyArtifactFile_CreatesParents(t *testing.T) {
	dir := t.TempDir()

	src := filepath.Join(dir, "src.sql")
	require.NoError(t, os.WriteFile(src, []byte("select 1;"), 0644))

	dst := filepath.Join(dir, "nested", "deep", "dst.sql")
	require.NoError(t, copyArtifactFile(src, dst, 0644))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "select 1;", string(data))
}
