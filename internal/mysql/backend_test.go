package mysql

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-orchestrator/internal/backup"
	"backup-orchestrator/internal/database"
	"backup-orchestrator/internal/execution"
	"backup-orchestrator/internal/logging"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()

	logger, err := logging.NewLogger(logging.Config{
		Level:  logging.LogLevelQuiet,
		Output: io.Discard,
	})
	require.NoError(t, err)

	return NewBackend("mysql", map[string]string{
		database.OptionHost:     "localhost",
		database.OptionPort:     "3306",
		database.OptionUser:     "root",
		database.OptionPassword: "s3cret",
		database.OptionDatabase: "shop",
	}, logger)
}

func TestNewBackend_Defaults(t *testing.T) {
	b := NewBackend("", nil, nil)

	assert.Equal(t, DefaultStorageType, b.StorageType())
	assert.NotNil(t, b.logger)
}

func TestDumpArgs(t *testing.T) {
	b := newTestBackend(t)
	settings, err := b.resolver.Settings()
	require.NoError(t, err)

	cfg := &backup.StorageBackupConfig{
		StorageType: "mysql",
		Options: map[string]string{
			OptionExcludeTables: "audit_log, analytics.events",
		},
	}

	args := b.dumpArgs(settings, cfg, "/scratch/mysql.sql")

	assert.Contains(t, args, "--host=localhost")
	assert.Contains(t, args, "--port=3306")
	assert.Contains(t, args, "--user=root")
	assert.Contains(t, args, "--single-transaction")
	assert.Contains(t, args, "--routines")
	assert.Contains(t, args, "--ignore-table=shop.audit_log")
	assert.Contains(t, args, "--ignore-table=analytics.events")
	assert.Contains(t, args, "--result-file=/scratch/mysql.sql")
	assert.Equal(t, "shop", args[len(args)-1])

	for _, arg := range args {
		assert.NotContains(t, arg, "s3cret", "password must never appear in arguments")
	}
}

func TestDumpArgs_SchemaOnly(t *testing.T) {
	b := newTestBackend(t)
	settings, err := b.resolver.Settings()
	require.NoError(t, err)

	cfg := &backup.StorageBackupConfig{
		StorageType: "mysql",
		Options: map[string]string{
			OptionSchemaOnly:   "true",
			OptionSkipRoutines: "true",
		},
	}

	args := b.dumpArgs(settings, cfg, "/scratch/mysql.sql")

	assert.Contains(t, args, "--no-data")
	assert.NotContains(t, args, "--routines")
	assert.NotContains(t, args, "--events")
}

func TestToolEnv(t *testing.T) {
	b := newTestBackend(t)

	env := b.toolEnv(&database.ConnectionSettings{Password: "s3cret"})
	assert.Equal(t, []string{"MYSQL_PWD=s3cret"}, env)

	assert.Nil(t, b.toolEnv(&database.ConnectionSettings{}))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`shop`", quoteIdentifier("shop"))
	assert.Equal(t, "`we``ird`", quoteIdentifier("we`ird"))
}

func TestFindSQLArtifact(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    string
		wantErr bool
	}{
		{
			name:  "picks sql file",
			files: []string{"/b/notes.txt", "/b/mysql.sql"},
			want:  "/b/mysql.sql",
		},
		{
			name:  "falls back to first file",
			files: []string{"/b/mysql.bak"},
			want:  "/b/mysql.bak",
		},
		{
			name:    "empty list",
			files:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findSQLArtifact(tt.files)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, backup.IsErrorType(err, backup.BackupErrorTypeNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyBackup(t *testing.T) {
	b := newTestBackend(t)
	dir := t.TempDir()

	sqlFile := filepath.Join(dir, "mysql.sql")
	require.NoError(t, os.WriteFile(sqlFile, []byte("CREATE TABLE t (id int);"), 0600))

	meta := &backup.BackupMetadata{ID: "backup-1", Files: []string{sqlFile}}

	ok, err := b.VerifyBackup(context.Background(), meta, backup.VerificationTypeIntegrityCheck)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, os.Truncate(sqlFile, 0))
	ok, err = b.VerifyBackup(context.Background(), meta, backup.VerificationTypeIntegrityCheck)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyBackup_UnsupportedType(t *testing.T) {
	b := newTestBackend(t)

	meta := &backup.BackupMetadata{ID: "backup-1", Files: []string{"/b/mysql.sql"}}

	_, err := b.VerifyBackup(context.Background(), meta, backup.VerificationTypeRestoreTest)
	require.Error(t, err)
	assert.True(t, backup.IsErrorType(err, backup.BackupErrorTypeValidation))
}

func TestRestoreBackup_TargetDirCopiesArtifact(t *testing.T) {
	b := newTestBackend(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "mysql.sql")
	require.NoError(t, os.WriteFile(src, []byte("SELECT 1;"), 0600))

	target := filepath.Join(dir, "restore-test")
	meta := &backup.BackupMetadata{ID: "backup-1", Files: []string{src}}

	err := b.RestoreBackup(context.Background(), meta, backup.RestoreOptions{TargetDir: target})
	require.NoError(t, err)

	copied, err := os.ReadFile(filepath.Join(target, "mysql.sql"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", string(copied))
}

func TestMapRunError(t *testing.T) {
	b := newTestBackend(t)

	err := b.mapRunError("mysqldump", execution.ErrToolNotFound, nil)
	assert.True(t, backup.IsErrorType(err, backup.BackupErrorTypeToolMissing))

	err = b.mapRunError("mysqldump", &execution.CommandError{Tool: "mysqldump", ExitCode: 2}, nil)
	assert.True(t, backup.IsErrorType(err, backup.BackupErrorTypeExternalTool))

	assert.NoError(t, b.mapRunError("mysqldump", nil, nil))
}
