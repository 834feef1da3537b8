// Package mysql implements the storage backend contract for MySQL and
// MariaDB databases using mysqldump and the mysql client.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"backup-orchestrator/internal/backup"
	"backup-orchestrator/internal/database"
	"backup-orchestrator/internal/execution"
	"backup-orchestrator/internal/logging"
)

// DefaultStorageType is the storage type the backend registers under when
// no explicit name is configured
const DefaultStorageType = "mysql"

// Option keys honored in a StorageBackupConfig options bag
const (
	OptionSchemaOnly    = "schema_only"
	OptionExcludeTables = "exclude_tables"
	OptionSkipRoutines  = "skip_routines"
)

const (
	dumpTimeout = time.Hour
	auxTimeout  = 5 * time.Minute

	connTarget = "target"
	connAdmin  = "admin"
)

// Backend backs up and restores one MySQL database as a plain SQL dump
type Backend struct {
	storageType string
	resolver    *database.Resolver
	service     *database.Service
	conns       *database.ConnectionManager
	runner      *execution.Runner
	logger      *logging.Logger
}

// NewBackend creates a MySQL backend. connectionOptions carries either a
// url option or discrete host/port/user/password/database options; unset
// fields fall back to the MySQL client environment variables.
func NewBackend(storageType string, connectionOptions map[string]string, logger *logging.Logger) *Backend {
	if storageType == "" {
		storageType = DefaultStorageType
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	service := database.NewServiceWithLogger(logger)
	return &Backend{
		storageType: storageType,
		resolver:    database.NewResolver(connectionOptions, database.EnvDefaults(database.DriverMySQL)),
		service:     service,
		conns:       database.NewConnectionManager(service),
		runner:      execution.NewRunner(execution.RunnerConfig{DefaultTimeout: dumpTimeout}, logger),
		logger:      logger,
	}
}

// StorageType returns the identifier the backend registers under
func (b *Backend) StorageType() string {
	return b.storageType
}

// IsAvailable probes the database with a ping
func (b *Backend) IsAvailable(ctx context.Context) bool {
	start := time.Now()

	settings, err := b.resolver.Settings()
	if err != nil {
		b.logger.LogBackendProbe(b.storageType, false, time.Since(start), err)
		return false
	}

	db, err := b.conns.Get(ctx, connTarget, database.DriverMySQL, settings)
	if err == nil {
		err = b.service.Ping(ctx, db)
	}

	available := err == nil
	b.logger.LogBackendProbe(b.storageType, available, time.Since(start), err)
	return available
}

// EstimatedSize sums data and index sizes over information_schema, or
// returns 0 when the size cannot be determined
func (b *Backend) EstimatedSize(ctx context.Context) int64 {
	settings, err := b.resolver.Settings()
	if err != nil {
		return 0
	}

	db, err := b.conns.Get(ctx, connTarget, database.DriverMySQL, settings)
	if err != nil {
		return 0
	}

	const query = `SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = ?`

	var size int64
	if err := db.QueryRowContext(ctx, query, settings.Database).Scan(&size); err != nil {
		b.logger.WithField("error", err.Error()).Debug("Failed to estimate database size")
		return 0
	}
	return size
}

// CreateBackup dumps the database into destDir as a single plain SQL
// artifact named after the storage type
func (b *Backend) CreateBackup(ctx context.Context, cfg *backup.StorageBackupConfig, destDir string) ([]string, error) {
	settings, err := b.resolver.Settings()
	if err != nil {
		return nil, backup.NewNotConfiguredError("mysql connection is not configured", err)
	}

	if _, err := b.runner.LookTool("mysqldump"); err != nil {
		return nil, backup.NewToolMissingError("mysqldump is required to create backups", err)
	}

	outPath := filepath.Join(destDir, b.storageType+".sql")
	args := b.dumpArgs(settings, cfg, outPath)

	result, err := b.runner.Run(ctx, execution.CommandSpec{
		Tool:    "mysqldump",
		Args:    args,
		Env:     b.toolEnv(settings),
		Timeout: dumpTimeout,
	})
	if err := b.mapRunError("mysqldump", err, result); err != nil {
		return nil, err
	}

	return []string{outPath}, nil
}

// RestoreBackup replays the SQL artifact from meta through the mysql
// client. opts.Overwrite drops and recreates the database first and can
// destroy existing data; opts.TargetDir copies the artifact into that
// directory instead of touching the live database.
func (b *Backend) RestoreBackup(ctx context.Context, meta *backup.BackupMetadata, opts backup.RestoreOptions) error {
	settings, err := b.resolver.Settings()
	if err != nil {
		return backup.NewNotConfiguredError("mysql connection is not configured", err)
	}
	if opts.Database != "" {
		settings = settings.WithDatabase(opts.Database)
	}

	artifact, err := findSQLArtifact(meta.Files)
	if err != nil {
		return err
	}

	if opts.TargetDir != "" {
		if err := os.MkdirAll(opts.TargetDir, 0755); err != nil {
			return backup.NewStorageError(fmt.Sprintf("failed to create restore directory %s", opts.TargetDir), err)
		}
		if err := copyFile(artifact, filepath.Join(opts.TargetDir, filepath.Base(artifact))); err != nil {
			return backup.NewStorageError("failed to copy SQL artifact", err)
		}
		return nil
	}

	if _, err := b.runner.LookTool("mysql"); err != nil {
		return backup.NewToolMissingError("the mysql client is required to restore backups", err)
	}

	if opts.Overwrite {
		if err := b.recreateDatabase(ctx, settings); err != nil {
			return err
		}
	}

	dump, err := os.Open(artifact)
	if err != nil {
		return backup.NewNotFoundError(fmt.Sprintf("backup artifact %s is not readable", artifact), err)
	}
	defer dump.Close()

	args := append(b.connectionArgs(settings), settings.Database)
	result, runErr := b.runner.Run(ctx, execution.CommandSpec{
		Tool:    "mysql",
		Args:    args,
		Env:     b.toolEnv(settings),
		Timeout: dumpTimeout,
		Stdin:   dump,
	})
	return b.mapRunError("mysql", runErr, result)
}

// recreateDatabase drops and recreates the target database through an
// admin connection with no default schema selected
func (b *Backend) recreateDatabase(ctx context.Context, settings *database.ConnectionSettings) error {
	admin, err := b.conns.Get(ctx, connAdmin, database.DriverMySQL, settings.WithDatabase(""))
	if err != nil {
		return backup.NewUnavailableError("failed to open an admin connection", err)
	}

	b.logger.WithFields(map[string]interface{}{
		"storage_type": b.storageType,
		"database":     settings.Database,
	}).Warn("Dropping and recreating database for destructive restore")

	ident := quoteIdentifier(settings.Database)
	if err := b.service.ExecuteAdmin(ctx, admin, "DROP DATABASE IF EXISTS "+ident); err != nil {
		return backup.NewExternalToolError("failed to drop target database", err)
	}
	if err := b.service.ExecuteAdmin(ctx, admin, "CREATE DATABASE "+ident); err != nil {
		return backup.NewExternalToolError("failed to recreate target database", err)
	}

	return nil
}

// VerifyBackup implements the backend side of integrity-check
// verification: the SQL artifact must exist and be non-empty
func (b *Backend) VerifyBackup(ctx context.Context, meta *backup.BackupMetadata, vt backup.VerificationType) (bool, error) {
	if vt != backup.VerificationTypeIntegrityCheck {
		return false, backup.NewValidationError(fmt.Sprintf("mysql backend does not implement verification type %q", vt), nil)
	}

	artifact, err := findSQLArtifact(meta.Files)
	if err != nil {
		return false, err
	}

	info, statErr := os.Stat(artifact)
	if statErr != nil {
		return false, nil
	}
	return info.Size() > 0, nil
}

// Cleanup closes the cached connection pools
func (b *Backend) Cleanup() error {
	return b.conns.CloseAll()
}

// dumpArgs assembles the mysqldump invocation. --single-transaction keeps
// the dump consistent without locking InnoDB tables.
func (b *Backend) dumpArgs(settings *database.ConnectionSettings, cfg *backup.StorageBackupConfig, outPath string) []string {
	args := b.connectionArgs(settings)
	args = append(args, "--single-transaction", "--triggers")

	if cfg.Option(OptionSkipRoutines, "") != "true" {
		args = append(args, "--routines", "--events")
	}

	if cfg.Option(OptionSchemaOnly, "") == "true" {
		args = append(args, "--no-data")
	}

	for _, table := range splitList(cfg.Option(OptionExcludeTables, "")) {
		// mysqldump requires the schema qualifier on ignored tables
		if !strings.Contains(table, ".") {
			table = settings.Database + "." + table
		}
		args = append(args, "--ignore-table="+table)
	}

	args = append(args, "--result-file="+outPath)
	return append(args, settings.Database)
}

// connectionArgs returns the shared host/port/user flags. The password is
// deliberately absent; it travels via MYSQL_PWD in the child environment
// so it never shows up in process listings.
func (b *Backend) connectionArgs(settings *database.ConnectionSettings) []string {
	return []string{
		"--host=" + settings.Host,
		"--port=" + strconv.Itoa(settings.Port),
		"--user=" + settings.Username,
	}
}

func (b *Backend) toolEnv(settings *database.ConnectionSettings) []string {
	if settings.Password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + settings.Password}
}

// mapRunError translates runner errors into the backup error taxonomy
func (b *Backend) mapRunError(tool string, err error, result *execution.Result) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, execution.ErrToolNotFound):
		return backup.NewToolMissingError(fmt.Sprintf("%s is not installed or not on PATH", tool), err)
	case errors.Is(err, context.DeadlineExceeded):
		return backup.NewTimeoutError(fmt.Sprintf("%s exceeded its time budget and was killed", tool), err)
	case errors.Is(err, context.Canceled):
		return backup.NewCancelledError(fmt.Sprintf("%s was cancelled", tool), err)
	}

	var cmdErr *execution.CommandError
	if errors.As(err, &cmdErr) {
		mapped := backup.NewExternalToolError(fmt.Sprintf("%s exited with code %d", tool, cmdErr.ExitCode), err)
		mapped.WithContext("exit_code", cmdErr.ExitCode)
		if result != nil && result.Stderr != "" {
			mapped.WithContext("stderr", result.Stderr)
		}
		return mapped
	}

	return backup.NewInternalError(fmt.Sprintf("failed to run %s", tool), err)
}

// findSQLArtifact picks the restorable SQL file from a file list
func findSQLArtifact(files []string) (string, error) {
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".sql") {
			return f, nil
		}
	}
	if len(files) > 0 {
		return files[0], nil
	}
	return "", backup.NewNotFoundError("no suitable backup file found among backup artifacts", nil)
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
