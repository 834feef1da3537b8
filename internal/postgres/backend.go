// Package postgres implements the storage backend contract for PostgreSQL
// databases using the native client tools (pg_dump, pg_restore, psql,
// pg_dumpall) with credentials passed through the child environment.
package postgres

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

	"github.com/jackc/pgx/v5"

	"backup-orchestrator/internal/backup"
	"backup-orchestrator/internal/database"
	"backup-orchestrator/internal/execution"
	"backup-orchestrator/internal/logging"
)

// DefaultStorageType is the storage type the backend registers under when
// no explicit name is configured
const DefaultStorageType = "postgres"

// DumpFormat selects the pg_dump output format
type DumpFormat string

const (
	FormatCustom    DumpFormat = "custom"
	FormatTar       DumpFormat = "tar"
	FormatDirectory DumpFormat = "directory"
	FormatPlain     DumpFormat = "plain"
)

// Option keys honored in a StorageBackupConfig options bag
const (
	OptionFormat          = "format"
	OptionSchemaOnly      = "schema_only"
	OptionExcludeTables   = "exclude_tables"
	OptionParallelWorkers = "parallel_workers"
	OptionSchemaDump      = "schema_dump"
	OptionGlobalsDump     = "globals_dump"
	OptionAdminDatabase   = "admin_database"
)

const (
	// dumpTimeout bounds the primary dump and every restore invocation
	dumpTimeout = time.Hour
	// auxTimeout bounds side artifacts, globals replay and integrity listings
	auxTimeout = 5 * time.Minute

	// restoreJobs is the fixed pg_restore worker count for parallel-capable
	// formats during destructive restores
	restoreJobs = 4

	connTarget = "target"
	connAdmin  = "admin"
)

var formatExtensions = map[DumpFormat]string{
	FormatCustom:    ".dump",
	FormatTar:       ".tar",
	FormatDirectory: ".dir",
	FormatPlain:     ".sql",
}

// pgdmpMagic is the header of custom-format archives
var pgdmpMagic = []byte("PGDMP")

// Backend backs up and restores one PostgreSQL database
type Backend struct {
	storageType string
	adminDB     string
	resolver    *database.Resolver
	service     *database.Service
	conns       *database.ConnectionManager
	runner      *execution.Runner
	logger      *logging.Logger
}

// NewBackend creates a PostgreSQL backend. connectionOptions carries either
// a url option or discrete host/port/user/password/database/sslmode options;
// unset fields fall back to the libpq environment variables.
func NewBackend(storageType string, connectionOptions map[string]string, logger *logging.Logger) *Backend {
	if storageType == "" {
		storageType = DefaultStorageType
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	adminDB := connectionOptions[OptionAdminDatabase]
	if adminDB == "" {
		adminDB = "postgres"
	}

	service := database.NewServiceWithLogger(logger)
	return &Backend{
		storageType: storageType,
		adminDB:     adminDB,
		resolver:    database.NewResolver(connectionOptions, database.EnvDefaults(database.DriverPostgres)),
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

// IsAvailable probes the database with a ping. Failures are reported as
// unavailable, never returned as errors.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	start := time.Now()

	settings, err := b.resolver.Settings()
	if err != nil {
		b.logger.LogBackendProbe(b.storageType, false, time.Since(start), err)
		return false
	}

	db, err := b.conns.Get(ctx, connTarget, database.DriverPostgres, settings)
	if err == nil {
		err = b.service.Ping(ctx, db)
	}

	available := err == nil
	b.logger.LogBackendProbe(b.storageType, available, time.Since(start), err)
	return available
}

// EstimatedSize returns the target database size in bytes, or 0 when it
// cannot be determined
func (b *Backend) EstimatedSize(ctx context.Context) int64 {
	settings, err := b.resolver.Settings()
	if err != nil {
		return 0
	}

	db, err := b.conns.Get(ctx, connTarget, database.DriverPostgres, settings)
	if err != nil {
		return 0
	}

	var size int64
	if err := db.QueryRowContext(ctx, "SELECT pg_database_size(current_database())").Scan(&size); err != nil {
		b.logger.WithField("error", err.Error()).Debug("Failed to estimate database size")
		return 0
	}
	return size
}

// CreateBackup dumps the database into destDir and returns the artifact
// paths. The primary artifact is named after the storage type with a
// format-specific extension; optional schema-only and globals artifacts are
// appended when configured.
func (b *Backend) CreateBackup(ctx context.Context, cfg *backup.StorageBackupConfig, destDir string) ([]string, error) {
	settings, err := b.resolver.Settings()
	if err != nil {
		return nil, backup.NewNotConfiguredError("postgres connection is not configured", err)
	}

	if _, err := b.runner.LookTool("pg_dump"); err != nil {
		return nil, backup.NewToolMissingError("pg_dump is required to create backups", err)
	}

	format, err := parseFormat(cfg.Option(OptionFormat, string(FormatCustom)))
	if err != nil {
		return nil, err
	}

	outPath := filepath.Join(destDir, b.storageType+formatExtensions[format])

	// Retried jobs reuse the same scratch path. pg_dump refuses to write a
	// directory-format dump over a non-empty directory, so clear it first.
	if err := os.RemoveAll(outPath); err != nil {
		return nil, backup.NewStorageError(fmt.Sprintf("failed to clear previous artifact %s", outPath), err)
	}

	args := b.dumpArgs(settings, cfg, format, outPath)
	if _, err := b.run(ctx, "pg_dump", args, settings, dumpTimeout, nil); err != nil {
		return nil, err
	}

	files := []string{outPath}

	if cfg.Option(OptionSchemaDump, "") == "true" {
		schemaPath := filepath.Join(destDir, b.storageType+"-schema.sql")
		schemaArgs := b.connectionArgs(settings)
		schemaArgs = append(schemaArgs,
			"--dbname="+settings.Database,
			"--format=plain",
			"--schema-only",
			"--file="+schemaPath,
		)
		if _, err := b.run(ctx, "pg_dump", schemaArgs, settings, auxTimeout, nil); err != nil {
			return nil, err
		}
		files = append(files, schemaPath)
	}

	if cfg.Option(OptionGlobalsDump, "") == "true" {
		globalsPath, err := b.dumpGlobals(ctx, settings, destDir)
		if err != nil {
			return nil, err
		}
		files = append(files, globalsPath)
	}

	return files, nil
}

// dumpGlobals captures cluster-wide objects (roles, tablespaces) by
// streaming pg_dumpall output into a file
func (b *Backend) dumpGlobals(ctx context.Context, settings *database.ConnectionSettings, destDir string) (string, error) {
	if _, err := b.runner.LookTool("pg_dumpall"); err != nil {
		return "", backup.NewToolMissingError("pg_dumpall is required for globals backups", err)
	}

	globalsPath := filepath.Join(destDir, b.storageType+"-globals.sql")
	args := b.connectionArgs(settings)
	args = append(args, "--globals-only")

	result, err := b.runner.RunToFile(ctx, execution.CommandSpec{
		Tool:    "pg_dumpall",
		Args:    args,
		Env:     b.toolEnv(settings),
		Timeout: auxTimeout,
	}, globalsPath)
	if err := b.mapRunError("pg_dumpall", err, result); err != nil {
		return "", err
	}
	return globalsPath, nil
}

// RestoreBackup restores the primary artifact from meta. With
// opts.TargetDir set the archive is converted into SQL files inside that
// directory instead of touching the live database. opts.Overwrite enables
// the destructive recreate path and can destroy existing data.
func (b *Backend) RestoreBackup(ctx context.Context, meta *backup.BackupMetadata, opts backup.RestoreOptions) error {
	settings, err := b.resolver.Settings()
	if err != nil {
		return backup.NewNotConfiguredError("postgres connection is not configured", err)
	}
	if opts.Database != "" {
		settings = settings.WithDatabase(opts.Database)
	}

	primary, err := findPrimaryArtifact(meta.Files)
	if err != nil {
		return err
	}

	format := detectFormat(primary)

	if opts.TargetDir != "" {
		return b.restoreToDir(ctx, primary, format, opts.TargetDir)
	}

	switch format {
	case FormatCustom, FormatTar, FormatDirectory:
		if err := b.restoreArchive(ctx, settings, primary, format, opts); err != nil {
			return err
		}
	case FormatPlain:
		if err := b.restorePlain(ctx, settings, primary, opts); err != nil {
			return err
		}
	}

	if globals := findGlobalsArtifact(meta.Files); globals != "" {
		if err := b.replayGlobals(ctx, settings, globals); err != nil {
			return err
		}
	}

	return nil
}

// restoreArchive replays a custom/tar/directory archive with pg_restore
func (b *Backend) restoreArchive(ctx context.Context, settings *database.ConnectionSettings, primary string, format DumpFormat, opts backup.RestoreOptions) error {
	if _, err := b.runner.LookTool("pg_restore"); err != nil {
		return backup.NewToolMissingError("pg_restore is required to restore archive backups", err)
	}

	args := b.connectionArgs(settings)
	args = append(args, "--dbname="+settings.Database)
	if opts.Overwrite {
		args = append(args, "--clean", "--if-exists")
		// tar archives cannot be restored in parallel
		if format == FormatCustom || format == FormatDirectory {
			args = append(args, "--jobs="+strconv.Itoa(restoreJobs))
		}
	}
	args = append(args, primary)

	_, err := b.run(ctx, "pg_restore", args, settings, dumpTimeout, nil)
	return err
}

// restorePlain replays a plain SQL dump with psql. With opts.Overwrite the
// target database is dropped and recreated first.
func (b *Backend) restorePlain(ctx context.Context, settings *database.ConnectionSettings, primary string, opts backup.RestoreOptions) error {
	if _, err := b.runner.LookTool("psql"); err != nil {
		return backup.NewToolMissingError("psql is required to restore plain SQL backups", err)
	}

	if opts.Overwrite {
		if err := b.recreateDatabase(ctx, settings); err != nil {
			return err
		}
	}

	args := b.connectionArgs(settings)
	args = append(args,
		"--dbname="+settings.Database,
		"--set=ON_ERROR_STOP=1",
		"--file="+primary,
	)

	_, err := b.run(ctx, "psql", args, settings, dumpTimeout, nil)
	return err
}

// recreateDatabase terminates every other session on the target database,
// then drops and recreates it through the admin database. Sessions must be
// fully terminated before DROP or it fails with "database is in use".
func (b *Backend) recreateDatabase(ctx context.Context, settings *database.ConnectionSettings) error {
	admin, err := b.conns.Get(ctx, connAdmin, database.DriverPostgres, settings.WithDatabase(b.adminDB))
	if err != nil {
		return backup.NewUnavailableError("failed to connect to the admin database", err)
	}

	b.logger.WithFields(map[string]interface{}{
		"storage_type": b.storageType,
		"database":     settings.Database,
	}).Warn("Dropping and recreating database for destructive restore")

	const terminate = `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`
	if _, err := admin.ExecContext(ctx, terminate, settings.Database); err != nil {
		return backup.NewExternalToolError("failed to terminate sessions on target database", err)
	}

	ident := pgx.Identifier{settings.Database}.Sanitize()
	if err := b.service.ExecuteAdmin(ctx, admin, "DROP DATABASE IF EXISTS "+ident); err != nil {
		return backup.NewExternalToolError("failed to drop target database", err)
	}
	if err := b.service.ExecuteAdmin(ctx, admin, "CREATE DATABASE "+ident); err != nil {
		return backup.NewExternalToolError("failed to recreate target database", err)
	}

	return nil
}

// replayGlobals replays a globals artifact against the admin database
func (b *Backend) replayGlobals(ctx context.Context, settings *database.ConnectionSettings, globals string) error {
	if _, err := b.runner.LookTool("psql"); err != nil {
		return backup.NewToolMissingError("psql is required to replay globals", err)
	}

	args := b.connectionArgs(settings)
	args = append(args,
		"--dbname="+b.adminDB,
		"--file="+globals,
	)

	_, err := b.run(ctx, "psql", args, settings, auxTimeout, nil)
	return err
}

// restoreToDir converts the artifact into SQL files inside targetDir
// without contacting the database. Used by restore-test verification.
func (b *Backend) restoreToDir(ctx context.Context, primary string, format DumpFormat, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return backup.NewStorageError(fmt.Sprintf("failed to create restore directory %s", targetDir), err)
	}

	switch format {
	case FormatCustom, FormatTar, FormatDirectory:
		if _, err := b.runner.LookTool("pg_restore"); err != nil {
			return backup.NewToolMissingError("pg_restore is required to unpack archive backups", err)
		}
		// Without --dbname pg_restore emits the archive as a SQL script,
		// which exercises the full archive read path
		args := []string{
			"--file=" + filepath.Join(targetDir, "restored.sql"),
			primary,
		}
		result, err := b.runner.Run(ctx, execution.CommandSpec{
			Tool:    "pg_restore",
			Args:    args,
			Timeout: dumpTimeout,
		})
		return b.mapRunError("pg_restore", err, result)
	case FormatPlain:
		dest := filepath.Join(targetDir, filepath.Base(primary))
		if err := copyFile(primary, dest); err != nil {
			return backup.NewStorageError("failed to copy plain SQL artifact", err)
		}
		return nil
	default:
		return backup.NewNotFoundError(fmt.Sprintf("no restore strategy for format %q", format), nil)
	}
}

// VerifyBackup implements the backend side of integrity-check verification:
// archive artifacts must yield a readable table of contents, plain SQL
// artifacts must exist and be non-empty.
func (b *Backend) VerifyBackup(ctx context.Context, meta *backup.BackupMetadata, vt backup.VerificationType) (bool, error) {
	if vt != backup.VerificationTypeIntegrityCheck {
		return false, backup.NewValidationError(fmt.Sprintf("postgres backend does not implement verification type %q", vt), nil)
	}

	primary, err := findPrimaryArtifact(meta.Files)
	if err != nil {
		return false, err
	}

	switch detectFormat(primary) {
	case FormatCustom, FormatTar, FormatDirectory:
		if _, err := b.runner.LookTool("pg_restore"); err != nil {
			return false, backup.NewToolMissingError("pg_restore is required for integrity checks", err)
		}
		result, runErr := b.runner.Run(ctx, execution.CommandSpec{
			Tool:    "pg_restore",
			Args:    []string{"--list", primary},
			Timeout: auxTimeout,
		})
		if mapped := b.mapRunError("pg_restore", runErr, result); mapped != nil {
			if backup.IsErrorType(mapped, backup.BackupErrorTypeExternalTool) {
				// Unreadable archive is a verification outcome, not a fault
				b.logger.WithFields(map[string]interface{}{
					"backup_id": meta.ID,
					"artifact":  primary,
				}).Warn("Archive table of contents is unreadable")
				return false, nil
			}
			return false, mapped
		}
		return strings.TrimSpace(result.Stdout) != "", nil
	case FormatPlain:
		info, statErr := os.Stat(primary)
		if statErr != nil {
			return false, nil
		}
		return info.Size() > 0, nil
	default:
		return false, nil
	}
}

// Cleanup closes the cached connection pools
func (b *Backend) Cleanup() error {
	return b.conns.CloseAll()
}

// dumpArgs assembles the primary pg_dump invocation
func (b *Backend) dumpArgs(settings *database.ConnectionSettings, cfg *backup.StorageBackupConfig, format DumpFormat, outPath string) []string {
	args := b.connectionArgs(settings)
	args = append(args,
		"--dbname="+settings.Database,
		"--format="+string(format),
	)

	if cfg.Option(OptionSchemaOnly, "") == "true" {
		args = append(args, "--schema-only")
	}

	for _, table := range splitList(cfg.Option(OptionExcludeTables, "")) {
		args = append(args, "--exclude-table="+table)
	}

	// pg_dump only supports --compress for custom and directory archives
	if cfg.CompressionLevel > 0 && (format == FormatCustom || format == FormatDirectory) {
		args = append(args, "--compress="+strconv.Itoa(cfg.CompressionLevel))
	}

	// Parallel dumping requires the directory format
	if format == FormatDirectory {
		if workers := cfg.Option(OptionParallelWorkers, ""); workers != "" {
			args = append(args, "--jobs="+workers)
		}
	}

	return append(args, "--file="+outPath)
}

// connectionArgs returns the shared host/port/user flags. The password is
// deliberately absent; it travels via PGPASSWORD in the child environment
// so it never shows up in process listings.
func (b *Backend) connectionArgs(settings *database.ConnectionSettings) []string {
	return []string{
		"--host=" + settings.Host,
		"--port=" + strconv.Itoa(settings.Port),
		"--username=" + settings.Username,
		"--no-password",
	}
}

func (b *Backend) toolEnv(settings *database.ConnectionSettings) []string {
	var env []string
	if settings.Password != "" {
		env = append(env, "PGPASSWORD="+settings.Password)
	}
	if settings.SSLMode != "" {
		env = append(env, "PGSSLMODE="+settings.SSLMode)
	}
	return env
}

func (b *Backend) run(ctx context.Context, tool string, args []string, settings *database.ConnectionSettings, timeout time.Duration, stdout io.Writer) (*execution.Result, error) {
	result, err := b.runner.Run(ctx, execution.CommandSpec{
		Tool:    tool,
		Args:    args,
		Env:     b.toolEnv(settings),
		Timeout: timeout,
		Stdout:  stdout,
	})
	return result, b.mapRunError(tool, err, result)
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

// parseFormat validates a configured dump format
func parseFormat(raw string) (DumpFormat, error) {
	format := DumpFormat(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := formatExtensions[format]; !ok {
		return "", backup.NewValidationError(fmt.Sprintf("unsupported dump format %q", raw), nil)
	}
	return format, nil
}

// detectFormat maps an artifact path to its dump format. Unknown
// extensions are sniffed: the PGDMP magic marks a custom archive,
// anything else is treated as plain SQL.
func detectFormat(path string) DumpFormat {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return FormatDirectory
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".dump":
		return FormatCustom
	case ".tar":
		return FormatTar
	case ".dir":
		return FormatDirectory
	case ".sql":
		return FormatPlain
	}

	if hasPGDMPHeader(path) {
		return FormatCustom
	}
	return FormatPlain
}

func hasPGDMPHeader(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, len(pgdmpMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return string(header) == string(pgdmpMagic)
}

// findPrimaryArtifact picks the restorable artifact from a file list,
// preferring richer archive formats and skipping side artifacts
func findPrimaryArtifact(files []string) (string, error) {
	var candidates []string
	for _, f := range files {
		if isSideArtifact(f) {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return "", backup.NewNotFoundError("no suitable backup file found among backup artifacts", nil)
	}

	for _, ext := range []string{".dump", ".tar", ".dir", ".sql"} {
		for _, f := range candidates {
			if strings.EqualFold(filepath.Ext(f), ext) {
				return f, nil
			}
		}
	}
	return candidates[0], nil
}

// findGlobalsArtifact returns the globals artifact path, if present
func findGlobalsArtifact(files []string) string {
	for _, f := range files {
		if strings.HasSuffix(f, "-globals.sql") {
			return f
		}
	}
	return ""
}

func isSideArtifact(path string) bool {
	return strings.HasSuffix(path, "-globals.sql") || strings.HasSuffix(path, "-schema.sql")
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
