package backup

import (
	"context"
)

// Backend produces and consumes backups for one storage type. Implementations
// live outside this package and register with the orchestrator at startup.
// All blocking methods honor context cancellation.
type Backend interface {
	// StorageType returns the identifier the backend registers under
	StorageType() string

	// IsAvailable probes whether the storage and its tooling are reachable.
	// A false result is a state, not an error.
	IsAvailable(ctx context.Context) bool

	// EstimatedSize returns the expected backup size in bytes, or 0 when
	// no estimate is possible
	EstimatedSize(ctx context.Context) int64

	// CreateBackup writes backup artifacts into destDir and returns their
	// paths. Paths must stay inside destDir.
	CreateBackup(ctx context.Context, cfg *StorageBackupConfig, destDir string) ([]string, error)

	// RestoreBackup restores from previously created artifacts. With
	// opts.TargetDir set the restore is redirected into that directory
	// instead of the live target.
	RestoreBackup(ctx context.Context, meta *BackupMetadata, opts RestoreOptions) error

	// VerifyBackup runs one backend-specific verification strategy
	VerifyBackup(ctx context.Context, meta *BackupMetadata, vt VerificationType) (bool, error)

	// Cleanup releases backend resources such as pooled connections
	Cleanup() error
}

// DestinationHandler moves finished artifacts to one destination type
type DestinationHandler interface {
	// Upload copies local artifact files under the destination prefix for
	// the given backup ID and returns the stored object names
	Upload(ctx context.Context, backupID string, files []string) ([]string, error)

	// Download fetches all stored artifacts for the given backup ID into
	// destDir and returns the local paths
	Download(ctx context.Context, backupID string, destDir string) ([]string, error)

	// Delete removes all stored objects for the given backup ID
	Delete(ctx context.Context, backupID string) error

	// HealthCheck verifies the destination is reachable and writable
	HealthCheck(ctx context.Context) error
}

// HistoryStore persists backup metadata across restarts
type HistoryStore interface {
	Save(meta *BackupMetadata) error
	Get(backupID string) (*BackupMetadata, error)
	List() ([]*BackupMetadata, error)
	Delete(backupID string) error
	Close() error
}

// MetricsSink receives orchestrator counters and timings. Calls are
// fire-and-forget: implementations must be safe for concurrent use and must
// never fail in a way that affects job outcome.
type MetricsSink interface {
	RecordBackupStarted(storageType string)
	RecordBackupCompleted(storageType string, sizeBytes int64, durationSeconds float64)
	RecordBackupFailed(storageType string, errorType string)
	RecordBackupCancelled(storageType string)
	RecordRestore(storageType string, success bool, durationSeconds float64)
	RecordVerification(storageType string, vt VerificationType, passed bool)
	RecordRetentionDeleted(storageType string, count int)
	RecordQueueDepth(depth int)
}
