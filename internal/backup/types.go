package backup

import (
	"os"
	"time"
)

// BackupConfig is the process-wide backup configuration. It is owned by the
// orchestrator and replaced atomically through UpdateConfig.
type BackupConfig struct {
	Enabled      bool                  `yaml:"enabled" json:"enabled"`
	Storages     []StorageBackupConfig `yaml:"storages" json:"storages"`
	Destinations []BackupDestination   `yaml:"destinations" json:"destinations"`
	Schedule     ScheduleConfig        `yaml:"schedule" json:"schedule"`
	Retention    RetentionPolicy       `yaml:"retention" json:"retention"`
	Encryption   *EncryptionConfig     `yaml:"encryption,omitempty" json:"encryption,omitempty"`
	Global       GlobalSettings        `yaml:"global" json:"global"`
}

// ScheduleConfig is the default cron schedule applied to every enabled
// storage type unless it carries its own expression
type ScheduleConfig struct {
	Expression string `yaml:"expression" json:"expression"`
	Timezone   string `yaml:"timezone" json:"timezone"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
}

// GlobalSettings holds orchestrator-wide operational settings
type GlobalSettings struct {
	MaxParallelJobs      int                `yaml:"max_parallel_jobs" json:"max_parallel_jobs"`
	VerifyAfterBackup    bool               `yaml:"verify_after_backup" json:"verify_after_backup"`
	VerificationTypes    []VerificationType `yaml:"verification_types" json:"verification_types"`
	ParallelVerification bool               `yaml:"parallel_verification" json:"parallel_verification"`
	ScratchDir           string             `yaml:"scratch_dir" json:"scratch_dir"`
	HistoryDir           string             `yaml:"history_dir" json:"history_dir"`
	ReportDir            string             `yaml:"report_dir" json:"report_dir"`
	// AuditLogFile appends a JSON-lines audit trail of backup, restore,
	// delete and retention operations when set
	AuditLogFile string `yaml:"audit_log_file,omitempty" json:"audit_log_file,omitempty"`
}

// StorageBackupConfig configures backups for one storage type
type StorageBackupConfig struct {
	StorageType         string            `yaml:"storage_type" json:"storage_type"`
	Enabled             bool              `yaml:"enabled" json:"enabled"`
	Kind                BackupKind        `yaml:"kind" json:"kind"`
	Compression         CompressionType   `yaml:"compression" json:"compression"`
	CompressionLevel    int               `yaml:"compression_level" json:"compression_level"`
	Schedule            string            `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	PreBackupHooks      []string          `yaml:"pre_backup_hooks,omitempty" json:"pre_backup_hooks,omitempty"`
	PostBackupHooks     []string          `yaml:"post_backup_hooks,omitempty" json:"post_backup_hooks,omitempty"`
	VerificationScripts []string          `yaml:"verification_scripts,omitempty" json:"verification_scripts,omitempty"`
	ScriptTimeout       time.Duration     `yaml:"script_timeout,omitempty" json:"script_timeout,omitempty"`
	Options             map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Option returns a backend-specific option value with a fallback default
func (c *StorageBackupConfig) Option(key, fallback string) string {
	if c == nil || c.Options == nil {
		return fallback
	}
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// BackupDestination describes one target that receives copies of backup
// artifacts. Multiple destinations may receive the same artifact set.
type BackupDestination struct {
	Type  DestinationType         `yaml:"type" json:"type"`
	Path  string                  `yaml:"path" json:"path"`
	Local *LocalDestinationConfig `yaml:"local,omitempty" json:"local,omitempty"`
	S3    *S3DestinationConfig    `yaml:"s3,omitempty" json:"s3,omitempty"`
	Azure *AzureDestinationConfig `yaml:"azure,omitempty" json:"azure,omitempty"`
	GCS   *GCSDestinationConfig   `yaml:"gcs,omitempty" json:"gcs,omitempty"`
}

// LocalDestinationConfig for local file system destinations
type LocalDestinationConfig struct {
	BasePath    string      `yaml:"base_path" json:"base_path"`
	Permissions os.FileMode `yaml:"permissions" json:"permissions"`
}

// S3DestinationConfig for Amazon S3 destinations
type S3DestinationConfig struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
}

// AzureDestinationConfig for Azure Blob Storage destinations
type AzureDestinationConfig struct {
	AccountName   string `yaml:"account_name" json:"account_name"`
	AccountKey    string `yaml:"account_key" json:"-"`
	ContainerName string `yaml:"container_name" json:"container_name"`
}

// GCSDestinationConfig for Google Cloud Storage destinations
type GCSDestinationConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	CredentialsPath string `yaml:"credentials_path" json:"credentials_path"`
	ProjectID       string `yaml:"project_id" json:"project_id"`
}

// RetentionPolicy is the tiered pruning policy. Daily keeps everything
// inside its window; weekly and monthly keep one snapshot per period;
// MaxBackups caps the union across all tiers.
type RetentionPolicy struct {
	DailyRetentionDays     int  `yaml:"daily_retention_days" json:"daily_retention_days"`
	WeeklyRetentionWeeks   int  `yaml:"weekly_retention_weeks" json:"weekly_retention_weeks"`
	MonthlyRetentionMonths int  `yaml:"monthly_retention_months" json:"monthly_retention_months"`
	MaxBackups             int  `yaml:"max_backups" json:"max_backups"`
	AutoCleanup            bool `yaml:"auto_cleanup" json:"auto_cleanup"`
}

// BackupJob is one in-progress or historical backup execution. Jobs are
// created only by the orchestrator's dispatch path and mutated only by its
// execution routine.
type BackupJob struct {
	ID               string               `json:"id"`
	StorageType      string               `json:"storage_type"`
	Config           *StorageBackupConfig `json:"config,omitempty"`
	Destination      *BackupDestination   `json:"destination,omitempty"`
	Status           JobStatus            `json:"status"`
	Progress         int                  `json:"progress"`
	CurrentOperation string               `json:"current_operation"`
	StartTime        time.Time            `json:"start_time"`
	Error            *JobError            `json:"error,omitempty"`
	Metadata         *BackupMetadata      `json:"metadata,omitempty"`
}

// JobError captures the failure that moved a job into the failed state
type JobError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Code    string `json:"code,omitempty"`
}

// BackupMetadata is the durable record describing a backup's artifacts. It
// shares its identifier with the job that produced it and outlives the job
// object; verification, restore and deletion operate on it.
type BackupMetadata struct {
	ID             string             `json:"id"`
	StorageType    string             `json:"storage_type"`
	Kind           BackupKind         `json:"kind"`
	Status         JobStatus          `json:"status"`
	StartTime      time.Time          `json:"start_time"`
	EndTime        time.Time          `json:"end_time,omitempty"`
	Compression    CompressionType    `json:"compression"`
	Files          []string           `json:"files"`
	Checksums      map[string]string  `json:"checksums"`
	Size           int64              `json:"size"`
	CompressedSize int64              `json:"compressed_size,omitempty"`
	Destination    *BackupDestination `json:"destination,omitempty"`
	Tags           map[string]string  `json:"tags,omitempty"`
	Extra          map[string]string  `json:"extra,omitempty"`
	SchemaVersion  int                `json:"schema_version"`
	Error          string             `json:"error,omitempty"`
}

// RestoreOptions controls how a backup is restored
type RestoreOptions struct {
	// Overwrite enables the destructive recreate path: existing sessions on
	// the target are terminated and the target is dropped and recreated
	// before replay. This can destroy data and is never the default.
	Overwrite bool `json:"overwrite"`
	// TargetDir redirects the restore into a directory instead of the live
	// target; used by restore-test verification. Backend-defined meaning.
	TargetDir string `json:"target_dir,omitempty"`
	// SkipVerification disables nested re-verification of the restored
	// backup, preventing restore-test recursion
	SkipVerification bool `json:"skip_verification"`
	// Database restores into an alternative database name when set
	Database string `json:"database,omitempty"`
}

// BackupOptions carries per-request overrides for a backup start
type BackupOptions struct {
	// Kind overrides the configured backup kind when non-empty
	Kind BackupKind `json:"kind,omitempty"`
	// Tags are merged into the resulting metadata
	Tags map[string]string `json:"tags,omitempty"`
}

// StartResult is the outcome of a start request. Either JobID is set and the
// job is dispatched, or Queued is true and Ticket identifies the pending
// request until it is dequeued.
type StartResult struct {
	JobID  string `json:"job_id,omitempty"`
	Ticket string `json:"ticket,omitempty"`
	Queued bool   `json:"queued"`
}

// JobFilter narrows ListJobs results
type JobFilter struct {
	StorageType string
	Status      JobStatus
}

// SearchFilter narrows and orders SearchBackups results
type SearchFilter struct {
	StorageType   string
	Status        JobStatus
	StartedAfter  *time.Time
	StartedBefore *time.Time
	SortBy        SortField
	Ascending     bool
	Offset        int
	Limit         int
}

// SortField selects the SearchBackups ordering key
type SortField string

const (
	SortByStartTime SortField = "start_time"
	SortBySize      SortField = "size"
)

// BackupStatistics aggregates the orchestrator's job history. Computed
// fresh from in-memory state on every call.
type BackupStatistics struct {
	TotalBackups     int                          `json:"total_backups"`
	CompletedBackups int                          `json:"completed_backups"`
	FailedBackups    int                          `json:"failed_backups"`
	CancelledBackups int                          `json:"cancelled_backups"`
	ActiveJobs       int                          `json:"active_jobs"`
	QueuedJobs       int                          `json:"queued_jobs"`
	TotalSize        int64                        `json:"total_size"`
	AverageSize      int64                        `json:"average_size"`
	SuccessRate      float64                      `json:"success_rate"`
	LastBackupTime   *time.Time                   `json:"last_backup_time,omitempty"`
	NextScheduled    map[string]time.Time         `json:"next_scheduled,omitempty"`
	ByStorageType    map[string]*StorageTypeStats `json:"by_storage_type"`
}

// StorageTypeStats is the per-storage-type statistics breakdown
type StorageTypeStats struct {
	TotalBackups   int        `json:"total_backups"`
	Completed      int        `json:"completed"`
	Failed         int        `json:"failed"`
	TotalSize      int64      `json:"total_size"`
	LastBackupTime *time.Time `json:"last_backup_time,omitempty"`
}

// Enums and constants

// JobStatus is the job lifecycle state machine:
// pending -> in-progress -> {completed | failed | cancelled}
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// BackupKind is the backend-defined backup flavor
type BackupKind string

const (
	BackupKindFull        BackupKind = "full"
	BackupKindIncremental BackupKind = "incremental"
)

// VerificationType selects a verification strategy
type VerificationType string

const (
	VerificationTypeChecksum       VerificationType = "checksum"
	VerificationTypeSizeValidation VerificationType = "size-validation"
	VerificationTypeIntegrityCheck VerificationType = "integrity-check"
	VerificationTypeRestoreTest    VerificationType = "restore-test"
)

// CompressionType selects the artifact compression algorithm
type CompressionType string

const (
	CompressionTypeNone CompressionType = "NONE"
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeLZ4  CompressionType = "LZ4"
	CompressionTypeZstd CompressionType = "ZSTD"
)

// DestinationType identifies a destination handler implementation
type DestinationType string

const (
	DestinationTypeLocal DestinationType = "LOCAL"
	DestinationTypeS3    DestinationType = "S3"
	DestinationTypeAzure DestinationType = "AZURE"
	DestinationTypeGCS   DestinationType = "GCS"
)
