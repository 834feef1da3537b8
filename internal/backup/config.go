package backup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Built-in defaults. The local destination, history and report directories
// share one root so a default installation keeps everything under ./backups.
const (
	DefaultScheduleExpression = "0 2 * * *"
	DefaultMaxParallelJobs    = 2
	DefaultScriptTimeout      = 5 * time.Minute

	defaultBackupRoot = "./backups"
)

// StorageConfig returns the configuration for one storage type, or nil when
// the type is not configured
func (bc *BackupConfig) StorageConfig(storageType string) *StorageBackupConfig {
	for i := range bc.Storages {
		if bc.Storages[i].StorageType == storageType {
			return &bc.Storages[i]
		}
	}
	return nil
}

// EnabledStorageTypes returns the storage types with backups enabled, in
// configuration order
func (bc *BackupConfig) EnabledStorageTypes() []string {
	var types []string
	for i := range bc.Storages {
		if bc.Storages[i].Enabled {
			types = append(types, bc.Storages[i].StorageType)
		}
	}
	return types
}

// SetDefaults fills zero values with working defaults
func (bc *BackupConfig) SetDefaults() {
	bc.Schedule.SetDefaults()
	bc.Retention.SetDefaults()
	bc.Global.SetDefaults()

	for i := range bc.Storages {
		bc.Storages[i].SetDefaults()
	}

	if len(bc.Destinations) == 0 {
		bc.Destinations = []BackupDestination{
			{
				Type: DestinationTypeLocal,
				Local: &LocalDestinationConfig{
					BasePath:    filepath.Join(defaultBackupRoot, "data"),
					Permissions: 0755,
				},
			},
		}
	}
	for i := range bc.Destinations {
		if bc.Destinations[i].Type == DestinationTypeLocal && bc.Destinations[i].Local != nil && bc.Destinations[i].Local.Permissions == 0 {
			bc.Destinations[i].Local.Permissions = 0755
		}
	}
}

// SetDefaults sets the default cron expression so enabling scheduling works
// without further configuration
func (sc *ScheduleConfig) SetDefaults() {
	if sc.Expression == "" {
		sc.Expression = DefaultScheduleExpression
	}
}

// SetDefaults applies the default tiered retention policy when no tier is
// configured
func (rp *RetentionPolicy) SetDefaults() {
	if rp.DailyRetentionDays == 0 && rp.WeeklyRetentionWeeks == 0 && rp.MonthlyRetentionMonths == 0 && rp.MaxBackups == 0 {
		rp.DailyRetentionDays = 7
		rp.WeeklyRetentionWeeks = 4
		rp.MonthlyRetentionMonths = 12
		rp.MaxBackups = 50
		rp.AutoCleanup = true
	}
}

// SetDefaults sets orchestrator-wide operational defaults
func (gs *GlobalSettings) SetDefaults() {
	if gs.MaxParallelJobs == 0 {
		gs.MaxParallelJobs = DefaultMaxParallelJobs
	}
	if len(gs.VerificationTypes) == 0 {
		gs.VerificationTypes = []VerificationType{
			VerificationTypeChecksum,
			VerificationTypeSizeValidation,
		}
	}
	if gs.ScratchDir == "" {
		gs.ScratchDir = filepath.Join(os.TempDir(), "backup-orchestrator")
	}
	if gs.HistoryDir == "" {
		gs.HistoryDir = filepath.Join(defaultBackupRoot, "history")
	}
	if gs.ReportDir == "" {
		gs.ReportDir = filepath.Join(defaultBackupRoot, "reports")
	}
}

// SetDefaults fills per-storage zero values. Compression defaults to gzip
// at its standard level; an explicit NONE disables it.
func (c *StorageBackupConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = BackupKindFull
	}
	if c.Compression == "" {
		c.Compression = CompressionTypeGzip
	}
	if c.CompressionLevel == 0 {
		switch c.Compression {
		case CompressionTypeGzip:
			c.CompressionLevel = 6
		case CompressionTypeLZ4:
			c.CompressionLevel = 1
		case CompressionTypeZstd:
			c.CompressionLevel = 3
		}
	}
	if c.ScriptTimeout == 0 {
		c.ScriptTimeout = DefaultScriptTimeout
	}
}

// LoadFromEnvironment overrides configuration values from BACKUP_*
// environment variables. Unparsable values are ignored.
func (bc *BackupConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_ENABLED"); val != "" {
		bc.Enabled = strings.ToLower(val) == "true"
	}

	bc.Schedule.LoadFromEnvironment()
	bc.Retention.LoadFromEnvironment()
	bc.Global.LoadFromEnvironment()
	bc.loadEncryptionFromEnvironment()
}

// LoadFromEnvironment loads schedule settings from environment variables
func (sc *ScheduleConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_SCHEDULE"); val != "" {
		sc.Expression = val
	}
	if val := os.Getenv("BACKUP_SCHEDULE_TIMEZONE"); val != "" {
		sc.Timezone = val
	}
	if val := os.Getenv("BACKUP_SCHEDULE_ENABLED"); val != "" {
		sc.Enabled = strings.ToLower(val) == "true"
	}
}

// LoadFromEnvironment loads retention settings from environment variables
func (rp *RetentionPolicy) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_RETENTION_DAILY_DAYS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			rp.DailyRetentionDays = parsed
		}
	}
	if val := os.Getenv("BACKUP_RETENTION_WEEKLY_WEEKS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			rp.WeeklyRetentionWeeks = parsed
		}
	}
	if val := os.Getenv("BACKUP_RETENTION_MONTHLY_MONTHS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			rp.MonthlyRetentionMonths = parsed
		}
	}
	if val := os.Getenv("BACKUP_MAX_BACKUPS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			rp.MaxBackups = parsed
		}
	}
	if val := os.Getenv("BACKUP_AUTO_CLEANUP"); val != "" {
		rp.AutoCleanup = strings.ToLower(val) == "true"
	}
}

// LoadFromEnvironment loads global settings from environment variables
func (gs *GlobalSettings) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_MAX_PARALLEL_JOBS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			gs.MaxParallelJobs = parsed
		}
	}
	if val := os.Getenv("BACKUP_VERIFY_AFTER_BACKUP"); val != "" {
		gs.VerifyAfterBackup = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BACKUP_VERIFICATION_TYPES"); val != "" {
		var types []VerificationType
		for _, entry := range strings.Split(val, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			types = append(types, VerificationType(entry))
		}
		if len(types) > 0 {
			gs.VerificationTypes = types
		}
	}
	if val := os.Getenv("BACKUP_PARALLEL_VERIFICATION"); val != "" {
		gs.ParallelVerification = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BACKUP_SCRATCH_DIR"); val != "" {
		gs.ScratchDir = val
	}
	if val := os.Getenv("BACKUP_HISTORY_DIR"); val != "" {
		gs.HistoryDir = val
	}
	if val := os.Getenv("BACKUP_REPORT_DIR"); val != "" {
		gs.ReportDir = val
	}
	if val := os.Getenv("BACKUP_AUDIT_LOG_FILE"); val != "" {
		gs.AuditLogFile = val
	}
}

func (bc *BackupConfig) loadEncryptionFromEnvironment() {
	enabled := os.Getenv("BACKUP_ENCRYPTION_ENABLED")
	if enabled == "" && bc.Encryption == nil {
		return
	}
	if bc.Encryption == nil {
		bc.Encryption = &EncryptionConfig{}
	}

	if enabled != "" {
		bc.Encryption.Enabled = strings.ToLower(enabled) == "true"
	}
	if val := os.Getenv("BACKUP_ENCRYPTION_KEY_SOURCE"); val != "" {
		bc.Encryption.KeySource = val
	}
	if val := os.Getenv("BACKUP_ENCRYPTION_KEY_ENV_VAR"); val != "" {
		bc.Encryption.KeyEnvVar = val
	}
	if val := os.Getenv("BACKUP_ENCRYPTION_KEY_PATH"); val != "" {
		bc.Encryption.KeyPath = val
	}
	if val := os.Getenv("BACKUP_ENCRYPTION_PASSPHRASE"); val != "" {
		bc.Encryption.Passphrase = val
	}
	if val := os.Getenv("BACKUP_ENCRYPTION_SALT"); val != "" {
		bc.Encryption.Salt = val
	}

	if bc.Encryption.Enabled && bc.Encryption.KeySource == "" {
		bc.Encryption.KeySource = KeySourceEnv
		bc.Encryption.KeyEnvVar = "BACKUP_ENCRYPTION_KEY"
	}
}
