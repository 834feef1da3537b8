package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoader loads backup configuration from YAML files with environment
// variable overrides
type ConfigLoader struct {
	configPath string
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
	}
}

// LoadConfig loads the backup configuration. Precedence: defaults, then the
// config file, then environment variables. A missing config file is not an
// error; the defaults still apply.
func (cl *ConfigLoader) LoadConfig() (*BackupConfig, error) {
	config := &BackupConfig{}
	config.SetDefaults()

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.LoadFromEnvironment()

	// File and environment values may leave new sections partially filled
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from the YAML file
func (cl *ConfigLoader) loadFromFile(config *BackupConfig) error {
	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file doesn't exist, use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", cl.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cl.configPath, err)
	}

	return nil
}

// SaveConfig saves the configuration to the YAML file
func (cl *ConfigLoader) SaveConfig(config *BackupConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if dir := filepath.Dir(cl.configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(cl.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", cl.configPath, err)
	}

	return nil
}

// LoadConfigFromBytes parses configuration from raw YAML. Defaults and
// environment overrides are applied the same way LoadConfig applies them.
func LoadConfigFromBytes(data []byte) (*BackupConfig, error) {
	config := &BackupConfig{}
	config.SetDefaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	config.LoadFromEnvironment()
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup configuration: %w", err)
	}

	return config, nil
}

// GenerateDefaultConfig returns a configuration suitable as a starting point
// for a new installation
func GenerateDefaultConfig() *BackupConfig {
	config := &BackupConfig{
		Enabled: true,
		Storages: []StorageBackupConfig{
			{
				StorageType: "postgres",
				Enabled:     true,
				Kind:        BackupKindFull,
				Compression: CompressionTypeGzip,
			},
			{
				StorageType: "mysql",
				Enabled:     false,
				Kind:        BackupKindFull,
				Compression: CompressionTypeGzip,
			},
		},
	}
	config.Global.VerifyAfterBackup = true
	config.SetDefaults()
	return config
}

// GenerateDefaultConfigYAML returns a commented sample configuration file
func GenerateDefaultConfigYAML() string {
	return `# Backup orchestrator configuration

# Master switch. When false every backup operation is rejected.
enabled: true

# Per-storage backup settings. Storage types must match the registered
# backends ("postgres", "mysql").
storages:
  - storage_type: postgres
    enabled: true
    # full or incremental
    kind: full
    # NONE, GZIP, LZ4 or ZSTD
    compression: GZIP
    compression_level: 6
    # Per-storage cron override. Empty uses schedule.expression below.
    schedule: ""
    # Shell commands executed around the backup. A failing pre-hook aborts
    # the job. Hooks run with BACKUP_JOB_ID, BACKUP_STORAGE_TYPE and
    # BACKUP_SCRATCH_DIR in the environment.
    pre_backup_hooks: []
    post_backup_hooks: []
    # Scripts invoked during INTEGRITY verification with the backup id and
    # artifact path as arguments.
    verification_scripts: []
    script_timeout: 5m
  - storage_type: mysql
    enabled: false
    kind: full
    compression: GZIP

# Where finished backups are stored. Every destination receives a copy.
destinations:
  - type: LOCAL
    local:
      base_path: ./backups/data
      permissions: 0755
  # - type: S3
  #   s3:
  #     bucket: my-backups
  #     region: us-east-1
  # - type: GCS
  #   gcs:
  #     bucket: my-backups
  #     credentials_path: /etc/gcs/credentials.json
  # - type: AZURE
  #   azure:
  #     account_name: myaccount
  #     container_name: backups

# Scheduled backups. The expression uses standard five-field cron syntax.
schedule:
  expression: "0 2 * * *"
  timezone: ""
  enabled: false

# Tiered retention. A backup is kept while any tier covers it and the
# max_backups ceiling is not exceeded.
retention:
  daily_retention_days: 7
  weekly_retention_weeks: 4
  monthly_retention_months: 12
  max_backups: 50
  auto_cleanup: true

# Optional AES-256-GCM encryption of backup artifacts.
# encryption:
#   enabled: true
#   key_source: env
#   key_env_var: BACKUP_ENCRYPTION_KEY

global:
  max_parallel_jobs: 2
  verify_after_backup: true
  verification_types:
    - checksum
    - size-validation
  parallel_verification: false
  scratch_dir: ""
  history_dir: ./backups/history
  report_dir: ./backups/reports
`
}

// MergeConfigs merges an override configuration into a base configuration.
// Scalar fields follow the override when set; storages and destinations are
// replaced wholesale when the override provides any.
func MergeConfigs(base, override *BackupConfig) *BackupConfig {
	if base == nil {
		base = &BackupConfig{}
		base.SetDefaults()
	}
	merged := *base

	if override == nil {
		return &merged
	}

	merged.Enabled = override.Enabled

	if len(override.Storages) > 0 {
		merged.Storages = override.Storages
	}
	if len(override.Destinations) > 0 {
		merged.Destinations = override.Destinations
	}

	if override.Schedule.Expression != "" {
		merged.Schedule.Expression = override.Schedule.Expression
	}
	if override.Schedule.Timezone != "" {
		merged.Schedule.Timezone = override.Schedule.Timezone
	}
	if override.Schedule.Enabled {
		merged.Schedule.Enabled = true
	}

	if override.Retention.DailyRetentionDays != 0 {
		merged.Retention.DailyRetentionDays = override.Retention.DailyRetentionDays
	}
	if override.Retention.WeeklyRetentionWeeks != 0 {
		merged.Retention.WeeklyRetentionWeeks = override.Retention.WeeklyRetentionWeeks
	}
	if override.Retention.MonthlyRetentionMonths != 0 {
		merged.Retention.MonthlyRetentionMonths = override.Retention.MonthlyRetentionMonths
	}
	if override.Retention.MaxBackups != 0 {
		merged.Retention.MaxBackups = override.Retention.MaxBackups
	}

	if override.Encryption != nil {
		merged.Encryption = override.Encryption
	}

	if override.Global.MaxParallelJobs != 0 {
		merged.Global.MaxParallelJobs = override.Global.MaxParallelJobs
	}
	if override.Global.VerifyAfterBackup {
		merged.Global.VerifyAfterBackup = true
	}
	if len(override.Global.VerificationTypes) > 0 {
		merged.Global.VerificationTypes = override.Global.VerificationTypes
	}
	if override.Global.ScratchDir != "" {
		merged.Global.ScratchDir = override.Global.ScratchDir
	}
	if override.Global.HistoryDir != "" {
		merged.Global.HistoryDir = override.Global.HistoryDir
	}
	if override.Global.ReportDir != "" {
		merged.Global.ReportDir = override.Global.ReportDir
	}

	return &merged
}
