package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"backup-orchestrator/internal/backup"
)

// ConfigIntegration handles loading and merging the backup section of the
// application configuration file
type ConfigIntegration struct {
	viper *viper.Viper
}

// NewConfigIntegration creates a new configuration integration instance
func NewConfigIntegration() *ConfigIntegration {
	return &ConfigIntegration{
		viper: viper.New(),
	}
}

// IntegrateBackupConfig adds a backup section to an existing application
// configuration file, preserving the original as <path>.backup
func (ci *ConfigIntegration) IntegrateBackupConfig(configPath string) error {
	ci.setupViper(configPath)

	configExists := true
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configExists = false
	}

	if configExists {
		if err := ci.viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}

		if ci.viper.IsSet("backup") {
			return fmt.Errorf("backup configuration already exists in %s", configPath)
		}

		backupPath := configPath + ".backup"
		if err := ci.createConfigBackup(configPath, backupPath); err != nil {
			return fmt.Errorf("failed to create backup of configuration file: %w", err)
		}
		fmt.Printf("Configuration backup created: %s\n", backupPath)
	}

	ci.setBackupDefaults()

	if err := ci.writeConfig(configPath); err != nil {
		return fmt.Errorf("failed to write updated configuration: %w", err)
	}

	fmt.Printf("Backup configuration integrated successfully into: %s\n", configPath)
	return nil
}

// setupViper configures viper for configuration loading
func (ci *ConfigIntegration) setupViper(configPath string) {
	if configPath != "" {
		ci.viper.SetConfigFile(configPath)
	} else {
		ci.viper.SetConfigName("backup-orchestrator")
		ci.viper.SetConfigType("yaml")
		ci.viper.AddConfigPath(".")
		ci.viper.AddConfigPath("$HOME/.config/backup-orchestrator")
		ci.viper.AddConfigPath("/etc/backup-orchestrator")
	}

	ci.viper.AutomaticEnv()
	ci.viper.SetEnvPrefix("BACKUP_ORCHESTRATOR")
	ci.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// setBackupDefaults sets default backup configuration values
func (ci *ConfigIntegration) setBackupDefaults() {
	ci.viper.SetDefault("backup.enabled", false)

	ci.viper.SetDefault("backup.storages", []map[string]interface{}{
		{
			"storage_type": "postgres",
			"enabled":      true,
			"kind":         "full",
			"compression":  "GZIP",
		},
		{
			"storage_type": "mysql",
			"enabled":      false,
			"kind":         "full",
			"compression":  "GZIP",
		},
	})

	ci.viper.SetDefault("backup.destinations", []map[string]interface{}{
		{
			"type": "LOCAL",
			"local": map[string]interface{}{
				"base_path":   "./backups/data",
				"permissions": 0o755,
			},
		},
	})

	ci.viper.SetDefault("backup.schedule.expression", backup.DefaultScheduleExpression)
	ci.viper.SetDefault("backup.schedule.timezone", "")
	ci.viper.SetDefault("backup.schedule.enabled", false)

	ci.viper.SetDefault("backup.retention.daily_retention_days", 7)
	ci.viper.SetDefault("backup.retention.weekly_retention_weeks", 4)
	ci.viper.SetDefault("backup.retention.monthly_retention_months", 12)
	ci.viper.SetDefault("backup.retention.max_backups", 50)
	ci.viper.SetDefault("backup.retention.auto_cleanup", true)

	ci.viper.SetDefault("backup.global.max_parallel_jobs", backup.DefaultMaxParallelJobs)
	ci.viper.SetDefault("backup.global.verify_after_backup", true)
	ci.viper.SetDefault("backup.global.verification_types", []string{"checksum", "size-validation"})
	ci.viper.SetDefault("backup.global.parallel_verification", false)
	ci.viper.SetDefault("backup.global.history_dir", "./backups/history")
	ci.viper.SetDefault("backup.global.report_dir", "./backups/reports")
}

// createConfigBackup creates a backup of the original configuration file
func (ci *ConfigIntegration) createConfigBackup(configPath, backupPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return os.WriteFile(backupPath, data, 0644)
}

// writeConfig writes the updated configuration to file
func (ci *ConfigIntegration) writeConfig(configPath string) error {
	allSettings := ci.viper.AllSettings()

	data, err := yaml.Marshal(allSettings)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}

// LoadBackupConfig reads the backup section of the configuration file and
// returns it as a validated backup configuration. A missing file or missing
// section yields defaults merged with BACKUP_* environment overrides.
func (ci *ConfigIntegration) LoadBackupConfig(configPath string) (*backup.BackupConfig, error) {
	ci.setupViper(configPath)

	if err := ci.viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	raw := ci.viper.Get("backup")
	if raw == nil {
		config := &backup.BackupConfig{}
		config.SetDefaults()
		config.LoadFromEnvironment()
		config.SetDefaults()
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid backup configuration: %w", err)
		}
		return config, nil
	}

	// Re-encode the subtree so the backup package's yaml tags drive decoding.
	// Viper lowercases keys, which matches the tags exactly.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup section: %w", err)
	}

	return backup.LoadConfigFromBytes(data)
}

// ValidateIntegratedConfig validates the backup section of an existing
// configuration file
func (ci *ConfigIntegration) ValidateIntegratedConfig(configPath string) error {
	ci.setupViper(configPath)
	if err := ci.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	raw := ci.viper.Get("backup")
	if raw == nil {
		return fmt.Errorf("no backup section found in %s", configPath)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode backup section: %w", err)
	}

	config, err := backup.LoadConfigFromBytes(data)
	if err != nil {
		return fmt.Errorf("backup configuration validation failed: %w", err)
	}

	fmt.Printf("Integrated backup configuration is valid. Backups enabled: %t\n", config.Enabled)
	return nil
}

// GenerateConfigTemplate generates a complete configuration template with
// backup settings
func (ci *ConfigIntegration) GenerateConfigTemplate() string {
	return `# Backup Orchestrator Configuration File
# Complete configuration template for scheduled database backups

# Logging settings
log_level: info           # Log level (debug, info, warn, error)
log_format: text          # Log format (text, json)
log_file: ""              # Log file path (empty logs to stderr)

# Operation settings
auto_approve: false       # Skip confirmation prompts for destructive operations
quiet: false              # Suppress non-essential output

# Backup system configuration
backup:
  enabled: true           # Master switch; when false every operation is rejected

  # Per-storage backup settings. Storage types must match the registered
  # backends (postgres, mysql).
  storages:
    - storage_type: postgres
      enabled: true
      kind: full              # Backup kind (full, incremental)
      compression: GZIP       # Compression (NONE, GZIP, LZ4, ZSTD)
      compression_level: 6    # Algorithm-specific level
      schedule: ""            # Per-storage cron override (empty uses backup.schedule)
      pre_backup_hooks: []    # Shell commands run before the dump
      post_backup_hooks: []   # Shell commands run after the artifacts are stored
      verification_scripts: []
      script_timeout: 5m      # Timeout applied to each hook and script
      options:                # Backend connection options
        host: localhost
        port: "5432"
        user: postgres
        database: appdb
    - storage_type: mysql
      enabled: false
      kind: full
      compression: GZIP

  # Where finished backups are stored. Every destination receives a copy.
  destinations:
    - type: LOCAL
      local:
        base_path: ./backups/data   # Local backup storage path
        permissions: 0755           # Directory permissions

    # Amazon S3 destination
    # - type: S3
    #   s3:
    #     bucket: my-backups        # S3 bucket name
    #     region: us-east-1         # AWS region
    #     access_key: ""            # AWS access key (or use env var)
    #     secret_key: ""            # AWS secret key (or use env var)

    # Azure Blob Storage destination
    # - type: AZURE
    #   azure:
    #     account_name: ""          # Azure storage account name
    #     account_key: ""           # Azure storage account key
    #     container_name: backups   # Azure container name

    # Google Cloud Storage destination
    # - type: GCS
    #   gcs:
    #     bucket: my-backups        # GCS bucket name
    #     credentials_path: ""      # Path to GCS credentials JSON file
    #     project_id: ""            # GCP project ID

  # Scheduled backups. The expression uses standard five-field cron syntax.
  schedule:
    expression: "0 2 * * *"   # Default schedule for every enabled storage
    timezone: ""              # IANA timezone (empty uses the host timezone)
    enabled: false            # Enable the cron scheduler

  # Tiered retention. A backup is kept while any tier covers it and the
  # max_backups ceiling is not exceeded.
  retention:
    daily_retention_days: 7     # Keep everything for this many days
    weekly_retention_weeks: 4   # Then one backup per week
    monthly_retention_months: 12 # Then one backup per month
    max_backups: 50             # Hard cap across all tiers (0 = unlimited)
    auto_cleanup: true          # Prune automatically after each backup

  # Optional AES-256-GCM encryption of backup artifacts
  encryption:
    enabled: false            # Enable backup encryption
    key_source: env           # Key source (env, file, passphrase)
    key_env_var: BACKUP_ENCRYPTION_KEY  # Environment variable with hex key
    key_path: ""              # Path to key file (if key_source is 'file')
    salt: ""                  # Hex PBKDF2 salt (if key_source is 'passphrase')

  # Orchestrator-wide settings
  global:
    max_parallel_jobs: 2      # Concurrent backup jobs (additional jobs queue)
    verify_after_backup: true # Run verification once artifacts are stored
    verification_types:       # Strategies (checksum, size-validation,
      - checksum              # integrity-check, restore-test)
      - size-validation
    parallel_verification: false
    scratch_dir: ""           # Working directory for dumps (empty uses TMPDIR)
    history_dir: ./backups/history  # Backup history records
    report_dir: ./backups/reports   # Usage report output
    audit_log_file: ""        # JSON-lines audit trail (empty disables)

# Display configuration
display:
  color_enabled: true       # Enable colorized output
  theme: dark               # Color theme (dark, light, high-contrast, auto)
  output_format: table      # Output format (table, json, yaml, compact)
  use_icons: true           # Enable Unicode icons with ASCII fallbacks
  show_progress: true       # Show progress indicators and spinners
  interactive: true         # Enable interactive confirmations
  table_style: default      # Table styling (default, rounded, border, minimal)
  max_table_width: 120      # Maximum table width (40-300)

# Environment variable examples for backup configuration:
# BACKUP_ENABLED=true
# BACKUP_SCHEDULE="0 3 * * *"
# BACKUP_SCHEDULE_ENABLED=true
# BACKUP_MAX_PARALLEL_JOBS=4
# BACKUP_RETENTION_DAILY_DAYS=14
# BACKUP_MAX_BACKUPS=100
# BACKUP_ENCRYPTION_ENABLED=true
# BACKUP_ENCRYPTION_KEY=<hex-encoded-256-bit-key>
# AWS_ACCESS_KEY_ID=<your-access-key>
# AWS_SECRET_ACCESS_KEY=<your-secret-key>

# Security recommendations:
# 1. Store credentials in environment variables, never in this file
# 2. Set restrictive file permissions: chmod 600 config.yaml
# 3. Use dedicated database users with minimal privileges
# 4. Enable encryption for sensitive backup data
# 5. Keep encryption keys outside the backup destinations
# 6. Monitor backup storage usage and access
`
}

// ListEnvironmentVariables lists all backup-related environment variables
func (ci *ConfigIntegration) ListEnvironmentVariables() []string {
	return []string{
		"BACKUP_ENABLED",
		"BACKUP_SCHEDULE",
		"BACKUP_SCHEDULE_TIMEZONE",
		"BACKUP_SCHEDULE_ENABLED",
		"BACKUP_RETENTION_DAILY_DAYS",
		"BACKUP_RETENTION_WEEKLY_WEEKS",
		"BACKUP_RETENTION_MONTHLY_MONTHS",
		"BACKUP_MAX_BACKUPS",
		"BACKUP_AUTO_CLEANUP",
		"BACKUP_MAX_PARALLEL_JOBS",
		"BACKUP_VERIFY_AFTER_BACKUP",
		"BACKUP_VERIFICATION_TYPES",
		"BACKUP_PARALLEL_VERIFICATION",
		"BACKUP_SCRATCH_DIR",
		"BACKUP_HISTORY_DIR",
		"BACKUP_REPORT_DIR",
		"BACKUP_AUDIT_LOG_FILE",
		"BACKUP_ENCRYPTION_ENABLED",
		"BACKUP_ENCRYPTION_KEY_SOURCE",
		"BACKUP_ENCRYPTION_KEY_ENV_VAR",
		"BACKUP_ENCRYPTION_KEY_PATH",
		"BACKUP_ENCRYPTION_PASSPHRASE",
		"BACKUP_ENCRYPTION_SALT",
		"BACKUP_ENCRYPTION_KEY",
		"BACKUP_ORCHESTRATOR_LOG_LEVEL",
		"BACKUP_ORCHESTRATOR_LOG_FORMAT",
		"BACKUP_ORCHESTRATOR_LOG_FILE",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
		"AZURE_STORAGE_CONNECTION_STRING",
		"GOOGLE_APPLICATION_CREDENTIALS",
	}
}

// GetConfigurationHelp returns help text for backup configuration
func (ci *ConfigIntegration) GetConfigurationHelp() string {
	return `Backup Configuration Help

The backup orchestrator can be configured through:
1. Configuration file (YAML)
2. Environment variables
3. Command-line flags

Configuration Hierarchy (highest to lowest priority):
1. Command-line flags
2. Environment variables
3. Configuration file
4. Default values

Storage Backends:
- postgres: Dumps via pg_dump, restores via pg_restore/psql
- mysql: Dumps via mysqldump, restores via the mysql client

Destinations:
- LOCAL: Store backups on the local filesystem
- S3: Store backups in Amazon S3
- AZURE: Store backups in Azure Blob Storage
- GCS: Store backups in Google Cloud Storage

Retention Tiers:
- daily_retention_days: Keep every backup inside the window
- weekly_retention_weeks: Then one backup per ISO week
- monthly_retention_months: Then one backup per month
- max_backups: Hard cap across all tiers (0 = unlimited)

Compression Algorithms:
- GZIP: Good compression ratio, moderate speed
- LZ4: Fast compression, lower ratio
- ZSTD: Best balance of speed and compression
- NONE: Store dumps uncompressed

Verification Strategies:
- checksum: Recompute and compare the artifact SHA-256
- size-validation: Compare artifact sizes against recorded values
- integrity-check: Decompress and structurally inspect the dump
- restore-test: Restore into a scratch location and inspect the result

Security Features:
- AES-256-GCM encryption for backup artifacts
- PBKDF2 passphrase-derived keys
- Environment variable and key file sources
- Credentials passed to dump tools via the child environment

For a complete configuration example, use:
  backup-orchestrator config init
`
}
