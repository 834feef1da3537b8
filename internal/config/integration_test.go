package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-orchestrator/internal/backup"
)

func TestConfigIntegration_IntegrateBackupConfig_NewFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	ci := NewConfigIntegration()
	err := ci.IntegrateBackupConfig(configPath)
	require.NoError(t, err)

	// File is created with the backup section
	assert.FileExists(t, configPath)
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "backup:")
	assert.Contains(t, content, "storages:")
	assert.Contains(t, content, "destinations:")

	// No original existed, so no backup copy is made
	assert.NoFileExists(t, configPath+".backup")
}

func TestConfigIntegration_IntegrateBackupConfig_ExistingFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	original := "log_level: debug\nauto_approve: true\n"
	require.NoError(t, os.WriteFile(configPath, []byte(original), 0644))

	ci := NewConfigIntegration()
	err := ci.IntegrateBackupConfig(configPath)
	require.NoError(t, err)

	// Original preserved as .backup
	backupData, err := os.ReadFile(configPath + ".backup")
	require.NoError(t, err)
	assert.Equal(t, original, string(backupData))

	// Updated file keeps the existing settings and gains the backup section
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "log_level: debug")
	assert.Contains(t, content, "backup:")
	assert.Contains(t, content, "retention:")
}

func TestConfigIntegration_IntegrateBackupConfig_AlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	existing := "backup:\n  enabled: true\n"
	require.NoError(t, os.WriteFile(configPath, []byte(existing), 0644))

	ci := NewConfigIntegration()
	err := ci.IntegrateBackupConfig(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigIntegration_LoadBackupConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `log_level: info
backup:
  enabled: true
  storages:
    - storage_type: postgres
      enabled: true
      kind: full
      compression: ZSTD
      compression_level: 7
      script_timeout: 90s
      options:
        host: db.internal
        database: appdb
  destinations:
    - type: LOCAL
      local:
        base_path: ` + filepath.Join(tmpDir, "data") + `
  schedule:
    expression: "30 1 * * *"
    timezone: Europe/Berlin
    enabled: true
  retention:
    daily_retention_days: 14
    weekly_retention_weeks: 8
    monthly_retention_months: 6
    max_backups: 40
    auto_cleanup: true
  global:
    max_parallel_jobs: 4
    verify_after_backup: true
    verification_types:
      - checksum
      - integrity-check
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	ci := NewConfigIntegration()
	config, err := ci.LoadBackupConfig(configPath)
	require.NoError(t, err)

	assert.True(t, config.Enabled)
	require.Len(t, config.Storages, 1)
	assert.Equal(t, "postgres", config.Storages[0].StorageType)
	assert.Equal(t, backup.CompressionTypeZstd, config.Storages[0].Compression)
	assert.Equal(t, 7, config.Storages[0].CompressionLevel)
	assert.Equal(t, 90*time.Second, config.Storages[0].ScriptTimeout)
	assert.Equal(t, "db.internal", config.Storages[0].Option("host", "localhost"))

	require.Len(t, config.Destinations, 1)
	assert.Equal(t, backup.DestinationTypeLocal, config.Destinations[0].Type)
	assert.Equal(t, filepath.Join(tmpDir, "data"), config.Destinations[0].Local.BasePath)

	assert.Equal(t, "30 1 * * *", config.Schedule.Expression)
	assert.Equal(t, "Europe/Berlin", config.Schedule.Timezone)
	assert.True(t, config.Schedule.Enabled)

	assert.Equal(t, 14, config.Retention.DailyRetentionDays)
	assert.Equal(t, 40, config.Retention.MaxBackups)

	assert.Equal(t, 4, config.Global.MaxParallelJobs)
	assert.Contains(t, config.Global.VerificationTypes, backup.VerificationTypeIntegrityCheck)
}

func TestConfigIntegration_LoadBackupConfig_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `backup:
  enabled: false
  destinations:
    - type: LOCAL
      local:
        base_path: ` + filepath.Join(tmpDir, "data") + `
  global:
    max_parallel_jobs: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	t.Setenv("BACKUP_ENABLED", "true")
	t.Setenv("BACKUP_MAX_PARALLEL_JOBS", "6")
	t.Setenv("BACKUP_SCHEDULE", "15 4 * * *")

	ci := NewConfigIntegration()
	config, err := ci.LoadBackupConfig(configPath)
	require.NoError(t, err)

	assert.True(t, config.Enabled)
	assert.Equal(t, 6, config.Global.MaxParallelJobs)
	assert.Equal(t, "15 4 * * *", config.Schedule.Expression)
}

func TestConfigIntegration_LoadBackupConfig_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	ci := NewConfigIntegration()
	config, err := ci.LoadBackupConfig(configPath)
	require.NoError(t, err)

	// Defaults apply when no file is present
	assert.False(t, config.Enabled)
	assert.Equal(t, backup.DefaultScheduleExpression, config.Schedule.Expression)
	assert.Equal(t, 7, config.Retention.DailyRetentionDays)
	assert.Equal(t, 50, config.Retention.MaxBackups)
	assert.Equal(t, backup.DefaultMaxParallelJobs, config.Global.MaxParallelJobs)
	require.Len(t, config.Destinations, 1)
	assert.Equal(t, backup.DestinationTypeLocal, config.Destinations[0].Type)
}

func TestConfigIntegration_LoadBackupConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("backup: [unclosed"), 0644))

	ci := NewConfigIntegration()
	_, err := ci.LoadBackupConfig(configPath)
	assert.Error(t, err)
}

func TestConfigIntegration_DefaultValues(t *testing.T) {
	ci := NewConfigIntegration()
	ci.setBackupDefaults()

	assert.False(t, ci.viper.GetBool("backup.enabled"))
	assert.Equal(t, backup.DefaultScheduleExpression, ci.viper.GetString("backup.schedule.expression"))
	assert.False(t, ci.viper.GetBool("backup.schedule.enabled"))
	assert.Equal(t, 7, ci.viper.GetInt("backup.retention.daily_retention_days"))
	assert.Equal(t, 4, ci.viper.GetInt("backup.retention.weekly_retention_weeks"))
	assert.Equal(t, 12, ci.viper.GetInt("backup.retention.monthly_retention_months"))
	assert.Equal(t, 50, ci.viper.GetInt("backup.retention.max_backups"))
	assert.True(t, ci.viper.GetBool("backup.retention.auto_cleanup"))
	assert.Equal(t, 2, ci.viper.GetInt("backup.global.max_parallel_jobs"))
	assert.True(t, ci.viper.GetBool("backup.global.verify_after_backup"))
}

func TestConfigIntegration_ValidateIntegratedConfig(t *testing.T) {
	tmpDir := t.TempDir()

	validPath := filepath.Join(tmpDir, "valid.yaml")
	validConfig := `backup:
  enabled: true
  storages:
    - storage_type: postgres
      enabled: true
  destinations:
    - type: LOCAL
      local:
        base_path: ` + filepath.Join(tmpDir, "data") + `
  retention:
    max_backups: 10
`
	require.NoError(t, os.WriteFile(validPath, []byte(validConfig), 0644))

	ci := NewConfigIntegration()
	assert.NoError(t, ci.ValidateIntegratedConfig(validPath))
}

func TestConfigIntegration_ValidateIntegratedConfig_InvalidDestination(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidConfig := `backup:
  enabled: true
  destinations:
    - type: tape
      path: /dev/nst0
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidConfig), 0644))

	ci := NewConfigIntegration()
	err := ci.ValidateIntegratedConfig(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid destination type")
}

func TestConfigIntegration_ValidateIntegratedConfig_MissingSection(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0644))

	ci := NewConfigIntegration()
	err := ci.ValidateIntegratedConfig(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no backup section")
}

func TestConfigIntegration_ValidateIntegratedConfig_MissingFile(t *testing.T) {
	ci := NewConfigIntegration()
	err := ci.ValidateIntegratedConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestConfigIntegration_GenerateConfigTemplate(t *testing.T) {
	ci := NewConfigIntegration()
	template := ci.GenerateConfigTemplate()

	assert.Contains(t, template, "backup:")
	assert.Contains(t, template, "storages:")
	assert.Contains(t, template, "storage_type: postgres")
	assert.Contains(t, template, "destinations:")
	assert.Contains(t, template, "retention:")
	assert.Contains(t, template, "encryption:")
	assert.Contains(t, template, "display:")
	assert.Contains(t, template, "BACKUP_ENCRYPTION_KEY")
	assert.Contains(t, template, "Security recommendations")
	assert.Contains(t, template, "chmod 600")
}

func TestConfigIntegration_ListEnvironmentVariables(t *testing.T) {
	ci := NewConfigIntegration()
	vars := ci.ListEnvironmentVariables()

	assert.Greater(t, len(vars), 20)
	assert.Contains(t, vars, "BACKUP_ENABLED")
	assert.Contains(t, vars, "BACKUP_MAX_PARALLEL_JOBS")
	assert.Contains(t, vars, "BACKUP_ENCRYPTION_KEY")
	assert.Contains(t, vars, "AWS_ACCESS_KEY_ID")

	// No duplicates
	seen := make(map[string]bool)
	for _, envVar := range vars {
		assert.False(t, seen[envVar], "duplicate environment variable: %s", envVar)
		seen[envVar] = true
	}
}

func TestConfigIntegration_GetConfigurationHelp(t *testing.T) {
	ci := NewConfigIntegration()
	help := ci.GetConfigurationHelp()

	assert.Contains(t, help, "Configuration Hierarchy")
	assert.Contains(t, help, "postgres")
	assert.Contains(t, help, "mysql")
	assert.Contains(t, help, "LOCAL")
	assert.Contains(t, help, "ZSTD")
	assert.Contains(t, help, "restore-test")
	assert.Contains(t, help, "daily_retention_days")
}

func TestConfigIntegration_SetupViper_ExplicitFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "explicit.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: warn\n"), 0644))

	ci := NewConfigIntegration()
	ci.setupViper(configPath)
	require.NoError(t, ci.viper.ReadInConfig())
	assert.Equal(t, "warn", ci.viper.GetString("log_level"))
}

// Benchmark tests
func BenchmarkConfigIntegration_LoadBackupConfig(b *testing.B) {
	tmpDir := b.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `backup:
  enabled: true
  storages:
    - storage_type: postgres
      enabled: true
  destinations:
    - type: LOCAL
      local:
        base_path: ` + filepath.Join(tmpDir, "data") + `
`
	require.NoError(b, os.WriteFile(configPath, []byte(configContent), 0644))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ci := NewConfigIntegration()
		_, err := ci.LoadBackupConfig(configPath)
		require.NoError(b, err)
	}
}

func BenchmarkConfigIntegration_GenerateConfigTemplate(b *testing.B) {
	ci := NewConfigIntegration()

	for i := 0; i < b.N; i++ {
		_ = ci.GenerateConfigTemplate()
	}
}
