package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMigrationTool_DiscoverConfigurations(t *testing.T) {
	tmpDir := t.TempDir()

	// Point HOME at an empty directory so only workspace files are discovered
	t.Setenv("HOME", t.TempDir())

	oldWd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(oldWd)
	require.NoError(t, os.Chdir(tmpDir))

	for _, name := range []string{"config.yaml", "backup-orchestrator.yaml", ".backup-orchestrator.yaml"} {
		require.NoError(t, os.WriteFile(name, []byte("log_level: info\n"), 0644))
	}

	mt := NewMigrationTool(false, false)
	discovered, err := mt.DiscoverConfigurations()

	require.NoError(t, err)
	assert.Len(t, discovered, 3)
	assert.Contains(t, discovered, "./config.yaml")
	assert.Contains(t, discovered, "./backup-orchestrator.yaml")
	assert.Contains(t, discovered, "./.backup-orchestrator.yaml")
}

func TestMigrationTool_MigrateConfiguration(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectSuccess bool
		alreadyExists bool
		verify        func(t *testing.T, configPath string)
	}{
		{
			name:          "fresh configuration",
			content:       "log_level: info\nauto_approve: false\n",
			expectSuccess: true,
			verify: func(t *testing.T, configPath string) {
				data, err := os.ReadFile(configPath)
				require.NoError(t, err)
				content := string(data)
				assert.Contains(t, content, "backup:")
				assert.Contains(t, content, "log_level: info")
				assert.Contains(t, content, "storage_type: postgres")
			},
		},
		{
			name:          "already migrated",
			content:       "log_level: info\nbackup:\n  enabled: true\n",
			expectSuccess: true,
			alreadyExists: true,
		},
		{
			name: "legacy standalone layout",
			content: `enabled: true
storages:
  - storage_type: postgres
    enabled: true
retention:
  max_backups: 25
`,
			expectSuccess: true,
			verify: func(t *testing.T, configPath string) {
				data, err := os.ReadFile(configPath)
				require.NoError(t, err)

				var root map[string]interface{}
				require.NoError(t, yaml.Unmarshal(data, &root))

				assert.NotContains(t, root, "storages")
				assert.NotContains(t, root, "retention")
				assert.NotContains(t, root, "enabled")

				section, ok := root["backup"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, true, section["enabled"])
				assert.Contains(t, section, "storages")

				retention, ok := section["retention"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, 25, retention["max_backups"])
			},
		},
		{
			name:          "invalid yaml",
			content:       "log_level: [unclosed\n",
			expectSuccess: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.content), 0644))

			mt := NewMigrationTool(false, false)
			result := mt.MigrateConfiguration(configPath)

			assert.Equal(t, tt.expectSuccess, result.Success)
			assert.Equal(t, tt.alreadyExists, result.AlreadyExists)

			if !tt.expectSuccess {
				assert.Error(t, result.Error)
				return
			}

			if tt.alreadyExists {
				assert.Empty(t, result.BackupPath)
			} else {
				assert.NotEmpty(t, result.BackupPath)
				assert.FileExists(t, result.BackupPath)

				original, err := os.ReadFile(result.BackupPath)
				require.NoError(t, err)
				assert.Equal(t, tt.content, string(original))
			}

			if tt.verify != nil {
				tt.verify(t, configPath)
			}
		})
	}
}

func TestMigrationTool_MigrateConfiguration_DryRun(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "log_level: info\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	mt := NewMigrationTool(true, false)
	result := mt.MigrateConfiguration(configPath)

	assert.True(t, result.Success)
	assert.Empty(t, result.BackupPath)

	// Dry run leaves the file untouched
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestMigrationTool_MigrateAll(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	oldWd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(oldWd)
	require.NoError(t, os.Chdir(tmpDir))

	require.NoError(t, os.WriteFile("config.yaml", []byte("log_level: info\n"), 0644))
	require.NoError(t, os.WriteFile("backup-orchestrator.yaml", []byte("backup:\n  enabled: true\n"), 0644))
	require.NoError(t, os.WriteFile(".backup-orchestrator.yaml", []byte("log_level: debug\n"), 0644))

	mt := NewMigrationTool(false, false)
	results, err := mt.MigrateAll()

	require.NoError(t, err)
	require.Len(t, results, 3)

	migrated := 0
	alreadyExists := 0
	for _, result := range results {
		assert.True(t, result.Success)
		if result.AlreadyExists {
			alreadyExists++
		} else {
			migrated++
		}
	}
	assert.Equal(t, 2, migrated)
	assert.Equal(t, 1, alreadyExists)
}

func TestMigrationTool_CreateDefaultConfiguration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	mt := NewMigrationTool(false, false)
	err := mt.CreateDefaultConfiguration(configPath)

	require.NoError(t, err)
	require.FileExists(t, configPath)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "backup:")
	assert.Contains(t, content, "display:")
	assert.Contains(t, content, "log_level:")
	assert.Contains(t, content, "enabled: false")
	assert.Contains(t, content, "storage_type: postgres")
}

func TestMigrationTool_CreateDefaultConfiguration_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0644))

	mt := NewMigrationTool(false, false)
	err := mt.CreateDefaultConfiguration(configPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestMigrationTool_RollbackMigration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	original := "log_level: info\n"
	require.NoError(t, os.WriteFile(configPath, []byte(original), 0644))

	mt := NewMigrationTool(false, false)
	result := mt.MigrateConfiguration(configPath)
	require.True(t, result.Success)
	require.NotEmpty(t, result.BackupPath)

	err := mt.RollbackMigration(configPath, result.BackupPath)
	require.NoError(t, err)

	restored, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(restored))
}

func TestMigrationTool_RollbackMigration_NoBackup(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	mt := NewMigrationTool(false, false)
	err := mt.RollbackMigration(configPath, configPath+".backup-20240101-120000")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestMigrationTool_ListBackupFiles(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	backupNames := []string{
		"config.yaml.backup-20240101-120000",
		"config.yaml.backup-20240102-120000",
		"config.yaml.backup-20240103-120000",
	}
	for _, name := range backupNames {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte("old"), 0644))
	}

	// Neither the config file itself nor unrelated files count as backups
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: info\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "other-file.backup"), []byte("x"), 0644))

	mt := NewMigrationTool(false, false)
	backups, err := mt.ListBackupFiles(configPath)

	require.NoError(t, err)
	assert.Len(t, backups, 3)
	for _, name := range backupNames {
		assert.Contains(t, backups, filepath.Join(tmpDir, name))
	}
}

func TestMigrationTool_CleanupBackupFiles(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	base := time.Now().Add(-time.Hour)
	var paths []string
	for i := 0; i < 5; i++ {
		path := filepath.Join(tmpDir, fmt.Sprintf("config.yaml.backup-2024010%d-120000", i+1))
		require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

		modTime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, modTime, modTime))
		paths = append(paths, path)
	}

	mt := NewMigrationTool(false, false)
	err := mt.CleanupBackupFiles(configPath, 3)
	require.NoError(t, err)

	// The two oldest backups are removed, the three newest kept
	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])
	assert.FileExists(t, paths[2])
	assert.FileExists(t, paths[3])
	assert.FileExists(t, paths[4])
}

func TestMigrationTool_CleanupBackupFiles_UnderLimit(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	path := filepath.Join(tmpDir, "config.yaml.backup-20240101-120000")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	mt := NewMigrationTool(false, false)
	require.NoError(t, mt.CleanupBackupFiles(configPath, 3))
	assert.FileExists(t, path)
}

func TestMigrationTool_ValidateAllMigrations(t *testing.T) {
	tmpDir := t.TempDir()

	validPath := filepath.Join(tmpDir, "valid.yaml")
	validContent := `backup:
  enabled: true
  destinations:
    - type: LOCAL
      local:
        base_path: ` + filepath.Join(tmpDir, "data") + `
  retention:
    max_backups: 10
`
	require.NoError(t, os.WriteFile(validPath, []byte(validContent), 0644))

	invalidPath := filepath.Join(tmpDir, "invalid.yaml")
	invalidContent := `backup:
  enabled: true
  destinations:
    - type: tape
`
	require.NoError(t, os.WriteFile(invalidPath, []byte(invalidContent), 0644))

	results := []MigrationResult{
		{ConfigPath: validPath, Success: true},
		{ConfigPath: invalidPath, Success: true},
		{ConfigPath: filepath.Join(tmpDir, "skipped.yaml"), Success: false},
	}

	mt := NewMigrationTool(false, false)
	err := mt.ValidateAllMigrations(results)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration validation failed")
	assert.Contains(t, err.Error(), "invalid destination type")
	assert.NotContains(t, err.Error(), "skipped.yaml")
}

func TestMigrationTool_ValidateAllMigrations_DryRun(t *testing.T) {
	mt := NewMigrationTool(true, false)

	results := []MigrationResult{
		{ConfigPath: "/nonexistent/config.yaml", Success: true},
	}

	assert.NoError(t, mt.ValidateAllMigrations(results))
}

func TestMigrationTool_PrintMigrationSummary(t *testing.T) {
	results := []MigrationResult{
		{ConfigPath: "./config.yaml", Success: true, BackupPath: "./config.yaml.backup-20240101-120000"},
		{ConfigPath: "./backup-orchestrator.yaml", Success: true, AlreadyExists: true},
		{ConfigPath: "./broken.yaml", Error: assert.AnError},
	}

	// Ensures the summary renders without panicking
	NewMigrationTool(false, true).PrintMigrationSummary(results)
	NewMigrationTool(true, false).PrintMigrationSummary(results)
}

func TestMigrationTool_GenerateBackupPath(t *testing.T) {
	mt := NewMigrationTool(false, false)
	backupPath := mt.generateBackupPath("/etc/backup-orchestrator/config.yaml")

	assert.Contains(t, backupPath, "/etc/backup-orchestrator/config.yaml.backup-")
	assert.Regexp(t, `\.backup-\d{8}-\d{6}$`, backupPath)
}

func TestMigrationTool_GetDefaultBackupConfig(t *testing.T) {
	mt := NewMigrationTool(false, false)
	section := mt.getDefaultBackupConfig()

	assert.Equal(t, false, section["enabled"])

	storages, ok := section["storages"].([]interface{})
	require.True(t, ok)
	require.Len(t, storages, 2)

	postgres, ok := storages[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "postgres", postgres["storage_type"])
	assert.Equal(t, true, postgres["enabled"])

	destinations, ok := section["destinations"].([]interface{})
	require.True(t, ok)
	require.Len(t, destinations, 1)

	local, ok := destinations[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "LOCAL", local["type"])

	retention, ok := section["retention"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 7, retention["daily_retention_days"])
	assert.Equal(t, 50, retention["max_backups"])

	global, ok := section["global"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, global["max_parallel_jobs"])
}

// Benchmark tests
func BenchmarkMigrationTool_MigrateConfiguration(b *testing.B) {
	tmpDir := b.TempDir()
	mt := NewMigrationTool(false, false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		configPath := filepath.Join(tmpDir, fmt.Sprintf("config_%d.yaml", i))
		if err := os.WriteFile(configPath, []byte("log_level: info\n"), 0644); err != nil {
			b.Fatal(err)
		}
		result := mt.MigrateConfiguration(configPath)
		if !result.Success {
			b.Fatalf("migration failed: %v", result.Error)
		}
	}
}

func BenchmarkMigrationTool_GetDefaultBackupConfig(b *testing.B) {
	mt := NewMigrationTool(false, false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mt.getDefaultBackupConfig()
	}
}
