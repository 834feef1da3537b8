package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MigrationTool upgrades configuration files to the current layout. Earlier
// releases used a standalone file with the backup keys at the top level; the
// current layout nests them under a backup section alongside the display and
// logging settings.
type MigrationTool struct {
	configPaths []string
	dryRun      bool
	verbose     bool
}

// MigrationResult contains the outcome of migrating one configuration file
type MigrationResult struct {
	ConfigPath    string
	Success       bool
	AlreadyExists bool
	Error         error
	BackupPath    string
}

// NewMigrationTool creates a new configuration migration tool
func NewMigrationTool(dryRun, verbose bool) *MigrationTool {
	home := os.Getenv("HOME")
	return &MigrationTool{
		configPaths: []string{
			"./backup-orchestrator.yaml",
			"./.backup-orchestrator.yaml",
			"./config.yaml",
			filepath.Join(home, ".backup-orchestrator.yaml"),
			filepath.Join(home, ".config", "backup-orchestrator", "config.yaml"),
		},
		dryRun:  dryRun,
		verbose: verbose,
	}
}

// DiscoverConfigurations returns the known configuration paths that exist
func (mt *MigrationTool) DiscoverConfigurations() ([]string, error) {
	var discovered []string

	for _, path := range mt.configPaths {
		if _, err := os.Stat(path); err == nil {
			discovered = append(discovered, path)
			if mt.verbose {
				fmt.Printf("Found configuration: %s\n", path)
			}
		}
	}

	return discovered, nil
}

// MigrateAll discovers and migrates every known configuration file
func (mt *MigrationTool) MigrateAll() ([]MigrationResult, error) {
	discovered, err := mt.DiscoverConfigurations()
	if err != nil {
		return nil, err
	}

	results := make([]MigrationResult, 0, len(discovered))
	for _, path := range discovered {
		results = append(results, mt.MigrateConfiguration(path))
	}

	return results, nil
}

// MigrateConfiguration migrates a single configuration file to the current
// layout. The original file is preserved as a timestamped backup.
func (mt *MigrationTool) MigrateConfiguration(configPath string) MigrationResult {
	result := MigrationResult{ConfigPath: configPath}

	data, err := os.ReadFile(configPath)
	if err != nil {
		result.Error = fmt.Errorf("failed to read configuration: %w", err)
		return result
	}

	var root map[string]interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		result.Error = fmt.Errorf("invalid YAML: %w", err)
		return result
	}
	if root == nil {
		root = make(map[string]interface{})
	}

	if _, exists := root["backup"]; exists {
		result.Success = true
		result.AlreadyExists = true
		if mt.verbose {
			fmt.Printf("Backup configuration already present in %s\n", configPath)
		}
		return result
	}

	if legacy := extractLegacySection(root); legacy != nil {
		root["backup"] = legacy
		if mt.verbose {
			fmt.Printf("Relocating standalone backup keys in %s\n", configPath)
		}
	} else {
		root["backup"] = mt.getDefaultBackupConfig()
	}

	if mt.dryRun {
		result.Success = true
		if mt.verbose {
			fmt.Printf("Dry run: would migrate %s\n", configPath)
		}
		return result
	}

	backupPath := mt.generateBackupPath(configPath)
	if err := mt.createBackup(configPath, backupPath); err != nil {
		result.Error = fmt.Errorf("failed to back up configuration: %w", err)
		return result
	}
	result.BackupPath = backupPath

	updated, err := yaml.Marshal(root)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal configuration: %w", err)
		return result
	}
	if err := os.WriteFile(configPath, updated, 0644); err != nil {
		result.Error = fmt.Errorf("failed to write configuration: %w", err)
		return result
	}

	result.Success = true
	if mt.verbose {
		fmt.Printf("Migrated %s (backup: %s)\n", configPath, backupPath)
	}
	return result
}

// extractLegacySection relocates a standalone layout's top-level backup keys
// into one section. Returns nil when the file carries no legacy keys.
func extractLegacySection(root map[string]interface{}) map[string]interface{} {
	legacyKeys := []string{"storages", "destinations", "schedule", "retention", "encryption", "global"}

	section := make(map[string]interface{})
	found := false
	for _, key := range legacyKeys {
		if value, ok := root[key]; ok {
			section[key] = value
			delete(root, key)
			found = true
		}
	}
	if !found {
		return nil
	}

	// The top-level enabled flag belongs to the backup section in the
	// standalone layout.
	if value, ok := root["enabled"]; ok {
		section["enabled"] = value
		delete(root, "enabled")
	}

	return section
}

// getDefaultBackupConfig returns the default backup section for files that
// carried no backup settings
func (mt *MigrationTool) getDefaultBackupConfig() map[string]interface{} {
	return map[string]interface{}{
		"enabled": false,
		"storages": []interface{}{
			map[string]interface{}{
				"storage_type": "postgres",
				"enabled":      true,
				"kind":         "full",
				"compression":  "GZIP",
			},
			map[string]interface{}{
				"storage_type": "mysql",
				"enabled":      false,
				"kind":         "full",
				"compression":  "GZIP",
			},
		},
		"destinations": []interface{}{
			map[string]interface{}{
				"type": "LOCAL",
				"local": map[string]interface{}{
					"base_path":   "./backups/data",
					"permissions": 0o755,
				},
			},
		},
		"schedule": map[string]interface{}{
			"expression": "0 2 * * *",
			"timezone":   "",
			"enabled":    false,
		},
		"retention": map[string]interface{}{
			"daily_retention_days":     7,
			"weekly_retention_weeks":   4,
			"monthly_retention_months": 12,
			"max_backups":              50,
			"auto_cleanup":             true,
		},
		"global": map[string]interface{}{
			"max_parallel_jobs":     2,
			"verify_after_backup":   true,
			"verification_types":    []interface{}{"checksum", "size-validation"},
			"parallel_verification": false,
			"history_dir":           "./backups/history",
			"report_dir":            "./backups/reports",
		},
	}
}

// generateBackupPath returns a timestamped backup path for a configuration
// file
func (mt *MigrationTool) generateBackupPath(configPath string) string {
	return fmt.Sprintf("%s.backup-%s", configPath, time.Now().Format("20060102-150405"))
}

// createBackup copies the configuration file to the backup path
func (mt *MigrationTool) createBackup(configPath, backupPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return err
	}

	if mt.verbose {
		fmt.Printf("Created backup: %s\n", backupPath)
	}
	return nil
}

// ValidateAllMigrations validates the backup section of every successfully
// migrated file
func (mt *MigrationTool) ValidateAllMigrations(results []MigrationResult) error {
	if mt.dryRun {
		return nil
	}

	var failures []string
	for _, result := range results {
		if !result.Success {
			continue
		}
		if err := mt.validateMigratedConfig(result.ConfigPath); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", result.ConfigPath, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("migration validation failed:\n%s", strings.Join(failures, "\n"))
	}
	return nil
}

func (mt *MigrationTool) validateMigratedConfig(configPath string) error {
	return NewConfigIntegration().ValidateIntegratedConfig(configPath)
}

// PrintMigrationSummary prints a human-readable migration summary
func (mt *MigrationTool) PrintMigrationSummary(results []MigrationResult) {
	fmt.Println("\nMigration Summary")
	fmt.Println("=================")

	migrated := 0
	alreadyExists := 0
	failed := 0

	for _, result := range results {
		switch {
		case result.Success && result.AlreadyExists:
			alreadyExists++
			fmt.Printf("✓ %s (already configured)\n", result.ConfigPath)
		case result.Success:
			migrated++
			fmt.Printf("✓ %s\n", result.ConfigPath)
			if result.BackupPath != "" && mt.verbose {
				fmt.Printf("  backup: %s\n", result.BackupPath)
			}
		default:
			failed++
			fmt.Printf("✗ %s: %v\n", result.ConfigPath, result.Error)
		}
	}

	fmt.Printf("\n%d migrated, %d already configured, %d failed\n", migrated, alreadyExists, failed)
	if mt.dryRun {
		fmt.Println("Dry run: no files were modified")
	}
}

// CreateDefaultConfiguration writes a complete default configuration file
func (mt *MigrationTool) CreateDefaultConfiguration(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	config := map[string]interface{}{
		"log_level":    "info",
		"log_format":   "text",
		"log_file":     "",
		"auto_approve": false,
		"backup":       mt.getDefaultBackupConfig(),
		"display": map[string]interface{}{
			"color_enabled":   true,
			"theme":           "dark",
			"output_format":   "table",
			"use_icons":       true,
			"show_progress":   true,
			"interactive":     true,
			"table_style":     "default",
			"max_table_width": 120,
		},
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal default configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	if mt.verbose {
		fmt.Printf("Created default configuration: %s\n", configPath)
	}
	return nil
}

// RollbackMigration restores a configuration file from its backup
func (mt *MigrationTool) RollbackMigration(configPath, backupPath string) error {
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup file does not exist: %s", backupPath)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to restore configuration: %w", err)
	}

	if mt.verbose {
		fmt.Printf("Restored %s from %s\n", configPath, backupPath)
	}
	return nil
}

// ListBackupFiles returns the backup copies of a configuration file
func (mt *MigrationTool) ListBackupFiles(configPath string) ([]string, error) {
	dir := filepath.Dir(configPath)
	prefix := filepath.Base(configPath) + ".backup"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	return backups, nil
}

// CleanupBackupFiles removes old backup copies, keeping the newest keepCount
func (mt *MigrationTool) CleanupBackupFiles(configPath string, keepCount int) error {
	backups, err := mt.ListBackupFiles(configPath)
	if err != nil {
		return err
	}
	if len(backups) <= keepCount {
		return nil
	}

	type backupFile struct {
		path    string
		modTime time.Time
	}

	files := make([]backupFile, 0, len(backups))
	for _, path := range backups {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, backupFile{path: path, modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	for _, file := range files[keepCount:] {
		if err := os.Remove(file.path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file.path, err)
		}
		if mt.verbose {
			fmt.Printf("Removed old backup: %s\n", file.path)
		}
	}

	return nil
}
