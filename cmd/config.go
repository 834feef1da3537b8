package cmd

import (
	"fmt"
	"os"
	"sort"

	"backup-orchestrator/internal/backup"
	appConfig "backup-orchestrator/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Config management flags
	configWizard         bool
	configDryRun         bool
	configTemplateOutput string
)

const defaultConfigPath = "./backup-orchestrator.yaml"

// configCmd groups the configuration management subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect, initialize and migrate the configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and run a health check",
	Long: `Validate the backup section of the configuration file, then run a
health check against the loaded configuration.

Without --config the well-known locations are searched
(./backup-orchestrator.yaml, ~/.config/backup-orchestrator,
/etc/backup-orchestrator).

Examples:
  backup-orchestrator config check
  backup-orchestrator config check --config ./backup-orchestrator.yaml`,
	RunE: runConfigCheck,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file and prepare the backup system",
	Long: `Write a default configuration file, then create the directories
and destination layout it describes and check for the required dump
tools.

--wizard asks for the settings interactively instead of writing the
defaults.

Examples:
  backup-orchestrator config init
  backup-orchestrator config init --config /etc/backup-orchestrator/backup-orchestrator.yaml
  backup-orchestrator config init --wizard`,
	RunE: runConfigInit,
}

var configMigrateCmd = &cobra.Command{
	Use:   "migrate [config-file]",
	Short: "Add the backup section to existing configuration files",
	Long: `Add a default backup section to configuration files that predate
it. Without an argument the well-known locations are scanned; with one
only that file is migrated. Existing files are backed up first.

Examples:
  backup-orchestrator config migrate
  backup-orchestrator config migrate ./backup-orchestrator.yaml
  backup-orchestrator config migrate --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigMigrate,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List the recognized environment variables",
	RunE:  runConfigEnv,
}

var configTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print a complete configuration template",
	RunE:  runConfigTemplate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configMigrateCmd)
	configCmd.AddCommand(configEnvCmd)
	configCmd.AddCommand(configTemplateCmd)

	configInitCmd.Flags().BoolVar(&configWizard, "wizard", false, "configure interactively")
	configMigrateCmd.Flags().BoolVar(&configDryRun, "dry-run", false, "report what would change without writing")
	configTemplateCmd.Flags().StringVar(&configTemplateOutput, "output", "", "write the template to this file instead of stdout")
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	integration := appConfig.NewConfigIntegration()
	if err := integration.ValidateIntegratedConfig(cfgFile); err != nil {
		return err
	}

	cfg, err := integration.LoadBackupConfig(cfgFile)
	if err != nil {
		return err
	}
	result, err := appConfig.NewBackupSystemInitializer(cfg, verbose).RunHealthCheck()
	if err != nil {
		return err
	}

	fmt.Printf("Overall health: %s\n", result.OverallHealth)
	components := make([]string, 0, len(result.ComponentStatus))
	for component := range result.ComponentStatus {
		components = append(components, component)
	}
	sort.Strings(components)
	for _, component := range components {
		fmt.Printf("  %-14s %s\n", component, result.ComponentStatus[component])
	}
	for _, issue := range result.Issues {
		fmt.Printf("Issue: %s\n", issue)
	}
	for _, recommendation := range result.Recommendations {
		fmt.Printf("Hint: %s\n", recommendation)
	}
	if result.OverallHealth == "unhealthy" {
		return fmt.Errorf("configuration health check failed")
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath
	}

	var cfg *backup.BackupConfig
	if configWizard {
		wizardCfg, err := appConfig.NewBackupSystemInitializer(nil, verbose).CreateSetupWizard().RunWizard()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		}
		data, err := yaml.Marshal(map[string]interface{}{"backup": wizardCfg})
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write configuration: %w", err)
		}
		cfg = wizardCfg
	} else {
		if err := appConfig.NewMigrationTool(false, verbose).CreateDefaultConfiguration(path); err != nil {
			return err
		}
		loaded, err := appConfig.NewConfigIntegration().LoadBackupConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	fmt.Printf("Configuration written to %s\n", path)

	initializer := appConfig.NewBackupSystemInitializer(cfg, verbose)
	result, err := initializer.InitializeBackupSystem()
	if err != nil {
		if result != nil {
			initializer.PrintInitializationReport(result)
		}
		return err
	}
	initializer.PrintInitializationReport(result)
	if !result.Success {
		return fmt.Errorf("backup system initialization reported problems")
	}
	return nil
}

func runConfigMigrate(cmd *cobra.Command, args []string) error {
	tool := appConfig.NewMigrationTool(configDryRun, verbose)

	var results []appConfig.MigrationResult
	if len(args) == 1 {
		results = []appConfig.MigrationResult{tool.MigrateConfiguration(args[0])}
	} else {
		all, err := tool.MigrateAll()
		if err != nil {
			return err
		}
		results = all
	}

	tool.PrintMigrationSummary(results)
	if configDryRun {
		return nil
	}
	return tool.ValidateAllMigrations(results)
}

func runConfigEnv(cmd *cobra.Command, args []string) error {
	integration := appConfig.NewConfigIntegration()
	for _, variable := range integration.ListEnvironmentVariables() {
		fmt.Println(variable)
	}
	if verbose {
		fmt.Println()
		fmt.Println(integration.GetConfigurationHelp())
	}
	return nil
}

func runConfigTemplate(cmd *cobra.Command, args []string) error {
	template := appConfig.NewConfigIntegration().GenerateConfigTemplate()
	if configTemplateOutput == "" {
		fmt.Print(template)
		return nil
	}
	if _, err := os.Stat(configTemplateOutput); err == nil {
		return fmt.Errorf("file already exists: %s", configTemplateOutput)
	}
	if err := os.WriteFile(configTemplateOutput, []byte(template), 0644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	fmt.Printf("Template written to %s\n", configTemplateOutput)
	return nil
}
