package cmd

import (
	"fmt"
	"os"
	"time"

	"backup-orchestrator/internal/application"
	"backup-orchestrator/internal/display"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// CLI flag variables
var (
	// Operation flags
	verbose     bool
	quiet       bool
	autoApprove bool
	timeout     time.Duration
	logFile     string
	logFormat   string

	// Display flags
	noColor       bool
	theme         string
	outputFormat  string
	noIcons       bool
	noProgress    bool
	noInteractive bool
	tableStyle    string
	maxTableWidth int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "backup-orchestrator",
	Short: "Schedule, verify and restore database backups",
	Long: `Backup Orchestrator manages database backups across PostgreSQL and MySQL
servers: it runs the native dump tools, compresses and optionally encrypts
the artifacts, uploads them to local, S3, Azure or GCS destinations, and
keeps a verifiable history with tiered retention.

Examples:
  # Back up every enabled storage type
  backup-orchestrator backup --all

  # Back up one storage type with tags
  backup-orchestrator backup --storage postgres --tag env=prod --tag release=1.4

  # Search completed backups from the last week
  backup-orchestrator search --after 7d --sort-by start_time

  # Verify a backup with all configured strategies
  backup-orchestrator verify full-20260815-030000

  # Restore into a scratch database without confirmation prompts
  backup-orchestrator restore full-20260815-030000 --database appdb_restore --auto-approve

  # Run the cron scheduler in the foreground
  backup-orchestrator schedule --daemon

  # Apply the retention policy now
  backup-orchestrator cleanup --auto-approve`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(application.ExitCode(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.backup-orchestrator.yaml)")

	// Operation flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&autoApprove, "auto-approve", false, "automatically approve destructive operations without confirmation")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "shutdown drain timeout")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to file in addition to stdout")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Display flags
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "dark", "color theme (dark, light, high-contrast, auto)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format (table, json, yaml, compact)")
	rootCmd.PersistentFlags().BoolVar(&noIcons, "no-icons", false, "disable Unicode icons")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress indicators")
	rootCmd.PersistentFlags().BoolVar(&noInteractive, "no-interactive", false, "disable interactive prompts")
	rootCmd.PersistentFlags().StringVar(&tableStyle, "table-style", "default", "table style (default, rounded, border, minimal)")
	rootCmd.PersistentFlags().IntVar(&maxTableWidth, "max-table-width", 120, "maximum table width (40-300)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("auto_approve", rootCmd.PersistentFlags().Lookup("auto-approve"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Bind display flags (only non-inverted ones)
	viper.BindPFlag("display.theme", rootCmd.PersistentFlags().Lookup("theme"))
	viper.BindPFlag("display.output_format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("display.table_style", rootCmd.PersistentFlags().Lookup("table-style"))
	viper.BindPFlag("display.max_table_width", rootCmd.PersistentFlags().Lookup("max-table-width"))

	rootCmd.AddCommand(createVersionCommand())
}

// newApplication builds the application from the resolved configuration.
// Callers own the returned application and must Shutdown it.
func newApplication(cmd *cobra.Command) (*application.Application, error) {
	config, err := buildConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	app, err := application.NewApplication(*config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}

	return app, nil
}

// validateFlags validates CLI flags and their combinations
func validateFlags() error {
	if verbose && quiet {
		return fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}

	if timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}

	return nil
}

// buildConfig builds the application configuration from CLI flags and the
// config file
func buildConfig(cmd *cobra.Command) (*application.Config, error) {
	if err := validateFlags(); err != nil {
		return nil, err
	}

	config := &application.Config{}

	// Load from viper (combines config file and CLI flags)
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	config.ConfigPath = cfgFile
	if config.ConfigPath == "" {
		// Keep the backup section loader pointed at the same file viper found
		config.ConfigPath = viper.ConfigFileUsed()
	}

	// Override with CLI flags if provided
	if cmd.Flags().Changed("verbose") {
		config.Verbose = verbose
	}
	if cmd.Flags().Changed("quiet") {
		config.Quiet = quiet
	}
	if cmd.Flags().Changed("auto-approve") {
		config.AutoApprove = autoApprove
	}
	if cmd.Flags().Changed("timeout") {
		config.Timeout = timeout
	}
	if logFile != "" {
		config.LogFile = logFile
	}
	if cmd.Flags().Changed("log-format") {
		config.LogFormat = logFormat
	}

	if config.Display == nil {
		config.Display = display.DefaultDisplayConfig()
	}

	if cmd.Flags().Changed("theme") {
		config.Display.Theme = theme
	}
	if cmd.Flags().Changed("format") {
		config.Display.OutputFormat = outputFormat
	}
	if cmd.Flags().Changed("table-style") {
		config.Display.TableStyle = tableStyle
	}
	if cmd.Flags().Changed("max-table-width") {
		config.Display.MaxTableWidth = maxTableWidth
	}

	// Inverted display flags default to enabled unless the config file or
	// the flag says otherwise
	if cmd.Flags().Changed("no-color") {
		config.Display.ColorEnabled = !noColor
	} else if !viper.IsSet("display.color_enabled") {
		config.Display.ColorEnabled = true
	}

	if cmd.Flags().Changed("no-icons") {
		config.Display.UseIcons = !noIcons
	} else if !viper.IsSet("display.use_icons") {
		config.Display.UseIcons = true
	}

	if cmd.Flags().Changed("no-progress") {
		config.Display.ShowProgress = !noProgress
	} else if !viper.IsSet("display.show_progress") {
		config.Display.ShowProgress = true
	}

	if cmd.Flags().Changed("no-interactive") {
		config.Display.InteractiveMode = !noInteractive
	} else if !viper.IsSet("display.interactive") {
		config.Display.InteractiveMode = true
	}

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return config, nil
}

// initConfig reads in the config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in the working directory and home directory.
		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".backup-orchestrator")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("BACKUP_ORCHESTRATOR")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for backup-orchestrator",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backup-orchestrator version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
			fmt.Printf("Go version: %s\n", goVersion)
		},
	}
}
