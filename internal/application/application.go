package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"backup-orchestrator/internal/backup"
	appConfig "backup-orchestrator/internal/config"
	"backup-orchestrator/internal/confirmation"
	"backup-orchestrator/internal/display"
	appErrors "backup-orchestrator/internal/errors"
	"backup-orchestrator/internal/logging"
	"backup-orchestrator/internal/mysql"
	"backup-orchestrator/internal/postgres"
)

// defaultShutdownTimeout bounds orchestrator drain when no explicit timeout
// is configured
const defaultShutdownTimeout = 30 * time.Second

// Application wires configuration, logging, display and the backup
// orchestrator together for the CLI commands
type Application struct {
	config          Config
	backupConfig    *backup.BackupConfig
	orchestrator    *backup.Orchestrator
	logger          *logging.Logger
	display         display.DisplayService
	confirmer       confirmation.ConfirmationService
	classifier      *appErrors.ErrorClassifier
	shutdownHandler *appErrors.GracefulShutdownHandler
}

// Config holds the application configuration
type Config struct {
	// ConfigPath locates the YAML configuration file; empty selects the
	// default search paths
	ConfigPath string `mapstructure:"config" yaml:"config"`

	// Backup short-circuits configuration loading when set; used by tests
	// and by commands that already hold a validated configuration
	Backup *backup.BackupConfig `mapstructure:"-" yaml:"-"`

	Display     *display.DisplayConfig `mapstructure:"display" yaml:"display"`
	LogFormat   string                 `mapstructure:"log_format" yaml:"log_format"`
	LogFile     string                 `mapstructure:"log_file" yaml:"log_file"`
	AutoApprove bool                   `mapstructure:"auto_approve" yaml:"auto_approve"`
	Verbose     bool                   `mapstructure:"verbose" yaml:"verbose"`
	Quiet       bool                   `mapstructure:"quiet" yaml:"quiet"`
	Timeout     time.Duration          `mapstructure:"timeout" yaml:"timeout"`
}

// NewApplication creates a new application instance: logger, backup
// configuration, display service, orchestrator with registered backends,
// confirmation service and shutdown handler.
func NewApplication(config Config) (*Application, error) {
	// Determine log level; quiet wins over verbose
	logLevel := logging.LogLevelNormal
	if config.Quiet {
		logLevel = logging.LogLevelQuiet
	} else if config.Verbose {
		logLevel = logging.LogLevelVerbose
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:   logLevel,
		Format:  config.LogFormat,
		LogFile: config.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	backupConfig := config.Backup
	if backupConfig == nil {
		backupConfig, err = appConfig.NewConfigIntegration().LoadBackupConfig(config.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load backup configuration: %w", err)
		}
	}

	displayConfig := config.Display
	if displayConfig == nil {
		displayConfig = display.DefaultDisplayConfig()
	}
	displayConfig.VerboseMode = config.Verbose && !config.Quiet
	displayConfig.QuietMode = config.Quiet
	displayConfig.SetDefaults()
	if err := displayConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid display configuration: %w", err)
	}
	displayService := display.NewDisplayService(displayConfig)

	orchestrator, err := backup.NewOrchestrator(backupConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup orchestrator: %w", err)
	}

	app := &Application{
		config:          config,
		backupConfig:    backupConfig,
		orchestrator:    orchestrator,
		logger:          logger,
		display:         displayService,
		confirmer:       confirmation.NewService(displayService),
		classifier:      appErrors.NewErrorClassifier(),
		shutdownHandler: appErrors.NewGracefulShutdownHandler(),
	}

	app.registerBackends()

	app.shutdownHandler.RegisterShutdownFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
		defer cancel()
		return orchestrator.Shutdown(ctx)
	})

	return app, nil
}

// registerBackends registers a storage backend for every configured storage
// type. Unknown types are logged; the orchestrator rejects them with a
// no-handler error at admission time.
func (app *Application) registerBackends() {
	for i := range app.backupConfig.Storages {
		storage := &app.backupConfig.Storages[i]

		switch storage.StorageType {
		case postgres.DefaultStorageType:
			app.orchestrator.RegisterBackend(postgres.NewBackend(storage.StorageType, storage.Options, app.logger))
		case mysql.DefaultStorageType:
			app.orchestrator.RegisterBackend(mysql.NewBackend(storage.StorageType, storage.Options, app.logger))
		default:
			app.logger.Warnf("No backend available for storage type %q", storage.StorageType)
		}
	}
}

// Orchestrator returns the backup orchestrator
func (app *Application) Orchestrator() *backup.Orchestrator {
	return app.orchestrator
}

// BackupConfig returns the active backup configuration
func (app *Application) BackupConfig() *backup.BackupConfig {
	return app.backupConfig
}

// GetLogger returns the application logger
func (app *Application) GetLogger() *logging.Logger {
	return app.logger
}

// Display returns the display service commands render through
func (app *Application) Display() display.DisplayService {
	return app.display
}

// Confirmation returns the confirmation service for destructive operations
func (app *Application) Confirmation() confirmation.ConfirmationService {
	return app.confirmer
}

// AutoApprove reports whether destructive operations skip confirmation
func (app *Application) AutoApprove() bool {
	return app.config.AutoApprove
}

// RunScheduler starts the configured cron schedules and blocks until the
// context is cancelled or an interrupt signal arrives. The orchestrator is
// drained before returning.
func (app *Application) RunScheduler(ctx context.Context) error {
	if err := app.orchestrator.ScheduleBackups(); err != nil {
		return err
	}

	for storageType, at := range app.orchestrator.GetNextScheduledBackups() {
		app.logger.WithFields(map[string]interface{}{
			"storage_type": storageType,
			"next_run":     at.Format(time.RFC3339),
		}).Info("Backup scheduled")
	}

	// The scheduler daemon is the long-lived process, so it also consumes the
	// job event stream and turns terminal transitions into log entries
	events, unsubscribe := app.orchestrator.Notifications().Subscribe(0)
	defer unsubscribe()
	go app.logJobEvents(events)

	app.shutdownHandler.Start()
	app.logger.Info("Backup scheduler running")

	done := make(chan struct{})
	go func() {
		app.shutdownHandler.WaitForShutdown()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return app.Shutdown()
	case <-done:
		app.logger.Info("Backup scheduler stopped")
		return nil
	}
}

// logJobEvents drains the notification stream until the hub closes.
// Progress events stay at debug level; terminal transitions are logged at
// the level matching their outcome.
func (app *Application) logJobEvents(events <-chan backup.JobEvent) {
	for event := range events {
		fields := map[string]interface{}{
			"job_id":       event.Job.ID,
			"storage_type": event.Job.StorageType,
		}
		switch event.Type {
		case backup.JobEventStarted:
			app.logger.WithFields(fields).Info("Backup job started")
		case backup.JobEventProgress:
			fields["progress"] = event.Job.Progress
			fields["operation"] = event.Job.CurrentOperation
			app.logger.WithFields(fields).Debug("Backup job progress")
		case backup.JobEventCompleted:
			if meta := event.Job.Metadata; meta != nil {
				fields["size"] = meta.Size
			}
			app.logger.WithFields(fields).Info("Backup job completed")
		case backup.JobEventFailed:
			if event.Job.Error != nil {
				fields["error"] = event.Job.Error.Message
			}
			app.logger.WithFields(fields).Error("Backup job failed")
		case backup.JobEventCancelled:
			app.logger.WithFields(fields).Warn("Backup job cancelled")
		}
	}
}

// HandleError reports an operation failure to the user and logs the
// details. Backup taxonomy errors keep their own message; everything else
// goes through the classifier.
func (app *Application) HandleError(err error) {
	if err == nil {
		return
	}

	var backupErr *backup.BackupError
	if errors.As(err, &backupErr) {
		app.display.Error(backupErr.Message)
		app.logger.WithFields(map[string]interface{}{
			"error_type": string(backupErr.Type),
			"retryable":  backup.IsRetryable(backupErr),
			"context":    backupErr.Context,
		}).Error("Operation failed")
		app.provideBackupHints(backupErr)
		return
	}

	appErr := app.classifier.ClassifyError(err)
	app.display.Error(appErrors.FormatUserError(appErr))
	app.logger.WithFields(map[string]interface{}{
		"error_type":  string(appErr.Type),
		"recoverable": appErr.IsRecoverable(),
		"context":     appErr.Context,
	}).Error("Operation failed")
	app.provideTroubleshootingHints(appErr)
}

// provideBackupHints prints troubleshooting information for backup taxonomy
// errors
func (app *Application) provideBackupHints(backupErr *backup.BackupError) {
	switch backupErr.Type {
	case backup.BackupErrorTypeNotConfigured:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Configure connection options for the storage type in the config file\n")
		fmt.Fprintf(os.Stderr, "- Or set the driver environment variables (PGHOST/PGUSER or MYSQL_HOST/MYSQL_USER)\n")

	case backup.BackupErrorTypeNotEnabled, backup.BackupErrorTypeNoHandler:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Check the storage type spelling (postgres, mysql)\n")
		fmt.Fprintf(os.Stderr, "- Enable the storage type in the backup.storages section\n")

	case backup.BackupErrorTypeUnavailable:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Check that the database server is running\n")
		fmt.Fprintf(os.Stderr, "- Verify the host, port and credentials\n")
		fmt.Fprintf(os.Stderr, "- Ensure network connectivity to the database server\n")

	case backup.BackupErrorTypeToolMissing:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Install the database client tools (pg_dump/pg_restore or mysqldump/mysql)\n")
		fmt.Fprintf(os.Stderr, "- Verify the tools are on PATH for the user running the backup\n")

	case backup.BackupErrorTypeNotFound:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Run 'backup-orchestrator list' to see known backup IDs\n")
		fmt.Fprintf(os.Stderr, "- The backup may have been removed by retention cleanup\n")

	case backup.BackupErrorTypeExternalTool:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Review the captured tool output in the logs\n")
		fmt.Fprintf(os.Stderr, "- Verify database permissions for the backup user\n")

	case backup.BackupErrorTypeTimeout:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- The operation may be taking longer than expected\n")
		fmt.Fprintf(os.Stderr, "- Check database server load and backup size\n")

	case backup.BackupErrorTypeValidation:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Review the configuration file and command line arguments\n")
		fmt.Fprintf(os.Stderr, "- Run 'backup-orchestrator config check' to validate the configuration\n")
	}
}

// provideTroubleshootingHints prints troubleshooting information for
// classified application errors
func (app *Application) provideTroubleshootingHints(appErr *appErrors.AppError) {
	switch appErr.Type {
	case appErrors.ErrorTypeConnection:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Check that the database server is running\n")
		fmt.Fprintf(os.Stderr, "- Verify the host and port are correct\n")
		fmt.Fprintf(os.Stderr, "- Ensure network connectivity to the database server\n")

	case appErrors.ErrorTypePermission:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Verify the username and password are correct\n")
		fmt.Fprintf(os.Stderr, "- Check that the user has the required permissions\n")

	case appErrors.ErrorTypeValidation:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Check that the storage type and backup ID are correct\n")
		fmt.Fprintf(os.Stderr, "- Review the command line arguments\n")

	case appErrors.ErrorTypeTimeout:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- The operation may be taking longer than expected\n")
		fmt.Fprintf(os.Stderr, "- Try increasing the timeout value\n")

	case appErrors.ErrorTypeExternalTool:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Check that the database client tools are installed\n")
		fmt.Fprintf(os.Stderr, "- Review the captured tool output in the logs\n")
	}
}

// ExitCode maps an error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var backupErr *backup.BackupError
	if errors.As(err, &backupErr) {
		switch backupErr.Type {
		case backup.BackupErrorTypeValidation, backup.BackupErrorTypeNotEnabled,
			backup.BackupErrorTypeNoHandler, backup.BackupErrorTypeNotConfigured:
			return 2
		case backup.BackupErrorTypeNotFound:
			return 3
		case backup.BackupErrorTypeUnavailable, backup.BackupErrorTypeTimeout:
			return 4
		default:
			return 1
		}
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case appErrors.ErrorTypeValidation:
			return 2
		case appErrors.ErrorTypeTimeout:
			return 4
		default:
			return 1
		}
	}

	return 1
}

// Shutdown drains the orchestrator and releases resources
func (app *Application) Shutdown() error {
	app.logger.Debug("Shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
	defer cancel()

	if err := app.orchestrator.Shutdown(ctx); err != nil {
		return err
	}

	app.logger.Debug("Application shutdown complete")
	return nil
}

func (app *Application) shutdownTimeout() time.Duration {
	if app.config.Timeout > 0 {
		return app.config.Timeout
	}
	return defaultShutdownTimeout
}
