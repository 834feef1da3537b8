package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"backup-orchestrator/internal/application"
	"backup-orchestrator/internal/backup"
	"backup-orchestrator/internal/confirmation"
	"backup-orchestrator/internal/display"

	"github.com/spf13/cobra"
)

var (
	// Statistics flags
	statsUsage  bool
	statsHealth bool

	// Scheduler flags
	scheduleDaemon bool
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show backup statistics, storage usage or destination health",
	Long: `Show aggregate backup statistics.

--usage switches to a storage usage breakdown and --health probes every
configured destination.

Examples:
  backup-orchestrator stats
  backup-orchestrator stats --usage
  backup-orchestrator stats --health
  backup-orchestrator stats --format json`,
	RunE: runStats,
}

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Start cron schedules or show upcoming runs",
	Long: `Register the configured cron schedules.

Without --daemon the command prints the next run per storage type and
exits. With --daemon it keeps running and executes backups on schedule
until interrupted.

Examples:
  # Show upcoming runs
  backup-orchestrator schedule

  # Run as a scheduler daemon
  backup-orchestrator schedule --daemon`,
	RunE: runSchedule,
}

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy to stored backups",
	Long: `Delete backups that fall outside the retention policy.

Retention keeps a daily window, tiered weekly and monthly backups, and
enforces the backup cap. Cleanup is destructive and prompts for
confirmation unless --auto-approve is set.

Examples:
  backup-orchestrator cleanup
  backup-orchestrator cleanup --auto-approve`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(cleanupCmd)

	statsCmd.Flags().BoolVar(&statsUsage, "usage", false, "show the storage usage breakdown")
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "probe destination health")

	scheduleCmd.Flags().BoolVar(&scheduleDaemon, "daemon", false, "keep running and execute scheduled backups")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsUsage && statsHealth {
		return fmt.Errorf("--usage and --health are mutually exclusive")
	}

	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if statsUsage {
		return renderUsage(app, app.Orchestrator().StorageUsage())
	}
	if statsHealth {
		return renderHealth(app, app.Orchestrator().CheckDestinations(context.Background()))
	}
	return renderStatistics(app, app.Orchestrator().GetStatistics())
}

func runSchedule(cmd *cobra.Command, args []string) error {
	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if scheduleDaemon {
		app.Display().Info("Scheduler running; press Ctrl+C to stop")
		return app.RunScheduler(context.Background())
	}

	if err := app.Orchestrator().ScheduleBackups(); err != nil {
		return err
	}
	next := app.Orchestrator().GetNextScheduledBackups()
	if len(next) == 0 {
		app.Display().Info("No schedules are enabled")
		return nil
	}
	printNextRuns(app, next)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	retention := app.BackupConfig().Retention
	request := &confirmation.Request{
		Action:  "Clean Up Backups",
		Subject: "backups outside the retention policy",
		Impact: []string{
			fmt.Sprintf("Daily backups older than %d days are removed unless a weekly or monthly tier keeps them", retention.DailyRetentionDays),
			fmt.Sprintf("At most %d weekly and %d monthly backups are kept", retention.WeeklyRetentionWeeks, retention.MonthlyRetentionMonths),
		},
		Destructive: true,
	}
	if retention.MaxBackups > 0 {
		request.Impact = append(request.Impact, fmt.Sprintf("At most the %d newest backups survive the cap", retention.MaxBackups))
	}

	confirmed, err := app.Confirmation().Confirm(request, app.AutoApprove())
	if err != nil {
		return err
	}
	if !confirmed {
		app.Display().Info("Cleanup cancelled")
		return nil
	}

	removed, err := app.Orchestrator().CleanupOldBackups(context.Background())
	if err != nil {
		return err
	}
	if removed == 0 {
		app.Display().Info("No backups needed to be removed")
		return nil
	}
	app.Display().Success(fmt.Sprintf("Removed %d backups", removed))
	return nil
}

func renderStatistics(app *application.Application, stats *backup.BackupStatistics) error {
	switch outputFormatOf(app) {
	case display.FormatJSON:
		return printJSON(stats)
	case display.FormatYAML:
		return printYAML(stats)
	}

	summary := display.NewSummary("Backup Statistics")
	summary.Addf("Total backups", "%d", stats.TotalBackups)
	summary.Addf("Completed", "%d", stats.CompletedBackups)
	summary.Addf("Failed", "%d", stats.FailedBackups)
	summary.Addf("Cancelled", "%d", stats.CancelledBackups)
	summary.Addf("Active jobs", "%d", stats.ActiveJobs)
	summary.Addf("Queued jobs", "%d", stats.QueuedJobs)
	summary.Add("Total size", formatBytes(stats.TotalSize))
	summary.Add("Average size", formatBytes(stats.AverageSize))
	summary.Addf("Success rate", "%.1f%%", stats.SuccessRate*100)
	if stats.LastBackupTime != nil {
		summary.Add("Last backup", stats.LastBackupTime.Format("2006-01-02 15:04:05"))
	}
	app.Display().PrintSummary(summary)

	if len(stats.ByStorageType) > 0 {
		types := make([]string, 0, len(stats.ByStorageType))
		for storageType := range stats.ByStorageType {
			types = append(types, storageType)
		}
		sort.Strings(types)

		headers := []string{"Storage", "Backups", "Completed", "Failed", "Size", "Last Backup"}
		rows := make([][]string, 0, len(types))
		for _, storageType := range types {
			typeStats := stats.ByStorageType[storageType]
			lastBackup := "never"
			if typeStats.LastBackupTime != nil {
				lastBackup = typeStats.LastBackupTime.Format("2006-01-02 15:04:05")
			}
			rows = append(rows, []string{
				storageType,
				strconv.Itoa(typeStats.TotalBackups),
				strconv.Itoa(typeStats.Completed),
				strconv.Itoa(typeStats.Failed),
				formatBytes(typeStats.TotalSize),
				lastBackup,
			})
		}
		app.Display().PrintTable(headers, rows)
	}

	if len(stats.NextScheduled) > 0 {
		printNextRuns(app, stats.NextScheduled)
	}
	return nil
}

func renderUsage(app *application.Application, report *backup.StorageUsageReport) error {
	switch outputFormatOf(app) {
	case display.FormatJSON:
		return printJSON(report)
	case display.FormatYAML:
		return printYAML(report)
	}

	summary := display.NewSummary("Storage Usage")
	summary.Addf("Backups", "%d", report.TotalBackups)
	summary.Add("Raw size", formatBytes(report.TotalSize))
	summary.Add("Stored size", formatBytes(report.TotalStoredSize))
	if report.TotalSize > 0 {
		summary.Addf("Compression ratio", "%.2f", report.CompressionRatio)
	}
	summary.Add("Average backup", formatBytes(report.AverageBackupSize))
	if report.LargestBackup != nil {
		summary.Addf("Largest", "%s (%s)", report.LargestBackup.ID, formatBytes(report.LargestBackup.Size))
	}
	if report.SmallestBackup != nil {
		summary.Addf("Smallest", "%s (%s)", report.SmallestBackup.ID, formatBytes(report.SmallestBackup.Size))
	}
	app.Display().PrintSummary(summary)

	if len(report.ByStorageType) > 0 {
		types := make([]string, 0, len(report.ByStorageType))
		for storageType := range report.ByStorageType {
			types = append(types, storageType)
		}
		sort.Strings(types)

		headers := []string{"Storage", "Backups", "Raw", "Stored", "Ratio", "Oldest", "Newest"}
		rows := make([][]string, 0, len(types))
		for _, storageType := range types {
			usage := report.ByStorageType[storageType]
			rows = append(rows, []string{
				storageType,
				strconv.Itoa(usage.BackupCount),
				formatBytes(usage.TotalSize),
				formatBytes(usage.StoredSize),
				fmt.Sprintf("%.2f", usage.CompressionRatio),
				usage.OldestBackup.Format("2006-01-02"),
				usage.NewestBackup.Format("2006-01-02"),
			})
		}
		app.Display().PrintTable(headers, rows)
	}

	if len(report.ByAge) > 0 {
		headers := []string{"Age", "Backups", "Raw", "Stored"}
		rows := make([][]string, 0, len(report.ByAge))
		for _, group := range []string{"daily", "weekly", "monthly", "older"} {
			usage := report.ByAge[group]
			if usage == nil {
				continue
			}
			rows = append(rows, []string{
				group,
				strconv.Itoa(usage.BackupCount),
				formatBytes(usage.TotalSize),
				formatBytes(usage.StoredSize),
			})
		}
		app.Display().PrintTable(headers, rows)
	}
	return nil
}

func renderHealth(app *application.Application, report *backup.DestinationHealthReport) error {
	switch outputFormatOf(app) {
	case display.FormatJSON:
		if err := printJSON(report); err != nil {
			return err
		}
	case display.FormatYAML:
		if err := printYAML(report); err != nil {
			return err
		}
	default:
		headers := []string{"Destination", "Target", "Healthy", "Response", "Error"}
		rows := make([][]string, 0, len(report.Destinations))
		for _, dest := range report.Destinations {
			healthy := "yes"
			if !dest.Healthy {
				healthy = "no"
			}
			rows = append(rows, []string{
				string(dest.Type),
				dest.Target,
				healthy,
				dest.ResponseTime.Round(time.Millisecond).String(),
				dest.Error,
			})
		}
		app.Display().PrintTable(headers, rows)
		if report.OverallHealthy {
			app.Display().Success("All destinations are healthy")
		}
	}

	if !report.OverallHealthy {
		return backup.NewUnavailableError("one or more destinations are unhealthy", nil)
	}
	return nil
}

func printNextRuns(app *application.Application, next map[string]time.Time) {
	types := make([]string, 0, len(next))
	for storageType := range next {
		types = append(types, storageType)
	}
	sort.Strings(types)

	headers := []string{"Storage", "Next Run"}
	rows := make([][]string, 0, len(types))
	for _, storageType := range types {
		rows = append(rows, []string{storageType, next[storageType].Format("2006-01-02 15:04:05 MST")})
	}
	app.Display().PrintTable(headers, rows)
}
