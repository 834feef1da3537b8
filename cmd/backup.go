package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"backup-orchestrator/internal/application"
	"backup-orchestrator/internal/backup"
	"backup-orchestrator/internal/confirmation"
	"backup-orchestrator/internal/display"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Backup creation flags
	backupStorage string
	backupAll     bool
	backupKind    string
	backupTagArgs []string

	// Job listing flags
	listStorage string
	listStatus  string

	// History search flags
	searchStorage   string
	searchStatus    string
	searchAfter     string
	searchBefore    string
	searchSortBy    string
	searchAscending bool
	searchOffset    int
	searchLimit     int

	// Verification flags
	verifyTypeArgs []string
)

// jobPollInterval is how often a foreground command samples job progress.
const jobPollInterval = 200 * time.Millisecond

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run a backup for one storage type or for all enabled ones",
	Long: `Run a backup and follow it until it finishes.

The request is dispatched immediately when a worker slot is free and
queued otherwise; either way the command waits for the terminal state
and reports the produced artifacts.

Examples:
  # Back up a single storage type
  backup-orchestrator backup --storage postgres

  # Back up every enabled storage type
  backup-orchestrator backup --all

  # Incremental backup with tags
  backup-orchestrator backup --storage mysql --kind incremental --tag env=prod --tag team=payments`,
	RunE: runBackup,
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup jobs and their state",
	Long: `List backup jobs known to the orchestrator.

Completed backups from the history store are included, so the listing
covers previous runs as well as jobs from the current process.

Examples:
  # All jobs
  backup-orchestrator list

  # Only failures for one storage type
  backup-orchestrator list --storage postgres --status failed

  # Machine readable
  backup-orchestrator list --format json`,
	RunE: runList,
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search backup history",
	Long: `Search historical backups with filtering, sorting and pagination.

Dates accept RFC3339 timestamps, YYYY-MM-DD days, or relative ages like
7d, 4w or 6m.

Examples:
  # Everything from the last week, newest first
  backup-orchestrator search --after 7d

  # Largest postgres backups
  backup-orchestrator search --storage postgres --sort-by size --limit 10

  # Page through old failures
  backup-orchestrator search --status failed --ascending --offset 20 --limit 20`,
	RunE: runSearch,
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <backup-id>",
	Short: "Verify the integrity of a stored backup",
	Long: `Run verification strategies against one stored backup.

Without --type the configured default strategies run. Available types:
checksum, size-validation, integrity-check, restore-test.

Examples:
  # Configured default strategies
  backup-orchestrator verify full-20260815-030000

  # Deep check
  backup-orchestrator verify full-20260815-030000 --type checksum --type integrity-check`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete a backup from every destination",
	Long: `Delete one backup: its artifact copies in every configured
destination and its history entry.

Deletion is destructive and prompts for confirmation unless
--auto-approve is set.

Examples:
  backup-orchestrator delete full-20260815-030000
  backup-orchestrator delete full-20260815-030000 --auto-approve`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(deleteCmd)

	backupCmd.Flags().StringVar(&backupStorage, "storage", "", "storage type to back up (e.g. postgres, mysql)")
	backupCmd.Flags().BoolVar(&backupAll, "all", false, "back up every enabled storage type")
	backupCmd.Flags().StringVar(&backupKind, "kind", "", "backup kind (full or incremental, default from configuration)")
	backupCmd.Flags().StringArrayVar(&backupTagArgs, "tag", nil, "tag in key=value form (repeatable)")

	listCmd.Flags().StringVar(&listStorage, "storage", "", "filter by storage type")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by job status")

	searchCmd.Flags().StringVar(&searchStorage, "storage", "", "filter by storage type")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "filter by backup status")
	searchCmd.Flags().StringVar(&searchAfter, "after", "", "only backups started after this date")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "only backups started before this date")
	searchCmd.Flags().StringVar(&searchSortBy, "sort-by", "start_time", "sort field (start_time or size)")
	searchCmd.Flags().BoolVar(&searchAscending, "ascending", false, "sort ascending instead of descending")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "skip this many results")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results to return (0 means all)")

	verifyCmd.Flags().StringArrayVar(&verifyTypeArgs, "type", nil, "verification type to run (repeatable)")
}

func runBackup(cmd *cobra.Command, args []string) error {
	if backupAll && backupStorage != "" {
		return fmt.Errorf("--storage and --all are mutually exclusive")
	}
	if !backupAll && backupStorage == "" {
		return fmt.Errorf("either --storage or --all is required")
	}
	if backupAll && (backupKind != "" || len(backupTagArgs) > 0) {
		return fmt.Errorf("--kind and --tag apply only to --storage backups")
	}

	tags, err := backup.ParseTagArgs(backupTagArgs)
	if err != nil {
		return err
	}

	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ctx := context.Background()
	orch := app.Orchestrator()

	if backupAll {
		ids := orch.StartFullBackup(ctx)
		if len(ids) == 0 {
			return fmt.Errorf("no backups could be started; check that backups are enabled and storages are reachable")
		}
		failed := 0
		for _, id := range ids {
			job, err := waitForJob(orch, app.Display(), id)
			if err != nil {
				return err
			}
			if reportJobOutcome(app, job) != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d backups failed", failed, len(ids))
		}
		app.Display().Success(fmt.Sprintf("All %d backups completed", len(ids)))
		return nil
	}

	result, err := orch.StartBackup(ctx, backupStorage, &backup.BackupOptions{
		Kind: backup.BackupKind(backupKind),
		Tags: tags,
	})
	if err != nil {
		return err
	}

	id := result.JobID
	if result.Queued {
		app.Display().Info(fmt.Sprintf("All worker slots are busy; request queued as ticket %s", result.Ticket))
		id = result.Ticket
	}

	job, err := waitForJob(orch, app.Display(), id)
	if err != nil {
		return err
	}
	return reportJobOutcome(app, job)
}

func runList(cmd *cobra.Command, args []string) error {
	filter := &backup.JobFilter{StorageType: listStorage}
	if listStatus != "" {
		status, err := parseJobStatus(listStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}

	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	jobs := app.Orchestrator().ListJobs(filter)
	if len(jobs) == 0 {
		app.Display().Info("No backup jobs found")
		return nil
	}
	return renderJobs(app, jobs)
}

func runSearch(cmd *cobra.Command, args []string) error {
	filter := &backup.SearchFilter{
		StorageType: searchStorage,
		Ascending:   searchAscending,
		Offset:      searchOffset,
		Limit:       searchLimit,
	}
	if searchStatus != "" {
		status, err := parseJobStatus(searchStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}
	if searchAfter != "" {
		after, err := parseDate(searchAfter)
		if err != nil {
			return err
		}
		filter.StartedAfter = &after
	}
	if searchBefore != "" {
		before, err := parseDate(searchBefore)
		if err != nil {
			return err
		}
		filter.StartedBefore = &before
	}
	switch searchSortBy {
	case "", "start_time":
		filter.SortBy = backup.SortByStartTime
	case "size":
		filter.SortBy = backup.SortBySize
	default:
		return fmt.Errorf("unsupported sort field %q (use start_time or size)", searchSortBy)
	}

	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	results := app.Orchestrator().SearchBackups(filter)
	if len(results) == 0 {
		app.Display().Info("No backups matched the search")
		return nil
	}
	return renderBackups(app, results)
}

func runVerify(cmd *cobra.Command, args []string) error {
	backupID := args[0]
	if err := backup.NewValidator().ValidateBackupID(backupID); err != nil {
		return err
	}
	types, err := parseVerificationTypes(verifyTypeArgs)
	if err != nil {
		return err
	}

	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	spinner := app.Display().StartSpinner(fmt.Sprintf("Verifying backup %s", backupID))
	passed, err := app.Orchestrator().VerifyBackup(context.Background(), backupID, types...)
	app.Display().StopSpinner(spinner, "")
	if err != nil {
		return err
	}
	if !passed {
		return backup.NewVerificationError(fmt.Sprintf("backup %s failed verification", backupID), nil)
	}
	app.Display().Success(fmt.Sprintf("Backup %s passed verification", backupID))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	backupID := args[0]
	if err := backup.NewValidator().ValidateBackupID(backupID); err != nil {
		return err
	}

	app, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	job := app.Orchestrator().GetBackupStatus(backupID)
	if job == nil {
		return backup.NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), nil)
	}

	request := &confirmation.Request{
		Action:  "Delete Backup",
		Subject: describeBackup(job),
		Impact: []string{
			"The backup is removed from every configured destination",
			"Its history entry is removed and cannot be recovered",
		},
		Destructive: true,
	}
	confirmed, err := app.Confirmation().Confirm(request, app.AutoApprove())
	if err != nil {
		return err
	}
	if !confirmed {
		app.Display().Info("Delete cancelled")
		return nil
	}

	if err := app.Orchestrator().DeleteBackup(context.Background(), backupID); err != nil {
		return err
	}
	app.Display().Success(fmt.Sprintf("Backup %s deleted", backupID))
	return nil
}

// waitForJob polls one job until it reaches a terminal state. Queue
// tickets start reporting the real job id once a worker picks the request
// up, so polling follows the id each snapshot carries.
func waitForJob(orch *backup.Orchestrator, disp display.DisplayService, id string) (*backup.BackupJob, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		job := orch.GetBackupStatus(id)
		if job == nil {
			return nil, backup.NewNotFoundError(fmt.Sprintf("backup job %s disappeared while waiting for completion", id), nil)
		}
		disp.ShowProgress(job.Progress, 100, job.CurrentOperation)
		if job.Status.Terminal() {
			return job, nil
		}
		id = job.ID
		<-ticker.C
	}
}

// reportJobOutcome renders one finished job. Failed jobs produce an error
// so the process exit code reflects the outcome.
func reportJobOutcome(app *application.Application, job *backup.BackupJob) error {
	switch job.Status {
	case backup.JobStatusCompleted:
		summary := display.NewSummary("Backup Completed")
		summary.Add("Job ID", job.ID)
		summary.Add("Storage", job.StorageType)
		if meta := job.Metadata; meta != nil {
			summary.Add("Kind", string(meta.Kind))
			summary.Add("Files", strconv.Itoa(len(meta.Files)))
			summary.Add("Size", formatBytes(meta.Size))
			if meta.CompressedSize > 0 && meta.CompressedSize != meta.Size {
				summary.Addf("Stored", "%s (%s)", formatBytes(meta.CompressedSize), string(meta.Compression))
			}
			if !meta.EndTime.IsZero() {
				summary.Add("Duration", formatDuration(meta.EndTime.Sub(meta.StartTime)))
			}
		}
		app.Display().PrintSummary(summary)
		return nil

	case backup.JobStatusCancelled:
		app.Display().Warning(fmt.Sprintf("Backup job %s was cancelled", job.ID))
		return nil

	default:
		jobErr := backup.NewInternalError(fmt.Sprintf("backup job %s failed without error detail", job.ID), nil)
		if job.Error != nil {
			jobErr = backup.NewBackupError(backup.BackupErrorType(job.Error.Code), job.Error.Message, nil)
		}
		app.HandleError(jobErr)
		return fmt.Errorf("backup job %s failed", job.ID)
	}
}

func renderJobs(app *application.Application, jobs []*backup.BackupJob) error {
	switch outputFormatOf(app) {
	case display.FormatJSON:
		return printJSON(jobs)
	case display.FormatYAML:
		return printYAML(jobs)
	default:
		headers := []string{"ID", "Storage", "Status", "Progress", "Started", "Operation"}
		rows := make([][]string, 0, len(jobs))
		for _, job := range jobs {
			operation := job.CurrentOperation
			if job.Error != nil {
				operation = job.Error.Message
			}
			rows = append(rows, []string{
				job.ID,
				job.StorageType,
				string(job.Status),
				fmt.Sprintf("%d%%", job.Progress),
				job.StartTime.Format("2006-01-02 15:04:05"),
				operation,
			})
		}
		app.Display().PrintTable(headers, rows)
		return nil
	}
}

func renderBackups(app *application.Application, backups []*backup.BackupMetadata) error {
	switch outputFormatOf(app) {
	case display.FormatJSON:
		return printJSON(backups)
	case display.FormatYAML:
		return printYAML(backups)
	default:
		headers := []string{"ID", "Storage", "Kind", "Status", "Started", "Size"}
		rows := make([][]string, 0, len(backups))
		for _, meta := range backups {
			rows = append(rows, []string{
				meta.ID,
				meta.StorageType,
				string(meta.Kind),
				string(meta.Status),
				meta.StartTime.Format("2006-01-02 15:04:05"),
				formatBytes(meta.Size),
			})
		}
		app.Display().PrintTable(headers, rows)
		return nil
	}
}

func outputFormatOf(app *application.Application) display.OutputFormat {
	return display.OutputFormat(app.Display().GetConfig().OutputFormat)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printYAML(v interface{}) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	return encoder.Encode(v)
}

func describeBackup(job *backup.BackupJob) string {
	if job.Metadata != nil {
		return fmt.Sprintf("%s (%s, %s, %s)", job.ID, job.StorageType,
			string(job.Metadata.Kind), formatBytes(job.Metadata.Size))
	}
	return fmt.Sprintf("%s (%s)", job.ID, job.StorageType)
}

func parseJobStatus(value string) (backup.JobStatus, error) {
	status := backup.JobStatus(value)
	switch status {
	case backup.JobStatusPending, backup.JobStatusInProgress, backup.JobStatusCompleted,
		backup.JobStatusFailed, backup.JobStatusCancelled:
		return status, nil
	default:
		return "", backup.NewValidationError(fmt.Sprintf("unknown job status %q", value), nil)
	}
}

func parseVerificationTypes(values []string) ([]backup.VerificationType, error) {
	types := make([]backup.VerificationType, 0, len(values))
	for _, value := range values {
		verificationType := backup.VerificationType(value)
		switch verificationType {
		case backup.VerificationTypeChecksum, backup.VerificationTypeSizeValidation,
			backup.VerificationTypeIntegrityCheck, backup.VerificationTypeRestoreTest:
			types = append(types, verificationType)
		default:
			return nil, backup.NewValidationError(fmt.Sprintf("unknown verification type %q", value), nil)
		}
	}
	return types, nil
}

// parseDate accepts RFC3339 timestamps, plain dates and relative ages
// like 7d, 4w or 6m.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	if len(value) >= 2 {
		if n, err := strconv.Atoi(value[:len(value)-1]); err == nil && n > 0 {
			switch value[len(value)-1] {
			case 'd':
				return time.Now().AddDate(0, 0, -n), nil
			case 'w':
				return time.Now().AddDate(0, 0, -7*n), nil
			case 'm':
				return time.Now().AddDate(0, -n, 0), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q (use RFC3339, YYYY-MM-DD or a relative age like 7d, 4w, 6m)", value)
}

// formatBytes renders a byte count with binary units.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
