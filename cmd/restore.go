package cmd

import (
	"context"
	"fmt"

	"backup-orchestrator/internal/backup"
	"backup-orchestrator/internal/confirmation"
	"backup-orchestrator/internal/display"

	"github.com/spf13/cobra"
)

var (
	// Restore flags
	restoreOverwrite        bool
	restoreDatabase         string
	restoreTargetDir        string
	restoreSkipVerification bool
)

// restoreCmd represents the restore command
var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a backup through its storage backend",
	Long: `Restore one completed backup.

Artifacts are verified before the restore unless --skip-verification is
set, fetched from a destination when no local copy exists, and handed to
the storage backend after decryption and decompression.

Restoring into a database is destructive and prompts for confirmation
unless --auto-approve is set.

Examples:
  # Restore into a scratch database
  backup-orchestrator restore full-20260815-030000 --database appdb_restore

  # Replace the live database
  backup-orchestrator restore full-20260815-030000 --overwrite --auto-approve

  # Unpack artifacts into a directory instead of restoring
  backup-orchestrator restore full-20260815-030000 --target-dir /tmp/restore`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "allow overwriting existing data")
	restoreCmd.Flags().StringVar(&restoreDatabase, "database", "", "restore into this database instead of the original")
	restoreCmd.Flags().StringVar(&restoreTargetDir, "target-dir", "", "unpack artifacts into this directory instead of restoring")
	restoreCmd.Flags().BoolVar(&restoreSkipVerification, "skip-verification", false, "skip the pre-restore artifact verification")
}

func runRestore(cmd *cobra.Command, args []string) error {
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

	if meta := job.Metadata; meta != nil {
		summary := display.NewSummary("Restore Source")
		summary.Add("Backup", meta.ID)
		summary.Add("Storage", meta.StorageType)
		summary.Add("Kind", string(meta.Kind))
		summary.Add("Created", meta.StartTime.Format("2006-01-02 15:04:05"))
		summary.Add("Size", formatBytes(meta.Size))
		app.Display().PrintSummary(summary)
	}

	impact := []string{fmt.Sprintf("Data from backup %s is written back through the %s backend", backupID, job.StorageType)}
	if restoreTargetDir != "" {
		impact = []string{fmt.Sprintf("Backup artifacts are unpacked into %s", restoreTargetDir)}
	} else if restoreDatabase != "" {
		impact = append(impact, fmt.Sprintf("The restore targets database %q", restoreDatabase))
	}
	var warnings []string
	if restoreOverwrite {
		warnings = append(warnings, "Existing data will be overwritten")
	}
	if restoreSkipVerification {
		warnings = append(warnings, "Artifact verification is skipped")
	}

	request := &confirmation.Request{
		Action:      "Restore Backup",
		Subject:     describeBackup(job),
		Impact:      impact,
		Warnings:    warnings,
		Destructive: restoreTargetDir == "",
	}
	confirmed, err := app.Confirmation().Confirm(request, app.AutoApprove())
	if err != nil {
		return err
	}
	if !confirmed {
		app.Display().Info("Restore cancelled")
		return nil
	}

	opts := backup.RestoreOptions{
		Overwrite:        restoreOverwrite,
		TargetDir:        restoreTargetDir,
		SkipVerification: restoreSkipVerification,
		Database:         restoreDatabase,
	}
	spinner := app.Display().StartSpinner(fmt.Sprintf("Restoring backup %s", backupID))
	err = app.Orchestrator().RestoreBackup(context.Background(), backupID, opts)
	app.Display().StopSpinner(spinner, "")
	if err != nil {
		return err
	}
	app.Display().Success(fmt.Sprintf("Backup %s restored", backupID))
	return nil
}
