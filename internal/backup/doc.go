// Package backup implements database backup orchestration: job lifecycle
// management, queueing under a concurrency ceiling, cron scheduling, tiered
// retention, artifact verification, compression, encryption and delivery to
// local and cloud destinations.
//
// The Orchestrator is the package's entry point. Storage-specific backends
// implement the Backend interface and register with it at startup; one
// orchestrator drives every registered storage type and persists job history
// across restarts through a HistoryStore.
//
// A typical embedding looks like:
//
//	orch, err := backup.NewOrchestrator(config, logger)
//	if err != nil {
//		return err
//	}
//	orch.RegisterBackend(postgresBackend)
//	orch.RegisterBackend(mysqlBackend)
//
//	result, err := orch.StartBackup(ctx, "postgres", nil)
//	if err != nil {
//		return err
//	}
//	if result.Queued {
//		// capacity is exhausted; result.Ticket tracks the pending request
//	}
//
// Finished backups are addressed by job ID for verification, restore and
// deletion:
//
//	passed, err := orch.VerifyBackup(ctx, backupID)
//	err = orch.RestoreBackup(ctx, backupID, backup.RestoreOptions{})
//	err = orch.DeleteBackup(ctx, backupID)
//
// Scheduling and retention run inside the orchestrator once ScheduleBackups
// is called; Shutdown stops the scheduler, cancels active jobs and releases
// backend resources.
package backup
