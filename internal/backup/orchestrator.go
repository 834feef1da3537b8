package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"backup-orchestrator/internal/execution"
	"backup-orchestrator/internal/logging"
)

const (
	// metadataSchemaVersion is stamped into every metadata record so later
	// releases can migrate old history entries
	metadataSchemaVersion = 1

	// defaultHookTimeout bounds pre- and post-backup hooks without an
	// explicit script timeout
	defaultHookTimeout = 10 * time.Minute

	// cleanupSchedule fires the daily retention pass when auto cleanup is on
	cleanupSchedule = "0 3 * * *"

	// scheduleEntryPrefix namespaces per-storage-type cron entries so they
	// can be told apart from the cleanup entry
	scheduleEntryPrefix = "backup:"
	cleanupEntryName    = "retention-cleanup"
)

// Orchestrator drives the backup lifecycle end to end: admission checks,
// queueing, job execution, verification, retention, scheduling, restore and
// deletion. One mutex guards the configuration, the job maps, the pending
// queue and the backend registry; jobs execute on their own goroutines with
// per-job cancellable contexts.
type Orchestrator struct {
	mu sync.Mutex

	config        *BackupConfig
	backends      map[string]Backend
	activeJobs    map[string]*BackupJob
	completedJobs map[string]*BackupJob
	jobCancels    map[string]context.CancelFunc
	queue         *backupQueue
	closed        bool

	scheduler  *Scheduler
	verifier   *Verifier
	validator  *Validator
	retention  *RetentionEngine
	hub        *NotificationHub
	history    HistoryStore
	metrics    MetricsSink
	factory    *DestinationFactory
	compressor *CompressionManager
	encryptor  *EncryptionManager
	runner     *execution.Runner
	audit      *AuditLogger
	logger     *logging.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewOrchestrator creates an orchestrator with a file-backed history store
// under the configured history directory and an in-process metrics sink.
func NewOrchestrator(config *BackupConfig, logger *logging.Logger) (*Orchestrator, error) {
	return NewOrchestratorWithDependencies(config, logger, nil, nil)
}

// NewOrchestratorWithDependencies creates an orchestrator with explicit
// history and metrics implementations. Nil arguments select the defaults.
// The configuration is defaulted and validated in place, and existing
// history is loaded into the completed-jobs cache.
func NewOrchestratorWithDependencies(config *BackupConfig, logger *logging.Logger, history HistoryStore, metrics MetricsSink) (*Orchestrator, error) {
	if config == nil {
		return nil, NewNotConfiguredError("backup configuration is required", nil)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid backup configuration", err)
	}

	scheduler, err := NewScheduler(config.Schedule.Timezone, logger)
	if err != nil {
		return nil, err
	}

	if history == nil {
		store, err := NewFileHistoryStore(config.Global.HistoryDir, logger)
		if err != nil {
			return nil, err
		}
		history = store
	}
	if metrics == nil {
		metrics = NewInProcessMetricsSink()
	}

	audit, err := NewAuditLogger(config.Global.AuditLogFile)
	if err != nil {
		return nil, err
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		config:        config,
		backends:      make(map[string]Backend),
		activeJobs:    make(map[string]*BackupJob),
		completedJobs: make(map[string]*BackupJob),
		jobCancels:    make(map[string]context.CancelFunc),
		queue:         newBackupQueue(),
		scheduler:     scheduler,
		verifier:      newVerifierFromConfig(config, logger),
		validator:     NewValidator(),
		retention:     NewRetentionEngine(logger),
		hub:           NewNotificationHub(logger),
		history:       history,
		metrics:       metrics,
		factory:       NewDestinationFactory(),
		compressor:    NewCompressionManager(),
		encryptor:     NewEncryptionManager(config.Encryption),
		runner:        execution.NewRunner(execution.RunnerConfig{DefaultTimeout: defaultHookTimeout}, logger),
		audit:         audit,
		logger:        logger,
		baseCtx:       baseCtx,
		baseCancel:    baseCancel,
	}

	if err := o.loadHistory(); err != nil {
		baseCancel()
		return nil, err
	}

	return o, nil
}

func newVerifierFromConfig(config *BackupConfig, logger *logging.Logger) *Verifier {
	return NewVerifier(VerifierConfig{
		MaxParallelJobs: config.Global.MaxParallelJobs,
		Parallel:        config.Global.ParallelVerification,
		ReportDir:       config.Global.ReportDir,
	}, logger)
}

func (o *Orchestrator) loadHistory() error {
	records, err := o.history.List()
	if err != nil {
		return err
	}
	for _, meta := range records {
		o.completedJobs[meta.ID] = jobFromMetadata(meta)
	}
	if len(records) > 0 {
		o.logDebug("Loaded backup history", map[string]interface{}{
			"backups": len(records),
		})
	}
	return nil
}

// RegisterBackend registers a storage backend under its storage type,
// replacing any previous registration
func (o *Orchestrator) RegisterBackend(backend Backend) {
	if backend == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backends[backend.StorageType()] = backend
}

// Notifications exposes the job event hub so callers can subscribe to
// lifecycle events
func (o *Orchestrator) Notifications() *NotificationHub {
	return o.hub
}

// Config returns the active configuration. Callers must treat it as
// read-only; UpdateConfig swaps the whole pointer.
func (o *Orchestrator) Config() *BackupConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.config
}

// StartBackup admits a backup request for one storage type. The request is
// rejected when backups are disabled for the type, no backend is
// registered, or the backend's availability probe fails. At the
// concurrency ceiling the request is queued and a ticket is returned; the
// job id is allocated when the request is dequeued.
func (o *Orchestrator) StartBackup(ctx context.Context, storageType string, opts *BackupOptions) (*StartResult, error) {
	if err := o.validator.ValidateBackupOptions(opts); err != nil {
		return nil, NewValidationError("invalid backup options", err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, NewUnavailableError("backup orchestrator has been shut down", nil)
	}
	if !o.config.Enabled {
		o.mu.Unlock()
		return nil, NewNotEnabledError("backups are disabled", nil)
	}
	storageCfg := storageConfigFor(o.config, storageType)
	if storageCfg == nil || !storageCfg.Enabled {
		o.mu.Unlock()
		return nil, NewNotEnabledError(fmt.Sprintf("backups are not enabled for storage type %s", storageType), nil)
	}
	backend, ok := o.backends[storageType]
	if !ok {
		o.mu.Unlock()
		return nil, NewNoHandlerError(fmt.Sprintf("no backup backend registered for storage type %s", storageType), nil)
	}
	o.mu.Unlock()

	// The probe can touch the network, so it runs outside the lock
	probeStart := time.Now()
	available := backend.IsAvailable(ctx)
	if o.logger != nil {
		o.logger.LogBackendProbe(storageType, available, time.Since(probeStart), nil)
	}
	if !available {
		return nil, NewUnavailableError(fmt.Sprintf("storage %s is not available for backup", storageType), nil)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, NewUnavailableError("backup orchestrator has been shut down", nil)
	}
	// The configuration may have been swapped while the lock was released
	storageCfg = storageConfigFor(o.config, storageType)
	if storageCfg == nil || !storageCfg.Enabled {
		return nil, NewNotEnabledError(fmt.Sprintf("backups are not enabled for storage type %s", storageType), nil)
	}

	if len(o.activeJobs) >= o.maxParallelLocked() {
		ticket := o.queue.Enqueue(storageType, opts)
		o.metrics.RecordQueueDepth(o.queue.Len())
		o.logInfo("Backup request queued", map[string]interface{}{
			"storage_type": storageType,
			"ticket":       ticket,
			"queue_depth":  o.queue.Len(),
		})
		return &StartResult{Ticket: ticket, Queued: true}, nil
	}

	job := o.dispatchLocked(storageCfg, backend, opts)
	return &StartResult{JobID: job.ID}, nil
}

// StartFullBackup starts a backup for every enabled storage type.
// Individual start failures are logged and skipped; the returned slice
// holds the job ids of dispatched backups and the tickets of queued ones.
func (o *Orchestrator) StartFullBackup(ctx context.Context) []string {
	o.mu.Lock()
	var storageTypes []string
	for i := range o.config.Storages {
		if o.config.Storages[i].Enabled {
			storageTypes = append(storageTypes, o.config.Storages[i].StorageType)
		}
	}
	o.mu.Unlock()

	started := make([]string, 0, len(storageTypes))
	for _, storageType := range storageTypes {
		result, err := o.StartBackup(ctx, storageType, nil)
		if err != nil {
			o.logWarn("Skipping storage type during full backup", map[string]interface{}{
				"storage_type": storageType,
				"error":        err.Error(),
			})
			continue
		}
		if result.Queued {
			started = append(started, result.Ticket)
		} else {
			started = append(started, result.JobID)
		}
	}
	return started
}

// ResolveTicket maps a queue ticket to the job id allocated when the
// request was dequeued. ok is false while the request is still queued or
// the ticket is unknown.
func (o *Orchestrator) ResolveTicket(ticket string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Resolve(ticket)
}

// GetBackupStatus returns a snapshot of one job by job id or queue ticket.
// A still-queued ticket reports a synthetic pending job carrying the
// ticket as its id. Unknown ids return nil.
func (o *Orchestrator) GetBackupStatus(id string) *BackupJob {
	o.mu.Lock()
	defer o.mu.Unlock()

	if job, ok := o.activeJobs[id]; ok {
		return job.Clone()
	}
	if job, ok := o.completedJobs[id]; ok {
		return job.Clone()
	}
	if jobID, ok := o.queue.Resolve(id); ok {
		if job, ok := o.activeJobs[jobID]; ok {
			return job.Clone()
		}
		if job, ok := o.completedJobs[jobID]; ok {
			return job.Clone()
		}
	}
	if pending, ok := o.queue.Find(id); ok {
		return &BackupJob{
			ID:               pending.ticket,
			StorageType:      pending.storageType,
			Status:           JobStatusPending,
			CurrentOperation: "waiting in backup queue",
			StartTime:        pending.enqueuedAt,
		}
	}
	return nil
}

// ListJobs returns snapshots of active and historical jobs matching the
// filter, newest first
func (o *Orchestrator) ListJobs(filter *JobFilter) []*BackupJob {
	o.mu.Lock()
	jobs := make([]*BackupJob, 0, len(o.activeJobs)+len(o.completedJobs))
	for _, job := range o.activeJobs {
		if matchesJobFilter(job, filter) {
			jobs = append(jobs, job.Clone())
		}
	}
	for _, job := range o.completedJobs {
		if matchesJobFilter(job, filter) {
			jobs = append(jobs, job.Clone())
		}
	}
	o.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.After(jobs[j].StartTime)
	})
	return jobs
}

// SearchBackups returns metadata snapshots from the backup history,
// filtered, sorted by start time or size and paginated
func (o *Orchestrator) SearchBackups(filter *SearchFilter) []*BackupMetadata {
	o.mu.Lock()
	results := make([]*BackupMetadata, 0, len(o.completedJobs))
	for _, job := range o.completedJobs {
		if job.Metadata == nil {
			continue
		}
		if matchesSearchFilter(job.Metadata, filter) {
			results = append(results, job.Metadata.Clone())
		}
	}
	o.mu.Unlock()

	sortBackupMetadata(results, filter)
	return pageBackupMetadata(results, filter)
}

// CancelBackup cancels a queued request or an active job. Queued requests
// are removed before a job id exists; active jobs get their context
// cancelled so in-flight subprocess work stops, and the job goroutine
// performs the terminal transition. Returns false for unknown or already
// terminal ids.
func (o *Orchestrator) CancelBackup(id string) bool {
	o.mu.Lock()

	if o.queue.Remove(id) {
		depth := o.queue.Len()
		o.mu.Unlock()
		o.metrics.RecordQueueDepth(depth)
		o.logInfo("Queued backup request cancelled", map[string]interface{}{
			"ticket": id,
		})
		return true
	}

	jobID := id
	if resolved, ok := o.queue.Resolve(id); ok {
		jobID = resolved
	}

	job, ok := o.activeJobs[jobID]
	if !ok || job.Status.Terminal() {
		o.mu.Unlock()
		return false
	}
	job.CurrentOperation = "cancellation requested"
	cancel := o.jobCancels[jobID]
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.logInfo("Backup cancellation requested", map[string]interface{}{
		"job_id": jobID,
	})
	return true
}

// RestoreBackup restores one completed backup through its backend.
// Artifacts are verified first unless skipped, fetched from a destination
// when no local copy exists, and decrypted and decompressed into scratch
// space before the backend sees them.
func (o *Orchestrator) RestoreBackup(ctx context.Context, backupID string, opts RestoreOptions) (err error) {
	start := time.Now()

	meta, err := o.lookupMetadata(backupID)
	if err != nil {
		return err
	}
	if meta.Status != JobStatusCompleted {
		return NewValidationError(fmt.Sprintf("backup %s is not restorable in status %s", backupID, meta.Status), nil)
	}

	o.mu.Lock()
	backend := o.backends[meta.StorageType]
	verifier := o.verifier
	cfg := storageConfigFor(o.config, meta.StorageType)
	var storageCfg *StorageBackupConfig
	if cfg != nil {
		storageCfg = cloneStorageConfig(cfg)
	}
	o.mu.Unlock()

	if backend == nil {
		return NewNoHandlerError(fmt.Sprintf("no backup backend registered for storage type %s", meta.StorageType), nil)
	}

	defer func() {
		duration := time.Since(start)
		o.metrics.RecordRestore(meta.StorageType, err == nil, duration.Seconds())
		o.audit.RestorePerformed(backupID, opts, duration, err)
	}()

	if !opts.SkipVerification {
		if filesPresent(meta.Files) {
			report := verifier.VerifyBackupComprehensive(ctx, meta, backend, storageCfg,
				[]VerificationType{VerificationTypeChecksum, VerificationTypeSizeValidation})
			if !report.Passed {
				return NewVerificationError(fmt.Sprintf("backup %s failed pre-restore verification", backupID), nil)
			}
		} else {
			o.logWarn("Backup artifacts are not present locally; skipping pre-restore verification", map[string]interface{}{
				"backup_id": backupID,
			})
		}
	}

	prepared, scratch, err := o.materializeArtifacts(ctx, meta)
	if err != nil {
		return err
	}
	if scratch != "" {
		defer os.RemoveAll(scratch)
	}

	restoreMeta := meta.Clone()
	restoreMeta.Files = prepared

	if err = backend.RestoreBackup(ctx, restoreMeta, opts); err != nil {
		return err
	}

	o.logInfo("Backup restored", map[string]interface{}{
		"backup_id":    backupID,
		"storage_type": meta.StorageType,
		"duration":     time.Since(start).String(),
	})
	return nil
}

// VerifyBackup runs the requested verification strategies against one
// historical backup and reports the folded verdict. An empty type list
// runs the checksum and size baseline.
func (o *Orchestrator) VerifyBackup(ctx context.Context, backupID string, types ...VerificationType) (bool, error) {
	meta, err := o.lookupMetadata(backupID)
	if err != nil {
		return false, err
	}

	o.mu.Lock()
	backend := o.backends[meta.StorageType]
	verifier := o.verifier
	cfg := storageConfigFor(o.config, meta.StorageType)
	var storageCfg *StorageBackupConfig
	if cfg != nil {
		storageCfg = cloneStorageConfig(cfg)
	}
	o.mu.Unlock()

	report := verifier.VerifyBackupComprehensive(ctx, meta, backend, storageCfg, types)
	for _, result := range report.Results {
		o.metrics.RecordVerification(meta.StorageType, result.Type, result.Passed)
	}
	return report.Passed, nil
}

// DeleteBackup removes one backup: its copies in every configured
// destination, its history entry and its cached job. Active jobs must be
// cancelled first. A destination that no longer holds the backup is not an
// error; the delete fails only when every destination refuses.
func (o *Orchestrator) DeleteBackup(ctx context.Context, backupID string) error {
	o.mu.Lock()
	if _, active := o.activeJobs[backupID]; active {
		o.mu.Unlock()
		return NewValidationError(fmt.Sprintf("backup %s is still running; cancel it before deleting", backupID), nil)
	}
	destinations := make([]BackupDestination, len(o.config.Destinations))
	copy(destinations, o.config.Destinations)
	o.mu.Unlock()

	meta, err := o.lookupMetadata(backupID)
	if err != nil {
		return err
	}
	if len(destinations) == 0 && meta.Destination != nil {
		destinations = []BackupDestination{*meta.Destination}
	}

	var failures []string
	for i := range destinations {
		handler, err := o.factory.CreateDestinationHandler(ctx, &destinations[i])
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", destinations[i].Type, err))
			continue
		}
		if err := handler.Delete(ctx, backupID); err != nil {
			if IsErrorType(err, BackupErrorTypeNotFound) {
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", destinations[i].Type, err))
		}
	}
	if len(destinations) > 0 && len(failures) == len(destinations) {
		return NewStorageError(fmt.Sprintf("failed to delete backup %s from every destination", backupID),
			errors.New(strings.Join(failures, "; ")))
	}
	for _, failure := range failures {
		o.logWarn("Failed to delete backup copy from destination", map[string]interface{}{
			"backup_id": backupID,
			"error":     failure,
		})
	}

	if err := o.history.Delete(backupID); err != nil && !IsErrorType(err, BackupErrorTypeNotFound) {
		return err
	}

	o.mu.Lock()
	delete(o.completedJobs, backupID)
	o.mu.Unlock()

	o.audit.BackupDeleted(backupID, meta.StorageType)
	o.logInfo("Backup deleted", map[string]interface{}{
		"backup_id":    backupID,
		"storage_type": meta.StorageType,
	})
	return nil
}

// GetStatistics computes aggregate statistics from in-memory state: job
// counts by outcome, sizes, success rate, last backup time and the next
// scheduled run per storage type
func (o *Orchestrator) GetStatistics() *BackupStatistics {
	nextScheduled := o.GetNextScheduledBackups()

	o.mu.Lock()
	defer o.mu.Unlock()

	stats := &BackupStatistics{
		ActiveJobs:    len(o.activeJobs),
		QueuedJobs:    o.queue.Len(),
		ByStorageType: make(map[string]*StorageTypeStats),
	}
	if len(nextScheduled) > 0 {
		stats.NextScheduled = nextScheduled
	}

	for _, job := range o.completedJobs {
		stats.TotalBackups++
		typeStats, ok := stats.ByStorageType[job.StorageType]
		if !ok {
			typeStats = &StorageTypeStats{}
			stats.ByStorageType[job.StorageType] = typeStats
		}
		typeStats.TotalBackups++

		switch job.Status {
		case JobStatusCompleted:
			stats.CompletedBackups++
			typeStats.Completed++
			if job.Metadata != nil {
				size := effectiveStoredSize(job.Metadata)
				stats.TotalSize += size
				typeStats.TotalSize += size
			}
			started := job.StartTime
			if stats.LastBackupTime == nil || started.After(*stats.LastBackupTime) {
				t := started
				stats.LastBackupTime = &t
			}
			if typeStats.LastBackupTime == nil || started.After(*typeStats.LastBackupTime) {
				t := started
				typeStats.LastBackupTime = &t
			}
		case JobStatusFailed:
			stats.FailedBackups++
			typeStats.Failed++
		case JobStatusCancelled:
			stats.CancelledBackups++
		}
	}

	if stats.CompletedBackups > 0 {
		stats.AverageSize = stats.TotalSize / int64(stats.CompletedBackups)
	}
	finished := stats.CompletedBackups + stats.FailedBackups + stats.CancelledBackups
	if finished > 0 {
		stats.SuccessRate = float64(stats.CompletedBackups) / float64(finished)
	}
	return stats
}

// ScheduleBackups registers one cron entry per enabled storage type, using
// the storage's own expression or the global default, plus a daily
// retention cleanup entry when auto cleanup is on. Existing entries are
// replaced. Invalid expressions fail the call before anything is changed.
func (o *Orchestrator) ScheduleBackups() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scheduleLocked()
}

func (o *Orchestrator) scheduleLocked() error {
	if o.closed {
		return NewUnavailableError("backup orchestrator has been shut down", nil)
	}
	if !o.config.Enabled {
		return NewNotEnabledError("backups are disabled", nil)
	}

	type scheduleEntry struct {
		storageType string
		expression  string
	}

	var validationErrs ValidationErrors
	var entries []scheduleEntry
	for i := range o.config.Storages {
		storageCfg := &o.config.Storages[i]
		if !storageCfg.Enabled {
			continue
		}
		expression := storageCfg.Schedule
		if expression == "" {
			expression = o.config.Schedule.Expression
		}
		if expression == "" {
			o.logDebug("Storage type has no schedule expression", map[string]interface{}{
				"storage_type": storageCfg.StorageType,
			})
			continue
		}
		if err := ValidateCronExpression(expression); err != nil {
			validationErrs.Add(fmt.Sprintf("storages[%d].schedule", i), err.Error(), expression)
			continue
		}
		entries = append(entries, scheduleEntry{storageType: storageCfg.StorageType, expression: expression})
	}
	if validationErrs.HasErrors() {
		return validationErrs
	}

	o.scheduler.Clear()
	for _, entry := range entries {
		storageType := entry.storageType
		if err := o.scheduler.Add(scheduleEntryPrefix+storageType, entry.expression, func() {
			o.runScheduledBackup(storageType)
		}); err != nil {
			return err
		}
	}
	if o.config.Retention.AutoCleanup {
		if err := o.scheduler.Add(cleanupEntryName, cleanupSchedule, o.runScheduledCleanup); err != nil {
			return err
		}
	}
	o.scheduler.Start()

	o.logInfo("Backup schedules registered", map[string]interface{}{
		"schedules":    len(entries),
		"auto_cleanup": o.config.Retention.AutoCleanup,
	})
	return nil
}

func (o *Orchestrator) runScheduledBackup(storageType string) {
	result, err := o.StartBackup(context.Background(), storageType, nil)
	if err != nil {
		o.logWarn("Scheduled backup failed to start", map[string]interface{}{
			"storage_type": storageType,
			"error":        err.Error(),
		})
		return
	}
	if result.Queued {
		o.logInfo("Scheduled backup queued", map[string]interface{}{
			"storage_type": storageType,
			"ticket":       result.Ticket,
		})
		return
	}
	o.logInfo("Scheduled backup started", map[string]interface{}{
		"storage_type": storageType,
		"job_id":       result.JobID,
	})
}

func (o *Orchestrator) runScheduledCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	deleted, err := o.CleanupOldBackups(ctx)
	if err != nil {
		o.logWarn("Scheduled retention cleanup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	o.logInfo("Scheduled retention cleanup finished", map[string]interface{}{
		"deleted": deleted,
	})
}

// StopScheduledBackups halts the scheduler, waits for any in-flight cron
// callback and drops every entry. Runs without the orchestrator lock since
// callbacks take it.
func (o *Orchestrator) StopScheduledBackups() {
	o.mu.Lock()
	scheduler := o.scheduler
	o.mu.Unlock()

	scheduler.Stop()
	scheduler.Clear()
	o.logInfo("Backup schedules stopped", nil)
}

// GetNextScheduledBackups returns the next fire time per scheduled storage
// type. The retention cleanup entry is not included.
func (o *Orchestrator) GetNextScheduledBackups() map[string]time.Time {
	o.mu.Lock()
	scheduler := o.scheduler
	o.mu.Unlock()

	next := make(map[string]time.Time)
	for name, fireTime := range scheduler.NextRuns() {
		if !strings.HasPrefix(name, scheduleEntryPrefix) {
			continue
		}
		if fireTime.IsZero() {
			continue
		}
		next[strings.TrimPrefix(name, scheduleEntryPrefix)] = fireTime
	}
	return next
}

// CleanupOldBackups applies the retention policy to every completed backup
// and returns the number deleted. Deletion goes through DeleteBackup so
// destination copies and history entries are removed together.
func (o *Orchestrator) CleanupOldBackups(ctx context.Context) (int, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, NewUnavailableError("backup orchestrator has been shut down", nil)
	}
	policy := o.config.Retention
	metas := make([]*BackupMetadata, 0, len(o.completedJobs))
	typeByID := make(map[string]string, len(o.completedJobs))
	for _, job := range o.completedJobs {
		if job.Status != JobStatusCompleted || job.Metadata == nil {
			continue
		}
		meta := job.Metadata.Clone()
		metas = append(metas, meta)
		typeByID[meta.ID] = meta.StorageType
	}
	o.mu.Unlock()

	result, err := o.retention.Apply(ctx, metas, &policy, false, func(ctx context.Context, backupID string) error {
		return o.DeleteBackup(ctx, backupID)
	})
	if err != nil {
		return 0, err
	}

	deletedByType := make(map[string]int)
	for _, id := range result.DeletedIDs {
		deletedByType[typeByID[id]]++
	}
	for storageType, count := range deletedByType {
		o.metrics.RecordRetentionDeleted(storageType, count)
	}
	if result.Deleted > 0 {
		o.audit.RetentionApplied(result.Deleted, result.DeletedIDs)
	}

	return result.Deleted, nil
}

// UpdateConfig validates and swaps the configuration. The verifier and
// encryption manager are rebuilt; schedules are recreated when any were
// registered. A timezone change replaces the scheduler.
func (o *Orchestrator) UpdateConfig(config *BackupConfig) error {
	if config == nil {
		return NewNotConfiguredError("backup configuration is required", nil)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return NewValidationError("invalid backup configuration", err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return NewUnavailableError("backup orchestrator has been shut down", nil)
	}
	timezoneChanged := config.Schedule.Timezone != o.config.Schedule.Timezone
	o.mu.Unlock()

	var newScheduler *Scheduler
	if timezoneChanged {
		scheduler, err := NewScheduler(config.Schedule.Timezone, o.logger)
		if err != nil {
			return err
		}
		newScheduler = scheduler
	}

	o.mu.Lock()
	oldScheduler := o.scheduler
	wasScheduled := len(oldScheduler.NextRuns()) > 0
	o.config = config
	o.verifier = newVerifierFromConfig(config, o.logger)
	o.encryptor = NewEncryptionManager(config.Encryption)
	if newScheduler != nil {
		o.scheduler = newScheduler
	}
	var rescheduleErr error
	if wasScheduled {
		if config.Enabled {
			rescheduleErr = o.scheduleLocked()
		} else {
			o.scheduler.Clear()
		}
	}
	o.mu.Unlock()

	if newScheduler != nil {
		// The old scheduler may still be firing; Stop blocks until its
		// callbacks return, so it happens outside the lock
		oldScheduler.Stop()
	}

	o.audit.ConfigUpdated()
	o.logInfo("Backup configuration updated", map[string]interface{}{
		"rescheduled": wasScheduled,
	})
	return rescheduleErr
}

// Shutdown stops scheduling, cancels every active job and waits for them
// to drain within the context deadline, then releases backend and store
// resources. Idempotent.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	scheduler := o.scheduler
	o.mu.Unlock()

	scheduler.Stop()
	o.baseCancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return NewTimeoutError("shutdown timed out waiting for active backup jobs", ctx.Err())
	}

	o.mu.Lock()
	backends := make(map[string]Backend, len(o.backends))
	for storageType, backend := range o.backends {
		backends[storageType] = backend
	}
	o.mu.Unlock()

	for storageType, backend := range backends {
		if err := backend.Cleanup(); err != nil {
			o.logWarn("Backend cleanup failed during shutdown", map[string]interface{}{
				"storage_type": storageType,
				"error":        err.Error(),
			})
		}
	}

	o.hub.Close()
	if err := o.history.Close(); err != nil {
		o.logWarn("Failed to close backup history store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := o.audit.Close(); err != nil {
		o.logWarn("Failed to close audit log", map[string]interface{}{
			"error": err.Error(),
		})
	}

	o.logInfo("Backup orchestrator stopped", nil)
	return nil
}

// Job execution

// dispatchLocked allocates a job, registers it as active and starts its
// goroutine. Callers hold the orchestrator lock and have already checked
// eligibility and the concurrency ceiling.
func (o *Orchestrator) dispatchLocked(cfg *StorageBackupConfig, backend Backend, opts *BackupOptions) *BackupJob {
	jobCfg := cloneStorageConfig(cfg)
	if opts != nil && opts.Kind != "" {
		jobCfg.Kind = opts.Kind
	}
	if jobCfg.Kind == "" {
		jobCfg.Kind = BackupKindFull
	}
	compression := jobCfg.Compression
	if compression == "" {
		compression = CompressionTypeNone
	}

	var primary *BackupDestination
	if len(o.config.Destinations) > 0 {
		dest := o.config.Destinations[0]
		primary = &dest
	}

	var tags map[string]string
	if opts != nil {
		tags = cloneStringMap(opts.Tags)
	}

	now := time.Now().UTC()
	id := GenerateJobID()
	job := &BackupJob{
		ID:               id,
		StorageType:      jobCfg.StorageType,
		Config:           jobCfg,
		Destination:      primary,
		Status:           JobStatusPending,
		CurrentOperation: "waiting for execution",
		StartTime:        now,
		Metadata: &BackupMetadata{
			ID:            id,
			StorageType:   jobCfg.StorageType,
			Kind:          jobCfg.Kind,
			Status:        JobStatusPending,
			StartTime:     now,
			Compression:   compression,
			Checksums:     make(map[string]string),
			Destination:   primary,
			Tags:          tags,
			SchemaVersion: metadataSchemaVersion,
		},
	}

	o.activeJobs[id] = job
	jobCtx, cancel := context.WithCancel(o.baseCtx)
	o.jobCancels[id] = cancel

	o.metrics.RecordBackupStarted(job.StorageType)

	o.wg.Add(1)
	go o.runJob(jobCtx, job, backend)

	return job
}

func (o *Orchestrator) runJob(ctx context.Context, job *BackupJob, backend Backend) {
	defer o.wg.Done()

	if err := ctx.Err(); err != nil {
		o.finishJob(ctx, job, NewCancelledError("backup cancelled before execution", err))
		return
	}

	o.markStarted(job)

	scratch, err := o.prepareScratch(job.ID)
	if err != nil {
		o.finishJob(ctx, job, err)
		return
	}
	// Scratch space is removed on every exit path; the success path removes
	// it explicitly before the terminal transition
	defer os.RemoveAll(scratch)

	err = o.executeStages(ctx, job, backend, scratch)
	o.finishJob(ctx, job, err)
}

func (o *Orchestrator) executeStages(ctx context.Context, job *BackupJob, backend Backend, scratch string) error {
	cfg := job.Config
	hookEnv := []string{
		"BACKUP_JOB_ID=" + job.ID,
		"BACKUP_STORAGE_TYPE=" + job.StorageType,
		"BACKUP_SCRATCH_DIR=" + scratch,
	}

	// Best-effort pre-flight sizing; 0 means no estimate was possible
	if estimated := backend.EstimatedSize(ctx); estimated > 0 {
		o.mu.Lock()
		if job.Metadata.Extra == nil {
			job.Metadata.Extra = make(map[string]string)
		}
		job.Metadata.Extra["estimated_size"] = strconv.FormatInt(estimated, 10)
		o.mu.Unlock()
		o.logDebug("Estimated backup size", map[string]interface{}{
			"job_id":       job.ID,
			"storage_type": job.StorageType,
			"bytes":        estimated,
		})
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}
	o.updateProgress(job, 20, "running pre-backup hooks")
	if err := o.runHooks(ctx, cfg, cfg.PreBackupHooks, hookEnv); err != nil {
		return err
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}
	o.updateProgress(job, 30, "creating backup")
	files, err := backend.CreateBackup(ctx, cfg, scratch)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return NewInternalError(fmt.Sprintf("backend %s produced no backup artifacts", job.StorageType), nil)
	}
	rawSize, err := totalArtifactSize(files)
	if err != nil {
		return err
	}

	files, err = o.processArtifacts(ctx, job, files)
	if err != nil {
		return err
	}
	processedSize, err := totalArtifactSize(files)
	if err != nil {
		return err
	}

	stored, err := o.uploadArtifacts(ctx, job, files)
	if err != nil {
		return err
	}

	checksums := make(map[string]string, len(stored))
	for _, artifact := range stored {
		digest, err := CalculateArtifactChecksum(artifact)
		if err != nil {
			return err
		}
		checksums[artifact] = digest
	}

	o.mu.Lock()
	meta := job.Metadata
	meta.Files = stored
	meta.Checksums = checksums
	meta.Size = rawSize
	if processedSize != rawSize {
		meta.CompressedSize = processedSize
	}
	verifyAfterBackup := o.config.Global.VerifyAfterBackup
	verificationTypes := append([]VerificationType(nil), o.config.Global.VerificationTypes...)
	verifier := o.verifier
	metaSnapshot := meta.Clone()
	o.mu.Unlock()

	if verifyAfterBackup {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		o.updateProgress(job, 80, "verifying backup")
		report := verifier.VerifyBackupComprehensive(ctx, metaSnapshot, backend, cfg, verificationTypes)
		for _, result := range report.Results {
			o.metrics.RecordVerification(job.StorageType, result.Type, result.Passed)
		}
		if !report.Passed {
			passed := int(report.SuccessRate * float64(len(report.Results)))
			return NewVerificationError(fmt.Sprintf("post-backup verification failed: %d of %d checks passed",
				passed, len(report.Results)), nil)
		}
	}

	if err := checkCancelled(ctx); err != nil {
		return err
	}
	o.updateProgress(job, 90, "running post-backup hooks")
	if err := o.runHooks(ctx, cfg, cfg.PostBackupHooks, hookEnv); err != nil {
		return err
	}

	if err := os.RemoveAll(scratch); err != nil {
		o.logWarn("Failed to remove scratch directory", map[string]interface{}{
			"job_id": job.ID,
			"path":   scratch,
			"error":  err.Error(),
		})
	}
	return nil
}

// processArtifacts compresses and encrypts regular file artifacts in
// place, returning the updated paths. Directory artifacts pass through
// untouched, as do files that already carry a compression suffix.
func (o *Orchestrator) processArtifacts(ctx context.Context, job *BackupJob, files []string) ([]string, error) {
	cfg := job.Config

	o.mu.Lock()
	encryptor := o.encryptor
	encryptionOn := o.config.Encryption != nil && o.config.Encryption.Enabled
	o.mu.Unlock()

	compressionOn := cfg.Compression != "" && cfg.Compression != CompressionTypeNone
	if !compressionOn && !encryptionOn {
		return files, nil
	}

	if compressionOn {
		o.updateProgress(job, 30, "compressing backup artifacts")
	}

	processed := make([]string, 0, len(files))
	encrypted := false
	for _, artifact := range files {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		info, err := os.Stat(artifact)
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("backup artifact %s disappeared", artifact), err)
		}
		path := artifact
		if !info.IsDir() {
			if compressionOn && CompressionTypeForPath(path) == CompressionTypeNone {
				compressedPath, stats, err := o.compressor.CompressFile(path, cfg.Compression, cfg.CompressionLevel)
				if err != nil {
					return nil, err
				}
				o.logDebug("Compressed backup artifact", map[string]interface{}{
					"job_id":    job.ID,
					"artifact":  filepath.Base(compressedPath),
					"algorithm": string(stats.Algorithm),
					"ratio":     fmt.Sprintf("%.2f", stats.CompressionRatio),
				})
				path = compressedPath
			}
			if encryptionOn {
				encryptedPath, _, err := encryptor.EncryptFile(path)
				if err != nil {
					return nil, err
				}
				path = encryptedPath
				encrypted = true
			}
		}
		processed = append(processed, path)
	}

	if encrypted {
		o.mu.Lock()
		if job.Metadata.Extra == nil {
			job.Metadata.Extra = make(map[string]string)
		}
		job.Metadata.Extra["encrypted"] = "true"
		o.mu.Unlock()
	}
	return processed, nil
}

// uploadArtifacts copies the artifacts to every configured destination,
// walking the progress from 30 to 60. The returned paths are what the
// metadata records: the stored copies of the first local destination when
// one exists, else the scratch paths.
func (o *Orchestrator) uploadArtifacts(ctx context.Context, job *BackupJob, files []string) ([]string, error) {
	o.mu.Lock()
	destinations := make([]BackupDestination, len(o.config.Destinations))
	copy(destinations, o.config.Destinations)
	o.mu.Unlock()

	if len(destinations) == 0 {
		return files, nil
	}

	var localStored []string
	for i := range destinations {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		progress := 30 + ((i+1)*30)/len(destinations)
		o.updateProgress(job, progress, fmt.Sprintf("uploading to %s destination", strings.ToLower(string(destinations[i].Type))))

		handler, err := o.factory.CreateDestinationHandler(ctx, &destinations[i])
		if err != nil {
			return nil, err
		}
		stored, err := handler.Upload(ctx, job.ID, files)
		if err != nil {
			return nil, err
		}
		if localStored == nil && destinations[i].Type == DestinationTypeLocal {
			localStored = stored
		}
	}

	if localStored != nil {
		return localStored, nil
	}
	return files, nil
}

func (o *Orchestrator) runHooks(ctx context.Context, cfg *StorageBackupConfig, hooks []string, env []string) error {
	if len(hooks) == 0 {
		return nil
	}
	timeout := cfg.ScriptTimeout
	if timeout <= 0 {
		timeout = defaultHookTimeout
	}

	for i, hook := range hooks {
		if strings.TrimSpace(hook) == "" {
			continue
		}
		if _, err := o.runner.Run(ctx, execution.CommandSpec{
			Tool:    "sh",
			Args:    []string{"-c", hook},
			Env:     env,
			Timeout: timeout,
		}); err != nil {
			if ctx.Err() != nil {
				return NewCancelledError(fmt.Sprintf("backup hook %d cancelled", i+1), err)
			}
			return NewExternalToolError(fmt.Sprintf("backup hook %d failed", i+1), err)
		}
	}
	return nil
}

// markStarted performs the pending to in-progress transition and publishes
// the started event
func (o *Orchestrator) markStarted(job *BackupJob) {
	o.mu.Lock()
	from := job.Status
	job.Status = JobStatusInProgress
	job.Progress = 10
	job.CurrentOperation = "initializing backup"
	if job.Metadata != nil {
		job.Metadata.Status = JobStatusInProgress
	}
	snapshot := job.Clone()
	o.mu.Unlock()

	if o.logger != nil {
		o.logger.LogJobTransition(snapshot.ID, snapshot.StorageType, string(from), string(JobStatusInProgress), snapshot.Progress)
	}
	o.hub.Publish(JobEventStarted, snapshot)
}

func (o *Orchestrator) updateProgress(job *BackupJob, progress int, operation string) {
	o.mu.Lock()
	job.Progress = progress
	job.CurrentOperation = operation
	snapshot := job.Clone()
	o.mu.Unlock()

	o.hub.Publish(JobEventProgress, snapshot)
}

// finishJob performs the terminal transition exactly once: it stamps the
// outcome, moves the job from active to completed, persists the metadata,
// emits the event and metrics, and triggers a queue drain. A context
// cancelled at failure time wins and the job finishes cancelled.
func (o *Orchestrator) finishJob(ctx context.Context, job *BackupJob, jobErr error) {
	now := time.Now().UTC()

	o.mu.Lock()
	from := job.Status

	var event JobEventType
	switch {
	case jobErr == nil:
		job.Status = JobStatusCompleted
		job.Progress = 100
		job.CurrentOperation = "backup completed"
		event = JobEventCompleted
	case ctx.Err() != nil:
		job.Status = JobStatusCancelled
		job.CurrentOperation = "backup cancelled"
		job.Error = jobErrorFrom(jobErr)
		event = JobEventCancelled
	default:
		job.Status = JobStatusFailed
		job.CurrentOperation = "backup failed"
		job.Error = jobErrorFrom(jobErr)
		event = JobEventFailed
	}

	if job.Metadata != nil {
		job.Metadata.Status = job.Status
		job.Metadata.EndTime = now
		if jobErr != nil {
			job.Metadata.Error = jobErr.Error()
		}
	}

	delete(o.activeJobs, job.ID)
	o.completedJobs[job.ID] = job
	if cancel, ok := o.jobCancels[job.ID]; ok {
		cancel()
		delete(o.jobCancels, job.ID)
	}
	snapshot := job.Clone()
	o.mu.Unlock()

	duration := now.Sub(snapshot.StartTime).Seconds()
	switch event {
	case JobEventCompleted:
		o.metrics.RecordBackupCompleted(snapshot.StorageType, effectiveStoredSize(snapshot.Metadata), duration)
	case JobEventCancelled:
		o.metrics.RecordBackupCancelled(snapshot.StorageType)
	case JobEventFailed:
		o.metrics.RecordBackupFailed(snapshot.StorageType, failureCode(jobErr))
	}

	if snapshot.Metadata != nil {
		if err := o.history.Save(snapshot.Metadata); err != nil {
			o.logError("Failed to persist backup history", map[string]interface{}{
				"job_id": snapshot.ID,
				"error":  err.Error(),
			})
		}
	}

	if o.logger != nil {
		o.logger.LogJobTransition(snapshot.ID, snapshot.StorageType, string(from), string(snapshot.Status), snapshot.Progress)
	}
	if jobErr != nil && event == JobEventFailed {
		o.logError("Backup failed", map[string]interface{}{
			"job_id":       snapshot.ID,
			"storage_type": snapshot.StorageType,
			"error":        jobErr.Error(),
		})
	}
	o.audit.JobFinished(snapshot)
	o.hub.Publish(event, snapshot)

	o.drainQueue()
}

// drainQueue dispatches queued requests while capacity remains. The drain
// flag keeps the pass single: concurrent finishers skip out and rely on
// the active pass to pick up their freed slot.
func (o *Orchestrator) drainQueue() {
	o.mu.Lock()
	if !o.queue.BeginDrain() {
		o.mu.Unlock()
		return
	}

	for !o.closed && o.queue.Len() > 0 && len(o.activeJobs) < o.maxParallelLocked() {
		pending, ok := o.queue.Dequeue()
		if !ok {
			break
		}
		storageCfg := storageConfigFor(o.config, pending.storageType)
		backend := o.backends[pending.storageType]
		if storageCfg == nil || !storageCfg.Enabled || backend == nil {
			o.logWarn("Dropping queued backup request; storage type is no longer eligible", map[string]interface{}{
				"storage_type": pending.storageType,
				"ticket":       pending.ticket,
			})
			continue
		}
		job := o.dispatchLocked(storageCfg, backend, pending.options)
		o.queue.Bind(pending.ticket, job.ID)
		o.logInfo("Dispatched queued backup request", map[string]interface{}{
			"storage_type": pending.storageType,
			"ticket":       pending.ticket,
			"job_id":       job.ID,
		})
	}

	o.queue.EndDrain()
	depth := o.queue.Len()
	o.mu.Unlock()

	o.metrics.RecordQueueDepth(depth)
}

// Restore helpers

// materializeArtifacts produces backend-readable artifact paths for a
// restore. Stored artifacts are used in place when they exist locally and
// need no reversal; otherwise they are staged into scratch space, fetched
// from a destination when necessary, then decrypted and decompressed.
// The returned scratch directory is empty when nothing was staged.
func (o *Orchestrator) materializeArtifacts(ctx context.Context, meta *BackupMetadata) ([]string, string, error) {
	o.mu.Lock()
	encryptor := o.encryptor
	encryptionOn := o.config.Encryption != nil && o.config.Encryption.Enabled
	o.mu.Unlock()

	local := filesPresent(meta.Files)
	needsReversal := false
	for _, artifact := range meta.Files {
		if strings.HasSuffix(artifact, EncryptedExtension) || CompressionTypeForPath(artifact) != CompressionTypeNone {
			needsReversal = true
			break
		}
	}
	if local && !needsReversal {
		return meta.Files, "", nil
	}

	base := o.scratchBase()
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, "", NewStorageError(fmt.Sprintf("failed to create scratch directory %s", base), err)
	}
	scratch, err := os.MkdirTemp(base, "restore-"+sanitizeBackupID(meta.ID)+"-")
	if err != nil {
		return nil, "", NewStorageError("failed to create restore scratch directory", err)
	}

	var staged []string
	if local {
		for _, artifact := range meta.Files {
			info, err := os.Stat(artifact)
			if err != nil {
				os.RemoveAll(scratch)
				return nil, "", NewStorageError(fmt.Sprintf("backup artifact %s disappeared", artifact), err)
			}
			if info.IsDir() {
				// Directory artifacts are never compressed or encrypted
				staged = append(staged, artifact)
				continue
			}
			target := filepath.Join(scratch, filepath.Base(artifact))
			if err := copyArtifactFile(artifact, target, 0600); err != nil {
				os.RemoveAll(scratch)
				return nil, "", NewStorageError(fmt.Sprintf("failed to stage artifact %s", artifact), err)
			}
			staged = append(staged, target)
		}
	} else {
		staged, err = o.downloadArtifacts(ctx, meta, scratch)
		if err != nil {
			os.RemoveAll(scratch)
			return nil, "", err
		}
	}

	prepared := make([]string, 0, len(staged))
	for _, artifact := range staged {
		path := artifact
		if strings.HasSuffix(path, EncryptedExtension) {
			if !encryptionOn {
				os.RemoveAll(scratch)
				return nil, "", NewEncryptionError(fmt.Sprintf("backup %s is encrypted but encryption is not configured", meta.ID), nil)
			}
			decrypted, err := encryptor.DecryptFile(path)
			if err != nil {
				os.RemoveAll(scratch)
				return nil, "", err
			}
			path = decrypted
		}
		if algorithm := CompressionTypeForPath(path); algorithm != CompressionTypeNone {
			decompressed, err := o.compressor.DecompressFile(path, algorithm)
			if err != nil {
				os.RemoveAll(scratch)
				return nil, "", err
			}
			path = decompressed
		}
		prepared = append(prepared, path)
	}

	return prepared, scratch, nil
}

// downloadArtifacts fetches a backup's artifacts from the first
// destination that still holds them, preferring the destination recorded
// in the metadata
func (o *Orchestrator) downloadArtifacts(ctx context.Context, meta *BackupMetadata, destDir string) ([]string, error) {
	o.mu.Lock()
	destinations := make([]BackupDestination, 0, len(o.config.Destinations)+1)
	if meta.Destination != nil {
		destinations = append(destinations, *meta.Destination)
	}
	destinations = append(destinations, o.config.Destinations...)
	o.mu.Unlock()

	var lastErr error
	for i := range destinations {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		handler, err := o.factory.CreateDestinationHandler(ctx, &destinations[i])
		if err != nil {
			lastErr = err
			continue
		}
		files, err := handler.Download(ctx, meta.ID, destDir)
		if err != nil {
			lastErr = err
			continue
		}
		if len(files) > 0 {
			return files, nil
		}
	}
	return nil, NewNotFoundError(fmt.Sprintf("artifacts for backup %s were not found in any destination", meta.ID), lastErr)
}

// Shared helpers

func (o *Orchestrator) lookupMetadata(backupID string) (*BackupMetadata, error) {
	o.mu.Lock()
	if job, ok := o.completedJobs[backupID]; ok && job.Metadata != nil {
		meta := job.Metadata.Clone()
		o.mu.Unlock()
		return meta, nil
	}
	o.mu.Unlock()

	return o.history.Get(backupID)
}

func (o *Orchestrator) prepareScratch(jobID string) (string, error) {
	dir := filepath.Join(o.scratchBase(), sanitizeBackupID(jobID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewStorageError(fmt.Sprintf("failed to create scratch directory %s", dir), err)
	}
	return dir, nil
}

func (o *Orchestrator) scratchBase() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.config.Global.ScratchDir != "" {
		return o.config.Global.ScratchDir
	}
	return filepath.Join(os.TempDir(), "backup-orchestrator")
}

func (o *Orchestrator) maxParallelLocked() int {
	limit := o.config.Global.MaxParallelJobs
	if limit < 1 {
		limit = 1
	}
	return limit
}

func storageConfigFor(config *BackupConfig, storageType string) *StorageBackupConfig {
	for i := range config.Storages {
		if config.Storages[i].StorageType == storageType {
			return &config.Storages[i]
		}
	}
	return nil
}

func cloneStorageConfig(cfg *StorageBackupConfig) *StorageBackupConfig {
	if cfg == nil {
		return nil
	}
	clone := *cfg
	clone.PreBackupHooks = append([]string(nil), cfg.PreBackupHooks...)
	clone.PostBackupHooks = append([]string(nil), cfg.PostBackupHooks...)
	clone.VerificationScripts = append([]string(nil), cfg.VerificationScripts...)
	clone.Options = cloneStringMap(cfg.Options)
	return &clone
}

// jobFromMetadata reconstructs the job view of a historical backup loaded
// from the history store
func jobFromMetadata(meta *BackupMetadata) *BackupJob {
	job := &BackupJob{
		ID:          meta.ID,
		StorageType: meta.StorageType,
		Destination: meta.Destination,
		Status:      meta.Status,
		StartTime:   meta.StartTime,
		Metadata:    meta,
	}
	switch meta.Status {
	case JobStatusCompleted:
		job.Progress = 100
		job.CurrentOperation = "backup completed"
	case JobStatusFailed:
		job.CurrentOperation = "backup failed"
	case JobStatusCancelled:
		job.CurrentOperation = "backup cancelled"
	}
	if meta.Error != "" {
		job.Error = &JobError{Message: meta.Error}
	}
	return job
}

func matchesJobFilter(job *BackupJob, filter *JobFilter) bool {
	if filter == nil {
		return true
	}
	if filter.StorageType != "" && job.StorageType != filter.StorageType {
		return false
	}
	if filter.Status != "" && job.Status != filter.Status {
		return false
	}
	return true
}

func matchesSearchFilter(meta *BackupMetadata, filter *SearchFilter) bool {
	if filter == nil {
		return true
	}
	if filter.StorageType != "" && meta.StorageType != filter.StorageType {
		return false
	}
	if filter.Status != "" && meta.Status != filter.Status {
		return false
	}
	if filter.StartedAfter != nil && meta.StartTime.Before(*filter.StartedAfter) {
		return false
	}
	if filter.StartedBefore != nil && meta.StartTime.After(*filter.StartedBefore) {
		return false
	}
	return true
}

func sortBackupMetadata(results []*BackupMetadata, filter *SearchFilter) {
	sortBy := SortByStartTime
	ascending := false
	if filter != nil {
		if filter.SortBy != "" {
			sortBy = filter.SortBy
		}
		ascending = filter.Ascending
	}

	sort.Slice(results, func(i, j int) bool {
		var less bool
		switch sortBy {
		case SortBySize:
			less = effectiveStoredSize(results[i]) < effectiveStoredSize(results[j])
		default:
			less = results[i].StartTime.Before(results[j].StartTime)
		}
		if ascending {
			return less
		}
		return !less
	})
}

func pageBackupMetadata(results []*BackupMetadata, filter *SearchFilter) []*BackupMetadata {
	if filter == nil {
		return results
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []*BackupMetadata{}
	}
	results = results[offset:]
	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results
}

// effectiveStoredSize is the on-disk footprint: the compressed size when
// compression or encryption changed it, else the raw size
func effectiveStoredSize(meta *BackupMetadata) int64 {
	if meta == nil {
		return 0
	}
	if meta.CompressedSize > 0 {
		return meta.CompressedSize
	}
	return meta.Size
}

func totalArtifactSize(files []string) (int64, error) {
	var total int64
	for _, artifact := range files {
		size, err := ArtifactSize(artifact)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

func filesPresent(files []string) bool {
	if len(files) == 0 {
		return false
	}
	for _, artifact := range files {
		if _, err := os.Stat(artifact); err != nil {
			return false
		}
	}
	return true
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewCancelledError("backup cancelled", err)
	}
	return nil
}

func jobErrorFrom(err error) *JobError {
	if err == nil {
		return nil
	}
	return &JobError{
		Message: err.Error(),
		Code:    failureCode(err),
	}
}

func failureCode(err error) string {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return string(backupErr.Type)
	}
	return string(BackupErrorTypeInternal)
}

// Logging helpers; the logger is optional in tests

func (o *Orchestrator) logDebug(msg string, fields map[string]interface{}) {
	if o.logger != nil {
		o.logger.WithFields(fields).Debug(msg)
	}
}

func (o *Orchestrator) logInfo(msg string, fields map[string]interface{}) {
	if o.logger != nil {
		o.logger.WithFields(fields).Info(msg)
	}
}

func (o *Orchestrator) logWarn(msg string, fields map[string]interface{}) {
	if o.logger != nil {
		o.logger.WithFields(fields).Warn(msg)
	}
}

func (o *Orchestrator) logError(msg string, fields map[string]interface{}) {
	if o.logger != nil {
		o.logger.WithFields(fields).Error(msg)
	}
}
