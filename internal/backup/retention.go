package backup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"backup-orchestrator/internal/logging"
)

// RetentionResult summarizes one retention pass
type RetentionResult struct {
	Processed      int           `json:"processed"`
	Deleted        int           `json:"deleted"`
	Kept           int           `json:"kept"`
	DeletedIDs     []string      `json:"deleted_ids,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
	DryRun         bool          `json:"dry_run"`
}

// deleteBackupFunc removes one backup and all of its copies. The retention
// engine only selects; deletion stays with the orchestrator so destination
// copies and history entries go through the same path as manual deletes.
type deleteBackupFunc func(ctx context.Context, backupID string) error

// RetentionEngine implements the tiered keep/expire policy: keep every
// backup inside the daily window, one per ISO week inside the weekly window,
// one per calendar month inside the monthly window, with the union capped at
// MaxBackups.
type RetentionEngine struct {
	logger *logging.Logger
}

func NewRetentionEngine(logger *logging.Logger) *RetentionEngine {
	return &RetentionEngine{logger: logger}
}

// Apply runs the policy over all metadata, grouped per storage type, and
// deletes everything outside the keep set through deleteFn. Per-backup
// delete failures are logged and skipped; the pass always completes.
func (re *RetentionEngine) Apply(ctx context.Context, backups []*BackupMetadata, policy *RetentionPolicy, dryRun bool, deleteFn deleteBackupFunc) (*RetentionResult, error) {
	startTime := time.Now()

	if policy == nil {
		return nil, NewValidationError("retention policy cannot be nil", nil)
	}
	if !dryRun && deleteFn == nil {
		return nil, NewValidationError("delete function is required outside dry runs", nil)
	}

	result := &RetentionResult{
		Processed: len(backups),
		DryRun:    dryRun,
	}

	byStorageType := make(map[string][]*BackupMetadata)
	for _, meta := range backups {
		byStorageType[meta.StorageType] = append(byStorageType[meta.StorageType], meta)
	}

	now := time.Now()
	for storageType, group := range byStorageType {
		typeStart := time.Now()

		keep, expire := re.partition(group, policy, now)
		result.Kept += len(keep)

		var deleted int
		for _, meta := range expire {
			if dryRun {
				result.DeletedIDs = append(result.DeletedIDs, meta.ID)
				deleted++
				continue
			}
			if err := deleteFn(ctx, meta.ID); err != nil {
				msg := fmt.Sprintf("failed to delete backup %s: %v", meta.ID, err)
				result.Errors = append(result.Errors, msg)
				if re.logger != nil {
					re.logger.WithFields(map[string]interface{}{
						"backup_id":    meta.ID,
						"storage_type": storageType,
					}).Warnf("Retention delete failed, skipping: %v", err)
				}
				continue
			}
			result.DeletedIDs = append(result.DeletedIDs, meta.ID)
			deleted++
		}
		result.Deleted += deleted

		if re.logger != nil {
			re.logger.LogRetentionRun(storageType, len(keep), deleted, time.Since(typeStart), nil)
		}
	}

	result.ProcessingTime = time.Since(startTime)
	return result, nil
}

// SelectExpired returns the backups a non-dry-run pass would delete
func (re *RetentionEngine) SelectExpired(backups []*BackupMetadata, policy *RetentionPolicy, now time.Time) []*BackupMetadata {
	var expired []*BackupMetadata
	byStorageType := make(map[string][]*BackupMetadata)
	for _, meta := range backups {
		byStorageType[meta.StorageType] = append(byStorageType[meta.StorageType], meta)
	}
	for _, group := range byStorageType {
		_, expire := re.partition(group, policy, now)
		expired = append(expired, expire...)
	}
	return expired
}

// partition splits one storage type's metadata into keep and expire sets.
// The monthly cutoff approximates a month as 30 days; the resulting drift is
// bounded by one backup per affected month and acceptable for pruning.
func (re *RetentionEngine) partition(backups []*BackupMetadata, policy *RetentionPolicy, now time.Time) (keep, expire []*BackupMetadata) {
	if len(backups) == 0 {
		return nil, nil
	}

	sorted := make([]*BackupMetadata, len(backups))
	copy(sorted, backups)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})

	dailyCutoff := now.Add(-time.Duration(policy.DailyRetentionDays) * 24 * time.Hour)
	weeklyCutoff := now.Add(-time.Duration(policy.WeeklyRetentionWeeks) * 7 * 24 * time.Hour)
	monthlyCutoff := now.Add(-time.Duration(policy.MonthlyRetentionMonths) * 30 * 24 * time.Hour)

	keepSet := make(map[string]bool)
	weeklySeen := make(map[string]bool)
	monthlySeen := make(map[string]bool)

	// Input is newest-first, so the first backup encountered per week or
	// month bucket is the newest of that bucket and wins the slot.
	for _, meta := range sorted {
		start := meta.StartTime
		switch {
		case !start.Before(dailyCutoff):
			keepSet[meta.ID] = true
		case !start.Before(weeklyCutoff):
			year, week := start.ISOWeek()
			key := fmt.Sprintf("%d-W%02d", year, week)
			if !weeklySeen[key] {
				weeklySeen[key] = true
				keepSet[meta.ID] = true
			}
		case !start.Before(monthlyCutoff):
			key := start.Format("2006-01")
			if !monthlySeen[key] {
				monthlySeen[key] = true
				keepSet[meta.ID] = true
			}
		}
	}

	kept := make([]*BackupMetadata, 0, len(keepSet))
	for _, meta := range sorted {
		if keepSet[meta.ID] {
			kept = append(kept, meta)
		}
	}

	// Cap the union. kept is already newest-first, so trimming the tail
	// drops the oldest members of the keep set.
	if policy.MaxBackups > 0 && len(kept) > policy.MaxBackups {
		for _, meta := range kept[policy.MaxBackups:] {
			delete(keepSet, meta.ID)
		}
		kept = kept[:policy.MaxBackups]
	}

	for _, meta := range sorted {
		if !keepSet[meta.ID] {
			expire = append(expire, meta)
		}
	}
	return kept, expire
}
