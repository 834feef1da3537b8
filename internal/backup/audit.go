package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditLogger writes an append-only JSON-lines trail of backup operations
// for compliance review: which backups ran, what was restored, deleted or
// pruned, and how each attempt ended. Entries share a correlation id per
// process so one orchestrator's activity can be grouped.
//
// A logger constructed without a file path is disabled; recording on a
// disabled or nil logger is a no-op.
type AuditLogger struct {
	mu            sync.Mutex
	logger        *logrus.Logger
	file          *os.File
	correlationID string
}

// NewAuditLogger opens the audit log file for appending, creating parent
// directories as needed. An empty path returns a disabled logger.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if path == "" {
		return &AuditLogger{}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to create audit log directory %s", dir), err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to open audit log file %s", path), err)
	}

	logger := logrus.New()
	logger.SetOutput(file)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	logger.SetLevel(logrus.InfoLevel)

	return &AuditLogger{
		logger:        logger,
		file:          file,
		correlationID: uuid.New().String(),
	}, nil
}

// Enabled reports whether entries are being written
func (a *AuditLogger) Enabled() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logger != nil
}

// CorrelationID returns the id stamped on every entry of this logger
func (a *AuditLogger) CorrelationID() string {
	if a == nil {
		return ""
	}
	return a.correlationID
}

func (a *AuditLogger) record(operation, resource, result string, details map[string]interface{}) {
	if a == nil {
		return
	}

	fields := logrus.Fields{
		"correlation_id": a.correlationID,
		"operation":      operation,
		"resource":       resource,
		"result":         result,
	}
	for k, v := range details {
		fields[k] = v
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.logger == nil {
		return
	}
	a.logger.WithFields(fields).Info("backup audit event")
}

// JobFinished records a job reaching a terminal state
func (a *AuditLogger) JobFinished(job *BackupJob) {
	if !a.Enabled() || job == nil {
		return
	}

	details := map[string]interface{}{
		"storage_type": job.StorageType,
	}
	if job.Metadata != nil {
		details["size"] = effectiveStoredSize(job.Metadata)
		if d := job.Metadata.Duration(); d > 0 {
			details["duration"] = d.String()
		}
	}
	if job.Error != nil {
		details["error"] = job.Error.Message
		if job.Error.Code != "" {
			details["error_code"] = job.Error.Code
		}
	}
	a.record("backup", job.ID, string(job.Status), details)
}

// RestorePerformed records a restore attempt and its outcome
func (a *AuditLogger) RestorePerformed(backupID string, opts RestoreOptions, duration time.Duration, err error) {
	details := map[string]interface{}{
		"duration":  duration.String(),
		"overwrite": opts.Overwrite,
	}
	if opts.Database != "" {
		details["database"] = opts.Database
	}
	if opts.TargetDir != "" {
		details["target_dir"] = opts.TargetDir
	}
	result := "succeeded"
	if err != nil {
		result = "failed"
		details["error"] = err.Error()
	}
	a.record("restore", backupID, result, details)
}

// BackupDeleted records the removal of one backup
func (a *AuditLogger) BackupDeleted(backupID, storageType string) {
	a.record("delete", backupID, "succeeded", map[string]interface{}{
		"storage_type": storageType,
	})
}

// RetentionApplied records one retention pass
func (a *AuditLogger) RetentionApplied(deleted int, deletedIDs []string) {
	details := map[string]interface{}{
		"deleted": deleted,
	}
	if len(deletedIDs) > 0 {
		details["deleted_ids"] = strings.Join(deletedIDs, ",")
	}
	a.record("retention", "history", "succeeded", details)
}

// ConfigUpdated records a configuration swap
func (a *AuditLogger) ConfigUpdated() {
	a.record("config", "configuration", "updated", nil)
}

// Close releases the audit log file. Safe on a disabled logger.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}

	err := a.file.Close()
	a.file = nil
	a.logger = nil
	return err
}
