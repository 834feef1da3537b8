package backup

import (
	"context"
	"fmt"
	"time"
)

// StorageUsageReport summarizes the footprint of every completed backup the
// orchestrator knows about. Sizes are split into raw bytes (before
// compression) and stored bytes (what actually sits in the destinations), so
// the compression ratio reads as stored/raw with 1.0 meaning no savings.
type StorageUsageReport struct {
	TotalBackups      int                          `json:"total_backups"`
	TotalSize         int64                        `json:"total_size"`
	TotalStoredSize   int64                        `json:"total_stored_size"`
	CompressionRatio  float64                      `json:"compression_ratio"`
	AverageBackupSize int64                        `json:"average_backup_size"`
	LargestBackup     *BackupMetadata              `json:"largest_backup,omitempty"`
	SmallestBackup    *BackupMetadata              `json:"smallest_backup,omitempty"`
	ByStorageType     map[string]*StorageTypeUsage `json:"by_storage_type"`
	ByAge             map[string]*AgeGroupUsage    `json:"by_age"`
	GeneratedAt       time.Time                    `json:"generated_at"`
}

// StorageTypeUsage aggregates the backups produced by one storage backend
type StorageTypeUsage struct {
	StorageType      string    `json:"storage_type"`
	BackupCount      int       `json:"backup_count"`
	TotalSize        int64     `json:"total_size"`
	StoredSize       int64     `json:"stored_size"`
	CompressionRatio float64   `json:"compression_ratio"`
	OldestBackup     time.Time `json:"oldest_backup"`
	NewestBackup     time.Time `json:"newest_backup"`
}

// AgeGroupUsage buckets backups by how long ago they were taken
type AgeGroupUsage struct {
	AgeGroup    string `json:"age_group"` // "daily", "weekly", "monthly", "older"
	BackupCount int    `json:"backup_count"`
	TotalSize   int64  `json:"total_size"`
	StoredSize  int64  `json:"stored_size"`
}

// DestinationHealth is the probe result for one configured destination
type DestinationHealth struct {
	Type         DestinationType `json:"type"`
	Target       string          `json:"target"`
	Healthy      bool            `json:"healthy"`
	ResponseTime time.Duration   `json:"response_time"`
	Error        string          `json:"error,omitempty"`
}

// DestinationHealthReport aggregates the probe results for every configured
// destination
type DestinationHealthReport struct {
	OverallHealthy bool                 `json:"overall_healthy"`
	Destinations   []*DestinationHealth `json:"destinations"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// StorageUsage aggregates completed backups into a usage report. The report
// is computed from in-memory state and never touches the destinations.
func (o *Orchestrator) StorageUsage() *StorageUsageReport {
	o.mu.Lock()
	metas := make([]*BackupMetadata, 0, len(o.completedJobs))
	for _, job := range o.completedJobs {
		if job.Status != JobStatusCompleted || job.Metadata == nil {
			continue
		}
		metas = append(metas, job.Metadata.Clone())
	}
	o.mu.Unlock()

	report := &StorageUsageReport{
		TotalBackups:  len(metas),
		ByStorageType: make(map[string]*StorageTypeUsage),
		ByAge:         make(map[string]*AgeGroupUsage),
		GeneratedAt:   time.Now().UTC(),
	}
	if len(metas) == 0 {
		return report
	}

	now := time.Now()
	var largest, smallest *BackupMetadata
	for _, meta := range metas {
		stored := effectiveStoredSize(meta)
		report.TotalSize += meta.Size
		report.TotalStoredSize += stored

		if largest == nil || meta.Size > largest.Size {
			largest = meta
		}
		if smallest == nil || meta.Size < smallest.Size {
			smallest = meta
		}

		typeUsage := report.ByStorageType[meta.StorageType]
		if typeUsage == nil {
			typeUsage = &StorageTypeUsage{StorageType: meta.StorageType}
			report.ByStorageType[meta.StorageType] = typeUsage
		}
		typeUsage.BackupCount++
		typeUsage.TotalSize += meta.Size
		typeUsage.StoredSize += stored
		if typeUsage.OldestBackup.IsZero() || meta.StartTime.Before(typeUsage.OldestBackup) {
			typeUsage.OldestBackup = meta.StartTime
		}
		if meta.StartTime.After(typeUsage.NewestBackup) {
			typeUsage.NewestBackup = meta.StartTime
		}

		group := ageGroupFor(now.Sub(meta.StartTime))
		ageUsage := report.ByAge[group]
		if ageUsage == nil {
			ageUsage = &AgeGroupUsage{AgeGroup: group}
			report.ByAge[group] = ageUsage
		}
		ageUsage.BackupCount++
		ageUsage.TotalSize += meta.Size
		ageUsage.StoredSize += stored
	}

	report.LargestBackup = largest
	report.SmallestBackup = smallest
	report.AverageBackupSize = report.TotalSize / int64(len(metas))
	if report.TotalSize > 0 {
		report.CompressionRatio = float64(report.TotalStoredSize) / float64(report.TotalSize)
	}
	for _, usage := range report.ByStorageType {
		if usage.TotalSize > 0 {
			usage.CompressionRatio = float64(usage.StoredSize) / float64(usage.TotalSize)
		}
	}

	return report
}

// ageGroupFor maps a backup's age onto the reporting buckets. The bucket
// boundaries mirror the retention tiers.
func ageGroupFor(age time.Duration) string {
	switch {
	case age <= 24*time.Hour:
		return "daily"
	case age <= 7*24*time.Hour:
		return "weekly"
	case age <= 30*24*time.Hour:
		return "monthly"
	default:
		return "older"
	}
}

// CheckDestinations probes every configured destination and reports
// reachability. A destination whose handler cannot be built is reported
// unhealthy instead of failing the whole report.
func (o *Orchestrator) CheckDestinations(ctx context.Context) *DestinationHealthReport {
	o.mu.Lock()
	destinations := make([]BackupDestination, len(o.config.Destinations))
	copy(destinations, o.config.Destinations)
	o.mu.Unlock()

	report := &DestinationHealthReport{
		OverallHealthy: true,
		GeneratedAt:    time.Now().UTC(),
	}

	for i := range destinations {
		dest := &destinations[i]
		health := &DestinationHealth{
			Type:   dest.Type,
			Target: describeDestination(dest),
		}

		start := time.Now()
		handler, err := o.factory.CreateDestinationHandler(ctx, dest)
		if err == nil {
			err = handler.HealthCheck(ctx)
		}
		health.ResponseTime = time.Since(start)

		if err != nil {
			health.Error = err.Error()
			report.OverallHealthy = false
		} else {
			health.Healthy = true
		}
		report.Destinations = append(report.Destinations, health)
	}

	return report
}

// describeDestination renders a short human-readable target for health and
// usage output without leaking credentials
func describeDestination(dest *BackupDestination) string {
	switch dest.Type {
	case DestinationTypeLocal:
		if dest.Local != nil && dest.Local.BasePath != "" {
			return dest.Local.BasePath
		}
		return dest.Path
	case DestinationTypeS3:
		if dest.S3 != nil {
			return fmt.Sprintf("s3://%s/%s", dest.S3.Bucket, dest.Path)
		}
	case DestinationTypeAzure:
		if dest.Azure != nil {
			return fmt.Sprintf("azure://%s/%s", dest.Azure.ContainerName, dest.Path)
		}
	case DestinationTypeGCS:
		if dest.GCS != nil {
			return fmt.Sprintf("gs://%s/%s", dest.GCS.Bucket, dest.Path)
		}
	}
	return string(dest.Type)
}
