package backup

import (
	"sync"
	"time"
)

// Histogram bucket upper bounds. Durations in seconds, sizes in bytes; the
// last bucket is unbounded.
var (
	durationBucketBounds = []float64{30, 60, 300, 1800, 3600}
	sizeBucketBounds     = []int64{10 << 20, 100 << 20, 1 << 30, 10 << 30}
)

// StorageTypeMetrics is the aggregated view for one storage type
type StorageTypeMetrics struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`

	FailuresByType map[string]int64 `json:"failures_by_type,omitempty"`

	TotalBytes   int64 `json:"total_bytes"`
	MinBytes     int64 `json:"min_bytes"`
	MaxBytes     int64 `json:"max_bytes"`
	AverageBytes int64 `json:"average_bytes"`

	TotalDurationSeconds   float64 `json:"total_duration_seconds"`
	MinDurationSeconds     float64 `json:"min_duration_seconds"`
	MaxDurationSeconds     float64 `json:"max_duration_seconds"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`

	// Histogram counts; index i counts observations at or below the i-th
	// bound, the final index counts the rest
	DurationBuckets []int64 `json:"duration_buckets"`
	SizeBuckets     []int64 `json:"size_buckets"`

	RestoresSucceeded int64 `json:"restores_succeeded"`
	RestoresFailed    int64 `json:"restores_failed"`

	VerificationsPassed int64 `json:"verifications_passed"`
	VerificationsFailed int64 `json:"verifications_failed"`

	RetentionDeleted int64 `json:"retention_deleted"`

	SuccessRate float64 `json:"success_rate"`
}

// MetricsSnapshot is a point-in-time copy of all aggregated metrics
type MetricsSnapshot struct {
	StartedAt     time.Time                      `json:"started_at"`
	ByStorageType map[string]*StorageTypeMetrics `json:"by_storage_type"`
	QueueDepth    int                            `json:"queue_depth"`
	MaxQueueDepth int                            `json:"max_queue_depth"`
}

// InProcessMetricsSink aggregates counters and histograms in memory. It is
// the default sink; production deployments can swap in an exporter as long
// as it satisfies MetricsSink.
type InProcessMetricsSink struct {
	mu        sync.RWMutex
	startedAt time.Time
	byType    map[string]*storageTypeAgg

	queueDepth    int
	maxQueueDepth int
}

type storageTypeAgg struct {
	started   int64
	completed int64
	failed    int64
	cancelled int64

	failuresByType map[string]int64

	totalBytes int64
	minBytes   int64
	maxBytes   int64

	totalDuration float64
	minDuration   float64
	maxDuration   float64

	durationBuckets []int64
	sizeBuckets     []int64

	restoresSucceeded int64
	restoresFailed    int64

	verificationsPassed int64
	verificationsFailed int64

	retentionDeleted int64
}

// NewInProcessMetricsSink creates an empty sink
func NewInProcessMetricsSink() *InProcessMetricsSink {
	return &InProcessMetricsSink{
		startedAt: time.Now().UTC(),
		byType:    make(map[string]*storageTypeAgg),
	}
}

// RecordBackupStarted counts one dispatched job
func (ms *InProcessMetricsSink) RecordBackupStarted(storageType string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.agg(storageType).started++
}

// RecordBackupCompleted counts one successful job and feeds the size and
// duration histograms
func (ms *InProcessMetricsSink) RecordBackupCompleted(storageType string, sizeBytes int64, durationSeconds float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	agg := ms.agg(storageType)
	agg.completed++

	if sizeBytes > 0 {
		agg.totalBytes += sizeBytes
		if agg.minBytes == 0 || sizeBytes < agg.minBytes {
			agg.minBytes = sizeBytes
		}
		if sizeBytes > agg.maxBytes {
			agg.maxBytes = sizeBytes
		}
		agg.sizeBuckets[sizeBucketIndex(sizeBytes)]++
	}

	if durationSeconds > 0 {
		agg.totalDuration += durationSeconds
		if agg.minDuration == 0 || durationSeconds < agg.minDuration {
			agg.minDuration = durationSeconds
		}
		if durationSeconds > agg.maxDuration {
			agg.maxDuration = durationSeconds
		}
		agg.durationBuckets[durationBucketIndex(durationSeconds)]++
	}
}

// RecordBackupFailed counts one failed job by error type
func (ms *InProcessMetricsSink) RecordBackupFailed(storageType string, errorType string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	agg := ms.agg(storageType)
	agg.failed++
	if errorType != "" {
		agg.failuresByType[errorType]++
	}
}

// RecordBackupCancelled counts one cancelled job
func (ms *InProcessMetricsSink) RecordBackupCancelled(storageType string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.agg(storageType).cancelled++
}

// RecordRestore counts one restore outcome
func (ms *InProcessMetricsSink) RecordRestore(storageType string, success bool, durationSeconds float64) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	agg := ms.agg(storageType)
	if success {
		agg.restoresSucceeded++
	} else {
		agg.restoresFailed++
	}
}

// RecordVerification counts one verification outcome
func (ms *InProcessMetricsSink) RecordVerification(storageType string, vt VerificationType, passed bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	agg := ms.agg(storageType)
	if passed {
		agg.verificationsPassed++
	} else {
		agg.verificationsFailed++
	}
}

// RecordRetentionDeleted counts backups removed by retention runs
func (ms *InProcessMetricsSink) RecordRetentionDeleted(storageType string, count int) {
	if count <= 0 {
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.agg(storageType).retentionDeleted += int64(count)
}

// RecordQueueDepth tracks the current and high-water queue depth
func (ms *InProcessMetricsSink) RecordQueueDepth(depth int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.queueDepth = depth
	if depth > ms.maxQueueDepth {
		ms.maxQueueDepth = depth
	}
}

// Snapshot returns a copy of all aggregated metrics with derived averages
// and rates filled in
func (ms *InProcessMetricsSink) Snapshot() MetricsSnapshot {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	snapshot := MetricsSnapshot{
		StartedAt:     ms.startedAt,
		ByStorageType: make(map[string]*StorageTypeMetrics, len(ms.byType)),
		QueueDepth:    ms.queueDepth,
		MaxQueueDepth: ms.maxQueueDepth,
	}

	for storageType, agg := range ms.byType {
		m := &StorageTypeMetrics{
			Started:              agg.started,
			Completed:            agg.completed,
			Failed:               agg.failed,
			Cancelled:            agg.cancelled,
			TotalBytes:           agg.totalBytes,
			MinBytes:             agg.minBytes,
			MaxBytes:             agg.maxBytes,
			TotalDurationSeconds: agg.totalDuration,
			MinDurationSeconds:   agg.minDuration,
			MaxDurationSeconds:   agg.maxDuration,
			DurationBuckets:      append([]int64(nil), agg.durationBuckets...),
			SizeBuckets:          append([]int64(nil), agg.sizeBuckets...),
			RestoresSucceeded:    agg.restoresSucceeded,
			RestoresFailed:       agg.restoresFailed,
			VerificationsPassed:  agg.verificationsPassed,
			VerificationsFailed:  agg.verificationsFailed,
			RetentionDeleted:     agg.retentionDeleted,
		}

		if len(agg.failuresByType) > 0 {
			m.FailuresByType = make(map[string]int64, len(agg.failuresByType))
			for k, v := range agg.failuresByType {
				m.FailuresByType[k] = v
			}
		}

		if agg.completed > 0 {
			m.AverageBytes = agg.totalBytes / agg.completed
			m.AverageDurationSeconds = agg.totalDuration / float64(agg.completed)
		}

		finished := agg.completed + agg.failed
		if finished > 0 {
			m.SuccessRate = float64(agg.completed) / float64(finished)
		}

		snapshot.ByStorageType[storageType] = m
	}

	return snapshot
}

// agg returns the aggregate for one storage type, creating it on first use.
// Called with ms.mu held.
func (ms *InProcessMetricsSink) agg(storageType string) *storageTypeAgg {
	if storageType == "" {
		storageType = "unknown"
	}

	agg, ok := ms.byType[storageType]
	if !ok {
		agg = &storageTypeAgg{
			failuresByType:  make(map[string]int64),
			durationBuckets: make([]int64, len(durationBucketBounds)+1),
			sizeBuckets:     make([]int64, len(sizeBucketBounds)+1),
		}
		ms.byType[storageType] = agg
	}
	return agg
}

func durationBucketIndex(seconds float64) int {
	for i, bound := range durationBucketBounds {
		if seconds <= bound {
			return i
		}
	}
	return len(durationBucketBounds)
}

func sizeBucketIndex(bytes int64) int {
	for i, bound := range sizeBucketBounds {
		if bytes <= bound {
			return i
		}
	}
	return len(sizeBucketBounds)
}

// NopMetricsSink discards every observation. Used when metrics collection
// is disabled.
type NopMetricsSink struct{}

func (NopMetricsSink) RecordBackupStarted(string)                        {}
func (NopMetricsSink) RecordBackupCompleted(string, int64, float64)      {}
func (NopMetricsSink) RecordBackupFailed(string, string)                 {}
func (NopMetricsSink) RecordBackupCancelled(string)                      {}
func (NopMetricsSink) RecordRestore(string, bool, float64)               {}
func (NopMetricsSink) RecordVerification(string, VerificationType, bool) {}
func (NopMetricsSink) RecordRetentionDeleted(string, int)                {}
func (NopMetricsSink) RecordQueueDepth(int)                              {}
