package backup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessMetricsSink_BackupLifecycle(t *testing.T) {
	sink := NewInProcessMetricsSink()

	sink.RecordBackupStarted("postgres")
	sink.RecordBackupStarted("postgres")
	sink.RecordBackupStarted("postgres")
	sink.RecordBackupCompleted("postgres", 1<<20, 42.0)
	sink.RecordBackupFailed("postgres", "EXTERNAL_TOOL_FAILURE")
	sink.RecordBackupCancelled("postgres")

	snapshot := sink.Snapshot()
	require.Contains(t, snapshot.ByStorageType, "postgres")

	m := snapshot.ByStorageType["postgres"]
	assert.Equal(t, int64(3), m.Started)
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(1), m.Cancelled)
	assert.Equal(t, int64(1), m.FailuresByType["EXTERNAL_TOOL_FAILURE"])
	assert.InDelta(t, 0.5, m.SuccessRate, 0.001)
}

func TestInProcessMetricsSink_SizeAndDurationAggregation(t *testing.T) {
	sink := NewInProcessMetricsSink()

	sink.RecordBackupCompleted("mysql", 100, 10.0)
	sink.RecordBackupCompleted("mysql", 300, 30.0)

	m := sink.Snapshot().ByStorageType["mysql"]
	assert.Equal(t, int64(400), m.TotalBytes)
	assert.Equal(t, int64(100), m.MinBytes)
	assert.Equal(t, int64(300), m.MaxBytes)
	assert.Equal(t, int64(200), m.AverageBytes)
	assert.InDelta(t, 40.0, m.TotalDurationSeconds, 0.001)
	assert.InDelta(t, 10.0, m.MinDurationSeconds, 0.001)
	assert.InDelta(t, 30.0, m.MaxDurationSeconds, 0.001)
	assert.InDelta(t, 20.0, m.AverageDurationSeconds, 0.001)
}

func TestInProcessMetricsSink_HistogramBuckets(t *testing.T) {
	sink := NewInProcessMetricsSink()

	// 10s and 45s land in the first two duration buckets, 2h in the last
	sink.RecordBackupCompleted("postgres", 5<<20, 10.0)
	sink.RecordBackupCompleted("postgres", 50<<20, 45.0)
	sink.RecordBackupCompleted("postgres", 20<<30, 7200.0)

	m := sink.Snapshot().ByStorageType["postgres"]

	require.Len(t, m.DurationBuckets, len(durationBucketBounds)+1)
	assert.Equal(t, int64(1), m.DurationBuckets[0])
	assert.Equal(t, int64(1), m.DurationBuckets[1])
	assert.Equal(t, int64(1), m.DurationBuckets[len(durationBucketBounds)])

	require.Len(t, m.SizeBuckets, len(sizeBucketBounds)+1)
	assert.Equal(t, int64(1), m.SizeBuckets[0])
	assert.Equal(t, int64(1), m.SizeBuckets[1])
	assert.Equal(t, int64(1), m.SizeBuckets[len(sizeBucketBounds)])
}

func TestInProcessMetricsSink_RestoreAndVerification(t *testing.T) {
	sink := NewInProcessMetricsSink()

	sink.RecordRestore("postgres", true, 12.0)
	sink.RecordRestore("postgres", false, 3.0)
	sink.RecordVerification("postgres", VerificationTypeChecksum, true)
	sink.RecordVerification("postgres", VerificationTypeRestoreTest, false)

	m := sink.Snapshot().ByStorageType["postgres"]
	assert.Equal(t, int64(1), m.RestoresSucceeded)
	assert.Equal(t, int64(1), m.RestoresFailed)
	assert.Equal(t, int64(1), m.VerificationsPassed)
	assert.Equal(t, int64(1), m.VerificationsFailed)
}

func TestInProcessMetricsSink_RetentionAndQueueDepth(t *testing.T) {
	sink := NewInProcessMetricsSink()

	sink.RecordRetentionDeleted("mysql", 4)
	sink.RecordRetentionDeleted("mysql", 0)
	sink.RecordRetentionDeleted("mysql", -2)

	sink.RecordQueueDepth(3)
	sink.RecordQueueDepth(7)
	sink.RecordQueueDepth(1)

	snapshot := sink.Snapshot()
	assert.Equal(t, int64(4), snapshot.ByStorageType["mysql"].RetentionDeleted)
	assert.Equal(t, 1, snapshot.QueueDepth)
	assert.Equal(t, 7, snapshot.MaxQueueDepth)
}

func TestInProcessMetricsSink_UnknownStorageType(t *testing.T) {
	sink := NewInProcessMetricsSink()

	sink.RecordBackupStarted("")

	snapshot := sink.Snapshot()
	require.Contains(t, snapshot.ByStorageType, "unknown")
	assert.Equal(t, int64(1), snapshot.ByStorageType["unknown"].Started)
}

func TestInProcessMetricsSink_SnapshotIsACopy(t *testing.T) {
	sink := NewInProcessMetricsSink()
	sink.RecordBackupCompleted("postgres", 100, 1.0)

	first := sink.Snapshot()
	first.ByStorageType["postgres"].Completed = 99
	first.ByStorageType["postgres"].DurationBuckets[0] = 99

	second := sink.Snapshot()
	assert.Equal(t, int64(1), second.ByStorageType["postgres"].Completed)
	assert.Equal(t, int64(1), second.ByStorageType["postgres"].DurationBuckets[0])
}

func TestInProcessMetricsSink_ConcurrentRecording(t *testing.T) {
	sink := NewInProcessMetricsSink()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sink.RecordBackupStarted("postgres")
				sink.RecordBackupCompleted("postgres", 1024, 1.0)
				sink.RecordQueueDepth(j)
			}
		}()
	}
	wg.Wait()

	m := sink.Snapshot().ByStorageType["postgres"]
	assert.Equal(t, int64(800), m.Started)
	assert.Equal(t, int64(800), m.Completed)
}

func TestNopMetricsSink_ImplementsInterface(t *testing.T) {
	var sink MetricsSink = NopMetricsSink{}

	// All observations are discarded without panicking
	sink.RecordBackupStarted("postgres")
	sink.RecordBackupCompleted("postgres", 1, 1.0)
	sink.RecordBackupFailed("postgres", "TIMEOUT")
	sink.RecordBackupCancelled("postgres")
	sink.RecordRestore("postgres", true, 1.0)
	sink.RecordVerification("postgres", VerificationTypeChecksum, true)
	sink.RecordRetentionDeleted("postgres", 1)
	sink.RecordQueueDepth(1)
}

func TestInProcessMetricsSink_ImplementsInterface(t *testing.T) {
	var _ MetricsSink = NewInProcessMetricsSink()
}
