package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageUsage_EmptyReport(t *testing.T) {
	cfg := testBackupConfig(t, "postgres")
	o := startTestOrchestrator(t, cfg)

	report := o.StorageUsage()
	assert.Zero(t, report.TotalBackups)
	assert.Zero(t, report.TotalSize)
	assert.Zero(t, report.CompressionRatio)
	assert.Nil(t, report.LargestBackup)
	assert.Empty(t, report.ByStorageType)
	assert.Empty(t, report.ByAge)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestStorageUsage_AggregatesCompletedBackups(t *testing.T) {
	cfg := testBackupConfig(t, "postgres", "mysql")
	store, err := NewFileHistoryStore(cfg.Global.HistoryDir, newQuietLogger(t))
	require.NoError(t, err)

	now := time.Now().UTC()
	fresh := newTestMetadata("backup-fresh", now.Add(-2*time.Hour))
	fresh.Size = 4000
	fresh.CompressedSize = 1000

	weekOld := newTestMetadata("backup-week", now.Add(-3*24*time.Hour))
	weekOld.Size = 2000
	weekOld.CompressedSize = 500

	monthOld := newTestMetadata("backup-month", now.Add(-20*24*time.Hour))
	monthOld.Size = 1000
	monthOld.CompressedSize = 0
	monthOld.Compression = CompressionTypeNone

	ancient := newTestMetadata("backup-ancient", now.Add(-90*24*time.Hour))
	ancient.StorageType = "mysql"
	ancient.Size = 3000
	ancient.CompressedSize = 1500

	failed := newTestMetadata("backup-broken", now.Add(-time.Hour))
	failed.Status = JobStatusFailed

	for _, meta := range []*BackupMetadata{fresh, weekOld, monthOld, ancient, failed} {
		require.NoError(t, store.Save(meta))
	}

	o, err := NewOrchestratorWithDependencies(cfg, newQuietLogger(t), store, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})

	report := o.StorageUsage()
	assert.Equal(t, 4, report.TotalBackups, "failed backups do not count")
	assert.Equal(t, int64(10000), report.TotalSize)
	assert.Equal(t, int64(4000), report.TotalStoredSize, "uncompressed backups contribute their raw size")
	assert.InDelta(t, 0.4, report.CompressionRatio, 1e-9)
	assert.Equal(t, int64(2500), report.AverageBackupSize)
	require.NotNil(t, report.LargestBackup)
	assert.Equal(t, "backup-fresh", report.LargestBackup.ID)
	require.NotNil(t, report.SmallestBackup)
	assert.Equal(t, "backup-month", report.SmallestBackup.ID)

	require.Contains(t, report.ByStorageType, "postgres")
	pg := report.ByStorageType["postgres"]
	assert.Equal(t, 3, pg.BackupCount)
	assert.Equal(t, int64(7000), pg.TotalSize)
	assert.Equal(t, int64(2500), pg.StoredSize)
	assert.InDelta(t, 2500.0/7000.0, pg.CompressionRatio, 1e-9)
	assert.True(t, pg.OldestBackup.Equal(monthOld.StartTime))
	assert.True(t, pg.NewestBackup.Equal(fresh.StartTime))

	require.Contains(t, report.ByStorageType, "mysql")
	my := report.ByStorageType["mysql"]
	assert.Equal(t, 1, my.BackupCount)
	assert.Equal(t, int64(3000), my.TotalSize)
	assert.InDelta(t, 0.5, my.CompressionRatio, 1e-9)

	// One backup per age bucket
	for _, group := range []string{"daily", "weekly", "monthly", "older"} {
		require.Contains(t, report.ByAge, group)
		assert.Equal(t, 1, report.ByAge[group].BackupCount, group)
	}
	assert.Equal(t, int64(4000), report.ByAge["daily"].TotalSize)
	assert.Equal(t, int64(1500), report.ByAge["older"].StoredSize)
}

func TestAgeGroupFor(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{2 * time.Hour, "daily"},
		{24 * time.Hour, "daily"},
		{25 * time.Hour, "weekly"},
		{6 * 24 * time.Hour, "weekly"},
		{10 * 24 * time.Hour, "monthly"},
		{30 * 24 * time.Hour, "monthly"},
		{31 * 24 * time.Hour, "older"},
		{365 * 24 * time.Hour, "older"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ageGroupFor(tt.age), "age %s", tt.age)
	}
}

func TestCheckDestinations_ReportsPerDestination(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-directory")
	require.NoError(t, os.WriteFile(blocker, []byte("occupied"), 0644))

	cfg := testBackupConfig(t, "postgres")
	cfg.Destinations = append(cfg.Destinations, BackupDestination{
		Type:  DestinationTypeLocal,
		Local: &LocalDestinationConfig{BasePath: blocker},
	})
	o := startTestOrchestrator(t, cfg)

	report := o.CheckDestinations(context.Background())
	require.Len(t, report.Destinations, 2)
	assert.False(t, report.OverallHealthy)
	assert.False(t, report.GeneratedAt.IsZero())

	healthy := report.Destinations[0]
	assert.Equal(t, DestinationTypeLocal, healthy.Type)
	assert.True(t, healthy.Healthy)
	assert.Empty(t, healthy.Error)
	assert.NotEmpty(t, healthy.Target)

	broken := report.Destinations[1]
	assert.False(t, broken.Healthy)
	assert.NotEmpty(t, broken.Error)
	assert.Equal(t, blocker, broken.Target)
}

func TestCheckDestinations_AllHealthy(t *testing.T) {
	cfg := testBackupConfig(t, "postgres")
	o := startTestOrchestrator(t, cfg)

	report := o.CheckDestinations(context.Background())
	require.Len(t, report.Destinations, 1)
	assert.True(t, report.OverallHealthy)
	assert.True(t, report.Destinations[0].Healthy)
}

func TestDescribeDestination(t *testing.T) {
	tests := []struct {
		name string
		dest BackupDestination
		want string
	}{
		{
			name: "local base path",
			dest: BackupDestination{Type: DestinationTypeLocal, Local: &LocalDestinationConfig{BasePath: "/var/backups"}},
			want: "/var/backups",
		},
		{
			name: "local shorthand path",
			dest: BackupDestination{Type: DestinationTypeLocal, Path: "/mnt/backups"},
			want: "/mnt/backups",
		},
		{
			name: "s3 bucket",
			dest: BackupDestination{Type: DestinationTypeS3, Path: "nightly", S3: &S3DestinationConfig{Bucket: "acme-backups"}},
			want: "s3://acme-backups/nightly",
		},
		{
			name: "azure container",
			dest: BackupDestination{Type: DestinationTypeAzure, Path: "nightly", Azure: &AzureDestinationConfig{ContainerName: "backups"}},
			want: "azure://backups/nightly",
		},
		{
			name: "gcs bucket",
			dest: BackupDestination{Type: DestinationTypeGCS, Path: "nightly", GCS: &GCSDestinationConfig{Bucket: "acme-backups"}},
			want: "gs://acme-backups/nightly",
		},
		{
			name: "missing provider config falls back to type",
			dest: BackupDestination{Type: DestinationTypeS3},
			want: string(DestinationTypeS3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeDestination(&tt.dest))
		})
	}
}
