package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3Destination_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  *S3DestinationConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: &S3DestinationConfig{
				Bucket:    "test-bucket",
				Region:    "us-east-1",
				AccessKey: "test-access-key",
				SecretKey: "test-secret-key",
			},
			wantErr: false,
		},
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "missing bucket",
			config: &S3DestinationConfig{
				Region:    "us-east-1",
				AccessKey: "test-access-key",
				SecretKey: "test-secret-key",
			},
			wantErr: true,
		},
		{
			name: "missing region",
			config: &S3DestinationConfig{
				Bucket:    "test-bucket",
				AccessKey: "test-access-key",
				SecretKey: "test-secret-key",
			},
			wantErr: true,
		},
		{
			name: "missing credentials",
			config: &S3DestinationConfig{
				Bucket: "test-bucket",
				Region: "us-east-1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := NewS3Destination(tt.config, "")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsErrorType(err, BackupErrorTypeValidation))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "test-bucket", dest.GetBucket())
			assert.Equal(t, "backups/", dest.GetPrefix())
		})
	}
}

func TestNewAzureDestination_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  *AzureDestinationConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: &AzureDestinationConfig{
				AccountName:   "testaccount",
				AccountKey:    "dGVzdC1hY2NvdW50LWtleQ==",
				ContainerName: "test-container",
			},
			wantErr: false,
		},
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "missing account name",
			config: &AzureDestinationConfig{
				AccountKey:    "dGVzdC1hY2NvdW50LWtleQ==",
				ContainerName: "test-container",
			},
			wantErr: true,
		},
		{
			name: "missing container name",
			config: &AzureDestinationConfig{
				AccountName: "testaccount",
				AccountKey:  "dGVzdC1hY2NvdW50LWtleQ==",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := NewAzureDestination(tt.config, "archive")
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "test-container", dest.GetContainerName())
			assert.Equal(t, "archive/", dest.GetPrefix())
		})
	}
}

func TestNewGCSDestination_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config", func(t *testing.T) {
		_, err := NewGCSDestination(ctx, nil, "")
		require.Error(t, err)
		assert.True(t, IsErrorType(err, BackupErrorTypeValidation))
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewGCSDestination(ctx, &GCSDestinationConfig{
			CredentialsPath: "/path/to/credentials.json",
			ProjectID:       "test-project",
		}, "")
		require.Error(t, err)
		assert.True(t, IsErrorType(err, BackupErrorTypeValidation))
	})

	t.Run("unreadable credentials file", func(t *testing.T) {
		// Validation passes but the client cannot load the credentials
		_, err := NewGCSDestination(ctx, &GCSDestinationConfig{
			Bucket:          "test-bucket",
			CredentialsPath: "/does/not/exist.json",
			ProjectID:       "test-project",
		}, "")
		require.Error(t, err)
		assert.True(t, IsErrorType(err, BackupErrorTypeStorage))
	})
}

func TestS3Destination_BackupKey(t *testing.T) {
	dest := &S3Destination{bucket: "b", prefix: "backups/"}

	assert.Equal(t, "backups/job-1", dest.backupKey("job-1"))
	assert.Equal(t, "backups/job_1", dest.backupKey("job 1"))
}

func TestAzureDestination_BackupBlobName(t *testing.T) {
	dest := &AzureDestination{containerName: "c", prefix: "archive/"}

	assert.Equal(t, "archive/job-1", dest.backupBlobName("job-1"))
}

func TestGCSDestination_BackupObjectName(t *testing.T) {
	dest := &GCSDestination{bucketName: "b", prefix: "backups/"}

	assert.Equal(t, "backups/job-1", dest.backupObjectName("job-1"))
	assert.Equal(t, "backups/job_1", dest.backupObjectName("job\\1"))
}
