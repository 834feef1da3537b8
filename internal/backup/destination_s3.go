package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Destination stores backup artifacts in an Amazon S3 bucket under
// <prefix><backup-id>/<artifact>
type S3Destination struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Destination creates a handler for the configured bucket. An empty
// prefix falls back to the default backup prefix.
func NewS3Destination(config *S3DestinationConfig, prefix string) (*S3Destination, error) {
	if config == nil {
		return nil, NewValidationError("S3 destination configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid S3 destination configuration", err)
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"", // token
		),
	})
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3Destination{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: normalizeObjectPrefix(prefix),
	}, nil
}

// Upload streams the artifacts into the bucket and returns their object URIs
func (s3d *S3Destination) Upload(ctx context.Context, backupID string, files []string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	objects, err := expandArtifacts(files)
	if err != nil {
		return nil, err
	}

	stored := make([]string, 0, len(objects))
	for _, object := range objects {
		key := s3d.backupKey(backupID) + "/" + object.Name

		f, err := os.Open(object.LocalPath)
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to open artifact %s", object.Name), err)
		}

		_, err = s3d.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s3d.bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String("application/octet-stream"),
			Metadata: map[string]*string{
				"backup-id": aws.String(backupID),
			},
		})
		f.Close()
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to upload artifact %s to S3", object.Name), err)
		}

		stored = append(stored, fmt.Sprintf("s3://%s/%s", s3d.bucket, key))
	}

	return stored, nil
}

// Download fetches every stored artifact of the backup into destDir and
// returns the local paths
func (s3d *S3Destination) Download(ctx context.Context, backupID string, destDir string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	keys, err := s3d.listBackupKeys(ctx, backupID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found in S3", backupID), nil)
	}

	objectPrefix := s3d.backupKey(backupID) + "/"

	restored := make([]string, 0, len(keys))
	for _, key := range keys {
		target := filepath.Join(destDir, filepath.FromSlash(strings.TrimPrefix(key, objectPrefix)))
		if err := s3d.downloadObject(ctx, key, target); err != nil {
			return nil, err
		}
		restored = append(restored, target)
	}

	return restored, nil
}

// Delete removes every object belonging to the backup
func (s3d *S3Destination) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	keys, err := s3d.listBackupKeys(ctx, backupID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return NewNotFoundError(fmt.Sprintf("backup %s not found in S3", backupID), nil)
	}

	objects := make([]*s3.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(key)})
	}

	_, err = s3d.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s3d.bucket),
		Delete: &s3.Delete{Objects: objects},
	})
	if err != nil {
		return NewStorageError("failed to delete backup objects from S3", err)
	}

	return nil
}

// HealthCheck verifies the bucket is reachable and listable
func (s3d *S3Destination) HealthCheck(ctx context.Context) error {
	_, err := s3d.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s3d.bucket),
	})
	if err != nil {
		return NewStorageError("S3 health check failed: bucket not accessible", err)
	}

	_, err = s3d.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s3d.bucket),
		Prefix:  aws.String(s3d.prefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return NewStorageError("S3 health check failed: cannot list objects", err)
	}

	return nil
}

// GetBucket returns the bucket name
func (s3d *S3Destination) GetBucket() string {
	return s3d.bucket
}

// GetPrefix returns the object prefix in use
func (s3d *S3Destination) GetPrefix() string {
	return s3d.prefix
}

// backupKey returns the object key prefix for one backup, without a
// trailing slash
func (s3d *S3Destination) backupKey(backupID string) string {
	return s3d.prefix + sanitizeBackupID(backupID)
}

// listBackupKeys returns every object key stored for the backup
func (s3d *S3Destination) listBackupKeys(ctx context.Context, backupID string) ([]string, error) {
	var keys []string

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s3d.bucket),
		Prefix: aws.String(s3d.backupKey(backupID) + "/"),
	}

	err := s3d.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	if err != nil {
		return nil, NewStorageError("failed to list backup objects in S3", err)
	}

	return keys, nil
}

// downloadObject streams one object to a local file
func (s3d *S3Destination) downloadObject(ctx context.Context, key, target string) error {
	result, err := s3d.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to download object %s from S3", key), err)
	}
	defer result.Body.Close()

	if err := writeStreamToFile(result.Body, target); err != nil {
		return NewStorageError(fmt.Sprintf("failed to write artifact %s", target), err)
	}

	return nil
}
