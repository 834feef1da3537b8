package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSDestination stores backup artifacts in a Google Cloud Storage bucket
// under <prefix><backup-id>/<artifact>
type GCSDestination struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSDestination creates a handler for the configured bucket. Without a
// credentials path the client falls back to application default credentials.
func NewGCSDestination(ctx context.Context, config *GCSDestinationConfig, prefix string) (*GCSDestination, error) {
	if config == nil {
		return nil, NewValidationError("GCS destination configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid GCS destination configuration", err)
	}

	var client *storage.Client
	var err error

	if config.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(config.CredentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSDestination{
		client:     client,
		bucketName: config.Bucket,
		prefix:     normalizeObjectPrefix(prefix),
	}, nil
}

// Upload streams the artifacts into the bucket and returns their object URIs
func (gd *GCSDestination) Upload(ctx context.Context, backupID string, files []string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	objects, err := expandArtifacts(files)
	if err != nil {
		return nil, err
	}

	bucket := gd.client.Bucket(gd.bucketName)

	stored := make([]string, 0, len(objects))
	for _, object := range objects {
		name := gd.backupObjectName(backupID) + "/" + object.Name

		if err := gd.uploadObject(ctx, bucket, object.LocalPath, name, backupID); err != nil {
			return nil, err
		}
		stored = append(stored, fmt.Sprintf("gs://%s/%s", gd.bucketName, name))
	}

	return stored, nil
}

// Download fetches every stored artifact of the backup into destDir and
// returns the local paths
func (gd *GCSDestination) Download(ctx context.Context, backupID string, destDir string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	names, err := gd.listBackupObjects(ctx, backupID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found in GCS", backupID), nil)
	}

	bucket := gd.client.Bucket(gd.bucketName)
	objectPrefix := gd.backupObjectName(backupID) + "/"

	restored := make([]string, 0, len(names))
	for _, name := range names {
		target := filepath.Join(destDir, filepath.FromSlash(strings.TrimPrefix(name, objectPrefix)))

		reader, err := bucket.Object(name).NewReader(ctx)
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to download object %s from GCS", name), err)
		}

		err = writeStreamToFile(reader, target)
		reader.Close()
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to write artifact %s", target), err)
		}
		restored = append(restored, target)
	}

	return restored, nil
}

// Delete removes every object belonging to the backup
func (gd *GCSDestination) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	names, err := gd.listBackupObjects(ctx, backupID)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return NewNotFoundError(fmt.Sprintf("backup %s not found in GCS", backupID), nil)
	}

	bucket := gd.client.Bucket(gd.bucketName)
	for _, name := range names {
		if err := bucket.Object(name).Delete(ctx); err != nil {
			return NewStorageError(fmt.Sprintf("failed to delete object %s", name), err)
		}
	}

	return nil
}

// HealthCheck verifies the bucket is reachable and listable
func (gd *GCSDestination) HealthCheck(ctx context.Context) error {
	bucket := gd.client.Bucket(gd.bucketName)

	if _, err := bucket.Attrs(ctx); err != nil {
		return NewStorageError("GCS health check failed: bucket not accessible", err)
	}

	it := bucket.Objects(ctx, &storage.Query{Prefix: gd.prefix})
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return NewStorageError("GCS health check failed: cannot list objects", err)
	}

	return nil
}

// GetBucketName returns the bucket name
func (gd *GCSDestination) GetBucketName() string {
	return gd.bucketName
}

// GetPrefix returns the object prefix in use
func (gd *GCSDestination) GetPrefix() string {
	return gd.prefix
}

// Close releases the GCS client
func (gd *GCSDestination) Close() error {
	return gd.client.Close()
}

// backupObjectName returns the object name prefix for one backup, without a
// trailing slash
func (gd *GCSDestination) backupObjectName(backupID string) string {
	return gd.prefix + sanitizeBackupID(backupID)
}

// listBackupObjects returns every object name stored for the backup
func (gd *GCSDestination) listBackupObjects(ctx context.Context, backupID string) ([]string, error) {
	bucket := gd.client.Bucket(gd.bucketName)
	it := bucket.Objects(ctx, &storage.Query{Prefix: gd.backupObjectName(backupID) + "/"})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, NewStorageError("failed to list backup objects in GCS", err)
		}
		names = append(names, attrs.Name)
	}

	return names, nil
}

// uploadObject streams one local file into a bucket object
func (gd *GCSDestination) uploadObject(ctx context.Context, bucket *storage.BucketHandle, localPath, name, backupID string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to open artifact %s", localPath), err)
	}
	defer f.Close()

	writer := bucket.Object(name).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.Metadata = map[string]string{
		"backup-id": backupID,
	}

	if _, err := io.Copy(writer, f); err != nil {
		writer.Close()
		return NewStorageError(fmt.Sprintf("failed to write artifact %s to GCS", name), err)
	}

	// Close finalizes the upload; errors surface here, not in Write
	if err := writer.Close(); err != nil {
		return NewStorageError(fmt.Sprintf("failed to upload artifact %s to GCS", name), err)
	}

	return nil
}
