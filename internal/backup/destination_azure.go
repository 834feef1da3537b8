package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureDestination stores backup artifacts in an Azure Blob Storage
// container under <prefix><backup-id>/<artifact>
type AzureDestination struct {
	serviceURL    azblob.ServiceURL
	containerName string
	prefix        string
}

// NewAzureDestination creates a handler for the configured container
func NewAzureDestination(config *AzureDestinationConfig, prefix string) (*AzureDestination, error) {
	if config == nil {
		return nil, NewValidationError("Azure destination configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid Azure destination configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureDestination{
		serviceURL:    azblob.NewServiceURL(*serviceURL, pipeline),
		containerName: config.ContainerName,
		prefix:        normalizeObjectPrefix(prefix),
	}, nil
}

// Upload streams the artifacts into the container and returns their blob
// URIs
func (ad *AzureDestination) Upload(ctx context.Context, backupID string, files []string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	objects, err := expandArtifacts(files)
	if err != nil {
		return nil, err
	}

	containerURL := ad.serviceURL.NewContainerURL(ad.containerName)

	stored := make([]string, 0, len(objects))
	for _, object := range objects {
		blobName := ad.backupBlobName(backupID) + "/" + object.Name

		f, err := os.Open(object.LocalPath)
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to open artifact %s", object.Name), err)
		}

		blobURL := containerURL.NewBlockBlobURL(blobName)
		_, err = azblob.UploadFileToBlockBlob(ctx, f, blobURL, azblob.UploadToBlockBlobOptions{
			BlockSize:   4 * 1024 * 1024, // 4MB blocks
			Parallelism: 16,
			Metadata: azblob.Metadata{
				"backup_id": backupID,
			},
			BlobHTTPHeaders: azblob.BlobHTTPHeaders{
				ContentType: "application/octet-stream",
			},
		})
		f.Close()
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to upload artifact %s to Azure", object.Name), err)
		}

		stored = append(stored, fmt.Sprintf("azure://%s/%s", ad.containerName, blobName))
	}

	return stored, nil
}

// Download fetches every stored artifact of the backup into destDir and
// returns the local paths
func (ad *AzureDestination) Download(ctx context.Context, backupID string, destDir string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	names, err := ad.listBackupBlobs(ctx, backupID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found in Azure", backupID), nil)
	}

	containerURL := ad.serviceURL.NewContainerURL(ad.containerName)
	blobPrefix := ad.backupBlobName(backupID) + "/"

	restored := make([]string, 0, len(names))
	for _, name := range names {
		target := filepath.Join(destDir, filepath.FromSlash(strings.TrimPrefix(name, blobPrefix)))

		blobURL := containerURL.NewBlockBlobURL(name)
		response, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to download blob %s from Azure", name), err)
		}

		body := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
		err = writeStreamToFile(body, target)
		body.Close()
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to write artifact %s", target), err)
		}
		restored = append(restored, target)
	}

	return restored, nil
}

// Delete removes every blob belonging to the backup
func (ad *AzureDestination) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	names, err := ad.listBackupBlobs(ctx, backupID)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return NewNotFoundError(fmt.Sprintf("backup %s not found in Azure", backupID), nil)
	}

	containerURL := ad.serviceURL.NewContainerURL(ad.containerName)
	for _, name := range names {
		blobURL := containerURL.NewBlockBlobURL(name)
		if _, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
			return NewStorageError(fmt.Sprintf("failed to delete blob %s", name), err)
		}
	}

	return nil
}

// HealthCheck verifies the container is reachable and listable
func (ad *AzureDestination) HealthCheck(ctx context.Context) error {
	containerURL := ad.serviceURL.NewContainerURL(ad.containerName)

	if _, err := containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{}); err != nil {
		return NewStorageError("Azure health check failed: container not accessible", err)
	}

	_, err := containerURL.ListBlobsFlatSegment(ctx, azblob.Marker{}, azblob.ListBlobsSegmentOptions{
		Prefix:     ad.prefix,
		MaxResults: 1,
	})
	if err != nil {
		return NewStorageError("Azure health check failed: cannot list blobs", err)
	}

	return nil
}

// GetContainerName returns the container name
func (ad *AzureDestination) GetContainerName() string {
	return ad.containerName
}

// GetPrefix returns the blob prefix in use
func (ad *AzureDestination) GetPrefix() string {
	return ad.prefix
}

// backupBlobName returns the blob name prefix for one backup, without a
// trailing slash
func (ad *AzureDestination) backupBlobName(backupID string) string {
	return ad.prefix + sanitizeBackupID(backupID)
}

// listBackupBlobs returns every blob name stored for the backup
func (ad *AzureDestination) listBackupBlobs(ctx context.Context, backupID string) ([]string, error) {
	containerURL := ad.serviceURL.NewContainerURL(ad.containerName)

	var names []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		response, err := containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: ad.backupBlobName(backupID) + "/",
		})
		if err != nil {
			return nil, NewStorageError("failed to list backup blobs in Azure", err)
		}

		for _, blob := range response.Segment.BlobItems {
			names = append(names, blob.Name)
		}

		marker = response.NextMarker
	}

	return names, nil
}
