package backup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalDestination stores backup artifacts on the local file system under
// one directory per backup ID
type LocalDestination struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalDestination creates a handler rooted at the configured base path.
// A non-empty subPath is appended below the base path so several logical
// destinations can share one mount.
func NewLocalDestination(config *LocalDestinationConfig, subPath string) (*LocalDestination, error) {
	if config == nil {
		return nil, NewValidationError("local destination configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid local destination configuration", err)
	}

	basePath := config.BasePath
	if subPath != "" {
		basePath = filepath.Join(basePath, subPath)
	}

	destination := &LocalDestination{
		basePath:    basePath,
		permissions: config.Permissions,
	}

	if err := destination.ensureBaseDirectory(); err != nil {
		return nil, NewStorageError("failed to create base directory", err)
	}

	return destination, nil
}

// Upload copies the artifacts into the backup's directory and returns the
// stored paths
func (ld *LocalDestination) Upload(ctx context.Context, backupID string, files []string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	objects, err := expandArtifacts(files)
	if err != nil {
		return nil, err
	}

	backupDir := ld.backupDirectory(backupID)
	if err := os.MkdirAll(backupDir, ld.permissions); err != nil {
		return nil, NewStorageError("failed to create backup directory", err)
	}

	stored := make([]string, 0, len(objects))
	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return nil, NewCancelledError("upload cancelled", err)
		}

		target := filepath.Join(backupDir, filepath.FromSlash(object.Name))
		if err := copyArtifactFile(object.LocalPath, target, 0644); err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to store artifact %s", object.Name), err)
		}
		stored = append(stored, target)
	}

	return stored, nil
}

// Download copies every stored artifact of the backup into destDir,
// preserving relative paths, and returns the local paths
func (ld *LocalDestination) Download(ctx context.Context, backupID string, destDir string) ([]string, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	backupDir := ld.backupDirectory(backupID)
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), err)
	}

	var restored []string
	err := filepath.WalkDir(backupDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(backupDir, path)
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, rel)
		if err := copyArtifactFile(path, target, 0644); err != nil {
			return err
		}
		restored = append(restored, target)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewCancelledError("download cancelled", err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to retrieve backup %s", backupID), err)
	}

	return restored, nil
}

// Delete removes the backup's directory and everything in it
func (ld *LocalDestination) Delete(ctx context.Context, backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	backupDir := ld.backupDirectory(backupID)
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return NewNotFoundError(fmt.Sprintf("backup %s not found", backupID), err)
	}

	if err := os.RemoveAll(backupDir); err != nil {
		return NewStorageError("failed to delete backup directory", err)
	}

	return nil
}

// HealthCheck verifies the base directory is writable and readable
func (ld *LocalDestination) HealthCheck(ctx context.Context) error {
	if err := ld.ensureBaseDirectory(); err != nil {
		return NewStorageError("health check failed: base directory is not usable", err)
	}

	testFile := filepath.Join(ld.basePath, ".health_check")

	if err := os.WriteFile(testFile, []byte("health_check"), 0644); err != nil {
		return NewStorageError("health check failed: cannot write to base directory", err)
	}

	if _, err := os.ReadFile(testFile); err != nil {
		return NewStorageError("health check failed: cannot read from base directory", err)
	}

	// A leftover probe file is harmless, so removal failures do not fail
	// the check
	_ = os.Remove(testFile)

	return nil
}

// GetBasePath returns the resolved base path
func (ld *LocalDestination) GetBasePath() string {
	return ld.basePath
}

// GetPermissions returns the directory permissions in use
func (ld *LocalDestination) GetPermissions() os.FileMode {
	return ld.permissions
}

func (ld *LocalDestination) ensureBaseDirectory() error {
	if err := os.MkdirAll(ld.basePath, ld.permissions); err != nil {
		return fmt.Errorf("failed to create base directory %s: %w", ld.basePath, err)
	}
	return nil
}

// backupDirectory returns the directory for one backup, sanitized against
// path traversal
func (ld *LocalDestination) backupDirectory(backupID string) string {
	return filepath.Join(ld.basePath, sanitizeBackupID(backupID))
}
