package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"backup-orchestrator/internal/logging"
)

// historyMetadataFile is the per-backup document name inside the store
const historyMetadataFile = "metadata.json"

// FileHistoryStore persists one JSON metadata document per backup under a
// root directory and keeps a write-through in-memory cache so reads never
// touch the disk. The cache is loaded once at construction; the store
// assumes it is the only writer of its root directory.
type FileHistoryStore struct {
	basePath string
	logger   *logging.Logger

	mu    sync.RWMutex
	cache map[string]*BackupMetadata
}

// NewFileHistoryStore opens (or creates) the store rooted at basePath and
// loads all existing records into the cache. Records that cannot be parsed
// are skipped with a warning so one corrupt file does not take down the
// whole history.
func NewFileHistoryStore(basePath string, logger *logging.Logger) (*FileHistoryStore, error) {
	if basePath == "" {
		return nil, NewValidationError("history store path is required", nil)
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to create history directory %s", basePath), err)
	}

	store := &FileHistoryStore{
		basePath: basePath,
		logger:   logger,
		cache:    make(map[string]*BackupMetadata),
	}

	if err := store.loadCache(); err != nil {
		return nil, err
	}

	return store, nil
}

// Save writes the metadata document to disk and updates the cache. The
// document is written to a temporary file first and renamed into place so a
// crash mid-write never leaves a truncated record.
func (fhs *FileHistoryStore) Save(meta *BackupMetadata) error {
	if meta == nil {
		return NewValidationError("metadata cannot be nil", nil)
	}
	if err := meta.Validate(); err != nil {
		return NewValidationError("invalid backup metadata", err)
	}

	data, err := meta.ToJSON()
	if err != nil {
		return NewStorageError("failed to serialize backup metadata", err)
	}

	fhs.mu.Lock()
	defer fhs.mu.Unlock()

	dir := fhs.recordDirectory(meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return NewStorageError("failed to create history record directory", err)
	}

	finalPath := filepath.Join(dir, historyMetadataFile)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return NewStorageError("failed to write history record", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return NewStorageError("failed to finalize history record", err)
	}

	fhs.cache[meta.ID] = meta.Clone()
	return nil
}

// Get returns a copy of one record from the cache
func (fhs *FileHistoryStore) Get(backupID string) (*BackupMetadata, error) {
	if backupID == "" {
		return nil, NewValidationError("backup ID cannot be empty", nil)
	}

	fhs.mu.RLock()
	defer fhs.mu.RUnlock()

	meta, ok := fhs.cache[backupID]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("backup %s not found in history", backupID), nil)
	}
	return meta.Clone(), nil
}

// List returns copies of all records, newest first
func (fhs *FileHistoryStore) List() ([]*BackupMetadata, error) {
	fhs.mu.RLock()
	defer fhs.mu.RUnlock()

	records := make([]*BackupMetadata, 0, len(fhs.cache))
	for _, meta := range fhs.cache {
		records = append(records, meta.Clone())
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})

	return records, nil
}

// Delete removes one record from disk and the cache
func (fhs *FileHistoryStore) Delete(backupID string) error {
	if backupID == "" {
		return NewValidationError("backup ID cannot be empty", nil)
	}

	fhs.mu.Lock()
	defer fhs.mu.Unlock()

	if _, ok := fhs.cache[backupID]; !ok {
		return NewNotFoundError(fmt.Sprintf("backup %s not found in history", backupID), nil)
	}

	if err := os.RemoveAll(fhs.recordDirectory(backupID)); err != nil {
		return NewStorageError("failed to delete history record", err)
	}

	delete(fhs.cache, backupID)
	return nil
}

// Close releases the store. The file-backed implementation holds no open
// handles, so this only exists to satisfy the interface.
func (fhs *FileHistoryStore) Close() error {
	return nil
}

// Count returns the number of cached records
func (fhs *FileHistoryStore) Count() int {
	fhs.mu.RLock()
	defer fhs.mu.RUnlock()
	return len(fhs.cache)
}

// GetBasePath returns the store's root directory
func (fhs *FileHistoryStore) GetBasePath() string {
	return fhs.basePath
}

// recordDirectory returns the directory holding one backup's document,
// sanitized against path traversal
func (fhs *FileHistoryStore) recordDirectory(backupID string) string {
	return filepath.Join(fhs.basePath, sanitizeBackupID(backupID))
}

// loadCache scans the root directory and fills the cache
func (fhs *FileHistoryStore) loadCache() error {
	entries, err := os.ReadDir(fhs.basePath)
	if err != nil {
		return NewStorageError("failed to scan history directory", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(fhs.basePath, entry.Name(), historyMetadataFile)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) && fhs.logger != nil {
				fhs.logger.WithFields(map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				}).Warn("Skipping unreadable history record")
			}
			continue
		}

		var meta BackupMetadata
		if err := meta.FromJSON(data); err != nil {
			if fhs.logger != nil {
				fhs.logger.WithFields(map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				}).Warn("Skipping corrupt history record")
			}
			continue
		}

		fhs.cache[meta.ID] = &meta
	}

	return nil
}
