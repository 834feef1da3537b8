package backup

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validate validates the BackupConfig struct
func (bc *BackupConfig) Validate() error {
	var errors ValidationErrors

	for i := range bc.Storages {
		if err := bc.Storages[i].Validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add(fmt.Sprintf("storages[%d]", i), err.Error(), nil)
			}
		}
	}

	for i := range bc.Destinations {
		if err := bc.Destinations[i].Validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add(fmt.Sprintf("destinations[%d]", i), err.Error(), nil)
			}
		}
	}

	if err := bc.Retention.Validate(); err != nil {
		if validationErrs, ok := err.(ValidationErrors); ok {
			errors = append(errors, validationErrs...)
		} else {
			errors.Add("retention", err.Error(), nil)
		}
	}

	if bc.Schedule.Enabled && bc.Schedule.Expression == "" {
		errors.Add("schedule.expression", "schedule expression is required when scheduling is enabled", bc.Schedule.Expression)
	}

	if bc.Encryption != nil {
		if err := bc.Encryption.Validate(); err != nil {
			errors.Add("encryption", err.Error(), nil)
		}
	}

	if bc.Global.MaxParallelJobs < 0 {
		errors.Add("global.max_parallel_jobs", "max parallel jobs cannot be negative", bc.Global.MaxParallelJobs)
	}

	for _, vt := range bc.Global.VerificationTypes {
		if !isValidVerificationType(vt) {
			errors.Add("global.verification_types", "invalid verification type", vt)
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the StorageBackupConfig struct
func (c *StorageBackupConfig) Validate() error {
	var errors ValidationErrors

	if c.StorageType == "" {
		errors.Add("storage_type", "storage type is required", c.StorageType)
	}

	if c.Kind != "" && !isValidBackupKind(c.Kind) {
		errors.Add("kind", "invalid backup kind", c.Kind)
	}

	if c.Compression != "" && !isValidCompressionType(c.Compression) {
		errors.Add("compression", "invalid compression type", c.Compression)
	}

	if c.CompressionLevel < 0 {
		errors.Add("compression_level", "compression level cannot be negative", c.CompressionLevel)
	}

	if c.ScriptTimeout < 0 {
		errors.Add("script_timeout", "script timeout cannot be negative", c.ScriptTimeout)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the BackupDestination struct
func (d *BackupDestination) Validate() error {
	var errors ValidationErrors

	if !isValidDestinationType(d.Type) {
		errors.Add("type", "invalid destination type", d.Type)
		return errors
	}

	switch d.Type {
	case DestinationTypeLocal:
		if d.Local == nil {
			errors.Add("local", "local destination configuration is required", nil)
		} else if err := d.Local.Validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add("local", err.Error(), nil)
			}
		}
	case DestinationTypeS3:
		if d.S3 == nil {
			errors.Add("s3", "S3 destination configuration is required", nil)
		} else if err := d.S3.Validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add("s3", err.Error(), nil)
			}
		}
	case DestinationTypeAzure:
		if d.Azure == nil {
			errors.Add("azure", "Azure destination configuration is required", nil)
		} else if err := d.Azure.Validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add("azure", err.Error(), nil)
			}
		}
	case DestinationTypeGCS:
		if d.GCS == nil {
			errors.Add("gcs", "GCS destination configuration is required", nil)
		} else if err := d.GCS.Validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add("gcs", err.Error(), nil)
			}
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the LocalDestinationConfig struct
func (lc *LocalDestinationConfig) Validate() error {
	var errors ValidationErrors

	if lc.BasePath == "" {
		errors.Add("base_path", "base path is required for local destinations", lc.BasePath)
	}

	if lc.Permissions == 0 {
		lc.Permissions = 0755 // Set default permissions
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the S3DestinationConfig struct
func (s3c *S3DestinationConfig) Validate() error {
	var errors ValidationErrors

	if s3c.Bucket == "" {
		errors.Add("bucket", "S3 bucket name is required", s3c.Bucket)
	}

	if s3c.Region == "" {
		errors.Add("region", "S3 region is required", s3c.Region)
	}

	if s3c.AccessKey == "" {
		errors.Add("access_key", "S3 access key is required", s3c.AccessKey)
	}

	if s3c.SecretKey == "" {
		errors.Add("secret_key", "S3 secret key is required", s3c.SecretKey)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the AzureDestinationConfig struct
func (ac *AzureDestinationConfig) Validate() error {
	var errors ValidationErrors

	if ac.AccountName == "" {
		errors.Add("account_name", "Azure account name is required", ac.AccountName)
	}

	if ac.AccountKey == "" {
		errors.Add("account_key", "Azure account key is required", ac.AccountKey)
	}

	if ac.ContainerName == "" {
		errors.Add("container_name", "Azure container name is required", ac.ContainerName)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the GCSDestinationConfig struct
func (gc *GCSDestinationConfig) Validate() error {
	var errors ValidationErrors

	if gc.Bucket == "" {
		errors.Add("bucket", "GCS bucket name is required", gc.Bucket)
	}

	if gc.CredentialsPath == "" {
		errors.Add("credentials_path", "GCS credentials path is required", gc.CredentialsPath)
	}

	if gc.ProjectID == "" {
		errors.Add("project_id", "GCS project ID is required", gc.ProjectID)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the RetentionPolicy struct
func (rp *RetentionPolicy) Validate() error {
	var errors ValidationErrors

	if rp.DailyRetentionDays < 0 {
		errors.Add("daily_retention_days", "daily retention cannot be negative", rp.DailyRetentionDays)
	}

	if rp.WeeklyRetentionWeeks < 0 {
		errors.Add("weekly_retention_weeks", "weekly retention cannot be negative", rp.WeeklyRetentionWeeks)
	}

	if rp.MonthlyRetentionMonths < 0 {
		errors.Add("monthly_retention_months", "monthly retention cannot be negative", rp.MonthlyRetentionMonths)
	}

	if rp.MaxBackups < 0 {
		errors.Add("max_backups", "max backups cannot be negative", rp.MaxBackups)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// Validate validates the BackupMetadata struct
func (bm *BackupMetadata) Validate() error {
	var errors ValidationErrors

	if bm.ID == "" {
		errors.Add("id", "backup metadata ID is required", bm.ID)
	}

	if bm.StorageType == "" {
		errors.Add("storage_type", "storage type is required", bm.StorageType)
	}

	if bm.StartTime.IsZero() {
		errors.Add("start_time", "start timestamp is required", bm.StartTime)
	}

	if bm.Size < 0 {
		errors.Add("size", "backup size cannot be negative", bm.Size)
	}

	if bm.CompressedSize < 0 {
		errors.Add("compressed_size", "compressed size cannot be negative", bm.CompressedSize)
	}

	if bm.Compression != "" && !isValidCompressionType(bm.Compression) {
		errors.Add("compression", "invalid compression type", bm.Compression)
	}

	if bm.Status == "" {
		errors.Add("status", "backup status is required", bm.Status)
	} else if !isValidJobStatus(bm.Status) {
		errors.Add("status", "invalid backup status", bm.Status)
	}

	if bm.Kind != "" && !isValidBackupKind(bm.Kind) {
		errors.Add("kind", "invalid backup kind", bm.Kind)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// ToJSON serializes the BackupMetadata to JSON
func (bm *BackupMetadata) ToJSON() ([]byte, error) {
	return json.MarshalIndent(bm, "", "  ")
}

// FromJSON deserializes JSON data into BackupMetadata
func (bm *BackupMetadata) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, bm); err != nil {
		return NewValidationError("failed to unmarshal backup metadata JSON", err)
	}
	return bm.Validate()
}

// Clone returns a deep copy of the metadata
func (bm *BackupMetadata) Clone() *BackupMetadata {
	if bm == nil {
		return nil
	}
	clone := *bm
	if bm.Files != nil {
		clone.Files = append([]string(nil), bm.Files...)
	}
	clone.Checksums = cloneStringMap(bm.Checksums)
	clone.Tags = cloneStringMap(bm.Tags)
	clone.Extra = cloneStringMap(bm.Extra)
	if bm.Destination != nil {
		dest := *bm.Destination
		clone.Destination = &dest
	}
	return &clone
}

// Duration returns the wall-clock time the backup took, or zero while it
// is still running
func (bm *BackupMetadata) Duration() time.Duration {
	if bm.EndTime.IsZero() {
		return 0
	}
	return bm.EndTime.Sub(bm.StartTime)
}

// Clone returns a deep copy of the job so callers can inspect it without
// holding orchestrator locks
func (j *BackupJob) Clone() *BackupJob {
	if j == nil {
		return nil
	}
	clone := *j
	if j.Config != nil {
		cfg := *j.Config
		cfg.PreBackupHooks = append([]string(nil), j.Config.PreBackupHooks...)
		cfg.PostBackupHooks = append([]string(nil), j.Config.PostBackupHooks...)
		cfg.VerificationScripts = append([]string(nil), j.Config.VerificationScripts...)
		cfg.Options = cloneStringMap(j.Config.Options)
		clone.Config = &cfg
	}
	if j.Destination != nil {
		dest := *j.Destination
		clone.Destination = &dest
	}
	if j.Error != nil {
		jobErr := *j.Error
		clone.Error = &jobErr
	}
	clone.Metadata = j.Metadata.Clone()
	return &clone
}

// GenerateJobID generates a unique backup job ID
func GenerateJobID() string {
	// Use UUID v4 for uniqueness with timestamp prefix for sorting
	timestamp := time.Now().UTC().Format("20060102-150405")
	uuid := uuid.New().String()

	// Remove hyphens from UUID and take first 8 characters for brevity
	shortUUID := strings.ReplaceAll(uuid, "-", "")[:8]

	return fmt.Sprintf("backup-%s-%s", timestamp, shortUUID)
}

// GenerateTicketID generates a queue ticket. Tickets identify a queued
// request before a job ID exists and are never valid job IDs.
func GenerateTicketID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	uuid := uuid.New().String()
	shortUUID := strings.ReplaceAll(uuid, "-", "")[:8]

	return fmt.Sprintf("ticket-%s-%s", timestamp, shortUUID)
}

// CalculateDataChecksum calculates a SHA-256 checksum for arbitrary data
func CalculateDataChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// CalculateFileChecksum streams a file through SHA-256 without loading it
// into memory
func CalculateFileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", NewStorageError(fmt.Sprintf("failed to open file for checksum: %s", path), err)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", NewStorageError(fmt.Sprintf("failed to read file for checksum: %s", path), err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// CalculateArtifactChecksum checksums a backup artifact. Directory
// artifacts hash every contained file in sorted path order so the digest
// is stable across filesystems.
func CalculateArtifactChecksum(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", NewStorageError(fmt.Sprintf("failed to stat artifact: %s", path), err)
	}

	if !info.IsDir() {
		return CalculateFileChecksum(path)
	}

	hash := sha256.New()
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		io.WriteString(hash, filepath.ToSlash(rel))

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(hash, f)
		return err
	})
	if err != nil {
		return "", NewStorageError(fmt.Sprintf("failed to checksum directory artifact: %s", path), err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// ArtifactSize returns the artifact size in bytes, summing contained files
// for directory artifacts
func ArtifactSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, NewStorageError(fmt.Sprintf("failed to stat artifact: %s", path), err)
	}

	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	if err != nil {
		return 0, NewStorageError(fmt.Sprintf("failed to size directory artifact: %s", path), err)
	}

	return total, nil
}

// GenerateSecureRandomBytes generates cryptographically secure random bytes
func GenerateSecureRandomBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, NewEncryptionError("failed to generate secure random bytes", err)
	}
	return bytes, nil
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	clone := make(map[string]string, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Helper functions for validation

func isValidCompressionType(ct CompressionType) bool {
	switch ct {
	case CompressionTypeNone, CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd:
		return true
	default:
		return false
	}
}

func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

func isValidDestinationType(dt DestinationType) bool {
	switch dt {
	case DestinationTypeLocal, DestinationTypeS3, DestinationTypeAzure, DestinationTypeGCS:
		return true
	default:
		return false
	}
}

func isValidVerificationType(vt VerificationType) bool {
	switch vt {
	case VerificationTypeChecksum, VerificationTypeSizeValidation,
		VerificationTypeIntegrityCheck, VerificationTypeRestoreTest:
		return true
	default:
		return false
	}
}

func isValidBackupKind(k BackupKind) bool {
	switch k {
	case BackupKindFull, BackupKindIncremental:
		return true
	default:
		return false
	}
}
