package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"backup-orchestrator/internal/execution"
	"backup-orchestrator/internal/logging"
)

// defaultScriptTimeout bounds external verification scripts that carry no
// per-storage timeout
const defaultScriptTimeout = 5 * time.Minute

// VerificationResult is the outcome of one verification strategy
type VerificationResult struct {
	Type      VerificationType       `json:"type"`
	Passed    bool                   `json:"passed"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Errors    []string               `json:"errors,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
}

// VerificationReport folds the results of every strategy run against one
// backup into a single pass/fail verdict
type VerificationReport struct {
	BackupID    string                `json:"backup_id"`
	StorageType string                `json:"storage_type"`
	Passed      bool                  `json:"passed"`
	SuccessRate float64               `json:"success_rate"`
	Results     []*VerificationResult `json:"results"`
	GeneratedAt time.Time             `json:"generated_at"`
	Duration    time.Duration         `json:"duration"`
}

// VerifierConfig controls parallelism and report persistence
type VerifierConfig struct {
	// MaxParallelJobs is the chunk size for parallel checksum and strategy
	// execution. Values below 1 are treated as 1.
	MaxParallelJobs int
	// Parallel switches comprehensive runs and checksum scans from
	// sequential to bounded-chunked parallel execution
	Parallel bool
	// ReportDir receives JSON reports for failed verifications. Empty
	// disables persistence.
	ReportDir string
}

// Verifier runs verification strategies against backup metadata
type Verifier struct {
	config VerifierConfig
	runner *execution.Runner
	logger *logging.Logger
}

// NewVerifier creates a verifier. The embedded command runner executes
// external verification scripts.
func NewVerifier(config VerifierConfig, logger *logging.Logger) *Verifier {
	if config.MaxParallelJobs < 1 {
		config.MaxParallelJobs = 1
	}
	return &Verifier{
		config: config,
		runner: execution.NewRunner(execution.RunnerConfig{DefaultTimeout: defaultScriptTimeout}, logger),
		logger: logger,
	}
}

// VerifyBackupComprehensive runs the requested strategies and folds them
// into one report. When no types are requested, checksum and size validation
// run as the baseline. Reports are persisted only on failure.
func (v *Verifier) VerifyBackupComprehensive(ctx context.Context, meta *BackupMetadata, backend Backend, cfg *StorageBackupConfig, types []VerificationType) *VerificationReport {
	if len(types) == 0 {
		types = []VerificationType{VerificationTypeChecksum, VerificationTypeSizeValidation}
	}

	var results []*VerificationResult
	if v.config.Parallel && len(types) > 1 {
		results = v.runStrategiesChunked(ctx, meta, backend, cfg, types)
	} else {
		for _, vt := range types {
			results = append(results, v.runStrategy(ctx, vt, meta, backend, cfg))
		}
	}

	report := CreateVerificationReport(meta, results)

	if v.logger != nil {
		for _, result := range results {
			v.logger.LogVerification(meta.ID, string(result.Type), result.Passed, result.Duration, len(result.Errors))
		}
	}

	if !report.Passed {
		if err := v.persistReport(report); err != nil && v.logger != nil {
			v.logger.Warnf("Failed to persist verification report for %s: %v", meta.ID, err)
		}
	}

	return report
}

// runStrategiesChunked executes strategies in bounded parallel chunks
func (v *Verifier) runStrategiesChunked(ctx context.Context, meta *BackupMetadata, backend Backend, cfg *StorageBackupConfig, types []VerificationType) []*VerificationResult {
	results := make([]*VerificationResult, len(types))
	for start := 0; start < len(types); start += v.config.MaxParallelJobs {
		end := start + v.config.MaxParallelJobs
		if end > len(types) {
			end = len(types)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = v.runStrategy(ctx, types[idx], meta, backend, cfg)
			}(i)
		}
		wg.Wait()
	}
	return results
}

func (v *Verifier) runStrategy(ctx context.Context, vt VerificationType, meta *BackupMetadata, backend Backend, cfg *StorageBackupConfig) *VerificationResult {
	switch vt {
	case VerificationTypeChecksum:
		return v.VerifyChecksum(ctx, meta)
	case VerificationTypeSizeValidation:
		return v.VerifySize(ctx, meta)
	case VerificationTypeIntegrityCheck:
		return v.VerifyIntegrity(ctx, meta, backend, cfg)
	case VerificationTypeRestoreTest:
		return v.VerifyRestoreTest(ctx, meta, backend)
	default:
		result := newVerificationResult(vt)
		result.Errors = append(result.Errors, fmt.Sprintf("unknown verification type: %s", vt))
		return finalizeResult(result)
	}
}

// VerifyChecksum recomputes every artifact digest and compares it to the
// recorded one. Missing files, unreadable files and mismatches are errors.
func (v *Verifier) VerifyChecksum(ctx context.Context, meta *BackupMetadata) *VerificationResult {
	result := newVerificationResult(VerificationTypeChecksum)

	if len(meta.Files) == 0 {
		result.Warnings = append(result.Warnings, "backup has no recorded files")
		return finalizeResult(result)
	}

	checkFile := func(path string) []string {
		recorded, ok := meta.Checksums[path]
		if !ok {
			return []string{fmt.Sprintf("no recorded checksum for %s", path)}
		}
		if _, err := os.Stat(path); err != nil {
			return []string{fmt.Sprintf("file missing: %s", path)}
		}
		observed, err := CalculateArtifactChecksum(path)
		if err != nil {
			return []string{fmt.Sprintf("failed to checksum %s: %v", path, err)}
		}
		if observed != recorded {
			return []string{fmt.Sprintf("checksum mismatch for %s: recorded %s, observed %s", path, recorded, observed)}
		}
		return nil
	}

	if v.config.Parallel && len(meta.Files) > 1 {
		result.Errors = append(result.Errors, v.forEachChunked(ctx, meta.Files, checkFile)...)
	} else {
		for _, path := range meta.Files {
			if ctx.Err() != nil {
				result.Errors = append(result.Errors, "checksum verification cancelled")
				break
			}
			result.Errors = append(result.Errors, checkFile(path)...)
		}
	}

	result.Details["files_checked"] = len(meta.Files)
	return finalizeResult(result)
}

// forEachChunked runs fn over paths in chunks of MaxParallelJobs goroutines,
// stopping between chunks once the context is cancelled
func (v *Verifier) forEachChunked(ctx context.Context, paths []string, fn func(path string) []string) []string {
	var mu sync.Mutex
	var errs []string

	for start := 0; start < len(paths); start += v.config.MaxParallelJobs {
		if ctx.Err() != nil {
			errs = append(errs, "checksum verification cancelled")
			break
		}
		end := start + v.config.MaxParallelJobs
		if end > len(paths) {
			end = len(paths)
		}

		var wg sync.WaitGroup
		for _, path := range paths[start:end] {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				if found := fn(p); len(found) > 0 {
					mu.Lock()
					errs = append(errs, found...)
					mu.Unlock()
				}
			}(path)
		}
		wg.Wait()
	}
	return errs
}

// VerifySize stats every artifact. A missing file is an error; an empty file
// and a total that differs from the recorded size are warnings, since
// compression settings legitimately change on-disk totals.
func (v *Verifier) VerifySize(ctx context.Context, meta *BackupMetadata) *VerificationResult {
	result := newVerificationResult(VerificationTypeSizeValidation)

	var observed int64
	for _, path := range meta.Files {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "size validation cancelled")
			break
		}
		size, err := ArtifactSize(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("file missing: %s", path))
			continue
		}
		if size == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("artifact is empty: %s", path))
		}
		observed += size
	}

	result.Details["recorded_size"] = meta.Size
	result.Details["observed_size"] = observed
	if meta.Size > 0 && observed != meta.Size {
		result.Warnings = append(result.Warnings, fmt.Sprintf("observed total size %d differs from recorded %d", observed, meta.Size))
	}

	return finalizeResult(result)
}

// VerifyIntegrity delegates to the backend's own integrity check and then
// runs any configured verification scripts with the backup id and its
// artifact directory as arguments. A non-zero script exit fails the check.
func (v *Verifier) VerifyIntegrity(ctx context.Context, meta *BackupMetadata, backend Backend, cfg *StorageBackupConfig) *VerificationResult {
	result := newVerificationResult(VerificationTypeIntegrityCheck)

	if backend == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("no backend registered for storage type %s", meta.StorageType))
		return finalizeResult(result)
	}

	ok, err := backend.VerifyBackup(ctx, meta, VerificationTypeIntegrityCheck)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("backend integrity check failed: %v", err))
	} else if !ok {
		result.Errors = append(result.Errors, "backend integrity check reported failure")
	}

	var scripts []string
	timeout := defaultScriptTimeout
	if cfg != nil {
		scripts = cfg.VerificationScripts
		if cfg.ScriptTimeout > 0 {
			timeout = cfg.ScriptTimeout
		}
	}

	target := scriptTargetPath(meta)
	var scriptsRun int
	for _, script := range scripts {
		_, err := v.runner.Run(ctx, execution.CommandSpec{
			Tool:    script,
			Args:    []string{meta.ID, target},
			Timeout: timeout,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("verification script %s failed: %v", script, err))
			continue
		}
		scriptsRun++
	}
	if len(scripts) > 0 {
		result.Details["scripts_run"] = scriptsRun
		result.Details["scripts_total"] = len(scripts)
	}

	return finalizeResult(result)
}

// VerifyRestoreTest restores the backup into a throw-away directory and
// counts the files produced. Overwrite is confined to the scratch target and
// nested verification stays disabled to prevent recursion. The scratch
// directory is removed on every path; a removal failure is only a warning.
func (v *Verifier) VerifyRestoreTest(ctx context.Context, meta *BackupMetadata, backend Backend) *VerificationResult {
	result := newVerificationResult(VerificationTypeRestoreTest)

	if backend == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("no backend registered for storage type %s", meta.StorageType))
		return finalizeResult(result)
	}

	scratch, err := os.MkdirTemp("", "restore-test-")
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to create restore-test directory: %v", err))
		return finalizeResult(result)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to remove restore-test directory %s: %v", scratch, err))
		}
	}()

	opts := RestoreOptions{
		Overwrite:        true,
		TargetDir:        scratch,
		SkipVerification: true,
	}
	if err := backend.RestoreBackup(ctx, meta, opts); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("restore test failed: %v", err))
		return finalizeResult(result)
	}

	restored := countFiles(scratch)
	result.Details["files_restored"] = restored
	if restored == 0 {
		result.Warnings = append(result.Warnings, "restore test produced no files")
	}

	return finalizeResult(result)
}

// CreateVerificationReport folds strategy results into one verdict. An empty
// result list passes vacuously.
func CreateVerificationReport(meta *BackupMetadata, results []*VerificationResult) *VerificationReport {
	report := &VerificationReport{
		BackupID:    meta.ID,
		StorageType: meta.StorageType,
		Passed:      true,
		SuccessRate: 1.0,
		Results:     results,
		GeneratedAt: time.Now().UTC(),
	}

	if len(results) == 0 {
		return report
	}

	var passed int
	for _, result := range results {
		report.Duration += result.Duration
		if result.Passed {
			passed++
		} else {
			report.Passed = false
		}
	}
	report.SuccessRate = float64(passed) / float64(len(results))
	return report
}

// persistReport writes a failed report to the report directory
func (v *Verifier) persistReport(report *VerificationReport) error {
	if v.config.ReportDir == "" {
		return nil
	}
	if err := os.MkdirAll(v.config.ReportDir, 0755); err != nil {
		return NewStorageError(fmt.Sprintf("failed to create report directory %s", v.config.ReportDir), err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return NewInternalError("failed to encode verification report", err)
	}

	name := fmt.Sprintf("verification-%s-%s.json", sanitizeBackupID(report.BackupID), report.GeneratedAt.Format("20060102T150405Z"))
	path := filepath.Join(v.config.ReportDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return NewStorageError(fmt.Sprintf("failed to write verification report %s", path), err)
	}
	return nil
}

func newVerificationResult(vt VerificationType) *VerificationResult {
	return &VerificationResult{
		Type:      vt,
		Details:   make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

// finalizeResult stamps duration and the pass verdict. Warnings never fail a
// result; errors always do.
func finalizeResult(result *VerificationResult) *VerificationResult {
	result.Duration = time.Since(result.Timestamp)
	result.Passed = len(result.Errors) == 0
	return result
}

// scriptTargetPath picks the path handed to verification scripts: the
// directory holding the artifacts when known, else the destination path
func scriptTargetPath(meta *BackupMetadata) string {
	if len(meta.Files) > 0 {
		return filepath.Dir(meta.Files[0])
	}
	if meta.Destination != nil {
		return meta.Destination.Path
	}
	return ""
}

func countFiles(root string) int {
	var count int
	filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}
