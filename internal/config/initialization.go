package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"backup-orchestrator/internal/backup"
)

// BackupSystemInitializer prepares a host for backup operations: it checks
// the configuration, creates working directories, probes destinations and
// verifies that the database client tools are installed.
type BackupSystemInitializer struct {
	config  *backup.BackupConfig
	verbose bool
}

// InitializationResult contains the outcome of the preflight run
type InitializationResult struct {
	Success           bool     `json:"success"`
	ConfigValid       bool     `json:"config_valid"`
	DirectoriesReady  bool     `json:"directories_ready"`
	DestinationsReady bool     `json:"destinations_ready"`
	ToolsReady        bool     `json:"tools_ready"`
	ConnectivityOK    bool     `json:"connectivity_ok"`
	Warnings          []string `json:"warnings,omitempty"`
	Errors            []string `json:"errors,omitempty"`
	RecommendedFixes  []string `json:"recommended_fixes,omitempty"`
}

// HealthCheckResult contains the outcome of a runtime health check
type HealthCheckResult struct {
	Timestamp       time.Time         `json:"timestamp"`
	OverallHealth   string            `json:"overall_health"`
	ComponentStatus map[string]string `json:"component_status"`
	Issues          []string          `json:"issues,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// NewBackupSystemInitializer creates a new backup system initializer
func NewBackupSystemInitializer(config *backup.BackupConfig, verbose bool) *BackupSystemInitializer {
	return &BackupSystemInitializer{
		config:  config,
		verbose: verbose,
	}
}

// InitializeBackupSystem runs the full preflight sequence. Step failures are
// recorded on the result rather than returned, so callers always receive a
// complete report.
func (bsi *BackupSystemInitializer) InitializeBackupSystem() (*InitializationResult, error) {
	result := &InitializationResult{Success: true}

	if bsi.verbose {
		fmt.Println("Initializing backup orchestrator...")
	}

	// Step 1: Validate configuration
	if bsi.verbose {
		fmt.Println("Step 1/5: Validating configuration...")
	}
	if err := bsi.validateConfiguration(result); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("configuration validation failed: %v", err))
		result.Success = false
		return result, nil
	}
	result.ConfigValid = true

	// Step 2: Create working directories
	if bsi.verbose {
		fmt.Println("Step 2/5: Preparing working directories...")
	}
	if err := bsi.initializeDirectories(result); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("directory initialization failed: %v", err))
		result.Success = false
		return result, nil
	}
	result.DirectoriesReady = true

	// Step 3: Probe destinations
	if bsi.verbose {
		fmt.Println("Step 3/5: Probing backup destinations...")
	}
	if err := bsi.initializeDestinations(result); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("destination initialization failed: %v", err))
		result.Success = false
		return result, nil
	}
	result.DestinationsReady = true

	// Step 4: Check database client tools
	if bsi.verbose {
		fmt.Println("Step 4/5: Checking database client tools...")
	}
	missingTools := bsi.checkDumpTools(result)
	result.ToolsReady = len(missingTools) == 0

	// Step 5: Verify destination settings are complete
	if bsi.verbose {
		fmt.Println("Step 5/5: Checking destination connectivity settings...")
	}
	if err := bsi.testConnectivity(result); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("connectivity check failed: %v", err))
		result.Success = false
		return result, nil
	}
	result.ConnectivityOK = true

	bsi.generateRecommendations(result)

	if bsi.verbose {
		fmt.Println("Backup system initialization completed.")
	}

	return result, nil
}

// validateConfiguration validates the backup configuration and checks that
// configured encryption key material is actually reachable
func (bsi *BackupSystemInitializer) validateConfiguration(result *InitializationResult) error {
	if err := bsi.config.Validate(); err != nil {
		return err
	}

	enc := bsi.config.Encryption
	if enc != nil && enc.Enabled {
		switch enc.KeySource {
		case backup.KeySourceEnv:
			if os.Getenv(enc.KeyEnvVar) == "" {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("encryption key environment variable %s is not set", enc.KeyEnvVar))
				result.RecommendedFixes = append(result.RecommendedFixes,
					fmt.Sprintf("export %s=<hex-encoded-256-bit-key>", enc.KeyEnvVar))
			}
		case backup.KeySourceFile:
			if _, err := os.Stat(enc.KeyPath); os.IsNotExist(err) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("encryption key file not found: %s", enc.KeyPath))
				result.RecommendedFixes = append(result.RecommendedFixes,
					fmt.Sprintf("Create the key file at %s with 0600 permissions", enc.KeyPath))
			}
		}
	}

	if bsi.verbose {
		fmt.Println("  Configuration is valid")
	}
	return nil
}

// initializeDirectories creates the scratch, history and report directories
// and verifies each one is writable
func (bsi *BackupSystemInitializer) initializeDirectories(result *InitializationResult) error {
	global := bsi.config.Global

	for _, dir := range []string{global.ScratchDir, global.HistoryDir, global.ReportDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if err := probeWritable(dir); err != nil {
			return fmt.Errorf("directory %s is not writable: %w", dir, err)
		}
		if bsi.verbose {
			fmt.Printf("  Directory ready: %s\n", dir)
		}
	}

	if global.AuditLogFile != "" {
		if err := os.MkdirAll(filepath.Dir(global.AuditLogFile), 0755); err != nil {
			return fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	return nil
}

// initializeDestinations prepares each configured destination for use
func (bsi *BackupSystemInitializer) initializeDestinations(result *InitializationResult) error {
	if len(bsi.config.Destinations) == 0 {
		result.Warnings = append(result.Warnings, "no backup destinations configured")
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Add at least one destination to the backup.destinations section")
		return nil
	}

	for i := range bsi.config.Destinations {
		dest := &bsi.config.Destinations[i]
		var err error

		switch dest.Type {
		case backup.DestinationTypeLocal:
			err = bsi.initializeLocalDestination(dest, result)
		case backup.DestinationTypeS3:
			err = bsi.initializeS3Destination(dest, result)
		case backup.DestinationTypeAzure:
			err = bsi.initializeAzureDestination(dest, result)
		case backup.DestinationTypeGCS:
			err = bsi.initializeGCSDestination(dest, result)
		default:
			err = fmt.Errorf("unsupported destination type %q", dest.Type)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// initializeLocalDestination creates the destination directory and verifies
// it is writable
func (bsi *BackupSystemInitializer) initializeLocalDestination(dest *backup.BackupDestination, result *InitializationResult) error {
	if dest.Local == nil {
		return fmt.Errorf("local destination configuration is missing")
	}

	permissions := dest.Local.Permissions
	if permissions == 0 {
		permissions = 0755
	}

	if err := os.MkdirAll(dest.Local.BasePath, permissions); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", dest.Local.BasePath, err)
	}
	if err := probeWritable(dest.Local.BasePath); err != nil {
		return fmt.Errorf("backup directory %s is not writable: %w", dest.Local.BasePath, err)
	}

	if bsi.verbose {
		fmt.Printf("  Local destination ready: %s\n", dest.Local.BasePath)
	}
	return nil
}

// initializeS3Destination checks that S3 credentials are available
func (bsi *BackupSystemInitializer) initializeS3Destination(dest *backup.BackupDestination, result *InitializationResult) error {
	if dest.S3 == nil {
		return fmt.Errorf("S3 destination configuration is missing")
	}

	accessKey := dest.S3.AccessKey
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	secretKey := dest.S3.SecretKey
	if secretKey == "" {
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	if accessKey == "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("AWS access key not configured for bucket %s", dest.S3.Bucket))
		result.RecommendedFixes = append(result.RecommendedFixes,
			"export AWS_ACCESS_KEY_ID=<your-access-key>")
	}
	if secretKey == "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("AWS secret key not configured for bucket %s", dest.S3.Bucket))
		result.RecommendedFixes = append(result.RecommendedFixes,
			"export AWS_SECRET_ACCESS_KEY=<your-secret-key>")
	}

	if bsi.verbose {
		fmt.Printf("  S3 destination configured: s3://%s (%s)\n", dest.S3.Bucket, dest.S3.Region)
	}
	return nil
}

// initializeAzureDestination checks that Azure credentials are available
func (bsi *BackupSystemInitializer) initializeAzureDestination(dest *backup.BackupDestination, result *InitializationResult) error {
	if dest.Azure == nil {
		return fmt.Errorf("Azure destination configuration is missing")
	}

	if dest.Azure.AccountKey == "" && os.Getenv("AZURE_STORAGE_CONNECTION_STRING") == "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Azure account key not configured for account %s", dest.Azure.AccountName))
		result.RecommendedFixes = append(result.RecommendedFixes,
			"export AZURE_STORAGE_CONNECTION_STRING=<your-connection-string>")
	}

	if bsi.verbose {
		fmt.Printf("  Azure destination configured: %s/%s\n", dest.Azure.AccountName, dest.Azure.ContainerName)
	}
	return nil
}

// initializeGCSDestination checks that GCS credentials are available
func (bsi *BackupSystemInitializer) initializeGCSDestination(dest *backup.BackupDestination, result *InitializationResult) error {
	if dest.GCS == nil {
		return fmt.Errorf("GCS destination configuration is missing")
	}

	if dest.GCS.CredentialsPath != "" {
		if _, err := os.Stat(dest.GCS.CredentialsPath); os.IsNotExist(err) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("GCS credentials file not found: %s", dest.GCS.CredentialsPath))
		}
	} else if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("GCS credentials not configured for bucket %s", dest.GCS.Bucket))
		result.RecommendedFixes = append(result.RecommendedFixes,
			"export GOOGLE_APPLICATION_CREDENTIALS=<path-to-credentials.json>")
	}

	if bsi.verbose {
		fmt.Printf("  GCS destination configured: gs://%s\n", dest.GCS.Bucket)
	}
	return nil
}

// checkDumpTools verifies the database client tools for every enabled
// storage type are installed, returning the missing tool names. Missing
// tools are a warning at preflight time; the backends fail hard at run time.
func (bsi *BackupSystemInitializer) checkDumpTools(result *InitializationResult) []string {
	var missing []string

	for _, storageType := range bsi.config.EnabledStorageTypes() {
		tools := dumpToolsForStorage(storageType)
		if tools == nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("no dump tools known for storage type %q", storageType))
			continue
		}

		for _, tool := range tools {
			if _, err := exec.LookPath(tool); err != nil {
				missing = append(missing, tool)
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s not found in PATH (needed for %s backups)", tool, storageType))
			} else if bsi.verbose {
				fmt.Printf("  Found %s\n", tool)
			}
		}
	}

	if len(missing) > 0 {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Install the database client tools for the enabled storage types")
	}

	return missing
}

func dumpToolsForStorage(storageType string) []string {
	switch storageType {
	case "postgres":
		return []string{"pg_dump", "pg_restore", "psql"}
	case "mysql":
		return []string{"mysqldump", "mysql"}
	default:
		return nil
	}
}

// testConnectivity checks that every cloud destination carries the fields
// its handler needs. Field presence only; real connectivity is exercised by
// the destination handlers.
func (bsi *BackupSystemInitializer) testConnectivity(result *InitializationResult) error {
	for i := range bsi.config.Destinations {
		dest := &bsi.config.Destinations[i]

		switch dest.Type {
		case backup.DestinationTypeS3:
			if dest.S3 == nil || dest.S3.Bucket == "" {
				return fmt.Errorf("S3 bucket is not configured")
			}
			if dest.S3.Region == "" {
				return fmt.Errorf("S3 region is not configured")
			}
		case backup.DestinationTypeAzure:
			if dest.Azure == nil || dest.Azure.AccountName == "" {
				return fmt.Errorf("Azure account name is not configured")
			}
			if dest.Azure.ContainerName == "" {
				return fmt.Errorf("Azure container name is not configured")
			}
		case backup.DestinationTypeGCS:
			if dest.GCS == nil || dest.GCS.Bucket == "" {
				return fmt.Errorf("GCS bucket is not configured")
			}
		}
	}

	if bsi.verbose {
		fmt.Println("  Destination settings are complete")
	}
	return nil
}

// generateRecommendations suggests configuration improvements
func (bsi *BackupSystemInitializer) generateRecommendations(result *InitializationResult) {
	if bsi.config.Encryption == nil || !bsi.config.Encryption.Enabled {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Consider enabling encryption for sensitive backup data")
	}

	for i := range bsi.config.Storages {
		if bsi.config.Storages[i].CompressionLevel >= 9 {
			result.RecommendedFixes = append(result.RecommendedFixes,
				"Consider a lower compression level for faster backups")
			break
		}
	}

	retention := bsi.config.Retention
	if retention.DailyRetentionDays == 0 && retention.WeeklyRetentionWeeks == 0 &&
		retention.MonthlyRetentionMonths == 0 && retention.MaxBackups == 0 {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Consider configuring retention policies to manage storage usage")
	}

	if !bsi.config.Global.VerifyAfterBackup {
		result.RecommendedFixes = append(result.RecommendedFixes,
			"Enable post-backup verification to catch corrupt artifacts early")
	}
}

// PrintInitializationReport prints a human-readable preflight summary
func (bsi *BackupSystemInitializer) PrintInitializationReport(result *InitializationResult) {
	fmt.Println("\nInitialization Report")
	fmt.Println("=====================")

	printCheck := func(label string, ok bool) {
		mark := "✓"
		if !ok {
			mark = "✗"
		}
		fmt.Printf("%s %s\n", mark, label)
	}

	printCheck("Configuration valid", result.ConfigValid)
	printCheck("Working directories ready", result.DirectoriesReady)
	printCheck("Destinations ready", result.DestinationsReady)
	printCheck("Database client tools installed", result.ToolsReady)
	printCheck("Destination settings complete", result.ConnectivityOK)

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, msg := range result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, msg := range result.Warnings {
			fmt.Printf("  - %s\n", msg)
		}
	}
	if len(result.RecommendedFixes) > 0 {
		fmt.Println("\nRecommendations:")
		for _, msg := range result.RecommendedFixes {
			fmt.Printf("  - %s\n", msg)
		}
	}
}

// RunHealthCheck reports the current health of the backup system components
func (bsi *BackupSystemInitializer) RunHealthCheck() (*HealthCheckResult, error) {
	result := &HealthCheckResult{
		Timestamp:       time.Now(),
		ComponentStatus: make(map[string]string),
	}

	if err := bsi.config.Validate(); err != nil {
		result.ComponentStatus["configuration"] = "unhealthy"
		result.Issues = append(result.Issues, fmt.Sprintf("configuration validation failed: %v", err))
	} else {
		result.ComponentStatus["configuration"] = "healthy"
	}

	destHealth := bsi.checkDestinationsHealth()
	result.ComponentStatus["destinations"] = destHealth
	if destHealth != "healthy" {
		result.Issues = append(result.Issues, "one or more backup destinations are not usable")
	}

	dirHealth := bsi.checkDirectoriesHealth()
	result.ComponentStatus["directories"] = dirHealth
	if dirHealth != "healthy" {
		result.Issues = append(result.Issues, "one or more working directories are missing or not writable")
	}

	encHealth := bsi.checkEncryptionHealth()
	result.ComponentStatus["encryption"] = encHealth
	if encHealth != "healthy" {
		result.Issues = append(result.Issues, "encryption key material is not accessible")
		result.Recommendations = append(result.Recommendations,
			"Verify the encryption key source and that the key material exists")
	}

	toolsHealth := bsi.checkToolsHealth()
	result.ComponentStatus["tools"] = toolsHealth
	if toolsHealth != "healthy" {
		result.Issues = append(result.Issues, "database client tools are missing for enabled storage types")
		result.Recommendations = append(result.Recommendations,
			"Install the database client tools for the enabled storage types")
	}

	switch {
	case result.ComponentStatus["configuration"] == "unhealthy":
		result.OverallHealth = "unhealthy"
	case len(result.Issues) > 0:
		result.OverallHealth = "degraded"
	default:
		result.OverallHealth = "healthy"
	}

	return result, nil
}

// checkDestinationsHealth reports whether every destination is usable
func (bsi *BackupSystemInitializer) checkDestinationsHealth() string {
	if len(bsi.config.Destinations) == 0 {
		return "unhealthy"
	}

	for i := range bsi.config.Destinations {
		dest := &bsi.config.Destinations[i]

		switch dest.Type {
		case backup.DestinationTypeLocal:
			if dest.Local == nil {
				return "unhealthy"
			}
			if _, err := os.Stat(dest.Local.BasePath); err != nil {
				return "unhealthy"
			}
			if err := probeWritable(dest.Local.BasePath); err != nil {
				return "unhealthy"
			}
		case backup.DestinationTypeS3:
			if dest.S3 == nil || dest.S3.Bucket == "" || dest.S3.Region == "" {
				return "unhealthy"
			}
		case backup.DestinationTypeAzure:
			if dest.Azure == nil || dest.Azure.AccountName == "" || dest.Azure.ContainerName == "" {
				return "unhealthy"
			}
		case backup.DestinationTypeGCS:
			if dest.GCS == nil || dest.GCS.Bucket == "" {
				return "unhealthy"
			}
		default:
			return "unhealthy"
		}
	}

	return "healthy"
}

// checkDirectoriesHealth reports whether the configured working directories
// exist and are writable. Missing directories are degraded, not unhealthy;
// they are created on the next preflight run.
func (bsi *BackupSystemInitializer) checkDirectoriesHealth() string {
	global := bsi.config.Global

	for _, dir := range []string{global.ScratchDir, global.HistoryDir, global.ReportDir} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			return "degraded"
		}
		if err := probeWritable(dir); err != nil {
			return "unhealthy"
		}
	}

	return "healthy"
}

// checkEncryptionHealth reports whether the configured key material is
// reachable
func (bsi *BackupSystemInitializer) checkEncryptionHealth() string {
	enc := bsi.config.Encryption
	if enc == nil || !enc.Enabled {
		return "healthy"
	}

	switch enc.KeySource {
	case backup.KeySourceEnv:
		if enc.KeyEnvVar == "" || os.Getenv(enc.KeyEnvVar) == "" {
			return "unhealthy"
		}
	case backup.KeySourceFile:
		if enc.KeyPath == "" {
			return "unhealthy"
		}
		if _, err := os.Stat(enc.KeyPath); err != nil {
			return "unhealthy"
		}
	case backup.KeySourcePassphrase:
		if enc.Passphrase == "" {
			return "unhealthy"
		}
	default:
		return "unhealthy"
	}

	return "healthy"
}

// checkToolsHealth reports whether the dump tools for enabled storage types
// are installed
func (bsi *BackupSystemInitializer) checkToolsHealth() string {
	for _, storageType := range bsi.config.EnabledStorageTypes() {
		for _, tool := range dumpToolsForStorage(storageType) {
			if _, err := exec.LookPath(tool); err != nil {
				return "degraded"
			}
		}
	}
	return "healthy"
}

// probeWritable writes and removes a marker file to confirm the directory
// accepts writes
func probeWritable(dir string) error {
	probePath := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probePath, []byte("test"), 0644); err != nil {
		return err
	}
	return os.Remove(probePath)
}

// SetupWizard guides a user through building an initial backup configuration
type SetupWizard struct {
	initializer *BackupSystemInitializer
	verbose     bool
}

// CreateSetupWizard creates a setup wizard bound to this initializer
func (bsi *BackupSystemInitializer) CreateSetupWizard() *SetupWizard {
	return &SetupWizard{
		initializer: bsi,
		verbose:     bsi.verbose,
	}
}

// RunWizard interactively builds a backup configuration
func (sw *SetupWizard) RunWizard() (*backup.BackupConfig, error) {
	fmt.Println("Backup Orchestrator Setup Wizard")
	fmt.Println("================================")
	fmt.Println()

	config := &backup.BackupConfig{}
	config.Enabled = sw.promptYesNo("Enable backups on this host?", true)

	fmt.Println("\nWhich storage types should be backed up?")
	fmt.Println("1. PostgreSQL")
	fmt.Println("2. MySQL")
	fmt.Println("3. Both")
	switch sw.promptChoice("Select storage types", 1, 3, 1) {
	case 1:
		config.Storages = append(config.Storages, newWizardStorage("postgres"))
	case 2:
		config.Storages = append(config.Storages, newWizardStorage("mysql"))
	case 3:
		config.Storages = append(config.Storages,
			newWizardStorage("postgres"), newWizardStorage("mysql"))
	}

	fmt.Println("\nCompression algorithm:")
	fmt.Println("1. gzip (balanced)")
	fmt.Println("2. lz4 (fastest)")
	fmt.Println("3. zstd (best ratio)")
	fmt.Println("4. none")
	compression := backup.CompressionTypeGzip
	switch sw.promptChoice("Select compression", 1, 4, 1) {
	case 2:
		compression = backup.CompressionTypeLZ4
	case 3:
		compression = backup.CompressionTypeZstd
	case 4:
		compression = backup.CompressionTypeNone
	}
	for i := range config.Storages {
		config.Storages[i].Compression = compression
	}

	fmt.Println("\nWhere should backups be stored?")
	fmt.Println("1. Local filesystem")
	fmt.Println("2. Amazon S3")
	fmt.Println("3. Azure Blob Storage")
	fmt.Println("4. Google Cloud Storage")
	var dest backup.BackupDestination
	switch sw.promptChoice("Select a destination", 1, 4, 1) {
	case 1:
		dest = sw.configureLocalDestination()
	case 2:
		dest = sw.configureS3Destination()
	case 3:
		dest = sw.configureAzureDestination()
	case 4:
		dest = sw.configureGCSDestination()
	}
	config.Destinations = append(config.Destinations, dest)

	fmt.Println()
	if sw.promptYesNo("Enable scheduled backups?", true) {
		config.Schedule.Enabled = true
		config.Schedule.Expression = sw.promptString("Cron expression", backup.DefaultScheduleExpression)
		config.Schedule.Timezone = sw.promptString("Timezone (empty for host timezone)", "")
	}

	fmt.Println()
	config.Retention.DailyRetentionDays = sw.promptInt("Days of daily backups to keep", 7)
	config.Retention.WeeklyRetentionWeeks = sw.promptInt("Weeks of weekly backups to keep", 4)
	config.Retention.MonthlyRetentionMonths = sw.promptInt("Months of monthly backups to keep", 12)
	config.Retention.MaxBackups = sw.promptInt("Maximum backups to keep (0 = unlimited)", 50)
	config.Retention.AutoCleanup = sw.promptYesNo("Remove expired backups automatically?", true)

	fmt.Println()
	if sw.promptYesNo("Encrypt backup artifacts?", false) {
		config.Encryption = &backup.EncryptionConfig{
			Enabled:   true,
			KeySource: backup.KeySourceEnv,
			KeyEnvVar: "BACKUP_ENCRYPTION_KEY",
		}
		fmt.Println("Set BACKUP_ENCRYPTION_KEY to a hex-encoded 256-bit key before running backups.")
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("wizard produced an invalid configuration: %w", err)
	}

	fmt.Println("\nConfiguration complete.")
	return config, nil
}

func newWizardStorage(storageType string) backup.StorageBackupConfig {
	return backup.StorageBackupConfig{
		StorageType: storageType,
		Enabled:     true,
		Kind:        backup.BackupKindFull,
		Compression: backup.CompressionTypeGzip,
	}
}

func (sw *SetupWizard) configureLocalDestination() backup.BackupDestination {
	fmt.Println("\nLocal destination settings:")
	return backup.BackupDestination{
		Type: backup.DestinationTypeLocal,
		Local: &backup.LocalDestinationConfig{
			BasePath:    sw.promptString("Backup directory", "./backups/data"),
			Permissions: 0755,
		},
	}
}

func (sw *SetupWizard) configureS3Destination() backup.BackupDestination {
	fmt.Println("\nAmazon S3 destination settings:")
	return backup.BackupDestination{
		Type: backup.DestinationTypeS3,
		S3: &backup.S3DestinationConfig{
			Bucket:    sw.promptString("S3 bucket", ""),
			Region:    sw.promptString("AWS region", "us-east-1"),
			AccessKey: sw.promptString("AWS access key", os.Getenv("AWS_ACCESS_KEY_ID")),
			SecretKey: sw.promptString("AWS secret key", os.Getenv("AWS_SECRET_ACCESS_KEY")),
		},
	}
}

func (sw *SetupWizard) configureAzureDestination() backup.BackupDestination {
	fmt.Println("\nAzure Blob Storage destination settings:")
	return backup.BackupDestination{
		Type: backup.DestinationTypeAzure,
		Azure: &backup.AzureDestinationConfig{
			AccountName:   sw.promptString("Storage account name", ""),
			AccountKey:    sw.promptString("Storage account key", os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")),
			ContainerName: sw.promptString("Container name", "backups"),
		},
	}
}

func (sw *SetupWizard) configureGCSDestination() backup.BackupDestination {
	fmt.Println("\nGoogle Cloud Storage destination settings:")
	return backup.BackupDestination{
		Type: backup.DestinationTypeGCS,
		GCS: &backup.GCSDestinationConfig{
			Bucket:          sw.promptString("GCS bucket", ""),
			CredentialsPath: sw.promptString("Credentials file path", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			ProjectID:       sw.promptString("GCP project ID", ""),
		},
	}
}

func (sw *SetupWizard) promptString(label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}

	var input string
	fmt.Scanln(&input)
	if input == "" {
		return defaultValue
	}
	return input
}

func (sw *SetupWizard) promptYesNo(label string, defaultValue bool) bool {
	hint := "y/N"
	if defaultValue {
		hint = "Y/n"
	}
	fmt.Printf("%s [%s]: ", label, hint)

	var input string
	fmt.Scanln(&input)
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return defaultValue
	}
}

func (sw *SetupWizard) promptInt(label string, defaultValue int) int {
	fmt.Printf("%s [%d]: ", label, defaultValue)

	var input string
	fmt.Scanln(&input)
	if input == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		fmt.Printf("Invalid number, using %d\n", defaultValue)
		return defaultValue
	}
	return parsed
}

func (sw *SetupWizard) promptChoice(label string, min, max, defaultValue int) int {
	choice := sw.promptInt(fmt.Sprintf("%s (%d-%d)", label, min, max), defaultValue)
	if choice < min || choice > max {
		fmt.Printf("Choice out of range, using %d\n", defaultValue)
		return defaultValue
	}
	return choice
}
