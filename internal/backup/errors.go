package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur during backup operations
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	// BackupErrorTypeNotConfigured indicates the backend's connection settings
	// could not be resolved; operator action required
	BackupErrorTypeNotConfigured BackupErrorType = "NOT_CONFIGURED"
	// BackupErrorTypeNotEnabled indicates the storage type is disabled in config
	BackupErrorTypeNotEnabled BackupErrorType = "NOT_ENABLED"
	// BackupErrorTypeNoHandler indicates no backend is registered for the storage type
	BackupErrorTypeNoHandler BackupErrorType = "NO_HANDLER"
	// BackupErrorTypeUnavailable indicates the backend liveness probe failed; transient
	BackupErrorTypeUnavailable BackupErrorType = "UNAVAILABLE"
	// BackupErrorTypeToolMissing indicates a required external tool is not installed
	BackupErrorTypeToolMissing BackupErrorType = "TOOL_MISSING"
	// BackupErrorTypeNotFound indicates a referenced job or backup id does not exist
	BackupErrorTypeNotFound BackupErrorType = "NOT_FOUND"
	// BackupErrorTypeVerificationFailed indicates a post-hoc integrity problem
	BackupErrorTypeVerificationFailed BackupErrorType = "VERIFICATION_FAILED"
	// BackupErrorTypeExternalTool indicates a non-zero exit from a dump/restore/shell tool
	BackupErrorTypeExternalTool BackupErrorType = "EXTERNAL_TOOL_FAILURE"
	// BackupErrorTypeTimeout indicates a bounded operation exceeded its budget and was killed
	BackupErrorTypeTimeout BackupErrorType = "TIMEOUT"
	// BackupErrorTypeValidation indicates invalid configuration or input data
	BackupErrorTypeValidation BackupErrorType = "VALIDATION"
	// BackupErrorTypeStorage indicates a destination or history store failure
	BackupErrorTypeStorage BackupErrorType = "STORAGE_ERROR"
	// BackupErrorTypeCompression indicates an artifact compression failure
	BackupErrorTypeCompression BackupErrorType = "COMPRESSION_ERROR"
	// BackupErrorTypeEncryption indicates an artifact encryption failure
	BackupErrorTypeEncryption BackupErrorType = "ENCRYPTION_ERROR"
	// BackupErrorTypeCancelled indicates the job was cancelled while running
	BackupErrorTypeCancelled BackupErrorType = "CANCELLED"
	// BackupErrorTypeInternal indicates an unexpected implementation fault
	BackupErrorTypeInternal BackupErrorType = "INTERNAL"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewNotConfiguredError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotConfigured, message, cause)
}

func NewNotEnabledError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotEnabled, message, cause)
}

func NewNoHandlerError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNoHandler, message, cause)
}

func NewUnavailableError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeUnavailable, message, cause)
}

func NewToolMissingError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeToolMissing, message, cause)
}

func NewNotFoundError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotFound, message, cause)
}

func NewVerificationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeVerificationFailed, message, cause)
}

func NewExternalToolError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeExternalTool, message, cause)
}

func NewTimeoutError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeTimeout, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

func NewStorageError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeStorage, message, cause)
}

func NewCompressionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCompression, message, cause)
}

func NewEncryptionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeEncryption, message, cause)
}

func NewCancelledError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCancelled, message, cause)
}

func NewInternalError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeInternal, message, cause)
}

// ValidationError represents validation-specific errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ErrorTypeOf returns the BackupErrorType of an error, unwrapping as needed.
// Returns BackupErrorTypeInternal for errors outside the taxonomy.
func ErrorTypeOf(err error) BackupErrorType {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Type
	}
	return BackupErrorTypeInternal
}

// IsErrorType reports whether err carries the given taxonomy type
func IsErrorType(err error, errorType BackupErrorType) bool {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Type == errorType
	}
	return false
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		switch backupErr.Type {
		case BackupErrorTypeUnavailable, BackupErrorTypeTimeout, BackupErrorTypeStorage:
			return true
		default:
			return false
		}
	}
	return false
}

// IsPermanent determines if an error is permanent and should not be retried
// without operator action
func IsPermanent(err error) bool {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		switch backupErr.Type {
		case BackupErrorTypeNotConfigured, BackupErrorTypeNotEnabled,
			BackupErrorTypeNoHandler, BackupErrorTypeToolMissing,
			BackupErrorTypeValidation:
			return true
		default:
			return false
		}
	}
	return false
}
