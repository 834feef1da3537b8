package backup

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxTagCount       = 50
	maxTagKeyLength   = 128
	maxTagValueLength = 256
	maxBackupIDLength = 64
)

var (
	tagKeyRegex   = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	backupIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Validator checks request inputs before they reach the orchestrator: backup
// identifiers arriving from the CLI and tags attached to start requests.
// Configuration validation lives with the config types themselves.
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateBackupID checks that an identifier has the shape of a job id or
// queue ticket. It does not check existence.
func (v *Validator) ValidateBackupID(id string) error {
	if id == "" {
		return NewValidationError("backup id cannot be empty", nil)
	}
	if len(id) > maxBackupIDLength {
		return NewValidationError(fmt.Sprintf("backup id too long (max %d characters)", maxBackupIDLength), nil)
	}
	if !backupIDRegex.MatchString(id) {
		return NewValidationError(fmt.Sprintf("invalid backup id %q: only alphanumerics, underscore and hyphen are allowed", id), nil)
	}
	return nil
}

// ValidateTags validates tag key-value pairs
func (v *Validator) ValidateTags(tags map[string]string) error {
	var errors ValidationErrors

	if len(tags) > maxTagCount {
		errors.Add("tags", fmt.Sprintf("too many tags (max %d)", maxTagCount), len(tags))
	}

	for key, value := range tags {
		if key == "" {
			errors.Add("tags", "tag key cannot be empty", key)
			continue
		}
		if len(key) > maxTagKeyLength {
			errors.Add("tags", fmt.Sprintf("tag key too long (max %d characters)", maxTagKeyLength), key)
		}
		if !tagKeyRegex.MatchString(key) {
			errors.Add("tags", "tag key may only contain alphanumerics, dot, underscore and hyphen", key)
		}
		if len(value) > maxTagValueLength {
			errors.Add("tags", fmt.Sprintf("tag value too long (max %d characters) for key %s", maxTagValueLength, key), len(value))
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ValidateBackupOptions validates per-request overrides
func (v *Validator) ValidateBackupOptions(opts *BackupOptions) error {
	if opts == nil {
		return nil
	}

	var errors ValidationErrors
	if opts.Kind != "" && !isValidBackupKind(opts.Kind) {
		errors.Add("kind", "invalid backup kind", opts.Kind)
	}
	if err := v.ValidateTags(opts.Tags); err != nil {
		if validationErrs, ok := err.(ValidationErrors); ok {
			errors = append(errors, validationErrs...)
		} else {
			errors.Add("tags", err.Error(), nil)
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ParseTagArgs parses repeated key=value flag values into a tag map.
// Duplicate keys are rejected; the value may contain further '=' signs.
func ParseTagArgs(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}

	tags := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, NewValidationError(fmt.Sprintf("invalid tag %q: expected key=value", arg), nil)
		}
		if _, exists := tags[key]; exists {
			return nil, NewValidationError(fmt.Sprintf("duplicate tag key %q", key), nil)
		}
		tags[key] = value
	}
	return tags, nil
}
