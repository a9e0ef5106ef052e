package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions
var (
	// ErrInvalidInput is returned when request validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidDocument is returned when a document cannot be indexed
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidConfiguration is returned when the service configuration is unusable
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")
)

// Code is a stable, machine-readable error code exposed to callers.
type Code string

const (
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeInvalidDocument  Code = "INVALID_DOCUMENT"
	CodeConfiguration    Code = "CONFIGURATION_ERROR"
	CodeJobNotFound      Code = "JOB_NOT_FOUND"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IndexError is returned when a document is rejected by the index. The index is left untouched.
type IndexError struct {
	EntityType string
	EntityID   string
	Message    string
}

func (e *IndexError) Error() string {
	switch {
	case e.EntityID != "" && e.EntityType != "":
		return fmt.Sprintf("invalid document '%s' of type '%s': %s", e.EntityID, e.EntityType, e.Message)
	case e.EntityID != "":
		return fmt.Sprintf("invalid document '%s': %s", e.EntityID, e.Message)
	default:
		return fmt.Sprintf("invalid document: %s", e.Message)
	}
}

func (e *IndexError) Is(target error) bool {
	return target == ErrInvalidDocument
}

// NewIndexError creates a new IndexError
func NewIndexError(entityType, entityID, message string) *IndexError {
	return &IndexError{EntityType: entityType, EntityID: entityID, Message: message}
}

// ConfigurationError lists every problem found while validating configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(problems ...string) *ConfigurationError {
	return &ConfigurationError{Problems: problems}
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}

// CodeOf maps an error to its stable code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return CodeValidationFailed
	case errors.Is(err, ErrInvalidDocument):
		return CodeInvalidDocument
	case errors.Is(err, ErrInvalidConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrJobNotFound):
		return CodeJobNotFound
	default:
		return CodeInternal
	}
}
