// Package api exposes the search service over HTTP with gin.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/entity-search/model"
)

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ValidateIdentifier checks a path parameter such as an entity, user or job id.
func ValidateIdentifier(field, value string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if value == "" {
		result.AddError(field, field+" is required")
		return result
	}

	if strings.TrimSpace(value) != value {
		result.AddError(field, field+" cannot have leading or trailing whitespace")
	}

	return result
}

// ValidateOptionalInt parses an optional non-negative integer query parameter.
func ValidateOptionalInt(c *gin.Context, name string, result *ValidationResult) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		result.AddError(name, name+" must be a non-negative integer")
		return 0
	}
	return n
}

// ValidateJobStatus checks an optional status filter.
func ValidateJobStatus(raw string, result *ValidationResult) *model.JobStatus {
	if raw == "" {
		return nil
	}
	status := model.JobStatus(raw)
	switch status {
	case model.JobStatusPending, model.JobStatusRunning, model.JobStatusCompleted,
		model.JobStatusFailed, model.JobStatusCancelled:
		return &status
	}
	result.AddError("status", fmt.Sprintf("unknown job status '%s'", raw))
	return nil
}

// ValidateEntityType checks that raw names one of the known entity types.
func ValidateEntityType(raw string, known []model.EntityType, result *ValidationResult) {
	if raw == "" {
		result.AddError("entity_type", "entity_type is required")
		return
	}
	for _, t := range known {
		if string(t) == raw {
			return
		}
	}
	result.AddError("entity_type", fmt.Sprintf("unknown entity type '%s'", raw))
}

// DecodeDocuments accepts either a single document object or an array of documents. Field level
// validation is left to the index, which reports every rejected document.
func DecodeDocuments(body []byte) ([]model.Document, bool, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, fmt.Errorf("request body is empty")
	}

	if body[0] == '[' {
		var docs []model.Document
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, true, err
		}
		return docs, true, nil
	}

	var doc model.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false, err
	}
	return []model.Document{doc}, false, nil
}

// ValidateDocuments performs the request level checks on decoded documents.
func ValidateDocuments(docs []model.Document) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(docs) == 0 {
		result.AddError("documents", "No documents provided")
		return result
	}

	for i, doc := range docs {
		if strings.TrimSpace(doc.EntityID) == "" {
			result.AddError(fmt.Sprintf("documents[%d].entity_id", i), "Document must have a non-empty 'entity_id'")
		}
		if doc.EntityType == "" {
			result.AddError(fmt.Sprintf("documents[%d].entity_type", i), "Document must have an 'entity_type'")
		}
	}

	return result
}

// SendValidationError sends a standardized validation error response
func SendValidationError(c *gin.Context, result *ValidationResult) {
	SendStructuredValidationError(c, result)
}
