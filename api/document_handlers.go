package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/entity-search/model"
)

// UpsertDocumentsHandler adds or replaces documents. The body is a single document or an array.
// With ?async=true the documents are indexed by a background job and 202 is returned with its ID.
func (api *API) UpsertDocumentsHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	docs, isArray, err := DecodeDocuments(body)
	if err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateDocuments(docs); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	if c.Query("async") == "true" {
		jobID, err := api.engine.UpsertAsync(docs)
		if err != nil {
			SendServiceError(c, ErrorCodeIndexingFailed, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"status":         "accepted",
			"message":        fmt.Sprintf("Indexing started for %d documents", len(docs)),
			"job_id":         jobID,
			"document_count": len(docs),
		})
		return
	}

	if !isArray {
		if err := api.engine.Upsert(docs[0]); err != nil {
			SendServiceError(c, ErrorCodeIndexingFailed, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"indexed": 1})
		return
	}

	result := api.engine.UpsertBatch(c.Request.Context(), docs)
	if result.Indexed == 0 {
		details := make([]ErrorDetail, len(result.Failures))
		for i, f := range result.Failures {
			details[i] = ErrorDetail{Field: fmt.Sprintf("documents[%d]", f.Position), Message: f.Error}
		}
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidDocument, "No document could be indexed", details...)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetDocumentHandler returns an indexed document: GET /documents/:entityId?entity_type=
func (api *API) GetDocumentHandler(c *gin.Context) {
	entityID := c.Param("entityId")
	entityType := c.Query("entity_type")

	result := ValidateIdentifier("entity_id", entityID)
	ValidateEntityType(entityType, api.engine.EntityTypes(), result)
	if result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	doc, ok := api.engine.Get(model.EntityType(entityType), entityID)
	if !ok {
		SendDocumentNotFoundError(c, entityType, entityID)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteDocumentHandler removes a document from one entity type, or from every type when
// entity_type is omitted. Removing a missing document succeeds with an empty "removed_from".
func (api *API) DeleteDocumentHandler(c *gin.Context) {
	entityID := c.Param("entityId")
	if result := ValidateIdentifier("entity_id", entityID); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	var types []model.EntityType
	if t := c.Query("entity_type"); t != "" {
		types = append(types, model.EntityType(t))
	}

	removed, err := api.engine.Remove(entityID, types...)
	if err != nil {
		SendServiceError(c, ErrorCodeIndexingFailed, err)
		return
	}
	if removed == nil {
		removed = []model.EntityType{}
	}
	c.JSON(http.StatusOK, gin.H{"entity_id": entityID, "removed_from": removed})
}
