package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/entity-search/model"
	"github.com/gcbaptista/entity-search/services"
)

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query       string             `json:"query"`
	EntityTypes []model.EntityType `json:"entity_types,omitempty"`
	Filters     map[string]any     `json:"filters,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	Offset      int                `json:"offset,omitempty"`
	SortBy      string             `json:"sort_by,omitempty"`
	SortOrder   string             `json:"sort_order,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	Context     *ContextRequest    `json:"context,omitempty"`
}

// ContextRequest carries ranking signals supplied by the caller instead of the stored session.
type ContextRequest struct {
	Preferences    map[model.EntityType]float64 `json:"preferences,omitempty"`
	RecentEntities []string                     `json:"recent_entities,omitempty"`
	SearchHistory  []string                     `json:"search_history,omitempty"`
}

func (r SearchRequest) toQuery() services.SearchQuery {
	q := services.SearchQuery{
		Query:       r.Query,
		EntityTypes: r.EntityTypes,
		Filters:     r.Filters,
		Limit:       r.Limit,
		Offset:      r.Offset,
		SortBy:      r.SortBy,
		SortOrder:   r.SortOrder,
		UserID:      r.UserID,
	}
	if r.Context != nil {
		sc := model.NewSearchContext(r.UserID, r.Context.Preferences, r.Context.RecentEntities, r.Context.SearchHistory)
		q.Context = &sc
	}
	return q
}

// SearchHandler runs a search across entity types. Responses that timed out or lost some entity
// types are still successful; the flags in the body say so.
func (api *API) SearchHandler(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}

	resp, err := api.engine.Search(c.Request.Context(), req.toQuery())
	if err != nil {
		SendServiceError(c, ErrorCodeSearchFailed, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SuggestHandler completes a prefix: GET /suggest?prefix=&entity_type=&limit=
func (api *API) SuggestHandler(c *gin.Context) {
	result := &ValidationResult{Valid: true}
	limit := ValidateOptionalInt(c, "limit", result)
	if result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	suggestions, err := api.engine.Suggest(c.Request.Context(), services.SuggestQuery{
		Prefix:     c.Query("prefix"),
		EntityType: model.EntityType(c.Query("entity_type")),
		Limit:      limit,
	})
	if err != nil {
		SendServiceError(c, ErrorCodeSearchFailed, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
