package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/entity-search/model"
)

// SessionResponse is the wire form of a user's ranking signals.
type SessionResponse struct {
	UserID         string                       `json:"user_id"`
	Preferences    map[model.EntityType]float64 `json:"preferences"`
	RecentEntities []string                     `json:"recent_entities"`
	SearchHistory  []string                     `json:"search_history"`
}

// PreferencesRequest is the body of PUT /sessions/:userId/preferences.
type PreferencesRequest struct {
	Preferences map[model.EntityType]float64 `json:"preferences"`
}

// InteractionRequest is the body of POST /sessions/:userId/interactions.
type InteractionRequest struct {
	EntityID string `json:"entity_id"`
}

// GetSessionHandler returns the signals stored for a user. Unknown users get an empty session.
func (api *API) GetSessionHandler(c *gin.Context) {
	userID := c.Param("userId")
	if result := ValidateIdentifier("user_id", userID); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	sc := api.engine.Sessions().Context(userID)
	recent := sc.RecentEntities()
	sort.Strings(recent)

	resp := SessionResponse{
		UserID:         userID,
		Preferences:    sc.Preferences,
		RecentEntities: recent,
		SearchHistory:  sc.SearchHistory,
	}
	if resp.Preferences == nil {
		resp.Preferences = map[model.EntityType]float64{}
	}
	if resp.SearchHistory == nil {
		resp.SearchHistory = []string{}
	}
	c.JSON(http.StatusOK, resp)
}

// SetPreferencesHandler replaces a user's entity type preferences.
func (api *API) SetPreferencesHandler(c *gin.Context) {
	userID := c.Param("userId")
	if result := ValidateIdentifier("user_id", userID); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	var req PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if err := api.engine.Sessions().SetPreferences(userID, req.Preferences); err != nil {
		SendServiceError(c, ErrorCodeInternalError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "preferences": req.Preferences})
}

// RecordInteractionHandler marks an entity as recently viewed by the user.
func (api *API) RecordInteractionHandler(c *gin.Context) {
	userID := c.Param("userId")
	if result := ValidateIdentifier("user_id", userID); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if err := api.engine.Sessions().RecordInteraction(userID, req.EntityID); err != nil {
		SendServiceError(c, ErrorCodeInternalError, err)
		return
	}
	c.Status(http.StatusNoContent)
}
