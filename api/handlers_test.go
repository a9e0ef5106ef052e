package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/entity-search/internal/engine"
	"github.com/gcbaptista/entity-search/internal/metrics"
	"github.com/gcbaptista/entity-search/internal/testutil"
	"github.com/gcbaptista/entity-search/model"
	"github.com/gcbaptista/entity-search/services"
)

func setupTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(context.Background(), testutil.Config(), engine.WithClock(func() time.Time { return testutil.Now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.Empty(t, eng.UpsertBatch(context.Background(), testutil.Corpus()).Failures)
	return eng
}

func setupTestRouter(t *testing.T, eng services.SearchEngine, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, eng, opts)
	return router
}

func do(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSearchHandler(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	w := do(router, http.MethodPost, "/search", SearchRequest{Query: "aapl", Limit: 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[services.SearchResponse](t, w)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "AAPL", resp.Results[0].EntityID)
	assert.Equal(t, 5, resp.Limit)
	assert.NotEmpty(t, resp.QueryID)
	assert.False(t, resp.TimedOut)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestSearchHandler_Errors(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   ErrorCode
	}{
		{"invalid JSON", "{not json", http.StatusBadRequest, ErrorCodeInvalidJSON},
		{"empty query", SearchRequest{}, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"negative offset", SearchRequest{Query: "apple", Offset: -1}, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"unknown entity type", SearchRequest{Query: "apple", EntityTypes: []model.EntityType{"etf"}}, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"bad sort", SearchRequest{Query: "apple", SortBy: "colour"}, http.StatusBadRequest, ErrorCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/search", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			apiErr := decode[APIError](t, w)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestSearchHandler_ExplicitContext(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	w := do(router, http.MethodPost, "/search", SearchRequest{
		Query: "energy",
		Context: &ContextRequest{
			Preferences:    map[model.EntityType]float64{model.EntityTypePortfolio: 1, model.EntityTypeSector: 0, model.EntityTypeCompany: 0},
			RecentEntities: []string{"p2"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[services.SearchResponse](t, w)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "p2", resp.Results[0].EntityID)
}

func TestSuggestHandler(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	w := do(router, http.MethodGet, "/suggest?prefix=micro&entity_type=company&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[map[string][]string](t, w)
	assert.Contains(t, body["suggestions"], "Microsoft Corporation")

	w = do(router, http.MethodGet, "/suggest?prefix=micro&limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/suggest?prefix=micro&entity_type=etf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrorCodeValidationFailed, decode[APIError](t, w).Code)
}

func TestUpsertDocumentsHandler(t *testing.T) {
	eng := setupTestEngine(t)
	router := setupTestRouter(t, eng, Options{})

	zeph := testutil.Company("ZEPH", "Zephyrine Robotics", "Technology", 20, nil)

	t.Run("single object", func(t *testing.T) {
		w := do(router, http.MethodPut, "/documents", zeph)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(router, http.MethodPost, "/search", SearchRequest{Query: "zephyrine"})
		resp := decode[services.SearchResponse](t, w)
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, "ZEPH", resp.Results[0].EntityID)
	})

	t.Run("array with a bad document", func(t *testing.T) {
		bad := model.Document{EntityID: "NOFIELDS", EntityType: model.EntityTypeCompany}
		w := do(router, http.MethodPut, "/documents", []model.Document{zeph, bad})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode[struct {
			Indexed  int `json:"indexed"`
			Failures []struct {
				Position int    `json:"position"`
				EntityID string `json:"entity_id"`
			} `json:"failures"`
		}](t, w)
		assert.Equal(t, 1, body.Indexed)
		require.Len(t, body.Failures, 1)
		assert.Equal(t, 1, body.Failures[0].Position)
	})

	t.Run("invalid document", func(t *testing.T) {
		w := do(router, http.MethodPut, "/documents", model.Document{EntityID: "X", EntityType: "etf", Fields: []model.Field{{Name: "name", Text: "x"}}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, ErrorCodeInvalidDocument, decode[APIError](t, w).Code)
	})

	t.Run("missing id", func(t *testing.T) {
		w := do(router, http.MethodPut, "/documents", []model.Document{{EntityType: model.EntityTypeCompany}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		apiErr := decode[APIError](t, w)
		assert.Equal(t, ErrorCodeValidationFailed, apiErr.Code)
		require.NotEmpty(t, apiErr.Details)
		assert.Equal(t, "documents[0].entity_id", apiErr.Details[0].Field)
	})

	t.Run("not JSON", func(t *testing.T) {
		w := do(router, http.MethodPut, "/documents", "[{")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, ErrorCodeInvalidJSON, decode[APIError](t, w).Code)
	})
}

func TestUpsertDocumentsHandler_Async(t *testing.T) {
	eng := setupTestEngine(t)
	router := setupTestRouter(t, eng, Options{})

	docs := []model.Document{
		testutil.Company("NVDA", "NVIDIA Corporation", "Technology", 97, nil),
		testutil.Company("AMD", "Advanced Micro Devices", "Technology", 80, nil),
	}
	w := do(router, http.MethodPut, "/documents?async=true", docs)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	accepted := decode[map[string]any](t, w)
	jobID, _ := accepted["job_id"].(string)
	require.NotEmpty(t, jobID)

	var job model.Job
	require.Eventually(t, func() bool {
		w := do(router, http.MethodGet, "/jobs/"+jobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		job = decode[model.Job](t, w)
		return job.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.JobStatusCompleted, job.Status)

	w = do(router, http.MethodGet, "/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	w = do(router, http.MethodGet, "/jobs?status=weird", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobHandler_NotFound(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	w := do(router, http.MethodGet, "/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrorCodeJobNotFound, decode[APIError](t, w).Code)
}

func TestDocumentHandlers_GetAndDelete(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	w := do(router, http.MethodGet, "/documents/AAPL?entity_type=company", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AAPL", decode[model.Document](t, w).EntityID)

	w = do(router, http.MethodGet, "/documents/AAPL", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodDelete, "/documents/AAPL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	removed := decode[struct {
		RemovedFrom []model.EntityType `json:"removed_from"`
	}](t, w)
	assert.Equal(t, []model.EntityType{model.EntityTypeCompany}, removed.RemovedFrom)

	w = do(router, http.MethodGet, "/documents/AAPL?entity_type=company", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrorCodeDocumentNotFound, decode[APIError](t, w).Code)

	w = do(router, http.MethodDelete, "/documents/AAPL?entity_type=etf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrorCodeValidationFailed, decode[APIError](t, w).Code)
}

func TestGetDocumentHandler_UnknownEntityType(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	for _, path := range []string{"/documents/AAPL?entity_type=etf", "/documents/MISSING?entity_type=etf"} {
		w := do(router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		apiErr := decode[APIError](t, w)
		assert.Equal(t, ErrorCodeValidationFailed, apiErr.Code, path)
		require.NotEmpty(t, apiErr.Details, path)
		assert.Equal(t, "entity_type", apiErr.Details[0].Field)
	}

	w := do(router, http.MethodGet, "/documents/MISSING?entity_type=company", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandlers(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	w := do(router, http.MethodGet, "/sessions/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[SessionResponse](t, w)
	assert.Empty(t, empty.Preferences)
	assert.Empty(t, empty.SearchHistory)

	w = do(router, http.MethodPut, "/sessions/u1/preferences", PreferencesRequest{
		Preferences: map[model.EntityType]float64{model.EntityTypeMetric: 0.7},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodPut, "/sessions/u1/preferences", PreferencesRequest{
		Preferences: map[model.EntityType]float64{model.EntityTypeMetric: 2},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/sessions/u1/interactions", InteractionRequest{EntityID: "MSFT"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodPost, "/sessions/u1/interactions", InteractionRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	do(router, http.MethodPost, "/search", SearchRequest{Query: "apple", UserID: "u1"})

	w = do(router, http.MethodGet, "/sessions/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := decode[SessionResponse](t, w)
	assert.Equal(t, 0.7, session.Preferences[model.EntityTypeMetric])
	assert.Equal(t, []string{"MSFT"}, session.RecentEntities)
	assert.Equal(t, []string{"apple"}, session.SearchHistory)
}

func TestOperationalHandlers(t *testing.T) {
	m := metrics.New()
	router := setupTestRouter(t, setupTestEngine(t), Options{Metrics: m})

	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	do(router, http.MethodPost, "/search", SearchRequest{Query: "tesla"})

	w = do(router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[services.Stats](t, w)
	assert.Len(t, stats.Indexes, len(testutil.Config().EntityTypes))

	w = do(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entity_search_http_requests_total")
}

func TestRequestSizeLimit(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{MaxBodyBytes: 64})

	w := do(router, http.MethodPost, "/search", `{"query": "`+strings.Repeat("a", 200)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, ErrorCodePayloadTooLarge, decode[APIError](t, w).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := setupTestRouter(t, setupTestEngine(t), Options{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
	assert.Equal(t, "req-123", decode[APIError](t, w).RequestID)
}
