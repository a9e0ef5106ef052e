package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gcbaptista/entity-search/internal/logging"
	"github.com/gcbaptista/entity-search/internal/metrics"
	"github.com/gcbaptista/entity-search/services"
)

// API holds dependencies for API handlers, primarily the search engine.
type API struct {
	engine       services.SearchEngine
	metrics      *metrics.Metrics
	logger       *zap.Logger
	maxBodyBytes int64
}

// Options configures the HTTP layer. Zero values disable the corresponding feature.
type Options struct {
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	MaxBodyBytes int64
}

// NewAPI creates a new API handler structure.
func NewAPI(engine services.SearchEngine, opts Options) *API {
	return &API{
		engine:       engine,
		metrics:      opts.Metrics,
		logger:       logging.OrNop(opts.Logger).Named("http"),
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// SetupRoutes installs the middleware chain and every route of the search service.
func SetupRoutes(router *gin.Engine, engine services.SearchEngine, opts Options) {
	apiHandler := NewAPI(engine, opts)

	router.Use(RequestIDMiddleware(), LoggingMiddleware(apiHandler.logger), CORSMiddleware())
	if apiHandler.metrics != nil {
		router.Use(apiHandler.metrics.GinMiddleware())
	}
	if apiHandler.maxBodyBytes > 0 {
		router.Use(RequestSizeLimitMiddleware(apiHandler.maxBodyBytes))
	}

	// Operational routes
	router.GET("/health", apiHandler.HealthCheckHandler)
	router.GET("/stats", apiHandler.StatsHandler)
	router.GET("/metrics", gin.WrapH(apiHandler.metrics.Handler()))

	// Query routes
	router.POST("/search", apiHandler.SearchHandler)
	router.GET("/suggest", apiHandler.SuggestHandler)

	// Document routes
	docRoutes := router.Group("/documents")
	{
		docRoutes.PUT("", apiHandler.UpsertDocumentsHandler)              // Add/Update one document or an array
		docRoutes.GET("/:entityId", apiHandler.GetDocumentHandler)       // ?entity_type= required
		docRoutes.DELETE("/:entityId", apiHandler.DeleteDocumentHandler) // ?entity_type= optional, all types otherwise
	}

	// Job routes
	jobRoutes := router.Group("/jobs")
	{
		jobRoutes.GET("", apiHandler.ListJobsHandler)
		jobRoutes.GET("/:jobId", apiHandler.GetJobHandler)
	}

	// Session routes
	sessionRoutes := router.Group("/sessions/:userId")
	{
		sessionRoutes.GET("", apiHandler.GetSessionHandler)
		sessionRoutes.PUT("/preferences", apiHandler.SetPreferencesHandler)
		sessionRoutes.POST("/interactions", apiHandler.RecordInteractionHandler)
	}
}

// HealthCheckHandler provides a simple health check endpoint
func (api *API) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "entity-search",
		"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
	})
}

// StatsHandler reports index sizes, job counts and live sessions.
func (api *API) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.engine.Stats())
}
