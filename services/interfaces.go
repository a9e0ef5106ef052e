package services

import (
	"context"

	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/indexing"
	"github.com/gcbaptista/entity-search/internal/jobs"
	"github.com/gcbaptista/entity-search/model"
)

// Sort fields accepted by SearchQuery.SortBy.
const (
	SortByRelevance   = "relevance"
	SortByMatchScore  = "match_score"
	SortByPopularity  = "popularity"
	SortByLastUpdated = "last_updated"
	SortByEntityID    = "entity_id"

	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// SearchQuery is one search request.
type SearchQuery struct {
	Query       string             `json:"query"`
	EntityTypes []model.EntityType `json:"entity_types,omitempty"` // empty: every configured type
	Filters     map[string]any     `json:"filters,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	Offset      int                `json:"offset,omitempty"`
	SortBy      string             `json:"sort_by,omitempty"`
	SortOrder   string             `json:"sort_order,omitempty"`

	// UserID selects a stored session. Context, when set, is used instead of the stored one.
	UserID  string               `json:"user_id,omitempty"`
	Context *model.SearchContext `json:"context,omitempty"`
}

// SearchResponse is the result of a search. Degraded is set when at least one entity type did not
// contribute, TimedOut when none did.
type SearchResponse struct {
	QueryID             string                      `json:"query_id"`
	Results             []model.ScoredResult        `json:"results"`
	Total               int                         `json:"total"`
	Limit               int                         `json:"limit"`
	Offset              int                         `json:"offset"`
	FiltersApplied      map[string]model.Constraint `json:"filters_applied"`
	EntityTypeHints     []model.EntityTypeHint      `json:"entity_type_hints,omitempty"`
	Suggestions         []string                    `json:"suggestions"`
	SearchTimeMs        int64                       `json:"search_time_ms"`
	Degraded            bool                        `json:"degraded"`
	TimedOut            bool                        `json:"timed_out"`
	TimedOutEntityTypes []model.EntityType          `json:"timed_out_entity_types"`
	FailedEntityTypes   []model.EntityType          `json:"failed_entity_types"`
}

// SuggestQuery is one completion request. An empty EntityType covers every type.
type SuggestQuery struct {
	Prefix     string           `json:"prefix"`
	EntityType model.EntityType `json:"entity_type,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

// Searcher runs searches across entity types.
type Searcher interface {
	Search(ctx context.Context, query SearchQuery) (SearchResponse, error)
}

// Suggester completes prefixes.
type Suggester interface {
	Suggest(ctx context.Context, query SuggestQuery) ([]string, error)
}

// Indexer defines operations for adding and removing documents
type Indexer interface {
	Upsert(doc model.Document) error
	UpsertBatch(ctx context.Context, docs []model.Document) indexing.BatchResult
	// UpsertAsync schedules a batch as a background job and returns the job ID.
	UpsertAsync(docs []model.Document) (string, error)
	// Remove deletes a document from the given entity types, or from all of them when none is given.
	Remove(entityID string, types ...model.EntityType) ([]model.EntityType, error)
	Get(entityType model.EntityType, entityID string) (model.Document, bool)
	EntityTypes() []model.EntityType
}

// SessionStore keeps the per-user signals the ranker consumes.
type SessionStore interface {
	Context(userID string) model.SearchContext
	SetPreferences(userID string, prefs map[model.EntityType]float64) error
	RecordInteraction(userID, entityID string) error
	RecordQuery(userID, query string)
}

// JobManager defines operations for inspecting background jobs
type JobManager interface {
	GetJob(jobID string) (*model.Job, error)
	ListJobs(status *model.JobStatus) []*model.Job
}

// Stats is the service-wide status report served by /stats.
// StoredDocuments is -1 when the service runs without a document store.
type Stats struct {
	Indexes         []index.Stats `json:"indexes"`
	StoredDocuments int           `json:"stored_documents"`
	Jobs            jobs.Stats    `json:"jobs"`
	Sessions        int           `json:"sessions"`
}

// SearchEngine is everything the transport layers need.
type SearchEngine interface {
	Searcher
	Suggester
	Indexer
	JobManager
	Sessions() SessionStore
	Stats() Stats
}
