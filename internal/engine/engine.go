// Package engine wires the indexes, the search orchestrator, suggestions, sessions and background
// jobs into a single services.SearchEngine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/fuzzy"
	"github.com/gcbaptista/entity-search/internal/indexing"
	"github.com/gcbaptista/entity-search/internal/jobs"
	"github.com/gcbaptista/entity-search/internal/logging"
	"github.com/gcbaptista/entity-search/internal/metrics"
	"github.com/gcbaptista/entity-search/internal/search"
	"github.com/gcbaptista/entity-search/internal/session"
	"github.com/gcbaptista/entity-search/internal/suggest"
	"github.com/gcbaptista/entity-search/model"
	"github.com/gcbaptista/entity-search/services"
	"github.com/gcbaptista/entity-search/store"
)

var _ services.SearchEngine = (*Engine)(nil)

// Option customizes an Engine.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the Prometheus collectors. Without it nothing is recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces the clock used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Engine is the search service. It implements services.SearchEngine.
type Engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	catalog   *indexing.Catalog
	searcher  *search.Service
	suggester *suggest.Engine
	sessions  *session.Store
	jobs      *jobs.Manager

	closeOnce sync.Once
	closeErr  error
}

// New builds an Engine from a configuration. When cfg.Storage.Path is set, documents are kept in a
// bolt file and reloaded into the indexes before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	var st store.DocumentStore
	if cfg.Storage.Path != "" {
		bolt, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		st = bolt
	}

	catalog, err := indexing.NewCatalog(cfg, st, logger, o.metrics)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}
	if _, err := catalog.Restore(ctx); err != nil {
		_ = catalog.Close()
		return nil, err
	}

	matcher := fuzzy.New(cfg.Matching)
	shards := make([]search.IndexShard, 0, len(cfg.EntityTypes))
	for _, t := range catalog.EntityTypes() {
		ix, _ := catalog.Index(t)
		shards = append(shards, search.NewIndexShard(ix, matcher, cfg))
	}

	suggester := suggest.New(cfg, catalog, logger.Named("suggest"))
	searcher, err := search.NewService(cfg, search.Dependencies{
		Shards:    shards,
		Suggester: suggester,
		Logger:    logger,
		Metrics:   o.metrics,
		Now:       o.now,
	})
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("failed to create search service: %w", err)
	}

	sessions, err := session.New(cfg.Sessions, cfg.EntityTypeNames())
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		metrics:   o.metrics,
		catalog:   catalog,
		searcher:  searcher,
		suggester: suggester,
		sessions:  sessions,
		jobs:      jobs.NewManager(cfg.Ingest.JobSlots, logger, o.metrics),
	}
	e.jobs.Start()

	logger.Info("search engine ready",
		zap.Int("entity_types", len(shards)),
		zap.Bool("persistent", st != nil))
	return e, nil
}

// Search resolves the caller's context, runs the search and records the query in the session.
// An explicit query.Context takes precedence over the stored session.
func (e *Engine) Search(ctx context.Context, query services.SearchQuery) (services.SearchResponse, error) {
	sc := e.resolveContext(query)
	resp, err := e.searcher.Search(ctx, query, sc)
	if err != nil {
		return resp, err
	}
	e.sessions.RecordQuery(query.UserID, query.Query)
	return resp, nil
}

func (e *Engine) resolveContext(query services.SearchQuery) model.SearchContext {
	if query.Context == nil {
		return e.sessions.Context(query.UserID)
	}
	sc := *query.Context
	if sc.UserID == "" {
		sc.UserID = query.UserID
	}
	return model.NewSearchContext(sc.UserID, sc.Preferences, sc.RecentEntities(), sc.SearchHistory)
}

// Suggest completes a prefix.
func (e *Engine) Suggest(ctx context.Context, query services.SuggestQuery) ([]string, error) {
	start := time.Now()
	out, err := e.suggester.Suggest(ctx, query.Prefix, query.EntityType, query.Limit)
	if err != nil {
		e.metrics.ObserveSuggest(metrics.OutcomeError, time.Since(start))
		return nil, err
	}
	e.metrics.ObserveSuggest(metrics.OutcomeOK, time.Since(start))
	return out, nil
}

// Sessions exposes the session store.
func (e *Engine) Sessions() services.SessionStore {
	return e.sessions
}

// GetJob returns a snapshot of a background job.
func (e *Engine) GetJob(jobID string) (*model.Job, error) {
	return e.jobs.GetJob(jobID)
}

// ListJobs returns the tracked jobs, optionally filtered by status.
func (e *Engine) ListJobs(status *model.JobStatus) []*model.Job {
	return e.jobs.ListJobs(status)
}

// Stats reports index sizes, job counts and the number of live sessions.
func (e *Engine) Stats() services.Stats {
	stored, err := e.catalog.StoredDocuments()
	if err != nil {
		e.logger.Warn("failed to read document store size", zap.Error(err))
	}
	return services.Stats{
		Indexes:         e.catalog.Stats(),
		StoredDocuments: stored,
		Jobs:            e.jobs.Stats(),
		Sessions:        e.sessions.Len(),
	}
}

// Close cancels running jobs and closes the document store. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.jobs.Stop()
		if err := e.catalog.Close(); err != nil {
			e.closeErr = fmt.Errorf("failed to close document store: %w", err)
		}
		e.logger.Info("search engine closed")
	})
	return e.closeErr
}
