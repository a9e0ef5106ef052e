// Package search orchestrates one search request: it parses the query, fans out one bounded
// sub-search per entity type, merges and ranks what came back in time and paginates the result.
package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/classifier"
	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/internal/filters"
	"github.com/gcbaptista/entity-search/internal/fuzzy"
	"github.com/gcbaptista/entity-search/internal/logging"
	"github.com/gcbaptista/entity-search/internal/metrics"
	"github.com/gcbaptista/entity-search/internal/ranking"
	"github.com/gcbaptista/entity-search/internal/tokenizer"
	"github.com/gcbaptista/entity-search/model"
	"github.com/gcbaptista/entity-search/services"
)

// Suggester completes the residual query text for the response's suggestions.
type Suggester interface {
	Suggest(ctx context.Context, prefix string, entityType model.EntityType, limit int) ([]string, error)
}

// Dependencies are the collaborators of a Service. Only Shards is required.
type Dependencies struct {
	Shards    []IndexShard
	Suggester Suggester
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time // clock used for recency; defaults to time.Now
}

// Service implements the search orchestrator.
type Service struct {
	cfg        *config.Config
	shards     map[model.EntityType]IndexShard
	extractor  *filters.Extractor
	classifier *classifier.Classifier
	ranker     *ranking.Ranker
	suggester  Suggester
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewService creates a search Service with one shard per configured entity type.
func NewService(cfg *config.Config, deps Dependencies) (*Service, error) {
	s := &Service{
		cfg:        cfg,
		shards:     make(map[model.EntityType]IndexShard, len(deps.Shards)),
		extractor:  filters.NewExtractor(cfg),
		classifier: classifier.New(cfg),
		ranker:     ranking.New(cfg),
		suggester:  deps.Suggester,
		logger:     logging.OrNop(deps.Logger).Named("search"),
		metrics:    deps.Metrics,
		now:        deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	for _, shard := range deps.Shards {
		if shard == nil {
			return nil, fmt.Errorf("shard cannot be nil")
		}
		t := shard.EntityType()
		if !cfg.HasEntityType(t) {
			return nil, fmt.Errorf("shard for unconfigured entity type '%s'", t)
		}
		s.shards[t] = shard
	}
	for _, t := range cfg.EntityTypeNames() {
		if _, ok := s.shards[t]; !ok {
			return nil, fmt.Errorf("no shard for entity type '%s'", t)
		}
	}
	return s, nil
}

// request is a validated search query.
type request struct {
	query     services.SearchQuery
	types     []model.EntityType
	limit     int
	sortBy    string
	sortOrder string
}

// Search runs one search. Validation problems are returned as ValidationError before anything is
// dispatched; timeouts and failing entity types degrade the response instead of failing it.
func (s *Service) Search(ctx context.Context, query services.SearchQuery, sc model.SearchContext) (services.SearchResponse, error) {
	began := time.Now()
	logger := logging.FromContext(ctx, s.logger)
	state := newRequestState(logger)

	req, err := s.validate(query)
	if err != nil {
		s.metrics.ObserveSearch(metrics.OutcomeError, time.Since(began))
		return services.SearchResponse{}, err
	}
	pq, err := s.parse(req.query)
	if err != nil {
		s.metrics.ObserveSearch(metrics.OutcomeError, time.Since(began))
		return services.SearchResponse{}, err
	}
	if err := state.to(StateParsed); err != nil {
		return services.SearchResponse{}, err
	}

	resp := services.SearchResponse{
		QueryID:             uuid.New().String(),
		Results:             []model.ScoredResult{},
		Limit:               req.limit,
		Offset:              req.query.Offset,
		FiltersApplied:      pq.Filters,
		EntityTypeHints:     pq.EntityTypeHints,
		Suggestions:         []string{},
		TimedOutEntityTypes: []model.EntityType{},
		FailedEntityTypes:   []model.EntityType{},
	}

	dctx, cancel := context.WithDeadline(ctx, began.Add(s.cfg.Search.Deadline))
	defer cancel()

	if err := state.to(StateDispatched); err != nil {
		return services.SearchResponse{}, err
	}
	fan := s.fanOut(dctx, pq, s.dispatchOrder(req.types, pq.EntityTypeHints))
	resp.TimedOutEntityTypes = fan.timedOut
	resp.FailedEntityTypes = fan.failed
	resp.Degraded = len(fan.timedOut)+len(fan.failed) > 0

	if fan.completed == 0 && len(fan.timedOut) > 0 {
		return s.timedOut(state, resp, began, logger)
	}

	if err := state.to(StateMerging); err != nil {
		return services.SearchResponse{}, err
	}
	fuzzy.Sort(fan.candidates)
	if ctx.Err() != nil {
		return s.timedOut(state, resp, began, logger)
	}

	ranked := s.ranker.Rank(fan.candidates, sc, pq.EntityTypeHints, s.now())
	sortResults(ranked, req.sortBy, req.sortOrder)
	if err := state.to(StateRanked); err != nil {
		return services.SearchResponse{}, err
	}

	resp.Total = len(ranked)
	resp.Results = paginate(ranked, req.query.Offset, req.limit)
	resp.Suggestions = s.suggestions(dctx, pq, resp.Total, logger)

	if err := state.to(StateResponded); err != nil {
		return services.SearchResponse{}, err
	}
	resp.SearchTimeMs = time.Since(began).Milliseconds()

	outcome := metrics.OutcomeOK
	if resp.Degraded {
		outcome = metrics.OutcomeDegraded
	}
	s.metrics.ObserveSearch(outcome, time.Since(began))
	logger.Debug("search completed",
		zap.String("query_id", resp.QueryID),
		zap.Int("total", resp.Total),
		zap.Bool("degraded", resp.Degraded),
		zap.Int64("took_ms", resp.SearchTimeMs))
	return resp, nil
}

func (s *Service) timedOut(state *requestState, resp services.SearchResponse, began time.Time, logger *zap.Logger) (services.SearchResponse, error) {
	if err := state.to(StateTimedOut); err != nil {
		return services.SearchResponse{}, err
	}
	resp.Degraded = true
	resp.TimedOut = true
	resp.SearchTimeMs = time.Since(began).Milliseconds()
	s.metrics.ObserveSearch(metrics.OutcomeTimedOut, time.Since(began))
	logger.Warn("search timed out",
		zap.String("query_id", resp.QueryID),
		zap.Any("timed_out_entity_types", resp.TimedOutEntityTypes))
	return resp, nil
}

func (s *Service) validate(q services.SearchQuery) (request, error) {
	req := request{query: q, sortBy: q.SortBy, sortOrder: q.SortOrder}

	if n := utf8.RuneCountInString(q.Query); n > s.cfg.Search.MaxQueryLength {
		return req, errors.NewValidationError("query", fmt.Sprintf("query is too long (%d characters, max %d)", n, s.cfg.Search.MaxQueryLength))
	}
	switch {
	case q.Limit < 0:
		return req, errors.NewValidationError("limit", "limit must not be negative")
	case q.Limit == 0:
		req.limit = s.cfg.Search.DefaultLimit
	default:
		req.limit = min(q.Limit, s.cfg.Search.MaxLimit)
	}
	if q.Offset < 0 {
		return req, errors.NewValidationError("offset", "offset must not be negative")
	}

	switch req.sortBy {
	case "":
		req.sortBy = services.SortByRelevance
	case services.SortByRelevance, services.SortByMatchScore, services.SortByPopularity,
		services.SortByLastUpdated, services.SortByEntityID:
	default:
		return req, errors.NewValidationError("sort_by", fmt.Sprintf("unsupported sort field '%s'", q.SortBy))
	}
	switch req.sortOrder {
	case "":
		req.sortOrder = services.SortOrderDesc
	case services.SortOrderAsc, services.SortOrderDesc:
	default:
		return req, errors.NewValidationError("sort_order", "sort_order must be 'asc' or 'desc'")
	}

	seen := make(map[model.EntityType]bool)
	for _, t := range q.EntityTypes {
		if !s.cfg.HasEntityType(t) {
			return req, errors.NewValidationError("entity_types", fmt.Sprintf("unknown entity type '%s'", t))
		}
		if !seen[t] {
			seen[t] = true
			req.types = append(req.types, t)
		}
	}
	if len(req.types) == 0 {
		req.types = s.cfg.EntityTypeNames()
	}
	return req, nil
}

// parse builds the ProcessedQuery. Filter clauses are removed from the text before tokenization.
func (s *Service) parse(q services.SearchQuery) (*model.ProcessedQuery, error) {
	extraction, err := s.extractor.Extract(q.Query, q.Filters)
	if err != nil {
		return nil, err
	}

	tokens := tokenizer.Analyze("", extraction.ResidualText)
	if len(tokens) == 0 && len(extraction.Filters) == 0 {
		return nil, errors.NewValidationError("query", "query text or filters are required")
	}

	pq := &model.ProcessedQuery{
		RawText:         q.Query,
		ResidualText:    extraction.ResidualText,
		Tokens:          tokens,
		EntityTypeHints: s.classifier.Detect(tokens),
		Filters:         extraction.Filters,
		Variations:      make(map[string][]string),
		Weights:         make(map[string]float64),
	}
	for _, tok := range tokens {
		if v := tokenizer.Variations(tok.Text); len(v) > 0 {
			pq.Variations[tok.Text] = v
		}
		if w, ok := s.cfg.Matching.TokenWeights[tok.Text]; ok {
			pq.Weights[tok.Text] = w
		}
	}
	return pq, nil
}

// dispatchOrder returns the targeted types ordered by hint confidence.
func (s *Service) dispatchOrder(targeted []model.EntityType, hints []model.EntityTypeHint) []model.EntityType {
	want := make(map[model.EntityType]bool, len(targeted))
	for _, t := range targeted {
		want[t] = true
	}
	order := make([]model.EntityType, 0, len(targeted))
	for _, h := range hints {
		if want[h.EntityType] {
			order = append(order, h.EntityType)
			delete(want, h.EntityType)
		}
	}
	for _, t := range targeted {
		if want[t] {
			order = append(order, t)
		}
	}
	return order
}

type subResult struct {
	entityType model.EntityType
	candidates []fuzzy.Candidate
	err        error
	took       time.Duration
}

type fanOutResult struct {
	candidates []fuzzy.Candidate
	completed  int
	timedOut   []model.EntityType
	failed     []model.EntityType
}

// fanOut runs one sub-search per type and collects what finishes before ctx's deadline. Late
// sub-searches are abandoned: the results channel has room for every type so they never block.
func (s *Service) fanOut(ctx context.Context, pq *model.ProcessedQuery, order []model.EntityType) fanOutResult {
	logger := logging.FromContext(ctx, s.logger)
	results := make(chan subResult, len(order))
	dispatched := time.Now()

	go func() {
		var g errgroup.Group
		g.SetLimit(s.cfg.Search.MaxConcurrentSubSearch)
		for _, t := range order {
			t := t
			shard := s.shards[t]
			g.Go(func() error {
				sctx, cancel := context.WithTimeout(ctx, s.cfg.Search.SubSearchTimeout)
				defer cancel()

				started := time.Now()
				candidates, err := shard.Search(sctx, pq)
				results <- subResult{entityType: t, candidates: candidates, err: err, took: time.Since(started)}
				return nil
			})
		}
		_ = g.Wait()
	}()

	status := make(map[model.EntityType]string, len(order))
	var out fanOutResult

collect:
	for len(status) < len(order) {
		select {
		case r := <-results:
			switch {
			case r.err == nil:
				status[r.entityType] = metrics.OutcomeOK
				out.completed++
				out.candidates = append(out.candidates, r.candidates...)
			case stderrors.Is(r.err, context.DeadlineExceeded) || stderrors.Is(r.err, context.Canceled):
				status[r.entityType] = metrics.OutcomeTimeout
			default:
				status[r.entityType] = metrics.OutcomeError
				logger.Warn("sub-search failed", zap.String("entity_type", string(r.entityType)), zap.Error(r.err))
			}
			s.metrics.ObserveSubSearch(string(r.entityType), status[r.entityType], r.took)
		case <-ctx.Done():
			break collect
		}
	}

	for _, t := range order {
		switch st, ok := status[t]; {
		case !ok:
			s.metrics.ObserveSubSearch(string(t), metrics.OutcomeTimeout, time.Since(dispatched))
			out.timedOut = append(out.timedOut, t)
		case st == metrics.OutcomeTimeout:
			out.timedOut = append(out.timedOut, t)
		case st == metrics.OutcomeError:
			out.failed = append(out.failed, t)
		}
	}
	if out.timedOut == nil {
		out.timedOut = []model.EntityType{}
	}
	if out.failed == nil {
		out.failed = []model.EntityType{}
	}
	return out
}

// suggestions completes the residual text when the response is thin and budget remains.
func (s *Service) suggestions(ctx context.Context, pq *model.ProcessedQuery, total int, logger *zap.Logger) []string {
	n := s.cfg.Search.ResponseSuggestions
	if s.suggester == nil || n <= 0 || strings.TrimSpace(pq.ResidualText) == "" || ctx.Err() != nil {
		return []string{}
	}
	if below := s.cfg.Search.SuggestionsBelowResults; below > 0 && total >= below {
		return []string{}
	}
	out, err := s.suggester.Suggest(ctx, pq.ResidualText, "", n)
	if err != nil {
		logger.Debug("response suggestions skipped", zap.Error(err))
		return []string{}
	}
	return out
}

// sortResults reorders ranked results. The sort is stable, so ties keep their relevance order.
func sortResults(results []model.ScoredResult, sortBy, order string) {
	asc := order == services.SortOrderAsc
	if sortBy == services.SortByRelevance && !asc {
		return
	}

	var cmp func(a, b model.ScoredResult) int
	switch sortBy {
	case services.SortByMatchScore:
		cmp = func(a, b model.ScoredResult) int { return compareFloat(a.MatchScore, b.MatchScore) }
	case services.SortByPopularity:
		cmp = func(a, b model.ScoredResult) int { return compareFloat(a.PopularityScore, b.PopularityScore) }
	case services.SortByLastUpdated:
		cmp = func(a, b model.ScoredResult) int { return a.LastUpdated.Compare(b.LastUpdated) }
	case services.SortByEntityID:
		cmp = func(a, b model.ScoredResult) int { return strings.Compare(a.EntityID, b.EntityID) }
	default:
		cmp = func(a, b model.ScoredResult) int { return compareFloat(a.FinalScore, b.FinalScore) }
	}

	sort.SliceStable(results, func(i, j int) bool {
		c := cmp(results[i], results[j])
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func paginate(results []model.ScoredResult, offset, limit int) []model.ScoredResult {
	if offset >= len(results) {
		return []model.ScoredResult{}
	}
	end := min(offset+limit, len(results))
	return results[offset:end]
}
