package search

import (
	"context"
	"sort"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/filters"
	"github.com/gcbaptista/entity-search/internal/fuzzy"
	"github.com/gcbaptista/entity-search/model"
)

// cancelCheckEvery is how many terms or entries are visited between context checks.
const cancelCheckEvery = 256

// IndexShard runs the sub-search of one entity type.
type IndexShard interface {
	EntityType() model.EntityType
	Search(ctx context.Context, pq *model.ProcessedQuery) ([]fuzzy.Candidate, error)
}

type indexShard struct {
	ix         *index.InvertedIndex
	matcher    *fuzzy.Matcher
	filterable func(key string) bool
	minScore   float64
	maxCands   int
}

// NewIndexShard serves sub-searches from one inverted index. A document without a value for a
// filtered key is excluded when any entity type of cfg declares the key filterable.
func NewIndexShard(ix *index.InvertedIndex, matcher *fuzzy.Matcher, cfg *config.Config) IndexShard {
	return &indexShard{
		ix:         ix,
		matcher:    matcher,
		filterable: filters.NewExtractor(cfg).IsFilterable,
		minScore:   cfg.Search.MinMatchScore,
		maxCands:   cfg.Search.MaxCandidatesPerType,
	}
}

func (s *indexShard) EntityType() model.EntityType { return s.ix.EntityType() }

// Search returns the filtered, scored candidates of the index sorted by fuzzy.Less. The whole
// sub-search runs inside one read view, so it sees a single version of every document.
func (s *indexShard) Search(ctx context.Context, pq *model.ProcessedQuery) ([]fuzzy.Candidate, error) {
	var out []fuzzy.Candidate
	err := s.ix.View(func(r *index.Reader) error {
		var err error
		if pq.IsBrowse() {
			out, err = s.browse(ctx, r, pq, s.filterable)
		} else {
			out, err = s.match(ctx, r, pq, s.filterable)
		}
		if err != nil {
			return err
		}

		fuzzy.Sort(out)
		if s.maxCands > 0 && len(out) > s.maxCands {
			out = out[:s.maxCands]
		}
		for i := range out {
			out[i].Document = out[i].Document.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// browse returns every document passing the filters, with a zero match score.
func (s *indexShard) browse(ctx context.Context, r *index.Reader, pq *model.ProcessedQuery, declared func(string) bool) ([]fuzzy.Candidate, error) {
	var out []fuzzy.Candidate
	var visited int
	var err error
	r.Entries(func(e *index.Entry) bool {
		visited++
		if visited%cancelCheckEvery == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}
		if filters.Matches(pq.Filters, e.Document, declared) {
			out = append(out, fuzzy.Candidate{Document: e.Document})
		}
		return true
	})
	if err == nil {
		err = ctx.Err()
	}
	return out, err
}

// match collects candidate documents through the index term lookups, then filters and scores them.
func (s *indexShard) match(ctx context.Context, r *index.Reader, pq *model.ProcessedQuery, declared func(string) bool) ([]fuzzy.Candidate, error) {
	scorer := s.matcher.NewScorer(pq)
	docIDs := make(map[uint32]struct{})
	err := scorer.Collect(ctx, r, func(term string) {
		for _, p := range r.Lookup(term) {
			docIDs[p.DocID] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uint32, 0, len(docIDs))
	for id := range docIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []fuzzy.Candidate
	for i, id := range ids {
		if i%cancelCheckEvery == cancelCheckEvery-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e, ok := r.Entry(id)
		if !ok || !filters.Matches(pq.Filters, e.Document, declared) {
			continue
		}
		m := scorer.Match(e.Fields)
		if m.Score < s.minScore {
			continue
		}
		out = append(out, fuzzy.Candidate{Document: e.Document, Match: m})
	}
	return out, ctx.Err()
}
