// Package ranking turns match candidates into final scores by blending the match score with
// contextual boosts: entity type preference, recency, user behavior and popularity.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/fuzzy"
	"github.com/gcbaptista/entity-search/internal/tokenizer"
	"github.com/gcbaptista/entity-search/model"
)

// Ranker computes final scores. It holds only configuration and is safe for concurrent use.
type Ranker struct {
	weights   config.RankingWeights
	pivot     float64
	history   float64
	halfLives map[model.EntityType]time.Duration
}

// New creates a ranker. The configuration must already be validated: the weights are used as-is.
func New(cfg *config.Config) *Ranker {
	r := &Ranker{
		weights:   cfg.Ranking.Weights,
		pivot:     cfg.Ranking.PopularityPivot,
		history:   cfg.Ranking.HistoryBoost,
		halfLives: make(map[model.EntityType]time.Duration, len(cfg.EntityTypes)),
	}
	for t, et := range cfg.EntityTypes {
		r.halfLives[t] = et.RecencyHalfLife
	}
	return r
}

// Rank scores candidates and returns them ordered by final score, highest first. Candidates with
// equal final scores keep their input order, so callers should pass them sorted with fuzzy.Less.
// sc is only read.
func (r *Ranker) Rank(candidates []fuzzy.Candidate, sc model.SearchContext, hints []model.EntityTypeHint, now time.Time) []model.ScoredResult {
	hinted := make(map[model.EntityType]float64, len(hints))
	for _, h := range hints {
		hinted[h.EntityType] = h.Confidence
	}
	past := historyTerms(sc.SearchHistory)

	results := make([]model.ScoredResult, len(candidates))
	for i, c := range candidates {
		doc := c.Document
		boosts := model.Boosts{
			TypePreference: r.typePreference(doc.EntityType, sc, hinted),
			Recency:        r.Recency(doc.EntityType, doc.LastUpdated, now),
			Behavior:       r.behavior(doc.EntityID, sc, past),
			Popularity:     r.Popularity(doc.PopularityScore),
		}
		match := clamp(c.Match.Score)

		results[i] = model.ScoredResult{
			EntityID:        doc.EntityID,
			EntityType:      doc.EntityType,
			Title:           doc.Title(),
			MatchScore:      match,
			Boosts:          boosts,
			FinalScore:      r.final(match, boosts),
			Highlights:      c.Match.Highlights,
			PopularityScore: doc.PopularityScore,
			LastUpdated:     doc.LastUpdated,
			Attributes:      doc.Attributes,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	return results
}

func (r *Ranker) final(match float64, b model.Boosts) float64 {
	w := r.weights
	return w.Match*match +
		w.TypePreference*b.TypePreference +
		w.Recency*b.Recency +
		w.Behavior*b.Behavior +
		w.Popularity*b.Popularity
}

// typePreference prefers an explicit user preference over the classifier's hint.
func (r *Ranker) typePreference(t model.EntityType, sc model.SearchContext, hinted map[model.EntityType]float64) float64 {
	if p, ok := sc.Preferences[t]; ok {
		return clamp(p)
	}
	return clamp(hinted[t])
}

// Recency decays by half every half-life of the entity type. Unknown timestamps score 0 and
// timestamps in the future score 1.
func (r *Ranker) Recency(t model.EntityType, lastUpdated, now time.Time) float64 {
	if lastUpdated.IsZero() {
		return 0
	}
	age := now.Sub(lastUpdated)
	if age <= 0 {
		return 1
	}
	halfLife := r.halfLives[t]
	if halfLife <= 0 {
		return 0
	}
	return clamp(math.Pow(0.5, float64(age)/float64(halfLife)))
}

// Popularity saturates towards 1: p/(p+pivot).
func (r *Ranker) Popularity(p float64) float64 {
	if p <= 0 || math.IsNaN(p) {
		return 0
	}
	if math.IsInf(p, 1) {
		return 1
	}
	return clamp(p / (p + r.pivot))
}

func (r *Ranker) behavior(entityID string, sc model.SearchContext, past map[string]struct{}) float64 {
	if sc.HasInteracted(entityID) {
		return 1
	}
	if _, ok := past[tokenizer.Normalize(entityID)]; ok {
		return clamp(r.history)
	}
	return 0
}

// historyTerms collects the normalized tokens of past queries, plus each whole normalized query
// so that multi-token ids still match.
func historyTerms(history []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, q := range history {
		for _, t := range tokenizer.Tokenize(q) {
			out[t] = struct{}{}
		}
		if n := tokenizer.Normalize(q); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
