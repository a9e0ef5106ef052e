package ranking

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/fuzzy"
	"github.com/gcbaptista/entity-search/model"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func candidate(id string, typ model.EntityType, score, popularity float64, updated time.Time) fuzzy.Candidate {
	return fuzzy.Candidate{
		Document: model.Document{
			EntityID:        id,
			EntityType:      typ,
			Fields:          []model.Field{{Name: "name", Text: id + " title"}},
			PopularityScore: popularity,
			LastUpdated:     updated,
		},
		Match: fuzzy.MatchResult{Score: score},
	}
}

func TestRank_FinalScoreFormula(t *testing.T) {
	cfg := config.Default()
	r := New(cfg)

	halfLife := cfg.EntityTypes[model.EntityTypeCompany].RecencyHalfLife
	c := candidate("AAPL", model.EntityTypeCompany, 0.8, 100, now.Add(-halfLife))
	sc := model.NewSearchContext("u1", nil, []string{"AAPL"}, nil)
	hints := []model.EntityTypeHint{{EntityType: model.EntityTypeCompany, Confidence: 0.9}}

	results := r.Rank([]fuzzy.Candidate{c}, sc, hints, now)
	require.Len(t, results, 1)
	res := results[0]

	assert.InDelta(t, 0.9, res.Boosts.TypePreference, 1e-9)
	assert.InDelta(t, 0.5, res.Boosts.Recency, 1e-9)
	assert.InDelta(t, 1.0, res.Boosts.Behavior, 1e-9)
	assert.InDelta(t, 0.5, res.Boosts.Popularity, 1e-9) // pivot 100

	want := 0.40*0.8 + 0.20*0.9 + 0.15*0.5 + 0.15*1.0 + 0.10*0.5
	assert.InDelta(t, want, res.FinalScore, 1e-9)
	assert.Equal(t, "AAPL title", res.Title)
	assert.Equal(t, 0.8, res.MatchScore)
}

func TestRank_PreferenceOverridesHint(t *testing.T) {
	r := New(config.Default())
	c := candidate("Tech", model.EntityTypeSector, 0.5, 0, time.Time{})
	hints := []model.EntityTypeHint{{EntityType: model.EntityTypeSector, Confidence: 0.9}}

	sc := model.NewSearchContext("u1", map[model.EntityType]float64{model.EntityTypeSector: 0.1}, nil, nil)
	res := r.Rank([]fuzzy.Candidate{c}, sc, hints, now)[0]
	assert.InDelta(t, 0.1, res.Boosts.TypePreference, 1e-9)

	sc = model.NewSearchContext("u1", map[model.EntityType]float64{model.EntityTypeSector: 7}, nil, nil)
	res = r.Rank([]fuzzy.Candidate{c}, sc, hints, now)[0]
	assert.Equal(t, 1.0, res.Boosts.TypePreference, "preferences are clamped")

	res = r.Rank([]fuzzy.Candidate{c}, model.SearchContext{}, nil, now)[0]
	assert.Zero(t, res.Boosts.TypePreference, "unhinted type")
}

func TestRecency(t *testing.T) {
	r := New(config.Default())
	day := 24 * time.Hour

	assert.Zero(t, r.Recency(model.EntityTypeArticle, time.Time{}, now))
	assert.Equal(t, 1.0, r.Recency(model.EntityTypeArticle, now.Add(time.Hour), now), "future timestamps")
	assert.Equal(t, 1.0, r.Recency(model.EntityTypeArticle, now, now))
	assert.InDelta(t, 0.5, r.Recency(model.EntityTypeArticle, now.Add(-7*day), now), 1e-9)
	assert.InDelta(t, 0.25, r.Recency(model.EntityTypeArticle, now.Add(-14*day), now), 1e-9)
	assert.Zero(t, r.Recency("unknown", now.Add(-day), now))

	// the same age decays slower for a type with a longer half-life
	assert.Greater(t,
		r.Recency(model.EntityTypeSector, now.Add(-30*day), now),
		r.Recency(model.EntityTypeArticle, now.Add(-30*day), now))
}

func TestPopularity(t *testing.T) {
	r := New(config.Default())

	assert.Zero(t, r.Popularity(0))
	assert.Zero(t, r.Popularity(-5))
	assert.Zero(t, r.Popularity(math.NaN()))
	assert.InDelta(t, 0.5, r.Popularity(100), 1e-9)
	assert.InDelta(t, 0.9, r.Popularity(900), 1e-9)
	assert.Equal(t, 1.0, r.Popularity(math.Inf(1)))
}

func TestRank_HistoryBoost(t *testing.T) {
	r := New(config.Default())
	sc := model.NewSearchContext("u1", nil, nil, []string{"brk.b earnings", "what about MSFT"})

	results := r.Rank([]fuzzy.Candidate{
		candidate("BRK.B", model.EntityTypeCompany, 0.5, 0, time.Time{}),
		candidate("MSFT", model.EntityTypeCompany, 0.5, 0, time.Time{}),
		candidate("AAPL", model.EntityTypeCompany, 0.5, 0, time.Time{}),
	}, sc, nil, now)

	byID := make(map[string]model.ScoredResult)
	for _, res := range results {
		byID[res.EntityID] = res
	}
	assert.Equal(t, 0.5, byID["BRK.B"].Boosts.Behavior)
	assert.Equal(t, 0.5, byID["MSFT"].Boosts.Behavior)
	assert.Zero(t, byID["AAPL"].Boosts.Behavior)
}

func TestRank_StableForEqualScores(t *testing.T) {
	r := New(config.Default())

	var input []fuzzy.Candidate
	for _, id := range []string{"C", "A", "B", "E", "D"} {
		input = append(input, candidate(id, model.EntityTypeCompany, 0.5, 10, now.Add(-time.Hour)))
	}
	input = append(input, candidate("TOP", model.EntityTypeCompany, 0.9, 10, now.Add(-time.Hour)))

	results := r.Rank(input, model.SearchContext{}, nil, now)
	var ids []string
	for _, res := range results {
		ids = append(ids, res.EntityID)
	}
	assert.Equal(t, []string{"TOP", "C", "A", "B", "E", "D"}, ids)
}

func TestRank_DoesNotMutateContext(t *testing.T) {
	r := New(config.Default())
	prefs := map[model.EntityType]float64{model.EntityTypeCompany: 0.3}
	sc := model.NewSearchContext("u1", prefs, []string{"AAPL"}, []string{"apple"})

	r.Rank([]fuzzy.Candidate{candidate("AAPL", model.EntityTypeCompany, 1, 1, now)}, sc, nil, now)

	assert.Equal(t, map[model.EntityType]float64{model.EntityTypeCompany: 0.3}, sc.Preferences)
	assert.Equal(t, []string{"apple"}, sc.SearchHistory)
	assert.Len(t, sc.RecentBehavior, 1)
}
