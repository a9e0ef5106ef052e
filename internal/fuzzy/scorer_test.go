package fuzzy

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/testutil"
	"github.com/gcbaptista/entity-search/model"
)

func companyIndex(t *testing.T) *index.InvertedIndex {
	t.Helper()
	ix := index.New(model.EntityTypeCompany, config.DefaultEntityTypes()[model.EntityTypeCompany])
	for _, doc := range testutil.Corpus() {
		if doc.EntityType == model.EntityTypeCompany {
			require.NoError(t, ix.Upsert(doc))
		}
	}
	require.NoError(t, ix.Upsert(testutil.Company("ABC", "Abcam Holdings", "Health Care", 5, nil)))
	return ix
}

// scanMatches is the reference: every dictionary term that scores against any query alternative.
func scanMatches(m *Matcher, pq *model.ProcessedQuery, r *index.Reader) []string {
	var out []string
	r.ScanTerms(func(term, _ string) bool {
		for _, alts := range m.terms(pq) {
			for _, q := range alts {
				if m.pair(q, term).score > 0 {
					out = append(out, term)
					return true
				}
			}
		}
		return true
	})
	return out
}

func TestScorer_CollectFindsEveryMatchingTerm(t *testing.T) {
	cfg := config.Default()
	m := New(cfg.Matching)
	ix := companyIndex(t)

	for _, text := range []string{"aapl", "appel", "micro", "microsoft corporation inc", "abc", "ms", "tesler", "corporations", "zzzz"} {
		pq := query(cfg, text)
		err := ix.View(func(r *index.Reader) error {
			var got []string
			s := m.NewScorer(pq)
			if err := s.Collect(context.Background(), r, func(term string) { got = append(got, term) }); err != nil {
				return err
			}
			sort.Strings(got)

			want := scanMatches(m, pq, r)
			if len(want) == 0 {
				assert.Empty(t, got, text)
			} else {
				assert.Equal(t, want, got, text)
			}

			r.Entries(func(e *index.Entry) bool {
				assert.Equal(t, m.Match(pq, e.Fields), s.Match(e.Fields), "%s / %s", text, e.Document.EntityID)
				return true
			})
			return nil
		})
		require.NoError(t, err)
	}
}

func TestScorer_CollectStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	m := New(cfg.Matching)
	ix := companyIndex(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ix.View(func(r *index.Reader) error {
		return m.NewScorer(query(cfg, "appel")).Collect(ctx, r, func(string) {})
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEditLengths(t *testing.T) {
	cfg := config.Default()
	m := New(cfg.Matching)

	// threshold 0.6: two edits at length 5, three once the term reaches length 8
	q := m.prepare("appel", 1)
	lo, hi := q.editLengths(40)
	assert.Equal(t, 3, lo)
	assert.Equal(t, 8, hi)

	lo, hi = q.editLengths(5)
	assert.Equal(t, 3, lo)
	assert.Equal(t, 5, hi, "never past the longest indexed term")
}
