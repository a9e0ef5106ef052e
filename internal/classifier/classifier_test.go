package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/tokenizer"
	"github.com/gcbaptista/entity-search/model"
)

func detect(c *Classifier, query string) map[model.EntityType]float64 {
	out := make(map[model.EntityType]float64)
	for _, h := range c.Detect(tokenizer.Analyze("", query)) {
		out[h.EntityType] = h.Confidence
	}
	return out
}

func TestDetect(t *testing.T) {
	c := New(config.Default())

	tests := []struct {
		name  string
		query string
		want  map[model.EntityType]float64
	}{
		{
			name:  "no signal is neutral",
			query: "apple",
			want: map[model.EntityType]float64{
				"article": 0.5, "company": 0.5, "metric": 0.5, "portfolio": 0.5, "sector": 0.5,
			},
		},
		{
			name:  "ticker",
			query: "AAPL",
			want: map[model.EntityType]float64{
				"article": 0.2, "company": 0.9, "metric": 0.2, "portfolio": 0.2, "sector": 0.2,
			},
		},
		{
			name:  "metric vocabulary",
			query: "pe ratio",
			want: map[model.EntityType]float64{
				"article": 0.2, "company": 0.2, "metric": 0.8, "portfolio": 0.2, "sector": 0.2,
			},
		},
		{
			name:  "repeated keywords compound",
			query: "ratio margin",
			want: map[model.EntityType]float64{
				"article": 0.2, "company": 0.2, "metric": 0.96, "portfolio": 0.2, "sector": 0.2,
			},
		},
		{
			name:  "plural keyword via variation",
			query: "tech segments",
			want: map[model.EntityType]float64{
				"article": 0.2, "company": 0.2, "metric": 0.2, "portfolio": 0.2, "sector": 0.8,
			},
		},
		{
			name:  "percent suggests metric",
			query: "15%",
			want: map[model.EntityType]float64{
				"article": 0.2, "company": 0.2, "metric": 0.6, "portfolio": 0.2, "sector": 0.2,
			},
		},
		{
			name:  "year and news suggest article",
			query: "2024 news",
			want: map[model.EntityType]float64{
				"article": 0.92, "company": 0.2, "metric": 0.2, "portfolio": 0.2, "sector": 0.2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detect(c, tt.query)
			require.Len(t, got, len(tt.want))
			for typ, want := range tt.want {
				assert.InDelta(t, want, got[typ], 1e-9, "confidence for %s", typ)
			}
		})
	}
}

func TestDetect_EmptyQueryIsNeutral(t *testing.T) {
	c := New(config.Default())
	hints := c.Detect(nil)
	require.Len(t, hints, 5)
	for _, h := range hints {
		assert.Equal(t, 0.5, h.Confidence)
	}
}

func TestDetect_SortedByConfidenceThenType(t *testing.T) {
	c := New(config.Default())
	hints := c.Detect(tokenizer.Analyze("", "earnings stocks AAPL"))

	require.Len(t, hints, 5)
	for i := 1; i < len(hints); i++ {
		prev, cur := hints[i-1], hints[i]
		if prev.Confidence == cur.Confidence {
			assert.Less(t, string(prev.EntityType), string(cur.EntityType))
		} else {
			assert.Greater(t, prev.Confidence, cur.Confidence)
		}
	}
	assert.Equal(t, model.EntityTypeCompany, hints[0].EntityType)
}

func TestDetect_CachedResultIsNotShared(t *testing.T) {
	c := New(config.Default())
	tokens := tokenizer.Analyze("", "AAPL")

	first := c.Detect(tokens)
	first[0].Confidence = 0

	second := c.Detect(tokens)
	assert.Equal(t, 0.9, second[0].Confidence)
}

func TestDetect_CaseMatters(t *testing.T) {
	c := New(config.Default())
	upper := detect(c, "MSFT")
	lower := detect(c, "msft")

	assert.Equal(t, 0.9, upper[model.EntityTypeCompany])
	assert.Equal(t, 0.5, lower[model.EntityTypeCompany])
}

func TestDetect_OnlyConfiguredTypes(t *testing.T) {
	cfg := config.Default()
	delete(cfg.EntityTypes, model.EntityTypeCompany)
	c := New(cfg)

	got := detect(c, "AAPL")
	assert.Len(t, got, 4)
	for _, conf := range got {
		assert.Equal(t, 0.5, conf, "ticker signal for an unconfigured type must not fire")
	}
}
