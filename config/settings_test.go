package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/model"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, TierWeights{Exact: 1.0, Partial: 0.8, Phonetic: 0.6, Edit: 0.4}, cfg.Matching.Tiers)
	assert.InDelta(t, 1.0, cfg.Ranking.Weights.Sum(), weightSumEpsilon)
	assert.Len(t, cfg.EntityTypes, 5)
}

func TestEntityTypeNames_Sorted(t *testing.T) {
	cfg := Default()
	names := cfg.EntityTypeNames()
	assert.Equal(t, []model.EntityType{"article", "company", "metric", "portfolio", "sector"}, names)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantProblem string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name: "weights do not sum to one",
			mutate: func(c *Config) {
				c.Ranking.Weights.Match = 0.5
			},
			wantProblem: "ranking.weights must sum to 1.0",
		},
		{
			name: "negative weight",
			mutate: func(c *Config) {
				c.Ranking.Weights.Match = 0.6
				c.Ranking.Weights.Popularity = -0.1
			},
			wantProblem: "ranking.weights.popularity must be within [0,1]",
		},
		{
			name: "weights within epsilon are accepted",
			mutate: func(c *Config) {
				c.Ranking.Weights.Match = 0.4 + 5e-7
			},
		},
		{
			name: "no entity types",
			mutate: func(c *Config) {
				c.EntityTypes = nil
			},
			wantProblem: "at least one entity type must be configured",
		},
		{
			name: "field weight out of range",
			mutate: func(c *Config) {
				et := c.EntityTypes[model.EntityTypeCompany]
				et.Fields = append([]FieldSettings(nil), et.Fields...)
				et.Fields[0].Weight = 1.5
				c.EntityTypes[model.EntityTypeCompany] = et
			},
			wantProblem: "entity_types.company.fields[name].weight must be within (0,1]",
		},
		{
			name: "suggestion field not configured",
			mutate: func(c *Config) {
				et := c.EntityTypes[model.EntityTypeSector]
				et.SuggestionFields = []string{"name", "ticker"}
				c.EntityTypes[model.EntityTypeSector] = et
			},
			wantProblem: "Field 'ticker' in entity_types.sector.suggestion_fields is not a configured field",
		},
		{
			name: "duplicate filterable field",
			mutate: func(c *Config) {
				et := c.EntityTypes[model.EntityTypeMetric]
				et.FilterableFields = []string{"unit", "unit"}
				c.EntityTypes[model.EntityTypeMetric] = et
			},
			wantProblem: "Duplicate field 'unit' found in entity_types.metric.filterable_fields",
		},
		{
			name: "subsearch timeout above deadline",
			mutate: func(c *Config) {
				c.Search.SubSearchTimeout = time.Second
			},
			wantProblem: "search.subsearch_timeout must not exceed search.deadline",
		},
		{
			name: "token weight out of range",
			mutate: func(c *Config) {
				c.Matching.TokenWeights = map[string]float64{"inc": 0}
			},
			wantProblem: "matching.token_weights[inc] must be within (0,1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantProblem == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), tt.wantProblem)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Ranking.Weights.Match = 0.9
	cfg.HTTP.Port = -1

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Len(t, cfgErr.Problems, 2)
}

func TestApplyDefaults_EntityTypes(t *testing.T) {
	cfg := &Config{
		EntityTypes: map[model.EntityType]EntityTypeSettings{
			"fund": {Fields: []FieldSettings{{Name: "name", Weight: 1}}},
		},
	}
	cfg.ApplyDefaults()

	fund := cfg.EntityTypes["fund"]
	assert.Equal(t, 0.5, fund.DefaultFieldWeight)
	assert.Equal(t, 30*24*time.Hour, fund.RecencyHalfLife)
	assert.NoError(t, cfg.Validate())
}

func TestEntityTypeSettings_Lookups(t *testing.T) {
	company := DefaultEntityTypes()[model.EntityTypeCompany]

	w, ok := company.FieldWeight("symbol")
	assert.True(t, ok)
	assert.Equal(t, 1.0, w)

	_, ok = company.FieldWeight("ceo")
	assert.False(t, ok)

	assert.True(t, company.IsFilterable("pe_ratio"))
	assert.False(t, company.IsFilterable("unit"))
	assert.True(t, company.IsSuggestionField("name"))
	assert.False(t, company.IsSuggestionField("description"))
}

func TestParse(t *testing.T) {
	t.Setenv("ENTITY_SEARCH_TEST_PORT", "9090")

	yamlDoc := `
http:
  port: ${ENTITY_SEARCH_TEST_PORT}
search:
  deadline: 500ms
  subsearch_timeout: 400ms
  max_limit: 1000
logging:
  level: ${ENTITY_SEARCH_TEST_LEVEL:-debug}
entity_types:
  company:
    fields:
      - { name: name, weight: 1.0 }
      - { name: symbol, weight: 0.9 }
    suggestion_fields: [name]
    filterable_fields: [pe_ratio]
    recency_half_life: 720h
`
	cfg, err := Parse([]byte(yamlDoc))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.Deadline)
	assert.Equal(t, 1000, cfg.Search.MaxLimit)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	require.Contains(t, cfg.EntityTypes, model.EntityTypeCompany)
	assert.Len(t, cfg.EntityTypes, 1)
	assert.Equal(t, 720*time.Hour, cfg.EntityTypes[model.EntityTypeCompany].RecencyHalfLife)
}

func TestParse_InvalidWeights(t *testing.T) {
	yamlDoc := `
ranking:
  weights:
    match: 0.5
    type_preference: 0.2
    recency: 0.15
    behavior: 0.15
    popularity: 0.1
`
	_, err := Parse([]byte(yamlDoc))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
	assert.True(t, strings.Contains(err.Error(), "must sum to 1.0"))
}

func TestLoad_SampleFile(t *testing.T) {
	path := filepath.Join("..", "configs", "search.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("sample configuration not found")
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.EntityTypes, 5)
	assert.Equal(t, 0.3, cfg.Matching.TokenWeights["inc"])
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.True(t, cfg.HasEntityType(model.EntityTypeArticle))
}
