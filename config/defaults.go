package config

import (
	"time"

	"github.com/gcbaptista/entity-search/model"
)

const day = 24 * time.Hour

// Default returns a ready-to-use configuration covering the five built-in entity types.
// Callers may tweak the result before validating it.
func Default() *Config {
	cfg := &Config{
		EntityTypes: DefaultEntityTypes(),
	}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultEntityTypes returns the built-in entity type settings.
func DefaultEntityTypes() map[model.EntityType]EntityTypeSettings {
	return map[model.EntityType]EntityTypeSettings{
		model.EntityTypeCompany: {
			Fields: []FieldSettings{
				{Name: "name", Weight: 1.0},
				{Name: "symbol", Weight: 1.0},
				{Name: "aliases", Weight: 0.8},
				{Name: "sector", Weight: 0.6},
				{Name: "description", Weight: 0.4},
			},
			DefaultFieldWeight: 0.3,
			SuggestionFields:   []string{"name", "symbol"},
			FilterableFields:   []string{"sector", "region", "exchange", "market_cap", "pe_ratio", "dividend_yield"},
			Keywords:           []string{"company", "companies", "stock", "stocks", "share", "shares", "ticker", "inc", "corp", "corporation", "equity"},
			RecencyHalfLife:    90 * day,
		},
		model.EntityTypeSector: {
			Fields: []FieldSettings{
				{Name: "name", Weight: 1.0},
				{Name: "code", Weight: 0.8},
				{Name: "description", Weight: 0.4},
			},
			DefaultFieldWeight: 0.3,
			SuggestionFields:   []string{"name"},
			FilterableFields:   []string{"region"},
			Keywords:           []string{"sector", "sectors", "industry", "industries", "segment"},
			RecencyHalfLife:    365 * day,
		},
		model.EntityTypeMetric: {
			Fields: []FieldSettings{
				{Name: "name", Weight: 1.0},
				{Name: "abbreviation", Weight: 0.9},
				{Name: "description", Weight: 0.4},
			},
			DefaultFieldWeight: 0.3,
			SuggestionFields:   []string{"name", "abbreviation"},
			FilterableFields:   []string{"category", "unit"},
			Keywords:           []string{"ratio", "metric", "metrics", "margin", "yield", "growth", "eps", "earnings", "revenue", "return"},
			RecencyHalfLife:    365 * day,
		},
		model.EntityTypeArticle: {
			Fields: []FieldSettings{
				{Name: "title", Weight: 1.0},
				{Name: "summary", Weight: 0.6},
				{Name: "body", Weight: 0.3},
			},
			DefaultFieldWeight: 0.3,
			SuggestionFields:   []string{"title"},
			FilterableFields:   []string{"source", "year", "sector"},
			Keywords:           []string{"news", "article", "articles", "report", "analysis", "headline", "earnings"},
			RecencyHalfLife:    7 * day,
		},
		model.EntityTypePortfolio: {
			Fields: []FieldSettings{
				{Name: "name", Weight: 1.0},
				{Name: "description", Weight: 0.5},
			},
			DefaultFieldWeight: 0.3,
			SuggestionFields:   []string{"name"},
			FilterableFields:   []string{"owner", "risk", "strategy"},
			Keywords:           []string{"portfolio", "portfolios", "fund", "funds", "holdings", "watchlist"},
			RecencyHalfLife:    30 * day,
		},
	}
}
