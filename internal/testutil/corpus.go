// Package testutil provides the sample corpus and builders shared by package tests.
package testutil

import (
	"time"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/model"
)

// Now is the fixed clock used by tests that depend on recency.
var Now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Config returns a validated default configuration with in-memory storage and a quiet logger.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Logging.Env = "test"
	cfg.Storage.Path = ""
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Company builds a company document.
func Company(symbol, name, sector string, popularity float64, attrs map[string]any) model.Document {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["sector"] = sector
	return model.Document{
		EntityID:   symbol,
		EntityType: model.EntityTypeCompany,
		Fields: []model.Field{
			{Name: "name", Text: name},
			{Name: "symbol", Text: symbol},
			{Name: "sector", Text: sector},
		},
		Attributes:      attrs,
		LastUpdated:     Now.Add(-24 * time.Hour),
		PopularityScore: popularity,
	}
}

// Doc builds a document of any type whose first field is "name" (or "title" for articles).
func Doc(t model.EntityType, id, title string, popularity float64) model.Document {
	field := "name"
	if t == model.EntityTypeArticle {
		field = "title"
	}
	return model.Document{
		EntityID:        id,
		EntityType:      t,
		Fields:          []model.Field{{Name: field, Text: title}},
		LastUpdated:     Now.Add(-72 * time.Hour),
		PopularityScore: popularity,
	}
}

// Corpus returns a small multi-type corpus. Only Microsoft and MicroStrategy contain terms starting
// with "micro", and only Apple terms sound like "appel".
func Corpus() []model.Document {
	docs := []model.Document{
		Company("AAPL", "Apple Inc.", "Technology", 99, map[string]any{"region": "us", "pe_ratio": 28.5, "exchange": "NASDAQ"}),
		Company("MSFT", "Microsoft Corporation", "Technology", 95, map[string]any{"region": "us", "pe_ratio": 34.1, "exchange": "NASDAQ"}),
		Company("MSTR", "MicroStrategy Incorporated", "Technology", 40, map[string]any{"region": "us", "pe_ratio": 12.0, "exchange": "NASDAQ"}),
		Company("JPM", "JPMorgan Chase & Co.", "Financials", 70, map[string]any{"region": "us", "pe_ratio": 11.2, "exchange": "NYSE"}),
		Company("XOM", "Exxon Mobil Corporation", "Energy", 60, map[string]any{"region": "us", "pe_ratio": 13.4, "exchange": "NYSE"}),
		Company("SAP", "SAP SE", "Technology", 50, map[string]any{"region": "eu", "pe_ratio": 41.0, "exchange": "XETRA"}),
		Company("TSLA", "Tesla Inc.", "Consumer Discretionary", 90, map[string]any{"region": "us", "pe_ratio": 60.3, "exchange": "NASDAQ"}),

		Doc(model.EntityTypeSector, "tech", "Technology", 80),
		Doc(model.EntityTypeSector, "fin", "Financials", 60),
		Doc(model.EntityTypeSector, "energy", "Energy", 50),

		Doc(model.EntityTypeMetric, "pe", "Price to Earnings Ratio", 85),
		Doc(model.EntityTypeMetric, "dy", "Dividend Yield", 55),
		Doc(model.EntityTypeMetric, "roe", "Return on Equity", 45),

		Doc(model.EntityTypeArticle, "a1", "Tesla deliveries beat estimates", 30),
		Doc(model.EntityTypeArticle, "a2", "Bank earnings season preview", 20),

		Doc(model.EntityTypePortfolio, "p1", "Dividend Income Portfolio", 15),
		Doc(model.EntityTypePortfolio, "p2", "Clean Energy Portfolio", 10),
	}
	docs[10].Fields = append(docs[10].Fields, model.Field{Name: "abbreviation", Text: "P/E"})
	docs[10].Attributes = map[string]any{"category": "valuation", "unit": "ratio"}
	return docs
}
