package model

// Token is a normalized unit of text. Start and End are byte offsets into the
// original text the token was produced from.
type Token struct {
	Text     string `json:"text"`
	Raw      string `json:"raw"`
	Field    string `json:"field,omitempty"`
	Position int    `json:"position"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// EntityTypeHint is an advisory guess that a query targets a given entity type.
type EntityTypeHint struct {
	EntityType EntityType `json:"entity_type"`
	Confidence float64    `json:"confidence"`
}

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpIn       Operator = "in"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpRange    Operator = "range"
	OpContains Operator = "contains"
)

// Constraint is a structured filter on one key. Range constraints use Min/Max
// together with the inclusive flags.
type Constraint struct {
	Op           Operator `json:"op"`
	Value        any      `json:"value,omitempty"`
	Values       []any    `json:"values,omitempty"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	MinInclusive bool     `json:"min_inclusive,omitempty"`
	MaxInclusive bool     `json:"max_inclusive,omitempty"`
	Inferred     bool     `json:"inferred,omitempty"`
}

// ProcessedQuery is the parsed form of one search request. It is built once by the
// orchestrator and never modified afterwards.
type ProcessedQuery struct {
	RawText         string                `json:"raw_text"`
	ResidualText    string                `json:"residual_text"`
	Tokens          []Token               `json:"tokens"`
	EntityTypeHints []EntityTypeHint      `json:"entity_type_hints"`
	Filters         map[string]Constraint `json:"filters"`
	Variations      map[string][]string   `json:"variations,omitempty"`
	Weights         map[string]float64    `json:"weights,omitempty"`
}

// Weight returns the configured weight of a query token, defaulting to 1.
func (pq *ProcessedQuery) Weight(token string) float64 {
	if w, ok := pq.Weights[token]; ok {
		return w
	}
	return 1
}

// IsBrowse reports whether the query only carries filters.
func (pq *ProcessedQuery) IsBrowse() bool {
	return len(pq.Tokens) == 0
}
