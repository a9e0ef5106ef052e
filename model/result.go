package model

import "time"

// Span marks the part of a field that matched a query token. Start and End are byte offsets into
// the field text. Tier names the tier that contributed the most weight; Tiers lists every tier
// that fired, in priority order.
type Span struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Text  string   `json:"text"`
	Tier  string   `json:"tier"`
	Tiers []string `json:"tiers,omitempty"`
}

// Boosts is the breakdown of the contextual signals that went into a final score. Every value is
// in [0,1] before weighting.
type Boosts struct {
	TypePreference float64 `json:"type_preference"`
	Recency        float64 `json:"recency"`
	Behavior       float64 `json:"behavior"`
	Popularity     float64 `json:"popularity"`
}

// ScoredResult is one ranked search hit.
type ScoredResult struct {
	EntityID        string            `json:"entity_id"`
	EntityType      EntityType        `json:"entity_type"`
	Title           string            `json:"title"`
	MatchScore      float64           `json:"match_score"`
	FinalScore      float64           `json:"final_score"`
	Boosts          Boosts            `json:"boosts"`
	Highlights      map[string][]Span `json:"highlights,omitempty"`
	PopularityScore float64           `json:"popularity_score"`
	LastUpdated     time.Time         `json:"last_updated"`
	Attributes      map[string]any    `json:"attributes,omitempty"`
}
