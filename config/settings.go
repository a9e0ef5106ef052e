// Package config provides configuration structures for the search service.
// It defines per-entity-type settings, matching and ranking weights, latency budgets,
// and the ambient server settings.
package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/model"
)

// weightSumEpsilon is the tolerance allowed when checking that ranking weights sum to 1.
const weightSumEpsilon = 1e-6

// Config is the full service configuration. It is loaded once at startup and then only read.
type Config struct {
	HTTP        HTTPSettings                            `yaml:"http" json:"http"`
	Logging     LoggingSettings                         `yaml:"logging" json:"logging"`
	Storage     StorageSettings                         `yaml:"storage" json:"storage"`
	Ingest      IngestSettings                          `yaml:"ingest" json:"ingest"`
	Search      SearchSettings                          `yaml:"search" json:"search"`
	Suggest     SuggestSettings                         `yaml:"suggest" json:"suggest"`
	Matching    MatchingSettings                        `yaml:"matching" json:"matching"`
	Ranking     RankingSettings                         `yaml:"ranking" json:"ranking"`
	Classifier  ClassifierSettings                      `yaml:"classifier" json:"classifier"`
	Sessions    SessionSettings                         `yaml:"sessions" json:"sessions"`
	EntityTypes map[model.EntityType]EntityTypeSettings `yaml:"entity_types" json:"entity_types"`
}

// HTTPSettings holds HTTP server settings.
type HTTPSettings struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// LoggingSettings holds logging settings.
type LoggingSettings struct {
	Env   string `yaml:"env" json:"env"`     // prod, dev, local
	Level string `yaml:"level" json:"level"` // debug, info, warn, error (default: determined by env)
}

// StorageSettings configures the optional snapshot store. An empty path keeps everything in memory.
type StorageSettings struct {
	Path string `yaml:"path" json:"path"`
}

// IngestSettings configures bulk ingestion.
type IngestSettings struct {
	Workers   int `yaml:"workers" json:"workers"`
	JobSlots  int `yaml:"job_slots" json:"job_slots"`
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// SearchSettings holds the orchestrator's latency budget and pagination limits.
type SearchSettings struct {
	DefaultLimit            int           `yaml:"default_limit" json:"default_limit"`
	MaxLimit                int           `yaml:"max_limit" json:"max_limit"`
	MaxQueryLength          int           `yaml:"max_query_length" json:"max_query_length"`
	Deadline                time.Duration `yaml:"deadline" json:"deadline"`                   // overall budget per request
	SubSearchTimeout        time.Duration `yaml:"subsearch_timeout" json:"subsearch_timeout"` // per entity type
	MaxConcurrentSubSearch  int           `yaml:"max_concurrent_subsearches" json:"max_concurrent_subsearches"`
	MinMatchScore           float64       `yaml:"min_match_score" json:"min_match_score"`
	MaxCandidatesPerType    int           `yaml:"max_candidates_per_type" json:"max_candidates_per_type"`
	ResponseSuggestions     int           `yaml:"response_suggestions" json:"response_suggestions"`
	SuggestionsBelowResults int           `yaml:"suggestions_below_results" json:"suggestions_below_results"`
}

// SuggestSettings configures the prefix completion engine.
type SuggestSettings struct {
	DefaultLimit   int           `yaml:"default_limit" json:"default_limit"`
	MaxLimit       int           `yaml:"max_limit" json:"max_limit"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxPrefixTerms int           `yaml:"max_prefix_terms" json:"max_prefix_terms"`
	CacheSize      int           `yaml:"cache_size" json:"cache_size"`
}

// TierWeights are the priority weights of the four fuzzy matching tiers.
type TierWeights struct {
	Exact    float64 `yaml:"exact" json:"exact"`
	Partial  float64 `yaml:"partial" json:"partial"`
	Phonetic float64 `yaml:"phonetic" json:"phonetic"`
	Edit     float64 `yaml:"edit" json:"edit"`
}

// MatchingSettings configures the fuzzy matcher.
type MatchingSettings struct {
	Tiers                  TierWeights        `yaml:"tiers" json:"tiers"`
	MinPartialLength       int                `yaml:"min_partial_length" json:"min_partial_length"`
	MinFuzzyLength         int                `yaml:"min_fuzzy_length" json:"min_fuzzy_length"`
	ShortTokenLength       int                `yaml:"short_token_length" json:"short_token_length"`
	LongTokenMinSimilarity float64            `yaml:"long_token_min_similarity" json:"long_token_min_similarity"`
	VariationDiscount      float64            `yaml:"variation_discount" json:"variation_discount"`
	TokenWeights           map[string]float64 `yaml:"token_weights" json:"token_weights"` // static per-token weights, default 1
}

// RankingWeights are the coefficients of the final score. They must sum to 1.
type RankingWeights struct {
	Match          float64 `yaml:"match" json:"match"`
	TypePreference float64 `yaml:"type_preference" json:"type_preference"`
	Recency        float64 `yaml:"recency" json:"recency"`
	Behavior       float64 `yaml:"behavior" json:"behavior"`
	Popularity     float64 `yaml:"popularity" json:"popularity"`
}

// Sum returns the total of all weights.
func (w RankingWeights) Sum() float64 {
	return w.Match + w.TypePreference + w.Recency + w.Behavior + w.Popularity
}

// RankingSettings configures the context-aware ranker.
type RankingSettings struct {
	Weights         RankingWeights `yaml:"weights" json:"weights"`
	PopularityPivot float64        `yaml:"popularity_pivot" json:"popularity_pivot"`
	HistoryBoost    float64        `yaml:"history_boost" json:"history_boost"`
}

// ClassifierSettings configures the entity-type classifier.
type ClassifierSettings struct {
	TickerConfidence     float64 `yaml:"ticker_confidence" json:"ticker_confidence"`
	KeywordConfidence    float64 `yaml:"keyword_confidence" json:"keyword_confidence"`
	NumericConfidence    float64 `yaml:"numeric_confidence" json:"numeric_confidence"`
	NeutralConfidence    float64 `yaml:"neutral_confidence" json:"neutral_confidence"`
	BackgroundConfidence float64 `yaml:"background_confidence" json:"background_confidence"`
	CacheSize            int     `yaml:"cache_size" json:"cache_size"`
}

// SessionSettings bounds the in-memory session store.
type SessionSettings struct {
	Capacity           int `yaml:"capacity" json:"capacity"`
	HistorySize        int `yaml:"history_size" json:"history_size"`
	RecentBehaviorSize int `yaml:"recent_behavior_size" json:"recent_behavior_size"`
}

// FieldSettings gives a searchable field its weight in (0, 1].
type FieldSettings struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// EntityTypeSettings contains everything the matcher, ranker and suggester need to know about
// one entity type.
//
// IMPORTANT: Fields order matters for display: the first configured field is the one shown as title
// when a document does not provide its own ordering.
type EntityTypeSettings struct {
	Fields             []FieldSettings `yaml:"fields" json:"fields"`
	DefaultFieldWeight float64         `yaml:"default_field_weight" json:"default_field_weight"` // for fields not listed above
	SuggestionFields   []string        `yaml:"suggestion_fields" json:"suggestion_fields"`
	FilterableFields   []string        `yaml:"filterable_fields" json:"filterable_fields"`
	Keywords           []string        `yaml:"keywords" json:"keywords"` // classifier vocabulary
	RecencyHalfLife    time.Duration   `yaml:"recency_half_life" json:"recency_half_life"`
}

// FieldWeight returns the configured weight of a field, or ok=false if the field is not configured.
func (s EntityTypeSettings) FieldWeight(name string) (float64, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Weight, true
		}
	}
	return 0, false
}

// ResolveWeight picks the effective weight of a document field: the configured weight when the field
// is listed, otherwise the supplied weight if it lies in (0,1], otherwise DefaultFieldWeight.
func (s EntityTypeSettings) ResolveWeight(name string, supplied float64) float64 {
	if w, ok := s.FieldWeight(name); ok {
		return w
	}
	if supplied > 0 && supplied <= 1 {
		return supplied
	}
	return s.DefaultFieldWeight
}

// IsFilterable reports whether key is a declared filter for this type.
func (s EntityTypeSettings) IsFilterable(key string) bool {
	for _, f := range s.FilterableFields {
		if f == key {
			return true
		}
	}
	return false
}

// IsSuggestionField reports whether the field feeds the suggestion engine.
func (s EntityTypeSettings) IsSuggestionField(name string) bool {
	for _, f := range s.SuggestionFields {
		if f == name {
			return true
		}
	}
	return false
}

// EntityTypeNames returns the configured entity types in a stable order.
func (c *Config) EntityTypeNames() []model.EntityType {
	names := make([]model.EntityType, 0, len(c.EntityTypes))
	for name := range c.EntityTypes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// HasEntityType reports whether t is configured.
func (c *Config) HasEntityType(t model.EntityType) bool {
	_, ok := c.EntityTypes[t]
	return ok
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 10 << 20
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "local"
	}

	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.JobSlots <= 0 {
		c.Ingest.JobSlots = 2
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 100
	}

	s := &c.Search
	if s.DefaultLimit <= 0 {
		s.DefaultLimit = 20
	}
	if s.MaxLimit <= 0 {
		s.MaxLimit = 100
	}
	if s.MaxQueryLength <= 0 {
		s.MaxQueryLength = 512
	}
	if s.Deadline <= 0 {
		s.Deadline = 250 * time.Millisecond
	}
	if s.SubSearchTimeout <= 0 {
		s.SubSearchTimeout = 200 * time.Millisecond
	}
	if s.MaxConcurrentSubSearch <= 0 {
		s.MaxConcurrentSubSearch = 8
	}
	if s.MinMatchScore <= 0 {
		s.MinMatchScore = 0.05
	}
	if s.MaxCandidatesPerType <= 0 {
		s.MaxCandidatesPerType = 5000
	}
	if s.ResponseSuggestions < 0 {
		s.ResponseSuggestions = 0
	}

	sg := &c.Suggest
	if sg.DefaultLimit <= 0 {
		sg.DefaultLimit = 10
	}
	if sg.MaxLimit <= 0 {
		sg.MaxLimit = 50
	}
	if sg.Timeout <= 0 {
		sg.Timeout = 30 * time.Millisecond
	}
	if sg.MaxPrefixTerms <= 0 {
		sg.MaxPrefixTerms = 256
	}
	if sg.CacheSize <= 0 {
		sg.CacheSize = 4096
	}

	m := &c.Matching
	if m.Tiers == (TierWeights{}) {
		m.Tiers = TierWeights{Exact: 1.0, Partial: 0.8, Phonetic: 0.6, Edit: 0.4}
	}
	if m.MinPartialLength <= 0 {
		m.MinPartialLength = 2
	}
	if m.MinFuzzyLength <= 0 {
		m.MinFuzzyLength = 3
	}
	if m.ShortTokenLength <= 0 {
		m.ShortTokenLength = 6
	}
	if m.LongTokenMinSimilarity <= 0 {
		m.LongTokenMinSimilarity = 0.8
	}
	if m.VariationDiscount <= 0 {
		m.VariationDiscount = 0.9
	}
	if m.TokenWeights == nil {
		m.TokenWeights = map[string]float64{}
	}

	r := &c.Ranking
	if r.Weights == (RankingWeights{}) {
		r.Weights = RankingWeights{Match: 0.40, TypePreference: 0.20, Recency: 0.15, Behavior: 0.15, Popularity: 0.10}
	}
	if r.PopularityPivot <= 0 {
		r.PopularityPivot = 100
	}
	if r.HistoryBoost <= 0 {
		r.HistoryBoost = 0.5
	}

	cl := &c.Classifier
	if cl.TickerConfidence <= 0 {
		cl.TickerConfidence = 0.9
	}
	if cl.KeywordConfidence <= 0 {
		cl.KeywordConfidence = 0.8
	}
	if cl.NumericConfidence <= 0 {
		cl.NumericConfidence = 0.6
	}
	if cl.NeutralConfidence <= 0 {
		cl.NeutralConfidence = 0.5
	}
	if cl.BackgroundConfidence <= 0 {
		cl.BackgroundConfidence = 0.2
	}
	if cl.CacheSize <= 0 {
		cl.CacheSize = 1024
	}

	if c.Sessions.Capacity <= 0 {
		c.Sessions.Capacity = 10000
	}
	if c.Sessions.HistorySize <= 0 {
		c.Sessions.HistorySize = 20
	}
	if c.Sessions.RecentBehaviorSize <= 0 {
		c.Sessions.RecentBehaviorSize = 50
	}

	for name, et := range c.EntityTypes {
		if et.DefaultFieldWeight <= 0 {
			et.DefaultFieldWeight = 0.5
		}
		if et.RecencyHalfLife <= 0 {
			et.RecencyHalfLife = 30 * 24 * time.Hour
		}
		c.EntityTypes[name] = et
	}
}

// Validate checks the configuration for correctness. Every problem is collected into a single
// ConfigurationError; weights are never silently renormalized.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	w := c.Ranking.Weights
	for _, nw := range []struct {
		name  string
		value float64
	}{
		{"match", w.Match}, {"type_preference", w.TypePreference}, {"recency", w.Recency},
		{"behavior", w.Behavior}, {"popularity", w.Popularity},
	} {
		if nw.value < 0 || nw.value > 1 {
			problems = append(problems, fmt.Sprintf("ranking.weights.%s must be within [0,1], got %g", nw.name, nw.value))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightSumEpsilon {
		problems = append(problems, fmt.Sprintf("ranking.weights must sum to 1.0, got %g", sum))
	}

	t := c.Matching.Tiers
	if t.Exact <= 0 || t.Partial <= 0 || t.Phonetic <= 0 || t.Edit <= 0 {
		problems = append(problems, "matching.tiers weights must all be positive")
	}
	if c.Matching.VariationDiscount > 1 {
		problems = append(problems, "matching.variation_discount must be within (0,1]")
	}
	if c.Matching.LongTokenMinSimilarity > 1 {
		problems = append(problems, "matching.long_token_min_similarity must be within (0,1]")
	}
	for token, tw := range c.Matching.TokenWeights {
		if tw <= 0 || tw > 1 {
			problems = append(problems, fmt.Sprintf("matching.token_weights[%s] must be within (0,1], got %g", token, tw))
		}
	}

	if c.Search.DefaultLimit > c.Search.MaxLimit {
		problems = append(problems, fmt.Sprintf("search.default_limit (%d) exceeds search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	if c.Search.SubSearchTimeout > c.Search.Deadline {
		problems = append(problems, "search.subsearch_timeout must not exceed search.deadline")
	}
	if c.Suggest.DefaultLimit > c.Suggest.MaxLimit {
		problems = append(problems, "suggest.default_limit exceeds suggest.max_limit")
	}

	if len(c.EntityTypes) == 0 {
		problems = append(problems, "at least one entity type must be configured")
	}
	for _, name := range c.EntityTypeNames() {
		problems = append(problems, c.EntityTypes[name].validate(string(name))...)
	}

	if len(problems) > 0 {
		return errors.NewConfigurationError(problems...)
	}
	return nil
}

func (s EntityTypeSettings) validate(typeName string) []string {
	var problems []string
	prefix := "entity_types." + typeName

	if strings.TrimSpace(typeName) == "" {
		problems = append(problems, "entity type name cannot be empty")
	}
	if len(s.Fields) == 0 {
		problems = append(problems, prefix+" must configure at least one field")
	}

	problems = append(problems, checkDuplicates(prefix+".suggestion_fields", s.SuggestionFields)...)
	problems = append(problems, checkDuplicates(prefix+".filterable_fields", s.FilterableFields)...)

	seen := make(map[string]bool)
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			problems = append(problems, prefix+" has a field with an empty name")
			continue
		}
		if seen[f.Name] {
			problems = append(problems, "Duplicate field '"+f.Name+"' found in "+prefix+".fields")
		}
		seen[f.Name] = true
		if f.Weight <= 0 || f.Weight > 1 {
			problems = append(problems, fmt.Sprintf("%s.fields[%s].weight must be within (0,1], got %g", prefix, f.Name, f.Weight))
		}
	}
	if s.DefaultFieldWeight <= 0 || s.DefaultFieldWeight > 1 {
		problems = append(problems, fmt.Sprintf("%s.default_field_weight must be within (0,1], got %g", prefix, s.DefaultFieldWeight))
	}
	for _, sf := range s.SuggestionFields {
		if !seen[sf] {
			problems = append(problems, "Field '"+sf+"' in "+prefix+".suggestion_fields is not a configured field")
		}
	}
	if s.RecencyHalfLife <= 0 {
		problems = append(problems, prefix+".recency_half_life must be positive")
	}
	return problems
}

// checkDuplicates checks for duplicate values in a slice and returns error messages
func checkDuplicates(fieldName string, fields []string) []string {
	var problems []string
	seen := make(map[string]bool)

	for _, field := range fields {
		if seen[field] {
			problems = append(problems, "Duplicate field '"+field+"' found in "+fieldName)
		}
		seen[field] = true
	}

	return problems
}
