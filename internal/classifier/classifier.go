// Package classifier guesses which entity types a query targets from cheap signal rules.
// Hints are advisory: they order dispatch and feed the type preference boost, they never
// exclude a type.
package classifier

import (
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/tokenizer"
	"github.com/gcbaptista/entity-search/model"
)

var (
	// tickerPattern matches raw surface forms like AAPL or BRK.B.
	tickerPattern  = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)
	percentPattern = regexp.MustCompile(`^\d+(\.\d+)?%$`)
	decimalPattern = regexp.MustCompile(`^\d+\.\d+$`)
	yearPattern    = regexp.MustCompile(`^(19|20)\d{2}$`)
)

// Classifier detects entity type hints for a token sequence. It is safe for concurrent use.
type Classifier struct {
	settings config.ClassifierSettings
	types    []model.EntityType            // configured types, sorted
	keywords map[string][]model.EntityType // normalized keyword -> types
	cache    *lru.Cache[string, []model.EntityTypeHint]
}

// New builds a classifier from the entity type configuration.
func New(cfg *config.Config) *Classifier {
	c := &Classifier{
		settings: cfg.Classifier,
		types:    cfg.EntityTypeNames(),
		keywords: make(map[string][]model.EntityType),
	}
	for _, t := range c.types {
		for _, kw := range cfg.EntityTypes[t].Keywords {
			norm := tokenizer.Normalize(kw)
			if norm == "" {
				continue
			}
			c.keywords[norm] = append(c.keywords[norm], t)
		}
	}

	cacheSize := cfg.Classifier.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	c.cache, _ = lru.New[string, []model.EntityTypeHint](cacheSize)
	return c
}

// Detect returns one hint per configured entity type, sorted by confidence (descending) then type.
// When no signal fires every type gets the neutral confidence; otherwise types without a signal get
// the background confidence.
func (c *Classifier) Detect(tokens []model.Token) []model.EntityTypeHint {
	key := cacheKey(tokens)
	if hints, ok := c.cache.Get(key); ok {
		return append([]model.EntityTypeHint(nil), hints...)
	}

	hints := c.detect(tokens)
	c.cache.Add(key, hints)
	return append([]model.EntityTypeHint(nil), hints...)
}

func (c *Classifier) detect(tokens []model.Token) []model.EntityTypeHint {
	// signals per type, combined as independent evidence: 1 - Π(1 - c_i)
	miss := make(map[model.EntityType]float64)
	fire := func(t model.EntityType, confidence float64) {
		if !c.known(t) {
			return
		}
		if _, ok := miss[t]; !ok {
			miss[t] = 1
		}
		miss[t] *= 1 - confidence
	}

	for _, tok := range tokens {
		raw := strings.TrimSpace(tok.Raw)
		switch {
		case tickerPattern.MatchString(raw):
			fire(model.EntityTypeCompany, c.settings.TickerConfidence)
		case percentPattern.MatchString(tok.Text), decimalPattern.MatchString(tok.Text):
			fire(model.EntityTypeMetric, c.settings.NumericConfidence)
		case yearPattern.MatchString(tok.Text):
			fire(model.EntityTypeArticle, c.settings.NumericConfidence)
		}

		for _, t := range c.keywordTypes(tok.Text) {
			fire(t, c.settings.KeywordConfidence)
		}
	}

	hints := make([]model.EntityTypeHint, 0, len(c.types))
	for _, t := range c.types {
		confidence := c.settings.NeutralConfidence
		if len(miss) > 0 {
			confidence = c.settings.BackgroundConfidence
			if m, ok := miss[t]; ok {
				confidence = 1 - m
			}
		}
		hints = append(hints, model.EntityTypeHint{EntityType: t, Confidence: confidence})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		if hints[i].Confidence != hints[j].Confidence {
			return hints[i].Confidence > hints[j].Confidence
		}
		return hints[i].EntityType < hints[j].EntityType
	})
	return hints
}

// keywordTypes returns the types whose vocabulary contains text or one of its variations.
func (c *Classifier) keywordTypes(text string) []model.EntityType {
	if types, ok := c.keywords[text]; ok {
		return types
	}
	for _, v := range tokenizer.Variations(text) {
		if types, ok := c.keywords[v]; ok {
			return types
		}
	}
	return nil
}

func (c *Classifier) known(t model.EntityType) bool {
	i := sort.Search(len(c.types), func(i int) bool { return c.types[i] >= t })
	return i < len(c.types) && c.types[i] == t
}

// cacheKey uses the raw forms, since ticker detection depends on case.
func cacheKey(tokens []model.Token) string {
	var sb strings.Builder
	for i, t := range tokens {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(t.Raw)
	}
	return sb.String()
}
