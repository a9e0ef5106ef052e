// Package fuzzy scores how well a processed query matches an analyzed document. Four tiers are
// evaluated for every (query token, document token) pair: exact, partial containment, phonetic and
// edit distance. Their similarities are combined by the configured tier weights.
package fuzzy

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/typoutil"
	"github.com/gcbaptista/entity-search/model"
)

// Tier identifies a matching tier, in priority order.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierPartial
	TierPhonetic
	TierEdit
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPartial:
		return "partial"
	case TierPhonetic:
		return "phonetic"
	case TierEdit:
		return "edit"
	default:
		return "none"
	}
}

// MatchResult is the outcome of matching one document.
type MatchResult struct {
	Score           float64 // in [0,1]
	BestField       string
	BestFieldWeight float64
	BestFieldLen    int // rune length of the best field text, used for tie-breaking
	Highlights      map[string][]model.Span
}

// Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	tiers    config.TierWeights
	settings config.MatchingSettings
}

// New creates a matcher from the matching configuration.
func New(settings config.MatchingSettings) *Matcher {
	return &Matcher{tiers: settings.Tiers, settings: settings}
}

// queryTerm is a query token or variation prepared for repeated comparisons.
type queryTerm struct {
	text      string
	runes     int
	phonetic  string
	fuzzy     bool // phonetic and edit tiers apply
	threshold float64
	discount  float64
}

func (m *Matcher) prepare(text string, discount float64) queryTerm {
	n := utf8.RuneCountInString(text)
	q := queryTerm{text: text, runes: n, discount: discount}
	if n >= m.settings.MinFuzzyLength {
		q.fuzzy = true
		q.threshold = typoutil.SimilarityThreshold(n, m.settings.ShortTokenLength, m.settings.LongTokenMinSimilarity)
		if typoutil.IsAlphabetic(text) {
			q.phonetic = typoutil.PhoneticCode(text)
		}
	}
	return q
}

// applicable returns the sum of the tier weights that can contribute for q.
func (m *Matcher) applicable(q queryTerm) float64 {
	total := m.tiers.Exact + m.tiers.Partial
	if q.phonetic != "" {
		total += m.tiers.Phonetic
	}
	if q.fuzzy {
		total += m.tiers.Edit
	}
	return total
}

// partialSimilarity returns len(shorter)/len(longer) when one string contains the other and the
// contained one is long enough, else 0.
func (m *Matcher) partialSimilarity(q queryTerm, term string, termRunes int) float64 {
	shorter, longer := q.text, term
	shortN, longN := q.runes, termRunes
	if shortN > longN {
		shorter, longer = longer, shorter
		shortN, longN = longN, shortN
	}
	if shortN < m.settings.MinPartialLength || longN == 0 || !strings.Contains(longer, shorter) {
		return 0
	}
	return float64(shortN) / float64(longN)
}

// editSimilarity returns the edit distance similarity when it reaches the query threshold, else 0.
func (q queryTerm) editSimilarity(term string, termRunes int) float64 {
	if !q.fuzzy {
		return 0
	}
	maxLen := max(q.runes, termRunes)
	if maxLen == 0 {
		return 0
	}
	limit := typoutil.MaxDistanceFor(q.threshold, q.text, term)
	d := typoutil.DamerauLevenshteinDistanceWithLimit(q.text, term, limit)
	if d > limit {
		return 0
	}
	sim := 1 - float64(d)/float64(maxLen)
	if sim < q.threshold {
		return 0
	}
	return sim
}

// tierSet records which tiers fired for a pair.
type tierSet uint8

func (s tierSet) has(t Tier) bool { return s&(1<<t) != 0 }

// names lists the fired tiers in priority order.
func (s tierSet) names() []string {
	var out []string
	for t := TierExact; t <= TierEdit; t++ {
		if s.has(t) {
			out = append(out, t.String())
		}
	}
	return out
}

// pairScore is the outcome of scoring one query term against one document term. tier is the tier
// that contributed the most weight; fired holds every tier with a positive similarity.
type pairScore struct {
	score float64
	tier  Tier
	fired tierSet
}

// pair scores one query term against one document term. The score is the weighted sum of the
// present tiers divided by the weights of the tiers applicable to the query term.
func (m *Matcher) pair(q queryTerm, term string) pairScore {
	termRunes := utf8.RuneCountInString(term)

	var sum, best float64
	out := pairScore{}
	contribute := func(w, sim float64, tier Tier) {
		if sim <= 0 {
			return
		}
		out.fired |= 1 << tier
		sum += w * sim
		if w*sim > best {
			best, out.tier = w*sim, tier
		}
	}

	if q.text == term {
		contribute(m.tiers.Exact, 1, TierExact)
	}
	contribute(m.tiers.Partial, m.partialSimilarity(q, term, termRunes), TierPartial)
	if q.phonetic != "" && q.phonetic == typoutil.PhoneticCode(term) {
		contribute(m.tiers.Phonetic, 1, TierPhonetic)
	}
	contribute(m.tiers.Edit, q.editSimilarity(term, termRunes), TierEdit)

	if sum == 0 {
		return pairScore{}
	}
	out.score = min(sum/m.applicable(q)*q.discount, 1)
	return out
}

// terms expands the query into per-token alternatives: the token itself first, then its
// variations at the configured discount.
func (m *Matcher) terms(pq *model.ProcessedQuery) [][]queryTerm {
	out := make([][]queryTerm, 0, len(pq.Tokens))
	for _, tok := range pq.Tokens {
		alts := []queryTerm{m.prepare(tok.Text, 1)}
		for _, v := range pq.Variations[tok.Text] {
			alts = append(alts, m.prepare(v, m.settings.VariationDiscount))
		}
		out = append(out, alts)
	}
	return out
}

// Match scores the analyzed fields of one document against the query. The result is deterministic
// and does not modify its inputs. Use a Scorer to match many documents against the same query.
func (m *Matcher) Match(pq *model.ProcessedQuery, fields []index.AnalyzedField) MatchResult {
	return m.NewScorer(pq).Match(fields)
}

// better reports whether a field scoring score should replace the current best field.
func better(score float64, f index.AnalyzedField, cur MatchResult) bool {
	switch {
	case cur.BestField == "":
		return true
	case score != cur.Score:
		return score > cur.Score
	case f.Weight != cur.BestFieldWeight:
		return f.Weight > cur.BestFieldWeight
	default:
		return utf8.RuneCountInString(f.Text) < cur.BestFieldLen
	}
}

// mergeSpans sorts spans by offset and drops duplicates. When two query tokens hit the same
// document token the higher priority tier is kept.
func mergeSpans(spans []model.Span) []model.Span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return tierRank(spans[i].Tier) < tierRank(spans[j].Tier)
	})
	out := spans[:0]
	for _, s := range spans {
		if n := len(out); n > 0 && out[n-1].Start == s.Start && out[n-1].End == s.End {
			continue
		}
		out = append(out, s)
	}
	return out
}

func tierRank(name string) int {
	for t := TierExact; t <= TierEdit; t++ {
		if t.String() == name {
			return int(t)
		}
	}
	return int(TierEdit) + 1
}
