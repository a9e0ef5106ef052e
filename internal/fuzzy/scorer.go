package fuzzy

import (
	"context"
	"unicode/utf8"

	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/typoutil"
	"github.com/gcbaptista/entity-search/model"
)

// cancelCheckEvery is how many dictionary terms are compared between context checks.
const cancelCheckEvery = 256

// Scorer matches many documents against one query. It remembers the score of every (query term,
// document term) pair it computes, so repeated terms cost one map lookup. A Scorer belongs to a
// single sub-search and is not safe for concurrent use.
type Scorer struct {
	m         *Matcher
	pq        *model.ProcessedQuery
	query     [][]queryTerm
	weightSum float64

	// pairs[i][j] holds the scores of query token i, alternative j.
	pairs     [][]map[string]pairScore
	collected bool
}

// NewScorer prepares pq for matching.
func (m *Matcher) NewScorer(pq *model.ProcessedQuery) *Scorer {
	s := &Scorer{m: m, pq: pq}
	if pq == nil || len(pq.Tokens) == 0 {
		return s
	}
	s.query = m.terms(pq)
	for _, tok := range pq.Tokens {
		s.weightSum += pq.Weight(tok.Text)
	}
	s.pairs = make([][]map[string]pairScore, len(s.query))
	for i, alts := range s.query {
		s.pairs[i] = make([]map[string]pairScore, len(alts))
		for j := range alts {
			s.pairs[i][j] = make(map[string]pairScore)
		}
	}
	return s
}

func (s *Scorer) score(i, j int, term string) pairScore {
	if p, ok := s.pairs[i][j][term]; ok {
		return p
	}
	if s.collected {
		// Collect saw every term that can score; anything else is a miss.
		return pairScore{}
	}
	p := s.m.pair(s.query[i][j], term)
	s.pairs[i][j][term] = p
	return p
}

// Collect finds every indexed term of r that matches a query token or variation under at least one
// tier and calls visit once per distinct term. Terms come from the index lookup structures: exact
// and contained terms by lookup, containing terms through the bigram sets, phonetic matches by code
// and edit-distance matches from the length buckets within the edit budget. After Collect, Match
// only scores the collected terms.
func (s *Scorer) Collect(ctx context.Context, r *index.Reader, visit func(term string)) error {
	seen := make(map[string]struct{})
	for i, alts := range s.query {
		for j, q := range alts {
			pairs := s.pairs[i][j]
			err := s.m.candidates(ctx, r, q, func(term string) {
				if _, done := pairs[term]; done {
					return
				}
				p := s.m.pair(q, term)
				if p.score <= 0 {
					return
				}
				pairs[term] = p
				if _, dup := seen[term]; !dup {
					seen[term] = struct{}{}
					visit(term)
				}
			})
			if err != nil {
				return err
			}
		}
	}
	s.collected = true
	return nil
}

// candidates calls emit for the dictionary terms that may match q. A term can be emitted more
// than once.
func (m *Matcher) candidates(ctx context.Context, r *index.Reader, q queryTerm, emit func(term string)) error {
	if q.runes == 0 {
		return nil
	}
	if r.HasTerm(q.text) {
		emit(q.text)
	}

	// partial: indexed terms contained in the query, then indexed terms containing it
	minPartial := max(m.settings.MinPartialLength, 1)
	runes := []rune(q.text)
	for i := range runes {
		for j := i + minPartial; j <= len(runes); j++ {
			if sub := string(runes[i:j]); r.HasTerm(sub) {
				emit(sub)
			}
		}
	}
	if q.runes >= minPartial {
		for _, term := range r.TermsContaining(q.text) {
			emit(term)
		}
	}

	for _, term := range r.TermsWithPhonetic(q.phonetic) {
		emit(term)
	}

	if !q.fuzzy {
		return ctx.Err()
	}
	lo, hi := q.editLengths(r.MaxTermLength())
	var visited int
	var err error
	r.TermsByLength(lo, hi, func(term string, n int) bool {
		visited++
		if visited%cancelCheckEvery == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}
		if q.editSimilarity(term, n) > 0 {
			emit(term)
		}
		return true
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}

// editLengths returns the range of term rune lengths that can stay within the edit budget of q.
// A term of length n needs |n - len(q)| edits at least, and the budget depends on the longer one.
func (q queryTerm) editLengths(longest int) (int, int) {
	lo := q.runes - typoutil.MaxDistanceForLength(q.threshold, q.runes)
	hi := q.runes
	for hi < longest && hi+1-q.runes <= typoutil.MaxDistanceForLength(q.threshold, hi+1) {
		hi++
	}
	return max(lo, 1), hi
}

// Match scores the analyzed fields of one document.
func (s *Scorer) Match(fields []index.AnalyzedField) MatchResult {
	result := MatchResult{}
	if len(s.query) == 0 || s.weightSum <= 0 {
		return result
	}

	for _, f := range fields {
		if len(f.Tokens) == 0 {
			continue
		}
		var fieldSum float64
		var spans []model.Span
		for i, alts := range s.query {
			best, bestTok := pairScore{}, -1
			for j := range alts {
				for k, dt := range f.Tokens {
					if p := s.score(i, j, dt.Text); p.score > best.score {
						best, bestTok = p, k
					}
				}
			}
			if bestTok < 0 {
				continue
			}
			fieldSum += s.pq.Weight(s.pq.Tokens[i].Text) * best.score
			dt := f.Tokens[bestTok]
			spans = append(spans, model.Span{
				Start: dt.Start,
				End:   dt.End,
				Text:  f.Text[dt.Start:dt.End],
				Tier:  best.tier.String(),
				Tiers: best.fired.names(),
			})
		}
		if len(spans) == 0 {
			continue
		}

		score := min(f.Weight*fieldSum/s.weightSum, 1)
		if result.Highlights == nil {
			result.Highlights = make(map[string][]model.Span)
		}
		result.Highlights[f.Name] = mergeSpans(append(result.Highlights[f.Name], spans...))

		if better(score, f, result) {
			result.Score = score
			result.BestField = f.Name
			result.BestFieldWeight = f.Weight
			result.BestFieldLen = utf8.RuneCountInString(f.Text)
		}
	}
	return result
}
