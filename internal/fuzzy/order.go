package fuzzy

import (
	"sort"

	"github.com/gcbaptista/entity-search/model"
)

// Candidate is a document that passed filtering together with its match result.
type Candidate struct {
	Document model.Document
	Match    MatchResult
}

// Less orders candidates for merging: higher match score, then higher best-field weight, then
// shorter best-field text, then entity id and entity type ascending. It is a strict total order
// over distinct (entity_type, entity_id) pairs.
func Less(a, b Candidate) bool {
	if a.Match.Score != b.Match.Score {
		return a.Match.Score > b.Match.Score
	}
	if a.Match.BestFieldWeight != b.Match.BestFieldWeight {
		return a.Match.BestFieldWeight > b.Match.BestFieldWeight
	}
	if a.Match.BestFieldLen != b.Match.BestFieldLen {
		return a.Match.BestFieldLen < b.Match.BestFieldLen
	}
	if a.Document.EntityID != b.Document.EntityID {
		return a.Document.EntityID < b.Document.EntityID
	}
	return a.Document.EntityType < b.Document.EntityType
}

// Sort orders candidates in place with Less.
func Sort(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return Less(candidates[i], candidates[j]) })
}
