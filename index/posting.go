package index

import (
	"sort"

	"github.com/gcbaptista/entity-search/model"
)

// Posting records that a term occurs in a document field at a given position.
type Posting struct {
	DocID       uint32  // Internal numeric ID for efficiency
	FieldName   string  // The name of the field where the term was found (e.g., "name", "symbol")
	FieldWeight float64 // Resolved weight of that field
	Position    int     // Token position within the field
}

// PostingList is a slice of Posting, in insertion order.
type PostingList []Posting

// TermPostings pairs a term with its postings, as returned by prefix lookups.
type TermPostings struct {
	Term     string
	Postings PostingList
}

// AnalyzedField is a document field with its resolved weight and tokens.
type AnalyzedField struct {
	Name   string
	Text   string
	Weight float64
	Tokens []model.Token
}

// Entry is a stored document together with its analysis. Entries are immutable: an upsert
// replaces the whole entry, so a pointer obtained inside a View stays consistent.
type Entry struct {
	ID       uint32
	Document model.Document
	Fields   []AnalyzedField
}

// terms returns the distinct normalized terms of the entry.
func (e *Entry) terms() map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range e.Fields {
		for _, t := range f.Tokens {
			out[t.Text] = struct{}{}
		}
	}
	return out
}

// termSet is a set of dictionary terms.
type termSet map[string]struct{}

func (s termSet) sorted() []string {
	out := make([]string, 0, len(s))
	for term := range s {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

func addTerm[K comparable](sets map[K]termSet, key K, term string) {
	set, ok := sets[key]
	if !ok {
		set = make(termSet)
		sets[key] = set
	}
	set[term] = struct{}{}
}

func dropTerm[K comparable](sets map[K]termSet, key K, term string) {
	set, ok := sets[key]
	if !ok {
		return
	}
	delete(set, term)
	if len(set) == 0 {
		delete(sets, key)
	}
}

// bigrams returns the rune bigrams of term, or nil when it has fewer than two runes.
func bigrams(term string) []string {
	runes := []rune(term)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}
