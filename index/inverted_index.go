// Package index implements the per-entity-type inverted index: documents, postings and a sorted
// term dictionary guarded by a single RWMutex, so readers observe either the fully-old or the
// fully-new state of any document.
package index

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/internal/tokenizer"
	"github.com/gcbaptista/entity-search/internal/typoutil"
	"github.com/gcbaptista/entity-search/model"
)

// writeStripes is the number of per-id mutexes used to serialize writers of the same entity id.
const writeStripes = 64

// Stats describes the size of an index.
type Stats struct {
	EntityType model.EntityType `json:"entity_type"`
	Documents  int              `json:"documents"`
	Terms      int              `json:"terms"`
	Postings   int              `json:"postings"`
	Generation uint64           `json:"generation"`
}

// InvertedIndex maps terms to postings for a single entity type and owns the stored documents.
type InvertedIndex struct {
	entityType model.EntityType
	settings   config.EntityTypeSettings // static; never mutated after construction

	mu       sync.RWMutex
	postings map[string]PostingList
	terms    []string          // sorted term dictionary, for prefix enumeration
	phonetic map[string]string // term -> phonetic code, computed once per term
	byCode   map[string]termSet // phonetic code -> terms
	byLength map[int]termSet    // rune length -> terms
	grams    map[string]termSet // rune bigram -> terms containing it
	docs     map[uint32]*Entry
	ids      map[string]uint32 // entity id -> internal id
	nextID   uint32
	postingN int

	generation atomic.Uint64
	writers    [writeStripes]sync.Mutex
}

// New creates an empty index for one entity type.
func New(entityType model.EntityType, settings config.EntityTypeSettings) *InvertedIndex {
	return &InvertedIndex{
		entityType: entityType,
		settings:   settings,
		postings:   make(map[string]PostingList),
		phonetic:   make(map[string]string),
		byCode:     make(map[string]termSet),
		byLength:   make(map[int]termSet),
		grams:      make(map[string]termSet),
		docs:       make(map[uint32]*Entry),
		ids:        make(map[string]uint32),
	}
}

// EntityType returns the entity type this index serves.
func (ix *InvertedIndex) EntityType() model.EntityType { return ix.entityType }

// Settings returns the entity type configuration the index was built with.
func (ix *InvertedIndex) Settings() config.EntityTypeSettings { return ix.settings }

// Generation increases on every successful mutation. Caches key on it.
func (ix *InvertedIndex) Generation() uint64 { return ix.generation.Load() }

// Validate checks a document without touching the index.
func (ix *InvertedIndex) Validate(doc model.Document) error {
	id := strings.TrimSpace(doc.EntityID)
	typ := string(doc.EntityType)

	switch {
	case id == "":
		return errors.NewIndexError(typ, "", "entity_id is required")
	case doc.EntityType == "":
		return errors.NewIndexError("", id, "entity_type is required")
	case doc.EntityType != ix.entityType:
		return errors.NewIndexError(typ, id, "entity type does not match index '"+string(ix.entityType)+"'")
	case len(doc.Fields) == 0:
		return errors.NewIndexError(typ, id, "at least one field is required")
	case math.IsNaN(doc.PopularityScore) || math.IsInf(doc.PopularityScore, 0) || doc.PopularityScore < 0:
		return errors.NewIndexError(typ, id, "popularity_score must be a non-negative number")
	}
	for i, f := range doc.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return errors.NewIndexError(typ, id, fmt.Sprintf("field at position %d has an empty name", i))
		}
		if math.IsNaN(f.Weight) || math.IsInf(f.Weight, 0) {
			return errors.NewIndexError(typ, id, "field '"+f.Name+"' has an invalid weight")
		}
	}
	return nil
}

// analyze tokenizes all fields and resolves their weights. It runs outside the index lock.
func (ix *InvertedIndex) analyze(doc model.Document) *Entry {
	return Analyze(doc, ix.settings)
}

// Analyze builds the entry for doc without storing it: a private copy of the document with every
// field tokenized and weighted according to settings.
func Analyze(doc model.Document, settings config.EntityTypeSettings) *Entry {
	doc = doc.Clone()
	doc.EntityID = strings.TrimSpace(doc.EntityID)

	entry := &Entry{Document: doc, Fields: make([]AnalyzedField, 0, len(doc.Fields))}
	for _, f := range doc.Fields {
		entry.Fields = append(entry.Fields, AnalyzedField{
			Name:   f.Name,
			Text:   f.Text,
			Weight: settings.ResolveWeight(f.Name, f.Weight),
			Tokens: tokenizer.Analyze(f.Name, f.Text),
		})
	}
	return entry
}

func (ix *InvertedIndex) writerFor(entityID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityID))
	return &ix.writers[h.Sum32()%writeStripes]
}

// Upsert validates, analyzes and stores doc, replacing any previous version with the same id.
// Old postings are removed and new ones added under one write lock; concurrent readers never see
// a mix. Writers of the same id are applied in arrival order.
func (ix *InvertedIndex) Upsert(doc model.Document) error {
	if err := ix.Validate(doc); err != nil {
		return err
	}
	id := strings.TrimSpace(doc.EntityID)

	writer := ix.writerFor(id)
	writer.Lock()
	defer writer.Unlock()

	entry := ix.analyze(doc)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	internalID, exists := ix.ids[id]
	if exists {
		ix.removeEntryUnsafe(ix.docs[internalID])
	} else {
		internalID = ix.nextID
		ix.nextID++
		ix.ids[id] = internalID
	}
	entry.ID = internalID
	ix.addEntryUnsafe(entry)
	ix.generation.Add(1)
	return nil
}

// Remove deletes all postings of entityID. Removing an unknown id is a no-op; the return value
// reports whether anything was removed.
func (ix *InvertedIndex) Remove(entityID string) bool {
	id := strings.TrimSpace(entityID)
	if id == "" {
		return false
	}

	writer := ix.writerFor(id)
	writer.Lock()
	defer writer.Unlock()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	internalID, exists := ix.ids[id]
	if !exists {
		return false
	}
	ix.removeEntryUnsafe(ix.docs[internalID])
	delete(ix.docs, internalID)
	delete(ix.ids, id)
	ix.generation.Add(1)
	return true
}

// addEntryUnsafe assumes the caller holds the write lock.
func (ix *InvertedIndex) addEntryUnsafe(entry *Entry) {
	for _, f := range entry.Fields {
		for _, tok := range f.Tokens {
			list, known := ix.postings[tok.Text]
			if !known {
				ix.insertTermUnsafe(tok.Text)
			}
			ix.postings[tok.Text] = append(list, Posting{
				DocID:       entry.ID,
				FieldName:   f.Name,
				FieldWeight: f.Weight,
				Position:    tok.Position,
			})
			ix.postingN++
		}
	}
	ix.docs[entry.ID] = entry
}

// removeEntryUnsafe drops every posting of entry. Terms left without postings leave the dictionary.
func (ix *InvertedIndex) removeEntryUnsafe(entry *Entry) {
	if entry == nil {
		return
	}
	for term := range entry.terms() {
		list := ix.postings[term]
		kept := make(PostingList, 0, len(list))
		for _, p := range list {
			if p.DocID != entry.ID {
				kept = append(kept, p)
			}
		}
		ix.postingN -= len(list) - len(kept)
		if len(kept) == 0 {
			delete(ix.postings, term)
			ix.deleteTermUnsafe(term)
			continue
		}
		ix.postings[term] = kept
	}
}

func (ix *InvertedIndex) insertTermUnsafe(term string) {
	i := sort.SearchStrings(ix.terms, term)
	if i < len(ix.terms) && ix.terms[i] == term {
		return
	}
	ix.terms = append(ix.terms, "")
	copy(ix.terms[i+1:], ix.terms[i:])
	ix.terms[i] = term

	code := typoutil.PhoneticCode(term)
	ix.phonetic[term] = code
	if code != "" {
		addTerm(ix.byCode, code, term)
	}
	addTerm(ix.byLength, utf8.RuneCountInString(term), term)
	for _, g := range bigrams(term) {
		addTerm(ix.grams, g, term)
	}
}

func (ix *InvertedIndex) deleteTermUnsafe(term string) {
	i := sort.SearchStrings(ix.terms, term)
	if i < len(ix.terms) && ix.terms[i] == term {
		ix.terms = append(ix.terms[:i], ix.terms[i+1:]...)
	}
	if code := ix.phonetic[term]; code != "" {
		dropTerm(ix.byCode, code, term)
	}
	delete(ix.phonetic, term)
	dropTerm(ix.byLength, utf8.RuneCountInString(term), term)
	for _, g := range bigrams(term) {
		dropTerm(ix.grams, g, term)
	}
}

// View runs fn with a consistent read-only snapshot of the index. The read lock is held until fn
// returns, so fn must not call back into mutating methods.
func (ix *InvertedIndex) View(fn func(r *Reader) error) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return fn(&Reader{ix: ix, generation: ix.generation.Load()})
}

// Lookup returns a copy of the postings for an exact term.
func (ix *InvertedIndex) Lookup(term string) PostingList {
	var out PostingList
	_ = ix.View(func(r *Reader) error {
		out = append(PostingList(nil), r.Lookup(term)...)
		return nil
	})
	return out
}

// PrefixLookup returns up to limit terms starting with prefix, in sorted term order, each with a
// copy of its postings.
func (ix *InvertedIndex) PrefixLookup(prefix string, limit int) []TermPostings {
	var out []TermPostings
	_ = ix.View(func(r *Reader) error {
		for _, term := range r.PrefixTerms(prefix, limit) {
			out = append(out, TermPostings{Term: term, Postings: append(PostingList(nil), r.Lookup(term)...)})
		}
		return nil
	})
	return out
}

// Get returns a copy of the stored document.
func (ix *InvertedIndex) Get(entityID string) (model.Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	internalID, ok := ix.ids[strings.TrimSpace(entityID)]
	if !ok {
		return model.Document{}, false
	}
	return ix.docs[internalID].Document.Clone(), true
}

// Len returns the number of stored documents.
func (ix *InvertedIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Stats returns document, term and posting counts.
func (ix *InvertedIndex) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		EntityType: ix.entityType,
		Documents:  len(ix.docs),
		Terms:      len(ix.terms),
		Postings:   ix.postingN,
		Generation: ix.generation.Load(),
	}
}

// Reader is a read-only view of an index, valid only inside View.
type Reader struct {
	ix         *InvertedIndex
	generation uint64
}

// EntityType returns the entity type of the viewed index.
func (r *Reader) EntityType() model.EntityType { return r.ix.entityType }

// Settings returns the entity type configuration.
func (r *Reader) Settings() config.EntityTypeSettings { return r.ix.settings }

// Generation returns the generation the view was taken at.
func (r *Reader) Generation() uint64 { return r.generation }

// Lookup returns the postings of term. The slice must not be modified.
func (r *Reader) Lookup(term string) PostingList {
	return r.ix.postings[term]
}

// PhoneticCode returns the precomputed phonetic code of an indexed term.
func (r *Reader) PhoneticCode(term string) string {
	return r.ix.phonetic[term]
}

// PrefixTerms returns up to limit indexed terms starting with prefix, in sorted order.
// A non-positive limit means no limit.
func (r *Reader) PrefixTerms(prefix string, limit int) []string {
	terms := r.ix.terms
	var out []string
	for i := sort.SearchStrings(terms, prefix); i < len(terms); i++ {
		if !strings.HasPrefix(terms[i], prefix) {
			break
		}
		out = append(out, terms[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// HasTerm reports whether term is in the dictionary.
func (r *Reader) HasTerm(term string) bool {
	_, ok := r.ix.postings[term]
	return ok
}

// TermsContaining returns the indexed terms that contain sub, in sorted order. Candidates come
// from the bigram sets of sub, so only terms sharing its rarest bigram are compared.
func (r *Reader) TermsContaining(sub string) []string {
	if sub == "" {
		return nil
	}
	grams := bigrams(sub)
	if len(grams) == 0 {
		var out []string
		for _, term := range r.ix.terms {
			if strings.Contains(term, sub) {
				out = append(out, term)
			}
		}
		return out
	}

	rarest := r.ix.grams[grams[0]]
	for _, g := range grams[1:] {
		if set := r.ix.grams[g]; len(set) < len(rarest) {
			rarest = set
		}
	}
	out := make([]string, 0, len(rarest))
	for term := range rarest {
		if strings.Contains(term, sub) {
			out = append(out, term)
		}
	}
	sort.Strings(out)
	return out
}

// TermsWithPhonetic returns the indexed terms whose phonetic code is code, in sorted order.
func (r *Reader) TermsWithPhonetic(code string) []string {
	if code == "" {
		return nil
	}
	return r.ix.byCode[code].sorted()
}

// MaxTermLength returns the rune length of the longest indexed term.
func (r *Reader) MaxTermLength() int {
	longest := 0
	for n := range r.ix.byLength {
		longest = max(longest, n)
	}
	return longest
}

// TermsByLength visits the indexed terms whose rune length is within [minLen, maxLen], with that
// length, until fn returns false. The order within one length is unspecified.
func (r *Reader) TermsByLength(minLen, maxLen int, fn func(term string, runes int) bool) {
	for n := max(minLen, 1); n <= maxLen; n++ {
		for term := range r.ix.byLength[n] {
			if !fn(term, n) {
				return
			}
		}
	}
}

// ScanTerms visits every indexed term in sorted order with its phonetic code until fn returns false.
func (r *Reader) ScanTerms(fn func(term, phonetic string) bool) {
	for _, term := range r.ix.terms {
		if !fn(term, r.ix.phonetic[term]) {
			return
		}
	}
}

// Entry returns the stored entry for an internal id.
func (r *Reader) Entry(docID uint32) (*Entry, bool) {
	e, ok := r.ix.docs[docID]
	return e, ok
}

// EntryByEntityID returns the stored entry for an entity id.
func (r *Reader) EntryByEntityID(entityID string) (*Entry, bool) {
	internalID, ok := r.ix.ids[entityID]
	if !ok {
		return nil, false
	}
	return r.Entry(internalID)
}

// Entries visits every stored entry in internal id order until fn returns false.
func (r *Reader) Entries(fn func(e *Entry) bool) {
	ids := make([]uint32, 0, len(r.ix.docs))
	for id := range r.ix.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !fn(r.ix.docs[id]) {
			return
		}
	}
}

// Len returns the number of stored documents.
func (r *Reader) Len() int { return len(r.ix.docs) }
