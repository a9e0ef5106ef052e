// Package indexing owns the per-entity-type indexes and every write path into them: single upserts,
// concurrent batch ingestion, removals and the restore from the snapshot store.
package indexing

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/internal/logging"
	"github.com/gcbaptista/entity-search/internal/metrics"
	"github.com/gcbaptista/entity-search/model"
	"github.com/gcbaptista/entity-search/store"
)

const (
	writeStripes = 64

	operationUpsert = "upsert"
	operationRemove = "remove"
)

// Failure describes one document of a batch that could not be indexed.
type Failure struct {
	Position   int              `json:"position"`
	EntityType model.EntityType `json:"entity_type,omitempty"`
	EntityID   string           `json:"entity_id,omitempty"`
	Error      string           `json:"error"`
}

func (f Failure) String() string {
	return fmt.Sprintf("#%d %s/%s: %s", f.Position, f.EntityType, f.EntityID, f.Error)
}

// BatchResult reports the outcome of UpsertBatch.
type BatchResult struct {
	Indexed  int       `json:"indexed"`
	Failures []Failure `json:"failures,omitempty"`
}

// ProgressFunc is called after each batch item with the number of processed and total items.
type ProgressFunc func(done, total int)

// Catalog holds one inverted index per configured entity type. When a store is configured every
// mutation is written through to it before the index is touched; a batch is written in one
// transaction.
type Catalog struct {
	cfg     *config.Config
	indexes map[model.EntityType]*index.InvertedIndex
	store   store.DocumentStore // nil keeps everything in memory
	pool    *ants.Pool
	logger  *zap.Logger
	metrics *metrics.Metrics

	// writers serialize store+index updates of the same (type, id) so both see the same order.
	writers [writeStripes]sync.Mutex
}

// NewCatalog creates an empty index for every configured entity type. st may be nil.
func NewCatalog(cfg *config.Config, st store.DocumentStore, logger *zap.Logger, m *metrics.Metrics) (*Catalog, error) {
	pool, err := ants.NewPool(cfg.Ingest.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest pool: %w", err)
	}

	c := &Catalog{
		cfg:     cfg,
		indexes: make(map[model.EntityType]*index.InvertedIndex, len(cfg.EntityTypes)),
		store:   st,
		pool:    pool,
		logger:  logging.OrNop(logger).Named("indexing"),
		metrics: m,
	}
	for _, t := range cfg.EntityTypeNames() {
		c.indexes[t] = index.New(t, cfg.EntityTypes[t])
		m.SetIndexedDocuments(string(t), 0)
	}
	return c, nil
}

// Index returns the index of an entity type.
func (c *Catalog) Index(t model.EntityType) (*index.InvertedIndex, bool) {
	ix, ok := c.indexes[t]
	return ix, ok
}

// EntityTypes returns the configured entity types in a stable order.
func (c *Catalog) EntityTypes() []model.EntityType {
	return c.cfg.EntityTypeNames()
}

func (c *Catalog) stripe(t model.EntityType, entityID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(t))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(entityID))
	return int(h.Sum32() % writeStripes)
}

// lockStripes locks the writer stripes of every document in ascending stripe order, so concurrent
// batches cannot deadlock, and returns the matching unlock.
func (c *Catalog) lockStripes(docs []pending) func() {
	held := make(map[int]struct{}, writeStripes)
	for _, p := range docs {
		held[c.stripe(p.doc.EntityType, p.doc.EntityID)] = struct{}{}
	}
	order := make([]int, 0, len(held))
	for i := range held {
		order = append(order, i)
	}
	sort.Ints(order)
	for _, i := range order {
		c.writers[i].Lock()
	}
	return func() {
		for i := len(order) - 1; i >= 0; i-- {
			c.writers[order[i]].Unlock()
		}
	}
}

// pending is a validated batch document and its position in the batch.
type pending struct {
	pos int
	doc model.Document
	ix  *index.InvertedIndex
}

// prepare resolves the index of doc and validates it. The returned document has a trimmed id.
func (c *Catalog) prepare(doc model.Document) (model.Document, *index.InvertedIndex, error) {
	ix, ok := c.indexes[doc.EntityType]
	if !ok {
		err := errors.NewIndexError(string(doc.EntityType), doc.EntityID, "unknown entity type")
		if doc.EntityType == "" {
			err = errors.NewIndexError("", doc.EntityID, "entity_type is required")
		}
		c.metrics.IndexMutation(string(doc.EntityType), operationUpsert, metrics.OutcomeError)
		return doc, nil, err
	}
	if err := ix.Validate(doc); err != nil {
		c.metrics.IndexMutation(string(doc.EntityType), operationUpsert, metrics.OutcomeError)
		return doc, nil, err
	}
	doc.EntityID = strings.TrimSpace(doc.EntityID)
	return doc, ix, nil
}

// apply makes an already persisted document visible to searches.
func (c *Catalog) apply(ix *index.InvertedIndex, doc model.Document) error {
	if err := ix.Upsert(doc); err != nil {
		c.metrics.IndexMutation(string(doc.EntityType), operationUpsert, metrics.OutcomeError)
		return err
	}
	c.metrics.IndexMutation(string(doc.EntityType), operationUpsert, metrics.OutcomeOK)
	c.metrics.SetIndexedDocuments(string(doc.EntityType), ix.Len())
	return nil
}

// Upsert validates doc, persists it and makes it visible to searches. When Upsert returns nil every
// token of doc is searchable; on error neither the store nor the index changed.
func (c *Catalog) Upsert(doc model.Document) error {
	doc, ix, err := c.prepare(doc)
	if err != nil {
		return err
	}

	writer := &c.writers[c.stripe(doc.EntityType, doc.EntityID)]
	writer.Lock()
	defer writer.Unlock()

	if c.store != nil {
		if err := c.store.Put(doc); err != nil {
			c.metrics.IndexMutation(string(doc.EntityType), operationUpsert, metrics.OutcomeError)
			return fmt.Errorf("failed to persist document '%s': %w", doc.EntityID, err)
		}
	}
	return c.apply(ix, doc)
}

// UpsertBatch validates docs, persists the valid ones in a single store transaction and indexes
// them concurrently on the ingest pool. One bad document never stops the others; each is reported
// in the result. Repeated ids are applied in batch order. When ctx is cancelled before the batch is
// persisted, nothing is written and every document is reported as a failure.
func (c *Catalog) UpsertBatch(ctx context.Context, docs []model.Document, progress ProgressFunc) BatchResult {
	var (
		mu     sync.Mutex
		result BatchResult
		done   int
	)
	record := func(pos int, doc model.Document, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failures = append(result.Failures, Failure{
				Position:   pos,
				EntityType: doc.EntityType,
				EntityID:   doc.EntityID,
				Error:      err.Error(),
			})
		} else {
			result.Indexed++
		}
		done++
		if progress != nil {
			progress(done, len(docs))
		}
	}

	valid := make([]pending, 0, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			record(i, doc, fmt.Errorf("not indexed: %w", err))
			continue
		}
		prepared, ix, err := c.prepare(doc)
		if err != nil {
			record(i, doc, err)
			continue
		}
		valid = append(valid, pending{pos: i, doc: prepared, ix: ix})
	}

	if len(valid) > 0 {
		unlock := c.lockStripes(valid)
		if err := c.persist(ctx, valid); err != nil {
			for _, p := range valid {
				c.metrics.IndexMutation(string(p.doc.EntityType), operationUpsert, metrics.OutcomeError)
				record(p.pos, p.doc, err)
			}
		} else {
			c.indexAll(valid, record)
		}
		unlock()
	}

	sortFailures(result.Failures)
	if len(result.Failures) > 0 {
		c.logger.Warn("batch upsert finished with failures",
			zap.Int("indexed", result.Indexed),
			zap.Int("failed", len(result.Failures)))
	} else {
		c.logger.Debug("batch upsert finished", zap.Int("indexed", result.Indexed))
	}
	return result
}

// persist writes the validated documents in one store transaction.
func (c *Catalog) persist(ctx context.Context, valid []pending) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("not indexed: %w", err)
	}
	if c.store == nil {
		return nil
	}
	docs := make([]model.Document, len(valid))
	for i, p := range valid {
		docs[i] = p.doc
	}
	if err := c.store.PutBatch(docs); err != nil {
		return fmt.Errorf("failed to persist batch: %w", err)
	}
	return nil
}

// indexAll applies persisted documents on the ingest pool. Documents sharing a (type, id) run in one
// task, in batch order, so the last one wins as it does in the store.
func (c *Catalog) indexAll(valid []pending, record func(int, model.Document, error)) {
	groups := make(map[string][]pending)
	var order []string
	for _, p := range valid {
		key := string(p.doc.EntityType) + "\x00" + p.doc.EntityID
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	var wg sync.WaitGroup
	for _, key := range order {
		group := groups[key]
		run := func() {
			for _, p := range group {
				record(p.pos, p.doc, c.apply(p.ix, p.doc))
			}
		}
		wg.Add(1)
		if err := c.pool.Submit(func() {
			defer wg.Done()
			run()
		}); err != nil {
			// already persisted: index inline rather than let the store and the index diverge
			wg.Done()
			c.logger.Warn("ingest pool rejected task, indexing inline", zap.Error(err))
			run()
		}
	}
	wg.Wait()
}

func sortFailures(failures []Failure) {
	sort.Slice(failures, func(i, j int) bool { return failures[i].Position < failures[j].Position })
}

// Remove deletes entityID from the given entity types, or from every type when none is given.
// Removing an id that is not indexed is a no-op. It returns the types the document was removed from.
func (c *Catalog) Remove(entityID string, types ...model.EntityType) ([]model.EntityType, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, errors.NewValidationError("entity_id", "entity_id is required")
	}
	if len(types) == 0 {
		types = c.EntityTypes()
	}
	for _, t := range types {
		if _, ok := c.indexes[t]; !ok {
			return nil, errors.NewValidationError("entity_type", "unknown entity type '"+string(t)+"'")
		}
	}

	var removed []model.EntityType
	for _, t := range types {
		ok, err := c.removeOne(t, entityID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, t)
		}
	}
	return removed, nil
}

func (c *Catalog) removeOne(t model.EntityType, entityID string) (bool, error) {
	ix := c.indexes[t]

	writer := &c.writers[c.stripe(t, entityID)]
	writer.Lock()
	defer writer.Unlock()

	if c.store != nil {
		if err := c.store.Delete(t, entityID); err != nil {
			c.metrics.IndexMutation(string(t), operationRemove, metrics.OutcomeError)
			return false, fmt.Errorf("failed to delete stored document '%s': %w", entityID, err)
		}
	}
	removed := ix.Remove(entityID)
	if removed {
		c.metrics.IndexMutation(string(t), operationRemove, metrics.OutcomeOK)
		c.metrics.SetIndexedDocuments(string(t), ix.Len())
	}
	return removed, nil
}

// Get returns a copy of an indexed document.
func (c *Catalog) Get(t model.EntityType, entityID string) (model.Document, bool) {
	ix, ok := c.indexes[t]
	if !ok {
		return model.Document{}, false
	}
	return ix.Get(entityID)
}

// Restore loads every stored document into the indexes. Documents of entity types that are no longer
// configured, or that no longer validate, are skipped and logged.
func (c *Catalog) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	restored, skipped := 0, 0
	err := c.store.ForEach(func(doc model.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ix, ok := c.indexes[doc.EntityType]
		if !ok {
			skipped++
			c.logger.Warn("skipping stored document of unknown entity type",
				zap.String("entity_type", string(doc.EntityType)),
				zap.String("entity_id", doc.EntityID))
			return nil
		}
		if err := ix.Upsert(doc); err != nil {
			skipped++
			c.logger.Warn("skipping invalid stored document", zap.String("entity_id", doc.EntityID), zap.Error(err))
			return nil
		}
		restored++
		return nil
	})
	if err != nil {
		return restored, fmt.Errorf("failed to restore documents: %w", err)
	}

	for t, ix := range c.indexes {
		c.metrics.SetIndexedDocuments(string(t), ix.Len())
	}
	c.logger.Info("restored documents from store", zap.Int("restored", restored), zap.Int("skipped", skipped))
	return restored, nil
}

// Stats returns per-type index statistics in entity type order.
func (c *Catalog) Stats() []index.Stats {
	out := make([]index.Stats, 0, len(c.indexes))
	for _, t := range c.EntityTypes() {
		out = append(out, c.indexes[t].Stats())
	}
	return out
}

// StoredDocuments returns the number of documents in the store, or -1 without a store.
func (c *Catalog) StoredDocuments() (int, error) {
	if c.store == nil {
		return -1, nil
	}
	n, err := c.store.Count()
	if err != nil {
		return 0, fmt.Errorf("failed to count stored documents: %w", err)
	}
	return n, nil
}

// Close releases the ingest pool and closes the store.
func (c *Catalog) Close() error {
	c.pool.Release()
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
