// Package store persists indexed documents so the in-memory indexes can be rebuilt after a
// restart. It is a write-through snapshot, not a query engine: searches never read from it.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/gcbaptista/entity-search/model"
)

// SchemaVersion is bumped whenever the stored document encoding changes incompatibly.
const SchemaVersion = 1

var (
	bucketDocuments  = []byte("documents")
	bucketMeta       = []byte("meta")
	keySchemaVersion = []byte("schema_version")
)

// DocumentStore is what the indexing layer needs from durable storage.
type DocumentStore interface {
	Put(doc model.Document) error
	PutBatch(docs []model.Document) error
	Delete(entityType model.EntityType, entityID string) error
	ForEach(fn func(doc model.Document) error) error
	Count() (int, error)
	Close() error
}

// BoltStore keeps one JSON encoded document per (entity type, entity id) key in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

var _ DocumentStore = (*BoltStore)(nil)

// Open opens or creates the store at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return checkSchema(tx.Bucket(bucketMeta))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func checkSchema(meta *bbolt.Bucket) error {
	data := meta.Get(keySchemaVersion)
	if data == nil {
		encoded, _ := json.Marshal(SchemaVersion)
		return meta.Put(keySchemaVersion, encoded)
	}
	var version int
	if err := json.Unmarshal(data, &version); err != nil {
		return fmt.Errorf("unreadable schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("store schema v%d is not supported (expected v%d); remove the file to rebuild", version, SchemaVersion)
	}
	return nil
}

// documentKey orders documents by type then id; the separator cannot appear in an entity type.
func documentKey(entityType model.EntityType, entityID string) []byte {
	key := make([]byte, 0, len(entityType)+1+len(entityID))
	key = append(key, entityType...)
	key = append(key, 0)
	return append(key, entityID...)
}

// Put stores or replaces a document.
func (s *BoltStore) Put(doc model.Document) error {
	return s.PutBatch([]model.Document{doc})
}

// PutBatch stores documents in one transaction: either all are written or none.
func (s *BoltStore) PutBatch(docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		for _, doc := range docs {
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode document '%s': %w", doc.EntityID, err)
			}
			if err := b.Put(documentKey(doc.EntityType, doc.EntityID), data); err != nil {
				return fmt.Errorf("store document '%s': %w", doc.EntityID, err)
			}
		}
		return nil
	})
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *BoltStore) Delete(entityType model.EntityType, entityID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete(documentKey(entityType, entityID))
	})
}

// Get loads one document.
func (s *BoltStore) Get(entityType model.EntityType, entityID string) (model.Document, bool, error) {
	var doc model.Document
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get(documentKey(entityType, entityID))
		if data == nil {
			return nil
		}
		found = true
		return decode(data, &doc)
	})
	return doc, found, err
}

// ForEach visits every stored document ordered by entity type and id. Iteration stops at the first
// error returned by fn.
func (s *BoltStore) ForEach(fn func(doc model.Document) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc model.Document
			if err := decode(v, &doc); err != nil {
				return fmt.Errorf("decode %q: %w", bytes.ReplaceAll(k, []byte{0}, []byte{'/'}), err)
			}
			return fn(doc)
		})
	})
}

// Count returns the number of stored documents.
func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketDocuments).Stats().KeyN
		return nil
	})
	return n, err
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// decode mirrors how documents arrive over HTTP: numeric attributes come back as float64.
func decode(data []byte, doc *model.Document) error {
	return json.Unmarshal(data, doc)
}
