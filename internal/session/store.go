// Package session keeps the per-user signals used for ranking: entity type preferences, recently
// viewed entities and past queries. Sessions live in a bounded LRU, so idle users are forgotten.
package session

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/model"
)

type session struct {
	preferences map[model.EntityType]float64
	recent      []string // oldest first
	history     []string // oldest first
}

// Store is an in-memory session store. It is safe for concurrent use.
type Store struct {
	settings config.SessionSettings
	known    map[model.EntityType]bool

	mu       sync.Mutex // serializes read-modify-write of a session
	sessions *lru.Cache[string, *session]
}

// New creates a store bounded by settings.Capacity users.
func New(settings config.SessionSettings, types []model.EntityType) (*Store, error) {
	cache, err := lru.New[string, *session](max(settings.Capacity, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	s := &Store{settings: settings, known: make(map[model.EntityType]bool, len(types)), sessions: cache}
	for _, t := range types {
		s.known[t] = true
	}
	return s, nil
}

// Context returns a copy of the user's signals. Unknown or anonymous users get an empty context.
func (s *Store) Context(userID string) model.SearchContext {
	userID = strings.TrimSpace(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Get(userID)
	if userID == "" || !ok {
		return model.NewSearchContext(userID, map[model.EntityType]float64{}, nil, nil)
	}
	prefs := make(map[model.EntityType]float64, len(sess.preferences))
	for t, w := range sess.preferences {
		prefs[t] = w
	}
	return model.NewSearchContext(userID, prefs, sess.recent, sess.history)
}

// SetPreferences replaces the user's entity type preferences. Weights must lie in [0,1].
func (s *Store) SetPreferences(userID string, prefs map[model.EntityType]float64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.NewValidationError("user_id", "user_id is required")
	}
	for t, w := range prefs {
		if !s.known[t] {
			return errors.NewValidationError("preferences", fmt.Sprintf("unknown entity type '%s'", t))
		}
		if w < 0 || w > 1 {
			return errors.NewValidationError("preferences", fmt.Sprintf("weight for '%s' must be within [0,1], got %g", t, w))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(userID)
	sess.preferences = make(map[model.EntityType]float64, len(prefs))
	for t, w := range prefs {
		sess.preferences[t] = w
	}
	return nil
}

// RecordInteraction marks entityID as recently viewed by the user.
func (s *Store) RecordInteraction(userID, entityID string) error {
	userID, entityID = strings.TrimSpace(userID), strings.TrimSpace(entityID)
	if userID == "" {
		return errors.NewValidationError("user_id", "user_id is required")
	}
	if entityID == "" {
		return errors.NewValidationError("entity_id", "entity_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(userID)
	sess.recent = pushUnique(sess.recent, entityID, s.settings.RecentBehaviorSize)
	return nil
}

// RecordQuery appends a query to the user's history. Anonymous users and blank queries are ignored.
func (s *Store) RecordQuery(userID, query string) {
	userID, query = strings.TrimSpace(userID), strings.TrimSpace(query)
	if userID == "" || query == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(userID)
	sess.history = append(sess.history, query)
	if n := s.settings.HistorySize; n > 0 && len(sess.history) > n {
		sess.history = append([]string(nil), sess.history[len(sess.history)-n:]...)
	}
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	return s.sessions.Len()
}

// getOrCreate assumes the caller holds s.mu.
func (s *Store) getOrCreate(userID string) *session {
	if sess, ok := s.sessions.Get(userID); ok {
		return sess
	}
	sess := &session{preferences: map[model.EntityType]float64{}}
	s.sessions.Add(userID, sess)
	return sess
}

// pushUnique moves item to the end of list, keeping at most limit entries.
func pushUnique(list []string, item string, limit int) []string {
	out := make([]string, 0, len(list)+1)
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	out = append(out, item)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
