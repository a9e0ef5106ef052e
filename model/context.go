package model

// SearchContext carries per-user signals for ranking. It is supplied by the session
// store and treated as read-only by the ranker.
type SearchContext struct {
	UserID         string                 `json:"user_id,omitempty"`
	Preferences    map[EntityType]float64 `json:"preferences,omitempty"`
	RecentBehavior map[string]struct{}    `json:"-"`
	SearchHistory  []string               `json:"search_history,omitempty"`
}

// HasInteracted reports whether the user recently interacted with the entity.
func (sc SearchContext) HasInteracted(entityID string) bool {
	_, ok := sc.RecentBehavior[entityID]
	return ok
}

// RecentEntities returns the recent behavior set as a slice, for serialization.
func (sc SearchContext) RecentEntities() []string {
	out := make([]string, 0, len(sc.RecentBehavior))
	for id := range sc.RecentBehavior {
		out = append(out, id)
	}
	return out
}

// NewSearchContext builds a context from plain slices, as received over the wire.
func NewSearchContext(userID string, prefs map[EntityType]float64, recent []string, history []string) SearchContext {
	sc := SearchContext{
		UserID:         userID,
		Preferences:    prefs,
		RecentBehavior: make(map[string]struct{}, len(recent)),
		SearchHistory:  append([]string(nil), history...),
	}
	for _, id := range recent {
		sc.RecentBehavior[id] = struct{}{}
	}
	return sc
}
