// Package suggest implements prefix completion over the configured suggestion fields of each
// entity type.
package suggest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/index"
	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/internal/logging"
	"github.com/gcbaptista/entity-search/internal/tokenizer"
	"github.com/gcbaptista/entity-search/model"
)

// cancelCheckInterval is how many postings are visited between context checks.
const cancelCheckInterval = 256

// Indexes resolves the index that serves an entity type.
type Indexes interface {
	Index(t model.EntityType) (*index.InvertedIndex, bool)
}

// Engine answers prefix completion requests. Completed answers are cached by index generation, so
// any mutation of a searched index makes older entries unreachable.
type Engine struct {
	cfg     *config.Config
	indexes Indexes
	cache   *lru.Cache[string, []string]
	logger  *zap.Logger
}

// New creates a suggestion engine.
func New(cfg *config.Config, indexes Indexes, logger *zap.Logger) *Engine {
	cache, _ := lru.New[string, []string](max(cfg.Suggest.CacheSize, 1))
	return &Engine{cfg: cfg, indexes: indexes, cache: cache, logger: logging.OrNop(logger)}
}

// candidate is one completion with the popularity used to rank it.
type candidate struct {
	key        string // normalized text, for dedup
	text       string
	popularity float64
}

// Suggest returns up to limit completions for prefix. An empty entity type searches every
// configured type. When the suggestion timeout expires the completions found so far are returned.
func (e *Engine) Suggest(ctx context.Context, prefix string, entityType model.EntityType, limit int) ([]string, error) {
	types, err := e.resolveTypes(entityType)
	if err != nil {
		return nil, err
	}
	limit = e.clampLimit(limit)

	terms := tokenizer.Tokenize(prefix)
	if len(terms) == 0 {
		return []string{}, nil
	}
	normalized := strings.Join(terms, " ")

	key := e.cacheKey(types, normalized, limit)
	if hit, ok := e.cache.Get(key); ok {
		return append([]string(nil), hit...), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Suggest.Timeout)
	defer cancel()

	found := make(map[string]candidate)
	complete := true
	for _, t := range types {
		ix, ok := e.indexes.Index(t)
		if !ok {
			continue
		}
		if err := e.collect(ctx, ix, terms, found); err != nil {
			complete = false
			e.logger.Debug("suggestion lookup cut short",
				zap.String("entity_type", string(t)), zap.String("prefix", normalized), zap.Error(err))
			break
		}
	}

	out := rank(found, limit)
	if complete {
		e.cache.Add(key, out)
	}
	return append([]string(nil), out...), nil
}

func (e *Engine) resolveTypes(entityType model.EntityType) ([]model.EntityType, error) {
	if entityType == "" {
		return e.cfg.EntityTypeNames(), nil
	}
	if !e.cfg.HasEntityType(entityType) {
		return nil, errors.NewValidationError("entity_type", fmt.Sprintf("unknown entity type '%s'", entityType))
	}
	return []model.EntityType{entityType}, nil
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.Suggest.DefaultLimit
	}
	return min(limit, e.cfg.Suggest.MaxLimit)
}

// cacheKey includes the generation of every consulted index.
func (e *Engine) cacheKey(types []model.EntityType, prefix string, limit int) string {
	var sb strings.Builder
	for _, t := range types {
		sb.WriteString(string(t))
		sb.WriteByte('@')
		if ix, ok := e.indexes.Index(t); ok {
			sb.WriteString(strconv.FormatUint(ix.Generation(), 10))
		}
		sb.WriteByte(',')
	}
	sb.WriteByte(0)
	sb.WriteString(prefix)
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(limit))
	return sb.String()
}

// collect gathers completions from one index. All prefix terms but the last must occur exactly in
// a suggestion field; the last one must prefix one of its tokens.
func (e *Engine) collect(ctx context.Context, ix *index.InvertedIndex, terms []string, found map[string]candidate) error {
	settings := ix.Settings()
	if len(settings.SuggestionFields) == 0 {
		return nil
	}
	leading, last := terms[:len(terms)-1], terms[len(terms)-1]

	return ix.View(func(r *index.Reader) error {
		visited := 0
		type hit struct {
			doc   uint32
			field string
		}
		seen := make(map[hit]struct{})

		consider := func(p index.Posting) error {
			visited++
			if visited%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if !settings.IsSuggestionField(p.FieldName) {
				return nil
			}
			if _, dup := seen[hit{p.DocID, p.FieldName}]; dup {
				return nil
			}
			entry, ok := r.Entry(p.DocID)
			if !ok {
				return nil
			}
			for _, f := range entry.Fields {
				if f.Name != p.FieldName || !fieldCompletes(f, leading, last) {
					continue
				}
				seen[hit{p.DocID, p.FieldName}] = struct{}{}
				add(found, f.Text, entry.Document.PopularityScore)
				break
			}
			return nil
		}

		if len(leading) > 0 {
			// the exact leading term is far more selective than the open prefix
			for _, p := range r.Lookup(leading[0]) {
				if err := consider(p); err != nil {
					return err
				}
			}
			return nil
		}

		for _, term := range r.PrefixTerms(last, e.cfg.Suggest.MaxPrefixTerms) {
			for _, p := range r.Lookup(term) {
				if err := consider(p); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func fieldCompletes(f index.AnalyzedField, leading []string, last string) bool {
	tokens := make(map[string]struct{}, len(f.Tokens))
	lastOK := false
	for _, t := range f.Tokens {
		tokens[t.Text] = struct{}{}
		if strings.HasPrefix(t.Text, last) {
			lastOK = true
		}
	}
	if !lastOK {
		return false
	}
	for _, t := range leading {
		if _, ok := tokens[t]; !ok {
			return false
		}
	}
	return true
}

func add(found map[string]candidate, text string, popularity float64) {
	key := tokenizer.Normalize(text)
	if key == "" {
		return
	}
	if cur, ok := found[key]; ok && (cur.popularity > popularity || (cur.popularity == popularity && cur.text <= text)) {
		return
	}
	found[key] = candidate{key: key, text: text, popularity: popularity}
}

// rank orders completions by popularity, then lexicographically by normalized text.
func rank(found map[string]candidate, limit int) []string {
	list := make([]candidate, 0, len(found))
	for _, c := range found {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].popularity != list[j].popularity {
			return list[i].popularity > list[j].popularity
		}
		return list[i].key < list[j].key
	})
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.text
	}
	return out
}
