// Package filters turns explicit request filters and filter-like phrases in the query text into
// structured constraints, and evaluates those constraints against documents.
package filters

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gcbaptista/entity-search/config"
	"github.com/gcbaptista/entity-search/internal/errors"
	"github.com/gcbaptista/entity-search/model"
)

var (
	// comparisonPattern matches clauses like pe_ratio<15, region:emea, sector="consumer staples".
	comparisonPattern = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*)\s*(>=|<=|!=|>|<|=|:)\s*("[^"]*"|[^\s,;]+)`)

	// phrasePattern matches clauses like "dividend yield above 3" or "pe below 15".
	phrasePattern = regexp.MustCompile(`(?i)\b(?:([a-z][a-z0-9_]*)\s+)?([a-z][a-z0-9_]*)\s+(above|over|greater than|more than|below|under|less than)\s+(-?\d+(?:\.\d+)?)%?`)

	spaceRun = regexp.MustCompile(`\s+`)
)

// Extraction is the result of filter extraction.
type Extraction struct {
	Filters      map[string]model.Constraint
	ResidualText string // raw text with inferred filter clauses removed
}

// Extractor infers filters from text for keys declared filterable by at least one entity type.
type Extractor struct {
	filterable map[string]struct{}
}

// NewExtractor collects the filterable keys of every configured entity type.
func NewExtractor(cfg *config.Config) *Extractor {
	e := &Extractor{filterable: make(map[string]struct{})}
	for _, et := range cfg.EntityTypes {
		for _, key := range et.FilterableFields {
			e.filterable[strings.ToLower(key)] = struct{}{}
		}
	}
	return e
}

// IsFilterable reports whether any entity type declares key filterable.
func (e *Extractor) IsFilterable(key string) bool {
	_, ok := e.filterable[strings.ToLower(key)]
	return ok
}

// Extract infers constraints from raw text, parses the explicit filters and merges them. Explicit
// filters win over inferred ones on the same key; unknown explicit keys are passed through.
func (e *Extractor) Extract(raw string, explicit map[string]any) (Extraction, error) {
	parsed, err := ParseExplicit(explicit)
	if err != nil {
		return Extraction{}, err
	}

	inferred, residual := e.infer(raw)

	out := make(map[string]model.Constraint, len(parsed)+len(inferred))
	for key, c := range inferred {
		out[key] = c
	}
	for key, c := range parsed {
		out[key] = c
	}
	return Extraction{Filters: out, ResidualText: residual}, nil
}

type cut struct{ start, end int }

// infer scans raw for filter clauses. Matched clauses are removed from the returned text.
func (e *Extractor) infer(raw string) (map[string]model.Constraint, string) {
	found := make(map[string][]bound)
	var cuts []cut

	for _, m := range comparisonPattern.FindAllStringSubmatchIndex(raw, -1) {
		key := strings.ToLower(raw[m[2]:m[3]])
		if !e.IsFilterable(key) {
			continue
		}
		op := comparisonOps[raw[m[4]:m[5]]]
		value := scalar(strings.Trim(raw[m[6]:m[7]], `"`))
		if _, numeric := value.(float64); !numeric && isBound(op) {
			continue
		}
		found[key] = append(found[key], bound{op: op, value: value})
		cuts = append(cuts, cut{m[0], m[1]})
	}

	for _, m := range phrasePattern.FindAllStringSubmatchIndex(raw, -1) {
		if overlaps(cuts, m[0], m[1]) {
			continue
		}
		start := -1
		var key string
		if m[2] >= 0 {
			joined := strings.ToLower(raw[m[2]:m[3]] + "_" + raw[m[4]:m[5]])
			if e.IsFilterable(joined) {
				key, start = joined, m[2]
			}
		}
		if start < 0 {
			single := strings.ToLower(raw[m[4]:m[5]])
			if !e.IsFilterable(single) {
				continue
			}
			key, start = single, m[4]
		}

		n, _ := strconv.ParseFloat(raw[m[8]:m[9]], 64)
		op := model.OpGt
		switch strings.ToLower(raw[m[6]:m[7]]) {
		case "below", "under", "less than":
			op = model.OpLt
		}
		found[key] = append(found[key], bound{op: op, value: n})
		cuts = append(cuts, cut{start, m[1]})
	}

	constraints := make(map[string]model.Constraint, len(found))
	for key, bounds := range found {
		c, err := combine(key, bounds)
		if err != nil {
			// contradictory inferred clauses: keep the last one
			c, _ = combine(key, bounds[len(bounds)-1:])
		}
		c.Inferred = true
		constraints[key] = c
	}

	return constraints, residualText(raw, cuts)
}

var comparisonOps = map[string]model.Operator{
	">=": model.OpGte, "<=": model.OpLte, "!=": model.OpNe,
	">": model.OpGt, "<": model.OpLt, "=": model.OpEq, ":": model.OpEq,
}

func isBound(op model.Operator) bool {
	switch op {
	case model.OpGt, model.OpGte, model.OpLt, model.OpLte:
		return true
	}
	return false
}

func overlaps(cuts []cut, start, end int) bool {
	for _, c := range cuts {
		if start < c.end && c.start < end {
			return true
		}
	}
	return false
}

func residualText(raw string, cuts []cut) string {
	if len(cuts) == 0 {
		return strings.TrimSpace(raw)
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })

	var sb strings.Builder
	pos := 0
	for _, c := range cuts {
		if c.start > pos {
			sb.WriteString(raw[pos:c.start])
		}
		sb.WriteByte(' ')
		if c.end > pos {
			pos = c.end
		}
	}
	sb.WriteString(raw[pos:])
	return strings.TrimSpace(spaceRun.ReplaceAllString(sb.String(), " "))
}

// scalar converts a textual value to a number when it parses as one.
func scalar(s string) any {
	if f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil {
		return f
	}
	return s
}

// bound is one operator/value pair for a key, before merging.
type bound struct {
	op    model.Operator
	value any
}

// knownSuffixes are checked longest first.
var knownSuffixes = []struct {
	suffix string
	op     model.Operator
}{
	{"_contains", model.OpContains},
	{"_exact", model.OpEq},
	{"_gte", model.OpGte},
	{"_lte", model.OpLte},
	{"_gt", model.OpGt},
	{"_lt", model.OpLt},
	{"_ne", model.OpNe},
	{"_in", model.OpIn},
}

// parseFilterKey splits a suffixed filter key into field name and operator.
func parseFilterKey(key string) (string, model.Operator, bool) {
	for _, s := range knownSuffixes {
		if strings.HasSuffix(key, s.suffix) && len(key) > len(s.suffix) {
			return strings.TrimSuffix(key, s.suffix), s.op, true
		}
	}
	return key, "", false
}

// ParseExplicit converts request filters into constraints. Accepted shapes per key: a scalar
// (equality), a list (membership), an operator object ({"gte": 10, "lt": 20}) or a suffixed key
// (pe_ratio_gte). Suffixed keys for the same field are merged.
func ParseExplicit(explicit map[string]any) (map[string]model.Constraint, error) {
	if len(explicit) == 0 {
		return map[string]model.Constraint{}, nil
	}

	keys := make([]string, 0, len(explicit))
	for k := range explicit {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	grouped := make(map[string][]bound)
	var order []string
	for _, rawKey := range keys {
		key := strings.TrimSpace(rawKey)
		if key == "" {
			return nil, errors.NewValidationError("filters", "filter key cannot be empty")
		}
		value := explicit[rawKey]

		field, op, suffixed := parseFilterKey(key)
		var bounds []bound
		var err error
		if suffixed {
			bounds, err = suffixBound(key, op, value)
		} else {
			bounds, err = valueBounds(key, value)
		}
		if err != nil {
			return nil, err
		}
		if _, seen := grouped[field]; !seen {
			order = append(order, field)
		}
		grouped[field] = append(grouped[field], bounds...)
	}

	out := make(map[string]model.Constraint, len(grouped))
	for _, field := range order {
		c, err := combine(field, grouped[field])
		if err != nil {
			return nil, err
		}
		out[field] = c
	}
	return out, nil
}

func suffixBound(key string, op model.Operator, value any) ([]bound, error) {
	if op == model.OpIn {
		values, ok := asList(value)
		if !ok {
			return nil, errors.NewValidationError("filters."+key, "expected a list of values")
		}
		return []bound{{op: model.OpIn, value: values}}, nil
	}
	if value == nil {
		return nil, errors.NewValidationError("filters."+key, "value cannot be null")
	}
	return []bound{{op: op, value: value}}, nil
}

func valueBounds(key string, value any) ([]bound, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.NewValidationError("filters."+key, "value cannot be null")
	case map[string]any:
		if len(v) == 0 {
			return nil, errors.NewValidationError("filters."+key, "operator object cannot be empty")
		}
		ops := make([]string, 0, len(v))
		for op := range v {
			ops = append(ops, op)
		}
		sort.Strings(ops)

		bounds := make([]bound, 0, len(v))
		for _, name := range ops {
			op := model.Operator(strings.ToLower(name))
			switch op {
			case model.OpEq, model.OpNe, model.OpGt, model.OpGte, model.OpLt, model.OpLte, model.OpContains:
				if v[name] == nil {
					return nil, errors.NewValidationError("filters."+key, "operator '"+name+"' has a null value")
				}
				bounds = append(bounds, bound{op: op, value: v[name]})
			case model.OpIn:
				values, ok := asList(v[name])
				if !ok {
					return nil, errors.NewValidationError("filters."+key, "operator 'in' expects a list")
				}
				bounds = append(bounds, bound{op: op, value: values})
			default:
				return nil, errors.NewValidationError("filters."+key, "unsupported operator '"+name+"'")
			}
		}
		return bounds, nil
	default:
		if values, ok := asList(value); ok {
			return []bound{{op: model.OpIn, value: values}}, nil
		}
		return []bound{{op: model.OpEq, value: value}}, nil
	}
}

func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// combine merges the bounds of one field into a single constraint. Lower and upper bounds form a
// range; anything else must stand alone.
func combine(field string, bounds []bound) (model.Constraint, error) {
	if len(bounds) == 1 {
		return single(field, bounds[0])
	}

	var c model.Constraint
	c.Op = model.OpRange
	for _, b := range bounds {
		n, ok := convertToFloat64(b.value)
		if !ok {
			return c, errors.NewValidationError("filters."+field, fmt.Sprintf("operator '%s' requires a numeric value", b.op))
		}
		switch b.op {
		case model.OpGt, model.OpGte:
			if c.Min != nil {
				return c, errors.NewValidationError("filters."+field, "more than one lower bound")
			}
			c.Min, c.MinInclusive = &n, b.op == model.OpGte
		case model.OpLt, model.OpLte:
			if c.Max != nil {
				return c, errors.NewValidationError("filters."+field, "more than one upper bound")
			}
			c.Max, c.MaxInclusive = &n, b.op == model.OpLte
		default:
			return c, errors.NewValidationError("filters."+field, fmt.Sprintf("operator '%s' cannot be combined with other operators", b.op))
		}
	}
	return c, nil
}

func single(field string, b bound) (model.Constraint, error) {
	switch b.op {
	case model.OpGt, model.OpGte, model.OpLt, model.OpLte:
		n, ok := convertToFloat64(b.value)
		if !ok {
			return model.Constraint{}, errors.NewValidationError("filters."+field, fmt.Sprintf("operator '%s' requires a numeric value", b.op))
		}
		return model.Constraint{Op: b.op, Value: n}, nil
	case model.OpIn:
		values, _ := b.value.([]any)
		if len(values) == 0 {
			return model.Constraint{}, errors.NewValidationError("filters."+field, "list of values cannot be empty")
		}
		return model.Constraint{Op: model.OpIn, Values: values}, nil
	case model.OpContains:
		if _, ok := b.value.(string); !ok {
			return model.Constraint{}, errors.NewValidationError("filters."+field, "operator 'contains' requires a string")
		}
		return model.Constraint{Op: b.op, Value: b.value}, nil
	default:
		return model.Constraint{Op: b.op, Value: b.value}, nil
	}
}
