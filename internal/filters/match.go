package filters

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gcbaptista/entity-search/internal/tokenizer"
	"github.com/gcbaptista/entity-search/model"
)

// DocumentValue returns the value a filter key refers to: the built-in popularity_score and
// last_updated, then attributes, then field text.
func DocumentValue(doc model.Document, key string) (any, bool) {
	switch key {
	case "popularity_score":
		return doc.PopularityScore, true
	case "last_updated":
		if doc.LastUpdated.IsZero() {
			return nil, false
		}
		return doc.LastUpdated, true
	}
	return doc.Value(key)
}

// Matches checks doc against every constraint. A document lacking a key fails when declared reports
// the key as filterable (for any entity type); keys nobody declares do not apply to it.
func Matches(filters map[string]model.Constraint, doc model.Document, declared func(key string) bool) bool {
	for key, c := range filters {
		v, ok := DocumentValue(doc, key)
		if !ok {
			if declared != nil && declared(key) {
				return false
			}
			continue
		}
		if !MatchValue(c, v) {
			return false
		}
	}
	return true
}

// MatchValue applies one constraint to a document value. List values match when any element does
// (ne requires that no element is equal).
func MatchValue(c model.Constraint, docVal any) bool {
	if items, ok := asList(docVal); ok {
		if c.Op == model.OpNe {
			for _, item := range items {
				if compareValues(item, c.Value) {
					return false
				}
			}
			return true
		}
		for _, item := range items {
			if MatchValue(c, item) {
				return true
			}
		}
		return false
	}

	switch c.Op {
	case model.OpEq:
		return compareValues(docVal, c.Value)
	case model.OpNe:
		return !compareValues(docVal, c.Value)
	case model.OpIn:
		for _, v := range c.Values {
			if compareValues(docVal, v) {
				return true
			}
		}
		return false
	case model.OpGt, model.OpGte, model.OpLt, model.OpLte:
		return compareValuesWithOperator(docVal, c.Value, c.Op)
	case model.OpRange:
		if c.Min != nil {
			op := model.OpGt
			if c.MinInclusive {
				op = model.OpGte
			}
			if !compareValuesWithOperator(docVal, *c.Min, op) {
				return false
			}
		}
		if c.Max != nil {
			op := model.OpLt
			if c.MaxInclusive {
				op = model.OpLte
			}
			if !compareValuesWithOperator(docVal, *c.Max, op) {
				return false
			}
		}
		return true
	case model.OpContains:
		docStr, ok := docVal.(string)
		filterStr, fok := c.Value.(string)
		if !ok || !fok {
			return false
		}
		return strings.Contains(tokenizer.Normalize(docStr), tokenizer.Normalize(filterStr))
	}
	return false
}

// compareValues compares two values for equality. Strings compare in normalized form.
func compareValues(docVal, filterVal any) bool {
	if docStr, isDocStr := docVal.(string); isDocStr {
		if filterStr, isFilterStr := filterVal.(string); isFilterStr {
			return tokenizer.Normalize(docStr) == tokenizer.Normalize(filterStr)
		}
	}

	if docBool, ok := docVal.(bool); ok {
		filterBool, fok := filterVal.(bool)
		return fok && docBool == filterBool
	}

	// Numeric comparison
	if docFloat, docOk := convertToFloat64(docVal); docOk {
		if filterFloat, filterOk := convertToFloat64(filterVal); filterOk {
			return docFloat == filterFloat
		}
	}

	// Time comparison
	if docTime, docOk := convertToTime(docVal); docOk {
		if filterTime, filterOk := convertToTime(filterVal); filterOk {
			return docTime.Equal(filterTime)
		}
	}

	return false
}

// compareValuesWithOperator compares two values with an ordering operator.
func compareValuesWithOperator(docVal, filterVal any, op model.Operator) bool {
	// Time values compare as instants; the bound may be a date string or a unix timestamp.
	if docTime, isTime := docVal.(time.Time); isTime {
		filterTime, ok := convertToTime(filterVal)
		if !ok {
			return false
		}
		switch op {
		case model.OpGt:
			return docTime.After(filterTime)
		case model.OpGte:
			return !docTime.Before(filterTime)
		case model.OpLt:
			return docTime.Before(filterTime)
		case model.OpLte:
			return !docTime.After(filterTime)
		}
		return false
	}

	docFloat, docOk := convertToFloat64(docVal)
	filterFloat, filterOk := convertToFloat64(filterVal)
	if !docOk || !filterOk {
		return false
	}
	switch op {
	case model.OpGt:
		return docFloat > filterFloat
	case model.OpGte:
		return docFloat >= filterFloat
	case model.OpLt:
		return docFloat < filterFloat
	case model.OpLte:
		return docFloat <= filterFloat
	}
	return false
}

// convertToFloat64 converts various numeric types to float64
func convertToFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// convertToTime converts various time representations to time.Time
func convertToTime(val any) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v, true
	case string:
		formats := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, v); err == nil {
				return t, true
			}
		}
	case int64:
		return time.Unix(v, 0), true
	case float64:
		return time.Unix(int64(v), 0), true
	}
	return time.Time{}, false
}
