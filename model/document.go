package model

import (
	"time"
)

// EntityType identifies a family of indexed entities (company, sector, metric, ...).
// The set of known types comes from configuration.
type EntityType string

const (
	EntityTypeCompany   EntityType = "company"
	EntityTypeSector    EntityType = "sector"
	EntityTypeMetric    EntityType = "metric"
	EntityTypeArticle   EntityType = "article"
	EntityTypePortfolio EntityType = "portfolio"
)

// Field is a single searchable text field of a document.
// Weight is advisory: configured field weights for the entity type take precedence.
type Field struct {
	Name   string  `json:"name" yaml:"name"`
	Text   string  `json:"text" yaml:"text"`
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Document is the unit of ingestion. Fields are kept in the order supplied by the
// ingestion feed; Attributes carry structured values used by filters (e.g. "pe_ratio", "region").
type Document struct {
	EntityID        string         `json:"entity_id" yaml:"entity_id"`
	EntityType      EntityType     `json:"entity_type" yaml:"entity_type"`
	Fields          []Field        `json:"fields" yaml:"fields"`
	Attributes      map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	LastUpdated     time.Time      `json:"last_updated" yaml:"last_updated"`
	PopularityScore float64        `json:"popularity_score" yaml:"popularity_score"`
}

// Field returns the first field with the given name.
func (d Document) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Title returns the text of the first non-empty field, which is what result lists display.
func (d Document) Title() string {
	for _, f := range d.Fields {
		if f.Text != "" {
			return f.Text
		}
	}
	return d.EntityID
}

// Value returns the filterable value for key: an attribute if present, otherwise the text
// of a field with that name.
func (d Document) Value(key string) (any, bool) {
	if v, ok := d.Attributes[key]; ok {
		return v, true
	}
	if f, ok := d.Field(key); ok {
		return f.Text, true
	}
	return nil, false
}

// Clone returns a deep copy so stored documents are never shared with callers.
func (d Document) Clone() Document {
	out := d
	out.Fields = append([]Field(nil), d.Fields...)
	if d.Attributes != nil {
		out.Attributes = make(map[string]any, len(d.Attributes))
		for k, v := range d.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
