// Package document holds the assembled view of one record and the assembler
// building it from event entries.
package document

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"

	"github.com/shardquery/shardquery/pkg/keys"
)

// Attribute is one typed value of a document field.
type Attribute struct {
	// Value is the typed value: string, float64 or time.Time.
	Value      any
	Raw        string
	Normalized string
	Type       string
	Visibility string
	// IndexOnly attributes come from the field index rather than the event.
	IndexOnly bool
}

func (a Attribute) same(o Attribute) bool {
	return a.Normalized == o.Normalized && a.Visibility == o.Visibility && a.Raw == o.Raw
}

// Document is the assembled record of one UID.
type Document struct {
	Key    keys.DocKey
	Fields map[string][]Attribute
	// Provenance names the sub-predicates that matched the document when it
	// was produced by an ancestor join.
	Provenance []string
}

func New(key keys.DocKey) *Document {
	return &Document{Key: key, Fields: map[string][]Attribute{}}
}

func (d *Document) UID() string { return d.Key.UID() }

func (d *Document) DataType() string { return d.Key.DataType() }

// Add appends attr to field unless an identical attribute is present.
func (d *Document) Add(field string, attr Attribute) {
	for _, existing := range d.Fields[field] {
		if existing.same(attr) {
			return
		}
	}
	d.Fields[field] = append(d.Fields[field], attr)
}

func (d *Document) Get(field string) []Attribute {
	if d == nil {
		return nil
	}
	return d.Fields[field]
}

// FieldNames returns the document's fields, sorted.
func (d *Document) FieldNames() []string {
	names := slices.Collect(maps.Keys(d.Fields))
	sort.Strings(names)
	return names
}

// Size returns the number of attributes over all fields.
func (d *Document) Size() int {
	n := 0
	for _, attrs := range d.Fields {
		n += len(attrs)
	}
	return n
}

func (d *Document) Empty() bool {
	return d == nil || d.Size() == 0
}

// Merge adds every attribute and provenance entry of o to d. A nil o is a
// no-op.
func (d *Document) Merge(o *Document) {
	if o == nil {
		return
	}
	for field, attrs := range o.Fields {
		for _, a := range attrs {
			d.Add(field, a)
		}
	}
	for _, p := range o.Provenance {
		if !slices.Contains(d.Provenance, p) {
			d.Provenance = append(d.Provenance, p)
		}
	}
	sort.Strings(d.Provenance)
}

// Merge combines documents positioned on the same key. It returns nil when
// none of docs contributes anything.
func Merge(key keys.DocKey, docs ...*Document) *Document {
	var out *Document
	for _, d := range docs {
		if d == nil {
			continue
		}
		if out == nil {
			out = New(key)
		}
		out.Merge(d)
	}
	return out
}

type jsonDocument struct {
	UID        string           `json:"uid"`
	DataType   string           `json:"dataType"`
	Fields     map[string][]any `json:"fields"`
	Provenance []string         `json:"provenance,omitempty"`
}

// MarshalJSON renders the document with the typed values of each field.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := jsonDocument{
		UID:        d.UID(),
		DataType:   d.DataType(),
		Fields:     make(map[string][]any, len(d.Fields)),
		Provenance: d.Provenance,
	}
	for field, attrs := range d.Fields {
		values := make([]any, len(attrs))
		for i, a := range attrs {
			values[i] = a.Value
		}
		out.Fields[field] = values
	}
	return json.Marshal(out)
}
