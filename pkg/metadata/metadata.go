// Package metadata describes which fields are indexed, and how, for the
// record types a query touches. A Snapshot is immutable and safe to share
// across concurrent shard scans.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/shardquery/shardquery/pkg/types"
)

var ErrUnknownDataType = errors.New("unknown data type")

// Field describes one field of a record type.
type Field struct {
	Name string `json:"name"`
	// Type is the name of the value normalizer (see package types).
	Type string `json:"type,omitempty"`
	// Indexed fields have field index entries and event entries.
	Indexed bool `json:"indexed,omitempty"`
	// IndexOnly fields have field index entries but no event entries; their
	// values only reach documents through the index.
	IndexOnly bool `json:"indexOnly,omitempty"`
	// ReverseIndexed fields support leading-wildcard regex lookups.
	ReverseIndexed bool `json:"reverseIndexed,omitempty"`
	// Cardinality is the estimated number of index entries for the field, if known.
	Cardinality *int64 `json:"cardinality,omitempty"`
}

// Provider loads metadata for a set of record types. An empty set means all
// known record types.
type Provider interface {
	Load(ctx context.Context, dataTypes []string) (*Snapshot, error)
}

// Snapshot is a merged, read-only view of field metadata.
type Snapshot struct {
	dataTypes []string
	fields    map[string]Field
}

// NewSnapshot returns a snapshot over the given fields. Later definitions of
// the same field are merged into earlier ones.
func NewSnapshot(dataTypes []string, fields ...Field) *Snapshot {
	s := &Snapshot{
		dataTypes: slices.Clone(dataTypes),
		fields:    make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		s.fields[f.Name] = merge(s.fields[f.Name], f)
	}
	return s
}

func merge(existing, f Field) Field {
	if existing.Name == "" {
		return f
	}
	existing.Indexed = existing.Indexed || f.Indexed
	existing.IndexOnly = existing.IndexOnly && f.IndexOnly
	existing.ReverseIndexed = existing.ReverseIndexed && f.ReverseIndexed
	if existing.Type == "" {
		existing.Type = f.Type
	}
	if existing.Cardinality != nil && f.Cardinality != nil {
		sum := *existing.Cardinality + *f.Cardinality
		existing.Cardinality = &sum
	} else {
		existing.Cardinality = nil
	}
	return existing
}

// DataTypes returns the record types covered by the snapshot.
func (s *Snapshot) DataTypes() []string {
	return slices.Clone(s.dataTypes)
}

// Field returns the metadata of name.
func (s *Snapshot) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// IsIndexed reports whether name has field index entries.
func (s *Snapshot) IsIndexed(name string) bool {
	f, ok := s.fields[name]
	return ok && (f.Indexed || f.IndexOnly)
}

// IsIndexOnly reports whether name only exists in the field index.
func (s *Snapshot) IsIndexOnly(name string) bool {
	f, ok := s.fields[name]
	return ok && f.IndexOnly
}

// IsReverseIndexed reports whether name supports leading-wildcard lookups.
func (s *Snapshot) IsReverseIndexed(name string) bool {
	f, ok := s.fields[name]
	return ok && f.ReverseIndexed
}

// Cardinality returns the estimated number of index entries for name.
func (s *Snapshot) Cardinality(name string) (int64, bool) {
	f, ok := s.fields[name]
	if !ok || f.Cardinality == nil {
		return 0, false
	}
	return *f.Cardinality, true
}

// Normalizer returns the value normalizer for name. Unknown fields and
// unknown type names use the string normalizer.
func (s *Snapshot) Normalizer(name string) types.Normalizer {
	f := s.fields[name]
	n, err := types.Lookup(f.Type)
	if err != nil {
		return types.MustLookup(types.String)
	}
	return n
}

// Fields returns all fields sorted by name.
func (s *Snapshot) Fields() []Field {
	fields := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// StaticProvider serves metadata from an in-memory dictionary.
type StaticProvider struct {
	dictionary map[string][]Field
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns a Provider over a dictionary keyed by record type.
func NewStaticProvider(dictionary map[string][]Field) *StaticProvider {
	d := make(map[string][]Field, len(dictionary))
	for dataType, fields := range dictionary {
		d[dataType] = slices.Clone(fields)
	}
	return &StaticProvider{dictionary: d}
}

// Load see [Provider].Load.
func (p *StaticProvider) Load(_ context.Context, dataTypes []string) (*Snapshot, error) {
	if len(dataTypes) == 0 {
		for dataType := range p.dictionary {
			dataTypes = append(dataTypes, dataType)
		}
	}
	dataTypes = slices.Clone(dataTypes)
	sort.Strings(dataTypes)

	var fields []Field
	for _, dataType := range dataTypes {
		defs, ok := p.dictionary[dataType]
		if !ok {
			return nil, fmt.Errorf("%w: '%s'", ErrUnknownDataType, dataType)
		}
		fields = append(fields, defs...)
	}

	return NewSnapshot(dataTypes, fields...), nil
}

// Dictionary returns a copy of the fields of every record type.
func (p *StaticProvider) Dictionary() map[string][]Field {
	d := make(map[string][]Field, len(p.dictionary))
	for dataType, fields := range p.dictionary {
		d[dataType] = slices.Clone(fields)
	}
	return d
}
