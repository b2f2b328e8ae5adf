// Package ingest turns records into the field index and event entries of
// a store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"sigs.k8s.io/yaml"

	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/uid"
)

// Value is one raw field value with its visibility expression.
type Value struct {
	Raw        string `json:"value"`
	Visibility string `json:"visibility,omitempty"`
}

// Record is one ingested record.
type Record struct {
	DataType string             `json:"dataType"`
	UID      string             `json:"uid"`
	Fields   map[string][]Value `json:"fields"`
}

// NewRecord builds a record from public values.
func NewRecord(dataType, id string, fields map[string][]string) Record {
	r := Record{DataType: dataType, UID: id, Fields: map[string][]Value{}}
	for field, values := range fields {
		for _, v := range values {
			r.Fields[field] = append(r.Fields[field], Value{Raw: v})
		}
	}
	return r
}

// With returns a copy of r with value added to field.
func (r Record) With(field, raw, visibility string) Record {
	fields := make(map[string][]Value, len(r.Fields)+1)
	for f, vs := range r.Fields {
		fields[f] = append([]Value(nil), vs...)
	}
	fields[field] = append(fields[field], Value{Raw: raw, Visibility: visibility})
	r.Fields = fields
	return r
}

// Entries returns the event entries of every field not marked index-only
// and the field index entries of every indexed field.
func Entries(snapshot *metadata.Snapshot, r Record) ([]storage.Entry, error) {
	if err := keys.Validate(r.DataType, r.UID); err != nil {
		return nil, err
	}
	if r.DataType == "" || r.UID == "" {
		return nil, fmt.Errorf("record requires a data type and a uid")
	}

	var entries []storage.Entry
	for field, values := range r.Fields {
		normalizer := snapshot.Normalizer(field)
		for _, v := range values {
			if err := keys.Validate(field, v.Raw); err != nil {
				return nil, err
			}
			if !snapshot.IsIndexOnly(field) {
				entries = append(entries, storage.Entry{
					Key:        keys.Event(r.DataType, r.UID, field, v.Raw),
					Visibility: v.Visibility,
				})
			}
			if snapshot.IsIndexed(field) {
				normalized, err := normalizer.Normalize(v.Raw)
				if err != nil {
					return nil, fmt.Errorf("index %s of %s: %w", field, r.UID, err)
				}
				entries = append(entries, storage.Entry{
					Key:        keys.FieldIndex(field, normalized, r.DataType, r.UID),
					Visibility: v.Visibility,
				})
			}
		}
	}
	return entries, nil
}

// Load writes records into shard.
func Load(ctx context.Context, w storage.Writer, snapshot *metadata.Snapshot, shard string, records ...Record) error {
	var entries []storage.Entry
	for _, r := range records {
		es, err := Entries(snapshot, r)
		if err != nil {
			return err
		}
		entries = append(entries, es...)
	}
	return w.Write(ctx, shard, entries)
}

// ShardFor assigns a uid to one of n shards named prefix_i. Descendants of
// a uid land on the shard of their root.
func ShardFor(prefix, id string, n int) string {
	if n <= 1 {
		return prefix + "_0"
	}
	return prefix + "_" + strconv.FormatUint(xxhash.Sum64String(uid.Root(id))%uint64(n), 10)
}

// LoadSharded distributes records over n shards with ShardFor.
func LoadSharded(ctx context.Context, w storage.Writer, snapshot *metadata.Snapshot, prefix string, n int, records ...Record) error {
	byShard := map[string][]Record{}
	for _, r := range records {
		shard := ShardFor(prefix, r.UID, n)
		byShard[shard] = append(byShard[shard], r)
	}
	for shard, rs := range byShard {
		if err := Load(ctx, w, snapshot, shard, rs...); err != nil {
			return fmt.Errorf("load shard %s: %w", shard, err)
		}
	}
	return nil
}

// DecodeRecords parses a JSON or YAML list of records.
func DecodeRecords(data []byte) ([]Record, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(js, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
