//go:generate mockgen -source storage.go -destination ../../internal/mocks/mock_storage.go -package mocks

// Package storage defines the sorted key-value store the engine scans and
// the iterators it returns.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/visibility"
)

// DefaultScanBatchSize is the number of entries a store fetches per round
// trip when the caller does not say otherwise.
const DefaultScanBatchSize = 500

// Entry is one key-value pair of a shard with its visibility expression.
type Entry struct {
	Key        []byte
	Value      []byte
	Visibility string
}

// Range is a key range. Start is inclusive, End is exclusive. A nil End
// means no upper bound.
type Range struct {
	Start []byte
	End   []byte
}

// PrefixRange returns the range of every key starting with prefix.
func PrefixRange(prefix []byte) Range {
	return Range{Start: bytes.Clone(prefix), End: keys.PrefixEnd(prefix)}
}

// Contains reports whether key lies within r.
func (r Range) Contains(key []byte) bool {
	if bytes.Compare(key, r.Start) < 0 {
		return false
	}
	return r.End == nil || bytes.Compare(key, r.End) < 0
}

// Empty reports whether r cannot contain any key.
func (r Range) Empty() bool {
	return r.End != nil && bytes.Compare(r.Start, r.End) >= 0
}

// Intersect returns the overlap of r and o.
func (r Range) Intersect(o Range) Range {
	out := r
	if bytes.Compare(o.Start, out.Start) > 0 {
		out.Start = o.Start
	}
	if out.End == nil || (o.End != nil && bytes.Compare(o.End, out.End) < 0) {
		out.End = o.End
	}
	return out
}

// From returns r with its start moved forward to start. It never moves the
// start backwards.
func (r Range) From(start []byte) Range {
	return r.Intersect(Range{Start: start})
}

func (r Range) String() string {
	return fmt.Sprintf("[%q, %q)", r.Start, r.End)
}

// ShardRange selects shards by name. Both bounds are inclusive; an empty
// bound is open.
type ShardRange struct {
	Start string
	End   string
}

// Contains reports whether shard lies within r.
func (r ShardRange) Contains(shard string) bool {
	if r.Start != "" && shard < r.Start {
		return false
	}
	return r.End == "" || shard <= r.End
}

// ScanRequest describes one range scan of one shard. Only entries accepted
// by every filter are returned.
type ScanRequest struct {
	Shard     string
	Range     Range
	Filters   []visibility.Filter
	BatchSize int
}

// EntryIterator iterates entries in key order.
type EntryIterator = Iterator[Entry]

// Reader is the read side of a store.
type Reader interface {
	// Scan returns the visible entries of one shard within a range, in key
	// order. The caller must Stop the iterator.
	Scan(ctx context.Context, req ScanRequest) (EntryIterator, error)

	// Shards returns the names of the shards within r, sorted.
	Shards(ctx context.Context, r ShardRange) ([]string, error)
}

// Writer is the write side of a store.
type Writer interface {
	// Write upserts entries into a shard.
	Write(ctx context.Context, shard string, entries []Entry) error
}

// Store is a complete backend.
type Store interface {
	Reader
	Writer

	// IsReady reports whether the store is ready to serve scans.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close closes the store and cleans up any residual resources.
	Close()
}

// ReadinessStatus represents the readiness status of the store.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current store status.
	Message string

	IsReady bool
}
