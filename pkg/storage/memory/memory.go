// Package memory is an ephemeral in-memory store. Each shard is a red-black
// tree keyed by entry key.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shardquery/shardquery/pkg/storage"
)

var tracer = otel.Tracer("shardquery/pkg/storage/memory")

// StorageOption defines a function type used for configuring a [MemoryBackend] instance.
type StorageOption func(*MemoryBackend)

// WithScanBatchSize sets how many entries a scan copies per lock acquisition.
func WithScanBatchSize(n int) StorageOption {
	return func(m *MemoryBackend) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// MemoryBackend provides an ephemeral memory-backed implementation of [storage.Store].
// These instances may be safely shared by multiple go-routines.
type MemoryBackend struct {
	batchSize int

	// map: shard => key => entry
	shards map[string]*redblacktree.Tree // GUARDED_BY(mu)
	mu     sync.RWMutex
}

var _ storage.Store = (*MemoryBackend)(nil)

func New(opts ...StorageOption) *MemoryBackend {
	m := &MemoryBackend{
		batchSize: storage.DefaultScanBatchSize,
		shards:    map[string]*redblacktree.Tree{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close does not do anything for MemoryBackend.
func (m *MemoryBackend) Close() {}

func (m *MemoryBackend) IsReady(context.Context) (storage.ReadinessStatus, error) {
	return storage.ReadinessStatus{IsReady: true}, nil
}

// Write see [storage.Writer].Write.
func (m *MemoryBackend) Write(ctx context.Context, shard string, entries []storage.Entry) error {
	_, span := tracer.Start(ctx, "memory.Write", trace.WithAttributes(
		attribute.String("shard", shard),
		attribute.Int("entries", len(entries)),
	))
	defer span.End()

	if shard == "" {
		return fmt.Errorf("write requires a shard")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tree, ok := m.shards[shard]
	if !ok {
		tree = redblacktree.NewWithStringComparator()
		m.shards[shard] = tree
	}
	for _, e := range entries {
		tree.Put(string(e.Key), storage.Entry{
			Key:        bytes.Clone(e.Key),
			Value:      bytes.Clone(e.Value),
			Visibility: e.Visibility,
		})
	}
	return nil
}

// Shards see [storage.Reader].Shards.
func (m *MemoryBackend) Shards(ctx context.Context, r storage.ShardRange) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var shards []string
	for name := range m.shards {
		if r.Contains(name) {
			shards = append(shards, name)
		}
	}
	slices.Sort(shards)
	return shards, nil
}

// Scan see [storage.Reader].Scan.
func (m *MemoryBackend) Scan(ctx context.Context, req storage.ScanRequest) (storage.EntryIterator, error) {
	_, span := tracer.Start(ctx, "memory.Scan", trace.WithAttributes(attribute.String("shard", req.Shard)))
	defer span.End()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if req.Range.Empty() {
		return storage.NewEmptyIterator[storage.Entry](), nil
	}

	batchSize := m.batchSize
	if req.BatchSize > 0 {
		batchSize = req.BatchSize
	}
	iter := &entryIterator{
		backend:   m,
		shard:     req.Shard,
		end:       req.Range.End,
		next:      req.Range.Start,
		batchSize: batchSize,
	}
	return storage.NewVisibilityFilteredIterator(iter, req.Filters), nil
}

// entryIterator copies entries out of the tree in batches so the lock is
// never held across calls.
type entryIterator struct {
	backend   *MemoryBackend
	shard     string
	end       []byte
	batchSize int

	buffer    []storage.Entry // GUARDED_BY(mu)
	next      []byte          // GUARDED_BY(mu)
	exhausted bool            // GUARDED_BY(mu)
	stopped   bool            // GUARDED_BY(mu)
	mu        sync.Mutex
}

func (it *entryIterator) fill() {
	it.backend.mu.RLock()
	defer it.backend.mu.RUnlock()

	tree, ok := it.backend.shards[it.shard]
	if !ok {
		it.exhausted = true
		return
	}
	node, ok := tree.Ceiling(string(it.next))
	if !ok {
		it.exhausted = true
		return
	}

	cursor := tree.IteratorAt(node)
	for {
		if len(it.buffer) == it.batchSize {
			last := it.buffer[len(it.buffer)-1].Key
			it.next = append(bytes.Clone(last), 0)
			return
		}
		key := cursor.Key().(string)
		if it.end != nil && key >= string(it.end) {
			it.exhausted = true
			return
		}
		it.buffer = append(it.buffer, cursor.Value().(storage.Entry))
		if !cursor.Next() {
			it.exhausted = true
			return
		}
	}
}

func (it *entryIterator) peek(ctx context.Context) (storage.Entry, error) {
	if ctx.Err() != nil {
		return storage.Entry{}, ctx.Err()
	}
	if it.stopped {
		return storage.Entry{}, storage.ErrIteratorDone
	}
	if len(it.buffer) == 0 && !it.exhausted {
		it.fill()
	}
	if len(it.buffer) == 0 {
		return storage.Entry{}, storage.ErrIteratorDone
	}
	return it.buffer[0], nil
}

// Next see [storage.Iterator].Next.
func (it *entryIterator) Next(ctx context.Context) (storage.Entry, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	e, err := it.peek(ctx)
	if err != nil {
		return e, err
	}
	it.buffer = it.buffer[1:]
	return e, nil
}

// Head see [storage.Iterator].Head.
func (it *entryIterator) Head(ctx context.Context) (storage.Entry, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.peek(ctx)
}

// Stop see [storage.Iterator].Stop.
func (it *entryIterator) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.stopped = true
	it.buffer = nil
}
