package storagewrappers

import (
	"context"
	"sync/atomic"

	"github.com/shardquery/shardquery/pkg/storage"
)

var _ storage.Reader = (*InstrumentedReader)(nil)

// InstrumentedReader counts the calls made to the wrapped reader.
// It is thread-safe but should not be shared across multiple queries.
type InstrumentedReader struct {
	storage.Reader
	countScans  atomic.Uint32
	countShards atomic.Uint32
}

// NewInstrumentedReader creates a new instance of InstrumentedReader that
// wraps the specified reader and maintains metrics per query.
func NewInstrumentedReader(wrapped storage.Reader) *InstrumentedReader {
	return &InstrumentedReader{Reader: wrapped}
}

type Metrics struct {
	ScanCount   uint32
	ShardsCount uint32
}

func (m *InstrumentedReader) GetMetrics() Metrics {
	return Metrics{
		ScanCount:   m.countScans.Load(),
		ShardsCount: m.countShards.Load(),
	}
}

// Scan see [storage.Reader].Scan.
func (m *InstrumentedReader) Scan(ctx context.Context, req storage.ScanRequest) (storage.EntryIterator, error) {
	m.countScans.Add(1)

	return m.Reader.Scan(ctx, req)
}

// Shards see [storage.Reader].Shards.
func (m *InstrumentedReader) Shards(ctx context.Context, r storage.ShardRange) ([]string, error) {
	m.countShards.Add(1)

	return m.Reader.Shards(ctx, r)
}
