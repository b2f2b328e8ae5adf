package iterator

import (
	"context"

	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/visibility"
)

// Source is the shard every leaf of one tree reads from.
type Source struct {
	Reader   storage.Reader
	Shard    string
	Filters  []visibility.Filter
	Snapshot *metadata.Snapshot
	// BatchSize overrides the store's scan batch size when positive.
	BatchSize int
}

func (s Source) scan(ctx context.Context, r storage.Range) (storage.EntryIterator, error) {
	return s.Reader.Scan(ctx, storage.ScanRequest{
		Shard:     s.Shard,
		Range:     r,
		Filters:   s.Filters,
		BatchSize: s.BatchSize,
	})
}
