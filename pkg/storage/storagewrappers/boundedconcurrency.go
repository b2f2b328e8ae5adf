package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shardquery/shardquery/pkg/storage"
)

var _ storage.Reader = (*BoundedConcurrencyReader)(nil)

var timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "shardquery",
	Name:      "time_waiting_for_scans",
	Help:      "Time (in ms) spent waiting for a free slot before Scan and Shards calls to the datastore",
	Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000}, // milliseconds
})

// BoundedConcurrencyReader makes sure that there are, at most, N
// concurrent calls to Scan and Shards. One query fanning out over many
// shards can then not hoard all the database connections available.
type BoundedConcurrencyReader struct {
	storage.Reader
	limiter chan struct{}
}

// NewBoundedConcurrencyReader returns a wrapper over a reader allowing n
// concurrent calls.
func NewBoundedConcurrencyReader(wrapped storage.Reader, n uint32) *BoundedConcurrencyReader {
	return &BoundedConcurrencyReader{
		Reader:  wrapped,
		limiter: make(chan struct{}, n),
	}
}

func (b *BoundedConcurrencyReader) acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("time_waiting", timeWaiting))
	return nil
}

func (b *BoundedConcurrencyReader) release() {
	<-b.limiter
}

// Scan see [storage.Reader].Scan. The slot is held until the returned
// iterator is stopped.
func (b *BoundedConcurrencyReader) Scan(ctx context.Context, req storage.ScanRequest) (storage.EntryIterator, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}

	iter, err := b.Reader.Scan(ctx, req)
	if err != nil {
		b.release()
		return nil, err
	}
	return &releasingIterator{EntryIterator: iter, release: b.release}, nil
}

// Shards see [storage.Reader].Shards.
func (b *BoundedConcurrencyReader) Shards(ctx context.Context, r storage.ShardRange) ([]string, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	return b.Reader.Shards(ctx, r)
}

type releasingIterator struct {
	storage.EntryIterator
	release func()
	stopped bool
}

func (r *releasingIterator) Stop() {
	if r.stopped {
		return
	}
	r.stopped = true
	r.EntryIterator.Stop()
	r.release()
}
