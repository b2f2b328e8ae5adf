package executor

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

// Results streams the documents of one execution. Documents of one shard
// arrive in key order; documents of different shards interleave.
type Results struct {
	queryID string
	cancel  context.CancelFunc
	out     <-chan *document.Document
	// done is closed once every shard scan has ended.
	done chan struct{}

	limit   int64
	claimed atomic.Int64
	emitted atomic.Int64

	mu       sync.Mutex
	reports  []ShardReport
	warnings []error

	stopOnce sync.Once
}

func newResults(queryID string, cancel context.CancelFunc, shards []string, limit int) *Results {
	reports := make([]ShardReport, len(shards))
	for i, s := range shards {
		reports[i] = ShardReport{Shard: s, State: ShardInit}
	}
	return &Results{
		queryID: queryID,
		cancel:  cancel,
		done:    make(chan struct{}),
		limit:   int64(limit),
		reports: reports,
	}
}

func (r *Results) QueryID() string { return r.queryID }

// Next returns the next document, or storage.ErrIteratorDone once every
// shard scan has ended and all documents were consumed.
func (r *Results) Next(ctx context.Context) (*document.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case doc, ok := <-r.out:
		if ok {
			return doc, nil
		}
	}
	<-r.done
	r.cancel()
	return nil, storage.ErrIteratorDone
}

// Stop cancels the shard scans still running and waits for them to release
// their store handles. Documents not consumed yet are discarded. It is safe
// to call more than once.
func (r *Results) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		for range r.out {
		}
		<-r.done
	})
}

// Reports returns the state of every shard scan.
func (r *Results) Reports() []ShardReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.reports)
}

// Warnings returns the non-fatal problems met so far: cost estimation
// warnings, shard failures and documents dropped after evaluation errors.
func (r *Results) Warnings() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.warnings)
}

// Emitted returns the number of documents handed to the consumer side so
// far.
func (r *Results) Emitted() int64 { return r.emitted.Load() }

func (r *Results) warn(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, err)
}

func (r *Results) transition(i int, state ShardState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[i].State = state
}

func (r *Results) finish(i int, state ShardState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[i].State = state
	r.reports[i].Err = err
}

func (r *Results) recordEmit(i int, k keys.DocKey) {
	r.emitted.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[i].Emitted++
	r.reports[i].LastKey = k
}

// claim reserves one slot of the limit.
func (r *Results) claim() bool {
	if r.limit <= 0 {
		return true
	}
	if r.claimed.Add(1) > r.limit {
		r.claimed.Add(-1)
		return false
	}
	return true
}

func (r *Results) unclaim() {
	if r.limit > 0 {
		r.claimed.Add(-1)
	}
}
