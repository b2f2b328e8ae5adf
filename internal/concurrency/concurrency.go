// Package concurrency runs shard scans in a bounded pool and merges the
// streams they produce.
package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// ForEach calls fn for every item with at most limit calls running at once
// and returns when all of them have returned. A limit of zero or less runs
// every item at once. Cancelling ctx does not skip items: fn is still called
// with the cancelled context so it can record how it ended.
func ForEach[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, i int, item T)) {
	if len(items) == 0 {
		return
	}
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(limit)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			fn(ctx, i, item)
			return nil
		})
	}
	_ = p.Wait()
}

// Send delivers v on ch unless ctx ends first. It reports whether v was
// delivered.
func Send[T any](ctx context.Context, v T, ch chan<- T) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case ch <- v:
		return true
	}
}
