package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestForEach(t *testing.T) {
	shards := []string{"20240101_0", "20240101_1", "20240101_2", "20240101_3", "20240101_4", "20240101_5"}

	tests := []struct {
		name  string
		limit int
		peak  int32
	}{
		{name: "bounded", limit: 2, peak: 2},
		{name: "single", limit: 1, peak: 1},
		{name: "unbounded", limit: 0, peak: int32(len(shards))},
		{name: "limit_above_items", limit: 100, peak: int32(len(shards))},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var running, peak atomic.Int32
			var mu sync.Mutex
			seen := map[int]string{}
			// every scan waits until the expected number run side by side
			release := make(chan struct{})
			var once sync.Once

			ForEach(context.Background(), test.limit, shards, func(ctx context.Context, i int, shard string) {
				n := running.Add(1)
				defer running.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				if n == test.peak {
					once.Do(func() { close(release) })
				}
				select {
				case <-release:
				case <-time.After(50 * time.Millisecond):
				}

				mu.Lock()
				defer mu.Unlock()
				seen[i] = shard
			})

			require.Equal(t, test.peak, peak.Load())
			require.Len(t, seen, len(shards))
			for i, shard := range shards {
				require.Equal(t, shard, seen[i])
			}
		})
	}
}

func TestForEachCancelledStillVisitsEveryItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var cancelled atomic.Int32
	ForEach(ctx, 2, []string{"a", "b", "c"}, func(ctx context.Context, _ int, _ string) {
		if ctx.Err() != nil {
			cancelled.Add(1)
		}
	})
	require.Equal(t, int32(3), cancelled.Load())
}

func TestForEachWithoutItems(t *testing.T) {
	ForEach(context.Background(), 0, nil, func(context.Context, int, string) {
		t.Fatal("unexpected call")
	})
}

func TestSend(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		ch := make(chan string, 1)
		require.True(t, Send(context.Background(), "event/a", ch))
		require.Equal(t, "event/a", <-ch)
	})

	t.Run("cancelled_before_send", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		// buffered, so only the context check prevents delivery
		ch := make(chan string, 1)
		require.False(t, Send(ctx, "event/a", ch))
		require.Empty(t, ch)
	})

	t.Run("cancelled_while_blocked", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.False(t, Send(ctx, "event/a", make(chan string)))
	})
}
