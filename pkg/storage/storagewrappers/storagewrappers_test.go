package storagewrappers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/shardquery/shardquery/internal/mocks"
	"github.com/shardquery/shardquery/pkg/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRetryingReader(t *testing.T) {
	ctx := context.Background()

	t.Run("retries_transient_errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := mocks.NewMockReader(ctrl)
		gomock.InOrder(
			inner.EXPECT().Shards(gomock.Any(), storage.ShardRange{}).Return(nil, storage.TransientError(errors.New("busy"))),
			inner.EXPECT().Shards(gomock.Any(), storage.ShardRange{}).Return([]string{"s_0"}, nil),
		)

		r := NewRetryingReader(inner, WithInitialInterval(time.Millisecond))
		shards, err := r.Shards(ctx, storage.ShardRange{})
		require.NoError(t, err)
		require.Equal(t, []string{"s_0"}, shards)
	})

	t.Run("gives_up", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := mocks.NewMockReader(ctrl)
		inner.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(nil, storage.TransientError(errors.New("busy"))).Times(3)

		r := NewRetryingReader(inner, WithMaxRetries(2), WithInitialInterval(time.Millisecond))
		_, err := r.Scan(ctx, storage.ScanRequest{Shard: "s_0"})
		require.ErrorIs(t, err, storage.ErrTransient)
	})

	t.Run("does_not_retry_other_errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := mocks.NewMockReader(ctrl)
		boom := errors.New("boom")
		inner.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(nil, boom).Times(1)

		_, err := NewRetryingReader(inner).Scan(ctx, storage.ScanRequest{Shard: "s_0"})
		require.ErrorIs(t, err, boom)
	})

	t.Run("stops_on_cancellation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := mocks.NewMockReader(ctrl)
		inner.EXPECT().Shards(gomock.Any(), gomock.Any()).Return(nil, storage.TransientError(errors.New("busy"))).MaxTimes(1)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewRetryingReader(inner, WithInitialInterval(time.Hour)).Shards(cancelled, storage.ShardRange{})
		require.Error(t, err)
	})
}

func TestInstrumentedReader(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockReader(ctrl)
	inner.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(storage.NewEmptyIterator[storage.Entry](), nil).Times(2)
	inner.EXPECT().Shards(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)

	r := NewInstrumentedReader(inner)
	for range 2 {
		iter, err := r.Scan(ctx, storage.ScanRequest{Shard: "s_0"})
		require.NoError(t, err)
		iter.Stop()
	}
	_, err := r.Shards(ctx, storage.ShardRange{})
	require.NoError(t, err)

	require.Equal(t, Metrics{ScanCount: 2, ShardsCount: 1}, r.GetMetrics())
}

func TestBoundedConcurrencyReader(t *testing.T) {
	ctx := context.Background()

	t.Run("scan_holds_slot_until_stop", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := mocks.NewMockReader(ctrl)
		iter := mocks.NewMockIterator[storage.Entry](ctrl)
		iter.EXPECT().Stop().Times(1)
		inner.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(iter, nil)

		r := NewBoundedConcurrencyReader(inner, 1)
		scan, err := r.Scan(ctx, storage.ScanRequest{Shard: "s_0"})
		require.NoError(t, err)

		blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = r.Shards(blocked, storage.ShardRange{})
		require.ErrorIs(t, err, context.DeadlineExceeded)

		scan.Stop()
		scan.Stop()

		inner.EXPECT().Shards(gomock.Any(), gomock.Any()).Return([]string{"s_0"}, nil)
		_, err = r.Shards(ctx, storage.ShardRange{})
		require.NoError(t, err)
	})

	t.Run("failed_scan_releases_slot", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := mocks.NewMockReader(ctrl)
		inner.EXPECT().Scan(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom")).Times(2)

		r := NewBoundedConcurrencyReader(inner, 1)
		for range 2 {
			_, err := r.Scan(ctx, storage.ScanRequest{Shard: "s_0"})
			require.Error(t, err)
		}
	})

	t.Run("limits_concurrency", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		inner := mocks.NewMockReader(ctrl)

		var (
			mu      sync.Mutex
			current int
			peak    int
		)
		inner.EXPECT().Shards(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, storage.ShardRange) ([]string, error) {
			mu.Lock()
			current++
			peak = max(peak, current)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			current--
			mu.Unlock()
			return nil, nil
		}).Times(10)

		r := NewBoundedConcurrencyReader(inner, 2)
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = r.Shards(ctx, storage.ShardRange{})
			}()
		}
		wg.Wait()
		require.LessOrEqual(t, peak, 2)
	})
}
