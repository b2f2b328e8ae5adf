package test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/visibility"
)

func WriteAndScanTest(t *testing.T, ds storage.Store) {
	ctx := context.Background()
	shard := newPrefix() + "_0"
	require.NoError(t, ds.Write(ctx, shard, numbered(10)))

	t.Run("full_range", func(t *testing.T) {
		got := scan(t, ds, storage.ScanRequest{Shard: shard})
		require.Equal(t, []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9"}, keysOf(got))
	})

	t.Run("small_batches", func(t *testing.T) {
		got := scan(t, ds, storage.ScanRequest{Shard: shard, BatchSize: 3})
		require.Len(t, got, 10)
	})

	t.Run("bounded_range", func(t *testing.T) {
		got := scan(t, ds, storage.ScanRequest{
			Shard: shard,
			Range: storage.Range{Start: []byte("k3"), End: []byte("k6")},
		})
		require.Equal(t, []string{"k3", "k4", "k5"}, keysOf(got))
	})

	t.Run("prefix_range", func(t *testing.T) {
		require.NoError(t, ds.Write(ctx, shard, []storage.Entry{{Key: []byte("k1\x00x")}, {Key: []byte("k10")}}))
		got := scan(t, ds, storage.ScanRequest{Shard: shard, Range: storage.PrefixRange([]byte("k1\x00"))})
		require.Equal(t, []string{"k1\x00x"}, keysOf(got))
	})

	t.Run("empty_range", func(t *testing.T) {
		got := scan(t, ds, storage.ScanRequest{
			Shard: shard,
			Range: storage.Range{Start: []byte("k6"), End: []byte("k3")},
		})
		require.Empty(t, got)
	})

	t.Run("unknown_shard", func(t *testing.T) {
		got := scan(t, ds, storage.ScanRequest{Shard: newPrefix() + "_0"})
		require.Empty(t, got)
	})
}

func WriteOverwritesTest(t *testing.T, ds storage.Store) {
	ctx := context.Background()
	shard := newPrefix() + "_0"

	require.NoError(t, ds.Write(ctx, shard, []storage.Entry{{Key: []byte("a"), Value: []byte("1"), Visibility: "A"}}))
	require.NoError(t, ds.Write(ctx, shard, []storage.Entry{{Key: []byte("a"), Value: []byte("2")}}))

	expected := []storage.Entry{{Key: []byte("a"), Value: []byte("2")}}
	got := scan(t, ds, storage.ScanRequest{Shard: shard})
	if diff := cmp.Diff(expected, got, cmpOpts...); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	require.Error(t, ds.Write(ctx, "", nil))
}

func ScanVisibilityTest(t *testing.T, ds storage.Store) {
	ctx := context.Background()
	shard := newPrefix() + "_0"

	require.NoError(t, ds.Write(ctx, shard, []storage.Entry{
		{Key: []byte("a"), Visibility: ""},
		{Key: []byte("b"), Visibility: "PUBLIC"},
		{Key: []byte("c"), Visibility: "SECRET"},
		{Key: []byte("d"), Visibility: "SECRET&OTHER"},
		{Key: []byte("e"), Visibility: "((("},
		{Key: []byte("f"), Visibility: "PUBLIC|OTHER"},
	}))

	t.Run("single_entity", func(t *testing.T) {
		chain, err := visibility.ParseChain("user=PUBLIC,SECRET")
		require.NoError(t, err)
		got := scan(t, ds, storage.ScanRequest{Shard: shard, Filters: visibility.Filters(chain)})
		require.Equal(t, []string{"a", "b", "c", "f"}, keysOf(got))
	})

	t.Run("every_entity_must_accept", func(t *testing.T) {
		chain, err := visibility.ParseChain("user=PUBLIC,SECRET;proxy=PUBLIC")
		require.NoError(t, err)
		got := scan(t, ds, storage.ScanRequest{Shard: shard, Filters: visibility.Filters(chain)})
		require.Equal(t, []string{"a", "b", "f"}, keysOf(got))
	})

	t.Run("no_filters", func(t *testing.T) {
		got := scan(t, ds, storage.ScanRequest{Shard: shard})
		require.Len(t, got, 6)
	})
}

func IteratorStopTest(t *testing.T, ds storage.Store) {
	ctx := context.Background()
	shard := newPrefix() + "_0"
	require.NoError(t, ds.Write(ctx, shard, numbered(5)))

	iter, err := ds.Scan(ctx, storage.ScanRequest{Shard: shard, BatchSize: 2})
	require.NoError(t, err)

	head, err := iter.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, "k0", string(head.Key))

	next, err := iter.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, head.Key, next.Key)

	iter.Stop()
	iter.Stop()
	_, err = iter.Next(ctx)
	require.ErrorIs(t, err, storage.ErrIteratorDone)
}

func CancelledContextTest(t *testing.T, ds storage.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ds.Scan(ctx, storage.ScanRequest{Shard: newPrefix() + "_0"})
	require.ErrorIs(t, err, context.Canceled)

	_, err = ds.Shards(ctx, storage.ShardRange{})
	require.ErrorIs(t, err, context.Canceled)
}

func ShardsTest(t *testing.T, ds storage.Store) {
	ctx := context.Background()
	day1, day2 := newPrefix(), newPrefix()
	if day2 < day1 {
		day1, day2 = day2, day1
	}
	entry := []storage.Entry{{Key: []byte("k")}}
	for _, shard := range []string{day2 + "_0", day1 + "_1", day1 + "_0"} {
		require.NoError(t, ds.Write(ctx, shard, entry))
	}

	t.Run("sorted", func(t *testing.T) {
		shards, err := ds.Shards(ctx, storage.ShardRange{Start: day1, End: day2 + "_~"})
		require.NoError(t, err)
		require.Equal(t, []string{day1 + "_0", day1 + "_1", day2 + "_0"}, shards)
	})

	t.Run("inclusive_bounds", func(t *testing.T) {
		shards, err := ds.Shards(ctx, storage.ShardRange{Start: day1 + "_1", End: day2 + "_0"})
		require.NoError(t, err)
		require.Equal(t, []string{day1 + "_1", day2 + "_0"}, shards)
	})

	t.Run("open_end", func(t *testing.T) {
		shards, err := ds.Shards(ctx, storage.ShardRange{Start: day2})
		require.NoError(t, err)
		require.Contains(t, shards, day2+"_0")
		require.NotContains(t, shards, day1+"_0")
	})
}
