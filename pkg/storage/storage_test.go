package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/pkg/visibility"
)

func TestRange(t *testing.T) {
	r := PrefixRange([]byte("ab"))
	require.Equal(t, []byte("ac"), r.End)
	require.True(t, r.Contains([]byte("ab")))
	require.True(t, r.Contains([]byte("abz")))
	require.False(t, r.Contains([]byte("ac")))
	require.False(t, r.Contains([]byte("aa")))
	require.False(t, r.Empty())

	narrowed := r.From([]byte("abm"))
	require.Equal(t, []byte("abm"), narrowed.Start)
	require.Equal(t, r.End, narrowed.End)
	// never moves backwards
	require.Equal(t, []byte("abm"), narrowed.From([]byte("ab")).Start)

	require.True(t, r.From([]byte("b")).Empty())

	open := Range{Start: []byte("a")}
	require.True(t, open.Contains([]byte("zzz")))
	require.Equal(t, []byte("c"), open.Intersect(Range{End: []byte("c")}).End)
}

func TestShardRange(t *testing.T) {
	r := ShardRange{Start: "20240101", End: "20240131"}
	require.True(t, r.Contains("20240101_0"))
	require.True(t, r.Contains("20240115_3"))
	require.False(t, r.Contains("20231231_9"))
	require.False(t, r.Contains("20240201_0"))
	require.True(t, ShardRange{}.Contains("anything"))
}

func TestStaticIterator(t *testing.T) {
	ctx := context.Background()
	iter := NewStaticIterator([]int{1, 2, 3})

	head, err := iter.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, head)

	items, err := Collect(ctx, iter)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, items)

	_, err = iter.Next(ctx)
	require.ErrorIs(t, err, ErrIteratorDone)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewStaticIterator([]int{1}).Next(cancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFilteredIterator(t *testing.T) {
	ctx := context.Background()
	iter := NewFilteredIterator(NewStaticIterator([]int{1, 2, 3, 4, 5}), func(i int) bool { return i%2 == 1 })

	head, err := iter.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, head)
	_, err = iter.Next(ctx)
	require.NoError(t, err)

	head, err = iter.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, head)

	items, err := Collect(ctx, iter)
	require.NoError(t, err)
	require.Equal(t, []int{3, 5}, items)
}

func TestVisibilityFilteredIterator(t *testing.T) {
	entries := []Entry{
		{Key: []byte("1"), Visibility: ""},
		{Key: []byte("2"), Visibility: "A"},
		{Key: []byte("3"), Visibility: "A&B"},
		{Key: []byte("4"), Visibility: "B|C"},
		{Key: []byte("5"), Visibility: "A&"},
	}
	filters := visibility.Filters(visibility.Chain{
		visibility.NewAuthorizationSet("user", "A", "C"),
		visibility.NewAuthorizationSet("server", "A", "B", "C"),
	})

	got, err := Collect(context.Background(), NewVisibilityFilteredIterator(NewStaticIterator(entries), filters))
	require.NoError(t, err)

	var keys []string
	for _, e := range got {
		keys = append(keys, string(e.Key))
	}
	require.Equal(t, []string{"1", "2", "4"}, keys)
}

func TestTransientError(t *testing.T) {
	cause := errors.New("database is locked")
	err := TransientError(cause)
	require.ErrorIs(t, err, ErrTransient)
	require.ErrorIs(t, err, cause)
	require.NoError(t, TransientError(nil))
}
