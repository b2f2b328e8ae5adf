package iterator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shardquery/shardquery/internal/mocks"
	"github.com/shardquery/shardquery/pkg/iterator"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

func TestStopReachesEveryLeaf(t *testing.T) {
	ctrl := gomock.NewController(t)

	a := mocks.NewMockNestedIterator(ctrl)
	b := mocks.NewMockNestedIterator(ctrl)
	c := mocks.NewMockNestedIterator(ctrl)
	a.EXPECT().Stop().Times(1)
	b.EXPECT().Stop().Times(1)
	c.EXPECT().Stop().Times(1)

	root := iterator.NewAndIterator(a, iterator.NewOrIterator(b, c))
	root.Stop()
}

func TestChildErrorsPropagate(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	boom := errors.New("boom")

	good := mocks.NewMockNestedIterator(ctrl)
	good.EXPECT().Move(gomock.Any(), gomock.Any()).Return(keys.NewDocKey("event", "a"), nil).AnyTimes()
	bad := mocks.NewMockNestedIterator(ctrl)
	bad.EXPECT().Move(gomock.Any(), gomock.Any()).Return(keys.DocKey(""), boom)

	_, err := iterator.NewAndIterator(good, bad).Move(ctx, "")
	require.ErrorIs(t, err, boom)
}

func TestExhaustedChildIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	done := mocks.NewMockNestedIterator(ctrl)
	done.EXPECT().Move(gomock.Any(), gomock.Any()).Return(keys.DocKey(""), storage.ErrIteratorDone).Times(1)
	live := mocks.NewMockNestedIterator(ctrl)
	gomock.InOrder(
		live.EXPECT().Move(gomock.Any(), keys.DocKey("")).Return(keys.NewDocKey("event", "a"), nil),
		live.EXPECT().Move(gomock.Any(), keys.NewDocKey("event", "a").Successor()).Return(keys.DocKey(""), storage.ErrIteratorDone),
	)

	or := iterator.NewOrIterator(done, live)
	k, err := or.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, keys.NewDocKey("event", "a"), k)

	_, err = or.Next(ctx)
	require.ErrorIs(t, err, storage.ErrIteratorDone)
}

func TestSeekForwardsThroughNonSeekableNodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	r := storage.Range{Start: []byte(keys.NewDocKey("event", "b"))}

	leaf := iterator.NewStaticIterator("leaf", []keys.DocKey{keys.NewDocKey("event", "a"), keys.NewDocKey("event", "c")}, nil)
	wrapper := mocks.NewMockNestedIterator(ctrl)
	wrapper.EXPECT().Children().Return([]iterator.NestedIterator{leaf})

	require.NoError(t, iterator.Seek(ctx, wrapper, r))
	k, err := leaf.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, keys.NewDocKey("event", "c"), k)
}
