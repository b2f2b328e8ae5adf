package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/pkg/metadata"
)

// FieldDictionaryTest checks the field dictionary of a store. It expects a
// store without any dictionary written yet.
func FieldDictionaryTest(t *testing.T, ds DictionaryStore) {
	ctx := context.Background()

	cardinality := int64(42)
	require.NoError(t, ds.WriteFields(ctx, "event", []metadata.Field{
		{Name: "HOST", Type: "string", Indexed: true, Cardinality: &cardinality},
		{Name: "BODY", Type: "string"},
	}))
	require.NoError(t, ds.WriteFields(ctx, "flow", []metadata.Field{
		{Name: "HOST", Type: "string", Indexed: true, ReverseIndexed: true},
	}))

	t.Run("single_data_type", func(t *testing.T) {
		snapshot, err := ds.Load(ctx, []string{"event"})
		require.NoError(t, err)
		require.Equal(t, []string{"event"}, snapshot.DataTypes())
		require.True(t, snapshot.IsIndexed("HOST"))
		require.False(t, snapshot.IsReverseIndexed("HOST"))
		require.False(t, snapshot.IsIndexed("BODY"))
		n, ok := snapshot.Cardinality("HOST")
		require.True(t, ok)
		require.Equal(t, int64(42), n)
	})

	t.Run("all_data_types_merge", func(t *testing.T) {
		snapshot, err := ds.Load(ctx, nil)
		require.NoError(t, err)
		require.Equal(t, []string{"event", "flow"}, snapshot.DataTypes())
		require.False(t, snapshot.IsReverseIndexed("HOST"))
		_, ok := snapshot.Cardinality("HOST")
		require.False(t, ok)
	})

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, ds.WriteFields(ctx, "flow", []metadata.Field{
			{Name: "HOST", Type: "string", Indexed: false},
		}))
		snapshot, err := ds.Load(ctx, []string{"flow"})
		require.NoError(t, err)
		require.False(t, snapshot.IsIndexed("HOST"))
	})

	t.Run("unknown_data_type", func(t *testing.T) {
		_, err := ds.Load(ctx, []string{"missing"})
		require.ErrorIs(t, err, metadata.ErrUnknownDataType)
	})
}
