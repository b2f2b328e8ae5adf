// Package test holds the behaviour every store implementation must share.
package test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/storage"
)

// DictionaryStore is a store that also keeps the field dictionary.
type DictionaryStore interface {
	storage.Store
	metadata.Provider
	WriteFields(ctx context.Context, dataType string, fields []metadata.Field) error
}

// cmpOpts treats nil and empty values alike; SQL stores return empty
// slices where the memory store keeps nil.
var cmpOpts = []cmp.Option{cmpopts.EquateEmpty()}

func RunAllTests(t *testing.T, ds storage.Store) {
	t.Run("TestDatastoreIsReady", func(t *testing.T) {
		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)
	})

	// Entries.
	t.Run("TestWriteAndScan", func(t *testing.T) { WriteAndScanTest(t, ds) })
	t.Run("TestWriteOverwrites", func(t *testing.T) { WriteOverwritesTest(t, ds) })
	t.Run("TestScanAppliesVisibility", func(t *testing.T) { ScanVisibilityTest(t, ds) })
	t.Run("TestIteratorStop", func(t *testing.T) { IteratorStopTest(t, ds) })
	t.Run("TestCancelledContext", func(t *testing.T) { CancelledContextTest(t, ds) })

	// Shards.
	t.Run("TestShards", func(t *testing.T) { ShardsTest(t, ds) })
}

// newPrefix returns a shard prefix no other test writes to, so tests can
// share one store.
func newPrefix() string {
	return strings.ToLower(ulid.Make().String())
}

func keysOf(entries []storage.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Key)
	}
	return out
}

func numbered(n int) []storage.Entry {
	var entries []storage.Entry
	for i := n - 1; i >= 0; i-- {
		entries = append(entries, storage.Entry{Key: []byte(fmt.Sprintf("k%d", i)), Value: []byte("v")})
	}
	return entries
}

func scan(t *testing.T, ds storage.Reader, req storage.ScanRequest) []storage.Entry {
	t.Helper()
	ctx := context.Background()
	iter, err := ds.Scan(ctx, req)
	require.NoError(t, err)
	got, err := storage.Collect(ctx, iter)
	require.NoError(t, err)
	return got
}
