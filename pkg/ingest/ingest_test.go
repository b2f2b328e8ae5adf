package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/storage/memory"
	"github.com/shardquery/shardquery/pkg/types"
)

var snapshot = metadata.NewSnapshot([]string{"event"},
	metadata.Field{Name: "HOST", Type: types.String, Indexed: true},
	metadata.Field{Name: "TOKEN", Type: types.String, IndexOnly: true},
	metadata.Field{Name: "BODY", Type: types.String},
)

func TestEntries(t *testing.T) {
	r := NewRecord("event", "a.1", map[string][]string{
		"HOST":  {"Web-01"},
		"TOKEN": {"xyz"},
		"BODY":  {"hello"},
	})

	entries, err := Entries(snapshot, r)
	require.NoError(t, err)

	got := map[string]bool{}
	for _, e := range entries {
		got[string(e.Key)] = true
	}
	require.Equal(t, map[string]bool{
		string(keys.Event("event", "a.1", "HOST", "Web-01")):        true,
		string(keys.FieldIndex("HOST", "web-01", "event", "a.1")):   true,
		string(keys.FieldIndex("TOKEN", "xyz", "event", "a.1")):     true,
		string(keys.Event("event", "a.1", "BODY", "hello")):         true,
	}, got)
}

func TestEntriesRejectsBadRecords(t *testing.T) {
	_, err := Entries(snapshot, NewRecord("event", "", nil))
	require.Error(t, err)

	_, err = Entries(snapshot, NewRecord("event", "a\x00b", nil))
	require.ErrorIs(t, err, keys.ErrMalformedKey)
}

func TestShardFor(t *testing.T) {
	require.Equal(t, "s_0", ShardFor("s", "a.b.c", 1))
	require.Equal(t, ShardFor("s", "a", 8), ShardFor("s", "a.b.c", 8))
	require.Equal(t, ShardFor("s", "a.1", 8), ShardFor("s", "a.2.3", 8))
}

func TestLoadSharded(t *testing.T) {
	ctx := context.Background()
	ds := memory.New()

	records := []Record{
		NewRecord("event", "a", map[string][]string{"HOST": {"x"}}),
		NewRecord("event", "a.1", map[string][]string{"HOST": {"y"}}),
		NewRecord("event", "b", map[string][]string{"HOST": {"z"}}),
	}
	require.NoError(t, LoadSharded(ctx, ds, snapshot, "20240101", 4, records...))

	shards, err := ds.Shards(ctx, storage.ShardRange{})
	require.NoError(t, err)
	require.NotEmpty(t, shards)

	iter, err := ds.Scan(ctx, storage.ScanRequest{Shard: ShardFor("20240101", "a", 4)})
	require.NoError(t, err)
	entries, err := storage.Collect(ctx, iter)
	require.NoError(t, err)
	var uids []string
	for _, e := range entries {
		if ev, err := keys.ParseEvent(e.Key); err == nil {
			uids = append(uids, ev.UID)
		}
	}
	require.Subset(t, uids, []string{"a", "a.1"})
}

func TestDecodeRecords(t *testing.T) {
	records, err := DecodeRecords([]byte(`
- dataType: event
  uid: a.1
  fields:
    HOST:
      - value: web-01
        visibility: PUBLIC
`))
	require.NoError(t, err)
	require.Equal(t, []Record{{
		DataType: "event",
		UID:      "a.1",
		Fields:   map[string][]Value{"HOST": {{Raw: "web-01", Visibility: "PUBLIC"}}},
	}}, records)
}
