package keys

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocKey(t *testing.T) {
	k := NewDocKey("person", "a.b.1")
	require.Equal(t, "person", k.DataType())
	require.Equal(t, "a.b.1", k.UID())
	require.Equal(t, "person/a.b.1", k.String())

	dataType, uid, err := ParseDocKey(k)
	require.NoError(t, err)
	require.Equal(t, "person", dataType)
	require.Equal(t, "a.b.1", uid)

	_, _, err = ParseDocKey("nouid")
	require.ErrorIs(t, err, ErrMalformedKey)

	require.Less(t, k, k.Successor())
	require.Less(t, k.Successor(), NewDocKey("person", "a.b.1.1"))
	require.Less(t, DataTypeStart("person"), NewDocKey("person", "0"))
}

func TestFieldIndex(t *testing.T) {
	key := FieldIndex("NAME", "alice", "person", "a.1")
	parsed, err := ParseFieldIndex(key)
	require.NoError(t, err)
	require.Equal(t, FieldIndexKey{Field: "NAME", Value: "alice", DataType: "person", UID: "a.1"}, parsed)
	require.Equal(t, NewDocKey("person", "a.1"), parsed.DocKey())
	require.Equal(t, key, parsed.Bytes())

	prefix := FieldIndexValuePrefix("NAME", "alice")
	require.True(t, bytes.HasPrefix(key, prefix))
	require.Equal(t, string(parsed.DocKey()), string(key[len(prefix):]))
	require.True(t, bytes.HasPrefix(key, FieldIndexFieldPrefix("NAME")))
	require.False(t, bytes.HasPrefix(FieldIndex("NAMES", "x", "p", "1"), FieldIndexFieldPrefix("NAME")))

	_, err = ParseFieldIndex(Event("person", "a.1", "NAME", "alice"))
	require.ErrorIs(t, err, ErrMalformedKey)
}

func TestEvent(t *testing.T) {
	key := Event("person", "a.1", "NAME", "Alice\twith tab")
	parsed, err := ParseEvent(key)
	require.NoError(t, err)
	require.Equal(t, EventKey{DataType: "person", UID: "a.1", Field: "NAME", Value: "Alice\twith tab"}, parsed)
	require.Equal(t, key, parsed.Bytes())

	doc := NewDocKey("person", "a.1")
	require.True(t, bytes.HasPrefix(key, EventDocumentPrefix(doc)))
	require.False(t, bytes.HasPrefix(Event("person", "a.1.1", "NAME", "x"), EventDocumentPrefix(doc)))
	require.True(t, bytes.HasPrefix(key, EventDataTypePrefix("person")))
	require.True(t, bytes.HasPrefix(key, EventPrefix()))
	require.LessOrEqual(t, string(EventDocKeyStart(doc)), string(key))
	require.Greater(t, string(EventDocKeyStart(doc.Successor())), string(key))
	require.Less(t, string(EventDocKeyStart(doc.Successor())), string(Event("person", "a.1.1", "NAME", "x")))

	_, err = ParseEvent([]byte("garbage"))
	require.ErrorIs(t, err, ErrMalformedKey)
}

func TestPostingsSortByDocKey(t *testing.T) {
	uids := []string{"a.10", "a.1.1", "a.2", "a.1"}
	var postings []string
	for _, u := range uids {
		postings = append(postings, string(FieldIndex("F", "v", "t", u)))
	}
	sort.Strings(postings)

	var got []string
	for _, p := range postings {
		parsed, err := ParseFieldIndex([]byte(p))
		require.NoError(t, err)
		got = append(got, parsed.UID)
	}
	require.Equal(t, []string{"a.1", "a.1.1", "a.10", "a.2"}, got)
}

func TestPrefixEnd(t *testing.T) {
	require.Equal(t, []byte("ab"), PrefixEnd([]byte("aa")))
	require.Equal(t, []byte("b"), PrefixEnd([]byte("a\xff")))
	require.Nil(t, PrefixEnd([]byte("\xff\xff")))
	require.Nil(t, PrefixEnd(nil))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("a", "b.c"))
	require.ErrorIs(t, Validate("a\x00b"), ErrMalformedKey)
}
