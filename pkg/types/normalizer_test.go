package types

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLcNoDiacritics(t *testing.T) {
	n := MustLookup(String)

	out, err := n.Normalize("Crème Brûlée")
	require.NoError(t, err)
	require.Equal(t, "creme brulee", out)

	typed, err := n.Typed("Crème")
	require.NoError(t, err)
	require.Equal(t, "Crème", typed)
}

func TestNumberEncodingPreservesOrder(t *testing.T) {
	values := []float64{-1e9, -42.5, -1, -0.001, 0, 0.001, 1, 2, 10, 100, 1e12}

	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = EncodeNumber(v)
	}

	require.True(t, sort.StringsAreSorted(encoded))

	for i, e := range encoded {
		decoded, err := DecodeNumber(e)
		require.NoError(t, err)
		require.InDelta(t, values[i], decoded, 0)
	}
}

func TestNumberNormalize(t *testing.T) {
	n := MustLookup(Number)

	a, err := n.Normalize("9")
	require.NoError(t, err)
	b, err := n.Normalize("10")
	require.NoError(t, err)
	require.Less(t, a, b)

	_, err = n.Normalize("ten")
	require.ErrorIs(t, err, ErrNormalization)

	_, err = n.Normalize("NaN")
	require.ErrorIs(t, err, ErrNormalization)

	neg, err := n.Normalize("-0")
	require.NoError(t, err)
	pos, err := n.Normalize("0")
	require.NoError(t, err)
	require.Equal(t, pos, neg)
}

func TestDateNormalize(t *testing.T) {
	n := MustLookup(Date)

	out, err := n.Normalize("2024-03-01T10:00:00+02:00")
	require.NoError(t, err)
	require.Equal(t, "2024-03-01T08:00:00.000Z", out)

	out, err = n.Normalize("2024-03-01")
	require.NoError(t, err)
	require.Equal(t, "2024-03-01T00:00:00.000Z", out)

	typed, err := n.Typed("20240301")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), typed)

	_, err = n.Normalize("yesterday")
	require.ErrorIs(t, err, ErrNormalization)
}

func TestLookup(t *testing.T) {
	n, err := Lookup("")
	require.NoError(t, err)
	require.Equal(t, String, n.Name())

	_, err = Lookup("geo")
	require.Error(t, err)
}
