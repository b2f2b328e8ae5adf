package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		expected string
	}{
		{
			name:     "equality",
			node:     Eq("COLOR", "red"),
			expected: "COLOR == 'red'",
		},
		{
			name:     "null_equality",
			node:     IsNull("COLOR"),
			expected: "COLOR == null",
		},
		{
			name:     "method_equality",
			node:     MethodEq("TAGS", "size", "3"),
			expected: "TAGS.size() == '3'",
		},
		{
			name:     "bounded_range",
			node:     Between("AGE", "10", "20"),
			expected: "((AGE >= '10') && (AGE <= '20'))",
		},
		{
			name:     "nested",
			node:     AndOf(Eq("A", "1"), OrOf(Matches("B", "x.*"), NotOf(Eq("C", "2")))),
			expected: "(A == '1' && (B =~ 'x.*' || !(C == '2')))",
		},
		{
			name:     "delayed",
			node:     Delayed(Eq("A", "1")),
			expected: "((_Delayed_ = true) && (A == '1'))",
		},
		{
			name:     "filter_function",
			node:     Filter("includeRegex", []string{"B"}, ".*x.*"),
			expected: "filter:includeRegex(B, '.*x.*')",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, test.node.String())
		})
	}
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	original := AndOf(Eq("A", "1"), Eq("B", "2"))

	rewritten := Rewrite(original, func(n Node) Node {
		if eq, ok := n.(*Equality); ok && eq.Field == "B" {
			return Delayed(eq)
		}
		return n
	})

	require.Equal(t, "(A == '1' && B == '2')", original.String())
	require.Equal(t, "(A == '1' && ((_Delayed_ = true) && (B == '2')))", rewritten.String())
}

func TestDelayedIsIdempotent(t *testing.T) {
	d := Delayed(Eq("A", "1"))
	require.Same(t, d, Delayed(d))
	require.True(t, IsMarked(d, MarkerDelayed))
	require.Equal(t, Eq("A", "1"), Unwrap(d))
}

func TestFields(t *testing.T) {
	n := AndOf(Eq("A", "1"), OrOf(Eq("B", "1"), Eq("A", "2")), Filter("isNull", []string{"C"}))
	require.Equal(t, []string{"A", "B", "C"}, Fields(n))
}

func TestEqual(t *testing.T) {
	require.True(t, Equal(AndOf(Eq("A", "1"), Between("B", "1", "2")), AndOf(Eq("A", "1"), Between("B", "1", "2"))))
	require.False(t, Equal(AndOf(Eq("A", "1")), OrOf(Eq("A", "1"))))
	require.False(t, Equal(Delayed(Eq("A", "1")), EvaluationOnly(Eq("A", "1"))))
	require.False(t, Equal(GreaterThan("A", "1", true), GreaterThan("A", "1", false)))
}

func TestDecode(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		n, err := Decode([]byte(`{"op":"and","children":[
			{"op":"eq","field":"A","value":"1"},
			{"op":"regex","field":"B","pattern":".*x.*"}]}`))
		require.NoError(t, err)
		require.True(t, Equal(AndOf(Eq("A", "1"), Matches("B", ".*x.*")), n))
	})

	t.Run("yaml", func(t *testing.T) {
		n, err := Decode([]byte(`
op: or
children:
  - op: range
    field: AGE
    lower: {value: "10", inclusive: true}
    upper: {value: "20", inclusive: false}
  - op: marker
    kind: evaluation_only
    children:
      - op: eq
        field: C
        null: true
`))
		require.NoError(t, err)
		expected := OrOf(
			&Range{Field: "AGE", Lower: &Bound{Value: "10", Inclusive: true}, Upper: &Bound{Value: "20"}},
			EvaluationOnly(IsNull("C")),
		)
		require.True(t, Equal(expected, n))
	})

	t.Run("round_trip", func(t *testing.T) {
		n := AndOf(Eq("A", "1"), NotOf(Filter("cel", nil, "size(fields) > 1")), Delayed(Matches("B", "x")))
		data, err := Encode(n)
		require.NoError(t, err)

		decoded, err := Decode(data)
		require.NoError(t, err)
		require.True(t, Equal(n, decoded))
	})

	for name, input := range map[string]string{
		"unknown_op":        `{"op":"xor"}`,
		"eq_without_field":  `{"op":"eq","value":"1"}`,
		"empty_and":         `{"op":"and"}`,
		"not_two_children":  `{"op":"not","children":[{"op":"eq","field":"A"},{"op":"eq","field":"B"}]}`,
		"unknown_marker":    `{"op":"marker","kind":"x","children":[{"op":"eq","field":"A"}]}`,
		"range_without_end": `{"op":"range","field":"A"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			require.ErrorIs(t, err, ErrInvalidNode)
		})
	}
}
