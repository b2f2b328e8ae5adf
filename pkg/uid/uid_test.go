package uid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAncestor(t *testing.T) {
	require.True(t, IsAncestor("a.b.c", "a.b.c.1"))
	require.True(t, IsAncestor("a", "a.b.c.1"))
	require.False(t, IsAncestor("a.b.c.1", "a.b.c.10"))
	require.False(t, IsAncestor("a.b.c", "a.b.c"))
	require.False(t, IsAncestor("a.b.c", "a.b.c."))
	require.False(t, IsAncestor("a.b.c.1", "a.b.c"))
}

func TestAncestors(t *testing.T) {
	require.Equal(t, []string{"a", "a.b", "a.b.c"}, Ancestors("a.b.c.1"))
	require.Empty(t, Ancestors("a"))

	parent, ok := Parent("a.b.c")
	require.True(t, ok)
	require.Equal(t, "a.b", parent)
	_, ok = Parent("a")
	require.False(t, ok)
	require.Equal(t, "a", Root("a.b.c"))
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name     string
		left     []string
		right    []string
		expected []string
	}{
		{
			name:     "parent_and_child",
			left:     []string{"a.b.c"},
			right:    []string{"a.b.c.1"},
			expected: []string{"a.b.c.1"},
		},
		{
			name:  "segment_boundary",
			left:  []string{"a.b.c.1"},
			right: []string{"a.b.c.10"},
		},
		{
			name:     "siblings_with_children",
			left:     []string{"a.b.c.1", "a.b.c.2"},
			right:    []string{"a.b.c.1.1", "a.b.c.2.1"},
			expected: []string{"a.b.c.1.1", "a.b.c.2.1"},
		},
		{
			name:     "equal",
			left:     []string{"a.1", "b.1"},
			right:    []string{"b.1", "c.1"},
			expected: []string{"b.1"},
		},
		{
			name:     "child_on_left",
			left:     []string{"a.1.1", "a.2"},
			right:    []string{"a.1"},
			expected: []string{"a.1.1"},
		},
		{
			name:     "duplicates_collapse",
			left:     []string{"a", "a.1"},
			right:    []string{"a.1"},
			expected: []string{"a.1"},
		},
		{
			name:  "empty",
			left:  nil,
			right: []string{"a"},
		},
	}

	strategies := map[string]*Intersector{
		"pairwise": NewIntersector(WithRadixThreshold(1 << 20)),
		"radix":    NewIntersector(WithRadixThreshold(0)),
	}
	for strategy, intersector := range strategies {
		for _, test := range tests {
			t.Run(strategy+"/"+test.name, func(t *testing.T) {
				got := UIDs(intersector.Intersect(Tag("l", test.left...), Tag("r", test.right...)))
				if test.expected == nil {
					require.Empty(t, got)
					return
				}
				require.Equal(t, test.expected, got)
			})
		}
	}
}

func TestIntersectProvenance(t *testing.T) {
	left := []Tagged{
		{UID: "a", Provenance: []string{"NAME == 'x'"}},
		{UID: "a.1", Provenance: []string{"AGE == '3'"}},
	}
	right := []Tagged{{UID: "a.1", Provenance: []string{"CITY == 'y'"}}}

	for _, threshold := range []int{0, 100} {
		got := NewIntersector(WithRadixThreshold(threshold)).Intersect(left, right)
		require.Equal(t, []Tagged{{
			UID:        "a.1",
			Provenance: []string{"AGE == '3'", "CITY == 'y'", "NAME == 'x'"},
		}}, got)
	}
}

func TestIntersectStrategiesAgree(t *testing.T) {
	var left, right []string
	for i := range 20 {
		left = append(left, fmt.Sprintf("r.%d", i))
		for j := range 3 {
			if (i+j)%4 == 0 {
				right = append(right, fmt.Sprintf("r.%d.%d", i, j))
			}
		}
		if i%5 == 0 {
			right = append(right, fmt.Sprintf("r.%d", i))
		}
	}

	pairwise := NewIntersector(WithRadixThreshold(1 << 20)).Intersect(Tag("l", left...), Tag("r", right...))
	radix := NewIntersector(WithRadixThreshold(0)).Intersect(Tag("l", left...), Tag("r", right...))
	require.Equal(t, pairwise, radix)
	require.NotEmpty(t, pairwise)
	require.Equal(t, []string{"a.b.c.1"}, Intersect([]string{"a.b.c"}, []string{"a.b.c.1"}))
}
