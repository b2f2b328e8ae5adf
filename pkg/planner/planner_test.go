package planner

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/types"
)

func cardinality(n int64) *int64 {
	return &n
}

func testSnapshot() *metadata.Snapshot {
	return metadata.NewSnapshot([]string{"test"},
		metadata.Field{Name: "A", Indexed: true, Cardinality: cardinality(100)},
		metadata.Field{Name: "B", Indexed: true, Cardinality: cardinality(10)},
		metadata.Field{Name: "C", Indexed: true},
		metadata.Field{Name: "R", Indexed: true, ReverseIndexed: true},
		metadata.Field{Name: "Z", Indexed: true, Cardinality: cardinality(0)},
		metadata.Field{Name: "I", IndexOnly: true, Cardinality: cardinality(5)},
		metadata.Field{Name: "J", IndexOnly: true, Cardinality: cardinality(500)},
		metadata.Field{Name: "AGE", Type: types.Number, Indexed: true},
		metadata.Field{Name: "U"},
	)
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		query    ast.Node
		opts     []PlannerOption
		expected ast.Node
		zero     bool
		fullScan bool
	}{
		{
			name:     "single_anchor",
			query:    ast.Eq("A", "1"),
			expected: ast.Eq("A", "1"),
		},
		{
			name:  "cheapest_child_anchors_intersection",
			query: ast.AndOf(ast.Eq("A", "1"), ast.Eq("B", "2")),
			expected: ast.AndOf(
				ast.Delayed(ast.Eq("A", "1")),
				ast.Eq("B", "2"),
			),
		},
		{
			name:  "ties_keep_child_order",
			query: ast.AndOf(ast.Eq("C", "x"), ast.Eq("C", "y")),
			expected: ast.AndOf(
				ast.Eq("C", "x"),
				ast.Delayed(ast.Eq("C", "y")),
			),
		},
		{
			name:  "infinite_regex_is_delayed",
			query: ast.AndOf(ast.Eq("A", "1"), ast.Matches("B", ".*x.*")),
			expected: ast.AndOf(
				ast.Eq("A", "1"),
				ast.Delayed(ast.Matches("B", ".*x.*")),
			),
		},
		{
			name:  "non_anchors_are_delayed",
			query: ast.AndOf(ast.NotOf(ast.Eq("B", "1")), ast.Eq("U", "2"), ast.Eq("A", "3"), ast.Filter("isNull", []string{"C"})),
			expected: ast.AndOf(
				ast.Delayed(ast.NotOf(ast.Eq("B", "1"))),
				ast.Delayed(ast.Eq("U", "2")),
				ast.Eq("A", "3"),
				ast.Delayed(ast.Filter("isNull", []string{"C"})),
			),
		},
		{
			name:  "union_of_anchors",
			query: ast.OrOf(ast.Eq("A", "1"), ast.Between("B", "a", "c")),
			expected: ast.OrOf(
				ast.Eq("A", "1"),
				ast.Between("B", "a", "c"),
			),
		},
		{
			name:  "nested_intersection_in_union",
			query: ast.OrOf(ast.AndOf(ast.Eq("A", "1"), ast.Eq("B", "1")), ast.Eq("C", "2")),
			expected: ast.OrOf(
				ast.AndOf(ast.Delayed(ast.Eq("A", "1")), ast.Eq("B", "1")),
				ast.Eq("C", "2"),
			),
		},
		{
			name:     "reverse_indexed_leading_wildcard",
			query:    ast.Matches("R", ".*abc"),
			expected: ast.Matches("R", ".*abc"),
		},
		{
			name:     "index_only_field_anchors",
			query:    ast.AndOf(ast.Eq("A", "1"), ast.Eq("I", "2")),
			expected: ast.AndOf(ast.Delayed(ast.Eq("A", "1")), ast.Eq("I", "2")),
		},
		{
			name:     "index_only_terms_stay_anchors",
			query:    ast.AndOf(ast.Eq("J", "1"), ast.Eq("B", "2"), ast.Eq("A", "3")),
			expected: ast.AndOf(ast.Eq("J", "1"), ast.Eq("B", "2"), ast.Delayed(ast.Eq("A", "3"))),
		},
		{
			name:     "index_only_term_without_finite_cost_is_delayed",
			query:    ast.AndOf(ast.Eq("B", "2"), ast.Matches("J", ".*x.*")),
			expected: ast.AndOf(ast.Eq("B", "2"), ast.Delayed(ast.Matches("J", ".*x.*"))),
		},
		{
			name:     "zero_cardinality",
			query:    ast.AndOf(ast.Eq("A", "1"), ast.Eq("Z", "2")),
			expected: ast.AndOf(ast.Delayed(ast.Eq("A", "1")), ast.Eq("Z", "2")),
			zero:     true,
		},
		{
			name:  "max_anchors",
			query: ast.AndOf(ast.Eq("A", "1"), ast.Eq("B", "2"), ast.Eq("C", "3")),
			opts:  []PlannerOption{WithMaxAnchors(2)},
			expected: ast.AndOf(
				ast.Delayed(ast.Eq("A", "1")),
				ast.Eq("B", "2"),
				ast.Eq("C", "3"),
			),
		},
		{
			name:  "ancestor_join_keeps_every_finite_anchor",
			query: ast.AndOf(ast.Eq("A", "1"), ast.Eq("B", "2"), ast.Matches("C", ".*x.*")),
			opts:  []PlannerOption{WithAncestorJoin(true)},
			expected: ast.AndOf(
				ast.Eq("A", "1"),
				ast.Eq("B", "2"),
				ast.Delayed(ast.Matches("C", ".*x.*")),
			),
		},
		{
			name:     "full_scan_fallback",
			query:    ast.Eq("U", "1"),
			opts:     []PlannerOption{WithFullScan(true)},
			expected: ast.Delayed(ast.Eq("U", "1")),
			fullScan: true,
		},
		{
			name:     "literals_are_normalized",
			query:    ast.AndOf(ast.Eq("AGE", "5"), ast.Eq("A", "Élan")),
			expected: ast.AndOf(ast.Eq("AGE", types.EncodeNumber(5)), ast.Delayed(ast.Eq("A", "elan"))),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			plan, err := New(test.opts...).Plan(test.query, testSnapshot())
			require.NoError(t, err)
			require.True(t, ast.Equal(test.expected, plan.Root()), "expected %s, got %s", test.expected, plan.Root())
			require.Equal(t, test.zero, plan.Zero())
			require.Equal(t, test.fullScan, plan.FullScan())
		})
	}
}

func TestPlanFailures(t *testing.T) {
	tests := []struct {
		name  string
		query ast.Node
	}{
		{name: "unindexed_root", query: ast.Eq("U", "1")},
		{name: "unknown_field", query: ast.Eq("MISSING", "1")},
		{name: "infinite_root", query: ast.Matches("A", ".*x.*")},
		{name: "leading_wildcard_without_reverse_index", query: ast.Matches("A", ".*x")},
		{name: "negated_root", query: ast.NotOf(ast.Eq("A", "1"))},
		{name: "unbounded_range", query: ast.GreaterThan("A", "1", true)},
		{name: "null_literal", query: ast.IsNull("A")},
		{name: "union_with_infinite_branch", query: ast.OrOf(ast.Eq("A", "1"), ast.Matches("B", ".*x.*"))},
		{name: "union_with_unindexed_branch", query: ast.OrOf(ast.Eq("A", "1"), ast.Eq("U", "2"))},
		{name: "intersection_without_anchor", query: ast.AndOf(ast.Eq("U", "1"), ast.Matches("A", ".*x.*"))},
		{name: "delayed_root", query: ast.Delayed(ast.Eq("A", "1"))},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New().Plan(test.query, testSnapshot())
			require.ErrorIs(t, err, ErrNoAnchor)

			var planningErr *PlanningError
			require.ErrorAs(t, err, &planningErr)
			require.NotEmpty(t, planningErr.Reason)
		})
	}
}

func TestPlanIsPure(t *testing.T) {
	query := ast.AndOf(ast.Eq("A", "Élan"), ast.Eq("B", "2"), ast.Matches("C", ".*x.*"))
	before := query.String()

	p := New()
	first, err := p.Plan(query, testSnapshot())
	require.NoError(t, err)
	second, err := p.Plan(query, testSnapshot())
	require.NoError(t, err)

	require.Equal(t, before, query.String())
	require.True(t, ast.Equal(first.Root(), second.Root()))
	require.Same(t, query, first.Query())
}

func TestPlanAnchorsAndDelayed(t *testing.T) {
	query := ast.AndOf(ast.Eq("A", "1"), ast.OrOf(ast.Eq("B", "1"), ast.Eq("B", "2")), ast.Filter("isNotNull", []string{"C"}))
	plan, err := New().Plan(query, testSnapshot())
	require.NoError(t, err)

	// the union costs 20, less than A's 100
	require.Len(t, plan.Anchors(), 2)
	require.True(t, ast.Equal(ast.Eq("B", "1"), plan.Anchors()[0]))
	require.True(t, ast.Equal(ast.Eq("B", "2"), plan.Anchors()[1]))
	require.Len(t, plan.Delayed(), 2)
	require.True(t, ast.Equal(ast.Eq("A", "1"), plan.Delayed()[0]))
	require.Equal(t, plan.Root().String(), plan.String())
}

func TestPlanWarnings(t *testing.T) {
	query := ast.AndOf(
		ast.Eq("A", "1"),
		ast.Filter("includeRegex", []string{"B"}, "x.*"),
		ast.IsNull("B"),
		ast.MethodEq("C", "size", "2"),
		ast.Matches("C", "("),
		ast.Eq("AGE", "not a number"),
	)
	plan, err := New().Plan(query, testSnapshot())
	require.NoError(t, err)
	require.True(t, ast.Equal(ast.Eq("A", "1"), plan.Anchors()[0]))
	require.Len(t, plan.Anchors(), 1)
	// normalization failure plus one per unestimable term
	require.Len(t, plan.Warnings(), 5)
	for _, w := range plan.Warnings() {
		require.NotEmpty(t, w.Term)
		require.Contains(t, w.Error(), "unevaluated")
	}
}

func TestIsAnchor(t *testing.T) {
	d := NewAnchorDetector(testSnapshot())

	tests := []struct {
		node     ast.Node
		expected bool
	}{
		{ast.Eq("A", "1"), true},
		{ast.Eq("I", "1"), true},
		{ast.Eq("U", "1"), false},
		{ast.IsNull("A"), false},
		{ast.MethodEq("A", "size", "1"), false},
		{ast.Between("A", "1", "2"), true},
		{ast.GreaterThan("A", "1", false), false},
		{ast.Matches("A", ".*x.*"), true},
		{ast.Matches("A", "("), false},
		{ast.NotOf(ast.Eq("A", "1")), false},
		{ast.Filter("isNull", []string{"A"}), false},
		{ast.Delayed(ast.Eq("A", "1")), false},
		{ast.EvaluationOnly(ast.Eq("A", "1")), false},
		{ast.AndOf(ast.Eq("U", "1"), ast.Eq("A", "1")), true},
		{ast.AndOf(ast.Eq("U", "1"), ast.NotOf(ast.Eq("A", "1"))), false},
		{ast.OrOf(ast.Eq("A", "1"), ast.Eq("B", "1")), true},
		{ast.OrOf(ast.Eq("A", "1"), ast.Eq("U", "1")), false},
		{ast.OrOf(), false},
	}

	for _, test := range tests {
		t.Run(test.node.String(), func(t *testing.T) {
			require.Equal(t, test.expected, d.IsAnchor(test.node))
		})
	}
}

func TestCostOrdering(t *testing.T) {
	ordered := []Cost{
		freeCost,
		cheap(1),
		cheap(1000),
		unevaluatedCost,
		infiniteCost,
	}
	for i := range ordered {
		require.Equal(t, 0, ordered[i].Compare(ordered[i]))
		for j := i + 1; j < len(ordered); j++ {
			require.Equal(t, -1, ordered[i].Compare(ordered[j]), "%s < %s", ordered[i], ordered[j])
			require.Equal(t, 1, ordered[j].Compare(ordered[i]))
		}
	}
}

func TestCostEstimator(t *testing.T) {
	e := NewCostEstimator(testSnapshot(), DefaultCostDefaults(), nil)

	require.Equal(t, cheap(100), e.Cost(ast.Eq("A", "1")))
	require.Equal(t, cheap(10), e.Cost(ast.Eq("C", "1")))
	require.Equal(t, freeCost, e.Cost(ast.Eq("Z", "1")))
	require.Equal(t, cheap(100), e.Cost(ast.Between("C", "1", "2")))
	require.Equal(t, cheap(1000), e.Cost(ast.Matches("C", "ab.*")))
	require.Equal(t, infiniteCost, e.Cost(ast.Matches("C", ".*ab.*")))
	require.Equal(t, cheap(1000), e.Cost(ast.Matches("R", ".*ab")))
	require.Equal(t, unevaluatedCost, e.Cost(ast.Eq("U", "1")))
	require.Equal(t, cheap(110), e.Cost(ast.OrOf(ast.Eq("A", "1"), ast.Eq("B", "1"))))
	require.Equal(t, infiniteCost, e.Cost(ast.OrOf(ast.Eq("A", "1"), ast.Matches("B", ".*x.*"))))
	require.Equal(t, cheap(10), e.Cost(ast.AndOf(ast.Eq("A", "1"), ast.Eq("B", "1"))))

	// ranges estimate higher than equalities on the same field
	require.Equal(t, -1, e.Cost(ast.Eq("C", "1")).Compare(e.Cost(ast.Between("C", "1", "3"))))
	require.Len(t, e.Warnings(), 1)
}

func TestWildcards(t *testing.T) {
	tests := []struct {
		pattern  string
		leading  bool
		trailing bool
	}{
		{"abc", false, false},
		{".*abc", true, false},
		{"abc.*", false, true},
		{"^.*abc.*$", true, true},
		{".+abc.+", true, true},
		{`abc\.*`, false, false},
		{".*", true, true},
		{"(.*)foo.*", true, true},
		{".*foo(.*)", true, true},
		{"(?:.+)?foo", true, false},
		{"a?.*foo", true, false},
		{"(?:abc|.*x)", true, false},
		{".{3,}abc", true, false},
		{"abc.{2}", false, false},
		{"a{2,}bc", false, false},
		{"(", false, false},
	}
	for _, test := range tests {
		t.Run(test.pattern, func(t *testing.T) {
			leading, trailing := Wildcards(test.pattern)
			require.Equal(t, test.leading, leading)
			require.Equal(t, test.trailing, trailing)
		})
	}
}

func TestWildcardRegexCost(t *testing.T) {
	l, logs := logger.NewObserverLogger("warn")
	e := NewCostEstimator(testSnapshot(), DefaultCostDefaults(), l)

	for _, pattern := range []string{".*foo.*", "(.*)foo.*", ".*foo(.*)", "^(.+)foo(.*)$"} {
		for _, field := range []string{"A", "R", "U", "MISSING"} {
			require.Equal(t, infiniteCost, e.Cost(ast.Matches(field, pattern)), "%s =~ %s", field, pattern)
		}
	}
	// only a reverse index serves a leading wildcard
	require.Equal(t, infiniteCost, e.Cost(ast.Matches("A", "(.*)foo")))
	require.Equal(t, infiniteCost, e.Cost(ast.Matches("U", "(.*)foo")))
	require.Equal(t, cheap(1000), e.Cost(ast.Matches("R", "(.*)foo")))
	require.Equal(t, cheap(1000), e.Cost(ast.Matches("C", "foo(.*)")))

	// unbounded patterns are not estimation failures
	require.Empty(t, e.Warnings())
	require.Equal(t, unevaluatedCost, e.Cost(ast.Matches("U", "foo.*")))
	require.Equal(t, []map[string]any{
		{"term": ast.Matches("U", "foo.*").String(), "reason": "field is not indexed"},
	}, logs.Fields("cost estimation warning"))
}

func TestPlanLogsCostWarnings(t *testing.T) {
	l, logs := logger.NewObserverLogger("debug")
	query := ast.AndOf(ast.Eq("A", "1"), ast.IsNull("B"), ast.Eq("U", "2"))

	plan, err := New(WithLogger(l)).Plan(query, testSnapshot())
	require.NoError(t, err)
	require.Len(t, plan.Warnings(), 2)

	logged := logs.Fields("cost estimation warning")
	require.Len(t, logged, len(plan.Warnings()))
	for i, w := range plan.Warnings() {
		require.Equal(t, w.Term, logged[i]["term"])
		require.Equal(t, w.Reason, logged[i]["reason"])
	}
}

func TestLiteralPrefix(t *testing.T) {
	require.Equal(t, "abc", LiteralPrefix("abc.*"))
	require.Equal(t, "abc", LiteralPrefix("^abc[0-9]"))
	require.Empty(t, LiteralPrefix(".*abc"))
	require.Empty(t, LiteralPrefix("("))
}

func randomEqualityTree(r *rand.Rand, depth int) ast.Node {
	fields := []string{"A", "B", "C", "I", "Z", "AGE"}
	if depth == 0 || r.IntN(3) == 0 {
		return ast.Eq(fields[r.IntN(len(fields))], "1")
	}
	children := make([]ast.Node, 1+r.IntN(3))
	for i := range children {
		children[i] = randomEqualityTree(r, depth-1)
	}
	if r.IntN(2) == 0 {
		return ast.AndOf(children...)
	}
	return ast.OrOf(children...)
}

func TestIndexedEqualityCombinationsAreAnchors(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	d := NewAnchorDetector(testSnapshot())
	p := New()
	for range 200 {
		query := randomEqualityTree(r, 4)
		require.True(t, d.IsAnchor(query), query.String())

		_, err := p.Plan(query, testSnapshot())
		require.NoError(t, err, query.String())
	}
}

func TestInfiniteRegexUnderIntersectionIsAlwaysDelayed(t *testing.T) {
	siblings := []ast.Node{
		ast.Eq("A", "1"),
		ast.Eq("Z", "1"),
		ast.Eq("U", "1"),
		ast.Between("C", "1", "2"),
		ast.OrOf(ast.Eq("A", "1"), ast.Eq("B", "2")),
	}
	for _, fieldName := range []string{"A", "B", "R", "Z"} {
		regex := ast.Matches(fieldName, ".*x.*")
		e := NewCostEstimator(testSnapshot(), DefaultCostDefaults(), nil)
		require.Equal(t, Infinite, e.Cost(regex).Class)

		for _, sibling := range siblings {
			plan, err := New(WithFullScan(true)).Plan(ast.AndOf(sibling, regex), testSnapshot())
			require.NoError(t, err)
			and, ok := plan.Root().(*ast.And)
			if !ok {
				// full scan delays everything
				require.True(t, plan.FullScan())
				continue
			}
			require.True(t, ast.IsMarked(and.Nodes[1], ast.MarkerDelayed), plan.String())
		}
	}
}
