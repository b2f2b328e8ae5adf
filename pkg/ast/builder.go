package ast

import "slices"

// Eq returns FIELD == value.
func Eq(field, value string) *Equality {
	return &Equality{Field: field, Value: value}
}

// IsNull returns FIELD == null.
func IsNull(field string) *Equality {
	return &Equality{Field: field, Null: true}
}

// MethodEq returns FIELD.method() == value.
func MethodEq(field, method, value string) *Equality {
	return &Equality{Field: field, Method: method, Value: value}
}

// Between returns lower <= FIELD <= upper.
func Between(field, lower, upper string) *Range {
	return &Range{
		Field: field,
		Lower: &Bound{Value: lower, Inclusive: true},
		Upper: &Bound{Value: upper, Inclusive: true},
	}
}

// GreaterThan returns FIELD > value (or >= when inclusive). The result is an
// unbounded range.
func GreaterThan(field, value string, inclusive bool) *Range {
	return &Range{Field: field, Lower: &Bound{Value: value, Inclusive: inclusive}}
}

// LessThan returns FIELD < value (or <= when inclusive). The result is an
// unbounded range.
func LessThan(field, value string, inclusive bool) *Range {
	return &Range{Field: field, Upper: &Bound{Value: value, Inclusive: inclusive}}
}

// Matches returns FIELD =~ pattern.
func Matches(field, pattern string) *Regex {
	return &Regex{Field: field, Pattern: pattern}
}

// AndOf returns the conjunction of nodes.
func AndOf(nodes ...Node) *And {
	return &And{Nodes: slices.Clone(nodes)}
}

// OrOf returns the disjunction of nodes.
func OrOf(nodes ...Node) *Or {
	return &Or{Nodes: slices.Clone(nodes)}
}

// NotOf returns the negation of n.
func NotOf(n Node) *Not {
	return &Not{Node: n}
}

// Filter returns a filter function call.
func Filter(name string, fields []string, args ...string) *FilterFunction {
	return &FilterFunction{Name: name, Fields: slices.Clone(fields), Args: slices.Clone(args)}
}

// Delayed wraps n in a MarkerDelayed marker. Already delayed nodes are
// returned unchanged.
func Delayed(n Node) Node {
	if IsMarked(n, MarkerDelayed) {
		return n
	}
	return &Marker{MarkerKind: MarkerDelayed, Node: n}
}

// EvaluationOnly wraps n in a MarkerEvaluationOnly marker.
func EvaluationOnly(n Node) Node {
	return &Marker{MarkerKind: MarkerEvaluationOnly, Node: n}
}

// WithChildren returns a copy of n with its children replaced. Leaves are
// returned as-is.
func WithChildren(n Node, children []Node) Node {
	switch v := n.(type) {
	case *And:
		return AndOf(children...)
	case *Or:
		return OrOf(children...)
	case *Not:
		return NotOf(children[0])
	case *Marker:
		return &Marker{MarkerKind: v.MarkerKind, Node: children[0]}
	default:
		return n
	}
}

// Rewrite applies fn bottom-up over n and returns the new tree. fn receives a
// node whose children have already been rewritten. n itself is untouched.
func Rewrite(n Node, fn func(Node) Node) Node {
	children := n.Children()
	if len(children) > 0 {
		rewritten := make([]Node, len(children))
		for i, c := range children {
			rewritten[i] = Rewrite(c, fn)
		}
		n = WithChildren(n, rewritten)
	}
	return fn(n)
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case *Equality:
		return *av == *b.(*Equality)
	case *Range:
		bv := b.(*Range)
		return av.Field == bv.Field && av.Method == bv.Method &&
			boundEqual(av.Lower, bv.Lower) && boundEqual(av.Upper, bv.Upper)
	case *Regex:
		return *av == *b.(*Regex)
	case *FilterFunction:
		bv := b.(*FilterFunction)
		return av.Name == bv.Name && slices.Equal(av.Fields, bv.Fields) && slices.Equal(av.Args, bv.Args)
	case *Marker:
		if av.MarkerKind != b.(*Marker).MarkerKind {
			return false
		}
	}
	ac, bc := a.Children(), b.Children()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		if !Equal(ac[i], bc[i]) {
			return false
		}
	}
	return true
}

func boundEqual(a, b *Bound) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
