// Package ast defines the immutable predicate tree evaluated by the query
// engine. Trees are built once per query by an external front end and are
// never mutated; rewrites produce new trees.
package ast

import (
	"fmt"
	"strings"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	KindEquality Kind = iota
	KindRange
	KindRegex
	KindAnd
	KindOr
	KindNot
	KindFilterFunction
	KindMarker
)

func (k Kind) String() string {
	switch k {
	case KindEquality:
		return "eq"
	case KindRange:
		return "range"
	case KindRegex:
		return "regex"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	case KindFilterFunction:
		return "fn"
	case KindMarker:
		return "marker"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is a predicate tree node. Implementations are immutable.
type Node interface {
	Kind() Kind
	Children() []Node
	String() string
}

// Leaf is implemented by the field comparison nodes.
type Leaf interface {
	Node
	FieldName() string
}

// Equality compares a field against a literal. A Null equality compares the
// field against the null literal; a non-empty Method applies an arithmetic or
// size method (e.g. "size") to the field before comparing.
type Equality struct {
	Field  string
	Value  string
	Null   bool
	Method string
}

func (e *Equality) Kind() Kind        { return KindEquality }
func (e *Equality) Children() []Node  { return nil }
func (e *Equality) FieldName() string { return e.Field }

func (e *Equality) String() string {
	field := e.Field
	if e.Method != "" {
		field = fmt.Sprintf("%s.%s()", e.Field, e.Method)
	}
	if e.Null {
		return field + " == null"
	}
	return fmt.Sprintf("%s == %s", field, quote(e.Value))
}

// Bound is one end of a Range.
type Bound struct {
	Value     string `json:"value"`
	Inclusive bool   `json:"inclusive,omitempty"`
}

// Range compares a field against a lower and/or upper bound. A Range is
// bounded only when both ends are present.
type Range struct {
	Field  string
	Lower  *Bound
	Upper  *Bound
	Method string
}

func (r *Range) Kind() Kind        { return KindRange }
func (r *Range) Children() []Node  { return nil }
func (r *Range) FieldName() string { return r.Field }

// Bounded reports whether both ends of the range are present.
func (r *Range) Bounded() bool {
	return r.Lower != nil && r.Upper != nil
}

func (r *Range) String() string {
	field := r.Field
	if r.Method != "" {
		field = fmt.Sprintf("%s.%s()", r.Field, r.Method)
	}
	var terms []string
	if r.Lower != nil {
		op := ">"
		if r.Lower.Inclusive {
			op = ">="
		}
		terms = append(terms, fmt.Sprintf("(%s %s %s)", field, op, quote(r.Lower.Value)))
	}
	if r.Upper != nil {
		op := "<"
		if r.Upper.Inclusive {
			op = "<="
		}
		terms = append(terms, fmt.Sprintf("(%s %s %s)", field, op, quote(r.Upper.Value)))
	}
	return "(" + strings.Join(terms, " && ") + ")"
}

// Regex matches the whole normalized field value against Pattern.
type Regex struct {
	Field   string
	Pattern string
}

func (r *Regex) Kind() Kind        { return KindRegex }
func (r *Regex) Children() []Node  { return nil }
func (r *Regex) FieldName() string { return r.Field }

func (r *Regex) String() string {
	return fmt.Sprintf("%s =~ %s", r.Field, quote(r.Pattern))
}

// And is a conjunction of its children.
type And struct {
	Nodes []Node
}

func (a *And) Kind() Kind       { return KindAnd }
func (a *And) Children() []Node { return a.Nodes }
func (a *And) String() string   { return join(a.Nodes, " && ") }

// Or is a disjunction of its children.
type Or struct {
	Nodes []Node
}

func (o *Or) Kind() Kind       { return KindOr }
func (o *Or) Children() []Node { return o.Nodes }
func (o *Or) String() string   { return join(o.Nodes, " || ") }

// Not negates its child.
type Not struct {
	Node Node
}

func (n *Not) Kind() Kind       { return KindNot }
func (n *Not) Children() []Node { return []Node{n.Node} }
func (n *Not) String() string   { return "!(" + n.Node.String() + ")" }

// FilterFunction is a named function evaluated against an assembled record.
// Filter functions can never drive index iteration.
type FilterFunction struct {
	Name   string
	Fields []string
	Args   []string
}

func (f *FilterFunction) Kind() Kind       { return KindFilterFunction }
func (f *FilterFunction) Children() []Node { return nil }

func (f *FilterFunction) String() string {
	params := make([]string, 0, len(f.Fields)+len(f.Args))
	params = append(params, f.Fields...)
	for _, arg := range f.Args {
		params = append(params, quote(arg))
	}
	return fmt.Sprintf("filter:%s(%s)", f.Name, strings.Join(params, ", "))
}

// MarkerKind identifies the annotation a Marker places on its child.
type MarkerKind int

const (
	// MarkerDelayed defers the child to evaluation against an assembled record.
	MarkerDelayed MarkerKind = iota
	// MarkerEvaluationOnly is a front-end hint that the child must never drive
	// index iteration.
	MarkerEvaluationOnly
)

func (m MarkerKind) String() string {
	switch m {
	case MarkerDelayed:
		return "delayed"
	case MarkerEvaluationOnly:
		return "evaluation_only"
	default:
		return fmt.Sprintf("MarkerKind(%d)", int(m))
	}
}

// Marker annotates its child without changing its boolean meaning.
type Marker struct {
	MarkerKind MarkerKind
	Node       Node
}

func (m *Marker) Kind() Kind       { return KindMarker }
func (m *Marker) Children() []Node { return []Node{m.Node} }

func (m *Marker) String() string {
	switch m.MarkerKind {
	case MarkerDelayed:
		return "((_Delayed_ = true) && (" + m.Node.String() + "))"
	case MarkerEvaluationOnly:
		return "((_Eval_ = true) && (" + m.Node.String() + "))"
	default:
		return m.Node.String()
	}
}

func join(nodes []Node, sep string) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, n.String())
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// IsMarked reports whether n is a Marker of the given kind.
func IsMarked(n Node, kind MarkerKind) bool {
	m, ok := n.(*Marker)
	return ok && m.MarkerKind == kind
}

// Unwrap strips any markers wrapping n.
func Unwrap(n Node) Node {
	for {
		m, ok := n.(*Marker)
		if !ok {
			return n
		}
		n = m.Node
	}
}

// Fields returns the distinct field names referenced by n, in first-seen order.
func Fields(n Node) []string {
	seen := map[string]struct{}{}
	var fields []string
	add := func(f string) {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			fields = append(fields, f)
		}
	}
	Walk(n, func(node Node) {
		switch v := node.(type) {
		case Leaf:
			add(v.FieldName())
		case *FilterFunction:
			for _, f := range v.Fields {
				add(f)
			}
		}
	})
	return fields
}

// Walk calls fn for n and every descendant of n in depth-first pre-order.
func Walk(n Node, fn func(Node)) {
	fn(n)
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}
