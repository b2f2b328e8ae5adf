// Package eval evaluates predicate trees against assembled documents. The
// tree is compiled once per query into a closure tree that is safe to share
// across shard scans.
package eval

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/iterator"
	"github.com/shardquery/shardquery/pkg/metadata"
)

const (
	MethodSize   = "size"
	MethodLength = "length"
)

type predicate func(doc *document.Document) (bool, error)

// Evaluator decides whether a document satisfies a query.
type Evaluator struct {
	query ast.Node
	match predicate
}

// Compile compiles query. Markers are transparent: a document satisfies the
// query when it satisfies every term, whether the term drove iteration or
// not. Literals are normalized with the field normalizers of snapshot;
// literals a normalizer rejects are compared against raw values.
func Compile(query ast.Node, snapshot *metadata.Snapshot) (*Evaluator, error) {
	if query == nil {
		return nil, &CompilationError{Cause: fmt.Errorf("empty query")}
	}
	c := &compiler{snapshot: snapshot}
	match, err := c.compile(query)
	if err != nil {
		return nil, err
	}
	return &Evaluator{query: query, match: match}, nil
}

// Evaluate reports whether doc satisfies the query. A nil document
// satisfies nothing.
func (e *Evaluator) Evaluate(doc *document.Document) (bool, error) {
	if doc == nil {
		return false, nil
	}
	return e.match(doc)
}

func (e *Evaluator) String() string {
	return e.query.String()
}

type compiler struct {
	snapshot *metadata.Snapshot
}

func (c *compiler) compile(n ast.Node) (predicate, error) {
	switch v := n.(type) {
	case *ast.Marker:
		return c.compile(v.Node)
	case *ast.And:
		children, err := c.compileAll(v.Nodes)
		if err != nil {
			return nil, err
		}
		return and(children), nil
	case *ast.Or:
		children, err := c.compileAll(v.Nodes)
		if err != nil {
			return nil, err
		}
		return or(children), nil
	case *ast.Not:
		child, err := c.compile(v.Node)
		if err != nil {
			return nil, err
		}
		return func(doc *document.Document) (bool, error) {
			ok, err := child(doc)
			if err != nil {
				return false, err
			}
			return !ok, nil
		}, nil
	case *ast.Equality:
		return c.equality(v)
	case *ast.Range:
		return c.rangeOf(v)
	case *ast.Regex:
		return c.regex(v)
	case *ast.FilterFunction:
		return c.function(v)
	default:
		return nil, &CompilationError{Node: n.String(), Cause: fmt.Errorf("unsupported node kind %s", n.Kind())}
	}
}

func (c *compiler) compileAll(nodes []ast.Node) ([]predicate, error) {
	out := make([]predicate, len(nodes))
	for i, n := range nodes {
		p, err := c.compile(n)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// and is false as soon as one child is false, even when another child
// failed.
func and(children []predicate) predicate {
	return func(doc *document.Document) (bool, error) {
		var firstErr error
		for _, child := range children {
			ok, err := child(doc)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if !ok {
				return false, nil
			}
		}
		return firstErr == nil, firstErr
	}
}

// or is true as soon as one child is true, even when another child failed.
func or(children []predicate) predicate {
	return func(doc *document.Document) (bool, error) {
		var firstErr error
		for _, child := range children {
			ok, err := child(doc)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, firstErr
	}
}

// literal is a comparison operand together with the attribute side it is
// compared with.
type literal struct {
	value string
	raw   bool
}

func (l literal) of(a document.Attribute) string {
	if l.raw {
		return a.Raw
	}
	return a.Normalized
}

func (c *compiler) literal(field, value string) literal {
	normalized, err := c.snapshot.Normalizer(field).Normalize(value)
	if err != nil {
		return literal{value: value, raw: true}
	}
	return literal{value: normalized}
}

func (c *compiler) equality(eq *ast.Equality) (predicate, error) {
	field := eq.Field
	if eq.Null {
		if eq.Method != "" {
			return nil, &CompilationError{Node: eq.String(), Cause: fmt.Errorf("method %s cannot be compared with null", eq.Method)}
		}
		return func(doc *document.Document) (bool, error) {
			return len(doc.Get(field)) == 0, nil
		}, nil
	}
	if eq.Method != "" {
		measure, err := method(eq, eq.Method)
		if err != nil {
			return nil, err
		}
		want, err := strconv.ParseFloat(eq.Value, 64)
		if err != nil {
			return nil, &CompilationError{Node: eq.String(), Cause: err}
		}
		return func(doc *document.Document) (bool, error) {
			for _, n := range measure(doc.Get(field)) {
				if n == want {
					return true, nil
				}
			}
			return false, nil
		}, nil
	}

	lit := c.literal(field, eq.Value)
	return func(doc *document.Document) (bool, error) {
		for _, a := range doc.Get(field) {
			if lit.of(a) == lit.value {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

// method returns the measurements a method takes of a field's values.
func method(n ast.Node, name string) (func([]document.Attribute) []float64, error) {
	switch name {
	case MethodSize:
		return func(attrs []document.Attribute) []float64 {
			return []float64{float64(len(attrs))}
		}, nil
	case MethodLength:
		return func(attrs []document.Attribute) []float64 {
			out := make([]float64, len(attrs))
			for i, a := range attrs {
				out[i] = float64(utf8.RuneCountInString(a.Raw))
			}
			return out
		}, nil
	default:
		return nil, &CompilationError{Node: n.String(), Cause: fmt.Errorf("unknown method '%s'", name)}
	}
}

func (c *compiler) rangeOf(r *ast.Range) (predicate, error) {
	if r.Lower == nil && r.Upper == nil {
		return nil, &CompilationError{Node: r.String(), Cause: fmt.Errorf("range without bounds")}
	}
	field := r.Field

	if r.Method != "" {
		measure, err := method(r, r.Method)
		if err != nil {
			return nil, err
		}
		var lower, upper *numericBound
		for _, b := range []struct {
			in  *ast.Bound
			out **numericBound
		}{{r.Lower, &lower}, {r.Upper, &upper}} {
			if b.in == nil {
				continue
			}
			v, err := strconv.ParseFloat(b.in.Value, 64)
			if err != nil {
				return nil, &CompilationError{Node: r.String(), Cause: err}
			}
			*b.out = &numericBound{value: v, inclusive: b.in.Inclusive}
		}
		return func(doc *document.Document) (bool, error) {
			for _, n := range measure(doc.Get(field)) {
				if within(n, lower, upper) {
					return true, nil
				}
			}
			return false, nil
		}, nil
	}

	var lower, upper *literalBound
	if r.Lower != nil {
		lower = &literalBound{literal: c.literal(field, r.Lower.Value), inclusive: r.Lower.Inclusive}
	}
	if r.Upper != nil {
		upper = &literalBound{literal: c.literal(field, r.Upper.Value), inclusive: r.Upper.Inclusive}
	}
	return func(doc *document.Document) (bool, error) {
		for _, a := range doc.Get(field) {
			if lower.admits(a, 1) && upper.admits(a, -1) {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

type numericBound struct {
	value     float64
	inclusive bool
}

func within(n float64, lower, upper *numericBound) bool {
	if lower != nil && (n < lower.value || (n == lower.value && !lower.inclusive)) {
		return false
	}
	if upper != nil && (n > upper.value || (n == upper.value && !upper.inclusive)) {
		return false
	}
	return true
}

type literalBound struct {
	literal
	inclusive bool
}

// admits reports whether a lies on the side of b given by sign: 1 for a
// lower bound, -1 for an upper bound. A nil bound admits everything.
func (b *literalBound) admits(a document.Attribute, sign int) bool {
	if b == nil {
		return true
	}
	v := b.of(a)
	switch {
	case v == b.value:
		return b.inclusive
	case sign > 0:
		return v > b.value
	default:
		return v < b.value
	}
}

func (c *compiler) regex(r *ast.Regex) (predicate, error) {
	re, err := iterator.CompileFullMatch(r.Pattern, c.snapshot.Normalizer(r.Field).RegexFlags())
	if err != nil {
		return nil, &CompilationError{Node: r.String(), Cause: err}
	}
	field := r.Field
	return func(doc *document.Document) (bool, error) {
		for _, a := range doc.Get(field) {
			if re.MatchString(a.Normalized) {
				return true, nil
			}
		}
		return false, nil
	}, nil
}
