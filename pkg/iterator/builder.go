package iterator

import (
	"errors"
	"fmt"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/uid"
)

// ErrNotIterable is returned when a planned tree has a term that cannot be
// driven from the index where an iterator is required.
var ErrNotIterable = errors.New("term cannot be iterated")

type builder struct {
	src          Source
	ancestorJoin bool
	intersector  *uid.Intersector
}

type BuildOption func(*builder)

// WithAncestorJoin makes intersections join across the record hierarchy.
func WithAncestorJoin(intersector *uid.Intersector) BuildOption {
	return func(b *builder) {
		b.ancestorJoin = true
		b.intersector = intersector
	}
}

// Build returns the iterator tree mirroring the undelayed part of a planned
// tree. Delayed and evaluation-only terms are left to post-filtering.
func Build(root ast.Node, src Source, opts ...BuildOption) (NestedIterator, error) {
	b := &builder{src: src}
	for _, opt := range opts {
		opt(b)
	}

	it, err := b.build(root)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("%w: '%s' has no indexed term", ErrNotIterable, root)
	}
	return it, nil
}

// build returns nil for subtrees evaluated after assembly.
func (b *builder) build(n ast.Node) (NestedIterator, error) {
	switch v := n.(type) {
	case *ast.Marker:
		return nil, nil
	case *ast.Equality:
		if v.Null || v.Method != "" || !b.src.Snapshot.IsIndexed(v.Field) {
			return nil, fmt.Errorf("%w: '%s'", ErrNotIterable, v)
		}
		return NewIndexIterator(b.src, v.Field, v.Value), nil
	case *ast.Range:
		if !v.Bounded() || v.Method != "" || !b.src.Snapshot.IsIndexed(v.Field) {
			return nil, fmt.Errorf("%w: '%s'", ErrNotIterable, v)
		}
		return NewRangeIterator(b.src, v), nil
	case *ast.Regex:
		if !b.src.Snapshot.IsIndexed(v.Field) {
			return nil, fmt.Errorf("%w: '%s'", ErrNotIterable, v)
		}
		it, err := NewRegexIterator(b.src, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotIterable, err)
		}
		return it, nil
	case *ast.And:
		var children []NestedIterator
		for _, c := range v.Nodes {
			it, err := b.build(c)
			if err != nil {
				return nil, err
			}
			if it != nil {
				children = append(children, it)
			}
		}
		switch {
		case len(children) == 0:
			return nil, nil
		case len(children) == 1:
			return children[0], nil
		case b.ancestorJoin:
			return NewAncestorAndIterator(b.intersector, children...), nil
		default:
			return NewAndIterator(children...), nil
		}
	case *ast.Or:
		children := make([]NestedIterator, 0, len(v.Nodes))
		for _, c := range v.Nodes {
			it, err := b.build(c)
			if err != nil {
				return nil, err
			}
			if it == nil {
				return nil, fmt.Errorf("%w: union member '%s' has no indexed term", ErrNotIterable, c)
			}
			children = append(children, it)
		}
		return NewOrIterator(children...), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrNotIterable, n)
	}
}
