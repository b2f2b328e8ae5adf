package iterator

import (
	"context"
	"strings"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

// AndIterator intersects its children by leapfrogging: every child is moved
// to the largest key seen so far until all of them agree.
type AndIterator struct {
	cursor
	children []NestedIterator
}

var (
	_ NestedIterator = (*AndIterator)(nil)
	_ Seekable       = (*AndIterator)(nil)
)

func NewAndIterator(children ...NestedIterator) *AndIterator {
	return &AndIterator{children: children}
}

func (a *AndIterator) Initialize(ctx context.Context) error {
	if err := initializeAll(ctx, a.children); err != nil {
		return err
	}
	if _, err := a.Move(ctx, ""); err != nil && !isDone(err) {
		return err
	}
	return nil
}

func (a *AndIterator) Move(ctx context.Context, minimum keys.DocKey) (keys.DocKey, error) {
	if a.done {
		return a.exhausted()
	}
	target := a.target(minimum)
	if a.settled(target) {
		return a.key, nil
	}
	if len(a.children) == 0 {
		return a.finish()
	}

	for {
		if err := interrupted(ctx); err != nil {
			return "", err
		}

		agreed := true
		for _, c := range a.children {
			k, err := c.Move(ctx, target)
			if err != nil {
				if isDone(err) {
					return a.finish()
				}
				return "", err
			}
			if k > target {
				target = k
				agreed = false
			}
		}
		if agreed {
			return a.land(target)
		}
	}
}

func (a *AndIterator) Head(ctx context.Context) (keys.DocKey, error) {
	return a.Move(ctx, "")
}

func (a *AndIterator) Next(ctx context.Context) (keys.DocKey, error) {
	return a.next(ctx, a.Head)
}

func (a *AndIterator) Seek(ctx context.Context, r storage.Range) error {
	a.seek(r)
	for _, c := range a.children {
		if err := Seek(ctx, c, r); err != nil {
			return err
		}
	}
	return nil
}

// Document merges the contributions of every child, all positioned on the
// current key.
func (a *AndIterator) Document() *document.Document {
	k, ok := a.current()
	if !ok {
		return nil
	}
	docs := make([]*document.Document, len(a.children))
	for i, c := range a.children {
		docs[i] = c.Document()
	}
	return document.Merge(k, docs...)
}

func (a *AndIterator) Leaves() []NestedIterator { return leavesOf(a.children) }

func (a *AndIterator) Children() []NestedIterator { return a.children }

func (a *AndIterator) Stop() { stopAll(a.children) }

func (a *AndIterator) String() string {
	return "AND(" + names(a.children) + ")"
}

func names(children []NestedIterator) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
