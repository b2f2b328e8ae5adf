// Package iterator implements the nested iterator tree driving a query over
// one shard. Every node yields document keys in ascending order; composites
// intersect or merge their children with leapfrog semantics.
package iterator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

//go:generate mockgen -source iterator.go -destination ../../internal/mocks/mock_nested_iterator.go -package mocks

// ErrInterrupted is returned when the context of a scan is cancelled while
// iterators merge their children. Results produced so far remain valid.
var ErrInterrupted = errors.New("iteration interrupted")

// NestedIterator is a cursor over the document keys of one shard.
//
// Head, Move and Next position the iterator; Document returns the
// contribution of the key they last returned. Exhaustion is reported with
// storage.ErrIteratorDone. An iterator never moves backwards.
type NestedIterator interface {
	// Initialize establishes the first candidate position.
	Initialize(ctx context.Context) error
	// Move advances to the first key greater than or equal to minimum.
	Move(ctx context.Context, minimum keys.DocKey) (keys.DocKey, error)
	// Head returns the current key without advancing.
	Head(ctx context.Context) (keys.DocKey, error)
	// Next returns the current key and advances past it.
	Next(ctx context.Context) (keys.DocKey, error)
	// Document returns the partial document contributed at the current key,
	// or nil.
	Document() *document.Document
	Leaves() []NestedIterator
	Children() []NestedIterator
	// Stop releases store handles. It is safe to call more than once.
	Stop()
	String() string
}

// Seekable iterators accept a key range restricting what they return.
type Seekable interface {
	Seek(ctx context.Context, r storage.Range) error
}

// Seek pushes r to it when it is seekable, else to its seekable
// descendants.
func Seek(ctx context.Context, it NestedIterator, r storage.Range) error {
	if s, ok := it.(Seekable); ok {
		return s.Seek(ctx, r)
	}
	for _, c := range it.Children() {
		if err := Seek(ctx, c, r); err != nil {
			return err
		}
	}
	return nil
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

// cursor holds the position shared by every iterator kind.
type cursor struct {
	key        keys.DocKey
	positioned bool
	done       bool
	// floor is the lowest key Head may return, raised past each key Next
	// hands out.
	floor  keys.DocKey
	bounds storage.Range
}

// target is the key a Move(minimum) has to reach.
func (c *cursor) target(minimum keys.DocKey) keys.DocKey {
	t := max(minimum, c.floor)
	if start := keys.DocKey(c.bounds.Start); start > t {
		t = start
	}
	return t
}

func (c *cursor) settled(target keys.DocKey) bool {
	return c.positioned && c.key >= target
}

func (c *cursor) land(k keys.DocKey) (keys.DocKey, error) {
	if c.bounds.End != nil && k >= keys.DocKey(c.bounds.End) {
		return c.finish()
	}
	c.key = k
	c.positioned = true
	return k, nil
}

func (c *cursor) finish() (keys.DocKey, error) {
	c.done = true
	c.positioned = false
	return "", storage.ErrIteratorDone
}

func (c *cursor) exhausted() (keys.DocKey, error) {
	return "", storage.ErrIteratorDone
}

// seek records r and drops a position that now falls before it.
func (c *cursor) seek(r storage.Range) {
	c.bounds = r
	if c.positioned && c.key < keys.DocKey(r.Start) {
		c.positioned = false
	}
}

// current returns the key Document refers to.
func (c *cursor) current() (keys.DocKey, bool) {
	return c.key, c.positioned
}

// next implements Next on top of a head function.
func (c *cursor) next(ctx context.Context, head func(context.Context) (keys.DocKey, error)) (keys.DocKey, error) {
	k, err := head(ctx)
	if err != nil {
		return "", err
	}
	c.floor = k.Successor()
	return k, nil
}

func leavesOf(children []NestedIterator) []NestedIterator {
	var leaves []NestedIterator
	for _, c := range children {
		leaves = append(leaves, c.Leaves()...)
	}
	return leaves
}

func initializeAll(ctx context.Context, children []NestedIterator) error {
	for _, c := range children {
		if err := c.Initialize(ctx); err != nil {
			return err
		}
	}
	return nil
}

func stopAll(children []NestedIterator) {
	for _, c := range children {
		c.Stop()
	}
}

func isDone(err error) bool {
	return errors.Is(err, storage.ErrIteratorDone)
}
