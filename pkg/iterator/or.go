package iterator

import (
	"context"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

// OrIterator merges its children. A key reached by several children is
// returned once.
type OrIterator struct {
	cursor
	children []NestedIterator
	heads    []keys.DocKey
	live     []bool
}

var (
	_ NestedIterator = (*OrIterator)(nil)
	_ Seekable       = (*OrIterator)(nil)
)

func NewOrIterator(children ...NestedIterator) *OrIterator {
	live := make([]bool, len(children))
	for i := range live {
		live[i] = true
	}
	return &OrIterator{
		children: children,
		heads:    make([]keys.DocKey, len(children)),
		live:     live,
	}
}

func (o *OrIterator) Initialize(ctx context.Context) error {
	if err := initializeAll(ctx, o.children); err != nil {
		return err
	}
	if _, err := o.Move(ctx, ""); err != nil && !isDone(err) {
		return err
	}
	return nil
}

func (o *OrIterator) Move(ctx context.Context, minimum keys.DocKey) (keys.DocKey, error) {
	if o.done {
		return o.exhausted()
	}
	target := o.target(minimum)
	if o.settled(target) {
		return o.key, nil
	}

	var (
		lowest keys.DocKey
		found  bool
	)
	for i, c := range o.children {
		if !o.live[i] {
			continue
		}
		if err := interrupted(ctx); err != nil {
			return "", err
		}
		k, err := c.Move(ctx, target)
		if err != nil {
			if isDone(err) {
				o.live[i] = false
				continue
			}
			return "", err
		}
		o.heads[i] = k
		if !found || k < lowest {
			lowest = k
			found = true
		}
	}
	if !found {
		return o.finish()
	}
	return o.land(lowest)
}

func (o *OrIterator) Head(ctx context.Context) (keys.DocKey, error) {
	return o.Move(ctx, "")
}

func (o *OrIterator) Next(ctx context.Context) (keys.DocKey, error) {
	return o.next(ctx, o.Head)
}

func (o *OrIterator) Seek(ctx context.Context, r storage.Range) error {
	o.seek(r)
	for _, c := range o.children {
		if err := Seek(ctx, c, r); err != nil {
			return err
		}
	}
	return nil
}

// Document merges the contributions of the children positioned exactly on
// the current key.
func (o *OrIterator) Document() *document.Document {
	k, ok := o.current()
	if !ok {
		return nil
	}
	var docs []*document.Document
	for i, c := range o.children {
		if o.live[i] && o.heads[i] == k {
			docs = append(docs, c.Document())
		}
	}
	return document.Merge(k, docs...)
}

func (o *OrIterator) Leaves() []NestedIterator { return leavesOf(o.children) }

func (o *OrIterator) Children() []NestedIterator { return o.children }

func (o *OrIterator) Stop() { stopAll(o.children) }

func (o *OrIterator) String() string {
	return "OR(" + names(o.children) + ")"
}
