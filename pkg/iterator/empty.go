package iterator

import (
	"context"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

// EmptyIterator yields nothing. Plans proven to match no document use it.
type EmptyIterator struct{}

var _ NestedIterator = EmptyIterator{}

func NewEmptyIterator() EmptyIterator { return EmptyIterator{} }

func (EmptyIterator) Initialize(context.Context) error { return nil }

func (EmptyIterator) Move(context.Context, keys.DocKey) (keys.DocKey, error) {
	return "", storage.ErrIteratorDone
}

func (EmptyIterator) Head(context.Context) (keys.DocKey, error) {
	return "", storage.ErrIteratorDone
}

func (EmptyIterator) Next(context.Context) (keys.DocKey, error) {
	return "", storage.ErrIteratorDone
}

func (EmptyIterator) Document() *document.Document { return nil }

func (EmptyIterator) Leaves() []NestedIterator { return nil }

func (EmptyIterator) Children() []NestedIterator { return nil }

func (EmptyIterator) Stop() {}

func (EmptyIterator) String() string { return "EMPTY" }
