//go:generate mockgen -source iterators.go -destination ../../internal/mocks/mock_iterators.go -package mocks

package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/shardquery/shardquery/pkg/visibility"
)

type Iterator[T any] interface {
	// Next will return the next available item. Once exhausted it returns
	// ErrIteratorDone.
	Next(ctx context.Context) (T, error)
	// Head will return the next available item without advancing.
	Head(ctx context.Context) (T, error)
	// Stop terminates iteration over the underlying iterator. It is safe to
	// call more than once.
	Stop()
}

type emptyIterator[T any] struct{}

// NewEmptyIterator returns an iterator with no items.
func NewEmptyIterator[T any]() Iterator[T] {
	return emptyIterator[T]{}
}

func (emptyIterator[T]) Next(context.Context) (T, error) {
	var zero T
	return zero, ErrIteratorDone
}

func (emptyIterator[T]) Head(context.Context) (T, error) {
	var zero T
	return zero, ErrIteratorDone
}

func (emptyIterator[T]) Stop() {}

type staticIterator[T any] struct {
	items []T
	mu    sync.Mutex
}

// NewStaticIterator returns an iterator over the provided slice.
func NewStaticIterator[T any](items []T) Iterator[T] {
	return &staticIterator[T]{items: items}
}

func (s *staticIterator[T]) Next(ctx context.Context) (T, error) {
	var val T
	if ctx.Err() != nil {
		return val, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return val, ErrIteratorDone
	}
	next := s.items[0]
	s.items = s.items[1:]
	return next, nil
}

func (s *staticIterator[T]) Head(ctx context.Context) (T, error) {
	var val T
	if ctx.Err() != nil {
		return val, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return val, ErrIteratorDone
	}
	return s.items[0], nil
}

func (s *staticIterator[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// FilterFunc reports whether an item should be returned.
type FilterFunc[T any] func(T) bool

type filteredIterator[T any] struct {
	iter   Iterator[T]
	filter FilterFunc[T]
}

// NewFilteredIterator returns an iterator that skips every item the filter
// rejects.
func NewFilteredIterator[T any](iter Iterator[T], filter FilterFunc[T]) Iterator[T] {
	return &filteredIterator[T]{iter: iter, filter: filter}
}

func (f *filteredIterator[T]) Next(ctx context.Context) (T, error) {
	for {
		item, err := f.iter.Next(ctx)
		if err != nil {
			return item, err
		}
		if f.filter(item) {
			return item, nil
		}
	}
}

func (f *filteredIterator[T]) Head(ctx context.Context) (T, error) {
	for {
		item, err := f.iter.Head(ctx)
		if err != nil {
			return item, err
		}
		if f.filter(item) {
			return item, nil
		}
		// discard the rejected head
		if _, err := f.iter.Next(ctx); err != nil {
			return item, err
		}
	}
}

func (f *filteredIterator[T]) Stop() {
	f.iter.Stop()
}

// NewVisibilityFilteredIterator returns an iterator over the entries of iter
// that pass every filter. Entries with a malformed visibility expression are
// never returned.
func NewVisibilityFilteredIterator(iter EntryIterator, filters []visibility.Filter) EntryIterator {
	return NewFilteredIterator(iter, func(e Entry) bool {
		visible, err := visibility.Visible(filters, e.Visibility)
		return err == nil && visible
	})
}

// Collect drains iter and stops it.
func Collect[T any](ctx context.Context, iter Iterator[T]) ([]T, error) {
	defer iter.Stop()
	var items []T
	for {
		item, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return items, nil
			}
			return nil, err
		}
		items = append(items, item)
	}
}
