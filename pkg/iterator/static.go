package iterator

import (
	"context"
	"slices"
	"sort"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

// StaticIterator iterates a fixed set of keys held in memory.
type StaticIterator struct {
	cursor
	name string
	keys []keys.DocKey
	docs map[keys.DocKey]*document.Document
}

var (
	_ NestedIterator = (*StaticIterator)(nil)
	_ Seekable       = (*StaticIterator)(nil)
)

// NewStaticIterator returns an iterator over ks, sorted and deduplicated.
// docs holds the optional contribution of each key.
func NewStaticIterator(name string, ks []keys.DocKey, docs map[keys.DocKey]*document.Document) *StaticIterator {
	sorted := slices.Clone(ks)
	slices.Sort(sorted)
	return &StaticIterator{
		name: name,
		keys: slices.Compact(sorted),
		docs: docs,
	}
}

func (s *StaticIterator) Initialize(ctx context.Context) error {
	if _, err := s.Move(ctx, ""); err != nil && !isDone(err) {
		return err
	}
	return nil
}

func (s *StaticIterator) Move(_ context.Context, minimum keys.DocKey) (keys.DocKey, error) {
	if s.done {
		return s.exhausted()
	}
	target := s.target(minimum)
	if s.settled(target) {
		return s.key, nil
	}
	i := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= target })
	if i == len(s.keys) {
		return s.finish()
	}
	return s.land(s.keys[i])
}

func (s *StaticIterator) Head(ctx context.Context) (keys.DocKey, error) {
	return s.Move(ctx, "")
}

func (s *StaticIterator) Next(ctx context.Context) (keys.DocKey, error) {
	return s.next(ctx, s.Head)
}

func (s *StaticIterator) Seek(_ context.Context, r storage.Range) error {
	s.seek(r)
	return nil
}

func (s *StaticIterator) Document() *document.Document {
	k, ok := s.current()
	if !ok {
		return nil
	}
	return s.docs[k]
}

func (s *StaticIterator) Leaves() []NestedIterator { return []NestedIterator{s} }

func (s *StaticIterator) Children() []NestedIterator { return nil }

func (s *StaticIterator) Stop() {}

func (s *StaticIterator) String() string { return s.name }
