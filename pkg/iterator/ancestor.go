package iterator

import (
	"context"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/uid"
)

// AncestorAndIterator intersects children whose matches may sit on
// different levels of a record hierarchy. A key of one child joins a key of
// another when they are equal or one is an ancestor of the other; the more
// specific key is returned.
//
// The children are drained on initialization, so the iterator holds the
// matching keys of the whole shard in memory.
type AncestorAndIterator struct {
	children    []NestedIterator
	intersector *uid.Intersector
	result      *StaticIterator
	bounds      *storage.Range
}

var (
	_ NestedIterator = (*AncestorAndIterator)(nil)
	_ Seekable       = (*AncestorAndIterator)(nil)
)

func NewAncestorAndIterator(intersector *uid.Intersector, children ...NestedIterator) *AncestorAndIterator {
	if intersector == nil {
		intersector = uid.NewIntersector()
	}
	return &AncestorAndIterator{children: children, intersector: intersector}
}

func (a *AncestorAndIterator) Initialize(ctx context.Context) error {
	if a.result != nil {
		return nil
	}
	if err := initializeAll(ctx, a.children); err != nil {
		return err
	}

	contributions := map[keys.DocKey]*document.Document{}
	var joined []uid.Tagged
	for i, c := range a.children {
		tagged, err := drain(ctx, c, contributions)
		if err != nil {
			return err
		}
		if i == 0 {
			joined = tagged
		} else {
			joined = a.intersector.Intersect(joined, tagged)
		}
		if len(joined) == 0 {
			break
		}
	}

	ks := make([]keys.DocKey, len(joined))
	docs := make(map[keys.DocKey]*document.Document, len(joined))
	for i, t := range joined {
		k := keys.DocKey(t.UID)
		ks[i] = k
		doc := lineage(k, contributions)
		if doc == nil {
			doc = document.New(k)
		}
		doc.Provenance = t.Provenance
		docs[k] = doc
	}

	a.result = NewStaticIterator(a.String(), ks, docs)
	if a.bounds != nil {
		a.result.seek(*a.bounds)
	}
	return a.result.Initialize(ctx)
}

// drain reads every key of c, collecting its contributions.
func drain(ctx context.Context, c NestedIterator, contributions map[keys.DocKey]*document.Document) ([]uid.Tagged, error) {
	defer c.Stop()

	name := c.String()
	var tagged []uid.Tagged
	for {
		if err := interrupted(ctx); err != nil {
			return nil, err
		}
		k, err := c.Next(ctx)
		if err != nil {
			if isDone(err) {
				return tagged, nil
			}
			return nil, err
		}
		tagged = append(tagged, uid.Tagged{UID: string(k), Provenance: []string{name}})
		if doc := c.Document(); doc != nil {
			if existing, ok := contributions[k]; ok {
				existing.Merge(doc)
			} else {
				contributions[k] = doc
			}
		}
	}
}

// lineage merges the contributions made to k and to its ancestors under
// the key k.
func lineage(k keys.DocKey, contributions map[keys.DocKey]*document.Document) *document.Document {
	docs := []*document.Document{contributions[k]}
	dataType := k.DataType()
	for _, ancestor := range uid.Ancestors(k.UID()) {
		docs = append(docs, contributions[keys.NewDocKey(dataType, ancestor)])
	}
	return document.Merge(k, docs...)
}

func (a *AncestorAndIterator) ensure(ctx context.Context) error {
	if a.result == nil {
		return a.Initialize(ctx)
	}
	return nil
}

func (a *AncestorAndIterator) Move(ctx context.Context, minimum keys.DocKey) (keys.DocKey, error) {
	if err := a.ensure(ctx); err != nil {
		return "", err
	}
	return a.result.Move(ctx, minimum)
}

func (a *AncestorAndIterator) Head(ctx context.Context) (keys.DocKey, error) {
	if err := a.ensure(ctx); err != nil {
		return "", err
	}
	return a.result.Head(ctx)
}

func (a *AncestorAndIterator) Next(ctx context.Context) (keys.DocKey, error) {
	if err := a.ensure(ctx); err != nil {
		return "", err
	}
	return a.result.Next(ctx)
}

// Seek applies r to the joined keys. Children are not restricted because an
// ancestor outside r can still join a descendant inside it.
func (a *AncestorAndIterator) Seek(_ context.Context, r storage.Range) error {
	a.bounds = &r
	if a.result != nil {
		a.result.seek(r)
	}
	return nil
}

func (a *AncestorAndIterator) Document() *document.Document {
	if a.result == nil {
		return nil
	}
	return a.result.Document()
}

func (a *AncestorAndIterator) Leaves() []NestedIterator { return leavesOf(a.children) }

func (a *AncestorAndIterator) Children() []NestedIterator { return a.children }

func (a *AncestorAndIterator) Stop() { stopAll(a.children) }

func (a *AncestorAndIterator) String() string {
	return "ANCESTOR_AND(" + names(a.children) + ")"
}
