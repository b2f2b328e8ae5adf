package iterator

import (
	"context"
	"fmt"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

// maxLinearSkips bounds how many entries a streaming leaf reads while
// catching up with a Move before it reopens its scan at the target.
const maxLinearSkips = 16

// IndexIterator streams the postings of one field == value pair.
type IndexIterator struct {
	cursor
	src       Source
	field     string
	value     string
	typeName  string
	indexOnly bool
	prefix    []byte

	scan       storage.EntryIterator
	visibility string
}

var (
	_ NestedIterator = (*IndexIterator)(nil)
	_ Seekable       = (*IndexIterator)(nil)
)

// NewIndexIterator returns a leaf over the postings of field == normalized.
func NewIndexIterator(src Source, field, normalized string) *IndexIterator {
	return &IndexIterator{
		src:       src,
		field:     field,
		value:     normalized,
		typeName:  src.Snapshot.Normalizer(field).Name(),
		indexOnly: src.Snapshot.IsIndexOnly(field),
		prefix:    keys.FieldIndexValuePrefix(field, normalized),
	}
}

func (it *IndexIterator) Initialize(ctx context.Context) error {
	if _, err := it.Move(ctx, ""); err != nil && !isDone(err) {
		return err
	}
	return nil
}

func (it *IndexIterator) open(ctx context.Context, from keys.DocKey) error {
	if it.scan != nil {
		it.scan.Stop()
		it.scan = nil
	}
	start := append(append([]byte{}, it.prefix...), string(from)...)
	scan, err := it.src.scan(ctx, storage.Range{Start: start, End: keys.PrefixEnd(it.prefix)})
	if err != nil {
		return fmt.Errorf("scan postings of %s: %w", it, err)
	}
	it.scan = scan
	return nil
}

func (it *IndexIterator) Move(ctx context.Context, minimum keys.DocKey) (keys.DocKey, error) {
	if it.done {
		return it.exhausted()
	}
	target := it.target(minimum)
	if it.settled(target) {
		return it.key, nil
	}

	if it.scan == nil {
		if err := it.open(ctx, target); err != nil {
			return "", err
		}
	}
	for skipped := 0; ; skipped++ {
		if skipped == maxLinearSkips {
			if err := it.open(ctx, target); err != nil {
				return "", err
			}
			skipped = 0
		}

		entry, err := it.scan.Next(ctx)
		if err != nil {
			if isDone(err) {
				it.release()
				return it.finish()
			}
			return "", fmt.Errorf("scan postings of %s: %w", it, err)
		}
		posting, err := keys.ParseFieldIndex(entry.Key)
		if err != nil {
			continue
		}
		if k := posting.DocKey(); k >= target {
			it.visibility = entry.Visibility
			return it.land(k)
		}
	}
}

func (it *IndexIterator) Head(ctx context.Context) (keys.DocKey, error) {
	return it.Move(ctx, "")
}

func (it *IndexIterator) Next(ctx context.Context) (keys.DocKey, error) {
	return it.next(ctx, it.Head)
}

func (it *IndexIterator) Seek(_ context.Context, r storage.Range) error {
	it.seek(r)
	return nil
}

// Document contributes the indexed value when the field only exists in the
// index.
func (it *IndexIterator) Document() *document.Document {
	k, ok := it.current()
	if !ok || !it.indexOnly {
		return nil
	}
	doc := document.New(k)
	doc.Add(it.field, document.Attribute{
		Value:      it.value,
		Raw:        it.value,
		Normalized: it.value,
		Type:       it.typeName,
		Visibility: it.visibility,
		IndexOnly:  true,
	})
	return doc
}

func (it *IndexIterator) Leaves() []NestedIterator { return []NestedIterator{it} }

func (it *IndexIterator) Children() []NestedIterator { return nil }

func (it *IndexIterator) release() {
	if it.scan != nil {
		it.scan.Stop()
		it.scan = nil
	}
}

func (it *IndexIterator) Stop() {
	it.release()
	it.done = true
	it.positioned = false
}

func (it *IndexIterator) String() string {
	return fmt.Sprintf("%s == '%s'", it.field, it.value)
}
