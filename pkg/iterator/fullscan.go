package iterator

import (
	"context"
	"fmt"

	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
)

// FullScanIterator walks the event entries of a shard and yields every
// document key once. Plans without an anchor use it when full scans are
// allowed.
type FullScanIterator struct {
	cursor
	src    Source
	prefix []byte
	scan   storage.EntryIterator
}

var (
	_ NestedIterator = (*FullScanIterator)(nil)
	_ Seekable       = (*FullScanIterator)(nil)
)

func NewFullScanIterator(src Source) *FullScanIterator {
	return &FullScanIterator{src: src, prefix: keys.EventPrefix()}
}

func (f *FullScanIterator) Initialize(ctx context.Context) error {
	if _, err := f.Move(ctx, ""); err != nil && !isDone(err) {
		return err
	}
	return nil
}

func (f *FullScanIterator) open(ctx context.Context, from keys.DocKey) error {
	f.release()
	start := f.prefix
	if from != "" {
		start = keys.EventDocKeyStart(from)
	}
	scan, err := f.src.scan(ctx, storage.Range{Start: start, End: keys.PrefixEnd(f.prefix)})
	if err != nil {
		return fmt.Errorf("scan events: %w", err)
	}
	f.scan = scan
	return nil
}

func (f *FullScanIterator) Move(ctx context.Context, minimum keys.DocKey) (keys.DocKey, error) {
	if f.done {
		return f.exhausted()
	}
	target := f.target(minimum)
	if f.settled(target) {
		return f.key, nil
	}

	if err := interrupted(ctx); err != nil {
		return "", err
	}
	if f.scan == nil {
		if err := f.open(ctx, target); err != nil {
			return "", err
		}
	}
	for skipped := 1; ; skipped++ {
		if skipped%pollEvery == 0 {
			if err := interrupted(ctx); err != nil {
				return "", err
			}
		}
		if skipped%maxLinearSkips == 0 {
			if err := f.open(ctx, target); err != nil {
				return "", err
			}
		}

		entry, err := f.scan.Next(ctx)
		if err != nil {
			if isDone(err) {
				f.release()
				return f.finish()
			}
			return "", fmt.Errorf("scan events: %w", err)
		}
		event, err := keys.ParseEvent(entry.Key)
		if err != nil {
			continue
		}
		if k := event.DocKey(); k >= target {
			return f.land(k)
		}
	}
}

func (f *FullScanIterator) Head(ctx context.Context) (keys.DocKey, error) {
	return f.Move(ctx, "")
}

func (f *FullScanIterator) Next(ctx context.Context) (keys.DocKey, error) {
	return f.next(ctx, f.Head)
}

func (f *FullScanIterator) Seek(_ context.Context, r storage.Range) error {
	f.seek(r)
	return nil
}

// Document is always nil; the assembler reads the whole record.
func (f *FullScanIterator) Document() *document.Document { return nil }

func (f *FullScanIterator) Leaves() []NestedIterator { return []NestedIterator{f} }

func (f *FullScanIterator) Children() []NestedIterator { return nil }

func (f *FullScanIterator) release() {
	if f.scan != nil {
		f.scan.Stop()
		f.scan = nil
	}
}

func (f *FullScanIterator) Stop() {
	f.release()
	f.done = true
	f.positioned = false
}

func (f *FullScanIterator) String() string { return "FULL_SCAN" }
