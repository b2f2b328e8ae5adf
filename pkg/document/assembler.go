package document

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/uid"
	"github.com/shardquery/shardquery/pkg/visibility"
)

var tracer = otel.Tracer("shardquery/pkg/document")

// Assembler reconstructs documents from the event entries of a shard.
type Assembler struct {
	reader    storage.Reader
	snapshot  *metadata.Snapshot
	ancestors bool
	indexOnly []string
	logger    logger.Logger
}

type AssemblerOption func(*Assembler)

// WithAncestors makes the assembler fold the fields of every ancestor UID
// into the document.
func WithAncestors(enabled bool) AssemblerOption {
	return func(a *Assembler) {
		a.ancestors = enabled
	}
}

// WithIndexOnlyFields makes the assembler read the values of fields that only
// exist in the field index. Each field costs a scan of its index per
// document, so only fields the document is evaluated against belong here.
func WithIndexOnlyFields(fields ...string) AssemblerOption {
	return func(a *Assembler) {
		a.indexOnly = fields
	}
}

func WithLogger(l logger.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = l
	}
}

func NewAssembler(reader storage.Reader, snapshot *metadata.Snapshot, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		reader:   reader,
		snapshot: snapshot,
		logger:   logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble reads the visible event entries of key and returns its document
// with contribution merged in. Entries hidden by filters are left out, so the
// result can be empty.
func (a *Assembler) Assemble(ctx context.Context, shard string, key keys.DocKey, filters []visibility.Filter, contribution *Document) (*Document, error) {
	ctx, span := tracer.Start(ctx, "document.Assemble", trace.WithAttributes(
		attribute.String("shard", shard),
		attribute.String("key", key.String()),
	))
	defer span.End()

	doc := New(key)
	targets := []keys.DocKey{key}
	if a.ancestors {
		dataType := key.DataType()
		for _, ancestor := range uid.Ancestors(key.UID()) {
			targets = append(targets, keys.NewDocKey(dataType, ancestor))
		}
	}

	for _, target := range targets {
		if err := a.read(ctx, shard, target, filters, doc); err != nil {
			return nil, err
		}
		for _, field := range a.indexOnly {
			if err := a.readIndex(ctx, shard, field, target, filters, doc); err != nil {
				return nil, err
			}
		}
	}

	doc.Merge(contribution)
	return doc, nil
}

func (a *Assembler) read(ctx context.Context, shard string, key keys.DocKey, filters []visibility.Filter, doc *Document) error {
	iter, err := a.reader.Scan(ctx, storage.ScanRequest{
		Shard:   shard,
		Range:   storage.PrefixRange(keys.EventDocumentPrefix(key)),
		Filters: filters,
	})
	if err != nil {
		return fmt.Errorf("scan events of %s: %w", key, err)
	}
	defer iter.Stop()

	for {
		entry, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrIteratorDone) {
				return nil
			}
			return fmt.Errorf("scan events of %s: %w", key, err)
		}

		event, err := keys.ParseEvent(entry.Key)
		if err != nil {
			a.logger.WarnWithContext(ctx, "skipping malformed event key", zap.Error(err))
			continue
		}
		doc.Add(event.Field, a.Attribute(event.Field, event.Value, entry.Visibility))
	}
}

// readIndex adds the values of field indexed for key.
func (a *Assembler) readIndex(ctx context.Context, shard, field string, key keys.DocKey, filters []visibility.Filter, doc *Document) error {
	iter, err := a.reader.Scan(ctx, storage.ScanRequest{
		Shard:   shard,
		Range:   storage.PrefixRange(keys.FieldIndexFieldPrefix(field)),
		Filters: filters,
	})
	if err != nil {
		return fmt.Errorf("scan index of %s for %s: %w", field, key, err)
	}
	defer iter.Stop()

	typeName := a.snapshot.Normalizer(field).Name()
	for {
		entry, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrIteratorDone) {
				return nil
			}
			return fmt.Errorf("scan index of %s for %s: %w", field, key, err)
		}

		posting, err := keys.ParseFieldIndex(entry.Key)
		if err != nil {
			a.logger.WarnWithContext(ctx, "skipping malformed field index key", zap.Error(err))
			continue
		}
		if posting.DocKey() != key {
			continue
		}
		doc.Add(field, Attribute{
			Value:      posting.Value,
			Raw:        posting.Value,
			Normalized: posting.Value,
			Type:       typeName,
			Visibility: entry.Visibility,
			IndexOnly:  true,
		})
	}
}

// Attribute types raw through the normalizer of field. Values the
// normalizer rejects are kept as raw strings.
func (a *Assembler) Attribute(field, raw, visibility string) Attribute {
	normalizer := a.snapshot.Normalizer(field)
	attr := Attribute{
		Value:      raw,
		Raw:        raw,
		Normalized: raw,
		Type:       normalizer.Name(),
		Visibility: visibility,
	}
	if normalized, err := normalizer.Normalize(raw); err == nil {
		attr.Normalized = normalized
	}
	if typed, err := normalizer.Typed(raw); err == nil {
		attr.Value = typed
	}
	return attr
}
