package iterator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/planner"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/types"
)

// pollEvery is how many index entries a buffering leaf reads between
// context checks.
const pollEvery = 256

// BufferedIndexIterator collects the postings of a range or regex term into
// a sorted set on first use. A term spans many values, so its postings are
// not in document key order within the index.
type BufferedIndexIterator struct {
	cursor
	src       Source
	name      string
	field     string
	typeName  string
	indexOnly bool
	scanRange storage.Range
	match     func(value string) bool

	loaded        bool
	set           storage.SortedSet
	contributions map[keys.DocKey][]document.Attribute
}

var (
	_ NestedIterator = (*BufferedIndexIterator)(nil)
	_ Seekable       = (*BufferedIndexIterator)(nil)
)

func newBuffered(src Source, name, field string, scanRange storage.Range, match func(string) bool) *BufferedIndexIterator {
	return &BufferedIndexIterator{
		src:       src,
		name:      name,
		field:     field,
		typeName:  src.Snapshot.Normalizer(field).Name(),
		indexOnly: src.Snapshot.IsIndexOnly(field),
		scanRange: scanRange,
		match:     match,
	}
}

// NewRangeIterator returns a leaf over the postings of a bounded range with
// normalized bounds.
func NewRangeIterator(src Source, r *ast.Range) *BufferedIndexIterator {
	fieldPrefix := keys.FieldIndexFieldPrefix(r.Field)
	scanRange := storage.PrefixRange(fieldPrefix)
	if r.Lower != nil {
		scanRange.Start = append(append([]byte{}, fieldPrefix...), r.Lower.Value...)
	}
	if r.Upper != nil {
		scanRange.End = keys.PrefixEnd(append(append([]byte{}, fieldPrefix...), r.Upper.Value...))
	}

	match := func(v string) bool {
		if l := r.Lower; l != nil && (v < l.Value || (v == l.Value && !l.Inclusive)) {
			return false
		}
		if u := r.Upper; u != nil && (v > u.Value || (v == u.Value && !u.Inclusive)) {
			return false
		}
		return true
	}
	return newBuffered(src, r.String(), r.Field, scanRange, match)
}

// NewRegexIterator returns a leaf over the postings whose normalized value
// fully matches the pattern of re.
func NewRegexIterator(src Source, re *ast.Regex) (*BufferedIndexIterator, error) {
	normalizer := src.Snapshot.Normalizer(re.Field)
	compiled, err := CompileFullMatch(re.Pattern, normalizer.RegexFlags())
	if err != nil {
		return nil, err
	}

	fieldPrefix := keys.FieldIndexFieldPrefix(re.Field)
	scanRange := storage.PrefixRange(fieldPrefix)
	if prefix := literalPrefix(re.Pattern, normalizer); prefix != "" {
		scanRange = storage.PrefixRange(append(append([]byte{}, fieldPrefix...), prefix...))
	}
	return newBuffered(src, re.String(), re.Field, scanRange, compiled.MatchString), nil
}

// CompileFullMatch compiles pattern so that it must match a whole value.
func CompileFullMatch(pattern, flags string) (*regexp.Regexp, error) {
	p := strings.TrimSuffix(strings.TrimPrefix(pattern, "^"), "$")
	re, err := regexp.Compile(flags + "^(?:" + p + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	return re, nil
}

// literalPrefix returns the normalized literal prefix of pattern usable to
// narrow the index scan. Only string values keep their order under the
// normalizer.
func literalPrefix(pattern string, normalizer types.Normalizer) string {
	prefix := planner.LiteralPrefix(pattern)
	if prefix == "" {
		return ""
	}
	switch normalizer.Name() {
	case types.Raw:
		return prefix
	case types.String:
		normalized, err := normalizer.Normalize(prefix)
		if err != nil {
			return ""
		}
		return normalized
	default:
		return ""
	}
}

func (b *BufferedIndexIterator) load(ctx context.Context) error {
	b.loaded = true
	b.set = storage.NewSortedSet()
	b.contributions = map[keys.DocKey][]document.Attribute{}

	scan, err := b.src.scan(ctx, b.scanRange)
	if err != nil {
		return fmt.Errorf("scan postings of %s: %w", b, err)
	}
	defer scan.Stop()

	for n := 0; ; n++ {
		if n%pollEvery == 0 {
			if err := interrupted(ctx); err != nil {
				return err
			}
		}
		entry, err := scan.Next(ctx)
		if err != nil {
			if isDone(err) {
				return nil
			}
			return fmt.Errorf("scan postings of %s: %w", b, err)
		}
		posting, err := keys.ParseFieldIndex(entry.Key)
		if err != nil || posting.Field != b.field || !b.match(posting.Value) {
			continue
		}
		k := posting.DocKey()
		b.set.Add(string(k))
		if b.indexOnly {
			b.contributions[k] = append(b.contributions[k], document.Attribute{
				Value:      posting.Value,
				Raw:        posting.Value,
				Normalized: posting.Value,
				Type:       b.typeName,
				Visibility: entry.Visibility,
				IndexOnly:  true,
			})
		}
	}
}

func (b *BufferedIndexIterator) Initialize(ctx context.Context) error {
	if _, err := b.Move(ctx, ""); err != nil && !isDone(err) {
		return err
	}
	return nil
}

func (b *BufferedIndexIterator) Move(ctx context.Context, minimum keys.DocKey) (keys.DocKey, error) {
	if b.done {
		return b.exhausted()
	}
	if !b.loaded {
		if err := b.load(ctx); err != nil {
			b.Stop()
			return "", err
		}
	}
	target := b.target(minimum)
	if b.settled(target) {
		return b.key, nil
	}
	k, ok := b.set.Ceiling(string(target))
	if !ok {
		return b.finish()
	}
	return b.land(keys.DocKey(k))
}

func (b *BufferedIndexIterator) Head(ctx context.Context) (keys.DocKey, error) {
	return b.Move(ctx, "")
}

func (b *BufferedIndexIterator) Next(ctx context.Context) (keys.DocKey, error) {
	return b.next(ctx, b.Head)
}

func (b *BufferedIndexIterator) Seek(_ context.Context, r storage.Range) error {
	b.seek(r)
	return nil
}

func (b *BufferedIndexIterator) Document() *document.Document {
	k, ok := b.current()
	if !ok || len(b.contributions[k]) == 0 {
		return nil
	}
	doc := document.New(k)
	for _, attr := range b.contributions[k] {
		doc.Add(b.field, attr)
	}
	return doc
}

func (b *BufferedIndexIterator) Leaves() []NestedIterator { return []NestedIterator{b} }

func (b *BufferedIndexIterator) Children() []NestedIterator { return nil }

func (b *BufferedIndexIterator) Stop() {
	b.done = true
	b.positioned = false
	b.set = nil
	b.contributions = nil
}

func (b *BufferedIndexIterator) String() string { return b.name }
