package uid

import (
	"slices"
	"strings"

	"github.com/armon/go-radix"
)

// DefaultRadixThreshold is the input size above which Intersect groups
// candidates by prefix instead of comparing every pair.
const DefaultRadixThreshold = 64

// Tagged is a uid with the names of the predicates that produced it.
type Tagged struct {
	UID        string
	Provenance []string
}

// Tag returns uids tagged with a single source.
func Tag(source string, uids ...string) []Tagged {
	tagged := make([]Tagged, len(uids))
	for i, u := range uids {
		tagged[i] = Tagged{UID: u, Provenance: []string{source}}
	}
	return tagged
}

// UIDs returns the bare uids of tagged.
func UIDs(tagged []Tagged) []string {
	uids := make([]string, len(tagged))
	for i, t := range tagged {
		uids[i] = t.UID
	}
	return uids
}

type Intersector struct {
	radixThreshold int
}

type IntersectorOption func(*Intersector)

// WithRadixThreshold sets the combined input size above which a radix tree
// is used. Zero always uses the radix tree.
func WithRadixThreshold(n int) IntersectorOption {
	return func(i *Intersector) {
		i.radixThreshold = n
	}
}

func NewIntersector(opts ...IntersectorOption) *Intersector {
	i := &Intersector{radixThreshold: DefaultRadixThreshold}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Intersect pairs every left uid with every related right uid and keeps the
// more specific uid of each pair. The result is sorted, free of duplicates,
// and carries the union of the provenance of every pair that produced it.
func (i *Intersector) Intersect(left, right []Tagged) []Tagged {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	acc := accumulator{}
	if len(left)+len(right) > i.radixThreshold {
		intersectRadix(left, right, acc)
	} else {
		intersectPairwise(left, right, acc)
	}
	return acc.result()
}

// Intersect intersects bare uid sets with the default intersector.
func Intersect(left, right []string) []string {
	return UIDs(NewIntersector().Intersect(Tag("left", left...), Tag("right", right...)))
}

type accumulator map[string][]string

func (a accumulator) add(u string, l, r Tagged) {
	p := a[u]
	p = append(p, l.Provenance...)
	p = append(p, r.Provenance...)
	a[u] = p
}

func (a accumulator) result() []Tagged {
	out := make([]Tagged, 0, len(a))
	for u, p := range a {
		slices.Sort(p)
		out = append(out, Tagged{UID: u, Provenance: slices.Compact(p)})
	}
	slices.SortFunc(out, func(x, y Tagged) int { return strings.Compare(x.UID, y.UID) })
	return out
}

func intersectPairwise(left, right []Tagged, acc accumulator) {
	for _, l := range left {
		for _, r := range right {
			if Related(l.UID, r.UID) {
				acc.add(MoreSpecific(l.UID, r.UID), l, r)
			}
		}
	}
}

func intersectRadix(left, right []Tagged, acc accumulator) {
	tree := radix.New()
	for _, r := range right {
		var entries []Tagged
		if v, ok := tree.Get(r.UID); ok {
			entries = v.([]Tagged)
		}
		tree.Insert(r.UID, append(entries, r))
	}

	for _, l := range left {
		// right uids equal to or above l
		tree.WalkPath(l.UID, func(key string, v interface{}) bool {
			if key == l.UID || IsAncestor(key, l.UID) {
				for _, r := range v.([]Tagged) {
					acc.add(l.UID, l, r)
				}
			}
			return false
		})
		// right uids below l
		tree.WalkPrefix(l.UID+Separator, func(key string, v interface{}) bool {
			for _, r := range v.([]Tagged) {
				acc.add(key, l, r)
			}
			return false
		})
	}
}
