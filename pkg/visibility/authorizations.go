// Package visibility implements label based visibility: the expression
// language stored with every entry, the authorization sets of a delegation
// chain, and the filters a scan applies on their behalf.
package visibility

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrAuthorizationMismatch is returned when requested labels are not held by
// the chain they are requested for.
var ErrAuthorizationMismatch = errors.New("authorization mismatch")

// Labels is a sorted set of authorization labels.
type Labels []string

// NewLabels returns the sorted, de-duplicated set of labels.
func NewLabels(labels ...string) Labels {
	l := slices.Clone(labels)
	l = slices.DeleteFunc(l, func(s string) bool { return s == "" })
	slices.Sort(l)
	return slices.Compact(l)
}

func (l Labels) Contains(s string) bool {
	_, found := slices.BinarySearch(l, s)
	return found
}

// SubsetOf reports whether every label of l is in o.
func (l Labels) SubsetOf(o Labels) bool {
	if len(l) > len(o) {
		return false
	}
	for _, s := range l {
		if !o.Contains(s) {
			return false
		}
	}
	return true
}

func (l Labels) Equal(o Labels) bool {
	return slices.Equal(l, o)
}

func (l Labels) String() string {
	return strings.Join(l, ",")
}

// AuthorizationSet is the labels one entity of a delegation chain holds.
type AuthorizationSet struct {
	Entity string
	Labels Labels
}

func NewAuthorizationSet(entity string, labels ...string) AuthorizationSet {
	return AuthorizationSet{Entity: entity, Labels: NewLabels(labels...)}
}

func (a AuthorizationSet) String() string {
	return fmt.Sprintf("%s[%s]", a.Entity, a.Labels)
}

// Chain is a delegation chain, the requesting entity first.
type Chain []AuthorizationSet

// ParseChain parses "entity=L1,L2;entity2=L3" into a chain.
func ParseChain(s string) (Chain, error) {
	var chain Chain
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		entity, labels, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(entity) == "" {
			return nil, fmt.Errorf("invalid authorization set '%s': expected entity=labels", part)
		}
		var ls []string
		for _, l := range strings.Split(labels, ",") {
			ls = append(ls, strings.TrimSpace(l))
		}
		chain = append(chain, NewAuthorizationSet(strings.TrimSpace(entity), ls...))
	}
	return chain, nil
}

// Restrict checks that requested is held by the first entity of the chain
// and returns a copy of the chain with that entity downgraded to requested.
// A nil requested leaves the chain unchanged.
func (c Chain) Restrict(requested []string) (Chain, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("%w: empty delegation chain", ErrAuthorizationMismatch)
	}
	if requested == nil {
		return slices.Clone(c), nil
	}
	want := NewLabels(requested...)
	if !want.SubsetOf(c[0].Labels) {
		return nil, fmt.Errorf("%w: requested [%s] not held by %s", ErrAuthorizationMismatch, want, c[0])
	}
	restricted := slices.Clone(c)
	restricted[0] = AuthorizationSet{Entity: c[0].Entity, Labels: want}
	return restricted, nil
}

// Minimize reduces sets to the smallest equivalent collection: equal sets
// collapse to their first occurrence and any set that is a superset of
// another is dropped. The survivors keep their first-seen order. Minimize
// never adds a set and Minimize(Minimize(s)) equals Minimize(s).
func Minimize(sets []AuthorizationSet) []AuthorizationSet {
	unique := make([]AuthorizationSet, 0, len(sets))
	for _, s := range sets {
		if !slices.ContainsFunc(unique, func(u AuthorizationSet) bool { return u.Labels.Equal(s.Labels) }) {
			unique = append(unique, s)
		}
	}

	minimized := make([]AuthorizationSet, 0, len(unique))
	for i, s := range unique {
		redundant := false
		for j, o := range unique {
			if i != j && o.Labels.SubsetOf(s.Labels) {
				redundant = true
				break
			}
		}
		if !redundant {
			minimized = append(minimized, s)
		}
	}
	return minimized
}
