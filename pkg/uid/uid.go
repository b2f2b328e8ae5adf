// Package uid works with hierarchical record identifiers. A descendant
// extends its ancestor with dot separated segments, so "a.b.c.1" is a child
// of "a.b.c" while "a.b.c.10" is not a descendant of "a.b.c.1".
package uid

import "strings"

const Separator = "."

// IsAncestor reports whether descendant lies strictly below ancestor.
func IsAncestor(ancestor, descendant string) bool {
	return len(descendant) > len(ancestor)+len(Separator) &&
		strings.HasPrefix(descendant, ancestor) &&
		strings.HasPrefix(descendant[len(ancestor):], Separator)
}

// Related reports whether a and b are equal or one is an ancestor of the other.
func Related(a, b string) bool {
	return a == b || IsAncestor(a, b) || IsAncestor(b, a)
}

// MoreSpecific returns the longer of two related uids.
func MoreSpecific(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}

// Parent returns the uid one level up, if any.
func Parent(u string) (string, bool) {
	i := strings.LastIndex(u, Separator)
	if i <= 0 {
		return "", false
	}
	return u[:i], true
}

// Ancestors returns every proper ancestor of u, root first.
func Ancestors(u string) []string {
	var ancestors []string
	for i := 0; i < len(u); i++ {
		if strings.HasPrefix(u[i:], Separator) && i > 0 {
			ancestors = append(ancestors, u[:i])
		}
	}
	return ancestors
}

// Root returns the top-level segment of u.
func Root(u string) string {
	if i := strings.Index(u, Separator); i > 0 {
		return u[:i]
	}
	return u
}
