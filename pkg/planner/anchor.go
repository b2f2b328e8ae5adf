package planner

import (
	"regexp"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/metadata"
)

// AnchorDetector decides whether a subtree can be driven from the field
// index.
type AnchorDetector struct {
	snapshot *metadata.Snapshot
}

// NewAnchorDetector returns a detector over snapshot.
func NewAnchorDetector(snapshot *metadata.Snapshot) *AnchorDetector {
	return &AnchorDetector{snapshot: snapshot}
}

// IsAnchor reports whether n is index-drivable. A leaf qualifies when it is
// an equality, bounded range or regex on an indexed field. An intersection
// qualifies when any child does, a union only when every child does.
func (d *AnchorDetector) IsAnchor(n ast.Node) bool {
	switch v := n.(type) {
	case *ast.Equality:
		return !v.Null && v.Method == "" && d.snapshot.IsIndexed(v.Field)
	case *ast.Range:
		return v.Method == "" && v.Bounded() && d.snapshot.IsIndexed(v.Field)
	case *ast.Regex:
		if _, err := regexp.Compile(v.Pattern); err != nil {
			return false
		}
		return d.snapshot.IsIndexed(v.Field)
	case *ast.And:
		for _, c := range v.Nodes {
			if d.IsAnchor(c) {
				return true
			}
		}
		return false
	case *ast.Or:
		if len(v.Nodes) == 0 {
			return false
		}
		for _, c := range v.Nodes {
			if !d.IsAnchor(c) {
				return false
			}
		}
		return true
	default:
		// negations, filter functions and marked subtrees are evaluated
		// against documents
		return false
	}
}
