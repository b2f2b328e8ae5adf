package planner

import (
	"fmt"
	"math"
	"regexp"
	"regexp/syntax"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/metadata"
)

// CostClass orders costs coarsely: Free < Cheap < Unevaluated < Infinite.
type CostClass int

const (
	// Free terms are known to match nothing and cost nothing to evaluate.
	Free CostClass = iota
	// Cheap terms have an estimated number of index entries.
	Cheap
	// Unevaluated terms could not be estimated and are treated conservatively.
	Unevaluated
	// Infinite terms cannot be driven from the index.
	Infinite
)

func (c CostClass) String() string {
	switch c {
	case Free:
		return "free"
	case Cheap:
		return "cheap"
	case Unevaluated:
		return "unevaluated"
	case Infinite:
		return "infinite"
	default:
		return fmt.Sprintf("CostClass(%d)", int(c))
	}
}

// Cost is a totally ordered cost estimate. N is only meaningful for Cheap.
type Cost struct {
	Class CostClass
	N     int64
}

func (c Cost) String() string {
	if c.Class == Cheap {
		return fmt.Sprintf("cheap(%d)", c.N)
	}
	return c.Class.String()
}

// Compare returns -1, 0 or 1 when c is cheaper than, equal to or more expensive than o.
func (c Cost) Compare(o Cost) int {
	if c.Class != o.Class {
		if c.Class < o.Class {
			return -1
		}
		return 1
	}
	if c.Class != Cheap || c.N == o.N {
		return 0
	}
	if c.N < o.N {
		return -1
	}
	return 1
}

func cheap(n int64) Cost {
	if n < 1 {
		n = 1
	}
	return Cost{Class: Cheap, N: n}
}

var (
	freeCost        = Cost{Class: Free}
	unevaluatedCost = Cost{Class: Unevaluated}
	infiniteCost    = Cost{Class: Infinite}
)

// sum combines the costs of union branches.
func sum(a, b Cost) Cost {
	if a.Class == Cheap && b.Class == Cheap {
		if a.N > math.MaxInt64-b.N {
			return cheap(math.MaxInt64)
		}
		return cheap(a.N + b.N)
	}
	if a.Class > b.Class {
		return a
	}
	return b
}

// CostEstimationWarning records a term whose selectivity could not be
// estimated. It never fails planning.
type CostEstimationWarning struct {
	Term   string
	Reason string
}

func (w CostEstimationWarning) Error() string {
	return fmt.Sprintf("cost estimation degraded to unevaluated for '%s': %s", w.Term, w.Reason)
}

// CostDefaults are the deterministic base estimates used when the dictionary
// has no cardinality for a field.
type CostDefaults struct {
	// Base is the estimated number of entries per indexed field.
	Base int64
	// RangeFactor multiplies the base for bounded ranges.
	RangeFactor int64
	// RegexFactor multiplies the base for regex lookups.
	RegexFactor int64
}

// DefaultCostDefaults returns the estimates used by New.
func DefaultCostDefaults() CostDefaults {
	return CostDefaults{
		Base:        10,
		RangeFactor: 10,
		RegexFactor: 100,
	}
}

// CostEstimator assigns a Cost to predicate terms using field metadata.
type CostEstimator struct {
	snapshot *metadata.Snapshot
	defaults CostDefaults
	logger   logger.Logger
	costs    map[ast.Node]Cost
	warnings []CostEstimationWarning
}

// NewCostEstimator returns an estimator over snapshot.
func NewCostEstimator(snapshot *metadata.Snapshot, defaults CostDefaults, l logger.Logger) *CostEstimator {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &CostEstimator{
		snapshot: snapshot,
		defaults: defaults,
		logger:   l,
		costs:    map[ast.Node]Cost{},
	}
}

// Warnings returns every warning raised so far, in the order raised.
func (e *CostEstimator) Warnings() []CostEstimationWarning {
	return e.warnings
}

func (e *CostEstimator) warn(n ast.Node, reason string) Cost {
	w := CostEstimationWarning{Term: n.String(), Reason: reason}
	e.warnings = append(e.warnings, w)
	e.logger.Warn("cost estimation warning", zap.String("term", w.Term), zap.String("reason", reason))
	return unevaluatedCost
}

func (e *CostEstimator) base(field string) (int64, bool) {
	if n, ok := e.snapshot.Cardinality(field); ok {
		return n, true
	}
	return e.defaults.Base, false
}

// Cost returns the estimated cost of n. Costs are memoized per node so a
// term raises its warnings once.
func (e *CostEstimator) Cost(n ast.Node) Cost {
	if c, ok := e.costs[n]; ok {
		return c
	}
	c := e.cost(n)
	e.costs[n] = c
	return c
}

func (e *CostEstimator) cost(n ast.Node) Cost {
	switch v := n.(type) {
	case *ast.Equality:
		return e.equalityCost(v)
	case *ast.Range:
		return e.rangeCost(v)
	case *ast.Regex:
		return e.regexCost(v)
	case *ast.FilterFunction:
		return e.warn(v, "filter functions are evaluated against documents")
	case *ast.Marker, *ast.Not:
		return unevaluatedCost
	case *ast.And:
		// an intersection costs no more than its cheapest indexable branch
		best := infiniteCost
		for _, c := range v.Nodes {
			if cost := e.Cost(c); cost.Compare(best) < 0 {
				best = cost
			}
		}
		return best
	case *ast.Or:
		total := infiniteCost
		for i, c := range v.Nodes {
			cost := e.Cost(c)
			if i == 0 {
				total = cost
				continue
			}
			total = sum(total, cost)
		}
		return total
	default:
		return unevaluatedCost
	}
}

func (e *CostEstimator) equalityCost(eq *ast.Equality) Cost {
	switch {
	case eq.Null:
		return e.warn(eq, "null literal comparisons cannot be estimated")
	case eq.Method != "":
		return e.warn(eq, "method comparisons cannot be estimated")
	case !e.snapshot.IsIndexed(eq.Field):
		return e.warn(eq, "field is not indexed")
	}

	n, known := e.base(eq.Field)
	if known && n == 0 {
		return freeCost
	}
	return cheap(n)
}

func (e *CostEstimator) rangeCost(r *ast.Range) Cost {
	switch {
	case r.Method != "":
		return e.warn(r, "method comparisons cannot be estimated")
	case !r.Bounded():
		return e.warn(r, "range is not bounded")
	case !e.snapshot.IsIndexed(r.Field):
		return e.warn(r, "field is not indexed")
	}

	n, known := e.base(r.Field)
	if known && n == 0 {
		return freeCost
	}
	return cheap(saturatingMul(n, e.defaults.RangeFactor))
}

func (e *CostEstimator) regexCost(r *ast.Regex) Cost {
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return e.warn(r, "pattern does not parse: "+err.Error())
	}

	// a pattern that can start anywhere needs a scan of every value of the
	// field, indexed or not
	leading, trailing := Wildcards(r.Pattern)
	switch {
	case leading && trailing:
		return infiniteCost
	case leading && !e.snapshot.IsReverseIndexed(r.Field):
		return infiniteCost
	case !e.snapshot.IsIndexed(r.Field):
		return e.warn(r, "field is not indexed")
	}

	n, known := e.base(r.Field)
	if known && n == 0 {
		return freeCost
	}
	return cheap(saturatingMul(n, e.defaults.RegexFactor))
}

func saturatingMul(a, b int64) int64 {
	if a != 0 && b > math.MaxInt64/a {
		return math.MaxInt64
	}
	return a * b
}

// Wildcards reports whether pattern can start and/or end with an unbounded
// run of any character, such as ".*abc" or "(.+)abc(.*)". Anchors and
// optional terms at the edges are looked through.
func Wildcards(pattern string) (leading, trailing bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return false, false
	}
	return edgeWildcard(re, true), edgeWildcard(re, false)
}

func edgeWildcard(re *syntax.Regexp, first bool) bool {
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus:
		return anyChar(re.Sub[0]) || edgeWildcard(re.Sub[0], first)
	case syntax.OpRepeat:
		return (re.Max == -1 && anyChar(re.Sub[0])) || edgeWildcard(re.Sub[0], first)
	case syntax.OpQuest, syntax.OpCapture:
		return edgeWildcard(re.Sub[0], first)
	case syntax.OpAlternate:
		return slices.ContainsFunc(re.Sub, func(sub *syntax.Regexp) bool {
			return edgeWildcard(sub, first)
		})
	case syntax.OpConcat:
		for i := range re.Sub {
			sub := re.Sub[i]
			if !first {
				sub = re.Sub[len(re.Sub)-1-i]
			}
			if edgeWildcard(sub, first) {
				return true
			}
			if !matchesEmpty(sub) {
				return false
			}
		}
	}
	return false
}

func anyChar(re *syntax.Regexp) bool {
	return re.Op == syntax.OpAnyChar || re.Op == syntax.OpAnyCharNotNL
}

// matchesEmpty reports whether re can match without consuming input.
func matchesEmpty(re *syntax.Regexp) bool {
	switch re.Op {
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText,
		syntax.OpEndText, syntax.OpWordBoundary, syntax.OpNoWordBoundary,
		syntax.OpStar, syntax.OpQuest:
		return true
	case syntax.OpRepeat:
		return re.Min == 0 || matchesEmpty(re.Sub[0])
	case syntax.OpPlus, syntax.OpCapture:
		return matchesEmpty(re.Sub[0])
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if !matchesEmpty(sub) {
				return false
			}
		}
		return true
	case syntax.OpAlternate:
		return slices.ContainsFunc(re.Sub, matchesEmpty)
	}
	return false
}

// LiteralPrefix returns the literal text every match of pattern must start
// with, if any.
func LiteralPrefix(pattern string) string {
	re, err := regexp.Compile("^(?:" + strings.TrimPrefix(pattern, "^") + ")")
	if err != nil {
		return ""
	}
	prefix, _ := re.LiteralPrefix()
	return prefix
}
