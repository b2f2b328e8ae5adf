// Package planner turns a query tree into an execution plan. It picks the
// cheapest index-drivable subtree of every intersection as its anchor and
// defers the remaining terms to document evaluation.
package planner

import (
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/metadata"
)

// Planner builds Plans. A Planner is stateless and safe for concurrent use.
type Planner struct {
	allowFullScan bool
	ancestorJoin  bool
	maxAnchors    int
	defaults      CostDefaults
	logger        logger.Logger
}

type PlannerOption func(*Planner)

// WithFullScan lets queries without an anchor fall back to a full scan of
// every document instead of failing.
func WithFullScan(allow bool) PlannerOption {
	return func(p *Planner) {
		p.allowFullScan = allow
	}
}

// WithAncestorJoin plans for ancestor joins: every finite anchor of an
// intersection stays index-driven since its terms may match at different
// levels of a document hierarchy.
func WithAncestorJoin(enabled bool) PlannerOption {
	return func(p *Planner) {
		p.ancestorJoin = enabled
	}
}

// WithMaxAnchors sets how many anchors of an intersection stay index-driven.
// The default is one.
func WithMaxAnchors(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.maxAnchors = n
		}
	}
}

func WithCostDefaults(defaults CostDefaults) PlannerOption {
	return func(p *Planner) {
		p.defaults = defaults
	}
}

func WithLogger(l logger.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = l
	}
}

func New(opts ...PlannerOption) *Planner {
	p := &Planner{
		maxAnchors: 1,
		defaults:   DefaultCostDefaults(),
		logger:     logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan is an immutable execution plan.
type Plan struct {
	query        ast.Node
	root         ast.Node
	anchors      []ast.Node
	delayed      []ast.Node
	fullScan     bool
	zero         bool
	ancestorJoin bool
	snapshot     *metadata.Snapshot
	warnings     []CostEstimationWarning
}

// Query returns the tree the plan was built from.
func (p *Plan) Query() ast.Node { return p.query }

// Root returns the planned tree. Deferred subtrees are wrapped in delayed
// markers and literals are normalized.
func (p *Plan) Root() ast.Node { return p.root }

// Anchors returns the index-driven leaves in tree order.
func (p *Plan) Anchors() []ast.Node { return p.anchors }

// Delayed returns the deferred subtrees in tree order, unwrapped.
func (p *Plan) Delayed() []ast.Node { return p.delayed }

// FullScan reports whether the plan scans every document.
func (p *Plan) FullScan() bool { return p.fullScan }

// Zero reports whether the plan is known to match nothing.
func (p *Plan) Zero() bool { return p.zero }

func (p *Plan) AncestorJoin() bool { return p.ancestorJoin }

func (p *Plan) Snapshot() *metadata.Snapshot { return p.snapshot }

func (p *Plan) Warnings() []CostEstimationWarning { return p.warnings }

func (p *Plan) String() string {
	if p.root == nil {
		return ""
	}
	return p.root.String()
}

// NewPlan builds a plan over an already planned tree. It is meant for
// callers that construct plans by hand.
func NewPlan(root ast.Node, snapshot *metadata.Snapshot) *Plan {
	plan := &Plan{query: root, root: root, snapshot: snapshot}
	plan.collect(root)
	return plan
}

// Plan builds the execution plan for query against snapshot.
func (p *Planner) Plan(query ast.Node, snapshot *metadata.Snapshot) (*Plan, error) {
	if query == nil {
		return nil, &PlanningError{Reason: "empty query"}
	}

	estimator := NewCostEstimator(snapshot, p.defaults, p.logger)
	normalized := normalize(query, snapshot, estimator)

	s := &planning{
		Planner:   p,
		detector:  NewAnchorDetector(snapshot),
		estimator: estimator,
	}
	result, err := s.plan(normalized)

	plan := &Plan{
		query:        query,
		snapshot:     snapshot,
		ancestorJoin: p.ancestorJoin,
	}
	if err != nil {
		var planningErr *PlanningError
		if errors.As(err, &planningErr) {
			planningErr.Query = normalized.String()
		}
		if !p.allowFullScan {
			return nil, err
		}
		p.logger.Warn("falling back to full scan", zap.String("query", normalized.String()), zap.Error(err))
		plan.root = ast.Delayed(normalized)
		plan.fullScan = true
	} else {
		plan.root = result.node
		plan.zero = result.zero
	}
	plan.collect(plan.root)
	plan.warnings = estimator.Warnings()
	return plan, nil
}

func (p *Plan) collect(n ast.Node) {
	switch v := n.(type) {
	case *ast.Marker:
		if v.MarkerKind == ast.MarkerDelayed || v.MarkerKind == ast.MarkerEvaluationOnly {
			p.delayed = append(p.delayed, ast.Unwrap(v))
			return
		}
		p.collect(v.Node)
	case *ast.And, *ast.Or:
		for _, c := range n.Children() {
			p.collect(c)
		}
	case *ast.Equality, *ast.Range, *ast.Regex:
		p.anchors = append(p.anchors, n)
	default:
		p.delayed = append(p.delayed, n)
	}
}

type planning struct {
	*Planner
	detector  *AnchorDetector
	estimator *CostEstimator
}

type planned struct {
	node ast.Node
	zero bool
}

func (s *planning) plan(n ast.Node) (planned, error) {
	switch v := n.(type) {
	case *ast.And:
		return s.planAnd(v)
	case *ast.Or:
		return s.planOr(v)
	}

	if !s.detector.IsAnchor(n) {
		return planned{}, &PlanningError{Term: n.String(), Reason: "term cannot be driven from the index"}
	}
	cost := s.estimator.Cost(n)
	if cost.Class == Infinite {
		return planned{}, &PlanningError{Term: n.String(), Reason: "term requires an unbounded index scan"}
	}
	return planned{node: n, zero: cost.Class == Free}, nil
}

type candidate struct {
	index int
	cost  Cost
}

func (s *planning) planAnd(and *ast.And) (planned, error) {
	var candidates []candidate
	for i, c := range and.Nodes {
		cost := s.estimator.Cost(c)
		if !s.detector.IsAnchor(c) || cost.Class == Infinite {
			continue
		}
		candidates = append(candidates, candidate{index: i, cost: cost})
	}
	// stable, so equal costs keep child order
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return a.cost.Compare(b.cost)
	})

	limit := s.maxAnchors
	if s.ancestorJoin {
		limit = len(candidates)
	}

	children := make([]ast.Node, len(and.Nodes))
	anchored := 0
	zero := false
	for _, cand := range candidates {
		// index-only terms stay index-driven past the limit since their
		// values cannot be read from the document's events
		if anchored >= limit && !s.readsIndexOnly(and.Nodes[cand.index]) {
			continue
		}
		result, err := s.plan(and.Nodes[cand.index])
		if err != nil {
			s.logger.Debug("skipping anchor candidate", zap.String("term", and.Nodes[cand.index].String()), zap.Error(err))
			continue
		}
		children[cand.index] = result.node
		zero = zero || result.zero
		anchored++
	}
	if anchored == 0 {
		return planned{}, &PlanningError{Term: and.String(), Reason: "no term of the intersection has a finite index cost"}
	}

	for i, c := range and.Nodes {
		if children[i] == nil {
			children[i] = ast.Delayed(c)
		}
	}
	return planned{node: ast.AndOf(children...), zero: zero}, nil
}

func (s *planning) readsIndexOnly(n ast.Node) bool {
	return slices.ContainsFunc(ast.Fields(n), s.detector.snapshot.IsIndexOnly)
}

func (s *planning) planOr(or *ast.Or) (planned, error) {
	if len(or.Nodes) == 0 {
		return planned{}, &PlanningError{Term: or.String(), Reason: "empty union"}
	}
	children := make([]ast.Node, len(or.Nodes))
	zero := true
	for i, c := range or.Nodes {
		result, err := s.plan(c)
		if err != nil {
			return planned{}, err
		}
		children[i] = result.node
		zero = zero && result.zero
	}
	return planned{node: ast.OrOf(children...), zero: zero}, nil
}

// normalize rewrites comparison literals through their field's normalizer.
// Literals that do not normalize are kept raw and marked evaluation-only.
func normalize(n ast.Node, snapshot *metadata.Snapshot, estimator *CostEstimator) ast.Node {
	return ast.Rewrite(n, func(node ast.Node) ast.Node {
		switch v := node.(type) {
		case *ast.Equality:
			if v.Null || v.Method != "" {
				return v
			}
			value, err := snapshot.Normalizer(v.Field).Normalize(v.Value)
			if err != nil {
				estimator.warn(v, err.Error())
				return ast.EvaluationOnly(v)
			}
			normalized := *v
			normalized.Value = value
			return &normalized
		case *ast.Range:
			if v.Method != "" {
				return v
			}
			normalizer := snapshot.Normalizer(v.Field)
			normalized := *v
			for _, b := range []**ast.Bound{&normalized.Lower, &normalized.Upper} {
				if *b == nil {
					continue
				}
				value, err := normalizer.Normalize((*b).Value)
				if err != nil {
					estimator.warn(v, err.Error())
					return ast.EvaluationOnly(v)
				}
				*b = &ast.Bound{Value: value, Inclusive: (*b).Inclusive}
			}
			return &normalized
		default:
			return node
		}
	})
}
