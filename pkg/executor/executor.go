// Package executor runs planned queries over the shards of a store. Each
// shard is scanned by its own iterator tree; documents from all shards are
// merged into one result stream.
package executor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/internal/concurrency"
	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/eval"
	"github.com/shardquery/shardquery/pkg/iterator"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/logger"
	"github.com/shardquery/shardquery/pkg/metadata"
	"github.com/shardquery/shardquery/pkg/planner"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/uid"
	"github.com/shardquery/shardquery/pkg/visibility"
)

var tracer = otel.Tracer("shardquery/pkg/executor")

const (
	DefaultMaxConcurrentShards = 8
	defaultShardBuffer         = 64
)

// ResumeKey is the position after which a previous execution stopped.
type ResumeKey struct {
	Shard string
	Key   keys.DocKey
}

type ExecuteOptions struct {
	// ResumeKey skips every shard before its shard and every document up to
	// and including its key.
	ResumeKey *ResumeKey
	// DataTypes restricts results to the given record types. Empty means all.
	DataTypes []string
	// AncestorJoin joins predicates across the record hierarchy.
	AncestorJoin bool
	// Limit caps the number of documents returned. Zero means no limit.
	Limit int
	// Authorizations downgrades the first entity of the chain. Nil keeps the
	// chain as is.
	Authorizations []string
}

type Executor struct {
	store               storage.Reader
	planner             *planner.Planner
	logger              logger.Logger
	intersector         *uid.Intersector
	maxConcurrentShards int
	scanBatchSize       int
	shardBuffer         int
}

type ExecutorOption func(*Executor)

func WithLogger(l logger.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithPlanner sets the planner used by Plan.
func WithPlanner(p *planner.Planner) ExecutorOption {
	return func(e *Executor) {
		e.planner = p
	}
}

// WithMaxConcurrentShards bounds how many shards are scanned at once.
func WithMaxConcurrentShards(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrentShards = n
		}
	}
}

// WithScanBatchSize overrides the store's scan batch size.
func WithScanBatchSize(n int) ExecutorOption {
	return func(e *Executor) {
		e.scanBatchSize = n
	}
}

// WithIntersector sets the intersector used by ancestor joins.
func WithIntersector(i *uid.Intersector) ExecutorOption {
	return func(e *Executor) {
		e.intersector = i
	}
}

// WithShardBuffer sets how many documents a shard scan may produce ahead of
// the consumer.
func WithShardBuffer(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.shardBuffer = n
		}
	}
}

func New(store storage.Reader, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:               store,
		logger:              logger.NewNoopLogger(),
		intersector:         uid.NewIntersector(),
		maxConcurrentShards: DefaultMaxConcurrentShards,
		shardBuffer:         defaultShardBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.planner == nil {
		e.planner = planner.New(planner.WithLogger(e.logger))
	}
	return e
}

// Plan plans query with the executor's planner.
func (e *Executor) Plan(query ast.Node, snapshot *metadata.Snapshot) (*planner.Plan, error) {
	return e.planner.Plan(query, snapshot)
}

// query is the read-only state shared by the shard scans of one execution.
type query struct {
	id           string
	plan         *planner.Plan
	filters      []visibility.Filter
	evaluator    *eval.Evaluator
	assembler    *document.Assembler
	dataTypes    map[string]struct{}
	resume       *ResumeKey
	ancestorJoin bool
}

// Execute starts plan over the shards selected by shards. Authorization
// and compilation errors are returned before any scan starts. Storage
// failures after that are confined to their shard and reported through
// Results. A range without shards yields empty Results.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, shards storage.ShardRange, chain visibility.Chain, opts ExecuteOptions) (*Results, error) {
	start := time.Now()
	queriesCounter.Inc()

	restricted, err := chain.Restrict(opts.Authorizations)
	if err != nil {
		return nil, err
	}

	evaluator, err := eval.Compile(plan.Query(), plan.Snapshot())
	if err != nil {
		return nil, err
	}

	ancestorJoin := opts.AncestorJoin || plan.AncestorJoin()
	q := &query{
		id:        ulid.Make().String(),
		plan:      plan,
		filters:   visibility.Filters(restricted),
		evaluator: evaluator,
		assembler: document.NewAssembler(e.store, plan.Snapshot(),
			document.WithAncestors(ancestorJoin),
			document.WithIndexOnlyFields(delayedIndexOnlyFields(plan)...),
			document.WithLogger(e.logger),
		),
		resume:       opts.ResumeKey,
		ancestorJoin: ancestorJoin,
	}
	if len(opts.DataTypes) > 0 {
		q.dataTypes = make(map[string]struct{}, len(opts.DataTypes))
		for _, dt := range opts.DataTypes {
			q.dataTypes[dt] = struct{}{}
		}
	}

	ctx = logger.ContextWithQueryID(ctx, q.id)
	ctx, cancel := context.WithCancel(ctx)

	names, err := e.store.Shards(ctx, shards)
	if err != nil {
		cancel()
		return nil, &StoreIOError{Err: fmt.Errorf("list shards: %w", err)}
	}
	if q.resume != nil {
		names = resumeFrom(names, q.resume.Shard)
	}
	if len(names) == 0 {
		e.logger.WarnWithContext(ctx, "no shards in range", zap.String("range", shardRangeString(shards)))
	}

	e.logger.InfoWithContext(ctx, "executing query",
		zap.String("plan", plan.String()),
		zap.Int("shards", len(names)),
		zap.Int("filters", len(q.filters)),
		zap.Bool("full_scan", plan.FullScan()),
		zap.Bool("ancestor_join", ancestorJoin),
	)

	r := newResults(q.id, cancel, names, opts.Limit)
	for _, w := range plan.Warnings() {
		r.warn(w)
	}

	chans := make([]<-chan *document.Document, len(names))
	outs := make([]chan *document.Document, len(names))
	for i := range names {
		outs[i] = make(chan *document.Document, e.shardBuffer)
		chans[i] = outs[i]
	}
	r.out = concurrency.Merge(ctx, chans)

	go func() {
		defer close(r.done)

		concurrency.ForEach(ctx, e.maxConcurrentShards, names, func(ctx context.Context, i int, name string) {
			defer close(outs[i])
			shardScansInFlightGauge.Inc()
			defer shardScansInFlightGauge.Dec()

			s := &shardScan{executor: e, query: q, results: r, index: i, shard: name}
			s.run(ctx, outs[i])
		})

		elapsed := time.Since(start)
		queryDurationHistogram.Observe(float64(elapsed.Milliseconds()))
		e.logger.InfoWithContext(ctx, "query finished",
			zap.Int64("emitted", r.emitted.Load()),
			zap.Duration("elapsed", elapsed),
		)
	}()

	return r, nil
}

// delayedIndexOnlyFields returns the index-only fields read by deferred
// terms. Their values are not carried by any iterator, so the assembler has
// to fetch them.
func delayedIndexOnlyFields(plan *planner.Plan) []string {
	var fields []string
	for _, n := range plan.Delayed() {
		for _, f := range ast.Fields(n) {
			if plan.Snapshot().IsIndexOnly(f) && !slices.Contains(fields, f) {
				fields = append(fields, f)
			}
		}
	}
	return fields
}

// resumeFrom drops the shards sorting before shard.
func resumeFrom(names []string, shard string) []string {
	for i, n := range names {
		if n >= shard {
			return names[i:]
		}
	}
	return nil
}

func shardRangeString(r storage.ShardRange) string {
	return fmt.Sprintf("[%q, %q]", r.Start, r.End)
}

// tree returns the iterator tree of one shard.
func (e *Executor) tree(q *query, src iterator.Source) (iterator.NestedIterator, error) {
	switch {
	case q.plan.Zero():
		return iterator.NewEmptyIterator(), nil
	case q.plan.FullScan():
		return iterator.NewFullScanIterator(src), nil
	}
	var opts []iterator.BuildOption
	if q.ancestorJoin {
		opts = append(opts, iterator.WithAncestorJoin(e.intersector))
	}
	return iterator.Build(q.plan.Root(), src, opts...)
}

func spanAttributes(q *query, shard string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("query_id", q.id),
		attribute.String("shard", shard),
	)
}
