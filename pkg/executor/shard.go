package executor

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/internal/concurrency"
	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/iterator"
	"github.com/shardquery/shardquery/pkg/keys"
	"github.com/shardquery/shardquery/pkg/storage"
	"github.com/shardquery/shardquery/pkg/telemetry"
)

// ShardState is the lifecycle of one shard scan:
//
//	Init -> Seeking -> Emitting -> Exhausted | Interrupted | Failed
type ShardState int

const (
	ShardInit ShardState = iota
	ShardSeeking
	ShardEmitting
	ShardExhausted
	ShardInterrupted
	ShardFailed
)

func (s ShardState) String() string {
	switch s {
	case ShardInit:
		return "init"
	case ShardSeeking:
		return "seeking"
	case ShardEmitting:
		return "emitting"
	case ShardExhausted:
		return "exhausted"
	case ShardInterrupted:
		return "interrupted"
	case ShardFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the scan has ended.
func (s ShardState) Terminal() bool {
	return s >= ShardExhausted
}

// ShardReport describes the scan of one shard.
type ShardReport struct {
	Shard   string
	State   ShardState
	Emitted int
	// LastKey is the key of the last document emitted, usable as a resume
	// key.
	LastKey keys.DocKey
	Err     error
}

type shardScan struct {
	executor *Executor
	query    *query
	results  *Results
	index    int
	shard    string
}

func (s *shardScan) run(ctx context.Context, out chan<- *document.Document) {
	ctx, span := tracer.Start(ctx, "executor.scanShard", spanAttributes(s.query, s.shard))
	defer span.End()

	s.results.transition(s.index, ShardSeeking)

	src := iterator.Source{
		Reader:    s.executor.store,
		Shard:     s.shard,
		Filters:   s.query.filters,
		Snapshot:  s.query.plan.Snapshot(),
		BatchSize: s.executor.scanBatchSize,
	}
	root, err := s.executor.tree(s.query, src)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	defer root.Stop()

	if r, ok := s.bounds(); ok {
		if err := iterator.Seek(ctx, root, r); err != nil {
			s.fail(ctx, err)
			return
		}
	}
	if err := root.Initialize(ctx); err != nil {
		s.end(ctx, err)
		return
	}

	s.results.transition(s.index, ShardEmitting)
	for {
		k, err := root.Next(ctx)
		if err != nil {
			s.end(ctx, err)
			return
		}
		if !s.wanted(k) {
			continue
		}

		doc, err := s.query.assembler.Assemble(ctx, s.shard, k, s.query.filters, root.Document())
		if err != nil {
			s.end(ctx, err)
			return
		}
		documentsAssembledCounter.Inc()
		if doc.Empty() {
			continue
		}

		ok, err := s.query.evaluator.Evaluate(doc)
		if err != nil {
			evaluationErrorsCounter.Inc()
			s.results.warn(&EvaluationWarning{Shard: s.shard, UID: doc.UID(), Err: err})
			s.executor.logger.WarnWithContext(ctx, "dropping document after evaluation error",
				zap.String("shard", s.shard),
				zap.String("uid", doc.UID()),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		if !s.results.claim() {
			s.finish(ShardExhausted, nil)
			return
		}
		if !concurrency.Send(ctx, doc, out) {
			s.results.unclaim()
			s.finish(ShardInterrupted, ctx.Err())
			return
		}
		documentsEmittedCounter.Inc()
		s.results.recordEmit(s.index, k)
	}
}

// bounds returns the key range the tree is restricted to: past the resume
// key on the resume shard, and within the requested record type when there
// is exactly one.
func (s *shardScan) bounds() (storage.Range, bool) {
	var r storage.Range
	restricted := false
	if resume := s.query.resume; resume != nil && resume.Shard == s.shard && resume.Key != "" {
		r.Start = []byte(resume.Key.Successor())
		restricted = true
	}
	if len(s.query.dataTypes) == 1 {
		for dt := range s.query.dataTypes {
			start := []byte(keys.DataTypeStart(dt))
			r = r.Intersect(storage.Range{Start: start, End: keys.PrefixEnd(start)})
		}
		restricted = true
	}
	return r, restricted
}

func (s *shardScan) wanted(k keys.DocKey) bool {
	if len(s.query.dataTypes) < 2 {
		return true
	}
	_, ok := s.query.dataTypes[k.DataType()]
	return ok
}

// end maps the error that stopped iteration to a final state.
func (s *shardScan) end(ctx context.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrIteratorDone):
		s.finish(ShardExhausted, nil)
	case errors.Is(err, iterator.ErrInterrupted), ctx.Err() != nil:
		s.executor.logger.DebugWithContext(ctx, "shard scan interrupted", zap.String("shard", s.shard), zap.Error(err))
		s.finish(ShardInterrupted, err)
	default:
		s.fail(ctx, err)
	}
}

func (s *shardScan) fail(ctx context.Context, err error) {
	ioErr := &StoreIOError{Shard: s.shard, Err: err}
	telemetry.TraceError(trace.SpanFromContext(ctx), ioErr)
	s.executor.logger.ErrorWithContext(ctx, "shard scan failed", zap.String("shard", s.shard), zap.Error(err))
	s.results.warn(ioErr)
	s.finish(ShardFailed, ioErr)
}

func (s *shardScan) finish(state ShardState, err error) {
	shardScansCounter.WithLabelValues(state.String()).Inc()
	s.results.finish(s.index, state, err)
}
