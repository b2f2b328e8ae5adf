package executor

import (
	"fmt"
)

// StoreIOError is a storage failure confined to one shard. The shard is
// reported as failed while the other shards keep producing results.
type StoreIOError struct {
	Shard string
	Err   error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("shard '%s': %v", e.Shard, e.Err)
}

func (e *StoreIOError) Unwrap() error {
	return e.Err
}

// EvaluationWarning records a document dropped because a predicate failed
// against it.
type EvaluationWarning struct {
	Shard string
	UID   string
	Err   error
}

func (w *EvaluationWarning) Error() string {
	return fmt.Sprintf("shard '%s', uid '%s': %v", w.Shard, w.UID, w.Err)
}

func (w *EvaluationWarning) Unwrap() error {
	return w.Err
}
