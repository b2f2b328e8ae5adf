package eval

import "fmt"

// CompilationError is returned when a query cannot be turned into an
// evaluator. It is fatal for the query.
type CompilationError struct {
	Node  string
	Cause error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile '%s': %v", e.Node, e.Cause)
}

func (e *CompilationError) Unwrap() error {
	return e.Cause
}

// EvaluationError is returned when a compiled predicate fails against one
// document.
type EvaluationError struct {
	Node  string
	Cause error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate '%s': %v", e.Node, e.Cause)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}
