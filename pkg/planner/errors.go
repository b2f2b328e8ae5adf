package planner

import (
	"errors"
	"fmt"
)

// ErrNoAnchor is wrapped by every PlanningError.
var ErrNoAnchor = errors.New("no index-drivable anchor")

// PlanningError is returned when a query has no finite index-drivable path
// and a full scan was not allowed.
type PlanningError struct {
	Query  string
	Term   string
	Reason string
}

func (e *PlanningError) Error() string {
	if e.Query == "" || e.Query == e.Term {
		return fmt.Sprintf("cannot plan '%s': %s", e.Term, e.Reason)
	}
	return fmt.Sprintf("cannot plan '%s': %s at '%s'", e.Query, e.Reason, e.Term)
}

func (e *PlanningError) Unwrap() error {
	return ErrNoAnchor
}
