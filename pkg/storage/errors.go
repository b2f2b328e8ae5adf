package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrIteratorDone is returned by iterators once they are exhausted.
	ErrIteratorDone = errors.New("iterator done")

	// ErrTransient marks errors worth retrying, such as a busy database.
	ErrTransient = errors.New("transient storage error")

	ErrInvalidRange = errors.New("invalid range")
	ErrCancelled    = errors.New("request has been cancelled")
	ErrNotFound     = errors.New("not found")
)

// TransientError wraps err so that errors.Is(err, ErrTransient) holds.
func TransientError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// InvalidRangeError reports a scan range whose start is past its end.
func InvalidRangeError(r Range) error {
	return fmt.Errorf("%w: %s", ErrInvalidRange, r)
}
