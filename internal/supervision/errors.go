package supervision

import "errors"

var (
	// ErrRetriesExhausted is delivered through the result callback when
	// a supervised command never received a report within its retry
	// budget.
	ErrRetriesExhausted = errors.New("supervision: retries exhausted without report")

	// ErrClosed is returned by Send after the manager has been shut
	// down.
	ErrClosed = errors.New("supervision: manager closed")
)
