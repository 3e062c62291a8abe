package device

import "errors"

var (
	// ErrNotFound is returned when no device record matches the given
	// identifier or node address.
	ErrNotFound = errors.New("device: not found")
)
