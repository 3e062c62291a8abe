package zwave

import "errors"

// Domain errors for the Z-Wave codec.
var (
	// ErrInvalidPayload is returned when a payload is too short or
	// structurally malformed for its declared command.
	ErrInvalidPayload = errors.New("zwave: invalid command payload")

	// ErrInvalidValue is returned when encoding a command with an
	// out-of-range field value.
	ErrInvalidValue = errors.New("zwave: invalid field value")

	// ErrInvalidSize is returned when a configuration value size is not
	// 1, 2 or 4 bytes.
	ErrInvalidSize = errors.New("zwave: invalid value size (must be 1, 2 or 4)")
)
