package drivers

import "errors"

var (
	// ErrUnknownAction is returned for a capability action the driver
	// profile does not implement.
	ErrUnknownAction = errors.New("drivers: unknown action")

	// ErrUnknownParameter is returned when a set_parameter command
	// names a parameter absent from the device's descriptor table.
	ErrUnknownParameter = errors.New("drivers: unknown parameter")

	// ErrValueOutOfRange is returned when a parameter value falls
	// outside its descriptor's legal range.
	ErrValueOutOfRange = errors.New("drivers: parameter value out of range")

	// ErrInvalidDirection is returned when start_position_change
	// carries a direction outside {open, close}.
	ErrInvalidDirection = errors.New("drivers: invalid direction")
)
