// Package state maps raw position value/target pairs and supervision
// acknowledgements to semantic barrier and shade states, and
// suppresses repeat emissions of unchanged state.
package state

// State is the semantic position state of a barrier or shade.
type State string

const (
	Closed        State = "closed"
	Open          State = "open"
	Opening       State = "opening"
	Closing       State = "closing"
	Stopped       State = "stopped"
	PartiallyOpen State = "partially-open"
	Unknown       State = "unknown"
)

// Contact is the binary projection of a barrier position for
// contact-sensor consumers. It reads closed only at the fully closed
// position; every other state, transitional ones included, reads open.
type Contact string

const (
	ContactClosed Contact = "closed"
	ContactOpen   Contact = "open"
)

// Position domain constants. Positions run 0 (closed) to 99 (open);
// 254 is the in-transition/unknown sentinel reported by barrier
// devices and by uncalibrated shades.
const (
	PositionClosed byte = 0
	PositionOpen   byte = 99
	PositionMoving byte = 254
)

// InferGate resolves a barrier device's value/target pair. The value
// conventions are discrete: 0 closed, 99 open, 254 in transition. A
// moving value branches on the target; a moving target on a moving
// value means the motor halted mid-travel, reported as Stopped when
// the device is configured to report stops and Unknown otherwise. Any
// other value is an uncalibrated or malformed report and resolves to
// Unknown.
func InferGate(value, target byte, reportStopped bool) State {
	switch value {
	case PositionClosed:
		return Closed
	case PositionOpen:
		return Open
	case PositionMoving:
		switch target {
		case PositionClosed:
			return Closing
		case PositionOpen:
			return Opening
		case PositionMoving:
			if reportStopped {
				return Stopped
			}
			return Unknown
		}
	}
	return Unknown
}

// InferShade resolves a continuous-position shade's value/target pair.
// Values above 99 mean the device has not been calibrated. Direction
// follows the sign of target minus value; a settled mid-range position
// is partially open.
func InferShade(value, target byte) State {
	if value > PositionOpen || target > PositionOpen {
		return Unknown
	}
	switch {
	case value == PositionClosed && target == PositionClosed:
		return Closed
	case value == PositionOpen && target == PositionOpen:
		return Open
	case value > target:
		return Closing
	case value < target:
		return Opening
	default:
		return PartiallyOpen
	}
}

// ContactFromPosition projects a barrier position onto the contact
// vocabulary.
func ContactFromPosition(value byte) Contact {
	if value == PositionClosed {
		return ContactClosed
	}
	return ContactOpen
}
