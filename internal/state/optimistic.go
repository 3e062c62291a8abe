package state

import "github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"

// InferFunc resolves a value/target pair for one device profile.
type InferFunc func(value, target byte) State

// GateInfer adapts InferGate to an InferFunc with the device's
// stop-reporting preference bound in.
func GateInfer(reportStopped bool) InferFunc {
	return func(value, target byte) State {
		return InferGate(value, target, reportStopped)
	}
}

// ShadeInfer is the InferFunc for continuous-position shades.
func ShadeInfer() InferFunc {
	return InferShade
}

// PolicyRule maps one supervision acknowledgement to the value/target
// pair fed to the profile's inference, given the saved pre-command
// position and the commanded level.
type PolicyRule func(saved, level byte) (value, target byte)

// Policy maps supervision status bytes to inference rules. The policy
// is owned by the device profile, so status quirks are data on the
// profile rather than branches in shared code. Statuses absent from
// the policy produce no state.
type Policy map[byte]PolicyRule

// DefaultPolicy returns the standard acknowledgement policy: Working
// means the motor accepted the command and is in transit from the
// saved position toward the commanded level; Success means the device
// is at rest at the commanded level. Failure statuses have no entry.
func DefaultPolicy() Policy {
	return Policy{
		zwave.SupervisionStatusWorking: func(saved, level byte) (byte, byte) {
			return saved, level
		},
		zwave.SupervisionStatusSuccess: func(_, level byte) (byte, byte) {
			return level, level
		},
	}
}

// Optimistic derives a semantic state from a supervision
// acknowledgement for a position command, without waiting for the
// device to report. The profile's policy selects the value/target rule
// for the status; statuses outside the policy produce no state and
// report ok false.
func Optimistic(policy Policy, infer InferFunc, status, savedPosition, commandedLevel byte) (s State, ok bool) {
	rule, ok := policy[status]
	if !ok {
		return Unknown, false
	}
	value, target := rule(savedPosition, commandedLevel)
	return infer(value, target), true
}
