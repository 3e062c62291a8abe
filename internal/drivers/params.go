package drivers

import (
	"fmt"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

// Format declares how a parameter's external value maps onto the
// signed wire encoding.
type Format int

const (
	// FormatSigned parameters pass through unchanged.
	FormatSigned Format = iota
	// FormatUnsigned parameters occupy the full 0..256^size-1 external
	// range; values above the signed midpoint wrap to negative wire
	// values.
	FormatUnsigned
)

// Parameter describes one numeric device configuration parameter.
type Parameter struct {
	Number  byte
	Size    byte
	Format  Format
	Title   string
	Default int64
	Min     int64
	Max     int64
	// Hidden parameters are device-internal calibration state; they
	// are settable individually but excluded from bulk pushes.
	Hidden bool
}

// signedBounds returns the wire domain for a value size.
func signedBounds(size byte) (min, max int64) {
	span := int64(1) << (8 * uint(size))
	return -span / 2, span/2 - 1
}

// EncodeWire converts an external parameter value to its signed wire
// representation, validating against the descriptor's legal range.
func (p Parameter) EncodeWire(external int64) (int64, error) {
	if external < p.Min || external > p.Max {
		return 0, fmt.Errorf("%w: parameter %d value %d outside [%d, %d]",
			ErrValueOutOfRange, p.Number, external, p.Min, p.Max)
	}
	if p.Format == FormatUnsigned {
		_, signedMax := signedBounds(p.Size)
		if external > signedMax {
			span := int64(1) << (8 * uint(p.Size))
			return external - span, nil
		}
	}
	return external, nil
}

// DecodeExternal converts a signed wire value back to the external
// representation.
func (p Parameter) DecodeExternal(wire int64) int64 {
	if p.Format == FormatUnsigned && wire < 0 {
		span := int64(1) << (8 * uint(p.Size))
		return wire + span
	}
	return wire
}

// buildSet encodes an external value into a configuration set command.
func (p Parameter) buildSet(external int64) (*zwave.ConfigurationSet, error) {
	wire, err := p.EncodeWire(external)
	if err != nil {
		return nil, err
	}
	return &zwave.ConfigurationSet{Parameter: p.Number, Size: p.Size, Value: wire}, nil
}

// buildGet builds the read-back command paired with every write.
func (p Parameter) buildGet() *zwave.ConfigurationGet {
	return &zwave.ConfigurationGet{Parameter: p.Number}
}

// find returns the descriptor with the given number.
func find(params []Parameter, number byte) (Parameter, bool) {
	for _, p := range params {
		if p.Number == number {
			return p, true
		}
	}
	return Parameter{}, false
}

// buildPush builds the bulk configuration push for a descriptor table:
// a set followed by a read-back get for every visible parameter, using
// overrides where given and descriptor defaults otherwise. Hidden
// parameters are skipped.
func buildPush(params []Parameter, overrides map[byte]int64) ([]zwave.Command, error) {
	var cmds []zwave.Command
	for _, p := range params {
		if p.Hidden {
			continue
		}
		value := p.Default
		if v, ok := overrides[p.Number]; ok {
			value = v
		}
		set, err := p.buildSet(value)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, set, p.buildGet())
	}
	return cmds, nil
}
