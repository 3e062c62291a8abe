package zwave

import "sync/atomic"

// Encapsulator wraps outgoing commands in the transport envelopes a
// device requires: multi-channel routing first, security framing
// outermost. The S2 sequence number rotates per encapsulator and is
// safe for concurrent use.
type Encapsulator struct {
	sequence atomic.Uint32
}

// Encapsulate encodes cmd and applies envelopes. A non-zero endpoint
// adds multi-channel routing from the root device; secure adds the
// framing-only S2 envelope around the result.
func (e *Encapsulator) Encapsulate(cmd Command, endpoint byte, secure bool) ([]byte, error) {
	payload, err := cmd.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if endpoint > 0 {
		mc := &MultiChannelCmdEncap{SourceEndpoint: 0, DestEndpoint: endpoint, Payload: payload}
		if payload, err = mc.MarshalBinary(); err != nil {
			return nil, err
		}
	}
	if secure {
		s2 := &Security2MessageEncapsulation{
			Sequence: byte(e.sequence.Add(1)),
			Payload:  payload,
		}
		if payload, err = s2.MarshalBinary(); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Unwrap strips transport envelopes from an inbound command, returning
// the innermost application command and the source endpoint it arrived
// from (0 for the root device).
func Unwrap(cmd Command, vt VersionTable) (Command, byte, error) {
	endpoint := byte(0)
	for {
		switch c := cmd.(type) {
		case *Security2MessageEncapsulation:
			inner, err := Decode(c.Payload, vt)
			if err != nil {
				return nil, 0, err
			}
			cmd = inner
		case *MultiChannelCmdEncap:
			inner, err := Decode(c.Payload, vt)
			if err != nil {
				return nil, 0, err
			}
			endpoint = c.SourceEndpoint
			cmd = inner
		default:
			return cmd, endpoint, nil
		}
	}
}
