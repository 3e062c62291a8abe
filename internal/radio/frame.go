package radio

import (
	"encoding/binary"
	"fmt"
)

// Gateway message types. Every message on the socket is framed as
// size(2) + type(2) + payload, size counting the type and payload but
// not itself.
const (
	// MsgOpenSession opens application frame mode after connecting.
	MsgOpenSession uint16 = 0x0001
	// MsgNodeFrame carries one application command to or from a node.
	MsgNodeFrame uint16 = 0x0010
)

// openSessionPayload requests bidirectional application frames,
// protocol revision 1.
var openSessionPayload = []byte{0x01, 0x00}

// Frame is one application command crossing the gateway socket. NodeID
// addresses the Z-Wave node; Payload is the command class bytes,
// security and multi-channel envelopes included.
type Frame struct {
	NodeID  byte
	Payload []byte
}

// Encode serializes the frame into a node frame message payload.
func (f Frame) Encode() []byte {
	out := make([]byte, 0, 1+len(f.Payload))
	out = append(out, f.NodeID)
	return append(out, f.Payload...)
}

// ParseFrame decodes a node frame message payload.
func ParseFrame(payload []byte) (Frame, error) {
	// Node byte plus at least class and command.
	if len(payload) < 3 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(payload))
	}
	return Frame{NodeID: payload[0], Payload: payload[1:]}, nil
}

// EncodeMessage wraps a typed payload in the gateway wire framing.
func EncodeMessage(msgType uint16, payload []byte) []byte {
	msg := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(msg[0:2], uint16(2+len(payload)))
	binary.BigEndian.PutUint16(msg[2:4], msgType)
	copy(msg[4:], payload)
	return msg
}

// ParseMessage splits a complete wire message into type and payload.
func ParseMessage(msg []byte) (uint16, []byte, error) {
	if len(msg) < 4 {
		return 0, nil, fmt.Errorf("%w: message too short (%d bytes)", ErrInvalidFrame, len(msg))
	}
	size := binary.BigEndian.Uint16(msg[0:2])
	if int(size) != len(msg)-2 {
		return 0, nil, fmt.Errorf("%w: declared size %d, actual %d", ErrInvalidFrame, size, len(msg)-2)
	}
	return binary.BigEndian.Uint16(msg[2:4]), msg[4:], nil
}
