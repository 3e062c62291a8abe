package radio

import "errors"

var (
	// ErrConnectionFailed indicates the gateway connection or handshake
	// failed.
	ErrConnectionFailed = errors.New("radio: connection failed")

	// ErrNotConnected is returned when sending while disconnected.
	ErrNotConnected = errors.New("radio: not connected")

	// ErrSendFailed indicates a frame write failed.
	ErrSendFailed = errors.New("radio: send failed")

	// ErrInvalidFrame indicates a malformed gateway frame.
	ErrInvalidFrame = errors.New("radio: invalid frame")

	// ErrProtocolDesync indicates an oversized or unreadable message
	// that makes the stream position untrustworthy. The connection is
	// dropped and re-established rather than guessed at.
	ErrProtocolDesync = errors.New("radio: protocol desync")
)
