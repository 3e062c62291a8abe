// Package radio implements the socket client for the Z-Wave gateway
// daemon.
//
// The gateway owns the radio hardware, the mesh routing and the S2
// security layer; this client exchanges application frames with it
// over a Unix or TCP socket. Wire messages are framed as a big-endian
// size, a message type and a payload; a node frame payload is the node
// address followed by the raw command class bytes.
//
// The client reconnects automatically with exponential backoff and
// delivers inbound frames through a bounded worker pool, dropping
// frames rather than blocking the receive loop when consumers fall
// behind.
package radio
