// Package zwave implements the application-layer command codec for the
// Z-Wave command classes the bridge speaks.
//
// # Command Model
//
// Every supported command is a concrete type implementing Command. The
// set is closed: Decode is the single switch mapping wire payloads to
// types, and anything outside the set decodes to UnknownCommand rather
// than an error, so new device chatter never breaks inbound routing.
//
// # Wire Format
//
// Payloads start with the command class byte followed by the command
// byte. Multi-byte integers are big-endian two's complement. Sensor and
// meter readings carry a precision field; the decoded Value is already
// scaled by 10^precision.
//
// # Encapsulation
//
// Encapsulator applies outgoing transport envelopes (multi-channel
// routing, then the framing-only S2 envelope) and Unwrap strips them
// from inbound commands. The S2 envelope here carries only a rotating
// sequence number; encryption is the radio gateway's job.
package zwave
