// Package supervision implements application-level acknowledgement
// tracking for supervised Z-Wave commands.
//
// # Session Model
//
// Each device rotates a 6-bit session identifier; the last-used value
// is persisted through CounterStore before transmission so a restart
// never reissues an identifier that may still be in flight. Pending
// packets are transient and deliberately not persisted: a packet that
// does not survive the process was fire-and-forget to begin with.
//
// # Retry Behavior
//
// The first retry waits max(500ms per pending packet, BaseDelay) plus
// Margin, scaling the grace period with device load. Subsequent
// retries use the fixed RetryDelay. A packet is resent byte-identical
// up to Retries times, then dropped; the loss is reported through the
// result callback as ErrRetriesExhausted.
//
// # Settlement
//
// Any Supervision Report status settles its session: Working, Success,
// Fail and No-Support all remove the pending packet and quiet the
// retry timer. Long-running motor operations continue on the device
// after a Working report; tracking them is the caller's concern.
// Duplicate or stale reports miss the table lookup and are no-ops.
package supervision
