// Package bridge orchestrates bidirectional translation between the
// MQTT command surface and the Z-Wave radio gateway.
//
// # Responsibilities
//
//   - Subscribe to the command wildcard topic, parse capability
//     commands and hand them to the per-device driver.
//   - Route inbound node frames: unwrap security and multi-channel
//     envelopes, settle supervision sessions, acknowledge supervised
//     device reports and dispatch the remainder to the driver.
//   - Publish attribute changes as retained state messages, command
//     acknowledgements and periodic health reports.
//
// # Message Flow
//
// Outbound: command topic -> driver -> supervision manager -> radio.
// Inbound: radio frame -> decode -> unwrap -> driver -> emitter ->
// state topic.
//
// The supervision manager owns session IDs and retries; the bridge
// only maps device IDs to node IDs and settles sessions when reports
// arrive.
package bridge
