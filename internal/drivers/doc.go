// Package drivers binds device profiles to their capability surfaces.
//
// Each driver translates capability commands (open, close,
// set_position, configure and friends) into Z-Wave commands, routes
// them through the supervision layer when the device negotiated it,
// and turns inbound reports into state events and telemetry.
//
// # Configuration Parameters
//
// Every profile declares a descriptor table of numeric device
// parameters. A configure push writes each visible parameter followed
// by a read-back get, so every write is reconciled against the
// device's view. Unsigned parameters wider than the signed wire
// midpoint are rescaled by 256^size crossing the codec boundary.
//
// # Optimistic State
//
// Position commands sent under supervision update semantic state from
// the acknowledgement alone: a Working status infers direction from
// the saved pre-command position, a Success status asserts arrival at
// the commanded level.
package drivers
