// Package config loads and validates the Z-Wave bridge configuration.
//
// Configuration is read from a single YAML file, merged over built-in
// defaults, and a small set of deployment-specific values (broker host,
// credentials, radio endpoint, database path) can be overridden through
// ZWBRIDGE_* environment variables.
//
// The device list in the configuration only seeds the device store on first
// start; it never overwrites existing records.
package config
