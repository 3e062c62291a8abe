// Package logging provides structured logging for the Z-Wave bridge.
//
// It wraps log/slog with configuration-driven handler selection (JSON or
// text), level filtering, and service-wide default fields. Components obtain
// scoped loggers via With:
//
//	log := logging.New(cfg.Logging, version)
//	supLog := log.With("component", "supervision")
package logging
