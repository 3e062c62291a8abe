// Package database provides SQLite persistence for the Z-Wave bridge.
//
// It wraps database/sql with the mattn/go-sqlite3 driver, applying WAL
// mode, busy timeouts and restrictive file permissions, and runs embedded
// SQL migrations on startup.
//
// The bridge stores device records (node id, profile, cached manufacturer
// metadata) and per-device supervision session counters. The pending
// supervision packet table is deliberately not persisted; it is transient
// in-memory state that does not need to survive a restart.
package database
