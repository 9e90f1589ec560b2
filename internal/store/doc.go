// Package store is the persistence layer: reminders, per-owner scheduling
// preferences and the task execution log.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory": in-process map store, used by tests and ephemeral runs
//
// Due-population queries are always recomputed from persisted state, never
// from an in-memory queue, so a repeated trigger cannot double-fire a
// reminder that already left the active status.
package store
