// Package store exports accumulator snapshots to SQLite.
//
// The database is a read projection for the presentation layer, not a
// way to resume a session: every WriteSnapshot replaces all rows of its
// session in one transaction. Each entity kind has its own table keyed by
// (session_id, id); id lists are stored as canonical JSON arrays.
//
// Reads are ordered deterministically (ORDER BY id, or key COLLATE BINARY)
// so the same snapshot always reads back the same way.
package store
