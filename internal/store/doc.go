// Package store provides SQLite-backed durable storage for the change log.
//
// The store is an append-only log of ChangeEvents plus bookkeeping tables
// for replay sessions, per-event replay results, and rollback points.
//
// # Critical Patterns
//
// Append-only events
//   - Event payloads are never updated after insert; only the
//     processing-status marker moves (pending -> processing -> completed|failed).
//   - Duplicate event IDs are ignored via ON CONFLICT(id) DO NOTHING, making
//     Append idempotent for retried producers.
//
// Deterministic query results
//   - Sequential-replay reads order by timestamp ASC with the monotonic
//     insertion counter (seq) as the stable tie-break. Two reads over an
//     unmodified store always return identical orderings.
//
// Retention
//   - Cleanup applies per-severity day windows, then evicts oldest-first
//     over the absolute event cap.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: referential integrity for replay results
package store
