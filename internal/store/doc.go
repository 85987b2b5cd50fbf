// Package store provides the SQLite-backed deployment journal.
//
// The journal holds one row per (deployment, idempotency key) and is the
// only durable state of the orchestrator. Rows are never deleted except by
// an explicit Reset.
//
// # Durability
//
// Put runs in its own transaction and the database is opened with
// synchronous=FULL, so a returned nil error means the entry reached disk.
// A failed Put is reported to the caller and never retried here.
//
// # Deterministic Reads
//
//   - All ordering uses seq INTEGER (logical clock), never timestamps
//   - ListAll orders by seq ASC, idempotency_key ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=FULL: fsync on every commit
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Results and dependency lists are stored as RFC 8785 canonical JSON via
// internal/ir, so identical entries always serialize identically.
package store
