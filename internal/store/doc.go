// Package store provides durable storage for events and data payloads.
//
// The store is a passive collaborator: it persists exactly what it is told
// and never decides status transitions. Two backends implement the Store
// interface:
//   - SQLiteStore: a single SQLite file (tables events and data)
//   - MemoryStore: process-local maps, for tests and ephemeral use
//
// # Single Writer
//
// Every operation on a store instance is submitted to one serial.Queue, so
// concurrent callers never interleave statements against the connection.
// Multi-step sequences (select, then mark Sending) are serialized by the
// caller; the controller runs them on its own queue.
//
// # Ordering
//
// Every select is ordered by id ascending. Ids are AUTOINCREMENT and are
// never reused, so id order is insertion order.
//
// # Time
//
// Timestamps are stored as INTEGER Unix microseconds in UTC. The zero
// time.Time is stored as 0, so next_try_at = 0 means "as soon as possible"
// and expires_at = 0 means "never".
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// # Errors
//
// Failures surface as *StoreError with kind OPEN, EXECUTE or PARSE. Only
// OPEN errors (construction and migration) are fatal to the caller.
package store
