// Package store provides a SQLite-backed journal of rule firings.
//
// Each firing is stored once, keyed by its content-addressed id, together
// with the ordered list of working memory effects it caused (including the
// ones its action body made through the mutation facade).
//
// # Conventions
//
// Idempotency:
//   - firings.id is the PRIMARY KEY and writes use ON CONFLICT DO NOTHING
//   - a firing and its effects are written in one transaction
//
// Logical time:
//   - ordering uses seq and event_seq INTEGER columns, never timestamps
//   - every list query ends in ORDER BY seq ASC, id COLLATE BINARY ASC
//
// Values:
//   - fact snapshots are stored as RFC 8785 canonical JSON (ir.MarshalCanonical)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
