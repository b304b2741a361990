// Package store provides the SQLite-backed session journal.
//
// Every event the engine applies is appended with its logical seq, its kind,
// a canonical JSON payload, and the log entries it prepended. The journal is
// an audit trail for the trace and replay commands. It is never used to
// restore state into a new interactive session.
//
// # Critical Patterns
//
// Logical Time:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Queries include ORDER BY seq ASC (and position ASC for entries)
//
// Canonical Payloads:
//   - Payloads are RFC 8785 canonical JSON (sorted keys, no whitespace,
//     NFC-normalized strings), so identical events journal identically
//
// Append Only:
//   - Rows are never updated. A duplicate (session_id, seq) is an error.
//
// # Database Configuration
//
// Pragmas are passed to go-sqlite3 as DSN parameters, so every pooled
// connection gets them. Schema upgrades are tracked in PRAGMA user_version.
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
