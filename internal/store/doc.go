// Package store provides persistent verification state for gatewarden using SQLite.
//
// # Data Models
//
//   - UserRecord: per-(user, chat) verification state with activity counters
//   - ActivityEntry: append-only audit trail of joins, messages and captcha outcomes
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Writes are serialized behind a single connection and wrapped in per-call
// transactions: a row mutation and its activity log append commit together
// or not at all.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests; use NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
