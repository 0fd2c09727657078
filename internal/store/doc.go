// Package store provides local persistence for the SCPNET client using SQLite.
//
// The local database serves three roles at once:
//
//   - Local registry: full accounts (with bcrypt password hashes) when no
//     remote backend is configured.
//   - Fallback mirror: a cached copy of remote personnel, reports, and
//     messages, read when the backend is unreachable and replaced wholesale
//     whenever a remote read succeeds.
//   - Localstore: a key to JSON-string mapping (KVStore) used for the session
//     cache and other small persisted state.
//
// # Data Models
//
//   - User: identity plus authorization (clearance, approval, super-admin)
//   - Report: incident/observation record with captured author clearance
//   - Message: append-only direct or broadcast chat message
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") for tests.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateEmail: email already registered
//
// All methods accept context.Context for cancellation support.
package store
