// Package connmgr manages SQLite connections with separate read and write pools.
//
// A Database owns two database/sql pools over the same file:
//   - Read pool: up to Config.MaxReadConnections query-only connections
//     used for concurrent reads.
//   - Write pool: exactly one connection. Holding it (a WriteGuard) is the
//     lock for mutating access; there is no other writer mutex.
//
// # Write-Ahead Logging
//
// WAL journal mode is enabled lazily, exactly once, on the first successful
// AcquireWriter for the lifetime of a Database. Readers opened before that
// point keep working; SQLite switches them over on their next transaction.
//
// # Lifecycle
//
// Close flips the closed flag and closes both pools. Remove additionally
// deletes the database file and its -wal/-shm sidecars. Every operation
// after Close or Remove fails with ErrDatabaseClosed.
//
// # Attached Databases
//
// AcquireReaderWithAttached and AcquireWriterWithAttached return a single
// connection with other database files attached under caller-chosen
// aliases. The caller must call AttachedConn.DetachAll; if detaching fails
// the connection is discarded rather than returned to its pool, so an
// attachment never leaks into an unrelated caller's connection.
package connmgr
