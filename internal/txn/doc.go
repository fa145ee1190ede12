// Package txn coordinates transactions that outlive a single call.
//
// An interruptible session holds a database's write connection between
// calls. Each database has at most one session, and every call on it
// presents the token returned by Begin. Sessions end with Commit,
// Rollback or AbortAll; a session that is dropped rolls back when its
// writer is released.
//
// RunAtomic runs an all-or-nothing batch that AbortAll can cancel while it
// is in flight.
package txn
