// Package observer delivers committed row changes to subscribers.
//
// An ObservableDatabase wraps a connmgr.Database with a Broker. Every
// ObservableWriteGuard registers three native callbacks on the write
// connection:
//   - change capture: buffers a TableChange for each row touched in an
//     observed table
//   - commit: publishes the buffered changes to subscribers
//   - rollback: discards the buffer
//
// Nothing is published for work that does not commit. The callbacks are
// removed before the connection is released or handed back as a plain
// connmgr.WriteGuard, so a callback never fires for a later, unrelated
// holder of the connection.
//
// # Capture Modes
//
// Built with the sqlite_preupdate_hook tag, changes carry column-level old
// and new values and primary keys of any shape resolve from them. Without
// the tag the update hook is used: only the rowid is known and composite or
// non-integer keys are reported unresolved. SQLite never calls the update
// hook for WITHOUT ROWID tables, so observing one in such a build makes
// AcquireWriter fail with ErrWithoutRowidCapture instead of losing changes.
//
// Build and test with the tag to get value capture:
//
//	go test -tags sqlite_preupdate_hook ./...
//
// # Failed Statements
//
// SQLite undoes a failed statement, and ROLLBACK TO a savepoint, without
// calling the rollback hook. ObservableWriteGuard.ExecContext drops the
// changes buffered for such statements, so only writes that stay in the
// committed transaction are published. A statement run with the FAIL
// conflict resolution keeps the rows it changed before failing; those
// changes are dropped with the rest.
//
// # Delivery
//
// Subscribers receive from a bounded broadcast buffer. A subscriber that
// falls more than the buffer's capacity behind receives a Lagged event
// with the number of missed changes and continues from the oldest change
// still buffered. Changes published while nobody is subscribed are dropped.
//
// # Schema Resolution
//
// Primary-key layout comes from schema.TableInfo, resolved through the read
// pool each time a writer is acquired for every observed table not yet
// cached. A change for a table whose layout is not cached is still
// delivered, with KeyResolved false, the rowid set and no PrimaryKey.
package observer
