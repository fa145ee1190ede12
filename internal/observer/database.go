package observer

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlitekit/internal/connmgr"
)

// ObservableDatabase pairs a connmgr.Database with a Broker. Writers
// acquired through it publish committed changes to subscribers.
type ObservableDatabase struct {
	db     *connmgr.Database
	broker *Broker
}

// New wraps db with a broker built from cfg. A nil cfg.Logger uses the
// database's logger.
func New(db *connmgr.Database, cfg Config) *ObservableDatabase {
	if cfg.Logger == nil {
		cfg.Logger = db.Logger()
	}
	return &ObservableDatabase{db: db, broker: NewBroker(cfg)}
}

// Database returns the wrapped database.
func (o *ObservableDatabase) Database() *connmgr.Database {
	return o.db
}

// Broker returns the change broker.
func (o *ObservableDatabase) Broker() *Broker {
	return o.broker
}

// Subscribe observes tables and returns an unfiltered receiver.
func (o *ObservableDatabase) Subscribe(tables ...string) *Receiver {
	return o.broker.Subscribe(tables...)
}

// SubscribeStream observes tables and returns a stream delivering only
// their changes, plus lag markers.
func (o *ObservableDatabase) SubscribeStream(tables ...string) *Stream {
	return NewStream(o.broker.Subscribe(tables...), tables...)
}

// AcquireWriter resolves missing table layouts, acquires the write
// connection and installs the change callbacks on it. Without the
// sqlite_preupdate_hook build tag it refuses with a HookRegistrationError
// wrapping ErrWithoutRowidCapture while a WITHOUT ROWID table is observed.
func (o *ObservableDatabase) AcquireWriter(ctx context.Context) (*ObservableWriteGuard, error) {
	pool, err := o.db.ReadPool()
	if err != nil {
		return nil, err
	}
	o.broker.EnsureTableInfo(ctx, pool)
	if err := o.broker.checkCapturable(); err != nil {
		o.broker.logger.Error("observed table cannot be captured", "error", err)
		return nil, &HookRegistrationError{Op: "register", Err: err}
	}

	inner, err := o.db.AcquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	g := &ObservableWriteGuard{inner: inner, adapter: newHookAdapter(o.broker)}
	if err := g.register(); err != nil {
		inner.Release()
		return nil, err
	}
	return g, nil
}

// ObservableWriteGuard is a write guard with change callbacks installed.
// Release or IntoInner must be called; each removes the callbacks before
// the connection can be used by anyone else.
type ObservableWriteGuard struct {
	inner   *connmgr.WriteGuard
	adapter *hookAdapter

	mu         sync.Mutex
	registered bool
	done       bool
}

// Guard returns the underlying write guard. Statements run on it bypass
// ExecContext's handling of failed statements and savepoints. Do not
// Release it directly.
func (g *ObservableWriteGuard) Guard() *connmgr.WriteGuard {
	return g.inner
}

// ExecContext executes a statement on the write connection. Changes
// captured for a statement that fails are dropped, since SQLite undoes
// them without a rollback; so are changes undone by ROLLBACK TO.
func (g *ObservableWriteGuard) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	mark := g.adapter.mark()
	res, err := g.inner.ExecContext(ctx, query, args...)
	if err != nil {
		g.adapter.truncate(mark)
		return res, err
	}
	g.adapter.track(query, mark)
	return res, nil
}

// QueryContext runs a query on the write connection.
func (g *ObservableWriteGuard) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return g.inner.QueryContext(ctx, query, args...)
}

// register installs the callbacks. Calling it while registered is a no-op.
func (g *ObservableWriteGuard) register() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.registered {
		return nil
	}
	if err := g.inner.Raw(func(c *sqlite3.SQLiteConn) error {
		g.adapter.install(c)
		return nil
	}); err != nil {
		return &HookRegistrationError{Op: "register", Err: err}
	}
	g.registered = true
	return nil
}

// unregister removes the callbacks and drops uncommitted changes.
func (g *ObservableWriteGuard) unregister() error {
	if !g.registered {
		return nil
	}
	err := g.inner.Raw(func(c *sqlite3.SQLiteConn) error {
		uninstall(c)
		return nil
	})
	g.adapter.discard()
	if err != nil {
		return &HookRegistrationError{Op: "unregister", Err: err}
	}
	g.registered = false
	return nil
}

// Release removes the callbacks and releases the write connection, rolling
// back any open transaction. Release is idempotent.
func (g *ObservableWriteGuard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	g.done = true
	hookErr := g.unregister()
	return errors.Join(hookErr, g.inner.Release())
}

// IntoInner removes the callbacks and hands back the plain write guard.
// Changes buffered but not yet committed are dropped. After IntoInner,
// Release on g is a no-op and the caller owns the returned guard.
func (g *ObservableWriteGuard) IntoInner() (*connmgr.WriteGuard, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil, errors.New("observable write guard already released")
	}
	g.done = true
	if err := g.unregister(); err != nil {
		g.inner.Release()
		return nil, err
	}
	return g.inner, nil
}
