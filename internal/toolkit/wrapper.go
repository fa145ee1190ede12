package toolkit

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/observer"
)

// Writer is a held write connection. Both *connmgr.WriteGuard and
// *observer.ObservableWriteGuard satisfy it.
type Writer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Release() error
}

var (
	_ Writer = (*connmgr.WriteGuard)(nil)
	_ Writer = (*observer.ObservableWriteGuard)(nil)
)

// Option configures a Wrapper.
type Option func(*options)

type options struct {
	observe  bool
	observer observer.Config
}

// WithObserver enables change observation. Writes made through the
// wrapper publish committed changes to subscribers.
func WithObserver(cfg observer.Config) Option {
	return func(o *options) {
		o.observe = true
		o.observer = cfg
	}
}

// Wrapper is the query surface for one database. Safe for concurrent use.
type Wrapper struct {
	db     *connmgr.Database
	obs    *observer.ObservableDatabase
	logger *slog.Logger
}

// Connect opens the database at path and wraps it.
func Connect(ctx context.Context, path string, cfg *connmgr.Config, opts ...Option) (*Wrapper, error) {
	db, err := connmgr.Connect(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	return New(db, opts...), nil
}

// New wraps an open database.
func New(db *connmgr.Database, opts ...Option) *Wrapper {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	w := &Wrapper{db: db, logger: db.Logger()}
	if o.observe {
		if o.observer.Logger == nil {
			o.observer.Logger = db.Logger()
		}
		w.obs = observer.New(db, o.observer)
	}
	return w
}

// Database returns the underlying connection manager.
func (w *Wrapper) Database() *connmgr.Database {
	return w.db
}

// Observer returns the observable database, or nil when observation is
// disabled.
func (w *Wrapper) Observer() *observer.ObservableDatabase {
	return w.obs
}

// Path returns the absolute database path.
func (w *Wrapper) Path() string {
	return w.db.Path()
}

// AcquireWriter returns the write connection, observed when observation
// is enabled. The caller must Release it.
func (w *Wrapper) AcquireWriter(ctx context.Context) (Writer, error) {
	if w.obs != nil {
		return w.obs.AcquireWriter(ctx)
	}
	return w.db.AcquireWriter(ctx)
}

// Subscribe returns a receiver for committed changes to tables.
func (w *Wrapper) Subscribe(tables ...string) (*observer.Receiver, error) {
	if w.obs == nil {
		return nil, ErrObservationDisabled
	}
	return w.obs.Subscribe(tables...), nil
}

// SubscribeStream returns a filtered stream of committed changes.
func (w *Wrapper) SubscribeStream(tables ...string) (*observer.Stream, error) {
	if w.obs == nil {
		return nil, ErrObservationDisabled
	}
	return w.obs.SubscribeStream(tables...), nil
}

// Close shuts down observation and both pools. Idempotent.
func (w *Wrapper) Close() error {
	if w.obs != nil {
		w.obs.Broker().Close()
	}
	return w.db.Close()
}

// Remove closes the wrapper and deletes the database files.
func (w *Wrapper) Remove() error {
	if w.obs != nil {
		w.obs.Broker().Close()
	}
	return w.db.Remove()
}
