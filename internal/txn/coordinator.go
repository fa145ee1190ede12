package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/sqlitekit/internal/metrics"
	"github.com/roach88/sqlitekit/internal/toolkit"
)

// ErrAborted is returned by Begin when AbortAll ran while the session was
// being opened.
var ErrAborted = errors.New("transaction aborted")

// Config configures a Coordinator.
type Config struct {
	// Tokens generates session tokens. Nil uses UUIDGenerator.
	Tokens TokenGenerator

	Logger *slog.Logger
}

// Coordinator tracks interruptible sessions, one per database, and the
// cancel functions of in-flight atomic transactions.
type Coordinator struct {
	tokens TokenGenerator
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	inflight map[string]context.CancelFunc
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Tokens == nil {
		cfg.Tokens = UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		tokens:   cfg.Tokens,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Begin opens an interruptible session on w's database: it takes the
// writer, issues BEGIN IMMEDIATE and runs initial. The slot is reserved
// before the writer is acquired, so a second Begin fails immediately with
// *toolkit.TransactionAlreadyActiveError instead of queueing.
func (c *Coordinator) Begin(ctx context.Context, w *toolkit.Wrapper, initial []toolkit.Statement) (*Session, error) {
	key := w.Path()
	s := &Session{id: key, token: c.tokens.Generate()}
	s.end = func() { c.remove(s) }

	c.mu.Lock()
	if _, ok := c.sessions[key]; ok {
		c.mu.Unlock()
		return nil, &toolkit.TransactionAlreadyActiveError{Database: key}
	}
	c.sessions[key] = s
	c.mu.Unlock()

	writer, err := c.open(ctx, w, initial)
	if err != nil {
		c.unreserve(s)
		return nil, err
	}

	c.mu.Lock()
	if c.sessions[key] != s {
		c.mu.Unlock()
		_ = writer.Release()
		return nil, ErrAborted
	}
	s.writer = writer
	c.mu.Unlock()

	metrics.InterruptibleSessions.Inc()
	c.logger.Debug("interruptible transaction started", "database", key)
	return s, nil
}

func (c *Coordinator) open(ctx context.Context, w *toolkit.Wrapper, initial []toolkit.Statement) (toolkit.Writer, error) {
	writer, err := w.AcquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := writer.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		_ = writer.Release()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := toolkit.ExecStatements(ctx, writer, initial); err != nil {
		err = toolkit.Rollback(ctx, writer, err)
		_ = writer.Release()
		return nil, err
	}
	return writer, nil
}

// lookup returns the active session for key after checking token.
func (c *Coordinator) lookup(key, token string) (*Session, error) {
	c.mu.Lock()
	s, ok := c.sessions[key]
	active := ok && s.writer != nil
	c.mu.Unlock()
	if !active {
		return nil, &toolkit.NoActiveTransactionError{Database: key}
	}
	if err := s.check(token); err != nil {
		return nil, err
	}
	return s, nil
}

// Continue runs stmts in the session for key.
func (c *Coordinator) Continue(ctx context.Context, key, token string, stmts []toolkit.Statement) ([]toolkit.WriteResult, error) {
	s, err := c.lookup(key, token)
	if err != nil {
		return nil, err
	}
	return s.Continue(ctx, token, stmts)
}

// Read queries inside the session for key.
func (c *Coordinator) Read(ctx context.Context, key, token, query string, values ...any) ([]toolkit.Row, error) {
	s, err := c.lookup(key, token)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, token, query, values...)
}

// Commit commits the session for key. A wrong token leaves it open.
func (c *Coordinator) Commit(ctx context.Context, key, token string) error {
	s, err := c.lookup(key, token)
	if err != nil {
		return err
	}
	if err := s.Commit(ctx, token); err != nil {
		return err
	}
	c.logger.Debug("interruptible transaction committed", "database", key)
	return nil
}

// Rollback rolls back the session for key.
func (c *Coordinator) Rollback(ctx context.Context, key, token string) error {
	s, err := c.lookup(key, token)
	if err != nil {
		return err
	}
	if err := s.Rollback(ctx, token); err != nil {
		return err
	}
	c.logger.Debug("interruptible transaction rolled back", "database", key)
	return nil
}

// Active reports whether key has an open session.
func (c *Coordinator) Active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[key]
	return ok && s.writer != nil
}

// InFlight returns the number of running atomic transactions.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// RunAtomic runs stmts through w.ExecuteTransaction and keeps its cancel
// function registered until it returns, so AbortAll can stop it.
func (c *Coordinator) RunAtomic(ctx context.Context, w *toolkit.Wrapper, stmts []toolkit.Statement) ([]toolkit.WriteResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	key := w.Path() + "#" + c.tokens.Generate()

	c.mu.Lock()
	c.inflight[key] = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		cancel()
	}()

	return w.ExecuteTransaction(ctx, stmts)
}

// AbortAll ends every open session, rolling each back, and cancels every
// in-flight atomic transaction. Used on shutdown.
func (c *Coordinator) AbortAll() {
	c.mu.Lock()
	sessions := c.sessions
	inflight := c.inflight
	c.sessions = make(map[string]*Session)
	c.inflight = make(map[string]context.CancelFunc)
	c.mu.Unlock()

	c.logger.Debug("aborting transactions", "interruptible", len(sessions), "atomic", len(inflight))

	for key, cancel := range inflight {
		c.logger.Debug("cancelling atomic transaction", "key", key)
		cancel()
	}
	for key, s := range sessions {
		if s.writer == nil {
			// Still opening; Begin notices and releases.
			continue
		}
		c.logger.Debug("dropping interruptible transaction", "database", key)
		s.abort()
	}
}

// remove drops s from the registry once it has ended.
func (c *Coordinator) remove(s *Session) {
	c.mu.Lock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
	}
	c.mu.Unlock()
	metrics.InterruptibleSessions.Dec()
}

// unreserve drops a reservation that never became active.
func (c *Coordinator) unreserve(s *Session) {
	c.mu.Lock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
	}
	c.mu.Unlock()
}
