package txn

import (
	"context"
	"sync"

	"github.com/roach88/sqlitekit/internal/toolkit"
)

// Session is an open interruptible transaction. Methods are safe for
// concurrent use and serialize on the session.
type Session struct {
	id    string
	token string

	mu     sync.Mutex
	writer toolkit.Writer
	done   bool
	end    func()
}

// ID identifies the session; it is the database path.
func (s *Session) ID() string { return s.id }

// Token must accompany every call on the session.
func (s *Session) Token() string { return s.token }

func (s *Session) check(token string) error {
	if token != s.token {
		return toolkit.ErrInvalidTransactionToken
	}
	return nil
}

// Continue runs stmts inside the transaction. A failing statement leaves
// the session open.
func (s *Session) Continue(ctx context.Context, token string, stmts []toolkit.Statement) ([]toolkit.WriteResult, error) {
	if err := s.check(token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, toolkit.ErrTransactionAlreadyFinalized
	}
	return toolkit.ExecStatements(ctx, s.writer, stmts)
}

// Read runs a query inside the transaction, seeing its uncommitted writes.
func (s *Session) Read(ctx context.Context, token, query string, values ...any) ([]toolkit.Row, error) {
	if err := s.check(token); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, toolkit.ErrTransactionAlreadyFinalized
	}
	return toolkit.QueryWriter(ctx, s.writer, query, values...)
}

// Commit commits and ends the session.
func (s *Session) Commit(ctx context.Context, token string) error {
	return s.finish(ctx, token, "COMMIT")
}

// Rollback rolls back and ends the session.
func (s *Session) Rollback(ctx context.Context, token string) error {
	return s.finish(ctx, token, "ROLLBACK")
}

func (s *Session) finish(ctx context.Context, token, stmt string) error {
	if err := s.check(token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return toolkit.ErrTransactionAlreadyFinalized
	}
	s.done = true
	defer s.end()

	_, err := s.writer.ExecContext(ctx, stmt)
	// Release rolls back whatever a failed COMMIT left open.
	relErr := s.writer.Release()
	if err != nil {
		return err
	}
	return relErr
}

// abort ends the session without committing. Safe to call after finish.
func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	defer s.end()
	_ = s.writer.Release()
}
