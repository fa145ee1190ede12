package connmgr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// AttachedMode selects how an attached database is opened.
type AttachedMode int

const (
	// ReadOnly attaches the file with mode=ro. Allowed on readers and writers.
	ReadOnly AttachedMode = iota
	// ReadWrite attaches the file writable. Writers only; the attached
	// database's own write guard is held for the attachment's lifetime.
	ReadWrite
)

func (m AttachedMode) String() string {
	switch m {
	case ReadOnly:
		return "read_only"
	case ReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("AttachedMode(%d)", int(m))
	}
}

// AttachedSpec names a database to attach and the schema alias to use.
type AttachedSpec struct {
	Database *Database
	Alias    string
	Mode     AttachedMode
}

var aliasPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateAlias(alias string) error {
	lower := strings.ToLower(alias)
	if !aliasPattern.MatchString(alias) || lower == "main" || lower == "temp" {
		return &InvalidAliasError{Alias: alias}
	}
	return nil
}

// AttachedConn is a single connection with extra databases attached.
// DetachAll must be called exactly once when done.
type AttachedConn struct {
	conn    *sql.Conn
	owner   *Database
	writer  *WriteGuard
	guards  []*WriteGuard
	aliases []string

	once      sync.Once
	detachErr error
}

// Conn returns the connection carrying the attachments.
func (a *AttachedConn) Conn() *sql.Conn {
	return a.conn
}

// Writer returns the write guard when the connection came from
// AcquireWriterWithAttached, or nil for a reader.
func (a *AttachedConn) Writer() *WriteGuard {
	return a.writer
}

// Aliases returns the attached schema names in attach order.
func (a *AttachedConn) Aliases() []string {
	return slices.Clone(a.aliases)
}

// ExecContext executes a statement on the attached connection.
func (a *AttachedConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the attached connection.
func (a *AttachedConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.conn.QueryContext(ctx, query, args...)
}

// DetachAll detaches every alias and releases the connection and any
// write guards held for ReadWrite attachments. If a detach fails the
// connection is discarded and the first error is returned. Subsequent
// calls return the same result.
func (a *AttachedConn) DetachAll(ctx context.Context) error {
	a.once.Do(func() {
		a.detachErr = a.detachAll(ctx)
	})
	return a.detachErr
}

func (a *AttachedConn) detachAll(ctx context.Context) error {
	var errs []error
	failed := false
	// Detach in reverse attach order.
	for i := len(a.aliases) - 1; i >= 0; i-- {
		alias := a.aliases[i]
		if _, err := a.conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE "+quoteIdent(alias)); err != nil {
			errs = append(errs, fmt.Errorf("detach %s: %w", alias, err))
			failed = true
		}
	}

	if failed {
		a.owner.logger.Warn("detach failed, discarding connection", "path", a.owner.path, "aliases", a.aliases)
		if a.writer != nil {
			a.writer.discard()
		} else {
			discard(a.conn)
		}
	} else if a.writer != nil {
		if err := a.writer.Release(); err != nil {
			errs = append(errs, err)
		}
	} else if err := a.conn.Close(); err != nil {
		errs = append(errs, err)
	}

	for _, g := range a.guards {
		if err := g.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AcquireReaderWithAttached takes one connection from the read pool and
// attaches specs to it. Only ReadOnly specs are accepted.
func (db *Database) AcquireReaderWithAttached(ctx context.Context, specs []AttachedSpec) (*AttachedConn, error) {
	if db.closed.Load() {
		return nil, ErrDatabaseClosed
	}
	for _, s := range specs {
		if s.Mode != ReadOnly {
			return nil, ErrReadWriteAttachOnReader
		}
	}
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}

	conn, err := db.readPool.Conn(ctx)
	if err != nil {
		if db.closed.Load() {
			return nil, ErrDatabaseClosed
		}
		return nil, fmt.Errorf("acquire reader: %w", err)
	}
	a := &AttachedConn{conn: conn, owner: db}
	if err := a.attach(ctx, specs); err != nil {
		_ = a.DetachAll(ctx)
		return nil, err
	}
	return a, nil
}

// AcquireWriterWithAttached acquires this database's write guard and the
// write guards of every ReadWrite attachment, then attaches specs to the
// write connection. Guards are taken in path order so two callers
// attaching each other's databases cannot deadlock.
func (db *Database) AcquireWriterWithAttached(ctx context.Context, specs []AttachedSpec) (*AttachedConn, error) {
	if db.closed.Load() {
		return nil, ErrDatabaseClosed
	}
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}

	// Collect every database needing its write lock, deduplicated by path.
	lockSet := map[string]*Database{db.path: db}
	for _, s := range specs {
		if s.Mode == ReadWrite {
			lockSet[s.Database.path] = s.Database
		}
	}
	paths := make([]string, 0, len(lockSet))
	for p := range lockSet {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	a := &AttachedConn{owner: db}
	for _, p := range paths {
		g, err := lockSet[p].AcquireWriter(ctx)
		if err != nil {
			if a.writer != nil {
				_ = a.writer.Release()
			}
			for _, held := range a.guards {
				_ = held.Release()
			}
			return nil, fmt.Errorf("acquire writer for %s: %w", p, err)
		}
		if p == db.path {
			a.writer = g
			a.conn = g.Conn()
		} else {
			a.guards = append(a.guards, g)
		}
	}

	if err := a.attach(ctx, specs); err != nil {
		_ = a.DetachAll(ctx)
		return nil, err
	}
	return a, nil
}

func validateSpecs(specs []AttachedSpec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Database == nil {
			return fmt.Errorf("attachment %q has no database", s.Alias)
		}
		if s.Database.IsClosed() {
			return fmt.Errorf("attachment %q: %w", s.Alias, ErrDatabaseClosed)
		}
		if err := validateAlias(s.Alias); err != nil {
			return err
		}
		key := strings.ToLower(s.Alias)
		if seen[key] {
			return fmt.Errorf("duplicate attachment alias %q", s.Alias)
		}
		seen[key] = true
	}
	return nil
}

func (a *AttachedConn) attach(ctx context.Context, specs []AttachedSpec) error {
	for _, s := range specs {
		target := s.Database.path
		if s.Mode == ReadOnly {
			target = readOnlyURI(target)
		}
		if _, err := a.conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+quoteIdent(s.Alias), target); err != nil {
			return fmt.Errorf("attach %s as %s: %w", s.Database.path, s.Alias, err)
		}
		a.aliases = append(a.aliases, s.Alias)
	}
	return nil
}

// readOnlyURI builds a SQLite URI filename opening path read-only.
func readOnlyURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: "mode=ro"}
	return u.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
