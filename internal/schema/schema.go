// Package schema reads the table metadata needed to identify changed rows:
// primary-key column order and whether a table is stored WITHOUT ROWID.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// TableInfo is the cached metadata for one table.
type TableInfo struct {
	// Name is the table name as stored in sqlite_master.
	Name string

	// Columns lists column names in declaration order.
	Columns []string

	// Types holds each column's declared type, parallel to Columns.
	Types []string

	// PKColumns holds column indexes (into Columns) of the declared primary
	// key, ordered by key position rather than declaration order. Empty
	// when the table declares no primary key.
	PKColumns []int

	// WithoutRowid is true for tables created WITHOUT ROWID.
	WithoutRowid bool

	// IntegerPK is true when the primary key is a single INTEGER column on
	// a rowid table, making it an alias for the rowid.
	IntegerPK bool
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tableOptionsPattern only matches the option list after the closing
// paren at the end of the statement, so the words inside literals or
// comments in the column list do not count.
var (
	tableOptionsPattern = regexp.MustCompile(`(?i)\)\s*((?:STRICT|WITHOUT\s+ROWID)(?:\s*,\s*(?:STRICT|WITHOUT\s+ROWID))*)\s*;?\s*$`)
	withoutRowidOption  = regexp.MustCompile(`(?i)WITHOUT\s+ROWID`)
)

// HasWithoutRowidClause reports whether a CREATE TABLE statement's table
// options, such as "STRICT, WITHOUT ROWID", include WITHOUT ROWID.
func HasWithoutRowidClause(createSQL string) bool {
	m := tableOptionsPattern.FindStringSubmatch(createSQL)
	return m != nil && withoutRowidOption.MatchString(m[1])
}

// QuoteIdentifier quotes name as a SQL identifier, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type pkColumn struct {
	ordinal  int
	index    int
	declType string
}

// QueryTableInfo returns metadata for table, or nil with no error when the
// table does not exist.
func QueryTableInfo(ctx context.Context, q Querier, table string) (*TableInfo, error) {
	var createSQL sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&createSQL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up table %s: %w", table, err)
	}

	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+QuoteIdentifier(table)+")")
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	info := &TableInfo{
		Name:         table,
		WithoutRowid: HasWithoutRowidClause(createSQL.String),
		PKColumns:    []int{},
	}
	var pks []pkColumn
	for rows.Next() {
		var (
			cid      int
			name     string
			declType string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		info.Columns = append(info.Columns, name)
		info.Types = append(info.Types, declType)
		if pk > 0 {
			pks = append(pks, pkColumn{ordinal: pk, index: cid, declType: declType})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}

	slices.SortFunc(pks, func(a, b pkColumn) int { return a.ordinal - b.ordinal })
	for _, c := range pks {
		info.PKColumns = append(info.PKColumns, c.index)
	}
	info.IntegerPK = !info.WithoutRowid && len(pks) == 1 && strings.EqualFold(strings.TrimSpace(pks[0].declType), "INTEGER")
	return info, nil
}

// PKColumnNames returns the primary-key column names in key order.
func (t *TableInfo) PKColumnNames() []string {
	names := make([]string, len(t.PKColumns))
	for i, idx := range t.PKColumns {
		names[i] = t.Columns[idx]
	}
	return names
}

// Affinity is a column's type affinity.
type Affinity int

const (
	AffinityBlob Affinity = iota
	AffinityText
	AffinityNumeric
	AffinityInteger
	AffinityReal
)

// AffinityOf applies SQLite's rules for deriving affinity from a declared
// column type. Rules are checked in order; an empty type is BLOB.
func AffinityOf(declType string) Affinity {
	t := strings.ToUpper(declType)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityReal
	default:
		return AffinityNumeric
	}
}

// ColumnAffinity returns the affinity of column i, or AffinityBlob when i
// is out of range.
func (t *TableInfo) ColumnAffinity(i int) Affinity {
	if i < 0 || i >= len(t.Types) {
		return AffinityBlob
	}
	return AffinityOf(t.Types[i])
}
