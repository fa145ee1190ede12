package toolkit

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/sqlitekit/internal/value"
)

// Row is one result row with columns in select order.
type Row struct {
	Columns []string
	Values  []value.Value
}

// Get returns the value of the named column.
func (r Row) Get(name string) (value.Value, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as an object, keeping column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeRows reads every row and closes rows.
func decodeRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Row{}
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		vals := make([]value.Value, len(cols))
		for i, r := range raw {
			v, err := value.FromDriver(r)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", cols[i], err)
			}
			vals[i] = v
		}
		out = append(out, Row{Columns: cols, Values: vals})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteResult reports the effect of one write statement.
type WriteResult struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

func writeResult(res sql.Result) (WriteResult, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return WriteResult{}, err
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

// toValues converts caller cursor values to Values.
func toValues(vals []any) ([]value.Value, error) {
	args, err := value.NormalizeAll(vals)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(args))
	for i, a := range args {
		if out[i], err = value.FromDriver(a); err != nil {
			return nil, err
		}
	}
	return out, nil
}
