package keyset

import (
	"strconv"
	"strings"

	"github.com/roach88/sqlitekit/internal/value"
)

// Request describes one page fetch.
type Request struct {
	// BaseQuery is the caller's SELECT without ORDER BY or LIMIT.
	BaseQuery string

	// ParamCount is the number of bind values the caller supplies for
	// BaseQuery. Cursor placeholders start at ParamCount+1.
	ParamCount int

	Keyset   []Column
	PageSize int

	// Cursor, when non-nil, is the position to continue from, one value
	// per keyset column.
	Cursor []value.Value

	// Backward pages toward the start of the ordering.
	Backward bool
}

// Query is a compiled page query.
type Query struct {
	SQL string

	// Args are the cursor bind values in placeholder order, to be
	// appended after the caller's own values.
	Args []value.Value

	// Keyset is the ordering the SQL uses, flipped when paging backward.
	Keyset []Column
}

// Validate checks req in order: keyset, page size, cursor length, column
// names, base query.
func Validate(req Request) error {
	if len(req.Keyset) == 0 {
		return ErrEmptyKeyset
	}
	if req.PageSize <= 0 {
		return &InvalidPageSizeError{Size: req.PageSize}
	}
	if req.Cursor != nil && len(req.Cursor) != len(req.Keyset) {
		return &CursorLengthMismatchError{Expected: len(req.Keyset), Actual: len(req.Cursor)}
	}
	for _, c := range req.Keyset {
		if err := ValidateColumnName(c.Name); err != nil {
			return err
		}
	}
	return ValidateBaseQuery(req.BaseQuery)
}

// Build validates req and compiles the page query. It does no I/O.
func Build(req Request) (Query, error) {
	if err := Validate(req); err != nil {
		return Query{}, err
	}

	keyset := req.Keyset
	if req.Backward {
		keyset = Reversed(keyset)
	}

	sql := trimStatement(req.BaseQuery)
	res := scanTopLevel(sql)
	for _, w := range res.words {
		if compoundOperators[w.upper] {
			// WHERE cannot be spliced into one arm of a compound select.
			sql = "SELECT * FROM (" + terminate(sql) + ")"
			res = scanTopLevel(sql)
			break
		}
	}

	var args []value.Value
	if req.Cursor != nil {
		cond, bind := BuildCursorCondition(keyset, req.ParamCount+1)
		args = make([]value.Value, len(bind))
		for i, idx := range bind {
			args[i] = req.Cursor[idx]
		}
		sql = addCondition(sql, res, cond)
	}

	sql = terminate(sql) + " " + BuildOrderBy(keyset) + " LIMIT " + strconv.Itoa(req.PageSize+1)
	return Query{SQL: sql, Args: args, Keyset: keyset}, nil
}

// Operators returns the comparison operator of each branch of the cursor
// condition. A uniform keyset has a single branch compared as a row value;
// a mixed keyset has one branch per column.
func Operators(keyset []Column) (uniform bool, ops []string) {
	if len(keyset) == 0 {
		return true, nil
	}
	uniform = true
	for _, c := range keyset[1:] {
		if c.Direction != keyset[0].Direction {
			uniform = false
			break
		}
	}
	if uniform {
		return true, []string{seekOp(keyset[0].Direction)}
	}
	ops = make([]string, len(keyset))
	for i, c := range keyset {
		ops[i] = seekOp(c.Direction)
	}
	return false, ops
}

func seekOp(d Direction) string {
	if d == Desc {
		return "<"
	}
	return ">"
}

// BuildCursorCondition returns the seek predicate for keyset with
// placeholders numbered from firstParam, and for each placeholder the
// index of the cursor value it binds.
func BuildCursorCondition(keyset []Column, firstParam int) (string, []int) {
	uniform, ops := Operators(keyset)
	next := firstParam
	placeholder := func() string {
		p := "?" + strconv.Itoa(next)
		next++
		return p
	}

	if uniform {
		cols := make([]string, len(keyset))
		params := make([]string, len(keyset))
		bind := make([]int, len(keyset))
		for i, c := range keyset {
			cols[i] = quoteColumn(c.Name)
			params[i] = placeholder()
			bind[i] = i
		}
		return "(" + strings.Join(cols, ", ") + ") " + ops[0] + " (" + strings.Join(params, ", ") + ")", bind
	}

	var (
		branches []string
		bind     []int
	)
	for level := range keyset {
		parts := make([]string, 0, level+1)
		for eq := 0; eq < level; eq++ {
			parts = append(parts, quoteColumn(keyset[eq].Name)+" = "+placeholder())
			bind = append(bind, eq)
		}
		parts = append(parts, quoteColumn(keyset[level].Name)+" "+ops[level]+" "+placeholder())
		bind = append(bind, level)
		branches = append(branches, "("+strings.Join(parts, " AND ")+")")
	}
	return strings.Join(branches, " OR "), bind
}

// BuildOrderBy returns the ORDER BY clause for keyset.
func BuildOrderBy(keyset []Column) string {
	parts := make([]string, len(keyset))
	for i, c := range keyset {
		parts[i] = quoteColumn(c.Name) + " " + c.Direction.String()
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// addCondition splices cond into sql. An existing top-level WHERE
// predicate is parenthesised and ANDed with cond; otherwise a WHERE is
// added. Either way cond lands before any GROUP BY, HAVING or WINDOW.
func addCondition(sql string, res scanResult, cond string) string {
	where := res.find("WHERE", 0)
	from := 0
	if where >= 0 {
		from = where + 1
	}
	tail := len(sql)
	for _, w := range res.words[from:] {
		if trailingClauses[w.upper] {
			tail = w.start
			break
		}
	}
	rest := strings.TrimSpace(sql[tail:])

	var out string
	if where >= 0 {
		kw := res.words[where]
		pred := terminate(strings.TrimSpace(sql[kw.end:tail]))
		out = sql[:kw.start] + "WHERE (" + pred + ") AND (" + cond + ")"
	} else {
		out = terminate(strings.TrimRight(sql[:tail], " \t\r\n")) + " WHERE (" + cond + ")"
	}
	if rest != "" {
		out += " " + rest
	}
	return out
}

// trimStatement drops trailing whitespace and semicolons.
func trimStatement(sql string) string {
	for {
		trimmed := strings.TrimRight(sql, " \t\r\n")
		trimmed = strings.TrimSuffix(trimmed, ";")
		if trimmed == sql {
			return sql
		}
		sql = trimmed
	}
}

// terminate ends a trailing line comment so text appended after s is not
// swallowed by it.
func terminate(s string) string {
	if scanTopLevel(s).openLineComment {
		return s + "\n"
	}
	return s
}
