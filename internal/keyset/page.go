package keyset

import (
	"slices"
	"strings"

	"github.com/roach88/sqlitekit/internal/value"
)

// Page is one page of results.
type Page[R any] struct {
	Rows []R `json:"rows"`

	// NextCursor continues in the direction just traveled: pass it to
	// After after paging forward, or Before after paging backward. Nil
	// when HasMore is false.
	NextCursor []value.Value `json:"next_cursor"`

	HasMore bool `json:"has_more"`
}

// Shape turns the rows fetched by a Build query into a Page. It trims the
// sentinel row, restores forward order when paging backward, and takes
// the cursor from the last row (forward) or first row (backward) via
// cursorOf.
func Shape[R any](rows []R, pageSize int, backward bool, cursorOf func(R) ([]value.Value, error)) (*Page[R], error) {
	page := &Page[R]{Rows: rows}
	if len(rows) > pageSize {
		page.HasMore = true
		page.Rows = rows[:pageSize]
	}
	if backward {
		page.Rows = slices.Clone(page.Rows)
		slices.Reverse(page.Rows)
	}
	if page.Rows == nil {
		page.Rows = []R{}
	}
	if !page.HasMore || len(page.Rows) == 0 {
		return page, nil
	}

	edge := page.Rows[len(page.Rows)-1]
	if backward {
		edge = page.Rows[0]
	}
	cursor, err := cursorOf(edge)
	if err != nil {
		return nil, err
	}
	page.NextCursor = cursor
	return page, nil
}

// CursorFrom picks the keyset values out of one result row. A qualified
// keyset column such as "posts.id" also matches a result column named
// "id", since SQLite drops the qualifier from result names. Exact matches
// win over case-insensitive ones.
func CursorFrom(columns []string, values []value.Value, keyset []Column) ([]value.Value, error) {
	cursor := make([]value.Value, len(keyset))
	for i, k := range keyset {
		idx := columnIndex(columns, k.Name)
		if idx < 0 {
			if dot := strings.LastIndexByte(k.Name, '.'); dot >= 0 {
				idx = columnIndex(columns, k.Name[dot+1:])
			}
		}
		if idx < 0 || idx >= len(values) {
			return nil, &CursorColumnNotFoundError{Column: k.Name}
		}
		cursor[i] = values[idx]
	}
	return cursor, nil
}

func columnIndex(columns []string, name string) int {
	if i := slices.Index(columns, name); i >= 0 {
		return i
	}
	return slices.IndexFunc(columns, func(c string) bool { return strings.EqualFold(c, name) })
}
