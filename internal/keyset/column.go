package keyset

import (
	"fmt"
	"strings"
)

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Reversed returns the opposite direction.
func (d Direction) Reversed() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// String returns "ASC" or "DESC".
func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// MarshalText encodes the direction as "asc" or "desc".
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(d.String())), nil
}

// UnmarshalText accepts "asc" or "desc", case-insensitively.
func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "asc":
		*d = Asc
	case "desc":
		*d = Desc
	default:
		return fmt.Errorf("invalid sort direction %q: want asc or desc", text)
	}
	return nil
}

// Column is one keyset entry.
type Column struct {
	Name      string    `json:"name" yaml:"name"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Ascending returns an ascending keyset column.
func Ascending(name string) Column {
	return Column{Name: name, Direction: Asc}
}

// Descending returns a descending keyset column.
func Descending(name string) Column {
	return Column{Name: name, Direction: Desc}
}

// Reversed returns keyset with every direction flipped.
func Reversed(keyset []Column) []Column {
	out := make([]Column, len(keyset))
	for i, c := range keyset {
		out[i] = Column{Name: c.Name, Direction: c.Direction.Reversed()}
	}
	return out
}

// ParseColumns parses "name[:asc|:desc],..." as used on the command line.
// A missing direction means ascending.
func ParseColumns(spec string) ([]Column, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, ErrEmptyKeyset
	}
	var cols []Column
	for _, part := range strings.Split(spec, ",") {
		name, dir, found := strings.Cut(strings.TrimSpace(part), ":")
		col := Column{Name: name}
		if found {
			if err := col.Direction.UnmarshalText([]byte(dir)); err != nil {
				return nil, err
			}
		}
		if err := ValidateColumnName(col.Name); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// ValidateColumnName checks name against [A-Za-z_][A-Za-z0-9_.]*.
func ValidateColumnName(name string) error {
	if name == "" {
		return &InvalidColumnNameError{Name: name}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '.'):
		default:
			return &InvalidColumnNameError{Name: name}
		}
	}
	return nil
}

// quoteColumn quotes each dot-separated part, so "posts.id" becomes
// "posts"."id".
func quoteColumn(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
