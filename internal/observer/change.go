package observer

import (
	"fmt"
	"time"

	"github.com/roach88/sqlitekit/internal/value"
)

// Operation is the kind of row change.
type Operation int

const (
	Insert Operation = iota + 1
	Update
	Delete
)

func (o Operation) String() string {
	switch o {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// TableChange is one committed row change. It is never mutated after
// capture.
type TableChange struct {
	Table     string    `json:"table"`
	Operation Operation `json:"operation"`

	// Rowid is nil for WITHOUT ROWID tables.
	Rowid *int64 `json:"rowid,omitempty"`

	// PrimaryKey holds the key values in key order. Empty when
	// KeyResolved is false.
	PrimaryKey []value.Value `json:"primary_key"`

	// KeyResolved is false when the table's layout was not cached or the
	// captured values did not cover the key.
	KeyResolved bool `json:"key_resolved"`

	// OldValues is the pre-image (update, delete); NewValues the
	// post-image (insert, update). Both are nil when values are not
	// captured.
	OldValues []value.Value `json:"old_values,omitempty"`
	NewValues []value.Value `json:"new_values,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
