package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimeFormat is used when the driver hands back a time.Time for a column
// declared DATE, DATETIME or TIMESTAMP. It matches the first layout the
// mattn/go-sqlite3 driver writes.
const TimeFormat = "2006-01-02 15:04:05.999999999-07:00"

// UnsupportedTypeError reports a driver value with no storage-class mapping.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported datatype: %s", e.Type)
}

// FromDriver converts a value scanned from database/sql into a Value.
//
// The mattn driver decodes by declared column type, so booleans and
// timestamps can surface here: bool maps to Integer 0/1 (its storage form)
// and time.Time maps to Text.
func FromDriver(src any) (Value, error) {
	switch v := src.(type) {
	case nil:
		return Null{}, nil
	case int64:
		return Integer(v), nil
	case int:
		return Integer(v), nil
	case int32:
		return Integer(v), nil
	case float64:
		return Real(v), nil
	case float32:
		return Real(v), nil
	case string:
		return Text(v), nil
	case []byte:
		// database/sql reuses scan buffers; copy before retaining.
		b := make([]byte, len(v))
		copy(b, v)
		return Blob(b), nil
	case bool:
		if v {
			return Integer(1), nil
		}
		return Integer(0), nil
	case time.Time:
		return Text(v.Format(TimeFormat)), nil
	case Value:
		return v, nil
	default:
		return nil, &UnsupportedTypeError{Type: fmt.Sprintf("%T", src)}
	}
}

// Normalize converts a caller-supplied bind value into a driver argument.
//
// Accepted inputs are nil, strings, signed and unsigned integers, floats,
// []byte, bool, json.Number and Value. Unsigned integers above
// math.MaxInt64 and json.Numbers that do not fit int64 fall back to
// float64, losing precision.
func Normalize(v any) (any, error) {
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case Value:
		return tv.Arg(), nil
	case string:
		return tv, nil
	case []byte:
		return tv, nil
	case bool:
		if tv {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(tv), nil
	case int8:
		return int64(tv), nil
	case int16:
		return int64(tv), nil
	case int32:
		return int64(tv), nil
	case int64:
		return tv, nil
	case uint:
		return fromUint64(uint64(tv)), nil
	case uint8:
		return int64(tv), nil
	case uint16:
		return int64(tv), nil
	case uint32:
		return int64(tv), nil
	case uint64:
		return fromUint64(tv), nil
	case float32:
		return float64(tv), nil
	case float64:
		return tv, nil
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(tv.String(), 10, 64); err == nil {
			return fromUint64(u), nil
		}
		f, err := tv.Float64()
		if err != nil {
			return nil, fmt.Errorf("normalize json number %q: %w", tv.String(), err)
		}
		return f, nil
	default:
		return nil, &UnsupportedTypeError{Type: fmt.Sprintf("%T", v)}
	}
}

// NormalizeAll applies Normalize to every element of vals.
func NormalizeAll(vals []any) ([]any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("bind value %d: %w", i+1, err)
		}
		out[i] = n
	}
	return out, nil
}

func fromUint64(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return float64(u)
}
