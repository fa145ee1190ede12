package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a sealed interface over the SQLite storage classes.
// Only Null, Integer, Real, Text and Blob implement it.
type Value interface {
	value() // Sealed

	// Arg returns the value as a database/sql driver argument.
	Arg() any

	// Kind names the storage class ("null", "integer", "real", "text", "blob").
	Kind() string
}

// Null is SQL NULL. Use the zero value.
type Null struct{}

func (Null) value()       {}
func (Null) Arg() any     { return nil }
func (Null) Kind() string { return "null" }

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Integer is a 64-bit signed integer.
type Integer int64

func (Integer) value()         {}
func (i Integer) Arg() any     { return int64(i) }
func (Integer) Kind() string   { return "integer" }
func (i Integer) Int64() int64 { return int64(i) }

// Real is a 64-bit IEEE float.
type Real float64

func (Real) value()       {}
func (r Real) Arg() any   { return float64(r) }
func (Real) Kind() string { return "real" }

// MarshalJSON implements json.Marshaler for Real.
// NaN and infinities have no JSON form and encode as null.
func (r Real) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// Text is a UTF-8 string.
type Text string

func (Text) value()       {}
func (t Text) Arg() any   { return string(t) }
func (Text) Kind() string { return "text" }

// Blob is raw binary data.
type Blob []byte

func (Blob) value()       {}
func (b Blob) Arg() any   { return []byte(b) }
func (Blob) Kind() string { return "blob" }

// MarshalJSON encodes a Blob as a standard base64 string.
func (b Blob) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports whether two values have the same storage class and contents.
// A nil Value equals Null.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case Integer:
		bv, ok := b.(Integer)
		return ok && av == bv
	case Real:
		bv, ok := b.(Real)
		return ok && av == bv
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Blob:
		bv, ok := b.(Blob)
		return ok && bytes.Equal(av, bv)
	default:
		return false
	}
}

// String renders v for human-readable output.
func String(v Value) string {
	switch tv := v.(type) {
	case nil, Null:
		return "NULL"
	case Integer:
		return strconv.FormatInt(int64(tv), 10)
	case Real:
		return strconv.FormatFloat(float64(tv), 'g', -1, 64)
	case Text:
		return string(tv)
	case Blob:
		return fmt.Sprintf("x'%x'", []byte(tv))
	default:
		return fmt.Sprintf("%v", tv)
	}
}

// Args converts values to driver arguments, preserving order.
func Args(vals []Value) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		if v == nil {
			args[i] = nil
			continue
		}
		args[i] = v.Arg()
	}
	return args
}
