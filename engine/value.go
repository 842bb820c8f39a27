package engine

import "strconv"

// Kind identifies the semantic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBytes
)

// Value is one scalar cell produced by the query engine: an SQL NULL,
// a 64-bit integer, a 64-bit float, text, or a byte blob. The zero
// Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// IntValue returns an integer Value.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue returns a float Value.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// TextValue returns a text Value.
func TextValue(v string) Value { return Value{kind: KindText, s: v} }

// BytesValue returns a bytes Value. A nil or empty slice is a zero-length
// blob, which is distinct from null.
func BytesValue(v []byte) Value { return Value{kind: KindBytes, b: v} }

// Kind returns the semantic type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is an SQL NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer payload. Valid only when Kind is KindInt.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. Valid only when Kind is KindFloat.
func (v Value) Float() float64 { return v.f }

// Text returns the text payload. Valid only when Kind is KindText.
func (v Value) Text() string { return v.s }

// Bytes returns the blob payload. Valid only when Kind is KindBytes.
func (v Value) Bytes() []byte { return v.b }

// AsString renders the value as a string for use as a template parameter.
// Integers and floats are formatted in decimal; text passes through.
// Bytes and null are not representable and report false.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindText:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	default:
		return "", false
	}
}
