package protobuilder

import "tracemetrics/engine"

// RepeatedBuilder accumulates scalar and bytes contributions into one
// ordered boxed list, typically one contribution per row of a group. It is
// owned by the surrounding aggregate context for exactly one computation.
type RepeatedBuilder struct {
	elems   [][]byte
	hasData bool
}

// NewRepeated returns an empty accumulator.
func NewRepeated() *RepeatedBuilder {
	return &RepeatedBuilder{}
}

// AddValue appends one element, dispatching on the value's kind. A null
// contribution adds an explicit zero-length bytes element, which is
// distinct from adding nothing at all.
func (r *RepeatedBuilder) AddValue(v engine.Value) {
	switch v.Kind() {
	case engine.KindInt:
		r.AddInt(v.Int())
	case engine.KindFloat:
		r.AddFloat(v.Float())
	case engine.KindText:
		r.AddText(v.Text())
	case engine.KindBytes:
		r.AddBytes(v.Bytes())
	case engine.KindNull:
		r.AddBytes(nil)
	}
}

// AddInt appends one integer element.
func (r *RepeatedBuilder) AddInt(v int64) {
	r.hasData = true
	r.elems = append(r.elems, encodeIntElem(v))
}

// AddFloat appends one float element.
func (r *RepeatedBuilder) AddFloat(v float64) {
	r.hasData = true
	r.elems = append(r.elems, encodeDoubleElem(v))
}

// AddText appends one string element.
func (r *RepeatedBuilder) AddText(v string) {
	r.hasData = true
	r.elems = append(r.elems, encodeStringElem(v))
}

// AddBytes appends one bytes element. A nil or empty slice is legal and
// encodes a zero-length element.
func (r *RepeatedBuilder) AddBytes(v []byte) {
	r.hasData = true
	r.elems = append(r.elems, encodeBytesElem(v))
}

// SerializeEnveloped returns the boxed Repeated envelope holding every
// element in insertion order. If nothing was ever added it returns nil,
// which callers surface as null one layer up.
func (r *RepeatedBuilder) SerializeEnveloped() []byte {
	if !r.hasData {
		return nil
	}
	var rep []byte
	for _, e := range r.elems {
		rep = appendTagBytes(rep, repeatedValueField, e)
	}
	var env []byte
	env = appendTagVarint(env, envIsRepeatedField, 1)
	env = appendTagBytes(env, envRepeatedField, rep)
	return env
}
