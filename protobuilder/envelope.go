package protobuilder

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxMessageSize is the largest blob the decode paths accept. The limit is
// enforced only when decoding: a builder may in principle grow past it and
// will be rejected by whichever consumer decodes the result.
const MaxMessageSize = 1<<28 - 1

// The boxed envelope is a small fixed protobuf schema that carries a typed
// value through the relational engine as an opaque blob:
//
//	Envelope { bool is_repeated = 1; Single single = 2; Repeated repeated = 3; }
//	Single   { uint32 type = 1; string type_name = 2; bytes payload = 3; }
//	Repeated { repeated Elem value = 1; }
//	Elem     { oneof { int64 int_value = 1; double double_value = 2;
//	                   string string_value = 3; bytes bytes_value = 4; } }
//
// The field numbers are a wire contract and must not change.
const (
	envIsRepeatedField = 1
	envSingleField     = 2
	envRepeatedField   = 3

	singleTypeField     = 1
	singleTypeNameField = 2
	singlePayloadField  = 3

	repeatedValueField = 1

	elemIntField    = 1
	elemDoubleField = 2
	elemStringField = 3
	elemBytesField  = 4
)

// encodeSingleEnvelope wraps payload in a Single envelope declaring the
// given schema type number and fully-qualified type name.
func encodeSingleEnvelope(typ uint32, typeName string, payload []byte) []byte {
	var single []byte
	single = protowire.AppendTag(single, singleTypeField, protowire.VarintType)
	single = protowire.AppendVarint(single, uint64(typ))
	single = protowire.AppendTag(single, singleTypeNameField, protowire.BytesType)
	single = protowire.AppendString(single, typeName)
	single = protowire.AppendTag(single, singlePayloadField, protowire.BytesType)
	single = protowire.AppendBytes(single, payload)

	var env []byte
	env = protowire.AppendTag(env, envIsRepeatedField, protowire.VarintType)
	env = protowire.AppendVarint(env, 0)
	env = protowire.AppendTag(env, envSingleField, protowire.BytesType)
	env = protowire.AppendBytes(env, single)
	return env
}

type envelope struct {
	isRepeated bool
	single     []byte
	repeated   []byte
}

func parseEnvelope(data []byte) (envelope, error) {
	var e envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return e, fmt.Errorf("malformed envelope: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == envIsRepeatedField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, fmt.Errorf("malformed envelope: %w", protowire.ParseError(n))
			}
			e.isRepeated = v != 0
			data = data[n:]
		case num == envSingleField && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, fmt.Errorf("malformed envelope: %w", protowire.ParseError(n))
			}
			e.single = b
			data = data[n:]
		case num == envRepeatedField && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, fmt.Errorf("malformed envelope: %w", protowire.ParseError(n))
			}
			e.repeated = b
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return e, fmt.Errorf("malformed envelope: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return e, nil
}

type singleRecord struct {
	typ        uint32
	typeName   string
	payload    []byte
	hasPayload bool
}

func parseSingle(data []byte) (singleRecord, error) {
	var s singleRecord
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return s, fmt.Errorf("malformed single record: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == singleTypeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return s, fmt.Errorf("malformed single record: %w", protowire.ParseError(n))
			}
			s.typ = uint32(v)
			data = data[n:]
		case num == singleTypeNameField && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return s, fmt.Errorf("malformed single record: %w", protowire.ParseError(n))
			}
			s.typeName = string(b)
			data = data[n:]
		case num == singlePayloadField && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return s, fmt.Errorf("malformed single record: %w", protowire.ParseError(n))
			}
			s.payload = b
			s.hasPayload = true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return s, fmt.Errorf("malformed single record: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return s, nil
}

// DecodeSingle validates a Single envelope against the expected schema type
// number and type name and returns its payload. The caller must have
// rejected zero-sized input already; a zero-sized payload inside the
// envelope is an error because absence should have been represented as null
// one layer up.
func DecodeSingle(data []byte, wantType uint32, wantTypeName string) ([]byte, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("message has size %d which is larger than the maximum allowed message size %d", len(data), MaxMessageSize)
	}
	env, err := parseEnvelope(data)
	if err != nil {
		return nil, err
	}
	if env.isRepeated {
		return nil, fmt.Errorf("cannot handle nested repeated messages")
	}
	single, err := parseSingle(env.single)
	if err != nil {
		return nil, err
	}
	if single.typ != wantType {
		return nil, fmt.Errorf("message field has wrong wire type %d", single.typ)
	}
	if single.typeName != wantTypeName {
		return nil, fmt.Errorf("field has wrong type (expected %s, was %s)", wantTypeName, single.typeName)
	}
	if !single.hasPayload {
		return nil, fmt.Errorf("message has no proto bytes")
	}
	if len(single.payload) == 0 {
		return nil, fmt.Errorf("field has zero size")
	}
	return single.payload, nil
}

type elemKind int

const (
	elemInt elemKind = iota
	elemDouble
	elemString
	elemBytes
)

type repeatedElem struct {
	kind elemKind
	i    int64
	f    float64
	s    string
	b    []byte
}

// parseRepeated decodes the element list of a Repeated envelope, in order.
func parseRepeated(data []byte) ([]repeatedElem, error) {
	var elems []repeatedElem
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("malformed repeated record: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if num != repeatedValueField || typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("malformed repeated record: %w", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		b, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("malformed repeated record: %w", protowire.ParseError(n))
		}
		data = data[n:]
		elem, err := parseElem(b)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return elems, nil
}

func parseElem(data []byte) (repeatedElem, error) {
	var e repeatedElem
	seen := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return e, fmt.Errorf("malformed repeated element: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == elemIntField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, fmt.Errorf("malformed repeated element: %w", protowire.ParseError(n))
			}
			e.kind, e.i = elemInt, int64(v)
			seen = true
			data = data[n:]
		case num == elemDoubleField && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return e, fmt.Errorf("malformed repeated element: %w", protowire.ParseError(n))
			}
			e.kind, e.f = elemDouble, math.Float64frombits(v)
			seen = true
			data = data[n:]
		case num == elemStringField && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, fmt.Errorf("malformed repeated element: %w", protowire.ParseError(n))
			}
			e.kind, e.s = elemString, string(b)
			seen = true
			data = data[n:]
		case num == elemBytesField && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, fmt.Errorf("malformed repeated element: %w", protowire.ParseError(n))
			}
			e.kind, e.b = elemBytes, b
			seen = true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return e, fmt.Errorf("malformed repeated element: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if !seen {
		return e, fmt.Errorf("unknown type in repeated field")
	}
	return e, nil
}

func appendTagVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendTagBytes(b []byte, num protowire.Number, data []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

func encodeIntElem(v int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, elemIntField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v))
	return b
}

func encodeDoubleElem(v float64) []byte {
	var b []byte
	b = protowire.AppendTag(b, elemDoubleField, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(v))
	return b
}

func encodeStringElem(v string) []byte {
	var b []byte
	b = protowire.AppendTag(b, elemStringField, protowire.BytesType)
	b = protowire.AppendString(b, v)
	return b
}

func encodeBytesElem(v []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, elemBytesField, protowire.BytesType)
	b = protowire.AppendBytes(b, v)
	return b
}
