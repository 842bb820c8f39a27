// Package protobuilder assembles protobuf messages field by field from
// loosely-typed scalar values, validating every append against a runtime
// descriptor pool instead of compiled-in message types. Typed values cross
// the relational engine as boxed envelopes (see envelope.go) so that
// submessages and repeated fields can be built incrementally across
// separate query results.
package protobuilder

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"

	"tracemetrics/engine"
)

// Resolver resolves fully-qualified type names against the descriptor pool.
// *schema.Pool implements it.
type Resolver interface {
	FindEnum(name protoreflect.FullName) (protoreflect.EnumDescriptor, error)
}

// Builder incrementally encodes one message of the given descriptor's type.
// It exclusively owns its encode buffer and holds non-owning references to
// the pool and descriptor; its lifetime is one message construction. Fields
// appear in the output in exactly the order of Append calls.
type Builder struct {
	resolver Resolver
	desc     protoreflect.MessageDescriptor
	buf      []byte
}

// New returns a builder for the message type described by desc.
func New(resolver Resolver, desc protoreflect.MessageDescriptor) *Builder {
	return &Builder{resolver: resolver, desc: desc}
}

// AppendValue appends one scalar value under the named field, dispatching
// on the value's kind. Null leaves the field absent and is never an error.
func (b *Builder) AppendValue(fieldName string, v engine.Value) error {
	switch v.Kind() {
	case engine.KindInt:
		return b.appendInt(fieldName, v.Int(), false)
	case engine.KindFloat:
		return b.appendFloat(fieldName, v.Float(), false)
	case engine.KindText:
		return b.appendText(fieldName, v.Text(), false)
	case engine.KindBytes:
		return b.appendBytes(fieldName, v.Bytes(), false)
	case engine.KindNull:
		return nil
	}
	return fmt.Errorf("unknown value kind %d for field %s", v.Kind(), fieldName)
}

// AppendInt appends an integer value under the named field.
func (b *Builder) AppendInt(fieldName string, v int64) error {
	return b.appendInt(fieldName, v, false)
}

// AppendFloat appends a floating-point value under the named field.
func (b *Builder) AppendFloat(fieldName string, v float64) error {
	return b.appendFloat(fieldName, v, false)
}

// AppendText appends a string value under the named field. For enum fields
// the string is resolved as a symbolic enum value name.
func (b *Builder) AppendText(fieldName string, v string) error {
	return b.appendText(fieldName, v, false)
}

// AppendBytes appends a byte blob under the named field. For message fields
// the blob must be a boxed Single envelope of the field's type (or empty,
// which encodes a present-but-empty submessage). For repeated fields it must
// be a boxed Repeated envelope whose elements are replayed in order.
func (b *Builder) AppendBytes(fieldName string, data []byte) error {
	return b.appendBytes(fieldName, data, false)
}

func (b *Builder) field(name string) (protoreflect.FieldDescriptor, error) {
	fd := b.desc.Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		return nil, fmt.Errorf("field with name %s not found in proto type %s", name, b.desc.FullName())
	}
	return fd, nil
}

// enumType resolves the enum descriptor referenced by fd through the pool.
func (b *Builder) enumType(fd protoreflect.FieldDescriptor) (protoreflect.EnumDescriptor, error) {
	name := fd.Enum().FullName()
	ed, err := b.resolver.FindEnum(name)
	if err != nil {
		return nil, fmt.Errorf("unable to find enum type %s to fill field %s (in proto message %s): %w",
			name, fd.Name(), b.desc.FullName(), err)
	}
	return ed, nil
}

func (b *Builder) appendInt(fieldName string, v int64, insideRepeated bool) error {
	fd, err := b.field(fieldName)
	if err != nil {
		return err
	}
	if fd.Cardinality() == protoreflect.Repeated && !insideRepeated {
		return fmt.Errorf("unexpected integer value for repeated field %s in proto type %s", fieldName, b.desc.FullName())
	}

	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Int64Kind, protoreflect.Uint32Kind, protoreflect.BoolKind:
		b.appendVarint(fd.Number(), uint64(v))
	case protoreflect.EnumKind:
		ed, err := b.enumType(fd)
		if err != nil {
			return err
		}
		if ed.Values().ByNumber(protoreflect.EnumNumber(v)) == nil {
			return fmt.Errorf("invalid enum value %d in enum type %s; encountered while filling field %s (in proto message %s)",
				v, ed.FullName(), fd.Name(), b.desc.FullName())
		}
		b.appendVarint(fd.Number(), uint64(v))
	case protoreflect.Sint32Kind, protoreflect.Sint64Kind:
		b.appendVarint(fd.Number(), protowire.EncodeZigZag(v))
	case protoreflect.Fixed32Kind, protoreflect.Sfixed32Kind:
		b.appendFixed32(fd.Number(), uint32(v))
	case protoreflect.Fixed64Kind, protoreflect.Sfixed64Kind:
		b.appendFixed64(fd.Number(), uint64(v))
	case protoreflect.Uint64Kind:
		// uint64 cannot round-trip through the engine's signed integers.
		return fmt.Errorf("field %s (in proto message %s) is using a uint64 type; uint64 in metric messages is not supported, use an int64 field instead",
			fd.Name(), b.desc.FullName())
	default:
		return fmt.Errorf("tried to write value of type integer into field %s (in proto type %s) which has type %d",
			fd.Name(), b.desc.FullName(), fd.Kind())
	}
	return nil
}

func (b *Builder) appendFloat(fieldName string, v float64, insideRepeated bool) error {
	fd, err := b.field(fieldName)
	if err != nil {
		return err
	}
	if fd.Cardinality() == protoreflect.Repeated && !insideRepeated {
		return fmt.Errorf("unexpected float value for repeated field %s in proto type %s", fieldName, b.desc.FullName())
	}

	switch fd.Kind() {
	case protoreflect.FloatKind:
		b.appendFixed32(fd.Number(), math.Float32bits(float32(v)))
	case protoreflect.DoubleKind:
		b.appendFixed64(fd.Number(), math.Float64bits(v))
	default:
		return fmt.Errorf("tried to write value of type float into field %s (in proto type %s) which has type %d",
			fd.Name(), b.desc.FullName(), fd.Kind())
	}
	return nil
}

func (b *Builder) appendText(fieldName string, v string, insideRepeated bool) error {
	fd, err := b.field(fieldName)
	if err != nil {
		return err
	}
	if fd.Cardinality() == protoreflect.Repeated && !insideRepeated {
		return fmt.Errorf("unexpected string value for repeated field %s in proto type %s", fieldName, b.desc.FullName())
	}

	switch fd.Kind() {
	case protoreflect.StringKind:
		b.buf = protowire.AppendTag(b.buf, fd.Number(), protowire.BytesType)
		b.buf = protowire.AppendString(b.buf, v)
	case protoreflect.EnumKind:
		ed, err := b.enumType(fd)
		if err != nil {
			return err
		}
		vd := ed.Values().ByName(protoreflect.Name(v))
		if vd == nil {
			return fmt.Errorf("invalid enum string %s in enum type %s; encountered while filling field %s (in proto message %s)",
				v, ed.FullName(), fd.Name(), b.desc.FullName())
		}
		b.appendVarint(fd.Number(), uint64(int64(vd.Number())))
	default:
		return fmt.Errorf("tried to write value of type string into field %s (in proto type %s) which has type %d",
			fd.Name(), b.desc.FullName(), fd.Kind())
	}
	return nil
}

func (b *Builder) appendBytes(fieldName string, data []byte, insideRepeated bool) error {
	fd, err := b.field(fieldName)
	if err != nil {
		return err
	}
	if fd.Cardinality() == protoreflect.Repeated && !insideRepeated {
		return b.appendRepeated(fd, data)
	}
	if fd.Kind() == protoreflect.MessageKind {
		return b.appendSingleMessage(fd, data)
	}
	if len(data) == 0 {
		return fmt.Errorf("tried to write zero-sized value into field %s (in proto type %s); nulls are only supported for message fields, all other types should use IFNULL/COALESCE to keep nulls out of builder functions",
			fd.Name(), b.desc.FullName())
	}
	return fmt.Errorf("tried to write value of type bytes into field %s (in proto type %s) which has type %d",
		fd.Name(), b.desc.FullName(), fd.Kind())
}

// appendSingleMessage embeds a boxed submessage. A zero-sized blob still
// records that the field was set: it encodes a present-but-empty submessage.
// The payload of a valid envelope is copied verbatim; inner structure is
// trusted one level down and not re-validated recursively.
func (b *Builder) appendSingleMessage(fd protoreflect.FieldDescriptor, data []byte) error {
	if len(data) == 0 {
		b.appendLengthDelimited(fd.Number(), nil)
		return nil
	}
	payload, err := DecodeSingle(data, uint32(fd.Kind()), string(fd.Message().FullName()))
	if err != nil {
		return fmt.Errorf("[field %s in message %s]: %w", fd.Name(), b.desc.FullName(), err)
	}
	b.appendLengthDelimited(fd.Number(), payload)
	return nil
}

// appendRepeated decodes a boxed Repeated envelope and replays every element
// through the matching typed append, strictly in original order. The first
// element error aborts the whole call.
func (b *Builder) appendRepeated(fd protoreflect.FieldDescriptor, data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message passed to field %s in proto message %s has size %d which is larger than the maximum allowed message size %d",
			fd.Name(), b.desc.FullName(), len(data), MaxMessageSize)
	}
	env, err := parseEnvelope(data)
	if err != nil {
		return fmt.Errorf("field %s in proto message %s: %w", fd.Name(), b.desc.FullName(), err)
	}
	if !env.isRepeated {
		return fmt.Errorf("unexpected message value for repeated field %s in proto type %s", fd.Name(), b.desc.FullName())
	}
	elems, err := parseRepeated(env.repeated)
	if err != nil {
		return fmt.Errorf("field %s in proto message %s: %w", fd.Name(), b.desc.FullName(), err)
	}
	name := string(fd.Name())
	for _, e := range elems {
		var err error
		switch e.kind {
		case elemInt:
			err = b.appendInt(name, e.i, true)
		case elemDouble:
			err = b.appendFloat(name, e.f, true)
		case elemString:
			err = b.appendText(name, e.s, true)
		case elemBytes:
			err = b.appendBytes(name, e.b, true)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Serialize returns the accumulated message bytes without an envelope.
// Used for the final, non-nested deliverable.
func (b *Builder) Serialize() []byte {
	return b.buf
}

// SerializeEnveloped wraps the accumulated bytes in a boxed Single envelope
// tagged with this message's own type name so a parent builder can validate
// it when embedding. An empty builder returns nil, which callers surface as
// null one layer up.
func (b *Builder) SerializeEnveloped() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	return encodeSingleEnvelope(uint32(protoreflect.MessageKind), string(b.desc.FullName()), b.buf)
}

func (b *Builder) appendVarint(num protowire.Number, v uint64) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, v)
}

func (b *Builder) appendFixed32(num protowire.Number, v uint32) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.Fixed32Type)
	b.buf = protowire.AppendFixed32(b.buf, v)
}

func (b *Builder) appendFixed64(num protowire.Number, v uint64) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.Fixed64Type)
	b.buf = protowire.AppendFixed64(b.buf, v)
}

func (b *Builder) appendLengthDelimited(num protowire.Number, data []byte) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, data)
}
