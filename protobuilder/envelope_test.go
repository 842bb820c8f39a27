package protobuilder

import (
	"bytes"
	"strings"
	"testing"

	"google.golang.org/protobuf/reflect/protoreflect"
)

func TestDecodeSingleRoundTrip(t *testing.T) {
	pool := testPool(t)
	md := msgDesc(t, pool, "testmetrics.Sample")

	b := New(pool, md)
	if err := b.AppendInt("int64_value", 7); err != nil {
		t.Fatal(err)
	}
	raw := b.Serialize()
	env := b.SerializeEnveloped()

	payload, err := DecodeSingle(env, uint32(protoreflect.MessageKind), "testmetrics.Sample")
	if err != nil {
		t.Fatalf("DecodeSingle: %v", err)
	}
	if !bytes.Equal(payload, raw) {
		t.Errorf("payload = %x, want %x", payload, raw)
	}
}

func TestDecodeSingleWrongTypeName(t *testing.T) {
	pool := testPool(t)
	md := msgDesc(t, pool, "testmetrics.Sample")

	b := New(pool, md)
	if err := b.AppendInt("int64_value", 7); err != nil {
		t.Fatal(err)
	}

	_, err := DecodeSingle(b.SerializeEnveloped(), uint32(protoreflect.MessageKind), "testmetrics.Nested")
	if err == nil {
		t.Fatal("mismatched type name accepted")
	}
	if !strings.Contains(err.Error(), "testmetrics.Nested") || !strings.Contains(err.Error(), "testmetrics.Sample") {
		t.Errorf("error should name both types, got: %v", err)
	}
}

func TestDecodeSingleWrongSchemaType(t *testing.T) {
	pool := testPool(t)
	md := msgDesc(t, pool, "testmetrics.Sample")

	b := New(pool, md)
	if err := b.AppendInt("int64_value", 7); err != nil {
		t.Fatal(err)
	}

	_, err := DecodeSingle(b.SerializeEnveloped(), uint32(protoreflect.Int64Kind), "testmetrics.Sample")
	if err == nil {
		t.Fatal("mismatched schema type number accepted")
	}
	if !strings.Contains(err.Error(), "wrong wire type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeSingleRejectsRepeatedEnvelope(t *testing.T) {
	rb := NewRepeated()
	rb.AddInt(1)

	_, err := DecodeSingle(rb.SerializeEnveloped(), uint32(protoreflect.MessageKind), "testmetrics.Sample")
	if err == nil {
		t.Fatal("repeated envelope accepted")
	}
	if !strings.Contains(err.Error(), "repeated") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeSingleRejectsMissingPayload(t *testing.T) {
	// A Single record carrying type and type name but no payload field.
	var single []byte
	single = appendTagVarint(single, singleTypeField, uint64(protoreflect.MessageKind))
	single = appendTagBytes(single, singleTypeNameField, []byte("testmetrics.Sample"))
	var env []byte
	env = appendTagVarint(env, envIsRepeatedField, 0)
	env = appendTagBytes(env, envSingleField, single)

	_, err := DecodeSingle(env, uint32(protoreflect.MessageKind), "testmetrics.Sample")
	if err == nil {
		t.Fatal("envelope without payload accepted")
	}
	if !strings.Contains(err.Error(), "no proto bytes") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeSingleRejectsZeroSizePayload(t *testing.T) {
	env := encodeSingleEnvelope(uint32(protoreflect.MessageKind), "testmetrics.Sample", nil)

	_, err := DecodeSingle(env, uint32(protoreflect.MessageKind), "testmetrics.Sample")
	if err == nil {
		t.Fatal("zero-size payload accepted")
	}
	if !strings.Contains(err.Error(), "zero size") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeSingleEnforcesSizeLimit(t *testing.T) {
	data := make([]byte, MaxMessageSize+1)

	_, err := DecodeSingle(data, uint32(protoreflect.MessageKind), "testmetrics.Sample")
	if err == nil {
		t.Fatal("oversized blob accepted")
	}
	if !strings.Contains(err.Error(), "maximum allowed message size") {
		t.Errorf("unexpected error: %v", err)
	}
}
