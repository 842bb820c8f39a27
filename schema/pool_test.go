package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func writeDescriptorSet(t *testing.T) string {
	t.Helper()
	fds := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{{
			Name:    proto.String("pool_test.proto"),
			Package: proto.String("pooltest"),
			Syntax:  proto.String("proto2"),
			EnumType: []*descriptorpb.EnumDescriptorProto{{
				Name: proto.String("Mode"),
				Value: []*descriptorpb.EnumValueDescriptorProto{{
					Name:   proto.String("MODE_UNSPECIFIED"),
					Number: proto.Int32(0),
				}},
			}},
			MessageType: []*descriptorpb.DescriptorProto{{
				Name: proto.String("Record"),
				Field: []*descriptorpb.FieldDescriptorProto{{
					Name:   proto.String("id"),
					Number: proto.Int32(1),
					Type:   descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(),
					Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				}},
			}},
		}},
	}
	data, err := proto.Marshal(fds)
	if err != nil {
		t.Fatalf("failed to marshal descriptor set: %v", err)
	}
	path := filepath.Join(t.TempDir(), "pool_test.descriptor")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write descriptor set: %v", err)
	}
	return path
}

func TestLoadDescriptorSet(t *testing.T) {
	pool, err := LoadDescriptorSet(writeDescriptorSet(t))
	if err != nil {
		t.Fatalf("LoadDescriptorSet: %v", err)
	}

	md, err := pool.FindMessage("pooltest.Record")
	if err != nil {
		t.Fatalf("FindMessage: %v", err)
	}
	if got := string(md.FullName()); got != "pooltest.Record" {
		t.Errorf("FullName = %s, want pooltest.Record", got)
	}
	if md.Fields().ByName("id") == nil {
		t.Error("field id missing from loaded descriptor")
	}

	ed, err := pool.FindEnum("pooltest.Mode")
	if err != nil {
		t.Fatalf("FindEnum: %v", err)
	}
	if ed.Values().ByNumber(0) == nil {
		t.Error("enum value 0 missing from loaded descriptor")
	}
}

func TestLoadDescriptorSetMissingFile(t *testing.T) {
	if _, err := LoadDescriptorSet(filepath.Join(t.TempDir(), "nope.descriptor")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoadDescriptorSetMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.descriptor")
	if err := os.WriteFile(path, []byte{0xFF, 0xFF, 0xFF, 0xFF}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDescriptorSet(path); err == nil {
		t.Error("malformed descriptor set accepted")
	}
}

func TestFindMessageNotFound(t *testing.T) {
	pool, err := LoadDescriptorSet(writeDescriptorSet(t))
	if err != nil {
		t.Fatal(err)
	}
	_, err = pool.FindMessage("pooltest.NoSuchMessage")
	if err == nil {
		t.Fatal("unknown message name accepted")
	}
	if !strings.Contains(err.Error(), "pooltest.NoSuchMessage") {
		t.Errorf("error should name the missing type, got: %v", err)
	}
}

func TestFindMessageRejectsEnumName(t *testing.T) {
	pool, err := LoadDescriptorSet(writeDescriptorSet(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.FindMessage("pooltest.Mode"); err == nil {
		t.Error("enum name accepted as a message type")
	}
	if _, err := pool.FindEnum("pooltest.Record"); err == nil {
		t.Error("message name accepted as an enum type")
	}
}
