// Package schema provides lookup into a runtime descriptor pool.
// The pool itself is built elsewhere (a serialized FileDescriptorSet,
// typically produced by protoc); this package only loads and resolves it.
package schema

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Pool resolves fully-qualified type names to descriptors. It is immutable
// after construction and safe for concurrent lookups.
type Pool struct {
	files *protoregistry.Files
}

// NewPool wraps an already-built registry.
func NewPool(files *protoregistry.Files) *Pool {
	return &Pool{files: files}
}

// LoadDescriptorSet reads a serialized FileDescriptorSet from disk and
// builds a pool from it.
func LoadDescriptorSet(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor set: %w", err)
	}
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &fds); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor set %s: %w", path, err)
	}
	files, err := protodesc.NewFiles(&fds)
	if err != nil {
		return nil, fmt.Errorf("failed to build descriptor pool from %s: %w", path, err)
	}
	return &Pool{files: files}, nil
}

// FindMessage returns the message descriptor for a fully-qualified name.
func (p *Pool) FindMessage(name string) (protoreflect.MessageDescriptor, error) {
	d, err := p.files.FindDescriptorByName(protoreflect.FullName(name))
	if err != nil {
		return nil, fmt.Errorf("message type %s not found in descriptor pool: %w", name, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message type", name)
	}
	return md, nil
}

// FindEnum returns the enum descriptor for a fully-qualified name.
func (p *Pool) FindEnum(name protoreflect.FullName) (protoreflect.EnumDescriptor, error) {
	d, err := p.files.FindDescriptorByName(name)
	if err != nil {
		return nil, fmt.Errorf("enum type %s not found in descriptor pool: %w", name, err)
	}
	ed, ok := d.(protoreflect.EnumDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not an enum type", name)
	}
	return ed, nil
}
