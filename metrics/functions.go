package metrics

import (
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/protobuf/reflect/protoreflect"

	"tracemetrics/engine"
	"tracemetrics/protobuilder"
	"tracemetrics/sqltemplate"
)

// This file is the callable surface exposed to the relational engine: thin
// adapters over the builder, accumulator, and envelope codec that a host
// registers as SQL functions.

// NullIfEmpty maps a zero-length byte blob to null and passes every other
// blob through. Non-bytes arguments are an error.
func NullIfEmpty(v engine.Value) (engine.Value, error) {
	if v.Kind() != engine.KindBytes {
		return engine.Value{}, errors.New("NULL_IF_EMPTY: should only be called with a bytes argument")
	}
	if len(v.Bytes()) == 0 {
		return engine.NullValue(), nil
	}
	return v, nil
}

// BuildMessage builds one message of desc's type from alternating
// field-name/value arguments and returns it as an enveloped blob. An empty
// message yields a zero-length blob, not null: the message's existence is
// respected.
func BuildMessage(pool protobuilder.Resolver, desc protoreflect.MessageDescriptor, args ...engine.Value) (engine.Value, error) {
	if len(args)%2 != 0 {
		return engine.Value{}, fmt.Errorf("invalid number of args to %s message builder (got %d)", desc.FullName(), len(args))
	}
	b := protobuilder.New(pool, desc)
	for i := 0; i < len(args); i += 2 {
		if args[i].Kind() != engine.KindText {
			return engine.Value{}, fmt.Errorf("%s message builder: field names must be strings", desc.FullName())
		}
		if err := b.AppendValue(args[i].Text(), args[i+1]); err != nil {
			return engine.Value{}, err
		}
	}
	return engine.BytesValue(b.SerializeEnveloped()), nil
}

// RepeatedFieldAgg is the aggregate half of the callable surface: the host
// calls Step once per group member and Final once per group. The underlying
// accumulator is created lazily on the first contribution and released
// exactly once at Final, whether or not anything was ever added.
type RepeatedFieldAgg struct {
	b         *protobuilder.RepeatedBuilder
	finalized bool
}

// Step adds one contribution to the group's list.
func (a *RepeatedFieldAgg) Step(v engine.Value) error {
	if a.finalized {
		return errors.New("repeated field aggregate stepped after finalize")
	}
	if a.b == nil {
		a.b = protobuilder.NewRepeated()
	}
	a.b.AddValue(v)
	return nil
}

// Final returns the group's boxed list, or null when Step was never called
// (or the accumulator stayed empty), and releases the accumulator.
func (a *RepeatedFieldAgg) Final() (engine.Value, error) {
	if a.finalized {
		return engine.Value{}, errors.New("repeated field aggregate finalized twice")
	}
	a.finalized = true
	if a.b == nil {
		return engine.NullValue(), nil
	}
	raw := a.b.SerializeEnveloped()
	a.b = nil
	if len(raw) == 0 {
		return engine.NullValue(), nil
	}
	return engine.BytesValue(raw), nil
}

// RunMetric looks up a catalogued metric by path, substitutes the given
// key/value parameters into its SQL, and executes every statement for side
// effects only. It produces no value; the first failure aborts the rest.
func RunMetric(q engine.Querier, cat *Catalog, args ...engine.Value) error {
	if len(args) == 0 || args[0].Kind() != engine.KindText {
		return errors.New("RUN_METRIC: invalid arguments")
	}
	path := args[0].Text()
	m, ok := cat.ByPath(path)
	if !ok {
		return fmt.Errorf("RUN_METRIC: unknown metric file %s", path)
	}
	if (len(args)-1)%2 != 0 {
		return errors.New("RUN_METRIC: substitutions must be key/value pairs")
	}

	subs := make(map[string]string, (len(args)-1)/2)
	for i := 1; i < len(args); i += 2 {
		if args[i].Kind() != engine.KindText {
			return errors.New("RUN_METRIC: all keys must be strings")
		}
		val, ok := args[i+1].AsString()
		if !ok {
			return errors.New("RUN_METRIC: all values must be convertible to strings")
		}
		subs[args[i].Text()] = val
	}

	for _, stmt := range splitStatements(m.SQL) {
		stmt, err := sqltemplate.Substitute(stmt, subs)
		if err != nil {
			return fmt.Errorf("RUN_METRIC: error when performing substitutions in %s: %w", path, err)
		}
		slog.Debug("RUN_METRIC executing query", slog.String("path", path), slog.String("sql", stmt))
		if err := execForEffect(q, stmt); err != nil {
			return fmt.Errorf("RUN_METRIC: error when running file %s: %w", path, err)
		}
	}
	return nil
}

// UnwrapMessage validates a boxed Single envelope against an expected
// message type name and returns the raw payload bytes. An empty blob passes
// through empty.
func UnwrapMessage(v, typeName engine.Value) (engine.Value, error) {
	if v.Kind() != engine.KindBytes {
		return engine.Value{}, errors.New("UNWRAP_METRIC_PROTO: proto is not a blob")
	}
	if typeName.Kind() != engine.KindText {
		return engine.Value{}, errors.New("UNWRAP_METRIC_PROTO: message type is not a string")
	}
	data := v.Bytes()
	if len(data) == 0 {
		return engine.BytesValue(nil), nil
	}
	payload, err := protobuilder.DecodeSingle(data, uint32(protoreflect.MessageKind), typeName.Text())
	if err != nil {
		return engine.Value{}, fmt.Errorf("UNWRAP_METRIC_PROTO: %w", err)
	}
	return engine.BytesValue(payload), nil
}
