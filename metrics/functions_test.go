package metrics

import (
	"bytes"
	"strings"
	"testing"

	"tracemetrics/engine"
	"tracemetrics/protobuilder"
)

func TestNullIfEmpty(t *testing.T) {
	v, err := NullIfEmpty(engine.BytesValue(nil))
	if err != nil {
		t.Fatalf("NullIfEmpty(empty blob): %v", err)
	}
	if !v.IsNull() {
		t.Errorf("empty blob mapped to %+v, want null", v)
	}

	v, err = NullIfEmpty(engine.BytesValue([]byte{1, 2}))
	if err != nil {
		t.Fatalf("NullIfEmpty(blob): %v", err)
	}
	if v.Kind() != engine.KindBytes || !bytes.Equal(v.Bytes(), []byte{1, 2}) {
		t.Errorf("non-empty blob mapped to %+v, want passthrough", v)
	}

	if _, err := NullIfEmpty(engine.IntValue(1)); err == nil {
		t.Error("integer argument accepted")
	}
	if _, err := NullIfEmpty(engine.NullValue()); err == nil {
		t.Error("null argument accepted")
	}
}

func TestBuildMessage(t *testing.T) {
	pool := testPool(t)
	desc := msgDesc(t, pool, "metricstest.Nested")

	v, err := BuildMessage(pool, desc, engine.TextValue("count"), engine.IntValue(7))
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	if v.Kind() != engine.KindBytes {
		t.Fatalf("BuildMessage returned %+v, want bytes", v)
	}

	unwrapped, err := UnwrapMessage(v, engine.TextValue("metricstest.Nested"))
	if err != nil {
		t.Fatalf("UnwrapMessage: %v", err)
	}
	b := protobuilder.New(pool, desc)
	if err := b.AppendInt("count", 7); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(unwrapped.Bytes(), b.Serialize()) {
		t.Errorf("unwrapped payload = %x, want %x", unwrapped.Bytes(), b.Serialize())
	}
}

func TestBuildMessageEmptyIsZeroLengthBlob(t *testing.T) {
	pool := testPool(t)
	desc := msgDesc(t, pool, "metricstest.Nested")

	v, err := BuildMessage(pool, desc)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	if v.Kind() != engine.KindBytes || len(v.Bytes()) != 0 {
		t.Errorf("empty message built %+v, want zero-length blob", v)
	}
}

func TestBuildMessageBadArguments(t *testing.T) {
	pool := testPool(t)
	desc := msgDesc(t, pool, "metricstest.Nested")

	if _, err := BuildMessage(pool, desc, engine.TextValue("count")); err == nil {
		t.Error("odd argument count accepted")
	}
	if _, err := BuildMessage(pool, desc, engine.IntValue(1), engine.IntValue(7)); err == nil {
		t.Error("non-string field name accepted")
	}
	if _, err := BuildMessage(pool, desc, engine.TextValue("no_such_field"), engine.IntValue(7)); err == nil {
		t.Error("unknown field name accepted")
	}
}

func TestRepeatedFieldAggLifecycle(t *testing.T) {
	pool := testPool(t)
	root := msgDesc(t, pool, "metricstest.TraceMetrics")

	var agg RepeatedFieldAgg
	for _, v := range []int64{3, 1, 2} {
		if err := agg.Step(engine.IntValue(v)); err != nil {
			t.Fatalf("Step(%d): %v", v, err)
		}
	}
	v, err := agg.Final()
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if v.Kind() != engine.KindBytes {
		t.Fatalf("Final returned %+v, want bytes", v)
	}

	b := protobuilder.New(pool, root)
	if err := b.AppendBytes("repeated_int", v.Bytes()); err != nil {
		t.Fatalf("aggregate output rejected by repeated field: %v", err)
	}
	list := decodeRoot(t, pool, b.Serialize()).Get(root.Fields().ByName("repeated_int")).List()
	want := []int64{3, 1, 2}
	if list.Len() != len(want) {
		t.Fatalf("repeated_int has %d elements, want %d", list.Len(), len(want))
	}
	for i, w := range want {
		if got := list.Get(i).Int(); got != w {
			t.Errorf("repeated_int[%d] = %d, want %d", i, got, w)
		}
	}

	if err := agg.Step(engine.IntValue(4)); err == nil {
		t.Error("Step accepted after Final")
	}
	if _, err := agg.Final(); err == nil {
		t.Error("second Final accepted")
	}
}

func TestRepeatedFieldAggNeverSteppedIsNull(t *testing.T) {
	var agg RepeatedFieldAgg
	v, err := agg.Final()
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if !v.IsNull() {
		t.Errorf("never-stepped aggregate finalized to %+v, want null", v)
	}
}

func TestRunMetric(t *testing.T) {
	db := setupDB(t)
	cat := NewCatalog()
	cat.Register(Metric{
		Path: "helpers/make.sql",
		SQL:  "CREATE TABLE made (x INTEGER);\nINSERT INTO made VALUES ({{value}});",
	})

	err := RunMetric(db, cat,
		engine.TextValue("helpers/make.sql"),
		engine.TextValue("value"), engine.IntValue(3))
	if err != nil {
		t.Fatalf("RunMetric: %v", err)
	}

	rows := db.Execute("SELECT x FROM made")
	defer rows.Close()
	if !rows.Next() {
		t.Fatalf("no row in helper output: %v", rows.Err())
	}
	if v := rows.Value(0); v.Kind() != engine.KindInt || v.Int() != 3 {
		t.Errorf("made.x = %+v, want int 3", v)
	}
}

func TestRunMetricErrors(t *testing.T) {
	db := setupDB(t)
	cat := NewCatalog()
	cat.Register(Metric{
		Path: "helpers/make.sql",
		SQL:  "CREATE TABLE made AS SELECT {{value}} AS x",
	})

	if err := RunMetric(db, cat); err == nil {
		t.Error("missing path argument accepted")
	}
	if err := RunMetric(db, cat, engine.IntValue(1)); err == nil {
		t.Error("non-string path accepted")
	}
	if err := RunMetric(db, cat, engine.TextValue("helpers/nope.sql")); err == nil {
		t.Error("unknown metric path accepted")
	}

	err := RunMetric(db, cat, engine.TextValue("helpers/make.sql"))
	if err == nil {
		t.Fatal("missing substitution accepted")
	}
	if !strings.Contains(err.Error(), "substitution") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := RunMetric(db, cat, engine.TextValue("helpers/make.sql"), engine.TextValue("value")); err == nil {
		t.Error("dangling key without value accepted")
	}
	if err := RunMetric(db, cat, engine.TextValue("helpers/make.sql"), engine.IntValue(1), engine.IntValue(2)); err == nil {
		t.Error("non-string substitution key accepted")
	}
	if err := RunMetric(db, cat, engine.TextValue("helpers/make.sql"), engine.TextValue("value"), engine.BytesValue([]byte{1})); err == nil {
		t.Error("blob substitution value accepted")
	}
}

func TestUnwrapMessage(t *testing.T) {
	pool := testPool(t)
	desc := msgDesc(t, pool, "metricstest.Nested")

	b := protobuilder.New(pool, desc)
	if err := b.AppendInt("count", 5); err != nil {
		t.Fatal(err)
	}
	raw := b.Serialize()
	env := b.SerializeEnveloped()

	v, err := UnwrapMessage(engine.BytesValue(env), engine.TextValue("metricstest.Nested"))
	if err != nil {
		t.Fatalf("UnwrapMessage: %v", err)
	}
	if !bytes.Equal(v.Bytes(), raw) {
		t.Errorf("unwrapped payload = %x, want %x", v.Bytes(), raw)
	}

	if _, err := UnwrapMessage(engine.BytesValue(env), engine.TextValue("metricstest.TraceMetrics")); err == nil {
		t.Error("mismatched type name accepted")
	}
	if _, err := UnwrapMessage(engine.TextValue("x"), engine.TextValue("metricstest.Nested")); err == nil {
		t.Error("non-blob payload accepted")
	}
	if _, err := UnwrapMessage(engine.BytesValue(env), engine.IntValue(1)); err == nil {
		t.Error("non-string type name accepted")
	}

	v, err = UnwrapMessage(engine.BytesValue(nil), engine.TextValue("metricstest.Nested"))
	if err != nil {
		t.Fatalf("UnwrapMessage(empty blob): %v", err)
	}
	if v.Kind() != engine.KindBytes || len(v.Bytes()) != 0 {
		t.Errorf("empty blob unwrapped to %+v, want empty blob", v)
	}
}
