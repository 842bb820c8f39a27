// Package metrics drives per-metric SQL execution against the query engine
// and assembles the results into one root protobuf message.
package metrics

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/maypok86/otter/v2"
	"github.com/oklog/ulid/v2"
	"google.golang.org/protobuf/reflect/protoreflect"

	"tracemetrics/engine"
	"tracemetrics/protobuilder"
	"tracemetrics/schema"
)

// statementCacheSize bounds the per-path split-statement cache. Catalogs
// are small; this mostly guards programmatic registration churn in tests.
const statementCacheSize = 256

// Computer computes named metrics against one query engine, one catalog,
// and one descriptor pool. The catalog and pool are read-only; independent
// computations may share them.
type Computer struct {
	q     engine.Querier
	cat   *Catalog
	pool  *schema.Pool
	stmts *otter.Cache[string, []string]
}

// NewComputer returns a Computer over the given engine, catalog, and pool.
func NewComputer(q engine.Querier, cat *Catalog, pool *schema.Pool) *Computer {
	return &Computer{
		q:    q,
		cat:  cat,
		pool: pool,
		stmts: otter.Must(&otter.Options[string, []string]{
			MaximumSize: statementCacheSize,
		}),
	}
}

// ComputeMetrics computes the requested metrics in caller order and returns
// the root message's serialized bytes (unenveloped). The whole batch is
// fail-fast: the first error aborts remaining metrics and nothing partial
// is returned.
func (c *Computer) ComputeMetrics(names []string, root protoreflect.MessageDescriptor) ([]byte, error) {
	runID := ulid.Make().String()
	builder := protobuilder.New(c.pool, root)

	for _, name := range names {
		m, ok := c.cat.ByOutputField(name)
		if !ok {
			return nil, fmt.Errorf("unknown metric %s", name)
		}
		slog.Debug("computing metric", slog.String("run_id", runID), slog.String("metric", name))

		for _, stmt := range c.statements(m) {
			slog.Debug("executing query", slog.String("run_id", runID), slog.String("sql", stmt))
			if err := execForEffect(c.q, stmt); err != nil {
				return nil, fmt.Errorf("metric %s: %w", name, err)
			}
		}

		outputQuery := "SELECT * FROM " + m.OutputTable + ";"
		slog.Debug("executing output query", slog.String("run_id", runID), slog.String("sql", outputQuery))
		rows := c.q.Execute(outputQuery)
		hasRow := rows.Next()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("metric %s: %w", name, err)
		}

		// No rows has the same semantics as an empty message: the field is
		// present but empty, not absent.
		if !hasRow {
			if err := builder.AppendBytes(name, nil); err != nil {
				return nil, err
			}
			continue
		}

		if n := rows.ColumnCount(); n != 1 {
			rows.Close()
			return nil, fmt.Errorf("output table %s should have exactly one column, got %d", m.OutputTable, n)
		}
		v := rows.Value(0)
		if v.Kind() != engine.KindBytes {
			rows.Close()
			return nil, fmt.Errorf("output table %s column has invalid type", m.OutputTable)
		}
		if rows.Next() {
			rows.Close()
			return nil, fmt.Errorf("output table %s should have at most one row", m.OutputTable)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("metric %s: %w", name, err)
		}
		if err := builder.AppendValue(name, v); err != nil {
			return nil, err
		}
	}
	return builder.Serialize(), nil
}

// statements returns the metric's SQL split into individual trimmed
// statements, cached per path.
func (c *Computer) statements(m Metric) []string {
	if m.Path != "" {
		if s, ok := c.stmts.GetIfPresent(m.Path); ok {
			return s
		}
	}
	s := splitStatements(m.SQL)
	if m.Path != "" {
		c.stmts.Set(m.Path, s)
	}
	return s
}

// splitStatements breaks multi-statement SQL on ";\n" boundaries, dropping
// blank statements. Semicolons inside a line are left alone.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// execForEffect runs one statement for its side effects, stepping it once
// and discarding any rows.
func execForEffect(q engine.Querier, stmt string) error {
	rows := q.Execute(stmt)
	rows.Next()
	err := rows.Err()
	rows.Close()
	return err
}
