package metrics

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Metric is one catalogued SQL metric: the statements that compute it, the
// table its result is published in, and (for top-level metrics) the field
// of the root message it fills.
type Metric struct {
	// Path identifies the metric file relative to the catalog root, with
	// forward slashes. RunMetric addresses metrics by path.
	Path string
	// SQL is the raw statement text, possibly with {{param}} placeholders.
	SQL string
	// OutputTable is the table read back after the statements run.
	OutputTable string
	// OutputField is the root-message field the result fills. Empty for
	// helper metrics in subdirectories, which are only runnable by path.
	OutputField string
}

// Catalog is an immutable set of metrics, looked up by path or by output
// field name.
type Catalog struct {
	metrics []Metric
}

// NewCatalog returns an empty catalog. Entries are added with Register.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Register appends one metric to the catalog.
func (c *Catalog) Register(m Metric) {
	c.metrics = append(c.metrics, m)
}

// ByPath returns the metric registered under the given path.
func (c *Catalog) ByPath(path string) (Metric, bool) {
	for _, m := range c.metrics {
		if m.Path == path {
			return m, true
		}
	}
	return Metric{}, false
}

// ByOutputField returns the metric publishing the given root field.
func (c *Catalog) ByOutputField(name string) (Metric, bool) {
	for _, m := range c.metrics {
		if m.OutputField != "" && m.OutputField == name {
			return m, true
		}
	}
	return Metric{}, false
}

// LoadCatalog walks dir for *.sql files. A top-level file name.sql
// publishes root field "name" from table "name_output"; files in
// subdirectories are helpers addressable only by path.
func LoadCatalog(dir string) (*Catalog, error) {
	c := NewCatalog()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".sql") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read metric file %s: %w", rel, err)
		}
		m := Metric{
			Path: filepath.ToSlash(rel),
			SQL:  string(sql),
		}
		if !strings.ContainsRune(m.Path, '/') {
			name := strings.TrimSuffix(d.Name(), ".sql")
			m.OutputField = name
			m.OutputTable = name + "_output"
		}
		c.Register(m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load metric catalog from %s: %w", dir, err)
	}
	return c, nil
}
