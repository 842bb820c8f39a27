package engine

import (
	"fmt"
	"log/slog"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Querier executes one SQL statement at a time against the relational
// engine and returns a row iterator. Execution is synchronous.
type Querier interface {
	Execute(query string) Rows
}

// Rows iterates over the result of one statement. Next steps to the next
// row; once it returns false the statement is finalized and Err reports
// any execution failure. Values read from the current row are copied out
// of engine-owned storage and stay valid after the next step.
type Rows interface {
	Next() bool
	Err() error
	ColumnCount() int
	Value(i int) Value
	Close()
}

// DB is a SQLite-backed query engine. All statements run on a single
// connection: metric SQL creates temporary views and tables that later
// statements of the same computation must be able to see.
type DB struct {
	conn *sqlite.Conn
}

// Open opens the SQLite database at path in WAL mode.
func Open(path string) (*DB, error) {
	uri := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	conn, err := sqlite.OpenConn(uri, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	slog.Info("sqlite opened", slog.String("path", path))
	return &DB{conn: conn}, nil
}

// Close closes the underlying SQLite connection.
func (db *DB) Close() error {
	slog.Info("closing sqlite")
	return db.conn.Close()
}

// Execute prepares one statement and returns its row iterator. Prepare
// errors are deferred to the iterator's Err so callers have a single
// error path.
func (db *DB) Execute(query string) Rows {
	stmt, _, err := db.conn.PrepareTransient(query)
	if err != nil {
		return &sqliteRows{err: fmt.Errorf("failed to prepare statement: %w", err)}
	}
	return &sqliteRows{stmt: stmt}
}

// ExecScript runs a multi-statement SQL script for its side effects.
func (db *DB) ExecScript(script string) error {
	return sqlitex.ExecScript(db.conn, script)
}

type sqliteRows struct {
	stmt *sqlite.Stmt
	err  error
}

func (r *sqliteRows) Next() bool {
	if r.err != nil || r.stmt == nil {
		return false
	}
	hasRow, err := r.stmt.Step()
	if err != nil {
		r.err = fmt.Errorf("failed to step: %w", err)
		r.finalize()
		return false
	}
	if !hasRow {
		r.finalize()
		return false
	}
	return true
}

func (r *sqliteRows) Err() error { return r.err }

func (r *sqliteRows) ColumnCount() int {
	if r.stmt == nil {
		return 0
	}
	return r.stmt.ColumnCount()
}

// Value adapts the i-th cell of the current row into a semantic Value.
// Text and blob payloads are copied; the returned Value does not alias
// statement storage.
func (r *sqliteRows) Value(i int) Value {
	if r.stmt == nil {
		return NullValue()
	}
	switch r.stmt.ColumnType(i) {
	case sqlite.SQLITE_INTEGER:
		return IntValue(r.stmt.ColumnInt64(i))
	case sqlite.SQLITE_FLOAT:
		return FloatValue(r.stmt.ColumnFloat(i))
	case sqlite.SQLITE_TEXT:
		return TextValue(r.stmt.ColumnText(i))
	case sqlite.SQLITE_BLOB:
		buf := make([]byte, r.stmt.ColumnLen(i))
		r.stmt.ColumnBytes(i, buf)
		return BytesValue(buf)
	default:
		return NullValue()
	}
}

func (r *sqliteRows) Close() { r.finalize() }

func (r *sqliteRows) finalize() {
	if r.stmt != nil {
		r.stmt.Finalize()
		r.stmt = nil
	}
}
