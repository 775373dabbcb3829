// Package engine adapts SQLite to the small C-style surface the stmt
// package programs against (prepare/bind/step/column_*/finalize/exec),
// treating the SQLite engine itself as an external collaborator invoked
// through an adapter rather than linked in directly. The default
// implementation talks to SQLite through database/sql and the pure-Go
// modernc.org/sqlite driver.
package engine

import (
	"context"

	"github.com/jmhu/sqlited/common"
)

// Engine prepares statements and runs one-shot exec statements against a
// single, already-open database connection. One Engine is bound to one
// protocol connection's SQLite handle, per the one-handle-per-connection
// concurrency model: callers must not share an Engine across concurrent
// requests.
type Engine interface {
	// Prepare compiles sql into a Stmt bound to this Engine's connection.
	Prepare(ctx context.Context, sql string) (Stmt, error)
	// Exec runs sql to completion without expecting a prepared handle or
	// result rows (used for one-shot statements outside the Prepare/Bind/
	// Query/Finalize lifecycle).
	Exec(ctx context.Context, sql string) error
	// Close releases the underlying connection.
	Close() error
}

// Stmt is a prepared statement: bind parameters, then Step repeatedly.
// Binding and stepping mirror SQLite's own prepare_v2/bind_*/step/
// column_*/finalize lifecycle one-for-one so the stmt package's state
// machine needs no translation layer beyond this interface.
type Stmt interface {
	BindInt64(slot int, v int64) error
	BindDouble(slot int, v float64) error
	BindText(slot int, v string) error
	BindNull(slot int) error

	// Step advances the statement. row==true means a result row is ready
	// to be read via the Column* accessors; done==true means the
	// statement is fully exhausted (SQLITE_DONE) and RowsAffected/
	// LastInsertID are final.
	Step(ctx context.Context) (row bool, done bool, err error)

	ColumnCount() int
	ColumnName(i int) string
	ColumnDeclType(i int) string  // "" if the column has no declared type
	ColumnKind(i int) common.Kind // SQLite's runtime column_type, pre-mapped to wire kinds

	ColumnInt64(i int) int64
	ColumnDouble(i int) float64
	ColumnText(i int) string

	RowsAffected() int64
	LastInsertID() int64

	Finalize() error
}
