package engine

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/wire"
)

// Open reserves a single connection from db and wraps it as an Engine.
// Using one pinned *sql.Conn (rather than the pool) is what lets
// Stmt.Step read back last_insert_rowid()/changes() reliably: those are
// per-connection SQLite state, so every statement on this Engine must
// run on the same underlying connection.
func Open(ctx context.Context, db *sql.DB) (Engine, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return &sqliteEngine{conn: conn}, nil
}

type sqliteEngine struct {
	conn *sql.Conn
}

func (e *sqliteEngine) Prepare(ctx context.Context, query string) (Stmt, error) {
	stmt, err := e.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, mapErr(err)
	}
	return &sqliteStmt{conn: e.conn, stmt: stmt}, nil
}

func (e *sqliteEngine) Exec(ctx context.Context, query string) error {
	_, err := e.conn.ExecContext(ctx, query)
	return mapErr(err)
}

func (e *sqliteEngine) Close() error {
	return mapErr(e.conn.Close())
}

// sqliteStmt implements Stmt over a *sql.Stmt. Binding only buffers
// argument values; the statement actually runs on the first Step call,
// mirroring sqlite3_step's own "first call executes" behavior.
type sqliteStmt struct {
	conn *sql.Conn
	stmt *sql.Stmt
	args []any

	rows     *sql.Rows
	executed bool
	done     bool

	cols      []string
	declTypes []string
	curRow    []any

	rowsAffected int64
	lastInsertID int64
}

func (s *sqliteStmt) bind(slot int, v any) error {
	if slot < 1 {
		return wire.NewError(common.CodeRange, "parameter slot out of range")
	}
	for len(s.args) < slot {
		s.args = append(s.args, nil)
	}
	s.args[slot-1] = v
	return nil
}

func (s *sqliteStmt) BindInt64(slot int, v int64) error    { return s.bind(slot, v) }
func (s *sqliteStmt) BindDouble(slot int, v float64) error { return s.bind(slot, v) }
func (s *sqliteStmt) BindText(slot int, v string) error    { return s.bind(slot, v) }
func (s *sqliteStmt) BindNull(slot int) error               { return s.bind(slot, nil) }

func (s *sqliteStmt) Step(ctx context.Context) (row bool, done bool, err error) {
	if s.done {
		return false, true, nil
	}
	if !s.executed {
		rows, qerr := s.stmt.QueryContext(ctx, s.args...)
		if qerr != nil {
			return false, false, mapErr(qerr)
		}
		s.rows = rows
		s.executed = true

		cols, cerr := rows.Columns()
		if cerr != nil {
			return false, false, mapErr(cerr)
		}
		s.cols = cols

		types, terr := rows.ColumnTypes()
		if terr == nil {
			s.declTypes = make([]string, len(types))
			for i, ct := range types {
				s.declTypes[i] = ct.DatabaseTypeName()
			}
		} else {
			s.declTypes = make([]string, len(cols))
		}
	}

	if len(s.cols) == 0 {
		return false, true, s.finishNonYielding(ctx)
	}

	if s.rows.Next() {
		dest := make([]any, len(s.cols))
		ptrs := make([]any, len(s.cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := s.rows.Scan(ptrs...); err != nil {
			return false, false, mapErr(err)
		}
		s.curRow = dest
		return true, false, nil
	}
	if err := s.rows.Err(); err != nil {
		return false, false, mapErr(err)
	}
	return false, true, s.finishNonYielding(ctx)
}

// finishNonYielding closes the rows cursor, marks the statement done,
// and reads back the connection's last_insert_rowid()/changes() state.
func (s *sqliteStmt) finishNonYielding(ctx context.Context) error {
	if s.rows != nil {
		_ = s.rows.Close()
	}
	s.done = true
	row := s.conn.QueryRowContext(ctx, "SELECT last_insert_rowid(), changes()")
	if err := row.Scan(&s.lastInsertID, &s.rowsAffected); err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *sqliteStmt) ColumnCount() int { return len(s.cols) }

func (s *sqliteStmt) ColumnName(i int) string { return s.cols[i] }

func (s *sqliteStmt) ColumnDeclType(i int) string { return s.declTypes[i] }

// ColumnKind maps the Go value Scan produced for column i into a wire
// kind. This is the raw runtime type, before the stmt package applies
// its DATETIME/BOOLEAN declared-type overrides.
func (s *sqliteStmt) ColumnKind(i int) common.Kind {
	switch s.curRow[i].(type) {
	case nil:
		return common.KindNull
	case int64:
		return common.KindInteger
	case float64:
		return common.KindFloat
	case string, []byte:
		return common.KindText
	default:
		return common.KindText
	}
}

func (s *sqliteStmt) ColumnInt64(i int) int64 {
	switch v := s.curRow[i].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (s *sqliteStmt) ColumnDouble(i int) float64 {
	switch v := s.curRow[i].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func (s *sqliteStmt) ColumnText(i int) string {
	switch v := s.curRow[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return ""
	}
}

func (s *sqliteStmt) RowsAffected() int64 { return s.rowsAffected }
func (s *sqliteStmt) LastInsertID() int64 { return s.lastInsertID }

func (s *sqliteStmt) Finalize() error {
	if s.rows != nil {
		_ = s.rows.Close()
	}
	return mapErr(s.stmt.Close())
}
