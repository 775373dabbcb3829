package stmt

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/engine"
	"github.com/jmhu/sqlited/wire"
)

func openTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	eng, err := engine.Open(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

// roundTrip flushes an encode-side message and reloads it into a fresh
// decode-side one, the way a frame actually crosses the wire.
func roundTrip(t *testing.T, m *wire.Message) *wire.Message {
	t.Helper()
	hdr, ranges, err := m.Flush()
	require.NoError(t, err)
	var body []byte
	for _, r := range ranges {
		body = append(body, r...)
	}
	var dec wire.Message
	dec.Init()
	require.NoError(t, dec.HeaderGet(hdr))
	require.NoError(t, dec.LoadBody(body))
	return &dec
}

func newBindRequest(t *testing.T, build func(m *wire.Message)) *wire.Message {
	t.Helper()
	var m wire.Message
	m.Init()
	m.HeaderPut(common.MsgBindExecute, 0)
	build(&m)
	return roundTrip(t, &m)
}

// 1. Bind none: SELECT 1, body is a single zero word.
func TestBindNoneThenStepYieldsOneRow(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	egStmt, err := eng.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	req := newBindRequest(t, func(m *wire.Message) {
		require.NoError(t, m.PutUint8(0))
		require.NoError(t, m.PadToWord(true))
	})
	require.NoError(t, s.Bind(req))
	assert.Equal(t, StateBound, s.State())

	row, done, err := egStmt.Step(ctx)
	require.NoError(t, err)
	assert.True(t, row)
	assert.False(t, done)
}

// 2. Bind missing types: n=8 declared, no tag bytes follow.
func TestBindMissingTypesReturnsIncompleteParamTypes(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	egStmt, err := eng.Prepare(ctx, "SELECT ?")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	req := newBindRequest(t, func(m *wire.Message) {
		require.NoError(t, m.PutUint8(8))
		require.NoError(t, m.PadToWord(true))
	})
	err = s.Bind(req)
	require.Error(t, err)
	var werr *wire.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, common.CodeProto, werr.Code)
	assert.Contains(t, err.Error(), "incomplete param types")
}

// 3. Bind integer -666.
func TestBindSingleIntegerNegative(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	egStmt, err := eng.Prepare(ctx, "SELECT ?")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	req := newBindRequest(t, func(m *wire.Message) {
		require.NoError(t, m.PutUint8(1))
		require.NoError(t, m.PutUint8(uint8(common.KindInteger)))
		require.NoError(t, m.PadToWord(true))
		require.NoError(t, m.PutInt64(-666))
	})
	require.NoError(t, s.Bind(req))

	row, _, err := egStmt.Step(ctx)
	require.NoError(t, err)
	require.True(t, row)
	assert.Equal(t, int64(-666), egStmt.ColumnInt64(0))
}

func TestBindUnknownTypeTagIsRejected(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	egStmt, err := eng.Prepare(ctx, "SELECT ?")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	req := newBindRequest(t, func(m *wire.Message) {
		require.NoError(t, m.PutUint8(1))
		require.NoError(t, m.PutUint8(99))
		require.NoError(t, m.PadToWord(true))
	})
	err = s.Bind(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid param 1: unknown type 99")
}

func TestBindBooleanOutOfRangeIsRejected(t *testing.T) {
	eng := openTestEngine(t)
	egStmt, err := eng.Prepare(context.Background(), "SELECT ?")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	req := newBindRequest(t, func(m *wire.Message) {
		require.NoError(t, m.PutUint8(1))
		require.NoError(t, m.PutUint8(uint8(common.KindBoolean)))
		require.NoError(t, m.PadToWord(true))
		require.NoError(t, m.PutInt64(2))
	})
	err = s.Bind(req)
	require.Error(t, err)
	var werr *wire.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, common.CodeRange, werr.Code)
}

// 4. Query no rows: SELECT name FROM sqlite_master against an empty database.
func TestQueryNoRowsEmitsColumnHeaderOnly(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	egStmt, err := eng.Prepare(ctx, "SELECT name FROM sqlite_master")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	var m wire.Message
	m.Init()
	m.HeaderPut(common.MsgRows, 0)
	outcome, err := s.Query(ctx, &m)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, outcome)

	dec := roundTrip(t, &m)
	count, err := dec.GetUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	name, err := dec.GetText()
	require.NoError(t, err)
	assert.Equal(t, "name", name)
	assert.Equal(t, 16, dec.Cursor())
}

// 5. Query large: 256 rows of one integer column, value 123456789.
func TestQueryLargeSpillsPastInlineAndDrains(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	require.NoError(t, eng.Exec(ctx, "create table t (v integer)"))
	for i := 0; i < 256; i++ {
		require.NoError(t, eng.Exec(ctx, "insert into t (v) values (123456789)"))
	}

	egStmt, err := eng.Prepare(ctx, "select v from t")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	var first wire.Message
	first.Init()
	first.HeaderPut(common.MsgRows, 0)
	outcome, err := s.Query(ctx, &first)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRow, outcome)
	// 255 sixteen-byte rows plus the sixteen-byte column header exactly
	// fill the 4096-byte inline region; the 256th row is still written in
	// full, spilling into the heap-backed overflow buffer, before Query
	// backs off to PARTIAL.
	assert.True(t, first.HasOverflow())

	total := countRows(t, roundTrip(t, &first), true)
	frames := 1
	for outcome == OutcomeRow {
		var m wire.Message
		m.Init()
		m.HeaderPut(common.MsgRows, 0)
		outcome, err = s.Query(ctx, &m)
		require.NoError(t, err)
		// A continuation that finds the statement already exhausted writes
		// nothing; an empty frame has no body to decode.
		if m.Len() > 0 {
			total += countRows(t, roundTrip(t, &m), false)
		}
		frames++
	}
	assert.Equal(t, OutcomeDone, outcome)
	assert.Equal(t, 256, total)
	assert.Greater(t, frames, 1)
}

// countRows decodes a Rows frame, skipping the column header on the first
// frame of a multi-frame stream, and returns how many one-column integer
// rows it contains.
func countRows(t *testing.T, m *wire.Message, hasHeader bool) int {
	t.Helper()
	if hasHeader {
		count, err := m.GetUint64()
		require.NoError(t, err)
		require.Equal(t, uint64(1), count)
		_, err = m.GetText()
		require.NoError(t, err)
	}
	n := 0
	for {
		if _, err := m.GetUint8(); err != nil {
			break
		}
		require.NoError(t, m.PadToWord(false))
		v, err := m.GetInt64()
		require.NoError(t, err)
		assert.Equal(t, int64(123456789), v)
		n++
	}
	return n
}

// 6. Query two complex rows over columns (n,t,f).
func TestQueryTwoComplexRowsPacksNibblesAndNull(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	require.NoError(t, eng.Exec(ctx, "create table t (n integer, t text, f real)"))
	require.NoError(t, eng.Exec(ctx, "insert into t (n,t,f) values (1,'hi',3.1415)"))
	require.NoError(t, eng.Exec(ctx, "insert into t (n,t,f) values (2,'hello world',NULL)"))

	egStmt, err := eng.Prepare(ctx, "select n,t,f from t order by n")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	var m wire.Message
	m.Init()
	m.HeaderPut(common.MsgRows, 0)
	outcome, err := s.Query(ctx, &m)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, outcome)

	dec := roundTrip(t, &m)
	count, err := dec.GetUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
	for _, want := range []string{"n", "t", "f"} {
		got, err := dec.GetText()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// row 1: n=1 (INTEGER), t="hi" (TEXT), f=3.1415 (FLOAT)
	h0, err := dec.GetUint8()
	require.NoError(t, err)
	assert.Equal(t, byte(common.KindInteger)|byte(common.KindText)<<4, h0)
	h1, err := dec.GetUint8()
	require.NoError(t, err)
	assert.Equal(t, byte(common.KindFloat), h1)
	require.NoError(t, dec.PadToWord(false))
	n1, err := dec.GetInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n1)
	t1, err := dec.GetText()
	require.NoError(t, err)
	assert.Equal(t, "hi", t1)
	f1, err := dec.GetFloat64()
	require.NoError(t, err)
	assert.InDelta(t, 3.1415, f1, 1e-9)

	// row 2: n=2 (INTEGER), t="hello world" (TEXT), f=NULL
	h0, err = dec.GetUint8()
	require.NoError(t, err)
	assert.Equal(t, byte(common.KindInteger)|byte(common.KindText)<<4, h0)
	h1, err = dec.GetUint8()
	require.NoError(t, err)
	assert.Equal(t, byte(common.KindNull), h1)
	require.NoError(t, dec.PadToWord(false))
	n2, err := dec.GetInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n2)
	t2, err := dec.GetText()
	require.NoError(t, err)
	assert.Equal(t, "hello world", t2)
	require.NoError(t, dec.GetNull())
}

// 7. Query unknown column: DELETE FROM t (no columns). The statement has
// already run to completion by the time Query notices, so this is a
// routing signal (fall back to RowsAffected/LastInsertID) rather than a
// real failure.
func TestQueryNoColumnsReturnsError(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	require.NoError(t, eng.Exec(ctx, "create table t (id integer)"))
	require.NoError(t, eng.Exec(ctx, "insert into t (id) values (1), (2), (3)"))
	egStmt, err := eng.Prepare(ctx, "delete from t")
	require.NoError(t, err)
	s := New(1, egStmt, nil, nil)

	var m wire.Message
	m.Init()
	m.HeaderPut(common.MsgRows, 0)
	_, err = s.Query(ctx, &m)
	require.Error(t, err)
	assert.True(t, IsNoColumns(err))
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, int64(3), s.RowsAffected())
}
