// Copyright 2019 PayPal Inc.
//
// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stmt implements bind and result-set streaming against a
// prepared statement: the BindExecute request body and the Rows
// response body, both of which are self-describing payloads rather than
// the flat field lists the schema package walks.
package stmt

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/engine"
	"github.com/jmhu/sqlited/observability"
	"github.com/jmhu/sqlited/wire"
)

// ErrNoColumns is what Query returns for a statement that yields no
// result columns (an INSERT/UPDATE/DELETE, typically). The statement has
// already run to completion by the time Query detects this, since
// engine.Stmt.Step executes a non-yielding statement fully on its first
// call; callers should treat this as a signal to read RowsAffected and
// LastInsertID rather than as a real failure.
var ErrNoColumns = wire.NewError(common.CodeError, "stmt doesn't yield any column")

// IsNoColumns reports whether err is ErrNoColumns.
func IsNoColumns(err error) bool {
	werr, ok := err.(*wire.Error)
	return ok && werr == ErrNoColumns
}

// State is the statement's position in the bind/query lifecycle.
type State int

const (
	StateIdle State = iota
	StateBound
	StateStreaming
	StatePartial
	StateDone
	StateFailed
)

// DefaultBufferCap is the response-frame size, in bytes, at which Query
// stops appending rows and returns a PARTIAL outcome. It defaults to the
// inline region's own size, so the common case fills the inline buffer
// exactly before a row is allowed to spill into the heap-backed overflow
// region; the row that crosses the boundary is still written in full,
// never left partially committed. New uses this value; NewWithCutoff
// lets a caller (cmd/sqlited's --buffer-cap flag) raise or lower it per
// connection.
const DefaultBufferCap = wire.InlineBodySize

// QueryOutcome is Stmt.Query's result: whether more rows remain to be
// streamed (caller must drain the Message and call Query again) or the
// statement is fully exhausted.
type QueryOutcome int

const (
	// OutcomeRow means more rows remain; the caller must drain the
	// current Message and invoke Query again to resume.
	OutcomeRow QueryOutcome = iota
	// OutcomeDone means the statement reported SQLITE_DONE; RowsAffected
	// and LastInsertID are final.
	OutcomeDone
)

// Stmt wraps a prepared engine.Stmt with the bind/query state machine
// and protocol-facing encode/decode logic.
type Stmt struct {
	ID  uint32
	eng engine.Stmt

	state         State
	headerEmitted bool
	logger        observability.Logger
	metrics       observability.Metrics

	// primed buffers the outcome of the Step call that had to run before
	// the column header could be written (SQLite only exposes result
	// columns once a statement has actually executed), so that row isn't
	// silently dropped once streaming begins.
	primed      bool
	pendingRow  bool
	pendingDone bool

	bufferCap int
}

// New wraps an already-prepared engine.Stmt for protocol use, streaming
// with DefaultBufferCap. A nil logger is replaced with NopLogger; a nil
// metrics is kept as nil and metrics calls are skipped.
func New(id uint32, eng engine.Stmt, logger observability.Logger, metrics observability.Metrics) *Stmt {
	return NewWithCutoff(id, eng, logger, metrics, DefaultBufferCap)
}

// NewWithCutoff is New with an explicit PARTIAL buffer-size cap. A
// bufferCap <= 0 falls back to DefaultBufferCap.
func NewWithCutoff(id uint32, eng engine.Stmt, logger observability.Logger, metrics observability.Metrics, bufferCap int) *Stmt {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}
	s := &Stmt{ID: id, eng: eng, state: StateIdle, logger: logger, metrics: metrics, bufferCap: bufferCap}
	if s.logger == nil {
		s.logger = observability.NopLogger{}
	}
	return s
}

// State returns the statement's current lifecycle state.
func (s *Stmt) State() State { return s.state }

// RowsAffected returns the affected row count after a DONE outcome.
func (s *Stmt) RowsAffected() int64 { return s.eng.RowsAffected() }

// LastInsertID returns the last insert rowid after a DONE outcome.
func (s *Stmt) LastInsertID() int64 { return s.eng.LastInsertID() }

// Finalize releases the underlying prepared statement.
func (s *Stmt) Finalize() error { return s.eng.Finalize() }

// Bind reads a BindExecute body positioned immediately after the
// request header: a u8 parameter count, that many u8 type tags, padding
// to the next word, then the values themselves in declared-kind wire
// form. n == 0 is a valid no-op. On success the statement transitions to
// BOUND, ready for Query.
func (s *Stmt) Bind(m *wire.Message) error {
	n, err := m.GetUint8()
	if err != nil {
		return wire.NewError(common.CodeProto, "incomplete param types")
	}
	if n == 0 {
		s.state = StateBound
		s.headerEmitted = false
		return nil
	}

	types := make([]common.Kind, n)
	for i := range types {
		tag, err := m.GetUint8()
		if err != nil {
			if s.metrics != nil {
				s.metrics.BindError("incomplete_types")
			}
			return wire.NewError(common.CodeProto, "incomplete param types")
		}
		types[i] = common.Kind(tag)
	}
	if err := m.PadToWord(false); err != nil {
		if s.metrics != nil {
			s.metrics.BindError("incomplete_values")
		}
		return wire.NewError(common.CodeProto, "incomplete param values")
	}

	for i, k := range types {
		slot := i + 1
		if err := s.bindOne(m, slot, k); err != nil {
			if s.metrics != nil {
				s.metrics.BindError("bind_failed")
			}
			s.logger.Log(observability.LevelWarn, "bind failed", "stmt_id", s.ID, "slot", slot, "err", err)
			return err
		}
	}

	s.state = StateBound
	s.headerEmitted = false
	return nil
}

func (s *Stmt) bindOne(m *wire.Message, slot int, k common.Kind) error {
	switch k {
	case common.KindInteger, common.KindUnixtime:
		v, err := m.GetInt64()
		if err != nil {
			return incompleteValues(err)
		}
		return s.eng.BindInt64(slot, v)
	case common.KindBoolean:
		v, err := m.GetInt64()
		if err != nil {
			return incompleteValues(err)
		}
		if v != 0 && v != 1 {
			return wire.NewError(common.CodeRange, "invalid param "+strconv.Itoa(slot)+": boolean out of range")
		}
		return s.eng.BindInt64(slot, v)
	case common.KindFloat:
		v, err := m.GetFloat64()
		if err != nil {
			return incompleteValues(err)
		}
		return s.eng.BindDouble(slot, v)
	case common.KindText, common.KindISO8601:
		v, err := m.GetText()
		if err != nil {
			return incompleteValues(err)
		}
		return s.eng.BindText(slot, v)
	case common.KindNull:
		if err := m.GetNull(); err != nil {
			return incompleteValues(err)
		}
		return s.eng.BindNull(slot)
	default:
		return wire.NewError(common.CodeProto, "invalid param "+strconv.Itoa(slot)+": unknown type "+strconv.Itoa(int(k)))
	}
}

// incompleteValues promotes an EOM from a value read into the canned
// "incomplete param values" message; any other failure (e.g. an
// unterminated string) propagates unchanged.
func incompleteValues(err error) error {
	if wire.IsEOM(err) {
		return wire.NewError(common.CodeProto, "incomplete param values")
	}
	return err
}

// Query writes as much of the result set into m as fits, resuming from
// wherever the last call left off. The first call (state BOUND) also
// writes the column-count and column-name header. For a statement that
// yields no columns, the first call has already run it to completion and
// returns ErrNoColumns without writing anything.
func (s *Stmt) Query(ctx context.Context, m *wire.Message) (QueryOutcome, error) {
	if !s.headerEmitted {
		// SQLite only exposes result columns once the statement has
		// actually run, so the first Step has to happen before the
		// header can be written; its outcome is buffered and replayed
		// as the first iteration of the loop below.
		row, done, err := s.eng.Step(ctx)
		if err != nil {
			s.state = StateFailed
			s.logger.Log(observability.LevelWarn, "query priming step failed", "stmt_id", s.ID, "err", err)
			return 0, err
		}
		if s.eng.ColumnCount() == 0 {
			// A non-yielding statement has already run to completion
			// inside the Step call above; nothing left to stream.
			s.state = StateDone
			if s.metrics != nil {
				s.metrics.QueryOutcome("done")
			}
			return 0, ErrNoColumns
		}
		if err := s.writeHeader(m); err != nil {
			s.state = StateFailed
			s.logger.Log(observability.LevelWarn, "query header write failed", "stmt_id", s.ID, "err", err)
			return 0, err
		}
		s.headerEmitted = true
		s.state = StateStreaming
		s.primed = true
		s.pendingRow = row
		s.pendingDone = done
	}

	rowsWritten := 0
	for {
		row, done, err := s.nextStep(ctx)
		if err != nil {
			s.state = StateFailed
			return 0, err
		}
		if done {
			s.state = StateDone
			if s.metrics != nil {
				s.metrics.RowsStreamed(rowsWritten)
				s.metrics.QueryOutcome("done")
			}
			return OutcomeDone, nil
		}
		if !row {
			continue
		}
		if err := s.writeRow(m); err != nil {
			s.state = StateFailed
			return 0, err
		}
		rowsWritten++

		// The row just written is committed whole before this check runs,
		// so crossing the cap here never leaves a partial row behind: the
		// buffer may grow past bufferCap by up to one row's width before
		// Query backs off to PARTIAL.
		if m.Len() > s.bufferCap {
			s.state = StatePartial
			if s.metrics != nil {
				s.metrics.RowsStreamed(rowsWritten)
				s.metrics.QueryOutcome("partial")
			}
			return OutcomeRow, nil
		}
	}
}

// nextStep returns the buffered outcome of the priming Step call once,
// then falls through to the engine for every call after.
func (s *Stmt) nextStep(ctx context.Context) (bool, bool, error) {
	if s.primed {
		s.primed = false
		return s.pendingRow, s.pendingDone, nil
	}
	return s.eng.Step(ctx)
}

// writeHeader writes the column count and padded, NUL-terminated column
// names. Column kinds are resolved fresh per row in writeRow, since
// SQLite's runtime type for a column can legitimately vary row to row.
func (s *Stmt) writeHeader(m *wire.Message) error {
	c := s.eng.ColumnCount()
	if err := m.PutUint64(uint64(c)); err != nil {
		return err
	}
	for i := 0; i < c; i++ {
		if err := m.PutText(s.eng.ColumnName(i)); err != nil {
			return wire.Wrap(err, "column name")
		}
	}
	return nil
}

// resolveColumnKind applies the DATETIME/BOOLEAN/ISO8601 declared-type
// overrides on top of SQLite's runtime column type. SQLITE_NULL always
// wins except for an ISO8601-declared column, which keeps its declared
// kind even when the underlying value is NULL or empty (preserving
// schema identity for the client).
func resolveColumnKind(declType string, raw common.Kind) common.Kind {
	upper := strings.ToUpper(declType)
	if strings.Contains(upper, "ISO8601") {
		return common.KindISO8601
	}
	if raw == common.KindNull {
		return common.KindNull
	}
	if strings.Contains(upper, "DATETIME") {
		switch raw {
		case common.KindInteger:
			return common.KindUnixtime
		case common.KindText:
			return common.KindISO8601
		}
		return raw
	}
	if strings.Contains(upper, "BOOLEAN") {
		return common.KindBoolean
	}
	return raw
}

// writeRow writes one row record: the packed nibble type header (zero-
// padded to a word), then each non-NULL value's wire form in declaration
// order. NULL columns emit 8 zero bytes. The row is written as one
// all-or-nothing unit; Query checks the buffer cap only after a row has
// been written in full.
func (s *Stmt) writeRow(m *wire.Message) error {
	c := s.eng.ColumnCount()
	kinds := make([]common.Kind, c)
	for i := 0; i < c; i++ {
		kinds[i] = resolveColumnKind(s.eng.ColumnDeclType(i), s.eng.ColumnKind(i))
	}

	headerLen := (c + 1) / 2
	header := make([]byte, headerLen)
	for i, k := range kinds {
		nibble := byte(k) & 0x0f
		if i%2 == 0 {
			header[i/2] |= nibble
		} else {
			header[i/2] |= nibble << 4
		}
	}
	for _, b := range header {
		if err := m.PutUint8(b); err != nil {
			return err
		}
	}
	if err := m.PadToWord(true); err != nil {
		return err
	}

	for i, k := range kinds {
		if k == common.KindNull {
			if err := m.PutNull(); err != nil {
				return wire.Wrap(err, "row value")
			}
			continue
		}
		var err error
		switch k {
		case common.KindInteger, common.KindUnixtime:
			err = m.PutInt64(s.eng.ColumnInt64(i))
		case common.KindBoolean:
			v := s.eng.ColumnInt64(i)
			if v != 0 {
				v = 1
			}
			err = m.PutInt64(v)
		case common.KindFloat:
			err = m.PutFloat64(s.eng.ColumnDouble(i))
		case common.KindText:
			err = m.PutText(s.eng.ColumnText(i))
		case common.KindISO8601:
			err = m.PutText(s.eng.ColumnText(i))
		default:
			err = wire.NewError(common.CodeProto, "unsupported column kind")
		}
		if err != nil {
			return wire.Wrap(err, "row value")
		}
	}
	return nil
}
