package main

import (
	"context"
	"database/sql"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/engine"
	"github.com/jmhu/sqlited/handler"
	"github.com/jmhu/sqlited/observability"
	"github.com/jmhu/sqlited/schema"
	"github.com/jmhu/sqlited/stmt"
	"github.com/jmhu/sqlited/wire"
)

// connection is one accepted socket's worth of state: the frame
// multiplexer, the SQLite handle reserved for this connection alone, and
// the statement handles it has prepared but not yet finalized. Statement
// handles are keyed by an incrementing uint32 counter scoped to this
// connection, matching the wire format's StmtID field width.
type connection struct {
	conn    net.Conn
	db      *sql.DB
	h       *handler.Handler
	logger  observability.Logger
	metrics observability.Metrics

	bufferCap int

	eng        engine.Engine
	stmts      map[uint32]*stmt.Stmt
	nextStmtID uint32
}

func newConnection(conn net.Conn, db *sql.DB, logger observability.Logger, metrics observability.Metrics, bufferCap int) *connection {
	return &connection{
		conn:      conn,
		db:        db,
		h:         handler.New(logger, metrics),
		logger:    logger,
		metrics:   metrics,
		bufferCap: bufferCap,
		stmts:     make(map[uint32]*stmt.Stmt),
	}
}

func (c *connection) close() {
	if c.eng != nil {
		_ = c.eng.Close()
	}
	_ = c.conn.Close()
}

// serve reads and dispatches frames until the connection is closed, the
// peer disconnects, or ctx is canceled.
func (c *connection) serve(ctx context.Context) {
	eng, err := engine.Open(ctx, c.db)
	if err != nil {
		c.logger.Log(observability.LevelError, "open engine failed", "remote", c.conn.RemoteAddr(), "err", err)
		return
	}
	c.eng = eng

	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.handleOne(ctx); err != nil {
			if err != io.EOF {
				c.logger.Log(observability.LevelWarn, "connection ended", "remote", c.conn.RemoteAddr(), "err", err)
			}
			return
		}
	}
}

// handleOne reads exactly one frame and dispatches it, replying over the
// same connection as needed.
func (c *connection) handleOne(ctx context.Context) error {
	var hdr [wire.HeaderSize]byte
	if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
		return err
	}
	t, err := c.h.DecodeHeader(hdr[:])
	if err != nil {
		return err
	}

	body := make([]byte, int(c.h.Message().Words())*wire.WordSize)
	if len(body) > 0 {
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return err
		}
	}
	if err := c.h.LoadBody(body); err != nil {
		return err
	}

	switch t {
	case common.MsgHello:
		return c.onHello()
	case common.MsgPrepare:
		return c.onPrepare(ctx)
	case common.MsgBindExecute:
		return c.onBindExecute(ctx)
	case common.MsgFinalize:
		return c.onFinalize()
	case common.MsgHeartbeat:
		return c.onHeartbeat()
	default:
		return c.sendError(wire.NewError(common.CodeProto, "unsupported message type"))
	}
}

func (c *connection) onHello() error {
	msg, err := c.h.Decode()
	if err != nil {
		return c.sendError(err)
	}
	hello := msg.(*schema.HelloMsg)
	c.logger.Log(observability.LevelDebug, "hello", "remote", c.conn.RemoteAddr(), "client_id", hello.ClientID, "protocol_version", hello.ProtocolVersion)

	ack := &schema.HelloAckMsg{ServerVersion: 1, SessionID: uuid.NewString()}
	if err := c.h.Encode(ack, 0); err != nil {
		return err
	}
	return c.flush()
}

func (c *connection) onPrepare(ctx context.Context) error {
	msg, err := c.h.Decode()
	if err != nil {
		return c.sendError(err)
	}
	prepare := msg.(*schema.PrepareMsg)

	egStmt, err := c.eng.Prepare(ctx, prepare.SQL)
	if err != nil {
		return c.sendError(err)
	}

	id := c.nextStmtID
	c.nextStmtID++
	s := stmt.NewWithCutoff(id, egStmt, c.logger, c.metrics, c.bufferCap)
	c.stmts[id] = s

	ack := &schema.PrepareAckMsg{
		StmtID:    id,
		NumParams: uint8(countPlaceholders(prepare.SQL)),
		// NumColumns is unknown until the statement has actually run a
		// first step (database/sql exposes result columns only post-
		// execution); clients learn the real count from the Rows header.
		NumColumns: 0,
	}
	if err := c.h.Encode(ack, 0); err != nil {
		return err
	}
	return c.flush()
}

func (c *connection) onBindExecute(ctx context.Context) error {
	m := c.h.Message()
	stmtID, err := m.GetUint32()
	if err != nil {
		return c.sendError(wire.NewError(common.CodeProto, "missing bind statement id"))
	}
	s, ok := c.stmts[stmtID]
	if !ok {
		return c.sendError(wire.NewError(common.CodeProto, "unknown statement id"))
	}

	if err := s.Bind(m); err != nil {
		return c.sendError(err)
	}

	for {
		c.h.EncodeRawHeader(common.MsgRows, 0)
		outcome, err := s.Query(ctx, c.h.Message())
		if err != nil {
			if stmt.IsNoColumns(err) {
				return c.sendDone(s)
			}
			return c.sendError(err)
		}
		// A PARTIAL outcome that lands exactly on the statement's last row
		// leaves nothing for this turn to write before Query notices DONE;
		// skip the empty frame rather than send a zero-byte Rows message.
		if c.h.Message().Len() > 0 {
			if err := c.flush(); err != nil {
				return err
			}
		}
		if outcome == stmt.OutcomeDone {
			return c.sendDone(s)
		}
	}
}

func (c *connection) sendDone(s *stmt.Stmt) error {
	done := &schema.DoneMsg{
		RowsAffected: uint64(s.RowsAffected()),
		LastInsertID: s.LastInsertID(),
	}
	if err := c.h.Encode(done, 0); err != nil {
		return err
	}
	return c.flush()
}

func (c *connection) onFinalize() error {
	msg, err := c.h.Decode()
	if err != nil {
		return c.sendError(err)
	}
	fin := msg.(*schema.FinalizeMsg)
	if s, ok := c.stmts[fin.StmtID]; ok {
		_ = s.Finalize()
		delete(c.stmts, fin.StmtID)
	}
	// Fire-and-forget: Finalize has no acknowledgment on the wire.
	return nil
}

func (c *connection) onHeartbeat() error {
	if _, err := c.h.Decode(); err != nil {
		return c.sendError(err)
	}
	reply := &schema.HeartbeatMsg{Timestamp: time.Now().Unix()}
	if err := c.h.Encode(reply, 0); err != nil {
		return err
	}
	return c.flush()
}

// sendError reports err to the peer as an ErrorMsg. err is wrapped as
// CodeError if it is not already a *wire.Error.
func (c *connection) sendError(err error) error {
	werr, ok := err.(*wire.Error)
	if !ok {
		werr = wire.NewError(common.CodeError, err.Error())
	}
	if encErr := c.h.Encode(schema.FromError(werr), 0); encErr != nil {
		return encErr
	}
	return c.flush()
}

func (c *connection) flush() error {
	hdr, ranges, err := c.h.Flush()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(hdr); err != nil {
		return err
	}
	for _, r := range ranges {
		if _, err := c.conn.Write(r); err != nil {
			return err
		}
	}
	return nil
}
