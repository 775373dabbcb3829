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

package schema

import (
	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/wire"
)

// HelloMsg is the client's opening handshake.
type HelloMsg struct {
	ProtocolVersion uint32
	ClientID        string
}

func (msg *HelloMsg) Type() common.MsgType { return common.MsgHello }

func (msg *HelloMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(
		field{"ProtocolVersion", func() error { return m.PutUint32(msg.ProtocolVersion) }},
		field{"ClientID", func() error { return m.PutText(msg.ClientID) }},
	)
}

func (msg *HelloMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(
		field{"ProtocolVersion", func() (err error) { msg.ProtocolVersion, err = m.GetUint32(); return }},
		field{"ClientID", func() (err error) { msg.ClientID, err = m.GetText(); return }},
	)
}

// HelloAckMsg is the server's handshake reply.
type HelloAckMsg struct {
	ServerVersion uint32
	SessionID     string
}

func (msg *HelloAckMsg) Type() common.MsgType { return common.MsgHelloAck }

func (msg *HelloAckMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(
		field{"ServerVersion", func() error { return m.PutUint32(msg.ServerVersion) }},
		field{"SessionID", func() error { return m.PutText(msg.SessionID) }},
	)
}

func (msg *HelloAckMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(
		field{"ServerVersion", func() (err error) { msg.ServerVersion, err = m.GetUint32(); return }},
		field{"SessionID", func() (err error) { msg.SessionID, err = m.GetText(); return }},
	)
}

// PrepareMsg asks the server to prepare a SQL statement.
type PrepareMsg struct {
	SQL string
}

func (msg *PrepareMsg) Type() common.MsgType { return common.MsgPrepare }

func (msg *PrepareMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(field{"SQL", func() error { return m.PutText(msg.SQL) }})
}

func (msg *PrepareMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(field{"SQL", func() (err error) { msg.SQL, err = m.GetText(); return }})
}

// PrepareAckMsg returns the handle and shape of a prepared statement.
type PrepareAckMsg struct {
	StmtID     uint32
	NumParams  uint8
	NumColumns uint8
}

func (msg *PrepareAckMsg) Type() common.MsgType { return common.MsgPrepareAck }

func (msg *PrepareAckMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(
		field{"StmtID", func() error { return m.PutUint32(msg.StmtID) }},
		field{"NumParams", func() error { return m.PutUint8(msg.NumParams) }},
		field{"NumColumns", func() error { return m.PutUint8(msg.NumColumns) }},
	)
}

func (msg *PrepareAckMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(
		field{"StmtID", func() (err error) { msg.StmtID, err = m.GetUint32(); return }},
		field{"NumParams", func() (err error) { msg.NumParams, err = m.GetUint8(); return }},
		field{"NumColumns", func() (err error) { msg.NumColumns, err = m.GetUint8(); return }},
	)
}

// DoneMsg reports the outcome of a fully-drained, non-row-yielding or
// exhausted statement execution.
type DoneMsg struct {
	RowsAffected uint64
	LastInsertID int64
}

func (msg *DoneMsg) Type() common.MsgType { return common.MsgDone }

func (msg *DoneMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(
		field{"RowsAffected", func() error { return m.PutUint64(msg.RowsAffected) }},
		field{"LastInsertID", func() error { return m.PutInt64(msg.LastInsertID) }},
	)
}

func (msg *DoneMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(
		field{"RowsAffected", func() (err error) { msg.RowsAffected, err = m.GetUint64(); return }},
		field{"LastInsertID", func() (err error) { msg.LastInsertID, err = m.GetInt64(); return }},
	)
}

// ErrorMsg carries a failure back to the client: the numeric code, the
// native SQLite result code when applicable, and a human-readable
// message.
type ErrorMsg struct {
	Code    common.Code
	Native  int32
	Message string
}

func (msg *ErrorMsg) Type() common.MsgType { return common.MsgErrorMsg }

func (msg *ErrorMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(
		field{"Code", func() error { return m.PutUint8(uint8(msg.Code)) }},
		field{"Native", func() error { return m.PutUint32(uint32(msg.Native)) }},
		field{"Message", func() error { return m.PutText(msg.Message) }},
	)
}

func (msg *ErrorMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(
		field{"Code", func() (err error) {
			var v uint8
			v, err = m.GetUint8()
			msg.Code = common.Code(v)
			return
		}},
		field{"Native", func() (err error) {
			var v uint32
			v, err = m.GetUint32()
			msg.Native = int32(v)
			return
		}},
		field{"Message", func() (err error) { msg.Message, err = m.GetText(); return }},
	)
}

// FromError builds an ErrorMsg from a wire.Error, ready to encode.
func FromError(err *wire.Error) *ErrorMsg {
	return &ErrorMsg{Code: err.Code, Native: err.Native, Message: err.Error()}
}

// FinalizeMsg releases a prepared statement's handle.
type FinalizeMsg struct {
	StmtID uint32
}

func (msg *FinalizeMsg) Type() common.MsgType { return common.MsgFinalize }

func (msg *FinalizeMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(field{"StmtID", func() error { return m.PutUint32(msg.StmtID) }})
}

func (msg *FinalizeMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(field{"StmtID", func() (err error) { msg.StmtID, err = m.GetUint32(); return }})
}

// HeartbeatMsg keeps an idle connection alive in either direction.
type HeartbeatMsg struct {
	Timestamp int64
}

func (msg *HeartbeatMsg) Type() common.MsgType { return common.MsgHeartbeat }

func (msg *HeartbeatMsg) EncodeBody(m *wire.Message) error {
	return encodeFields(field{"Timestamp", func() error { return m.PutInt64(msg.Timestamp) }})
}

func (msg *HeartbeatMsg) DecodeBody(m *wire.Message) error {
	return decodeFields(field{"Timestamp", func() (err error) { msg.Timestamp, err = m.GetInt64(); return }})
}
