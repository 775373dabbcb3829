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

// Package handler multiplexes encode/decode across the schema registry
// by type code: one entry point, one embedded frame, a type switch
// underneath.
package handler

import (
	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/observability"
	"github.com/jmhu/sqlited/schema"
	"github.com/jmhu/sqlited/wire"
)

// Handler owns one wire.Message and multiplexes Encode/Decode by type
// code. BindExecute and Rows bodies are left positioned for the stmt
// package to read or write directly (see Message, EncodeRawHeader).
type Handler struct {
	msg     wire.Message
	logger  observability.Logger
	metrics observability.Metrics
}

// New builds a Handler with the given collaborators. A nil logger is
// replaced with NopLogger; a nil metrics is kept as nil and metrics calls
// are skipped.
func New(logger observability.Logger, metrics observability.Metrics) *Handler {
	h := &Handler{logger: logger, metrics: metrics}
	if h.logger == nil {
		h.logger = observability.NopLogger{}
	}
	h.msg.Init()
	return h
}

// Message returns the embedded frame, for the stmt package's raw
// BindExecute/Rows bodies which bypass the flat-field schema registry.
func (h *Handler) Message() *wire.Message { return &h.msg }

// Reset rewinds the embedded Message for the next request turn.
func (h *Handler) Reset() { h.msg.Reset() }

// Encode writes msg's header and, for flat-field types, its body. Raw
// types (BindExecute, Rows) get only the header written here; the
// caller fills the body directly via Message() and then Flush.
func (h *Handler) Encode(msg schema.Message, flags uint8) error {
	h.msg.Reset()
	t := msg.Type()
	h.msg.HeaderPut(t, flags)
	if schema.IsRaw(t) {
		return nil
	}
	if err := msg.EncodeBody(&h.msg); err != nil {
		return wire.Wrap(err, msgTypeName(t))
	}
	return nil
}

// EncodeRawHeader writes only the frame header for a raw-bodied response
// (Rows), with no schema.Message to extract a type from. The caller
// fills the body directly via Message() and then Flush.
func (h *Handler) EncodeRawHeader(t common.MsgType, flags uint8) {
	h.msg.Reset()
	h.msg.HeaderPut(t, flags)
}

// Flush finalizes the embedded Message and returns the framed header and
// body ranges ready for the transport.
func (h *Handler) Flush() ([]byte, [][]byte, error) {
	return h.msg.Flush()
}

// DecodeHeader reads hdr into the embedded Message's header fields,
// reporting the type so the caller can choose between a raw path (for
// BindExecute/Rows) and Decode (for everything else).
func (h *Handler) DecodeHeader(hdr []byte) (common.MsgType, error) {
	h.msg.Reset()
	if err := h.msg.HeaderGet(hdr); err != nil {
		return 0, err
	}
	return h.msg.Type(), nil
}

// LoadBody copies raw wire body bytes into the embedded Message ahead of
// Decode or direct raw-path reads.
func (h *Handler) LoadBody(body []byte) error {
	return h.msg.LoadBody(body)
}

// Decode dispatches the embedded Message's already-loaded header and
// body to the matching flat-field schema type and returns the decoded
// value. Unknown or raw types fail with PROTO; use DecodeHeader first
// and check schema.IsRaw to route BindExecute/Rows elsewhere.
func (h *Handler) Decode() (schema.Message, error) {
	t := h.msg.Type()
	if schema.IsRaw(t) {
		return nil, wire.NewError(common.CodeProto, "message type has no flat-field schema")
	}
	msg, err := schema.New(t)
	if err != nil {
		return nil, err
	}
	if err := msg.DecodeBody(&h.msg); err != nil {
		return nil, wire.Wrap(err, msgTypeName(t))
	}
	if h.metrics != nil {
		h.metrics.MessageDecoded(msgTypeName(t))
	}
	return msg, nil
}

func msgTypeName(t common.MsgType) string {
	switch t {
	case common.MsgHello:
		return "Hello"
	case common.MsgHelloAck:
		return "HelloAck"
	case common.MsgPrepare:
		return "Prepare"
	case common.MsgPrepareAck:
		return "PrepareAck"
	case common.MsgBindExecute:
		return "BindExecute"
	case common.MsgRows:
		return "Rows"
	case common.MsgDone:
		return "Done"
	case common.MsgErrorMsg:
		return "ErrorMsg"
	case common.MsgFinalize:
		return "Finalize"
	case common.MsgHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}
