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

// registry is the closed set of flat-field message types. BindExecute
// and Rows are deliberately absent: their bodies are self-describing
// streams the stmt package reads straight off the Message, not a fixed
// field list, so they are never looked up here (see IsRaw).
var registry = map[common.MsgType]func() Message{
	common.MsgHello:      func() Message { return &HelloMsg{} },
	common.MsgHelloAck:   func() Message { return &HelloAckMsg{} },
	common.MsgPrepare:    func() Message { return &PrepareMsg{} },
	common.MsgPrepareAck: func() Message { return &PrepareAckMsg{} },
	common.MsgDone:       func() Message { return &DoneMsg{} },
	common.MsgErrorMsg:   func() Message { return &ErrorMsg{} },
	common.MsgFinalize:   func() Message { return &FinalizeMsg{} },
	common.MsgHeartbeat:  func() Message { return &HeartbeatMsg{} },
}

// New returns a zero-valued Message for t, ready for DecodeBody. Unknown
// or raw-bodied types fail with PROTO.
func New(t common.MsgType) (Message, error) {
	factory, ok := registry[t]
	if !ok {
		return nil, wire.NewError(common.CodeProto, "unknown message type")
	}
	return factory(), nil
}

// IsRaw reports whether t carries a self-describing body handled by the
// stmt package directly rather than a flat field list from this
// registry.
func IsRaw(t common.MsgType) bool {
	return t == common.MsgBindExecute || t == common.MsgRows
}
