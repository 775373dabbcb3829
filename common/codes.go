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

// Package common contains protocol constants shared by the codec, the
// statement adapter, and the engine. Kind and message-type codes are part
// of the wire format and must never be renumbered once shipped.
package common

// Kind is the one-byte tag identifying a value's wire encoding. Codes line
// up with SQLite's own column-type codes where applicable; gaps at 4, 6, 7
// and 8 are reserved and must stay unassigned.
type Kind uint8

// Kind constants. See §3 of the protocol notes for payload shapes.
const (
	KindInteger  Kind = 1
	KindFloat    Kind = 2
	KindText     Kind = 3
	KindNull     Kind = 5
	KindUnixtime Kind = 9
	KindISO8601  Kind = 10
	KindBoolean  Kind = 11
)

// String returns a short diagnostic name, used only in error messages.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindText:
		return "TEXT"
	case KindNull:
		return "NULL"
	case KindUnixtime:
		return "UNIXTIME"
	case KindISO8601:
		return "ISO8601"
	case KindBoolean:
		return "BOOLEAN"
	default:
		return "UNKNOWN"
	}
}

// MsgType is the message-type code carried in the frame header. The set is
// closed; adding a variant means adding a row to the schema registry too.
type MsgType uint8

// Message types. See SPEC_FULL.md §3.1 for field layouts.
const (
	MsgHello       MsgType = 1
	MsgHelloAck    MsgType = 2
	MsgPrepare     MsgType = 3
	MsgPrepareAck  MsgType = 4
	MsgBindExecute MsgType = 5
	MsgRows        MsgType = 6
	MsgDone        MsgType = 7
	MsgErrorMsg    MsgType = 8
	MsgFinalize    MsgType = 9
	MsgHeartbeat   MsgType = 10
)

// Code is the numeric failure code propagated to the wire and logged.
type Code uint8

// Failure codes. EOM never crosses the public boundary: it is an internal
// sentinel promoted to PROTO before it reaches a caller.
const (
	CodeOK           Code = 0
	CodeError        Code = 1
	CodeProto        Code = 2
	CodeNoMem        Code = 3
	CodeRange        Code = 4
	CodeEOM          Code = 5
	CodeSQLiteNative Code = 6 // native SQLite result code carried in Native field
)

// String returns the diagnostic name for a failure code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeError:
		return "ERROR"
	case CodeProto:
		return "PROTO"
	case CodeNoMem:
		return "NOMEM"
	case CodeRange:
		return "RANGE"
	case CodeEOM:
		return "EOM"
	case CodeSQLiteNative:
		return "SQLITE"
	default:
		return "UNKNOWN"
	}
}
