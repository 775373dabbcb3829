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

package wire

import (
	"strings"

	"github.com/jmhu/sqlited/common"
)

// Error is a structured protocol failure: a numeric code plus a stack of
// context frames (field name, variant name, parameter index) accumulated
// as the error is wrapped at each dispatch layer. It is rendered to a
// string only at the boundary, per the error-wrapping design note.
type Error struct {
	Code   common.Code
	Native int32 // native SQLite result code, when Code == CodeSQLiteNative
	msg    string
	frames []string
}

// NewError builds a new Error with the given code and base message.
func NewError(code common.Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

// NewSQLiteError wraps a native SQLite result code and message verbatim.
func NewSQLiteError(native int32, msg string) *Error {
	return &Error{Code: common.CodeSQLiteNative, Native: native, msg: msg}
}

// Wrap annotates err with a context frame (a field name, variant name, or
// parameter index) and returns an *Error carrying the deepest numeric
// code. If err is not already an *Error, it is wrapped as CodeError.
func Wrap(err error, frame string) *Error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		e = &Error{Code: common.CodeError, msg: err.Error()}
	}
	// Copy so the same underlying error can be wrapped independently by
	// concurrent callers without racing on the frame slice.
	wrapped := &Error{Code: e.Code, Native: e.Native, msg: e.msg}
	wrapped.frames = append(wrapped.frames, frame)
	wrapped.frames = append(wrapped.frames, e.frames...)
	return wrapped
}

// Error renders the code, frame trail, and base message into one string.
// This is the one place the error is turned into text.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Code == common.CodeSQLiteNative {
		b.WriteString(" (sqlite ")
		b.WriteString(itoa(int(e.Native)))
		b.WriteByte(')')
	}
	for _, f := range e.frames {
		b.WriteString(": ")
		b.WriteString(f)
	}
	if e.msg != "" {
		b.WriteString(": ")
		b.WriteString(e.msg)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IsEOM reports whether err is the internal end-of-message sentinel. EOM
// must never be allowed to cross the public boundary unwrapped; callers
// use this to detect it and either resume streaming or promote it.
func IsEOM(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == common.CodeEOM
}

// errEOM is the shared internal sentinel instance.
var errEOM = &Error{Code: common.CodeEOM, msg: "end of message"}

// ErrEOM returns the internal end-of-message sentinel.
func ErrEOM() *Error { return errEOM }
