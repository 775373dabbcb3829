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

// Package schema declares the closed set of flat-field message bodies
// (everything in the registry except BindExecute and Rows, which carry
// self-describing payloads the stmt package reads directly). Each
// message type is a small hand-written Go struct; there is no reflection
// -- field order and kind are fixed at compile time and walked by the
// encodeFields/decodeFields helpers below.
package schema

import (
	"github.com/jmhu/sqlited/common"
	"github.com/jmhu/sqlited/wire"
)

// Message is implemented by every flat-field schema in the registry.
type Message interface {
	Type() common.MsgType
	EncodeBody(m *wire.Message) error
	DecodeBody(m *wire.Message) error
}

// field pairs a name (used only for error context) with the put or get
// call that does the actual work.
type field struct {
	name string
	fn   func() error
}

// encodeFields runs each field's put in order, wrapping any failure with
// the field name so a caller can tell which field a PROTO/RANGE error
// came from without exposing internal offsets.
func encodeFields(fields ...field) error {
	for _, f := range fields {
		if err := f.fn(); err != nil {
			return wire.Wrap(err, f.name)
		}
	}
	return nil
}

// decodeFields runs each field's get in order. An EOM surfacing mid-walk
// means the peer sent a short message; it is promoted to a descriptive
// PROTO error naming the field rather than leaking the internal EOM
// sentinel past this layer.
func decodeFields(fields ...field) error {
	for _, f := range fields {
		if err := f.fn(); err != nil {
			if wire.IsEOM(err) {
				return wire.NewError(common.CodeProto, "message ended while reading "+f.name)
			}
			return wire.Wrap(err, f.name)
		}
	}
	return nil
}
