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

// Package wire implements the framed binary envelope: fixed-width
// primitive encoding, NUL-terminated and padded strings, and the
// two-tier body buffer shared by every message type.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/jmhu/sqlited/common"
)

const (
	// HeaderSize is the fixed 8-byte frame header.
	HeaderSize = 8
	// WordSize is the atomic alignment unit of the protocol.
	WordSize = 8
	// InlineBodySize is the inline region kept allocation-free for the
	// common small-message path. Exported so the stmt package's row
	// streaming backpressure check can compare against the same cap the
	// buffer itself uses.
	InlineBodySize  = 4096
	staticBodySize  = InlineBodySize
	// growChunk is the minimum increment the overflow buffer grows by.
	growChunk = 4096
	// highWaterMark is Reset's threshold for releasing an oversized
	// overflow buffer back to nil instead of keeping it for reuse.
	highWaterMark = 64 * 1024
	// MaxWords bounds a single frame to 32 MiB, defending against a
	// malicious or confused peer declaring an enormous body.
	MaxWords = 1 << 22
)

// Message is the framed envelope: an 8-byte header plus a body. The body
// is logically one contiguous byte span, backed by a fixed 4096-byte
// inline array for the common small-message path and transparently
// promoted to a heap-allocated buffer (grown in 4096-byte chunks) once a
// message outgrows it. Promotion copies the inline bytes across so every
// read or write after that point is a single flat slice -- the cursor
// logic never needs to know which backing array a byte came from, which
// is what keeps puts and gets from ever straddling the boundary.
//
// The same cursor serves both an encode (write) session and a decode
// (read) session; Reset rewinds it so one Message can be reused across
// many request turns without reallocating in the common case.
type Message struct {
	words uint32
	mtype common.MsgType
	flags uint8
	extra uint16

	static [staticBodySize]byte
	body   []byte // static[:n] while small; a heap slice once promoted
	heap   bool   // true once body no longer aliases static

	cursor int
}

// Init prepares a freshly allocated Message for its first use.
func (m *Message) Init() {
	m.Reset()
}

// Reset rewinds the cursor so the Message can be reused for the next
// request turn. An oversized heap buffer is released rather than kept,
// bounding per-connection memory; a small one is kept to avoid
// reallocating on the next turn.
func (m *Message) Reset() {
	m.words = 0
	m.mtype = 0
	m.flags = 0
	m.extra = 0
	m.cursor = 0
	if m.heap && cap(m.body) > highWaterMark {
		m.body = nil
		m.heap = false
	} else if m.heap {
		m.body = m.body[:0]
	} else {
		m.body = m.static[:0]
	}
}

// HeaderPut reserves and fills the type/flags portion of the outgoing
// header. The words field is patched in by Flush once the body is
// complete.
func (m *Message) HeaderPut(mtype common.MsgType, flags uint8) {
	m.mtype = mtype
	m.flags = flags
	m.extra = 0
	if m.body == nil {
		m.body = m.static[:0]
	}
}

// HeaderGet parses an 8-byte wire header, populating words/type/flags/
// extra. It fails with PROTO if words is zero or exceeds MaxWords.
func (m *Message) HeaderGet(hdr []byte) error {
	if len(hdr) != HeaderSize {
		return NewError(common.CodeProto, "short header")
	}
	words := binary.LittleEndian.Uint32(hdr[0:4])
	if words == 0 {
		return NewError(common.CodeProto, "zero-length body")
	}
	if words > MaxWords {
		return NewError(common.CodeProto, "frame exceeds maximum size")
	}
	m.words = words
	m.mtype = common.MsgType(hdr[4])
	m.flags = hdr[5]
	m.extra = binary.LittleEndian.Uint16(hdr[6:8])
	return nil
}

// LoadBody copies raw body bytes (as delivered by the transport) into the
// Message ahead of a Decode. It fails with PROTO if the length does not
// match words*8 or is not word-aligned.
func (m *Message) LoadBody(raw []byte) error {
	if uint32(len(raw)) != m.words*WordSize {
		return NewError(common.CodeProto, "body length does not match header")
	}
	if len(raw)%WordSize != 0 {
		return NewError(common.CodeProto, "body is not word-aligned")
	}
	if len(raw) <= staticBodySize {
		copy(m.static[:len(raw)], raw)
		m.body = m.static[:len(raw)]
		m.heap = false
	} else {
		if cap(m.body) < len(raw) || !m.heap {
			m.body = make([]byte, len(raw))
		} else {
			m.body = m.body[:len(raw)]
		}
		copy(m.body, raw)
		m.heap = true
	}
	m.cursor = 0
	return nil
}

// Type returns the message's type code.
func (m *Message) Type() common.MsgType { return m.mtype }

// Flags returns the message's flags byte.
func (m *Message) Flags() uint8 { return m.flags }

// Words returns the body length in 8-byte words, as read from (or about
// to be written to) the header.
func (m *Message) Words() uint32 { return m.words }

// Len returns the total number of logical body bytes written so far.
func (m *Message) Len() int { return len(m.body) }

// HasOverflow reports whether the body has been promoted to a heap
// buffer, i.e. whether the logical "body2" tier is in use.
func (m *Message) HasOverflow() bool { return m.heap }

// OverflowLen returns how many bytes live beyond the 4096-byte inline
// region, for tests asserting the boundary scenarios of the two-tier
// buffer.
func (m *Message) OverflowLen() int {
	if len(m.body) <= staticBodySize {
		return 0
	}
	return len(m.body) - staticBodySize
}

// HeaderBytes renders the 8-byte wire header from the current words,
// type, flags and extra fields. Call after Flush.
func (m *Message) HeaderBytes() []byte {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], m.words)
	hdr[4] = byte(m.mtype)
	hdr[5] = m.flags
	binary.LittleEndian.PutUint16(hdr[6:8], m.extra)
	return hdr[:]
}

// BodyRanges returns the written body content as one or two byte ranges
// (the inline-sized prefix, then any overflow) so a transport can write
// them out without assuming a single contiguous allocation.
func (m *Message) BodyRanges() [][]byte {
	if len(m.body) == 0 {
		return nil
	}
	if len(m.body) <= staticBodySize {
		return [][]byte{m.body}
	}
	return [][]byte{m.body[:staticBodySize], m.body[staticBodySize:]}
}

// Flush zero-pads the body to a whole number of words, patches the
// header's words field from the bytes written so far, and returns the
// header and body ranges.
func (m *Message) Flush() ([]byte, [][]byte, error) {
	if err := m.PadToWord(true); err != nil {
		return nil, nil, err
	}
	m.words = uint32(len(m.body) / WordSize)
	return m.HeaderBytes(), m.BodyRanges(), nil
}

// reserve returns a writable window of n bytes at the current write
// cursor, growing and promoting the backing buffer as needed.
func (m *Message) reserve(n int) ([]byte, error) {
	need := m.cursor + n
	if need > cap(m.body) {
		newCap := cap(m.body)
		if newCap < staticBodySize {
			newCap = staticBodySize
		}
		for newCap < need {
			newCap += growChunk
		}
		grown := make([]byte, len(m.body), newCap)
		copy(grown, m.body)
		m.body = grown
		m.heap = true
	}
	if len(m.body) < need {
		m.body = m.body[:need]
	}
	win := m.body[m.cursor:need]
	m.cursor = need
	return win, nil
}

// window returns a readable slice of n bytes at the current read cursor,
// failing with EOM if fewer bytes remain than the header declared.
func (m *Message) window(n int) ([]byte, error) {
	total := int(m.words) * WordSize
	if m.cursor+n > total || m.cursor+n > len(m.body) {
		return nil, ErrEOM()
	}
	win := m.body[m.cursor : m.cursor+n]
	m.cursor += n
	return win, nil
}

// PadToWord advances the cursor to the next 8-byte boundary, zero-filling
// the pad bytes on a write and simply skipping them on a read.
func (m *Message) PadToWord(writing bool) error {
	trailing := m.cursor % WordSize
	if trailing == 0 {
		return nil
	}
	n := WordSize - trailing
	if writing {
		win, err := m.reserve(n)
		if err != nil {
			return err
		}
		for i := range win {
			win[i] = 0
		}
		return nil
	}
	_, err := m.window(n)
	return err
}

// Cursor returns the current logical position, for tests that assert
// alignment and monotonicity invariants.
func (m *Message) Cursor() int { return m.cursor }

// ---- raw scalar primitives, used by Schema field encoding ----

// PutUint8 appends one byte.
func (m *Message) PutUint8(v uint8) error {
	win, err := m.reserve(1)
	if err != nil {
		return err
	}
	win[0] = v
	return nil
}

// GetUint8 reads one byte.
func (m *Message) GetUint8() (uint8, error) {
	win, err := m.window(1)
	if err != nil {
		return 0, err
	}
	return win[0], nil
}

// PutUint16 appends a little-endian uint16.
func (m *Message) PutUint16(v uint16) error {
	win, err := m.reserve(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(win, v)
	return nil
}

// GetUint16 reads a little-endian uint16.
func (m *Message) GetUint16() (uint16, error) {
	win, err := m.window(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(win), nil
}

// PutUint32 appends a little-endian uint32.
func (m *Message) PutUint32(v uint32) error {
	win, err := m.reserve(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(win, v)
	return nil
}

// GetUint32 reads a little-endian uint32.
func (m *Message) GetUint32() (uint32, error) {
	win, err := m.window(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(win), nil
}

// PutUint64 appends a little-endian uint64.
func (m *Message) PutUint64(v uint64) error {
	win, err := m.reserve(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(win, v)
	return nil
}

// GetUint64 reads a little-endian uint64.
func (m *Message) GetUint64() (uint64, error) {
	win, err := m.window(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(win), nil
}

// PutInt64 appends a two's-complement little-endian int64.
func (m *Message) PutInt64(v int64) error {
	return m.PutUint64(uint64(v))
}

// GetInt64 reads a two's-complement little-endian int64.
func (m *Message) GetInt64() (int64, error) {
	v, err := m.GetUint64()
	return int64(v), err
}

// PutFloat64 appends an IEEE-754 binary64 little-endian bit pattern.
func (m *Message) PutFloat64(v float64) error {
	return m.PutUint64(math.Float64bits(v))
}

// GetFloat64 reads an IEEE-754 binary64 little-endian bit pattern.
func (m *Message) GetFloat64() (float64, error) {
	v, err := m.GetUint64()
	return math.Float64frombits(v), err
}

// PutText writes a NUL-terminated UTF-8 string, zero-padded to the next
// 8-byte boundary.
func (m *Message) PutText(s string) error {
	size := len(s) + 1
	pad := 0
	if trailing := (m.cursor + size) % WordSize; trailing != 0 {
		pad = WordSize - trailing
	}
	win, err := m.reserve(size + pad)
	if err != nil {
		return err
	}
	copy(win, s)
	for i := len(s); i < len(win); i++ {
		win[i] = 0
	}
	return nil
}

// PutNull writes the fixed 8-byte zero placeholder a NULL occupies on the
// wire regardless of the column's declared kind.
func (m *Message) PutNull() error {
	win, err := m.reserve(WordSize)
	if err != nil {
		return err
	}
	for i := range win {
		win[i] = 0
	}
	return nil
}

// GetNull consumes the 8-byte zero placeholder written by PutNull.
func (m *Message) GetNull() error {
	_, err := m.window(WordSize)
	return err
}

// GetText reads a NUL-terminated string and consumes its padding.
func (m *Message) GetText() (string, error) {
	total := int(m.words) * WordSize
	limit := total
	if limit > len(m.body) {
		limit = len(m.body)
	}
	idx := -1
	for i := m.cursor; i < limit; i++ {
		if m.body[i] == 0 {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", NewError(common.CodeProto, "unterminated string")
	}
	s := string(m.body[m.cursor:idx])
	consumed := (idx - m.cursor) + 1
	if trailing := (idx + 1) % WordSize; trailing != 0 {
		consumed += WordSize - trailing
	}
	if _, err := m.window(consumed); err != nil {
		return "", err
	}
	return s, nil
}
