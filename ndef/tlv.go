// tomotap
// Copyright (c) 2025 The tomotap Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of tomotap.
//
// tomotap is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// tomotap is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with tomotap; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package ndef

import (
	"errors"
	"fmt"
)

// TLV block types found in Type 2 tag user memory.
const (
	TLVNull       byte = 0x00
	TLVNDEF       byte = 0x03
	TLVTerminator byte = 0xFE

	// tlvLongForm marks a three byte length field.
	tlvLongForm byte = 0xFF

	// MaxMessageLen is the largest NDEF message a long-form length can carry.
	MaxMessageLen = 0xFFFF

	// blankWindow is how many leading null bytes mark a never-written tag.
	blankWindow = 4
)

// TLV errors.
var (
	ErrMalformedTLV = errors.New("ndef: malformed TLV")
	ErrTruncated    = fmt.Errorf("%w: truncated", ErrMalformedTLV)
	ErrTooLong      = errors.New("ndef: message exceeds TLV length limit")
)

// WrapTLV frames an NDEF message: NDEF type, length (one byte when below
// 0xFF, otherwise 0xFF followed by a big-endian uint16), message and a
// terminator.
func WrapTLV(message []byte) ([]byte, error) {
	n := len(message)
	if n > MaxMessageLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, n)
	}

	out := make([]byte, 0, TLVSize(n))
	out = append(out, TLVNDEF)
	if n < int(tlvLongForm) {
		out = append(out, byte(n))
	} else {
		out = append(out, tlvLongForm, byte(n>>8), byte(n))
	}
	out = append(out, message...)
	out = append(out, TLVTerminator)
	return out, nil
}

// EmptyTLV returns the TLV for a formatted tag with no records.
func EmptyTLV() []byte {
	return []byte{TLVNDEF, 0x00, TLVTerminator}
}

// TLVSize is the wrapped size of a message of n bytes including terminator.
func TLVSize(n int) int {
	if n < int(tlvLongForm) {
		return 2 + n + 1
	}
	return 4 + n + 1
}

// Decoder incrementally consumes tag memory and reports how many more bytes
// it needs before the NDEF message is complete. Callers read pages until
// Need returns zero, so only the pages covering the message are read.
type Decoder struct {
	err     error
	buf     []byte
	pos     int
	start   int
	end     int
	headers bool
	empty   bool
}

// NewDecoder returns a decoder positioned at the first user byte.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends bytes and advances the parser. Bytes past the end of the
// message are ignored. It returns an error once the input is known to be
// malformed.
func (d *Decoder) Feed(p []byte) error {
	if d.err != nil {
		return d.err
	}
	if d.Done() {
		return nil
	}
	d.buf = append(d.buf, p...)
	d.advance()
	return d.err
}

// Need returns the number of additional bytes required. It is zero when the
// message is complete or the input has failed.
func (d *Decoder) Need() int {
	if d.err != nil || d.Done() {
		return 0
	}
	if !d.headers {
		return d.headerNeed()
	}
	return d.end - len(d.buf)
}

// Done reports whether a complete message (or an empty tag) was found.
func (d *Decoder) Done() bool {
	return d.empty || (d.headers && len(d.buf) >= d.end)
}

// Message returns the bare NDEF message, nil for an empty tag.
func (d *Decoder) Message() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if !d.Done() {
		return nil, fmt.Errorf("%w: need %d more bytes", ErrTruncated, d.Need())
	}
	if d.empty {
		return nil, nil
	}
	return d.buf[d.start:d.end], nil
}

// Records decodes the collected message.
func (d *Decoder) Records() ([]Record, error) {
	msg, err := d.Message()
	if err != nil {
		return nil, err
	}
	return Unmarshal(msg)
}

// Consumed is the number of bytes through the end of the message, which
// equals the number of bytes the NDEF container occupies after padding.
func (d *Decoder) Consumed() int {
	if d.empty || !d.headers {
		return d.pos
	}
	return d.end
}

func (d *Decoder) headerNeed() int {
	// skipped padding but no type byte yet
	if d.pos >= len(d.buf) {
		if d.pos < blankWindow {
			return blankWindow - d.pos
		}
		return 1
	}
	if len(d.buf) == d.pos+1 {
		return 1
	}
	if d.buf[d.pos+1] == tlvLongForm {
		return d.pos + 4 - len(d.buf)
	}
	return 1
}

func (d *Decoder) advance() {
	for d.pos < len(d.buf) && d.buf[d.pos] == TLVNull {
		d.pos++
	}
	if d.pos >= len(d.buf) {
		if d.pos >= blankWindow && d.pos == len(d.buf) && allZero(d.buf) {
			d.empty = true
		}
		return
	}

	switch d.buf[d.pos] {
	case TLVTerminator:
		d.empty = true
		return
	case TLVNDEF:
	default:
		d.err = fmt.Errorf("%w: unexpected type 0x%02X at offset %d", ErrMalformedTLV, d.buf[d.pos], d.pos)
		return
	}

	rest := d.buf[d.pos:]
	if len(rest) < 2 {
		return
	}
	var length, hdr int
	if rest[1] == tlvLongForm {
		if len(rest) < 4 {
			return
		}
		length = int(rest[2])<<8 | int(rest[3])
		hdr = 4
	} else {
		length = int(rest[1])
		hdr = 2
	}
	if length == 0 {
		d.empty = true
		d.pos += hdr
		return
	}

	d.headers = true
	d.start = d.pos + hdr
	d.end = d.start + length
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
