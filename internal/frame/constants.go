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

// Package frame provides line framing and hex helpers for the tomotap
// bridge protocol.
package frame

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Line markers
const (
	Delimiter  = '|' // separates command or response name from data
	Terminator = '\n'
	CarriageRT = '\r'
)

// Line size limits
const (
	// MaxLineLength bounds a single line. An NTAG216 dump as hex plus the
	// response name fits comfortably.
	MaxLineLength = 4096
	// BaudRate is the fixed serial speed of the wired bridge.
	BaudRate = 115200
)

// Framing errors
var (
	ErrLineTooLong = errors.New("frame: line exceeds maximum length")
	ErrEmptyLine   = errors.New("frame: empty line")
	ErrBadHex      = errors.New("frame: invalid hex payload")
)

// Split separates a line into its name and optional data field. The line
// terminator and surrounding whitespace are ignored.
func Split(line string) (name, data string, hasData bool) {
	line = strings.TrimRight(line, "\r\n")
	name, data, hasData = strings.Cut(line, string(Delimiter))
	return strings.TrimSpace(name), data, hasData
}

// Join builds a terminated line. An empty data field omits the delimiter.
func Join(name, data string) []byte {
	var b bytes.Buffer
	b.Grow(len(name) + len(data) + 2)
	b.WriteString(name)
	if data != "" {
		b.WriteByte(Delimiter)
		b.WriteString(data)
	}
	b.WriteByte(Terminator)
	return b.Bytes()
}

// EncodeHex renders bytes as uppercase hex without separators.
func EncodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// DecodeHex parses hex in either case. Whitespace is rejected.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHex, err)
	}
	return b, nil
}

// Reader reads terminated lines with a length bound.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, MaxLineLength)}
}

// ReadLine returns the next non-empty line without its terminator. Blank
// lines such as stray CRLF pairs are skipped.
func (lr *Reader) ReadLine() (string, error) {
	for {
		line, err := lr.r.ReadSlice(Terminator)
		if errors.Is(err, bufio.ErrBufferFull) {
			// drain the rest of the oversized line
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = lr.r.ReadSlice(Terminator)
			}
			if err != nil {
				return "", err
			}
			return "", ErrLineTooLong
		}
		if err != nil {
			if len(line) > 0 && errors.Is(err, io.EOF) {
				return string(bytes.TrimRight(line, "\r")), nil
			}
			return "", err
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(trimmed)) == 0 {
			continue
		}
		return string(trimmed), nil
	}
}
