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

package frame

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line     string
		wantName string
		wantData string
		wantHas  bool
	}{
		{line: "PONG\n", wantName: "PONG"},
		{line: "VERIFY_OK|04A1B2C3D4E5F6\n", wantName: "VERIFY_OK", wantData: "04A1B2C3D4E5F6", wantHas: true},
		{line: "DATA|EMPTY\r\n", wantName: "DATA", wantData: "EMPTY", wantHas: true},
		{line: "ERROR|a|b", wantName: "ERROR", wantData: "a|b", wantHas: true},
		{line: "TAP_CARD|", wantName: "TAP_CARD", wantData: "", wantHas: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			name, data, has := Split(tt.line)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantData, data)
			assert.Equal(t, tt.wantHas, has)
		})
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []byte("PING\n"), Join("PING", ""))
	assert.Equal(t, []byte("WRITE_RAW|0300FE\n"), Join("WRITE_RAW", "0300FE"))
}

func TestHex(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0300FE", EncodeHex([]byte{0x03, 0x00, 0xFE}))

	b, err := DecodeHex("0300fe")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x00, 0xFE}, b)

	_, err = DecodeHex("03 00")
	require.ErrorIs(t, err, ErrBadHex)
	_, err = DecodeHex("ABC")
	require.ErrorIs(t, err, ErrBadHex)
}

func TestReader_ReadLine(t *testing.T) {
	t.Parallel()
	r := NewReader(strings.NewReader("PONG\r\n\r\nTAP_CARD\nDATA|EMPTY"))

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PONG", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "TAP_CARD", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "DATA|EMPTY", line)

	_, err = r.ReadLine()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReader_LineTooLong(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("A", MaxLineLength*2)
	r := NewReader(strings.NewReader(long + "\nPONG\n"))

	_, err := r.ReadLine()
	require.ErrorIs(t, err, ErrLineTooLong)

	line, err := r.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PONG", line)
}
