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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapTLV_LengthForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		msgLen     int
		wantHeader []byte
	}{
		{name: "zero", msgLen: 0, wantHeader: []byte{0x03, 0x00}},
		{name: "short max 254", msgLen: 254, wantHeader: []byte{0x03, 0xFE}},
		{name: "long min 255", msgLen: 255, wantHeader: []byte{0x03, 0xFF, 0x00, 0xFF}},
		{name: "long 300", msgLen: 300, wantHeader: []byte{0x03, 0xFF, 0x01, 0x2C}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := bytes.Repeat([]byte{0xAB}, tt.msgLen)
			got, err := WrapTLV(msg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantHeader, got[:len(tt.wantHeader)])
			assert.Equal(t, TLVTerminator, got[len(got)-1])
			assert.Len(t, got, TLVSize(tt.msgLen))
			assert.Equal(t, msg, got[len(tt.wantHeader):len(got)-1])
		})
	}
}

func TestWrapTLV_TooLong(t *testing.T) {
	t.Parallel()
	_, err := WrapTLV(make([]byte, MaxMessageLen+1))
	require.ErrorIs(t, err, ErrTooLong)
}

func TestEmptyTLV(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []byte{0x03, 0x00, 0xFE}, EmptyTLV())
}

func TestDecoder_EmptyForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
	}{
		{name: "blank page", data: []byte{0x00, 0x00, 0x00, 0x00}},
		{name: "blank tag", data: make([]byte, 144)},
		{name: "terminator only", data: []byte{0xFE, 0x00, 0x00, 0x00}},
		{name: "empty ndef tlv", data: []byte{0x03, 0x00, 0xFE, 0x00}},
		{name: "padding then empty tlv", data: []byte{0x00, 0x03, 0x00, 0xFE}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, err := Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, KindEmpty, rec.Kind())
		})
	}
}

func TestDecoder_Malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
	}{
		{name: "lock control tlv", data: []byte{0x01, 0x03, 0xA0, 0x10}},
		{name: "garbage", data: []byte{0x42, 0x42, 0x42, 0x42}},
		{name: "truncated short", data: []byte{0x03, 0x10, 0xD1, 0x01}},
		{name: "truncated long header", data: []byte{0x03, 0xFF, 0x01}},
		{name: "no input", data: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrMalformedTLV)
		})
	}
}

func TestDecoder_NeedDrivesPageReads(t *testing.T) {
	t.Parallel()

	enc, err := Encode(URI{URI: "https://example.com/a/rather/long/path/for/paging"})
	require.NoError(t, err)

	// emulate tag memory: message plus trailing pages of junk
	memory := append(append([]byte{}, enc...), bytes.Repeat([]byte{0x55}, 64)...)

	d := NewDecoder()
	read := 0
	for d.Need() > 0 || read == 0 {
		require.Less(t, read, len(memory), "decoder asked for more than available")
		require.NoError(t, d.Feed(memory[read:read+4]))
		read += 4
	}
	assert.True(t, d.Done())
	// only the pages covering the TLV are read
	assert.LessOrEqual(t, read, len(enc)+3)

	records, err := d.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, URI{URI: "https://example.com/a/rather/long/path/for/paging"}, records[0])
}

func TestDecoder_LongForm(t *testing.T) {
	t.Parallel()
	text := Text{Text: string(bytes.Repeat([]byte("x"), 400)), Lang: "en"}
	enc, err := Encode(text)
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), enc[1])

	got, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestDecoder_LeadingPadding(t *testing.T) {
	t.Parallel()

	enc, err := Encode(URI{URI: "https://tomotap.dev"})
	require.NoError(t, err)

	// a zero first byte is padding when an NDEF TLV follows within the
	// first page, so the tag is not reported empty
	padded := append([]byte{0x00}, enc...)
	got, err := Decode(padded)
	require.NoError(t, err)
	assert.Equal(t, URI{URI: "https://tomotap.dev"}, got)

	got, err = Decode(append([]byte{0x00, 0x00, 0x00}, enc...))
	require.NoError(t, err)
	assert.Equal(t, URI{URI: "https://tomotap.dev"}, got)
}
