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

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomotap/tomotap/config"
	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/tag"
)

func TestParseRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want       ndef.Record
		name       string
		args       []string
		wantFamily tag.Family
	}{
		{name: "uri", args: []string{"uri", "https://tomotap.dev"}, want: ndef.URI{URI: "https://tomotap.dev"}, wantFamily: tag.NTAG213},
		{name: "text joins words", args: []string{"text", "-lang", "de", "hallo", "welt"}, want: ndef.Text{Text: "hallo welt", Lang: "de"}, wantFamily: tag.NTAG213},
		{name: "phone", args: []string{"phone", "+1 555 0100"}, want: ndef.URI{URI: "tel:+15550100"}, wantFamily: tag.NTAG213},
		{name: "social", args: []string{"social", "github", "@tomotap"}, want: ndef.URI{URI: "https://github.com/tomotap"}, wantFamily: tag.NTAG213},
		{name: "wifi default auth", args: []string{"wifi", "-tag", "ntag215", "-password", "hunter22", "HomeNet"}, want: ndef.NewWiFi("HomeNet", "hunter22", 0), wantFamily: tag.NTAG215},
		{name: "wifi hidden accepted", args: []string{"wifi", "-hidden", "-auth", "open", "Cafe"}, want: ndef.NewWiFi("Cafe", "", ndef.AuthOpen), wantFamily: tag.NTAG213},
		{name: "empty", args: []string{"empty", "-tag", "216"}, want: ndef.Empty{}, wantFamily: tag.NTAG216},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rs, err := parseRecord(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFamily, rs.family)
			assert.True(t, ndef.Equal(tt.want, rs.record), "got %#v", rs.record)
		})
	}
}

func TestParseRecordContact(t *testing.T) {
	t.Parallel()

	rs, err := parseRecord([]string{"contact", "-phone", "+44 20 7946 0000", "Ada", "Lovelace"})
	require.NoError(t, err)
	v, ok := rs.record.(ndef.VCard)
	require.True(t, ok)
	c := ndef.ParseContact(v)
	assert.Equal(t, "Ada Lovelace", c.Name)
}

func TestParseRecordErrors(t *testing.T) {
	t.Parallel()

	tests := [][]string{
		nil,
		{"hologram", "x"},
		{"uri"},
		{"text"},
		{"social", "github"},
		{"wifi", "-auth", "wep", "Net"},
		{"uri", "-tag", "ntag424", "https://x"},
		{"contact"},
	}
	for _, args := range tests {
		_, err := parseRecord(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestRequestRejectsOversizedRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	a := &app{cfg: config.Default(), out: NewOutput(&buf)}

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	_, err := a.request([]string{"text", string(long)})
	require.ErrorIs(t, err, tag.ErrTooLarge)
	assert.Contains(t, buf.String(), "does not fit; use an NTAG215 or larger")

	buf.Reset()
	req, err := a.request([]string{"uri", "https://tomotap.dev"})
	require.NoError(t, err)
	assert.Equal(t, ndef.KindURI, req.Kind)
	assert.Contains(t, buf.String(), "of 144 bytes on NTAG213")
}
