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

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Line(t *testing.T) {
	t.Parallel()
	tests := []struct {
		want string
		cmd  Command
	}{
		{cmd: Ping(), want: "PING\n"},
		{cmd: WriteRaw([]byte{0x03, 0x00, 0xfe}), want: "WRITE_RAW|0300FE\n"},
		{cmd: Erase(), want: "ERASE\n"},
		{cmd: Read(), want: "READ\n"},
		{cmd: Lock(), want: "LOCK\n"},
		{cmd: Info(), want: "INFO\n"},
		{cmd: ConfirmOverwrite(), want: "CONFIRM_OVERWRITE\n"},
		{cmd: Cancel(), want: "CANCEL\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.cmd.Kind), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.cmd.Line()))

			parsed, err := ParseCommand(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd.Kind, parsed.Kind)
			assert.Equal(t, tt.cmd.Data, parsed.Data)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	t.Parallel()
	_, err := ParseCommand("FORMAT\n")
	require.ErrorIs(t, err, ErrUnknownCommand)
	_, err = ParseCommand("WRITE_RAW\n")
	require.ErrorIs(t, err, ErrMalformedLine)
	_, err = ParseCommand("WRITE_RAW|XYZ\n")
	require.ErrorIs(t, err, ErrMalformedLine)
	_, err = ParseCommand("\n")
	require.ErrorIs(t, err, ErrMalformedLine)

	c, err := ParseCommand("ping")
	require.NoError(t, err)
	assert.Equal(t, CmdPing, c.Kind)
	assert.False(t, c.IsControl())
	assert.True(t, Cancel().IsControl())
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		want Response
	}{
		{line: "PONG", want: Response{Kind: RespPong}},
		{line: "TAP_CARD", want: Response{Kind: RespTapCard}},
		{line: "READY_TO_WRITE", want: Response{Kind: RespReadyToWrite}},
		{line: "WRITE_COMPLETE", want: Response{Kind: RespWriteComplete}},
		{line: "DUPLICATE|04a1b2", want: Response{Kind: RespDuplicate, UID: "04A1B2"}},
		{line: "VERIFY_OK|04A1B2", want: Response{Kind: RespVerifyOK, UID: "04A1B2"}},
		{line: "WRITE_OK|04A1B2", want: Response{Kind: RespWriteOK, UID: "04A1B2"}},
		{line: "ERASE_OK|04A1B2", want: Response{Kind: RespEraseOK, UID: "04A1B2"}},
		{line: "LOCK_OK|04A1B2", want: Response{Kind: RespLockOK, UID: "04A1B2"}},
		{line: "WRITE_FAIL|PAGE:7", want: Response{Kind: RespWriteFail, Reason: "PAGE:7"}},
		{line: "ERROR|NO_TAG", want: Response{Kind: RespError, Reason: "NO_TAG"}},
		{line: "DATA|EMPTY", want: Response{Kind: RespData, Empty: true}},
		{line: "DATA|0300FE", want: Response{Kind: RespData, Payload: []byte{0x03, 0x00, 0xFE}}},
		{line: "DATA|04a1b2:0300FE", want: Response{Kind: RespData, UID: "04A1B2", Payload: []byte{0x03, 0x00, 0xFE}}},
		{line: "DATA|04A1B2:EMPTY", want: Response{Kind: RespData, UID: "04A1B2", Empty: true}},
		{
			line: "TAG_INFO|uid:04A1B2,type:NTAG215,size:504,locked:0",
			want: Response{Kind: RespTagInfo, Info: TagInfo{UID: "04A1B2", Type: "NTAG215", Size: 504}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			got, err := ParseResponse(tt.line + "\n")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponse_LineRoundTrip(t *testing.T) {
	t.Parallel()
	for _, r := range []Response{
		{Kind: RespPong},
		{Kind: RespVerifyOK, UID: "04A1B2C3D4E5F6"},
		{Kind: RespData, Payload: []byte{0x03, 0x05, 0xD1}},
		{Kind: RespData, Empty: true},
		{Kind: RespData, UID: "04A1B2C3D4E5F6", Payload: []byte{0x03, 0x05, 0xD1}},
		{Kind: RespData, UID: "04A1B2C3D4E5F6", Empty: true},
		{Kind: RespTagInfo, Info: TagInfo{UID: "04", Type: "NTAG213", Size: 144, Locked: true}},
		Fail(PageFailure(12)),
		Errorf("%s", ReasonNoTag),
	} {
		got, err := ParseResponse(string(r.Line()))
		require.NoError(t, err, r.String())
		assert.Equal(t, r, got)
	}
}

func TestParseResponse_Errors(t *testing.T) {
	t.Parallel()
	_, err := ParseResponse("HELLO|nfc=1")
	require.ErrorIs(t, err, ErrUnknownResponse)
	_, err = ParseResponse("DATA|0G")
	require.ErrorIs(t, err, ErrMalformedLine)
	_, err = ParseResponse("TAG_INFO|size:big")
	require.ErrorIs(t, err, ErrMalformedLine)
	_, err = ParseResponse("")
	require.ErrorIs(t, err, ErrMalformedLine)
}

func TestResponse_Terminal(t *testing.T) {
	t.Parallel()
	assert.False(t, Response{Kind: RespTapCard}.Terminal())
	assert.False(t, Response{Kind: RespDuplicate}.Terminal())
	assert.True(t, Response{Kind: RespWriteOK}.Terminal())
	assert.True(t, Response{Kind: RespWriteFail}.Failed())
	assert.False(t, Response{Kind: RespData}.Failed())
}

func TestPageFailure(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "PAGE:9", PageFailure(9))
	page, ok := ParsePageFailure("PAGE:9")
	assert.True(t, ok)
	assert.Equal(t, 9, page)

	_, ok = ParsePageFailure("PAGE:x")
	assert.False(t, ok)
	_, ok = ParsePageFailure(ReasonTooLarge)
	assert.False(t, ok)
}
