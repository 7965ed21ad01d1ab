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

package testing

import (
	"bytes"

	"github.com/tomotap/tomotap/protocol"
)

// Lines joins responses into the byte stream a bridge would send.
func Lines(resps ...protocol.Response) []byte {
	var b bytes.Buffer
	for _, r := range resps {
		b.Write(r.Line())
	}
	return b.Bytes()
}

// WriteVerifiedResponses is a clean write to a blank tag.
func WriteVerifiedResponses(uid string) []protocol.Response {
	return []protocol.Response{
		{Kind: protocol.RespTapCard},
		{Kind: protocol.RespReadyToWrite},
		{Kind: protocol.RespWriteComplete},
		{Kind: protocol.RespVerifyOK, UID: uid},
	}
}

// DuplicateResponses is the bridge side up to the duplicate prompt.
func DuplicateResponses(uid string) []protocol.Response {
	return []protocol.Response{
		{Kind: protocol.RespTapCard},
		{Kind: protocol.RespDuplicate, UID: uid},
	}
}

// OverwriteResponses follow a CONFIRM_OVERWRITE.
func OverwriteResponses(uid string) []protocol.Response {
	return []protocol.Response{
		{Kind: protocol.RespReadyToWrite},
		{Kind: protocol.RespWriteComplete},
		{Kind: protocol.RespVerifyOK, UID: uid},
	}
}

// TagInfoResponses answer INFO for a tag.
func TagInfoResponses(info protocol.TagInfo) []protocol.Response {
	return []protocol.Response{
		{Kind: protocol.RespTapCard},
		{Kind: protocol.RespTagInfo, Info: info},
	}
}

// NoTagResponses is a tap window that elapsed on the bridge.
func NoTagResponses() []protocol.Response {
	return []protocol.Response{
		{Kind: protocol.RespTapCard},
		protocol.Fail(protocol.ReasonNoTag),
	}
}
