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
	"fmt"
	"unicode/utf16"
)

const (
	textUTF16Flag = 0x80
	textLangMask  = 0x3F
)

func decodeTextPayload(p []byte) (Record, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty text payload", ErrDecode)
	}
	status := p[0]
	langLen := int(status & textLangMask)
	if 1+langLen > len(p) {
		return nil, fmt.Errorf("%w: text language length %d exceeds payload", ErrDecode, langLen)
	}
	lang := string(p[1 : 1+langLen])
	body := p[1+langLen:]

	if status&textUTF16Flag == 0 {
		return Text{Text: string(body), Lang: lang}, nil
	}
	return Text{Text: decodeUTF16(body), Lang: lang}, nil
}

// decodeUTF16 honours a byte order mark and defaults to big-endian.
func decodeUTF16(b []byte) string {
	bigEndian := true
	if len(b) >= 2 {
		switch {
		case b[0] == 0xFE && b[1] == 0xFF:
			b = b[2:]
		case b[0] == 0xFF && b[1] == 0xFE:
			bigEndian = false
			b = b[2:]
		}
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		if bigEndian {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		} else {
			units = append(units, uint16(b[i+1])<<8|uint16(b[i]))
		}
	}
	return string(utf16.Decode(units))
}
