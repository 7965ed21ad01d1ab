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
	"strings"
)

// uriPrefixes is the URI identifier code table of the NFC Forum URI record
// type definition, indexed by code.
var uriPrefixes = [...]string{
	0x00: "",
	0x01: "http://www.",
	0x02: "https://www.",
	0x03: "http://",
	0x04: "https://",
	0x05: "tel:",
	0x06: "mailto:",
	0x07: "ftp://anonymous:anonymous@",
	0x08: "ftp://ftp.",
	0x09: "ftps://",
	0x0A: "sftp://",
	0x0B: "smb://",
	0x0C: "nfs://",
	0x0D: "ftp://",
	0x0E: "dav://",
	0x0F: "news:",
	0x10: "telnet://",
	0x11: "imap:",
	0x12: "rtsp://",
	0x13: "urn:",
	0x14: "pop:",
	0x15: "sip:",
	0x16: "sips:",
	0x17: "tftp:",
	0x18: "btspp://",
	0x19: "btl2cap://",
	0x1A: "btgoep://",
	0x1B: "tcpobex://",
	0x1C: "irdaobex://",
	0x1D: "file://",
	0x1E: "urn:epc:id:",
	0x1F: "urn:epc:tag:",
	0x20: "urn:epc:pat:",
	0x21: "urn:epc:raw:",
	0x22: "urn:epc:",
	0x23: "urn:nfc:",
}

// AbbreviateURI returns the identifier code of the longest matching prefix
// and the remainder of uri. Matching ignores case; the remainder keeps it.
func AbbreviateURI(uri string) (code byte, rest string) {
	lower := strings.ToLower(uri)
	best := 0
	for i, p := range uriPrefixes {
		if p == "" || len(p) <= len(uriPrefixes[best]) {
			continue
		}
		if strings.HasPrefix(lower, p) {
			best = i
		}
	}
	return byte(best), uri[len(uriPrefixes[best]):]
}

// ExpandURI reverses AbbreviateURI.
func ExpandURI(code byte, rest string) (string, error) {
	if int(code) >= len(uriPrefixes) {
		return "", fmt.Errorf("%w: unknown URI identifier code 0x%02X", ErrDecode, code)
	}
	return uriPrefixes[code] + rest, nil
}

// URIPayloadLen is the payload size of a URI record after abbreviation.
func URIPayloadLen(uri string) int {
	_, rest := AbbreviateURI(uri)
	return 1 + len(rest)
}

func decodeURIPayload(p []byte) (Record, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty URI payload", ErrDecode)
	}
	uri, err := ExpandURI(p[0], string(p[1:]))
	if err != nil {
		return nil, err
	}
	return URI{URI: uri}, nil
}
