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
	"fmt"
	"strconv"
	"strings"
)

// WRITE_FAIL and ERROR reason codes.
const (
	ReasonNoTag           = "NO_TAG"
	ReasonTooLarge        = "TOO_LARGE"
	ReasonCancelled       = "CANCELLED"
	ReasonConfirmTimeout  = "CONFIRM_TIMEOUT"
	ReasonUnknownGeometry = "UNKNOWN_GEOMETRY"
	ReasonMalformedTLV    = "MALFORMED_TLV"
	ReasonReadFailed      = "READ_FAILED"
	ReasonLockFailed      = "LOCK_FAILED"
	ReasonUnexpected      = "UNEXPECTED_COMMAND"
	ReasonNFCUnsupported  = "NFC_UNSUPPORTED"
	reasonPagePrefix      = "PAGE:"
)

// PageFailure is the reason for a rejected page write.
func PageFailure(page int) string {
	return fmt.Sprintf("%s%d", reasonPagePrefix, page)
}

// ParsePageFailure extracts the page from a PAGE:n reason.
func ParsePageFailure(reason string) (int, bool) {
	rest, ok := strings.CutPrefix(reason, reasonPagePrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Fail builds a WRITE_FAIL response.
func Fail(reason string) Response {
	return Response{Kind: RespWriteFail, Reason: reason}
}

// Errorf builds an ERROR response.
func Errorf(format string, args ...any) Response {
	return Response{Kind: RespError, Reason: fmt.Sprintf(format, args...)}
}
