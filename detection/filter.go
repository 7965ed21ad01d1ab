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

package detection

import (
	"path/filepath"
	"strings"
)

// IsBlocked reports whether vidpid appears in blocklist. Entries may use
// any format accepted by ParseVIDPID.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = ParseVIDPID(vidpid)
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if ParseVIDPID(blocked) == vidpid {
			return true
		}
	}
	return false
}

// ParseVIDPID normalizes a USB ID to upper case VID:PID. It accepts
// "1a86:7523", "VID:1A86 PID:7523" and "vid=1a86 pid=7523".
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(strings.TrimSpace(descriptor))

	vid := hexAfter(descriptor, "VID:", "VID=", "VENDOR=")
	pid := hexAfter(descriptor, "PID:", "PID=", "PRODUCT=")
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	if left, right, ok := strings.Cut(descriptor, ":"); ok && isHex(left) && isHex(right) {
		return left + ":" + right
	}
	return ""
}

func hexAfter(s string, prefixes ...string) string {
	for _, prefix := range prefixes {
		if idx := strings.Index(s, prefix); idx >= 0 {
			return leadingHex(s[idx+len(prefix):])
		}
	}
	return ""
}

func leadingHex(s string) string {
	end := 0
	for end < len(s) && isHexDigit(s[end]) {
		end++
	}
	return s[:end]
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

// IsPathIgnored reports whether devicePath is in ignorePaths. Paths are
// compared cleaned and case-insensitively, so COM3 matches com3.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p != "" && normalizedPath(p) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
