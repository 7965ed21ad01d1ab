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

package tag

// Static lock bytes live in bytes 2 and 3 of page 2.
const (
	staticLock0 = 2
	staticLock1 = 3
)

// IsLocked reports whether either static lock byte of page 2 is set. An
// unreadable page is reported as unlocked.
func IsLocked(page2 []byte) bool {
	if len(page2) < PageSize {
		return false
	}
	return page2[staticLock0] != 0 || page2[staticLock1] != 0
}

// PageWrite is one page of a lock sequence.
type PageWrite struct {
	Page int
	Data [PageSize]byte
}

// LockPlan returns the page writes that permanently lock a tag:
// the CC access byte, the dynamic lock page and the static lock bytes.
//
// WARNING: locking is irreversible on real hardware. Once these pages are
// written the tag can never be written or erased again.
func LockPlan(g Geometry, page2, cc []byte) ([]PageWrite, error) {
	if !g.Known() {
		return nil, ErrUnknownGeometry
	}
	if len(page2) < PageSize || len(cc) < PageSize {
		return nil, ErrUnknownGeometry
	}

	var static [PageSize]byte
	copy(static[:], page2)
	static[staticLock0] = 0xFF
	static[staticLock1] = 0xFF

	var ccPage [PageSize]byte
	copy(ccPage[:], cc)
	// read-only access condition
	ccPage[3] = 0x0F

	// static lock bits cover the CC, so they go last
	return []PageWrite{
		{Page: CCPage, Data: ccPage},
		{Page: g.DynamicLock, Data: [PageSize]byte{0xFF, 0xFF, 0xFF, 0x00}},
		{Page: LockPage, Data: static},
	}, nil
}
