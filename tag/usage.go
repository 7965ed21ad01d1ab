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

// Usage summarises how much of a tag an encoded payload would occupy.
type Usage struct {
	Geometry  Geometry
	Used      int
	Remaining int
	Percent   float64
	Fits      bool
}

// UsageFor reports capacity use for n encoded bytes.
func UsageFor(g Geometry, n int) Usage {
	u := Usage{Geometry: g, Used: n, Fits: g.Fits(n)}
	if g.CapacityBytes > 0 {
		u.Remaining = g.CapacityBytes - n
		u.Percent = float64(n) * 100 / float64(g.CapacityBytes)
	}
	if u.Remaining < 0 {
		u.Remaining = 0
	}
	return u
}

// SmallestFitting returns the smallest known family that holds n bytes, or
// Unknown.
func SmallestFitting(n int) Family {
	for _, f := range []Family{NTAG213, NTAG215, NTAG216} {
		if ForFamily(f).Fits(n) {
			return f
		}
	}
	return Unknown
}

// Pages splits data into 4 byte pages, zero padding the last one.
func Pages(data []byte) [][PageSize]byte {
	n := (len(data) + PageSize - 1) / PageSize
	pages := make([][PageSize]byte, n)
	for i := range pages {
		copy(pages[i][:], data[i*PageSize:])
	}
	return pages
}
