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

// Package tag models NTAG21x memory: family detection from the capability
// container, user memory geometry, capacity checks and lock bytes.
package tag

import (
	"errors"
	"fmt"
	"strings"
)

// Memory layout shared by the NTAG21x family.
const (
	PageSize       = 4
	LockPage       = 2
	CCPage         = 3
	FirstUserPage  = 4
	ccMagic        = 0xE1
	ccSizeMultiple = 8
)

// ErrUnknownGeometry is returned when the capability container cannot be
// interpreted. Capacity dependent operations fail closed on it.
var ErrUnknownGeometry = errors.New("tag: unknown geometry")

// Family is a supported tag family.
type Family int

const (
	Unknown Family = iota
	NTAG213
	NTAG215
	NTAG216
)

func (f Family) String() string {
	switch f {
	case NTAG213:
		return "NTAG213"
	case NTAG215:
		return "NTAG215"
	case NTAG216:
		return "NTAG216"
	default:
		return "Unknown"
	}
}

// ParseFamily accepts the names printed by Family.String, case-insensitive
// and with or without the NTAG prefix.
func ParseFamily(s string) Family {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "NTAG") {
	case "213":
		return NTAG213
	case "215":
		return NTAG215
	case "216":
		return NTAG216
	default:
		return Unknown
	}
}

// Geometry describes where user data lives on a tag.
type Geometry struct {
	Family        Family
	LastUserPage  int
	DynamicLock   int
	CapacityBytes int
	// DeclaredSize is the CC size field times eight.
	DeclaredSize int
	// OutOfBand is set when the declared size is larger than any known
	// family and the largest family was assumed.
	OutOfBand bool
}

var families = map[Family]Geometry{
	NTAG213: {Family: NTAG213, LastUserPage: 39, DynamicLock: 0x28},
	NTAG215: {Family: NTAG215, LastUserPage: 129, DynamicLock: 0x82},
	NTAG216: {Family: NTAG216, LastUserPage: 225, DynamicLock: 0xE2},
}

// ForFamily returns the geometry of a known family, or the Unknown
// geometry with zero capacity.
func ForFamily(f Family) Geometry {
	g, ok := families[f]
	if !ok {
		return Geometry{}
	}
	g.CapacityBytes = PageSize * (g.LastUserPage - FirstUserPage + 1)
	g.DeclaredSize = g.CapacityBytes
	return g
}

// Known reports whether g describes a supported family.
func (g Geometry) Known() bool {
	return g.Family != Unknown && g.CapacityBytes > 0
}

// UserPages is the number of user memory pages.
func (g Geometry) UserPages() int {
	if !g.Known() {
		return 0
	}
	return g.LastUserPage - FirstUserPage + 1
}

// Fits reports whether n encoded bytes fit in user memory. Unknown
// geometry never fits.
func (g Geometry) Fits(n int) bool {
	return g.Known() && n <= g.CapacityBytes
}

// CheckFits returns ErrUnknownGeometry or ErrTooLarge when n bytes cannot
// be written.
func (g Geometry) CheckFits(n int) error {
	if !g.Known() {
		return ErrUnknownGeometry
	}
	if n > g.CapacityBytes {
		return &TooLargeError{Size: n, Capacity: g.CapacityBytes}
	}
	return nil
}

func (g Geometry) String() string {
	if !g.Known() {
		return "Unknown"
	}
	return fmt.Sprintf("%s (%d bytes, pages %d-%d)", g.Family, g.CapacityBytes, FirstUserPage, g.LastUserPage)
}

// ErrTooLarge matches any TooLargeError.
var ErrTooLarge = errors.New("tag: payload too large")

// TooLargeError reports a payload that exceeds user memory.
type TooLargeError struct {
	Size     int
	Capacity int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("payload of %d bytes exceeds tag capacity of %d bytes", e.Size, e.Capacity)
}

func (*TooLargeError) Is(target error) bool {
	return target == ErrTooLarge
}

// Thresholds map a declared CC size to a family. Sizes up to NTAG213Max
// are NTAG213, up to NTAG215Max NTAG215, and larger sizes NTAG216.
type Thresholds struct {
	NTAG213Max int `toml:"ntag213_max"`
	NTAG215Max int `toml:"ntag215_max"`
	NTAG216Max int `toml:"ntag216_max"`
}

// DefaultThresholds leave a 48 byte margin above each family's declared
// size.
func DefaultThresholds() Thresholds {
	return Thresholds{NTAG213Max: 192, NTAG215Max: 552, NTAG216Max: 936}
}

// Validate checks the thresholds are positive and increasing.
func (t Thresholds) Validate() error {
	if t.NTAG213Max <= 0 || t.NTAG215Max <= t.NTAG213Max || t.NTAG216Max <= t.NTAG215Max {
		return fmt.Errorf("tag: thresholds must be positive and increasing: %d < %d < %d",
			t.NTAG213Max, t.NTAG215Max, t.NTAG216Max)
	}
	return nil
}

// Detect interprets a capability container page. A missing or invalid CC
// yields the Unknown geometry and ErrUnknownGeometry. A size above every
// band is reported as NTAG216 with OutOfBand set.
func (t Thresholds) Detect(cc []byte) (Geometry, error) {
	if len(cc) < PageSize {
		return Geometry{}, fmt.Errorf("%w: short capability container (%d bytes)", ErrUnknownGeometry, len(cc))
	}
	if cc[0] != ccMagic {
		return Geometry{}, fmt.Errorf("%w: capability container magic 0x%02X", ErrUnknownGeometry, cc[0])
	}
	size := int(cc[2]) * ccSizeMultiple
	if size == 0 {
		return Geometry{}, fmt.Errorf("%w: zero declared size", ErrUnknownGeometry)
	}
	return t.ForSize(size), nil
}

// ForSize maps a size in bytes to a geometry. Zero or negative sizes are
// Unknown.
func (t Thresholds) ForSize(size int) Geometry {
	if size <= 0 {
		return Geometry{}
	}
	var g Geometry
	switch {
	case size <= t.NTAG213Max:
		g = ForFamily(NTAG213)
	case size <= t.NTAG215Max:
		g = ForFamily(NTAG215)
	default:
		g = ForFamily(NTAG216)
		g.OutOfBand = size > t.NTAG216Max
	}
	g.DeclaredSize = size
	return g
}

// Detect uses DefaultThresholds.
func Detect(cc []byte) (Geometry, error) {
	return DefaultThresholds().Detect(cc)
}

// FamilyForPages maps a total page count to a family, for readers that
// report tag size as pages rather than a CC.
func FamilyForPages(total int) Family {
	switch total {
	case 45:
		return NTAG213
	case 135:
		return NTAG215
	case 231:
		return NTAG216
	default:
		return Unknown
	}
}
