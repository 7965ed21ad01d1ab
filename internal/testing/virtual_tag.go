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

// Package testing provides virtual NTAG21x tags and canned protocol lines
// for tests and the bridge simulator.
package testing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomotap/tomotap/internal/frame"
	"github.com/tomotap/tomotap/tag"
)

// Virtual tag errors
var (
	ErrNotPresent = errors.New("virtual tag not present")
	ErrOutOfRange = errors.New("page out of range")
	ErrLocked     = errors.New("page is locked")
	ErrInjected   = errors.New("injected page failure")
)

// Default UIDs per family
var (
	TestNTAG213UID = []byte{0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}
	TestNTAG215UID = []byte{0x04, 0x21, 0x43, 0x65, 0x87, 0xA9, 0xCB}
	TestNTAG216UID = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45}
)

// configuration pages after the dynamic lock page
const configPages = 5

// VirtualTag simulates the page memory of an NTAG213/215/216. It is safe
// for concurrent use.
type VirtualTag struct {
	arrived     chan struct{}
	failWrites  map[int]bool
	failReads   map[int]bool
	corrupt     map[int]bool
	pages       [][tag.PageSize]byte
	UID         []byte
	Geometry    tag.Geometry
	writes      int
	reads       int
	mu          sync.Mutex
	present     bool
}

// NewVirtualTag creates a formatted, present tag of family f. A nil uid
// selects the family's test UID.
func NewVirtualTag(f tag.Family, uid []byte) *VirtualTag {
	g := tag.ForFamily(f)
	if !g.Known() {
		g = tag.ForFamily(tag.NTAG213)
	}
	if uid == nil {
		switch g.Family {
		case tag.NTAG215:
			uid = TestNTAG215UID
		case tag.NTAG216:
			uid = TestNTAG216UID
		default:
			uid = TestNTAG213UID
		}
	}

	v := &VirtualTag{
		UID:        append([]byte(nil), uid...),
		Geometry:   g,
		pages:      make([][tag.PageSize]byte, g.DynamicLock+configPages),
		failWrites: make(map[int]bool),
		failReads:  make(map[int]bool),
		corrupt:    make(map[int]bool),
		arrived:    make(chan struct{}),
		present:    true,
	}
	v.initMemory()
	return v
}

// NewVirtualNTAG213 creates a virtual NTAG213 tag
func NewVirtualNTAG213(uid []byte) *VirtualTag { return NewVirtualTag(tag.NTAG213, uid) }

// NewVirtualNTAG215 creates a virtual NTAG215 tag
func NewVirtualNTAG215(uid []byte) *VirtualTag { return NewVirtualTag(tag.NTAG215, uid) }

// NewVirtualNTAG216 creates a virtual NTAG216 tag
func NewVirtualNTAG216(uid []byte) *VirtualTag { return NewVirtualTag(tag.NTAG216, uid) }

func (v *VirtualTag) initMemory() {
	copy(v.pages[0][:3], v.UID)
	if len(v.UID) > 3 {
		copy(v.pages[1][:], v.UID[3:])
	}
	// CC: magic, version 1.0, size/8, read/write access
	v.pages[tag.CCPage] = [tag.PageSize]byte{0xE1, 0x10, ccSize(v.Geometry.Family), 0x00}
	// formatted with an empty NDEF message
	v.pages[tag.FirstUserPage] = [tag.PageSize]byte{0x03, 0x00, 0xFE, 0x00}
}

// ccSize is the size byte real tags ship with.
func ccSize(f tag.Family) byte {
	switch f {
	case tag.NTAG215:
		return 0x3E
	case tag.NTAG216:
		return 0x6D
	default:
		return 0x12
	}
}

// UIDString returns the UID as uppercase hex
func (v *VirtualTag) UIDString() string {
	return frame.EncodeHex(v.UID)
}

// DetectUID waits until the tag is present or timeout elapses. It returns
// an empty UID when no tag arrived.
func (v *VirtualTag) DetectUID(ctx context.Context, timeout time.Duration) (string, error) {
	v.mu.Lock()
	if v.present {
		v.mu.Unlock()
		return v.UIDString(), nil
	}
	arrived := v.arrived
	v.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-arrived:
		return v.UIDString(), nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", fmt.Errorf("detect aborted: %w", ctx.Err())
	}
}

// ReadPage returns one page.
func (v *VirtualTag) ReadPage(page int) ([tag.PageSize]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.check(page); err != nil {
		return [tag.PageSize]byte{}, err
	}
	if v.failReads[page] {
		return [tag.PageSize]byte{}, fmt.Errorf("read page %d: %w", page, ErrInjected)
	}
	v.reads++
	data := v.pages[page]
	if v.corrupt[page] {
		for i := range data {
			data[i] ^= 0xFF
		}
	}
	return data, nil
}

// WritePage writes one page. Lock bytes and the CC are one-time
// programmable: written bits are ORed into the existing value.
func (v *VirtualTag) WritePage(page int, data [tag.PageSize]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.check(page); err != nil {
		return err
	}
	if v.failWrites[page] {
		return fmt.Errorf("write page %d: %w", page, ErrInjected)
	}
	if page < tag.LockPage || v.isLocked(page) {
		return fmt.Errorf("write page %d: %w", page, ErrLocked)
	}
	v.writes++

	switch page {
	case tag.LockPage:
		// only the lock bytes are writable
		v.pages[page][2] |= data[2]
		v.pages[page][3] |= data[3]
	case tag.CCPage, v.Geometry.DynamicLock:
		for i := range data {
			v.pages[page][i] |= data[i]
		}
	default:
		v.pages[page] = data
	}
	return nil
}

func (v *VirtualTag) check(page int) error {
	if !v.present {
		return ErrNotPresent
	}
	if page < 0 || page >= len(v.pages) {
		return fmt.Errorf("page %d: %w", page, ErrOutOfRange)
	}
	return nil
}

// isLocked reports whether page is write protected. The caller holds mu.
// Static lock bits protect pages 3 to 15 individually; any dynamic lock bit
// protects the rest of user memory.
func (v *VirtualTag) isLocked(page int) bool {
	lock := v.pages[tag.LockPage]
	switch {
	case page >= tag.CCPage && page <= 7:
		return lock[2]&(1<<page) != 0
	case page >= 8 && page <= 15:
		return lock[3]&(1<<(page-8)) != 0
	case page >= 16 && page <= v.Geometry.LastUserPage:
		dyn := v.pages[v.Geometry.DynamicLock]
		return dyn[0] != 0 || dyn[1] != 0
	}
	return false
}

// SetTLV writes tlv into user memory starting at the first user page,
// bypassing locks and write counting.
func (v *VirtualTag) SetTLV(tlv []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(tlv) > v.Geometry.CapacityBytes {
		return fmt.Errorf("%d bytes exceed %s", len(tlv), v.Geometry)
	}
	for i, p := range tag.Pages(tlv) {
		v.pages[tag.FirstUserPage+i] = p
	}
	return nil
}

// SetCC overwrites the capability container page.
func (v *VirtualTag) SetCC(cc [tag.PageSize]byte) {
	v.mu.Lock()
	v.pages[tag.CCPage] = cc
	v.mu.Unlock()
}

// UserMemory returns a copy of all user pages.
func (v *VirtualTag) UserMemory() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]byte, 0, v.Geometry.CapacityBytes)
	for p := tag.FirstUserPage; p <= v.Geometry.LastUserPage; p++ {
		out = append(out, v.pages[p][:]...)
	}
	return out
}

// Page returns the raw content of page, ignoring faults.
func (v *VirtualTag) Page(page int) [tag.PageSize]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pages[page]
}

// FailWrite makes writes to page fail.
func (v *VirtualTag) FailWrite(page int) {
	v.mu.Lock()
	v.failWrites[page] = true
	v.mu.Unlock()
}

// FailRead makes reads of page fail.
func (v *VirtualTag) FailRead(page int) {
	v.mu.Lock()
	v.failReads[page] = true
	v.mu.Unlock()
}

// CorruptReads makes reads of page return inverted bytes while the stored
// content stays intact.
func (v *VirtualTag) CorruptReads(page int) {
	v.mu.Lock()
	v.corrupt[page] = true
	v.mu.Unlock()
}

// ClearFaults removes all injected failures.
func (v *VirtualTag) ClearFaults() {
	v.mu.Lock()
	clear(v.failWrites)
	clear(v.failReads)
	clear(v.corrupt)
	v.mu.Unlock()
}

// Writes is the number of accepted page writes.
func (v *VirtualTag) Writes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writes
}

// Reads is the number of successful page reads.
func (v *VirtualTag) Reads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reads
}

// Remove sets the tag as not present
func (v *VirtualTag) Remove() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.present {
		v.present = false
		v.arrived = make(chan struct{})
	}
}

// Insert sets the tag as present and wakes a pending DetectUID
func (v *VirtualTag) Insert() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.present {
		v.present = true
		close(v.arrived)
	}
}

// Present reports whether the tag is in the field
func (v *VirtualTag) Present() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.present
}

func (v *VirtualTag) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", v.Geometry.Family, v.UIDString())
	if !v.Present() {
		b.WriteString(" (removed)")
	}
	return b.String()
}
