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

package tagops

import (
	"context"
	"fmt"

	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/protocol"
	"github.com/tomotap/tomotap/tag"
)

// DetectGeometry reads the capability container. An unreadable or invalid
// container yields tag.ErrUnknownGeometry.
func DetectGeometry(io PageIO, th tag.Thresholds) (tag.Geometry, error) {
	cc, err := io.ReadPage(tag.CCPage)
	if err != nil {
		return tag.Geometry{}, fmt.Errorf("%w: %w", tag.ErrUnknownGeometry, err)
	}
	return th.Detect(cc[:])
}

// TagInfo builds the TAG_INFO payload for a detected tag. An unreadable
// lock page is reported as unlocked.
func TagInfo(io PageIO, uid string, g tag.Geometry) protocol.TagInfo {
	info := protocol.TagInfo{
		UID:  uid,
		Type: g.Family.String(),
		Size: g.CapacityBytes,
	}
	if lock, err := io.ReadPage(tag.LockPage); err == nil {
		info.Locked = tag.IsLocked(lock[:])
	}
	return info
}

// ReadTLV reads user pages until the NDEF message is complete and returns
// it as a normalised TLV container, or nil for an empty tag. Pages past
// the message are never read.
func ReadTLV(io PageIO, g tag.Geometry) ([]byte, error) {
	if !g.Known() {
		return nil, tag.ErrUnknownGeometry
	}
	dec := ndef.NewDecoder()
	for page := tag.FirstUserPage; dec.Need() > 0; page++ {
		if page > g.LastUserPage {
			return nil, fmt.Errorf("%w: message runs past page %d", errMalformed, g.LastUserPage)
		}
		data, err := io.ReadPage(page)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", errReadFailed, page, err)
		}
		if err := dec.Feed(data[:]); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformed, err)
		}
	}
	msg, err := dec.Message()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if msg == nil {
		return nil, nil
	}
	tlv, err := ndef.WrapTLV(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return tlv, nil
}

// HasMessage reports whether a first user page starts a non-empty NDEF TLV.
// Leading null TLVs are skipped the same way the decoder skips them.
func HasMessage(first [tag.PageSize]byte) bool {
	i := 0
	for i < len(first) && first[i] == ndef.TLVNull {
		i++
	}
	if i == len(first) || first[i] != ndef.TLVNDEF {
		return false
	}
	// a length byte on the next page is treated as content
	return i+1 == len(first) || first[i+1] != 0
}

func (t *TagOperations) info(ctx context.Context, emit Emit) error {
	emit = guard(emit)
	err := func() error {
		s, err := t.tap(ctx, emit)
		if err != nil {
			return err
		}
		g, err := DetectGeometry(t.io, t.config.Thresholds)
		if err != nil {
			return err
		}
		return emit(protocol.Response{Kind: protocol.RespTagInfo, Info: TagInfo(t.io, s.uid, g)})
	}()
	return finish(emit, err, errorResponse)
}

func (t *TagOperations) read(ctx context.Context, emit Emit) error {
	emit = guard(emit)
	err := func() error {
		s, err := t.tap(ctx, emit)
		if err != nil {
			return err
		}
		g, err := DetectGeometry(t.io, t.config.Thresholds)
		if err != nil {
			return err
		}
		tlv, err := ReadTLV(t.io, g)
		if err != nil {
			return err
		}
		return emit(protocol.Response{Kind: protocol.RespData, UID: s.uid, Payload: tlv, Empty: tlv == nil})
	}()
	return finish(emit, err, errorResponse)
}
