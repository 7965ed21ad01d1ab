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
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap/protocol"
	"github.com/tomotap/tomotap/tag"
)

func (t *TagOperations) write(ctx context.Context, tlv []byte, emit Emit, control <-chan protocol.Command) error {
	emit = guard(emit)
	drainControl(control)
	err := func() error {
		s, err := t.tap(ctx, emit)
		if err != nil {
			return err
		}

		// capacity check
		if s.geometry, err = DetectGeometry(t.io, t.config.Thresholds); err != nil {
			return err
		}
		if s.geometry.OutOfBand {
			log.Warn().Int("declared", s.geometry.DeclaredSize).Msg("capability container beyond known sizes, assuming NTAG216")
		}
		if err := s.geometry.CheckFits(len(tlv)); err != nil {
			return err
		}

		// duplicate check
		first, err := t.io.ReadPage(tag.FirstUserPage)
		if err != nil {
			return errReadFailed
		}
		if HasMessage(first) {
			if err := emit(protocol.Response{Kind: protocol.RespDuplicate, UID: s.uid}); err != nil {
				return err
			}
			if err := t.awaitConfirm(ctx, control); err != nil {
				return err
			}
		}

		if err := emit(protocol.Response{Kind: protocol.RespReadyToWrite}); err != nil {
			return err
		}
		written, err := t.writePages(tlv, s.geometry)
		if err != nil {
			return err
		}
		if err := emit(protocol.Response{Kind: protocol.RespWriteComplete}); err != nil {
			return err
		}

		if t.verify(written) {
			return emit(protocol.Response{Kind: protocol.RespVerifyOK, UID: s.uid})
		}
		log.Warn().Str("uid", s.uid).Msg("read-back differs from written data")
		return emit(protocol.Response{Kind: protocol.RespWriteOK, UID: s.uid})
	}()
	return finish(emit, err, protocol.Fail)
}

// awaitConfirm blocks until the host answers a duplicate prompt.
func (t *TagOperations) awaitConfirm(ctx context.Context, control <-chan protocol.Command) error {
	timer := time.NewTimer(t.config.ConfirmTimeout)
	defer timer.Stop()
	for {
		select {
		case cmd := <-control:
			switch cmd.Kind {
			case protocol.CmdConfirmOverwrite:
				return nil
			case protocol.CmdCancel:
				return errCancelled
			}
		case <-timer.C:
			return errConfirmTimeout
		case <-ctx.Done():
			return errCancelled
		}
	}
}

// writePages writes tlv from the first user page, then one zero page when
// room remains. It stops at the first rejected page; earlier pages keep
// their new content.
func (t *TagOperations) writePages(tlv []byte, g tag.Geometry) (map[int][tag.PageSize]byte, error) {
	pages := tag.Pages(tlv)
	written := make(map[int][tag.PageSize]byte, len(pages)+1)
	page := tag.FirstUserPage
	for _, data := range pages {
		if err := t.io.WritePage(page, data); err != nil {
			return written, &pageError{page: page, err: err}
		}
		written[page] = data
		page++
	}
	if page <= g.LastUserPage {
		var zero [tag.PageSize]byte
		if err := t.io.WritePage(page, zero); err != nil {
			return written, &pageError{page: page, err: err}
		}
		written[page] = zero
	}
	return written, nil
}

// verify re-reads every written page.
func (t *TagOperations) verify(written map[int][tag.PageSize]byte) bool {
	for page, want := range written {
		got, err := t.io.ReadPage(page)
		if err != nil || !bytes.Equal(got[:], want[:]) {
			log.Debug().Int("page", page).Err(err).Msg("verify mismatch")
			return false
		}
	}
	return true
}

func drainControl(control <-chan protocol.Command) {
	for {
		select {
		case <-control:
		default:
			return
		}
	}
}
