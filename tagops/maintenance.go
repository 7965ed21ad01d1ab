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

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap/protocol"
	"github.com/tomotap/tomotap/tag"
)

// Erase zeroes every user page. Pages that reject the write, usually
// because they are locked, are skipped and counted.
func Erase(io PageIO, g tag.Geometry) (skipped []int, err error) {
	if !g.Known() {
		return nil, tag.ErrUnknownGeometry
	}
	var zero [tag.PageSize]byte
	for page := tag.FirstUserPage; page <= g.LastUserPage; page++ {
		if err := io.WritePage(page, zero); err != nil {
			log.Warn().Int("page", page).Err(err).Msg("erase skipped page")
			skipped = append(skipped, page)
		}
	}
	return skipped, nil
}

// Lock applies tag.LockPlan.
//
// WARNING: this permanently write-protects a real tag.
func Lock(io PageIO, g tag.Geometry) error {
	page2, err := io.ReadPage(tag.LockPage)
	if err != nil {
		return fmt.Errorf("%w: read lock page: %w", errLockFailed, err)
	}
	cc, err := io.ReadPage(tag.CCPage)
	if err != nil {
		return fmt.Errorf("%w: read capability container: %w", errLockFailed, err)
	}
	plan, err := tag.LockPlan(g, page2[:], cc[:])
	if err != nil {
		return err
	}
	for _, w := range plan {
		if err := io.WritePage(w.Page, w.Data); err != nil {
			return fmt.Errorf("%w: page %d: %w", errLockFailed, w.Page, err)
		}
	}
	return nil
}

func (t *TagOperations) erase(ctx context.Context, emit Emit) error {
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
		skipped, err := Erase(t.io, g)
		if err != nil {
			return err
		}
		if len(skipped) > 0 {
			log.Info().Str("uid", s.uid).Ints("skipped", skipped).Msg("erase finished with locked pages")
		}
		return emit(protocol.Response{Kind: protocol.RespEraseOK, UID: s.uid})
	}()
	return finish(emit, err, protocol.Fail)
}

func (t *TagOperations) lock(ctx context.Context, emit Emit) error {
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
		if err := Lock(t.io, g); err != nil {
			return err
		}
		log.Info().Str("uid", s.uid).Msg("tag locked")
		return emit(protocol.Response{Kind: protocol.RespLockOK, UID: s.uid})
	}()
	return finish(emit, err, protocol.Fail)
}
