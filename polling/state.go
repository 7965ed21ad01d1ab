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

package polling

import (
	"bytes"
	"time"
)

// TagState tracks the tag last seen on the bridge
type TagState struct {
	LastSeen time.Time
	LastUID  string
	LastKind string
	LastRaw  []byte
	Reads    int
	Present  bool
}

// seen records a successful read and reports whether the tag is new or
// different from the previous one. A different UID or different content
// both count as a change.
func (s *TagState) seen(uid, kind string, raw []byte, at time.Time) (arrived, changed bool) {
	arrived = !s.Present
	changed = s.Present && (s.LastUID != uid || !bytes.Equal(s.LastRaw, raw))
	s.Present = true
	s.LastUID = uid
	s.LastKind = kind
	s.LastRaw = raw
	s.LastSeen = at
	s.Reads++
	return arrived, changed
}

// reset returns to the idle state and reports whether a tag was present
func (s *TagState) reset() bool {
	was := s.Present
	*s = TagState{}
	return was
}
