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

package tomotap

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomotap/tomotap/tag"
)

// State is a step of the tag operation state machine.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingTag    State = "awaiting_tag"
	StateCapacityCheck  State = "capacity_check"
	StateDuplicateCheck State = "duplicate_check"
	StateWriting        State = "writing"
	StateVerifying      State = "verifying"
	StateDone           State = "done"
)

// TagSession is the state of one operation against one tag. It is created
// per call, owned by that call and discarded when it reaches StateDone.
type TagSession struct {
	started  time.Time
	outcome  Outcome
	ID       string
	UID      string
	Op       Op
	State    State
	Geometry tag.Geometry
	trace    []State
}

func newSession(op Op) *TagSession {
	return &TagSession{
		ID:      uuid.New().String(),
		Op:      op,
		State:   StateIdle,
		started: time.Now(),
		trace:   []State{StateIdle},
		outcome: Outcome{Op: op},
	}
}

// enter moves the session to s.
func (s *TagSession) enter(st State) {
	s.State = st
	s.trace = append(s.trace, st)
}

// succeed ends the session with status.
func (s *TagSession) succeed(status Status) {
	s.outcome.Status = status
	s.done()
}

// fail ends the session with err.
func (s *TagSession) fail(err error) {
	s.outcome.Status = StatusFailed
	s.outcome.Reason = reasonFor(err)
	s.outcome.Err = err
	if pwe, ok := asPageWrite(err); ok {
		s.outcome.Page = pwe.Page
	}
	s.done()
}

func (s *TagSession) done() {
	s.enter(StateDone)
	s.outcome.UID = s.UID
	s.outcome.Geometry = s.Geometry
	s.outcome.Duration = time.Since(s.started)
	s.outcome.Trace = s.trace
}

// Outcome returns the result once the session is done.
func (s *TagSession) Outcome() Outcome {
	return s.outcome
}

// Done reports whether the session reached its terminal state.
func (s *TagSession) Done() bool {
	return s.State == StateDone
}
