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

// Package polling watches a bridge for tags. Each read waits for a tap; a
// tag resting on the reader is read again on every cycle and reported once,
// then again whenever its UID or content changes.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap"
)

// Reader reads one presented tag. *tomotap.Orchestrator implements it.
type Reader interface {
	Read(ctx context.Context) (tomotap.Outcome, error)
}

// Config controls a Monitor
type Config struct {
	// ErrorBackoff is the pause after a failed read.
	ErrorBackoff time.Duration
	// MaxConsecutiveErrors stops the monitor after this many failed reads
	// in a row; zero never stops.
	MaxConsecutiveErrors int
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() *Config {
	return &Config{
		ErrorBackoff:         250 * time.Millisecond,
		MaxConsecutiveErrors: 10,
	}
}

// Monitor reads tags until stopped and reports arrivals, changes and
// removals.
type Monitor struct {
	reader        Reader
	config        *Config
	OnTagDetected func(tomotap.Outcome)
	OnTagChanged  func(tomotap.Outcome)
	OnTagRemoved  func()
	OnReadError   func(tomotap.Outcome, error)
	now           func() time.Time
	state         TagState
}

// NewMonitor creates a new tag monitor
func NewMonitor(reader Reader, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{reader: reader, config: config, now: time.Now}
}

// State returns the current tag state
func (m *Monitor) State() TagState {
	return m.state
}

// Start reads until ctx ends, the link closes, or too many reads fail in a
// row. It returns nil when ctx ends.
func (m *Monitor) Start(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		out, err := m.reader.Read(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			failures = 0
			m.handleTag(out)
		case errors.Is(err, tomotap.ErrLinkTimeout):
			// the tap window passed without a tag
			failures = 0
			m.handleRemoval()
		case errors.Is(err, tomotap.ErrTransportClosed):
			m.handleRemoval()
			return fmt.Errorf("bridge closed: %w", err)
		default:
			failures++
			m.handleReadError(out, err)
			if m.config.MaxConsecutiveErrors > 0 && failures >= m.config.MaxConsecutiveErrors {
				return fmt.Errorf("giving up after %d failed reads: %w", failures, err)
			}
			if !sleepCtx(ctx, m.config.ErrorBackoff) {
				return nil
			}
		}
	}
}

func (m *Monitor) handleTag(out tomotap.Outcome) {
	arrived, changed := m.state.seen(out.UID, string(out.Kind), out.Raw, m.now())
	switch {
	case arrived:
		log.Debug().Str("uid", out.UID).Msg("tag detected")
		if m.OnTagDetected != nil {
			m.OnTagDetected(out)
		}
	case changed:
		log.Debug().Str("uid", out.UID).Msg("tag changed")
		if m.OnTagChanged != nil {
			m.OnTagChanged(out)
		}
	}
}

func (m *Monitor) handleRemoval() {
	if m.state.reset() && m.OnTagRemoved != nil {
		m.OnTagRemoved()
	}
}

func (m *Monitor) handleReadError(out tomotap.Outcome, err error) {
	log.Debug().Err(err).Msg("tag read failed")
	if m.OnReadError != nil {
		m.OnReadError(out, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
