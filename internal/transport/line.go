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

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/internal/frame"
	"github.com/tomotap/tomotap/internal/metrics"
	"github.com/tomotap/tomotap/protocol"
)

// Timeouts are the bounded waits a transport enforces.
type Timeouts struct {
	// Response bounds every wait that is not a tap or a confirmation.
	Response time.Duration
	// Tap bounds the wait for a tag after TAP_CARD.
	Tap time.Duration
	// Confirm bounds the wait for CONFIRM_OVERWRITE or CANCEL after DUPLICATE.
	Confirm time.Duration
	// Write bounds each command write; zero waits indefinitely.
	Write time.Duration
}

// DefaultTimeouts returns the stock windows: 5s response, 30s tap, 10s confirm.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Response: 5 * time.Second,
		Tap:      30 * time.Second,
		Confirm:  10 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Response <= 0 {
		t.Response = d.Response
	}
	if t.Tap <= 0 {
		t.Tap = d.Tap
	}
	if t.Confirm <= 0 {
		t.Confirm = d.Confirm
	}
	return t
}

type lineResult struct {
	err  error
	line string
}

// Line carries the protocol over any byte stream that frames messages as
// terminated lines. The serial and phone bridges are both built on it.
//
// Line is not safe for concurrent use beyond one Execute or Next at a time
// plus Close.
type Line struct {
	deadline time.Time
	readErr  error
	link     io.ReadWriteCloser
	lines    chan lineResult
	done     chan struct{}
	port     string
	kind     tomotap.TransportType
	timeouts Timeouts
	mu       sync.Mutex
	once     sync.Once
}

// NewLine starts reading lines from link. port names the link in errors.
func NewLine(link io.ReadWriteCloser, kind tomotap.TransportType, port string, timeouts Timeouts) *Line {
	t := &Line{
		link:     link,
		kind:     kind,
		port:     port,
		timeouts: timeouts.withDefaults(),
		lines:    make(chan lineResult, 16),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Line) readLoop() {
	r := frame.NewReader(t.link)
	for {
		line, err := r.ReadLine()
		if errors.Is(err, frame.ErrLineTooLong) {
			log.Warn().Str("port", t.port).Msg("dropped oversized line from bridge")
			continue
		}
		select {
		case t.lines <- lineResult{line: line, err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Execute sends cmd and waits for its first response. Lines left over from
// an earlier command are discarded first, except for CONFIRM_OVERWRITE and
// CANCEL which answer a pending DUPLICATE.
func (t *Line) Execute(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	select {
	case <-t.done:
		return protocol.Response{}, tomotap.ErrTransportClosed
	default:
	}

	if !cmd.IsControl() {
		t.drain()
	}
	t.setDeadline(time.Time{})

	log.Debug().Str("port", t.port).Msgf("→ %s", cmd)
	if err := t.write(cmd.Line()); err != nil {
		if errors.Is(err, tomotap.ErrTransportTimeout) {
			return protocol.Response{}, tomotap.NewTransportError("write", t.port, err, tomotap.ErrorTypeTimeout)
		}
		return protocol.Response{}, tomotap.NewTransportError("write", t.port,
			fmt.Errorf("%w: %w", tomotap.ErrTransportWrite, err), tomotap.ErrorTypeTransient)
	}
	metrics.ObserveLine(string(t.kind), "tx")

	return t.receive(ctx, "Execute", time.Now().Add(t.timeouts.Response))
}

func (t *Line) write(b []byte) error {
	if t.timeouts.Write <= 0 {
		_, err := t.link.Write(b)
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.link.Write(b)
		done <- err
	}()
	timer := time.NewTimer(t.timeouts.Write)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return tomotap.ErrTransportTimeout
	}
}

// Next waits for the following response. After TAP_CARD the tap window
// applies, after DUPLICATE the confirmation window; otherwise the response
// window.
func (t *Line) Next(ctx context.Context) (protocol.Response, error) {
	until := t.Deadline()
	if floor := time.Now().Add(t.timeouts.Response); until.Before(floor) {
		until = floor
	}
	return t.receive(ctx, "Next", until)
}

// Deadline returns when the pending tap or confirmation window ends.
func (t *Line) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Close stops the reader and closes the link.
func (t *Line) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.link.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to close %s link: %w", t.kind, err)
	}
	return nil
}

// Type returns the link variant.
func (t *Line) Type() tomotap.TransportType {
	return t.kind
}

// Timeouts returns the enforced windows.
func (t *Line) Timeouts() Timeouts {
	return t.timeouts
}

func (t *Line) setDeadline(d time.Time) {
	t.mu.Lock()
	t.deadline = d
	t.mu.Unlock()
}

func (t *Line) drain() {
	for {
		select {
		case res := <-t.lines:
			if res.err != nil {
				t.setReadErr(res.err)
				return
			}
			log.Debug().Str("port", t.port).Str("line", res.line).Msg("discarded stale line")
		default:
			return
		}
	}
}

func (t *Line) setReadErr(err error) {
	t.mu.Lock()
	t.readErr = err
	t.mu.Unlock()
}

func (t *Line) receive(ctx context.Context, op string, until time.Time) (protocol.Response, error) {
	t.mu.Lock()
	readErr := t.readErr
	t.mu.Unlock()
	if readErr != nil {
		return protocol.Response{}, t.readError(op, readErr)
	}

	timer := time.NewTimer(time.Until(until))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return protocol.Response{}, fmt.Errorf("%s aborted: %w", op, ctx.Err())
		case <-t.done:
			return protocol.Response{}, tomotap.ErrTransportClosed
		case <-timer.C:
			t.setDeadline(time.Time{})
			return protocol.Response{}, tomotap.NewTimeoutError(op, t.port)
		case res := <-t.lines:
			if res.err != nil {
				t.setReadErr(res.err)
				return protocol.Response{}, t.readError(op, res.err)
			}
			metrics.ObserveLine(string(t.kind), "rx")

			resp, err := protocol.ParseResponse(res.line)
			if err != nil {
				// bridges may print diagnostics between protocol lines
				log.Debug().Str("port", t.port).Str("line", res.line).Msg("ignored unknown line")
				continue
			}
			log.Debug().Str("port", t.port).Msgf("← %s", resp)
			t.armWindow(resp)
			return resp, nil
		}
	}
}

func (t *Line) armWindow(resp protocol.Response) {
	switch resp.Kind {
	case protocol.RespTapCard:
		t.setDeadline(time.Now().Add(t.timeouts.Tap))
	case protocol.RespDuplicate:
		t.setDeadline(time.Now().Add(t.timeouts.Confirm))
	default:
		t.setDeadline(time.Time{})
	}
}

func (t *Line) readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return tomotap.NewTransportError(op, t.port, tomotap.ErrTransportClosed, tomotap.ErrorTypePermanent)
	}
	return tomotap.NewTransportError(op, t.port,
		fmt.Errorf("%w: %w", tomotap.ErrTransportRead, err), tomotap.ErrorTypeTransient)
}

var _ tomotap.Transport = (*Line)(nil)
