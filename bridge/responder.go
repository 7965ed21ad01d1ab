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

// Package bridge serves the tag protocol on the device side of a link. It
// turns command lines into tagops runs and writes their responses back.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap/internal/frame"
	"github.com/tomotap/tomotap/protocol"
	"github.com/tomotap/tomotap/tagops"
)

// Responder answers one host over rw.
type Responder struct {
	rw       io.ReadWriter
	ops      *tagops.TagOperations
	greeting string
	mu       sync.Mutex
	busy     atomic.Bool
	noNFC    bool
}

// Option configures a Responder.
type Option func(*Responder)

// WithGreeting sends line as soon as Serve starts, as phone bridges do
// with HELLO.
func WithGreeting(line string) Option {
	return func(r *Responder) { r.greeting = line }
}

// WithoutNFC answers every tag command with ERROR|NFC_UNSUPPORTED.
func WithoutNFC() Option {
	return func(r *Responder) { r.noNFC = true }
}

// NewResponder creates a responder running ops.
func NewResponder(rw io.ReadWriter, ops *tagops.TagOperations, opts ...Option) *Responder {
	r := &Responder{rw: rw, ops: ops}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Serve reads commands until the link reaches EOF or fails. Cancelling ctx
// aborts a running operation; closing the link stops Serve.
func (r *Responder) Serve(ctx context.Context) error {
	if r.greeting != "" {
		if err := r.writeLine([]byte(r.greeting + "\n")); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	control := make(chan protocol.Command, 1)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	lines := frame.NewReader(r.rw)
	for {
		line, err := lines.ReadLine()
		switch {
		case errors.Is(err, frame.ErrLineTooLong):
			if err := r.emit(protocol.Errorf("%s", protocol.ReasonUnexpected)); err != nil {
				return err
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("bridge read: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			log.Debug().Err(err).Str("line", line).Msg("rejected command")
			if err := r.emit(protocol.Errorf("%s", protocol.ReasonUnexpected)); err != nil {
				return err
			}
			continue
		}
		log.Debug().Msgf("← %s", cmd)

		if cmd.IsControl() {
			r.control(cmd, control)
			continue
		}
		if !r.busy.CompareAndSwap(false, true) {
			if err := r.emit(protocol.Errorf("%s", protocol.ReasonUnexpected)); err != nil {
				return err
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			var once sync.Once
			release := func() { once.Do(func() { r.busy.Store(false) }) }
			defer release()
			// free before the terminal response reaches the host
			emit := func(resp protocol.Response) error {
				if resp.Terminal() {
					release()
				}
				return r.emit(resp)
			}
			if err := r.run(ctx, cmd, emit, control); err != nil {
				log.Warn().Err(err).Msg("bridge write failed")
				cancel()
			}
		}()
	}
}

func (r *Responder) run(ctx context.Context, cmd protocol.Command, emit tagops.Emit, control <-chan protocol.Command) error {
	if r.noNFC && cmd.Kind != protocol.CmdPing {
		return emit(protocol.Errorf("%s", protocol.ReasonNFCUnsupported))
	}
	return r.ops.Run(ctx, cmd, emit, control)
}

// control hands CONFIRM_OVERWRITE or CANCEL to a running write. Outside a
// write it is rejected.
func (r *Responder) control(cmd protocol.Command, control chan<- protocol.Command) {
	if !r.busy.Load() {
		_ = r.emit(protocol.Errorf("%s", protocol.ReasonUnexpected))
		return
	}
	select {
	case control <- cmd:
	default:
		log.Debug().Str("cmd", string(cmd.Kind)).Msg("dropped duplicate control command")
	}
}

func (r *Responder) emit(resp protocol.Response) error {
	log.Debug().Msgf("→ %s", resp)
	return r.writeLine(resp.Line())
}

func (r *Responder) writeLine(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.rw.Write(b); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}
