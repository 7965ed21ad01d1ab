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

// Package tagops runs tag operations on the device side of a bridge: it
// drives the page level primitives of a reader and reports progress as
// protocol responses.
package tagops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap/protocol"
	"github.com/tomotap/tomotap/tag"
)

// ErrNoTag is returned when no tag was presented in the tap window.
var ErrNoTag = errors.New("no tag detected")

// PageIO is the page granular reader interface beneath a bridge.
type PageIO interface {
	// DetectUID blocks until a tag is present or timeout elapses. An empty
	// UID means no tag arrived.
	DetectUID(ctx context.Context, timeout time.Duration) (string, error)
	ReadPage(page int) ([tag.PageSize]byte, error)
	WritePage(page int, data [tag.PageSize]byte) error
}

// Emit sends one response line to the host.
type Emit func(protocol.Response) error

// Config holds the bridge side windows and detection thresholds.
type Config struct {
	Thresholds     tag.Thresholds
	TapTimeout     time.Duration
	ConfirmTimeout time.Duration
}

// DefaultConfig returns a 30s tap window, a 10s confirmation window and
// the default thresholds.
func DefaultConfig() Config {
	return Config{
		Thresholds:     tag.DefaultThresholds(),
		TapTimeout:     30 * time.Second,
		ConfirmTimeout: 10 * time.Second,
	}
}

// TagOperations serves one command at a time against a reader.
type TagOperations struct {
	io     PageIO
	config Config
}

// New creates a TagOperations over io. Zero fields of cfg take defaults.
func New(io PageIO, cfg Config) *TagOperations {
	def := DefaultConfig()
	if cfg.TapTimeout <= 0 {
		cfg.TapTimeout = def.TapTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.Thresholds == (tag.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	return &TagOperations{io: io, config: cfg}
}

// Run executes cmd to its terminal response. control delivers
// CONFIRM_OVERWRITE or CANCEL while a duplicate prompt is pending. The
// returned error is non-nil only when emit failed.
func (t *TagOperations) Run(ctx context.Context, cmd protocol.Command, emit Emit, control <-chan protocol.Command) error {
	log.Debug().Str("cmd", string(cmd.Kind)).Msg("running command")
	switch cmd.Kind {
	case protocol.CmdPing:
		return emit(protocol.Response{Kind: protocol.RespPong})
	case protocol.CmdWriteRaw:
		return t.write(ctx, cmd.Data, emit, control)
	case protocol.CmdRead:
		return t.read(ctx, emit)
	case protocol.CmdErase:
		return t.erase(ctx, emit)
	case protocol.CmdLock:
		return t.lock(ctx, emit)
	case protocol.CmdInfo:
		return t.info(ctx, emit)
	default:
		return emit(protocol.Errorf("%s", protocol.ReasonUnexpected))
	}
}

// session is the device half of one operation.
type session struct {
	geometry tag.Geometry
	uid      string
}

// tap emits TAP_CARD and waits for a tag.
func (t *TagOperations) tap(ctx context.Context, emit Emit) (*session, error) {
	if err := emit(protocol.Response{Kind: protocol.RespTapCard}); err != nil {
		return nil, err
	}
	uid, err := t.io.DetectUID(ctx, t.config.TapTimeout)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if uid == "" {
		return nil, ErrNoTag
	}
	return &session{uid: uid}, nil
}

// emitFailure marks an error from the link rather than the tag.
type emitFailure struct{ err error }

func (e *emitFailure) Error() string { return e.err.Error() }
func (e *emitFailure) Unwrap() error { return e.err }

func guard(emit Emit) Emit {
	return func(r protocol.Response) error {
		if err := emit(r); err != nil {
			return &emitFailure{err: err}
		}
		return nil
	}
}

// finish turns an operation error into its terminal response.
func finish(emit Emit, err error, fail func(string) protocol.Response) error {
	if err == nil {
		return nil
	}
	var ef *emitFailure
	if errors.As(err, &ef) {
		return ef.err
	}
	reason := protocol.ReasonReadFailed
	var pe *pageError
	switch {
	case errors.Is(err, ErrNoTag):
		reason = protocol.ReasonNoTag
	case errors.Is(err, tag.ErrUnknownGeometry):
		reason = protocol.ReasonUnknownGeometry
	case errors.Is(err, tag.ErrTooLarge):
		reason = protocol.ReasonTooLarge
	case errors.Is(err, errCancelled):
		reason = protocol.ReasonCancelled
	case errors.Is(err, errConfirmTimeout):
		reason = protocol.ReasonConfirmTimeout
	case errors.Is(err, errMalformed):
		reason = protocol.ReasonMalformedTLV
	case errors.Is(err, errLockFailed):
		reason = protocol.ReasonLockFailed
	case errors.As(err, &pe):
		reason = protocol.PageFailure(pe.page)
	}
	log.Debug().Err(err).Str("reason", reason).Msg("operation failed")
	return emit(fail(reason))
}

func errorResponse(reason string) protocol.Response {
	return protocol.Response{Kind: protocol.RespError, Reason: reason}
}

var (
	errCancelled      = errors.New("overwrite cancelled")
	errConfirmTimeout = errors.New("confirmation window elapsed")
	errMalformed      = errors.New("malformed tag content")
	errLockFailed     = errors.New("lock failed")
	errReadFailed     = errors.New("page read failed")
)

type pageError struct {
	err  error
	page int
}

func (e *pageError) Error() string { return fmt.Sprintf("page %d: %v", e.page, e.err) }
func (e *pageError) Unwrap() error { return e.err }
