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
	"context"
	"fmt"
	"time"

	"github.com/tomotap/tomotap/protocol"
)

// Transport carries the bridge command vocabulary over one physical link.
// Both link variants implement it identically; callers never branch on the
// variant they hold. Timeout windows (tag tap, duplicate confirmation,
// response) are enforced by the transport.
//
// A Transport serves one logical command at a time. Callers must serialize
// operations on the same transport.
type Transport interface {
	// Execute sends cmd and returns the first response to it.
	Execute(ctx context.Context, cmd protocol.Command) (protocol.Response, error)

	// Next waits for the following response of the command in flight.
	Next(ctx context.Context) (protocol.Response, error)

	// Deadline returns when the pending wait of the command in flight
	// expires, or the zero time when nothing is pending.
	Deadline() time.Time

	// Close closes the link
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART is the wired microcontroller bridge over serial.
	TransportUART TransportType = "uart"
	// TransportPhone is a smartphone bridge over a local websocket.
	TransportPhone TransportType = "phone"
	// TransportPipe is an in-process link, used by simulators and tests.
	TransportPipe TransportType = "pipe"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportWithRetry wraps a Transport and retries idempotent commands that
// fail with a retryable error. Commands that wait for a tag are never
// retried here since the bridge may still be waiting.
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// Execute sends cmd, retrying PING on retryable failures
func (t *TransportWithRetry) Execute(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if cmd.Kind != protocol.CmdPing {
		resp, err := t.transport.Execute(ctx, cmd)
		if err != nil {
			return resp, fmt.Errorf("failed to execute %s: %w", cmd.Kind, err)
		}
		return resp, nil
	}

	var resp protocol.Response
	err := RetryWithConfig(ctx, t.config, func() error {
		var err error
		resp, err = t.transport.Execute(ctx, cmd)
		if err != nil {
			return &TransportError{
				Op:        "Execute",
				Err:       err,
				Type:      GetErrorType(err),
				Retryable: IsRetryable(err),
			}
		}
		return nil
	})
	return resp, err
}

// Next forwards to the underlying transport
func (t *TransportWithRetry) Next(ctx context.Context) (protocol.Response, error) {
	resp, err := t.transport.Next(ctx)
	if err != nil {
		return resp, fmt.Errorf("failed to read next response: %w", err)
	}
	return resp, nil
}

// Deadline forwards to the underlying transport
func (t *TransportWithRetry) Deadline() time.Time {
	return t.transport.Deadline()
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// Type returns the transport type
func (t *TransportWithRetry) Type() TransportType {
	return t.transport.Type()
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}
