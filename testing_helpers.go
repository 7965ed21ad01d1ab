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
	"sync"
	"time"

	"github.com/tomotap/tomotap/protocol"
)

// MockTransport is a scripted Transport for tests. Each command kind maps
// to the responses the bridge would send for it: Execute returns the first
// and Next hands out the rest in order.
type MockTransport struct {
	script   map[protocol.CommandKind][]protocol.Response
	deadline time.Time
	queue    []protocol.Response
	sent     []protocol.Command
	// ConfirmWindow is the deadline armed after a DUPLICATE response.
	ConfirmWindow time.Duration
	mu            sync.Mutex
	closed        bool
}

// NewMockTransport creates an empty scripted transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		script:        make(map[protocol.CommandKind][]protocol.Response),
		ConfirmWindow: time.Second,
	}
}

// On scripts the responses to kind
func (m *MockTransport) On(kind protocol.CommandKind, resps ...protocol.Response) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[kind] = resps
	return m
}

// Execute records cmd and returns its first scripted response
func (m *MockTransport) Execute(_ context.Context, cmd protocol.Command) (protocol.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return protocol.Response{}, ErrTransportClosed
	}
	m.sent = append(m.sent, cmd)
	resps := m.script[cmd.Kind]
	if len(resps) == 0 {
		return protocol.Response{}, NewTimeoutError("Execute", "mock")
	}
	m.queue = append([]protocol.Response(nil), resps[1:]...)
	return m.arm(resps[0]), nil
}

// Next returns the following scripted response
func (m *MockTransport) Next(ctx context.Context) (protocol.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return protocol.Response{}, ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return protocol.Response{}, err
	}
	if len(m.queue) == 0 {
		return protocol.Response{}, NewTimeoutError("Next", "mock")
	}
	resp := m.queue[0]
	m.queue = m.queue[1:]
	return m.arm(resp), nil
}

func (m *MockTransport) arm(resp protocol.Response) protocol.Response {
	m.deadline = time.Time{}
	if resp.Kind == protocol.RespDuplicate {
		m.deadline = time.Now().Add(m.ConfirmWindow)
	}
	return resp
}

// Deadline returns the armed confirmation deadline
func (m *MockTransport) Deadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline
}

// Sent returns the commands executed so far
func (m *MockTransport) Sent() []protocol.CommandKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]protocol.CommandKind, len(m.sent))
	for i, c := range m.sent {
		kinds[i] = c.Kind
	}
	return kinds
}

// Calls is the number of Execute calls
func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Close marks the transport closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Type returns TransportMock
func (*MockTransport) Type() TransportType {
	return TransportMock
}
