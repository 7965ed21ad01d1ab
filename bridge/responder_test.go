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

package bridge

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	virt "github.com/tomotap/tomotap/internal/testing"
	"github.com/tomotap/tomotap/tagops"
)

type host struct {
	conn net.Conn
	r    *bufio.Reader
}

func startBridge(t *testing.T, vt *virt.VirtualTag, opts ...Option) *host {
	t.Helper()
	hostSide, bridgeSide := net.Pipe()
	ops := tagops.New(vt, tagops.Config{TapTimeout: 100 * time.Millisecond, ConfirmTimeout: 100 * time.Millisecond})
	resp := NewResponder(bridgeSide, ops, opts...)

	done := make(chan error, 1)
	go func() { done <- resp.Serve(context.Background()) }()
	t.Cleanup(func() {
		_ = hostSide.Close()
		_ = bridgeSide.Close()
		<-done
	})
	return &host{conn: hostSide, r: bufio.NewReader(hostSide)}
}

func (h *host) send(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, h.conn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err := h.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (h *host) recv(t *testing.T) string {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(time.Second)))
	line, err := h.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

func TestPing(t *testing.T) {
	t.Parallel()

	h := startBridge(t, virt.NewVirtualNTAG213(nil))
	h.send(t, "PING")
	assert.Equal(t, "PONG", h.recv(t))
}

func TestWriteOverLink(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	h := startBridge(t, vt)

	h.send(t, "WRITE_RAW|0300FE")
	assert.Equal(t, "TAP_CARD", h.recv(t))
	assert.Equal(t, "READY_TO_WRITE", h.recv(t))
	assert.Equal(t, "WRITE_COMPLETE", h.recv(t))
	assert.Equal(t, "VERIFY_OK|"+vt.UIDString(), h.recv(t))
}

func TestDuplicateCancelOverLink(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	require.NoError(t, vt.SetTLV([]byte{0x03, 0x05, 0xD1, 0x01, 0x01, 0x55, 0x00, 0xFE}))
	h := startBridge(t, vt)

	h.send(t, "WRITE_RAW|0300FE")
	assert.Equal(t, "TAP_CARD", h.recv(t))
	assert.Equal(t, "DUPLICATE|"+vt.UIDString(), h.recv(t))
	h.send(t, "CANCEL")
	assert.Equal(t, "WRITE_FAIL|CANCELLED", h.recv(t))
	assert.Zero(t, vt.Writes())
}

func TestRejectedLines(t *testing.T) {
	t.Parallel()

	h := startBridge(t, virt.NewVirtualNTAG213(nil))

	h.send(t, "HELLO")
	assert.Equal(t, "ERROR|UNEXPECTED_COMMAND", h.recv(t))
	h.send(t, "CONFIRM_OVERWRITE")
	assert.Equal(t, "ERROR|UNEXPECTED_COMMAND", h.recv(t))
	h.send(t, "WRITE_RAW|XYZ")
	assert.Equal(t, "ERROR|UNEXPECTED_COMMAND", h.recv(t))
}

func TestGreetingWithoutNFC(t *testing.T) {
	t.Parallel()

	h := startBridge(t, virt.NewVirtualNTAG213(nil), WithGreeting("HELLO|nfc=0"), WithoutNFC())

	assert.Equal(t, "HELLO|nfc=0", h.recv(t))
	h.send(t, "PING")
	assert.Equal(t, "PONG", h.recv(t))
	h.send(t, "READ")
	assert.Equal(t, "ERROR|NFC_UNSUPPORTED", h.recv(t))
}

func TestBackToBackCommands(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	h := startBridge(t, vt)

	for i := 0; i < 50; i++ {
		h.send(t, "PING")
		require.Equal(t, "PONG", h.recv(t), "ping %d", i)
	}

	h.send(t, "WRITE_RAW|0300FE")
	assert.Equal(t, "TAP_CARD", h.recv(t))
	assert.Equal(t, "READY_TO_WRITE", h.recv(t))
	assert.Equal(t, "WRITE_COMPLETE", h.recv(t))
	assert.Equal(t, "VERIFY_OK|"+vt.UIDString(), h.recv(t))
	h.send(t, "READ")
	assert.Equal(t, "TAP_CARD", h.recv(t))
	assert.Equal(t, "DATA|"+vt.UIDString()+":EMPTY", h.recv(t))
}

func TestCloseDuringTapStopsServe(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	vt.Remove()
	hostSide, bridgeSide := net.Pipe()
	ops := tagops.New(vt, tagops.Config{TapTimeout: 10 * time.Second, ConfirmTimeout: time.Second})
	resp := NewResponder(bridgeSide, ops)

	done := make(chan error, 1)
	go func() { done <- resp.Serve(context.Background()) }()

	h := &host{conn: hostSide, r: bufio.NewReader(hostSide)}
	h.send(t, "READ")
	assert.Equal(t, "TAP_CARD", h.recv(t))
	require.NoError(t, hostSide.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve still running after the link closed")
	}
	_ = bridgeSide.Close()
}
