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
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomotap/tomotap"
	virt "github.com/tomotap/tomotap/internal/testing"
	"github.com/tomotap/tomotap/protocol"
)

// fakeBridge is the device end of a pipe. Its helpers run in goroutines, so
// they only assert.
type fakeBridge struct {
	conn net.Conn
	r    *bufio.Reader
}

func newPipe(t *testing.T, timeouts Timeouts) (*Line, *fakeBridge) {
	t.Helper()
	hostSide, bridgeSide := net.Pipe()
	line := NewLine(hostSide, tomotap.TransportPipe, "pipe", timeouts)
	t.Cleanup(func() {
		_ = line.Close()
		_ = bridgeSide.Close()
	})
	return line, &fakeBridge{conn: bridgeSide, r: bufio.NewReader(bridgeSide)}
}

func (b *fakeBridge) expect(t *testing.T, want string) {
	t.Helper()
	got, err := b.r.ReadString('\n')
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, want, strings.TrimRight(got, "\n"))
}

func (b *fakeBridge) send(t *testing.T, data []byte) {
	t.Helper()
	_, err := b.conn.Write(data)
	assert.NoError(t, err)
}

func fast() Timeouts {
	return Timeouts{Response: 200 * time.Millisecond, Tap: 300 * time.Millisecond, Confirm: 100 * time.Millisecond}
}

func TestLineExecute(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	go func() {
		bridge.expect(t, "WRITE_RAW|0300FE")
		bridge.send(t, virt.Lines(virt.WriteVerifiedResponses("04AA")...))
	}()

	resp, err := line.Execute(context.Background(), protocol.WriteRaw([]byte{0x03, 0x00, 0xFE}))
	require.NoError(t, err)
	assert.Equal(t, protocol.RespTapCard, resp.Kind)
	assert.WithinDuration(t, time.Now().Add(fast().Tap), line.Deadline(), 100*time.Millisecond)

	var kinds []protocol.ResponseKind
	for !resp.Terminal() {
		resp, err = line.Next(context.Background())
		require.NoError(t, err)
		kinds = append(kinds, resp.Kind)
	}
	assert.Equal(t, []protocol.ResponseKind{protocol.RespReadyToWrite, protocol.RespWriteComplete, protocol.RespVerifyOK}, kinds)
	assert.Equal(t, "04AA", resp.UID)
	assert.True(t, line.Deadline().IsZero())
}

func TestLineSkipsDiagnostics(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	go func() {
		bridge.expect(t, "PING")
		bridge.send(t, []byte("PN532 firmware 1.6\r\n\r\nPONG\r\n"))
	}()

	resp, err := line.Execute(context.Background(), protocol.Ping())
	require.NoError(t, err)
	assert.Equal(t, protocol.RespPong, resp.Kind)
}

func TestLineDuplicateWindow(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	go func() {
		bridge.expect(t, "WRITE_RAW|0300FE")
		bridge.send(t, virt.Lines(virt.DuplicateResponses("04AA")...))
		bridge.expect(t, "CANCEL")
		bridge.send(t, protocol.Fail(protocol.ReasonCancelled).Line())
	}()

	_, err := line.Execute(context.Background(), protocol.WriteRaw([]byte{0x03, 0x00, 0xFE}))
	require.NoError(t, err)
	resp, err := line.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, protocol.RespDuplicate, resp.Kind)
	assert.WithinDuration(t, time.Now().Add(fast().Confirm), line.Deadline(), 50*time.Millisecond)

	resp, err = line.Execute(context.Background(), protocol.Cancel())
	require.NoError(t, err)
	assert.Equal(t, protocol.Fail(protocol.ReasonCancelled), resp)
}

func TestLineTimeout(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	go bridge.expect(t, "INFO")

	start := time.Now()
	_, err := line.Execute(context.Background(), protocol.Info())
	require.ErrorIs(t, err, tomotap.ErrLinkTimeout)
	assert.True(t, tomotap.IsRetryable(err))
	assert.GreaterOrEqual(t, time.Since(start), fast().Response)
}

func TestLineWriteTimeout(t *testing.T) {
	t.Parallel()

	timeouts := fast()
	timeouts.Write = 30 * time.Millisecond
	// nobody reads the bridge side, so the pipe write blocks
	line, _ := newPipe(t, timeouts)

	_, err := line.Execute(context.Background(), protocol.Ping())
	require.ErrorIs(t, err, tomotap.ErrTransportTimeout)
	assert.Equal(t, tomotap.ErrorTypeTimeout, tomotap.GetErrorType(err))
	assert.True(t, tomotap.IsRetryable(err))
}

func TestLineDrainsStaleLines(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	// a late reply from an earlier command
	go bridge.send(t, protocol.Fail(protocol.ReasonCancelled).Line())
	require.Eventually(t, func() bool { return len(line.lines) == 1 }, time.Second, time.Millisecond)

	go func() {
		bridge.expect(t, "PING")
		bridge.send(t, []byte("PONG\n"))
	}()
	resp, err := line.Execute(context.Background(), protocol.Ping())
	require.NoError(t, err)
	assert.Equal(t, protocol.RespPong, resp.Kind)
}

func TestLineClosedByPeer(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	go func() {
		bridge.expect(t, "READ")
		_ = bridge.conn.Close()
	}()

	_, err := line.Execute(context.Background(), protocol.Read())
	require.ErrorIs(t, err, tomotap.ErrTransportClosed)
	assert.False(t, tomotap.IsRetryable(err))

	_, err = line.Next(context.Background())
	require.ErrorIs(t, err, tomotap.ErrTransportClosed)
}

func TestLineContextCancel(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	go bridge.expect(t, "READ")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := line.Execute(ctx, protocol.Read())
	require.ErrorIs(t, err, context.Canceled)
}

func TestHandshake(t *testing.T) {
	t.Parallel()

	line, bridge := newPipe(t, fast())
	go func() {
		// first ping lost while the board boots
		bridge.expect(t, "PING")
		bridge.expect(t, "PING")
		bridge.send(t, []byte("PONG\n"))
	}()

	require.NoError(t, Handshake(context.Background(), line, 3, time.Millisecond))
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := WithRetry(context.Background(), RetryConfig{Description: "probe", MaxRetries: 2}, func() (int, bool, error) {
		calls++
		return 0, true, nil
	})
	require.ErrorIs(t, err, tomotap.ErrNoResponse)
	assert.Equal(t, 3, calls)

	got, err := WithRetry(context.Background(), RetryConfig{MaxRetries: 2}, func() (int, bool, error) {
		return 42, false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
