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
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/bridge"
	virt "github.com/tomotap/tomotap/internal/testing"
	"github.com/tomotap/tomotap/internal/transport"
	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/tagops"
)

type readResult struct {
	err error
	out tomotap.Outcome
}

// scriptedReader replays results, then cancels the monitor's context
type scriptedReader struct {
	cancel  context.CancelFunc
	results []readResult
	mu      sync.Mutex
}

func (r *scriptedReader) Read(ctx context.Context) (tomotap.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		r.cancel()
		<-ctx.Done()
		return tomotap.Outcome{}, ctx.Err()
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res.out, res.err
}

func tagRead(uid string) readResult {
	return readResult{out: tomotap.Outcome{Op: tomotap.OpRead, Status: tomotap.StatusOK, UID: uid}}
}

func contentRead(uid string, raw ...byte) readResult {
	r := tagRead(uid)
	r.out.Raw = raw
	return r
}

func noTag() readResult {
	return readResult{err: tomotap.NewTimeoutError("Next", "pipe")}
}

func TestMonitorEvents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &scriptedReader{cancel: cancel, results: []readResult{
		tagRead("04AA"),
		tagRead("04AA"),
		tagRead("04BB"),
		noTag(),
		noTag(),
		tagRead("04BB"),
	}}

	var events []string
	m := NewMonitor(reader, &Config{})
	m.OnTagDetected = func(out tomotap.Outcome) { events = append(events, "detected "+out.UID) }
	m.OnTagChanged = func(out tomotap.Outcome) { events = append(events, "changed "+out.UID) }
	m.OnTagRemoved = func() { events = append(events, "removed") }

	require.NoError(t, m.Start(ctx))
	assert.Equal(t, []string{
		"detected 04AA",
		"changed 04BB",
		"removed",
		"detected 04BB",
	}, events)

	st := m.State()
	assert.True(t, st.Present)
	assert.Equal(t, "04BB", st.LastUID)
	assert.Equal(t, 1, st.Reads)
}

func TestMonitorGivesUpAfterErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fail := readResult{err: tomotap.ErrMalformedTLV, out: tomotap.Outcome{Status: tomotap.StatusFailed}}
	reader := &scriptedReader{cancel: cancel, results: []readResult{fail, tagRead("04AA"), fail, fail, fail}}

	errorsSeen := 0
	m := NewMonitor(reader, &Config{MaxConsecutiveErrors: 3, ErrorBackoff: time.Millisecond})
	m.OnReadError = func(tomotap.Outcome, error) { errorsSeen++ }

	err := m.Start(ctx)
	require.ErrorIs(t, err, tomotap.ErrMalformedTLV)
	assert.Equal(t, 4, errorsSeen, "the successful read resets the count")
}

func TestMonitorStopsOnClosedBridge(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &scriptedReader{cancel: cancel, results: []readResult{
		tagRead("04AA"),
		{err: tomotap.ErrTransportClosed},
	}}

	removed := false
	m := NewMonitor(reader, nil)
	m.OnTagRemoved = func() { removed = true }

	err := m.Start(ctx)
	require.ErrorIs(t, err, tomotap.ErrTransportClosed)
	assert.True(t, removed)
	assert.False(t, m.State().Present)
}

func TestMonitorCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMonitor(&scriptedReader{cancel: cancel}, nil)
	require.NoError(t, m.Start(ctx))
	assert.Zero(t, m.State().Reads)
}

func TestMonitorContentChange(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &scriptedReader{cancel: cancel, results: []readResult{
		contentRead("04AA", 0x03, 0x01),
		contentRead("04AA", 0x03, 0x01),
		contentRead("04AA", 0x03, 0x02),
		contentRead("04AA", 0x03, 0x02),
	}}

	var events []string
	m := NewMonitor(reader, &Config{})
	m.OnTagDetected = func(tomotap.Outcome) { events = append(events, "detected") }
	m.OnTagChanged = func(tomotap.Outcome) { events = append(events, "changed") }

	require.NoError(t, m.Start(ctx))
	assert.Equal(t, []string{"detected", "changed"}, events)
	assert.Equal(t, []byte{0x03, 0x02}, m.State().LastRaw)
}

// watchRig connects an orchestrator to vt through a bridge on a pipe.
func watchRig(t *testing.T, vt *virt.VirtualTag) *tomotap.Orchestrator {
	t.Helper()

	hostSide, bridgeSide := net.Pipe()
	ops := tagops.New(vt, tagops.Config{TapTimeout: 100 * time.Millisecond, ConfirmTimeout: 100 * time.Millisecond})
	responder := bridge.NewResponder(bridgeSide, ops)
	done := make(chan error, 1)
	go func() { done <- responder.Serve(context.Background()) }()

	line := transport.NewLine(hostSide, tomotap.TransportPipe, "pipe", transport.Timeouts{
		Response: time.Second,
		Tap:      time.Second,
		Confirm:  100 * time.Millisecond,
	})
	t.Cleanup(func() {
		_ = line.Close()
		_ = bridgeSide.Close()
		<-done
	})

	o, err := tomotap.New(line)
	require.NoError(t, err)
	return o
}

// rewritingReader rewrites the tag after a number of reads.
type rewritingReader struct {
	t      *testing.T
	inner  Reader
	vt     *virt.VirtualTag
	cancel context.CancelFunc
	reads  int
}

func (r *rewritingReader) Read(ctx context.Context) (tomotap.Outcome, error) {
	r.reads++
	switch r.reads {
	case 3:
		tlv, err := ndef.Encode(ndef.URI{URI: "https://example.com"})
		require.NoError(r.t, err)
		require.NoError(r.t, r.vt.SetTLV(tlv))
	case 5:
		r.cancel()
	}
	return r.inner.Read(ctx)
}

func TestMonitorOverBridge(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	tlv, err := ndef.Encode(ndef.URI{URI: "https://tomotap.dev"})
	require.NoError(t, err)
	require.NoError(t, vt.SetTLV(tlv))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &rewritingReader{t: t, inner: watchRig(t, vt), vt: vt, cancel: cancel}

	var detected, changed []tomotap.Outcome
	m := NewMonitor(reader, &Config{})
	m.OnTagDetected = func(out tomotap.Outcome) { detected = append(detected, out) }
	m.OnTagChanged = func(out tomotap.Outcome) { changed = append(changed, out) }

	require.NoError(t, m.Start(ctx))
	require.Len(t, detected, 1)
	assert.Equal(t, vt.UIDString(), detected[0].UID)
	assert.Equal(t, []ndef.Record{ndef.URI{URI: "https://tomotap.dev"}}, detected[0].Records)
	require.Len(t, changed, 1)
	assert.Equal(t, vt.UIDString(), changed[0].UID)
	assert.Equal(t, []ndef.Record{ndef.URI{URI: "https://example.com"}}, changed[0].Records)
}
