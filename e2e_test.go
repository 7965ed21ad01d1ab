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

package tomotap_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/bridge"
	virt "github.com/tomotap/tomotap/internal/testing"
	"github.com/tomotap/tomotap/internal/transport"
	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/tag"
	"github.com/tomotap/tomotap/tagops"
)

// rig wires an orchestrator to a virtual tag through a real bridge.
func rig(t *testing.T, vt *virt.VirtualTag, opts ...tomotap.Option) *tomotap.Orchestrator {
	t.Helper()
	return rigWith(t, vt, tagops.Config{TapTimeout: 200 * time.Millisecond, ConfirmTimeout: 200 * time.Millisecond}, opts...)
}

func rigWith(t *testing.T, vt *virt.VirtualTag, cfg tagops.Config, opts ...tomotap.Option) *tomotap.Orchestrator {
	t.Helper()

	hostSide, bridgeSide := net.Pipe()
	ops := tagops.New(vt, cfg)
	responder := bridge.NewResponder(bridgeSide, ops)
	done := make(chan error, 1)
	go func() { done <- responder.Serve(context.Background()) }()

	line := transport.NewLine(hostSide, tomotap.TransportPipe, "pipe", transport.Timeouts{
		Response: time.Second,
		Tap:      time.Second,
		Confirm:  200 * time.Millisecond,
	})
	t.Cleanup(func() {
		_ = line.Close()
		_ = bridgeSide.Close()
		<-done
	})

	o, err := tomotap.New(line, opts...)
	require.NoError(t, err)
	return o
}

func TestEndToEndRoundTrip(t *testing.T) {
	t.Parallel()

	contact, err := ndef.Contact{Name: "Ada Lovelace", Phone: "+44 20 7946 0000", Email: "ada@example.com"}.VCard()
	require.NoError(t, err)

	records := []ndef.Record{
		ndef.URI{URI: "https://tomotap.dev"},
		ndef.Text{Text: "hello tag", Lang: "en"},
		ndef.NewWiFi("HomeNet", "hunter22", ndef.AuthWPA2),
		contact,
	}

	for _, rec := range records {
		rec := rec
		t.Run(string(rec.Kind()), func(t *testing.T) {
			t.Parallel()

			vt := virt.NewVirtualNTAG215(nil)
			o := rig(t, vt)

			req, err := tomotap.NewWriteRequest(rec, tag.ForFamily(tag.NTAG215))
			require.NoError(t, err)
			out, err := o.Write(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, out.Verified())
			assert.Equal(t, vt.UIDString(), out.UID)

			got, err := o.Read(context.Background())
			require.NoError(t, err)
			require.Len(t, got.Records, 1)
			assert.True(t, ndef.Equal(rec, got.Records[0]))
			assert.Equal(t, req.TLV, got.Raw)
		})
	}
}

func TestEndToEndDuplicate(t *testing.T) {
	t.Parallel()

	existing := []byte{0x03, 0x05, 0xD1, 0x01, 0x01, 0x55, 0x00, 0xFE}
	req, err := tomotap.NewWriteRequest(ndef.Text{Text: "new"}, tag.ForFamily(tag.NTAG213))
	require.NoError(t, err)

	t.Run("cancel writes nothing", func(t *testing.T) {
		t.Parallel()

		vt := virt.NewVirtualNTAG213(nil)
		require.NoError(t, vt.SetTLV(existing))
		o := rig(t, vt, tomotap.WithDecider(func(context.Context, string) tomotap.Decision {
			return tomotap.DecisionCancel
		}))

		out, err := o.Write(context.Background(), req)
		require.ErrorIs(t, err, tomotap.ErrCancelled)
		assert.Equal(t, tomotap.ReasonCancelled, out.Reason)
		assert.Zero(t, vt.Writes())
		assert.Equal(t, existing, vt.UserMemory()[:len(existing)])
	})

	t.Run("confirm overwrites", func(t *testing.T) {
		t.Parallel()

		vt := virt.NewVirtualNTAG213(nil)
		require.NoError(t, vt.SetTLV(existing))
		o := rig(t, vt, tomotap.WithDecider(tomotap.AlwaysOverwrite))

		out, err := o.Write(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, out.Verified())
		assert.Equal(t, req.TLV, vt.UserMemory()[:len(req.TLV)])
	})

	t.Run("undecided times out", func(t *testing.T) {
		t.Parallel()

		vt := virt.NewVirtualNTAG213(nil)
		require.NoError(t, vt.SetTLV(existing))
		o := rig(t, vt, tomotap.WithDecider(func(ctx context.Context, _ string) tomotap.Decision {
			<-ctx.Done()
			return tomotap.DecisionOverwrite
		}))

		_, err := o.Write(context.Background(), req)
		require.ErrorIs(t, err, tomotap.ErrCancelled)
		assert.Zero(t, vt.Writes())
	})
}

func TestEndToEndVerifyDowngrade(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	vt.CorruptReads(5)
	o := rig(t, vt, tomotap.WithVerifyAfterWrite(false))

	req, err := tomotap.NewWriteRequest(ndef.URI{URI: "https://tomotap.dev"}, tag.ForFamily(tag.NTAG213))
	require.NoError(t, err)
	out, err := o.WriteWithRetry(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, tomotap.StatusUnverified, out.Status)
	assert.Equal(t, 1, out.Attempts)
}

func TestEndToEndMaintenance(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	require.NoError(t, vt.SetTLV([]byte{0x03, 0x05, 0xD1, 0x01, 0x01, 0x55, 0x00, 0xFE}))
	o := rig(t, vt)

	first, err := o.Info(context.Background())
	require.NoError(t, err)
	second, err := o.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Info, second.Info)
	assert.Equal(t, 144, first.Info.Size)
	assert.False(t, first.Info.Locked)

	_, err = o.Erase(context.Background())
	require.NoError(t, err)
	read, err := o.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ndef.Record{ndef.Empty{}}, read.Records)

	_, err = o.Lock(context.Background())
	require.NoError(t, err)
	info, err := o.Info(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Info.Locked)

	req, err := tomotap.NewWriteRequest(ndef.Text{Text: "late"}, tag.ForFamily(tag.NTAG213))
	require.NoError(t, err)
	out, err := o.Write(context.Background(), req)
	require.ErrorIs(t, err, tomotap.ErrPageWrite)
	assert.Equal(t, tag.FirstUserPage, out.Page)
}

func TestEndToEndNoTag(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	vt.Remove()
	o := rig(t, vt)

	out, err := o.Read(context.Background())
	require.ErrorIs(t, err, tomotap.ErrLinkTimeout)
	assert.Equal(t, tomotap.ReasonTimeout, out.Reason)
}

func TestEndToEndThresholdOverride(t *testing.T) {
	t.Parallel()

	// an NTAG215 declares 496 bytes, which these bands classify as NTAG213
	th := tag.Thresholds{NTAG213Max: 500, NTAG215Max: 600, NTAG216Max: 1000}
	vt := virt.NewVirtualNTAG215(nil)
	o := rigWith(t, vt, tagops.Config{
		TapTimeout:     200 * time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
		Thresholds:     th,
	}, tomotap.WithThresholds(th))

	info, err := o.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "NTAG213", info.Info.Type)
	assert.Equal(t, 144, info.Info.Size)
	assert.Equal(t, tag.NTAG213, info.Geometry.Family)

	// the bridge enforces its own capacity even when the host targets NTAG215
	req, err := tomotap.NewWriteRequest(ndef.Text{Text: strings.Repeat("x", 200), Lang: "en"}, tag.ForFamily(tag.NTAG215))
	require.NoError(t, err)
	_, err = o.Write(context.Background(), req)
	require.ErrorIs(t, err, tomotap.ErrTooLarge)
	assert.Zero(t, vt.Writes())
}
