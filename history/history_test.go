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

package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/ndef"
)

func TestLogRecordAndRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "history.jsonl")
	l, err := Open(path)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	l.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	l.Record(tomotap.Outcome{
		Op: tomotap.OpWrite, Status: tomotap.StatusVerified, UID: "04A1B2C3D4E5F6",
		Kind: ndef.KindURI, Bytes: 27, Attempts: 1, Duration: 1500 * time.Millisecond,
	})
	l.Record(tomotap.Outcome{
		Op: tomotap.OpWrite, Status: tomotap.StatusFailed, Reason: tomotap.ReasonTimeout,
		Err: tomotap.ErrLinkTimeout, Attempts: 3,
	})
	l.Record(tomotap.Outcome{Op: tomotap.OpErase, Status: tomotap.StatusOK, UID: "04A1B2C3D4E5F6"})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	entries, err := Read(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "erase", entries[0].Op, "newest first")
	first := entries[2]
	assert.Equal(t, "write", first.Op)
	assert.Equal(t, "verified", first.Status)
	assert.Equal(t, "uri", first.Kind)
	assert.InDelta(t, 1500.0, first.Duration, 0.001)
	assert.True(t, first.Time.Equal(base.Add(time.Second)))

	failed := entries[1]
	assert.False(t, failed.Success())
	assert.Equal(t, "timeout", failed.Reason)
	assert.Equal(t, tomotap.ErrLinkTimeout.Error(), failed.Error)

	latest, err := Read(path, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "erase", latest[0].Op)

	stats := Summarize(entries)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Tags)
	assert.Equal(t, 2, stats.ByOp["write"])
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	entries, err := Read(filepath.Join(t.TempDir(), "none.jsonl"), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.jsonl")
	body := `{"time":"2026-03-01T12:00:00Z","op":"read","status":"ok","duration_ms":3}
not json
{"time":"2026-03-01T12:00:01Z","op":"info","status":"ok","duration_ms":2}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	entries, err := Read(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Op)
}

func TestAppendAfterClose(t *testing.T) {
	t.Parallel()

	l, err := Open(filepath.Join(t.TempDir(), "history.jsonl"))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.ErrorIs(t, l.Append(Entry{Op: "ping"}), os.ErrClosed)
}
