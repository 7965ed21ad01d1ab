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

// Package history keeps a JSON lines log of finished tag operations.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap"
)

// Entry is one logged operation
type Entry struct {
	Time     time.Time `json:"time"`
	Op       string    `json:"op"`
	Status   string    `json:"status"`
	UID      string    `json:"uid,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	Bytes    int       `json:"bytes,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	Duration float64   `json:"duration_ms"`
}

// Success reports whether the entry records a successful operation
func (e Entry) Success() bool {
	return e.Status != string(tomotap.StatusFailed)
}

// FromOutcome converts an operation outcome
func FromOutcome(out tomotap.Outcome, at time.Time) Entry {
	e := Entry{
		Time:     at.UTC(),
		Op:       string(out.Op),
		Status:   string(out.Status),
		UID:      out.UID,
		Kind:     string(out.Kind),
		Reason:   string(out.Reason),
		Bytes:    out.Bytes,
		Attempts: out.Attempts,
		Duration: float64(out.Duration) / float64(time.Millisecond),
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	return e
}

// Log appends entries to a file. It implements tomotap.Recorder.
type Log struct {
	f   *os.File
	now func() time.Time
	mu  sync.Mutex
}

// Open opens path for appending, creating it if needed
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Log{f: f, now: time.Now}, nil
}

// Record appends out. Failures are logged, never returned, so that a full
// disk does not fail a tag operation.
func (l *Log) Record(out tomotap.Outcome) {
	if err := l.Append(FromOutcome(out, l.now())); err != nil {
		log.Warn().Err(err).Str("op", string(out.Op)).Msg("failed to record history")
	}
}

// Append writes one entry
func (l *Log) Append(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	if _, err := l.f.Write(b); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Close closes the file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

var _ tomotap.Recorder = (*Log)(nil)

// Read returns the newest limit entries of path, newest first. Zero limit
// returns all. A missing file has no entries. Corrupt lines are skipped.
func Read(path string, limit int) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			log.Debug().Err(err).Int("line", n).Msg("skipping corrupt history line")
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Stats summarizes a set of entries
type Stats struct {
	ByOp      map[string]int
	Total     int
	Succeeded int
	Failed    int
	Tags      int
}

// Summarize counts entries by outcome and distinct tag
func Summarize(entries []Entry) Stats {
	s := Stats{ByOp: map[string]int{}}
	uids := map[string]struct{}{}
	for _, e := range entries {
		s.Total++
		s.ByOp[e.Op]++
		if e.Success() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if e.UID != "" {
			uids[e.UID] = struct{}{}
		}
	}
	s.Tags = len(uids)
	return s
}
