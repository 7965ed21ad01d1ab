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

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/detection"
	"github.com/tomotap/tomotap/history"
	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/tag"
)

// Output handles consistent formatting of messages
type Output struct {
	w io.Writer
}

// NewOutput creates a new output handler
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

// Info prints a plain status line
func (o *Output) Info(format string, args ...any) {
	o.printf(format+"\n", args...)
}

// Error prints an error line
func (o *Output) Error(format string, args ...any) {
	o.printf("ERROR: "+format+"\n", args...)
}

// Usage prints how much of a tag the record occupies
func (o *Output) Usage(kind ndef.Kind, u tag.Usage) {
	o.printf("Record: %s, %d of %d bytes on %s (%.0f%%, %d free)\n",
		kind, u.Used, u.Geometry.CapacityBytes, u.Geometry.Family, u.Percent, u.Remaining)
	if !u.Fits {
		if f := tag.SmallestFitting(u.Used); f != tag.Unknown {
			o.printf("  does not fit; use an %s or larger\n", f)
		} else {
			o.printf("  does not fit any supported tag\n")
		}
	}
}

// Outcome prints the result of an operation
func (o *Output) Outcome(out tomotap.Outcome) {
	switch {
	case out.Status == tomotap.StatusVerified:
		o.printf("OK: wrote %d bytes to %s, verified (%d attempt(s))\n", out.Bytes, out.UID, out.Attempts)
	case out.Status == tomotap.StatusUnverified:
		o.printf("WARNING: wrote %d bytes to %s but read-back did not match (%d attempt(s))\n",
			out.Bytes, out.UID, out.Attempts)
	case out.OK():
		o.printf("OK: %s %s\n", out.Op, out.UID)
	default:
		o.failure(out)
	}
}

func (o *Output) failure(out tomotap.Outcome) {
	switch out.Reason {
	case tomotap.ReasonTimeout:
		o.printf("FAIL: no tag presented in time\n")
	case tomotap.ReasonCancelled:
		o.printf("CANCELLED: existing content on %s left in place\n", out.UID)
	case tomotap.ReasonPageWrite:
		o.printf("FAIL: write stopped at page %d; the tag may be partially written\n", out.Page)
	default:
		o.printf("FAIL: %s %v\n", out.Op, out.Err)
	}
}

// Records prints decoded records
func (o *Output) Records(out tomotap.Outcome) {
	if len(out.Records) == 0 {
		o.printf("Tag %s holds no NDEF message\n", out.UID)
		return
	}
	o.printf("Tag %s: %d record(s), %d bytes\n", out.UID, len(out.Records), len(out.Raw))
	for i, r := range out.Records {
		o.printf("  [%d] %s: %s\n", i, r.Kind(), ndef.Summary(r))
		if w, ok := r.(ndef.WiFi); ok {
			o.printf("      ssid=%s auth=%s\n", w.SSID, w.Auth)
		}
	}
}

// TagInfo prints a TAG_INFO answer
func (o *Output) TagInfo(out tomotap.Outcome) {
	locked := "no"
	if out.Info.Locked {
		locked = "yes"
	}
	o.printf("UID:    %s\nType:   %s\nSize:   %d bytes\nLocked: %s\n",
		out.Info.UID, out.Info.Type, out.Info.Size, locked)
}

// Bulk prints a bulk run summary
func (o *Output) Bulk(sum tomotap.BulkSummary) {
	o.printf("\nBulk write finished: %d written, %d failed\n", sum.Written, sum.Failed)
}

// Ports prints serial ports, marking known boards
func (o *Output) Ports(ports []detection.Port) {
	if len(ports) == 0 {
		o.printf("No serial ports found\n")
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PORT\tUSB ID\tPRODUCT\tBOARD")
	for _, p := range ports {
		board := ""
		if b, ok := detection.MatchBoard(p); ok {
			board = b.Name
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.VIDPID(), p.Product, board)
	}
	_ = tw.Flush()
}

// History prints history entries and totals
func (o *Output) History(entries []history.Entry) {
	if len(entries) == 0 {
		o.printf("No history yet\n")
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tUID\tOP\tKIND\tSTATUS\tDETAIL")
	for _, e := range entries {
		detail := e.Reason
		if e.Bytes > 0 {
			detail = fmt.Sprintf("%d bytes", e.Bytes)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Local().Format("2006-01-02 15:04:05"), e.UID, strings.ToUpper(e.Op), e.Kind, e.Status, detail)
	}
	_ = tw.Flush()

	s := history.Summarize(entries)
	o.printf("\n%d operations, %d succeeded, %d failed, %d distinct tags\n", s.Total, s.Succeeded, s.Failed, s.Tags)
}
