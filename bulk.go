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

	"github.com/rs/zerolog/log"
)

// BulkOptions controls BulkWrite.
type BulkOptions struct {
	// Continue is asked before each tag; returning false stops the run.
	Continue func(ctx context.Context, done int) bool
	// OnResult receives each tag's outcome.
	OnResult func(Outcome)
	// Count stops after this many tags; zero runs until stopped.
	Count int
}

// BulkSummary tallies a bulk run.
type BulkSummary struct {
	Outcomes []Outcome
	Written  int
	Failed   int
}

// BulkWrite writes the same request to successive tags. The run stops when
// ctx ends, Count tags were attempted, Continue returns false, or a tag
// was not presented in time.
func (o *Orchestrator) BulkWrite(ctx context.Context, req WriteRequest, opts BulkOptions) BulkSummary {
	var sum BulkSummary
	for i := 0; opts.Count == 0 || i < opts.Count; i++ {
		if ctx.Err() != nil {
			break
		}
		if opts.Continue != nil && !opts.Continue(ctx, i) {
			break
		}

		out, _ := o.WriteWithRetry(ctx, req)
		sum.Outcomes = append(sum.Outcomes, out)
		if out.OK() {
			sum.Written++
		} else {
			sum.Failed++
		}
		if opts.OnResult != nil {
			opts.OnResult(out)
		}

		if out.Reason == ReasonTimeout || out.Reason == ReasonTransport {
			log.Info().Int("written", sum.Written).Str("reason", string(out.Reason)).Msg("bulk write stopped")
			break
		}
	}
	return sum
}
