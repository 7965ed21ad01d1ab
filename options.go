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
	"fmt"
	"time"

	"github.com/tomotap/tomotap/tag"
)

// Option is a functional option for configuring an Orchestrator
type Option func(*Orchestrator) error

// WithConfig replaces the whole configuration
func WithConfig(config *Config) Option {
	return func(o *Orchestrator) error {
		if config == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidParameter)
		}
		cp := *config
		if cp.Retry == nil {
			cp.Retry = DefaultRetryConfig()
		}
		if cp.Thresholds == (tag.Thresholds{}) {
			cp.Thresholds = tag.DefaultThresholds()
		}
		o.config = &cp
		return nil
	}
}

// WithRetryConfig sets the write retry policy
func WithRetryConfig(config *RetryConfig) Option {
	return func(o *Orchestrator) error {
		if config == nil {
			config = DefaultRetryConfig()
		}
		o.config.Retry = config
		if tr, ok := o.transport.(*TransportWithRetry); ok {
			tr.SetRetryConfig(config)
		}
		return nil
	}
}

// WithMaxRetries sets how many full write attempts WriteWithRetry makes
func WithMaxRetries(maxAttempts int) Option {
	return func(o *Orchestrator) error {
		if maxAttempts < 1 {
			return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidParameter, maxAttempts)
		}
		o.config.Retry.MaxAttempts = maxAttempts
		return nil
	}
}

// WithRetryBackoff sets the initial backoff between write attempts
func WithRetryBackoff(initialBackoff time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.Retry.InitialBackoff = initialBackoff
		return nil
	}
}

// WithThresholds sets the size thresholds used to classify tags
func WithThresholds(th tag.Thresholds) Option {
	return func(o *Orchestrator) error {
		if err := th.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
		o.config.Thresholds = th
		return nil
	}
}

// WithDecider sets how duplicate prompts are answered
func WithDecider(decider Decider) Option {
	return func(o *Orchestrator) error {
		o.config.Decider = decider
		return nil
	}
}

// WithRecorder sets where finished outcomes are sent
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) error {
		o.config.Recorder = recorder
		return nil
	}
}

// WithVerifyAfterWrite controls whether unverified writes are retried
func WithVerifyAfterWrite(verify bool) Option {
	return func(o *Orchestrator) error {
		o.config.VerifyAfterWrite = verify
		return nil
	}
}
