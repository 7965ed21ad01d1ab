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

// Package transport provides the line transport shared by the bridge links.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/protocol"
)

// RetryOperation represents a function that can be retried
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the operation should be retried
// - error: any permanent error that should stop retries
type RetryOperation[T any] func() (T, bool, error)

// RetryConfig configures retry behavior
type RetryConfig struct {
	OnRetry     func() error
	Description string
	MaxRetries  int
	RetryDelay  time.Duration
}

// WithRetry executes an operation with retry logic
func WithRetry[T any](ctx context.Context, config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		// If we should retry but we're at max attempts, break
		if attempt >= config.MaxRetries {
			break
		}

		if config.OnRetry != nil {
			if err := config.OnRetry(); err != nil {
				return zero, err
			}
		}

		if config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%s aborted: %w", config.Description, ctx.Err())
			case <-time.After(config.RetryDelay):
			}
		}
	}

	return zero, tomotap.NewTransportError(config.Description, "", tomotap.ErrNoResponse, tomotap.ErrorTypeTransient)
}

// Handshake pings the bridge until it answers PONG. Microcontroller
// bridges print a banner and drop input while they boot.
func Handshake(ctx context.Context, t tomotap.Transport, attempts int, delay time.Duration) error {
	_, err := WithRetry(ctx, RetryConfig{
		Description: "handshake",
		MaxRetries:  attempts - 1,
		RetryDelay:  delay,
	}, func() (struct{}, bool, error) {
		resp, err := t.Execute(ctx, protocol.Ping())
		if err != nil {
			if tomotap.IsRetryable(err) {
				return struct{}{}, true, nil
			}
			return struct{}{}, false, err
		}
		return struct{}{}, resp.Kind != protocol.RespPong, nil
	})
	if err != nil {
		return fmt.Errorf("bridge did not answer PING: %w", err)
	}
	return nil
}
