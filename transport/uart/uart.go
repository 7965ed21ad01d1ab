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

// Package uart provides the wired bridge transport: a microcontroller with
// an NFC reader on a serial port.
package uart

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/internal/frame"
	"github.com/tomotap/tomotap/internal/transport"
	"github.com/tomotap/tomotap/protocol"
)

// Config configures the serial link.
type Config struct {
	Port     string
	Timeouts transport.Timeouts
	BaudRate int
	// ResetWait is how long to wait after opening the port. Most boards
	// reset when the port opens and ignore input while booting.
	ResetWait         time.Duration
	HandshakeAttempts int
}

// DefaultConfig returns the settings for port.
func DefaultConfig(port string) Config {
	return Config{
		Port:              port,
		BaudRate:          frame.BaudRate,
		ResetWait:         2 * time.Second,
		HandshakeAttempts: 3,
		Timeouts:          transport.DefaultTimeouts(),
	}
}

// Transport implements tomotap.Transport over a serial port
type Transport struct {
	line     *transport.Line
	port     serial.Port
	portName string
}

// New opens portName with the default configuration
func New(portName string) (*Transport, error) {
	return Open(context.Background(), DefaultConfig(portName))
}

// Open opens the port, waits for the board to boot, flushes both buffers
// and pings the bridge.
func Open(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = frame.BaudRate
	}
	if cfg.HandshakeAttempts < 1 {
		cfg.HandshakeAttempts = 1
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, tomotap.NewTransportError("open", cfg.Port, err, tomotap.ErrorTypePermanent)
	}

	if cfg.ResetWait > 0 {
		log.Debug().Str("port", cfg.Port).Dur("wait", cfg.ResetWait).Msg("waiting for board reset")
		select {
		case <-ctx.Done():
			_ = port.Close()
			return nil, fmt.Errorf("open %s aborted: %w", cfg.Port, ctx.Err())
		case <-time.After(cfg.ResetWait):
		}
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, tomotap.NewTransportError("reset input", cfg.Port, err, tomotap.ErrorTypeTransient)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		_ = port.Close()
		return nil, tomotap.NewTransportError("reset output", cfg.Port, err, tomotap.ErrorTypeTransient)
	}

	t := &Transport{
		port:     port,
		portName: cfg.Port,
		line:     transport.NewLine(port, tomotap.TransportUART, cfg.Port, cfg.Timeouts),
	}
	if err := transport.Handshake(ctx, t.line, cfg.HandshakeAttempts, 500*time.Millisecond); err != nil {
		_ = t.Close()
		return nil, err
	}
	log.Info().Str("port", cfg.Port).Int("baud", cfg.BaudRate).Msg("bridge connected")
	return t, nil
}

// Execute sends cmd to the bridge
func (t *Transport) Execute(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if !t.IsConnected() {
		return protocol.Response{}, tomotap.ErrTransportClosed
	}
	resp, err := t.line.Execute(ctx, cmd)
	if err != nil {
		return resp, fmt.Errorf("uart %s: %w", cmd.Kind, err)
	}
	return resp, nil
}

// Next waits for the following bridge response
func (t *Transport) Next(ctx context.Context) (protocol.Response, error) {
	if !t.IsConnected() {
		return protocol.Response{}, tomotap.ErrTransportClosed
	}
	resp, err := t.line.Next(ctx)
	if err != nil {
		return resp, fmt.Errorf("uart: %w", err)
	}
	return resp, nil
}

// Deadline returns the pending tap or confirmation deadline
func (t *Transport) Deadline() time.Time {
	if !t.IsConnected() {
		return time.Time{}
	}
	return t.line.Deadline()
}

// Close closes the serial port
func (t *Transport) Close() error {
	if t.line == nil {
		return nil
	}
	return t.line.Close()
}

// IsConnected reports whether the port was opened
func (t *Transport) IsConnected() bool {
	return t.line != nil
}

// Port returns the serial port name
func (t *Transport) Port() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() tomotap.TransportType {
	return tomotap.TransportUART
}

var _ tomotap.Transport = (*Transport)(nil)
