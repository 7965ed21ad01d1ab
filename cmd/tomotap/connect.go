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
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/config"
	"github.com/tomotap/tomotap/detection"
	"github.com/tomotap/tomotap/history"
	"github.com/tomotap/tomotap/transport/phone"
	"github.com/tomotap/tomotap/transport/uart"
)

type app struct {
	out        *Output
	cfg        config.Config
	configPath string
	yes        bool
}

// session is an open bridge with its orchestrator
type session struct {
	orch    *tomotap.Orchestrator
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Debug().Err(err).Msg("close failed")
		}
	}
}

// connect opens the configured bridge. In phone mode it serves the bridge
// endpoint and waits for a phone to connect.
func (a *app) connect(ctx context.Context) (*session, error) {
	s := &session{}
	tr, err := a.openTransport(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := append(a.cfg.Options(), tomotap.WithDecider(a.decider()))
	if a.cfg.LogWrites && a.cfg.HistoryPath != "" {
		h, err := history.Open(a.cfg.HistoryPath)
		if err != nil {
			log.Warn().Err(err).Msg("history disabled")
		} else {
			s.closers = append(s.closers, h.Close)
			opts = append(opts, tomotap.WithRecorder(h))
		}
	}

	orch, err := tomotap.New(tomotap.NewTransportWithRetry(tr, nil), opts...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	s.orch = orch
	return s, nil
}

func (a *app) openTransport(ctx context.Context, s *session) (tomotap.Transport, error) {
	switch a.cfg.ReaderMode {
	case config.ModePhone:
		pcfg := phone.DefaultConfig()
		pcfg.Listen = a.cfg.Phone.Listen
		pcfg.Advertise = a.cfg.Phone.Advertise
		pcfg.Timeouts = a.cfg.TransportTimeouts()

		srv := phone.NewServer(pcfg)
		if err := srv.Start(); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, srv.Close)
		a.out.Info("Waiting for a phone on %s (path %s)...", srv.Addr(), phone.WebSocketPath)

		tr, err := srv.Accept(ctx)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, tr.Close)
		a.out.Info("Phone connected (session %s, NFC %v)", tr.ID(), tr.NFC())
		return tr, nil

	default:
		portName := a.cfg.Serial.Port
		if portName == "" || strings.EqualFold(portName, config.AutoPort) {
			p, err := detection.Detect(detection.Options{Blocklist: a.cfg.Serial.Blocklist})
			if err != nil {
				return nil, fmt.Errorf("auto-detect bridge: %w", err)
			}
			portName = p.Name
			a.out.Info("Detected bridge on %s", p)
		}

		ucfg := uart.DefaultConfig(portName)
		ucfg.BaudRate = a.cfg.Serial.BaudRate
		ucfg.Timeouts = a.cfg.TransportTimeouts()
		octx, cancel := context.WithTimeout(ctx, ucfg.ResetWait+a.cfg.Serial.Timeout.Duration)
		defer cancel()
		tr, err := uart.Open(octx, ucfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, tr.Close)
		return tr, nil
	}
}
