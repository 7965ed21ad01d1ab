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
	"errors"
	"fmt"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/config"
	"github.com/tomotap/tomotap/detection"
	"github.com/tomotap/tomotap/history"
	"github.com/tomotap/tomotap/polling"
	"github.com/tomotap/tomotap/tag"
)

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "write":
		return a.write(ctx, args)
	case "bulk":
		return a.bulk(ctx, args)
	case "read":
		return a.withSession(ctx, a.read)
	case "info":
		return a.withSession(ctx, a.info)
	case "erase":
		return a.withSession(ctx, a.erase)
	case "lock":
		return a.withSession(ctx, a.lock)
	case "ping":
		return a.withSession(ctx, a.ping)
	case "watch":
		return a.withSession(ctx, a.watch)
	case "history":
		return a.history()
	case "ports":
		return a.ports()
	case "config":
		if err := config.Save(a.configPath, a.cfg); err != nil {
			return err
		}
		a.out.Info("Configuration written to %s", a.configPath)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) withSession(ctx context.Context, fn func(context.Context, *tomotap.Orchestrator) error) error {
	s, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s.orch)
}

// request encodes the record described by args and reports its size
// before any bridge is opened.
func (a *app) request(args []string) (tomotap.WriteRequest, error) {
	rs, err := parseRecord(args)
	if err != nil {
		return tomotap.WriteRequest{}, err
	}
	g := tag.ForFamily(rs.family)
	req, err := tomotap.NewWriteRequest(rs.record, g)
	if err != nil {
		return tomotap.WriteRequest{}, err
	}
	u := tag.UsageFor(g, len(req.TLV))
	a.out.Usage(req.Kind, u)
	if !u.Fits {
		return tomotap.WriteRequest{}, tag.ErrTooLarge
	}
	return req, nil
}

func (a *app) write(ctx context.Context, args []string) error {
	req, err := a.request(args)
	if err != nil {
		return err
	}
	return a.withSession(ctx, func(ctx context.Context, o *tomotap.Orchestrator) error {
		a.out.Info("Tap a tag on the reader...")
		out, err := o.WriteWithRetry(ctx, req)
		a.out.Outcome(out)
		if errors.Is(err, tomotap.ErrCancelled) {
			return nil
		}
		return err
	})
}

func (a *app) bulk(ctx context.Context, args []string) error {
	req, err := a.request(args)
	if err != nil {
		return err
	}
	return a.withSession(ctx, func(ctx context.Context, o *tomotap.Orchestrator) error {
		a.out.Info("Bulk mode: tap tags one after another; press Ctrl-C to stop")
		sum := o.BulkWrite(ctx, req, tomotap.BulkOptions{
			Continue: func(_ context.Context, done int) bool {
				a.out.Info("\n[%d] Tap the next tag...", done+1)
				return true
			},
			OnResult: a.out.Outcome,
		})
		a.out.Bulk(sum)
		return nil
	})
}

func (a *app) read(ctx context.Context, o *tomotap.Orchestrator) error {
	a.out.Info("Tap a tag on the reader...")
	out, err := o.Read(ctx)
	if err != nil {
		a.out.Outcome(out)
		return err
	}
	a.out.Records(out)
	return nil
}

func (a *app) info(ctx context.Context, o *tomotap.Orchestrator) error {
	a.out.Info("Tap a tag on the reader...")
	out, err := o.Info(ctx)
	if err != nil {
		a.out.Outcome(out)
		return err
	}
	a.out.TagInfo(out)
	return nil
}

func (a *app) erase(ctx context.Context, o *tomotap.Orchestrator) error {
	if !a.yes && !confirm(ctx, "Erase all data on the next tag?") {
		return nil
	}
	a.out.Info("Tap a tag on the reader...")
	out, err := o.Erase(ctx)
	a.out.Outcome(out)
	return err
}

func (a *app) lock(ctx context.Context, o *tomotap.Orchestrator) error {
	a.out.Info("WARNING: locking is permanent. A locked tag can never be written again.")
	if !a.yes && !confirm(ctx, "Lock the next tag?") {
		return nil
	}
	a.out.Info("Tap a tag on the reader...")
	out, err := o.Lock(ctx)
	a.out.Outcome(out)
	return err
}

func (a *app) ping(ctx context.Context, o *tomotap.Orchestrator) error {
	out, err := o.Ping(ctx)
	if err != nil {
		return err
	}
	a.out.Info("PONG from %s bridge in %s", o.Transport().Type(), out.Duration)
	return nil
}

// watch reads tags until interrupted, printing each new tag once.
func (a *app) watch(ctx context.Context, o *tomotap.Orchestrator) error {
	a.out.Info("Watching for tags; press Ctrl-C to stop")
	m := polling.NewMonitor(o, nil)
	m.OnTagDetected = a.out.Records
	m.OnTagChanged = a.out.Records
	m.OnTagRemoved = func() { a.out.Info("Tag removed") }
	m.OnReadError = func(out tomotap.Outcome, _ error) { a.out.Outcome(out) }
	return m.Start(ctx)
}

func (a *app) history() error {
	entries, err := history.Read(a.cfg.HistoryPath, 20)
	if err != nil {
		return err
	}
	a.out.History(entries)
	return nil
}

func (a *app) ports() error {
	ports, err := detection.ListPorts()
	if err != nil {
		return err
	}
	a.out.Ports(ports)
	if p, err := detection.Select(ports, detection.Options{Blocklist: a.cfg.Serial.Blocklist}); err == nil {
		a.out.Info("\nBridge: %s", p.Name)
	}
	return nil
}
