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

// Command tagsim simulates a tag bridge with a virtual NTAG. It serves the
// line protocol on a serial port or TCP, or connects to a phone bridge
// endpoint as a phone would.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"github.com/tomotap/tomotap/bridge"
	"github.com/tomotap/tomotap/config"
	"github.com/tomotap/tomotap/internal/frame"
	"github.com/tomotap/tomotap/internal/logging"
	virt "github.com/tomotap/tomotap/internal/testing"
	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/tag"
	"github.com/tomotap/tomotap/tagops"
	"github.com/tomotap/tomotap/transport/phone"
)

type options struct {
	serialPort string
	listen     string
	phoneURL   string
	family     string
	uid        string
	preload    string
	tap        time.Duration
	confirm    time.Duration
	configPath string
	noNFC      bool
}

func main() {
	if run() != 0 {
		os.Exit(1)
	}
}

func run() int {
	var opts options
	flag.StringVar(&opts.serialPort, "serial", "", "Serve on this serial port (for example one end of a socat pty pair)")
	flag.StringVar(&opts.listen, "listen", "", "Serve on this TCP address, one host at a time")
	flag.StringVar(&opts.phoneURL, "phone", "", "Connect to a phone bridge endpoint, e.g. ws://localhost:8765/ws")
	flag.StringVar(&opts.family, "tag", "ntag215", "Virtual tag type: ntag213, ntag215 or ntag216")
	flag.StringVar(&opts.uid, "uid", "", "Tag UID in hex (default depends on the tag type)")
	flag.StringVar(&opts.preload, "text", "", "Preload the tag with a text record")
	flag.DurationVar(&opts.tap, "tap-timeout", 30*time.Second, "How long to wait for a tag")
	flag.DurationVar(&opts.confirm, "confirm-timeout", 10*time.Second, "How long to wait for an overwrite answer")
	flag.BoolVar(&opts.noNFC, "no-nfc", false, "Announce a phone without NFC")
	flag.StringVar(&opts.configPath, "config", "", "Read capacity thresholds from this tomotap.toml")
	flag.Parse()

	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vt, err := newTag(opts)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	log.Info().Str("tag", vt.String()).Msg("virtual tag ready")

	opsCfg, err := opsConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	ops := tagops.New(vt, opsCfg)

	switch {
	case opts.phoneURL != "":
		err = servePhone(ctx, opts, ops)
	case opts.serialPort != "":
		err = serveSerial(ctx, opts.serialPort, ops)
	case opts.listen != "":
		err = serveTCP(ctx, opts.listen, ops)
	default:
		flag.Usage()
		return 1
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}

// opsConfig builds the tag engine settings. Thresholds come from the
// [geometry] section of the config file when one is given.
func opsConfig(opts options) (tagops.Config, error) {
	cfg := tagops.Config{
		TapTimeout:     opts.tap,
		ConfirmTimeout: opts.confirm,
		Thresholds:     tag.DefaultThresholds(),
	}
	if opts.configPath == "" {
		return cfg, nil
	}
	c, err := config.Load(opts.configPath)
	if err != nil {
		return tagops.Config{}, err
	}
	cfg.Thresholds = c.Geometry
	log.Info().
		Int("ntag213_max", c.Geometry.NTAG213Max).
		Int("ntag215_max", c.Geometry.NTAG215Max).
		Msg("using configured thresholds")
	return cfg, nil
}

func newTag(opts options) (*virt.VirtualTag, error) {
	family := tag.ParseFamily(opts.family)
	if family == tag.Unknown {
		return nil, fmt.Errorf("unknown tag type %q", opts.family)
	}
	var uid []byte
	if opts.uid != "" {
		b, err := hex.DecodeString(opts.uid)
		if err != nil {
			return nil, fmt.Errorf("invalid uid: %w", err)
		}
		uid = b
	}
	vt := virt.NewVirtualTag(family, uid)
	if opts.preload != "" {
		tlv, err := ndef.Encode(ndef.Text{Text: opts.preload, Lang: "en"})
		if err != nil {
			return nil, err
		}
		if err := vt.SetTLV(tlv); err != nil {
			return nil, err
		}
	}
	return vt, nil
}

// serve runs a responder until the link closes or ctx ends.
func serve(ctx context.Context, link io.ReadWriteCloser, ops *tagops.TagOperations, opts ...bridge.Option) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return bridge.NewResponder(link, ops, opts...).Serve(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return link.Close()
		case <-done:
			return nil
		}
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func serveSerial(ctx context.Context, name string, ops *tagops.TagOperations) error {
	port, err := serial.Open(name, &serial.Mode{BaudRate: frame.BaudRate})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	log.Info().Str("port", name).Msg("serving bridge on serial port")
	return serve(ctx, port, ops)
}

func serveTCP(ctx context.Context, addr string, ops *tagops.TagOperations) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving bridge over TCP")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("host connected")
		if err := serve(ctx, conn, ops); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("host session ended")
		}
	}
}

func servePhone(ctx context.Context, opts options, ops *tagops.TagOperations) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, opts.phoneURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", opts.phoneURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	log.Info().Str("url", opts.phoneURL).Bool("nfc", !opts.noNFC).Msg("connected as phone")

	bopts := []bridge.Option{bridge.WithGreeting(phone.HelloLine(!opts.noNFC))}
	if opts.noNFC {
		bopts = append(bopts, bridge.WithoutNFC())
	}
	return serve(ctx, phone.NewLink(conn), ops, bopts...)
}
