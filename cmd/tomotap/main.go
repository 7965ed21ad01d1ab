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

// Command tomotap writes and reads NDEF tags through a wired or phone bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomotap/tomotap/config"
	"github.com/tomotap/tomotap/internal/logging"
	"github.com/tomotap/tomotap/internal/metrics"
)

const usage = `usage: tomotap [flags] <command> [args]

commands:
  write <kind> ...   write a record (uri, text, phone, email, sms, social, wifi, contact, empty)
  bulk <kind> ...    write the same record to successive tags
  read               read and decode a tag
  info               show tag UID, type, size and lock state
  erase              clear all user pages
  lock               permanently lock a tag
  ping               check the bridge responds
  watch              read every presented tag until interrupted
  history            show recent operations
  ports              list serial ports and the detected bridge
  config             write the effective configuration to the config path

flags:
`

func main() {
	if run(os.Args[1:]) != 0 {
		os.Exit(1)
	}
}

func run(args []string) int {
	fs := flag.NewFlagSet("tomotap", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "Configuration file")
	port := fs.String("port", "", "Serial port; overrides the config file (\"auto\" to detect)")
	mode := fs.String("mode", "", "Reader mode: arduino or phone; overrides the config file")
	yes := fs.Bool("yes", false, "Overwrite existing tag content without asking")
	debug := fs.Bool("debug", false, "Enable debug output")
	fs.Usage = func() {
		_, _ = fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *mode != "" {
		cfg.ReaderMode = *mode
		if err := cfg.Validate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return 1
		}
	}

	logCfg := logging.Config{JSON: cfg.Log.JSON}
	logCfg.Level, _ = logging.ParseLevel(cfg.Log.Level)
	if *debug {
		logCfg.Level, _ = logging.ParseLevel("debug")
	}
	logging.Setup(logCfg)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:        cfg,
		configPath: *configPath,
		out:        NewOutput(os.Stdout),
		yes:        *yes,
	}
	if err := a.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		a.out.Error("%v", err)
		return 1
	}
	return 0
}
