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

// Package config loads and saves tomotap.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/internal/logging"
	"github.com/tomotap/tomotap/internal/transport"
	"github.com/tomotap/tomotap/tag"
)

// DefaultPath is the configuration file looked up in the working directory
const DefaultPath = "tomotap.toml"

// Reader modes
const (
	ModeArduino = "arduino"
	ModePhone   = "phone"
)

// AutoPort selects the serial port by USB ID
const AutoPort = "auto"

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as "5s" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Serial configures the wired bridge
type Serial struct {
	Port string `toml:"port"`
	// Timeout bounds opening the port and the connect handshake.
	Timeout      Duration `toml:"timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	BaudRate     int      `toml:"baudrate"`
	// Blocklist holds VID:PID entries skipped by auto-detection.
	Blocklist []string `toml:"blocklist,omitempty"`
}

// Phone configures the smartphone bridge server
type Phone struct {
	Listen    string `toml:"listen"`
	Advertise bool   `toml:"advertise"`
}

// Timeouts are the transport wait windows
type Timeouts struct {
	Tap      Duration `toml:"tap"`
	Confirm  Duration `toml:"confirm"`
	Response Duration `toml:"response"`
}

// Log configures logging
type Log struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Config is the whole configuration file
type Config struct {
	ReaderMode       string         `toml:"reader_mode"`
	HistoryPath      string         `toml:"history_path"`
	Serial           Serial         `toml:"serial"`
	Phone            Phone          `toml:"phone"`
	Log              Log            `toml:"log"`
	Timeouts         Timeouts       `toml:"timeouts"`
	Geometry         tag.Thresholds `toml:"geometry"`
	MaxRetries       int            `toml:"max_retries"`
	VerifyAfterWrite bool           `toml:"verify_after_write"`
	LogWrites        bool           `toml:"log_writes"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		ReaderMode:  ModeArduino,
		HistoryPath: "tomotap-history.jsonl",
		Serial: Serial{
			Port:         AutoPort,
			BaudRate:     115200,
			Timeout:      Duration{5 * time.Second},
			WriteTimeout: Duration{5 * time.Second},
		},
		Phone: Phone{Listen: ":8765", Advertise: true},
		Log:   Log{Level: "info"},
		Timeouts: Timeouts{
			Tap:      Duration{30 * time.Second},
			Confirm:  Duration{10 * time.Second},
			Response: Duration{5 * time.Second},
		},
		Geometry:         tag.DefaultThresholds(),
		MaxRetries:       3,
		VerifyAfterWrite: true,
		LogWrites:        true,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("no config file, using defaults")
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Str("path", path).Str("key", key.String()).Msg("unknown config key")
	}

	cfg.ReaderMode = strings.ToLower(strings.TrimSpace(cfg.ReaderMode))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	log.Info().Str("path", path).Msg("config saved")
	return nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	switch c.ReaderMode {
	case ModeArduino, ModePhone:
	default:
		return fmt.Errorf("%w: reader_mode %q", ErrInvalid, c.ReaderMode)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("%w: baudrate must be positive, got %d", ErrInvalid, c.Serial.BaudRate)
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.Log.Level)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1, got %d", ErrInvalid, c.MaxRetries)
	}
	for name, d := range map[string]Duration{
		"timeouts.tap":      c.Timeouts.Tap,
		"timeouts.confirm":  c.Timeouts.Confirm,
		"timeouts.response": c.Timeouts.Response,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// TransportTimeouts converts the configured windows
func (c Config) TransportTimeouts() transport.Timeouts {
	return transport.Timeouts{
		Response: c.Timeouts.Response.Duration,
		Tap:      c.Timeouts.Tap.Duration,
		Confirm:  c.Timeouts.Confirm.Duration,
		Write:    c.Serial.WriteTimeout.Duration,
	}
}

// Options converts the write policy into orchestrator options
func (c Config) Options() []tomotap.Option {
	return []tomotap.Option{
		tomotap.WithMaxRetries(c.MaxRetries),
		tomotap.WithVerifyAfterWrite(c.VerifyAfterWrite),
		tomotap.WithThresholds(c.Geometry),
	}
}
