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

// Package detection finds the serial port of a wired tag bridge.
package detection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
)

// ErrNoBridge is returned when no port looks like a tag bridge
var ErrNoBridge = errors.New("no tag bridge found")

// USBID identifies a USB serial adapter. An empty PID matches any product
// of the vendor.
type USBID struct {
	VID  string
	PID  string
	Name string
}

// KnownBoards lists the USB serial adapters found on common
// microcontroller boards.
var KnownBoards = []USBID{
	{VID: "2341", Name: "Arduino"},
	{VID: "1A86", PID: "7523", Name: "CH340"},
	{VID: "10C4", PID: "EA60", Name: "CP2102"},
	{VID: "0403", PID: "6001", Name: "FTDI FT232"},
	{VID: "2A03", Name: "Arduino.org"},
	{VID: "1B4F", Name: "SparkFun"},
	{VID: "239A", Name: "Adafruit"},
}

// fallbackKeywords are matched against the product description when no
// USB ID matched.
var fallbackKeywords = []string{"arduino", "ch340", "cp210", "ftdi", "usb serial"}

// Port describes one serial port
type Port struct {
	Name         string
	VID          string
	PID          string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// VIDPID returns the port's USB ID as VID:PID, or "" for non-USB ports
func (p Port) VIDPID() string {
	if !p.IsUSB || p.VID == "" {
		return ""
	}
	return strings.ToUpper(p.VID) + ":" + strings.ToUpper(p.PID)
}

func (p Port) String() string {
	if id := p.VIDPID(); id != "" {
		return fmt.Sprintf("%s (%s %s)", p.Name, id, p.Product)
	}
	return p.Name
}

// Options filters detection
type Options struct {
	// Blocklist holds VID:PID entries that are never selected.
	Blocklist []string
	// IgnorePaths holds port names that are never selected.
	IgnorePaths []string
}

// ListPorts enumerates the serial ports of the system
func ListPorts() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          strings.ToUpper(d.VID),
			PID:          strings.ToUpper(d.PID),
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
		})
	}
	return ports, nil
}

// Detect enumerates the system ports and selects a bridge
func Detect(opts Options) (Port, error) {
	ports, err := ListPorts()
	if err != nil {
		return Port{}, err
	}
	return Select(ports, opts)
}

// Select picks the first port with a known USB ID, then the first whose
// description contains a known keyword.
func Select(ports []Port, opts Options) (Port, error) {
	candidates := make([]Port, 0, len(ports))
	for _, p := range ports {
		switch {
		case IsPathIgnored(p.Name, opts.IgnorePaths):
			log.Debug().Str("port", p.Name).Msg("skipping ignored port")
		case IsBlocked(p.VIDPID(), opts.Blocklist):
			log.Debug().Str("port", p.Name).Str("usb", p.VIDPID()).Msg("skipping blocked device")
		default:
			candidates = append(candidates, p)
		}
	}

	for _, p := range candidates {
		if board, ok := MatchBoard(p); ok {
			log.Info().Str("port", p.Name).Str("board", board.Name).Msg("tag bridge detected")
			return p, nil
		}
	}
	for _, p := range candidates {
		desc := strings.ToLower(p.Product)
		for _, kw := range fallbackKeywords {
			if strings.Contains(desc, kw) {
				log.Info().Str("port", p.Name).Str("product", p.Product).Msg("tag bridge detected by description")
				return p, nil
			}
		}
	}
	return Port{}, ErrNoBridge
}

// MatchBoard reports the known board matching p's USB ID
func MatchBoard(p Port) (USBID, bool) {
	if !p.IsUSB {
		return USBID{}, false
	}
	for _, b := range KnownBoards {
		if !strings.EqualFold(p.VID, b.VID) {
			continue
		}
		if b.PID == "" || strings.EqualFold(p.PID, b.PID) {
			return b, true
		}
	}
	return USBID{}, false
}
