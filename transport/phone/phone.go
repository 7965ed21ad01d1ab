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

// Package phone serves the smartphone bridge. A phone app connects to a
// local websocket endpoint, announces itself with HELLO and then speaks the
// same line protocol as the wired bridge.
package phone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/internal/frame"
	"github.com/tomotap/tomotap/internal/transport"
	"github.com/tomotap/tomotap/protocol"
)

// HelloCommand is the first message a phone sends
const HelloCommand = "HELLO"

// ErrBadHello is returned when the first message is not a HELLO line
var ErrBadHello = errors.New("phone did not send HELLO")

// Hello is the parsed HELLO announcement
type Hello struct {
	Fields map[string]string
	NFC    bool
}

// ParseHello parses `HELLO|nfc=1` and any further comma separated fields.
func ParseHello(line string) (Hello, error) {
	name, data, _ := frame.Split(strings.TrimSpace(line))
	if !strings.EqualFold(name, HelloCommand) {
		return Hello{}, fmt.Errorf("%w: %q", ErrBadHello, line)
	}
	h := Hello{Fields: map[string]string{}}
	for _, field := range strings.Split(data, ",") {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		h.Fields[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	h.NFC = h.Fields["nfc"] == "1"
	return h, nil
}

// HelloLine encodes a HELLO announcement
func HelloLine(nfc bool) string {
	if nfc {
		return HelloCommand + "|nfc=1"
	}
	return HelloCommand + "|nfc=0"
}

// Transport implements tomotap.Transport for one connected phone. A phone
// without NFC stays connected but every tag command fails with
// ERROR|NFC_UNSUPPORTED without reaching the phone.
type Transport struct {
	line   *transport.Line
	id     string
	remote string
	hello  Hello
}

func newTransport(link *Link, id, remote string, hello Hello, timeouts transport.Timeouts) *Transport {
	return &Transport{
		line:   transport.NewLine(link, tomotap.TransportPhone, remote, timeouts),
		id:     id,
		remote: remote,
		hello:  hello,
	}
}

// Execute sends cmd to the phone
func (t *Transport) Execute(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if !t.hello.NFC && cmd.Kind != protocol.CmdPing {
		return protocol.Errorf("%s", protocol.ReasonNFCUnsupported), nil
	}
	resp, err := t.line.Execute(ctx, cmd)
	if err != nil {
		return resp, fmt.Errorf("phone %s %s: %w", t.id, cmd.Kind, err)
	}
	return resp, nil
}

// Next waits for the following phone response
func (t *Transport) Next(ctx context.Context) (protocol.Response, error) {
	resp, err := t.line.Next(ctx)
	if err != nil {
		return resp, fmt.Errorf("phone %s: %w", t.id, err)
	}
	return resp, nil
}

// Deadline returns the pending tap or confirmation deadline
func (t *Transport) Deadline() time.Time {
	return t.line.Deadline()
}

// Close disconnects the phone
func (t *Transport) Close() error {
	return t.line.Close()
}

// Type returns the transport type
func (*Transport) Type() tomotap.TransportType {
	return tomotap.TransportPhone
}

// ID is the session id assigned on connect
func (t *Transport) ID() string { return t.id }

// Remote is the phone's network address
func (t *Transport) Remote() string { return t.remote }

// NFC reports whether the phone announced NFC support
func (t *Transport) NFC() bool { return t.hello.NFC }

var _ tomotap.Transport = (*Transport)(nil)
