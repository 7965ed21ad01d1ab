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

/*
Package tomotap writes and reads NDEF data on NTAG213/215/216 tags through a
tag bridge: either a microcontroller with an NFC reader on a serial port, or a
smartphone reachable over a local websocket bridge.

Both bridges speak the same line protocol (see package protocol). A Transport
carries that vocabulary; the Orchestrator drives each user operation through
an explicit state machine:

	Idle -> AwaitingTag -> CapacityCheck -> DuplicateCheck -> Writing -> Verifying -> Done

Basic Usage:

	import (
	    "github.com/tomotap/tomotap"
	    "github.com/tomotap/tomotap/ndef"
	    "github.com/tomotap/tomotap/tag"
	    "github.com/tomotap/tomotap/transport/uart"
	)

	transport, err := uart.New("/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}
	defer transport.Close()

	orch, err := tomotap.New(transport,
	    tomotap.WithMaxRetries(3),
	    tomotap.WithDecider(tomotap.AlwaysOverwrite),
	)
	if err != nil {
	    log.Fatal(err)
	}

	req, err := tomotap.NewWriteRequest(ndef.URI{URI: "https://tomotap.dev"}, tag.ForFamily(tag.NTAG213))
	if err != nil {
	    log.Fatal(err)
	}
	out, err := orch.WriteWithRetry(ctx, req)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(out.UID, out.Status)

Outcomes:

Every operation ends in an Outcome. Writes succeed as StatusVerified when the
read-back matched and StatusUnverified when it did not; neither is retried by
Write itself. WriteWithRetry applies the caller's retry policy.

Error Handling:

Failures are typed and can be inspected:

	if errors.Is(err, tomotap.ErrLinkTimeout) {
	    // no tag presented in time
	}
	var pwe *tomotap.PageWriteError
	if errors.As(err, &pwe) {
	    // tag partially written up to pwe.Page
	}

Locking:

Orchestrator.Lock sets the static and dynamic lock bits. This is permanent on
real tags and cannot be undone.

Thread Safety:

A bridge serves one command at a time. Orchestrator and Transport values are
not safe for concurrent use; serialize operations on a transport.
*/
package tomotap
