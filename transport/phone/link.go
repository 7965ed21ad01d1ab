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

package phone

import (
	"bytes"
	"sync"

	"github.com/gorilla/websocket"
)

// Link adapts a websocket connection to the line stream used by the wired
// bridge. Each text message carries one line without its terminator.
type Link struct {
	conn    *websocket.Conn
	pending []byte
	partial []byte
	wmu     sync.Mutex
	rmu     sync.Mutex
}

// NewLink wraps conn
func NewLink(conn *websocket.Conn) *Link {
	return &Link{conn: conn}
}

// Read returns message bytes with a newline appended per message
func (l *Link) Read(p []byte) (int, error) {
	l.rmu.Lock()
	defer l.rmu.Unlock()

	for len(l.pending) == 0 {
		_, msg, err := l.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		msg = bytes.TrimRight(msg, "\r\n")
		l.pending = append(msg, '\n')
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write sends every complete line in p as its own message. Bytes after the
// last newline are held until the line is completed.
func (l *Link) Write(p []byte) (int, error) {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(l.partial[:i], "\r")
		if err := l.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return 0, err
		}
		l.partial = l.partial[i+1:]
	}
	return len(p), nil
}

// Close sends a close frame and closes the connection
func (l *Link) Close() error {
	l.wmu.Lock()
	_ = l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.wmu.Unlock()
	return l.conn.Close()
}
