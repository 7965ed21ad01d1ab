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

package tomotap

import (
	"errors"
	"time"

	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/protocol"
	"github.com/tomotap/tomotap/tag"
)

// Op names a user-requested operation.
type Op string

const (
	OpWrite Op = "write"
	OpRead  Op = "read"
	OpErase Op = "erase"
	OpLock  Op = "lock"
	OpInfo  Op = "info"
	OpPing  Op = "ping"
)

// Status is the terminal status of an operation.
type Status string

const (
	// StatusVerified is a write whose read-back matched.
	StatusVerified Status = "verified"
	// StatusUnverified is a write that completed but could not be verified.
	StatusUnverified Status = "unverified"
	// StatusOK is success for operations without verification.
	StatusOK Status = "ok"
	// StatusFailed ends every failed operation.
	StatusFailed Status = "failed"
)

// Reason explains a failure.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonTimeout         Reason = "timeout"
	ReasonTooLarge        Reason = "too_large"
	ReasonUnknownGeometry Reason = "unknown_geometry"
	ReasonCancelled       Reason = "cancelled"
	ReasonPageWrite       Reason = "page_write"
	ReasonDecode          Reason = "decode"
	ReasonDevice          Reason = "device"
	ReasonTransport       Reason = "transport"
)

// Outcome is the typed result every operation ends in.
type Outcome struct {
	Err     error
	Records []ndef.Record
	// Raw is the TLV read back by a read operation.
	Raw      []byte
	Info     protocol.TagInfo
	Geometry tag.Geometry
	Op       Op
	Status   Status
	Reason   Reason
	UID      string
	Kind     ndef.Kind
	// Page is the failing page for ReasonPageWrite.
	Page     int
	Bytes    int
	Attempts int
	Duration time.Duration
	// Trace lists the states visited, ending in StateDone.
	Trace []State
}

// OK reports whether the operation succeeded. Unverified writes succeed
// with lower confidence.
func (o Outcome) OK() bool {
	return o.Status != StatusFailed
}

// Verified reports whether a write was read back successfully.
func (o Outcome) Verified() bool {
	return o.Status == StatusVerified
}

// reasonFor maps an error to a failure reason.
func reasonFor(err error) Reason {
	var pwe *PageWriteError
	switch {
	case err == nil:
		return ReasonNone
	case errors.As(err, &pwe):
		return ReasonPageWrite
	case errors.Is(err, ErrCancelled):
		return ReasonCancelled
	case errors.Is(err, ErrTooLarge):
		return ReasonTooLarge
	case errors.Is(err, ErrUnknownGeometry):
		return ReasonUnknownGeometry
	case errors.Is(err, ErrLinkTimeout):
		return ReasonTimeout
	case errors.Is(err, ndef.ErrMalformedTLV), errors.Is(err, ndef.ErrDecode):
		return ReasonDecode
	case errors.Is(err, ErrDevice), errors.Is(err, ErrNFCUnsupported):
		return ReasonDevice
	default:
		return ReasonTransport
	}
}
