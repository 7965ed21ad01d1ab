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
	"fmt"

	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/tag"
)

// Transport errors
var (
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportClosed  = errors.New("transport closed")
	ErrNoResponse       = errors.New("no response from bridge")
	ErrUnexpectedReply  = errors.New("unexpected response")
)

// Operation errors
var (
	// ErrLinkTimeout is returned when no tag was presented or no response
	// arrived within the transport's window. Retrying the whole operation
	// may succeed.
	ErrLinkTimeout = errors.New("link timeout")
	// ErrCancelled is returned when an overwrite was declined.
	ErrCancelled = errors.New("operation cancelled")
	// ErrVerifyMismatch marks a write whose read-back differed. The write
	// itself is still reported as a success.
	ErrVerifyMismatch = errors.New("verify mismatch")
	// ErrDevice wraps an ERROR response from the bridge.
	ErrDevice = errors.New("bridge reported error")
	// ErrNFCUnsupported is returned by a phone bridge without NFC.
	ErrNFCUnsupported = errors.New("bridge has no NFC support")
	// ErrPageWrite matches any PageWriteError.
	ErrPageWrite = errors.New("page write failed")

	ErrTooLarge         = tag.ErrTooLarge
	ErrUnknownGeometry  = tag.ErrUnknownGeometry
	ErrMalformedTLV     = ndef.ErrMalformedTLV
	ErrDecode           = ndef.ErrDecode
	ErrInvalidParameter = errors.New("invalid parameter")
)

// PageWriteError reports the page at which a write was aborted. Pages
// before it may already hold new data.
type PageWriteError struct {
	Page int
}

func (e *PageWriteError) Error() string {
	return fmt.Sprintf("page write failed at page %d", e.Page)
}

func (*PageWriteError) Is(target error) bool {
	return target == ErrPageWrite
}

// ErrorType classifies errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors will not succeed on retry
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry
	ErrorTypeTransient
	// ErrorTypeTimeout errors are waits that elapsed
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError wraps a link level failure with retry metadata
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error of the given type
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable link timeout error
func NewTimeoutError(op, port string) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrLinkTimeout,
		Type:      ErrorTypeTimeout,
		Retryable: true,
	}
}

// IsRetryable reports whether running the whole operation again may succeed
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// a declined overwrite stays declined
	if errors.Is(err, ErrCancelled) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrLinkTimeout),
		errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrNoResponse),
		errors.Is(err, ErrVerifyMismatch):
		return true
	default:
		return false
	}
}

// GetErrorType classifies err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrLinkTimeout), errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case IsRetryable(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

func asPageWrite(err error) (*PageWriteError, bool) {
	var pwe *PageWriteError
	if errors.As(err, &pwe) {
		return pwe, true
	}
	return nil, false
}
