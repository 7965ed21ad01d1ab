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
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tomotap/tomotap/internal/metrics"
	"github.com/tomotap/tomotap/ndef"
	"github.com/tomotap/tomotap/protocol"
	"github.com/tomotap/tomotap/tag"
)

// Decision answers a duplicate prompt.
type Decision int

const (
	// DecisionCancel leaves the existing content in place.
	DecisionCancel Decision = iota
	// DecisionOverwrite replaces the existing content.
	DecisionOverwrite
)

// Decider is asked whether to overwrite a tag that already holds an NDEF
// message. ctx expires when the transport's confirmation window elapses;
// a decision made after that point is ignored and the write is cancelled.
type Decider func(ctx context.Context, uid string) Decision

// AlwaysOverwrite is a Decider that confirms every overwrite.
func AlwaysOverwrite(context.Context, string) Decision { return DecisionOverwrite }

// Recorder receives the outcome of every finished operation.
type Recorder interface {
	Record(Outcome)
}

// Config contains configuration options for the Orchestrator
type Config struct {
	// Retry is the caller policy for WriteWithRetry
	Retry *RetryConfig
	// Decider answers duplicate prompts; nil cancels every overwrite
	Decider Decider
	// Recorder receives every outcome; nil disables recording
	Recorder Recorder
	// VerifyAfterWrite makes WriteWithRetry retry unverified writes
	VerifyAfterWrite bool
	// Thresholds map a TAG_INFO size to a family
	Thresholds tag.Thresholds
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		Retry:            DefaultRetryConfig(),
		VerifyAfterWrite: true,
		Thresholds:       tag.DefaultThresholds(),
	}
}

// Orchestrator drives tag operations over a Transport. It holds no state
// between operations; each call builds and discards its own TagSession.
//
// Thread Safety: Orchestrator is NOT thread-safe. The bridge serves one
// command at a time, so callers must serialize operations.
type Orchestrator struct {
	transport Transport
	config    *Config
}

// New creates an orchestrator over transport
func New(transport Transport, opts ...Option) (*Orchestrator, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	o := &Orchestrator{
		transport: transport,
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Transport returns the underlying transport
func (o *Orchestrator) Transport() Transport {
	return o.transport
}

// WriteRequest is an encoded TLV and the geometry of the tag it targets.
type WriteRequest struct {
	TLV      []byte
	Kind     ndef.Kind
	Geometry tag.Geometry
}

// NewWriteRequest encodes rec for a tag of geometry g.
func NewWriteRequest(rec ndef.Record, g tag.Geometry) (WriteRequest, error) {
	tlv, err := ndef.Encode(rec)
	if err != nil {
		return WriteRequest{}, fmt.Errorf("failed to encode %s record: %w", rec.Kind(), err)
	}
	return WriteRequest{TLV: tlv, Kind: rec.Kind(), Geometry: g}, nil
}

// Write runs one write attempt: wait for a tag, check capacity, handle an
// existing message, write pages and verify. A request that does not fit
// req.Geometry fails before the transport is used.
func (o *Orchestrator) Write(ctx context.Context, req WriteRequest) (Outcome, error) {
	s := newSession(OpWrite)
	s.Geometry = req.Geometry
	s.outcome.Kind = req.Kind
	s.outcome.Bytes = len(req.TLV)
	s.outcome.Attempts = 1

	var resp protocol.Response
	var err error
	for !s.Done() {
		switch s.State {
		case StateIdle:
			if len(req.TLV) == 0 {
				s.fail(fmt.Errorf("%w: empty payload", ErrInvalidParameter))
				continue
			}
			if err = req.Geometry.CheckFits(len(req.TLV)); err != nil {
				s.fail(err)
				continue
			}
			s.enter(StateAwaitingTag)

		case StateAwaitingTag:
			resp, err = o.awaitTag(ctx, protocol.WriteRaw(req.TLV))
			if err != nil {
				s.fail(err)
				continue
			}
			s.enter(StateCapacityCheck)

		case StateCapacityCheck:
			// the bridge checks the TLV against the tag it detected
			if resp.Failed() {
				s.fail(responseError(resp))
				continue
			}
			s.enter(StateDuplicateCheck)

		case StateDuplicateCheck:
			if resp.Kind == protocol.RespDuplicate {
				s.UID = resp.UID
				resp, err = o.resolveDuplicate(ctx, resp.UID)
				if err != nil {
					s.fail(err)
					continue
				}
			}
			if resp.Failed() {
				s.fail(responseError(resp))
				continue
			}
			s.enter(StateWriting)

		case StateWriting:
			for resp.Kind == protocol.RespReadyToWrite || resp.Kind == protocol.RespWriteComplete {
				if resp, err = o.transport.Next(ctx); err != nil {
					break
				}
			}
			if err != nil {
				s.fail(err)
				continue
			}
			if resp.Failed() {
				s.fail(responseError(resp))
				continue
			}
			s.enter(StateVerifying)

		case StateVerifying:
			switch resp.Kind {
			case protocol.RespVerifyOK:
				s.UID = resp.UID
				s.succeed(StatusVerified)
			case protocol.RespWriteOK:
				s.UID = resp.UID
				s.succeed(StatusUnverified)
			default:
				s.fail(unexpected(resp))
			}

		default:
			s.fail(fmt.Errorf("invalid state %q", s.State))
		}
	}
	return o.finish(s)
}

// WriteWithRetry runs Write up to Retry.MaxAttempts times. It retries
// retryable failures and, when VerifyAfterWrite is set, unverified writes.
// The returned outcome is the last attempt's with Attempts filled in.
func (o *Orchestrator) WriteWithRetry(ctx context.Context, req WriteRequest) (Outcome, error) {
	var out, written Outcome
	attempts := 0
	err := RetryWithConfig(ctx, o.config.Retry, func() error {
		attempts++
		out, _ = o.Write(ctx, req)
		if out.Status == StatusUnverified {
			written = out
			if o.config.VerifyAfterWrite {
				log.Warn().Str("uid", out.UID).Int("attempt", attempts).Msg("write not verified")
				return ErrVerifyMismatch
			}
		}
		return out.Err
	})

	// a later failed attempt does not undo an earlier unverified write
	if out.Status == StatusFailed && written.OK() && written.Op != "" {
		out = written
	}
	out.Attempts = attempts
	if err != nil && out.Status == StatusFailed {
		return out, out.Err
	}
	return out, nil
}

// Read waits for a tag and decodes its NDEF message. A blank tag yields a
// single ndef.Empty record.
func (o *Orchestrator) Read(ctx context.Context) (Outcome, error) {
	s := newSession(OpRead)
	resp, err := o.tapOperation(ctx, s, protocol.Read())
	if err != nil {
		s.fail(err)
		return o.finish(s)
	}
	if resp.Kind != protocol.RespData {
		s.fail(unexpected(resp))
		return o.finish(s)
	}
	s.UID = resp.UID

	if resp.Empty {
		s.outcome.Records = []ndef.Record{ndef.Empty{}}
		s.outcome.Kind = ndef.KindEmpty
		s.succeed(StatusOK)
		return o.finish(s)
	}

	records, err := ndef.DecodeMessage(resp.Payload)
	if err != nil {
		s.outcome.Raw = resp.Payload
		s.fail(fmt.Errorf("failed to decode tag content: %w", err))
		return o.finish(s)
	}
	s.outcome.Raw = resp.Payload
	s.outcome.Bytes = len(resp.Payload)
	s.outcome.Records = records
	s.outcome.Kind = records[0].Kind()
	s.succeed(StatusOK)
	return o.finish(s)
}

// Erase zeroes the user memory of the next tag. The bridge skips pages it
// cannot write.
func (o *Orchestrator) Erase(ctx context.Context) (Outcome, error) {
	return o.simple(ctx, OpErase, protocol.Erase(), protocol.RespEraseOK)
}

// Lock permanently write-protects the next tag.
//
// WARNING: this cannot be undone. A locked tag can never be written or
// erased again.
func (o *Orchestrator) Lock(ctx context.Context) (Outcome, error) {
	return o.simple(ctx, OpLock, protocol.Lock(), protocol.RespLockOK)
}

// Info reports UID, family, capacity and lock state of the next tag.
func (o *Orchestrator) Info(ctx context.Context) (Outcome, error) {
	s := newSession(OpInfo)
	resp, err := o.tapOperation(ctx, s, protocol.Info())
	if err != nil {
		s.fail(err)
		return o.finish(s)
	}
	if resp.Kind != protocol.RespTagInfo {
		s.fail(unexpected(resp))
		return o.finish(s)
	}
	s.UID = resp.Info.UID
	s.Geometry = o.infoGeometry(resp.Info)
	s.outcome.Info = resp.Info
	s.succeed(StatusOK)
	return o.finish(s)
}

// Ping checks the bridge answers.
func (o *Orchestrator) Ping(ctx context.Context) (Outcome, error) {
	s := newSession(OpPing)
	resp, err := o.transport.Execute(ctx, protocol.Ping())
	switch {
	case err != nil:
		s.fail(err)
	case resp.Kind != protocol.RespPong:
		s.fail(unexpected(resp))
	default:
		s.succeed(StatusOK)
	}
	return o.finish(s)
}

// infoGeometry derives the family from the reported size using the
// configured thresholds, falling back to the reported type.
func (o *Orchestrator) infoGeometry(info protocol.TagInfo) tag.Geometry {
	if info.Size <= 0 {
		return tag.ForFamily(tag.ParseFamily(info.Type))
	}
	g := o.config.Thresholds.ForSize(info.Size)
	if reported := tag.ParseFamily(info.Type); reported != tag.Unknown && reported != g.Family {
		log.Debug().
			Str("reported", reported.String()).
			Str("derived", g.Family.String()).
			Int("size", info.Size).
			Msg("bridge family differs from configured thresholds")
	}
	return g
}

func (o *Orchestrator) simple(ctx context.Context, op Op, cmd protocol.Command, want protocol.ResponseKind) (Outcome, error) {
	s := newSession(op)
	resp, err := o.tapOperation(ctx, s, cmd)
	switch {
	case err != nil:
		s.fail(err)
	case resp.Kind != want:
		s.fail(unexpected(resp))
	default:
		s.UID = resp.UID
		s.succeed(StatusOK)
	}
	return o.finish(s)
}

// tapOperation runs the shared tap, operate, report sequence.
func (o *Orchestrator) tapOperation(ctx context.Context, s *TagSession, cmd protocol.Command) (protocol.Response, error) {
	s.enter(StateAwaitingTag)
	resp, err := o.awaitTag(ctx, cmd)
	if err != nil {
		return resp, err
	}
	if resp.Failed() {
		return resp, responseError(resp)
	}
	return resp, nil
}

// awaitTag sends cmd and returns the first response after TAP_CARD.
func (o *Orchestrator) awaitTag(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	resp, err := o.transport.Execute(ctx, cmd)
	if err != nil {
		return resp, err
	}
	if resp.Kind != protocol.RespTapCard {
		// immediate failures such as ERROR|NFC_UNSUPPORTED
		if resp.Failed() {
			return resp, nil
		}
		return resp, unexpected(resp)
	}

	log.Info().Str("cmd", string(cmd.Kind)).Msg("waiting for tag")
	resp, err = o.transport.Next(ctx)
	if err != nil {
		return resp, fmt.Errorf("waiting for tag: %w", err)
	}
	return resp, nil
}

// resolveDuplicate asks the Decider and answers the bridge.
func (o *Orchestrator) resolveDuplicate(ctx context.Context, uid string) (protocol.Response, error) {
	decision := DecisionCancel
	if o.config.Decider != nil {
		dctx, cancel := ctx, context.CancelFunc(func() {})
		if dl := o.transport.Deadline(); !dl.IsZero() {
			dctx, cancel = context.WithDeadline(ctx, dl)
		}
		decision = o.config.Decider(dctx, uid)
		expired := dctx.Err() != nil
		cancel()

		if ctx.Err() != nil {
			return protocol.Response{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		if expired {
			// the bridge proceeds as cancelled and reports it
			if resp, err := o.transport.Next(ctx); err == nil {
				log.Debug().Str("resp", resp.String()).Msg("bridge ended confirmation window")
			}
			return protocol.Response{}, fmt.Errorf("%w: %w", ErrCancelled, ErrLinkTimeout)
		}
	}

	if decision != DecisionOverwrite {
		resp, err := o.transport.Execute(ctx, protocol.Cancel())
		if err == nil && !resp.Failed() {
			log.Debug().Str("resp", resp.String()).Msg("unexpected reply to cancel")
		}
		return protocol.Response{}, ErrCancelled
	}

	log.Info().Str("uid", uid).Msg("overwriting existing tag content")
	resp, err := o.transport.Execute(ctx, protocol.ConfirmOverwrite())
	if err != nil {
		return resp, fmt.Errorf("failed to confirm overwrite: %w", err)
	}
	return resp, nil
}

func (o *Orchestrator) finish(s *TagSession) (Outcome, error) {
	out := s.Outcome()

	metrics.ObserveOperation(string(out.Op), string(out.Status), out.Duration, out.Bytes)

	ev := log.Info()
	if !out.OK() {
		ev = log.Warn().Err(out.Err).Str("reason", string(out.Reason))
	}
	ev.Str("op", string(out.Op)).
		Str("session", s.ID).
		Str("status", string(out.Status)).
		Str("uid", out.UID).
		Dur("took", out.Duration).
		Msg("operation finished")

	if o.config.Recorder != nil {
		o.config.Recorder.Record(out)
	}
	return out, out.Err
}

// responseError maps a WRITE_FAIL or ERROR response to an error kind.
func responseError(resp protocol.Response) error {
	if page, ok := protocol.ParsePageFailure(resp.Reason); ok {
		return &PageWriteError{Page: page}
	}
	switch resp.Reason {
	case protocol.ReasonTooLarge:
		return fmt.Errorf("%w: rejected by bridge", ErrTooLarge)
	case protocol.ReasonCancelled:
		return ErrCancelled
	case protocol.ReasonConfirmTimeout:
		return fmt.Errorf("%w: %w", ErrCancelled, ErrLinkTimeout)
	case protocol.ReasonUnknownGeometry:
		return ErrUnknownGeometry
	case protocol.ReasonNoTag:
		return fmt.Errorf("no tag presented: %w", ErrLinkTimeout)
	case protocol.ReasonMalformedTLV:
		return ErrMalformedTLV
	case protocol.ReasonNFCUnsupported:
		return ErrNFCUnsupported
	}
	return fmt.Errorf("%w: %s", ErrDevice, resp.String())
}

func unexpected(resp protocol.Response) error {
	if resp.Failed() {
		return responseError(resp)
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedReply, resp.String())
}

// compile-time check that the retry wrapper is a Transport
var _ Transport = (*TransportWithRetry)(nil)
