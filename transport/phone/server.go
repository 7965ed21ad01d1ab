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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tomotap/tomotap"
	"github.com/tomotap/tomotap/internal/metrics"
	"github.com/tomotap/tomotap/internal/transport"
)

// mDNS service registration
const (
	ServiceType   = "_tomotap._tcp"
	ServiceDomain = "local."
	WebSocketPath = "/ws"
)

// Config configures the phone bridge server
type Config struct {
	Listen       string
	ServiceName  string
	Timeouts     transport.Timeouts
	HelloTimeout time.Duration
	Advertise    bool
}

// DefaultConfig returns the default server settings
func DefaultConfig() Config {
	return Config{
		Listen:       ":8765",
		Advertise:    true,
		ServiceName:  "tomotap",
		HelloTimeout: 5 * time.Second,
		Timeouts:     transport.DefaultTimeouts(),
	}
}

// Server accepts phone connections. Only one phone is handed out at a time;
// further phones are turned away until the current one is accepted.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	conns    chan *Transport
	closed   chan struct{}
	limiter  *rate.Limiter
	srv      *http.Server
	ln       net.Listener
	mdns     *zeroconf.Server
	once     sync.Once
}

// NewServer creates a server; call Start to listen.
func NewServer(cfg Config) *Server {
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = 5 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tomotap"
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // phones on the local network
			},
		},
		conns:   make(chan *Transport, 1),
		closed:  make(chan struct{}),
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// Handler returns the HTTP routes: the websocket endpoint, /metrics and
// /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Start listens on the configured address and advertises the service
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("phone bridge server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("phone bridge listening")

	if s.cfg.Advertise {
		if err := s.advertise(); err != nil {
			// discovery is optional; phones can still connect by address
			log.Warn().Err(err).Msg("mDNS advertisement failed")
		}
	}
	return nil
}

func (s *Server) advertise() error {
	addr, ok := s.ln.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("unexpected listener address %s", s.ln.Addr())
	}
	mdns, err := zeroconf.Register(
		s.cfg.ServiceName,
		ServiceType,
		ServiceDomain,
		addr.Port,
		[]string{
			"version=1.0",
			"protocol=websocket",
			"path=" + WebSocketPath,
		},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	s.mdns = mdns
	log.Info().Str("service", ServiceType).Int("port", addr.Port).Msg("mDNS service registered")
	return nil
}

// Addr returns the listening address, or "" before Start
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Accept waits for the next phone that completed the HELLO handshake
func (s *Server) Accept(ctx context.Context) (*Transport, error) {
	select {
	case t := <-s.conns:
		return t, nil
	case <-s.closed:
		return nil, tomotap.ErrTransportClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for phone: %w", ctx.Err())
	}
}

// Close stops advertising and listening. Accepted transports stay open.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if s.mdns != nil {
			s.mdns.Shutdown()
		}
		if s.srv != nil {
			err = s.srv.Close()
		}
		for {
			select {
			case t := <-s.conns:
				_ = t.Close()
			default:
				return
			}
		}
	})
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		log.Warn().Str("remote", r.RemoteAddr).Msg("too many connection attempts")
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HelloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("no HELLO from phone")
		_ = conn.Close()
		return
	}
	hello, err := ParseHello(string(msg))
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejecting phone")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"))
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	id := uuid.New().String()
	t := newTransport(NewLink(conn), id, r.RemoteAddr, hello, s.cfg.Timeouts)

	select {
	case <-s.closed:
		_ = t.Close()
	case s.conns <- t:
		log.Info().
			Str("session", id).
			Str("remote", r.RemoteAddr).
			Bool("nfc", hello.NFC).
			Msg("phone connected")
		if !hello.NFC {
			log.Warn().Str("session", id).Msg("phone has no NFC; tag commands will fail")
		}
	default:
		log.Warn().Str("remote", r.RemoteAddr).Msg("phone bridge busy, rejecting connection")
		_ = t.Close()
	}
}
