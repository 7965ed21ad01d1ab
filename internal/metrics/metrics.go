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

// Package metrics exposes prometheus instruments for tag operations.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tomotap",
			Name:      "operations_total",
			Help:      "Finished tag operations by outcome status.",
		},
		[]string{"op", "status"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tomotap",
			Name:      "operation_duration_seconds",
			Help:      "Tag operation duration in seconds, including the wait for a tap.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"op"},
	)
	writeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tomotap",
			Name:      "write_bytes",
			Help:      "Encoded TLV length of successful writes.",
			Buckets:   []float64{16, 32, 64, 144, 256, 504, 888},
		},
	)
	bridgeLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tomotap",
			Subsystem: "bridge",
			Name:      "lines_total",
			Help:      "Protocol lines exchanged with a bridge.",
		},
		[]string{"transport", "direction"},
	)
)

// Register adds the instruments to the default registry. It is safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(operations, operationDuration, writeBytes, bridgeLines)
	})
}

// ObserveOperation records one finished operation.
func ObserveOperation(op, status string, d time.Duration, bytes int) {
	Register()
	operations.WithLabelValues(op, status).Inc()
	operationDuration.WithLabelValues(op).Observe(d.Seconds())
	if op == "write" && (status == "verified" || status == "unverified") {
		writeBytes.Observe(float64(bytes))
	}
}

// ObserveLine counts a protocol line. direction is "tx" or "rx".
func ObserveLine(transport, direction string) {
	Register()
	bridgeLines.WithLabelValues(transport, direction).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
