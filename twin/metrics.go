// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus instruments on a private
// registry so multiple servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	FramesBroadcast prometheus.Counter
	ActiveClients   prometheus.Gauge
	IncidentsTotal  prometheus.Counter
	RunsTotal       prometheus.Counter
	ChatTotal       prometheus.Counter
}

// NewMetrics creates and registers the server's instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_frames_broadcast_total",
			Help: "Frames delivered to stream clients.",
		}),
		ActiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gantry_stream_clients",
			Help: "Currently connected stream clients.",
		}),
		IncidentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_incidents_total",
			Help: "Failure alerts broadcast (system halts).",
		}),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_orchestration_runs_total",
			Help: "Orchestration runs started, streamed and synchronous.",
		}),
		ChatTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_chat_messages_total",
			Help: "Supervisor chat messages handled.",
		}),
	}
	m.registry.MustRegister(m.FramesBroadcast, m.ActiveClients, m.IncidentsTotal, m.RunsTotal, m.ChatTotal)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
