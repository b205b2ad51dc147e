// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/lib/netutil"
	"github.com/gantry-systems/gantry/stream"
)

// Server is the twin backend: websocket telemetry streaming plus the
// REST control plane.
type Server struct {
	config       Config
	logger       *slog.Logger
	clk          clock.Clock
	state        *State
	hub          *Hub
	pump         *Pump
	orchestrator *Orchestrator
	supervisor   *Supervisor
	source       TelemetrySource
	metrics      *Metrics
	upgrader     websocket.Upgrader
	router       *mux.Router

	// background context for stream runs kicked off by handlers; set
	// by Start, Background until then.
	runCtx context.Context
}

// NewServer wires a Server. A nil source gets the simulator; a nil
// policy gets the threshold policy.
func NewServer(config Config, source TelemetrySource, policy DecisionPolicy, clk clock.Clock, logger *slog.Logger) *Server {
	config.applyDefaults()
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		source = NewSimulator(clk, config.Units, config.InitialRUL)
	}

	metrics := NewMetrics()
	state := NewState(clk)
	hub := NewHub(logger, metrics)
	pump := NewPump(state, source, hub, clk, logger)
	pump.LiveInterval = config.LiveInterval
	pump.FrozenInterval = config.FrozenInterval
	orchestrator := NewOrchestrator(state, source, policy, hub, clk, logger)
	orchestrator.StepPause = config.StepPause

	s := &Server{
		config:       config,
		logger:       logger.With("component", "server"),
		clk:          clk,
		state:        state,
		hub:          hub,
		pump:         pump,
		orchestrator: orchestrator,
		supervisor:   NewSupervisor(state, logger),
		source:       source,
		metrics:      metrics,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		runCtx:       context.Background(),
	}
	s.router = s.buildRouter()
	return s
}

// State exposes the halt state, for tests and embedding servers.
func (s *Server) State() *State { return s.state }

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/units", s.handleUnits).Methods(http.MethodGet)
	router.HandleFunc("/orchestrate/{unit_id}", s.handleOrchestrate).Methods(http.MethodGet)
	router.HandleFunc("/system-resume", s.handleResume).Methods(http.MethodPost)
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/api/broadcast-alert", s.handleBroadcastAlert).Methods(http.MethodPost)
	router.HandleFunc("/ws/telemetry/{unit_id}", s.handleTelemetryWS).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	return router
}

// Start serves HTTP until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	server := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.ListenAddr)
		errs <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errs:
		return err
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "Gantry Digital Twin API",
		"status":  "online",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"halted":           s.state.Halted(),
		"downtime_seconds": s.state.Downtime(),
	}
	if failedAt := s.state.FailureTime(); !failedAt.IsZero() {
		status["failure_timestamp"] = failedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	units, err := s.source.Units(r.Context())
	if err != nil {
		s.logger.Error("unit listing failed", "error", err)
		units = nil
	}
	if units == nil {
		units = []UnitListing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	unitID := mux.Vars(r)["unit_id"]
	s.metrics.RunsTotal.Inc()

	solution, err := s.orchestrator.Run(r.Context(), unitID)
	if err != nil {
		s.logger.Error("orchestration failed", "unit_id", unitID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, solution)
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	downtime := s.state.Resume()
	s.logger.Info("system resumed", "downtime_seconds", downtime)

	s.hub.Broadcast(stream.FrameSystemResumed, &stream.SystemResumed{
		DowntimeSeconds: downtime,
		Timestamp:       s.clk.Now().UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "resumed",
		"downtime_seconds": downtime,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Message string `json:"message"`
		UnitID  string `json:"unit_id"`
	}
	if err := netutil.DecodeResponse(r.Body, &request); err != nil || request.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "message is required"})
		return
	}
	if request.UnitID == "" {
		request.UnitID = "ENGINE-001"
	}
	s.metrics.ChatTotal.Inc()
	writeJSON(w, http.StatusOK, s.supervisor.Reply(request.Message, request.UnitID))
}

func (s *Server) handleBroadcastAlert(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UnitID    string       `json:"unit_id"`
		RUL       float64      `json:"rul"`
		Vibration float64      `json:"vibration"`
		Cycle     stream.Cycle `json:"cycle"`
		Message   string       `json:"message"`
	}
	if err := netutil.DecodeResponse(r.Body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid alert payload"})
		return
	}
	if payload.UnitID == "" {
		payload.UnitID = "ENGINE-001"
	}
	// One incident per unit until resume: a repeat injection for a unit
	// that already fired is acknowledged without re-broadcasting.
	if s.state.MarkAlerted(payload.UnitID) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "alert_already_active",
			"clients": s.hub.ClientCount(),
		})
		return
	}
	if payload.Message == "" {
		payload.Message = fmt.Sprintf("CRITICAL: %s failure triggered. RUL=%g | Cycle: %s | Vibration: %g g",
			payload.UnitID, payload.RUL, payload.Cycle, payload.Vibration)
	}

	rul := payload.RUL
	alert := &stream.Alert{
		UnitID:    payload.UnitID,
		Message:   payload.Message,
		Severity:  stream.SeverityCritical,
		IsError:   true,
		RUL:       &rul,
		Vibration: payload.Vibration,
		Cycle:     payload.Cycle,
		Timestamp: s.clk.Now().UTC().Format(time.RFC3339),
	}
	s.hub.Broadcast(stream.FrameAlert, alert)
	s.metrics.IncidentsTotal.Inc()

	s.state.Halt(&stream.Telemetry{
		UnitID:    payload.UnitID,
		Cycle:     payload.Cycle.Int(),
		RUL:       payload.RUL,
		Vibration: payload.Vibration,
		SensorS11: 50.0,
		Status:    stream.StatusCritical,
		IsError:   true,
		Timestamp: s.clk.Now().UTC().Format(time.RFC3339),
	})
	s.logger.Info("system halted", "unit_id", payload.UnitID)

	s.metrics.RunsTotal.Inc()
	go s.orchestrator.StreamRun(s.runCtx, payload.UnitID)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "alert_broadcast",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	unitID := mux.Vars(r)["unit_id"]
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.Register(conn)
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	// The pump owns the write side; this reader exists to notice the
	// client going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("stream client connected", "unit_id", unitID)
	s.pump.Serve(ctx, conn, unitID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
