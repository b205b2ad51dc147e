// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package incident

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

// ChatReply is the structured reply from the chat collaborator.
type ChatReply struct {
	Reply          string `json:"reply"`
	OverrideActive bool   `json:"override_active"`
	UnitID         string `json:"unit_id,omitempty"`
}

// ControlAPI is the REST surface the session consumes. Each operation
// mutates a disjoint slice of server state, so calls may be in flight
// concurrently. The production implementation is twinclient.Client.
type ControlAPI interface {
	// Orchestrate starts a remediation run for the unit and returns
	// the initial solution snapshot synchronously.
	Orchestrate(ctx context.Context, unitID string) (*stream.Solution, error)

	// SystemResume clears the backend's halt state and starts its
	// grace window.
	SystemResume(ctx context.Context) error

	// Chat sends an operator message and returns the structured reply
	// with the override flag.
	Chat(ctx context.Context, unitID, message string) (*ChatReply, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// UnitID is the monitored unit this session tracks. Required.
	UnitID string

	// API is the REST collaborator surface. Required.
	API ControlAPI

	// Clock drives the grace window. Defaults to clock.Real().
	Clock clock.Clock

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Session is the consuming state machine for one monitored unit. It
// reduces stream events into the incident store and the orchestration
// timeline, and exposes the operator-initiated operations (start a
// run, resume, chat). One session per unit per client; nothing is
// shared across units.
//
// The session owns no transport: feed it events from a
// stream.Manager's channel via Run, or hand events to Handle directly.
type Session struct {
	unitID   string
	api      ControlAPI
	logger   *slog.Logger
	store    *Store
	timeline *Timeline

	connected atomic.Bool
}

// NewSession creates a session with an empty store and timeline.
func NewSession(config SessionConfig) (*Session, error) {
	if config.UnitID == "" {
		return nil, fmt.Errorf("incident: UnitID is required")
	}
	if config.API == nil {
		return nil, fmt.Errorf("incident: API is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		unitID:   config.UnitID,
		api:      config.API,
		logger:   logger.With("unit_id", config.UnitID),
		store:    NewStore(clk),
		timeline: NewTimeline(),
	}, nil
}

// Store returns the incident state store for presentation reads.
func (s *Session) Store() *Store { return s.store }

// Timeline returns the orchestration timeline for presentation reads.
func (s *Session) Timeline() *Timeline { return s.timeline }

// UnitID returns the monitored unit.
func (s *Session) UnitID() string { return s.unitID }

// Connected reports whether the stream is currently open.
func (s *Session) Connected() bool { return s.connected.Load() }

// Run consumes connection events until the context is cancelled.
// Events are processed one at a time in arrival order; the session
// never interleaves two frames' state updates.
func (s *Session) Run(ctx context.Context, events <-chan stream.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			s.Handle(event)
		}
	}
}

// Handle reduces a single connection event. Exposed so tests (and
// synchronous embedders) can drive the state machine without a
// channel.
func (s *Session) Handle(event stream.Event) {
	switch event.Kind {
	case stream.KindConnected:
		s.connected.Store(true)
	case stream.KindDisconnected:
		s.connected.Store(false)
	case stream.KindFrame:
		s.route(event.Data)
	}
}

// route classifies a raw frame and dispatches it to exactly one
// handler. Malformed frames and unknown types are dropped without
// error: the stream tolerates garbage without tearing anything down.
func (s *Session) route(data []byte) {
	frame, ok := stream.Decode(data)
	if !ok {
		return
	}

	switch frame.Type {
	case stream.FrameTelemetry:
		s.store.ApplyTelemetry(frame.Telemetry)

	case stream.FrameAlert:
		s.store.ApplyAlert(frame.Alert)
		if frame.Alert.Qualifying() {
			s.logger.Warn("incident entered",
				"severity", frame.Alert.Severity,
				"message", frame.Alert.Message,
			)
		}

	case stream.FrameStep:
		s.store.NoteProgress()
		s.timeline.Apply(*frame.Step)

	case stream.FrameSolution:
		s.store.SetSolution(&frame.Solution.Decision)
		s.timeline.ApplyList(frame.Solution.RunID, stepsFromLogs(frame.Solution.Decision.Steps))

	case stream.FrameSystemResumed:
		s.store.FullReset()
		s.timeline.Reset()
		s.logger.Info("system resumed", "downtime_seconds", frame.Resumed.DowntimeSeconds)
	}
}

// stepsFromLogs lifts a solution's summarized step log into timeline
// steps.
func stepsFromLogs(logs []stream.StepLog) []stream.Step {
	steps := make([]stream.Step, 0, len(logs))
	for _, log := range logs {
		steps = append(steps, stream.Step{
			ID:    log.Step,
			Agent: log.Agent,
			Event: log.Event,
		})
	}
	return steps
}

// StartRun starts a new orchestration run and folds the synchronous
// result into the store and timeline. Safe under rapid repeated
// triggering: the timeline's run-boundary detection absorbs a second
// trigger while a run is active. A failure is surfaced to the caller
// and leaves stream-derived state untouched.
func (s *Session) StartRun(ctx context.Context) (*stream.Solution, error) {
	solution, err := s.api.Orchestrate(ctx, s.unitID)
	if err != nil {
		return nil, fmt.Errorf("incident: orchestration run for %s: %w", s.unitID, err)
	}
	s.store.SetSolution(solution)
	s.timeline.ApplyList("", stepsFromLogs(solution.Steps))
	return solution, nil
}

// Resume clears the local halt state, opens the grace window, and
// notifies the backend. The local transition happens first and sticks
// even when the notification fails — the operator's view must not hang
// on a flaky network — but a failure is flagged on the store and
// returned so callers can retry or surface the inconsistency risk.
func (s *Session) Resume(ctx context.Context) error {
	s.store.Resume()
	if err := s.api.SystemResume(ctx); err != nil {
		s.store.FlagResumeNotifyFailure()
		s.logger.Warn("resume notification failed, backend may still be paused", "error", err)
		return fmt.Errorf("incident: resume notification: %w", err)
	}
	return nil
}

// SendChat sends an operator message. When the reply carries the
// override flag, the same run-start path as the primary control
// surface is triggered: one code path governs run initiation
// regardless of the initiating actor. A failed override-triggered run
// is logged, not surfaced — the chat reply itself succeeded.
func (s *Session) SendChat(ctx context.Context, message string) (*ChatReply, error) {
	reply, err := s.api.Chat(ctx, s.unitID, message)
	if err != nil {
		return nil, fmt.Errorf("incident: chat: %w", err)
	}
	if reply.OverrideActive {
		s.logger.Info("operator override acknowledged, restarting orchestration")
		if _, err := s.StartRun(ctx); err != nil {
			s.logger.Warn("override-triggered run failed", "error", err)
		}
	}
	return reply, nil
}
