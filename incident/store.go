// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package incident

import (
	"sync"
	"time"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

// GraceWindow is how long live data is trusted immediately after a
// resume, before which the backend may still be serving stale failure
// rows. Mirrors the backend's own grace window.
const GraceWindow = 30 * time.Second

// Phase is the incident lifecycle phase derived from store state.
type Phase string

const (
	PhaseHealthy Phase = "healthy"
	PhaseHalted  Phase = "halted"
	// PhaseSolving is the halted sub-state entered once any
	// remediation progress (step or solution) has been observed.
	PhaseSolving Phase = "solving"
	PhaseGrace   Phase = "grace"
)

// Store tracks the incident state for one monitored unit. It is
// single-writer (the session's event loop) with any number of readers
// (presentation); every update is an atomic replace under the mutex,
// never a partial mutation.
//
// Invariant: the frozen snapshot is non-nil exactly when halted is
// true. The grace deadline, once passed, never resurrects without a
// new halt/resume cycle.
type Store struct {
	clk clock.Clock

	mu           sync.Mutex
	live         *stream.Telemetry
	halted       bool
	frozen       *stream.Telemetry
	solving      bool
	graceUntil   time.Time
	solution     *stream.Solution
	lastAlert    *stream.Alert
	resumeFlawed bool
}

// NewStore creates an empty store in the healthy phase.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{clk: clk}
}

// ApplyTelemetry replaces the live tick unconditionally. The frozen
// snapshot is never touched here: while halted, live ticks accumulate
// alongside it, and during grace they are trusted and displayed
// immediately.
func (s *Store) ApplyTelemetry(tick *stream.Telemetry) {
	copied := *tick
	s.mu.Lock()
	s.live = &copied
	s.mu.Unlock()
}

// ApplyAlert records the alert and, when it qualifies (critical
// severity or error flag), enters the halted phase. The frozen
// snapshot is the alert's embedded telemetry when present, else the
// most recent live tick. A qualifying alert arriving while already
// halted keeps the original snapshot: the snapshot belongs to the
// moment the incident began.
func (s *Store) ApplyAlert(alert *stream.Alert) {
	copied := *alert
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAlert = &copied
	if !copied.Qualifying() || s.halted {
		return
	}

	s.halted = true
	s.solving = false
	s.graceUntil = time.Time{}
	s.frozen = s.snapshotForAlertLocked(&copied)
}

// snapshotForAlertLocked builds the frozen snapshot at halt time.
func (s *Store) snapshotForAlertLocked(alert *stream.Alert) *stream.Telemetry {
	if alert.RUL != nil {
		return &stream.Telemetry{
			UnitID:       alert.UnitID,
			Cycle:        alert.Cycle.Int(),
			RUL:          *alert.RUL,
			Vibration:    alert.Vibration,
			Status:       stream.StatusCritical,
			IsError:      true,
			Timestamp:    alert.Timestamp,
			SystemHalted: true,
		}
	}
	if s.live != nil {
		frozen := *s.live
		frozen.SystemHalted = true
		return &frozen
	}
	// No telemetry seen yet: freeze a minimal critical snapshot so
	// the halted invariant holds.
	return &stream.Telemetry{
		UnitID:       alert.UnitID,
		Status:       stream.StatusCritical,
		IsError:      true,
		Timestamp:    alert.Timestamp,
		SystemHalted: true,
	}
}

// NoteProgress marks that remediation progress (a step or solution)
// has been observed, entering the solving sub-state while halted.
func (s *Store) NoteProgress() {
	s.mu.Lock()
	s.solving = true
	s.mu.Unlock()
}

// SetSolution replaces the held solution wholesale.
func (s *Store) SetSolution(solution *stream.Solution) {
	copied := *solution
	s.mu.Lock()
	s.solution = &copied
	s.solving = true
	s.mu.Unlock()
}

// Resume clears the halted state locally and opens the grace window.
// The caller (session) notifies the backend separately; local state is
// the source of truth for what the operator sees, so this transition
// happens regardless of whether that notification succeeds.
//
// The timeline and solution stay visible: only a system_resumed frame
// from the backend clears them.
func (s *Store) Resume() {
	s.mu.Lock()
	s.halted = false
	s.frozen = nil
	s.solving = false
	s.resumeFlawed = false
	s.graceUntil = s.clk.Now().Add(GraceWindow)
	s.mu.Unlock()
}

// FlagResumeNotifyFailure records that the backend resume notification
// failed after the local transition: the backend's authoritative pause
// may now disagree with what the operator sees, and presentation
// should surface that until a retry succeeds or the backend confirms
// via system_resumed.
func (s *Store) FlagResumeNotifyFailure() {
	s.mu.Lock()
	s.resumeFlawed = true
	s.mu.Unlock()
}

// FullReset snaps everything back to the clean healthy baseline: live
// tick, halt state, frozen snapshot, solution, alert, and grace window
// all clear, forcing the status fallback to IDLE until the next live
// tick. Driven by the system_resumed frame.
func (s *Store) FullReset() {
	s.mu.Lock()
	s.live = nil
	s.halted = false
	s.frozen = nil
	s.solving = false
	s.graceUntil = time.Time{}
	s.solution = nil
	s.lastAlert = nil
	s.resumeFlawed = false
	s.mu.Unlock()
}

// Status derives the single value presentation renders: the live
// tick's status if one is present, else the last solution's status,
// else IDLE. A live signal always wins over a stale prior run result.
func (s *Store) Status() stream.UnitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != nil {
		return s.live.Status
	}
	if s.solution != nil {
		return s.solution.Status
	}
	return stream.StatusIdle
}

// Phase returns the current lifecycle phase. Grace expires lazily:
// once the deadline passes, the phase reads healthy and the deadline
// is cleared so it can never resurrect.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *Store) phaseLocked() Phase {
	if s.halted {
		if s.solving {
			return PhaseSolving
		}
		return PhaseHalted
	}
	if !s.graceUntil.IsZero() {
		if s.clk.Now().Before(s.graceUntil) {
			return PhaseGrace
		}
		s.graceUntil = time.Time{}
	}
	return PhaseHealthy
}

// View is a consistent read-only snapshot of the store for
// presentation.
type View struct {
	Live     *stream.Telemetry
	Halted   bool
	Frozen   *stream.Telemetry
	Solution *stream.Solution
	Alert    *stream.Alert

	// GraceUntil is the grace deadline, zero outside the window.
	GraceUntil time.Time

	Phase  Phase
	Status stream.UnitStatus

	// ResumeNotifyFailed is the inconsistency-risk flag from a failed
	// backend resume notification.
	ResumeNotifyFailed bool
}

// View returns a copied snapshot; mutating it never affects the store.
// Phase and the rest of the fields come from one critical section, so
// the snapshot is internally consistent even across a grace expiry.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	// phaseLocked may clear an expired grace deadline; read it first so
	// GraceUntil matches the phase.
	phase := s.phaseLocked()
	view := View{
		Phase:              phase,
		Halted:             s.halted,
		GraceUntil:         s.graceUntil,
		ResumeNotifyFailed: s.resumeFlawed,
		Status:             stream.StatusIdle,
	}
	if s.live != nil {
		live := *s.live
		view.Live = &live
		view.Status = live.Status
	} else if s.solution != nil {
		view.Status = s.solution.Status
	}
	if s.frozen != nil {
		frozen := *s.frozen
		view.Frozen = &frozen
	}
	if s.solution != nil {
		solution := *s.solution
		view.Solution = &solution
	}
	if s.lastAlert != nil {
		alert := *s.lastAlert
		view.Alert = &alert
	}
	return view
}
