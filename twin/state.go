// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"sync"
	"time"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

// GraceWindow is how long after a resume the server keeps serving
// healthy telemetry even when the source still returns a failure row.
// Clients mirror this window on their side.
const GraceWindow = 30 * time.Second

// State is the server-wide halt state. One instance per server, shared
// by the pump, the orchestrator, the chat supervisor, and the HTTP
// handlers.
//
// Invariant: the frozen snapshot and the failure timestamp are set
// exactly when halted is true.
type State struct {
	clk clock.Clock

	mu          sync.Mutex
	halted      bool
	frozen      *stream.Telemetry
	failureTime time.Time
	graceUntil  time.Time
	override    bool
	lastLive    *stream.Telemetry
	lastRun     *stream.Solution
	alerted     map[string]struct{}
}

// NewState creates a healthy State.
func NewState(clk clock.Clock) *State {
	if clk == nil {
		clk = clock.Real()
	}
	return &State{clk: clk, alerted: make(map[string]struct{})}
}

// Halt freezes the system at the given snapshot and records the
// failure time. A halt while already halted keeps the original
// snapshot.
func (s *State) Halt(frozen *stream.Telemetry) {
	copied := *frozen
	copied.SystemHalted = true

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return
	}
	s.halted = true
	s.frozen = &copied
	s.failureTime = s.clk.Now()
	s.graceUntil = time.Time{}
}

// Resume clears the halt, opens the grace window, clears the alert
// history so the next demo run can fire again, and returns the
// downtime in seconds.
func (s *State) Resume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var downtime float64
	if !s.failureTime.IsZero() {
		downtime = roundTenth(s.clk.Now().Sub(s.failureTime).Seconds())
	}
	s.halted = false
	s.frozen = nil
	s.failureTime = time.Time{}
	s.graceUntil = s.clk.Now().Add(GraceWindow)
	s.alerted = make(map[string]struct{})
	return downtime
}

// Halted reports whether the system is halted.
func (s *State) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// FrozenTick returns a copy of the frozen snapshot with the running
// downtime counter filled in, or nil when not halted.
func (s *State) FrozenTick() *stream.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.halted || s.frozen == nil {
		return nil
	}
	tick := *s.frozen
	tick.DowntimeSeconds = roundTenth(s.clk.Now().Sub(s.failureTime).Seconds())
	return &tick
}

// FrozenSnapshot returns a copy of the frozen snapshot without
// touching the downtime counter, or nil when not halted.
func (s *State) FrozenSnapshot() *stream.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen == nil {
		return nil
	}
	snapshot := *s.frozen
	return &snapshot
}

// InGrace reports whether the post-resume grace window is open.
func (s *State) InGrace() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.graceUntil.IsZero() && s.clk.Now().Before(s.graceUntil)
}

// Downtime returns the seconds since the failure, or 0 when not
// halted.
func (s *State) Downtime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.halted || s.failureTime.IsZero() {
		return 0
	}
	return roundTenth(s.clk.Now().Sub(s.failureTime).Seconds())
}

// FailureTime returns the failure timestamp, zero when none is
// recorded.
func (s *State) FailureTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureTime
}

// SetOverride arms the one-shot human override: the next decision is
// flipped.
func (s *State) SetOverride() {
	s.mu.Lock()
	s.override = true
	s.mu.Unlock()
}

// ConsumeOverride reports whether the override was armed and disarms
// it. The flip applies to exactly one run.
func (s *State) ConsumeOverride() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := s.override
	s.override = false
	return armed
}

// OverrideArmed reports the override flag without consuming it.
func (s *State) OverrideArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override
}

// RecordLive remembers the latest live tick served to any client, for
// chat context.
func (s *State) RecordLive(tick *stream.Telemetry) {
	copied := *tick
	s.mu.Lock()
	s.lastLive = &copied
	s.mu.Unlock()
}

// LastLive returns a copy of the latest live tick, or nil.
func (s *State) LastLive() *stream.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastLive == nil {
		return nil
	}
	tick := *s.lastLive
	return &tick
}

// RecordRun remembers the latest completed orchestration result.
func (s *State) RecordRun(solution *stream.Solution) {
	copied := *solution
	s.mu.Lock()
	s.lastRun = &copied
	s.mu.Unlock()
}

// LastRun returns a copy of the latest orchestration result, or nil.
func (s *State) LastRun() *stream.Solution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	solution := *s.lastRun
	return &solution
}

// MarkAlerted records that the unit has had an alert fired and reports
// whether it was already marked. Cleared on resume.
func (s *State) MarkAlerted(unitID string) (already bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerted[unitID]; ok {
		return true
	}
	s.alerted[unitID] = struct{}{}
	return false
}

func roundTenth(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
