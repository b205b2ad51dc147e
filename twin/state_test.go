// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"testing"
	"time"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

func criticalSnapshot(unitID string) *stream.Telemetry {
	return &stream.Telemetry{
		UnitID:    unitID,
		Cycle:     287,
		RUL:       0,
		Vibration: 0.41,
		Status:    stream.StatusCritical,
		IsError:   true,
	}
}

func TestHaltFreezesSnapshotAndTracksDowntime(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock := clock.Fake(start)
	state := NewState(fakeClock)

	state.Halt(criticalSnapshot("ENGINE-001"))
	if !state.Halted() {
		t.Fatal("not halted after Halt")
	}

	fakeClock.Advance(74200 * time.Millisecond)
	tick := state.FrozenTick()
	if tick == nil {
		t.Fatal("no frozen tick while halted")
	}
	if !tick.SystemHalted {
		t.Fatal("frozen tick not marked halted")
	}
	if tick.DowntimeSeconds != 74.2 {
		t.Fatalf("downtime = %v, want 74.2", tick.DowntimeSeconds)
	}
	if got := state.Downtime(); got != 74.2 {
		t.Fatalf("Downtime() = %v, want 74.2", got)
	}
}

func TestSecondHaltKeepsOriginalSnapshot(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(0, 0))
	state := NewState(fakeClock)

	state.Halt(criticalSnapshot("ENGINE-001"))
	state.Halt(criticalSnapshot("ENGINE-002"))

	if got := state.FrozenSnapshot().UnitID; got != "ENGINE-001" {
		t.Fatalf("snapshot unit = %q, want the original incident's", got)
	}
}

func TestResumeOpensGraceAndReturnsDowntime(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1000, 0))
	state := NewState(fakeClock)

	state.Halt(criticalSnapshot("ENGINE-001"))
	fakeClock.Advance(45 * time.Second)

	downtime := state.Resume()
	if downtime != 45.0 {
		t.Fatalf("downtime = %v, want 45.0", downtime)
	}
	if state.Halted() || state.FrozenTick() != nil {
		t.Fatal("resume did not clear halt state")
	}
	if !state.InGrace() {
		t.Fatal("grace window not open after resume")
	}

	fakeClock.Advance(GraceWindow - time.Second)
	if !state.InGrace() {
		t.Fatal("grace expired early")
	}
	fakeClock.Advance(2 * time.Second)
	if state.InGrace() {
		t.Fatal("grace did not expire")
	}
}

func TestResumeClearsAlertHistory(t *testing.T) {
	state := NewState(clock.Fake(time.Unix(0, 0)))

	if already := state.MarkAlerted("ENGINE-001"); already {
		t.Fatal("fresh unit reported as already alerted")
	}
	if already := state.MarkAlerted("ENGINE-001"); !already {
		t.Fatal("second mark not reported as already alerted")
	}

	state.Resume()
	if already := state.MarkAlerted("ENGINE-001"); already {
		t.Fatal("alert history survived resume")
	}
}

func TestOverrideIsOneShot(t *testing.T) {
	state := NewState(clock.Fake(time.Unix(0, 0)))

	if state.ConsumeOverride() {
		t.Fatal("override armed without SetOverride")
	}
	state.SetOverride()
	if !state.OverrideArmed() {
		t.Fatal("override not armed")
	}
	if !state.ConsumeOverride() {
		t.Fatal("armed override not consumed")
	}
	if state.ConsumeOverride() {
		t.Fatal("override survived consumption")
	}
}

func TestDowntimeZeroWhenHealthy(t *testing.T) {
	state := NewState(clock.Fake(time.Unix(0, 0)))
	if got := state.Downtime(); got != 0 {
		t.Fatalf("downtime = %v on a healthy system", got)
	}
	if state.FrozenTick() != nil {
		t.Fatal("frozen tick on a healthy system")
	}
}
