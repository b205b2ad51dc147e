// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"strings"
	"testing"
	"time"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

func TestChatOverrideArmsState(t *testing.T) {
	state := NewState(clock.Fake(time.Unix(0, 0)))
	supervisor := NewSupervisor(state, nil)

	response := supervisor.Reply("OVERRIDE the decision", "ENGINE-001")
	if !response.OverrideActive {
		t.Fatal("override not reported active")
	}
	if !state.OverrideArmed() {
		t.Fatal("override not armed on state")
	}
	if !strings.Contains(response.Reply, "Override acknowledged") {
		t.Fatalf("reply = %q", response.Reply)
	}
}

func TestChatNoDataYet(t *testing.T) {
	state := NewState(clock.Fake(time.Unix(0, 0)))
	supervisor := NewSupervisor(state, nil)

	response := supervisor.Reply("how is the engine", "ENGINE-001")
	if !strings.Contains(response.Reply, "don't have any engine data yet") {
		t.Fatalf("reply = %q", response.Reply)
	}
}

func TestChatFrozenSnapshotWinsOverLive(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(0, 0))
	state := NewState(fakeClock)
	supervisor := NewSupervisor(state, nil)

	state.RecordLive(&stream.Telemetry{
		UnitID: "ENGINE-001", RUL: 90, Vibration: 0.11, Status: stream.StatusHealthy,
	})
	state.Halt(&stream.Telemetry{UnitID: "ENGINE-001", RUL: 0, Vibration: 0.41})
	fakeClock.Advance(90 * time.Second)

	response := supervisor.Reply("status report", "ENGINE-001")
	if !strings.Contains(response.Reply, "CRITICAL") {
		t.Fatalf("halted context not reflected: %q", response.Reply)
	}

	response = supervisor.Reply("how long has it been offline", "ENGINE-001")
	if !strings.Contains(response.Reply, "1m 30s") {
		t.Fatalf("downtime not reported: %q", response.Reply)
	}
}

func TestChatLiveContextWhenHealthy(t *testing.T) {
	state := NewState(clock.Fake(time.Unix(0, 0)))
	supervisor := NewSupervisor(state, nil)

	state.RecordLive(&stream.Telemetry{
		UnitID: "ENGINE-007", RUL: 95, Vibration: 0.11, Status: stream.StatusHealthy,
	})

	response := supervisor.Reply("status", "ENGINE-001")
	if response.UnitID != "ENGINE-007" {
		t.Fatalf("unit = %q, want the live tick's", response.UnitID)
	}
	if !strings.Contains(response.Reply, "healthy") {
		t.Fatalf("reply = %q", response.Reply)
	}

	response = supervisor.Reply("any downtime?", "ENGINE-001")
	if !strings.Contains(response.Reply, "no active downtime") {
		t.Fatalf("reply = %q", response.Reply)
	}
}

func TestChatIntents(t *testing.T) {
	state := NewState(clock.Fake(time.Unix(0, 0)))
	supervisor := NewSupervisor(state, nil)

	state.RecordRun(&stream.Solution{
		EngineID: "ENGINE-001",
		Status:   stream.StatusCritical,
		Metrics:  stream.PhysicalMetrics{RUL: 4, Vibration: 0.3},
		Personnel: stream.Personnel{
			Available: true, HoursUntilShiftEnd: 1.0,
		},
		Decision: stream.Decision{
			Action: ActionVeto, Label: "VETO_EXPRESS_SHIPPING", Reason: "Labor mismatch.",
		},
		Shadow: &stream.ShadowComparison{
			SimpleRule: stream.RuleVerdict{Decision: "APPROVE", Reason: "RUL low."},
			Policy:     stream.RuleVerdict{Decision: "VETO", Reason: "Shift too short."},
			Conflict:   true,
			Verdict:    "VETO",
			CostSaved:  PartCost,
		},
		Cost: stream.CostImpact{PartCost: PartCost, CostSaved: PartCost},
	})

	tests := []struct {
		message string
		want    string
	}{
		{"tell me about the cost", "saved $350"},
		{"is there a shadow conflict?", "conflict between the two models"},
		{"is the crew available?", "on shift with 1.0 hours"},
		{"explain the reasoning", "Labor mismatch."},
		{"help", "report engine status"},
		{"is it dangerous?", "danger zone"},
		{"hello there", "I'm tracking ENGINE-001"},
	}
	for _, tt := range tests {
		response := supervisor.Reply(tt.message, "ENGINE-001")
		if !strings.Contains(response.Reply, tt.want) {
			t.Errorf("Reply(%q) = %q, missing %q", tt.message, response.Reply, tt.want)
		}
	}
}
