// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import "testing"

func TestThresholdPolicy(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name   string
		inputs DecisionInputs
		want   int
	}{
		{
			name:   "healthy unit vetoes",
			inputs: DecisionInputs{RUL: 90, TechnicianAvailable: true, ShiftHoursLeft: 4.5},
			want:   ActionVeto,
		},
		{
			name:   "imminent failure with labor approves",
			inputs: DecisionInputs{RUL: 2, TechnicianAvailable: true, ShiftHoursLeft: 4.5},
			want:   ActionApprove,
		},
		{
			name:   "imminent failure without technician vetoes",
			inputs: DecisionInputs{RUL: 2, TechnicianAvailable: false, ShiftHoursLeft: 4.5},
			want:   ActionVeto,
		},
		{
			name:   "imminent failure with short shift vetoes",
			inputs: DecisionInputs{RUL: 2, TechnicianAvailable: true, ShiftHoursLeft: 1.0},
			want:   ActionVeto,
		},
		{
			name:   "threshold boundary vetoes",
			inputs: DecisionInputs{RUL: 10, TechnicianAvailable: true, ShiftHoursLeft: 4.5},
			want:   ActionVeto,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Decide(tt.inputs); got != tt.want {
				t.Fatalf("Decide(%+v) = %d, want %d", tt.inputs, got, tt.want)
			}
		})
	}
}

func TestShadowVerdictConflict(t *testing.T) {
	// Rule approves (RUL < 10) but the policy vetoed on labor: that is
	// the conflict the comparison exists to surface.
	inputs := DecisionInputs{RUL: 5, ShiftHoursLeft: 1.0, PartCost: PartCost}
	shadow := shadowVerdict(inputs, ActionVeto)

	if !shadow.Conflict {
		t.Fatal("conflict not flagged")
	}
	if shadow.SimpleRule.Decision != "APPROVE" || shadow.Policy.Decision != "VETO" {
		t.Fatalf("verdicts = %q vs %q", shadow.SimpleRule.Decision, shadow.Policy.Decision)
	}
	if shadow.Verdict != "VETO" {
		t.Fatalf("enterprise verdict = %q, policy must win", shadow.Verdict)
	}
	if shadow.CostSaved != PartCost {
		t.Fatalf("cost saved = %v, want %v", shadow.CostSaved, PartCost)
	}
}

func TestShadowVerdictAligned(t *testing.T) {
	inputs := DecisionInputs{RUL: 2, ShiftHoursLeft: 4.5, PartCost: PartCost}
	shadow := shadowVerdict(inputs, ActionApprove)

	if shadow.Conflict {
		t.Fatal("aligned models flagged as conflict")
	}
	if shadow.CostSaved != 0 {
		t.Fatalf("approval saved %v, want 0", shadow.CostSaved)
	}
}

func TestCostComparison(t *testing.T) {
	comparison := costComparison()

	if comparison.SavingsVsReactive != 15700 {
		t.Fatalf("savings vs reactive = %v, want 15700", comparison.SavingsVsReactive)
	}
	if comparison.SavingsVsPreventive != 4400 {
		t.Fatalf("savings vs preventive = %v, want 4400", comparison.SavingsVsPreventive)
	}
	if comparison.SavingsPctReactive != 84.9 {
		t.Fatalf("savings pct reactive = %v, want 84.9", comparison.SavingsPctReactive)
	}
	if comparison.SavingsPctPreventive != 61.1 {
		t.Fatalf("savings pct preventive = %v, want 61.1", comparison.SavingsPctPreventive)
	}
	if comparison.Reactive.DowntimeHours != 48 || comparison.Predictive.DowntimeHours != 2 {
		t.Fatalf("downtime hours = %v / %v", comparison.Reactive.DowntimeHours, comparison.Predictive.DowntimeHours)
	}
}
