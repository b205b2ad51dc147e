// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"fmt"

	"github.com/gantry-systems/gantry/stream"
)

// Decision actions.
const (
	ActionVeto    = 0
	ActionApprove = 1
)

// DecisionInputs is the state vector a policy evaluates.
type DecisionInputs struct {
	RUL                 float64
	Vibration           float64
	TechnicianAvailable bool
	ShiftHoursLeft      float64
	PartCost            float64
}

// DecisionPolicy decides whether to approve express shipping of the
// replacement part. Implementations must be deterministic for equal
// inputs.
type DecisionPolicy interface {
	Decide(inputs DecisionInputs) int
}

// ThresholdPolicy is the default policy. Unlike the bare failure rule
// (RUL < 10 means ship), it also weighs labor: a part that arrives
// after the technician's shift ends just sits on the dock, so low
// remaining shift time vetoes the rush.
type ThresholdPolicy struct {
	// RULThreshold below which the unit counts as failing. Default 10.
	RULThreshold float64
	// MinShiftHours the technician needs for an express install.
	// Default 1.5.
	MinShiftHours float64
}

// DefaultPolicy returns a ThresholdPolicy with the standard
// thresholds.
func DefaultPolicy() *ThresholdPolicy {
	return &ThresholdPolicy{RULThreshold: 10, MinShiftHours: 1.5}
}

// Decide approves when failure is imminent and the technician can
// still install in this shift.
func (p *ThresholdPolicy) Decide(inputs DecisionInputs) int {
	if inputs.RUL >= p.RULThreshold {
		return ActionVeto
	}
	if !inputs.TechnicianAvailable || inputs.ShiftHoursLeft < p.MinShiftHours {
		return ActionVeto
	}
	return ActionApprove
}

// shadowVerdict contrasts the bare failure rule against the policy's
// decision. The policy always wins; the comparison exists so operators
// can see when the two disagree and what the disagreement saved.
func shadowVerdict(inputs DecisionInputs, action int) *stream.ShadowComparison {
	ruleApprove := inputs.RUL < 10
	ruleLabel := "VETO"
	ruleReason := fmt.Sprintf("RUL=%.1f >= 10, no urgency.", inputs.RUL)
	if ruleApprove {
		ruleLabel = "APPROVE"
		ruleReason = fmt.Sprintf("RUL=%.1f < 10, failure imminent, ship part now.", inputs.RUL)
	}

	policyLabel := "VETO"
	if action == ActionApprove {
		policyLabel = "APPROVE"
	}

	var costSaved float64
	if action == ActionVeto {
		costSaved = inputs.PartCost
	}

	return &stream.ShadowComparison{
		SimpleRule: stream.RuleVerdict{
			Decision: ruleLabel,
			Reason:   ruleReason,
		},
		Policy: stream.RuleVerdict{
			Decision: policyLabel,
			Reason: fmt.Sprintf("Optimized for labor availability: technician has %.1fh left on shift.",
				inputs.ShiftHoursLeft),
		},
		Conflict:  ruleApprove != (action == ActionApprove),
		Verdict:   policyLabel,
		CostSaved: costSaved,
	}
}
