// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

// Broadcaster pushes one typed frame to every connected stream
// client.
type Broadcaster interface {
	Broadcast(frameType stream.FrameType, payload any)
}

// Orchestrator runs the agent pipeline for a unit: gather telemetry
// and personnel evidence, evaluate the decision policy, compare it
// against the shadow rule, and assemble the Solution. Run is the
// synchronous form behind GET /orchestrate; StreamRun paces the same
// pipeline as mcp_step frames for the incident overlay.
type Orchestrator struct {
	state     *State
	source    TelemetrySource
	policy    DecisionPolicy
	broadcast Broadcaster
	clk       clock.Clock
	logger    *slog.Logger

	// StepPause is the delay between streamed steps.
	StepPause time.Duration
}

// NewOrchestrator wires an Orchestrator. Policy defaults to the
// threshold policy; the broadcaster may be nil when only synchronous
// runs are needed.
func NewOrchestrator(state *State, source TelemetrySource, policy DecisionPolicy, broadcast Broadcaster, clk clock.Clock, logger *slog.Logger) *Orchestrator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		state:     state,
		source:    source,
		policy:    policy,
		broadcast: broadcast,
		clk:       clk,
		logger:    logger.With("component", "orchestrator"),
		StepPause: 2500 * time.Millisecond,
	}
}

// gatherInputs collects the decision evidence. The frozen snapshot is
// preferred over a fresh source read: at halt time the source may
// still serve the pre-failure row.
func (o *Orchestrator) gatherInputs(ctx context.Context, unitID string) (DecisionInputs, error) {
	var inputs DecisionInputs
	inputs.PartCost = PartCost

	if frozen := o.state.FrozenSnapshot(); frozen != nil && frozen.UnitID == unitID {
		inputs.RUL = frozen.RUL
		inputs.Vibration = frozen.Vibration
	} else {
		tick, err := o.source.Latest(ctx, unitID)
		if err != nil {
			return inputs, fmt.Errorf("twin: reading telemetry for %s: %w", unitID, err)
		}
		inputs.RUL = tick.RUL
		inputs.Vibration = tick.Vibration
	}

	personnel, err := o.source.Personnel(ctx, unitID)
	if err != nil {
		return inputs, fmt.Errorf("twin: reading personnel for %s: %w", unitID, err)
	}
	inputs.TechnicianAvailable = personnel.Available
	inputs.ShiftHoursLeft = personnel.HoursUntilShiftEnd
	return inputs, nil
}

// Run executes the pipeline synchronously and returns the Solution.
// An armed override flips the policy's decision for this run only.
func (o *Orchestrator) Run(ctx context.Context, unitID string) (*stream.Solution, error) {
	inputs, err := o.gatherInputs(ctx, unitID)
	if err != nil {
		return nil, err
	}

	action := o.policy.Decide(inputs)
	shadow := shadowVerdict(inputs, action)

	overridden := false
	if o.state.ConsumeOverride() {
		action = 1 - action
		overridden = true
		o.logger.Info("human override applied", "unit_id", unitID, "action", action)
	}

	solution := o.buildSolution(unitID, inputs, action, overridden, shadow, false)
	o.state.RecordRun(solution)
	return solution, nil
}

// StreamRun executes the pipeline as a paced stream of mcp_step
// frames tagged with a fresh run ID, ending with a solution frame.
// Intended to run in its own goroutine; it returns when the run
// completes or ctx is cancelled.
func (o *Orchestrator) StreamRun(ctx context.Context, unitID string) {
	runID := uuid.NewString()
	logger := o.logger.With("unit_id", unitID, "run_id", runID)
	logger.Info("orchestration run started")

	step := func(num int, agent, event string) bool {
		o.broadcast.Broadcast(stream.FrameStep, &stream.Step{
			ID:        num,
			Agent:     agent,
			Event:     event,
			UnitID:    unitID,
			RunID:     runID,
			Timestamp: o.clk.Now().UTC().Format(time.RFC3339),
		})
		select {
		case <-ctx.Done():
			return false
		case <-o.clk.After(o.StepPause):
			return true
		}
	}

	if !step(1, "ES|QL", fmt.Sprintf("Alert triggered for unit %s, querying telemetry store for the latest rows", unitID)) {
		return
	}

	inputs, err := o.gatherInputs(ctx, unitID)
	if err != nil {
		logger.Error("orchestration failed", "error", err)
		o.broadcast.Broadcast(stream.FrameStep, &stream.Step{
			ID:        99,
			Agent:     "System",
			Event:     fmt.Sprintf("Orchestration error: %v", err),
			UnitID:    unitID,
			RunID:     runID,
			Timestamp: o.clk.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if !step(2, "Watchman", "Scanning degradation history for the unit") {
		return
	}
	if !step(3, "Watchman", fmt.Sprintf("Telemetry confirmed: RUL=%.1f cycles remaining, vibration=%.4f g RMS", inputs.RUL, inputs.Vibration)) {
		return
	}
	if !step(4, "Foreman", "Querying personnel roster, locating nearest available technician") {
		return
	}
	availability := "OFF SHIFT"
	if inputs.TechnicianAvailable {
		availability = "ON SHIFT, available"
	}
	if !step(5, "Foreman", fmt.Sprintf("Technician %s, %.1fh remaining on shift", availability, inputs.ShiftHoursLeft)) {
		return
	}
	if !step(6, "DRL Policy", fmt.Sprintf("Evaluating state vector [RUL=%.1f, Vib=%.4f, Shift=%.1fh, Cost=$%.0f]",
		inputs.RUL, inputs.Vibration, inputs.ShiftHoursLeft, inputs.PartCost)) {
		return
	}

	action := o.policy.Decide(inputs)
	label := "VETO"
	rationale := "cost risk too high for the current shift window"
	if action == ActionApprove {
		label = "APPROVE"
		rationale = "failure imminent, part needed urgently"
	}
	if !step(7, "DRL Policy", fmt.Sprintf("Decision: %s express shipping, %s", label, rationale)) {
		return
	}

	shadow := shadowVerdict(inputs, action)
	if !step(8, "Shadow Model", "Comparing rule-based logic against the policy decision") {
		return
	}
	if shadow.Conflict {
		if !step(9, "Shadow Model", fmt.Sprintf("CONFLICT: standard rule %s vs policy %s. Verdict: %s. $%.0f saved.",
			shadow.SimpleRule.Decision, shadow.Policy.Decision, shadow.Verdict, shadow.CostSaved)) {
			return
		}
	} else {
		if !step(9, "Shadow Model", fmt.Sprintf("Models aligned, both recommend %s. High-confidence decision.", label)) {
			return
		}
	}

	solution := o.buildSolution(unitID, inputs, action, false, shadow, true)
	o.state.RecordRun(solution)

	if !step(10, "Gantry AI", "All agents in agreement. Compiling maintenance order.") {
		return
	}

	o.broadcast.Broadcast(stream.FrameSolution, &stream.SolutionFrame{
		UnitID:    unitID,
		RunID:     runID,
		Decision:  *solution,
		Timestamp: o.clk.Now().UTC().Format(time.RFC3339),
	})
	logger.Info("orchestration run complete", "final_action", solution.FinalAction)
}

// buildSolution assembles the terminal decision payload. The cost
// comparison and downtime blocks are included for streamed runs, which
// always happen under an active incident.
func (o *Orchestrator) buildSolution(unitID string, inputs DecisionInputs, action int, overridden bool, shadow *stream.ShadowComparison, incident bool) *stream.Solution {
	var finalAction, reason string
	var costSaved float64
	if action == ActionApprove {
		finalAction = "APPROVE_EXPRESS_SHIPPING"
		reason = fmt.Sprintf("Approved: RUL=%.1f is critically low and the technician has %.1fh remaining on shift.",
			inputs.RUL, inputs.ShiftHoursLeft)
	} else {
		finalAction = "VETO_EXPRESS_SHIPPING"
		risk := int(80 + (10-inputs.RUL)*2)
		if risk > 99 {
			risk = 99
		}
		reason = fmt.Sprintf("Vetoed: %d%% risk of labor mismatch, technician shift ends in %.1fh, insufficient for an express install.",
			risk, inputs.ShiftHoursLeft)
		costSaved = inputs.PartCost
	}
	if overridden {
		reason = "[HUMAN OVERRIDE] " + reason
	}

	status := stream.StatusHealthy
	switch {
	case inputs.RUL < 3:
		status = stream.StatusCritical
	case inputs.RUL < 8:
		status = stream.StatusWarning
	}

	solution := &stream.Solution{
		Timestamp: o.clk.Now().UTC().Format(time.RFC3339),
		EngineID:  unitID,
		Status:    status,
		Metrics: stream.PhysicalMetrics{
			RUL:       inputs.RUL,
			Vibration: inputs.Vibration,
		},
		Personnel: stream.Personnel{
			Available:          inputs.TechnicianAvailable,
			HoursUntilShiftEnd: inputs.ShiftHoursLeft,
		},
		Decision: stream.Decision{
			Action:     action,
			Label:      finalAction,
			Reason:     reason,
			Overridden: overridden,
		},
		Shadow: shadow,
		Cost: stream.CostImpact{
			PartCost:  inputs.PartCost,
			CostSaved: costSaved,
		},
		Steps:       buildStepLogs(unitID, inputs, action, overridden, shadow),
		FinalAction: finalAction,
	}

	if incident {
		solution.CostComparison = costComparison()
		downtime := &stream.Downtime{ElapsedSeconds: o.state.Downtime()}
		if failedAt := o.state.FailureTime(); !failedAt.IsZero() {
			downtime.FailureTimestamp = failedAt.UTC().Format(time.RFC3339)
		}
		solution.Downtime = downtime
	}
	return solution
}

// buildStepLogs summarizes the pipeline for the solution payload.
func buildStepLogs(unitID string, inputs DecisionInputs, action int, overridden bool, shadow *stream.ShadowComparison) []stream.StepLog {
	label := "VETO"
	if action == ActionApprove {
		label = "APPROVE"
	}
	availability := "Unavailable"
	if inputs.TechnicianAvailable {
		availability = "Available"
	}
	logs := []stream.StepLog{
		{Step: 1, Agent: "ES|QL", Event: fmt.Sprintf("Alert triggered for unit %s", unitID)},
		{Step: 2, Agent: "Watchman", Event: fmt.Sprintf("Telemetry verified: RUL=%.1f, Vibration=%.4f", inputs.RUL, inputs.Vibration)},
		{Step: 3, Agent: "Foreman", Event: fmt.Sprintf("Shift check: %s, %.1fh remaining", availability, inputs.ShiftHoursLeft)},
		{Step: 4, Agent: "DRL Policy", Event: fmt.Sprintf("Cost-validated decision: %s express shipping", label)},
	}
	if shadow != nil && shadow.Conflict {
		logs = append(logs, stream.StepLog{
			Step:  len(logs) + 1,
			Agent: "Shadow Model",
			Event: fmt.Sprintf("CONFLICT: standard rule %s vs policy %s. Verdict: %s. $%.0f saved.",
				shadow.SimpleRule.Decision, shadow.Policy.Decision, shadow.Verdict, shadow.CostSaved),
		})
	}
	if overridden {
		logs = append(logs, stream.StepLog{
			Step:  len(logs) + 1,
			Agent: "Human Override",
			Event: "Operator manually reversed the policy decision",
		})
	}
	return logs
}
