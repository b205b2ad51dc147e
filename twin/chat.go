// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gantry-systems/gantry/stream"
)

// ChatResponse is the supervisor's answer to one operator message.
type ChatResponse struct {
	Reply          string `json:"reply"`
	OverrideActive bool   `json:"override_active"`
	UnitID         string `json:"unit_id"`
}

// Supervisor is the rule-based chat assistant. It answers from the
// current incident context: the frozen snapshot while halted, else the
// latest live tick, else the last orchestration result. The "override"
// keyword arms the one-shot human override instead of answering.
type Supervisor struct {
	state  *State
	logger *slog.Logger
}

// NewSupervisor creates a Supervisor over the shared state.
func NewSupervisor(state *State, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{state: state, logger: logger.With("component", "supervisor")}
}

// chatContext is the evidence a reply is built from.
type chatContext struct {
	unitID    string
	status    stream.UnitStatus
	rul       float64
	vibration float64
	downtime  float64

	personnel stream.Personnel
	decision  stream.Decision
	shadow    *stream.ShadowComparison
	costSaved float64
}

// Reply answers one operator message.
func (s *Supervisor) Reply(message, unitID string) ChatResponse {
	if strings.Contains(strings.ToLower(message), "override") {
		s.state.SetOverride()
		s.logger.Info("human override armed", "unit_id", unitID)
		return ChatResponse{
			Reply: "Override acknowledged. The next orchestration run flips the policy decision: " +
				"a veto becomes an approval and vice versa. This is your call as the operator; " +
				"the intervention is logged for audit.",
			OverrideActive: true,
			UnitID:         unitID,
		}
	}

	chatCtx, ok := s.buildContext(unitID)
	if !ok {
		return ChatResponse{
			Reply: "I don't have any engine data yet. Run an orchestration first so I can pull " +
				"telemetry and give you a proper assessment.",
			OverrideActive: s.state.OverrideArmed(),
			UnitID:         unitID,
		}
	}

	return ChatResponse{
		Reply:          s.route(strings.ToLower(message), chatCtx),
		OverrideActive: s.state.OverrideArmed(),
		UnitID:         chatCtx.unitID,
	}
}

// buildContext assembles the reply evidence. Priority: frozen snapshot
// (active incident) over live tick over last run result.
func (s *Supervisor) buildContext(unitID string) (chatContext, bool) {
	chatCtx := chatContext{
		unitID:    unitID,
		personnel: stream.Personnel{Available: true, HoursUntilShiftEnd: 4.0},
		decision:  stream.Decision{Label: "MONITOR", Reason: "System nominal."},
	}
	if lastRun := s.state.LastRun(); lastRun != nil {
		chatCtx.personnel = lastRun.Personnel
		chatCtx.decision = lastRun.Decision
		chatCtx.shadow = lastRun.Shadow
		chatCtx.costSaved = lastRun.Cost.CostSaved
	}

	switch {
	case s.state.Halted():
		frozen := s.state.FrozenSnapshot()
		chatCtx.unitID = frozen.UnitID
		chatCtx.status = stream.StatusCritical
		chatCtx.rul = frozen.RUL
		chatCtx.vibration = frozen.Vibration
		chatCtx.downtime = s.state.Downtime()
		if s.state.LastRun() == nil {
			chatCtx.decision = stream.Decision{
				Label:  "APPROVE_EXPRESS_SHIPPING",
				Reason: "Failure imminent.",
			}
		}
	case s.state.LastLive() != nil:
		live := s.state.LastLive()
		chatCtx.unitID = live.UnitID
		chatCtx.status = live.Status
		chatCtx.rul = live.RUL
		chatCtx.vibration = live.Vibration
	case s.state.LastRun() != nil:
		lastRun := s.state.LastRun()
		chatCtx.unitID = lastRun.EngineID
		chatCtx.status = lastRun.Status
		chatCtx.rul = lastRun.Metrics.RUL
		chatCtx.vibration = lastRun.Metrics.Vibration
		if lastRun.Downtime != nil {
			chatCtx.downtime = lastRun.Downtime.ElapsedSeconds
		}
	default:
		return chatContext{}, false
	}
	return chatCtx, true
}

func containsAny(msg string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// route picks the intent and builds the reply.
func (s *Supervisor) route(msg string, chatCtx chatContext) string {
	actionLabel := strings.ToLower(strings.ReplaceAll(chatCtx.decision.Label, "_", " "))

	switch {
	case containsAny(msg, "downtime", "how long", "offline", "halted", "stopped", "outage"):
		if chatCtx.downtime > 0 {
			lost := chatCtx.downtime / 3600 * 1250
			return fmt.Sprintf(
				"%s has been offline for %s since the failure triggered. At roughly $1,250/hr of lost "+
					"production that is about $%.0f so far. Reactive maintenance averages 48h of downtime "+
					"per event; the predictive approach targets a 2h swap window.",
				chatCtx.unitID, formatDowntime(chatCtx.downtime), lost)
		}
		return fmt.Sprintf("%s is currently operational, no active downtime.", chatCtx.unitID)

	case containsAny(msg, "cost", "save", "money", "budget", "expense", "worth"):
		if chatCtx.costSaved > 0 {
			return fmt.Sprintf(
				"The policy saved $%.0f by vetoing express shipping for %s. The remaining useful life "+
					"(%.0f cycles) and the technician's shift window (%.1fh) did not justify the rush. "+
					"Approving every flagged engine would burn money on parts that arrive before anyone "+
					"can install them.",
				chatCtx.costSaved, chatCtx.unitID, chatCtx.rul, chatCtx.personnel.HoursUntilShiftEnd)
		}
		return fmt.Sprintf(
			"No savings this cycle: express shipping was approved for %s because the situation calls "+
				"for it. RUL is %.0f cycles. Sometimes the right call is spending $350 now to prevent an "+
				"unplanned outage tomorrow.",
			chatCtx.unitID, chatCtx.rul)

	case containsAny(msg, "shadow", "conflict", "compare", "disagree", "why different"):
		if chatCtx.shadow != nil && chatCtx.shadow.Conflict {
			return fmt.Sprintf(
				"There is a conflict between the two models right now. The standard rule says %s (%s) "+
					"while the policy says %s (%s). The verdict goes with %s; the disagreement saved $%.0f "+
					"this round.",
				chatCtx.shadow.SimpleRule.Decision, chatCtx.shadow.SimpleRule.Reason,
				chatCtx.shadow.Policy.Decision, chatCtx.shadow.Policy.Reason,
				chatCtx.shadow.Verdict, chatCtx.shadow.CostSaved)
		}
		return fmt.Sprintf(
			"Both models agree right now, no conflict. The standard rule and the policy both recommend "+
				"%s. When they agree it is a strong signal the decision is solid.", actionLabel)

	case containsAny(msg, "tech", "person", "shift", "crew", "worker", "available"):
		if chatCtx.personnel.Available {
			return fmt.Sprintf(
				"The assigned technician is on shift with %.1f hours remaining. The policy factors this "+
					"in: rushing a part that cannot be installed until tomorrow helps nobody.",
				chatCtx.personnel.HoursUntilShiftEnd)
		}
		return fmt.Sprintf(
			"The technician is currently off shift (%.1fh logged). Express-shipping a $350 part now "+
				"means it sits on the dock until someone is available to install it.",
			chatCtx.personnel.HoursUntilShiftEnd)

	case containsAny(msg, "explain", "why", "reason", "logic", "decision", "how did"):
		return fmt.Sprintf(
			"The decision for %s weighed four inputs: RUL %.0f cycles, vibration %.4f g, technician "+
				"shift %.1fh remaining, and the $350 express part cost. Outcome: %s. %s",
			chatCtx.unitID, chatCtx.rul, chatCtx.vibration,
			chatCtx.personnel.HoursUntilShiftEnd, actionLabel, chatCtx.decision.Reason)

	case containsAny(msg, "help", "what can", "command", "options"):
		return "I can report engine status, explain the last decision, break down the cost logic, " +
			"compare the shadow model against the policy, check crew availability, or arm a manual " +
			"override (type \"override\"). Ask naturally."

	case containsAny(msg, "danger", "risk", "safe", "alarm", "urgent", "emergency"):
		if chatCtx.rul < 5 {
			return fmt.Sprintf(
				"%s is at elevated risk: %.0f cycles remaining puts us in the danger zone, and "+
					"vibration at %.4f g confirms mechanical stress. Decision on record: %s.",
				chatCtx.unitID, chatCtx.rul, chatCtx.vibration, actionLabel)
		}
		return fmt.Sprintf(
			"No immediate danger for %s. RUL is %.0f cycles, comfortable runway, and vibration is "+
				"%.4f g, within tolerance. I am monitoring continuously.",
			chatCtx.unitID, chatCtx.rul, chatCtx.vibration)

	case containsAny(msg, "state", "status", "health", "how", "report"):
		return s.statusReply(chatCtx, actionLabel)

	default:
		return fmt.Sprintf(
			"I'm tracking %s right now: status %s with %.0f cycles of life remaining. Ask about the "+
				"cost logic, the shadow comparison, crew availability, or type \"help\" for the full menu.",
			chatCtx.unitID, chatCtx.status, chatCtx.rul)
	}
}

func (s *Supervisor) statusReply(chatCtx chatContext, actionLabel string) string {
	switch {
	case chatCtx.rul < 3:
		return fmt.Sprintf(
			"%s is in CRITICAL condition: only %.0f cycles of useful life left and vibration at "+
				"%.4f g RMS. The decision on record is %s. Technician has %.1fh remaining on shift. "+
				"Keep a close eye on this one.",
			chatCtx.unitID, chatCtx.rul, chatCtx.vibration, actionLabel,
			chatCtx.personnel.HoursUntilShiftEnd)
	case chatCtx.rul < 20:
		return fmt.Sprintf(
			"%s needs attention. Status is %s with %.0f cycles of runway and vibration at %.4f g. "+
				"Not dire, but trending the wrong way. Current recommendation: %s. If vibration ticks "+
				"up, re-run orchestration.",
			chatCtx.unitID, chatCtx.status, chatCtx.rul, chatCtx.vibration, actionLabel)
	default:
		return fmt.Sprintf(
			"%s is looking healthy: RUL at %.0f cycles, vibration a comfortable %.4f g, no urgency. "+
				"Recommendation stands at %s. I'll flag it if anything changes.",
			chatCtx.unitID, chatCtx.rul, chatCtx.vibration, actionLabel)
	}
}

func formatDowntime(seconds float64) string {
	total := int(seconds)
	minutes, secs := total/60, total%60
	if minutes == 0 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}
