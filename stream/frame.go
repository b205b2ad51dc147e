// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FrameType is the required discriminator carried by every frame on
// the telemetry stream.
type FrameType string

// Frame types understood by the protocol. Frames carrying any other
// value (or none) are dropped by Decode — the protocol stays forward
// compatible with types this client does not know about.
const (
	FrameTelemetry     FrameType = "telemetry"
	FrameAlert         FrameType = "alert"
	FrameStep          FrameType = "mcp_step"
	FrameSolution      FrameType = "solution"
	FrameSystemResumed FrameType = "system_resumed"
)

// UnitStatus is the health classification of a monitored unit.
type UnitStatus string

const (
	StatusHealthy  UnitStatus = "HEALTHY"
	StatusWarning  UnitStatus = "WARNING"
	StatusCritical UnitStatus = "CRITICAL"
	StatusIdle     UnitStatus = "IDLE"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityCritical Severity = "critical"
)

// Telemetry is one live tick for a monitored unit. Each tick
// supersedes the previous one; ticks carry no sequence numbers beyond
// the cycle counter, which is monotonically non-decreasing while the
// unit is healthy.
type Telemetry struct {
	UnitID    string     `json:"unit_id"`
	Cycle     int        `json:"cycle"`
	RUL       float64    `json:"rul"`
	Vibration float64    `json:"vibration"`
	SensorS11 float64    `json:"sensor_s11,omitempty"`
	Status    UnitStatus `json:"unit_status"`
	IsError   bool       `json:"isError"`
	Timestamp string     `json:"timestamp,omitempty"`

	// SystemHalted and DowntimeSeconds are set on the frozen snapshot
	// the backend rebroadcasts while an incident is active.
	SystemHalted    bool    `json:"system_halted,omitempty"`
	DowntimeSeconds float64 `json:"downtime_seconds,omitempty"`
}

// Cycle is a cycle number as alert producers put it on the wire: a
// JSON number when the value is known, a placeholder string ("?") when
// it is not. Both forms decode; a non-numeric value reads as 0.
type Cycle string

func (c *Cycle) UnmarshalJSON(data []byte) error {
	var number json.Number
	if err := json.Unmarshal(data, &number); err == nil {
		*c = Cycle(number)
		return nil
	}
	var placeholder string
	if err := json.Unmarshal(data, &placeholder); err != nil {
		return fmt.Errorf("stream: cycle must be a number or string, got %s", data)
	}
	*c = Cycle(placeholder)
	return nil
}

func (c Cycle) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(c), 64); err == nil && c != "" {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

// Int returns the numeric value, 0 for placeholders.
func (c Cycle) Int() int {
	n, err := strconv.Atoi(string(c))
	if err != nil {
		return 0
	}
	return n
}

func (c Cycle) String() string { return string(c) }

// Alert is a broadcast notification about a unit. Alerts with critical
// severity or the error flag set trigger incident entry. The telemetry
// values embedded in the alert, when present, become the frozen
// snapshot at the moment of the halt.
type Alert struct {
	UnitID    string   `json:"unit_id"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	IsError   bool     `json:"isError"`
	RUL       *float64 `json:"rul,omitempty"`
	Vibration float64  `json:"vibration,omitempty"`
	Cycle     Cycle    `json:"cycle,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Qualifying reports whether this alert enters the incident lifecycle:
// critical severity or an explicit error flag.
func (a *Alert) Qualifying() bool {
	return a.Severity == SeverityCritical || a.IsError
}

// Step is one reasoning step emitted by the remediation pipeline
// during an orchestration run. ID is unique within a run and is the
// deduplication key; redelivered steps are no-ops.
type Step struct {
	ID     int    `json:"step"`
	Agent  string `json:"agent"`
	Event  string `json:"event"`
	UnitID string `json:"unit_id,omitempty"`

	// RunID tags the step with the orchestration run that produced
	// it. Producers that predate run tagging omit it; the timeline
	// reducer then falls back to length-based run-boundary detection.
	RunID string `json:"run_id,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}

// Decision is the binary outcome of one orchestration run.
type Decision struct {
	Action     int    `json:"action"`
	Label      string `json:"label"`
	Reason     string `json:"reason"`
	Overridden bool   `json:"overridden,omitempty"`
}

// RuleVerdict is one side of a shadow-policy comparison.
type RuleVerdict struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// ShadowComparison contrasts the simple threshold rule against the
// trained policy so operators can see when (and why) they disagree.
type ShadowComparison struct {
	SimpleRule RuleVerdict `json:"simple_rule"`
	Policy     RuleVerdict `json:"drl_policy"`
	Conflict   bool        `json:"conflict"`
	Verdict    string      `json:"enterprise_verdict"`
	CostSaved  float64     `json:"cost_saved"`
}

// PhysicalMetrics is the telemetry evidence behind a decision.
type PhysicalMetrics struct {
	RUL        float64 `json:"rul"`
	Vibration  float64 `json:"vibration"`
	Cycle      int     `json:"cycle,omitempty"`
	DataVolume string  `json:"data_volume,omitempty"`
}

// Personnel is technician availability at decision time.
type Personnel struct {
	Available          bool    `json:"available"`
	HoursUntilShiftEnd float64 `json:"hours_until_shift_end"`
}

// CostImpact is the immediate monetary effect of the decision.
type CostImpact struct {
	PartCost  float64 `json:"part_cost"`
	CostSaved float64 `json:"cost_saved"`
}

// CostOption is one maintenance strategy in the three-way comparison.
type CostOption struct {
	Label         string  `json:"label"`
	Cost          float64 `json:"cost"`
	DowntimeHours float64 `json:"downtime_hours"`
	Description   string  `json:"description,omitempty"`
}

// CostComparison contrasts reactive, preventive, and predictive
// maintenance for the operator, with precomputed savings.
type CostComparison struct {
	Reactive             CostOption `json:"reactive"`
	Preventive           CostOption `json:"preventive"`
	Predictive           CostOption `json:"predictive"`
	SavingsVsReactive    float64    `json:"savings_vs_reactive"`
	SavingsVsPreventive  float64    `json:"savings_vs_preventive"`
	SavingsPctReactive   float64    `json:"savings_pct_reactive"`
	SavingsPctPreventive float64    `json:"savings_pct_preventive"`
}

// Downtime records how long the unit has been halted.
type Downtime struct {
	FailureTimestamp string  `json:"failure_timestamp,omitempty"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}

// StepLog is a summarized pipeline step embedded in a Solution.
type StepLog struct {
	Step  int    `json:"step"`
	Agent string `json:"agent"`
	Event string `json:"event"`
}

// Solution is the terminal payload of one orchestration run. A new
// run replaces the previous Solution wholesale.
type Solution struct {
	Timestamp string          `json:"timestamp,omitempty"`
	EngineID  string          `json:"engine_id"`
	Status    UnitStatus      `json:"status"`
	Metrics   PhysicalMetrics `json:"physical_metrics"`
	Personnel Personnel       `json:"personnel"`
	Decision  Decision        `json:"drl_decision"`

	Shadow         *ShadowComparison `json:"shadow_model,omitempty"`
	Cost           CostImpact        `json:"cost_impact"`
	CostComparison *CostComparison   `json:"cost_comparison,omitempty"`
	Downtime       *Downtime         `json:"downtime,omitempty"`

	Steps       []StepLog `json:"mcp_logs,omitempty"`
	FinalAction string    `json:"final_action"`
}

// SolutionFrame is the stream envelope for a Solution.
type SolutionFrame struct {
	UnitID    string   `json:"unit_id"`
	RunID     string   `json:"run_id,omitempty"`
	Decision  Solution `json:"decision"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// SystemResumed announces that the backend has cleared its halt state.
// Consumers perform a full reset to the healthy baseline.
type SystemResumed struct {
	DowntimeSeconds float64 `json:"downtime_seconds"`
	Timestamp       string  `json:"timestamp,omitempty"`
}

// Frame is one decoded stream frame. Exactly one payload field is
// non-nil, matching Type.
type Frame struct {
	Type      FrameType
	Telemetry *Telemetry
	Alert     *Alert
	Step      *Step
	Solution  *SolutionFrame
	Resumed   *SystemResumed
}

// Decode parses a raw frame. Malformed JSON, a missing discriminator,
// an unrecognized type, or a payload that does not match its declared
// type all return ok=false: the stream must tolerate garbage frames
// without tearing down the connection or surfacing errors.
func Decode(data []byte) (Frame, bool) {
	var probe struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Frame{}, false
	}

	switch probe.Type {
	case FrameTelemetry:
		var telemetry Telemetry
		if err := json.Unmarshal(data, &telemetry); err != nil {
			return Frame{}, false
		}
		return Frame{Type: FrameTelemetry, Telemetry: &telemetry}, true

	case FrameAlert:
		var alert Alert
		if err := json.Unmarshal(data, &alert); err != nil {
			return Frame{}, false
		}
		return Frame{Type: FrameAlert, Alert: &alert}, true

	case FrameStep:
		var step Step
		if err := json.Unmarshal(data, &step); err != nil {
			return Frame{}, false
		}
		return Frame{Type: FrameStep, Step: &step}, true

	case FrameSolution:
		var solution SolutionFrame
		if err := json.Unmarshal(data, &solution); err != nil {
			return Frame{}, false
		}
		return Frame{Type: FrameSolution, Solution: &solution}, true

	case FrameSystemResumed:
		var resumed SystemResumed
		if err := json.Unmarshal(data, &resumed); err != nil {
			return Frame{}, false
		}
		return Frame{Type: FrameSystemResumed, Resumed: &resumed}, true

	default:
		return Frame{}, false
	}
}

// Encode marshals a frame payload with the type discriminator
// injected, producing exactly what Decode accepts. The payload must
// encode to a JSON object.
func Encode(frameType FrameType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stream: encoding %s frame: %w", frameType, err)
	}
	if len(data) < 2 || data[0] != '{' {
		return nil, fmt.Errorf("stream: %s frame payload must encode to a JSON object", frameType)
	}

	prefix := []byte(`{"type":"` + string(frameType) + `"`)
	if len(data) == 2 {
		return append(prefix, '}'), nil
	}
	out := append(prefix, ',')
	return append(out, data[1:]...), nil
}
