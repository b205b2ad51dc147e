// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "testing"

func TestDecodeTelemetry(t *testing.T) {
	data := []byte(`{
		"type": "telemetry",
		"unit_id": "ENGINE-001",
		"cycle": 412,
		"rul": 118.5,
		"vibration": 0.1132,
		"unit_status": "HEALTHY",
		"isError": false
	}`)

	frame, ok := Decode(data)
	if !ok {
		t.Fatal("Decode rejected a valid telemetry frame")
	}
	if frame.Type != FrameTelemetry || frame.Telemetry == nil {
		t.Fatalf("frame = %+v, want telemetry payload", frame)
	}
	tick := frame.Telemetry
	if tick.UnitID != "ENGINE-001" || tick.Cycle != 412 || tick.RUL != 118.5 {
		t.Fatalf("telemetry = %+v", tick)
	}
	if tick.Status != StatusHealthy || tick.IsError {
		t.Fatalf("status = %q isError = %v", tick.Status, tick.IsError)
	}
}

func TestDecodeAlertQualifying(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		qualifying bool
	}{
		{
			name:       "critical severity",
			data:       `{"type":"alert","unit_id":"ENGINE-001","severity":"critical","isError":false,"message":"failure"}`,
			qualifying: true,
		},
		{
			name:       "error flag only",
			data:       `{"type":"alert","unit_id":"ENGINE-001","severity":"info","isError":true,"message":"failure"}`,
			qualifying: true,
		},
		{
			name:       "informational",
			data:       `{"type":"alert","unit_id":"ENGINE-001","severity":"info","isError":false,"message":"note"}`,
			qualifying: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			frame, ok := Decode([]byte(test.data))
			if !ok {
				t.Fatal("Decode rejected a valid alert frame")
			}
			if frame.Type != FrameAlert || frame.Alert == nil {
				t.Fatalf("frame = %+v, want alert payload", frame)
			}
			if got := frame.Alert.Qualifying(); got != test.qualifying {
				t.Fatalf("Qualifying() = %v, want %v", got, test.qualifying)
			}
		})
	}
}

func TestDecodeAlertEmbeddedTelemetry(t *testing.T) {
	withRUL := []byte(`{"type":"alert","unit_id":"ENGINE-001","severity":"critical","isError":true,"rul":0,"vibration":0.41,"cycle":287,"message":"failure"}`)
	frame, ok := Decode(withRUL)
	if !ok {
		t.Fatal("Decode rejected alert with embedded telemetry")
	}
	if frame.Alert.RUL == nil || *frame.Alert.RUL != 0 {
		t.Fatalf("RUL = %v, want pointer to 0", frame.Alert.RUL)
	}

	// A producer that sends cycle as a placeholder string must still
	// decode: the alert path tolerates non-numeric cycles.
	placeholder := []byte(`{"type":"alert","unit_id":"ENGINE-001","severity":"critical","isError":true,"cycle":"?","message":"failure"}`)
	if _, ok := Decode(placeholder); !ok {
		t.Fatal("Decode rejected alert with placeholder cycle")
	}

	bare := []byte(`{"type":"alert","unit_id":"ENGINE-001","severity":"critical","isError":true,"message":"failure"}`)
	frame, ok = Decode(bare)
	if !ok {
		t.Fatal("Decode rejected alert without embedded telemetry")
	}
	if frame.Alert.RUL != nil {
		t.Fatalf("RUL = %v, want nil when the alert carries no telemetry", frame.Alert.RUL)
	}
}

func TestDecodeStep(t *testing.T) {
	data := []byte(`{"type":"mcp_step","step":3,"agent":"Watchman","event":"Telemetry confirmed","unit_id":"ENGINE-001","run_id":"a1b2"}`)
	frame, ok := Decode(data)
	if !ok {
		t.Fatal("Decode rejected a valid step frame")
	}
	step := frame.Step
	if step.ID != 3 || step.Agent != "Watchman" || step.RunID != "a1b2" {
		t.Fatalf("step = %+v", step)
	}

	// run_id is optional for older producers.
	legacy := []byte(`{"type":"mcp_step","step":1,"agent":"ES|QL","event":"Alert triggered"}`)
	frame, ok = Decode(legacy)
	if !ok || frame.Step.RunID != "" {
		t.Fatalf("legacy step: ok=%v run_id=%q", ok, frame.Step.RunID)
	}
}

func TestDecodeSolution(t *testing.T) {
	data := []byte(`{
		"type": "solution",
		"unit_id": "ENGINE-001",
		"decision": {
			"engine_id": "ENGINE-001",
			"status": "CRITICAL",
			"physical_metrics": {"rul": 0, "vibration": 0.25},
			"personnel": {"available": true, "hours_until_shift_end": 4.5},
			"drl_decision": {"action": 1, "label": "APPROVE_EXPRESS_SHIPPING", "reason": "failure imminent"},
			"shadow_model": {
				"simple_rule": {"decision": "APPROVE", "reason": "RUL below threshold"},
				"drl_policy": {"decision": "APPROVE", "reason": "labor window sufficient"},
				"conflict": false,
				"enterprise_verdict": "APPROVE",
				"cost_saved": 0
			},
			"cost_impact": {"part_cost": 350, "cost_saved": 0},
			"final_action": "APPROVE_EXPRESS_SHIPPING"
		}
	}`)

	frame, ok := Decode(data)
	if !ok {
		t.Fatal("Decode rejected a valid solution frame")
	}
	solution := frame.Solution.Decision
	if solution.Decision.Action != 1 || solution.Decision.Label != "APPROVE_EXPRESS_SHIPPING" {
		t.Fatalf("decision = %+v", solution.Decision)
	}
	if solution.Shadow == nil || solution.Shadow.Conflict {
		t.Fatalf("shadow = %+v", solution.Shadow)
	}
	if solution.CostComparison != nil {
		t.Fatal("cost comparison should be nil when absent")
	}
}

func TestDecodeSystemResumed(t *testing.T) {
	frame, ok := Decode([]byte(`{"type":"system_resumed","downtime_seconds":74.2}`))
	if !ok {
		t.Fatal("Decode rejected a valid system_resumed frame")
	}
	if frame.Type != FrameSystemResumed || frame.Resumed.DowntimeSeconds != 74.2 {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestDecodeDropsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed JSON", `{"type": "telemetry", "rul": `},
		{"not JSON at all", `ENGINE-001 rul=0`},
		{"missing type", `{"unit_id":"ENGINE-001","rul":12}`},
		{"unknown type", `{"type":"heartbeat","unit_id":"ENGINE-001"}`},
		{"payload mismatch", `{"type":"mcp_step","step":"three"}`},
		{"empty", ``},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if frame, ok := Decode([]byte(test.data)); ok {
				t.Fatalf("Decode accepted garbage: %+v", frame)
			}
		})
	}
}

// Unknown fields must not break decoding: the protocol is forward
// compatible with producers that add fields.
func TestDecodeIgnoresUnknownFields(t *testing.T) {
	data := []byte(`{"type":"telemetry","unit_id":"ENGINE-001","rul":50,"unit_status":"HEALTHY","firmware_rev":"v9","extra":{"a":1}}`)
	frame, ok := Decode(data)
	if !ok {
		t.Fatal("Decode rejected a frame with unknown fields")
	}
	if frame.Telemetry.RUL != 50 {
		t.Fatalf("rul = %v", frame.Telemetry.RUL)
	}
}

func TestEncodeRoundTripsThroughDecode(t *testing.T) {
	data, err := Encode(FrameTelemetry, &Telemetry{
		UnitID: "ENGINE-001",
		Cycle:  287,
		RUL:    12.5,
		Status: StatusWarning,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	frame, ok := Decode(data)
	if !ok {
		t.Fatalf("Decode rejected encoded frame: %s", data)
	}
	if frame.Type != FrameTelemetry || frame.Telemetry.UnitID != "ENGINE-001" || frame.Telemetry.RUL != 12.5 {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	data, err := Encode(FrameSystemResumed, struct{}{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame, ok := Decode(data); !ok || frame.Type != FrameSystemResumed {
		t.Fatalf("encoded %s, decode ok=%v", data, ok)
	}
}

func TestEncodeRejectsNonObjectPayload(t *testing.T) {
	if _, err := Encode(FrameAlert, []string{"not", "an", "object"}); err == nil {
		t.Fatal("Encode accepted a non-object payload")
	}
}
