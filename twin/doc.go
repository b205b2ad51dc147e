// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package twin implements the digital-twin backend: the websocket hub
// that fans telemetry and incident frames out to connected consoles,
// the halt/resume state machine with its post-resume grace window, the
// agent orchestration runner, the decision policy with its shadow
// comparison and cost model, and the supervisor chat with override
// detection.
//
// Telemetry comes from an injected TelemetrySource; the decision comes
// from an injected DecisionPolicy. Both have deterministic default
// implementations so the server runs self-contained.
package twin
