// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package incident implements the client-side incident lifecycle for
// one monitored unit: the state store tracking the halted/frozen/grace
// phases, the orchestration timeline reducer, and the session that
// reduces connection events into both.
//
// Lifecycle: HEALTHY → HALTED (qualifying alert freezes a telemetry
// snapshot) → SOLVING (remediation progress observed) → GRACE
// (operator resumed; live data trusted immediately for 30s) → HEALTHY.
// A system_resumed frame short-circuits everything back to a clean
// baseline.
//
// The session is a pure reducer over the stream's event channel: it
// owns no transport and no timers beyond the injected clock, so every
// state transition is testable by handing it events directly.
package incident
