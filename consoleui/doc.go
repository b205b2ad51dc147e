// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package consoleui implements the operator console terminal UI. Built
// on bubbletea (Elm architecture), it presents one monitored unit:
// live telemetry, the incident phase, the orchestration timeline, and
// a chat pane for the AI supervisor.
//
// The console owns no protocol logic. Stream events arrive on the
// connection manager's channel and are reduced through an
// [incident.Session]; the model reads presentation state back out of
// the session's store and timeline after each event. Operator actions
// (start a run, resume, chat) run as asynchronous bubbletea commands
// against the same session.
//
// Data flow:
//
//	[stream.Manager] --events--> [Model] --Handle--> [incident.Session]
//	       |                        |
//	 [twin backend]           [terminal output]
package consoleui
