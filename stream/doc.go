// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream implements the Gantry telemetry wire protocol and the
// persistent connection to the digital-twin backend.
//
// The package is organized around the stream data flow:
//
//   - frame.go: JSON frame taxonomy (telemetry, alert, mcp_step,
//     solution, system_resumed) and tolerant decoding
//   - conn.go: connection manager with bounded exponential backoff,
//     emitting opened/closed/frame events on a single-consumer channel
//   - websocket.go: production Dialer backed by gorilla/websocket
//
// The connection manager deliberately knows nothing about frame
// semantics: it delivers raw frame bytes and leaves classification to
// the consumer, so the incident state machines stay pure reducers that
// are testable without a transport.
package stream
