// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"context"

	"github.com/gantry-systems/gantry/stream"
)

// UnitListing describes one discoverable engine unit, most recent
// activity first.
type UnitListing struct {
	UnitID   string `json:"unit_id"`
	DocCount int    `json:"doc_count"`
	LastSeen string `json:"last_seen,omitempty"`
	// Active means telemetry arrived within the last minute.
	Active bool     `json:"active"`
	RUL    *float64 `json:"rul,omitempty"`
	Cycle  *int     `json:"cycle,omitempty"`
}

// TelemetrySource supplies the raw data behind the twin: the latest
// telemetry row per unit, technician availability, and unit discovery.
// The production deployment backs this with a telemetry store; the
// simulator keeps the server self-contained.
type TelemetrySource interface {
	// Latest returns the most recent telemetry row for the unit, with
	// RUL, vibration, and cycle populated. Status and error flags are
	// derived by the caller.
	Latest(ctx context.Context, unitID string) (*stream.Telemetry, error)

	// Personnel returns technician availability at decision time.
	Personnel(ctx context.Context, unitID string) (stream.Personnel, error)

	// Units lists known units sorted by activity.
	Units(ctx context.Context) ([]UnitListing, error)
}

// classify derives the display status and error flag from raw values.
// Vibration in the normal band stays below 0.35 g; only truly abnormal
// readings flag critical.
func classify(tick *stream.Telemetry) {
	critical := tick.RUL < 1 || tick.Vibration > 0.35
	switch {
	case critical:
		tick.Status = stream.StatusCritical
	case tick.RUL < 10:
		tick.Status = stream.StatusWarning
	default:
		tick.Status = stream.StatusHealthy
	}
	tick.IsError = critical
}
