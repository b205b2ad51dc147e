// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

// Pump drives one client's telemetry stream. Healthy: the latest
// source row every LiveInterval. Halted: the frozen snapshot every
// FrozenInterval so the downtime counter feels live. During the grace
// window a failure row still held by the source is replaced with a
// synthetic healthy payload so the dashboard snaps back immediately.
type Pump struct {
	state  *State
	source TelemetrySource
	hub    *Hub
	clk    clock.Clock
	logger *slog.Logger

	LiveInterval   time.Duration
	FrozenInterval time.Duration
}

// NewPump wires a Pump with the standard intervals.
func NewPump(state *State, source TelemetrySource, hub *Hub, clk clock.Clock, logger *slog.Logger) *Pump {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		state:          state,
		source:         source,
		hub:            hub,
		clk:            clk,
		logger:         logger.With("component", "pump"),
		LiveInterval:   5 * time.Second,
		FrozenInterval: 2 * time.Second,
	}
}

// Serve streams telemetry for unitID to conn until ctx is cancelled or
// the write side fails.
func (p *Pump) Serve(ctx context.Context, conn *websocket.Conn, unitID string) {
	for {
		interval := p.LiveInterval
		frame, err := p.nextFrame(ctx, unitID)
		if err != nil {
			p.logger.Warn("telemetry read failed", "unit_id", unitID, "error", err)
		} else if frame != nil {
			if frame.SystemHalted {
				interval = p.FrozenInterval
			}
			if err := p.hub.Send(conn, stream.FrameTelemetry, frame); err != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-p.clk.After(interval):
		}
	}
}

// nextFrame picks the payload for one tick: frozen snapshot while
// halted, synthetic healthy during an unexpired grace window that the
// source hasn't caught up with, else the live row.
func (p *Pump) nextFrame(ctx context.Context, unitID string) (*stream.Telemetry, error) {
	if frozen := p.state.FrozenTick(); frozen != nil {
		return frozen, nil
	}

	tick, err := p.source.Latest(ctx, unitID)
	if err != nil {
		return nil, err
	}

	if p.state.InGrace() && tick.RUL < 1 {
		return p.syntheticHealthy(unitID, tick.Cycle), nil
	}

	classify(tick)
	p.state.RecordLive(tick)
	return tick, nil
}

// syntheticHealthy is the grace-window payload: safe healthy values in
// the normal operating band.
func (p *Pump) syntheticHealthy(unitID string, cycle int) *stream.Telemetry {
	return &stream.Telemetry{
		UnitID:    unitID,
		Cycle:     cycle,
		RUL:       125,
		Vibration: 0.115,
		SensorS11: 23.0,
		Status:    stream.StatusHealthy,
		Timestamp: p.clk.Now().UTC().Format(time.RFC3339),
	}
}
