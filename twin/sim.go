// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

// Simulator is a deterministic TelemetrySource: each unit degrades
// linearly from its initial RUL, one cycle per read, with vibration
// rising as the unit wears. It exists so the server runs without a
// telemetry store behind it.
type Simulator struct {
	clk clock.Clock

	mu    sync.Mutex
	units map[string]*simUnit
}

type simUnit struct {
	cycle      int
	rul        float64
	lastAccess time.Time
	reads      int
}

// NewSimulator creates a Simulator pre-seeded with the given units,
// each starting at the given RUL.
func NewSimulator(clk clock.Clock, unitIDs []string, initialRUL float64) *Simulator {
	if clk == nil {
		clk = clock.Real()
	}
	units := make(map[string]*simUnit, len(unitIDs))
	for _, id := range unitIDs {
		units[id] = &simUnit{cycle: 1, rul: initialRUL}
	}
	return &Simulator{clk: clk, units: units}
}

// Latest advances the unit one cycle and returns its current row.
// Unknown units are created on first access so any unit a client asks
// for exists.
func (s *Simulator) Latest(_ context.Context, unitID string) (*stream.Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[unitID]
	if !ok {
		unit = &simUnit{cycle: 1, rul: 125}
		s.units[unitID] = unit
	}
	unit.cycle++
	if unit.rul > 0 {
		unit.rul--
	}
	unit.reads++
	unit.lastAccess = s.clk.Now()

	// Vibration climbs as RUL falls: comfortable near 0.11 g when
	// healthy, past 0.35 g at failure.
	wear := math.Max(0, 1-unit.rul/125)
	tick := &stream.Telemetry{
		UnitID:    unitID,
		Cycle:     unit.cycle,
		RUL:       unit.rul,
		Vibration: math.Round((0.11+wear*0.3)*1e6) / 1e6,
		SensorS11: 23.0 + wear*30,
		Timestamp: s.clk.Now().UTC().Format(time.RFC3339),
	}
	classify(tick)
	return tick, nil
}

// Personnel reports a technician on shift with a fixed window. The
// window shrinks as the simulated unit degrades so veto-worthy labor
// mismatches are reachable in demos.
func (s *Simulator) Personnel(_ context.Context, unitID string) (stream.Personnel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hours := 4.5
	if unit, ok := s.units[unitID]; ok && unit.rul < 5 {
		hours = 2.0
	}
	return stream.Personnel{Available: true, HoursUntilShiftEnd: hours}, nil
}

// Units lists the simulated units, most recently read first.
func (s *Simulator) Units(_ context.Context) ([]UnitListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	listings := make([]UnitListing, 0, len(s.units))
	for id, unit := range s.units {
		rul := unit.rul
		cycle := unit.cycle
		listing := UnitListing{
			UnitID:   id,
			DocCount: unit.reads,
			Active:   !unit.lastAccess.IsZero() && now.Sub(unit.lastAccess) < time.Minute,
			RUL:      &rul,
			Cycle:    &cycle,
		}
		if !unit.lastAccess.IsZero() {
			listing.LastSeen = unit.lastAccess.UTC().Format(time.RFC3339)
		}
		listings = append(listings, listing)
	}
	sortListings(listings)
	return listings, nil
}

// Fail forces a unit to RUL 0 so a failure can be injected on demand.
func (s *Simulator) Fail(unitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[unitID]
	if !ok {
		return fmt.Errorf("twin: unknown unit %q", unitID)
	}
	unit.rul = 0
	return nil
}

// sortListings orders active units first, then by read count
// descending, then by unit ID for stability.
func sortListings(listings []UnitListing) {
	sort.Slice(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if a.Active != b.Active {
			return a.Active
		}
		if a.DocCount != b.DocCount {
			return a.DocCount > b.DocCount
		}
		return a.UnitID < b.UnitID
	})
}
