// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"context"
	"testing"
	"time"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

func TestSimulatorDegradesPerRead(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	sim := NewSimulator(fakeClock, []string{"ENGINE-001"}, 125)

	first, err := sim.Latest(context.Background(), "ENGINE-001")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	second, _ := sim.Latest(context.Background(), "ENGINE-001")

	if first.RUL != 124 || second.RUL != 123 {
		t.Fatalf("rul sequence = %v, %v", first.RUL, second.RUL)
	}
	if second.Cycle != first.Cycle+1 {
		t.Fatalf("cycle did not advance: %d then %d", first.Cycle, second.Cycle)
	}
	if first.Status != stream.StatusHealthy {
		t.Fatalf("fresh unit status = %q", first.Status)
	}
}

func TestSimulatorUnknownUnitCreatedOnAccess(t *testing.T) {
	sim := NewSimulator(clock.Fake(time.Now()), nil, 125)
	tick, err := sim.Latest(context.Background(), "ENGINE-099")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if tick.UnitID != "ENGINE-099" || tick.RUL != 124 {
		t.Fatalf("tick = %+v", tick)
	}
}

func TestSimulatorFailForcesCritical(t *testing.T) {
	sim := NewSimulator(clock.Fake(time.Now()), []string{"ENGINE-001"}, 125)
	if err := sim.Fail("ENGINE-001"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	tick, _ := sim.Latest(context.Background(), "ENGINE-001")
	if tick.RUL != 0 || tick.Status != stream.StatusCritical || !tick.IsError {
		t.Fatalf("failed unit tick = %+v", tick)
	}

	// Labor window shrinks near failure.
	personnel, _ := sim.Personnel(context.Background(), "ENGINE-001")
	if personnel.HoursUntilShiftEnd != 2.0 {
		t.Fatalf("shift hours = %v", personnel.HoursUntilShiftEnd)
	}

	if err := sim.Fail("ENGINE-404"); err == nil {
		t.Fatal("Fail accepted an unknown unit")
	}
}

func TestSimulatorUnitsOrdering(t *testing.T) {
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	sim := NewSimulator(fakeClock, []string{"ENGINE-001", "ENGINE-002", "ENGINE-003"}, 125)

	// ENGINE-002 is read twice, ENGINE-003 once; ENGINE-001 never.
	sim.Latest(context.Background(), "ENGINE-002")
	sim.Latest(context.Background(), "ENGINE-002")
	sim.Latest(context.Background(), "ENGINE-003")

	listings, err := sim.Units(context.Background())
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("got %d listings", len(listings))
	}
	if listings[0].UnitID != "ENGINE-002" || listings[1].UnitID != "ENGINE-003" || listings[2].UnitID != "ENGINE-001" {
		t.Fatalf("order = %s, %s, %s", listings[0].UnitID, listings[1].UnitID, listings[2].UnitID)
	}
	if listings[2].Active {
		t.Fatal("never-read unit reported active")
	}

	// Activity decays after a minute without reads.
	fakeClock.Advance(2 * time.Minute)
	listings, _ = sim.Units(context.Background())
	for _, listing := range listings {
		if listing.Active {
			t.Fatalf("%s still active after idle period", listing.UnitID)
		}
	}
}
