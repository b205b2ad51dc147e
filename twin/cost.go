// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"math"

	"github.com/gantry-systems/gantry/stream"
)

// Cost model for the three-way maintenance comparison. Reactive is the
// average unplanned-failure cost (parts, downtime, labor); preventive
// is scheduled maintenance that over-maintains; predictive is the
// just-in-time swap this system exists to enable.
const (
	// PartCost is the express-shipping part cost fed into every
	// decision.
	PartCost = 350.0

	costReactive   = 18_500.0
	costPreventive = 7_200.0
	costPredictive = 2_800.0

	downtimeReactiveHours   = 48.0
	downtimePreventiveHours = 8.0
	downtimePredictiveHours = 2.0
)

// costComparison builds the reactive/preventive/predictive comparison
// block with precomputed savings.
func costComparison() *stream.CostComparison {
	return &stream.CostComparison{
		Reactive: stream.CostOption{
			Label:         "Reactive (Run-to-Failure)",
			Cost:          costReactive,
			DowntimeHours: downtimeReactiveHours,
			Description:   "No monitoring: wait for catastrophic failure, emergency repair.",
		},
		Preventive: stream.CostOption{
			Label:         "Preventive (Scheduled)",
			Cost:          costPreventive,
			DowntimeHours: downtimePreventiveHours,
			Description:   "Fixed-interval maintenance that often replaces healthy parts.",
		},
		Predictive: stream.CostOption{
			Label:         "Predictive (Gantry)",
			Cost:          costPredictive,
			DowntimeHours: downtimePredictiveHours,
			Description:   "Just-in-time part swap during the optimal shift window.",
		},
		SavingsVsReactive:    costReactive - costPredictive,
		SavingsVsPreventive:  costPreventive - costPredictive,
		SavingsPctReactive:   roundPct(1 - costPredictive/costReactive),
		SavingsPctPreventive: roundPct(1 - costPredictive/costPreventive),
	}
}

// roundPct converts a fraction to a percentage rounded to one decimal.
func roundPct(fraction float64) float64 {
	return math.Round(fraction*1000) / 10
}
