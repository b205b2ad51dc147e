// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the timer-heavy parts of Gantry:
// reconnect backoff, the post-resume grace window, telemetry push
// intervals, and orchestration step pacing. Production code injects
// Real(); tests inject Fake() and advance time deterministically.
package clock

import "time"

// Clock is the time surface used throughout Gantry. Any function that
// would otherwise call time.Now, time.After, time.AfterFunc, or
// time.NewTicker takes a Clock instead (or is a method on a struct
// holding one).
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once duration d has
	// elapsed. A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run after duration d. The returned
	// Timer cancels the pending call via Stop; its C field is nil,
	// matching time.AfterFunc.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering on C every d. Panics if
	// d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a cancellable scheduled event. For AfterFunc timers C is
// nil.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop cancels the timer. Returns false if it already fired or was
// already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker delivers periodic ticks on C. C has capacity 1; ticks the
// consumer misses are dropped, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}
