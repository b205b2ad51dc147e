// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package incident

import (
	"sync"

	"github.com/gantry-systems/gantry/stream"
)

// Timeline accumulates the ordered step events of the currently
// running orchestration. Steps are unique by identifier — a
// redelivered identifier is a no-op — and render in first-arrival
// order: arrival, not any sort key, is the only ordering guarantee.
//
// Run boundaries are detected two ways:
//
//   - Steps tagged with a run ID: a differing run ID clears the
//     timeline before applying. This is the authoritative signal.
//   - Untagged lists (ApplyList with an empty run ID): a list shorter
//     than what the timeline holds means a new run has started, so the
//     timeline clears first. This length heuristic is all that
//     untagged producers offer; it can misfire when a new run happens
//     to produce at least as many steps as the previous one before the
//     comparison, which is why tagged steps are preferred. The
//     heuristic never applies to lists tagged with the current run ID:
//     those are summaries of steps already streamed and merge as-is.
type Timeline struct {
	mu    sync.Mutex
	runID string
	steps []stream.Step
	seen  map[int]struct{}
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[int]struct{})}
}

// Apply folds one step event into the timeline. Returns true when the
// step was appended, false when it was deduplicated.
func (t *Timeline) Apply(step stream.Step) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if step.RunID != "" && step.RunID != t.runID {
		t.resetLocked()
		t.runID = step.RunID
	}
	if _, duplicate := t.seen[step.ID]; duplicate {
		return false
	}
	t.seen[step.ID] = struct{}{}
	t.steps = append(t.steps, step)
	return true
}

// ApplyList folds an authoritative step list (for example the
// orchestrate response's accumulated log) into the timeline. A
// differing tagged run ID clears the timeline first; an untagged list
// carrying fewer steps than the timeline holds signals a new run and
// also clears. A list tagged with the current run ID never clears,
// however short: it summarizes steps the stream already delivered.
// Surviving entries merge with the usual per-identifier dedup,
// preserving first arrival.
func (t *Timeline) ApplyList(runID string, steps []stream.Step) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case runID != "" && runID != t.runID:
		t.resetLocked()
		t.runID = runID
	case runID == "" && len(steps) < len(t.steps):
		t.resetLocked()
		t.runID = ""
	}

	for _, step := range steps {
		if _, duplicate := t.seen[step.ID]; duplicate {
			continue
		}
		t.seen[step.ID] = struct{}{}
		t.steps = append(t.steps, step)
	}
}

// Reset clears the timeline explicitly (full reset on system_resumed).
func (t *Timeline) Reset() {
	t.mu.Lock()
	t.resetLocked()
	t.runID = ""
	t.mu.Unlock()
}

func (t *Timeline) resetLocked() {
	t.steps = nil
	t.seen = make(map[int]struct{})
}

// Steps returns a copy of the accumulated steps in first-arrival
// order.
func (t *Timeline) Steps() []stream.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	steps := make([]stream.Step, len(t.steps))
	copy(steps, t.steps)
	return steps
}

// Len returns the number of accumulated steps.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}

// RunID returns the run identifier of the current timeline, empty for
// untagged producers.
func (t *Timeline) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runID
}
