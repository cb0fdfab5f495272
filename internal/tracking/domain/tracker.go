package domain

import "fmt"

// Stats counts tracker state transitions since the last Reset.
type Stats struct {
	Opened    int
	Recorded  int
	Discarded int
	Forced    int
}

// Tracker detects threshold events across scenarios. For each
// scenario it keeps at most one open event; events that close before
// reaching the minimum length are dropped. The minimum length filter
// suppresses spurious activations from signal oscillation near a
// threshold.
//
// A Tracker is owned by a single driver: Advance is called once per
// timestep in strict order and must not be called concurrently.
type Tracker struct {
	minimumEventLength int
	scenarios          int
	finalized          []Event
	open               []*Event
	stats              Stats
}

// NewTracker constructs a tracker. minimumEventLength is measured in
// timesteps and must be at least one; one records every event.
func NewTracker(minimumEventLength int) (*Tracker, error) {
	if minimumEventLength < 1 {
		return nil, ErrMinimumEventLength
	}
	return &Tracker{minimumEventLength: minimumEventLength}, nil
}

// Reset prepares the tracker for a fresh run with scenarioCount
// scenario combinations. It discards all finalized and open events
// and may be called again to start over.
func (t *Tracker) Reset(scenarioCount int) error {
	if scenarioCount < 1 {
		return ErrScenarioCount
	}
	t.scenarios = scenarioCount
	t.finalized = nil
	t.open = make([]*Event, scenarioCount)
	t.stats = Stats{}
	return nil
}

// Advance feeds the indicator vector for one timestep. A non-zero
// value means the scenario is active this step; the indicator may
// originate from a boolean, an index or a continuous value. The
// vector length must equal the scenario count given to Reset.
func (t *Tracker) Advance(ts Timestep, indicators []float64) error {
	if t.open == nil {
		return ErrNotReset
	}
	if len(indicators) != t.scenarios {
		return fmt.Errorf("%w: got %d values for %d scenarios", ErrShapeMismatch, len(indicators), t.scenarios)
	}

	for i, value := range indicators {
		triggered := value != 0
		current := t.open[i]

		if current != nil {
			if triggered {
				// Event continues.
				continue
			}
			current.End = ts
			if current.LengthSteps() >= t.minimumEventLength {
				t.finalized = append(t.finalized, *current)
				t.stats.Recorded++
			} else {
				// Too short: dropped, never retried or merged.
				t.stats.Discarded++
			}
			t.open[i] = nil
			continue
		}

		if triggered {
			t.open[i] = &Event{Scenario: ScenarioIndex{GlobalID: i}, Start: ts}
			t.stats.Opened++
		}
	}
	return nil
}

// Finalize force-closes every still-open event at ts and records it
// unconditionally. Events still running at the end of a run bypass
// the minimum length filter: their true length is unknown, they may
// have continued past the observation window. Idempotent when no
// events are open.
func (t *Tracker) Finalize(ts Timestep) {
	for i, current := range t.open {
		if current == nil {
			continue
		}
		current.End = ts
		t.finalized = append(t.finalized, *current)
		t.stats.Recorded++
		t.stats.Forced++
		t.open[i] = nil
	}
}

// Events returns the finalized events in closure order. The slice is
// empty for a run with no qualifying events; callers must treat that
// as a normal result.
func (t *Tracker) Events() []Event {
	return t.finalized
}

// ScenarioCount returns the scenario count of the current run, zero
// before the first Reset.
func (t *Tracker) ScenarioCount() int {
	return t.scenarios
}

// MinimumEventLength returns the configured filter length.
func (t *Tracker) MinimumEventLength() int {
	return t.minimumEventLength
}

// Stats returns transition counts since the last Reset.
func (t *Tracker) Stats() Stats {
	return t.stats
}
