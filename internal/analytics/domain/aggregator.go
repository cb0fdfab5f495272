package domain

import (
	"errors"

	tracking "basin-analytics/internal/tracking/domain"
)

// EventSource provides finalized events and the scenario count of the
// run that produced them. *tracking.Tracker satisfies it.
type EventSource interface {
	Events() []tracking.Event
	ScenarioCount() int
}

// DurationAggregator reduces event durations into one value per
// scenario. Durations are measured in whole calendar days, not
// timesteps; the tracker's minimum length filter uses timesteps, the
// two units are deliberately different.
//
// Scenarios without events keep their zero-initialized output: the
// result for an eventless scenario is 0.0, not a missing-value
// marker. Downstream consumers that need "no data" semantics must
// derive them from the event list instead.
type DurationAggregator struct {
	source EventSource
	reduce Reducer
}

// AggregatorOption customizes a DurationAggregator.
type AggregatorOption func(*DurationAggregator)

// WithReducer overrides the default sum reducer.
func WithReducer(reduce Reducer) AggregatorOption {
	return func(a *DurationAggregator) {
		if reduce != nil {
			a.reduce = reduce
		}
	}
}

// NewDurationAggregator constructs an aggregator over source.
func NewDurationAggregator(source EventSource, opts ...AggregatorOption) (*DurationAggregator, error) {
	if source == nil {
		return nil, errors.New("analytics: nil event source")
	}
	aggregator := &DurationAggregator{source: source, reduce: Sum}
	for _, opt := range opts {
		opt(aggregator)
	}
	return aggregator, nil
}

// Compute partitions the finalized events by scenario, reduces each
// group's durations and returns a dense array indexed by scenario
// global id. An empty event list yields an all-zero array.
func (a *DurationAggregator) Compute() []float64 {
	scenarios := a.source.ScenarioCount()
	values := make([]float64, scenarios)
	if scenarios == 0 {
		return values
	}

	groups := make([][]float64, scenarios)
	for _, evt := range a.source.Events() {
		id := evt.Scenario.GlobalID
		if id < 0 || id >= scenarios {
			continue
		}
		groups[id] = append(groups[id], float64(evt.DurationDays()))
	}

	for id, durations := range groups {
		if len(durations) == 0 {
			continue
		}
		values[id] = a.reduce(durations)
	}
	return values
}
