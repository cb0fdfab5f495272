package domain

import "time"

// Timestep identifies one tick of an externally driven simulation.
// The tracker never advances time itself; it only stores timesteps
// handed to it by the driver. Index is the monotonic position in the
// run, Date is the calendar timestamp used for duration arithmetic.
type Timestep struct {
	Index int
	Date  time.Time
}

// ScenarioIndex identifies one scenario combination of a run.
// GlobalID is dense in [0, N) and stable for the run's lifetime.
type ScenarioIndex struct {
	GlobalID int
}
