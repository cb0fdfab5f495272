package domain

import "time"

// Event is one contiguous run of active timesteps for a single
// scenario. End marks the close point (the timestep after the last
// active one, or the forced-close timestep), not the last active
// timestep itself.
type Event struct {
	Scenario ScenarioIndex `json:"scenario_id"`
	Start    Timestep      `json:"start"`
	End      Timestep      `json:"end"`
}

// DurationDays returns the event duration in whole calendar days,
// truncated. This is deliberately a different unit from LengthSteps:
// timestep granularity may vary in calendar length.
func (e Event) DurationDays() int {
	return int(e.End.Date.Sub(e.Start.Date) / (24 * time.Hour))
}

// LengthSteps returns the event length in timesteps. The minimum
// event length filter operates on this unit.
func (e Event) LengthSteps() int {
	return e.End.Index - e.Start.Index
}
