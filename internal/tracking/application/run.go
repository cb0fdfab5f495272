package application

import (
	"context"
	"time"

	tracking "basin-analytics/internal/tracking/domain"
)

// RunRecord is the persistent view of a simulation run.
type RunRecord struct {
	ID                 string    `json:"id"`
	ScenarioCount      int       `json:"scenario_count"`
	TotalSteps         int       `json:"total_steps,omitempty"`
	MinimumEventLength int       `json:"minimum_event_length"`
	CreatedAt          time.Time `json:"created_at"`
	FinalizedAt        time.Time `json:"finalized_at,omitempty"`
	LastIndex          int       `json:"last_index"`
	Steps              int       `json:"steps"`
	EventCount         int       `json:"event_count"`
}

// Finalized reports whether the run has been closed.
func (r RunRecord) Finalized() bool {
	return !r.FinalizedAt.IsZero()
}

// StepSample carries one timestep from the driver: the timestep
// descriptor plus the indicator vector, one value per scenario.
type StepSample struct {
	Index  int       `json:"index"`
	Date   time.Time `json:"date"`
	Values []float64 `json:"values"`
}

// Timestep converts the sample to the domain descriptor.
func (s StepSample) Timestep() tracking.Timestep {
	return tracking.Timestep{Index: s.Index, Date: s.Date}
}

// RunRepository persists run records and their finalized events.
type RunRepository interface {
	CreateRun(ctx context.Context, record RunRecord) error
	FinalizeRun(ctx context.Context, record RunRecord, events []tracking.Event) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	ListEvents(ctx context.Context, runID string) ([]tracking.Event, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
