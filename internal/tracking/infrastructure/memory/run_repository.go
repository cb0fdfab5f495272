package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"basin-analytics/internal/tracking/application"
	tracking "basin-analytics/internal/tracking/domain"
)

// RunRepository is an in-memory run store for tests and
// dependency-free runs.
type RunRepository struct {
	mu     sync.RWMutex
	runs   map[string]application.RunRecord
	events map[string][]tracking.Event
}

// NewRunRepository constructs a repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{
		runs:   make(map[string]application.RunRecord),
		events: make(map[string][]tracking.Event),
	}
}

// CreateRun stores a new run record.
func (r *RunRepository) CreateRun(ctx context.Context, record application.RunRecord) error {
	_ = ctx
	if record.ID == "" {
		return errors.New("memory run repo: empty run id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[record.ID]; exists {
		return errors.New("memory run repo: duplicate run id")
	}
	r.runs[record.ID] = record
	return nil
}

// FinalizeRun stores the closed record and its finalized events.
func (r *RunRepository) FinalizeRun(ctx context.Context, record application.RunRecord, events []tracking.Event) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[record.ID]; !exists {
		return application.ErrRunNotFound
	}
	r.runs[record.ID] = record
	r.events[record.ID] = append([]tracking.Event(nil), events...)
	return nil
}

// GetRun loads a run record, nil when unknown.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*application.RunRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// ListRuns returns all records ordered by creation time.
func (r *RunRepository) ListRuns(ctx context.Context) ([]application.RunRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]application.RunRecord, 0, len(r.runs))
	for _, record := range r.runs {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// ListEvents returns the finalized events of a run in closure order.
func (r *RunRepository) ListEvents(ctx context.Context, runID string) ([]tracking.Event, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.runs[runID]; !ok {
		return nil, application.ErrRunNotFound
	}
	return append([]tracking.Event(nil), r.events[runID]...), nil
}
