package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	analytics "basin-analytics/internal/analytics/domain"
	"basin-analytics/internal/observability/metrics"
	tracking "basin-analytics/internal/tracking/domain"
)

// Service manages simulation runs. Each run owns one tracker; the
// service serializes access so the per-run single-driver contract
// holds even when steps arrive over HTTP.
type Service struct {
	mu   sync.Mutex
	live map[string]*runState

	repo               RunRepository
	clock              Clock
	logger             *log.Logger
	minimumEventLength int
	defaultReducer     analytics.Reducer
	progressEnabled    bool
	newID              func() string
}

type runState struct {
	record   RunRecord
	tracker  *tracking.Tracker
	progress *progressMeter
	// Transition counts already published to metrics.
	published tracking.Stats
}

// ServiceOption customizes the run service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultReducer overrides the default duration reducer.
func WithDefaultReducer(reduce analytics.Reducer) ServiceOption {
	return func(s *Service) {
		if reduce != nil {
			s.defaultReducer = reduce
		}
	}
}

// WithProgressLog enables progress logging for runs that declare a
// total step count.
func WithProgressLog(enabled bool) ServiceOption {
	return func(s *Service) {
		s.progressEnabled = enabled
	}
}

// WithIDFactory overrides run id generation.
func WithIDFactory(factory func() string) ServiceOption {
	return func(s *Service) {
		if factory != nil {
			s.newID = factory
		}
	}
}

// NewService constructs a run service. minimumEventLength applies to
// every run and is validated here, before any run starts.
func NewService(repo RunRepository, minimumEventLength int, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("runs: nil repository")
	}
	if minimumEventLength < 1 {
		return nil, tracking.ErrMinimumEventLength
	}
	service := &Service{
		live:               make(map[string]*runState),
		repo:               repo,
		clock:              systemClock{},
		logger:             log.Default(),
		minimumEventLength: minimumEventLength,
		defaultReducer:     analytics.Sum,
		newID:              uuid.NewString,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// StartRun opens a new run for scenarioCount scenario combinations.
// totalSteps may be zero when the driver does not know the run length
// up front; progress logging then stays silent.
func (s *Service) StartRun(ctx context.Context, scenarioCount, totalSteps int) (RunRecord, error) {
	tracker, err := tracking.NewTracker(s.minimumEventLength)
	if err != nil {
		return RunRecord{}, err
	}
	if err := tracker.Reset(scenarioCount); err != nil {
		return RunRecord{}, err
	}

	record := RunRecord{
		ID:                 s.newID(),
		ScenarioCount:      scenarioCount,
		TotalSteps:         totalSteps,
		MinimumEventLength: s.minimumEventLength,
		CreatedAt:          s.clock.Now().UTC(),
		LastIndex:          -1,
	}
	if err := s.repo.CreateRun(ctx, record); err != nil {
		return RunRecord{}, err
	}

	state := &runState{record: record, tracker: tracker}
	if s.progressEnabled && totalSteps > 0 {
		state.progress = newProgressMeter(record.ID, totalSteps, scenarioCount, s.clock, s.logger)
	}

	s.mu.Lock()
	s.live[record.ID] = state
	s.mu.Unlock()

	metrics.IncRunStarted()
	s.logger.Printf("run %s started: %d scenarios, minimum event length %d", record.ID, scenarioCount, s.minimumEventLength)
	return record, nil
}

// Advance feeds one timestep into a run.
func (s *Service) Advance(ctx context.Context, runID string, step StepSample) error {
	started := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.live[runID]
	if !ok {
		if record, err := s.repo.GetRun(ctx, runID); err == nil && record != nil && record.Finalized() {
			return ErrRunFinalized
		}
		return ErrRunNotFound
	}
	if step.Index <= state.record.LastIndex {
		return fmt.Errorf("%w: index %d after %d", ErrOutOfOrderStep, step.Index, state.record.LastIndex)
	}

	if err := state.tracker.Advance(step.Timestep(), step.Values); err != nil {
		metrics.ObserveStep(metrics.ResultError, s.clock.Now().Sub(started))
		return err
	}
	state.record.LastIndex = step.Index
	state.record.Steps++
	state.publishStats(metrics.ClosureClosed)
	if state.progress != nil {
		state.progress.Observe(state.record.Steps)
	}
	metrics.ObserveStep(metrics.ResultSuccess, s.clock.Now().Sub(started))
	return nil
}

// Finalize force-closes any open events at the given timestep,
// persists the finalized event list and closes the run.
func (s *Service) Finalize(ctx context.Context, runID string, step StepSample) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.live[runID]
	if !ok {
		if record, err := s.repo.GetRun(ctx, runID); err == nil && record != nil && record.Finalized() {
			return *record, ErrRunFinalized
		}
		return RunRecord{}, ErrRunNotFound
	}

	state.tracker.Finalize(step.Timestep())
	state.publishStats(metrics.ClosureForced)

	events := state.tracker.Events()
	state.record.FinalizedAt = s.clock.Now().UTC()
	state.record.EventCount = len(events)
	if err := s.repo.FinalizeRun(ctx, state.record, events); err != nil {
		state.record.FinalizedAt = time.Time{}
		state.record.EventCount = 0
		return RunRecord{}, err
	}
	delete(s.live, runID)

	metrics.IncRunFinalized()
	stats := state.tracker.Stats()
	s.logger.Printf("run %s finalized: %d events recorded, %d discarded, %d forced", runID, stats.Recorded, stats.Discarded, stats.Forced)
	return state.record, nil
}

// GetRun returns the current record for a run, live or persisted.
func (s *Service) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	s.mu.Lock()
	if state, ok := s.live[runID]; ok {
		record := state.record
		s.mu.Unlock()
		return record, nil
	}
	s.mu.Unlock()

	record, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return RunRecord{}, err
	}
	if record == nil {
		return RunRecord{}, ErrRunNotFound
	}
	return *record, nil
}

// ListRuns returns all known runs. Records of live runs reflect their
// in-memory progress.
func (s *Service) ListRuns(ctx context.Context) ([]RunRecord, error) {
	records, err := s.repo.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, record := range records {
		if state, ok := s.live[record.ID]; ok {
			records[i] = state.record
		}
	}
	return records, nil
}

// Events returns the finalized events of a run in closure order. For
// a live run these are the events closed so far.
func (s *Service) Events(ctx context.Context, runID string) ([]tracking.Event, error) {
	s.mu.Lock()
	if state, ok := s.live[runID]; ok {
		events := append([]tracking.Event(nil), state.tracker.Events()...)
		s.mu.Unlock()
		return events, nil
	}
	s.mu.Unlock()

	record, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRunNotFound
	}
	return s.repo.ListEvents(ctx, runID)
}

// Durations aggregates event durations per scenario. reducerName
// selects the reduction; empty uses the service default.
func (s *Service) Durations(ctx context.Context, runID, reducerName string) ([]float64, error) {
	reduce := s.defaultReducer
	if reducerName != "" {
		parsed, err := analytics.ParseReducer(reducerName)
		if err != nil {
			return nil, err
		}
		reduce = parsed
	}

	record, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := s.Events(ctx, runID)
	if err != nil {
		return nil, err
	}

	aggregator, err := analytics.NewDurationAggregator(
		eventList{events: events, scenarios: record.ScenarioCount},
		analytics.WithReducer(reduce),
	)
	if err != nil {
		return nil, err
	}
	return aggregator.Compute(), nil
}

// publishStats forwards new tracker transitions to metrics. recorded
// deltas are attributed to the given closure kind.
func (st *runState) publishStats(closure string) {
	stats := st.tracker.Stats()
	metrics.AddEventsOpened(stats.Opened - st.published.Opened)
	metrics.AddEventsRecorded(closure, stats.Recorded-st.published.Recorded)
	metrics.AddEventsDiscarded(stats.Discarded - st.published.Discarded)
	st.published = stats
}

// eventList adapts a persisted event slice to the aggregator's
// EventSource contract.
type eventList struct {
	events    []tracking.Event
	scenarios int
}

func (l eventList) Events() []tracking.Event { return l.events }
func (l eventList) ScenarioCount() int       { return l.scenarios }
