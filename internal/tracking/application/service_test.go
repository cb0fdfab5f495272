package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"testing"
	"time"

	analytics "basin-analytics/internal/analytics/domain"
	tracking "basin-analytics/internal/tracking/domain"
)

type stubRunRepo struct {
	mu     sync.Mutex
	runs   map[string]RunRecord
	events map[string][]tracking.Event

	createErr   error
	finalizeErr error
}

func newStubRunRepo() *stubRunRepo {
	return &stubRunRepo{
		runs:   make(map[string]RunRecord),
		events: make(map[string][]tracking.Event),
	}
}

func (r *stubRunRepo) CreateRun(_ context.Context, record RunRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[record.ID] = record
	return nil
}

func (r *stubRunRepo) FinalizeRun(_ context.Context, record RunRecord, events []tracking.Event) error {
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[record.ID] = record
	r.events[record.ID] = append([]tracking.Event(nil), events...)
	return nil
}

func (r *stubRunRepo) GetRun(_ context.Context, id string) (*RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (r *stubRunRepo) ListRuns(_ context.Context) ([]RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]RunRecord, 0, len(r.runs))
	for _, record := range r.runs {
		records = append(records, record)
	}
	return records, nil
}

func (r *stubRunRepo) ListEvents(_ context.Context, runID string) ([]tracking.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; !ok {
		return nil, ErrRunNotFound
	}
	return append([]tracking.Event(nil), r.events[runID]...), nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestService(t *testing.T, repo RunRepository, minimumEventLength int, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{
		WithClock(&fakeClock{now: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}),
		WithIDFactory(sequentialIDs("run")),
		WithLogger(log.New(&bytes.Buffer{}, "", 0)),
	}
	service, err := NewService(repo, minimumEventLength, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func driveRun(t *testing.T, service *Service, runID string, start time.Time, signal []float64) {
	t.Helper()
	for i, value := range signal {
		step := StepSample{Index: i, Date: start.AddDate(0, 0, i), Values: []float64{value}}
		if err := service.Advance(context.Background(), runID, step); err != nil {
			t.Fatalf("advance step %d: %v", i, err)
		}
	}
}

func TestNewServiceValidatesMinimumEventLength(t *testing.T) {
	if _, err := NewService(newStubRunRepo(), 0); !errors.Is(err, tracking.ErrMinimumEventLength) {
		t.Fatalf("expected ErrMinimumEventLength, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	repo := newStubRunRepo()
	service := newTestService(t, repo, 2)
	ctx := context.Background()

	record, err := service.StartRun(ctx, 1, 7)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if record.ID != "run-1" {
		t.Fatalf("expected run-1, got %s", record.ID)
	}

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	driveRun(t, service, record.ID, start, []float64{0, 1, 1, 1, 0, 0, 0})

	events, err := service.Events(ctx, record.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	final, err := service.Finalize(ctx, record.ID, StepSample{Index: 7, Date: start.AddDate(0, 0, 7)})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !final.Finalized() {
		t.Fatal("expected finalized record")
	}
	if final.EventCount != 1 {
		t.Fatalf("expected event count 1, got %d", final.EventCount)
	}

	// Events now come from the repository.
	persisted, err := service.Events(ctx, record.ID)
	if err != nil {
		t.Fatalf("events after finalize: %v", err)
	}
	if !reflect.DeepEqual(persisted, events) {
		t.Fatalf("persisted events differ:\nlive: %+v\nrepo: %+v", events, persisted)
	}

	durations, err := service.Durations(ctx, record.ID, "")
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if !reflect.DeepEqual(durations, []float64{3}) {
		t.Fatalf("expected [3], got %v", durations)
	}
}

func TestAdvanceUnknownRun(t *testing.T) {
	service := newTestService(t, newStubRunRepo(), 1)
	step := StepSample{Index: 0, Date: time.Now().UTC(), Values: []float64{1}}
	if err := service.Advance(context.Background(), "missing", step); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestAdvanceAfterFinalize(t *testing.T) {
	service := newTestService(t, newStubRunRepo(), 1)
	ctx := context.Background()

	record, err := service.StartRun(ctx, 1, 0)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	driveRun(t, service, record.ID, start, []float64{1, 0})
	if _, err := service.Finalize(ctx, record.ID, StepSample{Index: 2, Date: start.AddDate(0, 0, 2)}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	step := StepSample{Index: 3, Date: start.AddDate(0, 0, 3), Values: []float64{1}}
	if err := service.Advance(ctx, record.ID, step); !errors.Is(err, ErrRunFinalized) {
		t.Fatalf("expected ErrRunFinalized, got %v", err)
	}
}

func TestAdvanceOutOfOrder(t *testing.T) {
	service := newTestService(t, newStubRunRepo(), 1)
	ctx := context.Background()

	record, err := service.StartRun(ctx, 1, 0)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := service.Advance(ctx, record.ID, StepSample{Index: 4, Date: start, Values: []float64{0}}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	err = service.Advance(ctx, record.ID, StepSample{Index: 4, Date: start, Values: []float64{0}})
	if !errors.Is(err, ErrOutOfOrderStep) {
		t.Fatalf("expected ErrOutOfOrderStep, got %v", err)
	}
	err = service.Advance(ctx, record.ID, StepSample{Index: 2, Date: start, Values: []float64{0}})
	if !errors.Is(err, ErrOutOfOrderStep) {
		t.Fatalf("expected ErrOutOfOrderStep, got %v", err)
	}
}

func TestAdvanceShapeMismatchSurfaces(t *testing.T) {
	service := newTestService(t, newStubRunRepo(), 1)
	ctx := context.Background()

	record, err := service.StartRun(ctx, 2, 0)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	step := StepSample{Index: 0, Date: time.Now().UTC(), Values: []float64{1}}
	if err := service.Advance(ctx, record.ID, step); !errors.Is(err, tracking.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestDurationsWithNamedReducer(t *testing.T) {
	service := newTestService(t, newStubRunRepo(), 1)
	ctx := context.Background()

	record, err := service.StartRun(ctx, 1, 0)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	driveRun(t, service, record.ID, start, []float64{1, 1, 0, 1, 1, 1, 0})

	durations, err := service.Durations(ctx, record.ID, "max")
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if durations[0] != 3 {
		t.Fatalf("expected max 3, got %v", durations[0])
	}

	count, err := service.Durations(ctx, record.ID, "count")
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if count[0] != 2 {
		t.Fatalf("expected count 2, got %v", count[0])
	}

	if _, err := service.Durations(ctx, record.ID, "median"); !errors.Is(err, analytics.ErrUnknownReducer) {
		t.Fatalf("expected ErrUnknownReducer, got %v", err)
	}
}

func TestDurationsDefaultReducerOption(t *testing.T) {
	service := newTestService(t, newStubRunRepo(), 1, WithDefaultReducer(analytics.Count))
	ctx := context.Background()

	record, err := service.StartRun(ctx, 1, 0)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	driveRun(t, service, record.ID, start, []float64{1, 0, 1, 0})

	durations, err := service.Durations(ctx, record.ID, "")
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if durations[0] != 2 {
		t.Fatalf("expected count 2 via default reducer, got %v", durations[0])
	}
}

func TestListRunsReflectsLiveProgress(t *testing.T) {
	service := newTestService(t, newStubRunRepo(), 1)
	ctx := context.Background()

	record, err := service.StartRun(ctx, 1, 0)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	driveRun(t, service, record.ID, start, []float64{0, 0, 0})

	records, err := service.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 run, got %d", len(records))
	}
	if records[0].Steps != 3 || records[0].LastIndex != 2 {
		t.Fatalf("expected live progress in listing, got %+v", records[0])
	}
}

func TestFinalizeRepositoryErrorKeepsRunLive(t *testing.T) {
	repo := newStubRunRepo()
	service := newTestService(t, repo, 1)
	ctx := context.Background()

	record, err := service.StartRun(ctx, 1, 0)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	driveRun(t, service, record.ID, start, []float64{1, 0})

	repo.finalizeErr = errors.New("boom")
	if _, err := service.Finalize(ctx, record.ID, StepSample{Index: 2, Date: start.AddDate(0, 0, 2)}); err == nil {
		t.Fatal("expected finalize error")
	}

	repo.finalizeErr = nil
	final, err := service.Finalize(ctx, record.ID, StepSample{Index: 2, Date: start.AddDate(0, 0, 2)})
	if err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if final.EventCount != 1 {
		t.Fatalf("expected event count 1, got %d", final.EventCount)
	}
}
