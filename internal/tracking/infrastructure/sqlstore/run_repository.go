// Package sqlstore persists runs and events through database/sql.
// The schema and placeholders are portable between the pgx driver
// (Postgres) and modernc.org/sqlite (embedded), which are the two
// drivers the service wires.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"basin-analytics/internal/tracking/application"
	tracking "basin-analytics/internal/tracking/domain"
)

const (
	defaultRunsTable   = "simulation_runs"
	defaultEventsTable = "simulation_events"
)

// RunRepository is a SQL-backed run store.
type RunRepository struct {
	db          *sql.DB
	runsTable   string
	eventsTable string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*RunRepository)

// WithTables overrides the default table names.
func WithTables(runsTable, eventsTable string) RepositoryOption {
	return func(repo *RunRepository) {
		if runsTable != "" {
			repo.runsTable = runsTable
		}
		if eventsTable != "" {
			repo.eventsTable = eventsTable
		}
	}
}

// NewRunRepository creates a repository using the default table names.
func NewRunRepository(db *sql.DB, opts ...RepositoryOption) (*RunRepository, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	repo := &RunRepository{
		db:          db,
		runsTable:   defaultRunsTable,
		eventsTable: defaultEventsTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// EnsureSchema creates the run and event tables when missing.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	runs := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	scenario_count INTEGER NOT NULL,
	total_steps INTEGER NOT NULL,
	minimum_event_length INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	finalized_at TIMESTAMP,
	last_index INTEGER NOT NULL,
	steps INTEGER NOT NULL,
	event_count INTEGER NOT NULL
)`, r.runsTable)
	if _, err := r.db.ExecContext(ctx, runs); err != nil {
		return err
	}

	events := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	scenario_id INTEGER NOT NULL,
	start_index INTEGER NOT NULL,
	start_date TIMESTAMP NOT NULL,
	end_index INTEGER NOT NULL,
	end_date TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, seq)
)`, r.eventsTable)
	_, err := r.db.ExecContext(ctx, events)
	return err
}

// CreateRun inserts a new run record.
func (r *RunRepository) CreateRun(ctx context.Context, record application.RunRecord) error {
	if record.ID == "" {
		return errors.New("sqlstore: empty run id")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, scenario_count, total_steps, minimum_event_length, created_at, finalized_at, last_index, steps, event_count)
VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8)`, r.runsTable)
	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.ScenarioCount,
		record.TotalSteps,
		record.MinimumEventLength,
		record.CreatedAt.UTC(),
		record.LastIndex,
		record.Steps,
		record.EventCount,
	)
	return err
}

// FinalizeRun updates the closed record and appends its events in
// closure order, in one transaction.
func (r *RunRepository) FinalizeRun(ctx context.Context, record application.RunRecord, events []tracking.Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	update := fmt.Sprintf(`
UPDATE %s
SET finalized_at = $1, last_index = $2, steps = $3, event_count = $4
WHERE id = $5`, r.runsTable)
	result, err := tx.ExecContext(ctx, update,
		record.FinalizedAt.UTC(),
		record.LastIndex,
		record.Steps,
		len(events),
		record.ID,
	)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return application.ErrRunNotFound
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (run_id, seq, scenario_id, start_index, start_date, end_index, end_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.eventsTable)
	for seq, evt := range events {
		if _, err := tx.ExecContext(ctx, insert,
			record.ID,
			seq,
			evt.Scenario.GlobalID,
			evt.Start.Index,
			evt.Start.Date.UTC(),
			evt.End.Index,
			evt.End.Date.UTC(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRun loads a run record, nil when unknown.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*application.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT id, scenario_count, total_steps, minimum_event_length, created_at, finalized_at, last_index, steps, event_count
FROM %s
WHERE id = $1`, r.runsTable)
	record, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListRuns returns all records ordered by creation time.
func (r *RunRepository) ListRuns(ctx context.Context) ([]application.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT id, scenario_count, total_steps, minimum_event_length, created_at, finalized_at, last_index, steps, event_count
FROM %s
ORDER BY created_at, id`, r.runsTable)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []application.RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// ListEvents returns a run's finalized events in closure order.
func (r *RunRepository) ListEvents(ctx context.Context, runID string) ([]tracking.Event, error) {
	record, err := r.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, application.ErrRunNotFound
	}

	query := fmt.Sprintf(`
SELECT scenario_id, start_index, start_date, end_index, end_date
FROM %s
WHERE run_id = $1
ORDER BY seq`, r.eventsTable)
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]tracking.Event, 0)
	for rows.Next() {
		var evt tracking.Event
		if err := rows.Scan(
			&evt.Scenario.GlobalID,
			&evt.Start.Index,
			&evt.Start.Date,
			&evt.End.Index,
			&evt.End.Date,
		); err != nil {
			return nil, err
		}
		evt.Start.Date = evt.Start.Date.UTC()
		evt.End.Date = evt.End.Date.UTC()
		events = append(events, evt)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*application.RunRecord, error) {
	var (
		record      application.RunRecord
		finalizedAt sql.NullTime
	)
	if err := row.Scan(
		&record.ID,
		&record.ScenarioCount,
		&record.TotalSteps,
		&record.MinimumEventLength,
		&record.CreatedAt,
		&finalizedAt,
		&record.LastIndex,
		&record.Steps,
		&record.EventCount,
	); err != nil {
		return nil, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	if finalizedAt.Valid {
		record.FinalizedAt = finalizedAt.Time.UTC()
	}
	return &record, nil
}
