// Command simulate replays an indicator matrix from CSV through the
// event tracker offline and writes the resulting event table and
// per-scenario duration summary, optionally persisting the run to
// sqlite.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	analytics "basin-analytics/internal/analytics/domain"
	"basin-analytics/internal/export"
	"basin-analytics/internal/tracking/application"
	tracking "basin-analytics/internal/tracking/domain"
	"basin-analytics/internal/tracking/infrastructure/memory"
	"basin-analytics/internal/tracking/infrastructure/sqlstore"
	"basin-analytics/internal/tracking/threshold"
)

type runSettings struct {
	Start              string  `yaml:"start"`
	StepHours          int     `yaml:"step_hours"`
	MinimumEventLength int     `yaml:"minimum_event_length"`
	Reducer            string  `yaml:"reducer"`
	Threshold          float64 `yaml:"threshold"`
}

func defaultRunSettings() runSettings {
	return runSettings{
		Start:              "2025-01-01",
		StepHours:          24,
		MinimumEventLength: 1,
		Reducer:            "sum",
	}
}

// matrixRecorder replays one CSV row per timestep. It satisfies the
// Recorder collaborator shape so the run goes through the same source
// resolution as a live driver.
type matrixRecorder struct {
	rows      [][]float64
	threshold float64
	current   int
}

func (m *matrixRecorder) Values() []float64 {
	row := m.rows[m.current]
	values := make([]float64, len(row))
	for i, value := range row {
		if value > m.threshold {
			values[i] = 1
		}
	}
	return values
}

func main() {
	var (
		inputPath    = flag.String("input", "", "CSV indicator matrix, one row per timestep")
		settingsPath = flag.String("settings", "", "optional yaml run settings")
		outDir       = flag.String("out", ".", "output directory")
		dbDSN        = flag.String("sqlite", "", "optional sqlite dsn to persist the run")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if *inputPath == "" {
		logger.Fatal("missing -input")
	}

	settings := defaultRunSettings()
	if *settingsPath != "" {
		data, err := os.ReadFile(*settingsPath)
		if err != nil {
			logger.Fatalf("read settings: %v", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			logger.Fatalf("parse settings: %v", err)
		}
	}

	start, err := time.Parse("2006-01-02", settings.Start)
	if err != nil {
		logger.Fatalf("parse start date: %v", err)
	}
	reduce, err := analytics.ParseReducer(settings.Reducer)
	if err != nil {
		logger.Fatalf("parse reducer: %v", err)
	}

	dates, rows, err := readMatrix(*inputPath)
	if err != nil {
		logger.Fatalf("read matrix: %v", err)
	}
	if len(rows) == 0 {
		logger.Fatal("empty indicator matrix")
	}
	scenarios := len(rows[0])
	if dates == nil {
		step := time.Duration(settings.StepHours) * time.Hour
		dates = make([]time.Time, len(rows)+1)
		for i := range dates {
			dates[i] = start.Add(time.Duration(i) * step)
		}
	} else {
		// One extra date for the exclusive end of the final step.
		last := dates[len(dates)-1]
		stride := 24 * time.Hour
		if len(dates) > 1 {
			stride = last.Sub(dates[len(dates)-2])
		}
		dates = append(dates, last.Add(stride))
	}

	repo, cleanup, err := buildRepository(*dbDSN, logger)
	if err != nil {
		logger.Fatalf("repository: %v", err)
	}
	defer cleanup()

	service, err := application.NewService(
		repo,
		settings.MinimumEventLength,
		application.WithLogger(logger),
		application.WithDefaultReducer(reduce),
		application.WithProgressLog(true),
	)
	if err != nil {
		logger.Fatalf("run service: %v", err)
	}

	recorder := &matrixRecorder{rows: rows, threshold: settings.Threshold}
	source, err := threshold.Resolve(recorder)
	if err != nil {
		logger.Fatalf("resolve source: %v", err)
	}

	ctx := context.Background()
	record, err := service.StartRun(ctx, scenarios, len(rows))
	if err != nil {
		logger.Fatalf("start run: %v", err)
	}

	for i := range rows {
		recorder.current = i
		sample := application.StepSample{
			Index:  i,
			Date:   dates[i],
			Values: source.CurrentValues(),
		}
		if err := service.Advance(ctx, record.ID, sample); err != nil {
			logger.Fatalf("step %d: %v", i, err)
		}
	}
	final := application.StepSample{
		Index: len(rows),
		Date:  dates[len(rows)],
	}
	record, err = service.Finalize(ctx, record.ID, final)
	if err != nil {
		logger.Fatalf("finalize: %v", err)
	}

	events, err := service.Events(ctx, record.ID)
	if err != nil {
		logger.Fatalf("events: %v", err)
	}
	durations, err := service.Durations(ctx, record.ID, "")
	if err != nil {
		logger.Fatalf("durations: %v", err)
	}

	if err := writeOutputs(*outDir, record.ID, events, durations); err != nil {
		logger.Fatalf("write outputs: %v", err)
	}
	logger.Printf("run %s: %d events, outputs in %s", record.ID, len(events), *outDir)
	for i, value := range durations {
		fmt.Printf("scenario %d: %s %.1f days\n", i, settings.Reducer, value)
	}
}

// readMatrix parses the indicator matrix. When the first column holds
// dates (2006-01-02 or RFC3339) they become the step dates and the
// remaining columns the indicator values; otherwise every column is a
// value and dates come from the run settings.
func readMatrix(path string) ([]time.Time, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	_, dateErr := parseStepDate(records[0][0])
	dated := dateErr == nil

	var dates []time.Time
	rows := make([][]float64, 0, len(records))
	for line, record := range records {
		fields := record
		if dated {
			date, err := parseStepDate(record[0])
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", line+1, err)
			}
			dates = append(dates, date)
			fields = record[1:]
		}
		row := make([]float64, len(fields))
		for i, field := range fields {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d column %d: %w", line+1, i+1, err)
			}
			row[i] = value
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, nil, fmt.Errorf("line %d: expected %d columns, got %d", line+1, len(rows[0]), len(row))
		}
		rows = append(rows, row)
	}
	return dates, rows, nil
}

func parseStepDate(field string) (time.Time, error) {
	if date, err := time.Parse("2006-01-02", field); err == nil {
		return date, nil
	}
	return time.Parse(time.RFC3339, field)
}

func buildRepository(dsn string, logger *log.Logger) (application.RunRepository, func(), error) {
	if dsn == "" {
		return memory.NewRunRepository(), func() {}, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	repo, err := sqlstore.NewRunRepository(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := repo.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Printf("persisting run to %s", dsn)
	return repo, func() { db.Close() }, nil
}

func writeOutputs(dir, runID string, events []tracking.Event, durations []float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rows := export.RowsFromEvents(events)

	csvData, err := export.BuildEventsCSV(rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "events-"+runID+".csv"), csvData, 0o644); err != nil {
		return err
	}

	xlsxData, err := export.BuildEventsXLSX(runID, rows, durations)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "events-"+runID+".xlsx"), xlsxData, 0o644); err != nil {
		return err
	}

	pdfData, err := export.BuildEventsPDF(runID, rows, durations)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "events-"+runID+".pdf"), pdfData, 0o644)
}
