// Package export renders the finalized event table and per-scenario
// duration summary for download.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	tracking "basin-analytics/internal/tracking/domain"
)

const dateLayout = time.RFC3339

// Row is one exported event.
type Row struct {
	ScenarioID   int
	Start        time.Time
	End          time.Time
	DurationDays int
}

// RowsFromEvents flattens finalized events into export rows,
// preserving closure order.
func RowsFromEvents(events []tracking.Event) []Row {
	rows := make([]Row, len(events))
	for i, evt := range events {
		rows[i] = Row{
			ScenarioID:   evt.Scenario.GlobalID,
			Start:        evt.Start.Date,
			End:          evt.End.Date,
			DurationDays: evt.DurationDays(),
		}
	}
	return rows
}

// BuildEventsCSV renders the event table as CSV. An empty table
// yields only the header line.
func BuildEventsCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"scenario_id", "start", "end", "duration_days"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			strconv.Itoa(row.ScenarioID),
			row.Start.Format(dateLayout),
			row.End.Format(dateLayout),
			strconv.Itoa(row.DurationDays),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEventsXLSX renders an events sheet plus a per-scenario
// duration summary sheet.
func BuildEventsXLSX(runID string, rows []Row, durations []float64) ([]byte, error) {
	f := excelize.NewFile()
	eventsSheet := "events"
	summarySheet := "durations"
	f.SetSheetName("Sheet1", eventsSheet)
	f.NewSheet(summarySheet)

	_ = f.SetCellValue(eventsSheet, "A1", "Run")
	_ = f.SetCellValue(eventsSheet, "B1", runID)
	_ = f.SetCellValue(eventsSheet, "A2", "scenario_id")
	_ = f.SetCellValue(eventsSheet, "B2", "start")
	_ = f.SetCellValue(eventsSheet, "C2", "end")
	_ = f.SetCellValue(eventsSheet, "D2", "duration_days")
	for i, row := range rows {
		line := i + 3
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("A%d", line), row.ScenarioID)
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("B%d", line), row.Start.Format(dateLayout))
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("C%d", line), row.End.Format(dateLayout))
		_ = f.SetCellValue(eventsSheet, fmt.Sprintf("D%d", line), row.DurationDays)
	}

	_ = f.SetCellValue(summarySheet, "A1", "scenario_id")
	_ = f.SetCellValue(summarySheet, "B1", "duration")
	for i, value := range durations {
		line := i + 2
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", line), i)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", line), value)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEventsPDF renders a compact PDF report for a run.
func BuildEventsPDF(runID string, rows []Row, durations []float64) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Scenario Event Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", runID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d", len(rows)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Scenario", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "End", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Days", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(30, 6, strconv.Itoa(row.ScenarioID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, row.Start.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(55, 6, row.End.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, strconv.Itoa(row.DurationDays), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Scenario", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Duration", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for i, value := range durations {
		pdf.CellFormat(30, 6, strconv.Itoa(i), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.1f", value), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
