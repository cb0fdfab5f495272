// Package http exposes the run lifecycle and reporting endpoints.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	analytics "basin-analytics/internal/analytics/domain"
	"basin-analytics/internal/export"
	"basin-analytics/internal/observability/metrics"
	"basin-analytics/internal/tracking/application"
	tracking "basin-analytics/internal/tracking/domain"
)

// Handler provides run HTTP endpoints.
type Handler struct {
	service *application.Service
	clock   application.Clock
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("runs handler: nil service")
	}
	return &Handler{service: service, clock: systemClock{}}, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type startRunRequest struct {
	ScenarioCount int `json:"scenario_count"`
	TotalSteps    int `json:"total_steps"`
}

type durationsResponse struct {
	RunID     string    `json:"run_id"`
	Reducer   string    `json:"reducer"`
	Durations []float64 `json:"durations"`
}

type eventsResponse struct {
	RunID  string           `json:"run_id"`
	Events []tracking.Event `json:"events"`
}

// ServeHTTP handles /api/v1/runs and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/runs":
		switch r.Method {
		case http.MethodPost:
			h.handleStart(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/runs/"):
		h.handleRun(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, id)
		return
	}
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "steps":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleStep(w, r, id)
	case "finalize":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleFinalize(w, r, id)
	case "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEvents(w, r, id)
	case "durations":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDurations(w, r, id)
	case "export.csv", "export.xlsx", "export.pdf":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, id, strings.TrimPrefix(parts[1], "export."))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ScenarioCount < 1 {
		http.Error(w, "scenario_count must be at least 1", http.StatusBadRequest)
		return
	}
	if req.TotalSteps < 0 {
		http.Error(w, "total_steps must not be negative", http.StatusBadRequest)
		return
	}

	record, err := h.service.StartRun(r.Context(), req.ScenarioCount, req.TotalSteps)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(record)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListRuns(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if records == nil {
		records = []application.RunRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	record, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

func (h *Handler) handleStep(w http.ResponseWriter, r *http.Request, id string) {
	var step application.StepSample
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if step.Date.IsZero() {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	if err := h.service.Advance(r.Context(), id, step); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request, id string) {
	var step application.StepSample
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if step.Date.IsZero() {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	record, err := h.service.Finalize(r.Context(), id, step)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request, id string) {
	events, err := h.service.Events(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if events == nil {
		events = []tracking.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(eventsResponse{RunID: id, Events: events})
}

func (h *Handler) handleDurations(w http.ResponseWriter, r *http.Request, id string) {
	reducer := r.URL.Query().Get("agg")
	durations, err := h.service.Durations(r.Context(), id, reducer)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if reducer == "" {
		reducer = "default"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(durationsResponse{RunID: id, Reducer: reducer, Durations: durations})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	started := h.clock.Now()

	events, err := h.service.Events(r.Context(), id)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, h.clock.Now().Sub(started))
		respondServiceError(w, err)
		return
	}
	rows := export.RowsFromEvents(events)

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "csv":
		data, err = export.BuildEventsCSV(rows)
		contentType = "text/csv"
	case "xlsx":
		durations, derr := h.service.Durations(r.Context(), id, r.URL.Query().Get("agg"))
		if derr != nil {
			metrics.ObserveExport(format, metrics.ResultError, h.clock.Now().Sub(started))
			respondServiceError(w, derr)
			return
		}
		data, err = export.BuildEventsXLSX(id, rows, durations)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		durations, derr := h.service.Durations(r.Context(), id, r.URL.Query().Get("agg"))
		if derr != nil {
			metrics.ObserveExport(format, metrics.ResultError, h.clock.Now().Sub(started))
			respondServiceError(w, derr)
			return
		}
		data, err = export.BuildEventsPDF(id, rows, durations)
		contentType = "application/pdf"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, h.clock.Now().Sub(started))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	metrics.ObserveExport(format, metrics.ResultSuccess, h.clock.Now().Sub(started))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "events-"+id+"."+format))
	_, _ = w.Write(data)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrRunNotFound):
		http.Error(w, "run not found", http.StatusNotFound)
	case errors.Is(err, application.ErrRunFinalized):
		http.Error(w, "run already finalized", http.StatusConflict)
	case errors.Is(err, application.ErrOutOfOrderStep):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, tracking.ErrShapeMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tracking.ErrScenarioCount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, analytics.ErrUnknownReducer):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
