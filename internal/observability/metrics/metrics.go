package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "basin_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	runsStarted   prometheus.Counter
	runsFinalized prometheus.Counter

	stepsTotal  *prometheus.CounterVec
	stepLatency *prometheus.HistogramVec

	eventsOpened    prometheus.Counter
	eventsRecorded  *prometheus.CounterVec
	eventsDiscarded prometheus.Counter

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers the service metrics. Helpers are no-ops before
// registration so unit tests can skip it.
func Init() {
	registerOnce.Do(func() {
		runsStarted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_started_total",
				Help: "Total simulation runs started",
			},
		)
		runsFinalized = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_finalized_total",
				Help: "Total simulation runs finalized",
			},
		)

		stepsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "steps_total",
				Help: "Total timesteps processed by result",
			},
			[]string{"result"},
		)
		stepLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "step_latency_seconds",
				Help:    "Timestep processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		eventsOpened = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_opened_total",
				Help: "Total events opened across scenarios",
			},
		)
		eventsRecorded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_recorded_total",
				Help: "Total events recorded by closure kind",
			},
			[]string{"closure"},
		)
		eventsDiscarded = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_discarded_total",
				Help: "Total events dropped by the minimum length filter",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total event table exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Event table export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			runsStarted,
			runsFinalized,
			stepsTotal,
			stepLatency,
			eventsOpened,
			eventsRecorded,
			eventsDiscarded,
			exportTotal,
			exportLatency,
		)
	})
}

// IncRunStarted increments the started run counter.
func IncRunStarted() {
	if runsStarted != nil {
		runsStarted.Inc()
	}
}

// IncRunFinalized increments the finalized run counter.
func IncRunFinalized() {
	if runsFinalized != nil {
		runsFinalized.Inc()
	}
}

// ObserveStep records one processed timestep with its latency.
func ObserveStep(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if stepsTotal != nil {
		stepsTotal.WithLabelValues(result).Inc()
	}
	if stepLatency != nil {
		stepLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddEventsOpened adds to the opened event counter.
func AddEventsOpened(count int) {
	if count <= 0 {
		return
	}
	if eventsOpened != nil {
		eventsOpened.Add(float64(count))
	}
}

// AddEventsRecorded adds recorded events for a closure kind
// ("closed" for mid-run closures, "forced" for finalize).
func AddEventsRecorded(closure string, count int) {
	if count <= 0 {
		return
	}
	if closure == "" {
		closure = ClosureClosed
	}
	if eventsRecorded != nil {
		eventsRecorded.WithLabelValues(closure).Add(float64(count))
	}
}

// AddEventsDiscarded adds to the discarded event counter.
func AddEventsDiscarded(count int) {
	if count <= 0 {
		return
	}
	if eventsDiscarded != nil {
		eventsDiscarded.Add(float64(count))
	}
}

// ObserveExport records an export operation with its latency.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	ClosureClosed = "closed"
	ClosureForced = "forced"
)
