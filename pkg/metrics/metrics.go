// Package metrics exposes Prometheus instrumentation for sync runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts completed runs by job and outcome
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncmill_runs_total",
		Help: "Completed sync runs by job and outcome.",
	}, []string{"job", "outcome"})

	// RunsSkipped counts start requests refused because a run was in flight
	RunsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncmill_runs_skipped_total",
		Help: "Run requests refused because the job was already running.",
	}, []string{"job"})

	// RecordsTotal counts processed records by job and result
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncmill_records_total",
		Help: "Processed records by job and result.",
	}, []string{"job", "result"})

	// PagesTotal counts fetched pages by job
	PagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncmill_pages_total",
		Help: "Pages fetched from remote sources.",
	}, []string{"job"})

	// RunDuration observes run wall time by job
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncmill_run_duration_seconds",
		Help:    "Wall time of completed sync runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"job"})
)

// Record result labels.
const (
	ResultUpserted = "upserted"
	ResultSkipped  = "skipped"
)

// Run outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ObserveRun records a completed run's outcome and duration.
func ObserveRun(job string, elapsed time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	RunsTotal.WithLabelValues(job, outcome).Inc()
	RunDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
