// Package metrics provides Prometheus instrumentation for the matcher. It
// exposes counters for match attempts and planned events, histograms for
// match latency and group size, and request counters for the NATS front end.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Match attempt results.
const (
	ResultMatched  = "matched"
	ResultNoMatch  = "no_match"
	ResultError    = "error"
	ResultConflict = "conflict"
)

var (
	// MatchAttempts counts CheckForMatches runs, labeled by result:
	// "matched", "no_match", "error" or "conflict".
	MatchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_match_attempts_total",
		Help: "Total number of match attempts",
	}, []string{"result"})

	// PlannedEventsCreated counts committed planned events.
	PlannedEventsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huddle_planned_events_created_total",
		Help: "Total number of planned events committed",
	})

	// MatchDuration records how long a single CheckForMatches call takes,
	// including store round trips and retries.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "huddle_match_duration_seconds",
		Help:    "Time spent searching for and committing a match",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// GroupSize records the participant count of planned events.
	GroupSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "huddle_planned_group_size",
		Help:    "Participant count of committed planned events",
		Buckets: []float64{2, 3, 4, 5, 6, 8, 10, 15, 20},
	})

	// Requests counts NATS requests handled, labeled by request type.
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_requests_total",
		Help: "Total number of requests handled",
	}, []string{"type"})

	// SweepRuns counts completed background sweeps.
	SweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huddle_sweep_runs_total",
		Help: "Total number of background re-match sweeps",
	})
)

func init() {
	prometheus.MustRegister(
		MatchAttempts,
		PlannedEventsCreated,
		MatchDuration,
		GroupSize,
		Requests,
		SweepRuns,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
