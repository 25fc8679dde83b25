package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/campusops/timetable-engine/internal/scheduler"
)

// SchedulerRecorder implements scheduler.Recorder with Prometheus
// collectors, following the same registry-per-collector shape as
// MetricsService.
type SchedulerRecorder struct {
	attemptScore      prometheus.Histogram
	attemptUnassigned prometheus.Histogram
	runsTotal         prometheus.Counter
	runCoverage       prometheus.Histogram
	runDuration       prometheus.Histogram
}

// NewSchedulerRecorder registers scheduler collectors against the given
// registry and returns a recorder ready to pass as scheduler.Config.Metrics.
func NewSchedulerRecorder(registry *prometheus.Registry) *SchedulerRecorder {
	r := &SchedulerRecorder{
		attemptScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_attempt_score",
			Help:    "Score of each construction attempt",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		}),
		attemptUnassigned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_attempt_unassigned",
			Help:    "Unassigned block count of each construction attempt",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Total number of Schedule runs",
		}),
		runCoverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_run_coverage_ratio",
			Help:    "Fraction of blocks assigned by the best attempt of a run",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_run_duration_seconds",
			Help:    "Wall-clock duration of a Schedule run",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(r.attemptScore, r.attemptUnassigned, r.runsTotal, r.runCoverage, r.runDuration)
	return r
}

// ObserveAttempt implements scheduler.Recorder.
func (r *SchedulerRecorder) ObserveAttempt(unassigned int, score float64) {
	if r == nil {
		return
	}
	r.attemptScore.Observe(score)
	r.attemptUnassigned.Observe(float64(unassigned))
}

// ObserveRun implements scheduler.Recorder.
func (r *SchedulerRecorder) ObserveRun(attempts int, coverage float64, duration time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.Inc()
	r.runCoverage.Observe(coverage)
	r.runDuration.Observe(duration.Seconds())
}

var _ scheduler.Recorder = (*SchedulerRecorder)(nil)
