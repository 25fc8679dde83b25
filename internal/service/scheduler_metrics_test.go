package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRecorderObservesAttemptsAndRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewSchedulerRecorder(registry)

	recorder.ObserveAttempt(2, 91.5)
	recorder.ObserveAttempt(0, 100)
	recorder.ObserveRun(2, 1.0, 50*time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "scheduler_attempt_score")
	require.Equal(t, uint64(2), byName["scheduler_attempt_score"].Metric[0].GetHistogram().GetSampleCount())

	require.Contains(t, byName, "scheduler_runs_total")
	require.Equal(t, float64(1), byName["scheduler_runs_total"].Metric[0].GetCounter().GetValue())

	require.Contains(t, byName, "scheduler_run_coverage_ratio")
	require.Contains(t, byName, "scheduler_run_duration_seconds")
	require.Contains(t, byName, "scheduler_attempt_unassigned")
}
