package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "pending-refunds"
	m.ObserveRun(job, CronOutcomeSuccess, 250*time.Millisecond)
	m.ObserveRun(job, CronOutcomeFailure, 100*time.Millisecond)
	m.ObserveRun(job, CronOutcomeFailure, 100*time.Millisecond)
	m.IncSkippedCycle()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterWithLabels(mfs, "commerce_cron_job_runs_total", map[string]string{"job": job, "outcome": CronOutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterWithLabels(mfs, "commerce_cron_job_runs_total", map[string]string{"job": job, "outcome": CronOutcomeFailure})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	skipped := findMetricFamily(mfs, "commerce_cron_cycles_skipped_total")
	require.NotNil(t, skipped)
	assert.Equal(t, 1.0, skipped.GetMetric()[0].GetCounter().GetValue())

	hist := findMetricFamily(mfs, "commerce_cron_job_duration_seconds")
	require.NotNil(t, hist)
	assert.Equal(t, uint64(3), hist.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.45, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 0.0001)

	last := findMetricFamily(mfs, "commerce_cron_job_last_success_timestamp_seconds")
	require.NotNil(t, last)
	assert.Greater(t, last.GetMetric()[0].GetGauge().GetValue(), 0.0)
}

func TestCronJobMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveRun("job", CronOutcomeSuccess, time.Second)
	m.IncSkippedCycle()

	var nilMetrics *CronJobMetrics
	nilMetrics.ObserveRun("job", CronOutcomeFailure, time.Second)
	nilMetrics.IncSkippedCycle()
}

func counterWithLabels(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
