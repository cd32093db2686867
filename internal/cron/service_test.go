package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	extends  int
	lost     bool
}

func (f *fakeLock) Extend(context.Context) error {
	f.extends++
	if f.lost {
		return ErrLeaseLost
	}
	return nil
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return service
}

func TestRunCycleRunsEveryJobEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "failing", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, reg, ok, failing)

	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, failing.runs)
	require.True(t, ok.deadline)
	require.Equal(t, 1, lock.releases)
	require.Equal(t, 1, lock.extends)
	require.False(t, lock.held)

	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]string{}
	for _, family := range families {
		if family.GetName() != "commerce_cron_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			outcomes[labels["job"]] = labels["outcome"]
		}
	}
	require.Equal(t, map[string]string{"ok": "success", "failing": "failure"}, outcomes)
}

func TestRunCycleStopsWhenLeaseLost(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	lock := &fakeLock{lost: true}
	service := newTestService(t, lock, prometheus.NewRegistry(), first, second)

	err := service.runCycle(context.Background())
	require.ErrorIs(t, err, ErrLeaseLost)
	require.Equal(t, 1, first.runs)
	require.Zero(t, second.runs)
	require.Equal(t, 1, lock.extends)
	require.Equal(t, 1, lock.releases)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &testJob{name: "job"}
	lock := &fakeLock{held: true}
	service := newTestService(t, lock, reg, job)

	require.NoError(t, service.runCycle(context.Background()))
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
	require.Equal(t, 1.0, counterValue(t, reg, "commerce_cron_cycles_skipped_total"))
}

func TestRunJobReportsTimeout(t *testing.T) {
	reg := prometheus.NewRegistry()
	slow := &blockingJob{name: "slow"}
	service := newTestService(t, &fakeLock{}, reg, slow)
	service.jobTimeout = 5 * time.Millisecond

	require.NoError(t, service.runCycle(context.Background()))
	families, err := reg.Gather()
	require.NoError(t, err)
	var timeouts float64
	for _, family := range families {
		if family.GetName() != "commerce_cron_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == "outcome" && pair.GetValue() == "timeout" {
					timeouts += metric.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, 1.0, timeouts)
}

type blockingJob struct{ name string }

func (b *blockingJob) Name() string { return b.name }

func (b *blockingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service := newTestService(t, &fakeLock{}, nil, job)
	service.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	err := service.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, job.runs, 2)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
}

func TestFailureCounterIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(reg)
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(&testJob{name: "failing", err: errors.New("boom")}),
		Lock:     &fakeLock{},
		Metrics:  cronMetrics,
	})
	require.NoError(t, err)
	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 1.0, counterValue(t, reg, "commerce_cron_job_runs_total"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		total := 0.0
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}
