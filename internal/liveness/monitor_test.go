package liveness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vin-jex/job-overseer/internal/memstore"
	"github.com/vin-jex/job-overseer/internal/store"
)

func TestMonitorResetsDeadJobs(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := memstore.New(memstore.WithClock(clock))

	job1, job2, alive := uuid.New(), uuid.New(), uuid.New()
	worker := uuid.New()
	s.PutRunning(job1, worker, now.Add(-time.Minute))
	s.PutRunning(job2, worker, now.Add(-time.Minute))
	s.PutRunning(alive, worker, now)

	logger, logs := newTestLogger()
	monitor := NewMonitor(testConfig(false), s, logger, WithMonitorClock(clock), WithStagger(NoStagger{}))

	reset, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{job1, job2}, reset)

	require.Equal(t, 1, s.ResetCalls(job1))
	require.Equal(t, 1, s.ResetCalls(job2))
	require.Zero(t, s.ResetCalls(alive))
	require.Equal(t, store.JobPending, s.Get(job1).State)
	require.Equal(t, store.JobRunning, s.Get(alive).State)

	output := logs.String()
	require.Contains(t, output, "level=WARN")
	require.Contains(t, output, "found dead jobs")
	require.Contains(t, output, "count=2")
	require.Contains(t, output, job1.String())
	require.Contains(t, output, job2.String())
}

func TestMonitorSamplesClockOncePerCycle(t *testing.T) {
	calls := 0
	base := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Hour)
	}

	fs := &fakeStore{dead: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	cfg := testConfig(false)
	monitor := NewMonitor(cfg, fs, nil, WithMonitorClock(clock))

	_, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, fs.thresholds, 1)
	require.Equal(t, base.Add(time.Hour).Add(-cfg.DeadAfter()), fs.thresholds[0])
	require.Equal(t, 3, fs.resetCount())
}

func TestMonitorQuietWhenNothingIsDead(t *testing.T) {
	fs := &fakeStore{}
	logger, logs := newTestLogger()
	monitor := NewMonitor(testConfig(false), fs, logger,
		WithStatusProbe(staticProbe{err: errors.New("must not be called")}),
	)

	reset, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, reset)
	require.Zero(t, fs.resetCount())
	require.NotContains(t, logs.String(), "level=WARN")
}

func TestMonitorLogsEmitterStatus(t *testing.T) {
	jobID := uuid.New()
	fs := &fakeStore{dead: []uuid.UUID{uuid.New()}}
	logger, logs := newTestLogger()

	monitor := NewMonitor(testConfig(false), fs, logger, WithStatusProbe(staticProbe{
		status: EmitterStatus{CycleInProgress: true, Cycles: 7, CurrentJobID: &jobID},
	}))

	_, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)

	output := logs.String()
	require.Contains(t, output, "emitter status")
	require.Contains(t, output, "cycle_in_progress=true")
	require.Contains(t, output, "cycles=7")
	require.Contains(t, output, jobID.String())
}

func TestMonitorIgnoresProbeFailure(t *testing.T) {
	fs := &fakeStore{dead: []uuid.UUID{uuid.New()}}
	monitor := NewMonitor(testConfig(true), fs, nil,
		WithStatusProbe(staticProbe{err: errors.New("connection refused")}),
	)

	_, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fs.resetCount())
}

func TestMonitorReportsResetFailure(t *testing.T) {
	fs := &fakeStore{dead: []uuid.UUID{uuid.New(), uuid.New()}, resetErr: errStoreDown}
	monitor := NewMonitor(testConfig(false), fs, nil)

	_, err := monitor.RunOnce(context.Background())
	require.ErrorIs(t, err, errStoreDown)
	require.Equal(t, 1, fs.resetCount(), "a failed cycle stops at the first error")
}

func TestMonitorRecoversAfterTransientError(t *testing.T) {
	dead := uuid.New()
	fs := &fakeStore{deadErrs: []error{errStoreDown}, dead: []uuid.UUID{dead}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, logs := newTestLogger()
	monitor := NewMonitor(testConfig(false), fs, logger, WithStagger(NoStagger{}))

	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	require.Eventually(t, func() bool { return fs.resetCount() >= 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.GreaterOrEqual(t, fs.deadCallCount(), 2)
	require.Contains(t, logs.String(), "store unavailable")
	require.Contains(t, logs.String(), "liveness monitor sleeping")
}

func TestMonitorExitsOnErrorWhenConfigured(t *testing.T) {
	fs := &fakeStore{deadErrs: []error{errStoreDown}}
	exit := &recordingExit{}
	monitor := NewMonitor(testConfig(true), fs, nil,
		WithMonitorPolicy(ExitPolicy{Exit: exit.exit}),
		WithStagger(NoStagger{}),
	)

	err := monitor.Run(context.Background())
	require.ErrorIs(t, err, ErrFatal)
	require.Equal(t, []int{1}, exit.calls())
	require.Equal(t, 1, fs.deadCallCount())
}

func TestMonitorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := &fakeStore{}
	monitor := NewMonitor(testConfig(true), fs, nil)

	require.NoError(t, monitor.Run(ctx))
	require.Zero(t, fs.deadCallCount())
}
