package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vin-jex/job-overseer/internal/config"
	"github.com/vin-jex/job-overseer/internal/observability"
)

const probeTimeout = 2 * time.Second

// Monitor finds jobs whose heartbeat went stale and resets them.
type Monitor struct {
	cfg     config.Liveness
	store   Store
	policy  ErrorPolicy
	stagger Stagger
	probe   StatusProbe
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

type MonitorOption func(*Monitor)

func WithMonitorPolicy(policy ErrorPolicy) MonitorOption {
	return func(m *Monitor) { m.policy = policy }
}

func WithStagger(stagger Stagger) MonitorOption {
	return func(m *Monitor) { m.stagger = stagger }
}

// WithStatusProbe sets where the monitor samples emitter status when it
// finds dead jobs.
func WithStatusProbe(probe StatusProbe) MonitorOption {
	return func(m *Monitor) { m.probe = probe }
}

func WithMonitorMetrics(metrics *observability.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = metrics }
}

func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(
	cfg config.Liveness,
	store Store,
	logger *slog.Logger,
	opts ...MonitorOption,
) *Monitor {
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	m := &Monitor{
		cfg:    cfg,
		store:  store,
		logger: logger.With("loop", observability.LoopMonitor),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy == nil {
		m.policy = PolicyFor(cfg.ShutdownOnError, m.logger)
	}
	if m.stagger == nil {
		m.stagger = NewUniformStagger(cfg)
	}

	return m
}

// Run scans for dead jobs until ctx is cancelled or the error policy stops it.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("liveness monitor started",
		"interval", m.cfg.HeartbeatInterval,
		"tolerance", m.cfg.FailedHeartbeatTolerance,
	)

	for {
		if ctx.Err() != nil {
			m.logger.Info("liveness monitor stopped")
			return nil
		}

		if _, err := m.RunOnce(ctx); err != nil {
			if stop := m.policy.Handle(observability.LoopMonitor, err); stop != nil {
				return stop
			}
		}

		stagger := m.stagger.Next()
		m.metrics.StaggerDrawn(stagger)
		pause := m.cfg.HeartbeatInterval + stagger

		m.logger.Debug("liveness monitor sleeping", "duration", pause, "stagger", stagger)
		if !sleep(ctx, pause) {
			m.logger.Info("liveness monitor stopped")
			return nil
		}
	}
}

// RunOnce performs a single scan and returns the jobs it reset.
func (m *Monitor) RunOnce(ctx context.Context) ([]uuid.UUID, error) {
	var reset []uuid.UUID

	threshold := Threshold(m.now(), m.cfg)
	m.logger.Debug("liveness cycle start", "threshold", threshold)

	err := guard(observability.LoopMonitor, func() error {
		dead, err := m.store.JobsDead(ctx, threshold)
		if err != nil {
			return fmt.Errorf("find dead jobs before %s: %w", threshold.Format(time.RFC3339Nano), err)
		}
		if len(dead) == 0 {
			return nil
		}

		m.metrics.DeadJobsFound(len(dead))
		m.logger.Warn("found dead jobs", "count", len(dead))
		m.logEmitterStatus(ctx)
		m.logger.Info("resetting dead jobs", "job_ids", jobIDStrings(dead))

		for _, jobID := range dead {
			if err := m.store.ResetJob(ctx, jobID); err != nil {
				return fmt.Errorf("reset job %s: %w", jobID, err)
			}
			m.metrics.JobReset()
			reset = append(reset, jobID)
		}

		return nil
	})

	m.metrics.CycleFinished(observability.LoopMonitor, m.now(), err)
	m.logger.Debug("liveness cycle end", "reset", len(reset))

	return reset, err
}

// logEmitterStatus is best effort: no probe or a failing probe only logs.
func (m *Monitor) logEmitterStatus(ctx context.Context) {
	if m.probe == nil {
		m.logger.Debug("no emitter status probe configured")
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status, err := m.probe.EmitterStatus(probeCtx)
	if err != nil {
		m.logger.Debug("emitter status unavailable", "err", err)
		return
	}

	attrs := []any{
		"cycle_in_progress", status.CycleInProgress,
		"last_cycle_started_at", status.LastCycleStartedAt,
		"last_cycle_finished_at", status.LastCycleFinishedAt,
		"cycles", status.Cycles,
	}
	if status.CurrentJobID != nil {
		attrs = append(attrs, "current_job_id", status.CurrentJobID.String())
	}
	if status.LastError != "" {
		attrs = append(attrs, "last_error", status.LastError)
	}
	m.logger.Info("emitter status", attrs...)
}

func jobIDStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
