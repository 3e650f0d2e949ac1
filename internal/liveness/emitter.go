package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vin-jex/job-overseer/internal/config"
	"github.com/vin-jex/job-overseer/internal/observability"
)

// Emitter refreshes the heartbeat of the job the worker is executing.
type Emitter struct {
	cfg     config.Liveness
	store   Store
	current *CurrentJob
	policy  ErrorPolicy
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	status statusTracker
}

type EmitterOption func(*Emitter)

func WithEmitterPolicy(policy ErrorPolicy) EmitterOption {
	return func(e *Emitter) { e.policy = policy }
}

func WithEmitterMetrics(metrics *observability.Metrics) EmitterOption {
	return func(e *Emitter) { e.metrics = metrics }
}

func WithEmitterClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) { e.now = now }
}

func NewEmitter(
	cfg config.Liveness,
	store Store,
	current *CurrentJob,
	logger *slog.Logger,
	opts ...EmitterOption,
) *Emitter {
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	e := &Emitter{
		cfg:     cfg,
		store:   store,
		current: current,
		logger:  logger.With("loop", observability.LoopEmitter),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		e.policy = PolicyFor(cfg.ShutdownOnError, e.logger)
	}

	return e
}

// Run emits heartbeats until ctx is cancelled or the error policy stops it.
func (e *Emitter) Run(ctx context.Context) error {
	e.logger.Info("heartbeat emitter started", "interval", e.cfg.HeartbeatInterval)

	for {
		if ctx.Err() != nil {
			e.logger.Info("heartbeat emitter stopped")
			return nil
		}

		if err := e.RunOnce(ctx); err != nil {
			if stop := e.policy.Handle(observability.LoopEmitter, err); stop != nil {
				return stop
			}
		}

		e.logger.Debug("heartbeat emitter sleeping", "duration", e.cfg.HeartbeatInterval)
		if !sleep(ctx, e.cfg.HeartbeatInterval) {
			e.logger.Info("heartbeat emitter stopped")
			return nil
		}
	}
}

// RunOnce performs a single heartbeat cycle.
func (e *Emitter) RunOnce(ctx context.Context) error {
	e.status.begin(e.now())
	e.logger.Debug("heartbeat cycle start")

	err := guard(observability.LoopEmitter, func() error {
		ref, ok := e.current.Load()
		if !ok {
			e.metrics.HeartbeatSkipped()
			return nil
		}
		e.status.observe(ref.ID)

		if err := e.store.HeartbeatJob(ctx, ref.ID, ref.WorkerID); err != nil {
			return fmt.Errorf("heartbeat job %s: %w", ref.ID, err)
		}

		e.metrics.HeartbeatRecorded()
		e.logger.Debug("heartbeat recorded", "job_id", ref.ID.String())
		return nil
	})

	finished := e.now()
	e.status.end(finished, err)
	e.metrics.CycleFinished(observability.LoopEmitter, finished, err)
	e.logger.Debug("heartbeat cycle end")

	return err
}

// Status returns a snapshot of the emitter's cycle state.
func (e *Emitter) Status() EmitterStatus {
	return e.status.snapshot()
}

// EmitterStatus implements StatusProbe.
func (e *Emitter) EmitterStatus(context.Context) (EmitterStatus, error) {
	return e.Status(), nil
}
