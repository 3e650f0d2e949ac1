package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vin-jex/job-overseer/internal/liveness"
	"github.com/vin-jex/job-overseer/internal/observability"
	"github.com/vin-jex/job-overseer/internal/store"
)

const idlePoll = 300 * time.Millisecond

// JobSource is the part of the job store the execution engine needs.
type JobSource interface {
	RegisterWorker(ctx context.Context, workerID uuid.UUID, capacity int) error
	ClaimPendingJob(ctx context.Context, workerID uuid.UUID) (*store.Job, error)
	CompleteJob(ctx context.Context, jobID, workerID uuid.UUID) error
	FailJob(ctx context.Context, jobID, workerID uuid.UUID, message string, retryable bool) error
}

// JobFunc executes one job. A returned error fails the attempt.
type JobFunc func(ctx context.Context, job *store.Job) error

// RetryableError marks a job failure as worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Worker runs one job at a time and publishes it through the CurrentJob
// handle so the heartbeat emitter can keep it alive.
type Worker struct {
	id      uuid.UUID
	source  JobSource
	current *liveness.CurrentJob
	run     JobFunc
	logger  *slog.Logger
	now     func() time.Time
}

func New(
	id uuid.UUID,
	source JobSource,
	current *liveness.CurrentJob,
	run JobFunc,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	return &Worker{
		id:      id,
		source:  source,
		current: current,
		run:     run,
		logger:  logger.With("worker_id", id.String()),
		now:     time.Now,
	}
}

func (w *Worker) ID() uuid.UUID {
	return w.id
}

// Run claims and executes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.source.RegisterWorker(ctx, w.id, 1); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	w.logger.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		default:
		}

		ran, err := w.Step(ctx)
		if err != nil {
			w.logger.Error("worker step failed", "err", err)
		}
		if ran {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-time.After(idlePoll):
		}
	}
}

// Step claims at most one job and runs it. It reports whether a job ran.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	job, err := w.source.ClaimPendingJob(ctx, w.id)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.current.Set(liveness.JobRef{ID: job.ID, WorkerID: w.id, StartedAt: w.now()})
	defer w.current.Clear()

	logger := w.logger.With("job_id", job.ID.String(), "attempt", job.CurrentAttempt)
	logger.Info("job started")

	jobCtx := observability.WithLogger(ctx, logger)
	if timeout := job.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, timeout)
		defer cancel()
	}

	runErr := w.execute(jobCtx, job)

	// Report with the parent context; the job's own deadline may have passed.
	if runErr == nil {
		err = w.source.CompleteJob(ctx, job.ID, w.id)
	} else {
		var retryable *RetryableError
		isRetryable := errors.As(runErr, &retryable) || errors.Is(runErr, context.DeadlineExceeded)
		logger.Warn("job failed", "err", runErr, "retryable", isRetryable)
		err = w.source.FailJob(ctx, job.ID, w.id, runErr.Error(), isRetryable)
	}

	if errors.Is(err, store.ErrInvalidStateTransition) {
		// The liveness monitor reset the job while it ran, and another
		// worker may already own it.
		logger.Warn("job was reclaimed before it finished")
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("report job %s: %w", job.ID, err)
	}

	logger.Info("job finished")
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *store.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return w.run(ctx, job)
}
