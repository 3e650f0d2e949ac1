package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Job struct {
	ID             uuid.UUID
	State          string
	Payload        []byte
	MaxAttempts    int
	CurrentAttempt int
	TimeoutSeconds int
	LastError      *string
	WorkerID       *uuid.UUID
	LastHeartbeat  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CancelledAt    *time.Time
}

// Timeout is the execution budget of a single attempt.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

func (s *Store) CreateJob(
	ctx context.Context,
	jobID uuid.UUID,
	jobPayload []byte,
	maxAttempts int,
	executionTimeoutSeconds int,
) error {
	_, err := s.connectionPool.Exec(
		ctx,
		`
		INSERT INTO jobs (
			id,
			state,
			payload,
			max_attempts,
			current_attempt,
			timeout_seconds
		)
		VALUES ($1, 'PENDING', $2, $3, 0, $4)
		`,
		jobID,
		jobPayload,
		maxAttempts,
		executionTimeoutSeconds,
	)

	return err
}

func (s *Store) CancelJob(
	ctx context.Context,
	jobID uuid.UUID,
) error {
	return s.WithTransaction(ctx, func(transaction pgx.Tx) error {
		commandTag, err := transaction.Exec(
			ctx,
			`
			UPDATE jobs
			SET state = 'CANCELLED',
				worker_id = NULL,
				cancelled_at = now(),
				updated_at = now()
			WHERE id = $1
				AND state NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
			`,
			jobID,
		)

		if err != nil {
			return err
		}

		if commandTag.RowsAffected() == 0 {
			return ErrInvalidStateTransition
		}

		return nil
	})
}

const jobColumns = `
	id,
	state,
	payload,
	max_attempts,
	current_attempt,
	timeout_seconds,
	last_error,
	worker_id,
	last_heartbeat,
	created_at,
	updated_at,
	cancelled_at
`

func scanJob(row pgx.Row) (*Job, error) {
	var job Job

	err := row.Scan(
		&job.ID,
		&job.State,
		&job.Payload,
		&job.MaxAttempts,
		&job.CurrentAttempt,
		&job.TimeoutSeconds,
		&job.LastError,
		&job.WorkerID,
		&job.LastHeartbeat,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// GetJobByID returns nil, nil when the job does not exist.
func (s *Store) GetJobByID(
	ctx context.Context,
	jobID uuid.UUID,
) (*Job, error) {
	job, err := scanJob(s.connectionPool.QueryRow(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`,
		jobID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	return job, err
}

// ClaimPendingJob moves the oldest PENDING job to RUNNING for workerID and
// stamps its first heartbeat. It returns nil, nil when nothing is pending.
func (s *Store) ClaimPendingJob(
	ctx context.Context,
	workerID uuid.UUID,
) (*Job, error) {
	var claimed *Job

	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		var jobID uuid.UUID

		err := tx.QueryRow(
			ctx,
			`
			SELECT id
			FROM jobs
			WHERE state = 'PENDING'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
			`,
		).Scan(&jobID)
		if err != nil {
			return err
		}

		if err := transitionJobState(ctx, tx, jobID, JobPending, JobRunning); err != nil {
			return err
		}

		claimed, err = scanJob(tx.QueryRow(
			ctx,
			`
			UPDATE jobs
			SET worker_id = $2,
				last_heartbeat = now(),
				current_attempt = current_attempt + 1
			WHERE id = $1
			RETURNING `+jobColumns,
			jobID,
			workerID,
		))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// CompleteJob finishes a job RUNNING on workerID.
func (s *Store) CompleteJob(
	ctx context.Context,
	jobID uuid.UUID,
	workerID uuid.UUID,
) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, _, err := lockOwnedJob(ctx, tx, jobID, workerID); err != nil {
			return err
		}

		if err := transitionJobState(ctx, tx, jobID, JobRunning, JobCompleted); err != nil {
			return err
		}

		return clearWorker(ctx, tx, jobID)
	})
}

// FailJob records a failed attempt of a job RUNNING on workerID. Retryable
// failures with attempts left go back to PENDING; everything else is terminal.
func (s *Store) FailJob(
	ctx context.Context,
	jobID uuid.UUID,
	workerID uuid.UUID,
	message string,
	retryable bool,
) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		currentAttempt, maxAttempts, err := lockOwnedJob(ctx, tx, jobID, workerID)
		if err != nil {
			return err
		}

		next := JobFailed
		if retryable && currentAttempt < maxAttempts {
			next = JobPending
		}

		if err := transitionJobState(ctx, tx, jobID, JobRunning, next); err != nil {
			return err
		}

		_, err = tx.Exec(
			ctx,
			`
			UPDATE jobs
			SET last_error = $2,
				worker_id = NULL
			WHERE id = $1
			`,
			jobID,
			message,
		)
		return err
	})
}

// lockOwnedJob locks a job RUNNING on workerID. A job that was reset or
// reclaimed by another worker yields ErrInvalidStateTransition.
func lockOwnedJob(
	ctx context.Context,
	tx pgx.Tx,
	jobID uuid.UUID,
	workerID uuid.UUID,
) (currentAttempt int, maxAttempts int, err error) {
	err = tx.QueryRow(
		ctx,
		`
		SELECT current_attempt, max_attempts
		FROM jobs
		WHERE id = $1
			AND state = 'RUNNING'
			AND worker_id = $2
		FOR UPDATE
		`,
		jobID,
		workerID,
	).Scan(&currentAttempt, &maxAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrInvalidStateTransition
	}

	return currentAttempt, maxAttempts, err
}

func clearWorker(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error {
	_, err := tx.Exec(
		ctx,
		`
		UPDATE jobs
		SET worker_id = NULL
		WHERE id = $1
		`,
		jobID,
	)
	return err
}

func transitionJobState(
	ctx context.Context,
	transaction pgx.Tx,
	jobID uuid.UUID,
	previousState string,
	nextState string,
) error {
	if err := ValidateJobTransition(previousState, nextState); err != nil {
		return err
	}

	commandTag, err := transaction.Exec(
		ctx,
		`
			UPDATE jobs
			SET state = $2,
					updated_at = now()
			WHERE id = $1
					AND state = $3
		`,
		jobID,
		nextState,
		previousState,
	)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() != 1 {
		return ErrInvalidStateTransition
	}

	return nil
}
