package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// HeartbeatJob refreshes last_heartbeat of a job RUNNING on workerID. Jobs in
// any other state or owned by another worker are left alone, and the
// timestamp never moves backwards.
func (s *Store) HeartbeatJob(
	ctx context.Context,
	jobID uuid.UUID,
	workerID uuid.UUID,
) error {
	_, err := s.connectionPool.Exec(
		ctx,
		`
		UPDATE jobs
		SET last_heartbeat = greatest(coalesce(last_heartbeat, now()), now())
		WHERE id = $1
			AND state = 'RUNNING'
			AND worker_id = $2
		`,
		jobID,
		workerID,
	)

	return err
}

// JobsDead returns RUNNING jobs whose last heartbeat is strictly before
// threshold. A RUNNING job that never heartbeated is dead once its
// updated_at is past the threshold.
func (s *Store) JobsDead(
	ctx context.Context,
	threshold time.Time,
) ([]uuid.UUID, error) {
	rows, err := s.connectionPool.Query(
		ctx,
		`
		SELECT id
		FROM jobs
		WHERE state = 'RUNNING'
			AND coalesce(last_heartbeat, updated_at) < $1
		`,
		threshold,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ResetJob returns a RUNNING job to PENDING so it can be claimed again.
// Jobs that already left RUNNING are not touched.
func (s *Store) ResetJob(
	ctx context.Context,
	jobID uuid.UUID,
) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		err := transitionJobState(ctx, tx, jobID, JobRunning, JobPending)
		if errors.Is(err, ErrInvalidStateTransition) {
			return nil
		}
		if err != nil {
			return err
		}

		return clearWorker(ctx, tx, jobID)
	})
}
