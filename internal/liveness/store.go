package liveness

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable job store as seen by the liveness loops.
type Store interface {
	// HeartbeatJob records the current time as the job's last heartbeat
	// when the job is still running on workerID. Redundant calls are
	// harmless, and a job reclaimed by another worker is left alone.
	HeartbeatJob(ctx context.Context, jobID, workerID uuid.UUID) error

	// JobsDead returns running jobs whose last heartbeat is strictly
	// before threshold.
	JobsDead(ctx context.Context, threshold time.Time) ([]uuid.UUID, error)

	// ResetJob moves a job back to a re-runnable state. Resetting a job
	// that is no longer running is a no-op.
	ResetJob(ctx context.Context, jobID uuid.UUID) error
}
