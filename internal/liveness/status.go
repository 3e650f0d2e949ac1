package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EmitterStatus tells an operator whether the emitter is actively cycling.
type EmitterStatus struct {
	CycleInProgress     bool       `json:"cycle_in_progress"`
	LastCycleStartedAt  time.Time  `json:"last_cycle_started_at"`
	LastCycleFinishedAt time.Time  `json:"last_cycle_finished_at"`
	Cycles              uint64     `json:"cycles"`
	CurrentJobID        *uuid.UUID `json:"current_job_id,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// StatusProbe reports an emitter's status. Implemented by Emitter in-process
// and by api.StatusClient over HTTP.
type StatusProbe interface {
	EmitterStatus(ctx context.Context) (EmitterStatus, error)
}

type statusTracker struct {
	mu     sync.Mutex
	status EmitterStatus
}

func (t *statusTracker) begin(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CycleInProgress = true
	t.status.LastCycleStartedAt = at
	t.status.CurrentJobID = nil
}

func (t *statusTracker) observe(jobID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CurrentJobID = &jobID
}

func (t *statusTracker) end(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CycleInProgress = false
	t.status.LastCycleFinishedAt = at
	t.status.Cycles++
	if err != nil {
		t.status.LastError = err.Error()
	} else {
		t.status.LastError = ""
	}
}

func (t *statusTracker) snapshot() EmitterStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := t.status
	if status.CurrentJobID != nil {
		id := *status.CurrentJobID
		status.CurrentJobID = &id
	}
	return status
}
