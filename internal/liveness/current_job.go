package liveness

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// JobRef identifies the job a worker is executing and the worker that
// claimed it.
type JobRef struct {
	ID        uuid.UUID
	WorkerID  uuid.UUID
	StartedAt time.Time
}

// CurrentJob is the single slot shared between the execution engine (writer)
// and the Emitter (reader). The zero value holds no job.
type CurrentJob struct {
	ref atomic.Pointer[JobRef]
}

func (c *CurrentJob) Set(ref JobRef) {
	c.ref.Store(&ref)
}

func (c *CurrentJob) Clear() {
	c.ref.Store(nil)
}

// Load returns a snapshot of the slot. The returned value is never shared
// with the writer.
func (c *CurrentJob) Load() (JobRef, bool) {
	ref := c.ref.Load()
	if ref == nil {
		return JobRef{}, false
	}
	return *ref, true
}
