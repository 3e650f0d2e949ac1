// Package memstore is an in-process job store. It follows the same state
// and ownership rules as the PostgreSQL store and backs the package tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vin-jex/job-overseer/internal/store"
)

type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	jobs    map[uuid.UUID]*store.Job
	workers map[uuid.UUID]int
	resets  map[uuid.UUID]int
}

type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		jobs:    make(map[uuid.UUID]*store.Job),
		workers: make(map[uuid.UUID]int),
		resets:  make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) CreateJob(_ context.Context, jobID uuid.UUID, payload []byte, maxAttempts, timeoutSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.jobs[jobID] = &store.Job{
		ID:             jobID,
		State:          store.JobPending,
		Payload:        append([]byte(nil), payload...),
		MaxAttempts:    maxAttempts,
		TimeoutSeconds: timeoutSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

// PutRunning inserts a job RUNNING on workerID with the given last heartbeat.
func (s *Store) PutRunning(jobID, workerID uuid.UUID, lastHeartbeat time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hb := lastHeartbeat
	s.jobs[jobID] = &store.Job{
		ID:             jobID,
		State:          store.JobRunning,
		MaxAttempts:    1,
		CurrentAttempt: 1,
		TimeoutSeconds: 30,
		WorkerID:       &workerID,
		LastHeartbeat:  &hb,
		CreatedAt:      lastHeartbeat,
		UpdatedAt:      lastHeartbeat,
	}
}

// Get returns a copy of the job, or nil.
func (s *Store) Get(jobID uuid.UUID) *store.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	return copyJob(job)
}

// ResetCalls reports how many times ResetJob was called for jobID.
func (s *Store) ResetCalls(jobID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resets[jobID]
}

// HeartbeatJob ignores jobs that are not running on workerID.
func (s *Store) HeartbeatJob(_ context.Context, jobID, workerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || !ownedBy(job, workerID) {
		return nil
	}

	now := s.now()
	if job.LastHeartbeat == nil || now.After(*job.LastHeartbeat) {
		job.LastHeartbeat = &now
	}
	return nil
}

// JobsDead returns matching ids sorted by creation time for stable output.
func (s *Store) JobsDead(_ context.Context, threshold time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []*store.Job
	for _, job := range s.jobs {
		if job.State != store.JobRunning {
			continue
		}

		last := job.UpdatedAt
		if job.LastHeartbeat != nil {
			last = *job.LastHeartbeat
		}
		if last.Before(threshold) {
			dead = append(dead, job)
		}
	}

	sort.Slice(dead, func(i, j int) bool {
		return dead[i].CreatedAt.Before(dead[j].CreatedAt)
	})

	ids := make([]uuid.UUID, 0, len(dead))
	for _, job := range dead {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (s *Store) ResetJob(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resets[jobID]++

	job, ok := s.jobs[jobID]
	if !ok || job.State != store.JobRunning {
		return nil
	}

	job.State = store.JobPending
	job.WorkerID = nil
	job.UpdatedAt = s.now()
	return nil
}

func (s *Store) RegisterWorker(_ context.Context, workerID uuid.UUID, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workers[workerID] = capacity
	return nil
}

func (s *Store) ClaimPendingJob(_ context.Context, workerID uuid.UUID) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *store.Job
	for _, job := range s.jobs {
		if job.State != store.JobPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := s.now()
	worker := workerID
	oldest.State = store.JobRunning
	oldest.WorkerID = &worker
	oldest.LastHeartbeat = &now
	oldest.CurrentAttempt++
	oldest.UpdatedAt = now

	return copyJob(oldest), nil
}

func (s *Store) CompleteJob(_ context.Context, jobID, workerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || !ownedBy(job, workerID) {
		return store.ErrInvalidStateTransition
	}
	return s.transition(job, store.JobCompleted, nil)
}

func (s *Store) FailJob(_ context.Context, jobID, workerID uuid.UUID, message string, retryable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || !ownedBy(job, workerID) {
		return store.ErrInvalidStateTransition
	}

	next := store.JobFailed
	if retryable && job.CurrentAttempt < job.MaxAttempts {
		next = store.JobPending
	}
	return s.transition(job, next, &message)
}

// ownedBy reports whether job is RUNNING on workerID.
func ownedBy(job *store.Job, workerID uuid.UUID) bool {
	return job.State == store.JobRunning && job.WorkerID != nil && *job.WorkerID == workerID
}

// transition moves a RUNNING job to state. The caller holds s.mu.
func (s *Store) transition(job *store.Job, to string, lastError *string) error {
	if err := store.ValidateJobTransition(job.State, to); err != nil {
		return err
	}

	job.State = to
	job.UpdatedAt = s.now()
	job.WorkerID = nil
	if lastError != nil {
		msg := *lastError
		job.LastError = &msg
	}
	return nil
}

func copyJob(job *store.Job) *store.Job {
	out := *job
	out.Payload = append([]byte(nil), job.Payload...)
	if job.LastHeartbeat != nil {
		hb := *job.LastHeartbeat
		out.LastHeartbeat = &hb
	}
	if job.WorkerID != nil {
		id := *job.WorkerID
		out.WorkerID = &id
	}
	return &out
}
