package liveness

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vin-jex/job-overseer/internal/config"
)

var errStoreDown = errors.New("store unavailable")

func testConfig(shutdownOnError bool) config.Liveness {
	return config.Liveness{
		HeartbeatInterval:        5 * time.Millisecond,
		FailedHeartbeatTolerance: 3,
		ShutdownOnError:          shutdownOnError,
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), buf
}

// fakeStore counts calls and fails on demand.
type fakeStore struct {
	mu sync.Mutex

	heartbeats       []uuid.UUID
	heartbeatWorkers []uuid.UUID
	heartbeatErr     error
	panicOnBeat  bool

	deadCalls  int
	deadErrs   []error
	dead       []uuid.UUID
	thresholds []time.Time

	resets   []uuid.UUID
	resetErr error
}

func (s *fakeStore) HeartbeatJob(_ context.Context, jobID, workerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.panicOnBeat {
		panic("heartbeat exploded")
	}
	s.heartbeats = append(s.heartbeats, jobID)
	s.heartbeatWorkers = append(s.heartbeatWorkers, workerID)
	return s.heartbeatErr
}

// JobsDead returns deadErrs in order, then the dead slice on every call.
func (s *fakeStore) JobsDead(_ context.Context, threshold time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deadCalls++
	s.thresholds = append(s.thresholds, threshold)
	if len(s.deadErrs) > 0 {
		err := s.deadErrs[0]
		s.deadErrs = s.deadErrs[1:]
		return nil, err
	}
	return append([]uuid.UUID(nil), s.dead...), nil
}

func (s *fakeStore) ResetJob(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resets = append(s.resets, jobID)
	return s.resetErr
}

func (s *fakeStore) heartbeatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heartbeats)
}

func (s *fakeStore) deadCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadCalls
}

func (s *fakeStore) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resets)
}

// recordingExit stands in for os.Exit.
type recordingExit struct {
	mu    sync.Mutex
	codes []int
}

func (r *recordingExit) exit(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *recordingExit) calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.codes...)
}

type staticProbe struct {
	status EmitterStatus
	err    error
}

func (p staticProbe) EmitterStatus(context.Context) (EmitterStatus, error) {
	return p.status, p.err
}
