// Package redisstore keeps job liveness state in Redis.
//
// Running jobs live in a sorted set scored by their last heartbeat in unix
// milliseconds; re-runnable jobs wait in a list. Job attributes are kept in
// one hash per job. State changes that touch more than one key run as Lua
// scripts so they are atomic.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vin-jex/job-overseer/internal/store"
)

const defaultPrefix = "overseer"

type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", addr, err)
	}

	return NewWithClient(client, opts...), nil
}

func NewWithClient(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) runningKey() string { return s.prefix + ":running" }
func (s *Store) pendingKey() string { return s.prefix + ":pending" }
func (s *Store) workersKey() string { return s.prefix + ":workers" }

func (s *Store) jobKey(jobID uuid.UUID) string {
	return s.prefix + ":job:" + jobID.String()
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

var heartbeatScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'worker_id') ~= ARGV[2] then
	return 0
end
return redis.call('ZADD', KEYS[1], 'XX', 'GT', ARGV[3], ARGV[1])
`)

// HeartbeatJob raises the job's score to now while the job is owned by
// workerID. XX leaves jobs that are not running alone; GT keeps the score
// from moving backwards.
func (s *Store) HeartbeatJob(ctx context.Context, jobID, workerID uuid.UUID) error {
	return heartbeatScript.Run(ctx, s.client,
		[]string{s.runningKey(), s.jobKey(jobID)},
		jobID.String(), workerID.String(), millis(s.now()),
	).Err()
}

// JobsDead uses an exclusive upper bound so a heartbeat exactly at the
// threshold is alive.
func (s *Store) JobsDead(ctx context.Context, threshold time.Time) ([]uuid.UUID, error) {
	members, err := s.client.ZRangeByScore(ctx, s.runningKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(millis(threshold), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			return nil, fmt.Errorf("running set member %q: %w", member, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var resetScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
	redis.call('LPUSH', KEYS[2], ARGV[1])
	redis.call('HSET', KEYS[3], 'state', ARGV[2], 'updated_at', ARGV[3])
	redis.call('HDEL', KEYS[3], 'worker_id')
	return 1
end
return 0
`)

// ResetJob moves a running job back to the pending list. Only the call that
// removes the job from the running set re-queues it.
func (s *Store) ResetJob(ctx context.Context, jobID uuid.UUID) error {
	return resetScript.Run(ctx, s.client,
		[]string{s.runningKey(), s.pendingKey(), s.jobKey(jobID)},
		jobID.String(), store.JobPending, millis(s.now()),
	).Err()
}

// CreateJob stores the job attributes and queues it as pending.
func (s *Store) CreateJob(ctx context.Context, jobID uuid.UUID, payload []byte, maxAttempts, timeoutSeconds int) error {
	now := millis(s.now())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.jobKey(jobID), map[string]any{
			"state":           store.JobPending,
			"payload":         payload,
			"max_attempts":    maxAttempts,
			"current_attempt": 0,
			"timeout_seconds": timeoutSeconds,
			"created_at":      now,
			"updated_at":      now,
		})
		pipe.LPush(ctx, s.pendingKey(), jobID.String())
		return nil
	})
	return err
}

var claimScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
	return false
end
local job = ARGV[4] .. id
redis.call('ZADD', KEYS[2], ARGV[1], id)
redis.call('HSET', job, 'state', ARGV[2], 'worker_id', ARGV[3], 'updated_at', ARGV[1])
redis.call('HINCRBY', job, 'current_attempt', 1)
return id
`)

// ClaimPendingJob pops the oldest pending job and marks it running with a
// fresh heartbeat. It returns nil, nil when nothing is pending.
func (s *Store) ClaimPendingJob(ctx context.Context, workerID uuid.UUID) (*store.Job, error) {
	raw, err := claimScript.Run(ctx, s.client,
		[]string{s.pendingKey(), s.runningKey()},
		millis(s.now()), store.JobRunning, workerID.String(), s.prefix+":job:",
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	jobID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("pending list member %q: %w", raw, err)
	}

	return s.GetJobByID(ctx, jobID)
}

var finishScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'worker_id') ~= ARGV[7] then
	return 0
end
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
local state = ARGV[2]
if ARGV[4] == '1' then
	local attempt = tonumber(redis.call('HGET', KEYS[2], 'current_attempt') or '0')
	local max = tonumber(redis.call('HGET', KEYS[2], 'max_attempts') or '0')
	if attempt < max then
		state = ARGV[5]
		redis.call('LPUSH', KEYS[3], ARGV[1])
	end
end
redis.call('HSET', KEYS[2], 'state', state, 'updated_at', ARGV[3])
redis.call('HDEL', KEYS[2], 'worker_id')
if ARGV[6] ~= '' then
	redis.call('HSET', KEYS[2], 'last_error', ARGV[6])
end
return 1
`)

func (s *Store) finish(ctx context.Context, jobID, workerID uuid.UUID, state string, retryable bool, message string) error {
	retry := "0"
	if retryable {
		retry = "1"
	}

	moved, err := finishScript.Run(ctx, s.client,
		[]string{s.runningKey(), s.jobKey(jobID), s.pendingKey()},
		jobID.String(), state, millis(s.now()), retry, store.JobPending, message, workerID.String(),
	).Int()
	if err != nil {
		return err
	}
	if moved == 0 {
		return store.ErrInvalidStateTransition
	}
	return nil
}

// CompleteJob finishes a job owned by workerID. A job that was reset or
// reclaimed by another worker yields store.ErrInvalidStateTransition.
func (s *Store) CompleteJob(ctx context.Context, jobID, workerID uuid.UUID) error {
	return s.finish(ctx, jobID, workerID, store.JobCompleted, false, "")
}

func (s *Store) FailJob(ctx context.Context, jobID, workerID uuid.UUID, message string, retryable bool) error {
	return s.finish(ctx, jobID, workerID, store.JobFailed, retryable, message)
}

func (s *Store) RegisterWorker(ctx context.Context, workerID uuid.UUID, capacity int) error {
	return s.client.HSet(ctx, s.workersKey(), workerID.String(), capacity).Err()
}

// GetJobByID returns nil, nil when the job does not exist.
func (s *Store) GetJobByID(ctx context.Context, jobID uuid.UUID) (*store.Job, error) {
	pipe := s.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, s.jobKey(jobID))
	scoreCmd := pipe.ZScore(ctx, s.runningKey(), jobID.String())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, nil
	}

	job := &store.Job{
		ID:             jobID,
		State:          fields["state"],
		Payload:        []byte(fields["payload"]),
		MaxAttempts:    atoi(fields["max_attempts"]),
		CurrentAttempt: atoi(fields["current_attempt"]),
		TimeoutSeconds: atoi(fields["timeout_seconds"]),
		CreatedAt:      fromMillis(fields["created_at"]),
		UpdatedAt:      fromMillis(fields["updated_at"]),
	}

	if msg, ok := fields["last_error"]; ok {
		job.LastError = &msg
	}
	if raw, ok := fields["worker_id"]; ok {
		if workerID, err := uuid.Parse(raw); err == nil {
			job.WorkerID = &workerID
		}
	}
	if score, err := scoreCmd.Result(); err == nil {
		hb := time.UnixMilli(int64(score))
		job.LastHeartbeat = &hb
	}

	return job, nil
}

func atoi(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func fromMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
