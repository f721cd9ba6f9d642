package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/partsync/internal/core"
)

// RedisConfig configures the Redis-backed queue.
type RedisConfig struct {
	QueueKey     string        // list holding pending job payloads
	StatusPrefix string        // prefix for per-job status keys
	StatusTTL    time.Duration // lifetime of status keys
	PollTimeout  time.Duration // BRPOP timeout, bounds shutdown latency
}

// DefaultRedisConfig returns the default key layout.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		QueueKey:     "ingest:queue",
		StatusPrefix: "ingest:job:",
		StatusTTL:    DefaultStatusTTL,
		PollTimeout:  5 * time.Second,
	}
}

// Redis is a list-based queue: LPUSH to dispatch, BRPOP to receive. The job
// payload, including the document text, travels in the list entry.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedis creates a Redis queue. Zero config fields take their defaults.
func NewRedis(client *redis.Client, cfg RedisConfig) *Redis {
	def := DefaultRedisConfig()
	if cfg.QueueKey == "" {
		cfg.QueueKey = def.QueueKey
	}
	if cfg.StatusPrefix == "" {
		cfg.StatusPrefix = def.StatusPrefix
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = def.StatusTTL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	return &Redis{client: client, cfg: cfg}
}

func (r *Redis) statusKey(id string) string {
	return r.cfg.StatusPrefix + id
}

// Dispatch records the queued status and pushes the job in one transaction.
func (r *Redis) Dispatch(ctx context.Context, job core.Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	status, err := json.Marshal(core.JobStatus{
		ID:        job.ID,
		State:     core.JobQueued,
		FileName:  job.FileName,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode status: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.statusKey(job.ID), status, r.cfg.StatusTTL)
		pipe.LPush(ctx, r.cfg.QueueKey, payload)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: enqueue job: %v", core.ErrUnavailable, err)
	}
	return job.ID, nil
}

// Receive pops the oldest job, waiting up to the poll timeout.
func (r *Redis) Receive(ctx context.Context) (core.Job, error) {
	res, err := r.client.BRPop(ctx, r.cfg.PollTimeout, r.cfg.QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return core.Job{}, ErrNoJob
	}
	if err != nil {
		if ctx.Err() != nil {
			return core.Job{}, ctx.Err()
		}
		return core.Job{}, fmt.Errorf("%w: brpop: %v", core.ErrUnavailable, err)
	}
	if len(res) < 2 {
		return core.Job{}, ErrNoJob
	}

	var job core.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return core.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

// Status reads the status key for id.
func (r *Redis) Status(ctx context.Context, id string) (core.JobStatus, error) {
	data, err := r.client.Get(ctx, r.statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.JobStatus{}, core.ErrJobNotFound
	}
	if err != nil {
		return core.JobStatus{}, fmt.Errorf("%w: get job status: %v", core.ErrUnavailable, err)
	}

	var st core.JobStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return core.JobStatus{}, fmt.Errorf("decode job status: %w", err)
	}
	return st, nil
}

// SetStatus overwrites the status key and refreshes its TTL.
func (r *Redis) SetStatus(ctx context.Context, status core.JobStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := r.client.Set(ctx, r.statusKey(status.ID), data, r.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("%w: set job status: %v", core.ErrUnavailable, err)
	}
	return nil
}

// Pending returns the queue length.
func (r *Redis) Pending(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.cfg.QueueKey).Result()
}
