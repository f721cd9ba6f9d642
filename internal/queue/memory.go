package queue

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/partsync/internal/core"
)

// DefaultStatusTTL is how long finished job statuses are kept.
const DefaultStatusTTL = 24 * time.Hour

// Memory is an in-process queue backed by a buffered channel.
type Memory struct {
	jobs chan core.Job
	ttl  time.Duration

	mu       sync.RWMutex
	statuses map[string]core.JobStatus
}

// NewMemory returns a queue that holds up to capacity pending jobs.
func NewMemory(capacity int, statusTTL time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	if statusTTL <= 0 {
		statusTTL = DefaultStatusTTL
	}
	return &Memory{
		jobs:     make(chan core.Job, capacity),
		ttl:      statusTTL,
		statuses: make(map[string]core.JobStatus),
	}
}

// Dispatch enqueues job without blocking. A full buffer returns ErrQueueFull.
func (m *Memory) Dispatch(_ context.Context, job core.Job) (string, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	m.pruneLocked(now)
	m.statuses[job.ID] = core.JobStatus{ID: job.ID, State: core.JobQueued, FileName: job.FileName, UpdatedAt: now}
	m.mu.Unlock()

	select {
	case m.jobs <- job:
		return job.ID, nil
	default:
		m.mu.Lock()
		delete(m.statuses, job.ID)
		m.mu.Unlock()
		return "", core.ErrQueueFull
	}
}

// Receive waits for the next job.
func (m *Memory) Receive(ctx context.Context) (core.Job, error) {
	select {
	case <-ctx.Done():
		return core.Job{}, ctx.Err()
	case job := <-m.jobs:
		return job, nil
	}
}

// Status returns the last recorded status for id.
func (m *Memory) Status(_ context.Context, id string) (core.JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.statuses[id]
	if !ok {
		return core.JobStatus{}, core.ErrJobNotFound
	}
	return st, nil
}

// SetStatus records status.
func (m *Memory) SetStatus(_ context.Context, status core.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.ID] = status
	return nil
}

// Pending returns the number of jobs waiting for a worker.
func (m *Memory) Pending() int {
	return len(m.jobs)
}

func (m *Memory) pruneLocked(now time.Time) {
	for id, st := range m.statuses {
		finished := st.State == core.JobDone || st.State == core.JobFailed
		if finished && now.Sub(st.UpdatedAt) > m.ttl {
			delete(m.statuses, id)
		}
	}
}
