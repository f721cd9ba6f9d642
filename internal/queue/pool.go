package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/partsync/internal/core"
	"github.com/JonMunkholm/partsync/internal/logging"
)

// Pool runs a fixed number of workers against a Queue.
type Pool struct {
	queue   Queue
	handler Handler
	workers int

	// retryDelay is the pause after a transport error from Receive.
	retryDelay time.Duration
}

// NewPool creates a pool of workers. workers below 1 is treated as 1.
func NewPool(q Queue, handler Handler, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:      q,
		handler:    handler,
		workers:    workers,
		retryDelay: 500 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled and every worker has returned. A job that
// is in progress when ctx is cancelled runs to completion.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := fmt.Sprintf("worker-%d", i+1)
		g.Go(func() error {
			return p.loop(ctx, worker)
		})
	}
	slog.Info("worker pool started", "workers", p.workers)
	err := g.Wait()
	slog.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, worker string) error {
	for {
		job, err := p.queue.Receive(ctx)
		switch {
		case err == nil:
			p.process(context.WithoutCancel(ctx), worker, job)
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrNoJob):
		default:
			slog.Error("receive job failed", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.retryDelay):
			}
		}
	}
}

// process runs one job and records its outcome.
func (p *Pool) process(ctx context.Context, worker string, job core.Job) {
	logger := logging.WithFields(ctx,
		"job_id", job.ID,
		"descriptor", job.Database,
		"worker", worker,
	)
	ctx = logging.NewContext(ctx, logger)

	p.record(ctx, job, core.JobProcessing, "")
	logger.Info("job started", "file", job.FileName, "queued_for", time.Since(job.EnqueuedAt))

	msg, err := p.run(ctx, job)
	if err != nil {
		logger.Error("job failed", "error", err)
		p.record(ctx, job, core.JobFailed, err.Error())
		return
	}

	logger.Info("job done", "result", msg)
	p.record(ctx, job, core.JobDone, msg)
}

func (p *Pool) run(ctx context.Context, job core.Job) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handler(ctx, job)
}

func (p *Pool) record(ctx context.Context, job core.Job, state core.JobState, msg string) {
	err := p.queue.SetStatus(ctx, core.JobStatus{
		ID:        job.ID,
		State:     state,
		FileName:  job.FileName,
		Message:   msg,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("record job status failed", "state", state, "error", err)
	}
}
