// Package queue runs ingestion jobs off the request path.
//
// Producers call Dispatch and get a job ID back immediately. A Pool of workers
// receives jobs and hands each one to a Handler, recording queued, processing,
// done or failed as the job moves along. Delivery is at-most-once: a job that
// was received is never redelivered, even if its worker dies mid-document.
// Re-uploading the file is always safe because ingestion upserts by natural key.
package queue

import (
	"context"
	"errors"

	"github.com/JonMunkholm/partsync/internal/core"
)

// ErrNoJob is returned by Receive when its poll window closes empty.
var ErrNoJob = errors.New("queue: no job available")

// Queue is a job transport with status tracking.
type Queue interface {
	core.Dispatcher

	// Receive blocks until a job is available, ctx is done, or the
	// implementation's poll window closes (ErrNoJob).
	Receive(ctx context.Context) (core.Job, error)

	// SetStatus records the outcome of a job.
	SetStatus(ctx context.Context, status core.JobStatus) error
}

// Handler processes one job and returns the message recorded on success.
type Handler func(ctx context.Context, job core.Job) (string, error)
