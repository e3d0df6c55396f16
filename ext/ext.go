// Package ext defines the extension system.
// Extensions are notified of lifecycle events (job enqueued, reserved,
// completed, failed, etc.) and can react to them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is persisted in its queue.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobReserved is called after a worker popped a job.
type JobReserved interface {
	OnJobReserved(ctx context.Context, j *job.Job, workerID string) error
}

// JobCompleted is called when a worker reports success.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job) error
}

// JobFailed is called after a failed job was recorded.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobReleased is called after a reserved job went back into its queue.
type JobReleased interface {
	OnJobReleased(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerRegistered is called after a worker record was written.
type WorkerRegistered interface {
	OnWorkerRegistered(ctx context.Context, w *cluster.Worker) error
}

// WorkerUnregistered is called after a worker record was removed.
type WorkerUnregistered interface {
	OnWorkerUnregistered(ctx context.Context, workerID string) error
}

// Shutdown is called when the engine closes.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
