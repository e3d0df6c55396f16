// Package worker runs reserved jobs: an Executor that invokes registered
// handlers through middleware, and a Pool that manages concurrent worker
// goroutines reserving jobs from a Backend.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/job"
	"github.com/gabteles/qu-mongoid/middleware"
)

// Backend is the queue a pool works against. *engine.Engine implements it.
type Backend interface {
	Reserve(ctx context.Context, w *cluster.Worker, mode qu.Mode) (*job.Job, error)
	Completed(ctx context.Context, j *job.Job)
	Failed(ctx context.Context, j *job.Job, err error)
	Release(ctx context.Context, j *job.Job) error
	RegisterWorker(ctx context.Context, w *cluster.Worker) error
	UnregisterWorker(ctx context.Context, workerID string) error
}

// Outcome is how a job execution ended.
type Outcome int

const (
	// OutcomeCompleted means the handler returned nil.
	OutcomeCompleted Outcome = iota
	// OutcomeFailed means the handler errored or no handler was registered.
	OutcomeFailed
	// OutcomeReleased means the job was interrupted and put back.
	OutcomeReleased
)

// Executor runs a single reserved job through middleware and the registered
// handler, then reports the outcome to the backend.
type Executor struct {
	registry *job.Registry
	backend  Backend
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	backend Backend,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		backend:  backend,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs j and reports it as completed, failed or released.
// A job whose context was cancelled before the handler finished is released
// back to its queue; a deadline from the Timeout middleware counts as a
// failure.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (Outcome, error) {
	handler, ok := e.registry.Get(j.Tag)
	if !ok {
		err := fmt.Errorf("%w for tag %q", qu.ErrNoHandler, j.Tag)
		e.backend.Failed(ctx, j, err)
		return OutcomeFailed, err
	}

	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Args)
	}

	err := e.mw(ctx, j, terminal)
	switch {
	case err == nil:
		e.backend.Completed(ctx, j)
		return OutcomeCompleted, nil

	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// The caller's ctx is already cancelled; release on a fresh one.
		if relErr := e.backend.Release(context.WithoutCancel(ctx), j); relErr != nil {
			e.logger.Error("failed to release interrupted job",
				slog.String("job_id", j.ID.String()),
				slog.String("queue", j.Queue),
				slog.String("error", relErr.Error()),
			)
			return OutcomeReleased, errors.Join(err, relErr)
		}
		return OutcomeReleased, err

	default:
		e.backend.Failed(ctx, j, err)
		return OutcomeFailed, err
	}
}
