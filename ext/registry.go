package ext

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/job"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// Registry fans lifecycle events out to registered extensions. Hooks are
// cached per interface at registration, so Register everything before the
// engine starts serving.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued        []entry[JobEnqueued]
	jobReserved        []entry[JobReserved]
	jobCompleted       []entry[JobCompleted]
	jobFailed          []entry[JobFailed]
	jobReleased        []entry[JobReleased]
	workerRegistered   []entry[WorkerRegistered]
	workerUnregistered []entry[WorkerUnregistered]
	shutdown           []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension to every hook list it implements. Extensions
// are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.jobEnqueued = add(r.jobEnqueued, name, e)
	r.jobReserved = add(r.jobReserved, name, e)
	r.jobCompleted = add(r.jobCompleted, name, e)
	r.jobFailed = add(r.jobFailed, name, e)
	r.jobReleased = add(r.jobReleased, name, e)
	r.workerRegistered = add(r.workerRegistered, name, e)
	r.workerUnregistered = add(r.workerUnregistered, name, e)
	r.shutdown = add(r.shutdown, name, e)
}

func add[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: name, hook: h})
	}
	return list
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobEnqueued notifies JobEnqueued hooks.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	emit(r, "OnJobEnqueued", r.jobEnqueued, func(h JobEnqueued) error {
		return h.OnJobEnqueued(ctx, j)
	})
}

// EmitJobReserved notifies JobReserved hooks.
func (r *Registry) EmitJobReserved(ctx context.Context, j *job.Job, workerID string) {
	emit(r, "OnJobReserved", r.jobReserved, func(h JobReserved) error {
		return h.OnJobReserved(ctx, j, workerID)
	})
}

// EmitJobCompleted notifies JobCompleted hooks.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job) {
	emit(r, "OnJobCompleted", r.jobCompleted, func(h JobCompleted) error {
		return h.OnJobCompleted(ctx, j)
	})
}

// EmitJobFailed notifies JobFailed hooks.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	emit(r, "OnJobFailed", r.jobFailed, func(h JobFailed) error {
		return h.OnJobFailed(ctx, j, jobErr)
	})
}

// EmitJobReleased notifies JobReleased hooks.
func (r *Registry) EmitJobReleased(ctx context.Context, j *job.Job) {
	emit(r, "OnJobReleased", r.jobReleased, func(h JobReleased) error {
		return h.OnJobReleased(ctx, j)
	})
}

// EmitWorkerRegistered notifies WorkerRegistered hooks.
func (r *Registry) EmitWorkerRegistered(ctx context.Context, w *cluster.Worker) {
	emit(r, "OnWorkerRegistered", r.workerRegistered, func(h WorkerRegistered) error {
		return h.OnWorkerRegistered(ctx, w)
	})
}

// EmitWorkerUnregistered notifies WorkerUnregistered hooks.
func (r *Registry) EmitWorkerUnregistered(ctx context.Context, workerID string) {
	emit(r, "OnWorkerUnregistered", r.workerUnregistered, func(h WorkerUnregistered) error {
		return h.OnWorkerUnregistered(ctx, workerID)
	})
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", r.shutdown, func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}

// emit calls each hook in order. Errors and panics are logged and never
// reach the caller, and one failing hook does not skip the rest.
func emit[H any](r *Registry, hook string, list []entry[H], call func(H) error) {
	for _, e := range list {
		if err := safeCall(e.hook, call); err != nil {
			r.logger.Warn("extension hook error",
				slog.String("hook", hook),
				slog.String("extension", e.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func safeCall[H any](h H, call func(H) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return call(h)
}
