package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/backoff"
	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/dlq"
	"github.com/gabteles/qu-mongoid/ext"
	"github.com/gabteles/qu-mongoid/id"
	"github.com/gabteles/qu-mongoid/job"
	mw "github.com/gabteles/qu-mongoid/middleware"
	"github.com/gabteles/qu-mongoid/observability"
	"github.com/gabteles/qu-mongoid/queue"
	"github.com/gabteles/qu-mongoid/store"
	"github.com/gabteles/qu-mongoid/worker"
)

// Reservation modes.
const (
	Blocking    = qu.Blocking
	NonBlocking = qu.NonBlocking
)

// instrumentationName is the OTel scope used by the default middleware.
const instrumentationName = "github.com/gabteles/qu-mongoid"

// Compile-time check that the engine can back a worker pool.
var _ worker.Backend = (*Engine)(nil)

// Engine ties the job store, queue and worker registries and the failed
// job sink to one document store.
type Engine struct {
	cfg        qu.Config
	docs       store.Store
	queues     *queue.Registry
	jobs       *job.Store
	workers    *cluster.Registry
	sink       *dlq.Sink
	extensions *ext.Registry
	throttle   *queue.Throttle
	logger     *slog.Logger

	pendingExts []ext.Extension
	mws         []mw.Middleware
	strictPop   bool
	jobTimeout  time.Duration
	poolBackoff backoff.Strategy

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg qu.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware adds middleware to the chain used by pools built with
// NewPool. It runs inside the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithStrictPop reports a legacy empty-match signal from storage as
// qu.ErrStorageUnavailable instead of an empty queue.
func WithStrictPop() Option {
	return func(eng *Engine) { eng.strictPop = true }
}

// WithThrottle limits how fast and how many jobs are reserved per queue.
// A throttled queue is skipped for the current round.
func WithThrottle(t *queue.Throttle) Option {
	return func(eng *Engine) { eng.throttle = t }
}

// WithJobTimeout sets the execution deadline for jobs run by pools built
// with NewPool. Zero disables it.
func WithJobTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.jobTimeout = d }
}

// WithPoolBackoff sets how pools built with NewPool wait after a failed
// reservation. Defaults to backoff.DefaultStrategy().
func WithPoolBackoff(s backoff.Strategy) Option {
	return func(eng *Engine) { eng.poolBackoff = s }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. Both the metrics
// middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build creates an Engine over st.
func Build(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, qu.ErrNoStore
	}

	eng := &Engine{
		cfg:    qu.DefaultConfig(),
		docs:   st,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.cfg.PollInterval <= 0 {
		eng.cfg.PollInterval = qu.DefaultConfig().PollInterval
	}
	if eng.poolBackoff == nil {
		eng.poolBackoff = backoff.DefaultStrategy()
	}
	if eng.throttle == nil {
		eng.throttle = queue.NewThrottle()
	}

	ns := store.Namespace(eng.cfg.Namespace)
	eng.queues = queue.NewRegistry(st, ns)

	jobOpts := []job.Option{job.WithNamespace(ns), job.WithLogger(eng.logger)}
	if eng.strictPop {
		jobOpts = append(jobOpts, job.WithStrictPop())
	}
	eng.jobs = job.NewStore(st, eng.queues, jobOpts...)
	eng.workers = cluster.NewRegistry(st, ns)
	eng.sink = dlq.NewSink(st, eng.jobs, ns)

	eng.extensions = ext.NewRegistry(eng.logger)
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	return eng, nil
}

// ──────────────────────────────────────────────────
// Producer side
// ──────────────────────────────────────────────────

// Enqueue persists a new job in queueName. An empty queueName means
// qu.DefaultQueue.
func (eng *Engine) Enqueue(ctx context.Context, queueName, tag string, args ...any) (*job.Job, error) {
	j, err := eng.jobs.Enqueue(ctx, queueName, tag, args)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// Length reports the number of pending jobs in queueName. Use
// qu.FailedQueue to count failed records.
func (eng *Engine) Length(ctx context.Context, queueName string) (int64, error) {
	return eng.jobs.Length(ctx, queueName)
}

// Clear empties the named queues. With no names it clears every registered
// queue and the failed queue.
func (eng *Engine) Clear(ctx context.Context, names ...string) error {
	return eng.jobs.Clear(ctx, names...)
}

// Queues lists the registered queue names.
func (eng *Engine) Queues(ctx context.Context) ([]string, error) {
	return eng.jobs.Queues(ctx)
}

// ──────────────────────────────────────────────────
// Reservation
// ──────────────────────────────────────────────────

// Reserve pops one job from w's queues, trying them in order each round.
// The first queue that yields a job wins.
//
// When a round finds nothing, NonBlocking returns (nil, nil) and Blocking
// sleeps for the poll interval and tries again until a job arrives or ctx
// is done, in which case ctx.Err() is returned.
func (eng *Engine) Reserve(ctx context.Context, w *cluster.Worker, mode qu.Mode) (*job.Job, error) {
	if w == nil || len(w.Queues) == 0 {
		return nil, qu.ErrNoQueues
	}

	for {
		j, err := eng.reserveRound(ctx, w, true)
		if err != nil || j != nil {
			return j, err
		}
		if mode == NonBlocking {
			return nil, nil //nolint:nilnil // no job available
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(eng.cfg.PollInterval):
		}
	}
}

// Handoff pops one job from w's queues like a NonBlocking Reserve, but
// outside the throttle: the job is handed to a caller that is not one of
// this process's pools and holds no slot. Do not report it back through
// Completed, Failed or Release on this engine.
func (eng *Engine) Handoff(ctx context.Context, w *cluster.Worker) (*job.Job, error) {
	if w == nil || len(w.Queues) == 0 {
		return nil, qu.ErrNoQueues
	}
	return eng.reserveRound(ctx, w, false)
}

func (eng *Engine) reserveRound(ctx context.Context, w *cluster.Worker, throttled bool) (*job.Job, error) {
	for _, name := range w.Queues {
		if throttled && !eng.throttle.Acquire(name) {
			continue
		}

		j, err := eng.jobs.TryPopOne(ctx, name)
		if err != nil || j == nil {
			if throttled {
				eng.releaseSlot(name)
			}
			if err != nil {
				return nil, err
			}
			continue
		}
		if throttled {
			eng.throttle.Commit(name)
		}

		eng.logger.Debug("job reserved",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", name),
			slog.String("worker_id", w.ID),
		)
		eng.extensions.EmitJobReserved(ctx, j, w.ID)
		return j, nil
	}
	return nil, nil //nolint:nilnil // empty round
}

func (eng *Engine) releaseSlot(queueName string) {
	eng.throttle.Release(queueName)
}

// SetLimit changes the reservation limit of one queue for this process.
func (eng *Engine) SetLimit(l queue.Limit) {
	eng.throttle.SetLimit(l)
}

// Limit reports the reservation limit of queueName and how many of its jobs
// this process currently holds. ok is false when the queue is unlimited.
func (eng *Engine) Limit(queueName string) (l queue.Limit, active int, ok bool) {
	l, ok = eng.throttle.Limit(queueName)
	return l, eng.throttle.ActiveCount(queueName), ok
}

// Completed reports that j finished successfully. Storage is not touched.
func (eng *Engine) Completed(ctx context.Context, j *job.Job) {
	eng.releaseSlot(j.Queue)
	eng.extensions.EmitJobCompleted(ctx, j)
}

// Failed records j in the failed queue. Recording is best-effort: a
// storage error is logged and not returned.
func (eng *Engine) Failed(ctx context.Context, j *job.Job, jobErr error) {
	defer eng.releaseSlot(j.Queue)

	if _, err := eng.sink.Record(ctx, j, jobErr); err != nil {
		eng.logger.Error("failed to record job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue),
			slog.String("error", err.Error()),
		)
		return
	}
	eng.extensions.EmitJobFailed(ctx, j, jobErr)
}

// Release puts a reserved job back into its queue.
// The throttle slot is returned even when storage fails.
func (eng *Engine) Release(ctx context.Context, j *job.Job) error {
	defer eng.releaseSlot(j.Queue)

	if err := eng.jobs.Release(ctx, j); err != nil {
		return err
	}
	eng.extensions.EmitJobReleased(ctx, j)
	return nil
}

// ──────────────────────────────────────────────────
// Workers
// ──────────────────────────────────────────────────

// RegisterWorker records w, overwriting any record with the same ID.
func (eng *Engine) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	if err := eng.workers.Register(ctx, w); err != nil {
		return err
	}
	eng.extensions.EmitWorkerRegistered(ctx, w)
	return nil
}

// UnregisterWorker removes the record for workerID. An unknown ID is not an
// error.
func (eng *Engine) UnregisterWorker(ctx context.Context, workerID string) error {
	if err := eng.workers.Unregister(ctx, workerID); err != nil {
		return err
	}
	eng.extensions.EmitWorkerUnregistered(ctx, workerID)
	return nil
}

// Workers yields every registered worker. Each range re-reads storage.
func (eng *Engine) Workers(ctx context.Context) iter.Seq2[*cluster.Worker, error] {
	return eng.workers.List(ctx)
}

// ClearWorkers removes every worker record.
func (eng *Engine) ClearWorkers(ctx context.Context) error {
	return eng.workers.Clear(ctx)
}

// ──────────────────────────────────────────────────
// Failed jobs
// ──────────────────────────────────────────────────

// Failures yields the failed job records.
func (eng *Engine) Failures(ctx context.Context) iter.Seq2[*dlq.Entry, error] {
	return eng.sink.Entries(ctx)
}

// Failure returns the failed record for jobID.
func (eng *Engine) Failure(ctx context.Context, jobID id.JobID) (*dlq.Entry, error) {
	return eng.sink.Get(ctx, jobID)
}

// Replay moves a failed job back into its original queue under the same ID.
func (eng *Engine) Replay(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := eng.sink.Replay(ctx, jobID)
	if err != nil {
		return nil, err
	}
	eng.logger.Info("failed job replayed",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", j.Queue),
	)
	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// ──────────────────────────────────────────────────
// Worker pools
// ──────────────────────────────────────────────────

// NewPool builds a worker pool that reserves from this engine and runs
// handlers from reg through the default middleware stack
// (recover, tracing, metrics, logging, timeout) followed by any
// WithMiddleware additions.
func (eng *Engine) NewPool(reg *job.Registry, opts ...worker.PoolOption) *worker.Pool {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.logger, eng.jobTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(reg, eng, eng.logger, allMws...)
	poolOpts := append([]worker.PoolOption{worker.WithErrorBackoff(eng.poolBackoff)}, opts...)
	return worker.NewPool(eng, executor, eng.logger, poolOpts...)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate prepares the backing store (indexes, tables).
func (eng *Engine) Migrate(ctx context.Context) error {
	if err := eng.docs.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", qu.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks that the backing store is reachable.
func (eng *Engine) Ping(ctx context.Context) error {
	return eng.docs.Ping(ctx)
}

// Close notifies extensions and closes the backing store.
func (eng *Engine) Close(ctx context.Context) error {
	eng.extensions.EmitShutdown(ctx)
	return eng.docs.Close()
}

// Config returns a copy of the engine's configuration.
func (eng *Engine) Config() qu.Config { return eng.cfg }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Logger returns the engine's logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }
