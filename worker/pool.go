package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/backoff"
	"github.com/gabteles/qu-mongoid/cluster"
)

// Pool manages a set of concurrent worker goroutines that reserve jobs
// and execute them through the Executor. All goroutines share one
// registered cluster.Worker identity.
type Pool struct {
	backend     Backend
	executor    *Executor
	concurrency int
	queues      []string
	backoff     backoff.Strategy
	logger      *slog.Logger

	worker *cluster.Worker

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool reserves from, highest priority
// first.
func WithPoolQueues(queues ...string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithErrorBackoff sets how long a goroutine waits after a failed
// reservation before trying again.
func WithErrorBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.backoff = s }
}

// NewPool creates a worker pool.
func NewPool(backend Backend, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		backend:     backend,
		executor:    executor,
		concurrency: 1,
		queues:      []string{qu.DefaultQueue},
		backoff:     backoff.DefaultStrategy(),
		logger:      logger,
		activeJobs:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// Worker returns the registered worker identity, or nil before Start.
func (p *Pool) Worker() *cluster.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.worker
}

// Start registers the worker and launches the goroutines. It returns
// immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if len(p.queues) == 0 {
		return qu.ErrNoQueues
	}

	w := cluster.NewWorker(p.queues...)
	if err := p.backend.RegisterWorker(ctx, w); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}
	p.worker = w
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", w.ID),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for range p.concurrency {
		p.wg.Add(1)
		go p.reserveLoop(loopCtx, w)
	}
	return nil
}

// Stop stops reserving, waits for in-flight jobs and unregisters the
// worker. If ctx ends first, in-flight jobs are cancelled, which releases
// them back to their queues.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	w := p.worker
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", w.ID))

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		<-done
	}

	if err := p.backend.UnregisterWorker(context.WithoutCancel(ctx), w.ID); err != nil {
		return fmt.Errorf("stop pool: %w", err)
	}
	return nil
}

func (p *Pool) reserveLoop(ctx context.Context, w *cluster.Worker) {
	defer p.wg.Done()

	failures := 0
	for ctx.Err() == nil {
		j, err := p.backend.Reserve(ctx, w, qu.Blocking)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			failures++
			p.logger.Error("reserve error",
				slog.String("worker_id", w.ID),
				slog.Int("attempt", failures),
				slog.String("error", err.Error()),
			)
			p.sleep(ctx, p.backoff.Delay(failures))
			continue
		}
		failures = 0
		if j == nil {
			continue
		}

		jobCtx, cancel := context.WithCancel(context.Background())
		p.trackJob(j.ID.String(), cancel)

		outcome, execErr := p.executor.Execute(jobCtx, j)
		if execErr != nil {
			p.logger.Debug("job did not complete",
				slog.String("job_id", j.ID.String()),
				slog.String("job_tag", j.Tag),
				slog.Int("outcome", int(outcome)),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackJob(j.ID.String())
		cancel()
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
