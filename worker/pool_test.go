package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/backoff"
	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/id"
	"github.com/gabteles/qu-mongoid/job"
	"github.com/gabteles/qu-mongoid/middleware"
	"github.com/gabteles/qu-mongoid/worker"
)

// fakeBackend hands out jobs from a channel and records outcomes.
type fakeBackend struct {
	jobs       chan *job.Job
	reserveErr error

	mu           sync.Mutex
	completed    []*job.Job
	failed       map[string]error
	released     []*job.Job
	registered   []*cluster.Worker
	unregistered []string
	reserveCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		jobs:   make(chan *job.Job, 16),
		failed: make(map[string]error),
	}
}

func (b *fakeBackend) Reserve(ctx context.Context, _ *cluster.Worker, _ qu.Mode) (*job.Job, error) {
	b.mu.Lock()
	b.reserveCalls++
	err := b.reserveErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case j := <-b.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *fakeBackend) Completed(_ context.Context, j *job.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, j)
}

func (b *fakeBackend) Failed(_ context.Context, j *job.Job, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[j.ID.String()] = err
}

func (b *fakeBackend) Release(_ context.Context, j *job.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, j)
	return nil
}

func (b *fakeBackend) RegisterWorker(_ context.Context, w *cluster.Worker) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = append(b.registered, w)
	return nil
}

func (b *fakeBackend) UnregisterWorker(_ context.Context, workerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unregistered = append(b.unregistered, workerID)
	return nil
}

func (b *fakeBackend) snapshot() (completed, failed, released int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.completed), len(b.failed), len(b.released)
}

func newTestJob(tag string, args ...any) *job.Job {
	return &job.Job{ID: id.NewJobID(), Queue: "default", Tag: tag, Args: args}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func setupTestPool(t *testing.T, concurrency int) (*worker.Pool, *fakeBackend, *job.Registry) {
	t.Helper()
	logger := slog.Default()
	b := newFakeBackend()
	reg := job.NewRegistry()

	executor := worker.NewExecutor(reg, b, logger, middleware.Recover(logger))
	pool := worker.NewPool(b, executor, logger,
		worker.WithPoolConcurrency(concurrency),
		worker.WithPoolQueues("default"),
		worker.WithErrorBackoff(backoff.NewConstant(5*time.Millisecond)),
	)
	return pool, b, reg
}

func TestPool_StartStop(t *testing.T) {
	pool, b, _ := setupTestPool(t, 2)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	// Double start should be no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	// Double stop should be no-op.
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}

	if len(b.registered) != 1 {
		t.Fatalf("registered = %d, want 1", len(b.registered))
	}
	if len(b.unregistered) != 1 || b.unregistered[0] != b.registered[0].ID {
		t.Errorf("unregistered = %v, want [%s]", b.unregistered, b.registered[0].ID)
	}
}

func TestPool_NoQueues(t *testing.T) {
	b := newFakeBackend()
	pool := worker.NewPool(b, worker.NewExecutor(job.NewRegistry(), b, nil), nil, worker.WithPoolQueues())
	if err := pool.Start(context.Background()); !errors.Is(err, qu.ErrNoQueues) {
		t.Fatalf("Start err = %v, want ErrNoQueues", err)
	}
}

func TestPool_ProcessesJob(t *testing.T) {
	pool, b, reg := setupTestPool(t, 1)

	var mu sync.Mutex
	var gotArgs []any
	reg.Register("SendEmail", func(_ context.Context, args []any) error {
		mu.Lock()
		gotArgs = args
		mu.Unlock()
		return nil
	})

	b.jobs <- newTestJob("SendEmail", "a@b.c", "hi")

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { c, _, _ := b.snapshot(); return c == 1 })

	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(gotArgs) != 2 || gotArgs[0] != "a@b.c" || gotArgs[1] != "hi" {
		t.Errorf("args = %v, want [a@b.c hi]", gotArgs)
	}
}

func TestPool_HandlerErrorFails(t *testing.T) {
	pool, b, reg := setupTestPool(t, 1)
	boom := errors.New("smtp down")
	reg.Register("SendEmail", func(context.Context, []any) error { return boom })

	j := newTestJob("SendEmail")
	b.jobs <- j

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { _, f, _ := b.snapshot(); return f == 1 })
	_ = pool.Stop(context.Background())

	if err := b.failed[j.ID.String()]; !errors.Is(err, boom) {
		t.Errorf("failed error = %v, want %v", err, boom)
	}
}

func TestPool_UnknownTagFails(t *testing.T) {
	pool, b, _ := setupTestPool(t, 1)

	j := newTestJob("Nope")
	b.jobs <- j

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { _, f, _ := b.snapshot(); return f == 1 })
	_ = pool.Stop(context.Background())

	if err := b.failed[j.ID.String()]; !errors.Is(err, qu.ErrNoHandler) {
		t.Errorf("failed error = %v, want ErrNoHandler", err)
	}
}

func TestPool_PanicFails(t *testing.T) {
	pool, b, reg := setupTestPool(t, 1)
	reg.Register("Explode", func(context.Context, []any) error { panic("kaboom") })

	b.jobs <- newTestJob("Explode")

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { _, f, _ := b.snapshot(); return f == 1 })
	_ = pool.Stop(context.Background())
}

func TestPool_StopDeadlineReleasesActiveJob(t *testing.T) {
	pool, b, reg := setupTestPool(t, 1)

	started := make(chan struct{})
	reg.Register("Slow", func(ctx context.Context, _ []any) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	j := newTestJob("Slow")
	b.jobs <- j

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	c, f, r := b.snapshot()
	if c != 0 || f != 0 || r != 1 {
		t.Fatalf("completed/failed/released = %d/%d/%d, want 0/0/1", c, f, r)
	}
	if b.released[0].ID.String() != j.ID.String() {
		t.Errorf("released %s, want %s", b.released[0].ID, j.ID)
	}
}

func TestPool_ReserveErrorBacksOff(t *testing.T) {
	pool, b, _ := setupTestPool(t, 1)
	b.reserveErr = qu.ErrStorageUnavailable

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.reserveCalls >= 3
	})
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("stop error: %v", err)
	}
}

func TestExecutor_TimeoutCountsAsFailure(t *testing.T) {
	logger := slog.Default()
	b := newFakeBackend()
	reg := job.NewRegistry()
	reg.Register("Slow", func(ctx context.Context, _ []any) error {
		<-ctx.Done()
		return ctx.Err()
	})

	exec := worker.NewExecutor(reg, b, logger, middleware.Timeout(logger, 10*time.Millisecond))
	outcome, err := exec.Execute(context.Background(), newTestJob("Slow"))
	if outcome != worker.OutcomeFailed {
		t.Fatalf("outcome = %v, want OutcomeFailed", outcome)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if _, f, r := b.snapshot(); f != 1 || r != 0 {
		t.Errorf("failed/released = %d/%d, want 1/0", f, r)
	}
}
