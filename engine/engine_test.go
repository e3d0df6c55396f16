package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/engine"
	"github.com/gabteles/qu-mongoid/job"
	"github.com/gabteles/qu-mongoid/queue"
	"github.com/gabteles/qu-mongoid/store"
	"github.com/gabteles/qu-mongoid/store/memory"
	"github.com/gabteles/qu-mongoid/worker"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func fastConfig() qu.Config {
	cfg := qu.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{engine.WithConfig(fastConfig())}, opts...)
	eng, err := engine.Build(memory.New(), opts...)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	return eng
}

func length(t *testing.T, eng *engine.Engine, queueName string) int64 {
	t.Helper()
	n, err := eng.Length(context.Background(), queueName)
	if err != nil {
		t.Fatalf("Length(%q): %v", queueName, err)
	}
	return n
}

func workerFor(queues ...string) *cluster.Worker {
	return &cluster.Worker{ID: "test-worker", Queues: queues}
}

// recorder is an extension that counts lifecycle hooks.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(ev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) OnJobEnqueued(context.Context, *job.Job) error { return r.add("enqueued") }
func (r *recorder) OnJobReserved(context.Context, *job.Job, string) error {
	return r.add("reserved")
}
func (r *recorder) OnJobCompleted(context.Context, *job.Job) error { return r.add("completed") }
func (r *recorder) OnJobFailed(context.Context, *job.Job, error) error {
	return r.add("failed")
}
func (r *recorder) OnJobReleased(context.Context, *job.Job) error { return r.add("released") }
func (r *recorder) OnWorkerRegistered(context.Context, *cluster.Worker) error {
	return r.add("worker_registered")
}
func (r *recorder) OnWorkerUnregistered(context.Context, string) error {
	return r.add("worker_unregistered")
}
func (r *recorder) OnShutdown(context.Context) error { return r.add("shutdown") }

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// ──────────────────────────────────────────────────
// Build
// ──────────────────────────────────────────────────

func TestEngine_BuildNoStore(t *testing.T) {
	_, err := engine.Build(nil)
	if !errors.Is(err, qu.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}

func TestEngine_BuildDefaultsPollInterval(t *testing.T) {
	cfg := qu.DefaultConfig()
	cfg.PollInterval = 0
	eng, err := engine.Build(memory.New(), engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := eng.Config().PollInterval; got != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", got)
	}
}

// ──────────────────────────────────────────────────
// Enqueue → Reserve
// ──────────────────────────────────────────────────

func TestEngine_SendEmailScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	enq, err := eng.Enqueue(ctx, "default", "SendEmail", "a@b.c", "hi")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if enq.ID.IsNil() {
		t.Fatal("Enqueue returned a nil ID")
	}
	if n := length(t, eng, "default"); n != 1 {
		t.Fatalf("Length = %d, want 1", n)
	}

	j, err := eng.Reserve(ctx, workerFor("default"), engine.NonBlocking)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if j == nil {
		t.Fatal("Reserve returned no job")
	}
	if j.ID.String() != enq.ID.String() {
		t.Errorf("ID = %s, want %s", j.ID, enq.ID)
	}
	if j.Tag != "SendEmail" {
		t.Errorf("Tag = %q, want SendEmail", j.Tag)
	}
	if len(j.Args) != 2 || j.Args[0] != "a@b.c" || j.Args[1] != "hi" {
		t.Errorf("Args = %v, want [a@b.c hi]", j.Args)
	}
	if j.Queue != "default" {
		t.Errorf("Queue = %q, want default", j.Queue)
	}
	if n := length(t, eng, "default"); n != 0 {
		t.Errorf("Length after reserve = %d, want 0", n)
	}

	eng.Completed(ctx, j)
	if n := length(t, eng, "default"); n != 0 {
		t.Errorf("Length after completed = %d, want 0", n)
	}
	if n := length(t, eng, qu.FailedQueue); n != 0 {
		t.Errorf("failed Length = %d, want 0", n)
	}
}

func TestEngine_EnqueueRegistersQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	if _, err := eng.Enqueue(ctx, "", "Ping"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := eng.Enqueue(ctx, "mail", "SendEmail"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	names, err := eng.Queues(ctx)
	if err != nil {
		t.Fatalf("Queues: %v", err)
	}
	if len(names) != 2 || names[0] != "default" || names[1] != "mail" {
		t.Errorf("Queues = %v, want [default mail]", names)
	}
}

func TestEngine_EnqueueEmptyTag(t *testing.T) {
	t.Parallel()
	eng := newEngine(t)
	if _, err := eng.Enqueue(context.Background(), "default", ""); !errors.Is(err, qu.ErrInvalidJob) {
		t.Fatalf("err = %v, want ErrInvalidJob", err)
	}
}

func TestEngine_FreshIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	seen := make(map[string]bool)
	for range 20 {
		j, err := eng.Enqueue(ctx, "default", "Same", 1)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if seen[j.ID.String()] {
			t.Fatalf("duplicate id %s", j.ID)
		}
		seen[j.ID.String()] = true
	}
}

// ──────────────────────────────────────────────────
// Reservation semantics
// ──────────────────────────────────────────────────

func TestEngine_ReservePriority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	if _, err := eng.Enqueue(ctx, "low", "Later"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Enqueue(ctx, "high", "Now"); err != nil {
		t.Fatal(err)
	}

	w := workerFor("high", "low")
	for _, want := range []string{"Now", "Later"} {
		j, err := eng.Reserve(ctx, w, engine.NonBlocking)
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		if j == nil || j.Tag != want {
			t.Fatalf("Reserve = %+v, want tag %q", j, want)
		}
	}
}

func TestEngine_ReserveNonBlockingEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	tests := []struct {
		name   string
		queues []string
	}{
		{"missing queue", []string{"nowhere"}},
		{"empty existing queue", []string{"default"}},
		{"several queues", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := eng.Reserve(ctx, workerFor(tt.queues...), engine.NonBlocking)
			if err != nil || j != nil {
				t.Fatalf("Reserve = (%v, %v), want (nil, nil)", j, err)
			}
		})
	}
}

func TestEngine_ReserveNoQueues(t *testing.T) {
	t.Parallel()
	eng := newEngine(t)

	for _, w := range []*cluster.Worker{nil, workerFor()} {
		if _, err := eng.Reserve(context.Background(), w, engine.NonBlocking); !errors.Is(err, qu.ErrNoQueues) {
			t.Errorf("err = %v, want ErrNoQueues", err)
		}
	}
}

func TestEngine_ReserveBlockingWaitsForJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = eng.Enqueue(ctx, "default", "Late")
	}()

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	j, err := eng.Reserve(rctx, workerFor("default"), engine.Blocking)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if j == nil || j.Tag != "Late" {
		t.Fatalf("Reserve = %+v, want tag Late", j)
	}
}

func TestEngine_ReserveBlockingCancelled(t *testing.T) {
	t.Parallel()
	eng := newEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	j, err := eng.Reserve(ctx, workerFor("default"), engine.Blocking)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if j != nil {
		t.Errorf("job = %+v, want nil", j)
	}
}

func TestEngine_TwoWorkersRaceForOneJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	if _, err := eng.Enqueue(ctx, "default", "Once"); err != nil {
		t.Fatal(err)
	}

	var got atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := range 2 {
		w := &cluster.Worker{ID: string(rune('a' + i)), Queues: []string{"default"}}
		g.Go(func() error {
			j, err := eng.Reserve(gctx, w, engine.NonBlocking)
			if j != nil {
				got.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got.Load() != 1 {
		t.Fatalf("reserved %d times, want exactly 1", got.Load())
	}
}

func TestEngine_ExactlyOnceUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	const jobs = 100
	for i := range jobs {
		if _, err := eng.Enqueue(ctx, "default", "Work", i); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	g, gctx := errgroup.WithContext(ctx)
	for range 8 {
		g.Go(func() error {
			w := workerFor("default")
			for {
				j, err := eng.Reserve(gctx, w, engine.NonBlocking)
				if err != nil {
					return err
				}
				if j == nil {
					return nil
				}
				mu.Lock()
				seen[j.ID.String()]++
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if len(seen) != jobs {
		t.Fatalf("reserved %d distinct jobs, want %d", len(seen), jobs)
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Errorf("job %s reserved %d times", jobID, n)
		}
	}
}

// ──────────────────────────────────────────────────
// Completion
// ──────────────────────────────────────────────────

func TestEngine_FailedRecordsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	if _, err := eng.Enqueue(ctx, "mail", "SendEmail", "a@b.c"); err != nil {
		t.Fatal(err)
	}
	j, err := eng.Reserve(ctx, workerFor("mail"), engine.NonBlocking)
	if err != nil || j == nil {
		t.Fatalf("Reserve = (%v, %v)", j, err)
	}

	eng.Failed(ctx, j, errors.New("smtp timeout"))

	if n := length(t, eng, qu.FailedQueue); n != 1 {
		t.Fatalf("failed Length = %d, want 1", n)
	}
	if n := length(t, eng, "mail"); n != 0 {
		t.Errorf("mail Length = %d, want 0 (failed jobs are not requeued)", n)
	}

	e, err := eng.Failure(ctx, j.ID)
	if err != nil {
		t.Fatalf("Failure: %v", err)
	}
	if e.Tag != "SendEmail" || e.Queue != "mail" || e.Error != "smtp timeout" {
		t.Errorf("entry = %+v", e)
	}
	if e.FailedAt.IsZero() {
		t.Error("FailedAt is zero")
	}
}

func TestEngine_FailedSwallowsStorageErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	eng, err := engine.Build(s, engine.WithConfig(fastConfig()))
	if err != nil {
		t.Fatal(err)
	}

	j, err := eng.Enqueue(ctx, "default", "Boom")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	// Must not panic or block.
	eng.Failed(ctx, j, errors.New("handler error"))
}

func TestEngine_ReplayFailedJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	orig, err := eng.Enqueue(ctx, "mail", "SendEmail", "x")
	if err != nil {
		t.Fatal(err)
	}
	j, _ := eng.Reserve(ctx, workerFor("mail"), engine.NonBlocking)
	eng.Failed(ctx, j, errors.New("boom"))

	replayed, err := eng.Replay(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.ID.String() != orig.ID.String() {
		t.Errorf("replayed ID = %s, want %s", replayed.ID, orig.ID)
	}
	if n := length(t, eng, qu.FailedQueue); n != 0 {
		t.Errorf("failed Length = %d, want 0", n)
	}
	if n := length(t, eng, "mail"); n != 1 {
		t.Errorf("mail Length = %d, want 1", n)
	}

	if _, err := eng.Replay(ctx, orig.ID); !errors.Is(err, qu.ErrJobNotFound) {
		t.Errorf("second Replay err = %v, want ErrJobNotFound", err)
	}
}

func TestEngine_Release(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	if _, err := eng.Enqueue(ctx, "default", "Retry"); err != nil {
		t.Fatal(err)
	}
	j, _ := eng.Reserve(ctx, workerFor("default"), engine.NonBlocking)
	if err := eng.Release(ctx, j); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n := length(t, eng, "default"); n != 1 {
		t.Fatalf("Length = %d, want 1", n)
	}

	again, err := eng.Reserve(ctx, workerFor("default"), engine.NonBlocking)
	if err != nil || again == nil {
		t.Fatalf("Reserve after release = (%v, %v)", again, err)
	}
	if again.ID.String() != j.ID.String() {
		t.Errorf("ID = %s, want %s", again.ID, j.ID)
	}
}

// ──────────────────────────────────────────────────
// Clear
// ──────────────────────────────────────────────────

func TestEngine_ClearAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	for _, q := range []string{"a", "b"} {
		if _, err := eng.Enqueue(ctx, q, "Job"); err != nil {
			t.Fatal(err)
		}
	}
	j, _ := eng.Reserve(ctx, workerFor("a"), engine.NonBlocking)
	eng.Failed(ctx, j, errors.New("x"))

	if err := eng.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, q := range []string{"a", "b", qu.FailedQueue} {
		if n := length(t, eng, q); n != 0 {
			t.Errorf("Length(%q) = %d, want 0", q, n)
		}
	}
	names, _ := eng.Queues(ctx)
	if len(names) != 0 {
		t.Errorf("Queues = %v, want none", names)
	}
}

func TestEngine_ClearNamed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	for _, q := range []string{"keep", "drop"} {
		if _, err := eng.Enqueue(ctx, q, "Job"); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.Clear(ctx, "drop"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := length(t, eng, "drop"); n != 0 {
		t.Errorf("drop Length = %d, want 0", n)
	}
	if n := length(t, eng, "keep"); n != 1 {
		t.Errorf("keep Length = %d, want 1", n)
	}
	names, _ := eng.Queues(ctx)
	if len(names) != 1 || names[0] != "keep" {
		t.Errorf("Queues = %v, want [keep]", names)
	}
}

// ──────────────────────────────────────────────────
// Storage failures
// ──────────────────────────────────────────────────

func TestEngine_StorageUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	eng, err := engine.Build(s, engine.WithConfig(fastConfig()))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	if _, err := eng.Enqueue(ctx, "default", "Job"); !errors.Is(err, qu.ErrStorageUnavailable) {
		t.Errorf("Enqueue err = %v, want ErrStorageUnavailable", err)
	}
	if _, err := eng.Reserve(ctx, workerFor("default"), engine.NonBlocking); !errors.Is(err, qu.ErrStorageUnavailable) {
		t.Errorf("Reserve err = %v, want ErrStorageUnavailable", err)
	}
	if _, err := eng.Length(ctx, "default"); !errors.Is(err, qu.ErrStorageUnavailable) {
		t.Errorf("Length err = %v, want ErrStorageUnavailable", err)
	}
	if err := eng.Ping(ctx); !errors.Is(err, qu.ErrStorageUnavailable) {
		t.Errorf("Ping err = %v, want ErrStorageUnavailable", err)
	}
}

func TestEngine_LegacyEmptyPop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    []engine.Option
		wantErr error
	}{
		{"shim treats legacy signal as empty", nil, nil},
		{"strict reports storage unavailable", []engine.Option{engine.WithStrictPop()}, qu.ErrStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]engine.Option{engine.WithConfig(fastConfig())}, tt.opts...)
			eng, err := engine.Build(memory.New(memory.WithLegacyPop()), opts...)
			if err != nil {
				t.Fatal(err)
			}
			j, err := eng.Reserve(ctx, workerFor("default"), engine.NonBlocking)
			if j != nil {
				t.Errorf("job = %+v, want nil", j)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Workers
// ──────────────────────────────────────────────────

func TestEngine_WorkerRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	eng := newEngine(t, engine.WithExtension(rec))

	w1 := &cluster.Worker{ID: "host:1:default", Queues: []string{"default"}}
	w2 := &cluster.Worker{ID: "host:2:mail", Queues: []string{"mail"}}
	for _, w := range []*cluster.Worker{w1, w2, w1} {
		if err := eng.RegisterWorker(ctx, w); err != nil {
			t.Fatalf("RegisterWorker: %v", err)
		}
	}

	count := func() int {
		n := 0
		for _, err := range eng.Workers(ctx) {
			if err != nil {
				t.Fatalf("Workers: %v", err)
			}
			n++
		}
		return n
	}
	if n := count(); n != 2 {
		t.Fatalf("workers = %d, want 2", n)
	}

	if err := eng.UnregisterWorker(ctx, w1.ID); err != nil {
		t.Fatalf("UnregisterWorker: %v", err)
	}
	if err := eng.UnregisterWorker(ctx, "unknown"); err != nil {
		t.Fatalf("UnregisterWorker(unknown): %v", err)
	}
	if n := count(); n != 1 {
		t.Fatalf("workers = %d, want 1", n)
	}

	if err := eng.ClearWorkers(ctx); err != nil {
		t.Fatalf("ClearWorkers: %v", err)
	}
	if n := count(); n != 0 {
		t.Fatalf("workers after clear = %d, want 0", n)
	}

	reg := 0
	for _, ev := range rec.list() {
		if ev == "worker_registered" {
			reg++
		}
	}
	if reg != 3 {
		t.Errorf("worker_registered hooks = %d, want 3", reg)
	}
}

// ──────────────────────────────────────────────────
// Extensions & metrics
// ──────────────────────────────────────────────────

func TestEngine_ExtensionLifecycleEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &recorder{}
	eng := newEngine(t, engine.WithExtension(rec))

	w := workerFor("default")
	if _, err := eng.Enqueue(ctx, "default", "A"); err != nil {
		t.Fatal(err)
	}
	j, _ := eng.Reserve(ctx, w, engine.NonBlocking)
	_ = eng.Release(ctx, j)
	j, _ = eng.Reserve(ctx, w, engine.NonBlocking)
	eng.Completed(ctx, j)
	if _, err := eng.Enqueue(ctx, "default", "B"); err != nil {
		t.Fatal(err)
	}
	j, _ = eng.Reserve(ctx, w, engine.NonBlocking)
	eng.Failed(ctx, j, errors.New("x"))
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{
		"enqueued", "reserved", "released", "reserved", "completed",
		"enqueued", "reserved", "failed", "shutdown",
	}
	got := rec.list()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEngine_MeterProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	eng := newEngine(t, engine.WithMeterProvider(mp))

	for range 3 {
		if _, err := eng.Enqueue(ctx, "default", "Count"); err != nil {
			t.Fatal(err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "qu.job.enqueued" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 3 {
		t.Errorf("qu.job.enqueued = %d, want 3", total)
	}
}

// ──────────────────────────────────────────────────
// Throttle
// ──────────────────────────────────────────────────

func TestEngine_ThrottleSkipsSaturatedQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	throttle := queue.NewThrottle(queue.Limit{Name: "limited", MaxConcurrency: 1})
	eng := newEngine(t, engine.WithThrottle(throttle))

	for range 2 {
		if _, err := eng.Enqueue(ctx, "limited", "Slow"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := eng.Enqueue(ctx, "open", "Fast"); err != nil {
		t.Fatal(err)
	}

	w := workerFor("limited", "open")
	first, _ := eng.Reserve(ctx, w, engine.NonBlocking)
	if first == nil || first.Queue != "limited" {
		t.Fatalf("first = %+v, want a job from limited", first)
	}

	second, _ := eng.Reserve(ctx, w, engine.NonBlocking)
	if second == nil || second.Queue != "open" {
		t.Fatalf("second = %+v, want the job from open", second)
	}

	none, err := eng.Reserve(ctx, w, engine.NonBlocking)
	if err != nil || none != nil {
		t.Fatalf("third = (%+v, %v), want (nil, nil)", none, err)
	}

	eng.Completed(ctx, first)
	third, _ := eng.Reserve(ctx, w, engine.NonBlocking)
	if third == nil || third.Queue != "limited" {
		t.Fatalf("after completion = %+v, want a job from limited", third)
	}
}

// insertFailingStore fails Insert once broken is set, leaving pops working.
type insertFailingStore struct {
	*memory.Store
	broken atomic.Bool
}

func (s *insertFailingStore) Insert(ctx context.Context, collection string, doc store.Document) error {
	if s.broken.Load() {
		return fmt.Errorf("insert %s: %w", collection, qu.ErrStorageUnavailable)
	}
	return s.Store.Insert(ctx, collection, doc)
}

func TestEngine_ReleaseFailureFreesSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &insertFailingStore{Store: memory.New()}
	throttle := queue.NewThrottle(queue.Limit{Name: "limited", MaxConcurrency: 1})
	eng, err := engine.Build(st, engine.WithConfig(fastConfig()), engine.WithThrottle(throttle))
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if _, err := eng.Enqueue(ctx, "limited", "Slow"); err != nil {
			t.Fatal(err)
		}
	}
	w := workerFor("limited")
	j, _ := eng.Reserve(ctx, w, engine.NonBlocking)
	if j == nil {
		t.Fatal("expected a job")
	}

	st.broken.Store(true)
	if err := eng.Release(ctx, j); !errors.Is(err, qu.ErrStorageUnavailable) {
		t.Fatalf("Release err = %v, want ErrStorageUnavailable", err)
	}
	if n := throttle.ActiveCount("limited"); n != 0 {
		t.Fatalf("active = %d after failed release, want 0", n)
	}

	next, err := eng.Reserve(ctx, w, engine.NonBlocking)
	if err != nil || next == nil {
		t.Fatalf("Reserve after failed release = (%v, %v), want the second job", next, err)
	}
}

func TestEngine_EmptyPollsKeepRateBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	throttle := queue.NewThrottle(queue.Limit{Name: "limited", RateLimit: 0.01, RateBurst: 1})
	eng := newEngine(t, engine.WithThrottle(throttle))
	w := workerFor("limited")

	for range 5 {
		if j, err := eng.Reserve(ctx, w, engine.NonBlocking); err != nil || j != nil {
			t.Fatalf("empty Reserve = (%v, %v)", j, err)
		}
	}

	if _, err := eng.Enqueue(ctx, "limited", "Rare"); err != nil {
		t.Fatal(err)
	}
	j, err := eng.Reserve(ctx, w, engine.NonBlocking)
	if err != nil || j == nil {
		t.Fatalf("Reserve after empty polls = (%v, %v), want the job", j, err)
	}
}

func TestEngine_HandoffBypassesThrottle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	throttle := queue.NewThrottle(queue.Limit{Name: "default", MaxConcurrency: 1})
	eng := newEngine(t, engine.WithThrottle(throttle))

	for range 3 {
		if _, err := eng.Enqueue(ctx, "default", "Job"); err != nil {
			t.Fatal(err)
		}
	}

	for i := range 2 {
		j, err := eng.Handoff(ctx, workerFor("default"))
		if err != nil || j == nil {
			t.Fatalf("Handoff %d = (%v, %v)", i, j, err)
		}
	}
	if n := throttle.ActiveCount("default"); n != 0 {
		t.Fatalf("active = %d after handoffs, want 0", n)
	}

	j, err := eng.Reserve(ctx, workerFor("default"), engine.NonBlocking)
	if err != nil || j == nil {
		t.Fatalf("Reserve after handoffs = (%v, %v), want the last job", j, err)
	}

	if _, err := eng.Handoff(ctx, workerFor()); !errors.Is(err, qu.ErrNoQueues) {
		t.Fatalf("Handoff without queues err = %v", err)
	}
}

func TestEngine_SetLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	if _, _, ok := eng.Limit("q"); ok {
		t.Fatal("q should start unlimited")
	}
	eng.SetLimit(queue.Limit{Name: "q", MaxConcurrency: 1})

	for range 2 {
		if _, err := eng.Enqueue(ctx, "q", "Job"); err != nil {
			t.Fatal(err)
		}
	}
	w := workerFor("q")
	first, _ := eng.Reserve(ctx, w, engine.NonBlocking)
	if first == nil {
		t.Fatal("expected first job")
	}
	if second, _ := eng.Reserve(ctx, w, engine.NonBlocking); second != nil {
		t.Fatal("second reserve should be throttled")
	}

	l, active, ok := eng.Limit("q")
	if !ok || l.MaxConcurrency != 1 || active != 1 {
		t.Fatalf("Limit(q) = %+v, %d, %v", l, active, ok)
	}
}

// ──────────────────────────────────────────────────
// Worker pool
// ──────────────────────────────────────────────────

func TestEngine_PoolEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	eng := newEngine(t)

	reg := job.NewRegistry()
	var processed atomic.Int32
	reg.Register("SendEmail", func(_ context.Context, args []any) error {
		if len(args) != 2 {
			t.Errorf("args = %v", args)
		}
		processed.Add(1)
		return nil
	})
	reg.Register("Broken", func(context.Context, []any) error { return errors.New("broken") })

	pool := eng.NewPool(reg, worker.WithPoolQueues("default"), worker.WithPoolConcurrency(2))
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for range 5 {
		if _, err := eng.Enqueue(ctx, "default", "SendEmail", "a@b.c", "hi"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := eng.Enqueue(ctx, "default", "Broken"); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for processed.Load() < 5 || length(t, eng, qu.FailedQueue) < 1 {
		select {
		case <-deadline:
			t.Fatalf("timed out: processed=%d", processed.Load())
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	n := 0
	for range eng.Workers(ctx) {
		n++
	}
	if n != 1 {
		t.Errorf("registered workers while running = %d, want 1", n)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	n = 0
	for range eng.Workers(ctx) {
		n++
	}
	if n != 0 {
		t.Errorf("registered workers after stop = %d, want 0", n)
	}
}
