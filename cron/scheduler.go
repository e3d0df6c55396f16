package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gabteles/qu-mongoid/job"
)

// Enqueuer persists jobs. *engine.Engine satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, tag string, args ...any) (*job.Job, error)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler fires cron entries on a tick loop.
type Scheduler struct {
	enq          Enqueuer
	logger       *slog.Logger
	tickInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries []*state

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates entries and computes their first fire times.
func NewScheduler(enq Enqueuer, logger *slog.Logger, entries []Entry, opts ...SchedulerOption) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		enq:          enq,
		logger:       logger,
		tickInterval: time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[string]bool, len(entries))
	now := s.now()
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate cron entry %q", e.Name)
		}
		seen[e.Name] = true

		sched, _ := ParseSchedule(e.Schedule)
		s.entries = append(s.entries, &state{entry: e, schedule: sched, next: sched.Next(now)})
	}
	return s, nil
}

// Start launches the tick goroutine. It runs until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.tickLoop(ctx)
	s.logger.Info("cron scheduler started",
		slog.Int("entries", len(s.entries)),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

// Next returns the next fire time of the named entry.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.entries {
		if st.entry.Name == name {
			return st.next, true
		}
	}
	return time.Time{}, false
}

// LastRun returns when the named entry last fired. The time is zero until
// its first fire.
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.entries {
		if st.entry.Name == name {
			return st.lastRun, true
		}
	}
	return time.Time{}, false
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick enqueues every due entry once, however many fire times were
// missed, and schedules it again from now.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*state
	for _, st := range s.entries {
		if !now.Before(st.next) {
			due = append(due, st)
			st.lastRun = now
			st.next = st.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, st := range due {
		e := st.entry
		j, err := s.enq.Enqueue(ctx, e.Queue, e.Tag, e.Args...)
		if err != nil {
			s.logger.Error("cron enqueue failed",
				slog.String("entry", e.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Debug("cron fired",
			slog.String("entry", e.Name),
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue),
		)
	}
}
