package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/id"
	"github.com/gabteles/qu-mongoid/queue"
	"github.com/gabteles/qu-mongoid/store"
)

// Option configures a Store.
type Option func(*Store)

// WithStrictPop reports a storage qu.ErrUnsupported from a pop as
// qu.ErrStorageUnavailable instead of treating it as an empty queue.
func WithStrictPop() Option {
	return func(s *Store) { s.strict = true }
}

// WithNamespace sets the collection key prefix.
func WithNamespace(ns store.Namespace) Option {
	return func(s *Store) { s.ns = ns }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store holds pending jobs, one collection per queue.
type Store struct {
	docs   store.Store
	queues *queue.Registry
	ns     store.Namespace
	strict bool
	logger *slog.Logger
}

// NewStore returns a job store over docs. Queue membership is tracked in
// queues.
func NewStore(docs store.Store, queues *queue.Registry, opts ...Option) *Store {
	s := &Store{
		docs:   docs,
		queues: queues,
		ns:     store.DefaultNamespace,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue assigns a fresh ID, persists the job in queueName and registers
// the queue. An empty queueName means qu.DefaultQueue.
func (s *Store) Enqueue(ctx context.Context, queueName, tag string, args []any) (*Job, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", qu.ErrInvalidJob)
	}
	if queueName == "" {
		queueName = qu.DefaultQueue
	}

	j := &Job{ID: id.NewJobID(), Queue: queueName, Tag: tag, Args: args}
	if err := s.push(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Push inserts an already identified job into its queue and registers the
// queue. Replays of failed jobs go through here to keep their ID.
func (s *Store) Push(ctx context.Context, j *Job) error {
	if j == nil || j.ID.IsNil() || j.Tag == "" {
		return qu.ErrInvalidJob
	}
	if j.Queue == "" {
		j.Queue = qu.DefaultQueue
	}
	return s.push(ctx, j)
}

func (s *Store) push(ctx context.Context, j *Job) error {
	if err := s.docs.Insert(ctx, s.ns.Queue(j.Queue), j.Document()); err != nil {
		return fmt.Errorf("enqueue %s: %w", j.ID, err)
	}
	if err := s.queues.Add(ctx, j.Queue); err != nil {
		return fmt.Errorf("enqueue %s: %w", j.ID, err)
	}
	return nil
}

// TryPopOne atomically removes one job from queueName. It returns
// (nil, nil) when the queue is empty or does not exist.
func (s *Store) TryPopOne(ctx context.Context, queueName string) (*Job, error) {
	doc, err := s.docs.FindAndRemoveOne(ctx, s.ns.Queue(queueName))
	if errors.Is(err, qu.ErrUnsupported) {
		if s.strict {
			return nil, fmt.Errorf("pop %q: %w: %w", queueName, qu.ErrStorageUnavailable, err)
		}
		return nil, nil //nolint:nilnil // legacy servers signal an empty match this way
	}
	if err != nil {
		return nil, fmt.Errorf("pop %q: %w", queueName, err)
	}
	if doc == nil {
		return nil, nil //nolint:nilnil // empty queue
	}

	j, err := FromDocument(queueName, doc)
	if err != nil {
		s.logger.Error("dropping undecodable job",
			slog.String("queue", queueName),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return j, nil
}

// Release puts a reserved job back into its originating queue. Its position
// relative to other pending jobs is unspecified.
func (s *Store) Release(ctx context.Context, j *Job) error {
	if j == nil || j.ID.IsNil() {
		return qu.ErrInvalidJob
	}
	if err := s.docs.Insert(ctx, s.ns.Queue(j.Queue), j.Document()); err != nil {
		return fmt.Errorf("release %s: %w", j.ID, err)
	}
	return nil
}

// Length reports the number of pending jobs in queueName.
func (s *Store) Length(ctx context.Context, queueName string) (int64, error) {
	n, err := s.docs.Count(ctx, s.ns.Queue(queueName), nil)
	if err != nil {
		return 0, fmt.Errorf("length %q: %w", queueName, err)
	}
	return n, nil
}

// Clear drops the named queues and removes them from the registry. With no
// names it clears every registered queue plus the failed queue.
func (s *Store) Clear(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		registered, err := s.queues.Names(ctx)
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		names = append(registered, qu.FailedQueue)
	}

	for _, name := range names {
		if err := s.docs.DropCollection(ctx, s.ns.Queue(name)); err != nil {
			return fmt.Errorf("clear %q: %w", name, err)
		}
		if err := s.queues.Remove(ctx, name); err != nil {
			return fmt.Errorf("clear %q: %w", name, err)
		}
	}
	return nil
}

// Queues lists the registered queue names.
func (s *Store) Queues(ctx context.Context) ([]string, error) {
	return s.queues.Names(ctx)
}
