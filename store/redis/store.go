// Package redis implements store.Store on Redis. Every collection is a
// Redis list of MessagePack-encoded documents; pops use LPOP, which Redis
// executes atomically, and read-modify-write operations use WATCH/MULTI.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/backoff"
	"github.com/gabteles/qu-mongoid/store"
)

// DefaultURL is dialled when the configuration names no URI.
const DefaultURL = "redis://localhost:6379/0"

// maxTxAttempts bounds optimistic transaction retries under contention.
const maxTxAttempts = 16

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix prepends prefix to every Redis key.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements store.Store backed by Redis lists.
type Store struct {
	client     goredis.UniversalClient
	prefix     string
	ownsClient bool
	logger     *slog.Logger
}

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect parses cfg.URI as a redis:// URL (DefaultURL when empty) and
// pings until the server answers, retrying cfg.MaxRetries times
// cfg.RetryDelay apart. The returned Store closes the client on Close.
func Connect(ctx context.Context, cfg qu.Config, opts ...Option) (*Store, error) {
	url := cfg.URI
	if url == "" {
		url = DefaultURL
	}
	ropts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("qu/redis: parse url: %w", err)
	}
	client := goredis.NewClient(ropts)

	err = backoff.Retry(ctx, cfg.MaxRetries, backoff.NewConstant(cfg.RetryDelay), func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qu/redis: connect: %w: %w", qu.ErrStorageUnavailable, err)
	}

	s := New(client, opts...)
	s.ownsClient = true
	return s, nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// Close closes the client when Connect created it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("qu/redis: close: %w", err)
	}
	return nil
}

// key returns the list key of collection.
func (s *Store) key(collection string) string { return s.prefix + collection }

// wrap reports every Redis failure except context errors as storage
// unavailability.
func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("qu/redis: %s: %w: %w", op, qu.ErrStorageUnavailable, err)
}
