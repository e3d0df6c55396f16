package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	qu "github.com/gabteles/qu-mongoid"
	"github.com/gabteles/qu-mongoid/backoff"
	"github.com/gabteles/qu-mongoid/store"
)

// DefaultURI is dialled when the configuration names no URI.
const DefaultURI = "mongodb://localhost:27017"

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store. Every collection key
// maps to a MongoDB collection of the same name.
type Store struct {
	client     *mongod.Client
	db         *mongod.Database
	ns         store.Namespace
	ownsClient bool
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithNamespace sets the namespace whose registry collections Migrate
// indexes.
func WithNamespace(ns store.Namespace) Option {
	return func(s *Store) { s.ns = ns }
}

// WithRetry retries operations that fail with a connection error up to
// maxRetries times, delay apart.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// Connect dials cfg.URI (DefaultURI when empty) and waits until the server
// answers a ping, retrying cfg.MaxRetries times cfg.RetryDelay apart.
// The database is the one named in the URI path, else cfg.Database. The
// returned Store owns the client and disconnects it on Close.
func Connect(ctx context.Context, cfg qu.Config, opts ...Option) (*Store, error) {
	uri := cfg.URI
	if uri == "" {
		uri = DefaultURI
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("qu/mongo: connect: %w", err)
	}

	strategy := backoff.NewConstant(cfg.RetryDelay)
	err = backoff.Retry(ctx, cfg.MaxRetries, strategy, func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("qu/mongo: connect: %w: %w", qu.ErrStorageUnavailable, err)
	}

	base := []Option{
		WithNamespace(store.Namespace(cfg.Namespace)),
		WithRetry(cfg.MaxRetries, cfg.RetryDelay),
	}
	s := New(client, databaseName(uri, cfg.Database), append(base, opts...)...)
	s.ownsClient = true
	return s, nil
}

// New wraps a caller-owned client. Close does not disconnect it.
func New(client *mongod.Client, database string, opts ...Option) *Store {
	if database == "" {
		database = qu.DefaultConfig().Database
	}
	s := &Store{
		client: client,
		db:     client.Database(database),
		ns:     store.DefaultNamespace,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying database handle for advanced usage.
func (s *Store) Database() *mongod.Database { return s.db }

// Migrate creates the indexes used by the queue registry.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes(s.ns) {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("qu/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// Close disconnects the client when Connect created it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("qu/mongo: close: %w", err)
	}
	return nil
}

// databaseName picks the database from the URI path, else fallback.
func databaseName(uri, fallback string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return fallback
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return fallback
}

// migrationIndexes returns the index definitions per collection.
func migrationIndexes(ns store.Namespace) map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		ns.Queues(): {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
