package cli

import (
	"context"
	"fmt"

	audithook "github.com/gabteles/qu-mongoid/audit_hook"
	"github.com/gabteles/qu-mongoid/engine"
	"github.com/gabteles/qu-mongoid/internal/config"
	"github.com/gabteles/qu-mongoid/queue"
	"github.com/gabteles/qu-mongoid/store"
	"github.com/gabteles/qu-mongoid/store/memory"
	"github.com/gabteles/qu-mongoid/store/mongo"
	"github.com/gabteles/qu-mongoid/store/postgres"
	"github.com/gabteles/qu-mongoid/store/redis"
)

// sharedStore keeps an injected store open across commands.
type sharedStore struct{ store.Store }

func (sharedStore) Close() error { return nil }

// openStore connects to the configured backend.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return sharedStore{a.store}, nil
	}

	sc := a.cfg.Store()
	switch a.cfg.Backend {
	case config.BackendMongo:
		return mongo.Connect(ctx, sc, mongo.WithLogger(a.logger))
	case config.BackendRedis:
		return redis.Connect(ctx, sc, redis.WithLogger(a.logger))
	case config.BackendPostgres:
		return postgres.Connect(ctx, sc, postgres.WithLogger(a.logger))
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}
}

// engine opens the store and builds an Engine from the configuration.
func (a *app) engine(ctx context.Context) (*engine.Engine, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithConfig(a.cfg.Store()),
		engine.WithLogger(a.logger),
	}
	if a.cfg.StrictPop {
		opts = append(opts, engine.WithStrictPop())
	}
	if limits := a.cfg.Limits(); len(limits) > 0 {
		opts = append(opts, engine.WithThrottle(queue.NewThrottle(limits...)))
	}
	if a.cfg.Worker.JobTimeout > 0 {
		opts = append(opts, engine.WithJobTimeout(a.cfg.Worker.JobTimeout))
	}

	if a.cfg.Audit.Enabled {
		opts = append(opts, engine.WithExtension(a.auditExtension(st)))
	}

	eng, err := engine.Build(st, opts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return eng, nil
}

func (a *app) auditExtension(st store.Store) *audithook.Extension {
	rec := audithook.LogRecorder(a.logger)
	if a.cfg.Audit.Sink == "store" {
		rec = audithook.StoreRecorder(st, store.Namespace(a.cfg.Namespace).Audit())
	}
	opts := []audithook.Option{audithook.WithLogger(a.logger)}
	if len(a.cfg.Audit.Actions) > 0 {
		opts = append(opts, audithook.WithActions(a.cfg.Audit.Actions...))
	}
	return audithook.New(rec, opts...)
}
