package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gabteles/qu-mongoid/api"
	"github.com/gabteles/qu-mongoid/cron"
	"github.com/gabteles/qu-mongoid/engine"
	"github.com/gabteles/qu-mongoid/worker"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create indexes or schema in the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(ctx context.Context, eng *engine.Engine) error {
				return eng.Migrate(ctx)
			})
		},
	}
}

// newServeCommand constructs `qu serve`. It runs the admin HTTP API when
// http.addr is set, a worker pool when handlers are registered and the cron
// scheduler when schedules are configured, until SIGINT or SIGTERM.
func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.withEngine(ctx, a.serve)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "admin API listen address (overrides http.addr)")
	return cmd
}

func (a *app) serve(ctx context.Context, eng *engine.Engine) error {
	if err := eng.Migrate(ctx); err != nil {
		return err
	}

	hasHandlers := len(a.registry.Tags()) > 0
	entries := a.cfg.Entries()
	if a.cfg.HTTP.Addr == "" && !hasHandlers && len(entries) == 0 {
		return errors.New("nothing to serve: set http.addr, schedules or register job handlers")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// abort stops whatever already started before reporting a startup error.
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if a.cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:         a.cfg.HTTP.Addr,
			Handler:      api.New(eng, a.logger).Handler(),
			ReadTimeout:  a.cfg.HTTP.ReadTimeout,
			WriteTimeout: a.cfg.HTTP.WriteTimeout,
		}
		g.Go(func() error {
			a.logger.Info("admin api listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if hasHandlers {
		pool := eng.NewPool(a.registry,
			worker.WithPoolConcurrency(a.cfg.Worker.Concurrency),
			worker.WithPoolQueues(a.cfg.Worker.Queues...),
		)
		if err := pool.Start(gctx); err != nil {
			return abort(err)
		}
		a.logger.Info("worker started",
			slog.String("worker_id", pool.Worker().ID),
			slog.Int("concurrency", a.cfg.Worker.Concurrency),
		)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Worker.ShutdownTimeout)
			defer cancel()
			return pool.Stop(sctx)
		})
	}

	if len(entries) > 0 {
		sched, err := cron.NewScheduler(eng, a.logger, entries)
		if err != nil {
			return abort(err)
		}
		if err := sched.Start(gctx); err != nil {
			return abort(err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return sched.Stop(context.WithoutCancel(ctx))
		})
	}

	return g.Wait()
}
