// Package cli contains the cobra commands of the qu binary.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gabteles/qu-mongoid/engine"
	"github.com/gabteles/qu-mongoid/internal/config"
	"github.com/gabteles/qu-mongoid/internal/logger"
	"github.com/gabteles/qu-mongoid/job"
	"github.com/gabteles/qu-mongoid/store"
)

// Option configures the root command.
type Option func(*app)

// WithRegistry supplies the job handlers run by `qu serve`.
func WithRegistry(reg *job.Registry) Option {
	return func(a *app) { a.registry = reg }
}

// WithStore makes every command use st instead of opening the configured
// backend. The commands never close st.
func WithStore(st store.Store) Option {
	return func(a *app) { a.store = st }
}

// app carries state shared by all commands of one invocation.
type app struct {
	configPath string
	envFiles   []string

	registry *job.Registry
	store    store.Store

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// NewRoot constructs the root command and registers every subcommand.
func NewRoot(opts ...Option) *cobra.Command {
	a := &app{registry: job.NewRegistry()}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "qu",
		Short:         "Distributed job queue over a document store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML configuration file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(
		newServeCommand(a),
		newMigrateCommand(a),
		newEnqueueCommand(a),
		newLengthCommand(a),
		newQueuesCommand(a),
		newClearCommand(a),
		newReserveCommand(a),
		newWorkersCommand(a),
		newClearWorkersCommand(a),
		newFailedCommand(a),
		newReplayCommand(a),
	)
	return root
}

// load reads configuration and builds the logger.
func (a *app) load() error {
	if err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.store != nil {
		cfg.Backend = config.BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, closer, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a.cfg, a.logger, a.logCloser = cfg, l, closer
	return nil
}

// withEngine builds an engine over the configured store, runs fn and
// closes the engine.
func (a *app) withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	eng, err := a.engine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.logger.Warn("close engine", slog.String("error", cerr.Error()))
		}
	}()
	return fn(ctx, eng)
}
