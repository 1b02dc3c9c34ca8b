package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/pim-sync/internal/config"
	"github.com/Sternrassler/pim-sync/pkg/logging"
	"github.com/Sternrassler/pim-sync/pkg/metrics"
	"github.com/Sternrassler/pim-sync/pkg/runstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// app carries what the subcommands share once the root command has run
// its PersistentPreRunE.
type app struct {
	configFile   string
	logLevel     string
	metricsAddr  string
	failOnErrors bool

	cfg     *config.Config
	logger  zerolog.Logger
	closers []io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pim-sync",
		Short: "Import commerce products and drive media into the PIM",
		Long: `pim-sync pulls products from the commerce GraphQL API and media files
from a shared drive folder tree into the PIM record store.

Configuration is read from pim-sync.yaml (or --config) and PIM_* environment
variables, e.g. PIM_COMMERCE_ENDPOINT or PIM_DATABASE_DSN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is ./pim-sync.yaml or /etc/pim-sync/pim-sync.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	cmd.AddCommand(newImportCmd(a), newReportCmd(a))
	return cmd
}

// init loads configuration, sets up logging and starts the metrics endpoint.
func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, logCloser := logging.Setup(cfg.LoggingConfig())
	a.logger = logger
	a.closers = append(a.closers, logCloser)

	if cfg.Metrics.Addr != "" {
		metricsLogger := logger.With().Str("component", "metrics").Logger()
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, metricsLogger); err != nil {
				metricsLogger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}
	return nil
}

// component returns a logger tagged with the component name.
func (a *app) component(name string) zerolog.Logger {
	return a.logger.With().Str("component", name).Logger()
}

// openRuns connects the run store. A nil store (redis.addr empty) disables
// run locking and report storage.
func (a *app) openRuns(ctx context.Context) (*runstore.Store, error) {
	if a.cfg.Redis.Addr == "" {
		a.logger.Warn().Msg("Redis address not configured, runs are neither locked nor recorded")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.track(client)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}
	a.logger.Debug().Str("addr", a.cfg.Redis.Addr).Msg("Connected to Redis")

	return runstore.NewStore(client, a.cfg.RunStoreConfig()), nil
}

// track registers c to be closed when the command finishes.
func (a *app) track(c io.Closer) {
	a.closers = append(a.closers, c)
}

// Close closes everything opened by the command, last opened first.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}
