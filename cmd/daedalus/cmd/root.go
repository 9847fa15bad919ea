package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/takeput"
)

// options are the persistent flags shared by every command
type options struct {
	logLevel          string
	parallelism       int
	otlpEndpoint      string
	environment       string
	checkIndependence bool
}

// app is the state built before a command runs
type app struct {
	logger     *zap.Logger
	dispatcher *takeput.Dispatcher
	cleanup    []func()
}

// close runs the cleanup funcs in reverse order of registration, once
func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// Execute runs the root command
func Execute() {
	state := &app{}
	if err := execute(context.Background(), newRootCmd(state), state); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs root and releases everything init set up, whether or not the
// command failed. Sentry events and spans of failed work items are flushed here.
func execute(ctx context.Context, root *cobra.Command, state *app) error {
	defer state.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd(state *app) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "daedalus",
		Short: "Take, process and put back container elements in parallel",
		Long: `daedalus demonstrates bounded parallel take / process / put-back
dispatching over sequences and graphs.

Parallelism defaults to DAEDALUS_PARALLELISM, then the container CPU quota.
Failed work items are reported to Sentry when SENTRY_DSN is set.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return state.init(cmd.Context(), opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.IntVarP(&opts.parallelism, "parallelism", "p", 0, "maximum live tasks per chunk (0 to detect)")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", os.Getenv(tracing.EnvOTLPEndpoint), "OTLP HTTP endpoint host:port (empty disables tracing)")
	flags.StringVar(&opts.environment, "environment", "development", "deployment environment for traces and error reports")
	flags.BoolVar(&opts.checkIndependence, "check-independence", false, "reject chunks whose work items touch the same location")

	rootCmd.AddCommand(newMapCmd(state))
	rootCmd.AddCommand(newExpandCmd(state))

	return rootCmd
}

func (a *app) init(ctx context.Context, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	level, err := zapcore.ParseLevel(opts.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.logger = logger
	a.cleanup = append(a.cleanup, func() { _ = logger.Sync() })

	a.cleanup = append(a.cleanup, concurrency.AlignToContainerQuota(logger))

	config := takeput.DefaultConfig().
		WithParallelism(opts.parallelism).
		WithLogger(logger).
		WithIndependenceCheck(opts.checkIndependence)

	if opts.otlpEndpoint != "" {
		tracingConfig := tracing.ConfigFromEnv("daedalus")
		tracingConfig.OTLPEndpoint = opts.otlpEndpoint
		tracingConfig.Environment = opts.environment

		shutdown, err := tracing.SetupTracing(ctx, tracingConfig, logger)
		if err != nil {
			return err
		}
		a.cleanup = append(a.cleanup, func() { _ = tracing.ShutdownTracing(shutdown, tracingConfig.ExportTimeout, logger) })
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		flush, err := tracing.SetupSentry(dsn, opts.environment, logger)
		if err != nil {
			return err
		}
		a.cleanup = append(a.cleanup, flush)
		config = config.WithFailureHook(tracing.SentryFailureHook(nil))
	}

	a.dispatcher = takeput.NewDispatcher(config)

	logger.Debug("Dispatcher configured",
		zap.Int("parallelism", a.dispatcher.Parallelism()),
		zap.String("concurrency", concurrency.LoadConfig().String()),
	)

	return nil
}
