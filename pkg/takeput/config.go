package takeput

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FailureHook is invoked once for every failed work item.
type FailureHook func(ctx context.Context, err *ItemError)

// Config configures a Dispatcher.
type Config struct {
	// Parallelism bounds the chunk size and the number of live tasks.
	// If 0, it is detected by concurrency.LoadConfig.
	Parallelism int

	// Logger for structured logging (nil for no logging)
	Logger *zap.Logger

	// TracerProvider creates dispatch and chunk spans.
	// Default: the global provider
	TracerProvider trace.TracerProvider

	// CheckIndependence rejects a chunk whose work items claim the same
	// location. Only containers implementing Claimer are checked.
	// Default: false
	CheckIndependence bool

	// OnFailure is called for every failed work item (nil to disable)
	OnFailure FailureHook
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Parallelism:       0, // Detected at validation
		Logger:            nil,
		TracerProvider:    nil,
		CheckIndependence: false,
	}
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() {
	if c.Parallelism <= 0 {
		c.Parallelism = concurrency.DetectParallelism()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
}

// WithParallelism sets the parallelism bound.
func (c Config) WithParallelism(n int) Config {
	c.Parallelism = n
	return c
}

// WithLogger sets the logger.
func (c Config) WithLogger(logger *zap.Logger) Config {
	c.Logger = logger
	return c
}

// WithTracerProvider sets the tracer provider.
func (c Config) WithTracerProvider(tp trace.TracerProvider) Config {
	c.TracerProvider = tp
	return c
}

// WithIndependenceCheck sets whether chunks are checked for aliased work items.
func (c Config) WithIndependenceCheck(check bool) Config {
	c.CheckIndependence = check
	return c
}

// WithFailureHook sets the failure hook.
func (c Config) WithFailureHook(hook FailureHook) Config {
	c.OnFailure = hook
	return c
}
