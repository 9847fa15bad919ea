// Package tracing provides OpenTelemetry and Sentry setup utilities for Daedalus
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// Environment variables consulted by ConfigFromEnv
const (
	EnvOTLPEndpoint = "DAEDALUS_OTLP_ENDPOINT"
	EnvSampleRatio  = "DAEDALUS_TRACE_SAMPLE_RATIO"
)

// Config holds configuration for tracing setup
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port only, path added by exporter
	SampleRatio    float64
	ExportTimeout  time.Duration
}

// DefaultConfig returns a default tracing configuration
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "127.0.0.1:4318",
		SampleRatio:    1.0,
		ExportTimeout:  10 * time.Second,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by environment variables
func ConfigFromEnv(serviceName string) Config {
	config := DefaultConfig(serviceName)
	if endpoint := os.Getenv(EnvOTLPEndpoint); endpoint != "" {
		config.OTLPEndpoint = endpoint
	}
	if ratio, err := strconv.ParseFloat(os.Getenv(EnvSampleRatio), 64); err == nil {
		config.SampleRatio = ratio
	}
	return config
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint cannot be empty")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be within [0, 1], got %g", c.SampleRatio)
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = DefaultConfig(c.ServiceName).ExportTimeout
	}
	return nil
}

// SetupTracing initializes OpenTelemetry tracing with an OTLP HTTP exporter
// and installs the provider globally, where dispatchers pick it up by default.
// Returns a shutdown function that should be called when the application exits
func SetupTracing(ctx context.Context, config Config, logger *zap.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracing config: %w", err)
	}

	logger.Info("Setting up tracing",
		zap.String("service_name", config.ServiceName),
		zap.String("otlp_endpoint", config.OTLPEndpoint),
		zap.Float64("sample_ratio", config.SampleRatio))

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(config.ExportTimeout),
	)
	if err != nil {
		logger.Error("Failed to create OTLP exporter", zap.Error(err))
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		logger.Error("Failed to create resource", zap.Error(err))
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// ShutdownTracing flushes pending spans and stops the provider, waiting at most timeout
func ShutdownTracing(shutdown func(context.Context) error, timeout time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown tracing", zap.Error(err))
		return err
	}
	logger.Debug("Tracing shut down")
	return nil
}
