package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/takeput"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SetupSentry initializes the global Sentry hub. An empty DSN disables sending.
// Returns a flush function that should be called when the application exits
func SetupSentry(dsn, environment string, logger *zap.Logger) (func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		logger.Error("Failed to initialize Sentry", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	logger.Debug("Sentry initialized", zap.Bool("enabled", dsn != ""))

	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}

// SentryFailureHook reports every failed work item to hub, tagged with its
// phase, error code and the active trace. A nil hub uses the current hub.
func SentryFailureHook(hub *sentry.Hub) takeput.FailureHook {
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	return func(ctx context.Context, failure *takeput.ItemError) {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("phase", failure.Phase)
			scope.SetTag("code", sdkerrors.Categorize(failure))
			scope.SetContext("work_item", sentry.Context{
				"position": failure.Position,
			})
			if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
				scope.SetTag("trace_id", sc.TraceID().String())
			}
			hub.CaptureException(failure)
		})
	}
}
