// Package telemetry wires up OpenTelemetry tracing for the worker: Init
// installs a stdout-exporting tracer provider, and StartJobSpan and
// StartStageSpan open a job span and a child stage span. The worker loop,
// Orchestrator and Stage Runner do not call the span helpers, so the
// pipeline itself opens no spans (a real OTLP
// collector target is an operational choice left to deployment config, not
// modeled here — swapping the exporter is a one-function change).
package telemetry

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
)

var initOnce sync.Once

// Init installs a global TracerProvider when enabled is true, and returns a
// shutdown func to flush on process exit. When enabled is false it installs
// nothing and returns a no-op shutdown, so callers never have to branch.
// StartJobSpan/StartStageSpan always call through otel.Tracer, which
// resolves to a harmless no-op implementation whenever no provider has
// been installed.
func Init(ctx context.Context, log *logger.Logger, enabled bool) func(context.Context) error {
	if !enabled {
		return func(context.Context) error { return nil }
	}

	var shutdown func(context.Context) error
	initOnce.Do(func() {
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String("mixmaster-worker"),
			attribute.String("service.component", "pipeline-worker"),
		))
		if err != nil && log != nil {
			log.Warn("telemetry resource init failed, continuing without resource attrs", "error", err)
		}

		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			if log != nil {
				log.Warn("telemetry exporter init failed, tracing disabled", "error", err)
			}
			shutdown = func(context.Context) error { return nil }
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdown = tp.Shutdown
		if log != nil {
			log.Info("tracing initialized", "exporter", "stdout")
		}
	})
	if shutdown == nil {
		shutdown = func(context.Context) error { return nil }
	}
	return shutdown
}

// StartJobSpan opens the root span for one job's run.
func StartJobSpan(ctx context.Context, jobID string) (context.Context, trace.Span) {
	return otel.Tracer("mixmaster").Start(ctx, "pipeline.job", trace.WithAttributes(
		attribute.String("job.id", jobID),
	))
}

// StartStageSpan opens a child span for one stage's runner pass.
func StartStageSpan(ctx context.Context, stageID string, kind string) (context.Context, trace.Span) {
	return otel.Tracer("mixmaster").Start(ctx, "pipeline.stage."+strings.ToLower(stageID), trace.WithAttributes(
		attribute.String("stage.id", stageID),
		attribute.String("stage.kind", kind),
	))
}
