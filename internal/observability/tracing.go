// Package observability wires distributed tracing into the Genkit
// runtime.
//
// Spans are exported over OTLP HTTP to a local collector (Datadog
// Agent, Grafana Alloy, or the upstream otel-collector all speak it).
// A local collector is deliberate: it buffers and retries on its own,
// keeps export latency off the request path, and holds the backend
// credentials so the service never sees an API key.
//
// Tracing is opt-in. An empty endpoint disables it, and an exporter
// that cannot be built degrades to a no-op rather than failing
// startup.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector address, host:port without
	// scheme. Empty disables tracing.
	Endpoint string
	// ServiceName tags exported spans (service.name).
	ServiceName string
	// Environment tags exported spans (deployment.environment).
	Environment string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Setup registers an OTLP span exporter with Genkit's TracerProvider,
// so agent flows, model calls, and embeddings show up as spans without
// per-call-site instrumentation.
//
// The returned shutdown flushes pending spans; it is non-nil even when
// tracing is disabled.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return noop, nil
	}

	// Genkit builds its TracerProvider from the OTEL_* environment, so
	// resource attributes go through the environment rather than a
	// resource.Resource of our own.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // the collector is local, TLS terminates there
	)
	if err != nil {
		logger.Warn("building span exporter failed, tracing disabled", "error", err)
		return noop, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
