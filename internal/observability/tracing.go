// Package observability wires OpenTelemetry tracing into the service.
//
// Spans are exported over OTLP HTTP to a local collector agent, which
// buffers, retries, and forwards them to whatever backend it is
// configured for. The exporter therefore never needs backend
// credentials, and a missing agent only disables tracing instead of
// failing startup.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultAgentHost is the default OTLP HTTP endpoint of the local agent.
const DefaultAgentHost = "localhost:4318"

// Config for the OTLP trace exporter.
type Config struct {
	// AgentHost is the collector's OTLP HTTP endpoint (default: localhost:4318)
	AgentHost string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
	// ServiceName is the service name shown in the tracing backend
	ServiceName string
}

// Setup registers an OTLP span exporter with Genkit's TracerProvider, so
// flow, model, and retrieval spans all land in one trace tree.
//
// Returns a shutdown function that flushes pending spans. An unreachable
// agent is logged and tracing is disabled; it is never a startup error.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = DefaultAgentHost
	}

	// Genkit's TracerProvider reads service identity from the standard
	// OTEL environment variables.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // localhost agent, no TLS
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"agent", agentHost,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
