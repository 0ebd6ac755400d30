package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer exports turn execution as OpenTelemetry spans.
//
// Spans map onto the engine's boundary tree: a turn is the root span,
// cycles and pipeline stages are children, provider and tool calls are
// leaves. The local JSONL trace files remain the source of truth; OTLP
// export is an optional mirror for platforms like Jaeger or Tempo.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
}

// TraceConfig configures span export.
type TraceConfig struct {
	// ServiceName identifies this process in traces.
	ServiceName string

	// ServiceVersion identifies the build.
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export; Start still returns valid no-op spans.
	Endpoint string

	// SampleRatio controls the recorded fraction (0.0 to 1.0, default 1.0).
	SampleRatio float64

	// Insecure disables TLS on the OTLP connection.
	Insecure bool
}

// NewTracer creates a tracer and its shutdown function. With no endpoint
// configured the tracer is a no-op and shutdown does nothing.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "thinksuit"
	}
	if config.Endpoint == "" {
		return &Tracer{
			tracer: otel.Tracer(config.ServiceName),
			config: config,
		}, func(context.Context) error { return nil }
	}
	if config.SampleRatio == 0 {
		config.SampleRatio = 1.0
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		// Export is best-effort; fall back to no-op rather than failing
		// engine startup.
		return &Tracer{
			tracer: otel.Tracer(config.ServiceName),
			config: config,
		}, func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
	}
	if config.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(config.ServiceVersion))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SampleRatio >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SampleRatio <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SampleRatio)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
			provider: provider,
			tracer:   provider.Tracer(config.ServiceName),
			config:   config,
		}, func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		}
}

// Start creates a span. End it with span.End().
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if len(attrs) > 0 {
		return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	}
	return t.tracer.Start(ctx, name)
}

// StartTurn opens the root span for one scheduled turn.
func (t *Tracer) StartTurn(ctx context.Context, sessionID, traceID string) (context.Context, trace.Span) {
	return t.Start(ctx, "turn",
		attribute.String("session.id", sessionID),
		attribute.String("trace.local_id", traceID),
	)
}

// StartCycle opens a span for one machine cycle at the given depth.
func (t *Tracer) StartCycle(ctx context.Context, depth int) (context.Context, trace.Span) {
	return t.Start(ctx, "cycle", attribute.Int("cycle.depth", depth))
}

// StartHandler opens a span for one pipeline or execution handler.
func (t *Tracer) StartHandler(ctx context.Context, handler string) (context.Context, trace.Span) {
	return t.Start(ctx, "handler."+handler, attribute.String("handler.name", handler))
}

// StartProviderCall opens a span for one LLM API call.
func (t *Tracer) StartProviderCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, "provider.call",
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
}

// StartToolCall opens a span for one tool execution.
func (t *Tracer) StartToolCall(ctx context.Context, tool, server string) (context.Context, trace.Span) {
	return t.Start(ctx, "tool.call",
		attribute.String("tool.name", tool),
		attribute.String("tool.server", server),
	)
}

// RecordError marks a span failed and records the error event.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes attaches alternating key-value pairs to a span.
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...any) {
	if span == nil {
		return
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		span.SetAttributes(attributeFromValue(key, keyvals[i+1]))
	}
}

func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
