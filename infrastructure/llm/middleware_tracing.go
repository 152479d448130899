package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// tracedProvider wraps each request in a span.
type tracedProvider struct {
	ports.AIProvider
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that adds a span per provider call.
// A nil tracer uses the global provider's tracer named after serviceName.
func TracingMiddleware(serviceName string, tracer trace.Tracer) Middleware {
	if tracer == nil {
		tracer = otel.Tracer(serviceName)
	}
	return func(next ports.AIProvider) ports.AIProvider {
		return &tracedProvider{AIProvider: next, tracer: tracer}
	}
}

// Send executes the request within a span carrying provider attributes.
func (t *tracedProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	ctx, span := t.tracer.Start(ctx, "ai.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ai.provider", t.Name()),
			attribute.String("ai.model", t.Model()),
			attribute.Int("ai.prompt.bytes", len(prompt)),
		),
	)
	defer span.End()

	resp, err := t.AIProvider.Send(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Bool("ai.structured", resp.Structured()),
	)
	return resp, nil
}
