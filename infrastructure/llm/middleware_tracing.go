package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/ahrav/go-consensus/infrastructure/llm")

type tracedLLM struct {
	next     CoreLLM
	provider string
}

// TracingMiddleware wraps each request in an "llm.request" span.
func TracingMiddleware(provider string) Middleware {
	return func(next CoreLLM) CoreLLM { return &tracedLLM{next: next, provider: provider} }
}

func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, span := tracer.Start(ctx, "llm.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.provider),
			attribute.String("llm.model", t.next.GetModel()),
			attribute.Int("llm.prompt_chars", len(prompt)),
		))
	defer span.End()

	response, tokensIn, tokensOut, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status(err))
		return response, tokensIn, tokensOut, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens_in", tokensIn),
		attribute.Int("llm.tokens_out", tokensOut),
	)
	return response, tokensIn, tokensOut, nil
}

func (t *tracedLLM) GetModel() string  { return t.next.GetModel() }
func (t *tracedLLM) SetModel(m string) { t.next.SetModel(m) }
