package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-consensus/internal/ports"
)

type metricsLLM struct {
	next      CoreLLM
	provider  string
	collector ports.MetricsCollector
}

// MetricsMiddleware records request counts, latency and token usage per
// provider, model and outcome.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{next: next, provider: provider, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   status(err),
	}
	m.collector.RecordLatency("llm_request", time.Since(start), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)
	if err == nil {
		m.collector.RecordCounter("llm_tokens_total", float64(tokensIn),
			map[string]string{"provider": m.provider, "model": labels["model"], "direction": "input"})
		m.collector.RecordCounter("llm_tokens_total", float64(tokensOut),
			map[string]string{"provider": m.provider, "model": labels["model"], "direction": "output"})
	}
	return response, tokensIn, tokensOut, err
}

func status(err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &perr):
		return perr.Kind.String()
	default:
		return "error"
	}
}

func (m *metricsLLM) GetModel() string      { return m.next.GetModel() }
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
