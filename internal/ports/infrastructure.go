package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-consensus/internal/domain"
)

// LLMClient is a text completion backend.
type LLMClient interface {
	// Complete returns the model's reply to prompt. Recognized options are
	// "model", "system" (strings), "max_tokens" (int) and "temperature"
	// (float64, 0..2). Unknown keys are ignored.
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier requests are sent to.
	GetModel() string
}

// CorpusStore persists generated lists. Stores are append-only and assign
// a monotonically increasing sequence number to every record.
type CorpusStore interface {
	// Append stores the record and returns it with Seq populated.
	Append(ctx context.Context, rec domain.ProbeRecord) (domain.ProbeRecord, error)

	// Recent returns up to n most recent records for the context, ordered
	// by ascending sequence number. n <= 0 returns all records.
	Recent(ctx context.Context, entity, locale string, n int) ([]domain.ProbeRecord, error)

	// Count returns the number of records stored for the context.
	Count(ctx context.Context, entity, locale string) (int, error)

	// All returns every stored record in ascending sequence order.
	All(ctx context.Context) ([]domain.ProbeRecord, error)

	// Close releases resources held by the store.
	Close() error
}

// ProgressSink records the outcome of each collection context.
type ProgressSink interface {
	Record(ctx context.Context, entry domain.ProgressEntry) error
}

// MetricsCollector receives operational metrics. Label sets for one metric
// name must use the same keys.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (NopMetrics) RecordCounter(string, float64, map[string]string)      {}
func (NopMetrics) RecordGauge(string, float64, map[string]string)        {}
func (NopMetrics) RecordHistogram(string, float64, map[string]string)    {}
