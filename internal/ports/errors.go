package ports

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the adapters. Callers match them with errors.Is.
var (
	// ErrTokenLimitExceeded means the model hit its output limit before
	// producing usable text.
	ErrTokenLimitExceeded = errors.New("token limit exceeded")

	// ErrRateLimited means the provider or the local limiter refused the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable means the provider failed or the circuit is open.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout means a request deadline expired.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse means the provider answered without usable content.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed means the provider rejected the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrStoreClosed means a corpus store was used after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrConfigNotFound means a required setting or credential is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LLMError ties a generator failure to the model that produced it.
type LLMError struct {
	Model     string
	Operation string
	Err       error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s (model %s): %v", e.Operation, e.Model, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient: rate limiting,
// an unavailable service or a timeout.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError wraps err with the model and operation.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// StoreError reports a corpus backend failure.
type StoreError struct {
	// Backend is "jsonl" or "sqlite".
	Backend   string
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store %s: %v", e.Backend, e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err with the backend and operation.
func NewStoreError(backend, operation string, err error) *StoreError {
	return &StoreError{Backend: backend, Operation: operation, Err: err}
}

// MetricsError reports a failure exporting metrics. Target is the metric
// name or output path involved.
type MetricsError struct {
	Target    string
	Operation string
	Err       error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics %s %s: %v", e.Operation, e.Target, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError wraps err with the target and operation.
func NewMetricsError(target, operation string, err error) *MetricsError {
	return &MetricsError{Target: target, Operation: operation, Err: err}
}

// ConfigError names the setting or environment variable that is wrong.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err with key.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{Key: key, Err: err}
}
