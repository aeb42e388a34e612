package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-consensus/internal/ports"
)

var (
	// ErrEmptyAPIKey is returned when a provider is built without credentials.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse is returned when a provider replies without text.
	ErrEmptyResponse = fmt.Errorf("empty response from API: %w", ports.ErrInvalidResponse)
	// ErrTruncated is returned when the token limit was hit before any
	// text was produced.
	ErrTruncated = fmt.Errorf("response truncated: %w", ports.ErrTokenLimitExceeded)
)

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthentication
	KindRateLimit
	KindBadRequest
	KindNotFound
	KindServer
	KindContentPolicy
	KindTimeout
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server_error"
	case KindContentPolicy:
		return "content_policy"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProviderError is a provider failure normalized across SDKs.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " error"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	msg += " [" + e.Kind.String() + "]"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is maps kinds onto the shared ports sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ports.ErrRateLimited:
		return e.Kind == KindRateLimit
	case ports.ErrAuthenticationFailed:
		return e.Kind == KindAuthentication
	case ports.ErrServiceUnavailable:
		return e.Kind == KindServer
	case ports.ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// Retryable reports whether the request may succeed if sent again.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServer, KindTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable provider error.
func IsRetryable(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Retryable()
}

// classifyStatus builds a ProviderError from an HTTP status.
func classifyStatus(provider string, status int, message string, err error) *ProviderError {
	kind := KindUnknown
	switch {
	case status == 401 || status == 403:
		kind = KindAuthentication
	case status == 404:
		kind = KindNotFound
	case status == 408:
		kind = KindTimeout
	case status == 429:
		kind = KindRateLimit
	case status >= 500:
		kind = KindServer
	case status >= 400:
		kind = KindBadRequest
	}
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: status, Message: message, Err: err}
}

// classifyContext builds a ProviderError for context failures. It returns
// nil for other errors.
func classifyContext(provider string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Provider: provider, Kind: KindTimeout, Message: "deadline exceeded", Err: err}
	case errors.Is(err, context.Canceled):
		return &ProviderError{Provider: provider, Kind: KindCanceled, Message: "request canceled", Err: err}
	}
	return nil
}
