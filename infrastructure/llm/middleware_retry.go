package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware resends requests that failed with a retryable provider
// error, backing off exponentially with jitter between attempts.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{next: next, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(r.delay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return "", 0, 0, ctx.Err()
			case <-t.C:
			}
		}
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) || !IsRetryable(err) {
			return "", 0, 0, err
		}
	}
	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// delay is base·2^attempt scaled by a jitter factor in [0.75, 1.25),
// capped at maxDelay.
func (r *retryLLM) delay(attempt int) time.Duration {
	d := r.baseDelay << min(attempt, 30)
	if d <= 0 {
		return 0
	}
	d = time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

func (r *retryLLM) GetModel() string  { return r.next.GetModel() }
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
