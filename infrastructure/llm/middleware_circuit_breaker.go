package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-consensus/internal/ports"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ports.ErrServiceUnavailable)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and admits
// one probe request once cooldown has passed.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: max(maxFailures, 1), cooldown: cooldown, now: time.Now}
}

// State returns the current state. An open breaker whose cooldown has
// passed reports half-open.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// allow reports whether a request may proceed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

// record feeds the outcome of an admitted request back into the breaker.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// Call runs fn unless the breaker is open.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	// The caller giving up says nothing about the provider.
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		cb.mu.Lock()
		cb.probing = false
		cb.mu.Unlock()
		return err
	}
	cb.record(err)
	return err
}

type breakerLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware guards the provider with one shared breaker.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return BreakerMiddleware(NewCircuitBreaker(maxFailures, cooldown))
}

// BreakerMiddleware guards the provider with cb.
func BreakerMiddleware(cb *CircuitBreaker) Middleware {
	return func(next CoreLLM) CoreLLM { return &breakerLLM{next: next, cb: cb} }
}

func (b *breakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var (
		response            string
		tokensIn, tokensOut int
	)
	err := b.cb.Call(ctx, func(ctx context.Context) error {
		var err error
		response, tokensIn, tokensOut, err = b.next.DoRequest(ctx, prompt, opts)
		return err
	})
	return response, tokensIn, tokensOut, err
}

func (b *breakerLLM) GetModel() string  { return b.next.GetModel() }
func (b *breakerLLM) SetModel(m string) { b.next.SetModel(m) }
