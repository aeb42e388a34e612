// Package llm adapts hosted chat models to ports.LLMClient. Providers
// implement CoreLLM; rate limiting, circuit breaking, retries, timeouts,
// metrics and tracing are layered on as Middleware.
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Middleware: []llm.Middleware{
//	        llm.RetryMiddleware(3, 500*time.Millisecond, 10*time.Second),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	    },
//	})
package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ahrav/go-consensus/internal/ports"
)

// CoreLLM is the provider-facing request surface that middleware wraps.
type CoreLLM interface {
	// DoRequest sends prompt and returns the reply with input and output
	// token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)
	GetModel() string
	SetModel(model string)
}

// Middleware wraps a CoreLLM with one cross-cutting concern.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig configures a provider and its middleware chain.
type ClientConfig struct {
	APIKey string
	// Model falls back to the provider default when empty.
	Model   string
	BaseURL string
	// Timeout bounds the provider's HTTP client. Zero keeps the SDK default.
	Timeout time.Duration
	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Client implements ports.LLMClient over a middleware-wrapped provider.
type Client struct {
	provider string
	core     CoreLLM
}

var _ ports.LLMClient = (*Client)(nil)

// ProviderFactory builds the CoreLLM of one provider.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory makes a provider available to NewClient.
func RegisterProviderFactory(provider string, factory ProviderFactory) {
	providerFactories[provider] = factory
}

// RegisteredProviders returns the registered provider names, sorted.
func RegisteredProviders() []string {
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient builds provider and wraps it with config.Middleware.
func NewClient(provider string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	factory, ok := providerFactories[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if config.Model == "" {
		config.Model = DefaultModel(provider)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}
	return &Client{provider: provider, core: core}, nil
}

// Complete returns the reply text for prompt.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.core.DoRequest(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage also returns the input and output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens approximates the token count of text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return EstimateTokens(text), nil
}

// GetModel returns the model requests are sent to.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the provider name the client was built for.
func (c *Client) Provider() string { return c.provider }

// EstimateTokens applies the four-characters-per-token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// usage prefers reported token counts and estimates missing ones.
func usage(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return EstimateTokens(text)
}
