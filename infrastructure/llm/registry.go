package llm

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-consensus/internal/ports"
)

// ProviderSpec describes where a provider's credentials live and which
// model it uses by default.
type ProviderSpec struct {
	EnvVar       string
	DefaultModel string
}

// DefaultProviders lists the hosted providers.
var DefaultProviders = map[string]ProviderSpec{
	"openai":    {EnvVar: "OPENAI_API_KEY", DefaultModel: "gpt-4.1"},
	"anthropic": {EnvVar: "ANTHROPIC_API_KEY", DefaultModel: "claude-4-sonnet"},
	"google":    {EnvVar: "GOOGLE_API_KEY", DefaultModel: "gemini-2.5-flash"},
}

// DefaultModel returns the default model of provider, or "" if unknown.
func DefaultModel(provider string) string {
	return DefaultProviders[provider].DefaultModel
}

// Settings is the resolved client configuration, usually decoded from the
// llm section of the config file.
type Settings struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration

	RequestsPerSecond float64
	Burst             int

	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitFailures int
	CircuitCooldown time.Duration
}

// Build resolves the API key through getenv and assembles the client with
// its middleware chain, outermost first: tracing, metrics, retry, circuit
// breaker, rate limit, timeout. metrics may be nil.
func Build(s Settings, getenv func(string) string, metrics ports.MetricsCollector, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	spec, ok := DefaultProviders[s.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", s.Provider)
	}
	env := s.APIKeyEnv
	if env == "" {
		env = spec.EnvVar
	}
	key := getenv(env)
	if key == "" {
		return nil, ports.NewConfigError(env, fmt.Errorf("%w: not set for provider %q", ports.ErrConfigNotFound, s.Provider))
	}

	chain := []Middleware{TracingMiddleware(s.Provider), MetricsMiddleware(s.Provider, metrics)}
	if s.MaxRetries > 0 {
		chain = append(chain, RetryMiddleware(s.MaxRetries, s.RetryBaseDelay, s.RetryMaxDelay))
	}
	if s.CircuitFailures > 0 {
		chain = append(chain, CircuitBreakerMiddleware(s.CircuitFailures, s.CircuitCooldown))
	}
	if s.RequestsPerSecond > 0 {
		chain = append(chain, RateLimitMiddleware(rate.Limit(s.RequestsPerSecond), s.Burst))
	}
	chain = append(chain, TimeoutMiddleware(s.Timeout))

	client, err := NewClient(s.Provider, ClientConfig{
		APIKey:     key,
		Model:      s.Model,
		BaseURL:    s.BaseURL,
		Middleware: chain,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("LLM client ready",
		"provider", s.Provider,
		"model", client.GetModel(),
		"retries", s.MaxRetries,
		"rps", s.RequestsPerSecond)
	return client, nil
}
