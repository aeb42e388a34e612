package application

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-consensus/internal/canon"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/probe"
	"github.com/ahrav/go-consensus/internal/rank"
	"github.com/ahrav/go-consensus/internal/stats"
)

// Group-by keys accepted by the aggregator. An empty key puts every record
// into one group named GroupAll.
const (
	GroupByEntity   = "entity"
	GroupByLocale   = "locale"
	GroupByCategory = "category"
	GroupByLanguage = "language"

	GroupAll     = "ALL"
	GroupUnknown = "UNKNOWN"
)

// Providers lists the generator backends the provider tag accepts.
// "shuffle" is the offline generator and needs no credentials.
var Providers = []string{"openai", "anthropic", "google", "shuffle"}

// Config is the root of the YAML configuration file. Every section has
// working defaults, so an empty file is valid.
type Config struct {
	// Aggregate controls scoring of stored lists.
	Aggregate AggregateConfig `yaml:"aggregate"`
	// Probe controls list collection.
	Probe probe.Config `yaml:"probe"`
	// LLM selects and tunes the generator backend.
	LLM LLMConfig `yaml:"llm"`
	// Canon configures brand canonicalization.
	Canon CanonConfig `yaml:"canon"`
	// Store selects where lists are persisted.
	Store StoreConfig `yaml:"store"`
	// Log controls log level and format.
	Log LogConfig `yaml:"log"`
}

// AggregateConfig groups the fitter parameters with grouping and the
// optional bootstrap.
type AggregateConfig struct {
	rank.Config `yaml:",inline"`

	// GroupBy partitions records before fitting. Empty means one group.
	GroupBy string `yaml:"group_by" validate:"omitempty,oneof=entity locale category language"`

	// Bootstrap is applied when Resamples > 0. It is validated by the
	// bootstrap itself because zero resamples is a valid "off" value here.
	Bootstrap stats.BootstrapConfig `yaml:"bootstrap" validate:"-"`
}

// Bootstrapped reports whether intervals are requested.
func (c AggregateConfig) Bootstrapped() bool { return c.Bootstrap.Resamples > 0 }

// LLMConfig configures the client the generator talks to, including the
// middleware chain wrapped around the provider.
type LLMConfig struct {
	// Provider names the backend: openai, anthropic, google or shuffle.
	Provider string `yaml:"provider" validate:"required,provider"`
	// Model overrides the provider's default model.
	Model string `yaml:"model"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// APIKeyEnv names the environment variable holding the key. Empty
	// selects the provider's conventional variable.
	APIKeyEnv string `yaml:"api_key_env"`
	// MaxTokens caps each response. Zero keeps the provider default.
	MaxTokens int `yaml:"max_tokens" validate:"min=0,max=32000"`
	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// RequestsPerSecond and Burst configure the rate limiter. Zero disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
	// MaxRetries bounds transport retries with exponential backoff.
	MaxRetries     int           `yaml:"max_retries" validate:"min=0,max=10"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" validate:"min=0"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" validate:"min=0"`
	// CircuitFailures opens the breaker after that many consecutive
	// failures. Zero disables the breaker.
	CircuitFailures int           `yaml:"circuit_failures" validate:"min=0"`
	CircuitCooldown time.Duration `yaml:"circuit_cooldown" validate:"min=0"`
	// Seed drives the shuffle provider.
	Seed int64 `yaml:"seed"`
}

// CanonConfig extends the alias table with an optional file to load it from.
type CanonConfig struct {
	canon.Config `yaml:",inline"`

	// AliasFile replaces the inline aliases when set.
	AliasFile string `yaml:"alias_file"`
}

// StoreConfig selects the corpus backend.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"required,oneof=jsonl sqlite"`
	Path    string `yaml:"path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Aggregate: AggregateConfig{
			Config:    rank.DefaultConfig(),
			Bootstrap: stats.BootstrapConfig{Lower: 0.025, Upper: 0.975, Seed: 1},
		},
		Probe: probe.DefaultConfig(),
		LLM: LLMConfig{
			Provider:        "shuffle",
			Timeout:         60 * time.Second,
			MaxRetries:      3,
			RetryBaseDelay:  500 * time.Millisecond,
			RetryMaxDelay:   10 * time.Second,
			CircuitFailures: 5,
			CircuitCooldown: 30 * time.Second,
			Seed:            1,
		},
		Canon: CanonConfig{Config: canon.DefaultConfig()},
		Store: StoreConfig{Backend: "jsonl"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig decodes the YAML file at path over DefaultConfig and
// validates the result. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decodeStrict(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("YAML decode failed: %w", err)
	}
	return nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c Config) Validate() error {
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if c.Aggregate.Bootstrapped() {
		if err := v.Struct(c.Aggregate.Bootstrap); err != nil {
			return fmt.Errorf("%w: bootstrap: %v", domain.ErrInvalidConfiguration, err)
		}
	}
	if c.LLM.RetryMaxDelay > 0 && c.LLM.RetryBaseDelay > c.LLM.RetryMaxDelay {
		return fmt.Errorf("%w: retry_base_delay exceeds retry_max_delay", domain.ErrInvalidConfiguration)
	}
	return nil
}

// registerCustomValidators registers the provider tag with v.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("provider", validateProvider); err != nil {
		return fmt.Errorf("failed to register provider validator: %w", err)
	}
	return nil
}

var providerName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// validateProvider accepts lowercase names listed in Providers.
func validateProvider(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return providerName.MatchString(name) && slices.Contains(Providers, name)
}
