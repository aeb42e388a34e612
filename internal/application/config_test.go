package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/rank"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consensus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, rank.MethodPlackettLuce, cfg.Aggregate.Method)
	assert.InDelta(t, 0.2, cfg.Aggregate.Alpha, 1e-12)
	assert.False(t, cfg.Aggregate.Bootstrapped())
	assert.Equal(t, 5, cfg.Probe.N)
	assert.Equal(t, "shuffle", cfg.LLM.Provider)
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		verify  func(t *testing.T, cfg Config)
	}{
		{
			name: "empty file keeps defaults",
			yaml: "",
			verify: func(t *testing.T, cfg Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		{
			name: "overrides merge onto defaults",
			yaml: `
aggregate:
  method: bt
  group_by: locale
  top_k: 5
  bootstrap:
    resamples: 200
    workers: 4
probe:
  n: 10
  monitor:
    stop_every: 5
llm:
  provider: openai
  model: gpt-4o-mini
  timeout: 30s
  requests_per_second: 2.5
canon:
  fold_case: true
  fuzzy_distance: 1
  aliases:
    "Coke": "Coca-Cola"
store:
  backend: sqlite
  path: corpus.db
log:
  level: debug
  format: json
`,
			verify: func(t *testing.T, cfg Config) {
				assert.Equal(t, rank.MethodBradleyTerry, cfg.Aggregate.Method)
				assert.Equal(t, GroupByLocale, cfg.Aggregate.GroupBy)
				assert.Equal(t, 5, cfg.Aggregate.TopK)
				assert.Equal(t, 200, cfg.Aggregate.Bootstrap.Resamples)
				assert.InDelta(t, 0.975, cfg.Aggregate.Bootstrap.Upper, 1e-12, "unset bootstrap keys keep defaults")
				assert.Equal(t, rank.DefaultMaxIterations, cfg.Aggregate.MaxIterations)
				assert.Equal(t, 10, cfg.Probe.N)
				assert.Equal(t, 5, cfg.Probe.Monitor.StopEvery)
				assert.InDelta(t, 0.8, cfg.Probe.Monitor.Threshold, 1e-12)
				assert.Equal(t, "openai", cfg.LLM.Provider)
				assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
				assert.Equal(t, "Coca-Cola", cfg.Canon.Aliases["Coke"])
				assert.Equal(t, 1, cfg.Canon.FuzzyDistance)
				assert.Equal(t, "sqlite", cfg.Store.Backend)
				assert.Equal(t, "json", cfg.Log.Format)
			},
		},
		{
			name:    "unknown key",
			yaml:    "aggregate:\n  methd: pl\n",
			wantErr: true,
		},
		{
			name:    "unknown method",
			yaml:    "aggregate:\n  method: borda\n",
			wantErr: true,
		},
		{
			name:    "unknown provider",
			yaml:    "llm:\n  provider: Cohere\n",
			wantErr: true,
		},
		{
			name:    "bad group by",
			yaml:    "aggregate:\n  group_by: brand\n",
			wantErr: true,
		},
		{
			name:    "bootstrap percentiles out of order",
			yaml:    "aggregate:\n  bootstrap:\n    resamples: 10\n    lower: 0.9\n    upper: 0.1\n",
			wantErr: true,
		},
		{
			name:    "retry delays inverted",
			yaml:    "llm:\n  retry_base_delay: 5s\n  retry_max_delay: 1s\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			yaml:    "aggregate: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadConfig_ValidationErrorsAreTyped(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "store:\n  backend: postgres\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
