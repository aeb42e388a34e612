package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ahrav/go-consensus/infrastructure/llm"
	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/corpus"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
	"github.com/ahrav/go-consensus/internal/probe"
)

const (
	backendJSONL  = "jsonl"
	backendSQLite = "sqlite"
)

func (a *app) probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Collect ranked lists for every entity and locale",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "entities", Usage: "JSONL file with one entity per line", Required: true},
			&cli.StringFlag{Name: "out", Usage: "corpus file the lists are appended to", Value: "probes.jsonl"},
			&cli.BoolFlag{Name: "append", Usage: "keep existing records in --out instead of starting over"},
			&cli.StringFlag{Name: "store", Usage: "corpus backend: jsonl or sqlite"},
			&cli.StringFlag{Name: "provider", Usage: "generator backend: openai, anthropic, google or shuffle"},
			&cli.StringFlag{Name: "model", Usage: "model name, defaults to the provider's default"},
			&cli.FloatFlag{Name: "temperature", Usage: "sampling temperature", Value: 0.5},
			&cli.IntFlag{Name: "n", Usage: "items per list", Value: 5},
			&cli.IntFlag{Name: "max-retries", Usage: "extra attempts after malformed or invalid output", Value: 2},
			&cli.BoolFlag{Name: "no-validate", Usage: "accept lists without item validation"},
			&cli.IntFlag{Name: "stop-every", Usage: "check reliability every N lists, 0 disables adaptive stopping", Value: 10},
			&cli.FloatFlag{Name: "stop-overlap", Usage: "split-half top-k overlap required to stop", Value: 0.8},
			&cli.IntFlag{Name: "concurrency", Usage: "contexts collected in parallel", Value: 1},
			&cli.IntFlag{Name: "seed", Usage: "seed for the shuffle provider"},
			&cli.StringFlag{Name: "log", Usage: "append one TSV progress line per finished context"},
		},
		Action: a.runProbe,
	}
}

// probeOverrides copies explicitly set flags onto cfg.
func probeOverrides(cmd *cli.Command, cfg *application.Config) {
	p := &cfg.Probe
	if cmd.IsSet("temperature") {
		p.Temperature = cmd.Float("temperature")
	}
	if cmd.IsSet("n") {
		p.N = int(cmd.Int("n"))
	}
	if cmd.IsSet("max-retries") {
		p.MaxRetries = int(cmd.Int("max-retries"))
	}
	if cmd.Bool("no-validate") {
		p.Validate = false
	}
	if cmd.IsSet("stop-every") {
		p.Monitor.StopEvery = int(cmd.Int("stop-every"))
	}
	if cmd.IsSet("stop-overlap") {
		p.Monitor.Threshold = cmd.Float("stop-overlap")
	}
	if cmd.IsSet("concurrency") {
		p.Concurrency = int(cmd.Int("concurrency"))
	}
	if cmd.IsSet("provider") {
		cfg.LLM.Provider = cmd.String("provider")
	}
	if cmd.IsSet("model") {
		cfg.LLM.Model = cmd.String("model")
	}
	if cmd.IsSet("seed") {
		cfg.LLM.Seed = int64(cmd.Int("seed"))
	}
	if cmd.IsSet("store") {
		cfg.Store.Backend = cmd.String("store")
	}
	if cmd.IsSet("out") || cfg.Store.Path == "" {
		cfg.Store.Path = cmd.String("out")
	}
}

func (a *app) runProbe(ctx context.Context, cmd *cli.Command) error {
	cfg := a.config
	probeOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := a.logger.WithGroup("probe")

	entities, err := probe.ReadEntitiesFile(cmd.String("entities"), logger)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return fmt.Errorf("no usable entities in %s", cmd.String("entities"))
	}

	gen, err := a.generator(cfg, logger)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Store, !cmd.Bool("append"), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []probe.CollectorOption{probe.WithLogger(logger), probe.WithMetrics(a.metrics)}
	if path := cmd.String("log"); path != "" {
		progress, err := corpus.OpenProgressLog(path)
		if err != nil {
			return err
		}
		defer progress.Close()
		opts = append(opts, probe.WithProgress(progress))
	}

	collector, err := probe.NewCollector(cfg.Probe, gen, store, opts...)
	if err != nil {
		return err
	}
	summary, err := collector.Run(ctx, entities)
	logger.Info("probe finished",
		"run_id", summary.RunID,
		"contexts", summary.Contexts,
		"lists", summary.Written,
		"attempts", summary.Attempts,
		"invalid", summary.Invalid,
		"stopped_early", summary.StoppedEarly,
		"failed", summary.Failed,
		"out", cfg.Store.Path)
	if err != nil {
		return err
	}
	if summary.Written == 0 {
		err := fmt.Errorf("%w: no lists written for %d contexts", domain.ErrNoUsableInput, summary.Contexts)
		return errors.Join(append([]error{err}, summary.Errors...)...)
	}
	return nil
}

// generator returns the offline shuffle generator or an LLM-backed one.
func (a *app) generator(cfg application.Config, logger *slog.Logger) (ports.Generator, error) {
	if cfg.LLM.Provider == "shuffle" {
		return probe.NewShuffleGenerator(cfg.LLM.Seed, nil), nil
	}
	client, err := llm.Build(llmSettings(cfg.LLM), a.getenv, a.metrics, logger)
	if err != nil {
		return nil, err
	}
	return probe.NewLLMGenerator(client, nil, cfg.LLM.MaxTokens)
}

func llmSettings(c application.LLMConfig) llm.Settings {
	return llm.Settings{
		Provider:          c.Provider,
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		APIKeyEnv:         c.APIKeyEnv,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxRetries:        c.MaxRetries,
		RetryBaseDelay:    c.RetryBaseDelay,
		RetryMaxDelay:     c.RetryMaxDelay,
		CircuitFailures:   c.CircuitFailures,
		CircuitCooldown:   c.CircuitCooldown,
	}
}

// openStore opens the configured corpus backend. With fresh set any
// existing corpus at the path is discarded.
func openStore(ctx context.Context, sc application.StoreConfig, fresh bool, logger *slog.Logger) (ports.CorpusStore, error) {
	switch sc.Backend {
	case backendSQLite:
		if fresh {
			if err := os.Remove(sc.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reset corpus: %w", err)
			}
		}
		return corpus.OpenSQLite(ctx, sc.Path)
	default:
		return corpus.OpenJSONL(sc.Path, fresh, logger)
	}
}
