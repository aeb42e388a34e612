package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/canon"
	"github.com/ahrav/go-consensus/internal/corpus"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/report"
)

func (a *app) aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "Fit consensus worth scores from a corpus of ranked lists",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Usage: "corpus to read", Required: true},
			&cli.StringFlag{Name: "out", Usage: "output file, or a directory with --group-by; - is stdout", Value: "-"},
			&cli.StringFlag{Name: "store", Usage: "corpus backend of --in: jsonl or sqlite"},
			&cli.StringFlag{Name: "method", Usage: "pl, bt or freq", Value: "pl"},
			&cli.FloatFlag{Name: "alpha", Usage: "Plackett-Luce smoothing", Value: 0.2},
			&cli.IntFlag{Name: "bootstrap", Usage: "bootstrap resamples, 0 reports the approximate interval"},
			&cli.IntFlag{Name: "workers", Usage: "concurrent bootstrap refits, 0 uses all CPUs"},
			&cli.IntFlag{Name: "seed", Usage: "bootstrap seed", Value: 1},
			&cli.StringFlag{Name: "group-by", Usage: "entity, locale, category or language"},
			&cli.IntFlag{Name: "topk", Usage: "prefix length of the frequency baseline", Value: 3},
			&cli.StringFlag{Name: "aliases", Usage: "YAML alias table replacing the configured aliases"},
			&cli.StringFlag{Name: "format", Usage: "csv or xlsx", Value: report.FormatCSV},
		},
		Action: a.runAggregate,
	}
}

// aggregateOverrides copies explicitly set flags onto cfg.
func aggregateOverrides(cmd *cli.Command, cfg *application.Config) {
	ag := &cfg.Aggregate
	if cmd.IsSet("method") {
		ag.Method = cmd.String("method")
	}
	if cmd.IsSet("alpha") {
		ag.Alpha = cmd.Float("alpha")
	}
	if cmd.IsSet("topk") {
		ag.TopK = int(cmd.Int("topk"))
	}
	if cmd.IsSet("group-by") {
		ag.GroupBy = cmd.String("group-by")
	}
	if cmd.IsSet("bootstrap") {
		ag.Bootstrap.Resamples = int(cmd.Int("bootstrap"))
	}
	if cmd.IsSet("workers") {
		ag.Bootstrap.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("seed") {
		ag.Bootstrap.Seed = int64(cmd.Int("seed"))
	}
	if cmd.IsSet("aliases") {
		cfg.Canon.AliasFile = cmd.String("aliases")
	}
	if cmd.IsSet("store") {
		cfg.Store.Backend = cmd.String("store")
	}
	cfg.Store.Path = cmd.String("in")
}

func (a *app) runAggregate(ctx context.Context, cmd *cli.Command) error {
	cfg := a.config
	aggregateOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := a.logger.WithGroup("aggregate")

	out, format := cmd.String("out"), cmd.String("format")
	grouped := cfg.Aggregate.GroupBy != ""
	if grouped && out == "-" && format != report.FormatXLSX {
		return fmt.Errorf("--group-by writes one file per group; set --out to a directory")
	}

	records, err := readCorpus(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}

	table, err := canonicalizer(cfg.Canon)
	if err != nil {
		return err
	}
	agg, err := application.NewAggregator(cfg.Aggregate, table,
		application.WithAggregatorLogger(logger),
		application.WithAggregatorMetrics(a.metrics))
	if err != nil {
		return err
	}

	res, err := agg.Run(ctx, records)
	if err != nil {
		return err
	}
	for _, t := range res.Tables {
		logger.Info("group scored",
			"group", t.Group,
			"method", t.Method,
			"lists", t.NLists,
			"items", len(t.Rows),
			"converged", t.Converged,
			"agreement", fmt.Sprintf("%.3f", t.Agreement))
		for _, d := range t.Diagnostics {
			logger.Warn("diagnostic", "group", t.Group, "note", d)
		}
	}

	paths, err := report.Write(a.stdout, out, format, grouped, res.Tables)
	if err != nil {
		return err
	}
	logger.Info("aggregate finished",
		"records", res.Records,
		"lists", res.Lists,
		"groups", len(res.Tables),
		"skipped", len(res.Skipped),
		"files", len(paths))
	return nil
}

// readCorpus loads every record from the configured backend.
func readCorpus(ctx context.Context, sc application.StoreConfig, logger *slog.Logger) ([]domain.ProbeRecord, error) {
	if sc.Backend == backendSQLite {
		store, err := corpus.OpenSQLite(ctx, sc.Path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.All(ctx)
	}
	records, stats, err := corpus.ReadFile(sc.Path, logger)
	if err != nil {
		return nil, err
	}
	if stats.Malformed > 0 {
		logger.Warn("skipped malformed lines", "path", sc.Path, "malformed", stats.Malformed, "lines", stats.Lines)
	}
	return records, nil
}

// canonicalizer builds the alias table, loading it from file when one is
// configured.
func canonicalizer(cc application.CanonConfig) (*canon.Table, error) {
	c := cc.Config
	if cc.AliasFile != "" {
		loaded, err := canon.LoadConfig(cc.AliasFile)
		if err != nil {
			return nil, err
		}
		c = loaded
	}
	return canon.New(c)
}
