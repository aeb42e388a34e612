// Package application wires the scoring engine into the aggregation
// service and owns the configuration file format.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
	"github.com/ahrav/go-consensus/internal/rank"
	"github.com/ahrav/go-consensus/internal/stats"
)

// Aggregation stages reported in group errors.
const (
	StageCollect   = "collect"
	StageFit       = "fit"
	StageBootstrap = "bootstrap"
)

// Result is the output of one aggregation run.
type Result struct {
	// Tables holds one table per usable group, ordered by group key.
	Tables []domain.ScoreTable
	// Skipped holds the groups that produced no table.
	Skipped []*domain.GroupError
	// Records and Lists count the input seen and the lists fitted.
	Records int
	Lists   int
}

// Aggregator groups records, canonicalizes their rankings and scores each
// group with the configured method. A failing group never stops the others.
type Aggregator struct {
	config    AggregateConfig
	fitter    ports.Fitter
	canon     ports.Canonicalizer
	bootstrap *stats.Bootstrap
	metrics   ports.MetricsCollector
	logger    *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorMetrics reports fit and bootstrap metrics to m.
func WithAggregatorMetrics(m ports.MetricsCollector) AggregatorOption {
	return func(a *Aggregator) { a.metrics = m }
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator builds the fitter for config.Method and, if requested, the
// bootstrap around it. canon may be nil to keep identifiers as they are.
func NewAggregator(config AggregateConfig, canon ports.Canonicalizer, opts ...AggregatorOption) (*Aggregator, error) {
	a := &Aggregator{
		config:  config,
		canon:   canon,
		metrics: ports.NopMetrics{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	fitter, err := rank.New(config.Config)
	if err != nil {
		return nil, err
	}
	a.fitter = fitter

	if config.Bootstrapped() {
		b, err := stats.NewBootstrap(fitter, config.Bootstrap, stats.WithMetrics(a.metrics))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
		}
		a.bootstrap = b
	}
	return a, nil
}

// GroupKey returns the group a record belongs to under groupBy. Records
// missing the key fall into GroupUnknown.
func GroupKey(rec domain.ProbeRecord, groupBy string) string {
	var key string
	switch groupBy {
	case "":
		return GroupAll
	case GroupByEntity:
		key = rec.Entity
	case GroupByLocale:
		key = rec.Locale
	case GroupByCategory:
		key = rec.Category
	case GroupByLanguage:
		key = rec.Language
	}
	if key == "" {
		return GroupUnknown
	}
	return key
}

// Run scores every group. It fails only when the context is cancelled or
// when no group had a usable list, which yields domain.ErrNoUsableInput.
func (a *Aggregator) Run(ctx context.Context, records []domain.ProbeRecord) (Result, error) {
	groups := make(map[string][]domain.ProbeRecord)
	for _, rec := range records {
		key := GroupKey(rec, a.config.GroupBy)
		groups[key] = append(groups[key], rec)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := Result{Records: len(records)}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		table, err := a.scoreGroup(ctx, key, groups[key])
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			var gerr *domain.GroupError
			if !errors.As(err, &gerr) {
				gerr = domain.NewGroupError(key, StageFit, err)
			}
			a.logger.Warn("skipping group", "group", key, "stage", gerr.Stage, "error", gerr.Err)
			res.Skipped = append(res.Skipped, gerr)
			continue
		}
		res.Lists += table.NLists
		res.Tables = append(res.Tables, table)
	}

	if len(res.Tables) == 0 {
		return res, fmt.Errorf("%w: %d records in %d groups", domain.ErrNoUsableInput, len(records), len(keys))
	}
	return res, nil
}

// Lists canonicalizes the rankings of records and drops empty ones.
func (a *Aggregator) Lists(records []domain.ProbeRecord) []domain.RankedList {
	lists := make([]domain.RankedList, 0, len(records))
	for _, rec := range records {
		ranking := rec.Ranking()
		if a.canon != nil {
			ranking = a.canon.List(ranking)
		}
		if ranking = ranking.Dedupe(); len(ranking) > 0 {
			lists = append(lists, ranking)
		}
	}
	return lists
}

func (a *Aggregator) scoreGroup(ctx context.Context, key string, records []domain.ProbeRecord) (domain.ScoreTable, error) {
	lists := a.Lists(records)
	if len(lists) == 0 {
		return domain.ScoreTable{}, domain.NewGroupError(key, StageCollect, domain.ErrEmptyCorpus)
	}

	method := a.fitter.Name()
	fit, err := a.fitter.Fit(ctx, lists)
	if err != nil {
		return domain.ScoreTable{}, domain.NewGroupError(key, StageFit, err)
	}
	a.metrics.RecordCounter("fits_total", 1, map[string]string{
		"method":    method,
		"converged": strconv.FormatBool(fit.Converged),
	})
	a.metrics.RecordHistogram("fit_iterations", float64(fit.Iterations), map[string]string{"method": method})

	table := domain.ScoreTable{
		Group:      key,
		Method:     method,
		NLists:     len(lists),
		Iterations: fit.Iterations,
		Converged:  fit.Converged,
		Agreement:  stats.Spearman(fit.Worths, rank.FrequencyScores(lists, a.config.TopK)),
	}
	if !fit.Converged {
		a.logger.Warn("fit did not converge", "group", key, "method", method,
			"iterations", fit.Iterations, "max_delta", fit.MaxDelta)
		table.Diagnostics = append(table.Diagnostics,
			fmt.Sprintf("not converged after %d iterations (max delta %g)", fit.Iterations, fit.MaxDelta))
	}

	var boot *stats.BootstrapResult
	if a.bootstrap != nil {
		br, err := a.bootstrap.Run(ctx, lists)
		if err != nil {
			if ctx.Err() != nil {
				return domain.ScoreTable{}, ctx.Err()
			}
			return domain.ScoreTable{}, domain.NewGroupError(key, StageBootstrap, err)
		}
		if br.NotConverged > 0 {
			table.Diagnostics = append(table.Diagnostics,
				fmt.Sprintf("%d of %d resamples not converged", br.NotConverged, br.Resamples))
		}
		boot = &br
	}

	approx := ApproxCI(len(lists))
	for _, e := range fit.Worths.Ranked() {
		row := domain.ScoreRow{Item: e.Item, Worth: e.Score, NLists: len(lists)}
		if boot != nil {
			ci := boot.Intervals[e.Item]
			row.Interval = &ci
			row.StdErr = boot.StdErr[e.Item]
		} else {
			row.ApproxCI = approx
		}
		table.Rows = append(table.Rows, row)
	}

	a.metrics.RecordGauge("group_agreement", table.Agreement, map[string]string{"group": key, "method": method})
	a.logger.Debug("group scored", "group", key, "method", method, "lists", len(lists),
		"items", len(table.Rows), "iterations", fit.Iterations, "agreement", table.Agreement)
	return table, nil
}

// ApproxCI is the fixed-width 95% placeholder 1.96/sqrt(10·n) reported
// when no bootstrap was run. It is zero for n <= 0.
func ApproxCI(n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1.96 / math.Sqrt(float64(n)*10)
}
