// Package stats holds the resampling and correlation tools used on top of
// the rank fitters: a percentile bootstrap and Spearman's rank correlation.
package stats

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/montanaflynn/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var (
	validate = validator.New()
	tracer   = otel.Tracer("github.com/ahrav/go-consensus/internal/stats")
)

// BootstrapConfig controls the percentile bootstrap.
type BootstrapConfig struct {
	// Resamples is the number of resample-and-refit rounds (B).
	Resamples int `yaml:"resamples" json:"resamples" validate:"min=1,max=100000"`

	// Workers bounds concurrent refits. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers" validate:"min=0"`

	// Seed makes the resamples reproducible.
	Seed int64 `yaml:"seed" json:"seed"`

	// Lower and Upper are the percentile levels of the interval.
	Lower float64 `yaml:"lower" json:"lower" validate:"gte=0,lte=1,ltfield=Upper"`
	Upper float64 `yaml:"upper" json:"upper" validate:"gte=0,lte=1"`
}

// DefaultBootstrapConfig returns a 1000-resample 95% interval.
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		Resamples: 1000,
		Lower:     0.025,
		Upper:     0.975,
		Seed:      1,
	}
}

// BootstrapResult holds per-item percentile intervals.
type BootstrapResult struct {
	Intervals map[string]domain.ConfidenceInterval
	StdErr    map[string]float64

	// Resamples is the number of refits merged into the distributions.
	Resamples int

	// NotConverged counts refits that hit the iteration cap.
	NotConverged int
}

// Bootstrap estimates score uncertainty by refitting a model on lists
// resampled with replacement. Every item of the original corpus receives a
// value from every resample; items absent from a resample score zero there.
type Bootstrap struct {
	fitter  ports.Fitter
	config  BootstrapConfig
	metrics ports.MetricsCollector
}

// BootstrapOption configures optional collaborators.
type BootstrapOption func(*Bootstrap)

// WithMetrics records bootstrap latency and refit counts.
func WithMetrics(m ports.MetricsCollector) BootstrapOption {
	return func(b *Bootstrap) { b.metrics = m }
}

// NewBootstrap validates config and binds it to a fitter.
func NewBootstrap(fitter ports.Fitter, config BootstrapConfig, opts ...BootstrapOption) (*Bootstrap, error) {
	if fitter == nil {
		return nil, fmt.Errorf("fitter cannot be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	b := &Bootstrap{fitter: fitter, config: config, metrics: ports.NopMetrics{}}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// resampleSeed derives an independent stream per resample so results do
// not depend on which worker ran which resample.
func resampleSeed(seed int64, i int) int64 {
	const golden = 0x9E3779B97F4A7C15
	x := uint64(seed) + uint64(i+1)*golden
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return int64(x)
}

// Run draws the resamples, refits each, and reduces the per-item
// distributions to percentile intervals. Cancelling ctx stops outstanding
// refits and returns the context error.
func (b *Bootstrap) Run(ctx context.Context, lists []domain.RankedList) (BootstrapResult, error) {
	usable := make([]domain.RankedList, 0, len(lists))
	for _, l := range lists {
		if len(l.Dedupe()) > 0 {
			usable = append(usable, l)
		}
	}
	if len(usable) == 0 {
		return BootstrapResult{}, domain.ErrEmptyCorpus
	}
	lists = usable
	items := domain.Items(lists)

	start := time.Now()
	ctx, span := tracer.Start(ctx, "Bootstrap.Run",
		trace.WithAttributes(
			attribute.String("method", b.fitter.Name()),
			attribute.Int("resamples", b.config.Resamples),
			attribute.Int("lists", len(lists)),
		))
	defer span.End()

	workers := b.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// samples[r] holds resample r's worth per item in items order; each
	// goroutine owns its row so no locking is needed.
	samples := make([][]float64, b.config.Resamples)
	converged := make([]bool, b.config.Resamples)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r := 0; r < b.config.Resamples; r++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rng := rand.New(rand.NewSource(resampleSeed(b.config.Seed, r))) // #nosec G404
			resample := make([]domain.RankedList, len(lists))
			for i := range resample {
				resample[i] = lists[rng.Intn(len(lists))]
			}
			res, err := b.fitter.Fit(gctx, resample)
			if err != nil {
				return fmt.Errorf("resample %d: %w", r, err)
			}
			row := make([]float64, len(items))
			for k, item := range items {
				row[k] = res.Worths[item]
			}
			samples[r] = row
			converged[r] = res.Converged
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bootstrap failed")
		return BootstrapResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return BootstrapResult{}, err
	}

	result := BootstrapResult{
		Intervals: make(map[string]domain.ConfidenceInterval, len(items)),
		StdErr:    make(map[string]float64, len(items)),
		Resamples: b.config.Resamples,
	}
	for _, ok := range converged {
		if !ok {
			result.NotConverged++
		}
	}

	dist := make([]float64, b.config.Resamples)
	for k, item := range items {
		for r := range samples {
			dist[r] = samples[r][k]
		}
		sort.Float64s(dist)
		lo := stat.Quantile(b.config.Lower, stat.Empirical, dist, nil)
		hi := stat.Quantile(b.config.Upper, stat.Empirical, dist, nil)
		result.Intervals[item] = domain.ConfidenceInterval{Lo: lo, Hi: max(lo, hi)}

		if len(dist) > 1 {
			if sd, err := stats.StandardDeviationSample(dist); err == nil {
				result.StdErr[item] = sd
			}
		}
	}

	labels := map[string]string{"method": b.fitter.Name()}
	b.metrics.RecordLatency("bootstrap", time.Since(start), labels)
	b.metrics.RecordCounter("bootstrap_refits_total", float64(b.config.Resamples), labels)
	b.metrics.RecordCounter("bootstrap_refits_not_converged_total", float64(result.NotConverged), labels)
	span.SetAttributes(attribute.Int("not_converged", result.NotConverged))
	return result, nil
}
