package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/monitor"
	"github.com/ahrav/go-consensus/internal/ports"
)

var (
	validate = validator.New()
	tracer   = otel.Tracer("github.com/ahrav/go-consensus/internal/probe")
)

// Config controls list collection.
type Config struct {
	// N is the requested list length.
	N int `yaml:"n" json:"n" validate:"min=1,max=100"`

	// Temperature is passed to the generator.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`

	// MaxRetries bounds extra attempts after malformed or invalid output.
	MaxRetries int `yaml:"max_retries" json:"max_retries" validate:"min=0,max=20"`

	// Validate enables item validation of every generated list.
	Validate bool `yaml:"validate" json:"validate"`

	// HeadTarget, TorsoTarget and TailTarget are the list targets per
	// popularity bin.
	HeadTarget  int `yaml:"head_target" json:"head_target" validate:"min=1"`
	TorsoTarget int `yaml:"torso_target" json:"torso_target" validate:"min=1"`
	TailTarget  int `yaml:"tail_target" json:"tail_target" validate:"min=1"`

	// MaxFailures ends a context after this many rejected lists.
	MaxFailures int `yaml:"max_failures" json:"max_failures" validate:"min=1"`

	// Concurrency is the number of contexts collected in parallel.
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"min=1,max=64"`

	// Monitor configures adaptive stopping.
	Monitor monitor.Config `yaml:"monitor" json:"monitor"`
}

// DefaultConfig mirrors the command-line defaults: five items per list at
// temperature 0.5, two retries, 40 lists for head and torso entities and 20
// for tail entities.
func DefaultConfig() Config {
	return Config{
		N:           5,
		Temperature: 0.5,
		MaxRetries:  2,
		Validate:    true,
		HeadTarget:  40,
		TorsoTarget: 40,
		TailTarget:  20,
		MaxFailures: 10,
		Concurrency: 1,
		Monitor:     monitor.DefaultConfig(),
	}
}

// Target returns the list target for a popularity bin. Unknown bins are
// treated as torso.
func (c Config) Target(bin string) int {
	switch bin {
	case domain.PopularityHead:
		return c.HeadTarget
	case domain.PopularityTail:
		return c.TailTarget
	default:
		return c.TorsoTarget
	}
}

// Summary totals one collection run.
type Summary struct {
	RunID        string
	Contexts     int
	Attempts     int
	Written      int
	Invalid      int
	StoppedEarly int
	Failed       int
	// Errors holds one error per failed context, in completion order.
	Errors []error
}

// Collector drives a generator over entity contexts and stores the lists.
type Collector struct {
	config    Config
	generator ports.Generator
	validator ports.ListValidator
	store     ports.CorpusStore
	progress  ports.ProgressSink
	metrics   ports.MetricsCollector
	logger    *slog.Logger
	runID     string
	now       func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithProgress records one entry per finished context.
func WithProgress(sink ports.ProgressSink) CollectorOption {
	return func(c *Collector) { c.progress = sink }
}

// WithMetrics reports collection counters.
func WithMetrics(m ports.MetricsCollector) CollectorOption {
	return func(c *Collector) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

// WithValidator replaces the default list validator.
func WithValidator(v ports.ListValidator) CollectorOption {
	return func(c *Collector) { c.validator = v }
}

// WithRunID fixes the run identifier stamped on every record.
func WithRunID(id string) CollectorOption {
	return func(c *Collector) { c.runID = id }
}

// NewCollector validates config and wires the collector.
func NewCollector(config Config, gen ports.Generator, store ports.CorpusStore, opts ...CollectorOption) (*Collector, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is required", domain.ErrInvalidConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", domain.ErrInvalidConfiguration)
	}

	c := &Collector{
		config:    config,
		generator: gen,
		store:     store,
		metrics:   ports.NopMetrics{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = NewValidator(LogObserver{Logger: c.logger})
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	return c, nil
}

// RunID returns the identifier stamped on records of this collector.
func (c *Collector) RunID() string { return c.runID }

type job struct {
	entity domain.Entity
	locale string
}

// Run collects every (entity, locale) context. Contexts run in parallel up
// to the configured concurrency. A generator or store failure ends its own
// context only and is reported in Summary.Errors. Run itself fails only when
// ctx is cancelled.
func (c *Collector) Run(ctx context.Context, entities []domain.Entity) (Summary, error) {
	var jobs []job
	for _, e := range entities {
		for _, loc := range e.Locales {
			jobs = append(jobs, job{entity: e, locale: loc})
		}
	}

	var (
		mu      sync.Mutex
		summary = Summary{RunID: c.runID, Contexts: len(jobs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			res, err := c.collect(gctx, j.entity, j.locale)

			mu.Lock()
			defer mu.Unlock()
			summary.Attempts += res.attempts
			summary.Written += res.written
			summary.Invalid += res.invalid
			if res.entry.StoppedEarly {
				summary.StoppedEarly++
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Errorf("entity %q locale %s: %w", j.entity.Name, j.locale, err))
				c.logger.Warn("context failed", "entity", j.entity.Name, "locale", j.locale, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

type contextResult struct {
	entry    domain.ProgressEntry
	attempts int
	written  int
	invalid  int
}

// collect fills one context up to its target or until the monitor stops it.
func (c *Collector) collect(ctx context.Context, e domain.Entity, locale string) (contextResult, error) {
	target := c.config.Target(e.PopularityBin)
	ctx, span := tracer.Start(ctx, "Collector.collect",
		trace.WithAttributes(
			attribute.String("entity", e.Name),
			attribute.String("locale", locale),
			attribute.Int("target", target),
		))
	defer span.End()

	logger := c.logger.With("entity", e.Name, "locale", locale)
	existing, err := c.store.Count(ctx, e.Name, locale)
	if err != nil {
		return contextResult{}, err
	}
	logger.Info("collecting lists", "target", target, "n", c.config.N, "existing", existing)

	mon, err := monitor.New(c.config.Monitor)
	if err != nil {
		return contextResult{}, err
	}

	res := contextResult{entry: domain.ProgressEntry{EntityID: e.ID, Entity: e.Name, Locale: locale}}
	labels := map[string]string{"locale": locale}
	req := ports.GenerateRequest{
		Entity:         e.Name,
		Disambiguation: e.Disambiguation,
		Locale:         locale,
		N:              c.config.N,
		Temperature:    c.config.Temperature,
	}

	finish := func(err error) (contextResult, error) {
		res.entry.Done = res.written
		res.entry.Timestamp = c.now()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "collection failed")
		}
		if c.progress != nil && ctx.Err() == nil {
			if perr := c.progress.Record(ctx, res.entry); perr != nil {
				logger.Warn("failed to record progress", "error", perr)
			}
		}
		logger.Info("context finished",
			"done", res.written,
			"invalid", res.invalid,
			"stopped_early", res.entry.StoppedEarly,
			"reason", res.entry.Reason)
		return res, err
	}

	failures := 0
	for res.written < target {
		items, attempts, err := c.attempt(ctx, req)
		res.attempts += attempts
		if err != nil {
			if !errors.Is(err, domain.ErrMalformedOutput) && !errors.Is(err, domain.ErrInvalidList) {
				return finish(err)
			}
			failures++
			res.invalid++
			c.metrics.RecordCounter("lists_invalid_total", 1, labels)
			logger.Debug("list rejected after retries", "attempts", attempts, "error", err)
			if failures >= c.config.MaxFailures {
				res.entry.Reason = fmt.Sprintf("failures=%d", failures)
				logger.Warn("giving up on context", "failures", failures)
				break
			}
			continue
		}

		if _, err := c.store.Append(ctx, domain.ProbeRecord{
			RunID:          c.runID,
			EntityID:       e.ID,
			Entity:         e.Name,
			Locale:         locale,
			Language:       e.Language,
			Category:       e.Category,
			Disambiguation: e.Disambiguation,
			List:           items,
			Timestamp:      c.now().UTC(),
		}); err != nil {
			return finish(err)
		}
		res.written++
		c.metrics.RecordCounter("lists_collected_total", 1, labels)

		if !mon.Due(res.written) {
			continue
		}
		recent, err := c.store.Recent(ctx, e.Name, locale, res.written)
		if err != nil {
			return finish(err)
		}
		d := mon.Observe(res.written, domain.Rankings(recent))
		logger.Debug("reliability check", "done", res.written, "overlap", d.Overlap, "passes", d.Passes)
		if d.Stop {
			res.entry.StoppedEarly = true
			res.entry.Reason = d.Reason
			c.metrics.RecordCounter("adaptive_stops_total", 1, labels)
			break
		}
	}
	span.SetAttributes(attribute.Int("done", res.written))
	return finish(nil)
}

// attempt generates one list, retrying malformed or invalid output up to
// MaxRetries times. Other generator errors are returned immediately.
func (c *Collector) attempt(ctx context.Context, req ports.GenerateRequest) ([]domain.ListItem, int, error) {
	var lastErr error
	tries := 0
	for tries <= c.config.MaxRetries {
		if err := ctx.Err(); err != nil {
			return nil, tries, err
		}
		tries++

		start := time.Now()
		items, err := c.generator.Generate(ctx, req)
		c.metrics.RecordLatency("generate", time.Since(start), nil)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedOutput) {
				lastErr = err
				continue
			}
			return nil, tries, err
		}
		if len(items) == 0 {
			lastErr = fmt.Errorf("%w: empty list", domain.ErrInvalidList)
			continue
		}
		if c.config.Validate {
			if err := c.validator.Validate(items); err != nil {
				lastErr = err
				continue
			}
		}
		return items, tries, nil
	}
	return nil, tries, lastErr
}
