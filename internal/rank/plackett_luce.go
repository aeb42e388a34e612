package rank

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var _ ports.Fitter = (*PlackettLuce)(nil)

// PlackettLuce fits list-preference worths directly from ordered, possibly
// partial, lists using Hunter's MM algorithm with additive smoothing:
//
//	w_i <- (n_i + alpha) / (B_i + alpha)
//
// where n_i is the number of distinct lists containing i and B_i accumulates,
// for every stage at which i is still in a list's remaining set, the inverse
// of the remaining set's total worth under the current iterate. The remaining
// set shrinks best-first, down to and including the final single item.
// Alpha of zero gives the unsmoothed estimator.
type PlackettLuce struct {
	config Config
}

// NewPlackettLuce creates a Plackett-Luce fitter after validating config.
func NewPlackettLuce(config Config) (*PlackettLuce, error) {
	config.Method = MethodPlackettLuce
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &PlackettLuce{config: config}, nil
}

// Name returns the method identifier.
func (pl *PlackettLuce) Name() string { return MethodPlackettLuce }

// Fit runs the MM iteration until the max per-item change drops below the
// tolerance or the iteration cap is reached.
func (pl *PlackettLuce) Fit(ctx context.Context, lists []domain.RankedList) (domain.FitResult, error) {
	items := domain.Items(lists)
	if len(items) == 0 {
		return domain.FitResult{}, domain.ErrEmptyCorpus
	}

	ctx, span := tracer.Start(ctx, "PlackettLuce.Fit",
		trace.WithAttributes(
			attribute.Int("items", len(items)),
			attribute.Int("lists", len(lists)),
			attribute.Float64("alpha", pl.config.Alpha),
		))
	defer span.End()

	idx := index(items)
	n := len(items)

	// Lists as dense indices; dedupe makes every list a ranking without
	// replacement, so n_i is simply the number of lists containing i.
	encoded := make([][]int, 0, len(lists))
	appearances := make([]float64, n)
	longest := 0
	for _, l := range lists {
		l = l.Dedupe()
		if len(l) == 0 {
			continue
		}
		row := make([]int, len(l))
		for k, item := range l {
			row[k] = idx[item]
			appearances[row[k]]++
		}
		encoded = append(encoded, row)
		longest = max(longest, len(row))
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	next := make([]float64, n)
	acc := make([]float64, n)
	buf := make([]float64, longest)
	alpha := pl.config.Alpha

	result := domain.FitResult{Method: MethodPlackettLuce}
	for iter := 1; iter <= pl.config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fit cancelled")
			return domain.FitResult{}, err
		}

		for i := range acc {
			acc[i] = 0
		}
		for _, row := range encoded {
			// Suffix sums of the current iterate give every stage's
			// remaining-set mass in one pass.
			var mass float64
			stage := buf[:len(row)]
			for k := len(row) - 1; k >= 0; k-- {
				mass += w[row[k]]
				stage[k] = 1 / max(mass, worthFloor)
			}
			// Item at position k is present in stages 0..k.
			var running float64
			for k, item := range row {
				running += stage[k]
				acc[item] += running
			}
		}

		for i := range next {
			next[i] = (appearances[i] + alpha) / max(acc[i]+alpha, worthFloor)
		}

		delta := renormalize(next, w)
		w, next = next, w
		result.Iterations = iter
		result.MaxDelta = delta
		if delta < pl.config.Tolerance {
			result.Converged = true
			break
		}
	}

	result.Worths = toVector(items, w)
	span.SetAttributes(
		attribute.Int("iterations", result.Iterations),
		attribute.Bool("converged", result.Converged),
	)
	return result, nil
}
