package rank

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var _ ports.Fitter = (*BradleyTerry)(nil)

// BradleyTerry fits pairwise-comparison worths with Hunter's MM algorithm.
//
// Lists are reduced to a WinMatrix first: within each deduplicated list
// every item beats every item ranked below it. Items that never take part
// in a comparison keep their uniform starting worth.
type BradleyTerry struct {
	config Config
}

// NewBradleyTerry creates a Bradley-Terry fitter after validating config.
func NewBradleyTerry(config Config) (*BradleyTerry, error) {
	config.Method = MethodBradleyTerry
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &BradleyTerry{config: config}, nil
}

// Name returns the method identifier.
func (bt *BradleyTerry) Name() string { return MethodBradleyTerry }

// BuildWinMatrix counts, for every ordered pair in every deduplicated list,
// how often the earlier item was ranked above the later one.
func BuildWinMatrix(lists []domain.RankedList) domain.WinMatrix {
	wins := domain.WinMatrix{}
	for _, l := range lists {
		l = l.Dedupe()
		for i := 0; i < len(l); i++ {
			for j := i + 1; j < len(l); j++ {
				wins.Add(l[i], l[j], 1)
			}
		}
	}
	return wins
}

// Fit builds the win matrix from lists and fits it. Every item present in
// lists receives a worth, including single-item lists with no comparisons.
func (bt *BradleyTerry) Fit(ctx context.Context, lists []domain.RankedList) (domain.FitResult, error) {
	items := domain.Items(lists)
	if len(items) == 0 {
		return domain.FitResult{}, domain.ErrEmptyCorpus
	}
	return bt.fit(ctx, items, BuildWinMatrix(lists))
}

// FitWins fits a precomputed win matrix. The item universe is the set of
// identifiers appearing on either side of the matrix.
func (bt *BradleyTerry) FitWins(ctx context.Context, wins domain.WinMatrix) (domain.FitResult, error) {
	seen := make(map[string]struct{})
	for winner, row := range wins {
		seen[winner] = struct{}{}
		for loser := range row {
			seen[loser] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return domain.FitResult{}, domain.ErrEmptyCorpus
	}
	items := make([]string, 0, len(seen))
	for item := range seen {
		items = append(items, item)
	}
	sort.Strings(items)
	return bt.fit(ctx, items, wins)
}

// opponent is one comparison partner with the total number of games played.
type opponent struct {
	j     int
	games float64
}

func (bt *BradleyTerry) fit(ctx context.Context, items []string, wins domain.WinMatrix) (domain.FitResult, error) {
	ctx, span := tracer.Start(ctx, "BradleyTerry.Fit",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	n := len(items)
	idx := index(items)

	totalWins := make([]float64, n)
	games := make([]map[int]float64, n)
	for i := range games {
		games[i] = make(map[int]float64)
	}
	for winner, row := range wins {
		i := idx[winner]
		for loser, c := range row {
			if c <= 0 || loser == winner {
				continue
			}
			j := idx[loser]
			totalWins[i] += c
			games[i][j] += c
			games[j][i] += c
		}
	}

	// Deterministic neighbor order keeps float summation reproducible.
	opponents := make([][]opponent, n)
	for i, row := range games {
		for j, g := range row {
			opponents[i] = append(opponents[i], opponent{j: j, games: g})
		}
		sort.Slice(opponents[i], func(a, b int) bool { return opponents[i][a].j < opponents[i][b].j })
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	next := make([]float64, n)

	result := domain.FitResult{Method: MethodBradleyTerry}
	for iter := 1; iter <= bt.config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fit cancelled")
			return domain.FitResult{}, err
		}

		for i := 0; i < n; i++ {
			if len(opponents[i]) == 0 {
				next[i] = w[i]
				continue
			}
			wi := max(w[i], worthFloor)
			var denom float64
			for _, o := range opponents[i] {
				denom += o.games / (1 + w[o.j]/wi)
			}
			// n/(1+w_j/w_i) = w_i * n/(w_i+w_j), so scaling by w_i yields
			// Hunter's update W_i / sum n/(w_i+w_j).
			next[i] = wi * totalWins[i] / max(denom, worthFloor)
		}

		delta := renormalize(next, w)
		w, next = next, w
		result.Iterations = iter
		result.MaxDelta = delta
		if delta < bt.config.Tolerance {
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
