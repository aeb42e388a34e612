package rank

import (
	"context"
	"fmt"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var _ ports.Fitter = (*Frequency)(nil)

// Frequency scores each item by the share of lists that rank it within
// their top-k prefix. Scores lie in [0,1] and are not normalized.
type Frequency struct {
	config Config
}

// NewFrequency creates a frequency scorer after validating config.
func NewFrequency(config Config) (*Frequency, error) {
	config.Method = MethodFrequency
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Frequency{config: config}, nil
}

// Name returns the method identifier.
func (f *Frequency) Name() string { return MethodFrequency }

// Fit counts top-k memberships. Items seen only below the prefix score 0.
func (f *Frequency) Fit(ctx context.Context, lists []domain.RankedList) (domain.FitResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.FitResult{}, err
	}
	if len(domain.Items(lists)) == 0 {
		return domain.FitResult{}, domain.ErrEmptyCorpus
	}
	return domain.FitResult{
		Method:    MethodFrequency,
		Worths:    FrequencyScores(lists, f.config.TopK),
		Converged: true,
	}, nil
}

// FrequencyScores returns count(item in top-k of a list) / len(lists) for
// every item appearing anywhere in lists.
func FrequencyScores(lists []domain.RankedList, k int) domain.WorthVector {
	scores := domain.WorthVector{}
	if len(lists) == 0 {
		return scores
	}
	for _, l := range lists {
		l = l.Dedupe()
		for pos, item := range l {
			if _, ok := scores[item]; !ok {
				scores[item] = 0
			}
			if pos < k {
				scores[item]++
			}
		}
	}
	total := float64(len(lists))
	for item, c := range scores {
		scores[item] = c / total
	}
	return scores
}
