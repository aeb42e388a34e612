package stats

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/rank"
)

func corpus() []domain.RankedList {
	return []domain.RankedList{
		{"Nike", "Adidas", "Puma"},
		{"Adidas", "Nike", "Asics"},
		{"Nike", "Asics", "Puma"},
		{"Nike", "Adidas"},
		{"Puma", "Nike", "Adidas", "Asics"},
		{"Nike", "Adidas", "New Balance"},
		{"Adidas", "Puma"},
		{"Nike", "Puma", "Asics"},
	}
}

func plFitter(t *testing.T) *rank.PlackettLuce {
	t.Helper()
	pl, err := rank.NewPlackettLuce(rank.DefaultConfig())
	require.NoError(t, err)
	return pl
}

func TestBootstrap_IntervalsAreOrdered(t *testing.T) {
	cfg := DefaultBootstrapConfig()
	cfg.Resamples = 200
	cfg.Workers = 4
	b, err := NewBootstrap(plFitter(t), cfg)
	require.NoError(t, err)

	res, err := b.Run(context.Background(), corpus())
	require.NoError(t, err)

	require.Len(t, res.Intervals, 5, "every item of the corpus gets an interval")
	for item, ci := range res.Intervals {
		assert.LessOrEqual(t, ci.Lo, ci.Hi, "item %s", item)
		assert.GreaterOrEqual(t, ci.Lo, 0.0)
		assert.LessOrEqual(t, ci.Hi, 1.0)
		assert.GreaterOrEqual(t, res.StdErr[item], 0.0)
	}
	assert.Equal(t, 200, res.Resamples)
}

func TestBootstrap_DeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) BootstrapResult {
		cfg := DefaultBootstrapConfig()
		cfg.Resamples = 64
		cfg.Workers = workers
		cfg.Seed = 42
		b, err := NewBootstrap(plFitter(t), cfg)
		require.NoError(t, err)
		res, err := b.Run(context.Background(), corpus())
		require.NoError(t, err)
		return res
	}

	serial := run(1)
	parallel := run(8)

	assert.Equal(t, serial.Intervals, parallel.Intervals)
	assert.Equal(t, serial.StdErr, parallel.StdErr)
}

func TestBootstrap_AbsentItemsScoreZero(t *testing.T) {
	// "Rare" appears in one of many lists, so some resamples miss it and
	// the lower percentile must be exactly zero.
	lists := make([]domain.RankedList, 0, 40)
	for i := 0; i < 39; i++ {
		lists = append(lists, domain.RankedList{"A", "B"})
	}
	lists = append(lists, domain.RankedList{"Rare", "A"})

	cfg := DefaultBootstrapConfig()
	cfg.Resamples = 100
	b, err := NewBootstrap(plFitter(t), cfg)
	require.NoError(t, err)

	res, err := b.Run(context.Background(), lists)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Intervals["Rare"].Lo)
}

func TestBootstrap_EmptyCorpus(t *testing.T) {
	b, err := NewBootstrap(plFitter(t), DefaultBootstrapConfig())
	require.NoError(t, err)

	_, err = b.Run(context.Background(), []domain.RankedList{{}, {""}})
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
}

func TestBootstrap_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultBootstrapConfig()
	cfg.Resamples = 500
	b, err := NewBootstrap(plFitter(t), cfg)
	require.NoError(t, err)

	_, err = b.Run(ctx, corpus())
	assert.ErrorIs(t, err, context.Canceled)
}

// failingFitter fails on its nth call.
type failingFitter struct {
	calls  atomic.Int32
	failOn int32
}

func (f *failingFitter) Name() string { return "failing" }

func (f *failingFitter) Fit(ctx context.Context, lists []domain.RankedList) (domain.FitResult, error) {
	if f.calls.Add(1) == f.failOn {
		return domain.FitResult{}, errors.New("boom")
	}
	return domain.FitResult{Worths: domain.WorthVector{"A": 1}, Converged: true}, nil
}

func TestBootstrap_RefitErrorAborts(t *testing.T) {
	cfg := DefaultBootstrapConfig()
	cfg.Resamples = 20
	cfg.Workers = 1
	b, err := NewBootstrap(&failingFitter{failOn: 3}, cfg)
	require.NoError(t, err)

	_, err = b.Run(context.Background(), []domain.RankedList{{"A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestNewBootstrap_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BootstrapConfig)
	}{
		{"zero resamples", func(c *BootstrapConfig) { c.Resamples = 0 }},
		{"negative workers", func(c *BootstrapConfig) { c.Workers = -1 }},
		{"inverted levels", func(c *BootstrapConfig) { c.Lower, c.Upper = 0.9, 0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBootstrapConfig()
			tt.mutate(&cfg)
			_, err := NewBootstrap(plFitter(t), cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewBootstrap(nil, DefaultBootstrapConfig())
	assert.Error(t, err)
}

func TestSpearman(t *testing.T) {
	x := domain.WorthVector{"A": 0.5, "B": 0.3, "C": 0.2}

	tests := []struct {
		name string
		y    domain.WorthVector
		want float64
	}{
		{"identical", x, 1.0},
		{"reversed", domain.WorthVector{"A": 0.1, "B": 0.2, "C": 0.7}, -1.0},
		{"one swap", domain.WorthVector{"A": 0.5, "B": 0.2, "C": 0.3}, 0.5},
		{"single shared key", domain.WorthVector{"A": 1, "Z": 2}, 0},
		{"disjoint", domain.WorthVector{"Y": 1, "Z": 2}, 0},
		{"extra keys ignored", domain.WorthVector{"A": 9, "B": 5, "C": 1, "D": 100}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Spearman(x, tt.y))
		})
	}
}

func TestSpearman_TiesAreDeterministic(t *testing.T) {
	x := domain.WorthVector{"A": 1, "B": 1, "C": 0}
	y := domain.WorthVector{"A": 1, "B": 1, "C": 0}

	assert.Equal(t, 1.0, Spearman(x, y))
	assert.Equal(t, Spearman(x, y), Spearman(x, y))
}

func TestSpearman_MethodsAgree(t *testing.T) {
	lists := corpus()
	pl, err := plFitter(t).Fit(context.Background(), lists)
	require.NoError(t, err)
	bt, err := rank.NewBradleyTerry(rank.DefaultConfig())
	require.NoError(t, err)
	btRes, err := bt.Fit(context.Background(), lists)
	require.NoError(t, err)

	assert.Greater(t, Spearman(pl.Worths, btRes.Worths), 0.5)
}
