package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/canon"
	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/rank"
)

func rec(entity, locale string, brands ...string) domain.ProbeRecord {
	r := domain.ProbeRecord{Entity: entity, Locale: locale}
	for _, b := range brands {
		r.List = append(r.List, domain.ListItem{Brand: b})
	}
	return r
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string][]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]float64{}, hists: map[string][]float64{}}
}

func (m *recordingMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (m *recordingMetrics) RecordGauge(string, float64, map[string]string)         {}

func (m *recordingMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := name
	if c, ok := labels["converged"]; ok {
		key += "/" + c
	}
	m.counters[key] += v
}

func (m *recordingMetrics) RecordHistogram(name string, v float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hists[name] = append(m.hists[name], v)
}

func defaultAggregate() AggregateConfig {
	return DefaultConfig().Aggregate
}

func TestGroupKey(t *testing.T) {
	r := domain.ProbeRecord{Entity: "shoes", Locale: "US", Category: "sport"}

	assert.Equal(t, GroupAll, GroupKey(r, ""))
	assert.Equal(t, "shoes", GroupKey(r, GroupByEntity))
	assert.Equal(t, "US", GroupKey(r, GroupByLocale))
	assert.Equal(t, "sport", GroupKey(r, GroupByCategory))
	assert.Equal(t, GroupUnknown, GroupKey(r, GroupByLanguage))
}

func TestAggregator_GroupsAreOrderedAndIsolated(t *testing.T) {
	cfg := defaultAggregate()
	cfg.GroupBy = GroupByLocale
	agg, err := NewAggregator(cfg, nil)
	require.NoError(t, err)

	records := []domain.ProbeRecord{
		rec("shoes", "US", "Nike", "Adidas", "Puma"),
		rec("shoes", "US", "Nike", "Puma", "Adidas"),
		rec("shoes", "DE", "Adidas", "Puma"),
		rec("shoes", "", "Asics"),
		rec("shoes", "FR", "  "),
	}

	res, err := agg.Run(context.Background(), records)
	require.NoError(t, err)

	groups := make([]string, len(res.Tables))
	for i, tbl := range res.Tables {
		groups[i] = tbl.Group
	}
	assert.Equal(t, []string{"DE", GroupUnknown, "US"}, groups)
	assert.Equal(t, 5, res.Records)
	assert.Equal(t, 4, res.Lists)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "FR", res.Skipped[0].Group)
	assert.Equal(t, StageCollect, res.Skipped[0].Stage)
	assert.ErrorIs(t, res.Skipped[0], domain.ErrEmptyCorpus)

	us := res.Tables[2]
	assert.Equal(t, rank.MethodPlackettLuce, us.Method)
	assert.Equal(t, 2, us.NLists)
	require.Len(t, us.Rows, 3)
	assert.Equal(t, "Nike", us.Rows[0].Item)
	var sum float64
	for i, row := range us.Rows {
		sum += row.Worth
		assert.Equal(t, 2, row.NLists)
		assert.InDelta(t, ApproxCI(2), row.ApproxCI, 1e-12)
		assert.Nil(t, row.Interval)
		if i > 0 {
			assert.LessOrEqual(t, row.Worth, us.Rows[i-1].Worth)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestAggregator_Canonicalizes(t *testing.T) {
	table, err := canon.New(canon.DefaultConfig())
	require.NoError(t, err)
	agg, err := NewAggregator(defaultAggregate(), table)
	require.NoError(t, err)

	res, err := agg.Run(context.Background(), []domain.ProbeRecord{
		rec("soap", "US", "P&G", "Unilever"),
		rec("soap", "US", "procter and gamble", "Unilever"),
		rec("soap", "US", "Procter & Gamble", "P&G", "Unilever"),
	})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)

	tbl := res.Tables[0]
	assert.Equal(t, GroupAll, tbl.Group)
	require.Len(t, tbl.Rows, 2, "aliases collapse onto one item")
	assert.Equal(t, "Procter & Gamble", tbl.Rows[0].Item)
	assert.Equal(t, "Unilever", tbl.Rows[1].Item)
}

func TestAggregator_AgreementWithBaseline(t *testing.T) {
	agg, err := NewAggregator(defaultAggregate(), nil)
	require.NoError(t, err)

	var records []domain.ProbeRecord
	for range 10 {
		records = append(records, rec("e", "US", "A", "B", "C", "D"))
	}
	res, err := agg.Run(context.Background(), records)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Tables[0].Agreement, 1e-12)
	assert.True(t, res.Tables[0].Converged)
}

func TestAggregator_Bootstrap(t *testing.T) {
	cfg := defaultAggregate()
	cfg.Bootstrap.Resamples = 50
	cfg.Bootstrap.Workers = 2
	metrics := newRecordingMetrics()

	agg, err := NewAggregator(cfg, nil, WithAggregatorMetrics(metrics))
	require.NoError(t, err)

	res, err := agg.Run(context.Background(), []domain.ProbeRecord{
		rec("e", "US", "A", "B", "C"),
		rec("e", "US", "B", "A", "C"),
		rec("e", "US", "A", "C", "B"),
		rec("e", "US", "A", "B"),
	})
	require.NoError(t, err)

	tbl := res.Tables[0]
	assert.True(t, tbl.Bootstrapped())
	for _, row := range tbl.Rows {
		require.NotNil(t, row.Interval)
		assert.LessOrEqual(t, row.Interval.Lo, row.Interval.Hi)
		assert.Zero(t, row.ApproxCI)
		assert.GreaterOrEqual(t, row.StdErr, 0.0)
	}

	assert.Equal(t, 1.0, metrics.counters["fits_total/true"])
	assert.Equal(t, 50.0, metrics.counters["bootstrap_refits_total"])
	assert.Len(t, metrics.hists["fit_iterations"], 1)
}

func TestAggregator_NoUsableInput(t *testing.T) {
	agg, err := NewAggregator(defaultAggregate(), nil)
	require.NoError(t, err)

	res, err := agg.Run(context.Background(), []domain.ProbeRecord{rec("e", "US")})
	assert.ErrorIs(t, err, domain.ErrNoUsableInput)
	assert.Empty(t, res.Tables)
	assert.Len(t, res.Skipped, 1)

	_, err = agg.Run(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoUsableInput)
}

func TestAggregator_NotConvergedIsDiagnosed(t *testing.T) {
	cfg := defaultAggregate()
	cfg.Method = rank.MethodBradleyTerry
	cfg.MaxIterations = 1
	agg, err := NewAggregator(cfg, nil)
	require.NoError(t, err)

	res, err := agg.Run(context.Background(), []domain.ProbeRecord{
		rec("e", "US", "A", "B", "C"),
		rec("e", "US", "B", "C", "A"),
		rec("e", "US", "A", "C", "B"),
	})
	require.NoError(t, err)
	tbl := res.Tables[0]
	assert.False(t, tbl.Converged)
	require.NotEmpty(t, tbl.Diagnostics)
	assert.Contains(t, tbl.Diagnostics[0], "not converged after 1 iterations")
}

func TestAggregator_Cancelled(t *testing.T) {
	agg, err := NewAggregator(defaultAggregate(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = agg.Run(ctx, []domain.ProbeRecord{rec("e", "US", "A", "B")})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewAggregator_Errors(t *testing.T) {
	cfg := defaultAggregate()
	cfg.Method = "borda"
	_, err := NewAggregator(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownMethod)

	cfg = defaultAggregate()
	cfg.Bootstrap = defaultAggregate().Bootstrap
	cfg.Bootstrap.Resamples = 10
	cfg.Bootstrap.Lower = 0.9
	cfg.Bootstrap.Upper = 0.1
	_, err = NewAggregator(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestApproxCI(t *testing.T) {
	assert.Zero(t, ApproxCI(0))
	assert.InDelta(t, 0.196, ApproxCI(10), 1e-12)
	assert.InDelta(t, 1.96/20, ApproxCI(40), 1e-12)
}
