package middleware

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/ports"
)

func TestPrometheusMetrics_Counter(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordCounter("lists_collected_total", 1, map[string]string{"locale": "en-US"})
	pm.RecordCounter("lists_collected_total", 2, map[string]string{"locale": "en-US"})
	pm.RecordCounter("lists_collected_total", 1, map[string]string{"locale": "de-DE", "extra": "dropped"})
	pm.RecordCounter("lists_collected_total", -5, map[string]string{"locale": "en-US"})

	vec := pm.counters["lists_collected_total"]
	require.NotNil(t, vec)
	assert.Equal(t, 3.0, testutil.ToFloat64(vec.WithLabelValues("en-US")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("de-DE")))

	pm.RecordCounter("fits", 1, map[string]string{"method": "pl", "converged": "true"})
	assert.Contains(t, pm.counters, "fits_total", "counter names get a _total suffix")
	assert.Equal(t, []string{"converged", "method"}, pm.labelNames["fits_total"])
}

func TestPrometheusMetrics_GaugeAndHistogram(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordGauge("group_agreement", 0.5, map[string]string{"group": "ALL"})
	pm.RecordGauge("group_agreement", 0.8, map[string]string{"group": "ALL"})
	assert.Equal(t, 0.8, testutil.ToFloat64(pm.gauges["group_agreement"].WithLabelValues("ALL")))

	pm.RecordHistogram("fit_iterations", 12, map[string]string{"method": "bt"})
	pm.RecordLatency("generate", 30*time.Millisecond, nil)
	pm.RecordLatency("llm request", time.Second, map[string]string{"provider": "openai"})

	assert.Equal(t, 1, testutil.CollectAndCount(pm.histograms["fit_iterations"]))
	assert.Contains(t, pm.histograms, "generate_duration_seconds")
	assert.Contains(t, pm.histograms, "llm_request_duration_seconds")
}

func TestPrometheusMetrics_WriteToTextfile(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.RecordCounter("adaptive_stops_total", 1, map[string]string{"locale": "en-US"})

	path := filepath.Join(t.TempDir(), "consensus.prom")
	require.NoError(t, pm.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `consensus_adaptive_stops_total{locale="en-US"} 1`)
	assert.Contains(t, string(data), "go_goroutines")

	err = pm.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "consensus.prom"))
	var merr *ports.MetricsError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "WriteToTextfile", merr.Operation)
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "llm_request", metricName("llm request"))
	assert.Equal(t, "a_b_c", metricName("a-b.c"))
}
