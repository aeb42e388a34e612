// Package middleware holds cross-cutting adapters shared by the probe and
// aggregate pipelines.
package middleware

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ahrav/go-consensus/internal/ports"
)

// Namespace prefixes every exported metric.
const Namespace = "consensus"

var invalidName = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// PrometheusMetrics implements ports.MetricsCollector on a private
// registry. Metric vectors are created on first use; their label names are
// the sorted keys of the labels passed the first time. Later calls fill
// missing labels with "" and drop unknown ones.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics returns a collector with Go runtime and process
// metrics pre-registered.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &PrometheusMetrics{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelNames: make(map[string][]string),
	}
}

// Registry exposes the registry for gathering or serving.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// WriteToTextfile writes every metric in the text exposition format, for
// pickup by the node exporter textfile collector.
func (pm *PrometheusMetrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, pm.registry); err != nil {
		return ports.NewMetricsError(path, "WriteToTextfile", err)
	}
	return nil
}

// RecordLatency observes duration in the <operation>_duration_seconds
// histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	name := metricName(operation) + "_duration_seconds"
	pm.mu.Lock()
	vec, ok := pm.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      "Duration of " + operation + " operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, pm.names(name, labels))
		pm.registry.MustRegister(vec)
		pm.histograms[name] = vec
	}
	values := pm.values(name, labels)
	pm.mu.Unlock()
	vec.WithLabelValues(values...).Observe(duration.Seconds())
}

// RecordCounter adds value to the counter metric. Negative values are
// ignored.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	name := metricName(metric)
	if !strings.HasSuffix(name, "_total") {
		name += "_total"
	}
	pm.mu.Lock()
	vec, ok := pm.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      "Total " + strings.ReplaceAll(strings.TrimSuffix(name, "_total"), "_", " ") + ".",
		}, pm.names(name, labels))
		pm.registry.MustRegister(vec)
		pm.counters[name] = vec
	}
	values := pm.values(name, labels)
	pm.mu.Unlock()
	vec.WithLabelValues(values...).Add(value)
}

// RecordGauge sets the gauge metric to value.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	name := metricName(metric)
	pm.mu.Lock()
	vec, ok := pm.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      "Current " + strings.ReplaceAll(name, "_", " ") + ".",
		}, pm.names(name, labels))
		pm.registry.MustRegister(vec)
		pm.gauges[name] = vec
	}
	values := pm.values(name, labels)
	pm.mu.Unlock()
	vec.WithLabelValues(values...).Set(value)
}

// RecordHistogram observes value in the metric histogram. Buckets are
// exponential from 1 so that iteration counts and list sizes resolve.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	name := metricName(metric)
	pm.mu.Lock()
	vec, ok := pm.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      "Distribution of " + strings.ReplaceAll(name, "_", " ") + ".",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, pm.names(name, labels))
		pm.registry.MustRegister(vec)
		pm.histograms[name] = vec
	}
	values := pm.values(name, labels)
	pm.mu.Unlock()
	vec.WithLabelValues(values...).Observe(value)
}

// names fixes the label names of a new metric. Callers hold pm.mu.
func (pm *PrometheusMetrics) names(name string, labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, metricName(k))
	}
	sort.Strings(keys)
	pm.labelNames[name] = keys
	return keys
}

// values orders labels by the metric's label names. Callers hold pm.mu.
func (pm *PrometheusMetrics) values(name string, labels map[string]string) []string {
	keys := pm.labelNames[name]
	out := make([]string, len(keys))
	for k, v := range labels {
		k = metricName(k)
		if i := sort.SearchStrings(keys, k); i < len(keys) && keys[i] == k {
			out[i] = v
		}
	}
	return out
}

func metricName(s string) string {
	return invalidName.ReplaceAllString(s, "_")
}
