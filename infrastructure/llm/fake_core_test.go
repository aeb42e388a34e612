package llm

import (
	"context"
	"sync"
	"time"
)

// fakeCore is a scripted CoreLLM. Errors in errs are returned in order
// before falling back to response.
type fakeCore struct {
	mu       sync.Mutex
	model    string
	response string
	errs     []error
	delay    time.Duration
	calls    int
	lastOpts map[string]any
	lastCtx  context.Context
}

func newFakeCore(response string, errs ...error) *fakeCore {
	return &fakeCore{model: "fake-model", response: response, errs: errs}
}

func (f *fakeCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	f.mu.Lock()
	f.calls++
	f.lastOpts = opts
	f.lastCtx = ctx
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}
	if err != nil {
		return "", 0, 0, err
	}
	return f.response, EstimateTokens(prompt), EstimateTokens(f.response), nil
}

func (f *fakeCore) GetModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

func (f *fakeCore) SetModel(m string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model = m
}

func (f *fakeCore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingMetrics captures metric calls by name.
type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string][]map[string]string
	values   map[string]float64
	latency  []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string][]map[string]string{}, values: map[string]float64{}}
}

func (r *recordingMetrics) RecordLatency(op string, _ time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latency = append(r.latency, op)
}

func (r *recordingMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] = append(r.counters[name], labels)
	r.values[name] += v
}

func (r *recordingMetrics) RecordGauge(string, float64, map[string]string)     {}
func (r *recordingMetrics) RecordHistogram(string, float64, map[string]string) {}
