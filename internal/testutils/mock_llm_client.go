package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ahrav/go-consensus/internal/ports"
)

// MockBrands is the brand pool the mock draws list replies from.
var MockBrands = []string{"Acme", "Bravo", "Canyon", "Delta", "Echo", "Foxtrot", "Gamma", "Helix", "Ion"}

var (
	topNPattern   = regexp.MustCompile(`top (\d+)`)
	localePattern = regexp.MustCompile(`in "([^"]+)"`)
)

// MockLLMClient implements the LLMClient interface with deterministic
// responses for consistent testing.
// Replies are taken, in order, from queued failures, queued responses,
// registered prompt patterns, and finally a generated JSON list.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	queue     []string
	failures  []error
	responses []MockResponse
	calls     []MockCall
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched against prompts (case-insensitive substring).
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
}

// MockCall records one Complete invocation.
type MockCall struct {
	Prompt  string
	Options map[string]any
}

// NewMockLLMClient creates a MockLLMClient for model.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{model: model}
}

// AddResponse registers a reply for prompts containing response.Pattern.
// Earlier registrations win.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
}

// Enqueue adds replies returned verbatim by the next calls.
func (m *MockLLMClient) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// FailNext makes the next call return err.
func (m *MockLLMClient) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: options})

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return "", err
	}
	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		return resp, nil
	}

	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r.Response, nil
		}
	}
	return m.generatedList(prompt, len(m.calls)), nil
}

// generatedList answers a list prompt with a rotation of MockBrands so
// consecutive calls differ but every run is identical.
func (m *MockLLMClient) generatedList(prompt string, call int) string {
	n := 5
	if match := topNPattern.FindStringSubmatch(prompt); match != nil {
		if v, err := strconv.Atoi(match[1]); err == nil {
			n = v
		}
	}
	n = min(n, len(MockBrands))
	locale := "US"
	if match := localePattern.FindStringSubmatch(prompt); match != nil {
		locale = match[1]
	}

	type item struct {
		Brand  string `json:"brand"`
		Site   string `json:"site"`
		Locale string `json:"locale"`
	}
	items := make([]item, n)
	for i := range items {
		b := MockBrands[(i+call-1)%len(MockBrands)]
		items[i] = item{Brand: b, Site: "https://" + strings.ToLower(b) + ".example.com", Locale: locale}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel updates the mock model identifier.
func (m *MockLLMClient) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Calls returns a copy of the recorded invocations.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Reset clears queued replies, patterns and recorded calls.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
	m.failures = nil
	m.responses = nil
	m.calls = nil
}

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)
