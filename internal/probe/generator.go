package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var (
	// ErrLLMClientNil is returned when a generator is built without a client.
	ErrLLMClientNil = errors.New("LLM client cannot be nil")

	_ ports.Generator = (*LLMGenerator)(nil)
	_ ports.Generator = (*ShuffleGenerator)(nil)
)

// LLMGenerator asks an LLM client for a JSON list and decodes it.
type LLMGenerator struct {
	client    ports.LLMClient
	prompt    *Prompt
	maxTokens int
}

// NewLLMGenerator returns a generator over client. A nil prompt selects
// DefaultPrompt; maxTokens <= 0 leaves the provider default.
func NewLLMGenerator(client ports.LLMClient, prompt *Prompt, maxTokens int) (*LLMGenerator, error) {
	if client == nil {
		return nil, ErrLLMClientNil
	}
	if prompt == nil {
		var err error
		if prompt, err = NewPrompt(""); err != nil {
			return nil, err
		}
	}
	return &LLMGenerator{client: client, prompt: prompt, maxTokens: maxTokens}, nil
}

// Generate renders the prompt, calls the client and decodes the reply.
// Replies without a decodable JSON array fail with domain.ErrMalformedOutput.
func (g *LLMGenerator) Generate(ctx context.Context, req ports.GenerateRequest) ([]domain.ListItem, error) {
	prompt, err := g.prompt.Render(req)
	if err != nil {
		return nil, err
	}

	options := map[string]any{"temperature": req.Temperature}
	if g.maxTokens > 0 {
		options["max_tokens"] = g.maxTokens
	}
	response, err := g.client.Complete(ctx, prompt, options)
	if err != nil {
		return nil, fmt.Errorf("generate %q/%s: %w", req.Entity, req.Locale,
			ports.NewLLMError(g.client.GetModel(), "Complete", err))
	}
	return ParseList(response)
}

// ParseList extracts a JSON array of list items from an LLM reply. Markdown
// code fences and surrounding prose are tolerated, as is an object wrapping
// the array under "list" or "items".
func ParseList(response string) ([]domain.ListItem, error) {
	raw := extractJSONArray(response)
	if raw == "" {
		if items, ok := unwrapObject(response); ok {
			return items, nil
		}
		return nil, fmt.Errorf("%w: no JSON array in response (length: %d chars)",
			domain.ErrMalformedOutput, len(response))
	}
	var items []domain.ListItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	return items, nil
}

func unwrapObject(response string) ([]domain.ListItem, bool) {
	var wrapper struct {
		List  []domain.ListItem `json:"list"`
		Items []domain.ListItem `json:"items"`
	}
	raw := extractBalanced(stripFence(response), '{', '}')
	if raw == "" || json.Unmarshal([]byte(raw), &wrapper) != nil {
		return nil, false
	}
	if wrapper.List != nil {
		return wrapper.List, true
	}
	return wrapper.Items, wrapper.Items != nil
}

func extractJSONArray(response string) string {
	return extractBalanced(stripFence(response), '[', ']')
}

// stripFence returns the body of the first markdown code block, or the
// trimmed response when there is none.
func stripFence(response string) string {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "```")
	if start == -1 {
		return response
	}
	start += 3
	if nl := strings.Index(response[start:], "\n"); nl != -1 {
		start += nl + 1
	}
	end := strings.Index(response[start:], "```")
	if end == -1 {
		return response[start:]
	}
	return strings.TrimSpace(response[start : start+end])
}

// extractBalanced returns the first open..close span, skipping delimiters
// inside JSON strings.
func extractBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// DefaultShuffleBrands is the pool used by ShuffleGenerator.
var DefaultShuffleBrands = []string{"Acme", "Bravo", "Canyon", "Delta", "Echo", "Foxtrot", "Gamma", "Helix", "Ion"}

// ShuffleGenerator is an offline generator that returns a random
// permutation prefix of a fixed brand pool. It is deterministic for a seed.
type ShuffleGenerator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	brands []string
}

// NewShuffleGenerator returns a generator over brands seeded with seed.
// An empty pool selects DefaultShuffleBrands.
func NewShuffleGenerator(seed int64, brands []string) *ShuffleGenerator {
	if len(brands) == 0 {
		brands = DefaultShuffleBrands
	}
	return &ShuffleGenerator{
		rng:    rand.New(rand.NewSource(seed)),
		brands: append([]string(nil), brands...),
	}
}

// Generate returns min(req.N, pool size) items.
func (s *ShuffleGenerator) Generate(ctx context.Context, req ports.GenerateRequest) ([]domain.ListItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	perm := s.rng.Perm(len(s.brands))
	s.mu.Unlock()

	n := max(0, min(req.N, len(perm)))
	items := make([]domain.ListItem, n)
	for i := range n {
		b := s.brands[perm[i]]
		items[i] = domain.ListItem{
			Brand:  b,
			Site:   "https://" + strings.ToLower(b) + ".example.com",
			Locale: req.Locale,
		}
	}
	return items, nil
}
