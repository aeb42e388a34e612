package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

type googleProvider struct {
	baseProvider
	client *genai.Client
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	cc := &genai.ClientConfig{APIKey: config.APIKey, Backend: genai.BackendGeminiAPI}
	if config.BaseURL != "" {
		cc.HTTPOptions.BaseURL = config.BaseURL
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	return &googleProvider{baseProvider: baseProvider{model: config.Model}, client: client}, nil
}

func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.GetModel())

	text := prompt
	if o.system != "" {
		text = "System: " + o.system + "\n\nUser: " + prompt
	}
	gc := &genai.GenerateContentConfig{MaxOutputTokens: int32(min(o.maxTokens, math.MaxInt32))}
	if o.temperature != nil {
		gc.Temperature = genai.Ptr(float32(*o.temperature))
	}

	resp, err := p.client.Models.GenerateContent(ctx, o.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, gc)
	if err != nil {
		return "", 0, 0, p.classify(err)
	}
	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	var in, out int64
	if resp.UsageMetadata != nil {
		in, out = int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return content, usage(in, text), usage(out, content), nil
}

func (p *googleProvider) classify(err error) error {
	if perr := classifyContext("google", err); perr != nil {
		return perr
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" && len(apiErr.Errors) > 0 {
			msg = apiErr.Errors[0].Message
		}
		if blockedBySafety(apiErr) {
			return &ProviderError{Provider: "google", Kind: KindContentPolicy, StatusCode: apiErr.Code,
				Message: "request blocked by safety filters", Err: err}
		}
		return classifyStatus("google", apiErr.Code, msg, err)
	}
	return &ProviderError{Provider: "google", Kind: KindUnknown, Message: "request failed", Err: err}
}

func blockedBySafety(apiErr *googleapi.Error) bool {
	lower := strings.ToLower(apiErr.Message)
	if strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
