package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

type anthropicProvider struct {
	baseProvider
	client anthropic.Client
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	// Transport retries belong to RetryMiddleware.
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: config.Timeout}))
	}
	return &anthropicProvider{
		baseProvider: baseProvider{model: config.Model},
		client:       anthropic.NewClient(opts...),
	}, nil
}

func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.GetModel())
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: int64(o.maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if o.temperature != nil {
		// Anthropic accepts 0..1.
		params.Temperature = anthropic.Float(min(*o.temperature, 1))
	}
	if o.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: o.system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, 0, p.classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	content := sb.String()
	if content == "" {
		if msg.StopReason == anthropic.StopReasonMaxTokens {
			return "", 0, 0, ErrTruncated
		}
		return "", 0, 0, ErrEmptyResponse
	}
	return content, usage(msg.Usage.InputTokens, prompt), usage(msg.Usage.OutputTokens, content), nil
}

func (p *anthropicProvider) classify(err error) error {
	if perr := classifyContext("anthropic", err); perr != nil {
		return perr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("anthropic", apiErr.StatusCode, "", err)
	}
	return &ProviderError{Provider: "anthropic", Kind: KindUnknown, Message: "request failed", Err: err}
}
