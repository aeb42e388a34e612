package llm

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

type openAIProvider struct {
	baseProvider
	client *openai.Client
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	return &openAIProvider{
		baseProvider: baseProvider{model: config.Model},
		client:       openai.NewClientWithConfig(cc),
	}, nil
}

func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.GetModel())

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: o.maxTokens,
	}
	if o.temperature != nil {
		req.Temperature = float32(*o.temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", 0, 0, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, ErrEmptyResponse
	}
	if resp.Choices[0].Message.Content == "" {
		if resp.Choices[0].FinishReason == openai.FinishReasonLength {
			return "", 0, 0, ErrTruncated
		}
		return "", 0, 0, ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	return content,
		usage(int64(resp.Usage.PromptTokens), prompt),
		usage(int64(resp.Usage.CompletionTokens), content),
		nil
}

func (p *openAIProvider) classify(err error) error {
	if perr := classifyContext("openai", err); perr != nil {
		return perr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus("openai", reqErr.HTTPStatusCode, "", err)
	}
	return &ProviderError{Provider: "openai", Kind: KindUnknown, Message: "request failed", Err: err}
}
