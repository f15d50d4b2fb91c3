package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"docgen-backend/internal/generation"
)

const systemPrompt = "You are a senior business consultant. Write the requested document section in clear, professional prose. " +
	"Return only the section body without a heading."

// ChatClient is the subset of the go-openai client the provider uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Provider completes section prompts with the OpenAI chat API.
type Provider struct {
	client ChatClient
	model  string
}

// NewProvider builds a provider from an API key. baseURL is optional and targets compatible gateways.
func NewProvider(apiKey, model, baseURL string) (*Provider, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg), model: model}, nil
}

// NewProviderWithClient is used by tests and by callers that already hold a client.
func NewProviderWithClient(client ChatClient, model string) *Provider {
	return &Provider{client: client, model: model}
}

func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: p.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if !isReasoningModel(p.model) {
		req.Temperature = 0.4
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai response missing choices", generation.ErrUpstream)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: openai response empty content", generation.ErrUpstream)
	}
	return content, nil
}

func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &generation.StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		msg := reqErr.Error()
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &generation.StatusError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return fmt.Errorf("openai completion: %w", err)
}

// gpt-5 and o-series models reject a custom temperature.
func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-5") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}
