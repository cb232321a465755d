// Package openaillm adapts the OpenAI chat completions API to the
// pipeline's ChatLLM capability.
package openaillm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// Provider implements pipeline.ChatLLM against the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// Option configures a Provider.
type Option func(*config)

type config struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL points the client at an OpenAI-compatible endpoint other
// than the default.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Provider for the given API key and model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaillm: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openaillm: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements pipeline.ChatLLM.
func (p *Provider) Complete(ctx context.Context, messages []pipeline.ChatMessage, temperature float64, maxTokens int) (string, error) {
	var oaiMessages []oai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			oaiMessages = append(oaiMessages, oai.SystemMessage(m.Content))
		case "user":
			oaiMessages = append(oaiMessages, oai.UserMessage(m.Content))
		default:
			return "", fmt.Errorf("openaillm: unsupported message role %q", m.Role)
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: oaiMessages,
	}
	if temperature != 0 {
		params.Temperature = param.NewOpt(temperature)
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openaillm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openaillm: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close implements pipeline.ChatLLM; the OpenAI HTTP client owns no
// resources that need explicit release.
func (p *Provider) Close() error { return nil }
