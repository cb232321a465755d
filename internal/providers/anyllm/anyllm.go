// Package anyllm adapts github.com/mozilla-ai/any-llm-go, a unified
// multi-provider LLM client, to the pipeline's ChatLLM capability. It
// exists alongside internal/providers/openaillm so the categorize and
// refine stages can be configured against either backend independently,
// exercising the resource manager's per-capability factory indirection.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// Provider implements pipeline.ChatLLM by wrapping any-llm-go.
type Provider struct {
	backend   anyllmlib.Provider
	model     string
	gpuLayers int
}

// New constructs a Provider for the given backend name ("openai",
// "anthropic", or "llamacpp" for a local llama.cpp server) and model.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	var backend anyllmlib.Provider
	var err error
	switch strings.ToLower(providerName) {
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "llamacpp":
		backend, err = llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: openai, anthropic, llamacpp", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// WithGPULayers records the resolved LLAMA_GPU_LAYERS offload depth (see
// pipeline.GPULayers) on a llama.cpp-backed Provider. Since this client
// talks to an already-running llama.cpp server, the value doesn't change
// this process's own GPU usage — it's recorded so the caller can log or
// surface the effective offload depth the server was expected to load
// with. Returns p for chaining.
func (p *Provider) WithGPULayers(n int) *Provider {
	p.gpuLayers = n
	return p
}

// GPULayers returns the value last set by WithGPULayers (zero if never set).
func (p *Provider) GPULayers() int {
	return p.gpuLayers
}

// Complete implements pipeline.ChatLLM.
func (p *Provider) Complete(ctx context.Context, messages []pipeline.ChatMessage, temperature float64, maxTokens int) (string, error) {
	params := anyllmlib.CompletionParams{Model: p.model}
	for _, m := range messages {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	if temperature != 0 {
		t := temperature
		params.Temperature = &t
	}
	if maxTokens > 0 {
		mt := maxTokens
		params.MaxTokens = &mt
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// Close implements pipeline.ChatLLM.
func (p *Provider) Close() error { return nil }
