package resilience

import (
	"context"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// LLMFallback implements [pipeline.ChatLLM] with automatic failover across
// multiple chat backends (for example an OpenAI classifier/summarizer with a
// local llama.cpp backend as a fallback when the hosted API is unreachable).
// Each backend has its own circuit breaker; when the primary fails or its
// breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[pipeline.ChatLLM]
}

var _ pipeline.ChatLLM = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary pipeline.ChatLLM, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional ChatLLM as a fallback.
func (f *LLMFallback) AddFallback(name string, provider pipeline.ChatLLM) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, messages []pipeline.ChatMessage, temperature float64, maxTokens int) (string, error) {
	return ExecuteWithResult(f.group, func(p pipeline.ChatLLM) (string, error) {
		return p.Complete(ctx, messages, temperature, maxTokens)
	})
}

// Close closes every backend in the group, collecting the first error.
func (f *LLMFallback) Close() error {
	var firstErr error
	for i := range f.group.entries {
		if err := f.group.entries[i].value.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
