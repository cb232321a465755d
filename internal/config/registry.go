package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/scrivener/internal/capability"
	"github.com/MrWong99/scrivener/internal/pipeline"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// capability. It is safe for concurrent use. A single llm map backs both
// CreateClassifierLLM and CreateSummarizerLLM since constructing a chat
// model does not depend on which pipeline stage will call it.
type Registry struct {
	mu         sync.RWMutex
	transcoder map[string]func(ProviderEntry) (capability.Transcoder, error)
	asr        map[string]func(ProviderEntry) (pipeline.ASR, error)
	diarizer   map[string]func(ProviderEntry) (pipeline.Diarizer, error)
	llm        map[string]func(ProviderEntry) (pipeline.ChatLLM, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcoder: make(map[string]func(ProviderEntry) (capability.Transcoder, error)),
		asr:        make(map[string]func(ProviderEntry) (pipeline.ASR, error)),
		diarizer:   make(map[string]func(ProviderEntry) (pipeline.Diarizer, error)),
		llm:        make(map[string]func(ProviderEntry) (pipeline.ChatLLM, error)),
	}
}

// RegisterTranscoder registers a Transcoder factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscoder(name string, factory func(ProviderEntry) (capability.Transcoder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcoder[name] = factory
}

// RegisterASR registers an ASR factory under name.
func (r *Registry) RegisterASR(name string, factory func(ProviderEntry) (pipeline.ASR, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterDiarizer registers a Diarizer factory under name.
func (r *Registry) RegisterDiarizer(name string, factory func(ProviderEntry) (pipeline.Diarizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diarizer[name] = factory
}

// RegisterLLM registers a ChatLLM factory under name. The same factory
// namespace serves both the classifier and summarizer roles.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (pipeline.ChatLLM, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateTranscoder instantiates a Transcoder using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTranscoder(entry ProviderEntry) (capability.Transcoder, error) {
	r.mu.RLock()
	factory, ok := r.transcoder[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcoder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateASR instantiates an ASR provider using the factory registered under entry.Name.
func (r *Registry) CreateASR(entry ProviderEntry) (pipeline.ASR, error) {
	r.mu.RLock()
	factory, ok := r.asr[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDiarizer instantiates a Diarizer using the factory registered under entry.Name.
func (r *Registry) CreateDiarizer(entry ProviderEntry) (pipeline.Diarizer, error) {
	r.mu.RLock()
	factory, ok := r.diarizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: diarizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateClassifierLLM instantiates the ChatLLM used by the categorize stage.
func (r *Registry) CreateClassifierLLM(entry ProviderEntry) (pipeline.ChatLLM, error) {
	return r.createLLM("classifier_llm", entry)
}

// CreateSummarizerLLM instantiates the ChatLLM used by the refine stage.
func (r *Registry) CreateSummarizerLLM(entry ProviderEntry) (pipeline.ChatLLM, error) {
	return r.createLLM("summarizer_llm", entry)
}

func (r *Registry) createLLM(role string, entry ProviderEntry) (pipeline.ChatLLM, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, role, entry.Name)
	}
	return factory(entry)
}
