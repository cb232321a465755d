package pipeline

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// ASR transcribes a normalized audio chunk to timestamped text.
type ASR interface {
	Transcribe(ctx context.Context, audioPath string, language string) ([]TranscriptSegment, error)
	Close() error
}

// Diarizer returns speaker turns for a normalized audio chunk. The return
// shape is intentionally loose: concrete diarization backends expose their
// result as an iterator, a serialized map, or a nested map depending on the
// underlying runtime, and normalizeAnnotation resolves whichever shape a
// given Diarizer happens to hand back.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) (any, error)
	Close() error
}

// ChatLLM completes a chat-style prompt against a language model.
type ChatLLM interface {
	Complete(ctx context.Context, messages []ChatMessage, temperature float64, maxTokens int) (string, error)
	Close() error
}

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// Factory functions a ResourceManager uses to lazily materialize each
// capability. A factory may legitimately return (nil, nil): the capability
// is then permanently unavailable for the lifetime of this manager, never
// an error condition by itself.
type Factories struct {
	NewASR           func() (ASR, error)
	NewDiarizer      func() (Diarizer, error)
	NewClassifierLLM func() (ChatLLM, error)
	NewSummarizerLLM func() (ChatLLM, error)
}

// attempt records whether a lazy load has already run, so a capability that
// failed once is not retried on every subsequent access within the same
// run. The upstream reference implementation retries on every access
// because it caches only the successful value; this manager caches the
// attempt itself to avoid retry storms against a downed model endpoint
// during a single run. See DESIGN.md.
type attempt[T any] struct {
	once  sync.Once
	value T
	err   error
}

func (a *attempt[T]) get(load func() (T, error)) (T, error) {
	a.once.Do(func() {
		a.value, a.err = load()
	})
	return a.value, a.err
}

// ResourceManager lazily constructs and caches the model-backed
// capabilities a run needs, and is owned by exactly one job worker — never
// shared across concurrent jobs.
type ResourceManager struct {
	factories Factories
	log       *slog.Logger

	asr           attempt[ASR]
	diarizer      attempt[Diarizer]
	classifierLLM attempt[ChatLLM]
	summarizerLLM attempt[ChatLLM]
}

// NewResourceManager builds a manager over the given capability factories.
func NewResourceManager(factories Factories, log *slog.Logger) *ResourceManager {
	if log == nil {
		log = slog.Default()
	}
	return &ResourceManager{factories: factories, log: log}
}

// ASR returns the cached ASR capability, constructing it on first use. A
// nil ASR with a nil error means the capability is unavailable.
func (m *ResourceManager) ASR() (ASR, error) {
	if m.factories.NewASR == nil {
		return nil, nil
	}
	v, err := m.asr.get(m.factories.NewASR)
	if err != nil {
		m.log.Warn("asr unavailable", "error", err)
		return nil, nil
	}
	return v, nil
}

// Diarizer returns the cached diarization capability, constructing it on
// first use.
func (m *ResourceManager) Diarizer() (Diarizer, error) {
	if m.factories.NewDiarizer == nil {
		return nil, nil
	}
	v, err := m.diarizer.get(m.factories.NewDiarizer)
	if err != nil {
		m.log.Warn("diarizer unavailable", "error", err)
		return nil, nil
	}
	return v, nil
}

// ClassifierLLM returns the model used by the categorize stage.
func (m *ResourceManager) ClassifierLLM() (ChatLLM, error) {
	if m.factories.NewClassifierLLM == nil {
		return nil, nil
	}
	v, err := m.classifierLLM.get(m.factories.NewClassifierLLM)
	if err != nil {
		m.log.Warn("classifier llm unavailable", "error", err)
		return nil, nil
	}
	return v, nil
}

// SummarizerLLM returns the model used by the refine stage.
func (m *ResourceManager) SummarizerLLM() (ChatLLM, error) {
	if m.factories.NewSummarizerLLM == nil {
		return nil, nil
	}
	v, err := m.summarizerLLM.get(m.factories.NewSummarizerLLM)
	if err != nil {
		m.log.Warn("summarizer llm unavailable", "error", err)
		return nil, nil
	}
	return v, nil
}

// ReleaseASR frees the ASR model before an LLM load, matching the upstream
// practice of dropping the transcription model from memory before a
// categorization or refinement model is brought up.
func (m *ResourceManager) ReleaseASR() {
	if m.asr.value != nil {
		if err := m.asr.value.Close(); err != nil {
			m.log.Warn("release asr failed", "error", err)
		}
	}
	m.asr = attempt[ASR]{}
}

// GPULayers reads the LLAMA_GPU_LAYERS override for LLM offload depth.
// An absent or invalid value attempts full GPU offload, falling back to
// CPU layer-by-layer as needed, and is reported as -1. A negative value
// also requests full offload. A non-negative value pins the exact number
// of layers to place on the GPU.
func GPULayers() int {
	raw := os.Getenv("LLAMA_GPU_LAYERS")
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	if n < 0 {
		return -1
	}
	return n
}

// Close releases every capability that has been constructed so far.
func (m *ResourceManager) Close() {
	if m.asr.value != nil {
		_ = m.asr.value.Close()
	}
	if m.diarizer.value != nil {
		_ = m.diarizer.value.Close()
	}
	if m.classifierLLM.value != nil {
		_ = m.classifierLLM.value.Close()
	}
	if m.summarizerLLM.value != nil {
		_ = m.summarizerLLM.value.Close()
	}
}
