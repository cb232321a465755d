package resilience

import (
	"context"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// ASRFallback implements [pipeline.ASR] with automatic failover across
// multiple transcription backends — e.g. a local whisper.cpp model as primary
// with a hosted ASR endpoint as a fallback when the local model fails to load.
type ASRFallback struct {
	group *FallbackGroup[pipeline.ASR]
}

var _ pipeline.ASR = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred backend.
func NewASRFallback(primary pipeline.ASR, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional ASR provider as a fallback.
func (f *ASRFallback) AddFallback(name string, provider pipeline.ASR) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs against the first healthy provider. If the primary fails,
// subsequent fallbacks are tried.
func (f *ASRFallback) Transcribe(ctx context.Context, audioPath, language string) ([]pipeline.TranscriptSegment, error) {
	return ExecuteWithResult(f.group, func(p pipeline.ASR) ([]pipeline.TranscriptSegment, error) {
		return p.Transcribe(ctx, audioPath, language)
	})
}

// Close closes every backend in the group, collecting the first error.
func (f *ASRFallback) Close() error {
	var firstErr error
	for i := range f.group.entries {
		if err := f.group.entries[i].value.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
