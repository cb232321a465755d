package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// outsideChunkTolerance widens the chunk's [0, duration] window on both
// sides: a segment lying wholly outside the widened window is dropped, and
// any other segment is clamped to the chunk.
const outsideChunkTolerance = 0.5

// minSegmentDuration rejects degenerate zero-length segments a model
// occasionally emits at a chunk boundary.
const minSegmentDuration = 1e-3

// STT transcribes every audio chunk to timestamped text. Per chunk, it
// always reports success: when the ASR capability is unavailable or every
// attempt fails, it records an empty transcript for that chunk and
// continues so later stages still run against whatever chunks did
// transcribe.
type STT struct {
	Language string
	Log      *slog.Logger
}

func (s *STT) Name() string { return "stt" }

// Run transcribes every chunk and publishes the flattened result under
// DataSTT with every segment's start/end expressed in the whole-recording
// timeline, per the run context's data-key contract.
func (s *STT) Run(ctx context.Context, rc *pipeline.RunContext) pipeline.StageResult {
	log := s.logger()
	chunks, _ := rc.Data[pipeline.DataChunks].([]pipeline.AudioChunk)

	asr, err := rc.Resources.ASR()
	if err != nil {
		log.Warn("asr resource error", "error", err)
	}

	var segments []pipeline.TranscriptSegment
	message := ""
	if asr == nil {
		message = "asr model unavailable; chunks transcribed as empty"
	}

	for _, chunk := range chunks {
		segs, terr := s.transcribeChunk(ctx, asr, chunk)
		if terr != nil {
			log.Warn("transcription failed for chunk, continuing with empty transcript", "chunk", chunk.ID, "error", terr)
			if message == "" {
				message = fmt.Sprintf("transcription failed for one or more chunks: %v", terr)
			}
			segs = nil
		}
		for _, seg := range filterSegments(segs, chunk) {
			segments = append(segments, pipeline.TranscriptSegment{
				StartSec: seg.StartSec + chunk.StartSec,
				EndSec:   seg.EndSec + chunk.StartSec,
				Text:     seg.Text,
				Language: seg.Language,
			})
		}
	}

	rc.Data[pipeline.DataSTT] = segments
	return pipeline.StageResult{Name: s.Name(), Success: true, Message: message, Data: segments}
}

func (s *STT) transcribeChunk(ctx context.Context, asr pipeline.ASR, chunk pipeline.AudioChunk) ([]pipeline.TranscriptSegment, error) {
	if asr == nil {
		return nil, fmt.Errorf("asr unavailable")
	}
	segs, err := asr.Transcribe(ctx, chunk.FilePath, s.Language)
	if err != nil {
		// A single retry covers the case where the backend selected a GPU
		// device that is out of memory or otherwise unavailable and can
		// recover by falling back to CPU execution on the next attempt.
		segs, err = asr.Transcribe(ctx, chunk.FilePath, s.Language)
	}
	return segs, err
}

// filterSegments drops ASR segments that are degenerate or lie wholly
// outside the chunk's duration widened by outsideChunkTolerance, clamps the
// rest to the chunk, and trims segment text.
func filterSegments(segs []pipeline.TranscriptSegment, chunk pipeline.AudioChunk) []pipeline.TranscriptSegment {
	chunkLen := chunk.EndSec - chunk.StartSec
	out := make([]pipeline.TranscriptSegment, 0, len(segs))
	for _, seg := range segs {
		start, end := seg.StartSec, seg.EndSec
		if end <= start {
			continue
		}
		if end <= -outsideChunkTolerance || start >= chunkLen+outsideChunkTolerance {
			continue
		}
		if start < 0 {
			start = 0
		}
		if end > chunkLen {
			end = chunkLen
		}
		if end-start <= minSegmentDuration {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out = append(out, pipeline.TranscriptSegment{StartSec: start, EndSec: end, Text: text, Language: seg.Language})
	}
	return out
}

func (s *STT) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
