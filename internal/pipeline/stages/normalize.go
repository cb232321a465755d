package stages

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/MrWong99/scrivener/internal/capability"
	"github.com/MrWong99/scrivener/internal/pipeline"
)

// SegmentLength is the maximum chunk length, in seconds, before a
// recording is split into multiple chunks.
const SegmentLength = 30 * 60

// Normalize converts the run's input recording to mono 16kHz PCM WAV and
// splits it into chunks when it exceeds SegmentLength.
type Normalize struct {
	Transcoder capability.Transcoder
	Log        *slog.Logger
}

func (n *Normalize) Name() string { return "normalize" }

func (n *Normalize) Run(ctx context.Context, rc *pipeline.RunContext) pipeline.StageResult {
	log := n.logger()
	stageDir := filepath.Join(rc.BaseDir, n.Name())
	normalizedPath := filepath.Join(stageDir, "normalized.wav")

	log.Info("normalizing input", "run_id", rc.RunID, "input", rc.InputFile, "dest", normalizedPath)

	if err := n.Transcoder.Transcode(ctx, rc.InputFile, normalizedPath); err != nil {
		return pipeline.StageResult{Name: n.Name(), Success: false, Message: fmt.Sprintf("transcode failed: %v", err)}
	}

	duration, err := n.Transcoder.Probe(ctx, normalizedPath)
	if err != nil {
		log.Warn("duration probe failed, continuing with duration=0", "error", err)
		duration = 0.0
	}
	log.Info("normalized audio duration", "run_id", rc.RunID, "seconds", duration)

	chunks := n.buildChunks(ctx, rc, normalizedPath, duration, log)

	rc.Data[pipeline.DataChunks] = chunks
	rc.Data[pipeline.DataNormalizedPath] = normalizedPath

	return pipeline.StageResult{Name: n.Name(), Success: true, Data: chunks}
}

func (n *Normalize) buildChunks(ctx context.Context, rc *pipeline.RunContext, normalizedPath string, duration float64, log *slog.Logger) []pipeline.AudioChunk {
	if duration <= SegmentLength {
		log.Info("produced single chunk", "run_id", rc.RunID, "seconds", duration)
		return []pipeline.AudioChunk{{ID: "chunk0", FilePath: normalizedPath, StartSec: 0, EndSec: duration}}
	}

	segmentsDir := filepath.Join(rc.BaseDir, n.Name(), "segments")
	paths, err := n.Transcoder.Segment(ctx, normalizedPath, segmentsDir, SegmentLength)
	if err != nil || len(paths) == 0 {
		log.Warn("segmentation failed, falling back to single chunk", "error", err)
		return []pipeline.AudioChunk{{ID: "chunk0", FilePath: normalizedPath, StartSec: 0, EndSec: duration}}
	}

	sort.Strings(paths)
	chunks := make([]pipeline.AudioChunk, 0, len(paths))
	for i, p := range paths {
		start := float64(i * SegmentLength)
		end := start + SegmentLength
		if end > duration {
			end = duration
		}
		chunks = append(chunks, pipeline.AudioChunk{
			ID:       fmt.Sprintf("chunk%d", i),
			FilePath: p,
			StartSec: start,
			EndSec:   end,
		})
	}
	log.Info("produced chunks", "run_id", rc.RunID, "count", len(chunks))
	return chunks
}

func (n *Normalize) logger() *slog.Logger {
	if n.Log != nil {
		return n.Log
	}
	return slog.Default()
}
