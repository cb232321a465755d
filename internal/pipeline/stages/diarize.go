package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// Diarize attributes speaker turns to each audio chunk. The diarization
// backend's result shape varies (an object exposing an exclusive or
// non-exclusive annotation, an iterator-like type, or a serialized map);
// normalizeAnnotation resolves whichever shape comes back. Diarization
// never fails the run: any error, including "model unavailable", degrades
// to a single UNKNOWN turn spanning the whole chunk.
type Diarize struct {
	Log *slog.Logger
}

func (d *Diarize) Name() string { return "diarize" }

// ExclusiveDiarizationProvider is implemented by diarization results that
// expose a precomputed, non-overlapping turn sequence.
type ExclusiveDiarizationProvider interface {
	ExclusiveSpeakerDiarization() []pipeline.SpeakerTurn
}

// SpeakerDiarizationProvider is implemented by diarization results that
// expose turns which may overlap between speakers.
type SpeakerDiarizationProvider interface {
	SpeakerDiarization() []pipeline.SpeakerTurn
}

// TrackIterator is implemented by diarization results backed by an
// iterator-style annotation object, in the manner of pyannote's
// Annotation.itertracks().
type TrackIterator interface {
	IterTracks() []pipeline.SpeakerTurn
}

// Run diarizes every chunk and publishes the flattened result under
// DataDiarization with every turn's start/end expressed in the
// whole-recording timeline, per the run context's data-key contract.
func (d *Diarize) Run(ctx context.Context, rc *pipeline.RunContext) pipeline.StageResult {
	log := d.logger()
	chunks, _ := rc.Data[pipeline.DataChunks].([]pipeline.AudioChunk)

	diarizer, err := rc.Resources.Diarizer()
	if err != nil {
		log.Warn("diarizer resource error", "error", err)
	}

	var turns []pipeline.SpeakerTurn
	message := ""

	for _, chunk := range chunks {
		chunkTurns, derr := d.diarizeChunk(ctx, diarizer, chunk)
		if derr != nil {
			log.Warn("diarization fell back to placeholder", "chunk", chunk.ID, "error", derr)
			if message == "" {
				message = fmt.Sprintf("diarization unavailable or failed: %v; using placeholder turns", derr)
			}
			chunkTurns = []pipeline.SpeakerTurn{{Speaker: "UNKNOWN", StartSec: 0, EndSec: chunk.EndSec - chunk.StartSec}}
		}
		for _, t := range chunkTurns {
			turns = append(turns, pipeline.SpeakerTurn{
				Speaker:  t.Speaker,
				StartSec: t.StartSec + chunk.StartSec,
				EndSec:   t.EndSec + chunk.StartSec,
			})
		}
	}

	rc.Data[pipeline.DataDiarization] = turns
	return pipeline.StageResult{Name: d.Name(), Success: true, Message: message, Data: turns}
}

func (d *Diarize) diarizeChunk(ctx context.Context, diarizer pipeline.Diarizer, chunk pipeline.AudioChunk) ([]pipeline.SpeakerTurn, error) {
	if diarizer == nil {
		return nil, fmt.Errorf("diarizer unavailable")
	}
	raw, err := diarizer.Diarize(ctx, chunk.FilePath)
	if err != nil {
		return nil, err
	}
	return normalizeAnnotation(raw)
}

// normalizeAnnotation resolves a diarization backend's result, whatever
// shape it comes back in, to a flat list of speaker turns.
func normalizeAnnotation(raw any) ([]pipeline.SpeakerTurn, error) {
	switch v := raw.(type) {
	case ExclusiveDiarizationProvider:
		return v.ExclusiveSpeakerDiarization(), nil
	case SpeakerDiarizationProvider:
		return v.SpeakerDiarization(), nil
	case TrackIterator:
		return v.IterTracks(), nil
	case []pipeline.SpeakerTurn:
		return v, nil
	case map[string]any:
		if turns, ok := extractTurns(v["exclusive_diarization"]); ok {
			return turns, nil
		}
		if turns, ok := extractTurns(v["diarization"]); ok {
			return turns, nil
		}
		return nil, fmt.Errorf("diarize: unrecognized serialized annotation shape")
	default:
		return nil, fmt.Errorf("diarize: unrecognized annotation type %T", raw)
	}
}

func extractTurns(v any) ([]pipeline.SpeakerTurn, bool) {
	switch t := v.(type) {
	case []pipeline.SpeakerTurn:
		return t, true
	case []any:
		turns := make([]pipeline.SpeakerTurn, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			turn, ok := turnFromMap(m)
			if !ok {
				return nil, false
			}
			turns = append(turns, turn)
		}
		return turns, true
	default:
		return nil, false
	}
}

func turnFromMap(m map[string]any) (pipeline.SpeakerTurn, bool) {
	speaker, _ := m["speaker"].(string)
	start, ok1 := toFloat(m["start"])
	end, ok2 := toFloat(m["end"])
	if !ok1 || !ok2 {
		return pipeline.SpeakerTurn{}, false
	}
	return pipeline.SpeakerTurn{Speaker: speaker, StartSec: start, EndSec: end}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (d *Diarize) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
