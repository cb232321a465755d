package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// chunkManifestEntry is one entry of chunks_manifest.json: a record of a
// chunk file copied into the run directory's chunks/ subdirectory.
type chunkManifestEntry struct {
	ID    string  `json:"id"`
	File  string  `json:"file"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// categoriesArtifact is the JSON shape persisted to categories.json.
type categoriesArtifact struct {
	DocumentType DocumentType `json:"document_type"`
}

// FilePersister writes each stage's serialized output to the run
// directory, matching the run-directory layout the rest of the pipeline
// writes per-stage files into (normalize/normalized.wav,
// speaker-attributed.txt, summary.txt).
type FilePersister struct {
	Log *slog.Logger
}

// NewFilePersister builds a FilePersister.
func NewFilePersister(log *slog.Logger) *FilePersister {
	if log == nil {
		log = slog.Default()
	}
	return &FilePersister{Log: log}
}

// PersistRun writes the run directory's serialized stage artifacts: copies
// of the chunks actually used plus chunks_manifest.json, and whichever of
// diarization.json, stt.json, categories.json have data in rc.Data at the
// time of the call. speaker-attributed.txt and summary.txt are written by
// their owning stages directly and are not duplicated here.
func (p *FilePersister) PersistRun(ctx context.Context, rc *RunContext) error {
	if err := os.MkdirAll(rc.BaseDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create run directory %q: %w", rc.BaseDir, err)
	}

	if chunks, ok := rc.Data[DataChunks].([]AudioChunk); ok {
		if err := p.persistChunks(rc.BaseDir, chunks); err != nil {
			return err
		}
	}
	if turns, ok := rc.Data[DataDiarization].([]SpeakerTurn); ok {
		if err := p.writeJSON(rc.BaseDir, "diarization.json", turns); err != nil {
			return err
		}
	}
	if segments, ok := rc.Data[DataSTT].([]TranscriptSegment); ok {
		if err := p.writeJSON(rc.BaseDir, "stt.json", segments); err != nil {
			return err
		}
	}
	if docType, ok := rc.Data[DataDocumentType].(DocumentType); ok {
		if err := p.writeJSON(rc.BaseDir, "categories.json", categoriesArtifact{DocumentType: docType}); err != nil {
			return err
		}
	}

	p.Log.Info("persisted run artifacts", "run_id", rc.RunID, "base_dir", rc.BaseDir)
	return nil
}

// persistChunks copies every chunk's audio file into <base_dir>/chunks/
// and writes chunks_manifest.json describing the copies. A chunk whose
// file can't be copied is logged and dropped from the manifest rather
// than aborting the whole run.
func (p *FilePersister) persistChunks(baseDir string, chunks []AudioChunk) error {
	chunksDir := filepath.Join(baseDir, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create chunks directory %q: %w", chunksDir, err)
	}

	manifest := make([]chunkManifestEntry, 0, len(chunks))
	for _, chunk := range chunks {
		ext := filepath.Ext(chunk.FilePath)
		if ext == "" {
			ext = ".wav"
		}
		name := chunk.ID + ext
		dst := filepath.Join(chunksDir, name)
		if err := copyFile(chunk.FilePath, dst); err != nil {
			p.Log.Warn("failed to copy chunk into run directory", "chunk", chunk.ID, "error", err)
			continue
		}
		manifest = append(manifest, chunkManifestEntry{ID: chunk.ID, File: name, Start: chunk.StartSec, End: chunk.EndSec})
	}

	return p.writeJSON(baseDir, "chunks_manifest.json", manifest)
}

func (p *FilePersister) writeJSON(baseDir, name string, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: encode %s: %w", name, err)
	}
	path := filepath.Join(baseDir, name)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("pipeline: write %q: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
