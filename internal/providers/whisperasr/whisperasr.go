// Package whisperasr adapts the whisper.cpp Go bindings (CGO) to the
// pipeline's batch ASR capability. Unlike the teacher's streaming
// NativeProvider, each Transcribe call here decodes one whole normalized
// WAV file and runs a single whisper.cpp inference pass over it.
package whisperasr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// Provider implements pipeline.ASR using a whisper.cpp model loaded once
// and shared across every chunk of a run.
type Provider struct {
	model whisperlib.Model
}

var _ pipeline.ASR = (*Provider)(nil)

// New loads the whisper.cpp model at modelPath. The caller must call
// Close when the provider is no longer needed.
func New(modelPath string) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisperasr: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisperasr: load model %q: %w", modelPath, err)
	}
	return &Provider{model: model}, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe decodes the WAV file at audioPath and runs a single
// whisper.cpp inference pass, returning one TranscriptSegment per
// recognized speech segment, in chunk-local time.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, language string) ([]pipeline.TranscriptSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisperasr: context already cancelled: %w", err)
	}

	samples, err := readWAVMono16(audioPath)
	if err != nil {
		return nil, fmt.Errorf("whisperasr: decode %q: %w", audioPath, err)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisperasr: create context: %w", err)
	}

	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			return nil, fmt.Errorf("whisperasr: set language %q: %w", language, err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisperasr: process audio: %w", err)
	}

	// Read back whatever whisper.cpp settled on for this chunk, whether
	// that's the language we forced above or its own auto-detection.
	detectedLanguage := wctx.DetectedLanguage()

	var segments []pipeline.TranscriptSegment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisperasr: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		segments = append(segments, pipeline.TranscriptSegment{
			StartSec: segment.Start.Seconds(),
			EndSec:   segment.End.Seconds(),
			Text:     text,
			Language: detectedLanguage,
		})
	}
	return segments, nil
}

// readWAVMono16 reads a canonical mono 16kHz 16-bit PCM WAV file (the
// output of the normalize stage) and returns its samples as float32 in
// the range [-1.0, 1.0].
func readWAVMono16(path string) ([]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := extractWAVData(raw)
	if err != nil {
		return nil, err
	}

	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples, nil
}

// extractWAVData walks a WAV file's RIFF chunk headers to find the "data"
// chunk, tolerating any extra chunks ffmpeg may have written ahead of it.
func extractWAVData(raw []byte) ([]byte, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}
	offset := 12
	for offset+8 <= len(raw) {
		chunkID := string(raw[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		dataStart := offset + 8
		if chunkID == "data" {
			end := dataStart + chunkSize
			if end > len(raw) {
				end = len(raw)
			}
			return raw[dataStart:end], nil
		}
		offset = dataStart + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}
	return nil, fmt.Errorf("no data chunk found")
}
