// Package httpdiarizer adapts an HTTP diarization service (a
// pyannote-compatible endpoint) to the pipeline's Diarizer capability.
package httpdiarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// Diarizer posts an audio file to a remote diarization endpoint and
// parses its JSON response into the pipeline's serialized-map annotation
// shape.
type Diarizer struct {
	Endpoint string
	Client   *http.Client
}

var _ pipeline.Diarizer = (*Diarizer)(nil)

// New constructs a Diarizer targeting the given HTTP endpoint.
func New(endpoint string, timeout time.Duration) (*Diarizer, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("httpdiarizer: endpoint must not be empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Diarizer{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}, nil
}

// Close satisfies pipeline.Diarizer; the diarizer owns no resources
// beyond the shared *http.Client.
func (d *Diarizer) Close() error { return nil }

type diarizeResponseTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type diarizeResponse struct {
	Diarization []diarizeResponseTurn `json:"diarization"`
}

// Diarize uploads the audio file at audioPath and returns the decoded
// annotation in the "diarization" serialized-map shape that
// stages.normalizeAnnotation understands.
func (d *Diarizer) Diarize(ctx context.Context, audioPath string) (any, error) {
	body, contentType, err := buildMultipartBody(audioPath)
	if err != nil {
		return nil, fmt.Errorf("httpdiarizer: build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("httpdiarizer: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpdiarizer: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpdiarizer: unexpected status %s", resp.Status)
	}

	var decoded diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("httpdiarizer: decode response: %w", err)
	}

	turns := make([]any, 0, len(decoded.Diarization))
	for _, t := range decoded.Diarization {
		turns = append(turns, map[string]any{"speaker": t.Speaker, "start": t.Start, "end": t.End})
	}
	return map[string]any{"diarization": turns}, nil
}

func buildMultipartBody(audioPath string) (io.Reader, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
