// Package capability defines the narrow external collaborator contracts
// the pipeline stages depend on but do not own the lifecycle of.
package capability

import "context"

// Transcoder converts an input recording to the pipeline's canonical mono
// 16kHz PCM WAV format and reports source duration. Unlike the model-backed
// capabilities in pipeline.ResourceManager, a Transcoder is cheap to
// construct and is not lazily cached — it is handed to the normalize stage
// directly at wiring time.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
	Probe(ctx context.Context, path string) (seconds float64, err error)
	Segment(ctx context.Context, src, outDir string, segmentSeconds int) (segmentPaths []string, err error)
}
