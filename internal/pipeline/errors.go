package pipeline

import "errors"

// Error kinds surfaced through StageResult.Message and, where a Go error is
// warranted (persistence, coordinator plumbing), wrapped with fmt.Errorf.
var (
	ErrInput            = errors.New("pipeline: invalid or missing input")
	ErrTranscoder       = errors.New("pipeline: transcoding failed")
	ErrModelUnavailable = errors.New("pipeline: model unavailable")
	ErrModelInference   = errors.New("pipeline: model inference failed")
	ErrPersistence      = errors.New("pipeline: artifact persistence failed")
	ErrCoordinator      = errors.New("pipeline: job coordination failed")
)
