// Package pipeline implements the staged audio-to-summary processing engine:
// the stage abstraction, the run context shared between stages, the
// orchestrator that sequences them, and the artifact-persistence contract.
package pipeline

// AudioChunk is a contiguous slice of the normalized recording, identified
// by its position within the original timeline.
type AudioChunk struct {
	ID        string  `json:"id"`
	FilePath  string  `json:"file_path"`
	StartSec  float64 `json:"start"`
	EndSec    float64 `json:"end"`
	Transcript string `json:"transcript,omitempty"`
	Speaker    string `json:"speaker,omitempty"`
}

// SpeakerTurn is one contiguous interval during which a diarizer attributes
// speech to a single speaker label.
type SpeakerTurn struct {
	Speaker  string  `json:"speaker"`
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
}

// TranscriptSegment is one unit of recognized speech. The ASR collaborator
// returns it in chunk-local time; the STT stage publishes it under DataSTT
// in whole-recording time.
type TranscriptSegment struct {
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
	Text     string  `json:"text"`
	// Language is the BCP-47-ish code the ASR model detected (or was forced
	// to use) for the chunk this segment came from, e.g. "en", "ko".
	Language string `json:"language,omitempty"`
}

// MergedSegment is a TranscriptSegment after speaker attribution, expressed
// in whole-recording time.
type MergedSegment struct {
	Speaker  string  `json:"speaker"`
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
}

// DocumentType is the canonical classification a run's source material is
// assigned during categorization.
type DocumentType string

const (
	DocumentConversation DocumentType = "CONVERSATION"
	DocumentLecture      DocumentType = "LECTURE"
	DocumentMeeting      DocumentType = "MEETING"
)

// SpeakerStats summarizes a single speaker's contribution to the merged
// transcript.
type SpeakerStats struct {
	UtteranceCount int
	TotalDuration  float64
}

// StageResult is the only channel a Stage uses to report outcome: stages
// never return a Go error across their boundary.
type StageResult struct {
	Name    string
	Success bool
	Message string
	Data    any
}
