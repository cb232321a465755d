package pipeline

import "context"

// Well-known keys under which stages publish their output in RunContext.Data.
//
// DataDiarization and DataSTT each hold a flat []pipeline.SpeakerTurn /
// []pipeline.TranscriptSegment with every start/end already expressed on
// the whole-recording timeline — Diarize and STT convert out of their own
// chunk-local coordinates before publishing, so Merge (and anything else
// reading these keys) never needs to know about chunk boundaries.
const (
	DataChunks            = "chunks"
	DataNormalizedPath    = "normalized_path"
	DataDiarization       = "diarization"
	DataSTT               = "stt"
	DataMergedTranscript  = "merged_transcript"
	DataSpeakerAttributed = "speaker_attributed_text"
	DataDocumentType      = "document_type"
	DataSummary           = "summary"
	DataSpeakerIndex      = "speaker_index"
	resultKeySuffix       = "_result"
)

// RunContext is the state shared by every stage of a single run. It is
// owned by exactly one goroutine (the one executing the Orchestrator) and
// carries no internal locking, matching the single-owner structs used
// throughout this codebase for per-unit-of-work state.
type RunContext struct {
	RunID     string
	BaseDir   string
	InputFile string
	KoreanOnly bool

	Resources *ResourceManager
	Data      map[string]any
}

// NewRunContext constructs a RunContext ready for the orchestrator.
func NewRunContext(runID, baseDir, inputFile string, resources *ResourceManager) *RunContext {
	return &RunContext{
		RunID:     runID,
		BaseDir:   baseDir,
		InputFile: inputFile,
		Resources: resources,
		Data:      make(map[string]any),
	}
}

// StoreStageResult records a stage's result under "<name>_result" so later
// stages and the persister can inspect prior outcomes.
func (rc *RunContext) StoreStageResult(r StageResult) {
	rc.Data[r.Name+resultKeySuffix] = r
}

// Stage is one step of the processing pipeline. Implementations must never
// panic or return a Go error across this boundary; all failure is reported
// through StageResult.
type Stage interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) StageResult
}
