// Package jobstore defines the Job/Material/StageLog persistence contract
// the job coordinator uses to track summarization work across restarts.
package jobstore

import "time"

// JobStatus is the lifecycle state of a SummaryJob.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// MaterialStatus is the lifecycle state of a SourceMaterial within a job.
type MaterialStatus string

const (
	MaterialUploaded     MaterialStatus = "UPLOADED"
	MaterialTranscribing MaterialStatus = "TRANSCRIBING"
	MaterialSummarizing  MaterialStatus = "SUMMARIZING"
	MaterialCompleted    MaterialStatus = "COMPLETED"
	MaterialFailed       MaterialStatus = "FAILED"
)

// Job is a single summarization request spanning one or more materials.
type Job struct {
	ID           int64
	SubjectID    int64
	Status       JobStatus
	FinalSummary string
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// Material is one source recording belonging to a Job.
type Material struct {
	ID                int64
	JobID             int64
	FilePath          string
	Status            MaterialStatus
	IndividualSummary string
	OutputArtifacts   map[string]any
	ErrorMessage      string
	CreatedAt         time.Time
}

// SpeakerSegment is one persisted row of the merge stage's speaker
// attribution, kept per-material for later retrieval without re-reading
// the run's artifact files.
type SpeakerSegment struct {
	ID         int64
	MaterialID int64
	Speaker    string
	StartSec   float64
	EndSec     float64
	Text       string
}

// StageLog is a coarse-grained record of one phase ("transcribe" or
// "summarize") of a job's processing.
type StageLog struct {
	ID        int64
	JobID     int64
	StageName string
	Status    JobStatus
	StartTime *time.Time
	EndTime   *time.Time
	Details   map[string]any
}

// Subject carries the per-subject settings the coordinator needs: where
// material files live and whether transcription should be biased toward
// Korean audio.
type Subject struct {
	ID            int64
	Name          string
	IsKoreanOnly  bool
	WorkspaceRoot string
}
