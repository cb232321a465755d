package jobstore

import "context"

// Store is the persistence contract the job coordinator depends on. It is
// satisfied by postgres.Store in normal operation and can be satisfied by
// an in-memory fake in tests.
type Store interface {
	GetJob(ctx context.Context, id int64) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error

	ListMaterials(ctx context.Context, jobID int64) ([]Material, error)
	UpdateMaterial(ctx context.Context, material *Material) error

	ReplaceSpeakerSegments(ctx context.Context, materialID int64, segments []SpeakerSegment) error

	CreateStageLogs(ctx context.Context, jobID int64, stageNames []string) ([]StageLog, error)
	ListStageLogs(ctx context.Context, jobID int64) ([]StageLog, error)
	UpdateStageLog(ctx context.Context, log *StageLog) error

	GetSubject(ctx context.Context, id int64) (*Subject, error)

	// DeleteMaterial removes a material's row and its speaker segments.
	// Callers are responsible for best-effort removal of the material's
	// artifact files before calling this, since the store only owns the
	// database side of cascade delete.
	DeleteMaterial(ctx context.Context, id int64) error
}
