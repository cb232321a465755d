// Package postgres implements jobstore.Store against PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/scrivener/internal/jobstore"
)

// Schema is the SQL DDL for the job-tracking tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS subjects (
    id             BIGSERIAL PRIMARY KEY,
    name           TEXT NOT NULL,
    is_korean_only BOOLEAN NOT NULL DEFAULT false,
    workspace_root TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS summary_jobs (
    id            BIGSERIAL PRIMARY KEY,
    subject_id    BIGINT NOT NULL REFERENCES subjects(id),
    status        TEXT NOT NULL DEFAULT 'PENDING',
    final_summary TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_summary_jobs_subject ON summary_jobs(subject_id);
CREATE INDEX IF NOT EXISTS idx_summary_jobs_status ON summary_jobs(status);

CREATE TABLE IF NOT EXISTS source_materials (
    id                 BIGSERIAL PRIMARY KEY,
    job_id             BIGINT NOT NULL REFERENCES summary_jobs(id) ON DELETE CASCADE,
    file_path          TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'UPLOADED',
    individual_summary TEXT NOT NULL DEFAULT '',
    output_artifacts   JSONB NOT NULL DEFAULT '{}',
    error_message      TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_source_materials_job ON source_materials(job_id);

CREATE TABLE IF NOT EXISTS speaker_attributed_segments (
    id          BIGSERIAL PRIMARY KEY,
    material_id BIGINT NOT NULL REFERENCES source_materials(id) ON DELETE CASCADE,
    speaker     TEXT NOT NULL,
    start_sec   DECIMAL(10,4) NOT NULL,
    end_sec     DECIMAL(10,4) NOT NULL,
    text        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_speaker_segments_material ON speaker_attributed_segments(material_id);

CREATE TABLE IF NOT EXISTS job_stage_logs (
    id         BIGSERIAL PRIMARY KEY,
    job_id     BIGINT NOT NULL REFERENCES summary_jobs(id) ON DELETE CASCADE,
    stage_name TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'PENDING',
    start_time TIMESTAMPTZ,
    end_time   TIMESTAMPTZ,
    details    JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_job_stage_logs_job_stage ON job_stage_logs(job_id, stage_name);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a jobstore.Store backed by PostgreSQL.
type Store struct {
	db DB
}

var _ jobstore.Store = (*Store)(nil)

// New creates a Store over the given connection or pool. The caller is
// responsible for calling Migrate before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes Schema, creating every table and index if absent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("jobstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*jobstore.Job, error) {
	const query = `
		SELECT id, subject_id, status, final_summary, error_message, started_at, completed_at, created_at
		FROM summary_jobs WHERE id = $1`
	var job jobstore.Job
	err := s.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.SubjectID, &job.Status, &job.FinalSummary, &job.ErrorMessage,
		&job.StartedAt, &job.CompletedAt, &job.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: get job %d: %w", id, err)
	}
	return &job, nil
}

func (s *Store) UpdateJob(ctx context.Context, job *jobstore.Job) error {
	const query = `
		UPDATE summary_jobs SET
			status = $2, final_summary = $3, error_message = $4,
			started_at = $5, completed_at = $6
		WHERE id = $1`
	_, err := s.db.Exec(ctx, query, job.ID, job.Status, job.FinalSummary, job.ErrorMessage, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("jobstore: update job %d: %w", job.ID, err)
	}
	return nil
}

func (s *Store) ListMaterials(ctx context.Context, jobID int64) ([]jobstore.Material, error) {
	const query = `
		SELECT id, job_id, file_path, status, individual_summary, output_artifacts, error_message, created_at
		FROM source_materials WHERE job_id = $1 ORDER BY id`
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list materials for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var materials []jobstore.Material
	for rows.Next() {
		var m jobstore.Material
		var artifactsJSON []byte
		if err := rows.Scan(&m.ID, &m.JobID, &m.FilePath, &m.Status, &m.IndividualSummary, &artifactsJSON, &m.ErrorMessage, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("jobstore: scan material: %w", err)
		}
		if err := json.Unmarshal(artifactsJSON, &m.OutputArtifacts); err != nil {
			return nil, fmt.Errorf("jobstore: unmarshal output_artifacts: %w", err)
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: list materials: %w", err)
	}
	return materials, nil
}

func (s *Store) UpdateMaterial(ctx context.Context, material *jobstore.Material) error {
	artifacts := material.OutputArtifacts
	if artifacts == nil {
		artifacts = map[string]any{}
	}
	artifactsJSON, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("jobstore: marshal output_artifacts: %w", err)
	}
	const query = `
		UPDATE source_materials SET
			status = $2, individual_summary = $3, output_artifacts = $4, error_message = $5
		WHERE id = $1`
	_, err = s.db.Exec(ctx, query, material.ID, material.Status, material.IndividualSummary, artifactsJSON, material.ErrorMessage)
	if err != nil {
		return fmt.Errorf("jobstore: update material %d: %w", material.ID, err)
	}
	return nil
}

func (s *Store) ReplaceSpeakerSegments(ctx context.Context, materialID int64, segments []jobstore.SpeakerSegment) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM speaker_attributed_segments WHERE material_id = $1`, materialID); err != nil {
		return fmt.Errorf("jobstore: clear speaker segments for material %d: %w", materialID, err)
	}
	const insert = `
		INSERT INTO speaker_attributed_segments (material_id, speaker, start_sec, end_sec, text)
		VALUES ($1, $2, $3, $4, $5)`
	for _, seg := range segments {
		if _, err := s.db.Exec(ctx, insert, materialID, seg.Speaker, seg.StartSec, seg.EndSec, seg.Text); err != nil {
			return fmt.Errorf("jobstore: insert speaker segment for material %d: %w", materialID, err)
		}
	}
	return nil
}

func (s *Store) CreateStageLogs(ctx context.Context, jobID int64, stageNames []string) ([]jobstore.StageLog, error) {
	now := time.Now().UTC()
	logs := make([]jobstore.StageLog, 0, len(stageNames))
	const insert = `
		INSERT INTO job_stage_logs (job_id, stage_name, status, start_time)
		VALUES ($1, $2, $3, $4) RETURNING id`
	for _, name := range stageNames {
		log := jobstore.StageLog{JobID: jobID, StageName: name, Status: jobstore.JobProcessing, StartTime: &now}
		if err := s.db.QueryRow(ctx, insert, jobID, name, log.Status, log.StartTime).Scan(&log.ID); err != nil {
			return nil, fmt.Errorf("jobstore: create stage log %q for job %d: %w", name, jobID, err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}

func (s *Store) ListStageLogs(ctx context.Context, jobID int64) ([]jobstore.StageLog, error) {
	const query = `
		SELECT id, job_id, stage_name, status, start_time, end_time, details
		FROM job_stage_logs WHERE job_id = $1 ORDER BY id`
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list stage logs for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var logs []jobstore.StageLog
	for rows.Next() {
		var log jobstore.StageLog
		var detailsJSON []byte
		if err := rows.Scan(&log.ID, &log.JobID, &log.StageName, &log.Status, &log.StartTime, &log.EndTime, &detailsJSON); err != nil {
			return nil, fmt.Errorf("jobstore: scan stage log: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &log.Details); err != nil {
			return nil, fmt.Errorf("jobstore: unmarshal stage log details: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: list stage logs: %w", err)
	}
	return logs, nil
}

func (s *Store) UpdateStageLog(ctx context.Context, log *jobstore.StageLog) error {
	details := log.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("jobstore: marshal stage log details: %w", err)
	}
	const query = `
		UPDATE job_stage_logs SET status = $2, end_time = $3, details = $4 WHERE id = $1`
	_, err = s.db.Exec(ctx, query, log.ID, log.Status, log.EndTime, detailsJSON)
	if err != nil {
		return fmt.Errorf("jobstore: update stage log %d: %w", log.ID, err)
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, id int64) (*jobstore.Subject, error) {
	const query = `SELECT id, name, is_korean_only, workspace_root FROM subjects WHERE id = $1`
	var subj jobstore.Subject
	err := s.db.QueryRow(ctx, query, id).Scan(&subj.ID, &subj.Name, &subj.IsKoreanOnly, &subj.WorkspaceRoot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: get subject %d: %w", id, err)
	}
	return &subj, nil
}

func (s *Store) DeleteMaterial(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM source_materials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("jobstore: delete material %d: %w", id, err)
	}
	return nil
}
