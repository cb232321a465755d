// Package job implements the background worker that drives SummaryJobs
// and their SourceMaterials through the processing pipeline.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/scrivener/internal/jobstore"
	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/internal/pipeline"
	"github.com/MrWong99/scrivener/internal/pipeline/stages"
)

const (
	stageTranscribe = "transcribe"
	stageSummarize  = "summarize"
)

// PipelineFactory builds the stage sequence a single material run should
// execute. Coordinator calls it once per material; the material's own
// ResourceManager comes from Coordinator.NewResources, never shared across
// jobs.
type PipelineFactory func(rc *pipeline.RunContext, koreanOnly bool) []pipeline.Stage

// Coordinator drives jobs end to end: it resolves each job's materials,
// runs the pipeline against each in turn, and records per-material and
// per-job outcomes in the Store.
type Coordinator struct {
	Store           jobstore.Store
	Persister       pipeline.Persister
	NewResources    func() *pipeline.ResourceManager
	NewStageList    PipelineFactory
	RunRoot         string
	Log             *slog.Logger
	Metrics         *observe.Metrics
	maxConcurrent   int
	sem             chan struct{}
}

// WithMetrics attaches an [observe.Metrics] instance the coordinator records
// job/material/stage outcomes against. Passing nil disables metric recording.
func (c *Coordinator) WithMetrics(m *observe.Metrics) *Coordinator {
	c.Metrics = m
	return c
}

// NewCoordinator builds a Coordinator. maxConcurrentJobs bounds how many
// jobs this process will process simultaneously; each runs in its own
// goroutine with its own ResourceManager.
func NewCoordinator(store jobstore.Store, persister pipeline.Persister, newResources func() *pipeline.ResourceManager, stageList PipelineFactory, runRoot string, maxConcurrentJobs int, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if maxConcurrentJobs < 1 {
		maxConcurrentJobs = 1
	}
	return &Coordinator{
		Store:         store,
		Persister:     persister,
		NewResources:  newResources,
		NewStageList:  stageList,
		RunRoot:       runRoot,
		Log:           log,
		maxConcurrent: maxConcurrentJobs,
		sem:           make(chan struct{}, maxConcurrentJobs),
	}
}

// Submit processes jobID in a new goroutine, blocking only long enough to
// acquire a worker slot.
func (c *Coordinator) Submit(ctx context.Context, jobID int64) {
	c.sem <- struct{}{}
	go func() {
		defer func() { <-c.sem }()
		c.ProcessJob(ctx, jobID)
	}()
}

// ProcessJob runs every material belonging to jobID through the pipeline
// sequentially, isolating a single material's failure from the rest of
// the job, and determines the job's final status from how many materials
// succeeded.
func (c *Coordinator) ProcessJob(ctx context.Context, jobID int64) {
	runIDBase := time.Now().UTC().Format("20060102150405")

	if c.Metrics != nil {
		c.Metrics.ActiveJobs.Add(ctx, 1)
		defer c.Metrics.ActiveJobs.Add(ctx, -1)
	}

	job, err := c.Store.GetJob(ctx, jobID)
	if err != nil || job == nil {
		c.Log.Error("job coordinator: failed to load job", "job_id", jobID, "error", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.Log.Error("job coordinator: panic while processing job", "job_id", jobID, "panic", r)
			job.Status = jobstore.JobFailed
			job.ErrorMessage = fmt.Sprintf("Processing failed: %v", r)
			_ = c.Store.UpdateJob(ctx, job)
			c.failOpenStageLogs(ctx, jobID)
		}
	}()

	subject, err := c.Store.GetSubject(ctx, job.SubjectID)
	if err != nil || subject == nil {
		job.Status = jobstore.JobFailed
		job.ErrorMessage = fmt.Sprintf("Processing failed: subject lookup failed: %v", err)
		_ = c.Store.UpdateJob(ctx, job)
		return
	}

	now := time.Now().UTC()
	job.Status = jobstore.JobProcessing
	job.StartedAt = &now
	if err := c.Store.UpdateJob(ctx, job); err != nil {
		c.Log.Error("job coordinator: failed to mark job processing", "job_id", jobID, "error", err)
		return
	}

	stageLogs, err := c.Store.CreateStageLogs(ctx, jobID, []string{stageTranscribe, stageSummarize})
	if err != nil {
		c.Log.Error("job coordinator: failed to create stage logs", "job_id", jobID, "error", err)
		return
	}

	materials, err := c.Store.ListMaterials(ctx, jobID)
	if err != nil {
		c.Log.Error("job coordinator: failed to list materials", "job_id", jobID, "error", err)
		return
	}

	failedCount := 0
	var summaries []string

	for _, material := range materials {
		if err := c.processMaterial(ctx, runIDBase, jobID, subject, &material); err != nil {
			c.Log.Warn("job coordinator: material failed, continuing with next material", "job_id", jobID, "material_id", material.ID, "error", err)
			failedCount++
			continue
		}
		if material.IndividualSummary != "" {
			summaries = append(summaries, material.IndividualSummary)
		}
	}

	c.completeStageLogs(ctx, stageLogs)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	total := len(materials)
	switch {
	case total == 0:
		job.Status = jobstore.JobFailed
		job.ErrorMessage = "no materials to process"
	case failedCount == total:
		job.Status = jobstore.JobFailed
		job.ErrorMessage = fmt.Sprintf("%d of %d files failed", failedCount, total)
	case failedCount > 0:
		job.Status = jobstore.JobFailed
		job.ErrorMessage = fmt.Sprintf("%d of %d files failed", failedCount, total)
		job.FinalSummary = joinSummaries(summaries)
	default:
		job.Status = jobstore.JobCompleted
		job.FinalSummary = joinSummaries(summaries)
	}

	if err := c.Store.UpdateJob(ctx, job); err != nil {
		c.Log.Error("job coordinator: failed to finalize job", "job_id", jobID, "error", err)
	}
	if c.Metrics != nil {
		c.Metrics.RecordJobCompletion(ctx, string(job.Status))
	}
}

// processMaterial runs the pipeline for a single material and updates its
// status and artifacts in the store. A returned error means the material
// failed; the caller is responsible for continuing to the next material.
func (c *Coordinator) processMaterial(ctx context.Context, runIDBase string, jobID int64, subject *jobstore.Subject, material *jobstore.Material) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.Log.Error("job coordinator: panic while processing material", "job_id", jobID, "material_id", material.ID, "panic", r)
			material.Status = jobstore.MaterialFailed
			material.ErrorMessage = fmt.Sprintf("processing panicked: %v", r)
			_ = c.Store.UpdateMaterial(ctx, material)
			c.recordMaterialOutcome(ctx, material.Status)
			err = fmt.Errorf("material %d: panic: %v", material.ID, r)
		}
	}()

	if _, err := os.Stat(material.FilePath); err != nil {
		material.Status = jobstore.MaterialFailed
		material.ErrorMessage = fmt.Sprintf("source file missing: %v", err)
		_ = c.Store.UpdateMaterial(ctx, material)
		c.recordMaterialOutcome(ctx, material.Status)
		return fmt.Errorf("material %d: %w", material.ID, err)
	}

	runID := fmt.Sprintf("%s-%d-%d", runIDBase, jobID, material.ID)
	runDir := filepath.Join(c.RunRoot, runID)

	material.Status = jobstore.MaterialTranscribing
	if err := c.Store.UpdateMaterial(ctx, material); err != nil {
		return fmt.Errorf("material %d: update status: %w", material.ID, err)
	}

	resources := c.NewResources()
	defer resources.Close()

	rc := pipeline.NewRunContext(runID, runDir, material.FilePath, resources)
	rc.KoreanOnly = subject.IsKoreanOnly

	stageList := c.NewStageList(rc, subject.IsKoreanOnly)
	orch := pipeline.NewOrchestrator(stageList, c.Persister, c.Log).WithMetrics(c.Metrics)

	results, err := orch.Run(ctx, rc)
	if err != nil {
		material.Status = jobstore.MaterialFailed
		material.ErrorMessage = err.Error()
		_ = c.Store.UpdateMaterial(ctx, material)
		c.recordMaterialOutcome(ctx, material.Status)
		return fmt.Errorf("material %d: %w", material.ID, err)
	}

	material.Status = jobstore.MaterialSummarizing
	_ = c.Store.UpdateMaterial(ctx, material)

	for _, result := range results {
		if !result.Success {
			material.Status = jobstore.MaterialFailed
			material.ErrorMessage = fmt.Sprintf("stage %q failed: %s", result.Name, result.Message)
			_ = c.Store.UpdateMaterial(ctx, material)
			c.recordMaterialOutcome(ctx, material.Status)
			return fmt.Errorf("material %d: stage %q failed", material.ID, result.Name)
		}
	}

	summary, _ := rc.Data[pipeline.DataSummary].(string)
	material.IndividualSummary = summary
	material.OutputArtifacts = map[string]any{
		"run_id":                       rc.RunID,
		"run_dir":                      runDir,
		"speaker_attributed_text_path": filepath.Join(runDir, "speaker-attributed.txt"),
		"individual_summary_path":      filepath.Join(runDir, "summary.txt"),
	}
	material.Status = jobstore.MaterialCompleted
	material.ErrorMessage = ""
	if err := c.Store.UpdateMaterial(ctx, material); err != nil {
		return fmt.Errorf("material %d: persist completion: %w", material.ID, err)
	}
	c.recordMaterialOutcome(ctx, material.Status)

	if err := c.persistSpeakerSegments(ctx, material.ID, rc); err != nil {
		c.Log.Warn("job coordinator: failed to persist speaker segments", "material_id", material.ID, "error", err)
	}

	return nil
}

// recordMaterialOutcome is a no-op when no [observe.Metrics] is attached.
func (c *Coordinator) recordMaterialOutcome(ctx context.Context, status jobstore.MaterialStatus) {
	if c.Metrics != nil {
		c.Metrics.RecordMaterialCompletion(ctx, string(status))
	}
}

func (c *Coordinator) persistSpeakerSegments(ctx context.Context, materialID int64, rc *pipeline.RunContext) error {
	merged, _ := rc.Data[pipeline.DataMergedTranscript].([]pipeline.MergedSegment)
	segments := make([]jobstore.SpeakerSegment, 0, len(merged))
	for _, seg := range merged {
		segments = append(segments, jobstore.SpeakerSegment{
			MaterialID: materialID,
			Speaker:    seg.Speaker,
			StartSec:   seg.StartSec,
			EndSec:     seg.EndSec,
			Text:       seg.Text,
		})
	}
	return c.Store.ReplaceSpeakerSegments(ctx, materialID, segments)
}

func (c *Coordinator) completeStageLogs(ctx context.Context, logs []jobstore.StageLog) {
	end := time.Now().UTC()
	for i := range logs {
		logs[i].Status = jobstore.JobCompleted
		logs[i].EndTime = &end
		if err := c.Store.UpdateStageLog(ctx, &logs[i]); err != nil {
			c.Log.Warn("job coordinator: failed to complete stage log", "stage", logs[i].StageName, "error", err)
		}
	}
}

// failOpenStageLogs marks any still-PROCESSING stage log for jobID as
// FAILED, used when ProcessJob recovers from a panic.
func (c *Coordinator) failOpenStageLogs(ctx context.Context, jobID int64) {
	logs, err := c.Store.ListStageLogs(ctx, jobID)
	if err != nil {
		c.Log.Warn("job coordinator: failed to list stage logs during panic recovery", "job_id", jobID, "error", err)
		return
	}
	end := time.Now().UTC()
	for i := range logs {
		if logs[i].Status != jobstore.JobProcessing {
			continue
		}
		logs[i].Status = jobstore.JobFailed
		logs[i].EndTime = &end
		if err := c.Store.UpdateStageLog(ctx, &logs[i]); err != nil {
			c.Log.Warn("job coordinator: failed to fail open stage log", "stage", logs[i].StageName, "error", err)
		}
	}
}

func joinSummaries(summaries []string) string {
	out := ""
	for i, s := range summaries {
		if s == "" {
			continue
		}
		if i > 0 && out != "" {
			out += "\n\n"
		}
		out += s
	}
	return out
}

// DefaultStageList is the canonical stage sequence: normalize, diarize,
// stt, merge, categorize, refine.
func DefaultStageList(transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
	Probe(ctx context.Context, path string) (float64, error)
	Segment(ctx context.Context, src, outDir string, segmentSeconds int) ([]string, error)
}, promptDir string, language string, log *slog.Logger) PipelineFactory {
	return func(rc *pipeline.RunContext, koreanOnly bool) []pipeline.Stage {
		lang := language
		if koreanOnly {
			lang = "ko"
		}
		return []pipeline.Stage{
			&stages.Normalize{Transcoder: transcoder, Log: log},
			&stages.Diarize{Log: log},
			&stages.STT{Language: lang, Log: log},
			&stages.Merge{Log: log},
			&stages.Categorize{PromptDir: promptDir, Log: log},
			&stages.Refine{PromptDir: promptDir, Log: log},
		}
	}
}
