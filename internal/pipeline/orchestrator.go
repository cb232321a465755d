package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/scrivener/internal/observe"
)

// Persister writes the run's artifacts to durable storage. Orchestrator.Run
// invokes it once after the run directory exists, whether the run succeeded
// or halted partway; a panicking stage still triggers it while the panic
// unwinds through Run, which does not recover the panic itself. It is not
// invoked when the run directory cannot be created.
type Persister interface {
	PersistRun(ctx context.Context, rc *RunContext) error
}

// Orchestrator runs a fixed sequence of stages against a RunContext,
// halting at the first stage that reports failure and always persisting
// whatever artifacts exist before returning.
type Orchestrator struct {
	stages    []Stage
	persister Persister
	log       *slog.Logger
	metrics   *observe.Metrics
}

// NewOrchestrator builds an Orchestrator over the given stage sequence.
func NewOrchestrator(stages []Stage, persister Persister, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{stages: stages, persister: persister, log: log}
}

// WithMetrics attaches an [observe.Metrics] instance that stage durations are
// recorded against. Passing nil disables metric recording (the default).
func (o *Orchestrator) WithMetrics(m *observe.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Run executes each stage in order against rc, stopping early if a stage
// reports Success=false. Artifacts are persisted exactly once, after the
// last stage executed (successful or not).
func (o *Orchestrator) Run(ctx context.Context, rc *RunContext) (results []StageResult, err error) {
	if mkErr := os.MkdirAll(rc.BaseDir, 0o755); mkErr != nil {
		return nil, fmt.Errorf("pipeline: create run directory %q: %w", rc.BaseDir, mkErr)
	}

	defer func() {
		if o.persister == nil {
			return
		}
		if perr := o.persister.PersistRun(ctx, rc); perr != nil {
			o.log.Error("persist run artifacts failed", "run_id", rc.RunID, "error", perr)
			if err == nil {
				err = fmt.Errorf("%w: %v", ErrPersistence, perr)
			}
		}
	}()

	for _, stage := range o.stages {
		o.log.Info("stage starting", "run_id", rc.RunID, "stage", stage.Name())
		start := time.Now()
		result := stage.Run(ctx, rc)
		if o.metrics != nil {
			o.metrics.RecordStageDuration(ctx, stage.Name(), time.Since(start).Seconds())
		}
		rc.StoreStageResult(result)
		results = append(results, result)

		if result.Success {
			o.log.Info("stage completed", "run_id", rc.RunID, "stage", stage.Name(), "message", result.Message)
		} else {
			o.log.Warn("stage failed", "run_id", rc.RunID, "stage", stage.Name(), "message", result.Message)
			break
		}
	}

	return results, err
}
