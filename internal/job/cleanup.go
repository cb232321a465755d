package job

import (
	"context"
	"log/slog"
	"os"

	"github.com/MrWong99/scrivener/internal/jobstore"
)

// DeleteMaterial removes a material's on-disk artifacts (best effort,
// logged but never aborting) before deleting its database row, which
// cascades to its speaker segments.
func DeleteMaterial(ctx context.Context, store jobstore.Store, material *jobstore.Material, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	if path, ok := material.OutputArtifacts["individual_summary_path"].(string); ok && path != "" {
		removeBestEffort(path, log)
	}
	if path, ok := material.OutputArtifacts["speaker_attributed_text_path"].(string); ok && path != "" {
		removeBestEffort(path, log)
	}
	if path, ok := material.OutputArtifacts["run_dir"].(string); ok && path != "" {
		if err := os.RemoveAll(path); err != nil {
			log.Warn("cleanup: failed to remove run directory", "path", path, "error", err)
		}
	}

	return store.DeleteMaterial(ctx, material.ID)
}

func removeBestEffort(path string, log *slog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("cleanup: failed to remove artifact file", "path", path, "error", err)
	}
}
