package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

// defaultSummaryPrompts holds the system prompt used to drive the
// summarizer model for each document type. A deployment may override
// these by dropping a "<type>.txt" file into the configured prompt
// directory (see Refine.PromptDir).
var defaultSummaryPrompts = map[pipeline.DocumentType]string{
	pipeline.DocumentConversation: "Summarize this conversation transcript into a short, readable recap of what was discussed and any decisions made.",
	pipeline.DocumentLecture:      "Summarize this lecture transcript into structured study notes: main topics, key definitions, and examples given.",
	pipeline.DocumentMeeting:      "Summarize this meeting transcript into minutes: attendees and their positions where evident, decisions made, and action items with owners.",
}

// Refine produces the final summary for the run's transcript, using the
// document type assigned by Categorize to select a prompt.
type Refine struct {
	PromptDir string
	Log       *slog.Logger
}

func (r *Refine) Name() string { return "refine" }

func (r *Refine) Run(ctx context.Context, rc *pipeline.RunContext) pipeline.StageResult {
	log := r.logger()

	// Like Categorize, Refine releases the ASR model only after
	// resolving its input text, since a failed text lookup means no
	// model load is needed at all.
	text, ok := pipeline.SourceText(rc)
	if !ok {
		if err := r.writeSummary(rc, ""); err != nil {
			log.Warn("failed to write empty summary artifact", "error", err)
		}
		rc.Data[pipeline.DataSummary] = ""
		return pipeline.StageResult{Name: r.Name(), Success: true, Message: "no transcript text available; wrote empty summary", Data: ""}
	}

	rc.Resources.ReleaseASR()

	llm, err := rc.Resources.SummarizerLLM()
	if err != nil {
		log.Warn("summarizer llm resource error", "error", err)
	}
	if llm == nil {
		return r.fallback(rc, text, "summarizer model unavailable; persisted transcript text as the summary", log)
	}

	docType, _ := rc.Data[pipeline.DataDocumentType].(pipeline.DocumentType)
	systemPrompt := r.promptFor(docType)

	messages := []pipeline.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	}
	raw, cerr := llm.Complete(ctx, messages, 0.3, 1024)
	if cerr != nil {
		return r.fallback(rc, text, fmt.Sprintf("summarizer inference failed: %v; persisted transcript text as the summary", cerr), log)
	}

	summary := strings.TrimSpace(pipeline.StripThinkTags(raw))
	if summary == "" {
		return r.fallback(rc, text, "summarizer returned an empty result; persisted transcript text as the summary", log)
	}

	if err := r.writeSummary(rc, summary); err != nil {
		log.Warn("failed to write summary artifact", "error", err)
	}
	rc.Data[pipeline.DataSummary] = summary
	return pipeline.StageResult{Name: r.Name(), Success: true, Data: summary}
}

func (r *Refine) fallback(rc *pipeline.RunContext, text, message string, log *slog.Logger) pipeline.StageResult {
	if err := r.writeSummary(rc, text); err != nil {
		log.Warn("failed to write fallback summary artifact", "error", err)
	}
	rc.Data[pipeline.DataSummary] = text
	return pipeline.StageResult{Name: r.Name(), Success: true, Message: message, Data: text}
}

func (r *Refine) promptFor(docType pipeline.DocumentType) string {
	if r.PromptDir != "" {
		path := filepath.Join(r.PromptDir, strings.ToLower(string(docType))+".txt")
		if raw, err := os.ReadFile(path); err == nil {
			if prompt := strings.TrimSpace(string(raw)); prompt != "" {
				return prompt
			}
		}
	}
	if prompt, ok := defaultSummaryPrompts[docType]; ok {
		return prompt
	}
	return defaultSummaryPrompts[pipeline.DocumentConversation]
}

func (r *Refine) writeSummary(rc *pipeline.RunContext, summary string) error {
	if err := os.MkdirAll(rc.BaseDir, 0o755); err != nil {
		return fmt.Errorf("refine: create run directory: %w", err)
	}
	path := filepath.Join(rc.BaseDir, "summary.txt")
	if err := os.WriteFile(path, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("refine: write summary.txt: %w", err)
	}
	return nil
}

func (r *Refine) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
