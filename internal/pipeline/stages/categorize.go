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

// meetingTerms and lectureTerms are the cue words counted by the keyword
// heuristic, used whenever the classifier model is unavailable or returns
// an unrecognized label. The corpus is bilingual, so both carry their
// Korean and English cue terms.
var meetingTerms = []string{
	"회의", "회의록", "agenda", "meeting", "의제", "협의", "참석자",
}

var lectureTerms = []string{
	"강의", "lecture", "교수", "학생", "수업", "카리타지널", "슬라이드",
}

var labelAliases = map[string]pipeline.DocumentType{
	"conversation": pipeline.DocumentConversation,
	"dialogue":     pipeline.DocumentConversation,
	"chat":         pipeline.DocumentConversation,
	"lecture":      pipeline.DocumentLecture,
	"class":        pipeline.DocumentLecture,
	"seminar":      pipeline.DocumentLecture,
	"meeting":      pipeline.DocumentMeeting,
	"standup":      pipeline.DocumentMeeting,
	"call":         pipeline.DocumentMeeting,
}

// defaultCategorizeSystemPrompt is used when PromptDir is unset or doesn't
// contain a "categorize.txt" override.
const defaultCategorizeSystemPrompt = "You classify a transcript as exactly one of CONVERSATION, LECTURE, or MEETING. Respond with only the label."

// Categorize assigns a document type to the run's transcript, using the
// classifier model when available and a keyword heuristic otherwise.
type Categorize struct {
	// PromptDir, if set, is checked for a "categorize.txt" file to use as
	// the classifier system prompt instead of the built-in default.
	PromptDir string
	Log       *slog.Logger
}

func (c *Categorize) systemPrompt() string {
	if c.PromptDir != "" {
		path := filepath.Join(c.PromptDir, "categorize.txt")
		if raw, err := os.ReadFile(path); err == nil {
			if prompt := strings.TrimSpace(string(raw)); prompt != "" {
				return prompt
			}
		}
	}
	return defaultCategorizeSystemPrompt
}

func (c *Categorize) Name() string { return "categorize" }

func (c *Categorize) Run(ctx context.Context, rc *pipeline.RunContext) pipeline.StageResult {
	log := c.logger()

	text, ok := pipeline.SourceText(rc)
	if !ok {
		rc.Data[pipeline.DataDocumentType] = pipeline.DocumentConversation
		return pipeline.StageResult{Name: c.Name(), Success: true, Message: "no transcript text available; defaulting to CONVERSATION", Data: pipeline.DocumentConversation}
	}

	// Free the ASR model's memory before bringing up the classifier LLM.
	rc.Resources.ReleaseASR()

	llm, err := rc.Resources.ClassifierLLM()
	if err != nil {
		log.Warn("classifier llm resource error", "error", err)
	}

	if llm == nil {
		docType := heuristicLabel(text)
		rc.Data[pipeline.DataDocumentType] = docType
		return pipeline.StageResult{Name: c.Name(), Success: true, Message: "classifier model unavailable; used keyword heuristic", Data: docType}
	}

	messages := []pipeline.ChatMessage{
		{Role: "system", Content: c.systemPrompt()},
		{Role: "user", Content: truncateForClassification(text)},
	}
	raw, cerr := llm.Complete(ctx, messages, 0.0, 16)
	if cerr != nil {
		log.Warn("classifier completion failed, falling back to heuristic", "error", cerr)
		docType := heuristicLabel(text)
		rc.Data[pipeline.DataDocumentType] = docType
		return pipeline.StageResult{Name: c.Name(), Success: true, Message: fmt.Sprintf("classifier inference failed: %v; used keyword heuristic", cerr), Data: docType}
	}

	docType, recognized := normalizeLabel(pipeline.StripThinkTags(raw))
	if !recognized {
		docType = heuristicLabel(text)
		rc.Data[pipeline.DataDocumentType] = docType
		return pipeline.StageResult{Name: c.Name(), Success: true, Message: "classifier returned an unrecognized label; used keyword heuristic", Data: docType}
	}

	rc.Data[pipeline.DataDocumentType] = docType
	return pipeline.StageResult{Name: c.Name(), Success: true, Data: docType}
}

func normalizeLabel(raw string) (pipeline.DocumentType, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	for alias, docType := range labelAliases {
		if strings.Contains(cleaned, alias) {
			return docType, true
		}
	}
	return "", false
}

func heuristicLabel(text string) pipeline.DocumentType {
	lower := strings.ToLower(pipeline.StripThinkTags(text))
	meetingScore := countTerms(lower, meetingTerms)
	lectureScore := countTerms(lower, lectureTerms)

	if meetingScore > lectureScore && meetingScore > 0 {
		return pipeline.DocumentMeeting
	}
	if lectureScore > meetingScore && lectureScore > 0 {
		return pipeline.DocumentLecture
	}
	return pipeline.DocumentConversation
}

func countTerms(lower string, terms []string) int {
	score := 0
	for _, term := range terms {
		score += strings.Count(lower, term)
	}
	return score
}

func truncateForClassification(text string) string {
	const maxChars = 4000
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}

func (c *Categorize) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
