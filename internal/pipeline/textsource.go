package pipeline

import (
	"os"
	"path/filepath"
	"strings"
)

// SourceText resolves the best available transcript text for a run,
// trying progressively coarser sources: the speaker-attributed text held
// in memory, the speaker-attributed.txt artifact on disk, a previously
// computed summary (in memory, then on disk), and finally a plain
// concatenation of every STT segment. It returns false only when none of
// these sources yielded any text at all. The result has any <think> tags
// stripped so stray model reasoning never contaminates a later stage's
// input, matching the stripping already applied to model output.
func SourceText(rc *RunContext) (string, bool) {
	if text, ok := rc.Data[DataSpeakerAttributed].(string); ok && strings.TrimSpace(text) != "" {
		return StripThinkTags(text), true
	}
	if text, ok := readArtifact(rc.BaseDir, "speaker-attributed.txt"); ok {
		return StripThinkTags(text), true
	}
	if text, ok := rc.Data[DataSummary].(string); ok && strings.TrimSpace(text) != "" {
		return StripThinkTags(text), true
	}
	if text, ok := readArtifact(rc.BaseDir, "summary.txt"); ok {
		return StripThinkTags(text), true
	}
	if text, ok := concatenateSTT(rc); ok {
		return StripThinkTags(text), true
	}
	return "", false
}

func readArtifact(baseDir, name string) (string, bool) {
	raw, err := os.ReadFile(filepath.Join(baseDir, name))
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", false
	}
	return text, true
}

func concatenateSTT(rc *RunContext) (string, bool) {
	segments, _ := rc.Data[DataSTT].([]TranscriptSegment)
	if len(segments) == 0 {
		return "", false
	}

	var parts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}
