package pipeline

import "regexp"

var thinkTagPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripThinkTags removes any <think>...</think> spans an LLM response may
// have emitted, so reasoning scratchpads never leak into a persisted
// summary or category label.
func StripThinkTags(text string) string {
	return thinkTagPattern.ReplaceAllString(text, "")
}
