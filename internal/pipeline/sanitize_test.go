package pipeline

import "testing"

func TestStripThinkTags_RemovesSingleBlock(t *testing.T) {
	got := StripThinkTags("<think>reasoning here</think>the answer")
	if got != "the answer" {
		t.Errorf("got %q", got)
	}
}

func TestStripThinkTags_RemovesMultilineBlock(t *testing.T) {
	got := StripThinkTags("<think>line one\nline two</think>final")
	if got != "final" {
		t.Errorf("got %q", got)
	}
}

func TestStripThinkTags_CaseInsensitive(t *testing.T) {
	got := StripThinkTags("<THINK>nope</THINK>yes")
	if got != "yes" {
		t.Errorf("got %q", got)
	}
}

func TestStripThinkTags_NoTagsLeavesTextUnchanged(t *testing.T) {
	got := StripThinkTags("just a plain answer")
	if got != "just a plain answer" {
		t.Errorf("got %q", got)
	}
}

func TestStripThinkTags_MultipleBlocks(t *testing.T) {
	got := StripThinkTags("<think>a</think>middle<think>b</think>end")
	if got != "middleend" {
		t.Errorf("got %q", got)
	}
}
