package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/scrivener/internal/pipeline"
)

type stubChatLLM struct {
	response string
	err      error
}

func (s *stubChatLLM) Complete(_ context.Context, _ []pipeline.ChatMessage, _ float64, _ int) (string, error) {
	return s.response, s.err
}
func (s *stubChatLLM) Close() error { return nil }

func newCategorizeRC(t *testing.T, llm pipeline.ChatLLM, text string) *pipeline.RunContext {
	t.Helper()
	resources := pipeline.NewResourceManager(pipeline.Factories{
		NewClassifierLLM: func() (pipeline.ChatLLM, error) {
			if llm == nil {
				return nil, nil
			}
			return llm, nil
		},
	}, nil)
	rc := pipeline.NewRunContext("run", t.TempDir(), "in.wav", resources)
	if text != "" {
		rc.Data[pipeline.DataSpeakerAttributed] = text
	}
	return rc
}

func TestCategorize_NoTextDefaultsToConversation(t *testing.T) {
	rc := newCategorizeRC(t, nil, "")
	c := &Categorize{}
	result := c.Run(context.Background(), rc)

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Message)
	}
	if rc.Data[pipeline.DataDocumentType] != pipeline.DocumentConversation {
		t.Errorf("document type = %v, want CONVERSATION", rc.Data[pipeline.DataDocumentType])
	}
}

func TestCategorize_NoLLMUsesHeuristic(t *testing.T) {
	rc := newCategorizeRC(t, nil, "Welcome to today's lecture. Please open your textbook to chapter 3, the exam covers this.")
	c := &Categorize{}
	result := c.Run(context.Background(), rc)

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Message)
	}
	if rc.Data[pipeline.DataDocumentType] != pipeline.DocumentLecture {
		t.Errorf("document type = %v, want LECTURE", rc.Data[pipeline.DataDocumentType])
	}
}

func TestCategorize_LLMLabelIsUsedWhenRecognized(t *testing.T) {
	llm := &stubChatLLM{response: "MEETING"}
	rc := newCategorizeRC(t, llm, "some transcript text")
	c := &Categorize{}
	result := c.Run(context.Background(), rc)

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Message)
	}
	if rc.Data[pipeline.DataDocumentType] != pipeline.DocumentMeeting {
		t.Errorf("document type = %v, want MEETING", rc.Data[pipeline.DataDocumentType])
	}
}

func TestCategorize_LLMFailureFallsBackToHeuristic(t *testing.T) {
	llm := &stubChatLLM{err: errors.New("inference error")}
	rc := newCategorizeRC(t, llm, "agenda items for this quarter's roadmap discussion")
	c := &Categorize{}
	result := c.Run(context.Background(), rc)

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Message)
	}
	if rc.Data[pipeline.DataDocumentType] != pipeline.DocumentMeeting {
		t.Errorf("document type = %v, want MEETING", rc.Data[pipeline.DataDocumentType])
	}
}

func TestCategorize_UnrecognizedLabelFallsBackToHeuristic(t *testing.T) {
	llm := &stubChatLLM{response: "banana"}
	rc := newCategorizeRC(t, llm, "hey lol yeah gonna kinda anyway")
	c := &Categorize{}
	result := c.Run(context.Background(), rc)

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Message)
	}
	if rc.Data[pipeline.DataDocumentType] != pipeline.DocumentConversation {
		t.Errorf("document type = %v, want CONVERSATION", rc.Data[pipeline.DataDocumentType])
	}
}

func TestCategorize_KoreanMeetingCuesUseHeuristic(t *testing.T) {
	rc := newCategorizeRC(t, nil, "오늘 회의록을 작성하겠습니다. 회의 시작하겠습니다.")
	c := &Categorize{}
	result := c.Run(context.Background(), rc)

	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.Message)
	}
	if rc.Data[pipeline.DataDocumentType] != pipeline.DocumentMeeting {
		t.Errorf("document type = %v, want MEETING", rc.Data[pipeline.DataDocumentType])
	}
}

func TestCategorize_PromptDirOverridesSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "categorize.txt"), []byte("custom classifier prompt"), 0o644); err != nil {
		t.Fatal(err)
	}
	var sentSystem string
	llm := &capturingChatLLM{onComplete: func(messages []pipeline.ChatMessage) {
		sentSystem = messages[0].Content
	}, response: "MEETING"}
	rc := newCategorizeRC(t, llm, "some transcript text")
	c := &Categorize{PromptDir: dir}
	c.Run(context.Background(), rc)

	if sentSystem != "custom classifier prompt" {
		t.Errorf("system prompt = %q, want the PromptDir override", sentSystem)
	}
}

func TestCategorize_PromptDirMissingFileFallsBackToDefault(t *testing.T) {
	var sentSystem string
	llm := &capturingChatLLM{onComplete: func(messages []pipeline.ChatMessage) {
		sentSystem = messages[0].Content
	}, response: "MEETING"}
	rc := newCategorizeRC(t, llm, "some transcript text")
	c := &Categorize{PromptDir: t.TempDir()}
	c.Run(context.Background(), rc)

	if sentSystem != defaultCategorizeSystemPrompt {
		t.Errorf("system prompt = %q, want the built-in default", sentSystem)
	}
}

type capturingChatLLM struct {
	onComplete func(messages []pipeline.ChatMessage)
	response   string
	err        error
}

func (c *capturingChatLLM) Complete(_ context.Context, messages []pipeline.ChatMessage, _ float64, _ int) (string, error) {
	c.onComplete(messages)
	return c.response, c.err
}
func (c *capturingChatLLM) Close() error { return nil }

func TestCategorize_ReleasesASRBeforeClassifying(t *testing.T) {
	closed := false
	resources := pipeline.NewResourceManager(pipeline.Factories{
		NewASR: func() (pipeline.ASR, error) {
			return &closeTrackingASR{closed: &closed}, nil
		},
		NewClassifierLLM: func() (pipeline.ChatLLM, error) {
			return &stubChatLLM{response: "MEETING"}, nil
		},
	}, nil)
	rc := pipeline.NewRunContext("run", t.TempDir(), "in.wav", resources)
	rc.Data[pipeline.DataSpeakerAttributed] = "agenda roadmap quarter"

	if _, err := resources.ASR(); err != nil {
		t.Fatalf("unexpected error priming ASR: %v", err)
	}

	c := &Categorize{}
	c.Run(context.Background(), rc)

	if !closed {
		t.Error("expected ASR to be released before classifying")
	}
}

type closeTrackingASR struct {
	closed *bool
}

func (c *closeTrackingASR) Transcribe(_ context.Context, _ string, _ string) ([]pipeline.TranscriptSegment, error) {
	return nil, nil
}
func (c *closeTrackingASR) Close() error {
	*c.closed = true
	return nil
}
