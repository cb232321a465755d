package config_test

import (
	"testing"

	"github.com/MrWong99/scrivener/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo},
		Pipeline: config.PipelineConfig{MaxConcurrentJobs: 2},
		Providers: config.ProvidersConfig{
			ClassifierLLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.MaxConcurrentChanged {
		t.Error("expected MaxConcurrentChanged=false for identical configs")
	}
	if d.ProvidersChanged {
		t.Error("expected ProvidersChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	n := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, n)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_MaxConcurrentJobsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Pipeline: config.PipelineConfig{MaxConcurrentJobs: 2}}
	n := &config.Config{Pipeline: config.PipelineConfig{MaxConcurrentJobs: 4}}

	d := config.Diff(old, n)
	if !d.MaxConcurrentChanged {
		t.Error("expected MaxConcurrentChanged=true")
	}
	if d.MaxConcurrentJobsOld != 2 || d.MaxConcurrentJobsNew != 4 {
		t.Errorf("old=%d new=%d, want 2 and 4", d.MaxConcurrentJobsOld, d.MaxConcurrentJobsNew)
	}
}

func TestDiff_ProviderChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{
			ClassifierLLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		},
	}
	n := &config.Config{
		Providers: config.ProvidersConfig{
			ClassifierLLM: config.ProviderEntry{Name: "anthropic", Model: "claude-3-5-sonnet"},
		},
	}

	d := config.Diff(old, n)
	if !d.ProvidersChanged {
		t.Error("expected ProvidersChanged=true")
	}
	found := false
	for _, kind := range d.ChangedProviderKinds {
		if kind == "classifier_llm" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected classifier_llm in ChangedProviderKinds, got %v", d.ChangedProviderKinds)
	}
}

func TestDiff_ProviderOptionsIgnored(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{
			Diarizer: config.ProviderEntry{Name: "http", Options: map[string]any{"timeout": 30}},
		},
	}
	n := &config.Config{
		Providers: config.ProvidersConfig{
			Diarizer: config.ProviderEntry{Name: "http", Options: map[string]any{"timeout": 60}},
		},
	}

	d := config.Diff(old, n)
	if d.ProvidersChanged {
		t.Error("expected ProvidersChanged=false when only Options differ")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			Transcoder: config.ProviderEntry{Name: "ffmpeg"},
			ASR:        config.ProviderEntry{Name: "whisper"},
		},
	}
	n := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		Providers: config.ProvidersConfig{
			Transcoder: config.ProviderEntry{Name: "ffmpeg"},
			ASR:        config.ProviderEntry{Name: "whisper", Model: "ggml-large.bin"},
		},
	}

	d := config.Diff(old, n)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.ProvidersChanged {
		t.Error("expected ProvidersChanged=true")
	}
	found := false
	for _, kind := range d.ChangedProviderKinds {
		if kind == "asr" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected asr in ChangedProviderKinds, got %v", d.ChangedProviderKinds)
	}
}
