package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcoder":     {"ffmpeg"},
	"asr":            {"whisper"},
	"diarizer":       {"http"},
	"classifier_llm": {"openai", "anthropic", "llamacpp"},
	"summarizer_llm": {"openai", "anthropic", "llamacpp"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Pipeline
	if cfg.Pipeline.SegmentLengthSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.segment_length_seconds must not be negative"))
	}
	if cfg.Pipeline.MaxConcurrentJobs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_concurrent_jobs must not be negative"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("transcoder", cfg.Providers.Transcoder.Name)
	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("diarizer", cfg.Providers.Diarizer.Name)
	validateProviderName("classifier_llm", cfg.Providers.ClassifierLLM.Name)
	validateProviderName("summarizer_llm", cfg.Providers.SummarizerLLM.Name)

	// Provider availability warnings — missing providers degrade gracefully
	// at runtime (the resource manager treats them as unavailable capabilities),
	// so these are warnings, not errors.
	if cfg.Providers.ASR.Name == "" {
		slog.Warn("no asr provider configured; transcription will produce empty chunks")
	}
	if cfg.Providers.ClassifierLLM.Name == "" {
		slog.Warn("no classifier_llm provider configured; document type will be chosen heuristically")
	}
	if cfg.Providers.SummarizerLLM.Name == "" {
		slog.Warn("no summarizer_llm provider configured; summaries will fall back to the raw transcript")
	}

	// Database availability
	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("database.postgres_dsn is required"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
