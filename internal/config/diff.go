package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked — provider
// selection requires reconstructing the resource manager, so it is
// reported but never applied in place.
type ConfigDiff struct {
	LogLevelChanged       bool
	NewLogLevel           LogLevel
	MaxConcurrentJobsOld  int
	MaxConcurrentJobsNew  int
	MaxConcurrentChanged  bool
	ProvidersChanged      bool
	ChangedProviderKinds  []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline.MaxConcurrentJobs != new.Pipeline.MaxConcurrentJobs {
		d.MaxConcurrentChanged = true
		d.MaxConcurrentJobsOld = old.Pipeline.MaxConcurrentJobs
		d.MaxConcurrentJobsNew = new.Pipeline.MaxConcurrentJobs
	}

	for kind, changed := range map[string]bool{
		"transcoder":     !providerEntryEqual(old.Providers.Transcoder, new.Providers.Transcoder),
		"asr":            !providerEntryEqual(old.Providers.ASR, new.Providers.ASR),
		"diarizer":       !providerEntryEqual(old.Providers.Diarizer, new.Providers.Diarizer),
		"classifier_llm":          !providerEntryEqual(old.Providers.ClassifierLLM, new.Providers.ClassifierLLM),
		"summarizer_llm":          !providerEntryEqual(old.Providers.SummarizerLLM, new.Providers.SummarizerLLM),
		"classifier_llm_fallback": !providerEntryEqual(old.Providers.ClassifierLLMFallback, new.Providers.ClassifierLLMFallback),
		"summarizer_llm_fallback": !providerEntryEqual(old.Providers.SummarizerLLMFallback, new.Providers.SummarizerLLMFallback),
	} {
		if changed {
			d.ProvidersChanged = true
			d.ChangedProviderKinds = append(d.ChangedProviderKinds, kind)
		}
	}

	return d
}

// providerEntryEqual compares two ProviderEntry values. The Options map
// makes ProviderEntry non-comparable with ==, so this walks the fields
// that matter for deciding whether a provider needs to be rebuilt.
func providerEntryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
