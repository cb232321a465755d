// Command scrivener is the main entry point for the recording ingestion
// and summarization pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/scrivener/internal/capability"
	"github.com/MrWong99/scrivener/internal/config"
	"github.com/MrWong99/scrivener/internal/health"
	"github.com/MrWong99/scrivener/internal/job"
	"github.com/MrWong99/scrivener/internal/jobstore/postgres"
	"github.com/MrWong99/scrivener/internal/observe"
	"github.com/MrWong99/scrivener/internal/pipeline"
	"github.com/MrWong99/scrivener/internal/providers/anyllm"
	"github.com/MrWong99/scrivener/internal/providers/ffmpegtranscoder"
	"github.com/MrWong99/scrivener/internal/providers/httpdiarizer"
	"github.com/MrWong99/scrivener/internal/providers/openaillm"
	"github.com/MrWong99/scrivener/internal/providers/whisperasr"
	"github.com/MrWong99/scrivener/internal/resilience"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "scrivener: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "scrivener: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("scrivener starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "scrivener"})
	if err != nil {
		slog.Error("failed to initialize observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("observability provider shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		return 1
	}
	defer pool.Close()

	store := postgres.New(pool)
	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to migrate job store", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	transcoder, err := reg.CreateTranscoder(cfg.Providers.Transcoder)
	if err != nil {
		slog.Error("failed to build transcoder", "err", err)
		return 1
	}

	newResources := func() *pipeline.ResourceManager {
		return pipeline.NewResourceManager(pipeline.Factories{
			NewASR:           asrFactory(reg, cfg.Providers.ASR),
			NewDiarizer:      diarizerFactory(reg, cfg.Providers.Diarizer),
			NewClassifierLLM: classifierFactory(reg, cfg.Providers.ClassifierLLM, cfg.Providers.ClassifierLLMFallback),
			NewSummarizerLLM: summarizerFactory(reg, cfg.Providers.SummarizerLLM, cfg.Providers.SummarizerLLMFallback),
		}, logger)
	}

	stageList := job.DefaultStageList(transcoder, cfg.Pipeline.SysPromptDir, "", logger)
	persister := pipeline.NewFilePersister(logger)

	maxConcurrent := cfg.Pipeline.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	coordinator := job.NewCoordinator(store, persister, newResources, stageList, cfg.Pipeline.OutputRoot, maxConcurrent, logger).WithMetrics(metrics)

	httpHandler := health.New(health.Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})

	mux := http.NewServeMux()
	httpHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	server := &http.Server{Addr: listenAddr, Handler: observe.Middleware(metrics)(mux)}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("health server listening", "addr", listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	// The coordinator processes jobs submitted via Submit(ctx, jobID) from an
	// external enqueue path (upload API, CLI subcommand, queue consumer); this
	// entrypoint wires it up and keeps it alive for the process lifetime.
	slog.Info("job coordinator ready", "max_concurrent_jobs", maxConcurrent)
	_ = coordinator

	slog.Info("scrivener ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			slog.Error("health server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

var builtinProviders = map[string][]string{
	"transcoder":     {"ffmpeg"},
	"asr":            {"whisper"},
	"diarizer":       {"http"},
	"classifier_llm": {"openai", "anthropic", "llamacpp"},
	"summarizer_llm": {"openai", "anthropic", "llamacpp"},
}

func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTranscoder("ffmpeg", func(_ config.ProviderEntry) (capability.Transcoder, error) {
		return ffmpegtranscoder.New(), nil
	})

	reg.RegisterASR("whisper", func(e config.ProviderEntry) (pipeline.ASR, error) {
		return whisperasr.New(e.Model)
	})

	reg.RegisterDiarizer("http", func(e config.ProviderEntry) (pipeline.Diarizer, error) {
		return httpdiarizer.New(e.BaseURL, 2*time.Minute)
	})

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (pipeline.ChatLLM, error) {
		return openaillm.New(e.APIKey, e.Model, openaillm.WithBaseURL(e.BaseURL))
	})
	reg.RegisterLLM("anthropic", func(e config.ProviderEntry) (pipeline.ChatLLM, error) {
		return anyllm.New("anthropic", e.Model)
	})
	reg.RegisterLLM("llamacpp", func(e config.ProviderEntry) (pipeline.ChatLLM, error) {
		p, err := anyllm.New("llamacpp", e.Model)
		if err != nil {
			return nil, err
		}
		gpuLayers := pipeline.GPULayers()
		slog.Info("llamacpp provider configured", "model", e.Model, "gpu_layers", gpuLayers)
		return p.WithGPULayers(gpuLayers), nil
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// asrFactory wraps the configured ASR adapter in a [resilience.ASRFallback]
// so repeated transcription failures trip a circuit breaker and fail fast
// instead of retrying a wedged backend on every chunk.
func asrFactory(reg *config.Registry, entry config.ProviderEntry) func() (pipeline.ASR, error) {
	if entry.Name == "" {
		return nil
	}
	return func() (pipeline.ASR, error) {
		primary, err := reg.CreateASR(entry)
		if err != nil {
			return nil, err
		}
		return resilience.NewASRFallback(primary, entry.Name, resilience.FallbackConfig{}), nil
	}
}

func diarizerFactory(reg *config.Registry, entry config.ProviderEntry) func() (pipeline.Diarizer, error) {
	if entry.Name == "" {
		return nil
	}
	return func() (pipeline.Diarizer, error) { return reg.CreateDiarizer(entry) }
}

// classifierFactory wraps the configured classifier LLM in a
// [resilience.LLMFallback]. When a second backend is configured in
// cfg.Providers.ClassifierLLMFallback, it's registered as an automatic
// fallback, tried whenever the primary call fails or the primary's circuit
// breaker is open.
func classifierFactory(reg *config.Registry, entry, fallbackEntry config.ProviderEntry) func() (pipeline.ChatLLM, error) {
	if entry.Name == "" {
		return nil
	}
	return func() (pipeline.ChatLLM, error) {
		primary, err := reg.CreateClassifierLLM(entry)
		if err != nil {
			return nil, err
		}
		group := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
		if fallbackEntry.Name != "" {
			fallback, ferr := reg.CreateClassifierLLM(fallbackEntry)
			if ferr != nil {
				return nil, ferr
			}
			group.AddFallback(fallbackEntry.Name, fallback)
		}
		return group, nil
	}
}

// summarizerFactory is classifierFactory's counterpart for the refine
// stage's summarizer LLM.
func summarizerFactory(reg *config.Registry, entry, fallbackEntry config.ProviderEntry) func() (pipeline.ChatLLM, error) {
	if entry.Name == "" {
		return nil
	}
	return func() (pipeline.ChatLLM, error) {
		primary, err := reg.CreateSummarizerLLM(entry)
		if err != nil {
			return nil, err
		}
		group := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
		if fallbackEntry.Name != "" {
			fallback, ferr := reg.CreateSummarizerLLM(fallbackEntry)
			if ferr != nil {
				return nil, ferr
			}
			group.AddFallback(fallbackEntry.Name, fallback)
		}
		return group, nil
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
