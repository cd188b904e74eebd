package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/quillmate/internal/analysis/consistency"
	"github.com/MrWong99/quillmate/internal/analysis/dialogue"
	"github.com/MrWong99/quillmate/internal/analysis/names"
	"github.com/MrWong99/quillmate/internal/analysis/repetition"
	"github.com/MrWong99/quillmate/internal/analyzer"
	"github.com/MrWong99/quillmate/internal/config"
	"github.com/MrWong99/quillmate/internal/correct"
	"github.com/MrWong99/quillmate/internal/correct/fallback"
	"github.com/MrWong99/quillmate/internal/correct/llmcorrect"
	"github.com/MrWong99/quillmate/internal/editorial"
	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/internal/registry"
	"github.com/MrWong99/quillmate/internal/registry/postgres"
	"github.com/MrWong99/quillmate/internal/registry/redisstore"
	"github.com/MrWong99/quillmate/internal/resilience"
	"github.com/MrWong99/quillmate/pkg/provider/llm"
	"github.com/MrWong99/quillmate/pkg/provider/llm/anyllm"
	"github.com/MrWong99/quillmate/pkg/provider/llm/openai"
)

// ── Providers ──────────────────────────────────────────────────────────────────

// registerBuiltinProviders registers a factory for every LLM vendor name
// accepted by the config loader.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if t := optString(entry.Options, "timeout"); t != "" {
			d, err := time.ParseDuration(t)
			if err != nil {
				return nil, fmt.Errorf("openai: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, vendor := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	// Ollama runs locally and takes no API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildLLM returns the configured language model, wrapped in a circuit
// breaking fallback group when a secondary model is configured. It returns
// nil when no model is configured.
func buildLLM(cfg config.ProvidersConfig, reg *config.Registry) (llm.Provider, error) {
	if !cfg.LLM.Configured() {
		slog.Info("no language model configured, using rule-based corrections only")
		return nil, nil
	}
	primary, err := reg.CreateLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm %q: %w", cfg.LLM.Name, err)
	}
	if !cfg.FallbackLLM.Configured() {
		return primary, nil
	}

	secondary, err := reg.CreateLLM(cfg.FallbackLLM)
	if err != nil {
		return nil, fmt.Errorf("fallback_llm %q: %w", cfg.FallbackLLM.Name, err)
	}
	group := resilience.NewLLMFallback(primary, cfg.LLM.Name, resilience.FallbackConfig{})
	group.AddFallback(cfg.FallbackLLM.Name, secondary)
	return group, nil
}

// ── Name registry ──────────────────────────────────────────────────────────────

// buildStore opens the configured registry backend. The returned close
// function is always non-nil.
func buildStore(ctx context.Context, cfg config.RegistryConfig, m *observe.Metrics) (registry.Store, func(), error) {
	switch cfg.Backend {
	case config.RegistryPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, func() {}, err
		}
		return registry.Instrument(s, string(cfg.Backend), m), s.Close, nil
	case config.RegistryRedis:
		var opts []redisstore.Option
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
		}
		s, err := redisstore.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err != nil {
			return nil, func() {}, err
		}
		closeFn := func() {
			if err := s.Close(); err != nil {
				slog.Warn("redis close error", "err", err)
			}
		}
		return registry.Instrument(s, string(cfg.Backend), m), closeFn, nil
	default:
		return registry.Instrument(registry.NewMemStore(), string(config.RegistryMemory), m), func() {}, nil
	}
}

// ── Analyzer ───────────────────────────────────────────────────────────────────

// buildAnalyzer assembles the detectors and correction pipeline from the
// analysis section. model may be nil.
func buildAnalyzer(cfg config.AnalysisConfig, model llm.Provider, m *observe.Metrics) (*analyzer.Analyzer, error) {
	tableOpts := []fallback.Option{fallback.WithConfidence(cfg.FallbackConfidence)}
	if cfg.TypoFile != "" {
		typos, err := fallback.LoadFile(cfg.TypoFile)
		if err != nil {
			return nil, err
		}
		tableOpts = append(tableOpts, fallback.WithTypos(typos))
	}

	corrOpts := []correct.Option{
		correct.WithTimeout(cfg.CorrectionTimeout),
		correct.WithMetrics(m),
	}
	if model != nil {
		corrOpts = append(corrOpts, correct.WithPrimary(llmcorrect.New(model)))
	}

	opts := []analyzer.Option{
		analyzer.WithRepetition(repetition.New(repetition.WithWindows(cfg.CommonWindow, cfg.UncommonWindow))),
		analyzer.WithDialogue(dialogue.New()),
		analyzer.WithNames(names.New(names.NewHeuristic(
			names.WithKnownPeople(cfg.KnownPeople...),
			names.WithKnownPlaces(cfg.KnownPlaces...),
		))),
		analyzer.WithConsistency(consistency.New(consistency.WithMinSimilarity(cfg.MinSimilarity))),
		analyzer.WithCorrector(correct.New(fallback.New(tableOpts...), corrOpts...)),
		analyzer.WithMetrics(m),
	}
	if model != nil {
		opts = append(opts, analyzer.WithEditor(editorial.New(model, editorial.WithTimeout(cfg.EditorialTimeout), editorial.WithMetrics(m)), analyzer.Features{
			Awkward:  cfg.AwkwardEnabled(),
			Feedback: cfg.FeedbackEnabled(),
		}))
	}
	return analyzer.New(opts...), nil
}

// ── Hot reload ─────────────────────────────────────────────────────────────────

// applyConfigChange applies the live-reloadable parts of a config change.
// Everything else is logged and takes effect on the next restart.
func applyConfigChange(d config.ConfigDiff, cfg *config.Config, level levelSetter, svc *analyzer.Service, model llm.Provider, m *observe.Metrics) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AnalysisChanged {
		a, err := buildAnalyzer(cfg.Analysis, model, m)
		if err != nil {
			slog.Error("config reload: keeping previous analyzer", "fields", d.AnalysisFields, "err", err)
		} else {
			svc.SetAnalyzer(a)
			slog.Info("analysis settings reloaded", "fields", d.AnalysisFields)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "fields", d.RestartRequired)
	}
}

// levelSetter is satisfied by *slog.LevelVar.
type levelSetter interface {
	Set(slog.Level)
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
