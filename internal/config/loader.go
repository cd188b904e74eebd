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
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields of cfg with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = RegistryMemory
	}

	a := &cfg.Analysis
	if a.CommonWindow == 0 {
		a.CommonWindow = DefaultCommonWindow
	}
	if a.UncommonWindow == 0 {
		a.UncommonWindow = max(DefaultUncommonWindow, a.CommonWindow)
	}
	if a.CorrectionTimeout == 0 {
		a.CorrectionTimeout = DefaultCorrectionTimeout
	}
	if a.EditorialTimeout == 0 {
		a.EditorialTimeout = a.CorrectionTimeout
	}
	if a.FallbackConfidence == 0 {
		a.FallbackConfidence = DefaultFallbackConfidence
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.FallbackLLM.Name)
	if cfg.Providers.FallbackLLM.Configured() && !cfg.Providers.LLM.Configured() {
		errs = append(errs, errors.New("providers.fallback_llm requires providers.llm"))
	}
	for _, p := range []struct {
		key   string
		entry ProviderEntry
	}{
		{"providers.llm", cfg.Providers.LLM},
		{"providers.fallback_llm", cfg.Providers.FallbackLLM},
	} {
		if p.entry.Configured() && p.entry.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required when a provider is named", p.key))
		}
	}
	if !cfg.Providers.LLM.Configured() {
		slog.Warn("providers.llm is not configured; corrections will use the typo table and editorial passes are disabled")
	}

	// Analysis
	errs = append(errs, validateAnalysis(&cfg.Analysis)...)

	// Registry
	switch cfg.Registry.Backend {
	case "", RegistryMemory:
		slog.Warn("registry.backend is memory; name registries are lost on restart")
	case RegistryPostgres:
		if cfg.Registry.PostgresDSN == "" {
			errs = append(errs, errors.New("registry.postgres_dsn is required when backend is postgres"))
		}
	case RegistryRedis:
		if cfg.Registry.Redis.Addr == "" {
			errs = append(errs, errors.New("registry.redis.addr is required when backend is redis"))
		}
		if cfg.Registry.Redis.DB < 0 {
			errs = append(errs, fmt.Errorf("registry.redis.db %d must not be negative", cfg.Registry.Redis.DB))
		}
	default:
		errs = append(errs, fmt.Errorf("registry.backend %q is invalid; valid values: memory, postgres, redis", cfg.Registry.Backend))
	}

	return errors.Join(errs...)
}

func validateAnalysis(a *AnalysisConfig) []error {
	var errs []error
	if a.CommonWindow < 0 {
		errs = append(errs, fmt.Errorf("analysis.common_window %d must be positive", a.CommonWindow))
	}
	if a.UncommonWindow < 0 {
		errs = append(errs, fmt.Errorf("analysis.uncommon_window %d must be positive", a.UncommonWindow))
	}
	if a.UncommonWindow < a.CommonWindow {
		errs = append(errs, fmt.Errorf("analysis.uncommon_window %d must not be smaller than common_window %d", a.UncommonWindow, a.CommonWindow))
	}
	if a.CorrectionTimeout < 0 {
		errs = append(errs, fmt.Errorf("analysis.correction_timeout %s must not be negative", a.CorrectionTimeout))
	}
	if a.EditorialTimeout < 0 {
		errs = append(errs, fmt.Errorf("analysis.editorial_timeout %s must not be negative", a.EditorialTimeout))
	}
	if a.FallbackConfidence < 0 || a.FallbackConfidence > 1 {
		errs = append(errs, fmt.Errorf("analysis.fallback_confidence %.2f is out of range (0, 1]", a.FallbackConfidence))
	}
	if a.MinSimilarity != 0 && (a.MinSimilarity <= 0 || a.MinSimilarity >= 1) {
		errs = append(errs, fmt.Errorf("analysis.min_similarity %.2f is out of range (0, 1)", a.MinSimilarity))
	}
	return errs
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
