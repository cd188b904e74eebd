package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AnalysisChanged is true when any analysis setting changed. The changed
	// YAML keys are listed in AnalysisFields.
	AnalysisChanged bool
	AnalysisFields  []string

	// RestartRequired lists the changed sections that are only read at
	// startup (server.listen_addr, server.tls, providers, registry).
	RestartRequired []string
}

// IsZero reports whether no watched setting changed.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.AnalysisChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.AnalysisFields = diffAnalysis(&old.Analysis, &new.Analysis)
	d.AnalysisChanged = len(d.AnalysisFields) > 0

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !sameProvider(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if !sameProvider(old.Providers.FallbackLLM, new.Providers.FallbackLLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.fallback_llm")
	}
	if old.Registry != new.Registry {
		d.RestartRequired = append(d.RestartRequired, "registry")
	}
	return d
}

func diffAnalysis(old, new *AnalysisConfig) []string {
	var fields []string
	changed := func(key string, eq bool) {
		if !eq {
			fields = append(fields, key)
		}
	}
	changed("common_window", old.CommonWindow == new.CommonWindow)
	changed("uncommon_window", old.UncommonWindow == new.UncommonWindow)
	changed("correction_timeout", old.CorrectionTimeout == new.CorrectionTimeout)
	changed("editorial_timeout", old.EditorialTimeout == new.EditorialTimeout)
	changed("fallback_confidence", old.FallbackConfidence == new.FallbackConfidence)
	changed("typo_file", old.TypoFile == new.TypoFile)
	changed("min_similarity", old.MinSimilarity == new.MinSimilarity)
	changed("known_people", slices.Equal(old.KnownPeople, new.KnownPeople))
	changed("known_places", slices.Equal(old.KnownPlaces, new.KnownPlaces))
	changed("awkward_phrasing", old.AwkwardEnabled() == new.AwkwardEnabled())
	changed("feedback", old.FeedbackEnabled() == new.FeedbackEnabled())
	return fields
}

func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && reflect.DeepEqual(a.Options, b.Options)
}
