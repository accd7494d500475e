package engine

import "github.com/book-expert/voice-engine/internal/config"

// OptionsFromConfig maps the engine settings and feature flags to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BackendTimeout:   cfg.BackendTimeout(),
		StrictValidation: cfg.Features.StrictValidation,
		NormalizeText:    cfg.Features.NormalizeText,
		Deduplicate:      cfg.Features.DeduplicateRequests,
	}
}
