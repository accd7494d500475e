// Package registry maps backend identifiers to synthesizers. A Registry is
// built once at startup and never changes afterwards.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/backend/azuretts"
	"github.com/book-expert/voice-engine/internal/backend/googletts"
	"github.com/book-expert/voice-engine/internal/backend/localtts"
	"github.com/book-expert/voice-engine/internal/backend/openaitts"
	"github.com/book-expert/voice-engine/internal/config"
	"github.com/book-expert/voice-engine/internal/core"
)

const healthCheckTimeout = 5 * time.Second

// ErrDuplicateBackend indicates two synthesizers with the same name.
var ErrDuplicateBackend = errors.New("backend registered twice")

// Registry is safe for concurrent reads.
type Registry struct {
	backends  map[core.Backend]core.Synthesizer
	order     []core.Backend
	primary   core.Backend
	fallbacks []core.Backend
}

// New registers synths under their names. primary and fallbacks form the
// default preference order.
func New(primary core.Backend, fallbacks []core.Backend, synths ...core.Synthesizer) (*Registry, error) {
	registry := &Registry{
		backends:  make(map[core.Backend]core.Synthesizer, len(synths)),
		order:     make([]core.Backend, 0, len(synths)),
		primary:   primary,
		fallbacks: slices.Clone(fallbacks),
	}

	for _, synth := range synths {
		name := synth.Name()
		if _, exists := registry.backends[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBackend, name)
		}

		registry.backends[name] = synth
		registry.order = append(registry.order, name)
	}

	return registry, nil
}

// Get returns the synthesizer registered under name.
func (r *Registry) Get(name core.Backend) (core.Synthesizer, bool) {
	synth, ok := r.backends[name]

	return synth, ok
}

// Backends returns the registered names in registration order.
func (r *Registry) Backends() []core.Backend {
	return slices.Clone(r.order)
}

// Candidates returns the attempt order: preferred followed by fallbacks,
// without duplicates and without unregistered names. An empty preferred and
// nil fallbacks select the registry defaults.
func (r *Registry) Candidates(preferred core.Backend, fallbacks []core.Backend) []core.Backend {
	if preferred == "" {
		preferred = r.primary
	}

	if fallbacks == nil {
		fallbacks = r.fallbacks
	}

	candidates := make([]core.Backend, 0, 1+len(fallbacks))
	for _, name := range append([]core.Backend{preferred}, fallbacks...) {
		if _, ok := r.backends[name]; !ok || slices.Contains(candidates, name) {
			continue
		}

		candidates = append(candidates, name)
	}

	return candidates
}

// FromConfig builds the synthesizers whose credentials are present. A backend
// without credentials is left out and therefore skipped by Candidates.
func FromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Registry, error) {
	var synths []core.Synthesizer

	backends := cfg.Backends
	timeout := cfg.BackendTimeout()

	if backends.OpenAI.APIKey != "" {
		synth := openaitts.New(openaitts.Config{
			APIKey:  backends.OpenAI.APIKey,
			BaseURL: backends.OpenAI.BaseURL,
			Model:   backends.OpenAI.Model,
			Voices:  backends.OpenAI.Voices,
		})
		synths = append(synths, backend.WithRateLimit(synth, backends.OpenAI.RequestsPerMinute))
	}

	if backends.GoogleCloud.APIKey != "" {
		synth, err := googletts.New(ctx, googletts.Config{
			APIKey:  backends.GoogleCloud.APIKey,
			BaseURL: backends.GoogleCloud.BaseURL,
			Voices:  backends.GoogleCloud.Voices,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure google_cloud backend: %w", err)
		}

		synths = append(synths, backend.WithRateLimit(synth, backends.GoogleCloud.RequestsPerMinute))
	}

	if backends.Azure.APIKey != "" {
		synths = append(synths, azuretts.New(azuretts.Config{
			APIKey: backends.Azure.APIKey,
			Region: backends.Azure.Region,
			Voices: backends.Azure.Voices,
		}))
	}

	if backends.Local.BaseURL != "" {
		synth := localtts.New(localtts.Config{
			BaseURL: backends.Local.BaseURL,
			APIKey:  backends.Local.APIKey,
			Voices:  backends.Local.Voices,
			Timeout: timeout,
		})

		checkLocalHealth(ctx, synth, log)

		synths = append(synths, backend.WithRateLimit(synth, backends.Local.RequestsPerMinute))
	}

	registry, err := New(core.Backend(cfg.Engine.PrimaryBackend), cfg.FallbackOrder(), synths...)
	if err != nil {
		return nil, err
	}

	if len(synths) == 0 {
		log.Warn("No synthesis backend has credentials; every generation will fail")
	}

	for _, name := range registry.Backends() {
		log.Info("Registered synthesis backend: %s", name)
	}

	return registry, nil
}

// checkLocalHealth warns when the local service is down. The backend stays
// registered; it may come up later.
func checkLocalHealth(ctx context.Context, client *localtts.Client, log *logger.Logger) {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err := client.HealthCheck(healthCtx)
	if err != nil {
		log.Warn("Local TTS service is not healthy yet: %v", err)
	}
}
