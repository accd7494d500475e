// Package azuretts registers Azure Speech as a backend. Synthesis is not
// implemented; every call fails with backend.KindUnimplemented.
package azuretts

import (
	"context"
	"strings"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/core"
)

// DefaultVoices is the voice catalog used when none is configured.
var DefaultVoices = []string{"pt-BR-FranciscaNeural", "pt-BR-AntonioNeural"}

// Config holds the adapter settings.
type Config struct {
	APIKey string
	Region string
	Voices []string
}

// Synthesizer is the Azure placeholder backend.
type Synthesizer struct {
	region string
	voices []string
}

// New creates an Azure synthesizer.
func New(cfg Config) *Synthesizer {
	voices := cfg.Voices
	if len(voices) == 0 {
		voices = DefaultVoices
	}

	return &Synthesizer{
		region: cfg.Region,
		voices: voices,
	}
}

// Name returns core.BackendAzure.
func (s *Synthesizer) Name() core.Backend {
	return core.BackendAzure
}

// Voices returns the voices whose name contains language.
func (s *Synthesizer) Voices(language string) []string {
	matched := make([]string, 0, len(s.voices))
	for _, voice := range s.voices {
		if strings.Contains(voice, language) {
			matched = append(matched, voice)
		}
	}

	return matched
}

// Synthesize always fails with backend.KindUnimplemented.
func (s *Synthesizer) Synthesize(_ context.Context, _ string, _ core.VoiceConfig) (*core.AudioArtifact, error) {
	return nil, backend.NewError(core.BackendAzure, backend.KindUnimplemented,
		"azure speech synthesis is not implemented (region "+s.region+")", nil)
}
