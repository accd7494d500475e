// Package core defines the domain types and the capability interfaces shared by
// the voice engine, its backends, its cache, and its outer surfaces.
package core

import (
	"context"
	"errors"
	"maps"
)

// ErrObjectNotFound is returned by an ObjectStore when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Backend identifies a speech-synthesis backend.
type Backend string

// Known backends.
const (
	BackendOpenAI      Backend = "openai"
	BackendGoogleCloud Backend = "google_cloud"
	BackendAzure       Backend = "azure"
	BackendAmazonPolly Backend = "amazon_polly"
	BackendElevenLabs  Backend = "elevenlabs"
	// BackendLocal is a self-hosted TTS HTTP service.
	BackendLocal Backend = "local"
)

// Tier is the target audience of a piece of educational content.
type Tier string

// Audience tiers.
const (
	TierElementary Tier = "elementary"
	TierMiddle     Tier = "middle"
	TierHigh       Tier = "high"
	TierUniversity Tier = "university"
)

// Quality is the requested voice quality tier.
type Quality string

// Voice quality tiers.
const (
	QualityStandard Quality = "standard"
	QualityNeural   Quality = "neural"
	QualityPremium  Quality = "premium"
)

// Default voice parameters.
const (
	DefaultLanguage = "pt-BR"
	DefaultSpeed    = 1.0
	DefaultPitch    = 0.0
	DefaultVolume   = 1.0
)

// VoiceConfig holds the voice parameters of a synthesis request.
type VoiceConfig struct {
	Backend  Backend
	VoiceID  string
	Language string
	Quality  Quality
	Speed    float64
	Pitch    float64
	Volume   float64
	// EnableSSML turns on markup-aware synthesis for backends that accept SSML.
	EnableSSML bool
}

// NewVoiceConfig returns a VoiceConfig with the default language, quality,
// and prosody for the given backend and voice.
func NewVoiceConfig(backend Backend, voiceID string) VoiceConfig {
	return VoiceConfig{
		Backend:    backend,
		VoiceID:    voiceID,
		Language:   DefaultLanguage,
		Quality:    QualityNeural,
		Speed:      DefaultSpeed,
		Pitch:      DefaultPitch,
		Volume:     DefaultVolume,
		EnableSSML: true,
	}
}

// AudioArtifact is the result of one successful synthesis or cache hit.
type AudioArtifact struct {
	Audio  []byte
	Format string
	// Duration is an estimate in seconds derived from the byte length.
	Duration float64
	Backend  Backend
	Metadata map[string]string
}

// Clone returns a deep copy so that callers never share buffers.
func (a *AudioArtifact) Clone() *AudioArtifact {
	if a == nil {
		return nil
	}

	audio := make([]byte, len(a.Audio))
	copy(audio, a.Audio)

	return &AudioArtifact{
		Audio:    audio,
		Format:   a.Format,
		Duration: a.Duration,
		Backend:  a.Backend,
		Metadata: maps.Clone(a.Metadata),
	}
}

// Verdict is the outcome of a content validation.
type Verdict struct {
	Valid          bool
	AgeAppropriate bool
	Score          int
	Issues         []string
	Suggestions    []string
}

// ContentValidator screens text for a target audience.
type ContentValidator interface {
	Validate(text string, tier Tier) Verdict
}

// Synthesizer is the uniform capability every backend adapter provides.
type Synthesizer interface {
	// Name returns the backend identifier.
	Name() Backend
	// Synthesize converts text to audio or fails with a *backend.Error.
	Synthesize(ctx context.Context, text string, voice VoiceConfig) (*AudioArtifact, error)
	// Voices returns the backend's voice ids usable for the given language.
	Voices(language string) []string
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
