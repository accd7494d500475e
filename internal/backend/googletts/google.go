// Package googletts adapts Google Cloud Text-to-Speech to core.Synthesizer.
package googletts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/book-expert/voice-engine/internal/text"
)

const (
	formatMP3     = "mp3"
	encodingMP3   = "MP3"
	genderNeutral = "NEUTRAL"
	// Volume gain limits accepted by the API, in dB.
	minVolumeGainDB = -96.0
	maxVolumeGainDB = 16.0
)

// DefaultVoices is the voice catalog used when none is configured.
var DefaultVoices = []string{"pt-BR-Wavenet-A", "pt-BR-Wavenet-B", "pt-BR-Wavenet-C", "pt-BR-Wavenet-D"}

// Config holds the adapter settings.
type Config struct {
	APIKey  string
	BaseURL string
	Voices  []string
}

// Synthesizer calls the text:synthesize method.
type Synthesizer struct {
	service *texttospeech.Service
	voices  []string
}

// New creates a Google Cloud synthesizer authenticated by API key.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}

	if cfg.BaseURL != "" {
		endpoint := cfg.BaseURL
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}

		opts = append(opts, option.WithEndpoint(endpoint))
	}

	service, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create texttospeech service: %w", err)
	}

	voices := cfg.Voices
	if len(voices) == 0 {
		voices = DefaultVoices
	}

	return &Synthesizer{
		service: service,
		voices:  voices,
	}, nil
}

// Name returns core.BackendGoogleCloud.
func (s *Synthesizer) Name() core.Backend {
	return core.BackendGoogleCloud
}

// Voices returns the voices whose name starts with language.
func (s *Synthesizer) Voices(language string) []string {
	matched := make([]string, 0, len(s.voices))
	for _, voice := range s.voices {
		if strings.HasPrefix(voice, language) {
			matched = append(matched, voice)
		}
	}

	return matched
}

// Synthesize sends text, or SSML when markup is enabled and the text is a
// <speak> document, and returns the decoded MP3 audio.
func (s *Synthesizer) Synthesize(ctx context.Context, input string, voice core.VoiceConfig) (*core.AudioArtifact, error) {
	request := &texttospeech.SynthesizeSpeechRequest{
		Input: synthesisInput(input, voice.EnableSSML),
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: voice.Language,
			Name:         voice.VoiceID,
			SsmlGender:   genderNeutral,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: encodingMP3,
			SpeakingRate:  voice.Speed,
			Pitch:         voice.Pitch,
			VolumeGainDb:  volumeGainDB(voice.Volume),
		},
	}

	response, err := s.service.Text.Synthesize(request).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	audio, err := base64.StdEncoding.DecodeString(response.AudioContent)
	if err != nil {
		return nil, backend.NewError(core.BackendGoogleCloud, backend.KindInvalidResponse, "audio content is not base64", err)
	}

	if len(audio) == 0 {
		return nil, backend.NewError(core.BackendGoogleCloud, backend.KindInvalidResponse, "no audio in response", backend.ErrEmptyAudio)
	}

	return &core.AudioArtifact{
		Audio:    audio,
		Format:   formatMP3,
		Duration: backend.EstimateDuration(len(audio)),
		Backend:  core.BackendGoogleCloud,
		Metadata: map[string]string{
			"voice":    voice.VoiceID,
			"language": voice.Language,
		},
	}, nil
}

func synthesisInput(input string, enableSSML bool) *texttospeech.SynthesisInput {
	if enableSSML && text.IsSSML(input) {
		return &texttospeech.SynthesisInput{Ssml: strings.TrimSpace(input)}
	}

	return &texttospeech.SynthesisInput{Text: text.StripMarkup(input)}
}

// volumeGainDB converts a linear volume scalar to decibels. A non-positive
// scalar leaves the gain at 0.
func volumeGainDB(volume float64) float64 {
	if volume <= 0 {
		return 0
	}

	gain := 20 * math.Log10(volume)

	return math.Max(minVolumeGainDB, math.Min(maxVolumeGainDB, gain))
}

func classify(err error) *backend.Error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		detail := fmt.Sprintf("synthesize failed with status %d", apiErr.Code)

		return backend.NewError(core.BackendGoogleCloud, backend.FromStatus(apiErr.Code), detail, err)
	}

	return backend.FromTransport(core.BackendGoogleCloud, "synthesize failed", err)
}
