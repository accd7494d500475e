// Package openaitts adapts the OpenAI speech endpoint to core.Synthesizer.
package openaitts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/book-expert/voice-engine/internal/text"
)

const (
	formatMP3    = "mp3"
	defaultModel = "tts-1"
)

// DefaultVoices is the voice catalog used when none is configured.
var DefaultVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Config holds the adapter settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voices  []string
}

// Synthesizer calls the OpenAI audio speech API.
type Synthesizer struct {
	client openai.Client
	model  string
	voices []string
}

// New creates an OpenAI synthesizer with SDK retries disabled.
func New(cfg Config) *Synthesizer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(withTrailingSlash(cfg.BaseURL)))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	voices := cfg.Voices
	if len(voices) == 0 {
		voices = DefaultVoices
	}

	return &Synthesizer{
		client: openai.NewClient(opts...),
		model:  model,
		voices: voices,
	}
}

// Name returns core.BackendOpenAI.
func (s *Synthesizer) Name() core.Backend {
	return core.BackendOpenAI
}

// Voices returns the whole catalog; OpenAI voices are multilingual.
func (s *Synthesizer) Voices(_ string) []string {
	return append([]string(nil), s.voices...)
}

// Synthesize requests MP3 audio for text. Markup is stripped because the
// endpoint speaks tags literally.
func (s *Synthesizer) Synthesize(ctx context.Context, input string, voice core.VoiceConfig) (*core.AudioArtifact, error) {
	plain := text.StripMarkup(input)
	if strings.TrimSpace(plain) == "" {
		return nil, backend.NewError(core.BackendOpenAI, backend.KindInvalidResponse, "request rejected", backend.ErrTextEmpty)
	}

	params := openai.AudioSpeechNewParams{
		Input:          plain,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice.VoiceID),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}

	if voice.Speed > 0 {
		params.Speed = openai.Float(voice.Speed)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.FromTransport(core.BackendOpenAI, "failed to read audio", err)
	}

	if len(audio) == 0 {
		return nil, backend.NewError(core.BackendOpenAI, backend.KindInvalidResponse, "no audio in response", backend.ErrEmptyAudio)
	}

	return &core.AudioArtifact{
		Audio:    audio,
		Format:   formatMP3,
		Duration: backend.EstimateDuration(len(audio)),
		Backend:  core.BackendOpenAI,
		Metadata: map[string]string{
			"model": s.model,
			"voice": voice.VoiceID,
		},
	}, nil
}

func classify(err error) *backend.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		detail := fmt.Sprintf("speech request failed with status %d", apiErr.StatusCode)

		return backend.NewError(core.BackendOpenAI, backend.FromStatus(apiErr.StatusCode), detail, err)
	}

	return backend.FromTransport(core.BackendOpenAI, "speech request failed", err)
}

func withTrailingSlash(url string) string {
	if strings.HasSuffix(url, "/") {
		return url
	}

	return url + "/"
}
