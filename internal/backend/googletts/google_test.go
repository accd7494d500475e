package googletts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/backend/googletts"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
		Ssml string `json:"ssml"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
		SsmlGender   string `json:"ssmlGender"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
		VolumeGainDb  float64 `json:"volumeGainDb"`
	} `json:"audioConfig"`
}

type capturedRequest struct {
	path string
	key  string
	body synthesizeRequest
}

func newServer(t *testing.T, audio []byte) (*httptest.Server, chan capturedRequest) {
	t.Helper()

	requests := make(chan capturedRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body synthesizeRequest

		err := json.NewDecoder(r.Body).Decode(&body)
		assert.NoError(t, err)

		requests <- capturedRequest{path: r.URL.Path, key: r.URL.Query().Get("key"), body: body}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString(audio),
		})
	}))
	t.Cleanup(server.Close)

	return server, requests
}

func newSynthesizer(t *testing.T, serverURL string) *googletts.Synthesizer {
	t.Helper()

	synth, err := googletts.New(context.Background(), googletts.Config{
		APIKey:  "google-key",
		BaseURL: serverURL,
		Voices:  nil,
	})
	require.NoError(t, err)

	return synth
}

func TestSynthesize_PlainText(t *testing.T) {
	t.Parallel()

	audio := []byte("decoded mp3 bytes")
	server, requests := newServer(t, audio)

	voice := core.NewVoiceConfig(core.BackendGoogleCloud, "pt-BR-Wavenet-A")
	voice.Volume = 10

	artifact, err := newSynthesizer(t, server.URL).Synthesize(context.Background(), "Olá mundo", voice)
	require.NoError(t, err)

	captured := <-requests
	assert.Equal(t, "/v1/text:synthesize", captured.path)
	assert.Equal(t, "google-key", captured.key)
	assert.Equal(t, "Olá mundo", captured.body.Input.Text)
	assert.Empty(t, captured.body.Input.Ssml)
	assert.Equal(t, "pt-BR", captured.body.Voice.LanguageCode)
	assert.Equal(t, "pt-BR-Wavenet-A", captured.body.Voice.Name)
	assert.Equal(t, "NEUTRAL", captured.body.Voice.SsmlGender)
	assert.Equal(t, "MP3", captured.body.AudioConfig.AudioEncoding)
	assert.InDelta(t, 1.0, captured.body.AudioConfig.SpeakingRate, 1e-9)
	assert.InDelta(t, 16.0, captured.body.AudioConfig.VolumeGainDb, 1e-9)

	assert.Equal(t, audio, artifact.Audio)
	assert.Equal(t, "mp3", artifact.Format)
	assert.InDelta(t, float64(len(audio))/16000, artifact.Duration, 1e-9)
	assert.Equal(t, map[string]string{"voice": "pt-BR-Wavenet-A", "language": "pt-BR"}, artifact.Metadata)
}

func TestSynthesize_SSML(t *testing.T) {
	t.Parallel()

	server, requests := newServer(t, []byte("audio"))
	ssml := `<speak>Olá <break time="1s"/> mundo</speak>`

	voice := core.NewVoiceConfig(core.BackendGoogleCloud, "pt-BR-Wavenet-B")
	_, err := newSynthesizer(t, server.URL).Synthesize(context.Background(), ssml, voice)
	require.NoError(t, err)

	captured := <-requests
	assert.Equal(t, ssml, captured.body.Input.Ssml)
	assert.Empty(t, captured.body.Input.Text)
}

func TestSynthesize_SSMLDisabledStripsMarkup(t *testing.T) {
	t.Parallel()

	server, requests := newServer(t, []byte("audio"))

	voice := core.NewVoiceConfig(core.BackendGoogleCloud, "pt-BR-Wavenet-B")
	voice.EnableSSML = false

	_, err := newSynthesizer(t, server.URL).Synthesize(context.Background(), "<speak>Olá mundo</speak>", voice)
	require.NoError(t, err)

	captured := <-requests
	assert.Equal(t, "Olá mundo", captured.body.Input.Text)
	assert.Empty(t, captured.body.Input.Ssml)
}

func TestSynthesize_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	voice := core.NewVoiceConfig(core.BackendGoogleCloud, "pt-BR-Wavenet-A")
	_, err := newSynthesizer(t, server.URL).Synthesize(context.Background(), "Olá", voice)

	require.Error(t, err)
	assert.Equal(t, backend.KindAuthFailure, backend.KindOf(err))
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, nil)

	voice := core.NewVoiceConfig(core.BackendGoogleCloud, "pt-BR-Wavenet-A")
	_, err := newSynthesizer(t, server.URL).Synthesize(context.Background(), "Olá", voice)

	require.ErrorIs(t, err, backend.ErrEmptyAudio)
}

func TestVoices_PrefixMatch(t *testing.T) {
	t.Parallel()

	synth, err := googletts.New(context.Background(), googletts.Config{
		APIKey:  "google-key",
		BaseURL: "http://127.0.0.1:1",
		Voices:  []string{"pt-BR-Wavenet-A", "pt-PT-Wavenet-A", "en-US-Wavenet-A"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"pt-BR-Wavenet-A"}, synth.Voices("pt-BR"))
	assert.Equal(t, []string{"pt-BR-Wavenet-A", "pt-PT-Wavenet-A"}, synth.Voices("pt"))
	assert.Empty(t, synth.Voices("ja-JP"))
}
