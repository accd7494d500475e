// Package localtts adapts a self-hosted TTS HTTP service to core.Synthesizer.
//
// The service accepts POST /v1/generate/speech with a JSON body and answers
// with WAV audio, or with a structured JSON error on failure.
package localtts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/book-expert/voice-engine/internal/text"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	contentTypeWAV      = "audio/wav"
	formatWAV           = "wav"
)

// maxErrorBodyBytes caps how much of an error response is read.
const maxErrorBodyBytes = 4 << 10

// Error messages.
const (
	errFmtUnexpectedContentType = "unexpected content type: expected audio/wav, got %s"
	errFmtServiceErrorWithCode  = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus    = "TTS service returned non-OK status: %s, body: %s"
)

// ErrUnhealthy indicates that the health endpoint did not answer 200.
var ErrUnhealthy = errors.New("tts service is unhealthy")

// DefaultVoices is the voice catalog used when none is configured.
var DefaultVoices = []string{"default"}

// Config holds the adapter settings.
type Config struct {
	BaseURL string
	APIKey  string
	Voices  []string
	// Timeout bounds each HTTP request in addition to the caller's context.
	Timeout time.Duration
}

// Client is a core.Synthesizer backed by the standalone TTS HTTP service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voices     []string
}

// Request defines the JSON payload of a generation request.
type Request struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Voice    string  `json:"voice,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// ErrorResponse represents a structured error response from the TTS service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// New creates a client for the TTS service at cfg.BaseURL, for example
// "http://localhost:8000".
func New(cfg Config) *Client {
	voices := cfg.Voices
	if len(voices) == 0 {
		voices = DefaultVoices
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		voices:  voices,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns core.BackendLocal.
func (c *Client) Name() core.Backend {
	return core.BackendLocal
}

// Voices returns the configured catalog for every language.
func (c *Client) Voices(_ string) []string {
	return append([]string(nil), c.voices...)
}

// Synthesize sends a generation request and returns the WAV audio.
func (c *Client) Synthesize(ctx context.Context, input string, voice core.VoiceConfig) (*core.AudioArtifact, error) {
	plain := text.StripMarkup(input)
	if strings.TrimSpace(plain) == "" {
		return nil, backend.NewError(core.BackendLocal, backend.KindInvalidResponse, "request rejected", backend.ErrTextEmpty)
	}

	requestBody, err := json.Marshal(Request{
		Text:     plain,
		Language: voice.Language,
		Voice:    voice.VoiceID,
		Speed:    voice.Speed,
	})
	if err != nil {
		return nil, backend.NewError(core.BackendLocal, backend.KindInvalidResponse, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiGenerateSpeech, bytes.NewReader(requestBody))
	if err != nil {
		return nil, backend.FromTransport(core.BackendLocal, "failed to create request", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	if c.apiKey != "" {
		httpReq.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, backend.FromTransport(core.BackendLocal,
			fmt.Sprintf("failed to send request to TTS service at %s", c.baseURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backend.NewError(core.BackendLocal, backend.FromStatus(resp.StatusCode), parseErrorResponse(resp), nil)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType != contentTypeWAV {
		return nil, backend.NewError(core.BackendLocal, backend.KindInvalidResponse,
			fmt.Sprintf(errFmtUnexpectedContentType, resp.Header.Get(headerContentType)), nil)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.FromTransport(core.BackendLocal, "failed to read audio data", err)
	}

	if len(audio) == 0 {
		return nil, backend.NewError(core.BackendLocal, backend.KindInvalidResponse, "no audio in response", backend.ErrEmptyAudio)
	}

	return &core.AudioArtifact{
		Audio:    audio,
		Format:   formatWAV,
		Duration: backend.EstimateDuration(len(audio)),
		Backend:  core.BackendLocal,
		Metadata: map[string]string{
			"voice":    voice.VoiceID,
			"endpoint": c.baseURL,
		},
	}, nil
}

// HealthCheck verifies that the TTS service is running and operational.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrUnhealthy, resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Sprintf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Sprintf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
