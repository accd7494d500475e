package localtts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/backend/localtts"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudioData = "fake-wav-data"

func newClient(baseURL string) *localtts.Client {
	return localtts.New(localtts.Config{
		BaseURL: baseURL,
		APIKey:  "",
		Voices:  nil,
		Timeout: 5 * time.Second,
	})
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	requests := make(chan localtts.Request, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/generate/speech", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "audio/wav", r.Header.Get("Accept"))

		var req localtts.Request

		err := json.NewDecoder(r.Body).Decode(&req)
		assert.NoError(t, err)

		requests <- req

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte(testAudioData))
	}))
	defer server.Close()

	voice := core.NewVoiceConfig(core.BackendLocal, "default")

	artifact, err := newClient(server.URL+"/").Synthesize(context.Background(), "Olá mundo", voice)
	require.NoError(t, err)

	received := <-requests
	assert.Equal(t, "Olá mundo", received.Text)
	assert.Equal(t, "pt-BR", received.Language)
	assert.Equal(t, "default", received.Voice)

	assert.Equal(t, []byte(testAudioData), artifact.Audio)
	assert.Equal(t, "wav", artifact.Format)
	assert.Equal(t, core.BackendLocal, artifact.Backend)
	assert.Positive(t, artifact.Duration)
}

func TestSynthesize_StructuredError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"text too long","error_code":"TEXT_TOO_LONG"}`))
	}))
	defer server.Close()

	voice := core.NewVoiceConfig(core.BackendLocal, "default")
	_, err := newClient(server.URL).Synthesize(context.Background(), "Olá", voice)

	require.Error(t, err)
	assert.Equal(t, backend.KindInvalidResponse, backend.KindOf(err))
	assert.Contains(t, err.Error(), "text too long (code: TEXT_TOO_LONG)")
}

func TestSynthesize_LargeErrorBodyIsTruncated(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 1<<20)))
	}))
	defer server.Close()

	voice := core.NewVoiceConfig(core.BackendLocal, "default")
	_, err := newClient(server.URL).Synthesize(context.Background(), "Olá", voice)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "xxxx")
	assert.Less(t, len(err.Error()), 8<<10)
}

func TestSynthesize_RawErrorBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	voice := core.NewVoiceConfig(core.BackendLocal, "default")
	_, err := newClient(server.URL).Synthesize(context.Background(), "Olá", voice)

	require.Error(t, err)
	assert.Equal(t, backend.KindTransportError, backend.KindOf(err))
	assert.Contains(t, err.Error(), "overloaded")
}

func TestSynthesize_WrongContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	voice := core.NewVoiceConfig(core.BackendLocal, "default")
	_, err := newClient(server.URL).Synthesize(context.Background(), "Olá", voice)

	require.Error(t, err)
	assert.Equal(t, backend.KindInvalidResponse, backend.KindOf(err))
}

func TestSynthesize_ContextDeadlineIsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	voice := core.NewVoiceConfig(core.BackendLocal, "default")
	_, err := newClient(server.URL).Synthesize(ctx, "Olá", voice)

	require.Error(t, err)
	assert.Equal(t, backend.KindTimeout, backend.KindOf(err))
}

func TestSynthesize_EmptyTextRejected(t *testing.T) {
	t.Parallel()

	voice := core.NewVoiceConfig(core.BackendLocal, "default")
	_, err := newClient("http://127.0.0.1:1").Synthesize(context.Background(), "<p> </p>", voice)

	require.ErrorIs(t, err, backend.ErrTextEmpty)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	require.NoError(t, newClient(healthy.URL).HealthCheck(context.Background()))
	require.ErrorIs(t, newClient(unhealthy.URL).HealthCheck(context.Background()), localtts.ErrUnhealthy)
}
