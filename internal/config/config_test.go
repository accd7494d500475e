// Package config_test tests the configuration loading for the voice engine.
package config_test

import (
	"testing"
	"time"

	"github.com/book-expert/voice-engine/internal/config"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]

		return value, ok
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[nats]
url = "nats://127.0.0.1:4222"
text_processed_subject = "text.processed"
audio_chunk_created_subject = "audio.chunk.created"
object_store_bucket = "AUDIO_FILES"
audit_subject = "voice.audit"

[engine]
primary_backend = "google_cloud"
fallback_backends = ["openai", "local"]
cache_dir = "/var/cache/voice"
cache_ttl_hours = 12
backend_timeout_seconds = 15

[feature_flags]
enable_caching = false
normalize_text = true

[backends.openai]
api_key = "${MY_OPENAI_KEY}"
voices = ["alloy", "nova"]
requests_per_minute = 60

[backends.local]
base_url = "http://127.0.0.1:8000"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	cfg.ApplyDefaults()
	cfg.ResolveCredentials(fakeEnv(map[string]string{"MY_OPENAI_KEY": "sk-test"}))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.ObjectStoreBucket)
	assert.Equal(t, "voice.audit", cfg.NATS.AuditSubject)
	assert.Equal(t, "google_cloud", cfg.Engine.PrimaryBackend)
	assert.Equal(t, []core.Backend{core.BackendOpenAI, core.BackendLocal}, cfg.FallbackOrder())
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout())
	assert.False(t, cfg.Features.CachingEnabled())
	assert.True(t, cfg.Features.ValidationEnabled())
	assert.True(t, cfg.Features.AuditLoggingEnabled())
	assert.True(t, cfg.Features.NormalizeText)
	assert.Equal(t, "sk-test", cfg.Backends.OpenAI.APIKey)
	assert.Equal(t, []string{"alloy", "nova"}, cfg.Backends.OpenAI.Voices)
	assert.Equal(t, 60, cfg.Backends.OpenAI.RequestsPerMinute)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Backends.Local.BaseURL)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, "openai", cfg.Engine.PrimaryBackend)
	assert.Equal(t, []string{"google_cloud", "azure"}, cfg.Engine.FallbackBackends)
	assert.Equal(t, "./audio_cache", cfg.Engine.CacheDir)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout())
	assert.Equal(t, time.Minute, cfg.JobTimeout())
	assert.Equal(t, 1000, cfg.Engine.AuditCapacity)
	assert.Equal(t, "high", cfg.Engine.DefaultTier)
	assert.Equal(t, "pt-BR", cfg.Engine.DefaultLanguage)
	assert.Equal(t, "alloy", cfg.Engine.DefaultVoice)
	assert.Equal(t, "openai", cfg.Engine.DefaultBackend)
	assert.Equal(t, "tts-1", cfg.Backends.OpenAI.Model)
	assert.NotEmpty(t, cfg.Backends.OpenAI.BaseURL)
	assert.NotEmpty(t, cfg.Backends.GoogleCloud.BaseURL)
	require.NoError(t, cfg.Validate())
}

func TestResolveCredentials_ConventionalVariables(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ResolveCredentials(fakeEnv(map[string]string{
		config.EnvOpenAIAPIKey:      "openai-key",
		config.EnvGoogleCloudAPIKey: "google-key",
	}))

	assert.Equal(t, "openai-key", cfg.Backends.OpenAI.APIKey)
	assert.Equal(t, "google-key", cfg.Backends.GoogleCloud.APIKey)
	assert.Empty(t, cfg.Backends.Azure.APIKey)
	assert.Equal(t, "eastus", cfg.Backends.Azure.Region)
}

func TestResolveCredentials_MissingReferenceIsEmpty(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.Backends.Local.APIKey = "${UNSET_VARIABLE}"
	cfg.ResolveCredentials(fakeEnv(nil))

	assert.Empty(t, cfg.Backends.Local.APIKey)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{
			name:    "unknown primary",
			mutate:  func(cfg *config.Config) { cfg.Engine.PrimaryBackend = "festival" },
			wantErr: config.ErrUnknownBackend,
		},
		{
			name:    "unknown fallback",
			mutate:  func(cfg *config.Config) { cfg.Engine.FallbackBackends = []string{"espeak"} },
			wantErr: config.ErrUnknownBackend,
		},
		{
			name:    "unknown tier",
			mutate:  func(cfg *config.Config) { cfg.Engine.DefaultTier = "kindergarten" },
			wantErr: config.ErrUnknownTier,
		},
		{
			name:    "negative ttl",
			mutate:  func(cfg *config.Config) { cfg.Engine.CacheTTLHours = -1 },
			wantErr: config.ErrNonPositiveSetting,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var cfg config.Config

			cfg.ApplyDefaults()
			testCase.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), testCase.wantErr)
		})
	}
}

func TestDefaultVoice(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.Engine.DefaultBackend = "google_cloud"
	cfg.Engine.DefaultVoice = "pt-BR-Wavenet-B"
	cfg.ApplyDefaults()

	voice := cfg.DefaultVoice()

	assert.Equal(t, core.BackendGoogleCloud, voice.Backend)
	assert.Equal(t, "pt-BR-Wavenet-B", voice.VoiceID)
	assert.Equal(t, core.DefaultLanguage, voice.Language)
	assert.InDelta(t, core.DefaultSpeed, voice.Speed, 1e-9)
}
