package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/book-expert/voice-engine/internal/audit"
	"github.com/book-expert/voice-engine/internal/config"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{
		"--text", "Olá, turma!",
		"--voice", "nova",
		"--backend", "openai",
		"--language", "pt-PT",
		"--tier", "elementary",
		"--no-cache",
		"--audit",
	})
	require.NoError(t, err)

	assert.Equal(t, "Olá, turma!", flags.text)
	assert.Equal(t, "nova", flags.voice)
	assert.Equal(t, "openai", flags.backend)
	assert.Equal(t, "pt-PT", flags.language)
	assert.Equal(t, "elementary", flags.tier)
	assert.True(t, flags.noCache)
	assert.False(t, flags.noValidate)
	assert.True(t, flags.audit)
}

func TestParseFlags_Unknown(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--chunks", "file.json"})

	require.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{
			name:    "text only",
			flags:   appFlags{text: "some text"},
			wantErr: nil,
		},
		{
			name:    "voices without text",
			flags:   appFlags{voices: true},
			wantErr: nil,
		},
		{
			name:    "no text",
			flags:   appFlags{},
			wantErr: errTextRequired,
		},
		{
			name:    "unknown tier",
			flags:   appFlags{text: "some text", tier: "kindergarten"},
			wantErr: errUnknownTier,
		},
		{
			name:    "unknown backend",
			flags:   appFlags{text: "some text", backend: "festival"},
			wantErr: errUnknownBackend,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(testCase.flags)
			if testCase.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestRun_RejectsInvalidFlagsBeforeLoadingConfig(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer

	err := run([]string{"--tier", "high"}, &stdout)

	require.ErrorIs(t, err, errTextRequired)
	assert.Empty(t, stdout.String())
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	t.Run("defaults from config", func(t *testing.T) {
		t.Parallel()

		req := buildRequest(appFlags{text: "texto"}, &cfg)

		assert.Equal(t, "texto", req.Text)
		assert.Equal(t, core.BackendOpenAI, req.Voice.Backend)
		assert.Equal(t, "alloy", req.Voice.VoiceID)
		assert.Equal(t, core.DefaultLanguage, req.Voice.Language)
		assert.Equal(t, core.TierHigh, req.Tier)
		assert.Empty(t, req.Preferred)
		assert.True(t, req.Validate)
		assert.True(t, req.Cache)
	})

	t.Run("flags override", func(t *testing.T) {
		t.Parallel()

		req := buildRequest(appFlags{
			text:       "texto",
			voice:      "pt-BR-Wavenet-C",
			backend:    "google_cloud",
			language:   "pt-PT",
			tier:       "university",
			noCache:    true,
			noValidate: true,
		}, &cfg)

		assert.Equal(t, core.BackendGoogleCloud, req.Voice.Backend)
		assert.Equal(t, core.BackendGoogleCloud, req.Preferred)
		assert.Equal(t, "pt-BR-Wavenet-C", req.Voice.VoiceID)
		assert.Equal(t, "pt-PT", req.Voice.Language)
		assert.Equal(t, core.TierUniversity, req.Tier)
		assert.False(t, req.Validate)
		assert.False(t, req.Cache)
	})
}

func TestWriteVoices(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	err := writeVoices(&out, map[core.Backend][]string{
		core.BackendOpenAI:      {"alloy", "nova"},
		core.BackendGoogleCloud: {"pt-BR-Wavenet-A"},
	})
	require.NoError(t, err)

	assert.Equal(t, "google_cloud: [pt-BR-Wavenet-A]\nopenai: [alloy nova]\n", out.String())
}

func TestWriteAudit(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	events := []audit.Event{{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:      audit.KindAudioGenerated,
		Payload:   map[string]any{"provider_used": "openai"},
		UserID:    audit.AnonymousUser,
		SessionID: audit.UnknownSession,
	}}

	require.NoError(t, writeAudit(&out, events))

	var decoded []map[string]any

	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "audio_generated", decoded[0]["event_type"])
}
