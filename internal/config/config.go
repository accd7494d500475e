// Package config provides the configuration structure for the voice engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/voice-engine/internal/core"
)

// Defaults applied to missing configuration values.
const (
	defaultCacheDir              = "./audio_cache"
	defaultCacheTTLHours         = 24
	defaultBackendTimeoutSeconds = 30
	defaultJobTimeoutSeconds     = 60
	defaultAuditCapacity         = 1000
	defaultVoice                 = "alloy"
	defaultAzureRegion           = "eastus"
	defaultOpenAIBaseURL         = "https://api.openai.com/v1/"
	defaultOpenAIModel           = "tts-1"
	defaultGoogleBaseURL         = "https://texttospeech.googleapis.com/"
)

// Conventional environment variables for backend credentials.
const (
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvGoogleCloudAPIKey = "GOOGLE_CLOUD_API_KEY"
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

var (
	// ErrUnknownBackend indicates a backend name that the engine does not know.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrUnknownTier indicates an audience tier that the engine does not know.
	ErrUnknownTier = errors.New("unknown audience tier")
	// ErrNonPositiveSetting indicates a duration or capacity that must be positive.
	ErrNonPositiveSetting = errors.New("setting must be positive")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	ObjectStoreBucket        string `toml:"object_store_bucket"`
	// CacheBucket, when set, stores the result cache in a JetStream object
	// store bucket instead of engine.cache_dir.
	CacheBucket  string `toml:"cache_bucket"`
	AuditSubject string `toml:"audit_subject"`
}

// EngineConfig holds the orchestration settings.
type EngineConfig struct {
	PrimaryBackend        string   `toml:"primary_backend"`
	FallbackBackends      []string `toml:"fallback_backends"`
	CacheDir              string   `toml:"cache_dir"`
	CacheTTLHours         int      `toml:"cache_ttl_hours"`
	BackendTimeoutSeconds int      `toml:"backend_timeout_seconds"`
	JobTimeoutSeconds     int      `toml:"job_timeout_seconds"`
	AuditCapacity         int      `toml:"audit_capacity"`
	DefaultTier           string   `toml:"default_tier"`
	DefaultLanguage       string   `toml:"default_language"`
	DefaultVoice          string   `toml:"default_voice"`
	DefaultBackend        string   `toml:"default_backend"`
	// CacheCompressionLevel enables zstd compression of cached audio when
	// positive.
	CacheCompressionLevel int `toml:"cache_compression_level"`
}

// FeatureFlags toggles optional behavior. A nil flag takes its default.
type FeatureFlags struct {
	EnableValidation    *bool `toml:"enable_validation"`
	EnableCaching       *bool `toml:"enable_caching"`
	EnableAuditLogging  *bool `toml:"enable_audit_logging"`
	StrictValidation    bool  `toml:"strict_validation"`
	NormalizeText       bool  `toml:"normalize_text"`
	DeduplicateRequests bool  `toml:"deduplicate_requests"`
}

// BackendConfig holds the settings of one synthesis backend.
type BackendConfig struct {
	APIKey            string   `toml:"api_key"`
	BaseURL           string   `toml:"base_url"`
	Region            string   `toml:"region"`
	Model             string   `toml:"model"`
	Voices            []string `toml:"voices"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// BackendsConfig groups the per-backend settings.
type BackendsConfig struct {
	OpenAI      BackendConfig `toml:"openai"`
	GoogleCloud BackendConfig `toml:"google_cloud"`
	Azure       BackendConfig `toml:"azure"`
	Local       BackendConfig `toml:"local"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	Engine   EngineConfig   `toml:"engine"`
	Features FeatureFlags   `toml:"feature_flags"`
	Backends BackendsConfig `toml:"backends"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the voice engine, resolves credentials from
// the process environment, and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.ResolveCredentials(os.LookupEnv)

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset value with its default.
func (c *Config) ApplyDefaults() {
	engine := &c.Engine

	if engine.PrimaryBackend == "" {
		engine.PrimaryBackend = string(core.BackendOpenAI)
	}

	if engine.FallbackBackends == nil {
		engine.FallbackBackends = []string{string(core.BackendGoogleCloud), string(core.BackendAzure)}
	}

	if engine.CacheDir == "" {
		engine.CacheDir = defaultCacheDir
	}

	if engine.CacheTTLHours == 0 {
		engine.CacheTTLHours = defaultCacheTTLHours
	}

	if engine.BackendTimeoutSeconds == 0 {
		engine.BackendTimeoutSeconds = defaultBackendTimeoutSeconds
	}

	if engine.JobTimeoutSeconds == 0 {
		engine.JobTimeoutSeconds = defaultJobTimeoutSeconds
	}

	if engine.AuditCapacity == 0 {
		engine.AuditCapacity = defaultAuditCapacity
	}

	if engine.DefaultTier == "" {
		engine.DefaultTier = string(core.TierHigh)
	}

	if engine.DefaultLanguage == "" {
		engine.DefaultLanguage = core.DefaultLanguage
	}

	if engine.DefaultVoice == "" {
		engine.DefaultVoice = defaultVoice
	}

	if engine.DefaultBackend == "" {
		engine.DefaultBackend = engine.PrimaryBackend
	}

	if c.Backends.OpenAI.BaseURL == "" {
		c.Backends.OpenAI.BaseURL = defaultOpenAIBaseURL
	}

	if c.Backends.OpenAI.Model == "" {
		c.Backends.OpenAI.Model = defaultOpenAIModel
	}

	if c.Backends.GoogleCloud.BaseURL == "" {
		c.Backends.GoogleCloud.BaseURL = defaultGoogleBaseURL
	}
}

// ResolveCredentials replaces "${VAR}" references with environment values and
// falls back to the conventional variable when a key is empty. It is the only
// place where the engine reads the environment.
func (c *Config) ResolveCredentials(lookupEnv func(string) (string, bool)) {
	resolve := func(value, fallbackVar string) string {
		value = resolveEnvRef(value, lookupEnv)
		if value != "" || fallbackVar == "" {
			return value
		}

		envValue, _ := lookupEnv(fallbackVar)

		return envValue
	}

	c.Backends.OpenAI.APIKey = resolve(c.Backends.OpenAI.APIKey, EnvOpenAIAPIKey)
	c.Backends.GoogleCloud.APIKey = resolve(c.Backends.GoogleCloud.APIKey, EnvGoogleCloudAPIKey)
	c.Backends.Azure.APIKey = resolve(c.Backends.Azure.APIKey, EnvAzureSpeechKey)
	c.Backends.Azure.Region = resolve(c.Backends.Azure.Region, EnvAzureSpeechRegion)
	c.Backends.Local.APIKey = resolve(c.Backends.Local.APIKey, "")

	if c.Backends.Azure.Region == "" {
		c.Backends.Azure.Region = defaultAzureRegion
	}
}

// Validate checks backend names, tiers, and positive settings.
func (c *Config) Validate() error {
	names := append([]string{c.Engine.PrimaryBackend, c.Engine.DefaultBackend}, c.Engine.FallbackBackends...)
	for _, name := range names {
		if !IsKnownBackend(name) {
			return fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}
	}

	if !IsKnownTier(c.Engine.DefaultTier) {
		return fmt.Errorf("%w: %q", ErrUnknownTier, c.Engine.DefaultTier)
	}

	positive := map[string]int{
		"cache_ttl_hours":         c.Engine.CacheTTLHours,
		"backend_timeout_seconds": c.Engine.BackendTimeoutSeconds,
		"job_timeout_seconds":     c.Engine.JobTimeoutSeconds,
		"audit_capacity":          c.Engine.AuditCapacity,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%w: %s = %d", ErrNonPositiveSetting, name, value)
		}
	}

	return nil
}

// CacheTTL returns the cache validity window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Engine.CacheTTLHours) * time.Hour
}

// BackendTimeout returns the bound applied to every backend call.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Engine.BackendTimeoutSeconds) * time.Second
}

// JobTimeout returns the bound applied to one worker job.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Engine.JobTimeoutSeconds) * time.Second
}

// DefaultVoice returns the voice used when a request names none.
func (c *Config) DefaultVoice() core.VoiceConfig {
	voice := core.NewVoiceConfig(core.Backend(c.Engine.DefaultBackend), c.Engine.DefaultVoice)
	voice.Language = c.Engine.DefaultLanguage

	return voice
}

// FallbackOrder returns the configured fallback list as backend identifiers.
func (c *Config) FallbackOrder() []core.Backend {
	order := make([]core.Backend, 0, len(c.Engine.FallbackBackends))
	for _, name := range c.Engine.FallbackBackends {
		order = append(order, core.Backend(name))
	}

	return order
}

// ValidationEnabled reports whether content validation runs by default.
func (f FeatureFlags) ValidationEnabled() bool {
	return f.EnableValidation == nil || *f.EnableValidation
}

// CachingEnabled reports whether the result cache is used by default.
func (f FeatureFlags) CachingEnabled() bool {
	return f.EnableCaching == nil || *f.EnableCaching
}

// AuditLoggingEnabled reports whether audit events are recorded.
func (f FeatureFlags) AuditLoggingEnabled() bool {
	return f.EnableAuditLogging == nil || *f.EnableAuditLogging
}

// IsKnownBackend reports whether name is a backend identifier.
func IsKnownBackend(name string) bool {
	known := []core.Backend{
		core.BackendOpenAI,
		core.BackendGoogleCloud,
		core.BackendAzure,
		core.BackendAmazonPolly,
		core.BackendElevenLabs,
		core.BackendLocal,
	}

	return slices.Contains(known, core.Backend(name))
}

// IsKnownTier reports whether name is an audience tier.
func IsKnownTier(name string) bool {
	known := []core.Tier{core.TierElementary, core.TierMiddle, core.TierHigh, core.TierUniversity}

	return slices.Contains(known, core.Tier(name))
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(value string, lookupEnv func(string) (string, bool)) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}

	envValue, _ := lookupEnv(value[2 : len(value)-1])

	return envValue
}
