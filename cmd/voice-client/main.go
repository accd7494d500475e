package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-engine/internal/audit"
	"github.com/book-expert/voice-engine/internal/cache"
	"github.com/book-expert/voice-engine/internal/config"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/book-expert/voice-engine/internal/engine"
	"github.com/book-expert/voice-engine/internal/humanize"
	"github.com/book-expert/voice-engine/internal/registry"
	"github.com/book-expert/voice-engine/internal/validator"
)

// Flag descriptions.
const (
	flagTextDesc       = "Text to convert to speech"
	flagOutputDesc     = "Output file path (defaults to output.<format>)"
	flagVoiceDesc      = "Voice identifier (defaults to engine.default_voice)"
	flagBackendDesc    = "Preferred backend (defaults to engine.primary_backend)"
	flagLanguageDesc   = "Language code (defaults to engine.default_language)"
	flagTierDesc       = "Audience tier: elementary, middle, high, university"
	flagNoCacheDesc    = "Bypass the audio cache"
	flagNoValidateDesc = "Skip content validation"
	flagVoicesDesc     = "List the available voices for the language and exit"
	flagAuditDesc      = "Print the audit log after generating"
)

// Flag names.
const (
	flagText       = "text"
	flagOutput     = "output"
	flagVoice      = "voice"
	flagBackend    = "backend"
	flagLanguage   = "language"
	flagTier       = "tier"
	flagNoCache    = "no-cache"
	flagNoValidate = "no-validate"
	flagVoices     = "voices"
	flagAudit      = "audit"
)

// Log messages.
const (
	logClientInitialized = "Voice client initialized with backends: %v"
	logGenerating        = "Generating speech to: %s"
	logGenerated         = "Generated %s audio with %s (%s, %s): %s\n"
	errFailedToGenerate  = "failed to generate speech: %w"
)

const (
	bootstrapLogFile  = "voice-client-bootstrap.log"
	logFileName       = "voice-client.log"
	defaultOutputStem = "output."
	generateTimeout   = 2 * time.Minute
)

var (
	errTextRequired   = errors.New("--text must be provided unless --voices is set")
	errUnknownTier    = errors.New("unknown --tier")
	errUnknownBackend = errors.New("unknown --backend")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text       string
	output     string
	voice      string
	backend    string
	language   string
	tier       string
	noCache    bool
	noValidate bool
	voices     bool
	audit      bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	cfg, appLog, err := setup()
	if err != nil {
		return err
	}
	defer appLog.Close()

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	eng, closeEngine, err := buildEngine(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer closeEngine()

	if flags.voices {
		language := flags.language
		if language == "" {
			language = cfg.Engine.DefaultLanguage
		}

		return writeVoices(stdout, eng.AvailableVoices(language))
	}

	return generate(ctx, stdout, eng, cfg, appLog, flags)
}

// parseFlags parses args into appFlags without touching the global flag set.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("voice-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.backend, flagBackend, "", flagBackendDesc)
	flagSet.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flagSet.StringVar(&flags.tier, flagTier, "", flagTierDesc)
	flagSet.BoolVar(&flags.noCache, flagNoCache, false, flagNoCacheDesc)
	flagSet.BoolVar(&flags.noValidate, flagNoValidate, false, flagNoValidateDesc)
	flagSet.BoolVar(&flags.voices, flagVoices, false, flagVoicesDesc)
	flagSet.BoolVar(&flags.audit, flagAudit, false, flagAuditDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks required and enumerated arguments.
func validateFlags(flags appFlags) error {
	if flags.text == "" && !flags.voices {
		return errTextRequired
	}

	if flags.tier != "" && !config.IsKnownTier(flags.tier) {
		return fmt.Errorf("%w: %q", errUnknownTier, flags.tier)
	}

	if flags.backend != "" && !config.IsKnownBackend(flags.backend) {
		return fmt.Errorf("%w: %q", errUnknownBackend, flags.backend)
	}

	return nil
}

// setup loads the configuration and initializes the final logger.
func setup() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}
	defer bootstrapLog.Close()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLog, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, appLog, nil
}

// buildEngine wires the engine with a directory cache and an in-memory audit log.
func buildEngine(ctx context.Context, cfg *config.Config, appLog *logger.Logger) (*engine.Engine, func(), error) {
	reg, err := registry.FromConfig(ctx, cfg, appLog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build backend registry: %w", err)
	}

	appLog.Info(logClientInitialized, reg.Backends())

	closeEngine := func() {}

	var resultCache engine.ResultCache

	if cfg.Features.CachingEnabled() {
		store, storeErr := cache.NewDirStore(cfg.Engine.CacheDir)
		if storeErr != nil {
			return nil, nil, fmt.Errorf("failed to open cache directory: %w", storeErr)
		}

		audioCache, cacheErr := cache.New(store, cache.Options{
			TTL:              cfg.CacheTTL(),
			CompressionLevel: cfg.Engine.CacheCompressionLevel,
			Now:              time.Now,
		}, appLog)
		if cacheErr != nil {
			return nil, nil, fmt.Errorf("failed to create cache: %w", cacheErr)
		}

		closeEngine = func() {
			closeErr := audioCache.Close()
			if closeErr != nil {
				appLog.Warn("Failed to close cache: %v", closeErr)
			}
		}
		resultCache = audioCache
	}

	var auditOpts []audit.Option
	if !cfg.Features.AuditLoggingEnabled() {
		auditOpts = append(auditOpts, audit.Disabled())
	}

	eng := engine.New(
		reg,
		validator.New(validator.DefaultRuleset()),
		resultCache,
		audit.NewLog(cfg.Engine.AuditCapacity, appLog, auditOpts...),
		engine.OptionsFromConfig(cfg),
		appLog,
	)

	return eng, closeEngine, nil
}

// buildRequest turns the flags into a generation request, filling gaps from cfg.
func buildRequest(flags appFlags, cfg *config.Config) engine.Request {
	voice := cfg.DefaultVoice()

	if flags.backend != "" {
		voice.Backend = core.Backend(flags.backend)
	}

	if flags.voice != "" {
		voice.VoiceID = flags.voice
	}

	if flags.language != "" {
		voice.Language = flags.language
	}

	req := engine.NewRequest(flags.text, voice)
	req.Preferred = core.Backend(flags.backend)
	req.Tier = core.Tier(cfg.Engine.DefaultTier)
	req.Validate = !flags.noValidate && cfg.Features.ValidationEnabled()
	req.Cache = !flags.noCache && cfg.Features.CachingEnabled()

	if flags.tier != "" {
		req.Tier = core.Tier(flags.tier)
	}

	return req
}

func generate(
	ctx context.Context,
	stdout io.Writer,
	eng *engine.Engine,
	cfg *config.Config,
	appLog *logger.Logger,
	flags appFlags,
) error {
	artifact, err := eng.Generate(ctx, buildRequest(flags, cfg))
	if err != nil {
		appLog.Error("Generation failed: %v", err)

		return fmt.Errorf(errFailedToGenerate, err)
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = defaultOutputStem + artifact.Format
	}

	appLog.Info(logGenerating, outputPath)

	err = os.WriteFile(outputPath, artifact.Audio, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	fmt.Fprintf(stdout, logGenerated, artifact.Format, artifact.Backend,
		humanize.Seconds(artifact.Duration), humanize.Bytes(len(artifact.Audio)), outputPath)

	if flags.audit {
		return writeAudit(stdout, eng.AuditLog())
	}

	return nil
}

// writeVoices prints one line per backend, in name order.
func writeVoices(w io.Writer, voices map[core.Backend][]string) error {
	names := make([]core.Backend, 0, len(voices))
	for name := range voices {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		_, err := fmt.Fprintf(w, "%s: %v\n", name, voices[name])
		if err != nil {
			return fmt.Errorf("failed to write voices: %w", err)
		}
	}

	return nil
}

func writeAudit(w io.Writer, events []audit.Event) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(events)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	return nil
}
