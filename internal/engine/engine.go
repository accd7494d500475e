// Package engine orchestrates a generation: validation, cache lookup, ordered
// fallback across backends, cache write-through, and audit.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"golang.org/x/sync/singleflight"

	"github.com/book-expert/voice-engine/internal/audit"
	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/cache"
	"github.com/book-expert/voice-engine/internal/core"
	"github.com/book-expert/voice-engine/internal/registry"
	"github.com/book-expert/voice-engine/internal/text"
)

const textPreviewLength = 100

// ResultCache memoizes artifacts by fingerprint.
type ResultCache interface {
	Lookup(ctx context.Context, fingerprint string) (*core.AudioArtifact, bool)
	Store(ctx context.Context, fingerprint string, artifact *core.AudioArtifact) error
}

// Options tunes the engine.
type Options struct {
	// BackendTimeout bounds every backend call; zero means unbounded.
	BackendTimeout time.Duration
	// StrictValidation turns an invalid verdict into ErrContentRejected.
	StrictValidation bool
	// NormalizeText cleans the text sent to backends. The fingerprint always
	// uses the text as given.
	NormalizeText bool
	// Deduplicate collapses identical concurrent generations into one.
	Deduplicate bool
}

// Request is one generation request. Build it with NewRequest and treat it as
// immutable afterwards.
type Request struct {
	Text  string
	Voice core.VoiceConfig
	Tier  core.Tier
	// Preferred and Fallbacks select the attempt order. The zero values use
	// the registry defaults.
	Preferred core.Backend
	Fallbacks []core.Backend
	Validate  bool
	Cache     bool
	UserID    string
	SessionID string
}

// NewRequest returns a request for the high-school tier with validation and
// caching enabled.
func NewRequest(input string, voice core.VoiceConfig) Request {
	return Request{
		Text:      input,
		Voice:     voice,
		Tier:      core.TierHigh,
		Preferred: "",
		Fallbacks: nil,
		Validate:  true,
		Cache:     true,
		UserID:    "",
		SessionID: "",
	}
}

// Engine is safe for concurrent use; generations share no lock.
type Engine struct {
	registry     *registry.Registry
	validator    core.ContentValidator
	cache        ResultCache
	audit        *audit.Log
	preprocessor *text.Preprocessor
	opts         Options
	group        singleflight.Group
	log          *logger.Logger
}

// New creates an Engine. A nil resultCache disables caching.
func New(
	reg *registry.Registry,
	validator core.ContentValidator,
	resultCache ResultCache,
	auditLog *audit.Log,
	opts Options,
	log *logger.Logger,
) *Engine {
	return &Engine{
		registry:     reg,
		validator:    validator,
		cache:        resultCache,
		audit:        auditLog,
		preprocessor: text.NewPreprocessor(),
		opts:         opts,
		group:        singleflight.Group{},
		log:          log,
	}
}

// Generate produces audio for req. The only generation failure is an
// *AllProvidersFailedError; ErrTextEmpty and, in strict mode,
// ErrContentRejected reject the request before any backend is contacted.
func (e *Engine) Generate(ctx context.Context, req Request) (*core.AudioArtifact, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	tier := req.Tier
	if tier == "" {
		tier = core.TierHigh
	}

	if req.Validate && e.validator != nil {
		err := e.screen(req, tier)
		if err != nil {
			return nil, err
		}
	}

	fingerprint := cache.FingerprintFor(req.Text, req.Voice)
	useCache := req.Cache && e.cache != nil

	if useCache {
		artifact, hit := e.cache.Lookup(ctx, fingerprint)
		if hit {
			e.log.Info("Serving %s audio for %s from cache", artifact.Backend, fingerprint)

			return artifact, nil
		}
	}

	candidates := e.registry.Candidates(req.Preferred, req.Fallbacks)

	if !e.opts.Deduplicate {
		return e.synthesize(ctx, req, tier, candidates, fingerprint, useCache)
	}

	key := dedupKey(fingerprint, req, candidates, useCache)

	result, err, shared := e.group.Do(key, func() (any, error) {
		return e.synthesize(ctx, req, tier, candidates, fingerprint, useCache)
	})
	if err != nil {
		return nil, err
	}

	artifact, _ := result.(*core.AudioArtifact)
	if shared {
		return artifact.Clone(), nil
	}

	return artifact, nil
}

// AvailableVoices returns, per registered backend, the voices usable for
// language. Each backend applies its own filter.
func (e *Engine) AvailableVoices(language string) map[core.Backend][]string {
	voices := make(map[core.Backend][]string)

	for _, name := range e.registry.Backends() {
		synth, _ := e.registry.Get(name)
		voices[name] = synth.Voices(language)
	}

	return voices
}

// AuditLog returns a copy of the retained audit events.
func (e *Engine) AuditLog() []audit.Event {
	return e.audit.Snapshot()
}

// ClearAuditLog drops every retained audit event.
func (e *Engine) ClearAuditLog() {
	e.audit.Clear()
}

func (e *Engine) screen(req Request, tier core.Tier) error {
	verdict := e.validator.Validate(req.Text, tier)
	if verdict.Valid {
		return nil
	}

	e.log.Warn("Content validation failed for %s tier: %s", tier, strings.Join(verdict.Issues, "; "))
	e.audit.Append(audit.KindContentValidationFailed, map[string]any{
		"text_preview": preview(req.Text),
		"issues":       verdict.Issues,
		"target_age":   string(tier),
		"score":        verdict.Score,
	}, req.UserID, req.SessionID)

	if e.opts.StrictValidation {
		return fmt.Errorf("%w: %s", ErrContentRejected, strings.Join(verdict.Issues, "; "))
	}

	return nil
}

func (e *Engine) synthesize(
	ctx context.Context,
	req Request,
	tier core.Tier,
	candidates []core.Backend,
	fingerprint string,
	useCache bool,
) (*core.AudioArtifact, error) {
	input := req.Text
	if e.opts.NormalizeText && !text.IsSSML(input) {
		input = e.preprocessor.PreprocessText(input)
	}

	failure := &AllProvidersFailedError{Attempts: nil, Aborted: nil}

	for _, name := range candidates {
		if ctx.Err() != nil {
			failure.Aborted = ctx.Err()

			break
		}

		synth, _ := e.registry.Get(name)

		e.log.Info("Attempting synthesis with %s", name)

		artifact, err := e.attempt(ctx, synth, input, req.Voice)
		if err != nil {
			kind := backend.KindOf(err)
			e.log.Warn("Backend %s failed (%s): %v", name, kind, err)
			failure.Attempts = append(failure.Attempts, Attempt{Backend: name, Kind: kind, Err: err})

			continue
		}

		e.log.Info("Generated audio with %s (%d bytes, %.2fs)", name, len(artifact.Audio), artifact.Duration)

		if useCache {
			storeErr := e.cache.Store(ctx, fingerprint, artifact)
			if storeErr != nil {
				e.log.Warn("Failed to cache audio %s: %v", fingerprint, storeErr)
			}
		}

		attempted := append(failure.Attempted(), string(name))
		e.audit.Append(audit.KindAudioGenerated, map[string]any{
			"text_length":   utf8.RuneCountInString(req.Text),
			"provider_used": string(name),
			"duration":      artifact.Duration,
			"target_age":    string(tier),
			"attempted":     attempted,
		}, req.UserID, req.SessionID)

		return artifact, nil
	}

	if failure.Aborted == nil && ctx.Err() != nil {
		failure.Aborted = ctx.Err()
	}

	e.log.Error("Generation failed: %v", failure)
	e.audit.Append(audit.KindGenerationFailed, map[string]any{
		"text_length": utf8.RuneCountInString(req.Text),
		"target_age":  string(tier),
		"attempted":   failure.Attempted(),
		"error":       failure.Error(),
	}, req.UserID, req.SessionID)

	return nil, failure
}

type attemptResult struct {
	artifact *core.AudioArtifact
	err      error
}

// attempt calls synth under the per-backend timeout. A call that outlives its
// deadline is abandoned and reported as backend.KindTimeout.
func (e *Engine) attempt(
	ctx context.Context,
	synth core.Synthesizer,
	input string,
	voice core.VoiceConfig,
) (*core.AudioArtifact, error) {
	attemptCtx := ctx

	if e.opts.BackendTimeout > 0 {
		var cancel context.CancelFunc

		attemptCtx, cancel = context.WithTimeout(ctx, e.opts.BackendTimeout)
		defer cancel()
	}

	done := make(chan attemptResult, 1)

	go func() {
		artifact, err := synth.Synthesize(attemptCtx, input, voice)
		done <- attemptResult{artifact: artifact, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			if attemptCtx.Err() != nil && backend.KindOf(result.err) != backend.KindTimeout {
				return nil, backend.FromTransport(synth.Name(), "backend call aborted", attemptCtx.Err())
			}

			return nil, result.err
		}

		if result.artifact == nil || len(result.artifact.Audio) == 0 {
			return nil, backend.NewError(synth.Name(), backend.KindInvalidResponse, "no audio returned", backend.ErrEmptyAudio)
		}

		return result.artifact, nil
	case <-attemptCtx.Done():
		return nil, backend.FromTransport(synth.Name(), "backend call aborted", attemptCtx.Err())
	}
}

func preview(input string) string {
	if utf8.RuneCountInString(input) <= textPreviewLength {
		return input
	}

	return string([]rune(input)[:textPreviewLength])
}

// dedupKey identifies generations that would produce the same artifact.
func dedupKey(fingerprint string, req Request, candidates []core.Backend, useCache bool) string {
	return fmt.Sprintf("%s|%g|%g|%g|%t|%t|%v",
		fingerprint, req.Voice.Speed, req.Voice.Pitch, req.Voice.Volume, req.Voice.EnableSSML, useCache, candidates)
}
