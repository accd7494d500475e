package backend

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/book-expert/voice-engine/internal/core"
)

// Limited wraps a Synthesizer with a client-side request budget. A call made
// when the budget is exhausted fails at once with KindRateLimited.
type Limited struct {
	next    core.Synthesizer
	limiter *rate.Limiter
}

// WithRateLimit returns next unchanged when requestsPerMinute is not positive.
func WithRateLimit(next core.Synthesizer, requestsPerMinute int) core.Synthesizer {
	if requestsPerMinute <= 0 {
		return next
	}

	interval := time.Minute / time.Duration(requestsPerMinute)

	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(interval), requestsPerMinute),
	}
}

// Name returns the wrapped backend identifier.
func (l *Limited) Name() core.Backend {
	return l.next.Name()
}

// Synthesize forwards to the wrapped backend when the budget allows it.
func (l *Limited) Synthesize(ctx context.Context, text string, voice core.VoiceConfig) (*core.AudioArtifact, error) {
	if !l.limiter.Allow() {
		return nil, NewError(l.next.Name(), KindRateLimited, "client-side request budget exhausted", nil)
	}

	return l.next.Synthesize(ctx, text, voice)
}

// Voices returns the wrapped backend's voices.
func (l *Limited) Voices(language string) []string {
	return l.next.Voices(language)
}
