package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/voice-engine/internal/backend"
	"github.com/book-expert/voice-engine/internal/core"
)

var (
	// ErrAllProvidersFailed is matched by every *AllProvidersFailedError.
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrContentRejected is returned in strict mode when validation fails.
	ErrContentRejected = errors.New("content rejected by validation")
	// ErrTextEmpty indicates a request without text.
	ErrTextEmpty = errors.New("text cannot be empty")
)

// Attempt is one backend call made during a generation.
type Attempt struct {
	Backend core.Backend
	Kind    backend.Kind
	Err     error
}

// AllProvidersFailedError aggregates every failed attempt of a generation.
// Attempts is empty when no candidate was registered.
type AllProvidersFailedError struct {
	Attempts []Attempt
	// Aborted holds the context error when cancellation cut the attempts short.
	Aborted error
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Attempts) == 0 {
		if e.Aborted != nil {
			return ErrAllProvidersFailed.Error() + ": aborted before any attempt: " + e.Aborted.Error()
		}

		return ErrAllProvidersFailed.Error() + ": no registered backend among the candidates"
	}

	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s): %v", attempt.Backend, attempt.Kind, attempt.Err))
	}

	message := ErrAllProvidersFailed.Error() + ": " + strings.Join(parts, "; ")
	if e.Aborted != nil {
		message += "; aborted: " + e.Aborted.Error()
	}

	return message
}

// Unwrap exposes ErrAllProvidersFailed, every attempt error, and the abort cause.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+2)
	errs = append(errs, ErrAllProvidersFailed)

	for _, attempt := range e.Attempts {
		errs = append(errs, attempt.Err)
	}

	if e.Aborted != nil {
		errs = append(errs, e.Aborted)
	}

	return errs
}

// Attempted returns the backend names in attempt order.
func (e *AllProvidersFailedError) Attempted() []string {
	names := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		names = append(names, string(attempt.Backend))
	}

	return names
}
