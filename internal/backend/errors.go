// Package backend holds what every speech-synthesis adapter shares: the error
// taxonomy, the duration heuristic, and the client-side rate limiter.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/book-expert/voice-engine/internal/core"
)

// NominalBytesPerSecond is the assumed audio bitrate used to estimate duration.
// The estimate ignores the real encoding and is never exact.
const NominalBytesPerSecond = 16000

// Kind classifies a backend failure.
type Kind string

// Failure kinds.
const (
	KindAuthFailure     Kind = "auth_failure"
	KindRateLimited     Kind = "rate_limited"
	KindUnimplemented   Kind = "unimplemented"
	KindTransportError  Kind = "transport_error"
	KindInvalidResponse Kind = "invalid_response"
	KindTimeout         Kind = "timeout"
)

var (
	// ErrEmptyAudio indicates a successful response without audio content.
	ErrEmptyAudio = errors.New("backend returned empty audio")
	// ErrTextEmpty indicates a synthesis request without text.
	ErrTextEmpty = errors.New("text cannot be empty")
)

// Error is the only error type an adapter returns from Synthesize.
type Error struct {
	Backend core.Backend
	Kind    Kind
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Backend, e.Kind, e.Detail, e.Err)
	}

	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(name core.Backend, kind Kind, detail string, err error) *Error {
	return &Error{
		Backend: name,
		Kind:    kind,
		Detail:  detail,
		Err:     err,
	}
}

// KindOf classifies any error. Context deadlines map to KindTimeout and
// unclassified errors to KindTransportError.
func KindOf(err error) Kind {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	return KindTransportError
}

// FromStatus maps a non-2xx HTTP status code to a failure kind.
func FromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthFailure
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= http.StatusInternalServerError:
		return KindTransportError
	default:
		return KindInvalidResponse
	}
}

// FromTransport classifies an error returned before any HTTP status was seen.
func FromTransport(name core.Backend, detail string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(name, KindTimeout, detail, err)
	}

	return NewError(name, KindTransportError, detail, err)
}

// EstimateDuration returns the heuristic duration in seconds of n audio bytes.
func EstimateDuration(n int) float64 {
	return float64(n) / NominalBytesPerSecond
}
