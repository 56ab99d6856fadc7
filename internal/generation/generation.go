// Package generation is the client for the upstream AI portrait API, plus
// the error classification the retry layer runs on.
package generation

import (
	"context"
	"errors"

	"github.com/cardotrejos/babypeek-sub000/internal/retry"
)

// Cause is the closed set of upstream failure causes. Keeping it closed
// means the classifier and the HTTP mapping stay exhaustive.
type Cause int

const (
	CauseRateLimited Cause = iota
	CauseTransient
	CauseTimeout
	CauseInvalidInput
	CauseContentPolicy
)

func (c Cause) String() string {
	switch c {
	case CauseRateLimited:
		return "rate_limited"
	case CauseTransient:
		return "transient"
	case CauseTimeout:
		return "timeout"
	case CauseInvalidInput:
		return "invalid_input"
	case CauseContentPolicy:
		return "content_policy"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt can change the outcome.
func (c Cause) Retryable() bool {
	switch c {
	case CauseRateLimited, CauseTransient, CauseTimeout:
		return true
	default:
		return false
	}
}

// Error is a classified upstream failure.
type Error struct {
	Cause      Cause
	StatusCode int // 0 when the failure never reached HTTP
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "generation upstream: " + e.Cause.String()
	}
	return "generation upstream (" + e.Cause.String() + "): " + e.Message
}

// Classify is the retry eligibility function for generation calls. Failures
// that are not a classified upstream Error are treated as transient: a
// network hiccup should never burn the job.
func Classify(err error) retry.Class {
	var ue *Error
	if errors.As(err, &ue) {
		if ue.Cause.Retryable() {
			return retry.Retryable
		}
		return retry.Terminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Retryable
	}
	return retry.Retryable
}

// CauseOf extracts the classified cause for observability, mapping
// unclassified errors to transient.
func CauseOf(err error) Cause {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Cause
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	return CauseTransient
}
