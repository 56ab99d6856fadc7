// Package retry wraps one call to an unreliable upstream with selective
// retry: a classifier decides which failures are worth another attempt,
// exponential backoff with jitter spaces the attempts, and a single
// wall-clock timeout bounds the whole sequence.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Class is the retry eligibility of a classified error.
type Class int

const (
	// Retryable failures are transient; another attempt may succeed.
	Retryable Class = iota
	// Terminal failures are permanent; retrying repeats a user-visible
	// failure with added latency.
	Terminal
)

// Classifier decides whether a failed attempt is worth retrying.
type Classifier func(error) Class

type Policy struct {
	MaxRetries     int           // retries after the first attempt
	BaseDelay      time.Duration // delay before the first retry
	Multiplier     float64       // exponential growth factor
	JitterFraction float64       // symmetric, e.g. 0.1 for ±10%
	Timeout        time.Duration // bounds all attempts and delays together
}

// DefaultPolicy matches the generation upstream: 1s→2s→4s with ±10% jitter,
// four attempts total, 60s overall.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
		Timeout:        60 * time.Second,
	}
}

// Delay returns the pre-jitter backoff before retry attempt n (1-indexed):
// BaseDelay * Multiplier^(n-1).
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.JitterFraction <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * p.JitterFraction // [-f, +f)
	return time.Duration(float64(d) * (1 + spread))
}

// Attempt describes one failed try, reported to the Observer before any
// backoff wait. Delay is the upcoming wait, zero when no retry follows.
type Attempt struct {
	Number  int
	Err     error
	Class   Class
	Elapsed time.Duration
	Delay   time.Duration
}

// Observer receives attempt events. It runs on the retry path and must not
// block.
type Observer func(Attempt)

// ErrTimeout marks results produced by the overall retry budget elapsing,
// as opposed to the upstream itself deciding the call was hopeless.
var ErrTimeout = errors.New("retry timeout exceeded")

// ExhaustedError is returned when every permitted attempt failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// TimeoutError is returned when the overall budget elapsed, regardless of
// which attempt was in flight. Attempts is the counter at that moment.
type TimeoutError struct {
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("retry timeout after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("retry timeout after %d attempts: %v", e.Attempts, e.Last)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Do runs op until it succeeds, fails terminally, exhausts the attempt
// budget, or the overall timeout fires. Terminal failures are returned
// untouched so callers see the upstream's own error. A late result from an
// attempt abandoned by the timeout is discarded, never returned.
func Do[T any](ctx context.Context, p Policy, classify Classifier, op func(context.Context) (T, error), observers ...Observer) (T, error) {
	var zero T

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	maxAttempts := p.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if ctx.Err() != nil {
				// The budget fired while the attempt was in flight; its
				// result no longer counts.
				return zero, &TimeoutError{Attempts: attempt, Last: lastErr}
			}
			return v, nil
		}
		lastErr = err

		if budgetErr := budgetExpired(ctx, attempt, err); budgetErr != nil {
			return zero, budgetErr
		}

		class := classify(err)
		a := Attempt{
			Number:  attempt,
			Err:     err,
			Class:   class,
			Elapsed: time.Since(start),
		}

		if class == Terminal {
			notify(observers, a)
			return zero, err
		}
		if attempt == maxAttempts {
			notify(observers, a)
			return zero, &ExhaustedError{Attempts: maxAttempts, Last: err}
		}

		a.Delay = p.jittered(p.Delay(attempt))
		notify(observers, a)

		timer := time.NewTimer(a.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			if budgetErr := budgetExpired(ctx, attempt, err); budgetErr != nil {
				return zero, budgetErr
			}
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	// Unreachable: the loop always returns.
	return zero, lastErr
}

// budgetExpired reports whether ctx ended, mapping a deadline to the
// distinct timeout outcome and passing caller cancellation through as-is.
func budgetExpired(ctx context.Context, attempts int, last error) error {
	switch {
	case ctx.Err() == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TimeoutError{Attempts: attempts, Last: last}
	default:
		return ctx.Err()
	}
}

func notify(observers []Observer, a Attempt) {
	for _, obs := range observers {
		obs(a)
	}
}
