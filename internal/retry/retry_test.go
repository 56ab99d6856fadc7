package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/retry"
)

var (
	errTransient = errors.New("upstream flaked")
	errPermanent = errors.New("content rejected")
)

// classify treats errPermanent as terminal, everything else as retryable.
func classify(err error) retry.Class {
	if errors.Is(err, errPermanent) {
		return retry.Terminal
	}
	return retry.Retryable
}

// fastPolicy keeps tests quick; backoff math is covered separately.
func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Multiplier: 2,
		Timeout:    5 * time.Second,
	}
}

func TestDo_SuccessReturnsImmediately(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), fastPolicy(), classify,
		func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want ok after 1", got, calls)
	}
}

func TestDo_TerminalFailsAfterOneAttempt(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(), classify,
		func(context.Context) (string, error) {
			calls++
			return "", errPermanent
		})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("err = %v, want the terminal error untouched", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want exactly 1", calls)
	}
}

func TestDo_RetryableExhaustsAllAttempts(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy(), classify,
		func(context.Context) (string, error) {
			calls++
			return "", errTransient
		})

	if calls != 4 {
		t.Errorf("calls = %d, want maxRetries+1 = 4", calls)
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", exhausted.Attempts)
	}
	if !errors.Is(err, errTransient) {
		t.Error("exhausted error does not wrap the last failure")
	}
}

func TestDo_RecoversWhenAnAttemptSucceeds(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), fastPolicy(), classify,
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errTransient
			}
			return 42, nil
		})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls, want 42 after 3", got, calls)
	}
}

func TestPolicy_DelayGrowsExponentially(t *testing.T) {
	p := retry.Policy{BaseDelay: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo_JitterStaysWithinFraction(t *testing.T) {
	p := retry.Policy{
		MaxRetries:     3,
		BaseDelay:      10 * time.Millisecond,
		Multiplier:     1, // constant base so bounds are easy
		JitterFraction: 0.5,
		Timeout:        5 * time.Second,
	}

	var delays []time.Duration
	_, _ = retry.Do(context.Background(), p, classify,
		func(context.Context) (string, error) { return "", errTransient },
		func(a retry.Attempt) {
			if a.Delay > 0 {
				delays = append(delays, a.Delay)
			}
		})

	if len(delays) != 3 {
		t.Fatalf("recorded %d delays, want 3", len(delays))
	}
	for i, d := range delays {
		if d < 5*time.Millisecond || d > 15*time.Millisecond {
			t.Errorf("delay %d = %v, want within ±50%% of 10ms", i+1, d)
		}
	}
}

func TestDo_TimeoutBeatsRetryableOutcome(t *testing.T) {
	p := retry.Policy{
		MaxRetries: 10,
		BaseDelay:  200 * time.Millisecond,
		Multiplier: 2,
		Timeout:    50 * time.Millisecond,
	}

	_, err := retry.Do(context.Background(), p, classify,
		func(context.Context) (string, error) { return "", errTransient })

	if !errors.Is(err, retry.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	var timeout *retry.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if timeout.Attempts < 1 {
		t.Errorf("attempts = %d, want at least 1 preserved", timeout.Attempts)
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("timeout reported as exhaustion")
	}
}

func TestDo_LateSuccessIsDiscardedAfterTimeout(t *testing.T) {
	p := retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2, Timeout: 30 * time.Millisecond}

	// The operation ignores its context and "succeeds" after the budget has
	// already elapsed. That result must not be surfaced.
	_, err := retry.Do(context.Background(), p, classify,
		func(context.Context) (string, error) {
			time.Sleep(60 * time.Millisecond)
			return "too late", nil
		})

	if !errors.Is(err, retry.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestDo_CallerCancelIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := retry.Policy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 2, Timeout: 5 * time.Second}
	_, err := retry.Do(ctx, p, classify,
		func(context.Context) (string, error) { return "", errTransient })

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, retry.ErrTimeout) {
		t.Error("caller cancellation reported as retry timeout")
	}
}

func TestDo_ObserverSeesEveryFailedAttempt(t *testing.T) {
	var attempts []retry.Attempt
	_, _ = retry.Do(context.Background(), fastPolicy(), classify,
		func(context.Context) (string, error) { return "", errTransient },
		func(a retry.Attempt) { attempts = append(attempts, a) })

	if len(attempts) != 4 {
		t.Fatalf("observed %d attempts, want 4", len(attempts))
	}
	for i, a := range attempts {
		if a.Number != i+1 {
			t.Errorf("attempt %d numbered %d", i+1, a.Number)
		}
		if a.Class != retry.Retryable {
			t.Errorf("attempt %d class = %v, want Retryable", i+1, a.Class)
		}
	}
	if last := attempts[len(attempts)-1]; last.Delay != 0 {
		t.Errorf("final attempt has delay %v, want 0 (no retry follows)", last.Delay)
	}
}
