// Package retry provides the single retry policy shared by every remote
// call. Retryable conditions, backoff and attempt caps live in one value
// object instead of being duplicated per client method.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrTransient marks failures worth retrying (connection timeouts, resets,
// throttling responses). Clients wrap such errors with %w so the default
// predicate recognizes them.
var ErrTransient = errors.New("transient error")

// HintedError carries a server-provided "retry after" delay alongside the
// underlying failure. When present, the hint takes precedence over the
// computed backoff.
type HintedError struct {
	Err   error
	After time.Duration
}

func (e *HintedError) Error() string { return e.Err.Error() }
func (e *HintedError) Unwrap() error { return e.Err }

// WithHint wraps err as transient with a server-provided delay hint.
func WithHint(err error, after time.Duration) error {
	return &HintedError{Err: err, After: after}
}

// Policy is an immutable retry configuration.
type Policy struct {
	// MaxAttempts caps total tries, including the first. Minimum 1.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff (base * 2^attempt).
	BaseDelay time.Duration
	// MaxDelay caps a single computed backoff.
	MaxDelay time.Duration
	// Jitter randomizes each delay by up to the given fraction (0..1).
	Jitter float64
	// Retryable decides whether an error is worth another attempt. Nil
	// means the default predicate (ErrTransient or a HintedError).
	Retryable func(error) bool

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used against the platform APIs.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	var hinted *HintedError
	return errors.Is(err, ErrTransient) || errors.As(err, &hinted)
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// delay computes the backoff before attempt n (0-based), honoring a server
// hint when err carries one.
func (p Policy) delay(attempt int, err error) time.Duration {
	var hinted *HintedError
	if errors.As(err, &hinted) && hinted.After > 0 {
		return hinted.After
	}
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

// Do runs fn until it succeeds, a non-retryable error occurs, attempts are
// exhausted, or ctx is cancelled. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if werr := p.wait(ctx, p.delay(attempt-1, err)); werr != nil {
				return werr
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
	}
	return err
}
