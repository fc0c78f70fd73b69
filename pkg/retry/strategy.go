// Package retry maps classified provider failures to retry decisions.
// Strategies are pure: jitter is re-rolled on every call so that many
// jobs failing together do not retry in lockstep.
package retry

import (
	"errors"
	"math/rand"
	"time"
)

const (
	// DefaultAttempts is the retry budget for transient and rate-limited failures.
	DefaultAttempts = 5
	// DefaultTransientDelay is the base delay for the exponential policy.
	DefaultTransientDelay = 5 * time.Second
	// DefaultRateLimitDelay applies when the provider gave no retry hint.
	DefaultRateLimitDelay = 10 * time.Second
	// MaxRetryAfter caps provider-supplied retry hints.
	MaxRetryAfter = 2 * time.Minute

	jitterFraction = 0.2
)

// Shape selects how the delay grows across attempts.
type Shape string

const (
	ShapeFixed       Shape = "fixed"
	ShapeExponential Shape = "exponential"
)

// Backoff is the delay policy attached to a job at enqueue time.
type Backoff struct {
	Shape Shape         `json:"shape"`
	Delay time.Duration `json:"delay"`
}

// Decision is the retry budget computed for one enqueue.
type Decision struct {
	Attempts int     `json:"attempts"`
	Backoff  Backoff `json:"backoff"`
}

// Failure is the classification input extracted from a provider error.
type Failure struct {
	StatusCode int
	Code       string
	RetryAfter time.Duration
}

// FailureCarrier is implemented by provider errors that expose the
// metadata needed for classification.
type FailureCarrier interface {
	error
	FailureMeta() Failure
}

// AsFailure extracts classification metadata from an error chain.
// Errors that carry no provider metadata return nil and classify as
// transient.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var carrier FailureCarrier
	if !errors.As(err, &carrier) {
		return nil
	}
	failure := carrier.FailureMeta()
	return &failure
}

// Class buckets a failure for worker-side handling.
type Class int

const (
	// ClassTransient covers 5xx, timeouts and anything unclassified.
	ClassTransient Class = iota
	// ClassNonRetryable covers 4xx (except 429) and malformed payloads.
	ClassNonRetryable
	// ClassRateLimited covers 429 responses.
	ClassRateLimited
)

func (c Class) String() string {
	switch c {
	case ClassNonRetryable:
		return "non_retryable"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// Classify buckets a failure by its HTTP-like status.
func Classify(f Failure) Class {
	switch {
	case f.StatusCode == 429:
		return ClassRateLimited
	case f.StatusCode >= 400 && f.StatusCode < 500:
		return ClassNonRetryable
	default:
		return ClassTransient
	}
}

// Decide maps a classified failure to a retry decision. A nil failure
// means "no prior error is known" and yields the transient policy.
func Decide(f *Failure) Decision {
	if f == nil {
		return Decision{
			Attempts: DefaultAttempts,
			Backoff:  Backoff{Shape: ShapeExponential, Delay: Jitter(DefaultTransientDelay)},
		}
	}

	switch Classify(*f) {
	case ClassNonRetryable:
		return Decision{
			Attempts: 1,
			Backoff:  Backoff{Shape: ShapeFixed, Delay: 0},
		}
	case ClassRateLimited:
		hint := f.RetryAfter
		if hint <= 0 {
			hint = DefaultRateLimitDelay
		}
		if hint > MaxRetryAfter {
			hint = MaxRetryAfter
		}
		return Decision{
			Attempts: DefaultAttempts,
			Backoff:  Backoff{Shape: ShapeFixed, Delay: Jitter(hint)},
		}
	default:
		return Decision{
			Attempts: DefaultAttempts,
			Backoff:  Backoff{Shape: ShapeExponential, Delay: Jitter(DefaultTransientDelay)},
		}
	}
}

// Jitter returns a duration uniformly distributed within ±20% of base.
func Jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	spread := float64(base) * jitterFraction
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(base) + offset)
}

// NextDelay computes the wait before retry attempt (1-indexed) for a
// job-level backoff spec, capped at max when max > 0.
func NextDelay(b Backoff, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Delay
	if b.Shape == ShapeExponential {
		for idx := 1; idx < attempt; idx++ {
			if max > 0 && delay >= max/2 {
				return max
			}
			delay *= 2
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
