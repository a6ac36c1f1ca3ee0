// Package retry runs an operation again when it fails with a caller-classified
// transient error (typically an HTTP 429 from an LLM endpoint), sleeping with
// exponential backoff plus jitter between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	goretry "github.com/sethvargo/go-retry"

	. "github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
)

var (
	// ErrInvalidPolicy is matched by every *PolicyError.
	ErrInvalidPolicy = errors.New("invalid retry policy")

	// ErrRetriesExhausted is matched by every *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// PolicyError reports a Policy field that cannot be used.
type PolicyError struct {
	Field  string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid retry policy: %s %s", e.Field, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return ErrInvalidPolicy
}

// RetriesExhaustedError is returned when every attempt failed with a retryable error.
// Last is the failure from the final attempt.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// Is lets errors.Is(err, ErrRetriesExhausted) match.
func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// Attempt describes an upcoming retry, passed to Policy.OnRetry before the wait.
type Attempt struct {
	Number int           // 1-indexed attempt about to be made (always >= 2)
	Delay  time.Duration // wait before it, jitter included
	Err    error         // failure of the previous attempt
}

// Policy configures Do. It is passed by value so a call never observes later edits.
type Policy struct {
	// Name labels logs and metrics ("llm", "weather", ...). Optional.
	Name string

	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64

	// MaxJitter bounds the random extra wait, drawn from [0, MaxJitter).
	// Zero disables jitter.
	MaxJitter time.Duration

	// Retryable decides whether a failure is transient. Anything it rejects
	// is returned to the caller immediately.
	Retryable func(error) bool

	// OnRetry is called before each backoff wait. Optional.
	OnRetry func(Attempt)
}

// DefaultPolicy returns 5 attempts starting at 1s, doubling, with up to 500ms of jitter.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxJitter:    500 * time.Millisecond,
		Retryable:    retryable,
	}
}

// Validate rejects unusable values instead of clamping them.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return &PolicyError{Field: "MaxAttempts", Reason: fmt.Sprintf("must be at least 1, got %d", p.MaxAttempts)}
	case p.InitialDelay <= 0:
		return &PolicyError{Field: "InitialDelay", Reason: fmt.Sprintf("must be positive, got %s", p.InitialDelay)}
	case p.Multiplier <= 0 || math.IsNaN(p.Multiplier) || math.IsInf(p.Multiplier, 0):
		return &PolicyError{Field: "Multiplier", Reason: fmt.Sprintf("must be a positive number, got %v", p.Multiplier)}
	case p.MaxJitter < 0:
		return &PolicyError{Field: "MaxJitter", Reason: fmt.Sprintf("must not be negative, got %s", p.MaxJitter)}
	case p.Retryable == nil:
		return &PolicyError{Field: "Retryable", Reason: "must be set"}
	}
	return nil
}

// BaseDelay is the wait before attempt n without jitter:
// InitialDelay * Multiplier^(n-2) for n >= 2, zero for the first attempt.
func (p Policy) BaseDelay(n int) time.Duration {
	if n < 2 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n-2))
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Delay is BaseDelay(n) plus a random jitter in [0, MaxJitter).
func (p Policy) Delay(n int) time.Duration {
	base := p.BaseDelay(n)
	j := jitter(p.MaxJitter)
	if base > math.MaxInt64-j {
		return time.Duration(math.MaxInt64)
	}
	return base + j
}

// jitter is swapped in tests.
var jitter = func(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Do runs op until it succeeds, fails with a non-retryable error, or
// MaxAttempts retryable failures have happened in a row.
//
// Non-retryable errors are returned unchanged. Exhaustion returns a
// *RetriesExhaustedError wrapping the last failure. Cancelling ctx during a
// wait returns ctx.Err(); op is responsible for honouring ctx itself.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}

	topic := "retry/" + p.name()

	var (
		result    T
		attempts  int
		lastErr   error
		exhausted bool
	)

	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		if attempts >= p.MaxAttempts {
			exhausted = true
			return 0, true
		}
		delay := p.Delay(attempts + 1)
		L_warn("retry: transient failure, backing off",
			"policy", p.name(),
			"attempt", attempts,
			"next", attempts+1,
			"delay", delay.Round(time.Millisecond),
			"error", lastErr)
		if p.OnRetry != nil {
			p.OnRetry(Attempt{Number: attempts + 1, Delay: delay, Err: lastErr})
		}
		return delay, false
	})

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		MetricInc(topic, "attempts")

		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}

		lastErr = err
		if p.Retryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		MetricOutcome(topic, "result", "success")
		if attempts > 1 {
			L_debug("retry: succeeded after retries", "policy", p.name(), "attempts", attempts)
		}
		return result, nil
	case exhausted:
		MetricOutcome(topic, "result", "exhausted")
		L_error("retry: giving up", "policy", p.name(), "attempts", attempts, "error", lastErr)
		return zero, &RetriesExhaustedError{Attempts: attempts, Last: lastErr}
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		MetricOutcome(topic, "result", "cancelled")
		return zero, err
	default:
		MetricOutcome(topic, "result", "fatal")
		return zero, err
	}
}

func (p Policy) name() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}
