// Package resilience retries store calls that fail for transient reasons.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"example.com/activitydedup/internal/domain"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	// Attempts counts the first call. Values below 1 mean 3.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is the +/- fraction applied to each computed delay.
	Jitter float64
	// Retryable defaults to Transient.
	Retryable func(error) bool
	// Notify runs before each sleep.
	Notify func(attempt int, err error)
}

// DefaultPolicy suits page reads against the activity store.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Jitter:    0.2,
	}
}

// Transient reports whether err came from the persistence layer and was not
// caused by cancellation.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrUpstream)
}

// Run calls fn until it succeeds, returns a non-retryable error, exhausts the
// policy or ctx is done. The last error is returned unchanged.
func Run[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = normalize(p)

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt >= p.Attempts {
			return zero, err
		}
		if p.Notify != nil {
			p.Notify(attempt, err)
		}

		timer := time.NewTimer(delay(attempt, p))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func normalize(p Policy) Policy {
	if p.Attempts < 1 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = Transient
	}
	return p
}

// delay doubles per attempt, starting at BaseDelay after the first failure.
func delay(attempt int, p Policy) time.Duration {
	d := math.Min(float64(p.BaseDelay)*math.Pow(2, float64(attempt-1)), float64(p.MaxDelay))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetries returns a Notify callback that logs through the global zap logger.
func LogRetries(operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying after transient failure",
			append(fields, zap.String("operation", operation), zap.Int("attempt", attempt), zap.Error(err))...)
	}
}
