package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is the attempt budget used by tool channels
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is multiplied by the attempt index between attempts
	DefaultBaseDelay = 1000 * time.Millisecond
)

// Policy configures a bounded retry
type Policy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
}

// DefaultPolicy returns 3 attempts with a 1s linear step
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Delay returns the wait after the given failed attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(attempt) * p.BaseDelay
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Func is the retried operation. attempt is 1-based.
type Func func(ctx context.Context, attempt int) error

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryHook observes a failed attempt before the wait
type RetryHook func(attempt int, delay time.Duration, err error)

type options struct {
	sleep   Sleeper
	onRetry RetryHook
}

// Option customizes Do
type Option func(*options)

// WithSleeper overrides the wait implementation (tests use it to record delays)
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

// OnRetry registers a hook called after every failed attempt that will be retried
func OnRetry(hook RetryHook) Option {
	return func(o *options) {
		o.onRetry = hook
	}
}

// ExhaustedError is returned when every attempt failed
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, or the policy is exhausted
func Do(ctx context.Context, policy Policy, op string, fn Func, opts ...Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	policy = policy.normalized()

	o := options{sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		// Last attempt - don't wait
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		if o.onRetry != nil {
			o.onRetry(attempt, delay, err)
		}

		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &ExhaustedError{Op: op, Attempts: policy.MaxAttempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
