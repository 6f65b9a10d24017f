package retry

import (
	"context"
	"time"
)

// Policy describes a bounded retry for transport-class failures: the call is
// retried automatically at most MaxAttempts-1 times, then the last error is
// surfaced to the caller.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// sleep is injectable for tests.
	sleep func(time.Duration)
}

// Default is one automatic retry with a short gap.
func Default() Policy {
	return Policy{MaxAttempts: 2, Delay: 250 * time.Millisecond, sleep: time.Sleep}
}

// WithSleep returns a copy of the policy using the given sleep function.
func (p Policy) WithSleep(sleep func(time.Duration)) Policy {
	p.sleep = sleep
	return p
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// Retryability is decided by the retryable predicate; a nil predicate retries
// every error.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == attempts {
			break
		}
		if retryable != nil && !retryable(err) {
			break
		}
		if p.Delay > 0 {
			sleep(p.Delay)
		}
	}
	return lastErr
}
