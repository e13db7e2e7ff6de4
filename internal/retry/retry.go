package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy handles retry logic with exponential backoff
type Policy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	retryable    func(error) bool
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Policy
type Option func(*Policy)

// WithRetryable limits retries to errors the predicate accepts.
// Other errors are returned after the first attempt.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) { p.retryable = fn }
}

// WithMaxDelay caps the backoff delay
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithSleep replaces the wait between attempts (tests)
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = fn }
}

// NewPolicy creates a new retry policy
func NewPolicy(maxAttempts int, initialDelay time.Duration, opts ...Option) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := &Policy{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     30 * time.Second, // Cap at 30 seconds
		retryable:    func(error) bool { return true },
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the configured attempt limit
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Execute runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx ends. fn receives the 1-based attempt number.
func (p *Policy) Execute(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	delay := p.initialDelay

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}

		lastErr = err

		// Don't sleep after last attempt
		if attempt < p.maxAttempts {
			if err := p.sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
			}
			delay *= 2
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
