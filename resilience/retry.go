package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures Retry.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3
	Attempts int

	// Delay is the wait before the first retry. It doubles per retry.
	// Default: 100ms
	Delay time.Duration

	// MaxDelay caps the wait between retries.
	// Default: 5s
	MaxDelay time.Duration

	// Jitter adds up to 25% random delay.
	Jitter bool

	// Retryable decides whether err is worth another attempt.
	// Default: every error except short circuits and context errors.
	Retryable func(err error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry re-runs failed calls with exponential backoff.
type Retry struct {
	cfg RetryConfig
}

// NewRetry creates a retry policy.
func NewRetry(cfg RetryConfig) *Retry {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Retryable == nil {
		cfg.Retryable = retryable
	}
	return &Retry{cfg: cfg}
}

func retryable(err error) bool {
	return err != nil && !IsShortCircuit(err) && err != context.Canceled && err != context.DeadlineExceeded
}

// Do runs op up to Attempts times and returns the last error.
func (r *Retry) Do(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= r.cfg.Attempts || !r.cfg.Retryable(err) {
			return err
		}

		delay := r.Backoff(attempt)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Backoff returns the wait after the given failed attempt.
func (r *Retry) Backoff(attempt int) time.Duration {
	delay := r.cfg.Delay
	for i := 1; i < attempt && delay < r.cfg.MaxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, r.cfg.MaxDelay)
	if r.cfg.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}
