package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/metrics"
)

const (
	DefaultRetryAttempts = 2
	DefaultRetryBackoff  = time.Second
)

// Retrier runs a call up to Attempts times in total. Only transient errors
// are retried, waiting Backoff*attempt between tries.
type Retrier struct {
	Attempts int
	Backoff  time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
	Logger   *zap.Logger
}

// NewRetrier returns a Retrier with the default attempt count and backoff.
func NewRetrier(logger *zap.Logger) *Retrier {
	return &Retrier{Attempts: DefaultRetryAttempts, Backoff: DefaultRetryBackoff, Sleep: sleepContext, Logger: logger}
}

// Do calls fn until it succeeds, fails permanently or runs out of attempts.
func (r *Retrier) Do(ctx context.Context, provider string, fn func(ctx context.Context) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= attempts {
			return err
		}
		wait := r.Backoff * time.Duration(attempt)
		if r.Logger != nil {
			r.Logger.Warn("retrying upstream call",
				zap.String("provider", provider),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}
		metrics.IncrementRetry(provider)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
