package pipeline

import (
	"context"
	"time"

	"listingpilot/internal/stageerr"
)

// RetryPolicy bounds how a stage retries transient failures: up to MaxAttempts
// calls with exponential backoff between them, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is 3 attempts with exponential backoff: 1s base,
// doubling, capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    8 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}
	return p
}

// Delay returns the backoff before the given 1-based attempt. The first
// attempt runs immediately.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails permanently, exhausts the attempt
// budget, or the context ends. Permanent failures are never retried.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	p = p.normalized()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return stageerr.Transient(ctx.Err())
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return stageerr.Transient(err)
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !stageerr.IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
