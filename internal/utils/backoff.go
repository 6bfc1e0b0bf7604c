package utils

import (
	"context"
	"time"
)

type Failure int

const (
	FailureNetwork Failure = iota
	FailureRateLimit
)

// Backoff decides how long to wait before the next attempt. It holds no
// state; callers own the attempt counter.
type Backoff struct {
	base       time.Duration
	rateStep   time.Duration
	maxRetries int
}

// NewBackoff returns a policy allowing maxRetries total attempts. Network
// failures wait base*2^attempt, rate limits wait rateStep*(attempt+1).
func NewBackoff(base, rateStep time.Duration, maxRetries int) Backoff {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return Backoff{base: base, rateStep: rateStep, maxRetries: maxRetries}
}

// DefaultBackoff is 1s exponential, 60s linear rate-limit steps, 3 attempts.
func DefaultBackoff() Backoff {
	return NewBackoff(time.Second, 60*time.Second, 3)
}

func (b Backoff) MaxRetries() int { return b.maxRetries }

// Next reports the wait before retrying after attempt (0-based) failed, and
// false once the attempt budget is spent.
func (b Backoff) Next(attempt int, f Failure) (time.Duration, bool) {
	if attempt >= b.maxRetries-1 {
		return 0, false
	}
	if f == FailureRateLimit {
		return time.Duration(attempt+1) * b.rateStep, true
	}
	return time.Duration(1<<attempt) * b.base, true
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Do runs fn until it succeeds or the network budget is spent.
func (b Backoff) Do(ctx context.Context, fn func(i int) error) error {
	var err error
	for i := 0; ; i++ {
		if err = fn(i); err == nil {
			return nil
		}
		wait, ok := b.Next(i, FailureNetwork)
		if !ok {
			return err
		}
		if serr := Sleep(ctx, wait); serr != nil {
			return err
		}
	}
}
