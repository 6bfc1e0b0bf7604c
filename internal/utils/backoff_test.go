package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffNetworkIsExponential(t *testing.T) {
	b := DefaultBackoff()

	wait, ok := b.Next(0, FailureNetwork)
	assert.True(t, ok)
	assert.Equal(t, time.Second, wait)

	wait, ok = b.Next(1, FailureNetwork)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	_, ok = b.Next(2, FailureNetwork)
	assert.False(t, ok, "third attempt is the last one")
}

func TestBackoffRateLimitIsLinear(t *testing.T) {
	b := NewBackoff(time.Second, 60*time.Second, 4)

	for attempt, want := range []time.Duration{60 * time.Second, 120 * time.Second, 180 * time.Second} {
		wait, ok := b.Next(attempt, FailureRateLimit)
		assert.True(t, ok)
		assert.Equal(t, want, wait)
	}
	_, ok := b.Next(3, FailureRateLimit)
	assert.False(t, ok)
}

func TestBackoffSingleAttempt(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 0)
	assert.Equal(t, 1, b.MaxRetries())
	_, ok := b.Next(0, FailureNetwork)
	assert.False(t, ok)
}

func TestBackoffDo(t *testing.T) {
	b := NewBackoff(time.Millisecond, time.Millisecond, 3)
	calls := 0
	err := b.Do(context.Background(), func(i int) error {
		calls++
		if i < 2 {
			return errors.New("boom")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = b.Do(context.Background(), func(int) error {
		calls++
		return errors.New("always")
	})
	assert.EqualError(t, err, "always")
	assert.Equal(t, 3, calls)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
