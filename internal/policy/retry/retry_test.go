package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fast(attempts int) *Exponential {
	return &Exponential{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	err := fast(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	err := fast(2).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.EqualError(t, err, "still down")
	require.Equal(t, 2, calls)
}

func TestDoPermanentNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	rejected := errors.New("rejected")
	err := fast(5).Do(context.Background(), func(context.Context) error {
		calls++
		return &Permanent{Err: rejected}
	})
	require.ErrorIs(t, err, rejected)
	require.Equal(t, 1, calls)
}

func TestShouldRetrySkipsContextErrors(t *testing.T) {
	t.Parallel()
	p := NewExponential()
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(nil, 1))
	require.True(t, p.ShouldRetry(errors.New("reset"), 1))
	require.False(t, p.ShouldRetry(errors.New("reset"), 3))
}

func TestBackoffBounded(t *testing.T) {
	t.Parallel()
	p := NewExponential()
	for attempt := range 10 {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, p.MaxDelay)
	}
}
