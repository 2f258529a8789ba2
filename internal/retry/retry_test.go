package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelay(t *testing.T) {
	require := require.New(t)

	baseDelay := 100 * time.Millisecond
	maxDelay := 1 * time.Second

	t.Run("exponential growth", func(t *testing.T) {
		require.Equal(100*time.Millisecond, Delay(baseDelay, maxDelay, 0, 0))
		require.Equal(200*time.Millisecond, Delay(baseDelay, maxDelay, 0, 1))
		require.Equal(400*time.Millisecond, Delay(baseDelay, maxDelay, 0, 2))
		require.Equal(800*time.Millisecond, Delay(baseDelay, maxDelay, 0, 3))
	})

	t.Run("max delay cap", func(t *testing.T) {
		require.Equal(maxDelay, Delay(baseDelay, maxDelay, 0, 10))
	})

	t.Run("jitter range", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			d := Delay(baseDelay, maxDelay, 0.2, 0)
			require.GreaterOrEqual(d, 80*time.Millisecond)
			require.LessOrEqual(d, 120*time.Millisecond)
		}
	})
}

func fastPolicy(n int) Policy {
	return Policy{MaxAttempts: n, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestPoll_SucceedsEventually(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), fastPolicy(5), func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPoll_Exhausts(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), fastPolicy(4), func(context.Context) (bool, error) {
		calls++
		return false, errors.New("connection refused")
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 4, calls)
}

func TestPoll_PermanentErrorStops(t *testing.T) {
	boom := errors.New("forbidden")
	calls := 0
	err := Poll(context.Background(), fastPolicy(4), func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsTransientError(t *testing.T) {
	require.False(t, IsTransientError(nil))
	require.True(t, IsTransientError(errors.New("dial tcp: connection refused")))
	require.True(t, IsTransientError(&net.DNSError{IsTimeout: true}))
	require.False(t, IsTransientError(errors.New("bad request")))
}
