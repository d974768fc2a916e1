package crews

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowLimiter_Unlimited(t *testing.T) {
	l := NewWindowLimiter(0, time.Hour)
	for i := 0; i < 1000; i++ {
		waited, err := l.Wait(context.Background())
		require.NoError(t, err)
		assert.Zero(t, waited)
	}
	assert.Zero(t, l.InFlight())
}

func TestWindowLimiter_BoundsStartsPerWindow(t *testing.T) {
	const window = 150 * time.Millisecond
	l := NewWindowLimiter(2, window)

	var starts []time.Time
	for i := 0; i < 5; i++ {
		_, err := l.Wait(context.Background())
		require.NoError(t, err)
		starts = append(starts, time.Now())
	}

	for i := 0; i+2 < len(starts); i++ {
		gap := starts[i+2].Sub(starts[i])
		assert.GreaterOrEqual(t, gap, window-10*time.Millisecond, "starts %d and %d share a window", i, i+2)
	}
	assert.LessOrEqual(t, l.InFlight(), 2)
}

func TestWindowLimiter_WaitHonoursContext(t *testing.T) {
	l := NewWindowLimiter(1, time.Hour)
	_, err := l.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	began := time.Now()
	_, err = l.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(began), time.Second)
	assert.Equal(t, 1, l.InFlight(), "a cancelled wait records nothing")

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = l.Wait(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
