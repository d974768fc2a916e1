package crews

import (
	"context"
	"sync"
	"time"
)

// DefaultRateWindow is the rolling window max_rpm is measured against.
const DefaultRateWindow = time.Minute

// WindowLimiter bounds how many invocations may start within any rolling
// window. It keeps the start times of the last limit invocations; a caller
// blocks until the oldest of them leaves the window.
type WindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	starts []time.Time
}

// NewWindowLimiter creates a limiter allowing limit starts per window.
// A limit of 0 or less disables limiting.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &WindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until a start fits into the window, then records it. It
// returns how long the caller waited, or the context error if ctx ended
// first; in that case nothing is recorded.
func (l *WindowLimiter) Wait(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if l == nil || l.limit <= 0 {
		return 0, nil
	}

	began := l.now()
	for {
		delay := l.reserve()
		if delay == 0 {
			return l.now().Sub(began), nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return l.now().Sub(began), ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a start and returns 0 if budget is available, otherwise
// the time until the oldest recorded start expires.
func (l *WindowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	drop := 0
	for drop < len(l.starts) && !l.starts[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		l.starts = append(l.starts[:0], l.starts[drop:]...)
	}

	if len(l.starts) < l.limit {
		l.starts = append(l.starts, now)
		return 0
	}
	delay := l.starts[0].Add(l.window).Sub(now)
	if delay <= 0 {
		delay = time.Millisecond
	}
	return delay
}

// InFlight returns the number of starts inside the current window.
func (l *WindowLimiter) InFlight() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	n := 0
	for _, s := range l.starts {
		if s.After(cutoff) {
			n++
		}
	}
	return n
}
