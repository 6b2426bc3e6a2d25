package lbank

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// admissionEpsilon pads the computed sleep so the oldest stamp has really
// left the window when the caller re-checks.
const admissionEpsilon = 100 * time.Millisecond

// SlidingWindowLimiter admits at most maxRequests calls within any trailing
// window. Admission order is FIFO with respect to lock acquisition; there is
// no fairness guarantee beyond that. Safe for concurrent use.
type SlidingWindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
	logger      *zap.Logger
}

// NewSlidingWindowLimiter creates a limiter admitting maxRequests per window.
func NewSlidingWindowLimiter(maxRequests int, window time.Duration, logger *zap.Logger) *SlidingWindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		stamps:      make([]time.Time, 0, maxRequests),
		logger:      logger,
	}
}

// Await blocks until issuing one more request would not exceed the ceiling,
// then records the admission. The wait is cooperative: the lock is released
// while sleeping and ctx cancellation aborts the wait.
func (l *SlidingWindowLimiter) Await(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.purge(now)

		if len(l.stamps) < l.maxRequests {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		sleep := l.window - now.Sub(l.stamps[0]) + admissionEpsilon
		l.mu.Unlock()

		if sleep <= 0 {
			continue
		}

		l.logger.Warn("rate limit reached, waiting",
			zap.Int("max_requests", l.maxRequests),
			zap.Duration("window", l.window),
			zap.Duration("sleep", sleep))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// purge drops stamps older than the trailing window. Callers must hold mu.
func (l *SlidingWindowLimiter) purge(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.stamps) && l.stamps[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[idx:]...)
	}
}

// Admitted returns how many admissions are currently inside the window.
func (l *SlidingWindowLimiter) Admitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge(time.Now())
	return len(l.stamps)
}
