package scheduler

import "time"

// Backoff is an exponential retry policy.
type Backoff struct {
	Initial     time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff waits 1s, 2s, 4s, 8s between five attempts, capped at 30s.
func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Factor: 2, Max: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait after the given failed attempt, counted from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Max) {
			return b.Max
		}
	}
	return min(time.Duration(d), b.Max)
}
