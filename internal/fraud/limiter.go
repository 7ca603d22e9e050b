package fraud

import "time"

// Policy names a rate limit and carries its window and threshold. Each
// policy owns an independent WindowCounter, so tripping one never consumes
// budget from another.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxAttempts int
}

// Limiter enforces a single named policy over a fixed-window counter.
type Limiter struct {
	policy  Policy
	counter *WindowCounter
}

// NewLimiter creates a limiter for the given policy.
func NewLimiter(policy Policy) *Limiter {
	return &Limiter{
		policy:  policy,
		counter: NewWindowCounter(policy.Window),
	}
}

// Allow records one attempt for key. It returns whether the attempt is
// within the policy, the attempt count in the current window, and, when
// blocked, how long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (allowed bool, count int, retryAfter time.Duration) {
	count = l.counter.Record(key)
	if count > l.policy.MaxAttempts {
		return false, count, l.counter.RetryAfter(key)
	}
	return true, count, 0
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Sweep removes expired windows and returns the number removed.
func (l *Limiter) Sweep(now time.Time) int {
	return l.counter.Sweep(now)
}
