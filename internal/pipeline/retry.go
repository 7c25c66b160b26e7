package pipeline

import "time"

// RetryPolicy bounds how often a failed pipeline attempt is restarted. The
// backoff is a single fixed duration reused on every attempt; growth across
// attempts is a tunable deliberately left out.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of failures so far.
func (p RetryPolicy) ShouldRetry(failuresSoFar int) bool {
	return failuresSoFar <= p.MaxRetries
}
