package asset

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// pollPolicy spaces media-status polls: initial, doubling up to maxDelay,
// until timeout has elapsed.
type pollPolicy struct {
	initial  time.Duration
	maxDelay time.Duration
	timeout  time.Duration
}

func newPollPolicy(initial, maxDelay, timeout time.Duration) pollPolicy {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return pollPolicy{initial: initial, maxDelay: maxDelay, timeout: timeout}
}

// backOff returns the schedule without jitter; clock measures the timeout.
func (p pollPolicy) backOff(clock backoff.Clock) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.maxDelay
	b.MaxElapsedTime = p.timeout
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Clock = clock
	b.Reset()
	return b
}
