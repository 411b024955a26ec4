// Package retry decides whether and when a failed clone job is delivered
// again, both for the in-process queue and for JetStream redelivery.
package retry

import (
	"time"

	"git.home.luguber.info/inful/repocache/internal/config"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// maxShift keeps exponential growth from overflowing time.Duration.
const maxShift = 32

// Policy is an immutable redelivery schedule.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int // redeliveries after the first attempt
}

// DefaultPolicy mirrors the queue defaults in config.
func DefaultPolicy() Policy {
	return Policy{
		Mode:       config.RetryBackoffLinear,
		Initial:    config.DefaultRetryInitialDelay,
		Max:        config.DefaultRetryMaxDelay,
		MaxRetries: config.DefaultMaxRetries,
	}
}

// NewPolicy overlays the given values on DefaultPolicy. Zero durations, a
// negative retry count and unknown modes keep the default; Initial is clamped
// to Max.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if config.NormalizeRetryBackoff(string(mode)) != "" {
		p.Mode = config.NormalizeRetryBackoff(string(mode))
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	p.Initial = min(p.Initial, p.Max)
	return p
}

// FromQueueConfig reads the queue section.
func FromQueueConfig(q config.QueueConfig) Policy {
	return NewPolicy(q.RetryBackoff, q.RetryInitialDelay, q.RetryMaxDelay, q.MaxRetries)
}

// Deliveries is the total number of attempts a job may get, which is what
// JetStream calls MaxDeliver.
func (p Policy) Deliveries() int { return p.MaxRetries + 1 }

// Delay is the wait before retry n (1-based). It never exceeds Max.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffExponential:
		if n > maxShift {
			return p.Max
		}
		d = p.Initial << (n - 1)
	default:
		d = p.Initial * time.Duration(n)
	}
	if d <= 0 || d > p.Max {
		return p.Max
	}
	return d
}

// ShouldRetry reports whether err earns another delivery after retries
// previous ones. Unclassified errors are transient; classified ones decide
// through their retry strategy.
func (p Policy) ShouldRetry(err error, retries int) bool {
	if err == nil || retries >= p.MaxRetries {
		return false
	}
	if ce, ok := ferrors.AsClassified(err); ok {
		return ce.CanRetry()
	}
	return true
}
