package repocache

import (
	"context"
	"time"
)

// EventType names an orchestrator or worker observation.
type EventType string

const (
	EventCacheHit       EventType = "cache_hit"
	EventLockContention EventType = "lock_contention"
	EventCloneStarted   EventType = "clone_started"
	EventCloneSucceeded EventType = "clone_succeeded"
	EventCloneFailed    EventType = "clone_failed"
	EventClonePurged    EventType = "clone_purged"
	EventPoolExhausted  EventType = "pool_exhausted"
)

// Event is one observation about a cache entry.
type Event struct {
	Type        EventType
	Fingerprint string
	Repo        string
	CommitHash  string
	Message     string
	Duration    time.Duration
	At          time.Time
}

// Observer receives events. Implementations must not block for long; they run
// on the request path.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out to several observers.
type Observers []Observer

func (obs Observers) Observe(ctx context.Context, ev Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

type noopObserver struct{}

func (noopObserver) Observe(context.Context, Event) {}
