package eventstore

import (
	"context"
	"time"
)

// Store is the append-only event log behind the Journal.
type Store interface {
	Append(ctx context.Context, ev Event) error
	// ByFingerprint lists one entry's events in append order.
	ByFingerprint(ctx context.Context, fingerprint string) ([]Event, error)
	// Range lists events with from <= Timestamp <= to in append order.
	Range(ctx context.Context, from, to time.Time) ([]Event, error)
	Close() error
}
