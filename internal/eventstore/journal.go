package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/repocache"
)

// Journal records orchestrator and worker events in a Store. It implements
// repocache.Observer; write failures are logged and never reach the caller.
type Journal struct {
	store      Store
	projection *EntryProjection
	logger     *slog.Logger
}

// NewJournal wraps store. projection may be nil.
func NewJournal(store Store, projection *EntryProjection) *Journal {
	return &Journal{store: store, projection: projection, logger: slog.Default()}
}

// Observe appends ev to the store.
func (j *Journal) Observe(ctx context.Context, ev repocache.Event) {
	payload, err := json.Marshal(Payload{
		CommitHash: ev.CommitHash,
		Message:    ev.Message,
		DurationMS: float64(ev.Duration.Microseconds()) / 1000,
	})
	if err != nil {
		j.logger.Warn("Failed to encode event payload", logfields.Error(err))
		return
	}
	rec := Event{
		Fingerprint: ev.Fingerprint,
		Repo:        ev.Repo,
		Type:        string(ev.Type),
		Timestamp:   ev.At,
		Payload:     payload,
	}
	if err := j.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		j.logger.Warn("Failed to journal event",
			logfields.Fingerprint(ev.Fingerprint),
			slog.String("event_type", string(ev.Type)),
			logfields.Error(err))
		return
	}
	if j.projection != nil {
		j.projection.Apply(rec)
	}
}

// Events returns the journal for one fingerprint.
func (j *Journal) Events(ctx context.Context, fingerprint string) ([]Event, error) {
	return j.store.ByFingerprint(ctx, fingerprint)
}
