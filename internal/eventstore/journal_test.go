package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repocache/internal/repocache"
)

func TestJournalRecordsAndProjects(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	proj := NewEntryProjection(store, 10)
	j := NewJournal(store, proj)
	ctx := t.Context()
	at := time.Now().UTC()
	base := repocache.Event{Fingerprint: "fp", Repo: "git@x/y.git", CommitHash: "abc123", At: at}

	for _, typ := range []repocache.EventType{
		repocache.EventLockContention,
		repocache.EventCloneStarted,
		repocache.EventCloneFailed,
		repocache.EventCacheHit,
		repocache.EventCacheHit,
	} {
		ev := base
		ev.Type = typ
		if typ == repocache.EventCloneFailed {
			ev.Message = "Requested path or commit reference does not exist. x"
			ev.Duration = 1500 * time.Millisecond
		}
		j.Observe(ctx, ev)
	}

	events, err := j.Events(ctx, "fp")
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, string(repocache.EventCloneFailed), events[2].Type)

	s, ok := proj.Entry("fp")
	require.True(t, ok)
	assert.Equal(t, 2, s.Hits)
	assert.Equal(t, 1, s.Contentions)
	assert.Equal(t, 1, s.Clones)
	assert.Equal(t, "abc123", s.CommitHash)
	assert.Equal(t, string(repocache.EventCloneFailed), s.LastOutcome)
	assert.Contains(t, s.LastMessage, "does not exist")
	assert.Equal(t, 1500*time.Millisecond, s.LastDuration)

	rebuilt := NewEntryProjection(store, 10)
	require.NoError(t, rebuilt.Rebuild(ctx))
	r, ok := rebuilt.Entry("fp")
	require.True(t, ok)
	assert.Equal(t, s.Hits, r.Hits)
	assert.Equal(t, s.LastOutcome, r.LastOutcome)
	assert.False(t, rebuilt.LastSyncTime().IsZero())
}

func TestJournalSurvivesCanceledContext(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	NewJournal(store, nil).Observe(ctx, repocache.Event{Type: repocache.EventCacheHit, Fingerprint: "fp", Repo: "r"})

	events, err := store.ByFingerprint(t.Context(), "fp")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestProjectionEvictsLeastRecentlySeen(t *testing.T) {
	proj := NewEntryProjection(nil, 2)
	now := time.Now()
	proj.Apply(Event{Fingerprint: "a", Type: "cache_hit", Timestamp: now})
	proj.Apply(Event{Fingerprint: "b", Type: "cache_hit", Timestamp: now.Add(time.Second)})
	proj.Apply(Event{Fingerprint: "c", Type: "cache_hit", Timestamp: now.Add(2 * time.Second)})

	_, ok := proj.Entry("a")
	assert.False(t, ok)
	recent := proj.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Fingerprint)
}
