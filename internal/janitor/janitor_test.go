package janitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/metrics"
)

type removedRecorder struct {
	metrics.NoopRecorder
	removed map[string]int
}

func (r *removedRecorder) AddJanitorRemoved(kind string, n int) {
	if r.removed == nil {
		r.removed = map[string]int{}
	}
	r.removed[kind] += n
}

func newStore(t *testing.T) *cachestate.Store {
	t.Helper()
	root := t.TempDir()
	store, err := cachestate.NewStore(root, cachestate.NewFileLocker(root, 2*time.Millisecond))
	require.NoError(t, err)
	return store
}

func writeContent(t *testing.T, e *cachestate.Entry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.Path(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.Path(), "README.md"), []byte("x"), 0o644))
}

func TestSweepReclaimsStaleLock(t *testing.T) {
	store := newStore(t)
	e := store.Entry("stale")
	writeContent(t, e)
	require.NoError(t, e.MarkReady(cachestate.Record{Repo: "r", CommitHash: "c"}))
	// A marker file with no flock behind it: the holder crashed.
	require.NoError(t, os.WriteFile(e.Path()+cachestate.LockSuffix, []byte("host=gone pid=1\n"), 0o644))

	rec := &removedRecorder{}
	rep, err := New(store, 0).WithRecorder(rec).Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.StaleLocks)
	assert.Equal(t, 0, rep.Orphans)
	assert.Equal(t, 1, rec.removed[KindStaleLock])
	assert.NoFileExists(t, e.Path()+cachestate.LockSuffix)
	assert.True(t, e.IsReady(t.Context()), "ready content survives")
}

func TestSweepClearsOrphanContent(t *testing.T) {
	store := newStore(t)
	e := store.Entry("orphan")
	writeContent(t, e)

	rep, err := New(store, 0).Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Orphans)
	assert.NoDirExists(t, e.Path())
}

func TestSweepSkipsLiveLock(t *testing.T) {
	store := newStore(t)
	e := store.Entry("busy")
	writeContent(t, e)
	h, err := e.AcquireLock(t.Context(), time.Second)
	require.NoError(t, err)
	defer func() { _ = e.Release(h) }()

	rep, err := New(store, 0).Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Busy)
	assert.Equal(t, 0, rep.Orphans)
	assert.DirExists(t, e.Path())
	assert.FileExists(t, e.Path()+cachestate.LockSuffix)
}

func TestSweepExpiresOldFailuresOnlyWithTTL(t *testing.T) {
	store := newStore(t)
	old := store.Entry("old-failure")
	writeContent(t, old)
	require.NoError(t, old.MarkError("clone failed (exit status 128): gone"))
	require.NoError(t, old.MarkReady(cachestate.Record{
		State:       cachestate.StateFailed,
		Message:     "clone failed (exit status 128): gone",
		CompletedAt: time.Now().Add(-2 * time.Hour),
	}))
	fresh := store.Entry("fresh-failure")
	require.NoError(t, fresh.MarkReady(cachestate.Record{State: cachestate.StateFailed, Message: "nope"}))

	rep, err := New(store, 0).Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.ExpiredFailures)
	assert.FileExists(t, old.Path()+cachestate.ReadySuffix)

	rep, err = New(store, time.Hour).Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ExpiredFailures)
	assert.NoFileExists(t, old.Path()+cachestate.ReadySuffix)
	assert.NoFileExists(t, old.Path()+cachestate.ErrorSuffix)
	assert.NoDirExists(t, old.Path())
	assert.FileExists(t, fresh.Path()+cachestate.ReadySuffix)
}

func TestScheduledSweep(t *testing.T) {
	store := newStore(t)
	e := store.Entry("orphan")
	writeContent(t, e)

	j := New(store, 0)
	require.NoError(t, j.Start(t.Context(), 20*time.Millisecond))
	defer func() { _ = j.Stop() }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(e.Path())
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, New(newStore(t), 0).Stop())
}
