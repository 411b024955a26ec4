package cachestate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(root, NewFileLocker(root, 0))
	require.NoError(t, err)
	return s
}

func TestEntryStateTable(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	e := s.Entry("f1")

	// never attempted
	in, err := e.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, in.State)
	assert.False(t, e.IsReady(ctx))

	// clone in flight
	h, err := e.AcquireLock(ctx, 0)
	require.NoError(t, err)
	in, err = e.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateInFlight, in.State)
	assert.True(t, in.Locked)

	require.NoError(t, os.MkdirAll(e.Path(), 0o755))
	require.NoError(t, e.MarkReady(Record{Repo: "git@x/y.git", CommitHash: "abc123"}))
	assert.False(t, e.IsReady(ctx), "READY is not visible while LOCK is present")

	require.NoError(t, e.Release(h))
	require.NoError(t, e.Release(h), "release is idempotent")

	// successful terminal entry
	assert.True(t, e.IsReady(ctx))
	in, err = e.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReady, in.State)
	require.NotNil(t, in.Record)
	assert.Equal(t, "f1", in.Record.Fingerprint)
	assert.Equal(t, "abc123", in.Record.CommitHash)
	assert.False(t, in.Record.CompletedAt.IsZero())
	assert.NoFileExists(t, e.Path()+LockSuffix)
}

func TestClassifiedFailureIsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	e := s.Entry("f2")

	h, err := e.AcquireLock(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, e.MarkError("fetch failed"))
	assert.False(t, e.HasReadyMarker(), "MarkError must not write READY")
	require.NoError(t, e.MarkReady(Record{State: StateFailed, Message: "fetch failed"}))
	require.NoError(t, e.Release(h))

	assert.True(t, e.IsReady(ctx))
	in, err := e.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, in.State)
	assert.Equal(t, "fetch failed", in.ErrorMessage)
	assert.True(t, in.State.Terminal())
}

func TestLegacyEmptyReadyMarker(t *testing.T) {
	s := newTestStore(t)
	e := s.Entry("legacy")
	require.NoError(t, os.WriteFile(e.Path()+ReadySuffix, nil, 0o644))
	require.NoError(t, os.WriteFile(e.Path()+ErrorSuffix, []byte("Some requested folders do not exist\n"), 0o644))

	in, err := e.Inspect(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, in.State)
	assert.Nil(t, in.Record)
	assert.Equal(t, "Some requested folders do not exist", in.ErrorMessage)
}

func TestPurgeRemovesContentAndMarkers(t *testing.T) {
	s := newTestStore(t)
	e := s.Entry("f3")
	require.NoError(t, os.MkdirAll(filepath.Join(e.Path(), "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.Path(), "sub", "file"), []byte("x"), 0o644))
	require.NoError(t, e.MarkError("boom"))
	require.NoError(t, e.MarkReady(Record{}))

	require.NoError(t, e.Purge())
	assert.NoDirExists(t, e.Path())
	assert.NoFileExists(t, e.Path()+ReadySuffix)
	assert.NoFileExists(t, e.Path()+ErrorSuffix)

	in, err := e.Inspect(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, in.State)
}

func TestReleaseNilHandle(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Entry("none").Release(nil))
}

func TestFingerprintsListing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Entry("aa").Path(), 0o755))
	require.NoError(t, s.Entry("bb").MarkError("x"))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "cc"+LockSuffix), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "aa"+ReadySuffix+".tmp-123"), nil, 0o644))

	fps, err := s.Fingerprints()
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb", "cc"}, fps)
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore("", NewFileLocker("x", 0))
	require.Error(t, err)
	_, err = NewStore(t.TempDir(), nil)
	require.Error(t, err)
}
