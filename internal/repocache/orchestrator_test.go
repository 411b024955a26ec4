package repocache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/git"
	"git.home.luguber.info/inful/repocache/internal/metrics"
	"git.home.luguber.info/inful/repocache/internal/request"
)

const testRepo = "git@x/y.git"

// fakeCloner writes a marker file into dest, or fails as configured.
type fakeCloner struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	panic bool
}

func (f *fakeCloner) Clone(ctx context.Context, dest, commit string, _ []string, _ bool) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.panic {
		panic("delegate exploded")
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dest, "HEAD"), []byte(commit), 0o644); err != nil {
		return err
	}
	return f.err
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu         sync.Mutex
	hits       int
	contention int
	outcomes   map[metrics.CloneOutcome]int
}

func (r *countingRecorder) IncCacheHit(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *countingRecorder) IncLockContention(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contention++
}

func (r *countingRecorder) ObserveClone(_ string, _ time.Duration, o metrics.CloneOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[metrics.CloneOutcome]int{}
	}
	r.outcomes[o]++
}

type fixture struct {
	store    *cachestate.Store
	cloner   *fakeCloner
	recorder *countingRecorder
	events   *[]Event
	orch     *CachedRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	store, err := cachestate.NewStore(root, cachestate.NewFileLocker(root, 5*time.Millisecond))
	require.NoError(t, err)
	cl := &fakeCloner{}
	rec := &countingRecorder{}
	var mu sync.Mutex
	events := &[]Event{}
	orch := NewCachedRepository(testRepo, store, cl).
		WithRecorder(rec).
		WithObserver(ObserverFunc(func(_ context.Context, ev Event) {
			mu.Lock()
			defer mu.Unlock()
			*events = append(*events, ev)
		}))
	return fixture{store: store, cloner: cl, recorder: rec, events: events, orch: orch}
}

func exampleRequest(t *testing.T) request.RepositoryRequest {
	t.Helper()
	req, err := request.New(testRepo, "abc123", []string{"/"}, false)
	require.NoError(t, err)
	return req
}

func assertUnlocked(t *testing.T, f fixture, fp string) {
	t.Helper()
	held, err := f.store.Locker().Held(t.Context(), fp)
	require.NoError(t, err)
	assert.False(t, held, "LOCK marker must not survive the call")
}

func TestCachedCloneIdempotent(t *testing.T) {
	f := newFixture(t)
	req := exampleRequest(t)

	p1, err := f.orch.CachedClone(t.Context(), req)
	require.NoError(t, err)
	p2, err := f.orch.CachedClone(t.Context(), req)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, filepath.Join(f.store.Root(), req.Fingerprint()), p1)
	assert.Equal(t, int32(1), f.cloner.calls.Load())
	assert.Equal(t, 1, f.recorder.hits)
	assert.FileExists(t, filepath.Join(p1, "HEAD"))
	assertUnlocked(t, f, req.Fingerprint())

	out, err := f.orch.Result(t.Context(), req)
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, p1, out.Path)
}

func TestCachedCloneMutualExclusion(t *testing.T) {
	f := newFixture(t)
	f.cloner.delay = 100 * time.Millisecond
	f.orch.WithLockTimeout(5 * time.Second)
	req := exampleRequest(t)

	const n = 8
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = f.orch.CachedClone(t.Context(), req)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.cloner.calls.Load(), "exactly one caller clones")
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	assertUnlocked(t, f, req.Fingerprint())
}

func TestCachedCloneContentionTimesOut(t *testing.T) {
	f := newFixture(t)
	f.orch.WithLockTimeout(50 * time.Millisecond)
	req := exampleRequest(t)

	h, err := f.store.Entry(req.Fingerprint()).AcquireLock(t.Context(), time.Second)
	require.NoError(t, err)

	_, err = f.orch.CachedClone(t.Context(), req)
	require.ErrorIs(t, err, ErrCloneInProgress)
	assert.Equal(t, int32(0), f.cloner.calls.Load())
	assert.Equal(t, 1, f.recorder.contention)

	require.NoError(t, f.store.Entry(req.Fingerprint()).Release(h))
	_, err = f.orch.CachedClone(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.cloner.calls.Load())
}

func TestCachedCloneClassifiedFailureIsTerminal(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "exit status 128 is rewritten",
			err:     &git.CloneFailedError{ExitStatus: 128, Message: "fatal: pathspec 'lib' did not match"},
			message: NotFoundPrefix + "fatal: pathspec 'lib' did not match",
		},
		{
			name:    "other exit status kept verbatim",
			err:     &git.CloneFailedError{ExitStatus: 1, Message: "checkout conflict"},
			message: "checkout conflict",
		},
		{
			name:    "fetch failure kept verbatim",
			err:     &git.FetchFailedError{Message: "submodule fetch failed"},
			message: "submodule fetch failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.cloner.err = tc.err
			req := exampleRequest(t)

			p, err := f.orch.CachedClone(t.Context(), req)
			require.NoError(t, err)
			body, err := os.ReadFile(p + cachestate.ErrorSuffix)
			require.NoError(t, err)
			assert.Equal(t, tc.message, strings.TrimRight(string(body), "\n"))
			assert.True(t, strings.HasPrefix(string(body), tc.message))
			assertUnlocked(t, f, req.Fingerprint())

			p2, err := f.orch.CachedClone(t.Context(), req)
			require.NoError(t, err)
			assert.Equal(t, p, p2)
			assert.Equal(t, int32(1), f.cloner.calls.Load(), "classified failures are never retried")

			out, err := f.orch.Result(t.Context(), req)
			require.NoError(t, err)
			assert.Equal(t, cachestate.StateFailed, out.State)
			assert.Equal(t, tc.message, out.Message)
			assert.False(t, out.Succeeded())
			assert.Equal(t, 1, f.recorder.outcomes[metrics.CloneClassified])
		})
	}
}

func TestCachedCloneUnclassifiedFailurePurges(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset by peer")
	f.cloner.err = boom
	req := exampleRequest(t)

	_, err := f.orch.CachedClone(t.Context(), req)
	require.ErrorIs(t, err, boom)

	entry := f.store.Entry(req.Fingerprint())
	assert.NoDirExists(t, entry.Path())
	assert.NoFileExists(t, entry.Path()+cachestate.ReadySuffix)
	assert.NoFileExists(t, entry.Path()+cachestate.ErrorSuffix)
	assertUnlocked(t, f, req.Fingerprint())

	f.cloner.err = nil
	_, err = f.orch.CachedClone(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.cloner.calls.Load(), "purged entry is cloned again")

	var types []EventType
	for _, ev := range *f.events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventCloneStarted, EventClonePurged, EventCloneStarted, EventCloneSucceeded}, types)
}

func TestCachedCloneRepoMismatch(t *testing.T) {
	f := newFixture(t)
	req, err := request.New("git@x/other.git", "abc123", nil, false)
	require.NoError(t, err)

	_, err = f.orch.CachedClone(t.Context(), req)
	require.ErrorIs(t, err, ErrRepoMismatch)
	assert.Equal(t, int32(0), f.cloner.calls.Load())
	assertUnlocked(t, f, req.Fingerprint())
	assert.NoFileExists(t, f.store.Entry(req.Fingerprint()).Path()+cachestate.LockSuffix)

	_, err = f.orch.Result(t.Context(), req)
	require.ErrorIs(t, err, ErrRepoMismatch)
}

func TestCachedCloneReleasesLockOnPanic(t *testing.T) {
	f := newFixture(t)
	f.cloner.panic = true
	req := exampleRequest(t)

	func() {
		defer func() { _ = recover() }()
		_, _ = f.orch.CachedClone(t.Context(), req)
	}()
	assertUnlocked(t, f, req.Fingerprint())
}

func TestCachedCloneClearsCrashedHolderLeftovers(t *testing.T) {
	f := newFixture(t)
	req := exampleRequest(t)
	entry := f.store.Entry(req.Fingerprint())

	// A holder died mid-clone: partial content and a stale ERROR, no READY.
	require.NoError(t, os.MkdirAll(filepath.Join(entry.Path(), "partial"), 0o755))
	require.NoError(t, entry.MarkError("stale"))

	p, err := f.orch.CachedClone(t.Context(), req)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(p, "partial"))
	assert.NoFileExists(t, p+cachestate.ErrorSuffix)

	out, err := f.orch.Result(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, cachestate.StateReady, out.State)
}

func TestCloneTimeoutIsUnclassified(t *testing.T) {
	f := newFixture(t)
	f.cloner.delay = time.Second
	f.orch.WithCloneTimeout(20 * time.Millisecond)
	req := exampleRequest(t)

	_, err := f.orch.CachedClone(t.Context(), req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoFileExists(t, f.store.Entry(req.Fingerprint()).Path()+cachestate.ReadySuffix)
}

// The documented scenario: a clone, a contended concurrent call, then a fast-path hit.
func TestExampleScenario(t *testing.T) {
	f := newFixture(t)
	f.cloner.delay = 300 * time.Millisecond
	f.orch.WithLockTimeout(50 * time.Millisecond)
	req := exampleRequest(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.CachedClone(t.Context(), req)
		done <- err
	}()

	require.Eventually(t, func() bool {
		held, _ := f.store.Locker().Held(t.Context(), req.Fingerprint())
		return held
	}, time.Second, 5*time.Millisecond)

	_, err := f.orch.CachedClone(t.Context(), req)
	require.ErrorIs(t, err, ErrCloneInProgress)

	require.NoError(t, <-done)
	p, err := f.orch.CachedClone(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.store.Root(), req.Fingerprint()), p)
	assert.Equal(t, int32(1), f.cloner.calls.Load())
}
