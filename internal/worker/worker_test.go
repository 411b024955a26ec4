package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/config"
	"git.home.luguber.info/inful/repocache/internal/metrics"
	"git.home.luguber.info/inful/repocache/internal/pool"
	"git.home.luguber.info/inful/repocache/internal/repocache"
	"git.home.luguber.info/inful/repocache/internal/request"
)

const testRepo = "https://example.com/org/repo.git"

type writeCloner struct{}

func (writeCloner) Clone(_ context.Context, dest, commit string, _ []string, _ bool) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "HEAD"), []byte(commit), 0o644)
}

type jobRecorder struct {
	metrics.NoopRecorder
	mu        sync.Mutex
	results   map[metrics.JobResult]int
	exhausted int
}

func (r *jobRecorder) IncJobResult(res metrics.JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[metrics.JobResult]int{}
	}
	r.results[res]++
}

func (r *jobRecorder) IncPoolExhaustion(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted++
}

type harness struct {
	store    *cachestate.Store
	registry *pool.Registry
	worker   *Worker
	recorder *jobRecorder
	events   []repocache.Event
	mu       sync.Mutex
}

func newHarness(t *testing.T, poolSize int) *harness {
	t.Helper()
	root := t.TempDir()
	store, err := cachestate.NewStore(root, cachestate.NewFileLocker(root, 5*time.Millisecond))
	require.NoError(t, err)
	h := &harness{store: store, recorder: &jobRecorder{}}
	reg, err := pool.NewRegistry(poolSize, func(repo string) *repocache.CachedRepository {
		return repocache.NewCachedRepository(repo, store, writeCloner{}).WithLockTimeout(20 * time.Millisecond)
	})
	require.NoError(t, err)
	h.registry = reg
	h.worker = New(reg, 20*time.Millisecond).
		WithRecorder(h.recorder).
		WithObserver(repocache.ObserverFunc(func(_ context.Context, ev repocache.Event) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, ev)
		}))
	return h
}

func payload(t *testing.T) ([]byte, request.RepositoryRequest) {
	t.Helper()
	req := request.MustNew(testRepo, "0123abcd", []string{"/docs"}, false)
	data, err := req.MarshalJSON()
	require.NoError(t, err)
	return data, req
}

func TestPerformClonesEntry(t *testing.T) {
	h := newHarness(t, 2)
	data, req := payload(t)

	require.NoError(t, h.worker.Perform(t.Context(), data))

	ins, err := h.store.Entry(req.Fingerprint()).Inspect(t.Context())
	require.NoError(t, err)
	assert.Equal(t, cachestate.StateReady, ins.State)
	assert.Equal(t, 1, h.recorder.results[metrics.JobDone])
}

func TestPerformRejectsBadPayload(t *testing.T) {
	h := newHarness(t, 1)
	err := h.worker.Perform(t.Context(), []byte("{not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestPoolExhaustionLeavesEntryUntouched(t *testing.T) {
	for _, tc := range []struct {
		name   string
		policy BackpressurePolicy
	}{
		{"drop", DropOnBackpressure},
		{"fail", FailOnBackpressure},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 1)
			h.worker.SetPolicy(tc.policy)
			data, req := payload(t)

			p, err := h.registry.Resolve(testRepo)
			require.NoError(t, err)
			lease, err := p.Borrow(t.Context(), 0)
			require.NoError(t, err)
			defer lease.Release()

			err = h.worker.Perform(t.Context(), data)
			if tc.policy == DropOnBackpressure {
				require.NoError(t, err)
				assert.Equal(t, 1, h.recorder.results[metrics.JobDropped])
			} else {
				assert.ErrorIs(t, err, pool.ErrBorrowTimeout)
				assert.Equal(t, 1, h.recorder.results[metrics.JobFailed])
			}
			assert.Equal(t, 1, h.recorder.exhausted)
			require.Len(t, h.events, 1)
			assert.Equal(t, repocache.EventPoolExhausted, h.events[0].Type)

			ins, err := h.store.Entry(req.Fingerprint()).Inspect(t.Context())
			require.NoError(t, err)
			assert.Equal(t, cachestate.StateAbsent, ins.State)
			_, statErr := os.Stat(filepath.Join(h.store.Root(), req.Fingerprint()))
			assert.True(t, errors.Is(statErr, os.ErrNotExist))
		})
	}
}

func TestCloneInProgressFollowsPolicy(t *testing.T) {
	h := newHarness(t, 1)
	data, req := payload(t)

	entry := h.store.Entry(req.Fingerprint())
	handle, err := entry.AcquireLock(t.Context(), time.Second)
	require.NoError(t, err)
	defer func() { _ = entry.Release(handle) }()

	require.NoError(t, h.worker.Perform(t.Context(), data))
	assert.Equal(t, 1, h.recorder.results[metrics.JobDropped])

	h.worker.SetPolicy(FailOnBackpressure)
	err = h.worker.Perform(t.Context(), data)
	assert.ErrorIs(t, err, repocache.ErrCloneInProgress)
}

func TestPolicyFromConfig(t *testing.T) {
	assert.Equal(t, DropOnBackpressure, PolicyFromConfig(config.BackpressureDrop))
	assert.Equal(t, FailOnBackpressure, PolicyFromConfig(config.BackpressureFail))
	assert.Equal(t, DropOnBackpressure, PolicyFromConfig(""))
}

func TestJobIDContext(t *testing.T) {
	ctx := WithJobID(context.Background(), "job-1")
	assert.Equal(t, "job-1", JobIDFromContext(ctx))
	assert.Empty(t, JobIDFromContext(context.Background()))
}

func TestReloadableSettings(t *testing.T) {
	h := newHarness(t, 1)
	h.worker.SetBorrowTimeout(time.Second)
	assert.Equal(t, time.Second, h.worker.BorrowTimeout())
	assert.Equal(t, DropOnBackpressure, h.worker.Policy())
}
