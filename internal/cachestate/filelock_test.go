//go:build unix

package cachestate

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLockerExclusion(t *testing.T) {
	root := t.TempDir()
	l := NewFileLocker(root, 5*time.Millisecond)
	ctx := t.Context()

	first, err := l.Acquire(ctx, "fp", time.Second)
	require.NoError(t, err)

	held, err := l.Held(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, held)

	start := time.Now()
	_, err = l.Acquire(ctx, "fp", 60*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, first.Release())
	held, err = l.Held(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, held, "release removes the LOCK marker")

	second, err := l.Acquire(ctx, "fp", time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestFileLockerWaiterGetsLockAfterRelease(t *testing.T) {
	l := NewFileLocker(t.TempDir(), 5*time.Millisecond)
	ctx := t.Context()
	first, err := l.Acquire(ctx, "fp", time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = first.Release()
	}()
	second, err := l.Acquire(ctx, "fp", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestFileLockerMutualExclusionUnderContention(t *testing.T) {
	l := NewFileLocker(t.TempDir(), time.Millisecond)
	ctx := t.Context()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := l.Acquire(ctx, "fp", 5*time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			_ = lock.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestFileLockerReclaimsStaleMarker(t *testing.T) {
	root := t.TempDir()
	// A crashed holder leaves the marker behind but the kernel dropped its flock.
	require.NoError(t, os.WriteFile(filepath.Join(root, "fp"+LockSuffix), []byte("host=gone pid=1\n"), 0o644))
	l := NewFileLocker(root, 0)

	lock, err := l.Acquire(t.Context(), "fp", 100*time.Millisecond)
	require.NoError(t, err)
	body, err := os.ReadFile(filepath.Join(root, "fp"+LockSuffix))
	require.NoError(t, err)
	assert.Contains(t, string(body), "pid=")
	assert.NotContains(t, string(body), "host=gone")
	require.NoError(t, lock.Release())
}

func TestFileLockerHonoursContext(t *testing.T) {
	l := NewFileLocker(t.TempDir(), 10*time.Millisecond)
	first, err := l.Acquire(t.Context(), "fp", time.Second)
	require.NoError(t, err)
	defer first.Release()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = l.Acquire(ctx, "fp", time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
