//go:build unix

package cachestate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPollInterval is how often a waiting FileLocker retries a busy lock.
const DefaultPollInterval = 50 * time.Millisecond

// FileLocker locks R/<key>.clone_lock with flock(2). The lock follows the open
// file description, so it is released by the kernel if the holder dies; the
// stale marker left behind is reclaimed by the next acquirer or the janitor.
type FileLocker struct {
	root string
	poll time.Duration
}

// NewFileLocker returns a flock based Locker rooted at the cache root.
func NewFileLocker(root string, poll time.Duration) *FileLocker {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &FileLocker{root: root, poll: poll}
}

func (l *FileLocker) Name() string { return "file" }

func (l *FileLocker) path(key string) string {
	return filepath.Join(l.root, key+LockSuffix)
}

// Held reports whether the LOCK marker exists.
func (l *FileLocker) Held(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Acquire polls a non-blocking flock until it succeeds or timeout elapses.
func (l *FileLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (Lock, error) {
	p := l.path(key)
	deadline := time.Now().Add(timeout)
	for {
		lock, err := l.try(p)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			return lock, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout.WithContext("key", key)
		}
		if err := sleepCtx(ctx, nextWait(l.poll, deadline)); err != nil {
			return nil, err
		}
	}
}

// try makes one non-blocking attempt. A nil lock with nil error means busy.
func (l *FileLocker) try(p string) (*fileLock, error) {
	for {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open lock marker %s: %w", p, err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			_ = f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, nil
			}
			return nil, fmt.Errorf("flock %s: %w", p, err)
		}
		// The previous holder may have unlinked the marker between our open and
		// flock; locking an orphaned inode would not exclude anyone.
		if !sameFile(f, p) {
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			_ = f.Close()
			continue
		}
		writeOwner(f)
		return &fileLock{path: p, file: f}, nil
	}
}

func sameFile(f *os.File, p string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(p)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

func writeOwner(f *os.File) {
	host, _ := os.Hostname()
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "host=%s pid=%d acquired=%s\n", host, os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano))
}

type fileLock struct {
	once sync.Once
	path string
	file *os.File
	err  error
}

// Release unlinks the marker while still holding the flock, then unlocks.
func (fl *fileLock) Release() error {
	fl.once.Do(func() {
		if sameFile(fl.file, fl.path) {
			if err := os.Remove(fl.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				fl.err = fmt.Errorf("remove lock marker: %w", err)
			}
		}
		_ = unix.Flock(int(fl.file.Fd()), unix.LOCK_UN)
		if err := fl.file.Close(); err != nil && fl.err == nil {
			fl.err = err
		}
	})
	return fl.err
}
