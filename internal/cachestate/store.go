package cachestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/logfields"
)

// Marker suffixes appended to the entry path.
const (
	ReadySuffix = ".package_part_ready"
	LockSuffix  = ".clone_lock"
	ErrorSuffix = ".error"
)

// Store addresses cache entries under one shared root.
type Store struct {
	root   string
	locker Locker
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates the root directory if needed.
func NewStore(root string, locker Locker) (*Store, error) {
	if root == "" {
		return nil, ferrors.ConfigError("cache root is required").Build()
	}
	if locker == nil {
		return nil, ferrors.ConfigError("cache locker is required").Build()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create cache root").
			WithContext("root", root).Build()
	}
	return &Store{root: root, locker: locker, logger: slog.Default(), now: time.Now}, nil
}

// WithLogger replaces the logger (fluent helper).
func (s *Store) WithLogger(l *slog.Logger) *Store {
	if l != nil {
		s.logger = l
	}
	return s
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

// Locker returns the lock backend.
func (s *Store) Locker() Locker { return s.locker }

// Entry returns the handle for one fingerprint. It performs no I/O.
func (s *Store) Entry(fingerprint string) *Entry {
	return &Entry{store: s, fingerprint: fingerprint, path: filepath.Join(s.root, fingerprint)}
}

// Fingerprints lists every fingerprint that has content or any marker on disk.
func (s *Store) Fingerprints() ([]string, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read cache root: %w", err)
	}
	seen := make(map[string]struct{})
	for _, d := range dirents {
		name := d.Name()
		if strings.Contains(name, ".tmp-") {
			continue
		}
		for _, suffix := range []string{ReadySuffix, LockSuffix, ErrorSuffix} {
			name = strings.TrimSuffix(name, suffix)
		}
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for fp := range seen {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out, nil
}

// LockHandle is the ownership token for one entry.
type LockHandle struct {
	fingerprint string
	acquiredAt  time.Time
	lock        Lock
}

// Fingerprint returns the locked entry key.
func (h *LockHandle) Fingerprint() string { return h.fingerprint }

// Entry is one fingerprint's content directory plus its markers.
type Entry struct {
	store       *Store
	fingerprint string
	path        string
}

// Fingerprint returns the entry key.
func (e *Entry) Fingerprint() string { return e.fingerprint }

// Path returns the content directory.
func (e *Entry) Path() string { return e.path }

func (e *Entry) readyPath() string { return e.path + ReadySuffix }
func (e *Entry) errorPath() string { return e.path + ErrorSuffix }

// IsReady is true iff READY is present and the entry is not locked. It holds for
// successful and classified-failure entries alike.
func (e *Entry) IsReady(ctx context.Context) bool {
	if !exists(e.readyPath()) {
		return false
	}
	held, err := e.store.locker.Held(ctx, e.fingerprint)
	if err != nil {
		e.store.logger.Warn("lock state unreadable, treating entry as not ready",
			logfields.Fingerprint(e.fingerprint), logfields.Error(err))
		return false
	}
	return !held
}

// HasReadyMarker reports READY presence regardless of the lock. Only meaningful
// to the lock holder.
func (e *Entry) HasReadyMarker() bool {
	return exists(e.readyPath())
}

// AcquireLock waits up to timeout for exclusive ownership.
func (e *Entry) AcquireLock(ctx context.Context, timeout time.Duration) (*LockHandle, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	lock, err := e.store.locker.Acquire(ctx, e.fingerprint, timeout)
	if err != nil {
		return nil, err
	}
	e.store.logger.Info("Locked cache entry",
		logfields.Fingerprint(e.fingerprint), logfields.Backend(e.store.locker.Name()))
	return &LockHandle{fingerprint: e.fingerprint, acquiredAt: e.store.now(), lock: lock}, nil
}

// Release drops the lock. A nil handle is a no-op; releasing twice is safe.
func (e *Entry) Release(h *LockHandle) error {
	if h == nil {
		return nil
	}
	err := h.lock.Release()
	e.store.logger.Info("Unlocked cache entry",
		logfields.Fingerprint(e.fingerprint), logfields.Duration(e.store.now().Sub(h.acquiredAt)))
	return err
}

// MarkReady writes the READY marker with rec as its body.
func (e *Entry) MarkReady(rec Record) error {
	rec.Version = recordVersion
	rec.Fingerprint = e.fingerprint
	if rec.State == "" {
		rec.State = StateReady
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = e.store.now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ready record: %w", err)
	}
	return writeAtomic(e.readyPath(), append(data, '\n'))
}

// MarkError writes the ERROR marker. It does not write READY.
func (e *Entry) MarkError(message string) error {
	return writeAtomic(e.errorPath(), []byte(message+"\n"))
}

// Reset clears leftovers of an interrupted attempt before a new clone.
// The LOCK marker is left to its owner.
func (e *Entry) Reset() error {
	return e.removeAll()
}

// Purge deletes the content and the READY/ERROR markers. The LOCK marker is
// removed by Release.
func (e *Entry) Purge() error {
	if err := e.removeAll(); err != nil {
		return err
	}
	e.store.logger.Info("Purged cache entry", logfields.Fingerprint(e.fingerprint), logfields.Path(e.path))
	return nil
}

func (e *Entry) removeAll() error {
	var errs []error
	if err := os.RemoveAll(e.path); err != nil {
		errs = append(errs, err)
	}
	for _, p := range []string{e.readyPath(), e.errorPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove cache entry").
			WithContext("fingerprint", e.fingerprint).Build()
	}
	return nil
}

// Inspect reads the entry state without locking.
func (e *Entry) Inspect(ctx context.Context) (Inspection, error) {
	held, err := e.store.locker.Held(ctx, e.fingerprint)
	if err != nil {
		return Inspection{Fingerprint: e.fingerprint, Path: e.path, State: StateAbsent}, err
	}
	return e.inspect(held)
}

// InspectLocked reads the entry on behalf of the holder of h. The state is
// derived from the markers alone, ignoring the caller's own lock.
func (e *Entry) InspectLocked(h *LockHandle) (Inspection, error) {
	in, err := e.inspect(false)
	in.Locked = h != nil
	return in, err
}

func (e *Entry) inspect(held bool) (Inspection, error) {
	in := Inspection{Fingerprint: e.fingerprint, Path: e.path, State: StateAbsent, Locked: held}

	readyBody, readyErr := os.ReadFile(e.readyPath())
	hasReady := readyErr == nil
	if readyErr != nil && !errors.Is(readyErr, os.ErrNotExist) {
		return in, fmt.Errorf("read ready marker: %w", readyErr)
	}
	errBody, errErr := os.ReadFile(e.errorPath())
	hasError := errErr == nil
	if hasError {
		in.ErrorMessage = strings.TrimRight(string(errBody), "\n")
	}

	switch {
	case held:
		in.State = StateInFlight
	case !hasReady:
		in.State = StateAbsent
	default:
		in.Record = decodeRecord(readyBody)
		if hasError || (in.Record != nil && in.Record.State == StateFailed) {
			in.State = StateFailed
		} else {
			in.State = StateReady
		}
		if in.ErrorMessage == "" && in.Record != nil {
			in.ErrorMessage = in.Record.Message
		}
	}
	return in, nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// writeAtomic replaces p with data via a temp file in the same directory.
func writeAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".tmp-*")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create marker").WithContext("path", p).Build()
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write marker").WithContext("path", p).Build()
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "close marker").WithContext("path", p).Build()
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "publish marker").WithContext("path", p).Build()
	}
	return nil
}
