// Package janitor periodically repairs the shared cache root: it reclaims
// LOCK markers left by crashed holders, clears content directories that never
// got a READY marker, and optionally expires classified failures.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/metrics"
)

// Removal kinds, used as the metrics label.
const (
	KindStaleLock      = "stale_lock"
	KindOrphan         = "orphan"
	KindExpiredFailure = "expired_failure"
)

// tryTimeout makes AcquireLock a single attempt.
const tryTimeout = time.Millisecond

// Report counts what one sweep removed.
type Report struct {
	Scanned         int `json:"scanned"`
	StaleLocks      int `json:"stale_locks"`
	Orphans         int `json:"orphans"`
	ExpiredFailures int `json:"expired_failures"`
	Busy            int `json:"busy"`
}

// Janitor sweeps one store.
type Janitor struct {
	store      *cachestate.Store
	failureTTL time.Duration
	recorder   metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
	scheduler  gocron.Scheduler
}

// New creates a janitor. A zero failureTTL keeps classified failures forever.
func New(store *cachestate.Store, failureTTL time.Duration) *Janitor {
	return &Janitor{store: store, failureTTL: failureTTL, recorder: metrics.NoopRecorder{}, logger: slog.Default(), now: time.Now}
}

// WithRecorder attaches a metrics recorder (fluent helper).
func (j *Janitor) WithRecorder(r metrics.Recorder) *Janitor {
	if r != nil {
		j.recorder = r
	}
	return j
}

// WithLogger replaces the logger (fluent helper).
func (j *Janitor) WithLogger(l *slog.Logger) *Janitor {
	if l != nil {
		j.logger = l
	}
	return j
}

// Start schedules Sweep every interval.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Error("Cache sweep failed", logfields.Error(err))
			}
		}),
		gocron.WithName("cache-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to create sweep job: %w", err)
	}
	j.scheduler = s
	j.logger.Info("Starting cache janitor", slog.Duration("interval", interval))
	s.Start()
	return nil
}

// Stop shuts the scheduler down. Later calls are no-ops.
func (j *Janitor) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	s := j.scheduler
	j.scheduler = nil
	return s.Shutdown()
}

// Sweep makes one pass over every fingerprint under the root. Entries whose
// lock is held by a live owner are skipped.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	fps, err := j.store.Fingerprints()
	if err != nil {
		return rep, err
	}
	for _, fp := range fps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		if err := j.sweepEntry(ctx, j.store.Entry(fp), &rep); err != nil {
			j.logger.Warn("Sweep of cache entry failed", logfields.Fingerprint(fp), logfields.Error(err))
		}
	}
	j.recorder.AddJanitorRemoved(KindStaleLock, rep.StaleLocks)
	j.recorder.AddJanitorRemoved(KindOrphan, rep.Orphans)
	j.recorder.AddJanitorRemoved(KindExpiredFailure, rep.ExpiredFailures)
	j.logger.Info("Cache sweep finished",
		slog.Int("scanned", rep.Scanned),
		slog.Int("stale_locks", rep.StaleLocks),
		slog.Int("orphans", rep.Orphans),
		slog.Int("expired_failures", rep.ExpiredFailures),
		slog.Int("busy", rep.Busy))
	return rep, nil
}

func (j *Janitor) sweepEntry(ctx context.Context, entry *cachestate.Entry, rep *Report) error {
	before, err := entry.Inspect(ctx)
	if err != nil {
		return err
	}
	if !before.Locked && !j.needsWork(before) {
		return nil
	}

	h, err := entry.AcquireLock(ctx, tryTimeout)
	if errors.Is(err, cachestate.ErrLockTimeout) {
		rep.Busy++
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = entry.Release(h) }()

	if before.Locked {
		rep.StaleLocks++
		j.logger.Info("Reclaimed stale lock", logfields.Fingerprint(entry.Fingerprint()))
	}

	after, err := entry.InspectLocked(h)
	if err != nil {
		return err
	}
	switch {
	case after.State == cachestate.StateAbsent && exists(entry.Path()):
		rep.Orphans++
		return entry.Reset()
	case after.State == cachestate.StateFailed && j.expired(entry, after):
		rep.ExpiredFailures++
		j.logger.Info("Expiring classified failure",
			logfields.Fingerprint(entry.Fingerprint()), slog.String("message", after.ErrorMessage))
		return entry.Purge()
	}
	return nil
}

// needsWork reports whether an unlocked entry has anything to sweep.
func (j *Janitor) needsWork(in cachestate.Inspection) bool {
	switch in.State {
	case cachestate.StateAbsent:
		return exists(in.Path)
	case cachestate.StateFailed:
		return j.failureTTL > 0
	}
	return false
}

func (j *Janitor) expired(entry *cachestate.Entry, in cachestate.Inspection) bool {
	if j.failureTTL <= 0 {
		return false
	}
	completed := time.Time{}
	if in.Record != nil {
		completed = in.Record.CompletedAt
	}
	if completed.IsZero() {
		fi, err := os.Stat(entry.Path() + cachestate.ReadySuffix)
		if err != nil {
			return false
		}
		completed = fi.ModTime()
	}
	return j.now().Sub(completed) > j.failureTTL
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
