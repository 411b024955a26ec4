package repocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/repocache/internal/cachestate"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/git"
	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/metrics"
	"git.home.luguber.info/inful/repocache/internal/request"
)

// NotFoundPrefix is prepended to the message of exit-status-128 clone failures.
const NotFoundPrefix = "Requested path or commit reference does not exist. "

var (
	// ErrRepoMismatch is returned when a request names a repository other than the bound one.
	ErrRepoMismatch = ferrors.ValidationError("request repository does not match the bound repository").Build()

	// ErrCloneInProgress is returned when another actor holds the entry lock.
	// Callers treat it as a no-op: the holder will complete the entry.
	ErrCloneInProgress = ferrors.LockError("clone in progress").Build()
)

// CachedRepository is the clone orchestrator bound to one repository.
// It holds no per-request state and may be shared or pooled freely.
type CachedRepository struct {
	repo         string
	store        *cachestate.Store
	cloner       git.Cloner
	lockTimeout  time.Duration
	cloneTimeout time.Duration
	recorder     metrics.Recorder
	observer     Observer
	logger       *slog.Logger
	now          func() time.Time
}

// NewCachedRepository binds an orchestrator to repo.
func NewCachedRepository(repo string, store *cachestate.Store, cloner git.Cloner) *CachedRepository {
	return &CachedRepository{
		repo:        request.NormalizeRepo(repo),
		store:       store,
		cloner:      cloner,
		lockTimeout: cachestate.DefaultLockTimeout,
		recorder:    metrics.NoopRecorder{},
		observer:    noopObserver{},
		logger:      slog.Default(),
		now:         time.Now,
	}
}

// WithLockTimeout sets the bounded lock wait (fluent helper).
func (c *CachedRepository) WithLockTimeout(d time.Duration) *CachedRepository {
	if d > 0 {
		c.lockTimeout = d
	}
	return c
}

// WithCloneTimeout bounds each delegate invocation; zero leaves it unbounded.
func (c *CachedRepository) WithCloneTimeout(d time.Duration) *CachedRepository {
	c.cloneTimeout = d
	return c
}

// WithRecorder attaches a metrics recorder (fluent helper).
func (c *CachedRepository) WithRecorder(r metrics.Recorder) *CachedRepository {
	if r != nil {
		c.recorder = r
	}
	return c
}

// WithObserver attaches an event observer (fluent helper).
func (c *CachedRepository) WithObserver(o Observer) *CachedRepository {
	if o != nil {
		c.observer = o
	}
	return c
}

// WithLogger replaces the logger (fluent helper).
func (c *CachedRepository) WithLogger(l *slog.Logger) *CachedRepository {
	if l != nil {
		c.logger = l
	}
	return c
}

// Repo returns the bound repository identity.
func (c *CachedRepository) Repo() string { return c.repo }

// CachedClone returns the path of the terminal entry for req, cloning it if
// this call wins the entry lock. A nil error does not imply the clone
// succeeded: classified failures also return the entry path. Use Result to
// tell them apart.
func (c *CachedRepository) CachedClone(ctx context.Context, req request.RepositoryRequest) (string, error) {
	if req.Repo() != c.repo {
		return "", ErrRepoMismatch.
			WithContext("bound", c.repo).
			WithContext("requested", req.Repo())
	}

	fp := req.Fingerprint()
	entry := c.store.Entry(fp)

	if entry.IsReady(ctx) {
		c.hit(ctx, req, fp)
		return entry.Path(), nil
	}

	h, err := entry.AcquireLock(ctx, c.lockTimeout)
	if err != nil {
		if errors.Is(err, cachestate.ErrLockTimeout) {
			c.recorder.IncLockContention(c.repo)
			c.emit(ctx, Event{Type: EventLockContention, Fingerprint: fp, Repo: c.repo, CommitHash: req.CommitHash()})
			return "", ErrCloneInProgress.WithContext("fingerprint", fp)
		}
		return "", fmt.Errorf("lock cache entry %s: %w", fp, err)
	}
	defer func() {
		if err := entry.Release(h); err != nil {
			c.logger.Warn("Failed to release cache entry lock", logfields.Fingerprint(fp), logfields.Error(err))
		}
	}()

	// Another holder may have completed the entry between the fast path and our acquisition.
	if entry.HasReadyMarker() {
		c.hit(ctx, req, fp)
		return entry.Path(), nil
	}

	if err := entry.Reset(); err != nil {
		return "", err
	}
	if err := c.cloneIntoEntry(ctx, req, entry); err != nil {
		return "", err
	}
	return entry.Path(), nil
}

func (c *CachedRepository) cloneIntoEntry(ctx context.Context, req request.RepositoryRequest, entry *cachestate.Entry) error {
	fp := entry.Fingerprint()
	reqAttrs := []any{logfields.Fingerprint(fp), logfields.Repository(c.repo), logfields.Commit(req.CommitHash()),
		logfields.Mask(req.CheckoutMask()), logfields.Submodules(req.Submodules())}

	c.logger.Info("Cloning repository into cache", reqAttrs...)
	c.emit(ctx, Event{Type: EventCloneStarted, Fingerprint: fp, Repo: c.repo, CommitHash: req.CommitHash()})

	cloneCtx := ctx
	if c.cloneTimeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, c.cloneTimeout)
		defer cancel()
	}
	start := c.now()
	cloneErr := c.cloner.Clone(cloneCtx, entry.Path(), req.CommitHash(), req.CheckoutMask(), req.Submodules())
	elapsed := c.now().Sub(start)

	rec := cachestate.Record{
		Repo:         c.repo,
		CommitHash:   req.CommitHash(),
		CheckoutMask: req.CheckoutMask(),
		Submodules:   req.Submodules(),
	}

	message, classified := classify(cloneErr)
	switch {
	case cloneErr == nil:
		rec.State = cachestate.StateReady
	case classified:
		rec.State = cachestate.StateFailed
		rec.Message = message
		if err := entry.MarkError(message); err != nil {
			return c.purge(ctx, req, entry, elapsed, err, reqAttrs)
		}
	default:
		return c.purge(ctx, req, entry, elapsed, cloneErr, reqAttrs)
	}

	if err := entry.MarkReady(rec); err != nil {
		return c.purge(ctx, req, entry, elapsed, err, reqAttrs)
	}

	if cloneErr == nil {
		c.recorder.ObserveClone(c.repo, elapsed, metrics.CloneSuccess)
		c.logger.Info("Clone finished", append(reqAttrs, logfields.Duration(elapsed))...)
		c.emit(ctx, Event{Type: EventCloneSucceeded, Fingerprint: fp, Repo: c.repo, CommitHash: req.CommitHash(), Duration: elapsed})
		return nil
	}
	c.recorder.ObserveClone(c.repo, elapsed, metrics.CloneClassified)
	c.logger.Info("Clone failed, entry recorded as terminal",
		append(reqAttrs, logfields.Duration(elapsed), slog.String("message", message))...)
	c.emit(ctx, Event{Type: EventCloneFailed, Fingerprint: fp, Repo: c.repo, CommitHash: req.CommitHash(), Message: message, Duration: elapsed})
	return nil
}

// purge removes a half-built entry and returns cause for the caller to retry.
func (c *CachedRepository) purge(ctx context.Context, req request.RepositoryRequest, entry *cachestate.Entry,
	elapsed time.Duration, cause error, reqAttrs []any) error {
	c.recorder.ObserveClone(c.repo, elapsed, metrics.CloneUnclassified)
	c.logger.Error("Clone failed with unclassified error, purging entry", append(reqAttrs, logfields.Error(cause))...)
	if err := entry.Purge(); err != nil {
		c.logger.Error("Failed to purge cache entry", logfields.Fingerprint(entry.Fingerprint()), logfields.Error(err))
		cause = errors.Join(cause, err)
	}
	c.emit(ctx, Event{Type: EventClonePurged, Fingerprint: entry.Fingerprint(), Repo: c.repo,
		CommitHash: req.CommitHash(), Message: cause.Error(), Duration: elapsed})
	return cause
}

// classify returns the message to record for a recognized delegate failure.
func classify(err error) (string, bool) {
	var cf *git.CloneFailedError
	if errors.As(err, &cf) {
		if cf.ExitStatus == git.ExitStatusNotFound {
			return NotFoundPrefix + cf.Message, true
		}
		return cf.Message, true
	}
	var ff *git.FetchFailedError
	if errors.As(err, &ff) {
		return ff.Message, true
	}
	return "", false
}

func (c *CachedRepository) hit(ctx context.Context, req request.RepositoryRequest, fp string) {
	c.recorder.IncCacheHit(c.repo)
	c.logger.Debug("Cache hit", logfields.Fingerprint(fp), logfields.Repository(c.repo))
	c.emit(ctx, Event{Type: EventCacheHit, Fingerprint: fp, Repo: c.repo, CommitHash: req.CommitHash()})
}

func (c *CachedRepository) emit(ctx context.Context, ev Event) {
	ev.At = c.now().UTC()
	c.observer.Observe(ctx, ev)
}

// Outcome is the explicit state of a request's entry.
type Outcome struct {
	Path    string           `json:"path"`
	State   cachestate.State `json:"state"`
	Message string           `json:"message,omitempty"`
}

// Succeeded reports a terminal successful entry.
func (o Outcome) Succeeded() bool { return o.State == cachestate.StateReady }

// Result reports the current state of req's entry without locking or cloning.
func (c *CachedRepository) Result(ctx context.Context, req request.RepositoryRequest) (Outcome, error) {
	if req.Repo() != c.repo {
		return Outcome{}, ErrRepoMismatch.WithContext("bound", c.repo).WithContext("requested", req.Repo())
	}
	in, err := c.store.Entry(req.Fingerprint()).Inspect(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Path: in.Path, State: in.State, Message: in.ErrorMessage}, nil
}
