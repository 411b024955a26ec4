// Package worker runs one clone job: decode the request, borrow an
// orchestrator for its repository, and call CachedClone.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/metrics"
	"git.home.luguber.info/inful/repocache/internal/pool"
	"git.home.luguber.info/inful/repocache/internal/repocache"
	"git.home.luguber.info/inful/repocache/internal/request"
)

// ErrBadPayload marks a job whose payload can never be processed.
var ErrBadPayload = ferrors.ValidationError("undecodable clone request payload").Build()

// Resolver finds the orchestrator pool for a repository.
type Resolver interface {
	Resolve(repo string) (*pool.Pool, error)
}

// Worker performs clone jobs. It is safe for concurrent use.
type Worker struct {
	pools         Resolver
	borrowTimeout atomic.Int64
	policy        atomic.Value // BackpressurePolicy
	recorder      metrics.Recorder
	observer      repocache.Observer
	logger        *slog.Logger
}

// New creates a worker with DropOnBackpressure.
func New(pools Resolver, borrowTimeout time.Duration) *Worker {
	w := &Worker{pools: pools, recorder: metrics.NoopRecorder{}, observer: repocache.Observers(nil), logger: slog.Default()}
	w.borrowTimeout.Store(int64(borrowTimeout))
	w.policy.Store(DropOnBackpressure)
	return w
}

// WithRecorder attaches a metrics recorder (fluent helper).
func (w *Worker) WithRecorder(r metrics.Recorder) *Worker {
	if r != nil {
		w.recorder = r
	}
	return w
}

// WithObserver attaches an event observer (fluent helper).
func (w *Worker) WithObserver(o repocache.Observer) *Worker {
	if o != nil {
		w.observer = o
	}
	return w
}

// WithLogger replaces the logger (fluent helper).
func (w *Worker) WithLogger(l *slog.Logger) *Worker {
	if l != nil {
		w.logger = l
	}
	return w
}

// SetPolicy changes the backpressure policy; safe while jobs run.
func (w *Worker) SetPolicy(p BackpressurePolicy) { w.policy.Store(p) }

// Policy returns the active backpressure policy.
func (w *Worker) Policy() BackpressurePolicy { return w.policy.Load().(BackpressurePolicy) }

// SetBorrowTimeout changes the pool wait; safe while jobs run.
func (w *Worker) SetBorrowTimeout(d time.Duration) { w.borrowTimeout.Store(int64(d)) }

// BorrowTimeout returns the active pool wait.
func (w *Worker) BorrowTimeout() time.Duration { return time.Duration(w.borrowTimeout.Load()) }

// Perform decodes a JSON request and handles it. A nil return means the job
// is finished, including classified failures and dropped jobs.
func (w *Worker) Perform(ctx context.Context, payload []byte) error {
	req, err := request.FromJSON(payload)
	if err != nil {
		return ErrBadPayload.WithCause(err)
	}
	return w.Handle(ctx, req)
}

// Handle runs one request through the pool and orchestrator.
func (w *Worker) Handle(ctx context.Context, req request.RepositoryRequest) error {
	jobID := JobIDFromContext(ctx)
	if jobID == "" {
		jobID = uuid.NewString()
		ctx = WithJobID(ctx, jobID)
	}
	log := w.logger.With(logfields.JobID(jobID), logfields.Fingerprint(req.Fingerprint()), logfields.Repository(req.Repo()))
	log.Info("Processing clone request", logfields.Commit(req.CommitHash()))

	p, err := w.pools.Resolve(req.Repo())
	if err != nil {
		w.recorder.IncJobResult(metrics.JobFailed)
		return err
	}
	lease, err := p.Borrow(ctx, w.BorrowTimeout())
	if err != nil {
		if errors.Is(err, pool.ErrBorrowTimeout) {
			w.recorder.IncPoolExhaustion(req.Repo())
			w.observer.Observe(ctx, repocache.Event{Type: repocache.EventPoolExhausted, Fingerprint: req.Fingerprint(),
				Repo: req.Repo(), CommitHash: req.CommitHash(), At: time.Now().UTC()})
			log.Warn("No idle orchestrator within borrow timeout", slog.Duration("borrow_timeout", w.BorrowTimeout()))
			return w.backpressure(err, log)
		}
		w.recorder.IncJobResult(metrics.JobFailed)
		return err
	}
	defer lease.Release()

	path, err := lease.Instance().CachedClone(ctx, req)
	switch {
	case errors.Is(err, repocache.ErrCloneInProgress):
		log.Info("Clone in progress elsewhere")
		return w.backpressure(err, log)
	case err != nil:
		w.recorder.IncJobResult(metrics.JobFailed)
		log.Error("Clone job failed", logfields.Error(err))
		return err
	}
	w.recorder.IncJobResult(metrics.JobDone)
	log.Info("Clone request completed", logfields.Path(path))
	return nil
}

func (w *Worker) backpressure(err error, log *slog.Logger) error {
	policy := w.Policy()
	if out := policy.Apply(err); out != nil {
		w.recorder.IncJobResult(metrics.JobFailed)
		return out
	}
	w.recorder.IncJobResult(metrics.JobDropped)
	log.Info("Job dropped under backpressure", logfields.JobStatus(string(metrics.JobDropped)))
	return nil
}

type jobIDKey struct{}

// WithJobID stores a job ID for log correlation.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobIDFromContext returns the job ID or "".
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
