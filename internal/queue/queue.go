// Package queue runs clone jobs on a fixed set of in-process workers. It is
// the local ingress used when no NATS stream is configured, and the daemon's
// path for requests submitted through the admin API.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/repocache/internal/config"
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
	"git.home.luguber.info/inful/repocache/internal/logfields"
	"git.home.luguber.info/inful/repocache/internal/metrics"
	"git.home.luguber.info/inful/repocache/internal/request"
	"git.home.luguber.info/inful/repocache/internal/retry"
	"git.home.luguber.info/inful/repocache/internal/worker"
)

var (
	// ErrQueueFull is returned when the buffer has no room.
	ErrQueueFull = ferrors.QueueError("clone queue is full").Retryable().Build()
	// ErrDuplicate is returned when a job for the same fingerprint has not
	// finished yet. The returned job is the pending one.
	ErrDuplicate = ferrors.QueueError("clone job already pending").Warning().Build()
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = ferrors.QueueError("clone queue is stopped").Build()
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// CloneJob is one request moving through the queue.
type CloneJob struct {
	ID          string        `json:"id"`
	Fingerprint string        `json:"fingerprint"`
	Repo        string        `json:"repo"`
	CommitHash  string        `json:"commit_hash"`
	Status      JobStatus     `json:"status"`
	Attempts    int           `json:"attempts"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`

	payload []byte
	cancel  context.CancelFunc
}

// Performer executes one job payload. *worker.Worker satisfies it.
type Performer interface {
	Perform(ctx context.Context, payload []byte) error
}

// CloneQueue manages pending and running clone jobs.
type CloneQueue struct {
	jobs        chan *CloneJob
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*CloneJob
	pending     map[string]*CloneJob // by fingerprint, until the job finishes
	history     []*CloneJob
	historySize int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	performer   Performer

	retryPolicy retry.Policy
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// New creates a clone queue with the given buffer size and worker count.
func New(maxSize, workers int, performer Performer) *CloneQueue {
	if maxSize <= 0 {
		maxSize = config.DefaultQueueSize
	}
	if workers <= 0 {
		workers = config.DefaultQueueWorkers
	}
	if performer == nil {
		panic("queue.New: performer is required")
	}
	return &CloneQueue{
		jobs:        make(chan *CloneJob, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*CloneJob),
		pending:     make(map[string]*CloneJob),
		historySize: 50,
		stopChan:    make(chan struct{}),
		performer:   performer,
		retryPolicy: retry.DefaultPolicy(),
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
}

// ConfigureRetry sets the retry policy from the queue section.
func (q *CloneQueue) ConfigureRetry(cfg config.QueueConfig) {
	q.retryPolicy = retry.FromQueueConfig(cfg)
}

// SetRecorder injects a metrics recorder (optional).
func (q *CloneQueue) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	q.recorder = r
}

// SetLogger replaces the logger (optional).
func (q *CloneQueue) SetLogger(l *slog.Logger) {
	if l != nil {
		q.logger = l
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (q *CloneQueue) Start(ctx context.Context) {
	q.logger.Info("Starting clone queue", slog.Int("workers", q.workers), slog.Int("max_size", q.maxSize))
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still in
// the buffer are abandoned.
func (q *CloneQueue) Stop(_ context.Context) {
	q.stopOnce.Do(func() { close(q.stopChan) })

	q.mu.Lock()
	for _, job := range q.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	q.mu.Unlock()

	q.wg.Wait()
}

// Length returns the number of buffered jobs.
func (q *CloneQueue) Length() int {
	return len(q.jobs)
}

// Enqueue adds a job for req. A request whose fingerprint is already queued
// or running is not added twice; the pending job is returned with ErrDuplicate.
func (q *CloneQueue) Enqueue(req request.RepositoryRequest) (*CloneJob, error) {
	payload, err := req.MarshalJSON()
	if err != nil {
		return nil, err
	}
	select {
	case <-q.stopChan:
		return nil, ErrStopped
	default:
	}

	fp := req.Fingerprint()
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.pending[fp]; ok {
		cp := *existing
		return &cp, ErrDuplicate.WithContext("job_id", existing.ID)
	}
	job := &CloneJob{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Repo:        req.Repo(),
		CommitHash:  req.CommitHash(),
		Status:      JobStatusQueued,
		CreatedAt:   time.Now().UTC(),
		payload:     payload,
	}
	select {
	case q.jobs <- job:
	default:
		return nil, ErrQueueFull.WithContext("max_size", q.maxSize)
	}
	q.pending[fp] = job
	q.recorder.SetQueueDepth(len(q.jobs))
	cp := *job
	return &cp, nil
}

// ActiveJobs returns copies of the running jobs.
func (q *CloneQueue) ActiveJobs() []*CloneJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	active := make([]*CloneJob, 0, len(q.active))
	for _, job := range q.active {
		cp := *job
		active = append(active, &cp)
	}
	return active
}

// History returns copies of the most recently finished jobs, oldest first.
func (q *CloneQueue) History() []*CloneJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*CloneJob, 0, len(q.history))
	for _, job := range q.history {
		cp := *job
		out = append(out, &cp)
	}
	return out
}

// JobSnapshot returns a copy of a job (pending or active first, then history).
func (q *CloneQueue) JobSnapshot(id string) (*CloneJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if j, ok := q.active[id]; ok {
		cp := *j
		return &cp, true
	}
	for _, j := range q.pending {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	for _, j := range q.history {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}

func (q *CloneQueue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			if job != nil {
				q.recorder.SetQueueDepth(len(q.jobs))
				q.processJob(ctx, job, workerID)
			}
		}
	}
}

func (q *CloneQueue) processJob(ctx context.Context, job *CloneJob, workerID string) {
	jobCtx, cancel := context.WithCancel(worker.WithJobID(ctx, job.ID))
	defer cancel()

	startTime := time.Now()
	q.mu.Lock()
	job.cancel = cancel
	job.StartedAt = &startTime
	job.Status = JobStatusRunning
	q.active[job.ID] = job
	q.mu.Unlock()

	q.logger.Debug("Clone job started", logfields.JobID(job.ID), logfields.Worker(workerID),
		logfields.Fingerprint(job.Fingerprint))

	err := q.execute(jobCtx, job)
	q.markJobCompleted(job, err)
}

func (q *CloneQueue) markJobCompleted(job *CloneJob, err error) {
	endTime := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	job.CompletedAt = &endTime
	if job.StartedAt != nil {
		job.Duration = endTime.Sub(*job.StartedAt)
	}
	job.cancel = nil
	delete(q.active, job.ID)
	if q.pending[job.Fingerprint] == job {
		delete(q.pending, job.Fingerprint)
	}
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = JobStatusCompleted
	}
	q.addToHistory(job)
}

func (q *CloneQueue) addToHistory(job *CloneJob) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
}

func (q *CloneQueue) execute(ctx context.Context, job *CloneJob) error {
	policy := q.retryPolicy
	if policy.Initial <= 0 {
		policy = retry.DefaultPolicy()
	}

	retries := 0
	for {
		q.mu.Lock()
		job.Attempts++
		attempt := job.Attempts
		q.mu.Unlock()

		err := q.performer.Perform(ctx, job.payload)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !policy.ShouldRetry(err, retries) {
			return err
		}

		retries++
		q.recorder.IncJobRetry()
		delay := policy.Delay(retries)
		q.logger.Warn("Clone job failed, retrying",
			logfields.JobID(job.ID),
			logfields.Attempt(attempt),
			slog.Int("retry", retries),
			slog.Int("max_retries", policy.MaxRetries),
			slog.Duration("delay", delay),
			logfields.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
