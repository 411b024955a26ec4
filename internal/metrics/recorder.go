package metrics

import "time"

// CloneOutcome labels the result of one clone attempt.
type CloneOutcome string

const (
	CloneSuccess      CloneOutcome = "success"
	CloneClassified   CloneOutcome = "classified_failure"
	CloneUnclassified CloneOutcome = "unclassified_failure"
)

// JobResult labels how a worker job ended.
type JobResult string

const (
	JobDone    JobResult = "done"
	JobDropped JobResult = "dropped"
	JobFailed  JobResult = "failed"
)

// Recorder defines observability hooks for the cache. Implementations may
// forward to Prometheus or a test double.
type Recorder interface {
	IncCacheHit(repo string)
	IncLockContention(repo string)
	IncPoolExhaustion(repo string)
	ObserveClone(repo string, d time.Duration, outcome CloneOutcome)
	IncJobResult(result JobResult)
	IncJobRetry()
	SetQueueDepth(n int)
	AddJanitorRemoved(kind string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheHit(string)                                {}
func (NoopRecorder) IncLockContention(string)                          {}
func (NoopRecorder) IncPoolExhaustion(string)                          {}
func (NoopRecorder) ObserveClone(string, time.Duration, CloneOutcome) {}
func (NoopRecorder) IncJobResult(JobResult)                            {}
func (NoopRecorder) IncJobRetry()                                      {}
func (NoopRecorder) SetQueueDepth(int)                                 {}
func (NoopRecorder) AddJanitorRemoved(string, int)                     {}
