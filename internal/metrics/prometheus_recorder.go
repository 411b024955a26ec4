package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "repocache"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	cacheHits      *prom.CounterVec
	lockContention *prom.CounterVec
	poolExhaustion *prom.CounterVec
	cloneDuration  *prom.HistogramVec
	cloneResults   *prom.CounterVec
	jobResults     *prom.CounterVec
	jobRetries     prom.Counter
	queueDepth     prom.Gauge
	janitorRemoved *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the cache metrics on reg.
// A nil registry gets a private one.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		cacheHits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Requests served from an existing terminal cache entry",
		}, []string{"repo"}),
		lockContention: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contention_total",
			Help:      "Lock acquisitions that timed out because another actor held the entry",
		}, []string{"repo"}),
		poolExhaustion: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exhaustion_total",
			Help:      "Jobs that found no idle orchestrator within the borrow timeout",
		}, []string{"repo"}),
		cloneDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "clone_duration_seconds",
			Help:      "Duration of clone delegate invocations",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"repo", "outcome"}),
		cloneResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "clone_results_total",
			Help:      "Clone attempts by outcome",
		}, []string{"outcome"}),
		jobResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_results_total",
			Help:      "Worker jobs by final result",
		}, []string{"result"}),
		jobRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Jobs redelivered after an unclassified failure",
		}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in the local queue",
		}),
		janitorRemoved: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_removed_total",
			Help:      "Markers and entries removed by the janitor",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.cacheHits, pr.lockContention, pr.poolExhaustion, pr.cloneDuration,
		pr.cloneResults, pr.jobResults, pr.jobRetries, pr.queueDepth, pr.janitorRemoved)
	return pr
}

func (p *PrometheusRecorder) IncCacheHit(repo string) {
	if p == nil {
		return
	}
	p.cacheHits.WithLabelValues(repo).Inc()
}

func (p *PrometheusRecorder) IncLockContention(repo string) {
	if p == nil {
		return
	}
	p.lockContention.WithLabelValues(repo).Inc()
}

func (p *PrometheusRecorder) IncPoolExhaustion(repo string) {
	if p == nil {
		return
	}
	p.poolExhaustion.WithLabelValues(repo).Inc()
}

func (p *PrometheusRecorder) ObserveClone(repo string, d time.Duration, outcome CloneOutcome) {
	if p == nil {
		return
	}
	p.cloneDuration.WithLabelValues(repo, string(outcome)).Observe(d.Seconds())
	p.cloneResults.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncJobResult(result JobResult) {
	if p == nil {
		return
	}
	p.jobResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncJobRetry() {
	if p == nil {
		return
	}
	p.jobRetries.Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) AddJanitorRemoved(kind string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.janitorRemoved.WithLabelValues(kind).Add(float64(n))
}
