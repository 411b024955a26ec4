// Package metrics provides the observability hooks of the clone cache.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics stay optional without nil checks:
//
//	orch := repocache.NewCachedRepository(repo, store, cloner).
//	    WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// PrometheusRecorder exports the counters under the "repocache" namespace and
// HTTPHandler serves them for scraping.
package metrics
