// Package metrics exposes the service's Prometheus collectors. Collectors live on a private
// registry owned by Metrics so several engines (and tests) can coexist in one process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "entity_search"

// Search outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeTimedOut = "timed_out"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Metrics groups every collector of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	searchDuration   *prometheus.HistogramVec
	subSearches      *prometheus.CounterVec
	subSearchLatency *prometheus.HistogramVec
	suggestDuration  *prometheus.HistogramVec
	indexMutations   *prometheus.CounterVec
	indexedDocuments *prometheus.GaugeVec
	jobs             *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	httpDuration     *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Search request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.25, 0.5, 1},
			},
			[]string{"outcome"},
		),
		subSearches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subsearches_total",
				Help:      "Per entity type sub-searches by outcome",
			},
			[]string{"entity_type", "outcome"},
		),
		subSearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "subsearch_duration_seconds",
				Help:      "Per entity type sub-search duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"entity_type"},
		),
		suggestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "suggest_duration_seconds",
				Help:      "Suggestion request duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
			},
			[]string{"outcome"},
		),
		indexMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_mutations_total",
				Help:      "Document upserts and removals by entity type and outcome",
			},
			[]string{"entity_type", "operation", "outcome"},
		),
		indexedDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "indexed_documents",
				Help:      "Number of documents currently indexed",
			},
			[]string{"entity_type"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Background jobs by type and final status",
			},
			[]string{"type", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Background job duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"type"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.searchDuration,
		m.subSearches,
		m.subSearchLatency,
		m.suggestDuration,
		m.indexMutations,
		m.indexedDocuments,
		m.jobs,
		m.jobDuration,
		m.httpDuration,
		m.httpRequests,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSearch records one orchestrated search.
func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveSubSearch records one per entity type sub-search.
func (m *Metrics) ObserveSubSearch(entityType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.subSearches.WithLabelValues(entityType, outcome).Inc()
	m.subSearchLatency.WithLabelValues(entityType).Observe(d.Seconds())
}

// ObserveSuggest records one suggestion request.
func (m *Metrics) ObserveSuggest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.suggestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IndexMutation counts an upsert or removal.
func (m *Metrics) IndexMutation(entityType, operation, outcome string) {
	if m == nil {
		return
	}
	m.indexMutations.WithLabelValues(entityType, operation, outcome).Inc()
}

// SetIndexedDocuments sets the document gauge of an entity type.
func (m *Metrics) SetIndexedDocuments(entityType string, n int) {
	if m == nil {
		return
	}
	m.indexedDocuments.WithLabelValues(entityType).Set(float64(n))
}

// JobFinished records a job reaching a terminal status.
func (m *Metrics) JobFinished(jobType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
	m.httpRequests.WithLabelValues(method, path, status).Inc()
}
