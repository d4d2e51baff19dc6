// Package metrics exposes the service's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "casegest"

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// so callers that run without a registry need no guards.
type Metrics struct {
	registry *prometheus.Registry

	documentsProcessed *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	entitiesExtracted  *prometheus.CounterVec
	crossReferences    prometheus.Counter
	timelineEvents     prometheus.Counter
	queueDepth         prometheus.Gauge
	jobsTotal          *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		collectors.NewGoCollector(),
	)

	m := &Metrics{
		registry: reg,
		documentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Analysis runs by final processing status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each analysis stage.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"stage"}),
		entitiesExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_extracted_total",
			Help:      "Entities extracted by type.",
		}, []string{"type"}),
		crossReferences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cross_references_total",
			Help:      "Cross-references emitted.",
		}),
		timelineEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_events_total",
			Help:      "Timeline events emitted.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Pipeline jobs by terminal state.",
		}, []string{"state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.documentsProcessed,
		m.stageDuration,
		m.entitiesExtracted,
		m.crossReferences,
		m.timelineEvents,
		m.queueDepth,
		m.jobsTotal,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) DocumentProcessed(status string) {
	if m == nil {
		return
	}
	m.documentsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) EntitiesExtracted(entityType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entitiesExtracted.WithLabelValues(entityType).Add(float64(n))
}

func (m *Metrics) CrossReferences(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.crossReferences.Add(float64(n))
}

func (m *Metrics) TimelineEvents(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.timelineEvents.Add(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
