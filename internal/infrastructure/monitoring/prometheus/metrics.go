// Package prometheus exposes the pipeline's operational metrics on a
// dedicated registry. All methods are nil-safe so components can accept an
// optional *PipelineMetrics and skip instrumentation when it is absent.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
)

// Entity drop reason label values.
const (
	DropReasonLowConfidence = "low_confidence"
	DropReasonUnlinkable    = "unlinkable"
)

// PipelineMetrics holds every metric the structuring pipeline emits.
type PipelineMetrics struct {
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	nerRequestsTotal   *prometheus.CounterVec
	nerRequestDuration prometheus.Histogram
	nerRetriesTotal    prometheus.Counter
	entitiesExtracted  prometheus.Counter
	entitiesDropped    *prometheus.CounterVec
	cacheHitsTotal     prometheus.Counter
	cacheMissesTotal   prometheus.Counter
}

// NewPipelineMetrics registers the pipeline metrics on a fresh registry under
// the given namespace ("medlabel" when empty).
func NewPipelineMetrics(namespace string) *PipelineMetrics {
	if namespace == "" {
		namespace = "medlabel"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &PipelineMetrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline invocations by outcome (ok or degraded).",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall-clock duration of a full pipeline run.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		}),
		nerRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ner_requests_total",
			Help:      "NER service calls by result code (OK or the error code).",
		}, []string{"code"}),
		nerRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ner_request_duration_seconds",
			Help:      "Duration of NER service calls, including retries.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30, 60, 120},
		}),
		nerRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ner_retries_total",
			Help:      "Retried NER attempts beyond the first.",
		}),
		entitiesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_extracted_total",
			Help:      "Raw entities returned by the NER service.",
		}),
		entitiesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_dropped_total",
			Help:      "Entities rejected during linking, by reason.",
		}, []string{"reason"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Entity cache hits.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Entity cache misses.",
		}),
	}

	registry.MustRegister(
		m.runsTotal, m.runDuration,
		m.nerRequestsTotal, m.nerRequestDuration, m.nerRetriesTotal,
		m.entitiesExtracted, m.entitiesDropped,
		m.cacheHitsTotal, m.cacheMissesTotal,
	)
	return m
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *PipelineMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that embed additional
// collectors.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records one pipeline invocation.
func (m *PipelineMetrics) ObserveRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

// ObserveNERRequest records one entity-extraction call, labeled with "OK" or
// the pipeline error code.
func (m *PipelineMetrics) ObserveNERRequest(code string, d time.Duration) {
	if m == nil {
		return
	}
	m.nerRequestsTotal.WithLabelValues(code).Inc()
	m.nerRequestDuration.Observe(d.Seconds())
}

// IncRetries counts n retried NER attempts.
func (m *PipelineMetrics) IncRetries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.nerRetriesTotal.Add(float64(n))
}

// AddEntitiesExtracted counts raw entities returned by the service.
func (m *PipelineMetrics) AddEntitiesExtracted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entitiesExtracted.Add(float64(n))
}

// AddEntitiesDropped counts entities rejected during linking.
func (m *PipelineMetrics) AddEntitiesDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entitiesDropped.WithLabelValues(reason).Add(float64(n))
}

// IncCacheHit counts one entity-cache hit.
func (m *PipelineMetrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// IncCacheMiss counts one entity-cache miss.
func (m *PipelineMetrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}
