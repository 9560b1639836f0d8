package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lms-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the course cache and enrollment workflow events.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollmentsCreated    prometheus.Counter
	enrollmentTransitions *prometheus.CounterVec
	workflowRejections    *prometheus.CounterVec
	prerequisitesSkipped  *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollmentsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lms_enrollments_created_total",
		Help: "Total enrollments created",
	})

	enrollmentTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_enrollment_transitions_total",
		Help: "Enrollment status transitions applied",
	}, []string{"from", "to", "role"})

	workflowRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_workflow_rejections_total",
		Help: "Workflow operations rejected by a business rule",
	}, []string{"operation", "code"})

	prerequisitesSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_prerequisites_skipped_total",
		Help: "Prerequisite candidates skipped while attaching",
	}, []string{"reason"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		enrollmentsCreated, enrollmentTransitions, workflowRejections, prerequisitesSkipped, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:              registry,
		handler:               handler,
		requestDuration:       requestDuration,
		requestTotal:          requestTotal,
		cacheLatency:          cacheLatency,
		cacheWrite:            cacheWrite,
		cacheHitRatio:         cacheHitRatio,
		cacheHits:             cacheHits,
		cacheMisses:           cacheMisses,
		enrollmentsCreated:    enrollmentsCreated,
		enrollmentTransitions: enrollmentTransitions,
		workflowRejections:    workflowRejections,
		prerequisitesSkipped:  prerequisitesSkipped,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// IncEnrollmentCreated counts a new enrollment.
func (m *MetricsService) IncEnrollmentCreated() {
	if m == nil {
		return
	}
	m.enrollmentsCreated.Inc()
}

// IncEnrollmentTransition counts an applied status change.
func (m *MetricsService) IncEnrollmentTransition(from, to models.EnrollmentStatus, role models.UserRole) {
	if m == nil {
		return
	}
	m.enrollmentTransitions.WithLabelValues(string(from), string(to), string(role)).Inc()
}

// IncWorkflowRejection counts an operation refused with the given error code.
func (m *MetricsService) IncWorkflowRejection(operation, code string) {
	if m == nil {
		return
	}
	m.workflowRejections.WithLabelValues(operation, code).Inc()
}

// IncPrerequisiteSkipped counts a prerequisite candidate that was not attached.
func (m *MetricsService) IncPrerequisiteSkipped(reason string) {
	if m == nil {
		return
	}
	m.prerequisitesSkipped.WithLabelValues(reason).Inc()
}
