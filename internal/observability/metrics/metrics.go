// Package metrics exposes the receiver's Prometheus instrumentation: HTTP
// request counters, session lifecycle gauges, and per-step pipeline outcome
// counters, collected by a single registry and served over /metrics.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private Prometheus registry and the instruments registered
// on it. A private registry (rather than the global default) keeps tests
// isolated and keeps this package's metrics additive to whatever else an
// embedding binary registers.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	sessionsActive    prometheus.Gauge
	sessionEvents     *prometheus.CounterVec
	segmentsIngested  *prometheus.CounterVec
	pipelineStepTotal *prometheus.CounterVec
	pipelineStepMs    *prometheus.HistogramVec
	objectStoreOps    *prometheus.CounterVec

	uploadQueueDepth      prometheus.Gauge
	uploadQueueDeadLetter prometheus.Gauge
	sessionProcessing     prometheus.Gauge
}

// New constructs a Recorder with every instrument registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audioreceiver_http_requests_total",
			Help: "Total number of HTTP requests processed by the ingest API.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audioreceiver_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audioreceiver_sessions_active",
			Help: "Number of sessions currently in the receiving state.",
		}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audioreceiver_session_events_total",
			Help: "Session lifecycle transitions by event type.",
		}, []string{"event"}),
		segmentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audioreceiver_segments_ingested_total",
			Help: "Segments accepted by the ingest endpoint, by channel group.",
		}, []string{"channel_group"}),
		pipelineStepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audioreceiver_pipeline_step_total",
			Help: "Channel pipeline step executions by step name and outcome.",
		}, []string{"step", "outcome"}),
		pipelineStepMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audioreceiver_pipeline_step_duration_ms",
			Help:    "Channel pipeline step duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"step"}),
		objectStoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audioreceiver_object_store_operations_total",
			Help: "Object store operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		uploadQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audioreceiver_upload_queue_depth",
			Help: "Items currently buffered in the upload queue's dispatch channel.",
		}),
		uploadQueueDeadLetter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audioreceiver_upload_queue_dead_letter_count",
			Help: "Items currently sitting in the upload queue's dead-letter directory.",
		}),
		sessionProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audioreceiver_session_processing",
			Help: "Whether the session manager's processing slot is occupied (0 or 1).",
		}),
	}

	reg.MustRegister(
		r.httpRequests,
		r.httpRequestDuration,
		r.sessionsActive,
		r.sessionEvents,
		r.segmentsIngested,
		r.pipelineStepTotal,
		r.pipelineStepMs,
		r.objectStoreOps,
		r.uploadQueueDepth,
		r.uploadQueueDeadLetter,
		r.sessionProcessing,
	)
	return r
}

// Handler exposes the Recorder's registry as a scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request's route, method, status,
// and duration.
func (r *Recorder) ObserveRequest(method, route string, status int, durationSeconds float64) {
	method = strings.ToUpper(method)
	statusLabel := http.StatusText(status)
	if statusLabel == "" {
		statusLabel = "unknown"
	}
	r.httpRequests.WithLabelValues(method, route, statusText(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

func statusText(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// SessionStarted increments the "started" lifecycle event and the active gauge.
func (r *Recorder) SessionStarted() {
	r.sessionEvents.WithLabelValues("started").Inc()
	r.sessionsActive.Inc()
}

// SessionCompleted increments the "completed" lifecycle event and decrements
// the active gauge.
func (r *Recorder) SessionCompleted() {
	r.sessionEvents.WithLabelValues("completed").Inc()
	r.sessionsActive.Dec()
}

// SessionTimedOut records a session that was auto-completed by the
// timeout-detection ticker rather than an explicit client call.
func (r *Recorder) SessionTimedOut() {
	r.sessionEvents.WithLabelValues("timed_out").Inc()
}

// SessionProcessed records a terminal processed/failed outcome.
func (r *Recorder) SessionProcessed(success bool) {
	if success {
		r.sessionEvents.WithLabelValues("processed").Inc()
		return
	}
	r.sessionEvents.WithLabelValues("failed").Inc()
}

// SegmentIngested records one accepted upload for a channel group.
func (r *Recorder) SegmentIngested(channelGroup string) {
	r.segmentsIngested.WithLabelValues(channelGroup).Inc()
}

// PipelineStep records one step's outcome and duration.
func (r *Recorder) PipelineStep(step, outcome string, durationMs int64) {
	r.pipelineStepTotal.WithLabelValues(step, outcome).Inc()
	r.pipelineStepMs.WithLabelValues(step).Observe(float64(durationMs))
}

// ObjectStoreOperation records one object-store call's outcome.
func (r *Recorder) ObjectStoreOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.objectStoreOps.WithLabelValues(operation, outcome).Inc()
}

// SetUploadQueueDepth reports the upload queue's current buffered item count.
func (r *Recorder) SetUploadQueueDepth(depth int) {
	r.uploadQueueDepth.Set(float64(depth))
}

// SetUploadQueueDeadLetterCount reports the upload queue's current
// dead-letter directory size.
func (r *Recorder) SetUploadQueueDeadLetterCount(count int) {
	r.uploadQueueDeadLetter.Set(float64(count))
}

// SetSessionProcessing reports whether the session manager's single
// processing slot is currently occupied.
func (r *Recorder) SetSessionProcessing(processing bool) {
	if processing {
		r.sessionProcessing.Set(1)
		return
	}
	r.sessionProcessing.Set(0)
}
