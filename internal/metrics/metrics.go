package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intel_sessions_started_total",
			Help: "Total number of research sessions started",
		},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intel_sessions_completed_total",
			Help: "Total number of research sessions reaching a terminal status",
		},
		[]string{"status"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intel_sessions_active",
			Help: "Number of sessions currently pending or in progress",
		},
	)

	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intel_session_duration_seconds",
			Help:    "Wall time from session creation to terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	SessionMirrorSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intel_session_mirror_size",
			Help: "Current number of sessions held in the local mirror",
		},
	)

	SessionMirrorEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intel_session_mirror_evictions_total",
			Help: "Total number of sessions evicted from the local mirror",
		},
	)

	// Research fetch metrics
	ResearchFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intel_research_fetches_total",
			Help: "Per-competitor research outcomes",
		},
		[]string{"outcome"}, // cache_hit, fresh, failed
	)

	SingleFlightShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intel_singleflight_shared_total",
			Help: "Fetches that were satisfied by another in-flight call for the same key",
		},
	)

	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intel_external_call_duration_seconds",
			Help:    "External agent call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"}, // deep_research, synthesizer
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intel_cache_hits_total",
			Help: "Total number of accepted cache entries",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intel_cache_misses_total",
			Help: "Total number of cache lookups that required a fresh fetch",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intel_cache_errors_total",
			Help: "Cache persistence failures degraded to misses or absorbed",
		},
		[]string{"op"},
	)

	// Archive metrics
	ArchiveQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intel_archive_queue_depth",
			Help: "Pending session archive writes",
		},
	)

	ArchiveDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intel_archive_drops_total",
			Help: "Archive writes dropped because the queue was full",
		},
	)

	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intel_archive_writes_total",
			Help: "Archive write attempts by result",
		},
		[]string{"result"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intel_stream_subscribers",
			Help: "Currently connected progress-stream subscribers",
		},
	)
)

// RecordSessionOutcome records the terminal metrics for a session.
func RecordSessionOutcome(status string, durationSeconds float64) {
	SessionsCompleted.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		SessionDuration.Observe(durationSeconds)
	}
}

// RecordFetchOutcome records one per-competitor research outcome.
func RecordFetchOutcome(outcome string) {
	ResearchFetches.WithLabelValues(outcome).Inc()
}

// RecordExternalCall records the duration of one external agent call.
func RecordExternalCall(stage string, durationSeconds float64) {
	ExternalCallDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(path, method, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(path, method, status).Inc()
	HTTPRequestDuration.WithLabelValues(path, method).Observe(durationSeconds)
}
