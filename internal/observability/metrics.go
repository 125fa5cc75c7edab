package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Segmenter metrics
	SegmenterUtterancesTotal *prometheus.CounterVec
	SegmenterUtteranceDur    *prometheus.HistogramVec
	SegmenterActiveSpeakers  *prometheus.GaugeVec
	SegmenterFramesDropped   *prometheus.CounterVec

	// Router metrics
	RouterDeliveriesTotal *prometheus.CounterVec
	RouterDeliveryLatency *prometheus.HistogramVec
	RouterDegradedTotal   *prometheus.CounterVec
	RouterDedupDropped    *prometheus.CounterVec

	// Orchestrator metrics
	OrchestratorActiveSessions *prometheus.GaugeVec
	OrchestratorParticipants   *prometheus.GaugeVec
	OrchestratorSlowConsumers  *prometheus.CounterVec
	OrchestratorSessionsEnded  *prometheus.CounterVec

	// Translation metrics
	TranslationRequests  *prometheus.CounterVec
	TranslationLatency   *prometheus.HistogramVec
	TranslationErrors    *prometheus.CounterVec
	TranslationCacheHits *prometheus.CounterVec

	// Auth metrics
	AuthAttempts   *prometheus.CounterVec
	AuthSuccessful *prometheus.CounterVec
	AuthFailed     *prometheus.CounterVec
	ActiveSessions *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBConnections   *prometheus.GaugeVec
	DBErrors        *prometheus.CounterVec

	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec
	CacheSize      *prometheus.GaugeVec

	// HTTP metrics (for server mode)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
// All metrics follow naming conventions: callcore_<subsystem>_<metric>_<unit>
// Complexity: O(1)
func NewMetrics() *Metrics {
	m := &Metrics{
		SegmenterUtterancesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_segmenter_utterances_total",
				Help: "Total number of utterances closed out by the segmenter",
			},
			[]string{"reason"}, // natural_silence, force_finalized, dropped_empty, muted
		),

		SegmenterUtteranceDur: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcore_segmenter_utterance_duration_milliseconds",
				Help:    "Duration of finalized utterances in milliseconds",
				Buckets: []float64{200, 500, 1000, 2000, 3000, 5000},
			},
			[]string{"source_lang"},
		),

		SegmenterActiveSpeakers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callcore_segmenter_active_speakers",
				Help: "Number of speakers currently mid-utterance",
			},
			[]string{"session_id"},
		),

		SegmenterFramesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_segmenter_frames_dropped_total",
				Help: "Total number of inbound audio frames dropped due to a full queue",
			},
			[]string{"session_id"},
		),

		RouterDeliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_router_deliveries_total",
				Help: "Total number of per-listener deliveries produced by the router",
			},
			[]string{"kind"}, // interim, final
		),

		RouterDeliveryLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcore_router_delivery_latency_milliseconds",
				Help:    "Time from utterance final to delivery ready, in milliseconds",
				Buckets: []float64{50, 100, 250, 500, 1000, 2000, 3000},
			},
			[]string{"target_lang"},
		),

		RouterDegradedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_router_degraded_total",
				Help: "Total number of deliveries degraded to text-only",
			},
			[]string{"reason"}, // translation_unavailable, synthesis_unavailable
		),

		RouterDedupDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_router_dedup_dropped_total",
				Help: "Total number of duplicate final deliveries dropped by the sequence dedup window",
			},
			[]string{"session_id"},
		),

		OrchestratorActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callcore_orchestrator_active_sessions",
				Help: "Number of call sessions currently ongoing",
			},
			[]string{},
		),

		OrchestratorParticipants: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callcore_orchestrator_participants",
				Help: "Number of connected participants per session",
			},
			[]string{"session_id"},
		),

		OrchestratorSlowConsumers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_orchestrator_slow_consumer_disconnects_total",
				Help: "Total number of participants disconnected for falling behind on delivery",
			},
			[]string{"session_id"},
		),

		OrchestratorSessionsEnded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_orchestrator_sessions_ended_total",
				Help: "Total number of call sessions ended",
			},
			[]string{"reason"}, // insufficient_participants, explicit, error
		),

		// Translation metrics
		TranslationRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_translation_requests_total",
				Help: "Total number of translation requests",
			},
			[]string{"lang_pair", "status"}, // status: success, failed, cached
		),

		TranslationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcore_translation_latency_milliseconds",
				Help:    "Translation request latency in milliseconds",
				Buckets: []float64{50, 100, 170, 250, 500, 1000, 2000},
			},
			[]string{"lang_pair"},
		),

		TranslationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_translation_errors_total",
				Help: "Total number of translation errors",
			},
			[]string{"error_type"},
		),

		TranslationCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_translation_cache_hits_total",
				Help: "Total number of translation cache hits",
			},
			[]string{"lang_pair"},
		),

		// Auth metrics
		AuthAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"method"}, // bearer, token_refresh
		),

		AuthSuccessful: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_auth_successful_total",
				Help: "Total number of successful authentications",
			},
			[]string{"method"},
		),

		AuthFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_auth_failed_total",
				Help: "Total number of failed authentications",
			},
			[]string{"method", "reason"},
		),

		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callcore_active_sessions",
				Help: "Number of active admission sessions",
			},
			[]string{},
		),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcore_db_query_duration_milliseconds",
				Help:    "Database query duration in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"operation", "table"},
		),

		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callcore_db_connections",
				Help: "Number of database connections",
			},
			[]string{"state"}, // idle, in_use, open
		),

		DBErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_db_errors_total",
				Help: "Total number of database errors",
			},
			[]string{"operation", "error_type"},
		),

		// Cache metrics
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"}, // lru, redis
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		CacheEvictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_cache_evictions_total",
				Help: "Total number of cache evictions",
			},
			[]string{"cache_type", "reason"}, // reason: size, ttl
		),

		CacheSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callcore_cache_size_entries",
				Help: "Current number of entries in cache",
			},
			[]string{"cache_type"},
		),

		// HTTP metrics (server mode)
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcore_http_request_duration_milliseconds",
				Help:    "HTTP request duration in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"method", "path"},
		),

		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callcore_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
	}

	return m
}
