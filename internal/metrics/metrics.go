package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedscout_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	MessagesTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_messages_tracked_total",
			Help: "Messages recorded by the activity tracker, by resulting status",
		},
		[]string{"status"},
	)

	ScansStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_scans_started_total",
			Help: "Detection scans started",
		},
		[]string{"source"}, // "room" or "scheduled"
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedscout_scan_duration_seconds",
			Help:    "Detection scan duration end to end",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	ConversationsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_conversations_detected_total",
			Help: "Conversations surviving detection filters",
		},
		[]string{"source"},
	)

	CardsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_cards_created_total",
			Help: "Feed cards created",
		},
		[]string{"kind"}, // "automated" or "promoted"
	)

	CardsContinued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedscout_cards_continued_total",
			Help: "Continuations folded into existing feed cards",
		},
	)

	// Completion gateway metrics
	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_completion_requests_total",
			Help: "Completion gateway calls",
		},
		[]string{"outcome"}, // "ok", "timeout", "error"
	)

	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedscout_completion_duration_seconds",
			Help:    "Completion gateway call duration",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Job queue metrics
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_jobs_enqueued_total",
			Help: "Background jobs enqueued",
		},
		[]string{"kind"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscout_jobs_processed_total",
			Help: "Background jobs processed",
		},
		[]string{"kind", "outcome"}, // outcome: "ok" or "error"
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedscout_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
